// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package coverage

import (
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/seq2c/interval"
)

// Accumulator holds one worker's partial coverage of every panel region.  It
// is thread compatible; each worker owns exactly one.
type Accumulator struct {
	panel  *interval.Panel
	byRef  []*interval.ChromIndex
	filter Filter

	// Depth[i] is the number of covered bases summed over every record that
	// overlapped Panel.Regions[i].
	Depth []int64
	// Reads[i] is the number of records overlapping Panel.Regions[i].
	Reads []int64

	// NRecords counts every observed record, NFiltered those rejected by the
	// filter.
	NRecords  int64
	NFiltered int64

	// stamp[i] == serial iff Reads[i] was already incremented for the current
	// record.
	stamp  []int64
	serial int64

	cursor interval.Cursor
	segs   []Segment
	ids    []int32
}

// NewAccumulator creates an empty accumulator.  byRef must come from
// panel.ByRefID on the header of the alignment file being read.
func NewAccumulator(panel *interval.Panel, byRef []*interval.ChromIndex, filter Filter) *Accumulator {
	n := panel.Len()
	return &Accumulator{
		panel:  panel,
		byRef:  byRef,
		filter: filter,
		Depth:  make([]int64, n),
		Reads:  make([]int64, n),
		stamp:  make([]int64, n),
	}
}

// Observe adds the coverage of r to every overlapping region.  Records that
// fail the filter, and records on chromosomes without regions, are ignored.
// The only possible error is an unsupported CIGAR operation.
func (a *Accumulator) Observe(r *sam.Record) (err error) {
	a.NRecords++
	if !a.filter.Pass(r) {
		a.NFiltered++
		return nil
	}
	refID := r.Ref.ID()
	if refID >= len(a.byRef) || a.byRef[refID] == nil {
		return nil
	}
	chrom := a.byRef[refID]
	if a.segs, err = ExtractSegments(a.segs[:0], r); err != nil {
		return err
	}
	a.serial++
	for _, seg := range a.segs {
		a.addSegment(chrom, seg)
	}
	return nil
}

// ObserveSegment adds a single segment on the given reference, counted as a
// record of its own.
func (a *Accumulator) ObserveSegment(refID int, seg Segment) {
	if refID < 0 || refID >= len(a.byRef) || a.byRef[refID] == nil {
		return
	}
	a.serial++
	a.addSegment(a.byRef[refID], seg)
}

func (a *Accumulator) addSegment(chrom *interval.ChromIndex, seg Segment) {
	a.ids = a.cursor.Overlapping(chrom, a.ids[:0], seg.Start, seg.End)
	for _, id := range a.ids {
		region := &a.panel.Regions[id]
		if region.Unnamed() {
			continue
		}
		start := seg.Start
		if region.Start0 > start {
			start = region.Start0
		}
		end := seg.End
		if region.End < end {
			end = region.End
		}
		a.Depth[id] += int64(end - start)
		if a.stamp[id] != a.serial {
			a.stamp[id] = a.serial
			a.Reads[id]++
		}
	}
}
