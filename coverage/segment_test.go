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
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/seq2c/interval"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

func newRef(t *testing.T, name string, length int) *sam.Reference {
	ref, err := sam.NewReference(name, "", "", length, nil, nil)
	require.NoError(t, err)
	return ref
}

func newRecord(t *testing.T, ref *sam.Reference, pos int, cigarStr string) *sam.Record {
	cigar, err := sam.ParseCigar([]byte(cigarStr))
	require.NoError(t, err)
	rec, err := sam.NewRecord("r", ref, nil, pos, -1, 0, 60, cigar, nil, nil, nil)
	require.NoError(t, err)
	return rec
}

func TestExtractSegments(t *testing.T) {
	ref := newRef(t, "chr1", 100000)
	tests := []struct {
		cigar string
		want  []Segment
	}{
		{"50M", []Segment{{100, 150}}},
		{"5S40M5S", []Segment{{100, 140}}},
		{"5H10M", []Segment{{100, 110}}},
		{"10M5D10M", []Segment{{100, 110}, {115, 125}}},
		{"10M100N10M", []Segment{{100, 110}, {210, 220}}},
		{"10M5I10M", []Segment{{100, 120}}},
		{"10=5X10=", []Segment{{100, 125}}},
		{"10M2P10M", []Segment{{100, 120}}},
		{"20S", nil},
	}
	for _, test := range tests {
		segs, err := ExtractSegments(nil, newRecord(t, ref, 100, test.cigar))
		require.NoError(t, err, test.cigar)
		expect.EQ(t, segs, test.want, test.cigar)
	}

	// dst is appended to, and adjacent segments of different calls are not
	// merged.
	dst := []Segment{{90, 100}}
	dst, err := ExtractSegments(dst, newRecord(t, ref, 100, "10M"))
	require.NoError(t, err)
	expect.EQ(t, dst, []Segment{{90, 100}, {100, 110}})
}

func TestExtractSegmentsBadOp(t *testing.T) {
	ref := newRef(t, "chr1", 1000)
	rec := newRecord(t, ref, 100, "10M")
	rec.Cigar = append(rec.Cigar, sam.NewCigarOp(sam.CigarBack, 2), sam.NewCigarOp(sam.CigarMatch, 10))
	dst := []Segment{{1, 2}}
	dst, err := ExtractSegments(dst, rec)
	require.Error(t, err)
	expect.True(t, errors.Is(errors.Integrity, err))
	expect.HasSubstr(t, err.Error(), "unexpected CIGAR op")
	expect.EQ(t, dst, []Segment{{1, 2}})
}

func TestFilter(t *testing.T) {
	ref := newRef(t, "chr1", 1000)
	filter := DefaultOpts.filter()
	expect.EQ(t, filter.FlagExclude, sam.Flags(0xd04))

	rec := newRecord(t, ref, 100, "10M")
	expect.True(t, filter.Pass(rec))
	for _, flag := range []sam.Flags{sam.Unmapped, sam.Secondary, sam.Duplicate, sam.Supplementary} {
		rec.Flags = flag | sam.Paired
		expect.False(t, filter.Pass(rec), "flag %v", flag)
	}
	rec.Flags = sam.Paired | sam.ProperPair | sam.Reverse | sam.Read1 | sam.QCFail
	expect.True(t, filter.Pass(rec))

	rec.Flags = 0
	rec.MapQ = 9
	expect.True(t, filter.Pass(rec))
	expect.False(t, Filter{MinMapQ: 10}.Pass(rec))
	rec.MapQ = 10
	expect.True(t, Filter{MinMapQ: 10}.Pass(rec))

	rec.Cigar = nil
	expect.False(t, filter.Pass(rec))

	expect.False(t, filter.Pass(newRecord(t, nil, -1, "10M")))
}

func TestAccumulator(t *testing.T) {
	panel, err := interval.NewPanel([]interval.Region{
		{RefName: "chr1", Start0: 100, End: 200, Name: "a", Gene: "g"},
		{RefName: "chr1", Start0: 150, End: 160, Name: "b", Gene: "g"},
		{RefName: "chr1", Start0: 300, End: 400, Name: ".", Gene: "."},
		{RefName: "chr2", Start0: 0, End: 50, Name: "c", Gene: "h"},
	})
	require.NoError(t, err)
	chr1 := newRef(t, "chr1", 1000)
	chr2 := newRef(t, "chr2", 1000)
	chr3 := newRef(t, "chr3", 1000)
	header, err := sam.NewHeader(nil, []*sam.Reference{chr1, chr2, chr3})
	require.NoError(t, err)

	acc := NewAccumulator(panel, panel.ByRefID(header), DefaultOpts.filter())
	// Two segments inside "a", one of them spanning "b".  Reads counts once.
	require.NoError(t, acc.Observe(newRecord(t, chr1, 140, "20M10D20M")))
	// Spans the end of "a" and all of the unnamed region.
	require.NoError(t, acc.Observe(newRecord(t, chr1, 190, "300M")))
	// No regions on chr3.
	require.NoError(t, acc.Observe(newRecord(t, chr3, 0, "300M")))
	dup := newRecord(t, chr2, 0, "10M")
	dup.Flags = sam.Duplicate
	require.NoError(t, acc.Observe(dup))
	acc.ObserveSegment(1, Segment{40, 60})
	acc.ObserveSegment(7, Segment{40, 60})

	expect.EQ(t, acc.Depth, []int64{40 + 10, 10, 0, 10})
	expect.EQ(t, acc.Reads, []int64{2, 1, 0, 1})
	expect.EQ(t, acc.NRecords, int64(4))
	expect.EQ(t, acc.NFiltered, int64(1))
}
