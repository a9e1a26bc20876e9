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
	"github.com/grailbio/seq2c/interval"
)

// RegionStats is the final coverage of one region.
type RegionStats struct {
	Region *interval.Region
	// Depth is the total number of aligned bases inside the region.
	Depth int64
	// Reads is the number of records overlapping the region.
	Reads int64
}

// Length returns the region length used as the mean-depth denominator.
func (s *RegionStats) Length(opts Opts) int64 {
	n := int64(s.Region.Len())
	if opts.MimicPerl {
		n++
	}
	return n
}

// MeanDepth returns Depth/Length.
func (s *RegionStats) MeanDepth(opts Opts) float64 {
	return meanDepth(s.Depth, s.Length(opts))
}

func meanDepth(depth, length int64) float64 {
	if length <= 0 {
		return 0
	}
	return float64(depth) / float64(length)
}

// Merge sums the partial results of every accumulator.  The result has one
// entry per panel region, in region-file order.  Integer addition makes the
// result independent of the number and order of partials.
func Merge(panel *interval.Panel, partials []*Accumulator) []RegionStats {
	stats := make([]RegionStats, panel.Len())
	for i := range stats {
		stats[i].Region = &panel.Regions[i]
	}
	for _, acc := range partials {
		for i := range stats {
			stats[i].Depth += acc.Depth[i]
			stats[i].Reads += acc.Reads[i]
		}
	}
	return stats
}

// Row tags.
const (
	TagAmplicon  = "Amplicon"
	TagWholeGene = "Whole-Gene"
)

// Row is one line of the output table.  Start is in the coordinate
// convention of the region file.
type Row struct {
	Sample    string
	Gene      string
	Chr       string
	Start     int
	End       int
	Tag       string
	Length    int64
	MeanDepth float64
	Depth     int64
	Reads     int64
}

func (opts *Opts) outputStart(start0 interval.PosType) int {
	if opts.OneBasedInput {
		return int(start0) + 1
	}
	return int(start0)
}

func ampliconRow(s *RegionStats, opts Opts) Row {
	r := s.Region
	return Row{
		Sample:    opts.SampleName,
		Gene:      r.Gene,
		Chr:       r.RefName,
		Start:     opts.outputStart(r.Start0),
		End:       int(r.End),
		Tag:       TagAmplicon,
		Length:    s.Length(opts),
		MeanDepth: s.MeanDepth(opts),
		Depth:     s.Depth,
		Reads:     s.Reads,
	}
}

type geneKey struct {
	chr, gene string
}

type geneAgg struct {
	row Row
	// last is the index of the gene's last region.
	last int
}

// geneAggs groups stats by (chromosome, gene) in order of first appearance.
func geneAggs(stats []RegionStats, opts Opts) []*geneAgg {
	var aggs []*geneAgg
	byKey := map[geneKey]*geneAgg{}
	for i := range stats {
		s := &stats[i]
		key := geneKey{s.Region.RefName, s.Region.Gene}
		agg, ok := byKey[key]
		if !ok {
			agg = &geneAgg{row: Row{
				Sample: opts.SampleName,
				Gene:   key.gene,
				Chr:    key.chr,
				Start:  int(s.Region.Start0),
				End:    int(s.Region.End),
				Tag:    TagWholeGene,
			}}
			byKey[key] = agg
			aggs = append(aggs, agg)
		}
		if int(s.Region.Start0) < agg.row.Start {
			agg.row.Start = int(s.Region.Start0)
		}
		if int(s.Region.End) > agg.row.End {
			agg.row.End = int(s.Region.End)
		}
		agg.row.Length += s.Length(opts)
		agg.row.Depth += s.Depth
		agg.row.Reads += s.Reads
		agg.last = i
	}
	for _, agg := range aggs {
		agg.row.MeanDepth = meanDepth(agg.row.Depth, agg.row.Length)
		agg.row.Start = opts.outputStart(interval.PosType(agg.row.Start))
	}
	return aggs
}

// GeneRows returns one Whole-Gene row per (chromosome, gene) pair, in order
// of first appearance.  Depth, Reads and Length are sums over the gene's
// regions; Start and End span them.
func GeneRows(stats []RegionStats, opts Opts) []Row {
	aggs := geneAggs(stats, opts)
	rows := make([]Row, len(aggs))
	for i, agg := range aggs {
		rows[i] = agg.row
	}
	return rows
}

// Rows returns the full output table: one Amplicon row per region in
// region-file order, each gene's Whole-Gene row right after its last region
// unless opts.AmpliconsOnly is set.
func Rows(stats []RegionStats, opts Opts) []Row {
	rows := make([]Row, 0, len(stats)*2)
	var after [][]Row
	if !opts.AmpliconsOnly {
		after = make([][]Row, len(stats))
		for _, agg := range geneAggs(stats, opts) {
			after[agg.last] = append(after[agg.last], agg.row)
		}
	}
	for i := range stats {
		rows = append(rows, ampliconRow(&stats[i], opts))
		if after != nil {
			rows = append(rows, after[i]...)
		}
	}
	return rows
}
