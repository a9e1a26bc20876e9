// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	"v.io/x/lib/vlog"
)

// Shard represents a genomic interval. The <StartRef,Start> and <EndRef,End>
// coordinates form a half-open, 0-based interval over the (reference ID,
// position) order.  A shard may span several references.  An iterator for
// such a range will return reads whose start positions fall within that
// range, so every mapped record belongs to exactly one shard of a valid shard
// list.
//
// A shard that ends at <ref,0> extends to the end of the reference preceding
// ref.
//
// The Shards are ordered according to the order of the bam input file.
// ShardIdx is an index into that ordering.  The first Shard has index 0, and
// the subsequent shards increment the ShardIdx by one each.
type Shard struct {
	StartRef *sam.Reference
	EndRef   *sam.Reference
	Start    int
	End      int

	ShardIdx int
}

// UniversalShard creates a Shard that covers every mapped record of the
// header's references.
func UniversalShard(header *sam.Header) Shard {
	refs := header.Refs()
	if len(refs) == 0 {
		return Shard{End: InfinityPos}
	}
	return Shard{
		StartRef: refs[0],
		EndRef:   refs[len(refs)-1],
		Start:    0,
		End:      InfinityPos,
	}
}

// StartCoord returns the inclusive start of s.
func (s *Shard) StartCoord() Coord {
	return NewCoord(s.StartRef, s.Start)
}

// EndCoord returns the exclusive end of s.
func (s *Shard) EndCoord() Coord {
	return NewCoord(s.EndRef, s.End)
}

// RecordInShard returns true if the leftmost position of r is in s.
func (s *Shard) RecordInShard(r *sam.Record) bool {
	return s.CoordInShard(CoordFromSAMRecord(r))
}

// CoordInShard returns whether coord is within the shard.
func (s *Shard) CoordInShard(coord Coord) bool {
	if coord.LT(s.StartCoord()) {
		return false
	}
	return coord.LT(s.EndCoord())
}

// String returns a debug string for s.
func (s *Shard) String() string {
	return fmt.Sprintf("%d:(%s[%d],%d)-(%s[%d],%d)",
		s.ShardIdx, s.StartRef.Name(), s.StartRef.ID(), s.Start,
		s.EndRef.Name(), s.EndRef.ID(), s.End)
}

// ShardToCoordRange converts bam.Shard to CoordRange.
func ShardToCoordRange(shard Shard) CoordRange {
	return CoordRange{Start: shard.StartCoord(), Limit: shard.EndCoord()}
}

// shardBuilder turns a sorted list of boundary coordinates into a contiguous
// shard list covering the whole header.
type shardBuilder struct {
	refs   []*sam.Reference
	shards []Shard
	last   Coord
}

func newShardBuilder(header *sam.Header) *shardBuilder {
	return &shardBuilder{refs: header.Refs()}
}

// cut closes the current shard at <refID,pos>.  Boundaries that don't advance
// past the previous one are dropped, so shards are never empty.
func (b *shardBuilder) cut(refID, pos int) {
	c := Coord{RefID: int32(refID), Pos: int32(pos)}
	if c.LE(b.last) {
		return
	}
	b.shards = append(b.shards, Shard{
		StartRef: b.refs[b.last.RefID],
		Start:    int(b.last.Pos),
		EndRef:   b.refs[refID],
		End:      pos,
		ShardIdx: len(b.shards),
	})
	b.last = c
}

func (b *shardBuilder) finish() []Shard {
	lastRef := b.refs[len(b.refs)-1]
	b.shards = append(b.shards, Shard{
		StartRef: b.refs[b.last.RefID],
		Start:    int(b.last.Pos),
		EndRef:   lastRef,
		End:      InfinityPos,
		ShardIdx: len(b.shards),
	})
	return b.shards
}

// GetDensityBasedShards returns at most numShards shards that cover the
// genome, placing boundaries so that every shard holds roughly the same
// number of panel regions.  starts[refID] lists the sorted start positions of
// the regions on the reference; refs without regions may have a nil entry.
// Boundaries always fall on a region start.
//
// When there are no regions at all, it falls back to GetLengthBasedShards.
func GetDensityBasedShards(header *sam.Header, starts [][]int, numShards int) ([]Shard, error) {
	if len(header.Refs()) == 0 {
		return []Shard{UniversalShard(header)}, nil
	}
	if len(starts) > len(header.Refs()) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("bam.GetDensityBasedShards: %d region lists for %d references",
			len(starts), len(header.Refs())))
	}
	if numShards < 1 {
		numShards = 1
	}
	total := 0
	for _, s := range starts {
		total += len(s)
	}
	if total == 0 {
		return GetLengthBasedShards(header, numShards)
	}
	if numShards > total {
		numShards = total
	}

	b := newShardBuilder(header)
	refID := 0
	// Number of region starts on references before refID.
	before := 0
	for k := 1; k < numShards; k++ {
		target := k * total / numShards
		for before+len(starts[refID]) <= target {
			before += len(starts[refID])
			refID++
		}
		b.cut(refID, starts[refID][target-before])
	}
	shards := b.finish()
	vlog.VI(1).Infof("Created %d density-based shard(s) for %d region(s)", len(shards), total)
	return shards, nil
}

// GetLengthBasedShards returns at most numShards shards that split the
// cumulative reference length evenly.
func GetLengthBasedShards(header *sam.Header, numShards int) ([]Shard, error) {
	refs := header.Refs()
	if len(refs) == 0 {
		return []Shard{UniversalShard(header)}, nil
	}
	if numShards < 1 {
		numShards = 1
	}
	var total int64
	for _, ref := range refs {
		total += int64(ref.Len())
	}
	b := newShardBuilder(header)
	refID := 0
	var before int64
	for k := 1; k < numShards; k++ {
		target := int64(k) * total / int64(numShards)
		for refID < len(refs)-1 && before+int64(refs[refID].Len()) <= target {
			before += int64(refs[refID].Len())
			refID++
		}
		b.cut(refID, int(target-before))
	}
	return b.finish(), nil
}

// ValidateShardList validates that shardList has sensible values: the first
// shard starts at the beginning of the first reference, consecutive shards
// abut, and the last one extends at least to the end of the last reference.
func ValidateShardList(header *sam.Header, shardList []Shard) error {
	if len(shardList) == 0 {
		return errors.E(errors.Invalid, "bam.ValidateShardList: empty shard list")
	}
	refs := header.Refs()
	for i := range shardList {
		shard := &shardList[i]
		if shard.ShardIdx != i {
			return errors.E(errors.Invalid, fmt.Sprintf("shard %d has ShardIdx %d", i, shard.ShardIdx))
		}
		if !shard.StartCoord().LT(shard.EndCoord()) {
			return errors.E(errors.Invalid, fmt.Sprintf("shard start must precede end: %v", shard))
		}
		if i == 0 {
			if len(refs) > 0 && (shard.StartRef != refs[0] || shard.Start != 0) {
				return errors.E(errors.Invalid, fmt.Sprintf("first shard should start at the beginning of %s: %v", refs[0].Name(), shard))
			}
			continue
		}
		if !shard.StartCoord().EQ(shardList[i-1].EndCoord()) {
			return errors.E(errors.Invalid, fmt.Sprintf("shard gap between %v and %v", &shardList[i-1], shard))
		}
	}
	if len(refs) > 0 {
		lastRef := refs[len(refs)-1]
		last := &shardList[len(shardList)-1]
		if last.EndCoord().LT(NewCoord(lastRef, lastRef.Len())) {
			return errors.E(errors.Invalid, fmt.Sprintf("last shard should reach the end of %s: %v", lastRef.Name(), last))
		}
	}
	return nil
}

// FindShard returns the index of the shard in shardList that contains coord,
// or -1 if there's none (e.g., coord is unmapped).
//
// REQUIRES: shardList is sorted and contiguous, as created by the
// Get*Shards functions.
func FindShard(shardList []Shard, coord Coord) int {
	i := sort.Search(len(shardList), func(i int) bool {
		return coord.LT(shardList[i].EndCoord())
	})
	if i == len(shardList) || coord.LT(shardList[i].StartCoord()) {
		return -1
	}
	return i
}
