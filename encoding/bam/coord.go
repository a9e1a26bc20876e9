// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"fmt"
	"math"

	"github.com/grailbio/hts/sam"
)

const (
	// InfinityPos is 1+ the largest possible alignment position.
	InfinityPos = math.MaxInt32

	// InfinityRefID is a pseudo referenceID for unmapped reads.  Unmapped
	// reads sort after every mapped read.
	InfinityRefID = int32(-1)
	// UnmappedRefID is a synonym of InfinityRefID.
	UnmappedRefID = InfinityRefID
)

// Coord is a position in the (reference ID, position) order used by
// coordinate-sorted BAM files.
type Coord struct {
	RefID int32
	Pos   int32
}

// CoordRange is a half-open range [Start, Limit) of Coords.
type CoordRange struct {
	Start Coord
	Limit Coord
}

// For sorting Coords.
func sortableRefID(id int32) int32 {
	if id == InfinityRefID {
		// Unmapped reads are sorted the last, so use a large value.
		return math.MaxInt32
	}
	return id
}

// Compare returns (negative int, 0, positive int) if (r<r1, r=r1, r>r1)
// respectively.
func (r Coord) Compare(r1 Coord) int {
	refid0 := sortableRefID(r.RefID)
	refid1 := sortableRefID(r1.RefID)
	if refid0 != refid1 {
		if refid0 < refid1 {
			return -1
		}
		return 1
	}
	if r.Pos != r1.Pos {
		if r.Pos < r1.Pos {
			return -1
		}
		return 1
	}
	return 0
}

// LT returns true iff r < r1.
func (r Coord) LT(r1 Coord) bool {
	return r.Compare(r1) < 0
}

// LE returns true iff r <= r1
func (r Coord) LE(r1 Coord) bool {
	return r.Compare(r1) <= 0
}

// GE returns true iff r >= r1
func (r Coord) GE(r1 Coord) bool {
	return r.Compare(r1) >= 0
}

// GT return true iff r > r1
func (r Coord) GT(r1 Coord) bool {
	return r.Compare(r1) > 0
}

// EQ returns true iff r = r1.
func (r Coord) EQ(r1 Coord) bool {
	return r.RefID == r1.RefID && r.Pos == r1.Pos
}

// String returns "refid:pos".
func (r Coord) String() string {
	return fmt.Sprintf("%d:%d", r.RefID, r.Pos)
}

// EQ returns true iff. r=r1.
func (r CoordRange) EQ(r1 CoordRange) bool {
	return r.Start.EQ(r1.Start) && r.Limit.EQ(r1.Limit)
}

// Intersects returns true iff (a ∩ r) != ∅
func (r CoordRange) Intersects(r1 CoordRange) bool {
	return r.Start.LT(r1.Limit) && r1.Start.LT(r.Limit)
}

// Contains checks if "a" is inside the "r"
func (r CoordRange) Contains(a Coord) bool {
	return r.Start.LE(a) && a.LT(r.Limit)
}

// CoordFromSAMRecord computes the Coord of the leftmost mapped position of
// the given record.
func CoordFromSAMRecord(rec *sam.Record) Coord {
	return NewCoord(rec.Ref, rec.Pos)
}

// NewCoord generates Coord from the given parameters.  A nil ref maps to
// UnmappedRefID.
func NewCoord(ref *sam.Reference, pos int) Coord {
	a := Coord{RefID: int32(ref.ID()), Pos: int32(pos)}
	if a.RefID == InfinityRefID && pos < 0 {
		// Pos for unmapped reads are meaningless.  The convention is to
		// store -1 as Pos, but we don't use negative positions
		// elsewhere, so we just use 0 as a placeholder.
		a.Pos = 0
	}
	return a
}
