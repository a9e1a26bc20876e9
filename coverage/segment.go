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
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/seq2c/interval"
)

// Segment is a half-open span [Start, End) of reference bases covered by
// aligned read bases, on the record's own reference.
type Segment struct {
	Start interval.PosType
	End   interval.PosType
}

// Len returns the number of covered bases.
func (s Segment) Len() int {
	return int(s.End - s.Start)
}

// Filter decides which records contribute coverage.
type Filter struct {
	FlagExclude sam.Flags
	MinMapQ     int
}

// Pass returns false for records that are unplaced, carry an excluded flag,
// have mapping quality below MinMapQ, or have no CIGAR.
func (f Filter) Pass(r *sam.Record) bool {
	if r.Ref == nil || r.Pos < 0 {
		return false
	}
	return (r.Flags&f.FlagExclude == 0) && (int(r.MapQ) >= f.MinMapQ) && (len(r.Cigar) != 0)
}

// ExtractSegments appends the covered reference segments of r to dst, and
// returns the extended slice.  Match, =, and X operations cover the
// reference; deletions and skips advance past it without covering;
// insertions, clips and padding don't touch it.  Adjacent segments (e.g.
// 10=5X10=) are coalesced.
//
// Filtering is the caller's responsibility.
func ExtractSegments(dst []Segment, r *sam.Record) ([]Segment, error) {
	posInRef := interval.PosType(r.Pos)
	first := len(dst)
	for _, co := range r.Cigar {
		cLen := interval.PosType(co.Len())
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			if cLen == 0 {
				continue
			}
			end := posInRef + cLen
			if n := len(dst); n > first && dst[n-1].End == posInRef {
				dst[n-1].End = end
			} else {
				dst = append(dst, Segment{Start: posInRef, End: end})
			}
			posInRef = end
		case sam.CigarDeletion, sam.CigarSkipped:
			posInRef += cLen
		case sam.CigarInsertion, sam.CigarSoftClipped, sam.CigarHardClipped, sam.CigarPadded:
		default:
			return dst[:first], errors.E(errors.Integrity,
				fmt.Sprintf("coverage.ExtractSegments: unexpected CIGAR op %v in read %s at %s:%d",
					co.Type(), r.Name, r.Ref.Name(), r.Pos))
		}
	}
	return dst, nil
}
