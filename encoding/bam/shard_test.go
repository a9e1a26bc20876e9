package bam_test

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/seq2c/encoding/bam"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func newHeader(t *testing.T, lens ...int) *sam.Header {
	var refs []*sam.Reference
	for i, l := range lens {
		ref, err := sam.NewReference("chr"+string(rune('1'+i)), "", "", l, nil, nil)
		assert.NoError(t, err)
		refs = append(refs, ref)
	}
	header, err := sam.NewHeader(nil, refs)
	assert.NoError(t, err)
	return header
}

func TestShard(t *testing.T) {
	header := newHeader(t, 100, 200)
	ref1, ref2 := header.Refs()[0], header.Refs()[1]
	s := bam.Shard{StartRef: ref1, Start: 20, EndRef: ref2, End: 0}
	expect.True(t, s.CoordInShard(bam.Coord{RefID: 0, Pos: 20}))
	expect.True(t, s.CoordInShard(bam.Coord{RefID: 0, Pos: 99}))
	expect.False(t, s.CoordInShard(bam.Coord{RefID: 0, Pos: 19}))
	expect.False(t, s.CoordInShard(bam.Coord{RefID: 1, Pos: 0}))
	expect.False(t, s.CoordInShard(bam.Coord{RefID: bam.UnmappedRefID, Pos: 0}))

	r := bam.ShardToCoordRange(s)
	expect.EQ(t, r, bam.CoordRange{Start: bam.Coord{RefID: 0, Pos: 20}, Limit: bam.Coord{RefID: 1, Pos: 0}})

	rec := &sam.Record{Ref: ref1, Pos: 50}
	expect.True(t, s.RecordInShard(rec))
	rec.Ref = ref2
	expect.False(t, s.RecordInShard(rec))

	u := bam.UniversalShard(header)
	expect.True(t, u.CoordInShard(bam.Coord{RefID: 1, Pos: 199}))
	expect.False(t, u.CoordInShard(bam.Coord{RefID: bam.UnmappedRefID, Pos: 0}))
}

func TestCoord(t *testing.T) {
	a := bam.Coord{RefID: 0, Pos: 10}
	b := bam.Coord{RefID: 1, Pos: 0}
	unmapped := bam.Coord{RefID: bam.UnmappedRefID, Pos: 0}
	expect.True(t, a.LT(b))
	expect.True(t, b.LT(unmapped))
	expect.True(t, b.GE(a))
	expect.True(t, a.LE(a))
	expect.EQ(t, a.Compare(a), 0)

	r0 := bam.CoordRange{Start: a, Limit: b}
	r1 := bam.CoordRange{Start: bam.Coord{RefID: 0, Pos: 50}, Limit: unmapped}
	expect.True(t, r0.Intersects(r1))
	expect.True(t, r1.Contains(b))
	expect.False(t, r0.Contains(b))
	expect.EQ(t, bam.NewCoord(nil, -1), unmapped)
}

func TestDensityBasedShards(t *testing.T) {
	header := newHeader(t, 1000, 1000, 1000)
	// Dense chr1, empty chr2, sparse chr3.
	starts := [][]int{
		{0, 10, 20, 30, 40, 50},
		nil,
		{100, 900},
	}
	shards, err := bam.GetDensityBasedShards(header, starts, 4)
	assert.NoError(t, err)
	assert.NoError(t, bam.ValidateShardList(header, shards))
	expect.EQ(t, len(shards), 4)
	// Boundaries at region #2, #4 and #6 of 8.
	expect.EQ(t, shards[0].EndCoord(), bam.Coord{RefID: 0, Pos: 20})
	expect.EQ(t, shards[1].EndCoord(), bam.Coord{RefID: 0, Pos: 40})
	expect.EQ(t, shards[2].EndCoord(), bam.Coord{RefID: 2, Pos: 100})
	expect.EQ(t, shards[3].StartCoord(), bam.Coord{RefID: 2, Pos: 100})
	expect.EQ(t, shards[3].End, bam.InfinityPos)

	// More shards than regions.
	shards, err = bam.GetDensityBasedShards(header, starts, 100)
	assert.NoError(t, err)
	assert.NoError(t, bam.ValidateShardList(header, shards))
	expect.EQ(t, len(shards), 8)

	// Identical starts collapse.
	shards, err = bam.GetDensityBasedShards(header, [][]int{{5, 5, 5, 5}}, 4)
	assert.NoError(t, err)
	assert.NoError(t, bam.ValidateShardList(header, shards))
	expect.EQ(t, len(shards), 2)

	shards, err = bam.GetDensityBasedShards(header, [][]int{{1}, {2}, {3}, {4}}, 4)
	expect.NotNil(t, err)
}

func TestLengthBasedShards(t *testing.T) {
	header := newHeader(t, 100, 101, 1)
	shards, err := bam.GetDensityBasedShards(header, nil, 4)
	assert.NoError(t, err)
	assert.NoError(t, bam.ValidateShardList(header, shards))
	expect.EQ(t, len(shards), 4)
	expect.EQ(t, shards[0].EndCoord(), bam.Coord{RefID: 0, Pos: 50})
	expect.EQ(t, shards[1].EndCoord(), bam.Coord{RefID: 1, Pos: 1})
	expect.EQ(t, shards[2].EndCoord(), bam.Coord{RefID: 1, Pos: 51})

	shards, err = bam.GetLengthBasedShards(header, 1)
	assert.NoError(t, err)
	expect.EQ(t, len(shards), 1)
	expect.EQ(t, shards[0], bam.UniversalShard(header))
}

func TestValidateShardList(t *testing.T) {
	header := newHeader(t, 100, 200)
	ref1, ref2 := header.Refs()[0], header.Refs()[1]
	tests := []struct {
		shards []bam.Shard
		ok     bool
	}{
		{[]bam.Shard{{StartRef: ref1, EndRef: ref2, End: 200}}, true},
		{nil, false},
		{[]bam.Shard{{StartRef: ref1, Start: 1, EndRef: ref2, End: 200}}, false},
		{[]bam.Shard{{StartRef: ref1, EndRef: ref2, End: 199}}, false},
		{[]bam.Shard{
			{StartRef: ref1, EndRef: ref1, End: 50},
			{StartRef: ref1, Start: 60, EndRef: ref2, End: 200, ShardIdx: 1}}, false},
		{[]bam.Shard{
			{StartRef: ref1, EndRef: ref1, End: 50},
			{StartRef: ref1, Start: 50, EndRef: ref2, End: 200, ShardIdx: 1}}, true},
		{[]bam.Shard{
			{StartRef: ref1, EndRef: ref1, End: 50},
			{StartRef: ref1, Start: 50, EndRef: ref1, End: 50, ShardIdx: 1}}, false},
	}
	for i, tt := range tests {
		err := bam.ValidateShardList(header, tt.shards)
		expect.EQ(t, err == nil, tt.ok, "test %d: %v", i, err)
	}
}

func TestFindShard(t *testing.T) {
	header := newHeader(t, 1000, 500, 2000)
	r := rand.New(rand.NewSource(0))
	var starts [][]int
	for _, ref := range header.Refs() {
		var s []int
		for i := 0; i < 20; i++ {
			s = append(s, r.Intn(ref.Len()))
		}
		sort.Ints(s)
		starts = append(starts, s)
	}
	for _, n := range []int{1, 2, 3, 7, 16} {
		shards, err := bam.GetDensityBasedShards(header, starts, n)
		assert.NoError(t, err)
		assert.NoError(t, bam.ValidateShardList(header, shards))
		expect.LE(t, len(shards), n)
		for q := 0; q < 1000; q++ {
			refID := r.Intn(3)
			coord := bam.Coord{RefID: int32(refID), Pos: int32(r.Intn(header.Refs()[refID].Len()))}
			idx := bam.FindShard(shards, coord)
			// Exactly one owner.
			owners := 0
			for i := range shards {
				if shards[i].CoordInShard(coord) {
					owners++
					expect.EQ(t, i, idx)
				}
			}
			expect.EQ(t, owners, 1)
		}
		expect.EQ(t, bam.FindShard(shards, bam.Coord{RefID: bam.UnmappedRefID}), -1)
	}
}
