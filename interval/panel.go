package interval

import (
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// Region is a single named panel interval, with 0-based half-open
// coordinates.
type Region struct {
	RefName string
	Start0  PosType
	End     PosType
	// Name is the BED name column.  Regions named "." are reported but never
	// accumulate coverage.
	Name string
	// Gene is the grouping key for whole-gene rows.  BED loading sets it to
	// Name.
	Gene string
	// Index is the region's position in the region file.  NewPanel assigns it.
	Index int
}

// Len returns the number of bases in r.
func (r *Region) Len() int {
	return int(r.End - r.Start0)
}

// Unnamed returns whether r is excluded from accumulation.
func (r *Region) Unnamed() bool {
	return r.Name == "."
}

// ChromIndex answers overlap queries against the regions of one chromosome.
//
// It is a nested containment list: regions contained in another region are
// stored in that region's sublist, so within any list (top level or sublist)
// both starts and ends are strictly increasing.  A query binary-searches for
// the first entry ending after the query start, scans forward until entries
// start at or after the query end, and descends into the sublist of every
// hit.  Immutable, and thus safe for concurrent use.
type ChromIndex struct {
	RefName string
	// Entries [0, nTop) form the top-level list.  The sublist of entry i is
	// [subLo[i], subHi[i]).
	nTop   int
	starts []PosType
	ends   []PosType
	ids    []int32
	subLo  []int32
	subHi  []int32
}

// Len returns the number of regions on this chromosome.
func (c *ChromIndex) Len() int {
	return len(c.starts)
}

// Overlapping appends the file index of every region r satisfying
// r.Start0 < end && start < r.End to dst, and returns the extended slice.
// Each region is appended exactly once, in no particular order.
func (c *ChromIndex) Overlapping(dst []int32, start, end PosType) []int32 {
	if c == nil || end <= start {
		return dst
	}
	lo := SearchPosTypes(c.ends[:c.nTop], start+1)
	return c.scan(dst, lo, c.nTop, start, end)
}

// scan reports the overlapping entries of the list [lo, hi), where lo is the
// first entry of the list ending after start.
func (c *ChromIndex) scan(dst []int32, lo, hi int, start, end PosType) []int32 {
	for i := lo; i < hi && c.starts[i] < end; i++ {
		dst = append(dst, c.ids[i])
		if subLo, subHi := int(c.subLo[i]), int(c.subHi[i]); subLo < subHi {
			first := subLo + SearchPosTypes(c.ends[subLo:subHi], start+1)
			dst = c.scan(dst, first, subHi, start, end)
		}
	}
	return dst
}

// buildChromIndex lays out ids, sorted by (start asc, end desc, file index),
// as a nested containment list.
func buildChromIndex(c *ChromIndex, regions []Region, ids []int32) {
	n := len(ids)
	// Parents are found with a stack holding the current chain of nested
	// regions.
	children := make([][]int32, n)
	var top []int32
	stack := make([]int, 0, 16)
	for k, id := range ids {
		end := regions[id].End
		for len(stack) > 0 && regions[ids[stack[len(stack)-1]]].End < end {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			top = append(top, int32(k))
		} else {
			parent := stack[len(stack)-1]
			children[parent] = append(children[parent], int32(k))
		}
		stack = append(stack, k)
	}

	// Breadth-first placement keeps every sublist contiguous.
	placed := make([]int32, 0, n)
	placed = append(placed, top...)
	c.nTop = len(top)
	c.starts = make([]PosType, n)
	c.ends = make([]PosType, n)
	c.ids = make([]int32, n)
	c.subLo = make([]int32, n)
	c.subHi = make([]int32, n)
	for i := 0; i < len(placed); i++ {
		k := placed[i]
		r := &regions[ids[k]]
		c.starts[i] = r.Start0
		c.ends[i] = r.End
		c.ids[i] = ids[k]
		c.subLo[i] = int32(len(placed))
		placed = append(placed, children[k]...)
		c.subHi[i] = int32(len(placed))
	}
}

// Cursor is a per-goroutine query helper which accelerates the top-level
// search of nondecreasing query sequences with exponential search.  It falls
// back to binary search whenever the query start moves backward or the
// chromosome changes.
type Cursor struct {
	chrom     *ChromIndex
	lastStart PosType
	lastIdx   int
}

// Overlapping is ChromIndex.Overlapping with search state carried between
// calls.
func (cur *Cursor) Overlapping(c *ChromIndex, dst []int32, start, end PosType) []int32 {
	if c == nil || end <= start {
		return dst
	}
	var lo int
	if c == cur.chrom && start >= cur.lastStart {
		lo = ExpsearchPosType(c.ends[:c.nTop], start+1, cur.lastIdx)
	} else {
		lo = SearchPosTypes(c.ends[:c.nTop], start+1)
		cur.chrom = c
	}
	cur.lastStart = start
	cur.lastIdx = lo
	return c.scan(dst, lo, c.nTop, start, end)
}

// Panel is the complete, ordered set of regions of an assay.  Immutable after
// construction.
type Panel struct {
	// Regions is in region-file order; Regions[i].Index == i.
	Regions []Region
	// RefNames lists chromosomes in order of first appearance.
	RefNames []string
	chroms   map[string]*ChromIndex
}

func malformedRegion(r *Region, reason string) error {
	return errors.E(errors.Invalid, fmt.Sprintf("interval: malformed region #%d (%s:%d-%d %s): %s",
		r.Index+1, r.RefName, r.Start0, r.End, r.Name, reason))
}

// IsMalformedRegion returns whether err was caused by invalid region input.
func IsMalformedRegion(err error) bool {
	return errors.Is(errors.Invalid, err)
}

// NewPanel validates the given regions and builds their overlap index.  The
// input may be in any order; it is kept as-is for reporting, with Index
// overwritten by slice position.  Overlapping and duplicate regions are all
// kept.
func NewPanel(regions []Region) (*Panel, error) {
	p := &Panel{
		Regions: regions,
		chroms:  make(map[string]*ChromIndex),
	}
	for i := range regions {
		r := &regions[i]
		r.Index = i
		if r.RefName == "" {
			return nil, malformedRegion(r, "empty chromosome name")
		}
		if r.Start0 < 0 {
			return nil, malformedRegion(r, "negative start coordinate")
		}
		if r.Start0 >= r.End {
			return nil, malformedRegion(r, "start must precede end")
		}
		c := p.chroms[r.RefName]
		if c == nil {
			c = &ChromIndex{RefName: r.RefName}
			p.chroms[r.RefName] = c
			p.RefNames = append(p.RefNames, r.RefName)
		}
		c.ids = append(c.ids, int32(i))
	}
	for _, c := range p.chroms {
		ids := c.ids
		sort.Slice(ids, func(i, j int) bool {
			ri, rj := &regions[ids[i]], &regions[ids[j]]
			if ri.Start0 != rj.Start0 {
				return ri.Start0 < rj.Start0
			}
			if ri.End != rj.End {
				return ri.End > rj.End
			}
			return ids[i] < ids[j]
		})
		buildChromIndex(c, regions, ids)
	}
	return p, nil
}

// Len returns the number of regions.
func (p *Panel) Len() int {
	return len(p.Regions)
}

// Chrom returns the index for the named chromosome, or nil if the panel has no
// region on it.
func (p *Panel) Chrom(refName string) *ChromIndex {
	return p.chroms[refName]
}

// Query returns the file indexes of all regions on refName overlapping
// [start, end), in region-file order.
func (p *Panel) Query(refName string, start, end PosType) []int32 {
	result := p.chroms[refName].Overlapping(nil, start, end)
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// ByRefID returns a slice, indexed by sam.Header reference ID, of the
// chromosome indexes.  Entries for references without any region are nil.
func (p *Panel) ByRefID(header *sam.Header) []*ChromIndex {
	refs := header.Refs()
	byID := make([]*ChromIndex, len(refs))
	for refID, ref := range refs {
		if refID != ref.ID() {
			panic("internal error: sam.header ref.ID != array position")
		}
		byID[refID] = p.chroms[ref.Name()]
	}
	return byID
}

// MissingRefs returns the panel chromosomes absent from header, in order of
// first appearance.  Regions on them can't receive coverage.
func (p *Panel) MissingRefs(header *sam.Header) []string {
	present := make(map[string]bool, len(header.Refs()))
	for _, ref := range header.Refs() {
		present[ref.Name()] = true
	}
	var missing []string
	for _, name := range p.RefNames {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

// RegionStartsByRefID returns, for each reference in header, the sorted start
// positions of the regions on it.  This is the density input of the shard
// planner.
func (p *Panel) RegionStartsByRefID(header *sam.Header) [][]int {
	byID := p.ByRefID(header)
	starts := make([][]int, len(byID))
	for refID, c := range byID {
		if c == nil {
			continue
		}
		s := make([]int, len(c.starts))
		for i, pos := range c.starts {
			s[i] = int(pos)
		}
		sort.Ints(s)
		starts[refID] = s
	}
	return starts
}

// Restrict returns a new panel holding only the regions overlapping entry,
// in the original relative order.
func (p *Panel) Restrict(entry Entry) (*Panel, error) {
	var kept []Region
	for _, r := range p.Regions {
		if r.RefName == entry.RefName && r.Start0 < entry.End && entry.Start0 < r.End {
			kept = append(kept, r)
		}
	}
	return NewPanel(kept)
}
