package bamprovider

import (
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/seq2c/encoding/bam"
)

// FakeProviderOpts defines behavior of a fake provider.
type FakeProviderOpts struct {
	// Indexed is the value reported by Provider.Indexed.  When true, the
	// records must be coordinate sorted.
	Indexed bool
	// Err, if non-nil, is returned by every iterator after it has yielded
	// ErrAfter records.
	Err      error
	ErrAfter int
}

// fakeProvider is only for unittests. It yields the given records.
type fakeProvider struct {
	header *sam.Header
	recs   []*sam.Record
	opts   FakeProviderOpts
}

type fakeIterator struct {
	recs  []*sam.Record
	rec   *sam.Record
	shard gbam.Shard
	opts  FakeProviderOpts
	n     int
	err   error
}

// NewFakeProvider creates a provider that returns "header" in response to a
// GetHeader() call, and recs by NewIterator calls.
func NewFakeProvider(header *sam.Header, recs []*sam.Record, optList ...FakeProviderOpts) Provider {
	var opts FakeProviderOpts
	if len(optList) > 0 {
		opts = optList[0]
	}
	return &fakeProvider{header, recs, opts}
}

// GetHeader implements the Provider interface. It returns the header passed to
// the constructor.
func (b *fakeProvider) GetHeader() (*sam.Header, error) {
	return b.header, nil
}

// Indexed implements the Provider interface.
func (b *fakeProvider) Indexed() bool {
	return b.opts.Indexed
}

// Close implements the Provider interface.
func (b *fakeProvider) Close() error {
	return nil
}

// NewIterator implements the Provider interface.
func (b *fakeProvider) NewIterator(shard gbam.Shard) Iterator {
	return &fakeIterator{recs: b.recs, shard: shard, opts: b.opts}
}

// Err implements the Iterator interface.
func (i *fakeIterator) Err() error {
	return i.err
}

// Close implements the Iterator interface.
func (i *fakeIterator) Close() error {
	return i.err
}

// Scan implements the Iterator interface.
func (i *fakeIterator) Scan() bool {
	if i.err != nil {
		return false
	}
	for {
		if i.opts.Err != nil && i.n >= i.opts.ErrAfter {
			i.err = i.opts.Err
			return false
		}
		if len(i.recs) == 0 {
			return false
		}
		i.rec = i.recs[0]
		i.recs = i.recs[1:]
		if i.shard.RecordInShard(i.rec) {
			i.n++
			return true
		}
	}
}

// Record implements the Iterator interface.
func (i *fakeIterator) Record() *sam.Record {
	// Return a copy so that the code under test cannot alter the
	// original test input data.
	copy := sam.GetFromFreePool()
	*copy = *i.rec
	return copy
}
