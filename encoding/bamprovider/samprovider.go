package bamprovider

import (
	"io"
	"sync"

	grailerrors "github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/seq2c/encoding/bam"
	"github.com/pkg/errors"
)

// SAMProvider implements Provider for plain-text SAM files.  SAM has no
// index, so every iterator reads the file from the beginning; the input need
// not be coordinate sorted.
type SAMProvider struct {
	// Path of the *.sam file. Must be nonempty.
	Path string
	err  grailerrors.Once

	mu     sync.Mutex
	header *sam.Header
}

type samIterator struct {
	provider *SAMProvider
	in       file.File
	reader   *sam.Reader
	shard    gbam.Shard
	err      error
	next     *sam.Record
}

// GetHeader implements the Provider interface.
func (s *SAMProvider) GetHeader() (*sam.Header, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.header != nil {
		return s.header, nil
	}
	ctx := vcontext.Background()
	in, err := file.Open(ctx, s.Path)
	if err != nil {
		s.err.Set(err)
		return nil, err
	}
	defer in.Close(ctx)
	reader, err := sam.NewReader(in.Reader(ctx))
	if err != nil {
		err = errors.Wrapf(err, "%s: read header", s.Path)
		s.err.Set(err)
		return nil, err
	}
	s.header = reader.Header()
	return s.header, nil
}

// Indexed implements the Provider interface.  It always returns false.
func (s *SAMProvider) Indexed() bool { return false }

// NewIterator implements the Provider interface.
func (s *SAMProvider) NewIterator(shard gbam.Shard) Iterator {
	iter := &samIterator{provider: s, shard: shard}
	ctx := vcontext.Background()
	if iter.in, iter.err = file.Open(ctx, s.Path); iter.err != nil {
		return iter
	}
	if iter.reader, iter.err = sam.NewReader(iter.in.Reader(ctx)); iter.err != nil {
		iter.err = errors.Wrapf(iter.err, "%s: read header", s.Path)
	}
	return iter
}

// Close implements the Provider interface.
func (s *SAMProvider) Close() error {
	return s.err.Err()
}

// Scan implements the Iterator interface.
func (i *samIterator) Scan() bool {
	if i.err != nil {
		return false
	}
	for {
		i.next, i.err = i.reader.Read()
		if i.err != nil {
			if i.err != io.EOF {
				i.err = errors.Wrapf(i.err, "%s: decode record", i.provider.Path)
			}
			return false
		}
		if i.shard.RecordInShard(i.next) {
			return true
		}
	}
}

// Record implements the Iterator interface.
func (i *samIterator) Record() *sam.Record {
	return i.next
}

// Err implements the Iterator interface.
func (i *samIterator) Err() error {
	if i.err == io.EOF {
		return nil
	}
	return i.err
}

// Close implements the Iterator interface.
func (i *samIterator) Close() error {
	if i.in != nil {
		if err := i.in.Close(vcontext.Background()); err != nil && i.err == nil {
			i.err = err
		}
		i.in = nil
	}
	err := i.Err()
	i.provider.err.Set(err)
	return err
}
