package bamprovider

import (
	"io"
	"sync"

	grailerrors "github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/hts/bgzf/index"
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/seq2c/encoding/bam"
	"github.com/pkg/errors"
	"v.io/x/lib/vlog"
)

// BAMProvider implements Provider for BAM files.  Both BAM and the index
// filenames may be any path registered with grailbio/base/file, e.g. S3 URLs.
// Otherwise the data will be read from the local filesystem.
type BAMProvider struct {
	// Path of the *.bam file. Must be nonempty.
	Path string
	// Index is the pathname of *.bam.bai file. If "", Path + ".bai"
	Index string
	// NoIndex disables index use even if the index file exists.
	NoIndex bool
	err     grailerrors.Once

	mu        sync.Mutex
	nActive   int
	freeIters []*bamIterator
	header    *sam.Header
	// indexed caches the result of Indexed(); nil until first called.
	indexed *bool
}

type bamIterator struct {
	provider *BAMProvider
	in       file.File
	reader   *bam.Reader
	index    *bam.Index
	// Offset of the first record in the file.
	firstRecord bgzf.Offset
	// Half-open coordinate range to read.
	startAddr, limitAddr gbam.Coord
	// Whether reader was handed out before and needs to be rewound.
	used bool

	active bool
	err    error
	next   *sam.Record
}

func (b *BAMProvider) indexPath() string {
	index := b.Index
	if index == "" {
		index = b.Path + ".bai"
	}
	return index
}

// GetHeader implements the Provider interface.
func (b *BAMProvider) GetHeader() (*sam.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.header != nil {
		return b.header, nil
	}

	ctx := vcontext.Background()
	reader, err := file.Open(ctx, b.Path)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer reader.Close(ctx)
	bamReader, err := bam.NewReader(reader.Reader(ctx), 1)
	if err != nil {
		err = errors.Wrapf(err, "%s: read header", b.Path)
		b.err.Set(err)
		return nil, err
	}
	defer bamReader.Close()
	b.header = bamReader.Header()
	return b.header, nil
}

// Indexed implements the Provider interface.  It returns true iff NoIndex is
// unset and the index file exists.
func (b *BAMProvider) Indexed() bool {
	if b.NoIndex {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.indexed == nil {
		_, err := file.Stat(vcontext.Background(), b.indexPath())
		indexed := err == nil
		if !indexed {
			vlog.VI(1).Infof("%s: no index found at %s: %v", b.Path, b.indexPath(), err)
		}
		b.indexed = &indexed
	}
	return *b.indexed
}

// Close implements the Provider interface.
func (b *BAMProvider) Close() error {
	if b.nActive > 0 {
		vlog.Fatalf("%d iterators still active for %+v", b.nActive, b)
	}
	for _, iter := range b.freeIters {
		iter.internalClose()
	}
	b.freeIters = nil
	return b.err.Err()
}

func (b *BAMProvider) freeIterator(i *bamIterator) {
	if !i.active {
		vlog.Fatal(i)
	}
	i.active = false
	if i.Err() != nil || i.reader == nil {
		// The iter may be invalid. Don't reuse it.
		i.internalClose() // Will set b.err
		i = nil
	}
	b.mu.Lock()
	if i != nil {
		b.freeIters = append(b.freeIters, i)
	}
	b.nActive--
	if b.nActive < 0 {
		vlog.Fatalf("Negative active count for %+v", b)
	}
	b.mu.Unlock()
}

// Return an unused iterator. If b.freeIters is nonempty, this function returns
// one from freeIters. Else, it opens the BAM file, creates a BAM reader and
// returns an iterator containing them. On error, returns an iterator with
// non-nil err field.
func (b *BAMProvider) allocateIterator(indexed bool) *bamIterator {
	b.mu.Lock()
	b.nActive++
	if len(b.freeIters) > 0 {
		iter := b.freeIters[len(b.freeIters)-1]
		iter.active = true
		iter.err = nil
		iter.next = nil
		b.freeIters = b.freeIters[:len(b.freeIters)-1]
		b.mu.Unlock()
		if indexed && iter.index == nil {
			iter.err = iter.readIndex()
		}
		return iter
	}
	b.mu.Unlock()

	iter := bamIterator{
		provider: b,
		active:   true,
	}
	ctx := vcontext.Background()
	if iter.in, iter.err = file.Open(ctx, b.Path); iter.err != nil {
		return &iter
	}
	if indexed {
		if iter.err = iter.readIndex(); iter.err != nil {
			return &iter
		}
	}
	if iter.reader, iter.err = bam.NewReader(iter.in.Reader(ctx), 1); iter.err != nil {
		iter.err = errors.Wrapf(iter.err, "%s: read header", b.Path)
		return &iter
	}
	iter.firstRecord = iter.reader.LastChunk().End
	return &iter
}

func (i *bamIterator) readIndex() (err error) {
	ctx := vcontext.Background()
	var indexIn file.File
	if indexIn, err = file.Open(ctx, i.provider.indexPath()); err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, indexIn, &err)
	if i.index, err = bam.ReadIndex(indexIn.Reader(ctx)); err != nil {
		return errors.Wrapf(err, "%s: read index", i.provider.indexPath())
	}
	return nil
}

// NewIterator implements the Provider interface.
func (b *BAMProvider) NewIterator(shard gbam.Shard) Iterator {
	indexed := b.Indexed()
	iter := b.allocateIterator(indexed)
	if iter.err != nil {
		return iter
	}
	iter.startAddr = shard.StartCoord()
	iter.limitAddr = shard.EndCoord()
	if iter.startAddr.GE(iter.limitAddr) {
		iter.err = errors.Errorf("start coord (%v) not before limit coord (%v)", iter.startAddr, iter.limitAddr)
		return iter
	}
	if indexed {
		iter.reset(shard.StartRef, shard.Start, shard.EndRef, shard.End)
	} else if iter.used {
		iter.err = iter.reader.Seek(iter.firstRecord)
	}
	iter.used = true
	return iter
}

// Reset the iterator to read the range [<startRef,startPos>, <endRef, endPos>)
// using the index.
func (i *bamIterator) reset(startRef *sam.Reference, startPos int, endRef *sam.Reference, endPos int) {
	if startRef == nil || endRef == nil {
		// Only unmapped reads, which no shard owns.
		i.err = io.EOF
		return
	}
	refs := i.reader.Header().Refs()
	for refID := startRef.ID(); refID <= endRef.ID(); refID++ {
		ref := refs[refID]
		start := 0
		if refID == startRef.ID() {
			start = startPos
		}
		end := ref.Len()
		if refID == endRef.ID() && endPos < end {
			end = endPos
		}
		if start >= end {
			continue
		}
		found, offset, err := i.findRecordOffset(ref, start, end)
		if err != nil {
			i.err = err
			return
		}
		if found {
			i.err = i.reader.Seek(offset)
			return
		}
		// No index is found for this ref. Try the next ref.
	}
	// No refs in range [startRef,endRef] has any index.  There's no record to
	// read.
	i.err = io.EOF
}

// Err implements the Iterator interface.
func (i *bamIterator) Err() error {
	if i.err == io.EOF {
		return nil
	}
	return i.err
}

// Close implements the Iterator interface.
func (i *bamIterator) Close() error {
	err := i.Err()
	i.provider.freeIterator(i)
	return err
}

// Find the the file offset at which the first record at coordinate <ref,pos> is
// stored. This function is conservative; it may return an offset that's smaller
// than absolutely necessary.
func (i *bamIterator) findRecordOffset(ref *sam.Reference, startPos, endPos int) (bool, bgzf.Offset, error) {
	chunks, err := i.index.Chunks(ref, startPos, endPos)
	if err == index.ErrInvalid || len(chunks) == 0 {
		// No reads for this interval.
		return false, bgzf.Offset{}, nil
	}
	if err != nil {
		return false, bgzf.Offset{}, err
	}
	return true, chunks[0].Begin, nil
}

// Scan implements the Iterator interface.
func (i *bamIterator) Scan() bool {
	if !i.active {
		vlog.Fatal("Reusing iterator")
	}
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
		recAddr := gbam.CoordFromSAMRecord(i.next)
		if recAddr.LT(i.startAddr) {
			sam.PutInFreePool(i.next)
			continue
		}
		if recAddr.LT(i.limitAddr) {
			return true
		}
		sam.PutInFreePool(i.next)
		i.next = nil
		if i.index != nil {
			// Coordinate-sorted, so nothing further can be in range.
			i.err = io.EOF
			return false
		}
	}
}

// Record implements the Iterator interface.
func (i *bamIterator) Record() *sam.Record {
	return i.next
}

func (i *bamIterator) internalClose() {
	if i.reader != nil {
		if err := i.reader.Close(); err != nil && i.err == nil {
			i.err = err
		}
		i.reader = nil
	}
	if i.in != nil {
		if err := i.in.Close(vcontext.Background()); err != nil && i.err == nil {
			i.err = err
		}
		i.in = nil
	}
	i.provider.err.Set(i.Err())
}
