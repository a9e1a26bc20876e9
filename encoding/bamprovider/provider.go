package bamprovider

import (
	"strings"

	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/seq2c/encoding/bam"
	"v.io/x/lib/vlog"
)

// ProviderOpts defines options for NewProvider.
type ProviderOpts struct {
	// Index specifies the name of the BAM index file. This field is meaningful
	// only for BAM files. If Index=="", it defaults to path + ".bai".
	Index string

	// NoIndex causes the provider to ignore any index and report
	// Indexed()==false.  Iterators then read the file sequentially.
	NoIndex bool

	// FileType, if not Unknown, overrides detection from the path suffix.
	FileType FileType
}

// Provider allows reading a BAM or SAM file in parallel. Thread safe.
type Provider interface {
	// GetHeader returns the header for the provided BAM data.  The callee
	// must not modify the returned header object.
	//
	// REQUIRES: Close has not been called.
	GetHeader() (*sam.Header, error)

	// Indexed reports whether NewIterator can seek to the start of a shard.
	// When false, every iterator decodes the file from the beginning, so the
	// caller should read the file once and distribute the records itself.
	//
	// REQUIRES: Close has not been called.
	Indexed() bool

	// NewIterator returns an iterator over records whose leftmost position
	// falls in the shard.  The "shard" parameter is usually produced by
	// gbam.GetDensityBasedShards, but the caller may also manually construct
	// it.
	//
	// REQUIRES: Close has not been called.
	NewIterator(shard gbam.Shard) Iterator

	// Close must be called exactly once. It returns any error encountered
	// by the provider, or any iterator created by the provider.
	//
	// REQUIRES: All the iterators created by NewIterator have been closed.
	Close() error
}

// Iterator iterates over sam.Records in a particular genomic range. Thread
// compatible.
type Iterator interface {
	// Scan returns where there are any records remaining in the iterator,
	// and if so, advances the iterator to the next record. If the iterator
	// reaches the end of its range, Scan() returns false.  If an error
	// occurs, Scan() returns false and the error can be retrieved by
	// calling Error().
	//
	// Records are yielded in file order.  For an indexed provider that is
	// the ascending coordinate (refid,position) order.
	//
	// REQUIRES: Close has not been called.
	Scan() bool

	// Record returns the current record in the iterator. This must be
	// called only after a call to Scan() returns true.  The caller owns the
	// record, and may return it to sam's free pool once done.
	//
	// REQUIRES: Close has not been called.
	Record() *sam.Record

	// Err returns the error encoutered during iteration, or nil if no error
	// occurred.  An io.EOF error will be translated to nil.
	Err() error

	// Close must be called exactly once. It returns the value of Err().
	Close() error
}

// FileType represents the type of a BAM-like file.
type FileType int

const (
	// Unknown is a sentinel.
	Unknown FileType = iota
	// BAM file
	BAM
	// SAM file
	SAM
)

// ParseFileType parses the file type string. "bam" returns bamprovider.BAM, for
// example. On error, it returns Unknown.
func ParseFileType(name string) FileType {
	switch name {
	case "bam":
		return BAM
	case "sam":
		return SAM
	default:
		return Unknown
	}
}

// GuessFileType returns the file type from the pathname. Returns Unknown on
// error.
func GuessFileType(path string) FileType {
	if strings.HasSuffix(path, ".bam") {
		return BAM
	}
	if strings.HasSuffix(path, ".sam") {
		return SAM
	}
	vlog.VI(1).Infof("%v: could not detect file type.", path)
	return Unknown
}

func mergeOpts(optList []ProviderOpts) ProviderOpts {
	opts := ProviderOpts{}
	for _, o := range optList {
		if o.Index != "" {
			opts.Index = o.Index
		}
		if o.NoIndex {
			opts.NoIndex = true
		}
		if o.FileType != Unknown {
			opts.FileType = o.FileType
		}
	}
	return opts
}

// NewProvider creates a Provider object that can handle BAM or SAM file of
// "path". Unless ProviderOpts.FileType says otherwise, the file type is
// autodetected from the path; unknown types are read as BAM.
func NewProvider(path string, optList ...ProviderOpts) Provider {
	opts := mergeOpts(optList)
	fileType := opts.FileType
	if fileType == Unknown {
		fileType = GuessFileType(path)
	}
	switch fileType {
	case BAM, Unknown:
		return &BAMProvider{Path: path, Index: opts.Index, NoIndex: opts.NoIndex}
	case SAM:
		return &SAMProvider{Path: path}
	}
	panic("shouldn't reach here")
}
