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
	"runtime"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// Opts configures a coverage run.  It is passed by value to every stage and
// never mutated after Run starts.
type Opts struct {
	// SampleName fills the Sample column.
	SampleName string
	// Parallelism is the number of shards, and thus workers.  0 means
	// runtime.NumCPU().
	Parallelism int
	// FlagExclude drops records with any of these flag bits set.
	FlagExclude int
	// MinMapQ drops records with a lower mapping quality.
	MinMapQ int
	// QueueLen is the number of record batches buffered per worker when the
	// alignment file is read in a single sequential pass.
	QueueLen int
	// BatchSize is the number of records per batch in that mode.
	BatchSize int

	// OneBasedInput means the region file used 1-based starts; Start is
	// converted back on output.
	OneBasedInput bool
	// MimicPerl adds 1 to every region length, like the original Perl seq2c.
	MimicPerl bool
	// AmpliconsOnly suppresses the Whole-Gene rows.
	AmpliconsOnly bool
	// ReadCounts appends a Reads column.
	ReadCounts bool
}

// DefaultOpts matches the legacy seq2c tool.
var DefaultOpts = Opts{
	Parallelism: 0,
	FlagExclude: int(sam.Unmapped | sam.Secondary | sam.Duplicate | sam.Supplementary),
	MinMapQ:     0,
	QueueLen:    4,
	BatchSize:   256,
}

func (opts *Opts) filter() Filter {
	return Filter{FlagExclude: sam.Flags(opts.FlagExclude), MinMapQ: opts.MinMapQ}
}

// NumShards returns the number of shards, and thus workers, Run uses.
func (opts *Opts) NumShards() int {
	if opts.Parallelism <= 0 {
		return runtime.NumCPU()
	}
	return opts.Parallelism
}

func invalidOpt(format string, args ...interface{}) error {
	return errors.E(errors.Invalid, "coverage: "+fmt.Sprintf(format, args...))
}

// Validate checks that opts is usable.
func (opts *Opts) Validate() error {
	if opts.Parallelism < 0 {
		return invalidOpt("parallelism must be nonnegative, got %d", opts.Parallelism)
	}
	if opts.FlagExclude < 0 || opts.FlagExclude > 0xffff {
		return invalidOpt("flag-exclude out of range: %d", opts.FlagExclude)
	}
	if opts.MinMapQ < 0 || opts.MinMapQ > 255 {
		return invalidOpt("mapq out of range: %d", opts.MinMapQ)
	}
	if opts.QueueLen < 1 {
		return invalidOpt("queue-len must be positive, got %d", opts.QueueLen)
	}
	if opts.BatchSize < 1 {
		return invalidOpt("batch-size must be positive, got %d", opts.BatchSize)
	}
	return nil
}
