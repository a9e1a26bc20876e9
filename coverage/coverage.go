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
	"context"
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/seq2c/encoding/bam"
	"github.com/grailbio/seq2c/encoding/bamprovider"
	"github.com/grailbio/seq2c/interval"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of a coverage run.
type Result struct {
	// Stats has one entry per panel region, in region-file order.
	Stats []RegionStats
	// Shards is the plan the run used.
	Shards []gbam.Shard
	// NRecords is the number of records delivered to workers; NFiltered the
	// number of those rejected by the record filter.
	NRecords  int64
	NFiltered int64
}

// alignmentError marks a failure to read or interpret the alignment file.
func alignmentError(shard *gbam.Shard, err error) error {
	return errors.E(errors.Integrity, fmt.Sprintf("coverage: shard %v", shard), err)
}

// IsAlignmentDecodeError returns true iff err was caused by an unreadable or
// malformed alignment record.
func IsAlignmentDecodeError(err error) bool {
	return errors.Is(errors.Integrity, err)
}

// Plan splits the genome described by header into at most parallelism
// shards holding about the same number of region starts.
func Plan(header *sam.Header, panel *interval.Panel, parallelism int) ([]gbam.Shard, error) {
	shards, err := gbam.GetDensityBasedShards(header, panel.RegionStartsByRefID(header), parallelism)
	if err != nil {
		return nil, err
	}
	if err = gbam.ValidateShardList(header, shards); err != nil {
		return nil, err
	}
	return shards, nil
}

// Run computes the coverage of every region of panel by the alignments in
// provider.  Work is split into opts.Parallelism shards with roughly equal
// numbers of regions.  If the provider is indexed, each worker reads its own
// shard; otherwise the file is read once and records are routed to the
// owning worker.  Either way the result does not depend on the shard count.
//
// The first worker or reader error aborts the run and is returned; the other
// workers stop at their next cancellation check.  Workers check ctx every
// cancelCheckInterval records and whenever they exchange a batch.  If ctx is
// done, Run returns ctx.Err() unwrapped, on both the indexed and streaming
// paths.
func Run(ctx context.Context, provider bamprovider.Provider, panel *interval.Panel, opts Opts) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	header, err := provider.GetHeader()
	if err != nil {
		return nil, errors.E(errors.Integrity, "coverage: read header", err)
	}
	if missing := panel.MissingRefs(header); len(missing) > 0 {
		log.Error.Printf("coverage: %d region chromosome(s) absent from the alignment header, their regions will have zero depth: %s",
			len(missing), strings.Join(missing, ","))
	}
	shards, err := Plan(header, panel, opts.NumShards())
	if err != nil {
		return nil, err
	}
	byRef := panel.ByRefID(header)
	filter := opts.filter()
	accs := make([]*Accumulator, len(shards))
	for i := range accs {
		accs[i] = NewAccumulator(panel, byRef, filter)
	}

	indexed := provider.Indexed()
	log.Printf("coverage: %d regions, %d shards, indexed=%v", panel.Len(), len(shards), indexed)
	if indexed {
		err = runIndexed(ctx, provider, shards, accs)
	} else {
		err = runStreaming(ctx, provider, header, shards, accs, opts)
	}
	if err != nil {
		return nil, err
	}

	result := &Result{
		Stats:  Merge(panel, accs),
		Shards: shards,
	}
	for _, acc := range accs {
		result.NRecords += acc.NRecords
		result.NFiltered += acc.NFiltered
	}
	log.Printf("coverage: done, %d records read, %d filtered", result.NRecords, result.NFiltered)
	return result, nil
}

// cancelCheckInterval is the number of records a worker processes between
// two ctx checks.
const cancelCheckInterval = 4096

// runIndexed gives each worker its own iterator over its shard.
func runIndexed(ctx context.Context, provider bamprovider.Provider, shards []gbam.Shard, accs []*Accumulator) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// traverse keeps the first error it sees, which could be a sibling's
	// context.Canceled; firstErr holds the one that triggered the abort.
	var firstErr errors.Once
	err := traverse.Each(len(shards), func(shardIdx int) (err error) {
		defer func() {
			if err != nil {
				firstErr.Set(err)
				cancel()
			}
		}()
		if err = ctx.Err(); err != nil {
			return err
		}
		shard := shards[shardIdx]
		acc := accs[shardIdx]
		iter := provider.NewIterator(shard)
		defer func() {
			if e := iter.Close(); e != nil && err == nil {
				err = alignmentError(&shard, e)
			}
		}()
		for n := 1; iter.Scan(); n++ {
			rec := iter.Record()
			e := acc.Observe(rec)
			sam.PutInFreePool(rec)
			if e != nil {
				return e
			}
			if n%cancelCheckInterval == 0 {
				if e := ctx.Err(); e != nil {
					return e
				}
			}
		}
		return nil
	})
	if e := firstErr.Err(); e != nil {
		return e
	}
	return err
}

// runStreaming reads the whole file once and sends each record, in batches,
// to the worker owning its shard.  Each worker sees the records of its
// shard in file order.  A failing worker returns at once, which cancels gctx
// and stops the reader at its next send or check.
func runStreaming(ctx context.Context, provider bamprovider.Provider, header *sam.Header, shards []gbam.Shard, accs []*Accumulator, opts Opts) error {
	g, gctx := errgroup.WithContext(ctx)
	queues := make([]chan []*sam.Record, len(shards))
	for i := range queues {
		queues[i] = make(chan []*sam.Record, opts.QueueLen)
	}

	g.Go(func() (err error) {
		defer func() {
			for _, q := range queues {
				close(q)
			}
		}()
		universal := gbam.UniversalShard(header)
		iter := provider.NewIterator(universal)
		defer func() {
			if e := iter.Close(); e != nil && err == nil {
				err = alignmentError(&universal, e)
			}
		}()
		batches := make([][]*sam.Record, len(shards))
		send := func(i int) error {
			if err := gctx.Err(); err != nil {
				return err
			}
			select {
			case queues[i] <- batches[i]:
				batches[i] = nil
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		for n := 1; iter.Scan(); n++ {
			if n%cancelCheckInterval == 0 {
				if err := gctx.Err(); err != nil {
					return err
				}
			}
			rec := iter.Record()
			i := gbam.FindShard(shards, gbam.CoordFromSAMRecord(rec))
			if i < 0 {
				sam.PutInFreePool(rec)
				continue
			}
			if batches[i] == nil {
				batches[i] = make([]*sam.Record, 0, opts.BatchSize)
			}
			batches[i] = append(batches[i], rec)
			if len(batches[i]) == opts.BatchSize {
				if err := send(i); err != nil {
					return err
				}
			}
		}
		for i := range batches {
			if len(batches[i]) > 0 {
				if err := send(i); err != nil {
					return err
				}
			}
		}
		return nil
	})

	for i := range shards {
		i := i
		g.Go(func() error {
			for {
				select {
				case batch, ok := <-queues[i]:
					if !ok {
						return nil
					}
					for k, rec := range batch {
						err := accs[i].Observe(rec)
						sam.PutInFreePool(rec)
						if err != nil {
							for _, r := range batch[k+1:] {
								sam.PutInFreePool(r)
							}
							return err
						}
					}
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		})
	}
	return g.Wait()
}
