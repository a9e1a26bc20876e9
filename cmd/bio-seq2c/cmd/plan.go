package cmd

import (
	"fmt"
	"io"

	"github.com/grailbio/base/tsv"
	"github.com/grailbio/seq2c/coverage"
	gbam "github.com/grailbio/seq2c/encoding/bam"
	"github.com/grailbio/seq2c/encoding/bamprovider"
)

type planArgs struct {
	bamPath     string
	format      string
	bedPath     string
	oneBased    bool
	parallelism int
}

// runPlan writes one line per shard: its index, its 0-based half-open
// boundaries, and the number of regions starting in it.
func runPlan(w io.Writer, args planArgs) (err error) {
	if args.bamPath == "" || args.bedPath == "" {
		return fmt.Errorf("plan: -bam and -bed are required")
	}
	panel, err := loadPanel(args.bedPath, "", args.oneBased)
	if err != nil {
		return err
	}
	provider, err := newProvider(args.bamPath, args.format, bamprovider.ProviderOpts{})
	if err != nil {
		return err
	}
	defer func() {
		if e := provider.Close(); e != nil && err == nil {
			err = e
		}
	}()
	header, err := provider.GetHeader()
	if err != nil {
		return err
	}
	opts := coverage.DefaultOpts
	opts.Parallelism = args.parallelism
	shards, err := coverage.Plan(header, panel, opts.NumShards())
	if err != nil {
		return err
	}
	nRegions := make([]uint32, len(shards))
	for refID, starts := range panel.RegionStartsByRefID(header) {
		for _, start := range starts {
			if i := gbam.FindShard(shards, gbam.Coord{RefID: int32(refID), Pos: int32(start)}); i >= 0 {
				nRegions[i]++
			}
		}
	}

	tsvw := tsv.NewWriter(w)
	tsvw.WriteString("SHARD\tSTART_CHROM\tSTART\tEND_CHROM\tEND\tREGIONS")
	if err = tsvw.EndLine(); err != nil {
		return
	}
	for i, shard := range shards {
		tsvw.WriteUint32(uint32(shard.ShardIdx))
		tsvw.WriteString(shard.StartRef.Name())
		tsvw.WriteUint32(uint32(shard.Start))
		tsvw.WriteString(shard.EndRef.Name())
		tsvw.WriteUint32(uint32(shard.End))
		tsvw.WriteUint32(nRegions[i])
		if err = tsvw.EndLine(); err != nil {
			return
		}
	}
	return tsvw.Flush()
}
