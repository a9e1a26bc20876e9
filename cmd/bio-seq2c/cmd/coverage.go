package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/grailbio/base/log"
	"github.com/grailbio/seq2c/coverage"
	"github.com/grailbio/seq2c/encoding/bamprovider"
	"github.com/grailbio/seq2c/interval"
)

type coverageArgs struct {
	bamPath   string
	indexPath string
	noIndex   bool
	// format is "bam", "sam", or "" to detect it from bamPath.
	format  string
	bedPath string
	region    string
	// outPath "-" means stdout.
	outPath string
	opts    coverage.Opts
}

func newProvider(path, format string, opts bamprovider.ProviderOpts) (bamprovider.Provider, error) {
	if format != "" {
		if opts.FileType = bamprovider.ParseFileType(format); opts.FileType == bamprovider.Unknown {
			return nil, fmt.Errorf("unknown alignment format '%s', must be bam or sam", format)
		}
	}
	return bamprovider.NewProvider(path, opts), nil
}

func loadPanel(bedPath, region string, oneBased bool) (*interval.Panel, error) {
	panel, err := interval.LoadBEDFromPath(bedPath, interval.NewBEDOpts{OneBasedInput: oneBased})
	if err != nil {
		return nil, err
	}
	if region == "" {
		return panel, nil
	}
	entry, err := interval.ParseRegionString(region)
	if err != nil {
		return nil, err
	}
	return panel.Restrict(entry)
}

// runCoverage computes the table in full before creating the output, so a
// failed run leaves no partial output behind.
func runCoverage(ctx context.Context, args coverageArgs) (err error) {
	if args.bamPath == "" || args.bedPath == "" {
		return fmt.Errorf("coverage: -bam and -bed are required")
	}
	if args.opts.SampleName == "" {
		return fmt.Errorf("coverage: -sample is required")
	}
	panel, err := loadPanel(args.bedPath, args.region, args.opts.OneBasedInput)
	if err != nil {
		return err
	}
	provider, err := newProvider(args.bamPath, args.format, bamprovider.ProviderOpts{
		Index:   args.indexPath,
		NoIndex: args.noIndex,
	})
	if err != nil {
		return err
	}
	defer func() {
		if e := provider.Close(); e != nil && err == nil {
			err = e
		}
	}()
	result, err := coverage.Run(ctx, provider, panel, args.opts)
	if err != nil {
		return err
	}
	rows := coverage.Rows(result.Stats, args.opts)
	if args.outPath == "-" {
		return coverage.WriteTSV(os.Stdout, rows, args.opts)
	}
	err = coverage.WriteTSVToPath(ctx, args.outPath, rows, args.opts)
	log.Debug.Printf("coverage: exiting")
	return err
}
