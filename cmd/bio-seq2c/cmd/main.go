package cmd

import (
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/seq2c/coverage"
	"v.io/x/lib/cmdline"
)

func newCmdCoverage() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "coverage",
		Short: "Compute the read depth of every BED region",
		Long: `
Reads a BAM or SAM file and reports, for every region of a BED file, the number
of aligned bases inside the region divided by the region length. The output is
a TSV table with columns Sample, Gene, Chr, Start, End, Tag, Length and
MeanDepth.`,
	}
	var args coverageArgs
	args.opts = coverage.DefaultOpts
	cmd.Flags.StringVar(&args.bamPath, "bam", "", "Input BAM or SAM path (required)")
	cmd.Flags.StringVar(&args.indexPath, "index", "", "Input BAM index path. Defaults to bampath + .bai")
	cmd.Flags.BoolVar(&args.noIndex, "no-index", false, "Ignore the BAM index and read the file in one sequential pass")
	cmd.Flags.StringVar(&args.format, "format", "", "Alignment file format, bam or sam. Detected from the -bam suffix if empty")
	cmd.Flags.StringVar(&args.bedPath, "bed", "", "Input BED path, with chrom, start, end and gene columns (required)")
	cmd.Flags.StringVar(&args.region, "region", "", "Only report BED regions overlapping this locus. Format as <contig ID>:<1-based first pos>-<last pos>, <contig ID>:<1-based pos>, or just <contig ID>")
	cmd.Flags.StringVar(&args.outPath, "out", "-", "Output path; '-' writes to stdout. A .gz suffix produces bgzipped output")
	cmd.Flags.StringVar(&args.opts.SampleName, "sample", "", "Sample name written in the first column (required)")
	cmd.Flags.IntVar(&args.opts.Parallelism, "parallelism", coverage.DefaultOpts.Parallelism, "Number of shards processed in parallel; 0 = runtime.NumCPU()")
	cmd.Flags.IntVar(&args.opts.MinMapQ, "mapq", coverage.DefaultOpts.MinMapQ, "Reads with MAPQ below this level are skipped")
	cmd.Flags.IntVar(&args.opts.FlagExclude, "flag-exclude", coverage.DefaultOpts.FlagExclude, "Reads with a FLAG bit intersecting this value are skipped")
	cmd.Flags.BoolVar(&args.opts.OneBasedInput, "one-based", false, "BED starts are 1-based and inclusive; Start is reported the same way")
	cmd.Flags.BoolVar(&args.opts.MimicPerl, "mimic-perl-output", false, "Add 1 to every region length, like the original Perl seq2c")
	cmd.Flags.BoolVar(&args.opts.AmpliconsOnly, "amplicons-only", false, "Don't report Whole-Gene rows")
	cmd.Flags.BoolVar(&args.opts.ReadCounts, "read-counts", false, "Append a Reads column with the number of reads overlapping each region")
	cmd.Flags.IntVar(&args.opts.QueueLen, "queue-len", coverage.DefaultOpts.QueueLen, "Record batches buffered per worker when reading without an index")
	cmd.Flags.IntVar(&args.opts.BatchSize, "batch-size", coverage.DefaultOpts.BatchSize, "Records per batch when reading without an index")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("coverage takes no positional arguments, but got %v", argv)
		}
		return runCoverage(vcontext.Background(), args)
	})
	return cmd
}

func newCmdPlan() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "plan",
		Short: "Print the shards a coverage run would use",
	}
	var args planArgs
	cmd.Flags.StringVar(&args.bamPath, "bam", "", "Input BAM or SAM path (required)")
	cmd.Flags.StringVar(&args.format, "format", "", "Alignment file format, bam or sam. Detected from the -bam suffix if empty")
	cmd.Flags.StringVar(&args.bedPath, "bed", "", "Input BED path (required)")
	cmd.Flags.BoolVar(&args.oneBased, "one-based", false, "BED starts are 1-based and inclusive")
	cmd.Flags.IntVar(&args.parallelism, "parallelism", 0, "Number of shards; 0 = runtime.NumCPU()")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("plan takes no positional arguments, but got %v", argv)
		}
		return runPlan(env.Stdout, args)
	})
	return cmd
}

func newCmdRoot() *cmdline.Command {
	return &cmdline.Command{
		Name:     "bio-seq2c",
		Short:    "Per-region read depth for seq2c copy-number calling",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdCoverage(),
			newCmdPlan(),
		},
	}
}

// Run is the entry point of bio-seq2c.
func Run() {
	shutdown := grail.Init()
	cmdline.HideGlobalFlagsExcept()
	env := cmdline.EnvFromOS()
	err := cmdline.ParseAndRun(newCmdRoot(), env, flag.Args())
	shutdown()
	os.Exit(cmdline.ExitCode(err, env.Stderr))
}
