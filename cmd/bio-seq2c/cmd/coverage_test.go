package cmd

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/seq2c/coverage"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

const testBED = `chr1	100	200	g1
chr1	200	300	g1
chr2	1000	1100	g2
`

func testSAM(readLine string) string {
	return "@HD\tVN:1.5\tSO:coordinate\n" +
		"@SQ\tSN:chr1\tLN:10000\n" +
		"@SQ\tSN:chr2\tLN:10000\n" +
		readLine
}

func writeInputs(t *testing.T, dir, readLine string) (samPath, bedPath string) {
	samPath = filepath.Join(dir, "in.sam")
	bedPath = filepath.Join(dir, "in.bed")
	require.NoError(t, ioutil.WriteFile(samPath, []byte(testSAM(readLine)), 0644))
	require.NoError(t, ioutil.WriteFile(bedPath, []byte(testBED), 0644))
	return
}

func TestRunCoverage(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)
	seq := strings.Repeat("A", 100)
	samPath, bedPath := writeInputs(t, tmpDir,
		"r1\t0\tchr1\t151\t60\t100M\t*\t0\t0\t"+seq+"\t*\n")

	args := coverageArgs{
		bamPath: samPath,
		bedPath: bedPath,
		outPath: filepath.Join(tmpDir, "out.tsv"),
		opts:    coverage.DefaultOpts,
	}
	args.opts.SampleName = "S1"
	args.opts.Parallelism = 2
	require.NoError(t, runCoverage(vcontext.Background(), args))
	got, err := ioutil.ReadFile(args.outPath)
	require.NoError(t, err)
	expect.EQ(t, string(got), `Sample	Gene	Chr	Start	End	Tag	Length	MeanDepth
S1	g1	chr1	100	200	Amplicon	100	0.50
S1	g1	chr1	200	300	Amplicon	100	0.50
S1	g1	chr1	100	300	Whole-Gene	200	0.50
S1	g2	chr2	1000	1100	Amplicon	100	0.00
S1	g2	chr2	1000	1100	Whole-Gene	100	0.00
`)

	// A path without a known suffix needs an explicit format.
	noSuffix := filepath.Join(tmpDir, "alignments")
	require.NoError(t, os.Rename(samPath, noSuffix))
	args.bamPath = noSuffix
	args.format = "sam"
	args.outPath = filepath.Join(tmpDir, "out2.tsv")
	require.NoError(t, runCoverage(vcontext.Background(), args))
	got2, err := ioutil.ReadFile(args.outPath)
	require.NoError(t, err)
	expect.EQ(t, string(got2), string(got))

	// Restricted to one locus.
	args.region = "chr1:250-260"
	args.opts.AmpliconsOnly = true
	require.NoError(t, runCoverage(vcontext.Background(), args))
	got, err = ioutil.ReadFile(args.outPath)
	require.NoError(t, err)
	expect.EQ(t, string(got), `Sample	Gene	Chr	Start	End	Tag	Length	MeanDepth
S1	g1	chr1	200	300	Amplicon	100	0.50
`)
}

func TestRunCoverageErrors(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)
	samPath, bedPath := writeInputs(t, tmpDir,
		"r1\t0\tchr1\tnotanumber\t60\t10M\t*\t0\t0\tAAAAAAAAAA\t*\n")
	outPath := filepath.Join(tmpDir, "out.tsv")
	args := coverageArgs{bamPath: samPath, bedPath: bedPath, outPath: outPath, opts: coverage.DefaultOpts}

	err := runCoverage(vcontext.Background(), args)
	require.Error(t, err)
	expect.HasSubstr(t, err.Error(), "-sample")

	args.opts.SampleName = "S1"
	err = runCoverage(vcontext.Background(), args)
	require.Error(t, err)
	expect.True(t, coverage.IsAlignmentDecodeError(err))
	_, err = os.Stat(outPath)
	expect.True(t, os.IsNotExist(err))

	args.format = "cram"
	err = runCoverage(vcontext.Background(), args)
	require.Error(t, err)
	expect.HasSubstr(t, err.Error(), "unknown alignment format 'cram'")
	args.format = ""

	args.bedPath = filepath.Join(tmpDir, "missing.bed")
	require.Error(t, runCoverage(vcontext.Background(), args))
}

func TestRunPlan(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)
	samPath, bedPath := writeInputs(t, tmpDir, "")

	var buf bytes.Buffer
	require.NoError(t, runPlan(&buf, planArgs{bamPath: samPath, bedPath: bedPath, parallelism: 3}))
	expect.EQ(t, buf.String(), `SHARD	START_CHROM	START	END_CHROM	END	REGIONS
0	chr1	0	chr1	200	1
1	chr1	200	chr2	1000	1
2	chr2	1000	chr2	2147483647	1
`)
}
