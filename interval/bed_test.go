package interval

import (
	"bytes"
	"io/ioutil"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
)

const testBED = `track name=panel
# chrom	start	end	name
chr1	100	200	g1
chr1	150	250	g1
browser position chr1:100-250

chr2	10	20	g2	extra	columns
chr1	300	400	.
`

func TestLoadBED(t *testing.T) {
	panel, err := LoadBED(strings.NewReader(testBED), NewBEDOpts{})
	assert.NoError(t, err)
	expect.EQ(t, panel.Len(), 4)
	expect.EQ(t, panel.RefNames, []string{"chr1", "chr2"})
	expect.EQ(t, panel.Regions[0], Region{RefName: "chr1", Start0: 100, End: 200, Name: "g1", Gene: "g1", Index: 0})
	expect.EQ(t, panel.Regions[2], Region{RefName: "chr2", Start0: 10, End: 20, Name: "g2", Gene: "g2", Index: 2})
	expect.True(t, panel.Regions[3].Unnamed())
	expect.EQ(t, panel.Regions[1].Len(), 100)
	expect.EQ(t, panel.Chrom("chr1").Len(), 3)
	expect.EQ(t, panel.Chrom("chr2").Len(), 1)
	expect.True(t, panel.Chrom("chr3") == nil)
}

func TestLoadBEDOneBased(t *testing.T) {
	panel, err := LoadBED(strings.NewReader("chr1\t101\t200\tg1\n"), NewBEDOpts{OneBasedInput: true})
	assert.NoError(t, err)
	expect.EQ(t, panel.Regions[0].Start0, PosType(100))
	expect.EQ(t, panel.Regions[0].End, PosType(200))
}

func TestLoadBEDErrors(t *testing.T) {
	tests := []struct {
		bed    string
		errstr string
	}{
		{"chr1\t100\t200\n", "line 1: expected chrom, start, end and name columns"},
		{"chr1\t100\n", "found 2 column(s)"},
		{"chr1\tx\t200\tg\n", "bad start coordinate"},
		{"chr1\t100\ty\tg\n", "bad end coordinate"},
		{"chr1\t200\t100\tg\n", "invalid coordinate pair"},
		{"chr1\t100\t100\tg\n", "invalid coordinate pair"},
		{"chr1\t1\t2\tg\nchr1\t-5\t10\tg\n", "line 2: negative start coordinate"},
	}
	for _, tt := range tests {
		_, err := LoadBED(strings.NewReader(tt.bed), NewBEDOpts{})
		assert.NotNil(t, err, "bed: %q", tt.bed)
		expect.HasSubstr(t, err.Error(), tt.errstr)
		expect.True(t, IsMalformedRegion(err))
	}
}

func TestLoadBEDFromPath(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tempDir)

	plainPath := filepath.Join(tempDir, "panel.bed")
	assert.NoError(t, ioutil.WriteFile(plainPath, []byte(testBED), 0644))

	gzPath := filepath.Join(tempDir, "panel.bed.gz")
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(testBED))
	assert.NoError(t, err)
	assert.NoError(t, gz.Close())
	assert.NoError(t, ioutil.WriteFile(gzPath, buf.Bytes(), 0644))

	for _, path := range []string{plainPath, gzPath} {
		panel, err := LoadBEDFromPath(path, NewBEDOpts{})
		assert.NoError(t, err, "path: %s", path)
		expect.EQ(t, panel.Len(), 4)
		expect.EQ(t, panel.Regions[3].RefName, "chr1")
		expect.EQ(t, panel.Regions[3].Start0, PosType(300))
	}

	_, err = LoadBEDFromPath(filepath.Join(tempDir, "missing.bed"), NewBEDOpts{})
	expect.NotNil(t, err)
}

func TestParseRegionString(t *testing.T) {
	tests := []struct {
		region  string
		chrName string
		start0  PosType
		end     PosType
	}{
		{
			"chr1:1-1000",
			"chr1",
			0,
			1000,
		},
		{
			"chr1:1000",
			"chr1",
			999,
			1000,
		},
		{
			"chr1",
			"chr1",
			0,
			math.MaxInt32 - 1,
		},
	}

	for _, tt := range tests {
		result, err := ParseRegionString(tt.region)
		expect.NoError(t, err)
		expect.EQ(t, tt.chrName, result.RefName)
		expect.EQ(t, tt.start0, result.Start0)
		expect.EQ(t, tt.end, result.End)
	}

	for _, bad := range []string{"", ":1-10", "chr1:0", "chr1:10-5", "chr1:a-5", "chr1:0-5"} {
		_, err := ParseRegionString(bad)
		expect.NotNil(t, err, "region: %q", bad)
	}
}
