package interval

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/base/vcontext"
	"github.com/klauspost/compress/gzip"
)

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		// These simple loops are better than any of the standard library
		// string-split functions for the handful of columns we need.
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

// NewBEDOpts defines behavior of this package's BED-loading function(s).
type NewBEDOpts struct {
	// OneBasedInput interprets the BED interval boundaries as one-based [start,
	// end] instead of the usual zero-based [start, end).
	OneBasedInput bool
}

var (
	trackPrefix   = []byte("track")
	browserPrefix = []byte("browser")
)

// isHeaderLine returns whether the first token of a BED line marks a comment
// or a UCSC track/browser line.
func isHeaderLine(firstToken []byte) bool {
	return firstToken[0] == '#' || bytes.Equal(firstToken, trackPrefix) || bytes.Equal(firstToken, browserPrefix)
}

func bedError(lineIdx int, format string, args ...interface{}) error {
	return errors.E(errors.Invalid, fmt.Sprintf("interval.LoadBED: line %d: ", lineIdx)+fmt.Sprintf(format, args...))
}

// scanBEDRegions reads "chrom start end name" lines.  Extra columns are
// ignored.
func scanBEDRegions(scanner *bufio.Scanner, opts NewBEDOpts) (regions []Region, err error) {
	var startSubtract int
	if opts.OneBasedInput {
		startSubtract++
	}
	var tokens [4][]byte

	lineIdx := 0
	totBases := 0
	for scanner.Scan() {
		lineIdx++
		curLine := scanner.Bytes()
		nToken := getTokens(tokens[:], curLine)
		if nToken == 0 || isHeaderLine(tokens[0]) {
			continue
		}
		if nToken != 4 {
			err = bedError(lineIdx, "expected chrom, start, end and name columns, found %d column(s)", nToken)
			return
		}
		var parsedStart int
		if parsedStart, err = strconv.Atoi(gunsafe.BytesToString(tokens[1])); err != nil {
			err = bedError(lineIdx, "bad start coordinate %q", tokens[1])
			return
		}
		parsedStart -= startSubtract
		if parsedStart < 0 {
			err = bedError(lineIdx, "negative start coordinate %s", tokens[1])
			return
		}
		var parsedEnd int
		if parsedEnd, err = strconv.Atoi(gunsafe.BytesToString(tokens[2])); err != nil {
			err = bedError(lineIdx, "bad end coordinate %q", tokens[2])
			return
		}
		if (parsedEnd <= parsedStart) || (parsedEnd >= PosTypeMax) {
			err = bedError(lineIdx, "invalid coordinate pair %s, %s", tokens[1], tokens[2])
			return
		}
		// Full heap copies, since tokens refer to bytes on curLine that will be
		// overwritten soon.
		name := string(tokens[3])
		regions = append(regions, Region{
			RefName: string(tokens[0]),
			Start0:  PosType(parsedStart),
			End:     PosType(parsedEnd),
			Name:    name,
			Gene:    name,
		})
		totBases += parsedEnd - parsedStart
	}
	if err = scanner.Err(); err != nil {
		return
	}
	log.Printf("BED loaded, %d region(s), %d base(s).\n", len(regions), totBases)
	return
}

// LoadBED loads a panel from a BED with at least four columns (chrom, start,
// end, name).  The lines can be in any order; that order is preserved in
// Panel.Regions.
func LoadBED(reader io.Reader, opts NewBEDOpts) (*Panel, error) {
	scanner := bufio.NewScanner(reader)
	regions, err := scanBEDRegions(scanner, opts)
	if err != nil {
		return nil, err
	}
	return NewPanel(regions)
}

// LoadBEDFromPath is a wrapper for LoadBED that takes a path instead of an
// io.Reader.  Gzipped BEDs are recognized by their extension.
func LoadBEDFromPath(path string, opts NewBEDOpts) (panel *Panel, err error) {
	ctx := vcontext.Background()
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return
	}
	defer func() {
		if cerr := infile.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	reader := io.Reader(infile.Reader(ctx))
	switch fileio.DetermineType(path) {
	case fileio.Gzip:
		var gz *gzip.Reader
		if gz, err = gzip.NewReader(reader); err != nil {
			return
		}
		defer func() {
			if cerr := gz.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		reader = gz
	}
	return LoadBED(reader, opts)
}

// Entry represents a single interval, with 0-based coordinates.
type Entry struct {
	RefName string
	Start0  PosType
	End     PosType
}

// ParseRegionString parses a region string of one of the forms
//   [contig ID]:[1-based first pos]-[last pos]
//   [contig ID]:[1-based pos]
//   [contig ID]
// returning a contig ID and 0-based interval boundaries.  The interval
// [0, PosTypeMax - 1] is returned if there is no positional restriction.
func ParseRegionString(region string) (result Entry, err error) {
	if len(region) == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty region string")
		return
	}
	colonPos := strings.IndexByte(region, ':')
	if colonPos == -1 {
		result.RefName = region
		result.Start0 = 0
		result.End = PosTypeMax - 1
		return
	}
	if colonPos == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty contig ID")
		return
	}
	result.RefName = region[0:colonPos]
	rangeStr := region[colonPos+1:]
	dashPos := strings.IndexByte(rangeStr, '-')
	if dashPos == -1 {
		var pos1 int64
		if pos1, err = strconv.ParseInt(rangeStr, 10, 32); err != nil {
			return
		}
		if pos1 <= 0 {
			err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", rangeStr)
			return
		}
		result.Start0 = PosType(pos1 - 1)
		result.End = PosType(pos1)
		return
	}
	start1Str := rangeStr[:dashPos]
	endStr := rangeStr[dashPos+1:]
	var start1 int
	if start1, err = strconv.Atoi(start1Str); err != nil {
		return
	}
	if start1 <= 0 {
		err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", start1Str)
		return
	}
	var end0 int
	if end0, err = strconv.Atoi(endStr); err != nil {
		return
	}
	if end0 < start1 || end0 >= PosTypeMax {
		err = fmt.Errorf("interval.ParseRegionString: invalid range string %v", rangeStr)
		return
	}
	result.Start0 = PosType(start1 - 1)
	result.End = PosType(end0)
	return
}
