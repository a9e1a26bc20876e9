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
	"io"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/hts/bgzf"
)

// Header is the column header of the output table, without the optional
// Reads column.
const Header = "Sample\tGene\tChr\tStart\tEnd\tTag\tLength\tMeanDepth"

// WriteTSV writes the header and rows to w.  MeanDepth is printed with two
// decimals.
func WriteTSV(w io.Writer, rows []Row, opts Opts) (err error) {
	tsvw := tsv.NewWriter(w)
	tsvw.WriteString(Header)
	if opts.ReadCounts {
		tsvw.WriteString("Reads")
	}
	if err = tsvw.EndLine(); err != nil {
		return
	}
	for i := range rows {
		row := &rows[i]
		tsvw.WriteString(row.Sample)
		tsvw.WriteString(row.Gene)
		tsvw.WriteString(row.Chr)
		tsvw.WriteUint32(uint32(row.Start))
		tsvw.WriteUint32(uint32(row.End))
		tsvw.WriteString(row.Tag)
		tsvw.WriteInt64(row.Length)
		tsvw.WriteFloat64(row.MeanDepth, 'f', 2)
		if opts.ReadCounts {
			tsvw.WriteInt64(row.Reads)
		}
		if err = tsvw.EndLine(); err != nil {
			return
		}
	}
	return tsvw.Flush()
}

// WriteTSVToPath writes the table to path, which may be any path supported
// by grailbio/base/file.  A ".gz" suffix produces BGZF output.
func WriteTSVToPath(ctx context.Context, path string, rows []Row, opts Opts) (err error) {
	var dst file.File
	if dst, err = file.Create(ctx, path); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, dst, &err)
	if !strings.HasSuffix(path, ".gz") {
		err = WriteTSV(dst.Writer(ctx), rows, opts)
	} else {
		bgzfw := bgzf.NewWriter(dst.Writer(ctx), opts.NumShards())
		err = WriteTSV(bgzfw, rows, opts)
		if e := bgzfw.Close(); e != nil && err == nil {
			err = e
		}
	}
	if err == nil {
		log.Printf("coverage: wrote %d rows to %s", len(rows), path)
	}
	return
}
