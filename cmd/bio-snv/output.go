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
package main

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/varcall/pileup"
	"github.com/grailbio/varcall/pileup/snv"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

const (
	colBitProbs = 1 << iota
	colBitFlags
	colBitCounts
	colBitMetrics
	colBitLSNP
)

var colNameMap = map[string]int{
	"probs":   colBitProbs,
	"flags":   colBitFlags,
	"counts":  colBitCounts,
	"metrics": colBitMetrics,
	"lsnp":    colBitLSNP,
}

const colBitsetDefault = colBitProbs | colBitFlags | colBitMetrics | colBitLSNP

// callWriter renders PosteriorResults as TSV rows.  Column sets which don't
// apply to the run (e.g. metrics in plain mode) are omitted even when
// requested.
type callWriter struct {
	w         *tsv.Writer
	colBitset int
	diploid   bool
	mode      snv.Mode
}

func newCallWriter(w io.Writer, colBitset int, opts *snv.Opts) *callWriter {
	if !opts.IsLSNP {
		colBitset &^= colBitLSNP
	}
	if opts.Mode == snv.ModePlain {
		colBitset &^= colBitMetrics
	}
	return &callWriter{
		w:         tsv.NewWriter(w),
		colBitset: colBitset,
		diploid:   opts.IsDiploid(),
		mode:      opts.Mode,
	}
}

func (cw *callWriter) writeHeader() error {
	cols := []string{"POS", "REF", "ALT", "DEPTH", "GT", "GT_PROB"}
	if cw.colBitset&colBitProbs != 0 {
		if cw.diploid {
			cols = append(cols, "P_HOMREF", "P_HET", "P_HOMALT")
		} else {
			cols = append(cols, "P_GT")
		}
	}
	if cw.colBitset&colBitFlags != 0 {
		cols = append(cols, "EMPTY", "NONCONV", "ITERS", "RATIO")
	}
	if cw.colBitset&colBitCounts != 0 {
		cols = append(cols, "A", "C", "G", "T", "N")
	}
	if cw.colBitset&colBitMetrics != 0 {
		switch cw.mode {
		case snv.ModeGermline:
			cols = append(cols, "GQ", "QUAL")
		case snv.ModeSomatic:
			cols = append(cols, "AF", "ALT_FWD", "ALT_REV")
		}
	}
	if cw.colBitset&colBitLSNP != 0 {
		cols = append(cols, "LSNP_P", "LSNP_VARIANT")
	}
	cw.w.WriteString(strings.Join(cols, "\t"))
	return cw.w.EndLine()
}

func formatProb(p float64) string {
	return strconv.FormatFloat(p, 'g', 6, 64)
}

func boolCol(b bool) byte {
	if b {
		return '1'
	}
	return '0'
}

func (cw *callWriter) write(res *snv.PosteriorResult) error {
	w := cw.w
	w.WriteInt64(int64(res.Site.Pos) + 1) // POS (1-based in VCF text)
	w.WriteByte(pileup.EnumToASCIITable[res.Site.RefBase])
	if res.EmptyEvidence {
		w.WriteByte('.')
	} else {
		w.WriteByte(pileup.EnumToASCIITable[res.AltBase])
	}
	w.WriteInt64(int64(res.Depth))
	w.WriteString(snv.GenotypeString(res))
	w.WriteString(formatProb(res.BestProb))
	if cw.colBitset&colBitProbs != 0 {
		if cw.diploid {
			for _, p := range res.Posteriors {
				w.WriteString(formatProb(p))
			}
		} else {
			probStrs := make([]string, len(res.Posteriors))
			for i, p := range res.Posteriors {
				probStrs[i] = formatProb(p)
			}
			w.WriteString(strings.Join(probStrs, ","))
		}
	}
	if cw.colBitset&colBitFlags != 0 {
		w.WriteByte(boolCol(res.EmptyEvidence))
		w.WriteByte(boolCol(res.NonConverged))
		w.WriteInt64(int64(res.VexpIterations))
		w.WriteString(strconv.FormatFloat(res.AlleleRatio, 'f', 4, 64))
	}
	if cw.colBitset&colBitCounts != 0 {
		for _, n := range res.AlleleCounts {
			w.WriteInt64(int64(n))
		}
	}
	if cw.colBitset&colBitMetrics != 0 {
		switch cw.mode {
		case snv.ModeGermline:
			w.WriteInt64(int64(res.Germline.GQ))
			w.WriteString(strconv.FormatFloat(res.Germline.Qual, 'f', 2, 64))
		case snv.ModeSomatic:
			w.WriteString(strconv.FormatFloat(res.Somatic.AltFraction, 'f', 4, 64))
			w.WriteInt64(int64(res.Somatic.AltFwd))
			w.WriteInt64(int64(res.Somatic.AltRev))
		}
	}
	if cw.colBitset&colBitLSNP != 0 {
		w.WriteString(formatProb(res.LSNP.PValue))
		w.WriteByte(boolCol(res.LSNP.IsVariant))
	}
	return w.EndLine()
}

func (cw *callWriter) flush() error {
	return cw.w.Flush()
}

// callOutput is the destination of the posterior TSV.
type callOutput struct {
	f  file.File
	gz *gzip.Writer
	w  io.Writer
}

// createOutput creates the output file at path, or wraps stdout if path is
// empty.  A ".gz" suffix selects gzip compression.
func createOutput(ctx context.Context, path string) (*callOutput, error) {
	if path == "" {
		return &callOutput{w: os.Stdout}, nil
	}
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", path)
	}
	out := &callOutput{f: f, w: f.Writer(ctx)}
	if strings.HasSuffix(path, ".gz") {
		out.gz = gzip.NewWriter(out.w)
		out.w = out.gz
	}
	return out, nil
}

func (out *callOutput) close(ctx context.Context, err *error) {
	if out.gz != nil {
		if e := out.gz.Close(); e != nil && *err == nil {
			*err = e
		}
	}
	if out.f != nil {
		file.CloseAndReport(ctx, out.f, err)
	}
}
