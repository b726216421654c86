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
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/varcall/pileup"
	"github.com/grailbio/varcall/pileup/snv"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/willf/bitset"
)

// evidenceRow is a single row of an evidence TSV file.  POS is 1-based.
// MISMATCHES is a comma-separated list of 0-based read offsets, or "." for
// none; AS is "." when the aligner didn't report one.
type evidenceRow struct {
	Pos        int64  `tsv:"POS"`
	Ref        string `tsv:"REF"`
	Name       string `tsv:"NAME"`
	Base       string `tsv:"BASE"`
	Qual       int64  `tsv:"QUAL"`
	MapQ       int64  `tsv:"MAPQ"`
	Flags      int64  `tsv:"FLAGS"`
	ReadPos    int64  `tsv:"READ_POS"`
	Mismatches string `tsv:"MISMATCHES"`
	AS         string `tsv:"AS"`
	MaxDel     int64  `tsv:"MAX_DEL"`
	Unanchored int64  `tsv:"UNANCHORED"`
}

func parseBase(s string) (byte, error) {
	if len(s) != 1 {
		return 0, errors.Errorf("invalid base %q", s)
	}
	return pileup.ASCIIToEnumTable[s[0]], nil
}

func parseMismatches(s string) (*bitset.BitSet, error) {
	if s == "" || s == "." {
		return nil, nil
	}
	mask := bitset.New(0)
	for _, part := range strings.Split(s, ",") {
		offset, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid mismatch offset %q", part)
		}
		mask.Set(uint(offset))
	}
	return mask, nil
}

// toEvidence converts a parsed row to snv.ReadEvidence.
func (row *evidenceRow) toEvidence() (ev snv.ReadEvidence, err error) {
	if ev.Base, err = parseBase(row.Base); err != nil {
		return
	}
	if row.Qual < 0 || row.Qual > 255 || row.MapQ < 0 || row.MapQ > 255 {
		err = errors.Errorf("QUAL/MAPQ out of range (%d, %d)", row.Qual, row.MapQ)
		return
	}
	if row.Flags < 0 || row.Flags > 0xffff {
		err = errors.Errorf("invalid FLAGS value %d", row.Flags)
		return
	}
	ev.Name = row.Name
	ev.Qual = byte(row.Qual)
	ev.MapQ = byte(row.MapQ)
	ev.Flags = sam.Flags(row.Flags)
	// The evidence format doesn't carry the mate's contig, so paired reads with
	// a mapped mate are assumed to be on the same contig.
	ev.SameRefMate = (ev.Flags&sam.Paired != 0) && (ev.Flags&sam.MateUnmapped == 0)
	ev.PosInRead = int(row.ReadPos)
	if ev.Mismatches, err = parseMismatches(row.Mismatches); err != nil {
		return
	}
	if row.AS != "" && row.AS != "." {
		var as int
		if as, err = strconv.Atoi(row.AS); err != nil {
			err = errors.Wrapf(err, "invalid AS value %q", row.AS)
			return
		}
		ev.AlignScore = as
		ev.HasAlignScore = true
	}
	ev.MaxRefDeletion = int(row.MaxDel)
	ev.Unanchored = row.Unanchored != 0
	return
}

// pileReader groups consecutive evidence rows into piles.  Positions must be
// strictly increasing from one pile to the next.
type pileReader struct {
	r *tsv.Reader
	// next is the first row of the next pile, if hasNext is set.
	next    evidenceRow
	hasNext bool
	eof     bool
	lastPos int64
	nRow    int
}

func newPileReader(r io.Reader) *pileReader {
	tsvReader := tsv.NewReader(r)
	tsvReader.HasHeaderRow = true
	tsvReader.UseHeaderNames = true
	return &pileReader{r: tsvReader}
}

func (pr *pileReader) readRow(row *evidenceRow) error {
	if err := pr.r.Read(row); err != nil {
		if err == io.EOF {
			pr.eof = true
			return nil
		}
		return errors.Wrapf(err, "evidence row %d", pr.nRow+1)
	}
	pr.nRow++
	return nil
}

// readPile reads the next pile into pile, reusing its evidence slice.  It
// returns false when the input is exhausted.
func (pr *pileReader) readPile(pile *snv.Pile) (bool, error) {
	if !pr.hasNext {
		if pr.eof {
			return false, nil
		}
		if err := pr.readRow(&pr.next); err != nil {
			return false, err
		}
		if pr.eof {
			return false, nil
		}
	}
	first := pr.next
	if first.Pos <= pr.lastPos {
		return false, errors.Errorf("evidence row %d: position %d is not after previous position %d", pr.nRow, first.Pos, pr.lastPos)
	}
	refBase, err := parseBase(first.Ref)
	if err != nil {
		return false, errors.Wrapf(err, "evidence row %d", pr.nRow)
	}
	pile.Site = snv.Site{Pos: snv.PosType(first.Pos - 1), RefBase: refBase}
	pile.Evidence = pile.Evidence[:0]
	pr.lastPos = first.Pos
	row := first
	for {
		ev, err := row.toEvidence()
		if err != nil {
			return false, errors.Wrapf(err, "evidence row %d", pr.nRow)
		}
		pile.Evidence = append(pile.Evidence, ev)
		if err = pr.readRow(&pr.next); err != nil {
			return false, err
		}
		if pr.eof || pr.next.Pos != first.Pos {
			break
		}
		if pr.next.Ref != first.Ref {
			return false, errors.Errorf("evidence row %d: REF %s conflicts with %s at position %d", pr.nRow, pr.next.Ref, first.Ref, first.Pos)
		}
		row = pr.next
	}
	pr.hasNext = !pr.eof
	return true, nil
}

// readBatch appends up to maxPiles piles to piles.  done is set once the
// input is exhausted.
func (pr *pileReader) readBatch(piles []snv.Pile, maxPiles int) (_ []snv.Pile, done bool, err error) {
	for len(piles) < maxPiles {
		// Reuse the evidence buffer left behind by a previous batch, if any.
		if len(piles) < cap(piles) {
			piles = piles[:len(piles)+1]
		} else {
			piles = append(piles, snv.Pile{})
		}
		ok, err := pr.readPile(&piles[len(piles)-1])
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return piles[:len(piles)-1], true, nil
		}
	}
	return piles, false, nil
}

// evidenceInput is an open evidence file.
type evidenceInput struct {
	f  file.File
	gz *gzip.Reader
	pr *pileReader
}

// openEvidence opens the evidence TSV at path, which is gzip-decompressed if
// it ends in ".gz".
func openEvidence(ctx context.Context, path string) (*evidenceInput, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	in := &evidenceInput{f: f}
	var r io.Reader = f.Reader(ctx)
	if strings.HasSuffix(path, ".gz") {
		if in.gz, err = gzip.NewReader(r); err != nil {
			_ = f.Close(ctx)
			return nil, errors.Wrapf(err, "opening %s", path)
		}
		r = in.gz
	}
	in.pr = newPileReader(r)
	return in, nil
}

func (in *evidenceInput) close(ctx context.Context, err *error) {
	if in.gz != nil {
		if e := in.gz.Close(); e != nil && *err == nil {
			*err = e
		}
	}
	file.CloseAndReport(ctx, in.f, err)
}
