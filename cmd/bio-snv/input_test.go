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
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/grailbio/varcall/pileup"
	"github.com/grailbio/varcall/pileup/snv"
	"github.com/spf13/viper"
)

const evidenceHeader = "POS\tREF\tNAME\tBASE\tQUAL\tMAPQ\tFLAGS\tREAD_POS\tMISMATCHES\tAS\tMAX_DEL\tUNANCHORED\n"

func TestReadBatch(t *testing.T) {
	input := evidenceHeader +
		"11\tA\tr1\tA\t30\t60\t99\t5\t.\t.\t0\t0\n" +
		"11\tA\tr2\tg\t25\t60\t147\t7\t7,12\t140\t2\t0\n" +
		"12\tC\tr1\tC\t30\t60\t99\t6\t\t150\t0\t1\n" +
		"20\tT\tr3\tN\t10\t0\t4\t-1\t.\t.\t0\t0\n"
	pr := newPileReader(strings.NewReader(input))

	piles, done, err := pr.readBatch(nil, 2)
	assert.NoError(t, err)
	expect.False(t, done)
	assert.EQ(t, len(piles), 2)
	expect.EQ(t, piles[0].Site, snv.Site{Pos: 10, RefBase: pileup.BaseA})
	assert.EQ(t, len(piles[0].Evidence), 2)
	ev := piles[0].Evidence[1]
	expect.EQ(t, ev.Name, "r2")
	expect.EQ(t, ev.Base, pileup.BaseG)
	expect.EQ(t, ev.Qual, byte(25))
	expect.EQ(t, ev.Flags, sam.Flags(147))
	expect.True(t, ev.SameRefMate)
	expect.EQ(t, ev.PosInRead, 7)
	expect.True(t, ev.Mismatches.Test(7))
	expect.True(t, ev.Mismatches.Test(12))
	expect.EQ(t, ev.Mismatches.Count(), uint(2))
	expect.True(t, ev.HasAlignScore)
	expect.EQ(t, ev.AlignScore, 140)
	expect.EQ(t, ev.MaxRefDeletion, 2)
	expect.Nil(t, piles[0].Evidence[0].Mismatches)
	expect.False(t, piles[0].Evidence[0].HasAlignScore)
	expect.EQ(t, piles[1].Site, snv.Site{Pos: 11, RefBase: pileup.BaseC})
	expect.True(t, piles[1].Evidence[0].Unanchored)

	piles, done, err = pr.readBatch(piles[:0], 2)
	assert.NoError(t, err)
	expect.True(t, done)
	assert.EQ(t, len(piles), 1)
	ev = piles[0].Evidence[0]
	expect.EQ(t, ev.Base, pileup.BaseX)
	expect.EQ(t, ev.PosInRead, -1)
	expect.True(t, ev.Flags&sam.Unmapped != 0)
	expect.False(t, ev.SameRefMate)

	piles, done, err = pr.readBatch(piles[:0], 2)
	assert.NoError(t, err)
	expect.True(t, done)
	expect.EQ(t, len(piles), 0)
}

func TestReadBatchErrors(t *testing.T) {
	for _, test := range []struct {
		name string
		body string
	}{
		{"unsorted", "12\tA\tr1\tA\t30\t60\t99\t5\t.\t.\t0\t0\n11\tA\tr2\tA\t30\t60\t99\t5\t.\t.\t0\t0\n"},
		{"conflicting ref", "11\tA\tr1\tA\t30\t60\t99\t5\t.\t.\t0\t0\n11\tC\tr2\tA\t30\t60\t99\t5\t.\t.\t0\t0\n"},
		{"bad base", "11\tA\tr1\tAC\t30\t60\t99\t5\t.\t.\t0\t0\n"},
		{"bad mismatch list", "11\tA\tr1\tA\t30\t60\t99\t5\t3,x\t.\t0\t0\n"},
		{"bad AS", "11\tA\tr1\tA\t30\t60\t99\t5\t.\tfoo\t0\t0\n"},
		{"qual out of range", "11\tA\tr1\tA\t300\t60\t99\t5\t.\t.\t0\t0\n"},
		{"zero position", "0\tA\tr1\tA\t30\t60\t99\t5\t.\t.\t0\t0\n"},
	} {
		pr := newPileReader(strings.NewReader(evidenceHeader + test.body))
		_, _, err := pr.readBatch(nil, 10)
		expect.NotNil(t, err, test.name)
	}
}

func TestParseFai(t *testing.T) {
	lengths, err := parseFai(strings.NewReader("chr1\t248956422\t112\t70\t71\nchrM\t16569\t253105752\t70\t71\n"))
	assert.NoError(t, err)
	expect.EQ(t, lengths, map[string]int64{"chr1": 248956422, "chrM": 16569})

	_, err = parseFai(strings.NewReader("chr1\t100\t0\t70\t71\nchr1\t100\t0\t70\t71\n"))
	expect.NotNil(t, err)
}

func TestCallWriter(t *testing.T) {
	opts := snv.DefaultOpts
	opts.Mode = snv.ModeGermline
	c, err := snv.NewCaller(&opts, 1000)
	assert.NoError(t, err)
	var evidence []snv.ReadEvidence
	for i, base := range []byte{pileup.BaseA, pileup.BaseT, pileup.BaseA, pileup.BaseT, pileup.BaseA, pileup.BaseT, pileup.BaseA, pileup.BaseT} {
		evidence = append(evidence, snv.ReadEvidence{Name: fmt.Sprintf("r%d", i), Base: base, Qual: 30, MapQ: 60, PosInRead: 3})
	}
	res, _ := c.Evaluate(snv.Site{Pos: 41, RefBase: pileup.BaseA}, evidence)
	empty, _ := c.Evaluate(snv.Site{Pos: 42, RefBase: pileup.BaseC}, nil)

	var buf bytes.Buffer
	cw := newCallWriter(&buf, colBitsetDefault|colBitCounts, &opts)
	assert.NoError(t, cw.writeHeader())
	assert.NoError(t, cw.write(&res))
	assert.NoError(t, cw.write(&empty))
	assert.NoError(t, cw.flush())

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.EQ(t, len(lines), 3)
	expect.EQ(t, lines[0], "POS\tREF\tALT\tDEPTH\tGT\tGT_PROB\tP_HOMREF\tP_HET\tP_HOMALT\tEMPTY\tNONCONV\tITERS\tRATIO\tA\tC\tG\tT\tN\tGQ\tQUAL")
	fields := strings.Split(lines[1], "\t")
	assert.EQ(t, len(fields), 20)
	expect.EQ(t, fields[:5], []string{"42", "A", "T", "8", "0/1"})
	expect.EQ(t, fields[9:18], []string{"0", "0", "0", "0.5000", "4", "0", "0", "4", "0"})
	fields = strings.Split(lines[2], "\t")
	expect.EQ(t, fields[:5], []string{"43", "C", ".", "0", "0/0"})
	expect.EQ(t, fields[9], "1")
}

func TestCallWriterNPloid(t *testing.T) {
	opts := snv.DefaultOpts
	opts.Ploidy = 3
	opts.SNPProb = 0.01
	c, err := snv.NewCaller(&opts, 1000)
	assert.NoError(t, err)
	res, _ := c.Evaluate(snv.Site{Pos: 0, RefBase: pileup.BaseG}, nil)

	var buf bytes.Buffer
	cw := newCallWriter(&buf, colBitProbs, &opts)
	assert.NoError(t, cw.writeHeader())
	assert.NoError(t, cw.write(&res))
	assert.NoError(t, cw.flush())
	expect.EQ(t, buf.String(), "POS\tREF\tALT\tDEPTH\tGT\tGT_PROB\tP_GT\n1\tG\t.\t0\t0/0/0\t0.25\t0.25,0.25,0.25,0.25\n")
}

func TestOverlayFlags(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	theta := fs.Float64("theta", 0.001, "")
	hetBias := fs.Float64("het-bias", -1, "")
	lsnp := fs.Bool("lsnp", false, "")
	assert.NoError(t, fs.Parse([]string{"-theta", "0.002"}))

	v := viper.New()
	v.SetConfigType("yaml")
	assert.NoError(t, v.ReadConfig(strings.NewReader("theta: 0.01\nhet-bias: 0.4\nlsnp: true\n")))
	assert.NoError(t, overlayFlags(v, fs))
	// Command-line flags take precedence.
	expect.EQ(t, *theta, 0.002)
	expect.EQ(t, *hetBias, 0.4)
	expect.True(t, *lsnp)

	v = viper.New()
	v.SetConfigType("yaml")
	assert.NoError(t, v.ReadConfig(strings.NewReader("no-such-flag: 3\n")))
	expect.NotNil(t, overlayFlags(v, fs))
}

func TestWriteCounts(t *testing.T) {
	ctx := context.Background()
	var counts snv.ReadCounts
	counts.AddAll([]snv.FilterDecision{snv.DecisionUsed, snv.DecisionDuplicate})
	path := filepath.Join(t.TempDir(), "counts.tsv")
	assert.NoError(t, writeCounts(ctx, path, &counts))
	data, err := os.ReadFile(path)
	assert.NoError(t, err)
	expect.True(t, strings.HasPrefix(string(data), "READ_COUNTS\ttotal\t2\n"))
	expect.True(t, strings.HasSuffix(string(data), "READ_COUNTS\tused\t1\n"))
}
