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
package snv

import (
	"fmt"
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil/expect"
	"github.com/grailbio/varcall/pileup"
	"github.com/willf/bitset"
)

// goodEvidence returns a properly-paired high-quality read which passes
// every default filter.
func goodEvidence(name string, base byte) ReadEvidence {
	return ReadEvidence{
		Name:        name,
		Base:        base,
		Qual:        30,
		MapQ:        60,
		Flags:       sam.Paired | sam.ProperPair | sam.Read1 | sam.MateReverse,
		SameRefMate: true,
		PosInRead:   10,
	}
}

func TestClassifyPriority(t *testing.T) {
	opts := DefaultOpts
	opts.IsMinAlignScore = true
	opts.MinAlignScore = 50
	opts.IsMaxRefDeletion = true
	opts.MaxRefDeletion = 5
	opts.IsMaxWinMismatch = true
	opts.MaxWinMismatch = 1
	opts.MaxWinMismatchFlankSize = 3
	opts.IsMaxInputDepth = true
	opts.MaxInputDepth = 2
	f := newEvidenceFilter(&opts)

	mismatches := bitset.New(20)
	mismatches.Set(8).Set(11)

	for _, test := range []struct {
		name      string
		modify    func(ev *ReadEvidence)
		usedDepth int
		want      FilterDecision
	}{
		{"pass", func(ev *ReadEvidence) {}, 0, DecisionUsed},
		{"unmapped beats everything", func(ev *ReadEvidence) {
			ev.Flags |= sam.Unmapped | sam.Duplicate | sam.Secondary
			ev.MapQ = 0
		}, 0, DecisionUnmapped},
		{"secondary", func(ev *ReadEvidence) { ev.Flags |= sam.Secondary | sam.Supplementary }, 0, DecisionSecondary},
		{"supplementary", func(ev *ReadEvidence) { ev.Flags |= sam.Supplementary | sam.Duplicate }, 0, DecisionSupplementary},
		{"duplicate with low mapq", func(ev *ReadEvidence) {
			ev.Flags |= sam.Duplicate
			ev.MapQ = 0
		}, 0, DecisionDuplicate},
		{"qcfail", func(ev *ReadEvidence) { ev.Flags |= sam.QCFail }, 0, DecisionPrimary},
		{"low mapq", func(ev *ReadEvidence) { ev.MapQ = 19 }, 0, DecisionPrimary},
		{"low base qual", func(ev *ReadEvidence) { ev.Qual = 16 }, 0, DecisionPrimary},
		{"unanchored marker", func(ev *ReadEvidence) { ev.Unanchored = true }, 0, DecisionUnanchored},
		{"singleton", func(ev *ReadEvidence) {
			ev.Flags = sam.Paired | sam.MateUnmapped
		}, 0, DecisionUnanchored},
		{"anomalous pair", func(ev *ReadEvidence) {
			ev.Flags &^= sam.ProperPair
		}, 0, DecisionUnanchored},
		{"unpaired read is anchored", func(ev *ReadEvidence) { ev.Flags = 0 }, 0, DecisionUsed},
		{"low align score", func(ev *ReadEvidence) {
			ev.HasAlignScore = true
			ev.AlignScore = 49
			ev.MaxRefDeletion = 100
		}, 0, DecisionAlignScore},
		{"missing align score is ignored", func(ev *ReadEvidence) { ev.AlignScore = 0 }, 0, DecisionUsed},
		{"large deletion", func(ev *ReadEvidence) {
			ev.MaxRefDeletion = 6
			ev.Mismatches = mismatches
		}, 0, DecisionLargeRefDeletion},
		{"floating read has no mismatch window", func(ev *ReadEvidence) {
			ev.Mismatches = mismatches
			ev.PosInRead = -1
		}, 0, DecisionFloating},
		{"mismatch window", func(ev *ReadEvidence) { ev.Mismatches = mismatches }, 0, DecisionMismatchDensity},
		{"floating", func(ev *ReadEvidence) { ev.PosInRead = -1 }, 2, DecisionFloating},
		{"max depth", func(ev *ReadEvidence) {}, 2, DecisionMaxDepth},
		{"below max depth", func(ev *ReadEvidence) {}, 1, DecisionUsed},
	} {
		ev := goodEvidence("r", pileup.BaseA)
		test.modify(&ev)
		expect.EQ(t, f.classify(&ev, test.usedDepth), test.want, test.name)
	}
}

func TestClassifyIncludeFlags(t *testing.T) {
	opts := DefaultOpts
	opts.IncludeSingleton = true
	opts.IncludeAnomalous = true
	f := newEvidenceFilter(&opts)
	ev := goodEvidence("r", pileup.BaseA)
	ev.Flags = sam.Paired | sam.MateUnmapped
	expect.EQ(t, f.classify(&ev, 0), DecisionUsed)
	ev.Flags = sam.Paired
	expect.EQ(t, f.classify(&ev, 0), DecisionUsed)
	ev.Unanchored = true
	expect.EQ(t, f.classify(&ev, 0), DecisionUnanchored)
}

func TestWindowMismatches(t *testing.T) {
	mask := bitset.New(10)
	mask.Set(0).Set(4).Set(5).Set(9)
	expect.EQ(t, windowMismatches(nil, 4, 3), 0)
	expect.EQ(t, windowMismatches(mask, -1, 3), 0)
	expect.EQ(t, windowMismatches(mask, 4, 0), 1)
	expect.EQ(t, windowMismatches(mask, 4, 1), 2)
	expect.EQ(t, windowMismatches(mask, 2, 2), 2)
	// Window clipped at both read ends.
	expect.EQ(t, windowMismatches(mask, 5, wholeReadFlank), 4)
	expect.EQ(t, windowMismatches(mask, 8, 5), 3)
}

func TestSubsampleDeterministic(t *testing.T) {
	opts := DefaultOpts
	opts.SubsampleRate = 0.5
	f1 := newEvidenceFilter(&opts)
	f2 := newEvidenceFilter(&opts)
	nKept := 0
	const nRead = 10000
	for i := 0; i < nRead; i++ {
		name := fmt.Sprintf("read%d", i)
		k := f1.keepSubsample(name)
		expect.EQ(t, k, f2.keepSubsample(name))
		ev := goodEvidence(name, pileup.BaseC)
		d := f1.classify(&ev, 0)
		if k {
			nKept++
			expect.EQ(t, d, DecisionUsed)
		} else {
			expect.EQ(t, d, DecisionSubsample)
		}
	}
	// Rough check that the hash is spread evenly.
	expect.True(t, nKept > 4500 && nKept < 5500, "kept %d of %d", nKept, nRead)

	opts.SubsampleRate = 1
	f := newEvidenceFilter(&opts)
	expect.False(t, f.subsample)
}

func TestFilterPile(t *testing.T) {
	opts := DefaultOpts
	opts.IsMaxInputDepth = true
	opts.MaxInputDepth = 3
	f := newEvidenceFilter(&opts)
	em := newErrorModel(&opts)
	pile := Pile{Site: Site{Pos: 100, RefBase: pileup.BaseA}}
	for i := 0; i < 6; i++ {
		pile.Evidence = append(pile.Evidence, goodEvidence(fmt.Sprintf("r%d", i), pileup.BaseA))
	}
	pile.Evidence[1].Flags |= sam.Duplicate
	pile.Evidence[2].Base = pileup.BaseG
	pile.Evidence[2].Flags = sam.Paired | sam.ProperPair | sam.Read1 | sam.Reverse

	decisions, used := filterPile(&f, &em, &pile, nil, nil)
	expect.EQ(t, decisions, []FilterDecision{
		DecisionUsed, DecisionDuplicate, DecisionUsed, DecisionUsed, DecisionMaxDepth, DecisionMaxDepth,
	})
	expect.EQ(t, len(used), 3)
	expect.EQ(t, used[0], usedBase{base: pileup.BaseA, eprob: ErrorProb(30), strand: pileup.StrandFwd})
	expect.EQ(t, used[1], usedBase{base: pileup.BaseG, eprob: ErrorProb(30), strand: pileup.StrandRev})

	var counts ReadCounts
	counts.AddAll(decisions)
	expect.EQ(t, counts.Total(), uint64(len(pile.Evidence)))
	expect.EQ(t, counts.Used(), uint64(len(used)))
}

func TestFilterPileMalformedBase(t *testing.T) {
	opts := DefaultOpts
	f := newEvidenceFilter(&opts)
	em := newErrorModel(&opts)
	pile := Pile{Site: Site{Pos: 100, RefBase: pileup.BaseA}}
	pile.Evidence = append(pile.Evidence,
		goodEvidence("r0", pileup.BaseX),
		goodEvidence("r1", 'G'),
		goodEvidence("r2", pileup.NBaseEnum))
	_, used := filterPile(&f, &em, &pile, nil, nil)
	expect.EQ(t, len(used), 3)
	for _, ub := range used {
		expect.EQ(t, ub.base, pileup.BaseX)
	}
	counts := alleleCounts(used)
	expect.EQ(t, counts[pileup.BaseX], 3)
}
