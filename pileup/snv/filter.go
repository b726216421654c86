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
	"math"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/varcall/pileup"
	"github.com/willf/bitset"
)

// evidenceFilter holds the filter thresholds extracted from Opts.  The
// per-site used-depth counter is owned by the caller, so a single
// evidenceFilter can be shared by all workers.
type evidenceFilter struct {
	minQScore int
	minMapQ   int

	subsample          bool
	subsampleThreshold uint64

	includeSingleton bool
	includeAnomalous bool

	isMinAlignScore bool
	minAlignScore   int

	isMaxRefDeletion bool
	maxRefDeletion   int

	isMaxWinMismatch bool
	maxWinMismatch   int
	flankSize        int

	isMaxInputDepth bool
	maxInputDepth   int
}

func newEvidenceFilter(opts *Opts) evidenceFilter {
	f := evidenceFilter{
		minQScore:        opts.MinQScore,
		minMapQ:          opts.MinMapQ,
		includeSingleton: opts.IncludeSingleton,
		includeAnomalous: opts.IncludeAnomalous,
		isMinAlignScore:  opts.IsMinAlignScore,
		minAlignScore:    opts.MinAlignScore,
		isMaxRefDeletion: opts.IsMaxRefDeletion,
		maxRefDeletion:   opts.MaxRefDeletion,
		isMaxWinMismatch: opts.IsMaxWinMismatch,
		maxWinMismatch:   opts.MaxWinMismatch,
		flankSize:        opts.MaxWinMismatchFlankSize,
		isMaxInputDepth:  opts.IsMaxInputDepth,
		maxInputDepth:    opts.MaxInputDepth,
	}
	if opts.SubsampleRate < 1 {
		f.subsample = true
		f.subsampleThreshold = uint64(opts.SubsampleRate * math.Exp2(64))
	}
	return f
}

// keepSubsample returns true iff the read named name survives subsampling.
// The decision depends only on the name, so both ends of a pair, and every
// position of a read, are treated identically.
func (f *evidenceFilter) keepSubsample(name string) bool {
	return farm.Hash64([]byte(name)) < f.subsampleThreshold
}

// isUnanchored returns true iff the read has no usable anchor.
func (f *evidenceFilter) isUnanchored(ev *ReadEvidence) bool {
	if ev.Unanchored {
		return true
	}
	if ev.Flags&sam.Paired == 0 {
		return false
	}
	if ev.Flags&sam.MateUnmapped != 0 {
		return !f.includeSingleton
	}
	return (ev.Flags&sam.ProperPair == 0) && !f.includeAnomalous
}

// windowMismatches returns the number of mismatches in read offsets
// [pos - flank, pos + flank].
func windowMismatches(mask *bitset.BitSet, pos, flank int) int {
	if mask == nil || pos < 0 {
		return 0
	}
	lo := pos - flank
	if lo < 0 {
		lo = 0
	}
	hi := pos + flank
	if maxIdx := int(mask.Len()) - 1; hi > maxIdx {
		hi = maxIdx
	}
	n := 0
	for i := lo; i <= hi; i++ {
		if mask.Test(uint(i)) {
			n++
		}
	}
	return n
}

// classify returns the filter decision for ev, given the number of reads
// already used at this position.  Rules are applied in priority order; the
// first matching rule wins.
func (f *evidenceFilter) classify(ev *ReadEvidence, usedDepth int) FilterDecision {
	flags := ev.Flags
	switch {
	case flags&sam.Unmapped != 0:
		return DecisionUnmapped
	case flags&sam.Secondary != 0:
		return DecisionSecondary
	case flags&sam.Supplementary != 0:
		return DecisionSupplementary
	case flags&sam.Duplicate != 0:
		return DecisionDuplicate
	}
	if (flags&sam.QCFail != 0) || (int(ev.MapQ) < f.minMapQ) || (int(ev.Qual) < f.minQScore) {
		return DecisionPrimary
	}
	if f.subsample && !f.keepSubsample(ev.Name) {
		return DecisionSubsample
	}
	if f.isUnanchored(ev) {
		return DecisionUnanchored
	}
	if f.isMinAlignScore && ev.HasAlignScore && (ev.AlignScore < f.minAlignScore) {
		return DecisionAlignScore
	}
	if f.isMaxRefDeletion && (ev.MaxRefDeletion > f.maxRefDeletion) {
		return DecisionLargeRefDeletion
	}
	if f.isMaxWinMismatch && (windowMismatches(ev.Mismatches, ev.PosInRead, f.flankSize) > f.maxWinMismatch) {
		return DecisionMismatchDensity
	}
	if ev.PosInRead < 0 {
		return DecisionFloating
	}
	if f.isMaxInputDepth && (usedDepth >= f.maxInputDepth) {
		return DecisionMaxDepth
	}
	return DecisionUsed
}

// wholeReadFlank exceeds any supported read length.
const wholeReadFlank = 1 << 30

// usedBase is a single filtered observation, reduced to what the likelihood
// engine needs.
type usedBase struct {
	base   byte
	eprob  float64
	strand pileup.StrandType
}

// filterPile runs every evidence record in pile through the filter,
// appending decisions to decisions and surviving observations to used.
func filterPile(f *evidenceFilter, em *errorModel, pile *Pile, decisions []FilterDecision, used []usedBase) ([]FilterDecision, []usedBase) {
	usedDepth := 0
	// Without a configured window, the dependent error model looks at the
	// whole read.
	eprobFlank := f.flankSize
	if eprobFlank <= 0 {
		eprobFlank = wholeReadFlank
	}
	for i := range pile.Evidence {
		ev := &pile.Evidence[i]
		d := f.classify(ev, usedDepth)
		decisions = append(decisions, d)
		if d != DecisionUsed {
			continue
		}
		usedDepth++
		others := windowMismatches(ev.Mismatches, ev.PosInRead, eprobFlank)
		if (ev.Mismatches != nil) && ev.Mismatches.Test(uint(ev.PosInRead)) {
			others--
		}
		base := ev.Base
		if base >= pileup.NBaseEnum {
			base = pileup.BaseX
		}
		used = append(used, usedBase{
			base:   base,
			eprob:  em.eprob(int(ev.Qual), others),
			strand: ev.Strand(),
		})
	}
	return decisions, used
}
