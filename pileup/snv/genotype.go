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

	"github.com/grailbio/varcall/pileup"
	"gonum.org/v1/gonum/floats"
)

// GenotypeHypothesis is a biallelic genotype: AltCount copies of the alt
// allele out of the model's allele-copy count.
type GenotypeHypothesis struct {
	AltCount int
	// AltFreq is the expected fraction of alt-supporting observations in the
	// absence of sequencing error.
	AltFreq float64
}

// IsHet returns true iff the genotype carries both alleles.
func (g GenotypeHypothesis) IsHet() bool {
	return g.AltFreq > 0 && g.AltFreq < 1
}

// genotypeModel holds the genotype set and its priors.  It is immutable.
type genotypeModel struct {
	hyps      []GenotypeHypothesis
	logPriors []float64
	// diploidHet is the index of the diploid heterozygous genotype, or -1 in
	// N-ploid mode.
	diploidHet int
	table      *BiasPriorTable
}

// newGenotypeModel enumerates the genotypes for nCopy allele copies.  In
// diploid mode, the priors are (1 - 1.5 theta, theta, theta / 2); in N-ploid
// mode, hom-ref gets 1 - snpProb and the remainder is split evenly.
func newGenotypeModel(opts *Opts, table *BiasPriorTable) genotypeModel {
	nCopy := opts.NumAlleleCopies()
	m := genotypeModel{
		hyps:       make([]GenotypeHypothesis, nCopy+1),
		logPriors:  make([]float64, nCopy+1),
		diploidHet: -1,
		table:      table,
	}
	for g := range m.hyps {
		m.hyps[g] = GenotypeHypothesis{
			AltCount: g,
			AltFreq:  float64(g) / float64(nCopy),
		}
	}
	if opts.IsDiploid() {
		theta := opts.Theta
		m.logPriors[0] = math.Log(1 - 1.5*theta)
		m.logPriors[1] = math.Log(theta)
		m.logPriors[2] = math.Log(theta / 2)
		m.diploidHet = 1
	} else {
		p := opts.SNPProb
		m.logPriors[0] = math.Log(1 - p)
		for g := 1; g <= nCopy; g++ {
			m.logPriors[g] = math.Log(p / float64(nCopy))
		}
	}
	return m
}

// obsLogProb returns the log-probability of observing base b at a site with
// alleles (ref, alt), given expected alt frequency f and error probability e.
// Errors are assumed to be spread evenly over the three other bases.
func obsLogProb(b, ref, alt byte, f, e float64) float64 {
	switch b {
	case alt:
		return math.Log(f*(1-e) + (1-f)*e/3)
	case ref:
		return math.Log((1-f)*(1-e) + f*e/3)
	default:
		return math.Log(e / 3)
	}
}

// siteLogLik returns the log-likelihood of every observation in used under
// alt frequency f.
func siteLogLik(used []usedBase, ref, alt byte, f float64) float64 {
	var ll float64
	for _, ub := range used {
		ll += obsLogProb(ub.base, ref, alt, f, ub.eprob)
	}
	return ll
}

// alleleCounts tallies used observations by base.
func alleleCounts(used []usedBase) (counts [pileup.NBaseEnum]int) {
	for _, ub := range used {
		counts[ub.base]++
	}
	return
}

// pickAlt returns the most frequently observed non-reference regular base.
// Ties go to the earlier base in A/C/G/T order, so the choice is
// deterministic.
func pickAlt(ref byte, counts *[pileup.NBaseEnum]int) byte {
	alt := pileup.BaseX
	best := -1
	for b := byte(0); b < pileup.NBase; b++ {
		if b == ref {
			continue
		}
		if counts[b] > best {
			best = counts[b]
			alt = b
		}
	}
	return alt
}

// entryLogLiks fills dst with the log-likelihood of used at each bias-table
// ratio, mapped onto nominal frequency f.
func (m *genotypeModel) entryLogLiks(dst []float64, used []usedBase, ref, alt byte, f float64) []float64 {
	dst = dst[:0]
	for _, r := range m.table.Ratios {
		dst = append(dst, siteLogLik(used, ref, alt, biasedFreq(f, r)))
	}
	return dst
}

// marginalLogLik returns log(sum_i exp(logWeights[i] + entryLLs[i])), using
// scratch as working space.
func marginalLogLik(logWeights, entryLLs, scratch []float64) float64 {
	scratch = scratch[:0]
	for i, lw := range logWeights {
		scratch = append(scratch, lw+entryLLs[i])
	}
	return floats.LogSumExp(scratch)
}

// normalizeLog shifts the log-values in v so that their exponentials sum to
// 1, and returns v.
func normalizeLog(v []float64) []float64 {
	lse := floats.LogSumExp(v)
	for i := range v {
		v[i] -= lse
	}
	return v
}

// logPosteriorsToProbs fills probs with the normalized posterior
// probabilities corresponding to log-likelihoods lls and log-priors, and
// returns the index of the most probable genotype.
func logPosteriorsToProbs(probs, lls, logPriors []float64) int {
	for i, ll := range lls {
		probs[i] = ll + logPriors[i]
	}
	normalizeLog(probs)
	best := 0
	for i := range probs {
		probs[i] = math.Exp(probs[i])
		if probs[i] > probs[best] {
			best = i
		}
	}
	return best
}
