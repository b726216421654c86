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
	"math"

	"github.com/grailbio/base/errors"
)

const (
	// Humans will often pick exact multiples of the ratio increment, which
	// are also the least efficient points in terms of increment size; the
	// fudge removes this trend from the computation.
	hetBiasIncFudge = 0.0001
	// HetBiasRatioInc is the spacing of the allele-ratio grid.
	HetBiasRatioInc = 0.05 + hetBiasIncFudge
)

// BiasPriorTable is a discretized set of heterozygous allele-ratio
// hypotheses.  Ratios are strictly inside (0, 1) and sorted in increasing
// order; Weights sum to 1.  The heterozygous genotype prior itself is applied
// by the genotype model, not folded into the weights.
//
// A BiasPriorTable is immutable after construction.
type BiasPriorTable struct {
	Ratios     []float64
	Weights    []float64
	LogWeights []float64
	inc        float64
}

// NewBiasPriorTable builds the allele-ratio grid for bias window
// [0.5 - hetBias, 0.5 + hetBias] with the given increment.
//
// The grid always contains 0.5; each further entry is 0.5 +/- k*inc for
// k*inc <= hetBias, so hetBias == 0 yields a single-entry table and
// hetBias >= 0.5 yields every grid point strictly inside (0, 1).
func NewBiasPriorTable(inc, hetBias float64) (*BiasPriorTable, error) {
	if !(inc > 0) || inc >= 1 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("snv.NewBiasPriorTable: ratio increment must be in (0, 1) (got %v)", inc))
	}
	if !(hetBias >= 0) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("snv.NewBiasPriorTable: het bias must be nonnegative (got %v)", hetBias))
	}
	nStep := 0
	for {
		offset := float64(nStep+1) * inc
		if offset > hetBias || offset >= 0.5 {
			break
		}
		nStep++
	}
	n := 2*nStep + 1
	t := &BiasPriorTable{
		Ratios:     make([]float64, n),
		Weights:    make([]float64, n),
		LogWeights: make([]float64, n),
		inc:        inc,
	}
	w := 1 / float64(n)
	logW := -math.Log(float64(n))
	for i := 0; i < n; i++ {
		t.Ratios[i] = 0.5 + float64(i-nStep)*inc
		t.Weights[i] = w
		t.LogWeights[i] = logW
	}
	return t, nil
}

// Len returns the number of allele-ratio hypotheses.
func (t *BiasPriorTable) Len() int {
	return len(t.Ratios)
}

// Inc returns the grid increment.
func (t *BiasPriorTable) Inc() float64 {
	return t.inc
}

// biasedFreq maps a table ratio (centered on 0.5) onto a heterozygous
// genotype with nominal alt frequency f.  The deviation from 0.5 is scaled
// so that the result stays strictly inside (0, 1).
func biasedFreq(f, ratio float64) float64 {
	if f == 0.5 {
		return ratio
	}
	return f + 2*(ratio-0.5)*math.Min(f, 1-f)
}

// reweight fills dst with log-weights proportional to
// Weights[i] * exp(-(Ratios[i] - center)^2 / (2 * scale^2)), normalized to
// sum to 1.
func (t *BiasPriorTable) reweight(dst []float64, center, scale float64) []float64 {
	dst = dst[:0]
	denom := 2 * scale * scale
	for i, r := range t.Ratios {
		d := r - center
		dst = append(dst, t.LogWeights[i]-d*d/denom)
	}
	return normalizeLog(dst)
}
