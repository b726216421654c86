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
)

// This file contains the qual phred-math routines used by the error model.

// All functions here clamp input qual scores to (nQual - 1).
const nQual = 96

// maxErrProb caps error probabilities; a base-call error rate above 3/4 would
// mean the call is less informative than a uniformly random base.
const maxErrProb = 0.75

// errProbTable[q] is the error probability corresponding to phred score q,
// and logErrProbTable[q] is its natural log.
var (
	errProbTable    [nQual]float64
	logErrProbTable [nQual]float64
)

func init() {
	// Fortunately, nQual is small enough that we don't have to worry about
	// floating-point underflow anywhere.
	for i := range errProbTable {
		e := math.Exp(float64(i) * (-0.1 * math.Ln10))
		if e > maxErrProb {
			e = maxErrProb
		}
		errProbTable[i] = e
		logErrProbTable[i] = math.Log(e)
	}
}

func clampQual(q int) int {
	if q < 0 {
		return 0
	}
	if q >= nQual {
		return nQual - 1
	}
	return q
}

// ErrorProb returns the probability that a base call with phred score q is
// wrong.
func ErrorProb(q int) float64 {
	return errProbTable[clampQual(q)]
}

// errorModel converts base qualities to error probabilities, optionally
// applying the dependent-error adjustment.
type errorModel struct {
	dependent bool
	// exponents[0] applies to bases with no other mismatch in their window,
	// exponents[1] to bases with at least one.
	exponents [2]float64
}

func newErrorModel(opts *Opts) errorModel {
	return errorModel{
		dependent: opts.IsDependentEprob(),
		exponents: [2]float64{1 - opts.SSDNoMismatch, 1 - opts.SSDOneMismatch},
	}
}

// eprob returns the error probability for a base with phred score q, whose
// read has otherMismatches additional mismatches in the flank window.
//
// In dependent mode, e is raised to the power (1 - ssd) for ssd in [0, 1);
// this inflates the error probability of bases in reads which are already
// known to carry errors, and preserves monotonicity in q.
func (m *errorModel) eprob(q int, otherMismatches int) float64 {
	q = clampQual(q)
	if !m.dependent {
		return errProbTable[q]
	}
	idx := 0
	if otherMismatches > 0 {
		idx = 1
	}
	e := math.Exp(logErrProbTable[q] * m.exponents[idx])
	if e > maxErrProb {
		e = maxErrProb
	}
	return e
}
