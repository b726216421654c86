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
	"gonum.org/v1/gonum/stat/distuv"
)

// LSNPResult is the outcome of the binomial screen for a non-reference
// allele.
type LSNPResult struct {
	// PValue is the probability of seeing at least the observed number of
	// alt bases if every alt base were a sequencing error.
	PValue    float64
	IsVariant bool
}

// lsnpTest runs the binomial screen.  Each used base is assumed to produce
// the specific alt base by error with probability (mean error) / 3.
func lsnpTest(used []usedBase, alt byte, alpha float64) LSNPResult {
	n := len(used)
	if n == 0 {
		return LSNPResult{PValue: 1}
	}
	var eSum float64
	k := 0
	for _, ub := range used {
		eSum += ub.eprob
		if ub.base == alt {
			k++
		}
	}
	if k == 0 {
		return LSNPResult{PValue: 1}
	}
	b := distuv.Binomial{
		N: float64(n),
		P: eSum / float64(3*n),
	}
	// Survival(x) is P(X > x), so P(X >= k) = Survival(k - 1).
	pValue := b.Survival(float64(k - 1))
	return LSNPResult{
		PValue:    pValue,
		IsVariant: pValue < alpha,
	}
}
