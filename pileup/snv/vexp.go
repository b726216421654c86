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

// vexpIterator refines the expected heterozygous allele ratio ("vexp") by
// alternately re-centering the bias-table weights on the current estimate
// and re-estimating the ratio from the resulting posterior over the table.
type vexpIterator struct {
	maxIter   int
	isMinVexp bool
	minVexp   float64
	// scale is the width of the re-weighting kernel.
	scale float64
}

func newVexpIterator(opts *Opts, table *BiasPriorTable) vexpIterator {
	scale := table.Inc()
	if opts.IsHetBias && opts.HetBias > scale {
		scale = opts.HetBias
	}
	return vexpIterator{
		maxIter:   opts.MaxVexpIterations,
		isMinVexp: opts.IsMinVexp,
		minVexp:   opts.MinVexp,
		scale:     scale,
	}
}

// vexpResult describes one run of the iterator.
type vexpResult struct {
	// logMarginal is the heterozygous log-likelihood, marginalized over the
	// table with the final pass's weights.
	logMarginal float64
	ratio       float64
	iterations  int
	// nonConverged is set iff a stopping threshold was configured and the
	// iteration cap was reached without meeting it.
	nonConverged bool
}

// posteriorMeanRatio returns the mean table ratio under the posterior
// proportional to exp(logWeights[i] + entryLLs[i]), given its log
// normalizer.
func posteriorMeanRatio(ratios, logWeights, entryLLs []float64, logMarginal float64) float64 {
	var mean float64
	for i, r := range ratios {
		mean += r * math.Exp(logWeights[i]+entryLLs[i]-logMarginal)
	}
	return mean
}

// run iterates at most it.maxIter times.  entryLLs[i] is the
// log-likelihood of the site's evidence at table.Ratios[i]; it does not
// depend on the weights, so it is computed once by the caller.
func (it *vexpIterator) run(table *BiasPriorTable, entryLLs []float64, s *evalScratch) (res vexpResult) {
	res.ratio = 0.5
	res.logMarginal = marginalLogLik(table.LogWeights, entryLLs, s.tmp)
	converged := false
	for res.iterations < it.maxIter {
		s.logWeights = table.reweight(s.logWeights, res.ratio, it.scale)
		res.logMarginal = marginalLogLik(s.logWeights, entryLLs, s.tmp)
		newRatio := posteriorMeanRatio(table.Ratios, s.logWeights, entryLLs, res.logMarginal)
		delta := math.Abs(newRatio - res.ratio)
		res.ratio = newRatio
		res.iterations++
		if it.isMinVexp && delta < it.minVexp {
			converged = true
			break
		}
	}
	res.nonConverged = it.isMinVexp && !converged && it.maxIter > 0
	return res
}
