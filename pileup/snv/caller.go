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
	"context"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/varcall/pileup"
)

// PosteriorResult is the genotype posterior at one site.
type PosteriorResult struct {
	Site Site
	// Skipped is set for sites outside the report range; nothing else is
	// filled in.
	Skipped bool
	// AltBase is the alt allele the biallelic model was evaluated with, or
	// pileup.BaseX when no evidence was used.
	AltBase byte
	// Depth is the number of used evidence records.
	Depth        int
	AlleleCounts [pileup.NBaseEnum]int

	Genotypes      []GenotypeHypothesis
	LogLikelihoods []float64
	Posteriors     []float64
	Best           int
	BestProb       float64

	// EmptyEvidence is set when no evidence survived filtering; the
	// posterior is then uniform.
	EmptyEvidence bool
	// NonConverged is set when the allele-ratio iterator hit its cap without
	// meeting the configured stopping threshold.
	NonConverged   bool
	VexpIterations int
	// AlleleRatio is the estimated alt fraction under the heterozygous
	// genotype.
	AlleleRatio float64

	LSNP     *LSNPResult
	Germline *GermlineMetrics
	Somatic  *SomaticMetrics
}

// evalScratch holds per-worker buffers, so that the main loop doesn't
// allocate per site.
type evalScratch struct {
	decisions  []FilterDecision
	used       []usedBase
	entryLLs   []float64
	logWeights []float64
	tmp        []float64
}

func newEvalScratch(tableLen int) *evalScratch {
	return &evalScratch{
		entryLLs:   make([]float64, 0, tableLen),
		logWeights: make([]float64, 0, tableLen),
		tmp:        make([]float64, 0, tableLen),
	}
}

// Evaluate filters the evidence at site and computes the genotype
// posterior.  The returned decisions are in evidence order.  Evaluate does
// not modify dp and may be called concurrently.
func (dp *DerivedParameters) Evaluate(site Site, evidence []ReadEvidence) (PosteriorResult, []FilterDecision) {
	s := newEvalScratch(dp.Table.Len())
	res := dp.evaluate(&Pile{Site: site, Evidence: evidence}, s)
	return res, s.decisions
}

func (dp *DerivedParameters) evaluate(pile *Pile, s *evalScratch) PosteriorResult {
	s.decisions, s.used = filterPile(&dp.filter, &dp.errModel, pile, s.decisions[:0], s.used[:0])
	m := &dp.model
	nHyp := len(m.hyps)
	res := PosteriorResult{
		Site:           pile.Site,
		AltBase:        pileup.BaseX,
		Depth:          len(s.used),
		Genotypes:      m.hyps,
		LogLikelihoods: make([]float64, nHyp),
		Posteriors:     make([]float64, nHyp),
		AlleleRatio:    0.5,
	}
	if len(s.used) == 0 {
		res.EmptyEvidence = true
		for i := range res.Posteriors {
			res.Posteriors[i] = 1 / float64(nHyp)
		}
		res.BestProb = res.Posteriors[0]
		if dp.opts.IsLSNP {
			res.LSNP = &LSNPResult{PValue: 1}
		}
		attachMetrics(dp.opts.Mode, &res, s.used)
		return res
	}

	ref := pile.Site.RefBase
	res.AlleleCounts = alleleCounts(s.used)
	alt := pickAlt(ref, &res.AlleleCounts)
	res.AltBase = alt

	for g, hyp := range m.hyps {
		if !hyp.IsHet() {
			res.LogLikelihoods[g] = siteLogLik(s.used, ref, alt, hyp.AltFreq)
			continue
		}
		s.entryLLs = m.entryLogLiks(s.entryLLs, s.used, ref, alt, hyp.AltFreq)
		if (g == m.diploidHet) && dp.iterating() {
			vr := dp.vexp.run(m.table, s.entryLLs, s)
			res.LogLikelihoods[g] = vr.logMarginal
			res.AlleleRatio = vr.ratio
			res.VexpIterations = vr.iterations
			res.NonConverged = vr.nonConverged
			continue
		}
		ll := marginalLogLik(m.table.LogWeights, s.entryLLs, s.tmp)
		res.LogLikelihoods[g] = ll
		if g == m.diploidHet {
			res.AlleleRatio = posteriorMeanRatio(m.table.Ratios, m.table.LogWeights, s.entryLLs, ll)
		}
	}
	res.Best = logPosteriorsToProbs(res.Posteriors, res.LogLikelihoods, m.logPriors)
	res.BestProb = res.Posteriors[res.Best]
	if dp.opts.IsLSNP {
		lsnp := lsnpTest(s.used, alt, dp.opts.LSNPAlpha)
		res.LSNP = &lsnp
	}
	attachMetrics(dp.opts.Mode, &res, s.used)
	return res
}

// Caller evaluates sites and accumulates the run's read counts.
type Caller struct {
	dp      *DerivedParameters
	counter Counter
}

// NewCaller validates opts and builds the run's derived parameters.  See
// NewDerivedParameters.
func NewCaller(opts *Opts, refEnd PosType) (*Caller, error) {
	dp, err := NewDerivedParameters(opts, refEnd)
	if err != nil {
		return nil, err
	}
	return &Caller{dp: dp}, nil
}

// Params returns the run's derived parameters.
func (c *Caller) Params() *DerivedParameters {
	return c.dp
}

// Evaluate is DerivedParameters.Evaluate for a single site, with the
// decisions also added to the run's read counts.  A site outside the report
// range is returned with Skipped set and nil decisions; its evidence is not
// filtered.  The run's read-count Total therefore equals the number of
// evidence records at reported sites, not at every site passed in.
func (c *Caller) Evaluate(site Site, evidence []ReadEvidence) (PosteriorResult, []FilterDecision) {
	if !c.dp.ReportRange.Contains(site.Pos) {
		return PosteriorResult{Site: site, Skipped: true}, nil
	}
	res, decisions := c.dp.Evaluate(site, evidence)
	var local ReadCounts
	local.AddAll(decisions)
	c.counter.Merge(&local)
	c.warn(&res)
	return res, decisions
}

func (c *Caller) warn(res *PosteriorResult) {
	if res.NonConverged && (c.dp.opts.Verbosity >= VerbosityAllWarn) {
		log.Printf("snv: warning: allele-ratio estimate did not converge at position %d after %d iterations (ratio %.4f)", res.Site.Pos, res.VexpIterations, res.AlleleRatio)
	}
}

// Run evaluates every pile, using up to parallelism goroutines, and returns
// the results in input order.  Each goroutine handles a contiguous block of
// piles with its own buffers and read counts, merging the latter once at
// the end.  Piles outside the report range yield Skipped results and add
// nothing to the read counts.  If ctx is canceled, no further piles are
// dispatched and ctx.Err() is returned.
func (c *Caller) Run(ctx context.Context, piles []Pile, parallelism int) ([]PosteriorResult, error) {
	nPile := len(piles)
	results := make([]PosteriorResult, nPile)
	if nPile == 0 {
		return results, nil
	}
	if parallelism <= 0 {
		parallelism = 1
	}
	if parallelism > nPile {
		parallelism = nPile
	}
	log.Debug.Printf("snv.Run: starting main loop (%d piles, %d jobs)", nPile, parallelism)
	err := traverse.Each(parallelism, func(jobIdx int) error {
		startIdx := (jobIdx * nPile) / parallelism
		endIdx := ((jobIdx + 1) * nPile) / parallelism
		s := newEvalScratch(c.dp.Table.Len())
		var local ReadCounts
		// Counts from completed sites are kept even if the job is canceled.
		defer c.counter.Merge(&local)
		for i := startIdx; i < endIdx; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			pile := &piles[i]
			if !c.dp.ReportRange.Contains(pile.Site.Pos) {
				results[i] = PosteriorResult{Site: pile.Site, Skipped: true}
				continue
			}
			results[i] = c.dp.evaluate(pile, s)
			local.AddAll(s.decisions)
			c.warn(&results[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Debug.Printf("snv.Run: main loop complete")
	return results, nil
}

// Summarize returns the read counts accumulated so far, over reported sites
// only.
func (c *Caller) Summarize() ReadCounts {
	return c.counter.Summarize()
}

// GenotypeString renders the winning genotype of res as e.g. "0/1" (diploid)
// or "0/0/1/1" (N-ploid), or "." for skipped sites.
func GenotypeString(res *PosteriorResult) string {
	if res.Skipped || len(res.Genotypes) == 0 {
		return "."
	}
	nCopy := len(res.Genotypes) - 1
	altCount := res.Genotypes[res.Best].AltCount
	buf := make([]byte, 0, 2*nCopy)
	for i := 0; i < nCopy; i++ {
		if i != 0 {
			buf = append(buf, '/')
		}
		if i < nCopy-altCount {
			buf = append(buf, '0')
		} else {
			buf = append(buf, '1')
		}
	}
	return string(buf)
}
