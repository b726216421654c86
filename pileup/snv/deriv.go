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

	"github.com/grailbio/base/errors"
	"github.com/grailbio/varcall/interval"
)

// DerivedParameters contains data deterministically derived from Opts and
// the reference extent.  It is built once per run and is read-only
// afterwards, so it can be shared by any number of goroutines.
type DerivedParameters struct {
	opts Opts

	// ReportRange is the requested report range clipped to the reference, or
	// the whole reference if no range was requested.
	ReportRange interval.Range
	// ReportRangeLimit is the maximum report range, [0, refEnd).
	ReportRangeLimit interval.Range
	// Table holds the heterozygous allele-ratio hypotheses.  When het-bias
	// correction is disabled it contains the single ratio 0.5.
	Table *BiasPriorTable

	filter   evidenceFilter
	errModel errorModel
	model    genotypeModel
	vexp     vexpIterator
}

// NewDerivedParameters validates opts and precomputes everything the
// per-site evaluation needs.  refEnd is either the full reference contig
// size, or the end of the acquired reference segment.  All configuration
// problems are reported as errors.Invalid.
func NewDerivedParameters(opts *Opts, refEnd PosType) (*DerivedParameters, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if refEnd <= 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("snv.NewDerivedParameters: reference end must be positive (got %d)", refEnd))
	}
	dp := &DerivedParameters{
		opts:             *opts,
		ReportRangeLimit: interval.Range{Start: 0, End: refEnd},
	}
	if opts.ReportRange.Empty() {
		dp.ReportRange = dp.ReportRangeLimit
	} else {
		dp.ReportRange = opts.ReportRange.Intersect(dp.ReportRangeLimit)
		if dp.ReportRange.Empty() {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("snv.NewDerivedParameters: report range %v does not overlap reference %v", opts.ReportRange, dp.ReportRangeLimit))
		}
	}

	hetBias := 0.0
	if opts.IsHetBias {
		hetBias = opts.HetBias
	}
	var err error
	if dp.Table, err = NewBiasPriorTable(HetBiasRatioInc, hetBias); err != nil {
		return nil, err
	}
	dp.filter = newEvidenceFilter(opts)
	dp.errModel = newErrorModel(opts)
	dp.model = newGenotypeModel(opts, dp.Table)
	dp.vexp = newVexpIterator(opts, dp.Table)
	return dp, nil
}

// Opts returns a copy of the configuration dp was built from.
func (dp *DerivedParameters) Opts() Opts {
	return dp.opts
}

// Genotypes returns the genotype hypotheses, in increasing alt-count order.
// The returned slice must not be modified.
func (dp *DerivedParameters) Genotypes() []GenotypeHypothesis {
	return dp.model.hyps
}

// iterating returns true iff the allele-ratio iterator applies.
func (dp *DerivedParameters) iterating() bool {
	return (dp.vexp.maxIter > 0) && (dp.model.diploidHet >= 0) && (dp.Table.Len() > 1)
}
