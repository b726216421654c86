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
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/varcall/interval"
)

// Mode selects which family of scoring metrics is attached to each
// PosteriorResult.  Germline and somatic metrics are mutually exclusive.
type Mode int

const (
	// ModePlain computes posteriors only.
	ModePlain Mode = iota
	// ModeGermline adds genotype/variant quality scores.
	ModeGermline
	// ModeSomatic adds alt-allele fraction and strand support.
	ModeSomatic
)

var modeNames = [...]string{"plain", "germline", "somatic"}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

// ParseMode converts a mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	for i, name := range modeNames {
		if strings.EqualFold(s, name) {
			return Mode(i), nil
		}
	}
	return ModePlain, errors.E(errors.Invalid, fmt.Sprintf("snv.ParseMode: unrecognized mode %q", s))
}

// Verbosity controls which warnings the caller logs.
type Verbosity int

const (
	// VerbosityDefault logs errors and low-frequency warnings.
	VerbosityDefault Verbosity = iota
	// VerbosityAllWarn also logs per-site warnings, e.g. non-convergence.
	VerbosityAllWarn
)

// Opts is the per-run configuration.  It is never modified after
// NewDerivedParameters() is called.
type Opts struct {
	Mode Mode

	// Ploidy selects the genotype model.  0 means the diploid (theta) model;
	// any positive value selects the N-ploid (SNPProb) model with that many
	// allele copies.
	Ploidy  int
	SNPProb float64
	Theta   float64

	// Dependent-error thresholds, applied to bases whose read has no other
	// mismatch (resp. at least one other mismatch) in its flank window.
	SSDNoMismatch  float64
	SSDOneMismatch float64

	// IsHetBias enables marginalization of heterozygous likelihoods over
	// allele ratios in [0.5 - HetBias, 0.5 + HetBias].
	IsHetBias bool
	HetBias   float64

	MinQScore int
	MinMapQ   int

	IsMaxInputDepth bool
	MaxInputDepth   int

	IsMaxWinMismatch        bool
	MaxWinMismatch          int
	MaxWinMismatchFlankSize int

	IsMinAlignScore bool
	MinAlignScore   int

	IsMaxRefDeletion bool
	MaxRefDeletion   int

	// SubsampleRate is the fraction of read names retained; 1 keeps every
	// read.
	SubsampleRate float64

	IncludeSingleton bool
	IncludeAnomalous bool

	MaxVexpIterations int
	IsMinVexp         bool
	MinVexp           float64

	IsLSNP    bool
	LSNPAlpha float64

	// ReportRange is the requested report range; the empty range means the
	// whole contig.
	ReportRange interval.Range

	Verbosity Verbosity
}

// DefaultOpts contains default option values.
var DefaultOpts = Opts{
	Mode:                    ModePlain,
	Ploidy:                  0,
	Theta:                   0.001,
	MinQScore:               17,
	MinMapQ:                 20,
	MaxWinMismatchFlankSize: 0,
	SubsampleRate:           1,
	LSNPAlpha:               1e-6,
}

// IsDiploid returns true iff the theta-parameterized diploid model is used.
func (o *Opts) IsDiploid() bool {
	return o.Ploidy == 0
}

// NumAlleleCopies returns the number of allele copies per genotype.
func (o *Opts) NumAlleleCopies() int {
	if o.IsDiploid() {
		return 2
	}
	return o.Ploidy
}

// IsDependentEprob returns true iff base error probabilities are adjusted by
// the dependent-error thresholds.
func (o *Opts) IsDependentEprob() bool {
	return o.IsDiploid() && ((o.SSDNoMismatch > 0) || (o.SSDOneMismatch > 0))
}

func invalidOpt(format string, args ...interface{}) error {
	return errors.E(errors.Invalid, "snv: invalid configuration:", fmt.Sprintf(format, args...))
}

// Validate returns an errors.Invalid error describing the first problem found
// in o, or nil.
func (o *Opts) Validate() error {
	switch o.Mode {
	case ModePlain, ModeGermline, ModeSomatic:
	default:
		return invalidOpt("unknown mode %d", int(o.Mode))
	}
	if o.Ploidy < 0 {
		return invalidOpt("ploidy must be positive in N-ploid mode (got %d)", o.Ploidy)
	}
	if o.IsDiploid() {
		if !(o.Theta > 0) || o.Theta*1.5 >= 1 {
			return invalidOpt("theta must be in (0, 2/3) (got %v)", o.Theta)
		}
	} else if !(o.SNPProb > 0) || o.SNPProb >= 1 {
		return invalidOpt("N-ploid SNP probability must be in (0, 1) (got %v)", o.SNPProb)
	}
	if !(o.SSDNoMismatch >= 0) || o.SSDNoMismatch >= 1 {
		return invalidOpt("no-mismatch dependency threshold must be in [0, 1) (got %v)", o.SSDNoMismatch)
	}
	if !(o.SSDOneMismatch >= 0) || o.SSDOneMismatch >= 1 {
		return invalidOpt("one-mismatch dependency threshold must be in [0, 1) (got %v)", o.SSDOneMismatch)
	}
	if o.IsHetBias && (!(o.HetBias >= 0) || o.HetBias > 0.5) {
		return invalidOpt("het-bias must be in [0, 0.5] (got %v)", o.HetBias)
	}
	if o.MinQScore < 0 || o.MinMapQ < 0 {
		return invalidOpt("quality thresholds must be nonnegative")
	}
	if o.IsMaxInputDepth && o.MaxInputDepth < 0 {
		return invalidOpt("max input depth must be nonnegative (got %d)", o.MaxInputDepth)
	}
	if o.IsMaxWinMismatch && (o.MaxWinMismatch < 0 || o.MaxWinMismatchFlankSize < 0) {
		return invalidOpt("windowed mismatch parameters must be nonnegative")
	}
	if o.IsMaxRefDeletion && o.MaxRefDeletion < 0 {
		return invalidOpt("max reference deletion must be nonnegative (got %d)", o.MaxRefDeletion)
	}
	if !(o.SubsampleRate > 0) || o.SubsampleRate > 1 {
		return invalidOpt("subsample rate must be in (0, 1] (got %v)", o.SubsampleRate)
	}
	if o.MaxVexpIterations < 0 {
		return invalidOpt("max vexp iterations must be nonnegative (got %d)", o.MaxVexpIterations)
	}
	if o.IsMinVexp && !(o.MinVexp >= 0) {
		return invalidOpt("min vexp must be nonnegative (got %v)", o.MinVexp)
	}
	if o.IsLSNP && (!(o.LSNPAlpha > 0) || o.LSNPAlpha >= 1) {
		return invalidOpt("lsnp alpha must be in (0, 1) (got %v)", o.LSNPAlpha)
	}
	if o.ReportRange.Start < 0 {
		return invalidOpt("report range start must be nonnegative (got %d)", o.ReportRange.Start)
	}
	return nil
}
