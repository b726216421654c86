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
)

// maxGenotypeQual caps phred-scaled genotype qualities.
const maxGenotypeQual = 99

// maxVariantQual caps phred-scaled variant qualities.
const maxVariantQual = 999

// GermlineMetrics are attached to results in ModeGermline.
type GermlineMetrics struct {
	// GQ is the phred-scaled probability that the best genotype is wrong.
	GQ int
	// Qual is the phred-scaled probability that the site is hom-ref.
	Qual float64
}

// SomaticMetrics are attached to results in ModeSomatic.
type SomaticMetrics struct {
	AltFraction float64
	// AltFwd and AltRev count alt-supporting bases by the strand of their
	// read-pair.  Bases whose pair strand is undefined count toward neither,
	// but still count toward AltFraction.
	AltFwd int
	AltRev int
}

func phred(p, maxQual float64) float64 {
	if p <= 0 {
		return maxQual
	}
	q := -10 * math.Log10(p)
	if q > maxQual {
		return maxQual
	}
	if q < 0 {
		return 0
	}
	return q
}

// attachMetrics fills in the mode-specific part of res.
func attachMetrics(mode Mode, res *PosteriorResult, used []usedBase) {
	switch mode {
	case ModePlain:
	case ModeGermline:
		res.Germline = &GermlineMetrics{
			GQ:   int(math.Round(phred(1-res.BestProb, maxGenotypeQual))),
			Qual: phred(res.Posteriors[0], maxVariantQual),
		}
	case ModeSomatic:
		m := &SomaticMetrics{}
		nAlt := 0
		for _, ub := range used {
			if ub.base != res.AltBase {
				continue
			}
			nAlt++
			switch ub.strand {
			case pileup.StrandFwd:
				m.AltFwd++
			case pileup.StrandRev:
				m.AltRev++
			}
		}
		if len(used) != 0 {
			m.AltFraction = float64(nAlt) / float64(len(used))
		}
		res.Somatic = m
	default:
		panic(mode)
	}
}
