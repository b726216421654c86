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

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/varcall/pileup"
	"github.com/willf/bitset"
)

// PosType is the integer type used to represent genomic positions.
type PosType = pileup.PosType

// ReadEvidence is one read's observation at one reference position.
type ReadEvidence struct {
	// Name is the read (or read-pair) name; it only matters for subsampling.
	Name string
	// Base is the observed base, in pileup.BaseA..pileup.BaseX encoding.
	Base byte
	Qual byte
	MapQ byte
	// Flags are the read's SAM flags.
	Flags sam.Flags
	// SameRefMate is true iff the mate maps to the same contig.
	SameRefMate bool
	// PosInRead is the 0-based read offset aligned to this position, or -1 if
	// the read is mapped but has no aligned base here.
	PosInRead int
	// Mismatches has bit i set iff read offset i mismatches the reference.  A
	// nil mask means no mismatches.
	Mismatches *bitset.BitSet
	// AlignScore is only consulted when HasAlignScore is set.
	AlignScore    int
	HasAlignScore bool
	// MaxRefDeletion is the length of the read's largest reference deletion.
	MaxRefDeletion int
	// Unanchored is set by the alignment layer for reads whose placement is
	// not supported by their own alignment.
	Unanchored bool
}

// Strand returns the strand the evidence's read-pair is aligned to.
func (ev *ReadEvidence) Strand() pileup.StrandType {
	return pileup.GetStrand(ev.Flags, ev.SameRefMate)
}

// Site identifies one reference position.
type Site struct {
	Pos PosType
	// RefBase is the reference base, in pileup.BaseA..pileup.BaseX encoding.
	RefBase byte
}

// Pile is the evidence collected at one site.
type Pile struct {
	Site     Site
	Evidence []ReadEvidence
}

// FilterDecision is the outcome of running one ReadEvidence through the
// evidence filter.
type FilterDecision uint8

const (
	// DecisionUsed means the evidence contributes to the likelihoods.
	DecisionUsed FilterDecision = iota
	DecisionSubsample
	DecisionPrimary
	DecisionDuplicate
	DecisionUnmapped
	DecisionSecondary
	DecisionSupplementary
	DecisionUnanchored
	DecisionLargeRefDeletion
	// DecisionMismatchDensity is the sliding-window mismatch filter; it is
	// tallied separately from large reference deletions.
	DecisionMismatchDensity
	DecisionAlignScore
	// DecisionFloating means the read is mapped but has no aligned base at the
	// position, typically because the position falls inside an insertion.
	DecisionFloating
	DecisionMaxDepth

	nDecision
)

var decisionNames = [nDecision]string{
	"used",
	"subsample_filter",
	"primary_filter",
	"duplicate",
	"unmapped",
	"secondary",
	"supplement",
	"unanchored",
	"large_ref_deletion",
	"mismatch_density",
	"align_score_filter",
	"floating",
	"max_depth",
}

func (d FilterDecision) String() string {
	if d >= nDecision {
		return fmt.Sprintf("FilterDecision(%d)", int(d))
	}
	return decisionNames[d]
}
