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

// Package snv computes single-nucleotide genotype posteriors from per-read
// evidence at a reference position.
//
// Each site's evidence is first run through an ordered set of read filters;
// surviving bases are converted to error probabilities (optionally inflated
// for reads which carry other nearby mismatches) and scored against every
// biallelic genotype hypothesis.  Heterozygous likelihoods can be
// marginalized over a grid of allele ratios around 0.5, and the expected
// ratio can be refined iteratively.  Sites are independent, so Caller.Run
// evaluates them in parallel; filter decisions are tallied per run.
package snv
