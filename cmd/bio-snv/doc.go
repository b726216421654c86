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
/*
bio-snv computes single-nucleotide genotype posteriors from per-read
evidence.  The input is a TSV file (optionally gzip-compressed) with one row
per (position, read) observation, sorted by position; the output is one TSV
row per position with the most likely genotype and the full posterior.

The evidence filters, error model, and genotype model are configured with
command-line flags.  Any flag can also be set in a YAML file passed with -config,
using the flag name as the key; explicit command-line flags take precedence.

Sample usage:
bio-snv \
    -region chr1:1000001-2000000 \
    -ref-len 248956422 \
    -het-bias 0.4 \
    -out calls.tsv \
    evidence.tsv.gz
*/
package main
