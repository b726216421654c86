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
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/varcall/interval"
	"github.com/grailbio/varcall/pileup"
	"github.com/grailbio/varcall/pileup/snv"
	"github.com/pkg/errors"
)

var (
	mode              = flag.String("mode", snv.DefaultOpts.Mode.String(), "Scoring mode; 'plain', 'germline', or 'somatic'")
	ploidy            = flag.Int("ploidy", snv.DefaultOpts.Ploidy, "0 selects the diploid theta model; a positive value selects the N-ploid model with that many allele copies")
	snpProb           = flag.Float64("snp-prob", snv.DefaultOpts.SNPProb, "Prior probability of a non-reference genotype (N-ploid model only)")
	theta             = flag.Float64("theta", snv.DefaultOpts.Theta, "Heterozygosity prior (diploid model only)")
	ssdNoMismatch     = flag.Float64("ssd-no-mismatch", snv.DefaultOpts.SSDNoMismatch, "Dependent-error threshold for bases with no other mismatch in their window, in [0, 1)")
	ssdOneMismatch    = flag.Float64("ssd-one-mismatch", snv.DefaultOpts.SSDOneMismatch, "Dependent-error threshold for bases with another mismatch in their window, in [0, 1)")
	hetBias           = flag.Float64("het-bias", -1, "Marginalize heterozygous likelihoods over allele ratios within this distance of 0.5; negative = disabled")
	minQScore         = flag.Int("min-qscore", snv.DefaultOpts.MinQScore, "Bases with quality below this level are skipped")
	minMapQ           = flag.Int("min-mapq", snv.DefaultOpts.MinMapQ, "Reads with MAPQ below this level are skipped")
	maxInputDepth     = flag.Int("max-input-depth", -1, "Maximum number of used reads per position; negative = unlimited")
	maxWinMismatch    = flag.Int("max-win-mismatch", -1, "Reads with more mismatches than this in the window around the position are skipped; negative = disabled")
	winMismatchFlank  = flag.Int("win-mismatch-flank", snv.DefaultOpts.MaxWinMismatchFlankSize, "Half-width of the mismatch window; 0 = whole read for the dependent-error model")
	minAlignScore     = flag.Int("min-align-score", -1, "Reads with an AS below this level are skipped; negative = disabled")
	maxRefDeletion    = flag.Int("max-ref-deletion", -1, "Reads with a reference deletion longer than this are skipped; negative = disabled")
	subsampleRate     = flag.Float64("subsample-rate", snv.DefaultOpts.SubsampleRate, "Fraction of read names to keep")
	includeSingleton  = flag.Bool("include-singleton", snv.DefaultOpts.IncludeSingleton, "Use reads whose mate is unmapped")
	includeAnomalous  = flag.Bool("include-anomalous", snv.DefaultOpts.IncludeAnomalous, "Use read-pairs which are not properly paired")
	maxVexpIterations = flag.Int("max-vexp-iterations", snv.DefaultOpts.MaxVexpIterations, "Maximum number of allele-ratio refinement passes; 0 = disabled")
	minVexp           = flag.Float64("min-vexp", -1, "Stop refining the allele ratio once it moves less than this; negative = always run max-vexp-iterations passes")
	lsnp              = flag.Bool("lsnp", snv.DefaultOpts.IsLSNP, "Run the binomial screen for non-reference alleles")
	lsnpAlpha         = flag.Float64("lsnp-alpha", snv.DefaultOpts.LSNPAlpha, "Significance level for -lsnp")
	verbosity         = flag.String("verbosity", "default", "'default' or 'allwarn'")

	region      = flag.String("region", "", "Only report positions in the specified region. Format as <contig ID>:<1-based first pos>-<last pos>, <contig ID>:<1-based pos>, or just <contig ID>")
	refLen      = flag.Int("ref-len", 0, "Length of the reference contig; 0 = look it up in -fai, or unbounded if -fai is unset")
	faiPath     = flag.String("fai", "", "FASTA index (.fai) to look up the -region contig's length in")
	cols        = flag.String("cols", "", "Output TSV column sets. POS/REF/ALT/DEPTH/GT/GT_PROB are always present. Supported optional sets are 'probs', 'flags', 'counts', 'metrics', and 'lsnp'; default is \"probs,flags,metrics,lsnp\"")
	outPath     = flag.String("out", "", "Output path; empty = stdout. A .gz suffix selects gzip compression")
	countsPath  = flag.String("counts", "", "Read-count summary path; empty = stderr")
	batchSize   = flag.Int("batch-size", 1<<16, "Number of positions to evaluate per batch")
	parallelism = flag.Int("parallelism", 0, "Maximum number of simultaneous evaluation jobs; 0 = runtime.NumCPU()")
	configPath  = flag.String("config", "", "Optional YAML file with flag values, keyed by flag name")
)

func bioSNVUsage() {
	fmt.Printf("Usage: %s [OPTIONS] evidence.tsv[.gz]\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

// optsFromFlags converts the flag values to snv.Opts.  Optional thresholds
// use negative flag values for "disabled".
func optsFromFlags() (snv.Opts, error) {
	opts := snv.DefaultOpts
	var err error
	if opts.Mode, err = snv.ParseMode(*mode); err != nil {
		return opts, err
	}
	switch strings.ToLower(*verbosity) {
	case "default":
		opts.Verbosity = snv.VerbosityDefault
	case "allwarn":
		opts.Verbosity = snv.VerbosityAllWarn
	default:
		return opts, errors.Errorf("unrecognized -verbosity value %q", *verbosity)
	}
	opts.Ploidy = *ploidy
	opts.SNPProb = *snpProb
	opts.Theta = *theta
	opts.SSDNoMismatch = *ssdNoMismatch
	opts.SSDOneMismatch = *ssdOneMismatch
	opts.IsHetBias = *hetBias >= 0
	opts.HetBias = *hetBias
	opts.MinQScore = *minQScore
	opts.MinMapQ = *minMapQ
	opts.IsMaxInputDepth = *maxInputDepth >= 0
	opts.MaxInputDepth = *maxInputDepth
	opts.IsMaxWinMismatch = *maxWinMismatch >= 0
	opts.MaxWinMismatch = *maxWinMismatch
	opts.MaxWinMismatchFlankSize = *winMismatchFlank
	opts.IsMinAlignScore = *minAlignScore >= 0
	opts.MinAlignScore = *minAlignScore
	opts.IsMaxRefDeletion = *maxRefDeletion >= 0
	opts.MaxRefDeletion = *maxRefDeletion
	opts.SubsampleRate = *subsampleRate
	opts.IncludeSingleton = *includeSingleton
	opts.IncludeAnomalous = *includeAnomalous
	opts.MaxVexpIterations = *maxVexpIterations
	opts.IsMinVexp = *minVexp >= 0
	opts.MinVexp = *minVexp
	opts.IsLSNP = *lsnp
	opts.LSNPAlpha = *lsnpAlpha
	return opts, nil
}

// resolveRegion returns the requested report range and the reference end.
func resolveRegion(ctx context.Context) (reportRange interval.Range, refEnd snv.PosType, err error) {
	refEnd = pileup.PosTypeMax - 1
	var entry interval.Entry
	if *region != "" {
		if entry, err = interval.ParseRegionString(*region); err != nil {
			return
		}
		reportRange = entry.Range()
	}
	switch {
	case *refLen > 0:
		refEnd = snv.PosType(*refLen)
	case *faiPath != "":
		if entry.RefName == "" {
			err = errors.New("-fai requires -region")
			return
		}
		var lengths map[string]int64
		if lengths, err = readFaiLengths(ctx, *faiPath); err != nil {
			return
		}
		n, ok := lengths[entry.RefName]
		if !ok {
			err = errors.Errorf("contig %s not found in %s", entry.RefName, *faiPath)
			return
		}
		refEnd = snv.PosType(n)
	}
	return
}

func run(ctx context.Context, evidencePath string) (err error) {
	opts, err := optsFromFlags()
	if err != nil {
		return err
	}
	if *batchSize <= 0 {
		return errors.Errorf("-batch-size must be positive (got %d)", *batchSize)
	}
	var refEnd snv.PosType
	if opts.ReportRange, refEnd, err = resolveRegion(ctx); err != nil {
		return errors.Wrap(err, "resolving -region")
	}
	colBitset, err := pileup.ParseCols(*cols, colNameMap, colBitsetDefault)
	if err != nil {
		return err
	}
	caller, err := snv.NewCaller(&opts, refEnd)
	if err != nil {
		return err
	}
	log.Printf("bio-snv: report range %v, %d allele-ratio hypotheses", caller.Params().ReportRange, caller.Params().Table.Len())

	in, err := openEvidence(ctx, evidencePath)
	if err != nil {
		return err
	}
	defer in.close(ctx, &err)
	out, err := createOutput(ctx, *outPath)
	if err != nil {
		return err
	}
	defer out.close(ctx, &err)

	cw := newCallWriter(out.w, colBitset, &opts)
	if err = cw.writeHeader(); err != nil {
		return errors.Wrap(err, "writing header")
	}
	var (
		piles   []snv.Pile
		results []snv.PosteriorResult
		done    bool
	)
	nJob := *parallelism
	if nJob <= 0 {
		nJob = runtime.NumCPU()
	}
	nSite := 0
	for !done {
		if piles, done, err = in.pr.readBatch(piles[:0], *batchSize); err != nil {
			return err
		}
		if results, err = caller.Run(ctx, piles, nJob); err != nil {
			return err
		}
		for i := range results {
			if results[i].Skipped {
				continue
			}
			if err = cw.write(&results[i]); err != nil {
				return errors.Wrapf(err, "writing position %d", results[i].Site.Pos+1)
			}
			nSite++
		}
	}
	if err = cw.flush(); err != nil {
		return errors.Wrap(err, "flushing output")
	}
	log.Printf("bio-snv: %d positions reported", nSite)
	summary := caller.Summarize()
	return writeCounts(ctx, *countsPath, &summary)
}

// writeCounts writes the read-count summary to path, or stderr if path is
// empty.
func writeCounts(ctx context.Context, path string, counts *snv.ReadCounts) (err error) {
	if path == "" {
		return counts.Report(os.Stderr)
	}
	var dst file.File
	if dst, err = file.Create(ctx, path); err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer file.CloseAndReport(ctx, dst, &err)
	return counts.Report(dst.Writer(ctx))
}

func main() {
	flag.Usage = bioSNVUsage
	shutdown := grail.Init()
	defer shutdown()

	if err := applyConfig(*configPath); err != nil {
		log.Fatalf("%v", err)
	}
	nPositionalArgs := flag.NArg()
	if nPositionalArgs != 1 {
		log.Fatalf("Expected exactly one positional argument (evidence path), got %d; please check flag syntax: '%s'", nPositionalArgs, strings.Join(flag.Args(), " "))
	}
	ctx := vcontext.Background()
	if err := run(ctx, flag.Arg(0)); err != nil {
		log.Fatalf("%v", err)
	}
	log.Debug.Printf("exiting")
}
