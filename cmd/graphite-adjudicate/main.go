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
graphite-adjudicate realigns the reads overlapping each variant in a VCF
against a graph built from its local cluster of variants, classifies each
read's support by alignment stratum, and writes the augmented VCF back out
(spec.md §6).
*/
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"

	"github.com/bio-graphite/graphite/adjudicate"
	"github.com/bio-graphite/graphite/align"
	"github.com/bio-graphite/graphite/bamio"
	"github.com/bio-graphite/graphite/fastaio"
	"github.com/bio-graphite/graphite/region"
	"github.com/bio-graphite/graphite/variant"
	"github.com/bio-graphite/graphite/vcfio"
)

// exitCode mirrors spec.md §6's exit code table; run communicates failures
// by returning one of these instead of calling os.Exit directly, so its
// deferred cleanup (flushing partial output) runs before main exits.
type exitCode int

const (
	exitSuccess  exitCode = 0
	exitOther    exitCode = 1
	exitBadCLI   exitCode = 2
	exitIOError  exitCode = 3
	exitMalformed exitCode = 4
)

type vcfPaths []string

func (v *vcfPaths) String() string { return strings.Join(*v, ",") }
func (v *vcfPaths) Set(s string) error {
	*v = append(*v, s)
	return nil
}

var (
	fastaPath     = flag.String("fasta", "", "Indexed FASTA reference path (required)")
	vcfInPaths    vcfPaths
	bamPath       = flag.String("bam", "", "Indexed BAM path (required)")
	outputPath    = flag.String("output", "", "Output VCF path (required)")
	regionStr     = flag.String("region", "", "Restrict processing to chr[:start-end], 1-based inclusive")
	threads       = flag.Int("threads", 0, "Worker count; 0 = hardware concurrency")
	matchScore    = flag.Int("match", align.DefaultScoring.Match, "Match score")
	mismatchScore = flag.Int("mismatch", align.DefaultScoring.Mismatch, "Mismatch penalty")
	gapOpen       = flag.Int("gap-open", align.DefaultScoring.GapOpen, "Gap open penalty")
	gapExtend     = flag.Int("gap-extend", align.DefaultScoring.GapExtend, "Gap extend penalty")
	percent       = flag.Int("percent", 70, "Minimum total_score_pct (accepted but not applied; the LowQual cutoff is fixed at 70)")
	includeDups   = flag.Bool("include-duplicates", false, "Count reads flagged as PCR/optical duplicates")
	supportPath   = flag.String("save-supporting-reads", "", "Optional path to write a per-read supporting-allele TSV")
)

func init() {
	flag.Var(&vcfInPaths, "vcf", "Input VCF path (repeatable; required)")
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s --fasta PATH --vcf PATH [--vcf PATH...] --bam PATH --output PATH [OPTIONS]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	code := run()
	if code != exitSuccess {
		os.Exit(int(code))
	}
}

func run() exitCode {
	flag.Parse()
	if err := validateFlags(); err != nil {
		log.Error.Printf("%v", err)
		usage()
		return exitBadCLI
	}

	ref, err := fastaio.Open(*fastaPath)
	if err != nil {
		log.Error.Printf("%v", err)
		return exitIOError
	}

	bam, err := bamio.Open(*bamPath, "")
	if err != nil {
		log.Error.Printf("%v", err)
		return exitIOError
	}
	defer bam.Close()

	src, err := openMergedVCF(vcfInPaths)
	if err != nil {
		log.Error.Printf("%v", err)
		if _, malformed := err.(headerParseError); malformed {
			return exitMalformed
		}
		return exitIOError
	}

	out, err := os.Create(*outputPath)
	if err != nil {
		log.Error.Printf("%v", err)
		return exitIOError
	}
	defer out.Close()

	opts := adjudicate.DefaultOpts()
	if *threads > 0 {
		opts.Parallelism = *threads
	}
	opts.Scoring = align.Scoring{
		Match:     *matchScore,
		Mismatch:  *mismatchScore,
		GapOpen:   *gapOpen,
		GapExtend: *gapExtend,
		Band:      align.DefaultScoring.Band,
		Overflow:  align.DefaultScoring.Overflow,
	}
	opts.IncludeDuplicates = *includeDups

	var supportWriter *vcfio.SupportingReadWriter
	if *supportPath != "" {
		sf, err := os.Create(*supportPath)
		if err != nil {
			log.Error.Printf("%v", err)
			return exitIOError
		}
		defer sf.Close()
		supportWriter, err = vcfio.NewSupportingReadWriter(sf)
		if err != nil {
			log.Error.Printf("%v", err)
			return exitIOError
		}
		defer supportWriter.Flush()
		opts.Support = supportWriter
	}

	gm := adjudicate.NewGraphManager(opts, bam, ref)
	aggregator := adjudicate.EvidenceAggregator{}

	var filter *region.Region
	if *regionStr != "" {
		r, err := region.ParseString(*regionStr)
		if err != nil {
			log.Error.Printf("%v", err)
			return exitBadCLI
		}
		filter = &r
	}

	code, err := processAll(src, gm, aggregator, out, filter, *percent)
	if err != nil {
		log.Error.Printf("%v", err)
		return code
	}
	return exitSuccess
}

func validateFlags() error {
	var missing []string
	if *fastaPath == "" {
		missing = append(missing, "--fasta")
	}
	if len(vcfInPaths) == 0 {
		missing = append(missing, "--vcf")
	}
	if *bamPath == "" {
		missing = append(missing, "--bam")
	}
	if *outputPath == "" {
		missing = append(missing, "--output")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required flag(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

// openMergedVCF concatenates multiple --vcf inputs into a single
// variant.Source. Per spec.md §6 --vcf is repeatable; inputs are expected
// to already be sorted and non-overlapping in chromosome coverage (the
// common sharded-VCF case), so they're read one file to completion before
// moving to the next rather than merged by position.
func openMergedVCF(paths []string) (*multiVCFSource, error) {
	var sources []*vcfio.Source
	var files []*os.File
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, errors.E(err, "opening", p)
		}
		src, err := vcfio.NewSource(f)
		if err != nil {
			return nil, headerParseError{path: p, err: err}
		}
		sources = append(sources, src)
		files = append(files, f)
	}
	return &multiVCFSource{sources: sources, files: files}, nil
}

// headerParseError distinguishes a malformed VCF header (spec.md §7
// ParseError, exit code 4) from an I/O failure opening the file (exit
// code 3).
type headerParseError struct {
	path string
	err  error
}

func (e headerParseError) Error() string {
	return fmt.Sprintf("parsing header of %s: %v", e.path, e.err)
}

// multiVCFSource chains multiple vcfio.Source readers into a single
// variant.Source, implementing Next by draining each file in turn.
type multiVCFSource struct {
	sources []*vcfio.Source
	files   []*os.File
	idx     int
}

func (m *multiVCFSource) Next() (*variant.Variant, error) {
	for m.idx < len(m.sources) {
		v, err := m.sources[m.idx].Next()
		if err == nil {
			return v, nil
		}
		if err != io.EOF {
			return nil, err
		}
		m.idx++
	}
	return nil, io.EOF
}

func (m *multiVCFSource) Close() {
	for _, f := range m.files {
		f.Close()
	}
}

func processAll(src *multiVCFSource, gm *adjudicate.GraphManager, aggregator adjudicate.EvidenceAggregator, out io.Writer, filter *region.Region, minPercent int) (exitCode, error) {
	defer src.Close()

	sink, err := vcfio.NewSink(out, headerWithFormatKeys(src.sources[0].HeaderLines(), aggregator.FormatKeys()))
	if err != nil {
		return exitIOError, err
	}

	clusterer := variant.NewClusterer(src)
	warnings := 0
	for {
		cluster, err := clusterer.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			warnings++
			log.Error.Printf("skipping malformed record: %v", err)
			continue
		}
		if filter != nil && !filter.Overlaps(cluster.Span) {
			continue
		}
		if err := gm.ProcessCluster(cluster); err != nil {
			log.Error.Printf("cluster at %v: %v", cluster.Span, err)
			continue
		}
		for _, v := range cluster.Variants {
			aggregator.Annotate(v)
			if err := sink.Write(v); err != nil {
				return exitIOError, err
			}
		}
	}
	if err := sink.Flush(); err != nil {
		return exitIOError, err
	}
	if warnings > 0 {
		log.Printf("completed with %d skipped record(s)", warnings)
	}
	return exitSuccess, nil
}

// headerWithFormatKeys appends a ##FORMAT line for each of aggregator's new
// keys ahead of the #CHROM column line, so the augmented output declares
// every field it writes (spec.md §6 "augmented per-sample fields").
func headerWithFormatKeys(lines []string, keys []string) []string {
	out := make([]string, 0, len(lines)+len(keys))
	inserted := false
	for _, l := range lines {
		if !inserted && strings.HasPrefix(l, "#CHROM") {
			for _, k := range keys {
				out = append(out, fmt.Sprintf(`##FORMAT=<ID=%s,Number=.,Type=String,Description="graphite-adjudicate evidence">`, k))
			}
			inserted = true
		}
		out = append(out, l)
	}
	return out
}
