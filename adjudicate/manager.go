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

package adjudicate

import (
	"fmt"
	"runtime"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"

	"github.com/bio-graphite/graphite/align"
	"github.com/bio-graphite/graphite/graph"
	"github.com/bio-graphite/graphite/region"
	"github.com/bio-graphite/graphite/variant"
)

// Opts configures a GraphManager, following the Opts/DefaultOpts shape
// pileup/snp.Opts uses.
type Opts struct {
	// Parallelism is the number of goroutines a single cluster's read set
	// is partitioned across (spec.md §5: "one goroutine pool, sized by
	// --threads, shared across clusters processed in sequence").
	Parallelism int

	// GraphSpacing is the flank, in bases, added on each side of a
	// cluster's variant span before fetching reference sequence
	// (spec.md §4.2.1).
	GraphSpacing region.PosType

	Scoring align.Scoring

	// IncludeDuplicates, when false (the default), skips reads flagged
	// as PCR/optical duplicates entirely (spec.md §6 --include-duplicates).
	IncludeDuplicates bool

	// Support, if non-nil, receives one row per (node vote, overlapping
	// allele) pair of each classified read (spec.md §6
	// --save-supporting-reads).
	Support SupportingReadRecorder
}

// DefaultOpts returns the CLI's default configuration (spec.md §6).
func DefaultOpts() Opts {
	return Opts{
		Parallelism:       runtime.NumCPU(),
		GraphSpacing:      500,
		Scoring:           align.DefaultScoring,
		IncludeDuplicates: false,
	}
}

// GraphManager builds each variant cluster's graph pair and realigns its
// overlapping reads, recording evidence into the graphs' alleles.
type GraphManager struct {
	Opts  Opts
	Reads AlignmentSource
	Ref   graph.ReferenceSource
}

// NewGraphManager constructs a GraphManager over reads and ref.
func NewGraphManager(opts Opts, reads AlignmentSource, ref graph.ReferenceSource) *GraphManager {
	return &GraphManager{Opts: opts, Reads: reads, Ref: ref}
}

// ProcessCluster builds cluster's graph pair, fetches overlapping reads and
// adjudicates each one against it. A singleton structural-variant cluster
// is passed through untouched: the bubble-graph topology this package
// builds can't represent a structural event (spec.md §1 Non-goals), so
// there is nothing to align against.
func (gm *GraphManager) ProcessCluster(cluster *variant.Cluster) error {
	if len(cluster.Variants) == 1 && cluster.Variants[0].StructuralVariant {
		return nil
	}

	full, err := graph.Build(cluster.Variants, gm.Ref, gm.Opts.GraphSpacing)
	if err != nil {
		return fmt.Errorf("adjudicate: building graph for cluster at %s: %w", cluster.Span, err)
	}
	refOnly, err := graph.BuildReferenceOnly(cluster.Variants, gm.Ref, gm.Opts.GraphSpacing)
	if err != nil {
		return fmt.Errorf("adjudicate: building reference-only graph for cluster at %s: %w", cluster.Span, err)
	}

	reads, err := gm.Reads.Fetch(full.Span)
	if err != nil {
		return fmt.Errorf("adjudicate: fetching reads for %s: %w", full.Span, err)
	}
	if len(reads) == 0 {
		return nil
	}

	parallelism := gm.Opts.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	if parallelism > len(reads) {
		parallelism = len(reads)
	}

	aligner := align.NewAligner(gm.Opts.Scoring)
	nReads := len(reads)

	return traverse.Each(parallelism, func(workerIdx int) error {
		start := (workerIdx * nReads) / parallelism
		end := ((workerIdx + 1) * nReads) / parallelism
		for _, r := range reads[start:end] {
			if r.IsDuplicate && !gm.Opts.IncludeDuplicates {
				continue
			}
			if full.MarkSeen(r.ID, r.MateOrdinal) {
				continue
			}
			if err := gm.adjudicateRead(aligner, full, refOnly, r); err != nil {
				log.Printf("adjudicate: read %s: %v", r.ID, err)
			}
		}
		return nil
	})
}

// adjudicateRead aligns r against both graphs, classifies every node the
// full-graph traceback touches, and records a vote against each of that
// node's overlapping alleles.
func (gm *GraphManager) adjudicateRead(a *align.Aligner, full, refOnly *graph.Graph, r Read) error {
	fullTB, err := a.AlignRead(full, r.Sequence, r.BaseQualities)
	if err != nil {
		return fmt.Errorf("aligning against full graph: %w", err)
	}
	refTB, err := a.AlignRead(refOnly, r.Sequence, r.BaseQualities)
	if err != nil {
		return fmt.Errorf("aligning against reference-only graph: %w", err)
	}

	votes := align.Classify(fullTB, refTB)
	forward := !r.IsReverseStrand
	for _, vote := range votes {
		for _, al := range vote.Node.OverlappingAlleles {
			al.Record(r.SampleID, vote.Stratum, forward, r.ID, r.MateOrdinal)
			if gm.Opts.Support != nil {
				gm.Opts.Support.Record(full.Span.Chrom, vote.Node.Position, al.Sequence, r.SampleID, vote.Stratum, forward, r.ID, r.MateOrdinal)
			}
		}
	}
	return nil
}
