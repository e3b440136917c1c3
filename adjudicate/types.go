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

// Package adjudicate wires together graph construction, alignment and
// evidence recording into the per-cluster pipeline described in spec.md
// §4.4-4.5: GraphManager builds a variant cluster's graph pair, realigns
// every overlapping read against both, and records each read's vote into
// the alleles' evidence banks; EvidenceAggregator turns those banks into
// VCF FORMAT fields.
package adjudicate

import (
	"github.com/bio-graphite/graphite/allele"
	"github.com/bio-graphite/graphite/region"
)

// Read is the subset of an aligned sequencing read the adjudication
// pipeline needs, independent of how it was decoded (spec.md §6 Inputs).
// The concrete source (bamio.Source) is an AlignmentSource implementation
// outside this package's core.
type Read struct {
	ID              string
	MateOrdinal     int8
	SampleID        string
	Sequence        []byte
	BaseQualities   []byte
	Position        region.PosType
	Length          int
	MAPQ            int
	IsReverseStrand bool
	IsDuplicate     bool
	CIGAR           string
	MatePosition    region.PosType
	TemplateLength  int
	Flag            uint16
}

// AlignmentSource fetches every read overlapping r. Implementations may
// return the same read twice if it is returned by more than one underlying
// shard; GraphManager's per-graph seen-set absorbs that.
type AlignmentSource interface {
	Fetch(r region.Region) ([]Read, error)
}

// SupportingReadRecorder receives one row per (node vote, overlapping
// allele) pair of each read GraphManager classifies, for the optional supporting-read TSV output
// (spec.md §6 "--save-supporting-reads"). vcfio.SupportingReadWriter is
// the concrete implementation; it lives outside this package to avoid a
// vcfio<->adjudicate import cycle.
type SupportingReadRecorder interface {
	Record(chrom string, pos region.PosType, alleleSeq, sampleID string, stratum allele.Stratum, forwardStrand bool, readID string, mate int8)
}
