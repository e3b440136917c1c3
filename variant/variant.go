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

// Package variant holds the Variant type and the VariantClusterer that
// groups overlapping variants into single graph-building jobs.
package variant

import (
	"github.com/bio-graphite/graphite/allele"
	"github.com/bio-graphite/graphite/region"
)

// Variant is a position + reference allele + alternate alleles, plus enough
// of the original record to let vcfio round-trip unrecognized columns.
type Variant struct {
	Chrom string
	// Pos is the 1-based position of the first reference base, matching VCF
	// convention.
	Pos region.PosType
	Ref *allele.Allele
	Alt []*allele.Allele

	// StructuralVariant marks a variant whose ALT encodes a structural event
	// (<DEL>, <INS>, breakend notation, ...) rather than a literal sequence.
	// Structural variants are never clustered with anything and never get a
	// bubble graph built for them (spec.md §1 Non-goals); they pass through
	// to output unadjudicated.
	StructuralVariant bool

	// ID, Qual, Filter, Info, Format and Samples preserve the original VCF
	// columns so vcfio can write them back out unchanged apart from the
	// appended adjudication FORMAT fields. SampleNames[i] is the name of
	// the sample whose per-FORMAT-key values live in Samples[i]; both
	// slices come from the VCF header's column order and share an index.
	ID          string
	Qual        string
	Filter      string
	Info        string
	Format      []string
	SampleNames []string
	Samples     []map[string]string
}

// End returns the half-open 0-based end of the variant's reference span:
// Pos - 1 + len(ref), since Pos is 1-based (spec.md §3 Variant invariant).
func (v *Variant) End() region.PosType {
	return v.Pos + region.PosType(len(v.Ref.Sequence)) - 1
}

// Span returns the variant's reference interval as a 0-based half-open
// region.Region, for overlap testing against other variants, graph spans,
// and read alignments.
func (v *Variant) Span() region.Region {
	start0 := v.Pos - 1
	return region.Region{Chrom: v.Chrom, Start: start0, End: v.End()}
}

// Overlaps reports whether v and o's reference spans intersect on the same
// chromosome (spec.md §3: "Variants are considered to overlap when their
// reference spans on the same chromosome intersect").
func (v *Variant) Overlaps(o *Variant) bool {
	return v.Span().Overlaps(o.Span())
}
