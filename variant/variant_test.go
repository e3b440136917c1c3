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

package variant

import (
	"testing"

	"github.com/bio-graphite/graphite/allele"
	"github.com/bio-graphite/graphite/region"
)

func snp(chrom string, pos region.PosType, ref, alt string) *Variant {
	return &Variant{
		Chrom: chrom,
		Pos:   pos,
		Ref:   allele.New(ref),
		Alt:   []*allele.Allele{allele.New(alt)},
	}
}

func TestVariantEndAndSpan(t *testing.T) {
	v := snp("chr1", 105, "A", "T")
	if got, want := v.End(), region.PosType(105); got != want {
		t.Errorf("End() = %d, want %d", got, want)
	}
	want := region.Region{Chrom: "chr1", Start: 104, End: 105}
	if got := v.Span(); got != want {
		t.Errorf("Span() = %+v, want %+v", got, want)
	}

	del := snp("chr1", 105, "ACG", "A")
	if got, want := del.End(), region.PosType(107); got != want {
		t.Errorf("End() for multi-base ref = %d, want %d", got, want)
	}
}

func TestVariantOverlaps(t *testing.T) {
	a := snp("chr1", 105, "A", "T")
	b := snp("chr1", 105, "ACG", "A")
	c := snp("chr1", 200, "A", "T")
	d := snp("chr2", 105, "A", "T")

	if !a.Overlaps(b) {
		t.Error("expected a to overlap b")
	}
	if a.Overlaps(c) {
		t.Error("expected a not to overlap c")
	}
	if a.Overlaps(d) {
		t.Error("expected a not to overlap d on a different chromosome")
	}
}
