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

package fastaio_test

import (
	"strings"
	"testing"

	"github.com/bio-graphite/graphite/fastaio"
	"github.com/bio-graphite/graphite/region"
)

const testFasta = ">chr1\nACGTACGTACGT\n>chr2\nTTTTGGGG\n"

func TestSource_FetchExactMatch(t *testing.T) {
	src, err := fastaio.NewFromReader(strings.NewReader(testFasta))
	if err != nil {
		t.Fatalf("NewFromReader: %v", err)
	}
	got, err := src.Fetch(region.Region{Chrom: "chr1", Start: 2, End: 6})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if want := "GTAC"; string(got) != want {
		t.Errorf("Fetch = %q, want %q", got, want)
	}
}

func TestSource_FetchResolvesChrPrefixVariants(t *testing.T) {
	src, err := fastaio.NewFromReader(strings.NewReader(testFasta))
	if err != nil {
		t.Fatalf("NewFromReader: %v", err)
	}
	// The FASTA names carry a "chr" prefix ("chr2"); a query without the
	// prefix still resolves to the prefixed sequence.
	got, err := src.Fetch(region.Region{Chrom: "2", Start: 0, End: 4})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if want := "TTTT"; string(got) != want {
		t.Errorf("Fetch = %q, want %q", got, want)
	}
}

func TestSource_FetchUnknownChromErrors(t *testing.T) {
	src, err := fastaio.NewFromReader(strings.NewReader(testFasta))
	if err != nil {
		t.Fatalf("NewFromReader: %v", err)
	}
	if _, err := src.Fetch(region.Region{Chrom: "chrZZ", Start: 0, End: 1}); err == nil {
		t.Error("Fetch on unknown chromosome should error")
	}
}
