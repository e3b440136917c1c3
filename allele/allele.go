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

// Package allele holds the immutable reference/alternate sequence type and
// its per-sample, per-stratum, per-strand read-evidence counter bank. The
// evidence bank is the one piece of state mutated concurrently by the
// aligner worker pool (adjudicate.GraphManager); graph nodes and alleles
// themselves are read-only once built, as described in graph.Graph.
package allele

import "github.com/bio-graphite/graphite/allele/evidence"

// Stratum is a discrete quality bucket a read's alignment percent-score
// falls into. Order is significant: strata are compared by rank, and a read
// is assigned to the highest stratum its score qualifies for.
type Stratum int

const (
	Ninety5Percent Stratum = iota
	Ninety
	Eighty
	Seventy
	LowQual
	Ambiguous

	numStrata
)

// Threshold is the minimum total_score_pct a read needs to qualify for s.
// LowQual and Ambiguous are not threshold-selected; they're assigned
// directly by the classification rules in package align.
var Threshold = [numStrata]int{
	Ninety5Percent: 95,
	Ninety:         90,
	Eighty:         80,
	Seventy:        70,
}

// Suffix is the FORMAT-field suffix used by adjudicate.EvidenceAggregator
// (adjudicate/evidence.go), in the
// order given by spec.md §4.5.
var Suffix = [numStrata]string{
	Ninety5Percent: "NFP",
	Ninety:         "NP",
	Eighty:         "EP",
	Seventy:        "SP",
	LowQual:        "LP",
	Ambiguous:      "AP",
}

func (s Stratum) String() string {
	if s < 0 || int(s) >= len(Suffix) {
		return "Unknown"
	}
	return Suffix[s]
}

// ClassifyByPercent returns the highest stratum whose threshold is <= pct,
// or Seventy when pct is below every threshold. Callers needing LowQual/Ambiguous handle those cases before calling this.
func ClassifyByPercent(pct int) Stratum {
	for s := Ninety5Percent; s <= Seventy; s++ {
		if pct >= Threshold[s] {
			return s
		}
	}
	return Seventy
}

// NumStrata is the number of strata in the closed enumeration.
const NumStrata = int(numStrata)

// Allele is an immutable reference-or-alternate nucleotide string, carrying
// a shared evidence bank keyed by (sample, stratum, forward-strand).
// Sequence is fixed at construction; only the bank grows.
type Allele struct {
	Sequence string
	bank     *evidence.Bank
}

// New creates an Allele over seq. seq must be non-empty.
func New(seq string) *Allele {
	if seq == "" {
		panic("allele.New: empty sequence")
	}
	return &Allele{Sequence: seq, bank: evidence.NewBank()}
}

// Record inserts (readID, mate) into the (sample, stratum, forward) bucket.
// It is safe to call concurrently from any number of goroutines; insertion
// of an already-present key is a no-op (idempotent, set semantics).
func (a *Allele) Record(sample string, stratum Stratum, forwardStrand bool, readID string, mate int8) {
	a.bank.Insert(sample, int(stratum), forwardStrand, evidence.ReadKey{ReadID: readID, Mate: mate})
}

// Count returns the number of distinct reads recorded for
// (sample, stratum, forwardStrand).
func (a *Allele) Count(sample string, stratum Stratum, forwardStrand bool) int {
	return a.bank.Count(sample, int(stratum), forwardStrand)
}

// Samples returns every sample name with at least one recorded read,
// across all strata and strands.
func (a *Allele) Samples() []string {
	return a.bank.Samples()
}
