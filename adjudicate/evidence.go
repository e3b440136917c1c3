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
	"sort"
	"strconv"
	"strings"

	"github.com/bio-graphite/graphite/allele"
	"github.com/bio-graphite/graphite/variant"
)

// EvidenceAggregator turns a Variant's allele evidence banks into the
// augmented VCF FORMAT fields spec.md §4.5 describes: a total depth and a
// DP4-style (ref-fwd, ref-rev, alt-fwd, alt-rev per ALT) breakdown for each
// count stratum, plus a final ambiguous-evidence marker.
type EvidenceAggregator struct{}

// strataOrder is every count stratum in the fixed order FORMAT fields are
// emitted in (spec.md §4.5); it covers the full closed enumeration,
// including LowQual and Ambiguous.
var strataOrder = func() []allele.Stratum {
	s := make([]allele.Stratum, allele.NumStrata)
	for i := range s {
		s[i] = allele.Stratum(i)
	}
	return s
}()

// FormatKeys returns the ordered list of FORMAT field keys this aggregator
// appends: DP_<suffix> and DP4_<suffix> per stratum, then SEM.
func (EvidenceAggregator) FormatKeys() []string {
	keys := make([]string, 0, 2*len(strataOrder)+1)
	for _, s := range strataOrder {
		keys = append(keys, "DP_"+s.String(), "DP4_"+s.String())
	}
	return append(keys, "SEM")
}

// Samples returns every sample with recorded evidence on v, across the
// reference allele and every alt.
func (a EvidenceAggregator) Samples(v *variant.Variant) []string {
	seen := make(map[string]struct{})
	for _, s := range v.Ref.Samples() {
		seen[s] = struct{}{}
	}
	for _, alt := range v.Alt {
		for _, s := range alt.Samples() {
			seen[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Format computes sample's FORMAT values for v, in FormatKeys order.
func (a EvidenceAggregator) Format(v *variant.Variant, sample string) []string {
	values := make([]string, 0, 2*len(strataOrder)+1)
	var ambiguousTotal int

	for _, s := range strataOrder {
		refFwd := v.Ref.Count(sample, s, true)
		refRev := v.Ref.Count(sample, s, false)

		dp4 := make([]int, 0, 2+2*len(v.Alt))
		dp4 = append(dp4, refFwd, refRev)
		total := refFwd + refRev
		for _, alt := range v.Alt {
			altFwd := alt.Count(sample, s, true)
			altRev := alt.Count(sample, s, false)
			dp4 = append(dp4, altFwd, altRev)
			total += altFwd + altRev
		}
		if s == allele.Ambiguous {
			ambiguousTotal = total
		}

		values = append(values, strconv.Itoa(total), joinInts(dp4))
	}

	return append(values, strconv.Itoa(ambiguousTotal))
}

// Annotate appends this aggregator's keys onto v.Format and, for every
// sample in v.SampleNames, writes that sample's values (all zero if it has
// no recorded evidence) into the matching v.Samples entry.
func (a EvidenceAggregator) Annotate(v *variant.Variant) {
	keys := a.FormatKeys()
	v.Format = append(v.Format, keys...)

	for i, name := range v.SampleNames {
		if i >= len(v.Samples) {
			break
		}
		values := a.Format(v, name)
		if len(values) != len(keys) {
			panic(fmt.Sprintf("adjudicate: FormatKeys/Format length mismatch: %d keys, %d values", len(keys), len(values)))
		}
		for j, k := range keys {
			v.Samples[i][k] = values[j]
		}
	}
}

func joinInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
