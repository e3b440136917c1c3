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

package vcfio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bio-graphite/graphite/variant"
)

// Sink writes variant.Variant records back out as VCF, implementing the
// write half of spec.md §6's VariantSource/VariantSink pair. It reproduces
// every original column untouched apart from whatever FORMAT keys and
// sample values adjudicate.EvidenceAggregator.Annotate has appended.
type Sink struct {
	w *bufio.Writer
}

// NewSink wraps w and writes headerLines (typically Source.HeaderLines())
// verbatim before any variant.
func NewSink(w io.Writer, headerLines []string) (*Sink, error) {
	s := &Sink{w: bufio.NewWriterSize(w, 64*1024)}
	for _, line := range headerLines {
		if _, err := s.w.WriteString(line + "\n"); err != nil {
			return nil, fmt.Errorf("vcfio: writing header: %w", err)
		}
	}
	return s, nil
}

// Write appends one VCF record for v.
func (s *Sink) Write(v *variant.Variant) error {
	altStrs := make([]string, len(v.Alt))
	for i, a := range v.Alt {
		altStrs[i] = a.Sequence
	}
	alt := orDot(strings.Join(altStrs, ","))

	cols := []string{
		v.Chrom,
		strconv.Itoa(int(v.Pos)),
		orDot(v.ID),
		v.Ref.Sequence,
		alt,
		orDot(v.Qual),
		orDot(v.Filter),
		orDot(v.Info),
	}

	if len(v.Format) > 0 {
		cols = append(cols, strings.Join(v.Format, ":"))
		for _, sample := range v.Samples {
			vals := make([]string, len(v.Format))
			for i, key := range v.Format {
				val, ok := sample[key]
				if !ok {
					val = "."
				}
				vals[i] = val
			}
			cols = append(cols, strings.Join(vals, ":"))
		}
	}

	_, err := s.w.WriteString(strings.Join(cols, "\t") + "\n")
	return err
}

// Flush flushes buffered output to the underlying writer.
func (s *Sink) Flush() error { return s.w.Flush() }

func orDot(s string) string {
	if s == "" {
		return "."
	}
	return s
}
