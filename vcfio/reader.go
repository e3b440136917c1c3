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

// Package vcfio adapts the VCF line grammar mendelics-vcf's vcf package
// parses into the graph pipeline's variant.Source/variant.Sink interfaces:
// unlike that package, a single VCF record with several ALT alleles stays
// one variant.Variant with several alt Alleles, since the graph needs all
// of a record's branches together to build one bubble.
package vcfio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bio-graphite/graphite/allele"
	"github.com/bio-graphite/graphite/region"
	"github.com/bio-graphite/graphite/variant"
)

// Source streams variant.Variant records from a VCF file, implementing
// variant.Source.
type Source struct {
	br          *bufio.Reader
	headerLines []string
	columns     []string
	sampleNames []string
}

// NewSource wraps r, consuming its header block (every line up to and
// including #CHROM...) before returning.
func NewSource(r io.Reader) (*Source, error) {
	s := &Source{br: bufio.NewReaderSize(r, 64*1024)}
	if err := s.readHeader(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Source) readHeader() error {
	for {
		line, err := s.br.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed != "" && strings.HasPrefix(trimmed, "#") {
			s.headerLines = append(s.headerLines, trimmed)
			if strings.HasPrefix(trimmed, "#CHROM") {
				s.columns = strings.Split(trimmed[1:], "\t")
				if len(s.columns) > 9 {
					s.sampleNames = s.columns[9:]
				}
				return nil
			}
		}
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("vcfio: reached end of file without a #CHROM header line")
			}
			return err
		}
	}
}

// SampleNames returns the sample column names from the #CHROM line, in
// file order.
func (s *Source) SampleNames() []string { return s.sampleNames }

// HeaderLines returns every raw header line (meta-information and the
// #CHROM column line), for Sink to reproduce verbatim.
func (s *Source) HeaderLines() []string { return s.headerLines }

// Next returns the next variant, or io.EOF once the file is exhausted,
// implementing variant.Source.
func (s *Source) Next() (*variant.Variant, error) {
	for {
		line, err := s.br.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			if err == io.EOF {
				return nil, io.EOF
			}
			if err != nil {
				return nil, err
			}
			continue
		}
		v, perr := s.parseLine(trimmed)
		if perr != nil {
			return nil, fmt.Errorf("vcfio: %w", perr)
		}
		return v, nil
	}
}

func (s *Source) parseLine(line string) (*variant.Variant, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 8 {
		return nil, fmt.Errorf("line has %d columns, need at least 8: %q", len(fields), line)
	}

	pos, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("invalid POS %q: %w", fields[1], err)
	}

	v := &variant.Variant{
		Chrom:       fields[0],
		Pos:         region.PosType(pos),
		ID:          fields[2],
		Qual:        fields[5],
		Filter:      fields[6],
		Info:        fields[7],
		SampleNames: s.sampleNames,
	}

	if len(fields) > 8 {
		v.Format = strings.Split(fields[8], ":")
		v.Samples = make([]map[string]string, len(fields)-9)
		for i, raw := range fields[9:] {
			v.Samples[i] = parseSample(v.Format, raw)
		}
	}

	ref := strings.ToUpper(fields[3])
	altStrs := strings.Split(strings.ToUpper(fields[4]), ",")
	if isStructural(altStrs) {
		v.StructuralVariant = true
		v.Ref = allele.New(ref)
		return v, nil
	}

	v.Ref = allele.New(ref)
	v.Alt = make([]*allele.Allele, 0, len(altStrs))
	for _, a := range altStrs {
		v.Alt = append(v.Alt, allele.New(a))
	}
	return v, nil
}

// isStructural reports whether any ALT is symbolic (<DEL>, <INS:ME>, ...)
// or breakend notation (N[chr:pos[) rather than a literal sequence
// (spec.md §1 Non-goals).
func isStructural(alts []string) bool {
	for _, a := range alts {
		if strings.HasPrefix(a, "<") || strings.ContainsAny(a, "[]") {
			return true
		}
	}
	return false
}

func parseSample(format []string, raw string) map[string]string {
	fields := strings.Split(raw, ":")
	out := make(map[string]string, len(format))
	for i, f := range fields {
		if i < len(format) {
			out[format[i]] = f
		}
	}
	return out
}
