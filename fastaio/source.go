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

// Package fastaio adapts encoding/fasta's indexed FASTA reader to
// graph.ReferenceSource, the interface the graph package builds reference
// spines from (spec.md §1, §6 Inputs).
package fastaio

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bio-graphite/graphite/encoding/fasta"
	"github.com/bio-graphite/graphite/region"
)

// Source fetches reference sequence slices out of an in-memory fasta.Fasta.
type Source struct {
	f fasta.Fasta
}

// Open reads path (and, if present, path+".fai") into memory and returns a
// Source over it. A missing index falls back to the slower unindexed
// parser, per encoding/fasta.New's documented behavior.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fastaio: opening %s: %w", path, err)
	}
	defer f.Close()

	var opts []fasta.Opt
	if idx, err := os.ReadFile(path + ".fai"); err == nil {
		opts = append(opts, fasta.OptIndex(idx))
	}

	parsed, err := fasta.New(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("fastaio: parsing %s: %w", path, err)
	}
	return &Source{f: parsed}, nil
}

// NewFromReader builds a Source directly from r, for tests that don't want
// to touch the filesystem.
func NewFromReader(r io.Reader) (*Source, error) {
	parsed, err := fasta.New(r)
	if err != nil {
		return nil, err
	}
	return &Source{f: parsed}, nil
}

// Fetch implements graph.ReferenceSource: it returns r's bases, trying both
// r.Chrom and the "chr"-stripped/prefixed variants so a FASTA built with a
// different chromosome-naming convention than the VCF/BAM still resolves
// (spec.md §6 region grammar note on chromosome naming).
func (s *Source) Fetch(r region.Region) ([]byte, error) {
	name, err := s.resolveName(r.Chrom)
	if err != nil {
		return nil, err
	}
	seq, err := s.f.Get(name, uint64(r.Start), uint64(r.End))
	if err != nil {
		return nil, fmt.Errorf("fastaio: fetching %s: %w", r, err)
	}
	return []byte(seq), nil
}

func (s *Source) resolveName(chrom string) (string, error) {
	for _, candidate := range []string{chrom, "chr" + chrom, strings.TrimPrefix(chrom, "chr")} {
		if _, err := s.f.Len(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("fastaio: chromosome %q not found", chrom)
}
