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

// Package bamio adapts a BAI-indexed BAM file directly onto
// adjudicate.AlignmentSource, the interface GraphManager fetches
// overlapping reads through. It reads biogo/hts/bam and biogo/hts/bgzf/index
// the same way kortschak-loopy/cmd/broadside's counter does: open the BAM
// stream, load its .bai sidecar, and turn a region into a chunk list before
// iterating. It carries no write, shard, or conversion path, since spec.md
// §1 scopes this pipeline to reading alignments only.
package bamio

import (
	"fmt"
	"os"
	"strings"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/bgzf/index"
	"github.com/biogo/hts/sam"

	"github.com/bio-graphite/graphite/adjudicate"
	"github.com/bio-graphite/graphite/region"
)

// Source fetches aligned reads out of a single indexed BAM file, translating
// biogo/hts sam.Records into adjudicate.Read values.
//
// A BAM record carries no sample identifier of its own; the sample a read
// belongs to is recovered from its read group's SM field, via the BAM
// header's @RG lines. Source builds that read-group-to-sample map once, at
// Open time. Records with no RG tag, or an RG the header doesn't describe,
// fall back to DefaultSample.
type Source struct {
	f      *os.File
	reader *bam.Reader
	index  *bam.Index
	header *sam.Header

	rgToSample map[string]string
	// DefaultSample names the sample used for reads lacking a resolvable
	// read group. It is exported so callers with single-sample BAMs (the
	// common case) can set it once after Open.
	DefaultSample string
	// IncludeUnmapped controls whether unmapped reads are surfaced to
	// Fetch. Unmapped reads never overlap a cluster's graph span, so the
	// default (false) is almost always right; GraphManager does its own
	// duplicate filtering regardless.
	IncludeUnmapped bool
}

// Open opens path for streaming access and indexPath (path+".bai" if empty)
// for random access, the way newCounter does in cmd/broadside.
func Open(path, indexPath string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bamio: opening %s: %w", path, err)
	}
	reader, err := bam.NewReader(f, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("bamio: reading header of %s: %w", path, err)
	}

	if indexPath == "" {
		indexPath = path + ".bai"
	}
	idxFile, err := os.Open(indexPath)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("bamio: opening index %s: %w", indexPath, err)
	}
	idx, err := bam.ReadIndex(idxFile)
	idxFile.Close()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("bamio: reading index %s: %w", indexPath, err)
	}

	header := reader.Header()
	return &Source{
		f:          f,
		reader:     reader,
		index:      idx,
		header:     header,
		rgToSample: sampleByReadGroup(header),
	}, nil
}

// Close releases the underlying file handle.
func (s *Source) Close() error {
	return s.f.Close()
}

func sampleByReadGroup(header *sam.Header) map[string]string {
	m := make(map[string]string)
	for _, rg := range header.RGs() {
		if sample := rg.Sample(); sample != "" {
			m[rg.Name()] = sample
		}
	}
	return m
}

// Fetch implements adjudicate.AlignmentSource: it returns every read
// overlapping r, resolved through the BAM's own reference naming (trying
// "chr"-prefixed/stripped variants, as fastaio.Source does for FASTA
// references).
func (s *Source) Fetch(r region.Region) ([]adjudicate.Read, error) {
	ref, err := resolveRef(s.header, r.Chrom)
	if err != nil {
		return nil, err
	}
	end := int(r.End)
	if end > ref.Len() {
		end = ref.Len()
	}

	chunks, err := s.index.Chunks(ref, int(r.Start), end)
	if err == index.ErrInvalid || len(chunks) == 0 {
		// No reads over this interval; index.ErrInvalid is this biogo/hts
		// fork's sentinel for "no chunks on this reference/range".
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bamio: chunks for %s: %w", r, err)
	}

	it, err := bam.NewIterator(s.reader, chunks)
	if err != nil {
		return nil, fmt.Errorf("bamio: iterating %s: %w", r, err)
	}
	defer it.Close()

	var reads []adjudicate.Read
	for it.Next() {
		rec := it.Record()
		if !s.IncludeUnmapped && rec.Flags&sam.Unmapped != 0 {
			continue
		}
		reads = append(reads, s.convert(rec))
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("bamio: scanning %s: %w", r, err)
	}
	return reads, nil
}

func resolveRef(header *sam.Header, chrom string) (*sam.Reference, error) {
	candidates := []string{chrom, "chr" + chrom, strings.TrimPrefix(chrom, "chr")}
	for _, name := range candidates {
		for _, ref := range header.Refs() {
			if ref.Name() == name {
				return ref, nil
			}
		}
	}
	return nil, fmt.Errorf("bamio: reference %q not found in header", chrom)
}

func (s *Source) convert(rec *sam.Record) adjudicate.Read {
	mate := int8(0)
	if rec.Flags&sam.Read1 != 0 {
		mate = 1
	} else if rec.Flags&sam.Read2 != 0 {
		mate = 2
	}

	sample := s.DefaultSample
	if rg, ok := readGroup(rec); ok {
		if sm, ok := s.rgToSample[rg]; ok {
			sample = sm
		}
	}

	matePos := region.PosType(-1)
	if rec.MateRef != nil {
		matePos = region.PosType(rec.MatePos)
	}

	return adjudicate.Read{
		ID:              rec.Name,
		MateOrdinal:     mate,
		SampleID:        sample,
		Sequence:        rec.Seq.Expand(),
		BaseQualities:   append([]byte(nil), rec.Qual...),
		Position:        region.PosType(rec.Pos),
		Length:          rec.Seq.Length,
		MAPQ:            int(rec.MapQ),
		IsReverseStrand: rec.Flags&sam.Reverse != 0,
		IsDuplicate:     rec.Flags&sam.Duplicate != 0,
		CIGAR:           rec.Cigar.String(),
		MatePosition:    matePos,
		TemplateLength:  rec.TempLen,
		Flag:            uint16(rec.Flags),
	}
}

func readGroup(rec *sam.Record) (string, bool) {
	for _, aux := range rec.AuxFields {
		if aux.Tag() == (sam.Tag{'R', 'G'}) {
			if s, ok := aux.Value().(string); ok {
				return s, true
			}
		}
	}
	return "", false
}
