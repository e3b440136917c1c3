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

// Package region defines the genomic-coordinate types shared by every other
// package in this module, and the region-string grammar accepted on the
// command line and in -region/-bed-less invocations.
package region

import (
	"fmt"
	"strconv"
	"strings"
)

// PosType is the integer type used to represent genomic positions.  All
// positions in this package are 0-based unless documented otherwise; VCF and
// CLI inputs are 1-based and are converted on the way in.
type PosType int32

// PosTypeMax is the largest representable position; used as a sentinel "no
// upper bound" value.
const PosTypeMax PosType = (1 << 31) - 1

// Region is a half-open 0-based [Start, End) interval on a single
// chromosome.
type Region struct {
	Chrom string
	Start PosType
	End   PosType
}

// Len returns the number of bases spanned by r.
func (r Region) Len() PosType { return r.End - r.Start }

// Overlaps reports whether r and o share any base on the same chromosome.
func (r Region) Overlaps(o Region) bool {
	return r.Chrom == o.Chrom && r.Start < o.End && o.Start < r.End
}

// Expand returns r padded by flank bases on each side.  The result is
// clamped to a non-negative Start.
func (r Region) Expand(flank PosType) Region {
	start := r.Start - flank
	if start < 0 {
		start = 0
	}
	return Region{Chrom: r.Chrom, Start: start, End: r.End + flank}
}

// Union returns the smallest region containing both r and o.  The two
// regions must be on the same chromosome.
func (r Region) Union(o Region) Region {
	start := r.Start
	if o.Start < start {
		start = o.Start
	}
	end := r.End
	if o.End > end {
		end = o.End
	}
	return Region{Chrom: r.Chrom, Start: start, End: end}
}

func (r Region) String() string {
	return fmt.Sprintf("%s:%d-%d", r.Chrom, r.Start+1, r.End)
}

// ParseString parses a region string of one of the forms
//   chrom:start-end   (1-based, inclusive)
//   chrom:pos          (1-based)
//   chrom
// per the grammar ^(?P<chr>[A-Za-z0-9_.]+)(:(?P<start>\d+)(-(?P<end>\d+))?)?$.
// Missing bounds default to the whole chromosome, represented as [0,
// PosTypeMax).
func ParseString(s string) (Region, error) {
	if len(s) == 0 {
		return Region{}, fmt.Errorf("region: empty region string")
	}
	colonPos := strings.IndexByte(s, ':')
	if colonPos == -1 {
		if !validChromName(s) {
			return Region{}, fmt.Errorf("region: invalid contig name %q", s)
		}
		return Region{Chrom: s, Start: 0, End: PosTypeMax}, nil
	}
	if colonPos == 0 {
		return Region{}, fmt.Errorf("region: empty contig name in %q", s)
	}
	chrom := s[:colonPos]
	if !validChromName(chrom) {
		return Region{}, fmt.Errorf("region: invalid contig name %q", chrom)
	}
	rangeStr := s[colonPos+1:]
	dashPos := strings.IndexByte(rangeStr, '-')
	if dashPos == -1 {
		pos1, err := strconv.ParseInt(rangeStr, 10, 32)
		if err != nil {
			return Region{}, fmt.Errorf("region: malformed position %q: %w", rangeStr, err)
		}
		if pos1 <= 0 {
			return Region{}, fmt.Errorf("region: position %d out of range", pos1)
		}
		return Region{Chrom: chrom, Start: PosType(pos1 - 1), End: PosType(pos1)}, nil
	}
	start1Str, endStr := rangeStr[:dashPos], rangeStr[dashPos+1:]
	start1, err := strconv.ParseInt(start1Str, 10, 32)
	if err != nil {
		return Region{}, fmt.Errorf("region: malformed start %q: %w", start1Str, err)
	}
	end0, err := strconv.ParseInt(endStr, 10, 32)
	if err != nil {
		return Region{}, fmt.Errorf("region: malformed end %q: %w", endStr, err)
	}
	if start1 <= 0 || end0 < start1 || PosType(end0) >= PosTypeMax {
		return Region{}, fmt.Errorf("region: invalid range %q", rangeStr)
	}
	return Region{Chrom: chrom, Start: PosType(start1 - 1), End: PosType(end0)}, nil
}

func validChromName(s string) bool {
	for _, c := range s {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_', c == '.':
		default:
			return false
		}
	}
	return len(s) > 0
}
