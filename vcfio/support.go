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
	"strings"

	"github.com/bio-graphite/graphite/allele"
	"github.com/bio-graphite/graphite/region"
)

// SupportingReadWriter writes one TSV row per classified (read, allele)
// pair, for the optional --save-supporting-reads output (spec.md §6). It
// implements adjudicate.SupportingReadRecorder.
type SupportingReadWriter struct {
	w *bufio.Writer
}

var supportingReadHeader = strings.Join(
	[]string{"chrom", "pos", "allele", "sample", "stratum", "strand", "read_id", "mate"}, "\t")

// NewSupportingReadWriter wraps w, writing the column header immediately.
func NewSupportingReadWriter(w io.Writer) (*SupportingReadWriter, error) {
	s := &SupportingReadWriter{w: bufio.NewWriterSize(w, 64*1024)}
	if _, err := s.w.WriteString(supportingReadHeader + "\n"); err != nil {
		return nil, err
	}
	return s, nil
}

// Record writes one row.
func (s *SupportingReadWriter) Record(chrom string, pos region.PosType, alleleSeq, sampleID string, stratum allele.Stratum, forwardStrand bool, readID string, mate int8) {
	strand := "+"
	if !forwardStrand {
		strand = "-"
	}
	fmt.Fprintf(s.w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%d\n",
		chrom, pos, alleleSeq, sampleID, stratum.String(), strand, readID, mate)
}

// Flush flushes buffered output.
func (s *SupportingReadWriter) Flush() error { return s.w.Flush() }
