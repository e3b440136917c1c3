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

package align

import (
	"github.com/bio-graphite/graphite/allele"
	"github.com/bio-graphite/graphite/graph"
)

// NodeVote is one graph node touched by a read's traceback, classified
// into the count stratum its evidence should be recorded against
// (spec.md §4.3).
type NodeVote struct {
	Node    *graph.Node
	Stratum allele.Stratum
}

// Classify applies spec.md §4.3's stratum rule to a read's traceback
// against the full graph (full) and the matching traceback against the
// reference-only graph (refOnly, same read, same scoring): it computes
// the whole-alignment percent scores to decide between Ambiguous,
// LowQual and per-node classification, then — for every alt node the
// traceback actually touches — downgrades to Ambiguous any node whose
// matched span lies entirely within the node's identical prefix/suffix
// bounds, since such a match can't distinguish this allele from its
// sibling branches (graph.Node.IdenticalPrefixLength/IdenticalSuffixLength).
func Classify(full, refOnly Traceback) []NodeVote {
	if len(full.Segments) == 0 {
		return nil
	}

	totalPct := scorePercent(full)
	refPct := scorePercent(refOnly)
	hasAlt := false
	for _, seg := range full.Segments {
		if seg.Node.AlleleType == graph.Alt {
			hasAlt = true
			break
		}
	}

	softclipCount := 0
	if full.LeadingClip > 0 {
		softclipCount++
	}
	if full.TrailingClip > 0 {
		softclipCount++
	}

	var overall allele.Stratum
	useOverall := false
	switch {
	case totalPct == refPct && hasAlt:
		overall, useOverall = allele.Ambiguous, true
	case totalPct < 70 || softclipCount > 1:
		overall, useOverall = allele.LowQual, true
	}

	votes := make([]NodeVote, 0, len(full.Segments))
	nodeOffset := segmentStartOffsets(full)
	for idx, seg := range full.Segments {
		var stratum allele.Stratum
		switch {
		case useOverall:
			stratum = overall
		default:
			stratum = allele.ClassifyByPercent(segmentPercent(seg))
		}
		if seg.Node.AlleleType == graph.Alt && !touchesDistinguishingRegion(seg, seg.Node, nodeOffset[idx]) {
			stratum = allele.Ambiguous
		}
		votes = append(votes, NodeVote{Node: seg.Node, Stratum: stratum})
	}
	return votes
}

// scorePercent computes spec.md §4.3's total_score_pct: 100 * score / (read
// length minus soft-clipped bases), rounded toward zero.
func scorePercent(tb Traceback) int {
	l := tb.ReadLength - tb.LeadingClip - tb.TrailingClip
	if l <= 0 {
		return 0
	}
	return 100 * tb.Score / l
}

// segmentPercent computes a single node segment's own match percentage:
// matched bases over node-sequence bases the segment actually covers
// (M+X+D; insertions don't consume node sequence).
func segmentPercent(seg Segment) int {
	matches, total := 0, 0
	for _, op := range seg.Cigar {
		switch op.Op {
		case OpMatch:
			matches += op.Len
			total += op.Len
		case OpMismatch, OpDel:
			total += op.Len
		}
	}
	if total == 0 {
		return 0
	}
	return 100 * matches / total
}

// segmentStartOffsets returns, for each segment, the node-sequence offset
// its first op begins at. Every segment except possibly the first spans
// its node from offset 0 (a node is only ever entered mid-sequence at the
// very start of a local alignment).
func segmentStartOffsets(tb Traceback) []int {
	offsets := make([]int, len(tb.Segments))
	for idx, seg := range tb.Segments {
		if idx != 0 {
			offsets[idx] = 0
			continue
		}
		consumed := 0
		for _, op := range seg.Cigar {
			switch op.Op {
			case OpMatch, OpMismatch, OpDel:
				consumed += op.Len
			}
		}
		offsets[idx] = len(seg.Node.Sequence) - consumed
	}
	return offsets
}

// touchesDistinguishingRegion reports whether seg's node-consuming ops
// overlap the part of node's sequence that isn't shared with every
// sibling branch out of the same bubble.
func touchesDistinguishingRegion(seg Segment, node *graph.Node, startOffset int) bool {
	distStart := node.IdenticalPrefixLength
	distEnd := len(node.Sequence) - node.IdenticalSuffixLength
	if distStart >= distEnd {
		// The whole node is within the identical prefix+suffix overlap
		// (can happen for very short alt alleles); nothing distinguishes it.
		return false
	}

	pos := startOffset
	for _, op := range seg.Cigar {
		switch op.Op {
		case OpMatch, OpMismatch, OpDel:
			if pos < distEnd && pos+op.Len > distStart {
				return true
			}
			pos += op.Len
		}
	}
	return false
}
