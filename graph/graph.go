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

package graph

import (
	"fmt"
	"sync"

	"github.com/bio-graphite/graphite/region"
	"github.com/bio-graphite/graphite/variant"
)

// ReferenceSource fetches the linear reference sequence for a region; the
// concrete implementation (fastaio.Source) lives outside this module's
// core, per spec.md §1 ("FASTA reference sequence retrieval -> an
// interface only").
type ReferenceSource interface {
	Fetch(r region.Region) ([]byte, error)
}

// InvariantError marks a condition the spec classifies as a bug rather
// than a recoverable input problem (spec.md §7 GraphInvariant): a missing
// expected ref node during variant insertion or condensation. The caller
// is expected to abort after logging the failing position.
type InvariantError struct {
	Where    string
	Position region.PosType
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("graph: invariant violation in %s at position %d", e.Where, e.Position)
}

// Graph owns a condensed partial-order sequence graph for one variant
// cluster: a reference spine with alt-allele bubbles spliced in. It is
// read-only once Build returns, except for the already-aligned read
// dedup set, which is the one piece of state the alignment worker pool
// mutates (spec.md §4.3 Idempotence, §5 "Per-graph already-aligned read
// names set").
type Graph struct {
	Nodes    []*Node
	First    *Node
	Variants []*variant.Variant
	Span     region.Region // fetched reference interval, including flanks

	nextID int

	seenMu sync.Mutex
	seen   map[seenKey]struct{}
}

type seenKey struct {
	readID string
	mate   int8
}

// Build constructs the full graph (reference spine plus every variant's
// alt branches) for cluster, fetching reference[cluster.Span expanded by
// graphSpacing] from ref. This mirrors core2/graph/Graph.cpp's
// generateGraph: build spine, splice in variants, condense, decorate
// prefix/suffix.
func Build(cluster []*variant.Variant, ref ReferenceSource, graphSpacing region.PosType) (*Graph, error) {
	return build(cluster, ref, graphSpacing, true)
}

// BuildReferenceOnly constructs the same spine as Build but without any
// alt branches, for the reference-only score comparison used by
// align.Classify (spec.md §4.3 "reference_score_pct ... run against the
// reference-only graph").
func BuildReferenceOnly(cluster []*variant.Variant, ref ReferenceSource, graphSpacing region.PosType) (*Graph, error) {
	return build(cluster, ref, graphSpacing, false)
}

func build(cluster []*variant.Variant, ref ReferenceSource, graphSpacing region.PosType, withAlts bool) (*Graph, error) {
	if len(cluster) == 0 {
		return nil, fmt.Errorf("graph.Build: empty cluster")
	}
	span := cluster[0].Span()
	for _, v := range cluster[1:] {
		span = span.Union(v.Span())
	}
	span = span.Expand(graphSpacing)

	refSeq, err := ref.Fetch(span)
	if err != nil {
		return nil, fmt.Errorf("graph.Build: fetching reference %s: %w", span, err)
	}

	g := &Graph{Variants: cluster, Span: span, seen: make(map[seenKey]struct{})}
	last := g.buildSpine(refSeq, span.Start+1)

	if withAlts {
		for _, v := range cluster {
			if v.StructuralVariant {
				continue
			}
			if err := g.insertVariant(v); err != nil {
				return nil, err
			}
		}
	}

	first, err := g.condense(last)
	if err != nil {
		return nil, err
	}
	g.First = first
	g.decoratePrefixSuffix()
	return g, nil
}

// buildSpine creates one Ref node per base of refSeq, chained into a
// simple path, and returns the last (sink) node. startPos1 is the 1-based
// genomic coordinate of refSeq's first base. It also sets g.First to the
// spine's head, so insertVariant (which runs before condense) has a node
// to walk from; condense overwrites g.First with the condensed head once
// it runs.
func (g *Graph) buildSpine(refSeq []byte, startPos1 region.PosType) *Node {
	var first, prev *Node
	for i, base := range refSeq {
		node := g.newNode([]byte{base}, startPos1+region.PosType(i), Ref)
		if prev != nil {
			prev.addOutEdge(node)
		}
		if first == nil {
			first = node
		}
		prev = node
	}
	g.First = first
	return prev
}

func (g *Graph) newNode(seq []byte, pos region.PosType, t AlleleType) *Node {
	g.nextID++
	n := newNode(g.nextID, seq, pos, t)
	g.Nodes = append(g.Nodes, n)
	return n
}

// insertVariant splices v's alt branches into the (already-built)
// reference spine, per spec.md §4.2.2. It walks the spine once to index
// ref nodes by position, the way
// core2/graph/Graph.cpp::addVariantsToGraph does: the in-node anchor is
// the base just before the variant (POS-1), the out-node is the base just
// after the reference allele (variantPosition+len(ref)+1), and every ref
// node across the reference allele's own span [POS, POS+len(ref)-1] gets
// v.Ref added as an overlapping allele.
func (g *Graph) insertVariant(v *variant.Variant) error {
	byPos := make(map[region.PosType]*Node, len(g.Nodes))
	for n := g.First; n != nil; n = n.RefOutNode() {
		byPos[n.Position] = n
	}

	p := v.Pos - 1
	inNode, ok := byPos[p]
	if !ok {
		return &InvariantError{Where: "insertVariant (in-node)", Position: p}
	}
	outPos := p + region.PosType(len(v.Ref.Sequence)) + 1
	outNode, ok := byPos[outPos]
	if !ok {
		return &InvariantError{Where: "insertVariant (out-node)", Position: outPos}
	}
	for pos := p + 1; pos < outPos; pos++ {
		if n, ok := byPos[pos]; ok {
			n.addOverlappingAllele(v.Ref)
		}
	}
	for _, alt := range v.Alt {
		altNode := g.newNode([]byte(alt.Sequence), p, Alt)
		altNode.addOverlappingAllele(alt)
		inNode.addOutEdge(altNode)
		altNode.addOutEdge(outNode)
	}
	return nil
}

// condense walks the reference spine backward from the sink, merging
// adjacent ref nodes whenever there's no branching between them, to
// fixpoint (spec.md §4.2.3). Alt nodes are never merged. Returns the new
// source node.
func (g *Graph) condense(last *Node) (*Node, error) {
	node := last
	for len(node.InNodes) > 0 {
		refIn := node.RefInNode()
		if refIn == nil {
			return nil, &InvariantError{Where: "condense", Position: node.Position}
		}
		if len(node.InNodes) > 1 || len(refIn.OutNodes) > 1 {
			node = refIn
			continue
		}
		node = mergeNodes(refIn, node)
	}
	// Rebuild g.Nodes from the condensed graph so merged-away nodes drop out.
	nodes := []*Node{node}
	seen := map[*Node]bool{node: true}
	for k := 0; k < len(nodes); k++ {
		for _, out := range nodes[k].OutNodes {
			if !seen[out] {
				seen[out] = true
				nodes = append(nodes, out)
			}
		}
	}
	g.Nodes = nodes
	return node, nil
}

// mergeNodes concatenates refIn's and downstream's sequences into a single
// node anchored at refIn's position, splicing out the edge between them.
// downstream is assumed to have exactly one in-neighbor (refIn) and refIn
// exactly one out-neighbor (downstream); Graph.condense only calls this
// when that's true.
func mergeNodes(refIn, downstream *Node) *Node {
	merged := &Node{
		ID:         refIn.ID,
		Sequence:   append(append([]byte(nil), refIn.Sequence...), downstream.Sequence...),
		Position:   refIn.Position,
		AlleleType: Ref,
		InNodes:    refIn.InNodes,
		OutNodes:   downstream.OutNodes,
	}
	merged.OverlappingAlleles = append(merged.OverlappingAlleles, refIn.OverlappingAlleles...)
	for _, a := range downstream.OverlappingAlleles {
		merged.addOverlappingAllele(a)
	}
	for _, in := range merged.InNodes {
		replaceNeighbor(in.OutNodes, refIn, merged)
	}
	for _, out := range merged.OutNodes {
		replaceNeighbor(out.InNodes, downstream, merged)
	}
	return merged
}

func replaceNeighbor(neighbors []*Node, from, to *Node) {
	for i, n := range neighbors {
		if n == from {
			neighbors[i] = to
		}
	}
}

// decoratePrefixSuffix computes, for every bubble (the set of sibling
// out-nodes sharing a ref parent), the longest common prefix/suffix length
// across all siblings, writing the max observed value into each sibling
// (spec.md §4.2.4). Mirrors
// core2/graph/Graph.cpp::setPrefixAndSuffix's walk-the-spine-forward
// structure.
func (g *Graph) decoratePrefixSuffix() {
	ref := g.First
	for {
		siblings := ref.OutNodes
		if len(siblings) > 1 {
			for i, a := range siblings {
				for j, b := range siblings {
					if i == j {
						continue
					}
					prefix := commonPrefixLen(a.Sequence, b.Sequence)
					if a.IdenticalPrefixLength < prefix {
						a.IdenticalPrefixLength = prefix
					}
					suffix := commonSuffixLen(a.Sequence, b.Sequence)
					if a.IdenticalSuffixLength < suffix {
						a.IdenticalSuffixLength = suffix
					}
				}
			}
		}
		next := ref.RefOutNode()
		if next == nil {
			return
		}
		ref = next
	}
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func commonSuffixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[len(a)-1-i] == b[len(b)-1-i] {
		i++
	}
	return i
}

// MarkSeen registers (readID, mate) as processed by this graph, returning
// true if it was already present (the caller should skip realigning it).
// Guards the one piece of cross-thread mutable graph state, per spec.md
// §4.3 Idempotence / §5.
func (g *Graph) MarkSeen(readID string, mate int8) (alreadySeen bool) {
	k := seenKey{readID: readID, mate: mate}
	g.seenMu.Lock()
	_, alreadySeen = g.seen[k]
	g.seen[k] = struct{}{}
	g.seenMu.Unlock()
	return alreadySeen
}

// ReferenceSequence concatenates the full ref spine's bases, walking
// Ref-only out-edges from First. Used by tests to verify condensation
// preserves reference bytes (spec.md §8 invariant 5).
func (g *Graph) ReferenceSequence() []byte {
	var out []byte
	for n := g.First; n != nil; n = n.RefOutNode() {
		out = append(out, n.Sequence...)
	}
	return out
}
