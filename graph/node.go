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

// Package graph builds, condenses and decorates the per-cluster sequence
// graph that the aligner realigns reads against, and routes per-node
// alignment evidence back to the variants that produced the node.
//
// A Graph is mutated only while it is being built (single goroutine); once
// built it is read-only for the lifetime of the parallel alignment phase,
// per spec.md §5 ("Graphs: read-only during alignment phase ... no locks
// needed on hot path"). The only things a concurrent alignment task writes
// to are the graph's already-aligned read set (Graph.MarkSeen) and an
// allele's evidence bank, reached through Node.OverlappingAlleles.
package graph

import (
	"github.com/bio-graphite/graphite/allele"
	"github.com/bio-graphite/graphite/region"
)

// AlleleType tags whether a Node lies on the reference spine or is an
// alt-allele branch.
type AlleleType int

const (
	Ref AlleleType = iota
	Alt
)

func (t AlleleType) String() string {
	if t == Alt {
		return "Alt"
	}
	return "Ref"
}

// Node is a vertex of the sequence graph: a contiguous sequence slice (one
// base on the reference spine pre-condensation, or a whole alt allele for a
// variant branch), its neighbor sets, and the bookkeeping needed to route
// alignment evidence and to treat bubble-internal matches as ambiguous.
type Node struct {
	ID         int
	Sequence   []byte
	Position   region.PosType
	AlleleType AlleleType

	InNodes  []*Node
	OutNodes []*Node

	// OverlappingAlleles are the alleles whose reference span intersects
	// this node. A Ref node can overlap several alleles' reference spans
	// (e.g. when two variants' spans share a ref node); an Alt node has
	// exactly one overlapping allele, itself.
	OverlappingAlleles []*allele.Allele

	// IdenticalPrefixLength / IdenticalSuffixLength are the longest
	// leading/trailing run of bases this node's sequence shares with any one
	// sibling branch out of the same bubble, i.e. the maximum over its
	// siblings (graph.decoratePrefixSuffix).
	// A traceback match that falls entirely within these bounds can't
	// distinguish which sibling it actually supports.
	IdenticalPrefixLength int
	IdenticalSuffixLength int
}

func newNode(id int, seq []byte, pos region.PosType, t AlleleType) *Node {
	return &Node{ID: id, Sequence: seq, Position: pos, AlleleType: t}
}

func (n *Node) addOutEdge(to *Node) {
	n.OutNodes = append(n.OutNodes, to)
	to.InNodes = append(to.InNodes, n)
}

// addOverlappingAllele appends a to n's overlap set if not already present.
func (n *Node) addOverlappingAllele(a *allele.Allele) {
	for _, existing := range n.OverlappingAlleles {
		if existing == a {
			return
		}
	}
	n.OverlappingAlleles = append(n.OverlappingAlleles, a)
}

// RefInNode returns n's first reference in-neighbor, or nil if n has none
// (n is the source node); a nil return past the source node indicates a
// GraphInvariant violation.
func (n *Node) RefInNode() *Node {
	for _, in := range n.InNodes {
		if in.AlleleType == Ref {
			return in
		}
	}
	return nil
}

// RefOutNode returns n's single reference out-neighbor, or nil at the sink.
func (n *Node) RefOutNode() *Node {
	for _, out := range n.OutNodes {
		if out.AlleleType == Ref {
			return out
		}
	}
	return nil
}

// IsSource reports whether n has no in-neighbors.
func (n *Node) IsSource() bool { return len(n.InNodes) == 0 }

// IsSink reports whether n has no out-neighbors.
func (n *Node) IsSink() bool { return len(n.OutNodes) == 0 }
