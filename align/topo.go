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
	"fmt"

	"github.com/bio-graphite/graphite/graph"
)

// topoOrder returns g.Nodes in a Kahn's-algorithm topological order, so
// Aligner can fill each node's DP matrix only after every in-neighbor's
// matrix already exists. Graphs are always DAGs (alt branches rejoin the
// spine but never cycle back), so a cycle here indicates a graph.Build bug
// rather than recoverable input.
func topoOrder(g *graph.Graph) ([]*graph.Node, error) {
	indeg := make(map[*graph.Node]int, len(g.Nodes))
	for _, n := range g.Nodes {
		indeg[n] = len(n.InNodes)
	}
	queue := make([]*graph.Node, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if indeg[n] == 0 {
			queue = append(queue, n)
		}
	}
	order := make([]*graph.Node, 0, len(g.Nodes))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, out := range n.OutNodes {
			indeg[out]--
			if indeg[out] == 0 {
				queue = append(queue, out)
			}
		}
	}
	if len(order) != len(g.Nodes) {
		return nil, fmt.Errorf("align: graph is not a DAG (%d of %d nodes ordered)", len(order), len(g.Nodes))
	}
	return order, nil
}
