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

package variant

import (
	"errors"
	"fmt"
	"io"

	"github.com/bio-graphite/graphite/region"
)

// ErrOutOfOrder is returned by Clusterer.Next when the underlying source
// yields a variant whose position precedes one already consumed.
var ErrOutOfOrder = errors.New("variant: input out of sort order")

// Source streams variants for one pass of the pipeline. It must yield
// variants for a single chromosome in non-decreasing position order;
// Next returns io.EOF (wrapped, via errors.Is) once exhausted.
type Source interface {
	Next() (*Variant, error)
}

// Cluster is a maximal set of overlapping non-structural variants that
// must be co-graphed, plus the union of their reference spans.
type Cluster struct {
	Variants []*Variant
	Span     Region
}

// Region is a local alias to avoid importing region for just this field;
// kept identical in shape to region.Region.
type Region = region.Region

// Clusterer streams variants from src in sorted order and groups
// overlapping non-structural-variant records into single Cluster jobs
// (spec.md §4.1). Structural variants are emitted as singleton clusters of
// their own — they never join another cluster and never extend one — since
// the linear-bubble graph topology can't represent them (spec.md §1
// Non-goals); GraphManager recognizes a singleton-SV cluster and skips
// graph construction for it entirely.
type Clusterer struct {
	src     Source
	pending *Variant // peeked-ahead variant not yet assigned to a cluster
	lastPos Region
	havePos bool
}

// NewClusterer wraps src.
func NewClusterer(src Source) *Clusterer {
	return &Clusterer{src: src}
}

// Next returns the next cluster, or io.EOF (via errors.Is) when src is
// exhausted.
func (c *Clusterer) Next() (*Cluster, error) {
	first, err := c.take()
	if err != nil {
		return nil, err
	}

	if first.StructuralVariant {
		return &Cluster{Variants: []*Variant{first}, Span: first.Span()}, nil
	}

	cluster := &Cluster{Variants: []*Variant{first}, Span: first.Span()}
	for {
		next, err := c.peek()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if next.StructuralVariant || !cluster.Span.Overlaps(next.Span()) {
			break
		}
		// Transitive: joining next extends the cluster's span, so a
		// subsequent peek is tested against the extended span, per
		// spec.md §4.1 ("subsequent peek-ahead uses the extended span").
		c.consumePeek()
		cluster.Variants = append(cluster.Variants, next)
		cluster.Span = cluster.Span.Union(next.Span())
	}
	return cluster, nil
}

// take returns the next variant (consuming any pending peek first) and
// enforces sort order.
func (c *Clusterer) take() (*Variant, error) {
	if c.pending != nil {
		v := c.pending
		c.pending = nil
		return v, nil
	}
	v, err := c.src.Next()
	if err != nil {
		return nil, err
	}
	if err := c.checkOrder(v); err != nil {
		return nil, err
	}
	return v, nil
}

// peek returns (without consuming) the next variant.
func (c *Clusterer) peek() (*Variant, error) {
	if c.pending == nil {
		v, err := c.src.Next()
		if err != nil {
			return nil, err
		}
		if err := c.checkOrder(v); err != nil {
			return nil, err
		}
		c.pending = v
	}
	return c.pending, nil
}

func (c *Clusterer) consumePeek() {
	c.lastPos = c.pending.Span()
	c.havePos = true
	c.pending = nil
}

func (c *Clusterer) checkOrder(v *Variant) error {
	span := v.Span()
	if c.havePos {
		if span.Chrom == c.lastPos.Chrom && span.Start < c.lastPos.Start {
			return fmt.Errorf("%w: %s at %d follows %s at %d", ErrOutOfOrder, span.Chrom, v.Pos, c.lastPos.Chrom, c.lastPos.Start+1)
		}
	}
	c.lastPos = span
	c.havePos = true
	return nil
}
