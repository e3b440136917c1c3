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

// Package evidence implements the sharded, mutex-per-shard counter bank
// that backs allele.Allele. The sharding strategy (hash the read ID,
// shard-lock, insert-if-absent) is the same one
// encoding/bamprovider/concurrentmap.go uses to deduplicate mate lookups
// across BAM shards; here it deduplicates supporting-read identities across
// alignment tasks instead of mate records.
package evidence

import (
	"sort"
	"sync"

	"blainsmith.com/go/seahash"
)

const numShards = 64

// ReadKey identifies one mate of a read-pair. Evidence is idempotent on
// this key: inserting the same key twice into the same bucket is a no-op.
type ReadKey struct {
	ReadID string
	Mate   int8
}

type bucketKey struct {
	sample  string
	stratum int
	forward bool
}

type shard struct {
	mu      sync.Mutex
	buckets map[bucketKey]map[ReadKey]struct{}
}

// Bank is a concurrent set-of-sets: for every (sample, stratum, strand)
// bucket, the set of distinct (read, mate) identities that support the
// owning allele at that quality level. All mutation is through Insert,
// which is safe for concurrent use; Count and Samples are intended to run
// after all Insert calls have quiesced (the single-threaded output pass).
type Bank struct {
	shards [numShards]shard
}

// NewBank returns an empty Bank.
func NewBank() *Bank {
	b := &Bank{}
	for i := range b.shards {
		b.shards[i].buckets = make(map[bucketKey]map[ReadKey]struct{})
	}
	return b
}

func (b *Bank) shardFor(key ReadKey) *shard {
	h := seahash.Sum64([]byte(key.ReadID))
	h = h*31 + uint64(key.Mate)
	return &b.shards[h%numShards]
}

// Insert records that key supports the bucket (sample, stratum, forward).
// Re-inserting a key already present in that bucket is a no-op, preserving
// the "evidence is recorded at most once per (allele, stratum, strand)"
// invariant even when the same read is aligned more than once (which
// shouldn't happen given Graph's per-graph read-dedup, but costs nothing to
// guard here too).
func (b *Bank) Insert(sample string, stratum int, forward bool, key ReadKey) {
	s := b.shardFor(key)
	bk := bucketKey{sample: sample, stratum: stratum, forward: forward}
	s.mu.Lock()
	set, ok := s.buckets[bk]
	if !ok {
		set = make(map[ReadKey]struct{})
		s.buckets[bk] = set
	}
	set[key] = struct{}{}
	s.mu.Unlock()
}

// Count returns the number of distinct reads in the (sample, stratum,
// forward) bucket.
func (b *Bank) Count(sample string, stratum int, forward bool) int {
	bk := bucketKey{sample: sample, stratum: stratum, forward: forward}
	n := 0
	for i := range b.shards {
		s := &b.shards[i]
		s.mu.Lock()
		n += len(s.buckets[bk])
		s.mu.Unlock()
	}
	return n
}

// Samples returns every distinct sample name with at least one bucket,
// sorted for deterministic output.
func (b *Bank) Samples() []string {
	seen := make(map[string]struct{})
	for i := range b.shards {
		s := &b.shards[i]
		s.mu.Lock()
		for bk := range s.buckets {
			seen[bk.sample] = struct{}{}
		}
		s.mu.Unlock()
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
