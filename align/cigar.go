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

// Package align implements the graph-aware, affine-gap Smith-Waterman
// kernel (spec.md §4.3): it fills one DP matrix per graph node, chaining
// matrices across node boundaries by feeding each node's first column from
// the max of its in-neighbors' last columns, and traces back to a
// per-node CIGAR sequence.
package align

import "fmt"

// Op is one CIGAR operation code, restricted to the alphabet M/X/I/D/S
// (spec.md §4.3).
type Op byte

const (
	OpMatch    Op = 'M'
	OpMismatch Op = 'X'
	OpIns      Op = 'I'
	OpDel      Op = 'D'
	OpSoftClip Op = 'S'
)

// CigarUnit is a single run-length-encoded CIGAR element.
type CigarUnit struct {
	Op  Op
	Len int
}

func (c CigarUnit) String() string { return fmt.Sprintf("%d%c", c.Len, byte(c.Op)) }

// appendOp appends length-1 op to ops, merging into the last run if it
// matches.
func appendOp(ops []CigarUnit, op Op) []CigarUnit {
	if n := len(ops); n > 0 && ops[n-1].Op == op {
		ops[n-1].Len++
		return ops
	}
	return append(ops, CigarUnit{Op: op, Len: 1})
}

// reverseUnits reverses a []CigarUnit in place.
func reverseUnits(u []CigarUnit) {
	for i, j := 0, len(u)-1; i < j; i, j = i+1, j-1 {
		u[i], u[j] = u[j], u[i]
	}
}

func cigarString(u []CigarUnit) string {
	s := ""
	for _, c := range u {
		s += c.String()
	}
	return s
}
