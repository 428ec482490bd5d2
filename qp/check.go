/*
Copyright (c) Meta Platforms, Inc. and affiliates.
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
    http://www.apache.org/licenses/LICENSE-2.0
Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package qp

import (
	"bytes"
	"fmt"
)

// CheckIntegrity walks the whole trie and verifies its structural
// invariants: branch bitmaps with at least two twigs and twig counts
// matching their popcount, strictly increasing key offsets along every
// path, twig bits agreeing with the keys of the leaves below them,
// ascending leaf order, an accurate leaf count, and sane allocator
// accounting. Meant for tests and self-tests; cost is a full traversal
// with a key conversion per leaf.
func (t *Trie) CheckIntegrity() error {
	if t.count == 0 {
		if t.root != (node{}) {
			return fmt.Errorf("empty trie with non-zero root")
		}
	}
	c := &checker{t: t}
	if t.count > 0 {
		if _, err := c.walk(t.root, -1); err != nil {
			return err
		}
	}
	if c.leaves != t.count {
		return fmt.Errorf("leaf count %d, walked %d", t.count, c.leaves)
	}
	var free uint32
	for p := range t.mem.pages {
		u := &t.mem.usage[p]
		if t.mem.pages[p] == nil {
			if *u != (pageUsage{}) {
				return fmt.Errorf("page %d freed with non-zero usage %+v", p, *u)
			}
			continue
		}
		if u.used > pageSize {
			return fmt.Errorf("page %d used %d over page size", p, u.used)
		}
		if u.free > u.used && u.keep == 0 {
			return fmt.Errorf("page %d free %d over used %d", p, u.free, u.used)
		}
		free += u.free
	}
	if t.mem.garbage > free {
		return fmt.Errorf("garbage %d exceeds total free %d", t.mem.garbage, free)
	}
	return nil
}

type checker struct {
	t      *Trie
	leaves int
	prev   []byte // key of the previously visited leaf
	seen   bool
}

// walk validates the subtree under n, whose parent branch (if any) had
// key offset parentOff, and returns the key of the subtree's first
// leaf.
func (c *checker) walk(n node, parentOff int) ([]byte, error) {
	if !n.isBranch() {
		if n.ptr == nil {
			return nil, fmt.Errorf("leaf with nil value pointer")
		}
		name := n.leafName()
		if name == nil {
			return nil, fmt.Errorf("leaf with nil name in slot")
		}
		var k lookupKey
		klen := nameToKey(name, &k)
		key := make([]byte, klen+1)
		copy(key, k[:klen+1])
		if c.seen && bytes.Compare(c.prev, key) >= 0 {
			return nil, fmt.Errorf("leaf %s out of order", name)
		}
		c.prev = key
		c.seen = true
		c.leaves++
		return key, nil
	}

	off := n.keyOff()
	if off <= parentOff {
		return nil, fmt.Errorf("key offset %d not above parent offset %d", off, parentOff)
	}
	max := n.twigMax()
	if max < 2 {
		return nil, fmt.Errorf("branch at offset %d with %d twigs", off, max)
	}
	page := n.ref >> pageBits
	if int(page) >= len(c.t.mem.pages) || c.t.mem.pages[page] == nil {
		return nil, fmt.Errorf("branch at offset %d references dead page %d", off, page)
	}
	if n.ref&pageMask+uint32(max) > pageSize {
		return nil, fmt.Errorf("twig vector at ref %d overruns its page", n.ref)
	}

	var first []byte
	pos := 0
	for bit := byte(shiftNobyte); bit < shiftOffset; bit++ {
		if !n.hasTwig(bit) {
			continue
		}
		if got := n.twigPos(bit); got != pos {
			return nil, fmt.Errorf("twig %d at position %d, bitmap says %d", bit, pos, got)
		}
		sub, err := c.walk(*c.t.mem.twig(n.ref, pos), off)
		if err != nil {
			return nil, err
		}
		// the twig bit must match the subtree keys at this offset
		got := byte(shiftNobyte)
		if off < len(sub)-1 {
			got = sub[off]
		}
		if got != bit {
			return nil, fmt.Errorf("twig bit %d at offset %d, subtree key says %d", bit, off, got)
		}
		if first == nil {
			first = sub
		} else if !bytes.Equal(first[:off], sub[:off]) {
			return nil, fmt.Errorf("subtree keys disagree below offset %d", off)
		}
		pos++
	}
	if pos != max {
		return nil, fmt.Errorf("bitmap popcount %d, visited %d twigs", max, pos)
	}
	return first, nil
}
