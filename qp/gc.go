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
	"time"

	"github.com/golang/glog"
)

const (
	// maxTwigs bounds a twig vector: the bitmap spans bits 1..47.
	maxTwigs = 48

	// minUsage is the occupancy below which a page's vectors are
	// evacuated during compaction. Pages a snapshot keeps report zero
	// occupancy of their own, so compaction drains them completely.
	minUsage = pageSize - pageSize/16

	// maxGarbage is the retired-node count that triggers a collection
	// from the mutating operations.
	maxGarbage = 1 << 20
)

// Compact runs the garbage collector: live twig vectors are copied out
// of sparse pages, and pages left empty are returned to the allocator.
func (t *Trie) Compact() {
	t.collect(nil)
}

func (t *Trie) maybeCompact() {
	if t.mem.garbage > maxGarbage {
		t.collect(nil)
	}
}

// collect compacts the trie and reclaims empty pages. When deferred is
// non-nil the reclaimed pages are appended to it instead of being
// dropped, so a finishing copy-on-write transaction can hold them until
// the old version is unpublished.
func (t *Trie) collect(deferred *[][]node) {
	start := time.Now()
	// Evacuations target fresh pages, never the pages being drained.
	t.mem.allocReset()
	t.compactNode(&t.root)
	released := t.reclaim(deferred)
	elapsed := time.Since(start)
	t.mem.gcTime.Add(elapsed.Seconds())
	t.mem.gcSpace.Add(float64(released))
	t.mem.gcRuns++
	glog.V(1).Infof("qp gc: %d leaves, %d pages released, %v", t.count, released, elapsed)
}

// compactNode walks the trie from n copying each branch's twig vector
// into a stack buffer and recursing into the branch children of the
// copy. Children that relocate update their node in the copy, so after
// the recursion a difference between copy and source means the vector
// must move to stay coherent. The vector is also evacuated when its
// page is too empty to be worth keeping.
//
// n always lives in writable memory: the root is in the trie record and
// every deeper node is inside its parent's stack copy.
func (t *Trie) compactNode(n *node) {
	if !n.isBranch() {
		return
	}
	max := n.twigMax()
	var buf [maxTwigs]node
	copy(buf[:max], t.mem.twigs(n.ref, max))
	for i := 0; i < max; i++ {
		t.compactNode(&buf[i])
	}
	u := &t.mem.usage[n.ref>>pageBits]
	if u.used-u.free < minUsage || !nodesEqual(buf[:max], t.mem.twigs(n.ref, max)) {
		ref := t.mem.alloc(max)
		copy(t.mem.twigs(ref, max), buf[:max])
		t.mem.landfill(n.ref, max)
		n.ref = ref
	}
}

// reclaim frees every page holding no live nodes, other than the one
// allocation is parked on, returning how many pages went.
func (t *Trie) reclaim(deferred *[][]node) int {
	m := &t.mem
	released := 0
	for p := range m.pages {
		if uint32(p) == m.here || m.pages[p] == nil {
			continue
		}
		u := &m.usage[p]
		if u.keep+u.used-u.free != 0 {
			continue
		}
		m.garbage -= u.free
		if deferred != nil {
			*deferred = append(*deferred, m.pages[p])
		}
		m.pages[p] = nil
		m.usage[p] = pageUsage{}
		released++
	}
	return released
}
