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
	"github.com/eclesh/welford"
)

// Pages hold a power-of-two number of nodes so a node reference splits
// into page number and offset with a shift and a mask.
const (
	pageBits = 12
	pageSize = 1 << pageBits
	pageMask = pageSize - 1
)

// pageUsage tracks how a page is occupied.
//
// used is the bump pointer. free counts nodes in the page that this trie
// has retired as garbage. keep counts nodes shared with a previous
// snapshot under copy-on-write; while keep is non-zero the page is
// immutable for this trie. Live nodes = keep + used - free.
type pageUsage struct {
	used uint32
	free uint32
	keep uint32
}

// mem is the per-trie allocator and collector state. The page pointers
// and the usage counters are separate slices because the usage counters
// are not touched on the lookup fast path.
type mem struct {
	pages   [][]node
	usage   []pageUsage
	here    uint32 // page currently used for allocation
	garbage uint32 // total retired nodes not yet collected

	gcTime  *welford.Stats // seconds per collection
	gcSpace *welford.Stats // pages released per collection
	gcRuns  uint64

	parent  *Trie // set while this trie is an open copy-on-write child
	cowOpen bool  // set while a copy-on-write child of this trie is open
}

func newMem() mem {
	return mem{gcTime: welford.New(), gcSpace: welford.New()}
}

// twigs returns the vector of n nodes at ref.
func (m *mem) twigs(ref uint32, n int) []node {
	off := ref & pageMask
	return m.pages[ref>>pageBits][off : off+uint32(n)]
}

// twig returns the node at position pos in the vector at ref.
func (m *mem) twig(ref uint32, pos int) *node {
	return &m.pages[ref>>pageBits][ref&pageMask+uint32(pos)]
}

// alloc reserves size contiguous nodes and returns their reference.
// The fast path bumps the current page when used+size <= pageSize, so a
// page can be filled exactly to the brim.
func (m *mem) alloc(size int) uint32 {
	u := &m.usage[m.here]
	if u.used+uint32(size) <= pageSize {
		off := u.used
		u.used += uint32(size)
		return m.here<<pageBits | off
	}
	return m.allocSlow(size)
}

// allocSlow finds an empty page-table slot, scanning forward from the
// current page and wrapping, growing the table when every slot is
// occupied, then installs a fresh page there.
func (m *mem) allocSlow(size int) uint32 {
	slot := -1
	for p := int(m.here) + 1; p < len(m.pages); p++ {
		if m.pages[p] == nil {
			slot = p
			break
		}
	}
	if slot < 0 {
		for p := 0; p <= int(m.here) && p < len(m.pages); p++ {
			if m.pages[p] == nil {
				slot = p
				break
			}
		}
	}
	if slot < 0 {
		slot = len(m.pages)
		grown := len(m.pages)*3/2 + 1
		pages := make([][]node, grown)
		usage := make([]pageUsage, grown)
		copy(pages, m.pages)
		copy(usage, m.usage)
		m.pages = pages
		m.usage = usage
	}
	m.pages[slot] = make([]node, pageSize)
	m.usage[slot] = pageUsage{used: uint32(size)}
	m.here = uint32(slot)
	return m.here << pageBits
}

// landfill retires the vector of size nodes at ref as garbage. Twigs in
// a kept page still belong to the snapshot that shares the page, so they
// do not count against this trie.
func (m *mem) landfill(ref uint32, size int) {
	u := &m.usage[ref>>pageBits]
	if u.keep > 0 {
		return
	}
	u.free += uint32(size)
	m.garbage += uint32(size)
}

// allocReset installs a fresh empty page as the allocation target, so
// that subsequent writes never land in pages the collector or a
// snapshot is concerned with.
func (m *mem) allocReset() {
	m.allocSlow(0)
}

// sharedPage reports whether the page holding ref is immutable for this
// trie because a snapshot still references it.
func (m *mem) sharedPage(ref uint32) bool {
	return m.usage[ref>>pageBits].keep > 0
}
