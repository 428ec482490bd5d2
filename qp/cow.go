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
	"sync/atomic"
)

// CowStart opens a copy-on-write transaction and returns the new trie
// version the writer mutates. The snapshot shares every page with the
// new version; the keep counters mark them immutable, and mutating
// operations evacuate any shared vector before touching it, so readers
// of the snapshot never observe a change.
//
// At most one transaction may be open per trie; a second CowStart
// before CowFinish is a programmer error and panics. Serializing
// writers is the embedder's job.
func (t *Trie) CowStart() *Trie {
	if t.mem.cowOpen {
		panic("qp: copy-on-write transaction already open")
	}
	if t.mem.parent != nil {
		panic("qp: CowStart on an unfinished copy-on-write trie")
	}
	t.mem.cowOpen = true

	nt := &Trie{count: t.count, root: t.root, mem: newMem()}
	nt.mem.pages = make([][]node, len(t.mem.pages))
	nt.mem.usage = make([]pageUsage, len(t.mem.usage))
	copy(nt.mem.pages, t.mem.pages)
	copy(nt.mem.usage, t.mem.usage)
	nt.mem.here = t.mem.here
	nt.mem.parent = t
	// Every inherited page is snapshot property: nothing in it may be
	// overwritten, and none of its garbage is ours to count.
	for p := range nt.mem.usage {
		u := &nt.mem.usage[p]
		if nt.mem.pages[p] == nil {
			*u = pageUsage{}
			continue
		}
		u.keep = u.used
		u.used = 0
		u.free = 0
	}
	nt.mem.allocReset()
	return nt
}

// CowFinish closes the transaction this trie was created by. The trie
// is compacted so that nothing it references remains in a shared page,
// the keep marks are dropped, and pages left empty are detached while
// the snapshot keeps its own references to them. After CowFinish the
// trie is self-contained and ready to be published; the publishing
// store is the linearization point and is the embedder's (or a
// Handle's) atomic operation.
//
// CowFinish without a matching CowStart is a programmer error.
func (t *Trie) CowFinish() {
	parent := t.mem.parent
	if parent == nil {
		panic("qp: CowFinish without an open copy-on-write transaction")
	}
	var deferred [][]node
	t.collect(&deferred)
	for p := range t.mem.usage {
		t.mem.usage[p].keep = 0
	}
	// Shared pages are all empty for this version now; detach them.
	t.reclaim(&deferred)
	t.mem.parent = nil
	parent.mem.cowOpen = false
	// deferred pages die with the snapshot; the Go runtime frees them
	// once the last reader of the old version lets go.
	_ = deferred
}

// Handle publishes a trie version to concurrent readers. Load carries
// acquire semantics and Publish release semantics, so a reader sees a
// fully constructed trie; a reader that loaded the old version keeps
// using it undisturbed until it drops the reference.
type Handle struct {
	p atomic.Pointer[Trie]
}

// NewHandle creates a handle publishing t.
func NewHandle(t *Trie) *Handle {
	h := &Handle{}
	h.p.Store(t)
	return h
}

// Current returns the trie version readers should use right now.
func (h *Handle) Current() *Trie {
	return h.p.Load()
}

// Publish makes t the current version. Call only with a trie whose
// transaction has been finished.
func (h *Handle) Publish(t *Trie) {
	if t.mem.parent != nil {
		panic("qp: publishing a trie with an open transaction")
	}
	h.p.Store(t)
}
