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
	"fmt"
	"io"
	"unsafe"
)

const nodeBytes = int(unsafe.Sizeof(node{}))

// memTotals sums the page table.
func (t *Trie) memTotals() (pages, used, free, keep int) {
	for p := range t.mem.pages {
		if t.mem.pages[p] == nil {
			continue
		}
		u := &t.mem.usage[p]
		pages++
		used += int(u.used)
		free += int(u.free)
		keep += int(u.keep)
	}
	return
}

// GetStats reports trie occupancy and collector counters, keyed the way
// the metrics exporter expects.
func (t *Trie) GetStats() map[string]int64 {
	pages, used, free, keep := t.memTotals()
	return map[string]int64{
		"leaves":        int64(t.count),
		"pages":         int64(pages),
		"slots":         int64(len(t.mem.pages)),
		"nodes.used":    int64(used),
		"nodes.free":    int64(free),
		"nodes.keep":    int64(keep),
		"nodes.live":    int64(keep + used - free),
		"garbage":       int64(t.mem.garbage),
		"bytes":         int64(pages * pageSize * nodeBytes),
		"gc.runs":       int64(t.mem.gcRuns),
		"gc.time.ms":    int64(t.mem.gcTime.Mean() * 1000 * float64(t.mem.gcRuns)),
		"gc.pages.mean": int64(t.mem.gcSpace.Mean()),
	}
}

// PrintMemStats writes a human-readable memory summary to w and returns
// the total bytes the trie holds in pages and page tables.
func (t *Trie) PrintMemStats(w io.Writer) int {
	pages, used, free, keep := t.memTotals()
	total := pages*pageSize*nodeBytes +
		len(t.mem.pages)*int(unsafe.Sizeof([]node(nil))) +
		len(t.mem.usage)*int(unsafe.Sizeof(pageUsage{}))
	fmt.Fprintf(w, "%d leaves in %d pages (%d table slots), %d bytes\n",
		t.count, pages, len(t.mem.pages), total)
	fmt.Fprintf(w, "nodes: %d used, %d free, %d keep, %d live; garbage %d\n",
		used, free, keep, keep+used-free, t.mem.garbage)
	fmt.Fprintf(w, "gc: %d runs, mean %.3fms (stddev %.3fms), mean %.1f pages released\n",
		t.mem.gcRuns,
		t.mem.gcTime.Mean()*1000, t.mem.gcTime.Stddev()*1000,
		t.mem.gcSpace.Mean())
	return total
}
