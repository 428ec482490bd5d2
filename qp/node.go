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
	"math/bits"
	"unsafe"

	"github.com/facebook/dns/qptrie/dnsname"
)

// node is a qp-trie node, either a branch or a leaf.
//
// A branch packs into index a non-zero tag bit, a 46-bit bitmap marking
// which twigs are present, and the 16-bit offset of the key byte that
// selects the child twig; ref is the node reference of the twig vector,
// a packed sparse vector of children.
//
// A leaf holds the value pointer in ptr (so index keeps its tag bit
// clear) and in ref the byte offset of the domain-name slot inside the
// value, which is how a leaf recovers its key without a second pointer.
//
// The reference implementation fuses all of this into 12 bytes of raw
// words; Go has no bit-level control over pointers, so the value pointer
// gets its own field and the rest of the layout is kept.
type node struct {
	index uint64
	ptr   unsafe.Pointer
	ref   uint32
}

// branchTag is the value of the node type tag bit.
const branchTag = uint64(1) << shiftBranch

func (n *node) isBranch() bool {
	return n.index&branchTag != 0
}

// keyOff extracts the key byte offset of a branch.
func (n *node) keyOff() int {
	return int(n.index >> shiftOffset)
}

// twigBit returns the bit that identifies this node's twig for the key.
// Past the end of the key the answer is always NOBYTE, which is also
// where the key's terminator lives.
func (n *node) twigBit(k *lookupKey, len int) byte {
	if off := n.keyOff(); off < len {
		return k[off]
	}
	return shiftNobyte
}

// hasTwig reports whether the twig identified by bit is present.
func (n *node) hasTwig(bit byte) bool {
	return n.index&(uint64(1)<<bit) != 0
}

// twigPos is the position of a twig within the packed sparse vector:
// the weight of the lesser bitmap bits, the tag bit excluded.
func (n *node) twigPos(bit byte) int {
	mask := (uint64(1) << bit) - 1 - branchTag
	return bits.OnesCount64(n.index & mask)
}

// twigMax is the number of twigs. The offset field sits directly above
// the bitmap, so the bits below it cover the whole bitmap.
func (n *node) twigMax() int {
	return n.twigPos(shiftOffset)
}

// leafName recovers the domain name indexing a leaf through the name
// slot inside the value.
func (n *node) leafName() *dnsname.Name {
	return *(**dnsname.Name)(unsafe.Add(n.ptr, uintptr(n.ref)))
}

// leafValue returns the value pointer of a leaf, nil in an empty root.
func (n *node) leafValue() unsafe.Pointer {
	return n.ptr
}

// newLeaf builds a leaf node for a value whose name slot lives slotOff
// bytes into the value.
func newLeaf(val unsafe.Pointer, slotOff uintptr) node {
	return node{ptr: val, ref: uint32(slotOff)}
}

// setBranch turns n into a branch with the given bitmap bits, key byte
// offset, and twig vector reference.
func (n *node) setBranch(bitmap uint64, off int, ref uint32) {
	n.index = branchTag | bitmap | uint64(off)<<shiftOffset
	n.ptr = nil
	n.ref = ref
}

func nodesEqual(a, b []node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
