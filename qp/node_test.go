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
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/facebook/dns/qptrie/dnsname"
)

// leafRec places the name slot away from the front of the value so the
// offset arithmetic is actually exercised.
type leafRec struct {
	serial uint64
	name   *dnsname.Name
}

func newLeafRec(s string) *leafRec {
	return &leafRec{name: dnsname.MustNew(s)}
}

func (r *leafRec) leaf() node {
	off := uintptr(unsafe.Pointer(&r.name)) - uintptr(unsafe.Pointer(r))
	return newLeaf(unsafe.Pointer(r), off)
}

func TestLeafEncoding(t *testing.T) {
	rec := newLeafRec("www.example.com")
	n := rec.leaf()
	require.False(t, n.isBranch())
	require.Equal(t, unsafe.Pointer(rec), n.leafValue())
	require.True(t, rec.name.Equal(n.leafName()))
	require.NotZero(t, n.ref)
}

func TestBranchEncoding(t *testing.T) {
	var n node
	bitmap := uint64(1)<<shiftNobyte | uint64(1)<<0x13 | uint64(1)<<0x2c
	n.setBranch(bitmap, 17, 0x00003007)
	require.True(t, n.isBranch())
	require.Equal(t, 17, n.keyOff())
	require.Equal(t, uint32(0x00003007), n.ref)

	require.True(t, n.hasTwig(shiftNobyte))
	require.True(t, n.hasTwig(0x13))
	require.True(t, n.hasTwig(0x2c))
	require.False(t, n.hasTwig(0x14))

	require.Equal(t, 3, n.twigMax())
	require.Equal(t, 0, n.twigPos(shiftNobyte))
	require.Equal(t, 1, n.twigPos(0x13))
	require.Equal(t, 2, n.twigPos(0x2c))
	// position of an absent bit is where it would be inserted
	require.Equal(t, 1, n.twigPos(0x05))
}

func TestBranchOffsetRange(t *testing.T) {
	var n node
	n.setBranch(uint64(1)<<shiftNobyte|uint64(1)<<2, maxKeyLen-1, 0)
	require.Equal(t, maxKeyLen-1, n.keyOff())
}

func TestTwigBit(t *testing.T) {
	var k lookupKey
	klen := nameToKey(dnsname.MustNew("a.org"), &k)

	var n node
	n.setBranch(uint64(1)<<shiftNobyte|uint64(1)<<2, 0, 0)
	require.Equal(t, k[0], n.twigBit(&k, klen))

	// past the end of the key every branch sees NOBYTE
	n.setBranch(uint64(1)<<shiftNobyte|uint64(1)<<2, klen+3, 0)
	require.Equal(t, byte(shiftNobyte), n.twigBit(&k, klen))
}
