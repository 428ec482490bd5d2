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
	"github.com/facebook/dns/qptrie/dnsname"
)

// A lookup key is a sequence of shifts: small integers naming bit
// positions in a branch bitmap. A domain name is at most 255 bytes and
// each byte expands to one or two shifts, so 512 is enough for any name
// plus the terminator.
//
// Keys are ephemeral and live on the caller's stack.
type lookupKey [maxKeyLen]byte

const maxKeyLen = 512

// Shift assignments inside the index word. The tag bit is the bottom
// bit, the label separator sits right above it, then the bitmap proper,
// and the 16-bit key offset occupies the top of the word.
const (
	shiftBranch = 0  // branch / leaf tag
	shiftNobyte = 1  // label separator has no byte value
	shiftBitmap = 2  // first bit assigned to a byte value
	shiftOffset = 48 // key byte offset
)

// byteToBits maps bytes in a DNS name to bit positions in the index
// word. The low 8 bits are always emitted; if the high 8 bits are
// non-zero the byte is uncommon and is emitted as an escape pair. The 41
// common hostname characters (hyphen, dot, slash, digits, underscore,
// backquote, letters with upper case folded onto lower) take a single
// shift each, so order of shift sequences matches canonical name order.
var byteToBits = [256]uint16{
	0x0202, 0x0302, 0x0402, 0x0502, 0x0602, 0x0702, 0x0802, 0x0902,
	0x0a02, 0x0b02, 0x0c02, 0x0d02, 0x0e02, 0x0f02, 0x1002, 0x1102,
	0x1202, 0x1302, 0x1402, 0x1502, 0x1602, 0x1702, 0x1802, 0x1902,
	0x1a02, 0x1b02, 0x1c02, 0x1d02, 0x1e02, 0x1f02, 0x2002, 0x2102,
	0x2202, 0x2302, 0x2402, 0x2502, 0x2602, 0x2702, 0x2802, 0x2902,
	0x2a02, 0x2b02, 0x2c02, 0x2d02, 0x2e02, 0x03, 0x04, 0x05,
	0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d,
	0x0e, 0x0f, 0x0210, 0x0310, 0x0410, 0x0510, 0x0610, 0x0710,
	0x0810, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, 0x19,
	0x1a, 0x1b, 0x1c, 0x1d, 0x1e, 0x1f, 0x20, 0x21,
	0x22, 0x23, 0x24, 0x25, 0x26, 0x27, 0x28, 0x29,
	0x2a, 0x2b, 0x2c, 0x0910, 0x0a10, 0x0b10, 0x0c10, 0x11,
	0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, 0x19,
	0x1a, 0x1b, 0x1c, 0x1d, 0x1e, 0x1f, 0x20, 0x21,
	0x22, 0x23, 0x24, 0x25, 0x26, 0x27, 0x28, 0x29,
	0x2a, 0x2b, 0x2c, 0x022d, 0x032d, 0x042d, 0x052d, 0x062d,
	0x072d, 0x082d, 0x092d, 0x0a2d, 0x0b2d, 0x0c2d, 0x0d2d, 0x0e2d,
	0x0f2d, 0x102d, 0x112d, 0x122d, 0x132d, 0x142d, 0x152d, 0x162d,
	0x172d, 0x182d, 0x192d, 0x1a2d, 0x1b2d, 0x1c2d, 0x1d2d, 0x1e2d,
	0x1f2d, 0x202d, 0x212d, 0x222d, 0x232d, 0x242d, 0x252d, 0x262d,
	0x272d, 0x282d, 0x292d, 0x2a2d, 0x2b2d, 0x2c2d, 0x2d2d, 0x2e2d,
	0x2f2d, 0x022e, 0x032e, 0x042e, 0x052e, 0x062e, 0x072e, 0x082e,
	0x092e, 0x0a2e, 0x0b2e, 0x0c2e, 0x0d2e, 0x0e2e, 0x0f2e, 0x102e,
	0x112e, 0x122e, 0x132e, 0x142e, 0x152e, 0x162e, 0x172e, 0x182e,
	0x192e, 0x1a2e, 0x1b2e, 0x1c2e, 0x1d2e, 0x1e2e, 0x1f2e, 0x202e,
	0x212e, 0x222e, 0x232e, 0x242e, 0x252e, 0x262e, 0x272e, 0x282e,
	0x292e, 0x2a2e, 0x2b2e, 0x2c2e, 0x2d2e, 0x2e2e, 0x2f2e, 0x022f,
	0x032f, 0x042f, 0x052f, 0x062f, 0x072f, 0x082f, 0x092f, 0x0a2f,
	0x0b2f, 0x0c2f, 0x0d2f, 0x0e2f, 0x0f2f, 0x102f, 0x112f, 0x122f,
	0x132f, 0x142f, 0x152f, 0x162f, 0x172f, 0x182f, 0x192f, 0x1a2f,
	0x1b2f, 0x1c2f, 0x1d2f, 0x1e2f, 0x1f2f, 0x202f, 0x212f, 0x222f,
	0x232f, 0x242f, 0x252f, 0x262f, 0x272f, 0x282f, 0x292f, 0x2a2f,
}

// nameToKey converts a domain name into a trie lookup key.
// Names do not need to be normalized to lower case; the table folds
// upper-case letters onto the same shifts as lower case.
//
// Labels are consumed from the TLD towards the leftmost label, with one
// NOBYTE shift after each label. The returned length excludes the
// terminating NOBYTE written at key[len]; a double NOBYTE is what
// distinguishes end-of-name from end-of-label.
func nameToKey(name *dnsname.Name, k *lookupKey) int {
	off := 0
	for i := 0; i < name.LabelCount(); i++ {
		label := name.Label(i)
		for _, c := range label {
			bits := byteToBits[c]
			k[off] = byte(bits)
			off++
			// escaped?
			if bits>>8 != 0 {
				k[off] = byte(bits >> 8)
				off++
			}
		}
		k[off] = shiftNobyte
		off++
	}
	k[off] = shiftNobyte
	return off
}
