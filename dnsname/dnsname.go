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

// Package dnsname provides the immutable domain-name object used as the
// lookup key of the qp-trie. A Name holds the wire-format encoding of a
// fully qualified domain name together with a table of label offsets, so
// that the trie's key codec can walk labels from the TLD towards the
// leftmost label without reparsing.
package dnsname

import (
	"fmt"

	"github.com/miekg/dns"
)

// MaxWireLen is the longest wire-format encoding of a domain name.
const MaxWireLen = 255

// Name is a parsed, immutable, fully qualified domain name.
// Names are not case-normalized; comparison folds ASCII case instead,
// which matches the case-insensitive ordering of the trie key codec.
type Name struct {
	wire   []byte  // wire-format name, root label included
	labels []uint8 // offset of each non-root label in wire, leftmost first
	fqdn   string  // presentation form as given, for logging
}

// New parses a presentation-format domain name.
func New(s string) (*Name, error) {
	fqdn := dns.Fqdn(s)
	buf := make([]byte, MaxWireLen)
	off, err := dns.PackDomainName(fqdn, buf, 0, nil, false)
	if err != nil {
		return nil, fmt.Errorf("packing domain name %q: %w", s, err)
	}
	return FromWire(buf[:off], fqdn)
}

// MustNew is New for names known to be valid, such as test literals.
func MustNew(s string) *Name {
	n, err := New(s)
	if err != nil {
		panic(err)
	}
	return n
}

// FromWire builds a Name from a wire-format encoding. The fqdn argument
// is only used for String and may be empty, in which case the
// presentation form is derived from the wire data.
func FromWire(wire []byte, fqdn string) (*Name, error) {
	if len(wire) == 0 || len(wire) > MaxWireLen {
		return nil, fmt.Errorf("wire name length %d out of range", len(wire))
	}
	var labels []uint8
	off := 0
	for {
		if off >= len(wire) {
			return nil, fmt.Errorf("wire name truncated at offset %d", off)
		}
		l := int(wire[off])
		if l == 0 {
			break
		}
		if l > 63 || off+1+l > len(wire) {
			return nil, fmt.Errorf("bad label length %d at offset %d", l, off)
		}
		labels = append(labels, uint8(off))
		off += 1 + l
	}
	if off+1 != len(wire) {
		return nil, fmt.Errorf("trailing bytes after root label")
	}
	w := make([]byte, len(wire))
	copy(w, wire)
	if fqdn == "" {
		s, _, err := dns.UnpackDomainName(w, 0)
		if err != nil {
			return nil, fmt.Errorf("unpacking wire name: %w", err)
		}
		fqdn = s
	}
	return &Name{wire: w, labels: labels, fqdn: fqdn}, nil
}

// Wire returns the wire-format encoding. Callers must not modify it.
func (n *Name) Wire() []byte {
	return n.wire
}

// LabelCount returns the number of labels, the root label excluded.
func (n *Name) LabelCount() int {
	return len(n.labels)
}

// Label returns the bytes of the i-th label counting from the root end:
// Label(0) is the TLD, Label(LabelCount()-1) the leftmost label.
// This is the order in which the trie key codec consumes labels.
func (n *Name) Label(i int) []byte {
	off := int(n.labels[len(n.labels)-1-i])
	l := int(n.wire[off])
	return n.wire[off+1 : off+1+l]
}

// Equal reports whether two names are the same domain name,
// folding ASCII case.
func (n *Name) Equal(m *Name) bool {
	if n == m {
		return true
	}
	if m == nil || len(n.wire) != len(m.wire) {
		return false
	}
	for i, b := range n.wire {
		if asciiLower(b) != asciiLower(m.wire[i]) {
			return false
		}
	}
	return true
}

// String returns the presentation form of the name.
func (n *Name) String() string {
	return n.fqdn
}

func asciiLower(b byte) byte {
	if 'A' <= b && b <= 'Z' {
		return b + 'a' - 'A'
	}
	return b
}
