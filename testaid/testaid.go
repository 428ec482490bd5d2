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

// Package testaid generates deterministic domain-name corpora for the
// trie tests and the selftest command.
package testaid

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/facebook/dns/qptrie/dnsname"
)

// Label alphabet skewed towards common hostname characters, with a few
// uncommon bytes mixed in so the escaped two-shift key paths get
// exercised too.
const (
	hostChars   = "abcdefghijklmnopqrstuvwxyz0123456789-"
	escapeChars = "*!~+"
	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var tlds = []string{"com", "net", "org", "io", "dev", "example"}

// RandomName produces one random hostname from rng.
func RandomName(rng *rand.Rand) string {
	labels := 1 + rng.Intn(3)
	parts := make([]string, 0, labels+1)
	for i := 0; i < labels; i++ {
		parts = append(parts, randomLabel(rng))
	}
	parts = append(parts, tlds[rng.Intn(len(tlds))])
	return strings.Join(parts, ".")
}

func randomLabel(rng *rand.Rand) string {
	n := 1 + rng.Intn(12)
	var sb strings.Builder
	for i := 0; i < n; i++ {
		switch r := rng.Intn(100); {
		case r < 88:
			sb.WriteByte(hostChars[rng.Intn(len(hostChars))])
		case r < 96:
			sb.WriteByte(upperChars[rng.Intn(len(upperChars))])
		default:
			sb.WriteByte(escapeChars[rng.Intn(len(escapeChars))])
		}
	}
	return sb.String()
}

// RandomNames returns n distinct parsed names from a seeded generator.
// The same seed always yields the same corpus.
func RandomNames(seed int64, n int) []*dnsname.Name {
	rng := rand.New(rand.NewSource(seed))
	seen := make(map[string]bool, n)
	names := make([]*dnsname.Name, 0, n)
	for len(names) < n {
		s := RandomName(rng)
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, dnsname.MustNew(s))
	}
	return names
}

// SortNames orders names the way the trie does: label by label from
// the TLD, bytes compared by value with ASCII case folded, which the
// trie's key table preserves. It is the reference model the tests compare traversal
// order against.
func SortNames(names []*dnsname.Name) []*dnsname.Name {
	out := make([]*dnsname.Name, len(names))
	copy(out, names)
	sort.SliceStable(out, func(i, j int) bool {
		return Less(out[i], out[j])
	})
	return out
}

// Less reports whether a sorts before b in canonical DNS order.
func Less(a, b *dnsname.Name) bool {
	an, bn := a.LabelCount(), b.LabelCount()
	for i := 0; i < an && i < bn; i++ {
		al, bl := a.Label(i), b.Label(i)
		for j := 0; j < len(al) && j < len(bl); j++ {
			av, bv := foldByte(al[j]), foldByte(bl[j])
			if av != bv {
				return av < bv
			}
		}
		if len(al) != len(bl) {
			return len(al) < len(bl)
		}
	}
	return an < bn
}

func foldByte(b byte) byte {
	if 'A' <= b && b <= 'Z' {
		return b + 'a' - 'A'
	}
	return b
}

// WriteNameList renders names one per line for the loader.
func WriteNameList(names []*dnsname.Name) string {
	var sb strings.Builder
	for _, n := range names {
		fmt.Fprintln(&sb, strings.TrimSuffix(n.String(), "."))
	}
	return sb.String()
}
