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
	"math/rand"
	"sort"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/facebook/dns/qptrie/dnsname"
	"github.com/facebook/dns/qptrie/testaid"
)

func addRec(t *testing.T, tr *Trie, rec *leafRec) PrevNext {
	t.Helper()
	return tr.Add(unsafe.Pointer(rec), &rec.name)
}

func addName(t *testing.T, tr *Trie, s string) *leafRec {
	t.Helper()
	rec := newLeafRec(s)
	addRec(t, tr, rec)
	return rec
}

func getRec(tr *Trie, name *dnsname.Name) *leafRec {
	return (*leafRec)(tr.Get(name))
}

func names(t *testing.T, tr *Trie) []string {
	t.Helper()
	var out []string
	err := tr.ForEach(func(val unsafe.Pointer) error {
		out = append(out, (*leafRec)(val).name.String())
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestEmptyTrie(t *testing.T) {
	tr := New()
	require.Zero(t, tr.Count())
	require.Nil(t, tr.Get(dnsname.MustNew("example.org")))
	val, exact := tr.FindLE(dnsname.MustNew("example.org"))
	require.Nil(t, val)
	require.False(t, exact)
	tr.Del(dnsname.MustNew("example.org"))
	require.Empty(t, names(t, tr))
	require.NoError(t, tr.CheckIntegrity())
}

func TestSingleLeaf(t *testing.T) {
	tr := New()
	rec := addName(t, tr, "example.org")
	require.Equal(t, 1, tr.Count())
	require.Equal(t, rec, getRec(tr, rec.name))
	require.NoError(t, tr.CheckIntegrity())

	val, exact := tr.FindLE(rec.name)
	require.True(t, exact)
	require.Equal(t, rec, (*leafRec)(val))

	// smaller than everything
	val, exact = tr.FindLE(dnsname.MustNew("a.org"))
	require.False(t, exact)
	require.Nil(t, val)

	// deletion restores the empty state
	tr.Del(rec.name)
	require.Zero(t, tr.Count())
	require.Nil(t, getRec(tr, rec.name))
	require.NoError(t, tr.CheckIntegrity())
}

func TestOrderedScenario(t *testing.T) {
	tr := New()
	addName(t, tr, "b")
	a := addName(t, tr, "a")
	c := addName(t, tr, "c")
	require.Equal(t, []string{"a.", "b.", "c."}, names(t, tr))

	// between a and b
	val, exact := tr.FindLE(dnsname.MustNew("aa"))
	require.False(t, exact)
	require.Equal(t, a, (*leafRec)(val))

	// after everything
	val, exact = tr.FindLE(dnsname.MustNew("d"))
	require.False(t, exact)
	require.Equal(t, c, (*leafRec)(val))

	// exact
	val, exact = tr.FindLE(a.name)
	require.True(t, exact)
	require.Equal(t, a, (*leafRec)(val))
}

func TestFindLELeftEdge(t *testing.T) {
	tr := New()
	for _, s := range []string{"m", "n", "o"} {
		addName(t, tr, s)
	}
	val, exact := tr.FindLE(dnsname.MustNew("a"))
	require.False(t, exact)
	require.Nil(t, val)
}

func TestAddNeighbors(t *testing.T) {
	tr := New()
	b := addName(t, tr, "b.example")

	// b is the only name, so it is the new leaf's predecessor
	pn := addRec(t, tr, newLeafRec("x.example"))
	require.Equal(t, b, (*leafRec)(pn.Prev))
	require.Nil(t, pn.Next)

	pn = addRec(t, tr, newLeafRec("a.example"))
	require.Nil(t, pn.Prev)
	require.Equal(t, b, (*leafRec)(pn.Next))

	pn = addRec(t, tr, newLeafRec("m.example"))
	require.Equal(t, "b.example.", (*leafRec)(pn.Prev).name.String())
	require.Equal(t, "x.example.", (*leafRec)(pn.Next).name.String())
}

func TestAddDuplicatePanics(t *testing.T) {
	tr := New()
	addName(t, tr, "dup.example")
	require.Panics(t, func() {
		addRec(t, tr, newLeafRec("dup.example"))
	})
	require.Panics(t, func() {
		// same name under case folding is the same key
		addRec(t, tr, newLeafRec("DUP.example"))
	})
}

func TestCaseInsensitiveLookup(t *testing.T) {
	tr := New()
	rec := addName(t, tr, "WwW.Example.Org")
	require.Equal(t, rec, getRec(tr, dnsname.MustNew("www.example.org")))
	require.Equal(t, rec, getRec(tr, dnsname.MustNew("WWW.EXAMPLE.ORG")))
}

func TestGrowAndShrinkBranch(t *testing.T) {
	tr := New()
	// grow a branch from 2 to more twigs at the same offset
	steps := []string{"a.org", "z.org", "m.org", "c.org", "t.org"}
	for i, s := range steps {
		addName(t, tr, s)
		require.Equal(t, i+1, tr.Count())
		require.NoError(t, tr.CheckIntegrity())
	}
	require.Equal(t,
		[]string{"a.org.", "c.org.", "m.org.", "t.org.", "z.org."},
		names(t, tr))

	// deletion down to a 2-twig collapse
	for _, s := range []string{"m.org", "c.org", "t.org"} {
		tr.Del(dnsname.MustNew(s))
		require.NoError(t, tr.CheckIntegrity())
	}
	require.Equal(t, []string{"a.org.", "z.org."}, names(t, tr))
	tr.Del(dnsname.MustNew("z.org"))
	require.Equal(t, []string{"a.org."}, names(t, tr))
	require.NoError(t, tr.CheckIntegrity())
}

func TestLabelBoundaryOrdering(t *testing.T) {
	// names that differ only by where the label boundary falls
	tr := New()
	for _, s := range []string{"ab.example", "a.b.example", "b.a.example"} {
		addName(t, tr, s)
	}
	require.Equal(t,
		[]string{"b.a.example.", "ab.example.", "a.b.example."},
		names(t, tr))
	require.NoError(t, tr.CheckIntegrity())
}

func TestParentChildNames(t *testing.T) {
	// a zone apex and names below it: the apex key is a strict prefix
	tr := New()
	apex := addName(t, tr, "example.org")
	child := addName(t, tr, "www.example.org")
	require.Equal(t, []string{"example.org.", "www.example.org."}, names(t, tr))

	// an absent sibling finds the apex as its predecessor
	val, exact := tr.FindLE(dnsname.MustNew("mail.example.org"))
	require.False(t, exact)
	require.Equal(t, apex, (*leafRec)(val))

	val, exact = tr.FindLE(dnsname.MustNew("zzz.example.org"))
	require.False(t, exact)
	require.Equal(t, child, (*leafRec)(val))
}

func TestRandomWorkload(t *testing.T) {
	const corpus = 3000
	const ops = 9000

	nameList := testaid.RandomNames(123, corpus)
	recs := make([]*leafRec, corpus)
	for i, n := range nameList {
		recs[i] = &leafRec{name: n}
	}

	tr := New()
	rng := rand.New(rand.NewSource(321))
	present := make(map[int]bool, corpus)
	for op := 0; op < ops; op++ {
		j := rng.Intn(corpus)
		if present[j] {
			tr.Del(nameList[j])
			delete(present, j)
		} else {
			addRec(t, tr, recs[j])
			present[j] = true
		}
		require.Equal(t, len(present), tr.Count())
		if op%500 == 0 {
			require.NoError(t, tr.CheckIntegrity())
		}
	}
	require.NoError(t, tr.CheckIntegrity())

	// membership agrees with the model
	for j, rec := range recs {
		got := getRec(tr, rec.name)
		if present[j] {
			require.Equal(t, rec, got)
		} else {
			require.Nil(t, got)
		}
	}

	// traversal agrees with the reference sort
	var want []*dnsname.Name
	for j := range present {
		want = append(want, nameList[j])
	}
	want = testaid.SortNames(want)
	got := names(t, tr)
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, want[i].String(), got[i])
	}
}

func TestAddNeighborsAgainstModel(t *testing.T) {
	nameList := testaid.RandomNames(55, 400)
	tr := New()
	var inserted []*dnsname.Name
	for _, n := range nameList {
		rec := &leafRec{name: n}
		pn := addRec(t, tr, rec)

		// the model: neighbors in the sorted pre-insertion set
		idx := sort.Search(len(inserted), func(i int) bool {
			return !testaid.Less(inserted[i], n)
		})
		if idx == 0 {
			require.Nil(t, pn.Prev, "prev of %s", n)
		} else {
			require.True(t, (*leafRec)(pn.Prev).name.Equal(inserted[idx-1]),
				"prev of %s: got %s want %s", n, (*leafRec)(pn.Prev).name, inserted[idx-1])
		}
		if idx == len(inserted) {
			require.Nil(t, pn.Next, "next of %s", n)
		} else {
			require.True(t, (*leafRec)(pn.Next).name.Equal(inserted[idx]),
				"next of %s: got %s want %s", n, (*leafRec)(pn.Next).name, inserted[idx])
		}

		inserted = append(inserted, n)
		sort.SliceStable(inserted, func(i, j int) bool {
			return testaid.Less(inserted[i], inserted[j])
		})
	}
}

func TestFindLEAgainstModel(t *testing.T) {
	nameList := testaid.RandomNames(77, 500)
	half := nameList[:250]
	tr := New()
	for _, n := range half {
		addRec(t, tr, &leafRec{name: n})
	}
	sorted := testaid.SortNames(half)

	for _, q := range nameList {
		val, exact := tr.FindLE(q)
		// model answer: greatest inserted name <= q
		idx := sort.Search(len(sorted), func(i int) bool {
			return !testaid.Less(sorted[i], q)
		})
		inSet := idx < len(sorted) && sorted[idx].Equal(q)
		if inSet {
			require.True(t, exact, "FindLE(%s)", q)
			require.True(t, (*leafRec)(val).name.Equal(q))
			continue
		}
		require.False(t, exact, "FindLE(%s)", q)
		if idx == 0 {
			require.Nil(t, val, "FindLE(%s)", q)
		} else {
			require.NotNil(t, val, "FindLE(%s)", q)
			require.True(t, (*leafRec)(val).name.Equal(sorted[idx-1]),
				"FindLE(%s): got %s want %s", q, (*leafRec)(val).name, sorted[idx-1])
		}
	}
}
