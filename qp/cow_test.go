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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/facebook/dns/qptrie/dnsname"
	"github.com/facebook/dns/qptrie/testaid"
)

func TestCowBasic(t *testing.T) {
	old := New()
	var recs []*leafRec
	for _, s := range []string{"a", "b", "c", "d"} {
		rec := newLeafRec(s)
		recs = append(recs, rec)
		addRec(t, old, rec)
	}

	nt := old.CowStart()
	nt.Del(dnsname.MustNew("b"))
	e := newLeafRec("e")
	addRec(t, nt, e)

	// the old version is untouched by the transaction
	require.Equal(t, []string{"a.", "b.", "c.", "d."}, names(t, old))
	require.Equal(t, recs[1], getRec(old, recs[1].name))
	require.Nil(t, getRec(old, e.name))
	require.NoError(t, old.CheckIntegrity())

	nt.CowFinish()
	require.Equal(t, []string{"a.", "c.", "d.", "e."}, names(t, nt))
	require.NoError(t, nt.CheckIntegrity())
	// and still untouched after the transaction finished
	require.Equal(t, []string{"a.", "b.", "c.", "d."}, names(t, old))
	require.NoError(t, old.CheckIntegrity())
}

func TestCowIsolationUnderChurn(t *testing.T) {
	const corpus = 4000
	nameList := testaid.RandomNames(31, corpus)
	old := New()
	for _, n := range nameList[:corpus/2] {
		addRec(t, old, &leafRec{name: n})
	}
	wantOld := names(t, old)

	nt := old.CowStart()
	for _, n := range nameList[corpus/2:] {
		addRec(t, nt, &leafRec{name: n})
	}
	for _, n := range nameList[:corpus/4] {
		nt.Del(n)
	}
	// force collections inside the transaction too
	nt.Compact()

	require.Equal(t, wantOld, names(t, old))
	require.NoError(t, old.CheckIntegrity())
	require.NoError(t, nt.CheckIntegrity())

	nt.CowFinish()
	require.Equal(t, wantOld, names(t, old))
	require.NoError(t, old.CheckIntegrity())
	require.NoError(t, nt.CheckIntegrity())
	require.Equal(t, corpus/2+corpus/4, nt.Count())

	// after finishing, the new version shares nothing that keeps it
	// pinned to the snapshot's pages
	for p := range nt.mem.usage {
		require.Zero(t, nt.mem.usage[p].keep)
	}

	// every expected name resolves on the new version
	for i, n := range nameList {
		got := nt.Get(n)
		if i < corpus/4 {
			require.Nil(t, got)
		} else {
			require.NotNil(t, got)
		}
	}
}

func TestCowSequentialTransactions(t *testing.T) {
	h := NewHandle(New())
	for gen := 0; gen < 5; gen++ {
		old := h.Current()
		nt := old.CowStart()
		rec := newLeafRec(fmt.Sprintf("gen%d.example", gen))
		addRec(t, nt, rec)
		nt.CowFinish()
		h.Publish(nt)
		require.Equal(t, gen+1, h.Current().Count())
		require.NoError(t, h.Current().CheckIntegrity())
	}
}

func TestCowStateMachine(t *testing.T) {
	tr := New()
	nt := tr.CowStart()
	require.Panics(t, func() { tr.CowStart() }, "nested CowStart must panic")
	nt.CowFinish()
	require.Panics(t, func() { nt.CowFinish() }, "CowFinish without start must panic")

	// a finished transaction frees the trie for the next one
	nt2 := nt.CowStart()
	nt2.CowFinish()
}

func TestCowEmptyTrie(t *testing.T) {
	old := New()
	nt := old.CowStart()
	rec := addName(t, nt, "first.example")
	nt.CowFinish()
	require.Zero(t, old.Count())
	require.Equal(t, 1, nt.Count())
	require.Equal(t, rec, getRec(nt, rec.name))
}
