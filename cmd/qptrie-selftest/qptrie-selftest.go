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

// qptrie-selftest runs heavier randomized checks against the qp-trie
// than the unit tests care to: structural invariants after every
// operation of a long random workload, ordered traversal against a
// reference sort, and copy-on-write isolation.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"unsafe"

	"golang.org/x/term"

	"github.com/facebook/dns/qptrie/dnsname"
	"github.com/facebook/dns/qptrie/namedb"
	"github.com/facebook/dns/qptrie/qp"
	"github.com/facebook/dns/qptrie/testaid"
)

func progressLine(format string, args ...interface{}) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return
	}
	fmt.Printf("\u001b[1000D")
	fmt.Printf(format, args...)
}

type entry struct {
	name *dnsname.Name
	in   bool
}

// verifyOps interleaves random insertions and deletions and runs the
// structural invariant checker after every operation.
func verifyOps() error {
	var (
		count int
		ops   int
		seed  int64
		every int
	)
	opsCommand := flag.NewFlagSet("ops", flag.ExitOnError)
	opsCommand.IntVar(&count, "names", 10000, "Size of the name corpus")
	opsCommand.IntVar(&ops, "ops", 30000, "Number of random operations")
	opsCommand.Int64Var(&seed, "seed", 42, "Corpus and workload seed")
	opsCommand.IntVar(&every, "check-every", 1, "Run the invariant checker every N operations")
	if err := opsCommand.Parse(os.Args[2:]); err != nil {
		return err
	}

	names := testaid.RandomNames(seed, count)
	entries := make([]*entry, len(names))
	records := make([]*namedb.Record, len(names))
	for i, n := range names {
		entries[i] = &entry{name: n}
		records[i] = &namedb.Record{Name: n}
	}

	t := qp.New()
	rng := rand.New(rand.NewSource(seed))
	live := 0
	for i := 0; i < ops; i++ {
		j := rng.Intn(len(entries))
		e := entries[j]
		if e.in {
			t.Del(e.name)
			e.in = false
			live--
		} else {
			rec := records[j]
			t.Add(unsafe.Pointer(rec), &rec.Name)
			e.in = true
			live++
		}
		if t.Count() != live {
			return fmt.Errorf("op %d: count %d, want %d", i, t.Count(), live)
		}
		if i%every == 0 {
			if err := t.CheckIntegrity(); err != nil {
				return fmt.Errorf("op %d: %w", i, err)
			}
		}
		if i%1000 == 0 {
			progressLine("op %d/%d (%d live)", i, ops, live)
		}
	}
	fmt.Println()
	if err := t.CheckIntegrity(); err != nil {
		return err
	}
	log.Printf("%d operations, final count %d, invariants held", ops, live)
	return nil
}

// verifyOrder loads a corpus and cross-checks traversal order, Get and
// FindLE against a sorted reference model.
func verifyOrder() error {
	var (
		count int
		seed  int64
	)
	orderCommand := flag.NewFlagSet("order", flag.ExitOnError)
	orderCommand.IntVar(&count, "names", 50000, "Size of the name corpus")
	orderCommand.Int64Var(&seed, "seed", 7, "Corpus seed")
	if err := orderCommand.Parse(os.Args[2:]); err != nil {
		return err
	}

	names := testaid.RandomNames(seed, count)
	t := qp.New()
	records := make([]*namedb.Record, len(names))
	for i, n := range names {
		records[i] = &namedb.Record{Name: n}
		t.Add(unsafe.Pointer(records[i]), &records[i].Name)
	}
	sorted := testaid.SortNames(names)

	i := 0
	err := t.ForEach(func(val unsafe.Pointer) error {
		rec := (*namedb.Record)(val)
		if !rec.Name.Equal(sorted[i]) {
			return fmt.Errorf("position %d: got %s, want %s", i, rec.Name, sorted[i])
		}
		i++
		return nil
	})
	if err != nil {
		return err
	}
	if i != len(sorted) {
		return fmt.Errorf("traversal visited %d names, want %d", i, len(sorted))
	}

	for qi, n := range names {
		if got := t.Get(n); got == nil {
			return fmt.Errorf("Get(%s) missed", n)
		}
		if val, exact := t.FindLE(n); !exact || val == nil {
			return fmt.Errorf("FindLE(%s) not exact", n)
		}
		if qi%1000 == 0 {
			progressLine("queried %d/%d", qi, len(names))
		}
	}
	fmt.Println()
	log.Printf("order, Get and FindLE agree over %d names", count)
	return nil
}

// verifyCow mutates a transaction heavily while asserting the
// published snapshot never moves.
func verifyCow() error {
	var (
		count int
		churn int
		seed  int64
	)
	cowCommand := flag.NewFlagSet("cow", flag.ExitOnError)
	cowCommand.IntVar(&count, "names", 20000, "Initial corpus size")
	cowCommand.IntVar(&churn, "churn", 10000, "Mutations inside the transaction")
	cowCommand.Int64Var(&seed, "seed", 99, "Corpus seed")
	if err := cowCommand.Parse(os.Args[2:]); err != nil {
		return err
	}

	names := testaid.RandomNames(seed, count+churn)
	initial, extra := names[:count], names[count:]

	db := namedb.NewDB()
	err := db.Update(func(x *namedb.Txn) error {
		for _, n := range initial {
			x.Add(&namedb.Record{Name: n})
		}
		return nil
	})
	if err != nil {
		return err
	}

	before := db.NewReader()
	rng := rand.New(rand.NewSource(seed))
	err = db.Update(func(x *namedb.Txn) error {
		for i := 0; i < churn; i++ {
			if i%2 == 0 {
				x.Add(&namedb.Record{Name: extra[i]})
			} else {
				x.Del(initial[rng.Intn(len(initial))])
			}
			// the snapshot must not notice any of this
			if i%100 == 0 {
				if before.Count() != count {
					return fmt.Errorf("snapshot count moved to %d", before.Count())
				}
				if got := before.Get(extra[0]); got != nil {
					return fmt.Errorf("snapshot sees unpublished name %s", extra[0])
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if before.Count() != count {
		return fmt.Errorf("snapshot count moved to %d after publish", before.Count())
	}
	after := db.NewReader()
	if after.Get(extra[0]) == nil {
		return fmt.Errorf("published version lost an added name")
	}
	log.Printf("cow isolation held across %d mutations", churn)
	return nil
}

func usage() {
	fmt.Printf(`
Usage: %q <test> <args>
Perform one of the qp-trie self-tests.
Available self-tests:
	ops: random add/del workload with the structural invariant checker after every operation.
	order: ordered traversal, Get and FindLE cross-checked against a sorted reference model.
	cow: copy-on-write isolation under heavy churn.
`,
		os.Args[0])
}

func main() {
	if len(os.Args) <= 1 {
		usage()
		os.Exit(1)
	}
	testName := os.Args[1]

	testRegistry := map[string]func() error{
		"ops":   verifyOps,
		"order": verifyOrder,
		"cow":   verifyCow,
	}
	f, found := testRegistry[testName]
	if !found {
		usage()
		log.Fatalf("Unknown test: %s", testName)
	}
	log.Printf("Running self-test '%s'", testName)
	if err := f(); err != nil {
		log.Fatalf("self-test '%s' failed: %v", testName, err)
	}
	fmt.Println("Self-Test completed successfully!")
}
