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

// Package namedb wraps the qp-trie core into the name database of an
// authoritative server: typed records, snapshot readers that can run
// while a writer prepares the next version, and file loading with
// optional watch-driven reload.
package namedb

import (
	"io"
	"sync"
	"unsafe"

	"github.com/miekg/dns"

	"github.com/facebook/dns/qptrie/dnsname"
	"github.com/facebook/dns/qptrie/qp"
)

// Record is the per-name record bundle stored in the database. Name is
// the record's key; the trie keeps only the byte offset of this slot
// inside the record, which is how a leaf finds its way back to the
// name. Name must not change while the record is in the database.
type Record struct {
	Name *dnsname.Name
	RRs  []dns.RR
}

// DB is a name database: a published qp-trie version plus a writer
// lock serializing copy-on-write transactions.
type DB struct {
	handle *qp.Handle
	wmu    sync.Mutex
}

// NewDB creates an empty database.
func NewDB() *DB {
	return &DB{handle: qp.NewHandle(qp.New())}
}

// Count returns the number of records in the published version.
func (d *DB) Count() int {
	return d.handle.Current().Count()
}

// GetStats reports occupancy counters of the published version.
func (d *DB) GetStats() map[string]int64 {
	return d.handle.Current().GetStats()
}

// Reader is a consistent snapshot of the database. A Reader keeps
// observing the version that was current when it was created, no
// matter what writers publish afterwards.
type Reader struct {
	t *qp.Trie
}

// NewReader returns a reader pinned to the current version.
func (d *DB) NewReader() *Reader {
	return &Reader{t: d.handle.Current()}
}

// Count returns the number of records in the snapshot.
func (r *Reader) Count() int {
	return r.t.Count()
}

// Get returns the record for name, or nil.
func (r *Reader) Get(name *dnsname.Name) *Record {
	return (*Record)(r.t.Get(name))
}

// FindLE returns the record for name or its nearest predecessor, with
// an exact-match flag. The record is nil when nothing sorts at or
// before name. This is what NXDOMAIN and NSEC-style processing hang
// off.
func (r *Reader) FindLE(name *dnsname.Name) (*Record, bool) {
	v, exact := r.t.FindLE(name)
	return (*Record)(v), exact
}

// ForEach visits every record in canonical name order.
func (r *Reader) ForEach(fn func(*Record) error) error {
	return r.t.ForEach(func(val unsafe.Pointer) error {
		return fn((*Record)(val))
	})
}

// Txn is an open copy-on-write transaction. Mutations are invisible to
// readers until Update publishes the new version.
type Txn struct {
	t *qp.Trie
}

// Get returns the record for name as this transaction sees it,
// including its own unpublished writes.
func (x *Txn) Get(name *dnsname.Name) *Record {
	return (*Record)(x.t.Get(name))
}

// Add upserts a record and returns its ordered neighbors as of before
// the insertion. The record must carry its name.
func (x *Txn) Add(rec *Record) (prev, next *Record) {
	if old := x.t.Get(rec.Name); old != nil {
		x.t.Del(rec.Name)
	}
	pn := x.t.Add(unsafe.Pointer(rec), &rec.Name)
	return (*Record)(pn.Prev), (*Record)(pn.Next)
}

// Del removes the record for name, if any.
func (x *Txn) Del(name *dnsname.Name) {
	x.t.Del(name)
}

// Count returns the record count as this transaction sees it.
func (x *Txn) Count() int {
	return x.t.Count()
}

// Update runs fn inside a copy-on-write transaction and publishes the
// result if fn succeeds. On error the new version is discarded and the
// published version is untouched. Updates are serialized; readers are
// never blocked.
func (d *DB) Update(fn func(*Txn) error) error {
	d.wmu.Lock()
	defer d.wmu.Unlock()
	old := d.handle.Current()
	nt := old.CowStart()
	if err := fn(&Txn{t: nt}); err != nil {
		nt.CowFinish()
		return err
	}
	nt.CowFinish()
	d.handle.Publish(nt)
	return nil
}

// Compact collects garbage through an empty transaction, so the
// published version is never mutated under a reader.
func (d *DB) Compact() {
	_ = d.Update(func(*Txn) error { return nil })
}

// PrintMemStats writes the published version's memory summary to w and
// returns the total bytes held.
func (d *DB) PrintMemStats(w io.Writer) int {
	d.wmu.Lock()
	defer d.wmu.Unlock()
	return d.handle.Current().PrintMemStats(w)
}

// replace publishes a freshly built trie, bypassing copy-on-write.
// Used by full reloads, where sharing with the old version buys
// nothing.
func (d *DB) replace(t *qp.Trie) {
	d.wmu.Lock()
	defer d.wmu.Unlock()
	d.handle.Publish(t)
}
