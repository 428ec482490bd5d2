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

package namedb

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unsafe"

	"github.com/golang/glog"

	"github.com/facebook/dns/qptrie/dnsname"
	"github.com/facebook/dns/qptrie/qp"
)

// buildTrie reads a hostname list (one name per line, '#' comments) and
// builds a fresh trie of empty record bundles. Unparsable names are
// logged and skipped; duplicates are counted but inserted once.
func buildTrie(path string) (*qp.Trie, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening name list: %w", err)
	}
	defer f.Close()

	t := qp.New()
	dups := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, err := dnsname.New(line)
		if err != nil {
			glog.Errorf("skipping unparsable name %q: %v", line, err)
			continue
		}
		if t.Get(name) != nil {
			dups++
			continue
		}
		rec := &Record{Name: name}
		t.Add(unsafe.Pointer(rec), &rec.Name)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("reading name list: %w", err)
	}
	return t, dups, nil
}

// Load builds a database from a hostname-list file.
func Load(path string) (*DB, error) {
	t, dups, err := buildTrie(path)
	if err != nil {
		return nil, err
	}
	if dups > 0 {
		glog.Infof("loaded %d names from %s (%d duplicate lines)", t.Count(), path, dups)
	}
	d := NewDB()
	d.replace(t)
	return d, nil
}

// Reload rebuilds the database from path and publishes the result,
// replacing the current version wholesale. Readers on the old version
// are undisturbed. On error the published version stays.
func (d *DB) Reload(path string) error {
	t, _, err := buildTrie(path)
	if err != nil {
		return err
	}
	d.replace(t)
	return nil
}
