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

// qptrie-load loads a hostname list (one name per line, for example a
// top-sites list) into the qp-trie name database, optionally benchmarks
// random lookups against it, and prints memory statistics. With -watch
// it keeps running and reloads the database when the file changes.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/segmentio/fasthash/fnv1a"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/facebook/dns/qptrie/dnsname"
	"github.com/facebook/dns/qptrie/metrics"
	"github.com/facebook/dns/qptrie/namedb"
)

func progressLine(format string, args ...interface{}) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return
	}
	fmt.Printf("\u001b[1000D")
	fmt.Printf(format, args...)
}

// countUnique makes a cheap hash-based pass over the input to report
// how many distinct names the file carries before the real load.
func countUnique(path string) (lines, unique int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	seen := make(map[uint64]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines++
		seen[fnv1a.HashString64(strings.ToLower(line))] = struct{}{}
	}
	return lines, len(seen), scanner.Err()
}

// benchmark fans queries out over workers, each resolving random names
// from the loaded set through a parse cache, and checks every one hits.
func benchmark(db *namedb.DB, queries, workers, cacheSize int, seed int64) error {
	reader := db.NewReader()
	names := make([]string, 0, reader.Count())
	err := reader.ForEach(func(rec *namedb.Record) error {
		names = append(names, rec.Name.String())
		return nil
	})
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("nothing loaded, nothing to query")
	}

	var done atomic.Int64
	start := time.Now()
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seed + int64(w)))
			cache, err := dnsname.NewCache(cacheSize)
			if err != nil {
				return err
			}
			r := db.NewReader()
			for i := 0; i < queries/workers; i++ {
				s := names[rng.Intn(len(names))]
				name, err := cache.Get(s)
				if err != nil {
					return fmt.Errorf("parsing %q: %w", s, err)
				}
				if rec := r.Get(name); rec == nil {
					return fmt.Errorf("loaded name %q not found", s)
				}
				if n := done.Add(1); n%100000 == 0 {
					progressLine("queried %d/%d", n, queries)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Println()
	elapsed := time.Since(start)
	total := done.Load()
	glog.Infof("%d queries in %v (%.0f qps), all hits", total, elapsed,
		float64(total)/elapsed.Seconds())
	return nil
}

func main() {
	input := flag.String("input", "", "Path to hostname list, one name per line")
	queries := flag.Int("queries", 1000000, "Number of random lookups to run (0 to skip)")
	workers := flag.Int("workers", 8, "Query parallelism")
	cacheSize := flag.Int("name-cache", 4096, "Per-worker parsed-name cache size")
	seed := flag.Int64("seed", 1, "Benchmark RNG seed")
	metricsAddr := flag.String("metrics-addr", "", "Serve prometheus metrics on this address")
	watch := flag.Bool("watch", false, "Keep running and reload on file changes")
	compact := flag.Bool("compact", false, "Run an explicit compaction before reporting memstats")
	flag.Parse()

	if *input == "" {
		glog.Exitf("-input is required")
	}

	lines, unique, err := countUnique(*input)
	if err != nil {
		glog.Exitf("scanning %s: %v", *input, err)
	}
	glog.Infof("%s: %d names, %d unique", *input, lines, unique)

	start := time.Now()
	db, err := namedb.Load(*input)
	if err != nil {
		glog.Exitf("loading %s: %v", *input, err)
	}
	glog.Infof("loaded %d names in %v", db.Count(), time.Since(start))
	if db.Count() != unique {
		glog.Warningf("trie holds %d names, hash pass saw %d unique", db.Count(), unique)
	}

	if *metricsAddr != "" {
		server, err := metrics.NewMetricsServer(*metricsAddr)
		if err != nil {
			glog.Exitf("creating metrics server: %v", err)
		}
		server.SetAlive()
		if err := server.ConsumeStats("qptrie", db); err != nil {
			glog.Exitf("registering stats: %v", err)
		}
		go server.UpdateExporter(time.Second)
		go func() {
			if err := server.Serve(); err != nil {
				glog.Errorf("metrics server: %v", err)
			}
		}()
	}

	if *queries > 0 {
		if err := benchmark(db, *queries, *workers, *cacheSize, *seed); err != nil {
			glog.Exitf("benchmark: %v", err)
		}
	}

	if *compact {
		db.Compact()
	}
	db.PrintMemStats(os.Stdout)

	if *watch {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := db.Watch(ctx, *input); err != nil && ctx.Err() == nil {
			glog.Exitf("watch: %v", err)
		}
	}
}
