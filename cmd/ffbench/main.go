// Command ffbench drives a fastfair tree with concurrent writers and
// readers and reports throughput, mirroring the load-generation role
// the reference's own btree.h main() harness played, but built from the
// example pack's concurrency and reporting stack instead of a bespoke
// pthread loop.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/go-faker/faker/v4"
	"golang.org/x/sync/errgroup"

	"fastfair/bptree"
	"fastfair/pm"
	"fastfair/treeiface"
)

func main() {
	n := flag.Int("n", 100_000, "number of keys to insert")
	numThreads := flag.Int("t", 4, "number of writer/reader goroutines")
	inputPath := flag.String("i", "", "path to a newline-delimited file of int64 keys; synthetic keys are generated when empty")
	poolPath := flag.String("p", "", "pool file path (empty = anonymous, non-durable pool)")
	writeLatencyNs := flag.Int64("write-latency-ns", 0, "simulated per-flush latency in nanoseconds")
	rebalance := flag.Bool("rebalance", false, "enable FAIR merge/redistribute on delete")
	crashAfter := flag.Int("crash-after", 0, "if >0, drop the pool without a final sync after this many acknowledged inserts")
	flag.Parse()

	keys, err := loadKeys(*inputPath, *n)
	if err != nil {
		log.Fatalf("ffbench: %v", err)
	}

	pool, err := openPool(*poolPath, int64(len(keys))*2*int64(pm.PageSize)+pm.RootReserved)
	if err != nil {
		log.Fatalf("ffbench: %v", err)
	}
	pool.SetWriteLatency(*writeLatencyNs)

	tree, err := bptree.Open(pool, *rebalance)
	if err != nil {
		log.Fatalf("ffbench: open tree: %v", err)
	}

	ack := newAckTracker()
	cache, err := newReadCache()
	if err != nil {
		log.Fatalf("ffbench: read cache: %v", err)
	}
	defer cache.close()

	bold := color.New(color.FgGreen, color.Bold)
	bold.Printf("fastfair bench: n=%s threads=%d\n", humanize.Comma(int64(len(keys))), *numThreads)

	start := time.Now()
	if err := runWriters(tree, ack, keys, *numThreads, *crashAfter); err != nil {
		log.Fatalf("ffbench: writers: %v", err)
	}
	insertElapsed := time.Since(start)

	if *crashAfter > 0 && int(ack.count()) >= *crashAfter {
		fmt.Printf("simulated crash after %s acknowledged inserts (pool dropped without final sync)\n",
			humanize.Comma(int64(ack.count())))
		if err := pool.CloseDirty(); err != nil {
			log.Fatalf("ffbench: simulated crash: %v", err)
		}
		if *poolPath == "" {
			fmt.Println("no -p pool path given; an anonymous pool cannot be reopened to verify survival")
			return
		}
		if err := verifyAcknowledgedSurvived(*poolPath, int64(len(keys))*2*int64(pm.PageSize)+pm.RootReserved, *rebalance, ack, keys); err != nil {
			log.Fatalf("ffbench: crash verification: %v", err)
		}
		return
	}

	var hits, misses int64
	start = time.Now()
	if err := runReaders(tree, cache, keys, *numThreads, &hits, &misses); err != nil {
		log.Fatalf("ffbench: readers: %v", err)
	}
	searchElapsed := time.Since(start)

	if err := pool.Close(); err != nil {
		log.Fatalf("ffbench: close pool: %v", err)
	}

	fmt.Printf("insert: %s keys in %s (%s keys/sec)\n",
		humanize.Comma(int64(len(keys))), insertElapsed,
		humanize.Comma(int64(float64(len(keys))/insertElapsed.Seconds())))
	fmt.Printf("search: hits=%s misses=%s in %s\n",
		humanize.Comma(hits), humanize.Comma(misses), searchElapsed)
}

func openPool(path string, size int64) (*pm.Pool, error) {
	if path == "" {
		return pm.OpenAnon(size)
	}
	return pm.Open(path, size)
}

// verifyAcknowledgedSurvived reopens the pool dropped by -crash-after and
// checks that every key ack already marked as acknowledged is still
// reachable, implementing spec.md §8 scenario 4: a simulated crash must
// not lose any insert whose acknowledgement reached the caller before it.
func verifyAcknowledgedSurvived(path string, size int64, rebalance bool, ack *ackTracker, keys []int64) error {
	pool, err := pm.Open(path, size)
	if err != nil {
		return fmt.Errorf("reopen pool: %w", err)
	}
	defer pool.Close()

	tree, err := bptree.Open(pool, rebalance)
	if err != nil {
		return fmt.Errorf("reopen tree: %w", err)
	}

	var lost int
	for idx, key := range keys {
		if !ack.acked(idx) {
			continue
		}
		if _, ok := tree.Search(key); !ok {
			lost++
		}
	}
	if lost > 0 {
		return fmt.Errorf("%d acknowledged keys did not survive the simulated crash", lost)
	}
	fmt.Printf("verified: all %s acknowledged inserts survived reopen\n", humanize.Comma(int64(ack.count())))
	return nil
}

// loadKeys reads up to n int64 keys, one per line, from path, or — when path is
// empty — generates n synthetic keys from go-faker words hashed down to
// int64 with xxhash, replacing a hand-rolled PRNG corpus (spec.md §6
// CLI "-i <input_path>"; SPEC_FULL §5 domain stack).
func loadKeys(path string, n int) ([]int64, error) {
	if path == "" {
		keys := make([]int64, n)
		for i := range keys {
			keys[i] = int64(xxhash.Sum64String(faker.Word())) & (1<<62 - 1)
		}
		return keys, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file %s: %w", path, err)
	}
	defer f.Close()

	var keys []int64
	sc := bufio.NewScanner(f)
	for len(keys) < n && sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		k, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse key %q: %w", line, err)
		}
		keys = append(keys, k)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read input file %s: %w", path, err)
	}
	return keys, nil
}

func runWriters(tree treeiface.Tree, ack *ackTracker, keys []int64, threads, crashAfter int) error {
	g, _ := errgroup.WithContext(context.Background())
	n := len(keys)
	per := (n + threads - 1) / threads

	for w := 0; w < threads; w++ {
		lo := w * per
		hi := lo + per
		if hi > n {
			hi = n
		}
		g.Go(func() error {
			for idx := lo; idx < hi; idx++ {
				key := keys[idx]
				tree.Insert(key, uint64(idx)+1)
				ack.ack(idx)
				if crashAfter > 0 && int(ack.count()) >= crashAfter {
					return nil
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func runReaders(tree treeiface.Tree, cache *readCache, keys []int64, threads int, hits, misses *int64) error {
	g, _ := errgroup.WithContext(context.Background())
	n := len(keys)

	for r := 0; r < threads; r++ {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(int64(r) + 1))
			for i := 0; i < n/threads; i++ {
				key := keys[rng.Intn(n)]
				if _, ok := cache.get(key); ok {
					atomic.AddInt64(hits, 1)
					continue
				}
				if val, ok := tree.Search(key); ok {
					cache.set(key, val)
					atomic.AddInt64(hits, 1)
				} else {
					atomic.AddInt64(misses, 1)
				}
			}
			return nil
		})
	}
	return g.Wait()
}
