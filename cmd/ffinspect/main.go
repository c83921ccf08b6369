// Command ffinspect opens a fastfair pool and prints a breadth-first
// dump of the tree it holds, the persistent-memory analogue of the
// teacher's bplustree.InspectIndexFile.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"

	"fastfair/bptree"
	"fastfair/pm"
)

func main() {
	path := flag.String("p", "", "pool file path")
	size := flag.Int64("size", 64<<20, "pool size in bytes if it needs creating")
	flag.Parse()

	if *path == "" {
		log.Fatal("ffinspect: -p pool path is required")
	}

	pool, err := pm.Open(*path, *size)
	if err != nil {
		log.Fatalf("ffinspect: open pool: %v", err)
	}
	defer pool.Close()

	tree, err := bptree.Open(pool, false)
	if err != nil {
		log.Fatalf("ffinspect: open tree: %v", err)
	}

	stats := tree.Stats()
	color.New(color.FgCyan, color.Bold).Fprintf(os.Stdout, "fastfair index: %s\n", *path)
	fmt.Printf("  height=%d leaves=%d internal=%d keys=%d\n\n",
		stats.Height, stats.LeafCount, stats.InternalCount, stats.KeyCount)

	if err := bptree.DumpBFS(os.Stdout, tree); err != nil {
		log.Fatalf("ffinspect: dump: %v", err)
	}
}
