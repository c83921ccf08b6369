// Package treeiface names the narrow surface cmd/ffbench actually
// depends on, so its writer/reader fan-out can be driven by any
// implementation of it, not only *bptree.Tree. The package itself
// imports bptree for the KV pair type used by BulkLoad. cmd/ffinspect
// needs Stats and DumpBFS, which aren't part of this surface, so it
// depends on *bptree.Tree directly.
package treeiface

import "fastfair/bptree"

// Tree is the subset of *bptree.Tree cmd/ffbench's writers and readers
// drive.
type Tree interface {
	Insert(key int64, value uint64) bool
	Search(key int64) (uint64, bool)
	BulkLoad(pairs []bptree.KV) int
}

var _ Tree = (*bptree.Tree)(nil)
