package bptree

import (
	"fmt"
	"io"

	"fastfair/pm"
)

// DumpBFS writes a human-readable, level-by-level dump of t to w: for
// each level, every node's key list and, for leaves, the value handle
// each key maps to. Grounded on the teacher's InspectIndexFileTo (BFS
// over page ids) and the reference's btree::printAll (per-level
// leftmost-spine walk over sibling chains).
func DumpBFS(w io.Writer, t *Tree) error {
	root := t.rootHandle()
	fmt.Fprintf(w, "root handle: %d\n", root)
	if !validHandle(root) {
		fmt.Fprintln(w, "(empty tree)")
		return nil
	}

	queue := []pm.Handle{root}
	level := 0
	for len(queue) > 0 {
		fmt.Fprintf(w, "level %d:\n", level)
		var next []pm.Handle
		for _, h := range queue {
			n := t.view(h)
			if err := dumpNode(w, n); err != nil {
				return err
			}
			if validHandle(n.leftmost()) {
				next = append(next, n.leftmost())
			}
			for i := 0; validHandle(n.entryPtr(i)); i++ {
				if !n.isLeaf() {
					next = append(next, n.entryPtr(i))
				}
			}
		}
		queue = next
		level++
	}
	return nil
}

func dumpNode(w io.Writer, n node) error {
	kind := "leaf"
	if !n.isLeaf() {
		kind = "internal"
	}
	if _, err := fmt.Fprintf(w, "  [%s handle=%d level=%d] ", kind, n.h, n.level()); err != nil {
		return err
	}
	if !n.isLeaf() {
		fmt.Fprintf(w, "leftmost=%d ", n.leftmost())
	}
	for i := 0; validHandle(n.entryPtr(i)); i++ {
		fmt.Fprintf(w, "%d:%d ", n.entryKey(i), n.entryPtr(i))
	}
	fmt.Fprintf(w, "sibling=%d\n", n.sibling())
	return nil
}
