package bptree

import "fastfair/pm"

// removeKey is the FAST removal primitive: a failure-atomic backward
// shift with the same cache-line-aware flushing as insertKey, mirroring
// page::remove_key. It returns false if key was not present.
func (n node) removeKey(key Key) bool {
	if isForward(n.switchCounter()) {
		n.setSwitchCounter(n.switchCounter() + 1)
	}

	shift := false
	for i := 0; validHandle(n.entryPtr(i)); i++ {
		if !shift && n.entryKey(i) == key {
			if i == 0 {
				n.setEntryPtr(0, n.leftmost())
			} else {
				n.setEntryPtr(i, n.entryPtr(i-1))
			}
			shift = true
		}

		if shift {
			n.setEntryKey(i, n.entryKey(i+1))
			n.setEntryPtr(i, n.entryPtr(i+1))
			n.flushEntryIfCrosses(i)
		}
	}

	if shift {
		n.setLastIndex(n.lastIndex() - 1)
	}
	return shift
}

// remove performs a node's removal of key, with FAIR rebalancing when
// t.Rebalance is set, mirroring page::remove_rebalancing. It returns
// true once the key has been handled (found-and-removed, or confirmed
// absent in a live node); it returns false only when n had already been
// retired by a concurrent operation, so the caller should retry from
// the root.
func (t *Tree) remove(n node, key Key) bool {
	return t.removeRebalancing(n, key, false)
}

// removeRebalancing is remove's body. With onlyRebalance set it removes
// no key and goes straight to the parent fix-up and merge/redistribute,
// which is how a leftmost child's right sibling gets rebalanced.
func (t *Tree) removeRebalancing(n node, key Key, onlyRebalance bool) bool {
	n.lock()
	if n.isDeleted() {
		n.unlock()
		return false
	}

	if !t.Rebalance && !onlyRebalance {
		n.removeKey(key)
		n.unlock()
		return true
	}

	numEntriesBefore := n.count()

	if !onlyRebalance && t.isRoot(n.h) {
		if n.level() > 0 && numEntriesBefore == 1 && !validHandle(n.sibling()) {
			t.rootMu.Lock()
			t.rootH = n.leftmost()
			t.rootMu.Unlock()
			t.persistRoot()
			n.setDeleted(true)
		}
		n.removeKey(key)
		n.unlock()
		return true
	}

	minLiveSlots := float64(maxLiveSlots) * 0.5
	shouldRebalance := onlyRebalance || numEntriesBefore-1 < int(minLiveSlots)

	if !onlyRebalance {
		n.removeKey(key)
	}

	if !shouldRebalance {
		n.unlock()
		return true
	}

	deletedKey, isLeftmost, leftSibling := t.deleteInternal(key, n.h, n.level()+1)

	if isLeftmost {
		n.unlock()
		sib := t.view(n.sibling())
		sib.lock()
		firstKey := sib.entryKey(0)
		sib.unlock()
		t.removeRebalancing(sib, firstKey, true)
		return true
	}

	if !leftSibling.valid() {
		n.unlock()
		return true
	}

	leftSibling.lock()
	for leftSibling.sibling() != n.h {
		next := t.view(leftSibling.sibling())
		leftSibling.unlock()
		leftSibling = next
		leftSibling.lock()
	}

	t.mergeOrRedistribute(n, leftSibling, deletedKey)

	leftSibling.unlock()
	n.unlock()
	return true
}

// mergeOrRedistribute implements the tail of page::remove_rebalancing:
// given n (under-full, still locked) and its immediate left sibling
// (also locked), either redistribute entries between them or merge n
// into the sibling, then fix up the parent level.
func (t *Tree) mergeOrRedistribute(n, leftSibling node, deletedKeyFromParent Key) {
	numEntries := n.count()
	leftNumEntries := leftSibling.count()

	totalEntries := numEntries + leftNumEntries
	if validHandle(n.leftmost()) {
		totalEntries++
	}

	if totalEntries > maxLiveSlots {
		t.redistribute(n, leftSibling, numEntries, leftNumEntries, totalEntries, deletedKeyFromParent)
		return
	}
	t.merge(n, leftSibling, leftNumEntries, deletedKeyFromParent)
}

func (t *Tree) redistribute(n, leftSibling node, numEntries, leftNumEntries, totalEntries int, deletedKeyFromParent Key) {
	// Same integer-division-then-no-op-ceil as split's m, see split.go.
	m := totalEntries / 2

	var parentKey Key

	if numEntries < leftNumEntries { // left -> right
		if !validHandle(n.leftmost()) {
			for i := leftNumEntries - 1; i >= m; i-- {
				numEntries = n.insertKey(leftSibling.entryKey(i), leftSibling.entryPtr(i), numEntries, true)
			}
			leftSibling.setEntryPtr(m, pm.NullHandle)
			leftSibling.flushEntryPtr(m)
			leftSibling.setLastIndex(int16(m - 1))
			leftSibling.flushHeader()
			parentKey = n.entryKey(0)
		} else {
			numEntries = n.insertKey(deletedKeyFromParent, n.leftmost(), numEntries, true)
			for i := leftNumEntries - 1; i > m; i-- {
				numEntries = n.insertKey(leftSibling.entryKey(i), leftSibling.entryPtr(i), numEntries, true)
			}
			parentKey = leftSibling.entryKey(m)
			n.setLeftmost(leftSibling.entryPtr(m))
			n.flushHeader()
			leftSibling.setEntryPtr(m, pm.NullHandle)
			leftSibling.flushEntryPtr(m)
			leftSibling.setLastIndex(int16(m - 1))
			leftSibling.flushHeader()
		}

		if t.isRoot(leftSibling.h) {
			rootH, err := t.pool.AllocateZeroed()
			if err == nil {
				initRoot(t.pool, t.mtx, rootH, leftSibling.h, parentKey, n.h, n.level()+1)
				t.setNewRoot(rootH)
			}
		} else {
			t.insertInternal(parentKey, n.h, n.level()+1)
		}
		return
	}

	// right -> left: n donates its low end to leftSibling, shrinks, and
	// keeps living under a fresh sibling pointer split at m.
	n.setDeleted(true)
	n.flushHeader()

	newSiblingH, err := t.pool.AllocateZeroed()
	if err != nil {
		return
	}
	newSibling := viewOf(t.pool, t.mtx, newSiblingH)
	newSibling.setLevel(n.level())
	newSibling.setLastIndex(-1)
	newSibling.setEntryPtr(0, pm.NullHandle)
	newSibling.setSibling(n.sibling())

	numDist := numEntries - m
	newSibCount := 0

	if !validHandle(n.leftmost()) {
		for i := 0; i < numDist; i++ {
			leftNumEntries = leftSibling.insertKey(n.entryKey(i), n.entryPtr(i), leftNumEntries, true)
		}
		for i := numDist; validHandle(n.entryPtr(i)); i++ {
			newSibCount = newSibling.insertKey(n.entryKey(i), n.entryPtr(i), newSibCount, false)
		}
		newSibling.flushAll()
		leftSibling.setSibling(newSiblingH)
		leftSibling.flushHeader()
		parentKey = newSibling.entryKey(0)
	} else {
		leftNumEntries = leftSibling.insertKey(deletedKeyFromParent, n.leftmost(), leftNumEntries, true)
		for i := 0; i < numDist-1; i++ {
			leftNumEntries = leftSibling.insertKey(n.entryKey(i), n.entryPtr(i), leftNumEntries, true)
		}
		parentKey = n.entryKey(numDist - 1)
		newSibling.setLeftmost(n.entryPtr(numDist - 1))
		for i := numDist; validHandle(n.entryPtr(i)); i++ {
			newSibCount = newSibling.insertKey(n.entryKey(i), n.entryPtr(i), newSibCount, false)
		}
		newSibling.flushAll()
		leftSibling.setSibling(newSiblingH)
		leftSibling.flushHeader()
	}

	if t.isRoot(leftSibling.h) {
		rootH, err := t.pool.AllocateZeroed()
		if err == nil {
			initRoot(t.pool, t.mtx, rootH, leftSibling.h, parentKey, newSiblingH, n.level()+1)
			t.setNewRoot(rootH)
		}
	} else {
		t.insertInternal(parentKey, newSiblingH, n.level()+1)
	}
}

func (t *Tree) merge(n, leftSibling node, leftNumEntries int, deletedKeyFromParent Key) {
	n.setDeleted(true)
	n.flushHeader()

	if validHandle(n.leftmost()) {
		leftNumEntries = leftSibling.insertKey(deletedKeyFromParent, n.leftmost(), leftNumEntries, true)
	}
	for i := 0; validHandle(n.entryPtr(i)); i++ {
		leftNumEntries = leftSibling.insertKey(n.entryKey(i), n.entryPtr(i), leftNumEntries, true)
	}

	leftSibling.setSibling(n.sibling())
	leftSibling.flushHeader()
}

// deleteInternal is btree_delete_internal: locate the parent entry that
// points at child (at the given level), record the key to its left so
// the caller can re-insert it while rebalancing, and remove it. Returns
// isLeftmost=true when child is the parent's leftmost pointer, which
// the reference handles by rebalancing the sibling instead.
func (t *Tree) deleteInternal(key Key, child pm.Handle, level uint32) (deletedKey Key, isLeftmost bool, leftSibling node) {
	if level > t.root().level() {
		return 0, false, node{}
	}

	p := t.root()
	for p.level() > level {
		p = t.view(t.linearSearch(p, key))
	}

	p.lock()
	defer p.unlock()

	if p.leftmost() == child {
		return 0, true, node{}
	}

	for i := 0; validHandle(p.entryPtr(i)); i++ {
		if p.entryPtr(i) != child {
			continue
		}
		if i == 0 {
			if p.leftmost() != p.entryPtr(i) {
				deletedKey = p.entryKey(i)
				leftSibling = t.view(p.leftmost())
				p.removeKey(deletedKey)
				return deletedKey, false, leftSibling
			}
		} else {
			if p.entryPtr(i-1) != p.entryPtr(i) {
				deletedKey = p.entryKey(i)
				leftSibling = t.view(p.entryPtr(i - 1))
				p.removeKey(deletedKey)
				return deletedKey, false, leftSibling
			}
		}
	}
	return 0, false, node{}
}
