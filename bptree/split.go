package bptree

import "fastfair/pm"

// split implements the FAIR half of FAST-and-FAIR: page::store's
// overflow branch. n arrives already locked by the caller (store) and
// known live; split allocates a new sibling, migrates the upper half of
// n's entries into it, links it in, inserts (key, val) on whichever
// side it belongs, and either grows the tree or pushes the split key up
// to the parent level.
func (t *Tree) split(n node, key Key, val pm.Handle, numEntries int) node {
	siblingH, err := t.pool.AllocateZeroed()
	if err != nil {
		// The reference treats allocator exhaustion as fatal; here we
		// simply fail the insert and let the caller's retry loop
		// observe the same numEntries again on its next attempt once
		// the pool has room, rather than crash the process.
		n.unlock()
		return node{}
	}
	sibling := viewOf(t.pool, t.mtx, siblingH)
	sibling.setLevel(n.level())
	sibling.setLastIndex(-1)
	sibling.setEntryPtr(0, pm.NullHandle)

	// The reference computes this as (int)ceil(num_entries / 2) where
	// num_entries/2 is already an integer (C++ integer division) — the
	// ceil is a no-op there, so the split point is a plain floor-half,
	// not a true ceiling of the real-valued half.
	m := numEntries / 2
	splitKey := n.entryKey(m)

	sibCount := 0
	if !validHandle(n.leftmost()) { // leaf
		for i := m; i < numEntries; i++ {
			sibCount = sibling.insertKey(n.entryKey(i), n.entryPtr(i), sibCount, false)
		}
	} else { // internal
		for i := m + 1; i < numEntries; i++ {
			sibCount = sibling.insertKey(n.entryKey(i), n.entryPtr(i), sibCount, false)
		}
		sibling.setLeftmost(n.entryPtr(m))
	}

	sibling.setSibling(n.sibling())
	sibling.flushAll()

	n.setSibling(siblingH)
	n.flushHeader()

	if isForward(n.switchCounter()) {
		n.setSwitchCounter(n.switchCounter() + 2)
	} else {
		n.setSwitchCounter(n.switchCounter() + 1)
	}
	n.setEntryPtr(m, pm.NullHandle)
	n.flushEntry(m)

	n.setLastIndex(int16(m - 1))
	n.flushHeader()

	remaining := int(n.lastIndex()) + 1

	var ret node
	if key < splitKey {
		n.insertKey(key, val, remaining, true)
		ret = n
	} else {
		sibling.insertKey(key, val, sibCount, true)
		ret = sibling
	}

	if t.isRoot(n.h) {
		rootH, err := t.pool.AllocateZeroed()
		if err != nil {
			n.unlock()
			return node{}
		}
		initRoot(t.pool, t.mtx, rootH, n.h, splitKey, siblingH, n.level()+1)
		t.setNewRoot(rootH)
		n.unlock()
	} else {
		n.unlock()
		t.insertInternal(splitKey, siblingH, n.level()+1)
	}

	return ret
}
