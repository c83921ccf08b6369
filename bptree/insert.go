package bptree

import "fastfair/pm"

// insertKey is the FAST insertion primitive: failure-atomic shift with
// cache-line-aware flushing (spec.md §4.2 "FAST insertion"). It mirrors
// insert_key in _examples/original_source/.../btree.h almost line for
// line; num_entries is passed in (the caller already knows it from
// count()) and returned incremented.
func (n node) insertKey(key Key, val pm.Handle, numEntries int, flush bool) int {
	// insertKey shifts entries upward (toward higher indices), so a
	// reader racing it is safe scanning forward; ensure even parity
	// before the shift starts, matching insert_key in the reference.
	if !isForward(n.switchCounter()) {
		n.setSwitchCounter(n.switchCounter() + 1)
	}

	if numEntries == 0 {
		n.setEntryKey(0, key)
		n.setEntryPtr(0, val)
		n.setEntryPtr(1, pm.NullHandle)
		if flush {
			n.pool.Persist(n.h, 0, pm.CacheLineSize)
		}
	} else {
		// Extend the trailing sentinel outward first, so a crash after
		// this point still finds a well-formed terminator.
		n.setEntryPtr(numEntries+1, n.entryPtr(numEntries))
		if flush && (entryOff(numEntries+1)+8)%pm.CacheLineSize == 0 {
			n.flushEntryPtr(numEntries + 1)
		}

		i := numEntries - 1
		inserted := false
		for ; i >= 0; i-- {
			if key < n.entryKey(i) {
				n.setEntryPtr(i+1, n.entryPtr(i))
				n.setEntryKey(i+1, n.entryKey(i))
				if flush {
					n.flushEntryIfCrosses(i + 1)
				}
			} else {
				// Temporarily keep the old pointer, then overwrite
				// key and pointer — the three-store sequence the
				// reference uses so a reader mid-write never sees a
				// key without a matching pointer (spec.md §4.2 step 3).
				n.setEntryPtr(i+1, n.entryPtr(i))
				n.setEntryKey(i+1, key)
				n.setEntryPtr(i+1, val)
				if flush {
					n.flushEntry(i + 1)
				}
				inserted = true
				break
			}
		}
		if !inserted {
			n.setEntryPtr(0, n.leftmost())
			n.setEntryKey(0, key)
			n.setEntryPtr(0, val)
			if flush {
				n.flushEntry(0)
			}
		}
	}

	n.setLastIndex(int16(numEntries))
	return numEntries + 1
}

// store is the FAST-and-FAIR entry point for inserting (key, val) into
// the subtree rooted at this node: in-place FAST insert when there is
// room, otherwise a FAIR split. Mirrors page::store in the reference.
// Returns the node the key actually landed in, or the zero node if this
// node was found already retired (spec.md §7 NodeDeletedRace — the
// caller retries from the root).
func (t *Tree) store(n node, key Key, val pm.Handle, invalidSibling pm.Handle) node {
	n.lock()
	if n.isDeleted() {
		n.unlock()
		return node{}
	}

	if sib := n.sibling(); validHandle(sib) && sib != invalidSibling {
		sibView := t.view(sib)
		if key > sibView.entryKey(0) {
			n.unlock()
			return t.store(sibView, key, val, invalidSibling)
		}
	}

	numEntries := n.count()

	if numEntries < maxLiveSlots {
		n.insertKey(key, val, numEntries, true)
		n.unlock()
		return n
	}

	return t.split(n, key, val, numEntries)
}
