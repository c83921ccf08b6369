package bptree

import "fastfair/pm"

// linearSearch implements the reference's page::linear_search: a
// switch-counter-guarded scan that returns, for a leaf, the value
// handle for key (or the sibling handle if key belongs there, or
// NullHandle if absent); for an internal node, the child handle to
// descend into. Readers never take the node's mutex.
func (n node) linearSearch(key Key) pm.Handle {
	if n.isLeaf() {
		return n.linearSearchLeaf(key)
	}
	return n.linearSearchInternal(key)
}

func (n node) linearSearchLeaf(key Key) pm.Handle {
	var ret pm.Handle
	for {
		previous := n.switchCounter()
		ret = pm.NullHandle

		if isForward(previous) {
			if k := n.entryKey(0); k == key {
				if t := n.entryPtr(0); validHandle(t) && k == n.entryKey(0) {
					ret = t
				}
			}
			for i := 1; validHandle(n.entryPtr(i)); i++ {
				if k := n.entryKey(i); k == key {
					if t := n.entryPtr(i); n.entryPtr(i-1) != t {
						if k == n.entryKey(i) {
							ret = t
							break
						}
					}
				}
			}
		} else {
			for i := n.count() - 1; i > 0; i-- {
				if k := n.entryKey(i); k == key {
					if t := n.entryPtr(i); n.entryPtr(i-1) != t && validHandle(t) {
						if k == n.entryKey(i) {
							ret = t
							break
						}
					}
				}
			}
			if !validHandle(ret) {
				if k := n.entryKey(0); k == key {
					if t := n.entryPtr(0); validHandle(t) && k == n.entryKey(0) {
						ret = t
					}
				}
			}
		}

		if n.switchCounter() == previous {
			break
		}
	}

	if validHandle(ret) {
		return ret
	}

	if sib := n.sibling(); validHandle(sib) {
		sibView := viewOf(n.pool, n.mtx, sib)
		if key >= sibView.entryKey(0) {
			return sib
		}
	}
	return pm.NullHandle
}

func (n node) linearSearchInternal(key Key) pm.Handle {
	var ret pm.Handle
	for {
		previous := n.switchCounter()
		ret = pm.NullHandle

		if isForward(previous) {
			i := 0
			if k := n.entryKey(0); key < k {
				if t := n.leftmost(); t != n.entryPtr(0) {
					ret = t
				}
			}
			if !validHandle(ret) {
				for i = 1; validHandle(n.entryPtr(i)); i++ {
					if key < n.entryKey(i) {
						if t := n.entryPtr(i - 1); t != n.entryPtr(i) {
							ret = t
							break
						}
					}
				}
				if !validHandle(ret) {
					ret = n.entryPtr(i - 1)
				}
			}
		} else {
			for i := n.count() - 1; i >= 0; i-- {
				if key >= n.entryKey(i) {
					if i == 0 {
						if t := n.entryPtr(0); n.leftmost() != t {
							ret = t
							break
						}
					} else {
						if t := n.entryPtr(i); n.entryPtr(i-1) != t {
							ret = t
							break
						}
					}
				}
			}
		}

		if n.switchCounter() == previous {
			break
		}
	}

	if sib := n.sibling(); validHandle(sib) {
		sibView := viewOf(n.pool, n.mtx, sib)
		if key >= sibView.entryKey(0) {
			return sib
		}
	}

	if validHandle(ret) {
		return ret
	}
	return n.leftmost()
}

// linearSearchRange appends every value for a key strictly between min
// and max into out, following sibling links until out is full or the
// chain ends, mirroring page::linear_search_range.
func (n node) linearSearchRange(min, max Key, out []Value) int {
	off := 0
	current := n

	for current.valid() && off < len(out) {
		oldOff := off
		var previous uint8
		for {
			previous = current.switchCounter()
			off = oldOff

			if isForward(previous) {
				if k := current.entryKey(0); k > min {
					if k >= max {
						return off
					}
					if t := current.entryPtr(0); validHandle(t) && k == current.entryKey(0) {
						out[off] = Value(t)
						off++
					}
				}
				for i := 1; validHandle(current.entryPtr(i)) && off < len(out); i++ {
					k := current.entryKey(i)
					if k <= min {
						continue
					}
					if k >= max {
						return off
					}
					if t := current.entryPtr(i); t != current.entryPtr(i-1) && k == current.entryKey(i) {
						out[off] = Value(t)
						off++
					}
				}
			} else {
				for i := current.count() - 1; i > 0 && off < len(out); i-- {
					k := current.entryKey(i)
					if k <= min {
						continue
					}
					if k >= max {
						return off
					}
					if t := current.entryPtr(i); t != current.entryPtr(i-1) && k == current.entryKey(i) {
						out[off] = Value(t)
						off++
					}
				}
				if off < len(out) {
					if k := current.entryKey(0); k > min {
						if k >= max {
							return off
						}
						if t := current.entryPtr(0); validHandle(t) && k == current.entryKey(0) {
							out[off] = Value(t)
							off++
						}
					}
				}
			}

			if current.switchCounter() == previous {
				break
			}
		}

		current = viewOf(current.pool, current.mtx, current.sibling())
	}
	return off
}

func (t *Tree) linearSearch(n node, key Key) pm.Handle { return n.linearSearch(key) }

func (t *Tree) linearSearchRange(n node, min, max Key, out []Value) int {
	return n.linearSearchRange(min, max, out)
}
