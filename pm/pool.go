// Package pm is the allocator façade for the B+-tree: a thin contract over
// a byte-addressable persistent memory pool, standing in for the external
// PM pool/allocator that spec.md §6 treats as an out-of-core collaborator.
//
// Go has no portable way to mmap non-volatile DIMMs and issue clflush/mfence
// without cgo and inline asm, and nothing in the example pack provides that
// either. The idiomatic Go substitute — used by mmap-backed embedded stores
// throughout the ecosystem — is a regular file mapped with mmap and
// durability enforced with msync. That is what Pool does: AllocateZeroed,
// Free, Direct and RootObject are the four contracts spec.md §4.4 names;
// Persist implements §4.1.
package pm

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"
)

// Handle is a persistent handle: a byte offset into the mapped pool. It is
// the Go stand-in for the raw pointer graph described in spec.md §9 — a
// handle is re-derived into an address only at dereference time via Direct.
type Handle uint64

// NullHandle marks "no entry" / "no child", matching spec.md §3's null
// pointer sentinel.
const NullHandle Handle = 0

const (
	// PageSize is the fixed node size spec.md §3 specifies as the default.
	PageSize = 512
	// CacheLineSize is the flush granularity spec.md §4.1 assumes.
	CacheLineSize = 64
	// RootReserved is the size of the pool's reserved root slot (page 0),
	// sized to one typical OS page so msync on it never touches node data.
	RootReserved = 4096
)

// Pool is the persistent memory pool façade: opened once per process
// (spec.md §4.4 "static/process-wide"), closed once at teardown.
type Pool struct {
	file    *os.File // nil for an anonymous (test-only) pool
	data    []byte   // the mapped region, PageSize-addressable beyond RootReserved
	size    int64

	allocMu sync.Mutex
	next    int64 // bump-allocator cursor, in bytes, monotonic

	freeMu   sync.Mutex
	freeList []Handle // freed blocks awaiting reuse, LIFO; held in memory only

	limiter *rate.Limiter // optional simulated flush latency, see persist.go
}

// Open opens or creates a file-backed pool of the given capacity. A
// reopened pool sees the previously stored root object and nodes without
// any recovery scan, per spec.md §6.
func Open(path string, size int64) (*Pool, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("pm: open pool %s: %w", path, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pm: stat pool %s: %w", path, err)
	}

	fresh := st.Size() == 0
	if st.Size() < size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("pm: grow pool %s to %d: %w", path, size, err)
		}
	} else {
		size = st.Size()
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pm: mmap pool %s: %w", path, err)
	}

	p := &Pool{file: f, data: data, size: size}
	if fresh {
		p.next = RootReserved
	} else {
		p.next = int64(rootMeta(p.data).nextOffset())
		if p.next < RootReserved {
			p.next = RootReserved
		}
	}
	return p, nil
}

// OpenAnon opens an anonymous, non-file-backed pool of the given capacity.
// It is not durable across process restarts; it exists for tests and for
// benchmarking the tree logic without touching a disk (spec.md §6 out of
// core benchmark harness concerns).
func OpenAnon(size int64) (*Pool, error) {
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("pm: mmap anon pool: %w", err)
	}
	return &Pool{data: data, size: size, next: RootReserved}, nil
}

// AllocateZeroed returns a zero-initialized PageSize block (spec.md §4.4
// `allocate_zeroed`). It first tries the durably-freed block list before
// growing the pool, and returns AllocationFailure (via a plain error,
// spec.md §7 — fatal in the reference, surfaced here as a normal error so
// a caller can decide) once the pool is exhausted.
func (p *Pool) AllocateZeroed() (Handle, error) {
	if h, ok := p.takeFree(); ok {
		clear(p.data[h : h+PageSize])
		return h, nil
	}

	// The bump cursor, the rootMeta copy of it, and the flush that makes
	// that copy durable all have to happen as one step: two concurrent
	// growers reading p.next before either advances it would otherwise
	// hand out the same handle to two different callers.
	p.allocMu.Lock()
	off := p.next
	if off+PageSize > p.size {
		p.allocMu.Unlock()
		return NullHandle, fmt.Errorf("pm: %w", ErrAllocationFailure)
	}
	p.next += PageSize
	h := Handle(off)
	clear(p.data[h : h+PageSize])
	rootMeta(p.data).setNextOffset(uint64(p.next))
	// The cursor must be durable before the handle is handed back: a
	// handle whose block content was flushed by its caller but whose
	// existence the recovered cursor doesn't know about would otherwise
	// be reissued and clear()-ed out from under a live, already-linked
	// node after a crash.
	p.Persist(0, rootMetaOffset, 8)
	p.allocMu.Unlock()
	return h, nil
}

// Free releases a block (spec.md §4.4 `free`): it is pushed onto the
// free list for fast reuse rather than returned to the OS, matching the
// reference's bump-allocator-with-no-real-reclaim model. The free list is
// not persisted: a block freed before the pool is closed or reopened is
// not reused afterwards.
func (p *Pool) Free(h Handle) {
	p.freeMu.Lock()
	p.freeList = append(p.freeList, h)
	p.freeMu.Unlock()
}

func (p *Pool) takeFree() (Handle, bool) {
	p.freeMu.Lock()
	defer p.freeMu.Unlock()
	n := len(p.freeList)
	if n == 0 {
		return NullHandle, false
	}
	h := p.freeList[n-1]
	p.freeList = p.freeList[:n-1]
	return h, true
}

// Direct maps a handle to a directly-addressable byte slice within the
// process (spec.md §4.4 `direct`), aliasing the mapped pool — writes
// through this slice are writes to "persistent memory".
func (p *Pool) Direct(h Handle) []byte {
	return p.data[h : h+PageSize]
}

// RootObject returns the persistent root slot of the pool (spec.md §4.4
// `root_object`), created on first open.
func (p *Pool) RootObject(size int) []byte {
	return p.data[0:size]
}

// Sync flushes the whole mapping, used at clean shutdown and by tests that
// want a full-durability checkpoint rather than per-call Persist.
func (p *Pool) Sync() error {
	if err := unix.Msync(p.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("pm: msync: %w", err)
	}
	return nil
}

// Close unmaps the pool and closes the backing file, if any.
func (p *Pool) Close() error {
	if err := p.Sync(); err != nil {
		return err
	}
	if err := unix.Munmap(p.data); err != nil {
		return fmt.Errorf("pm: munmap: %w", err)
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

// CloseDirty unmaps and closes the pool without a final Sync, simulating
// an unclean process shutdown. Any range a caller Persist'd along the way
// is already durable regardless; this only skips flushing whatever was
// written since the last explicit Persist, for tests and the benchmark
// harness's -crash-after path to exercise spec.md §8 P6 against a real
// gap instead of Close's always-durable Sync.
func (p *Pool) CloseDirty() error {
	if err := unix.Munmap(p.data); err != nil {
		return fmt.Errorf("pm: munmap: %w", err)
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

// rootMetaView is the pool-internal bookkeeping stored right after the
// tree's own root object within RootReserved — the bump allocator's cursor,
// so a reopened pool resumes allocating after the last page it handed out.
type rootMetaView []byte

const rootMetaOffset = 256 // leaves the first 256 bytes of page 0 for the tree root object

func rootMeta(data []byte) rootMetaView {
	return rootMetaView(data[rootMetaOffset:RootReserved])
}

func (v rootMetaView) nextOffset() uint64 {
	return leUint64(v[0:8])
}

func (v rootMetaView) setNextOffset(n uint64) {
	putLeUint64(v[0:8], n)
}
