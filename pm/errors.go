package pm

import "errors"

// Error kinds from spec.md §7. PoolOpenFailure and AllocationFailure are
// fatal in the reference; this port surfaces them as ordinary errors so a
// caller (the benchmark harness, or a library caller) decides whether to
// abort or retry, per spec.md §7 "a production implementation may surface
// as insert → false".
var (
	ErrPoolOpenFailure   = errors.New("pm: pool open failure")
	ErrAllocationFailure = errors.New("pm: allocation failure")
)
