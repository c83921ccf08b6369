package pm

import "github.com/cespare/xxhash/v2"

// PageChecksum hashes a node's raw bytes. It has no role in the tree's
// own crash-consistency protocol (spec.md §4.1/§4.2 rely on the sentinel
// terminator and per-field store atomicity, not checksums) — it exists
// for the crash-injection test harness described in spec.md §8 P6, to
// tell a torn page (one whose not-yet-flushed tail was discarded by the
// simulated crash) apart from a page that was fully persisted.
func PageChecksum(page []byte) uint64 {
	return xxhash.Sum64(page)
}
