// Package hashutil provides the process-local content hash used to address
// backups and to populate Transaction before/after hashes.
package hashutil

import (
	"fmt"
	"hash/fnv"
)

// ContentHash returns a deterministic, process-local 64-bit hash of source,
// rendered as lowercase hexadecimal. It is explicitly not a cryptographic
// hash (SPEC_FULL.md §3) — FNV-1a is the stdlib's stock non-cryptographic
// hash and needs no external dependency (see DESIGN.md).
func ContentHash(source string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(source))
	return fmt.Sprintf("%016x", h.Sum64())
}
