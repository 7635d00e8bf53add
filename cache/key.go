package cache

import "github.com/cespare/xxhash/v2"

// Key derives the fixed-length storage key for a content payload. The digest
// is deterministic and non-cryptographic; collision risk is accepted as
// negligible for cache keying.
func Key(content string) uint64 {
	return xxhash.Sum64String(content)
}
