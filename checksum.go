package doxstorr

import (
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// contentHash returns a 32 hex character blake2b-128 digest of data,
// stored alongside a document's block pointer so a corrupted block (a
// torn write, a flipped bit) is caught on read rather than handed back
// to the caller as silently wrong data.
func contentHash(data []byte) string {
	h, _ := blake2b.New(16, nil) // 16 bytes = 128 bits, cheap enough to check on every read
	h.Write(data)
	return fmt.Sprintf("%032x", h.Sum(nil))
}
