// Package hashid derives the content identifier of a paste.
//
// Identifiers are the lowercase hex SHA1 of the paste bytes. SHA1 is used
// for addressing only: anyone holding an identifier may read the paste, so
// preimage resistance buys nothing. Collisions are detected by the store.
package hashid

import (
	"crypto/sha1"
	"encoding/hex"
)

const Len = 2 * sha1.Size

func Digest(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Valid reports whether id has the shape of a Digest result.
func Valid(id string) bool {
	if len(id) != Len {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
