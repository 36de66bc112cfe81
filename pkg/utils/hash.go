package utils

import (
	"crypto/sha1"
	"encoding/hex"
)

// HashString returns the hex SHA-1 digest of s. Storage keys derived from
// caller-supplied text use it to stay fixed width; this is not for anything
// security sensitive.
func HashString(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
