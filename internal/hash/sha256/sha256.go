// Package sha256 derives cache keys from namespaced strings.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Key returns the hex SHA-256 digest of namespace and parts joined by ":".
func Key(namespace string, parts ...string) string {
	var b strings.Builder
	b.WriteString(namespace)
	for _, p := range parts {
		b.WriteByte(':')
		b.WriteString(p)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
