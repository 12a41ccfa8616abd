// Package token generates per-request tokens that namespace temporary files.
package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// suffixLen is the number of random hex characters appended to the timestamp.
const suffixLen = 12

// Generate creates a new request token.
// Format: <unix-millis>-<random hex>
// Example: 1701432000123-a1b2c3d4e5f6
//
// The millisecond timestamp keeps tokens sortable by arrival; the random
// suffix keeps concurrent requests in the same millisecond apart.
func Generate() string {
	return format(time.Now(), uuid.New())
}

func format(now time.Time, u uuid.UUID) string {
	random := strings.ReplaceAll(u.String(), "-", "")
	return fmt.Sprintf("%d-%s", now.UnixMilli(), random[:suffixLen])
}

// Valid reports whether s has the shape of a generated token. It is used to
// reject path input before it reaches the filesystem.
func Valid(s string) bool {
	millis, random, ok := strings.Cut(s, "-")
	if !ok || millis == "" || len(random) != suffixLen {
		return false
	}
	for _, r := range millis {
		if r < '0' || r > '9' {
			return false
		}
	}
	for _, r := range random {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return false
		}
	}
	return true
}
