package uow

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewUnitID generates a unit-of-work ID.
func NewUnitID() string {
	return prefixedID("u", 12)
}

// NewQueryID generates a query event ID.
func NewQueryID() string {
	return prefixedID("q", 8)
}

// NewContextID generates a context ID for hosts that have no request ID of
// their own.
func NewContextID() string {
	return prefixedID("req", 12)
}

func prefixedID(prefix string, hexLen int) string {
	b := make([]byte, (hexLen+1)/2)
	if _, err := rand.Read(b); err != nil {
		// Fallback to timestamp-based ID if crypto/rand fails
		return fmt.Sprintf("%s-%x", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%s", prefix, hex.EncodeToString(b)[:hexLen])
}
