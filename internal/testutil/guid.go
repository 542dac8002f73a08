package testutil

import (
	"encoding/binary"
	"sync"

	"github.com/google/uuid"
)

// GUID returns a fixed, readable GUID for fixture n:
// GUID(1) is 00000000-0000-0000-0000-000000000001.
func GUID(n uint64) uuid.UUID {
	var u uuid.UUID
	binary.BigEndian.PutUint64(u[8:], n)
	return u
}

// NullGUID is GUID wrapped as a present optional GUID.
func NullGUID(n uint64) uuid.NullUUID {
	return uuid.NullUUID{UUID: GUID(n), Valid: true}
}

// NoGUID is an absent optional GUID.
var NoGUID = uuid.NullUUID{}

// GUIDSequence hands out GUID(1), GUID(2), ... in order.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type GUIDSequence struct {
	mu sync.Mutex
	n  uint64
}

// NewGUIDSequence creates a sequence whose first Next() returns GUID(1).
func NewGUIDSequence() *GUIDSequence {
	return &GUIDSequence{}
}

// Next returns the next GUID in the sequence.
func (s *GUIDSequence) Next() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return GUID(s.n)
}

// Reset restarts the sequence so the same fixture can be built twice.
func (s *GUIDSequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n = 0
}
