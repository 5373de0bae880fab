package store

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const lockStripes = 128

// pageLocks serializes read-merge-write sequences per sanitized page id.
// Ids hash onto a fixed set of mutexes; a goroutine never holds more than one
// stripe, so unrelated ids sharing a stripe only contend, never deadlock.
type pageLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *pageLocks) lock(id string) func() {
	m := &l.stripes[xxhash.Sum64String(id)%lockStripes]
	m.Lock()
	return m.Unlock
}
