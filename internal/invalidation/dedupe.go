package invalidation

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// RevisionDedupe remembers the highest revision applied per area.
type RevisionDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, uint64]
}

func NewRevisionDedupe(size int) *RevisionDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, uint64](size)
	return &RevisionDedupe{lru: c}
}

// ShouldApply reports whether rev is newer than the last applied revision of
// areaID and records it if so.
func (d *RevisionDedupe) ShouldApply(areaID string, rev uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(areaID); ok && rev <= last {
		return false
	}
	d.lru.Add(areaID, rev)
	return true
}

// Forget drops the remembered revision, used when applying it failed.
func (d *RevisionDedupe) Forget(areaID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lru.Remove(areaID)
}
