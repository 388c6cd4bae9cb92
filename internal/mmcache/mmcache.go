// Package mmcache implements the shared mmap cache of spec.md §3: a
// process-global mapping from a mmap key to the frame backing that
// page, shared by every MAP_SHARED mapping of the same region or file
// page. Entries are "weak" in the sense that the cache itself never
// holds a strong reference (never calls frame.Refup) — a lookup hit is
// upgraded to a strong reference by the caller, and the entry is
// deleted by the same call site that drops the last strong reference
// (MapSet.Munmap / MapSet's drop path), so the cache never outlives the
// frame it names.
package mmcache

import (
	"sync"

	"riscvkern/internal/frame"
)

// Kind distinguishes the two ways a shared mmap page is keyed.
type Kind int

const (
	Anon Kind = iota
	File
)

// Key identifies one shared mmap page, per spec.md §3: "Anon(mmap_id,
// page_index), File(inode_num, file_page)".
type Key struct {
	Kind     Kind
	MmapID   uint64 // valid when Kind == Anon
	InodeNum uint64 // valid when Kind == File
	PageIdx  uint64
}

// Cache is the process-wide shared mmap cache.
type Cache struct {
	mu sync.Mutex
	m  map[Key]frame.PPN
}

// New constructs an empty cache.
func New() *Cache {
	return &Cache{m: make(map[Key]frame.PPN)}
}

// Lookup returns the frame for key, if present. The caller must Refup
// the returned frame before installing a PTE for it.
func (c *Cache) Lookup(key Key) (frame.PPN, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.m[key]
	return p, ok
}

// Insert records the frame backing key without taking a reference.
func (c *Cache) Insert(key Key, p frame.PPN) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = p
}

// Remove erases a cache entry; it is idempotent, since every holder of
// a shared page calls it on unmap/drop.
func (c *Cache) Remove(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
}

// Len reports the number of live entries, for tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}
