package cache

import (
	"runtime"
	"sync"
	"weak"
)

// entry pairs a record with the cleanup that drops it once the key dies.
type entry[V any] struct {
	record  *V
	cleanup runtime.Cleanup
}

// ResourceCache associates a record with each entity pointer.
//
// Lookups are by pointer identity: two structurally equal entities are
// distinct keys. The cache never keeps a key alive. When the key becomes
// unreachable its record is removed by a runtime cleanup, so records must
// not reference their own key (directly or through a closure), otherwise
// the key stays reachable through the table.
//
// The zero value is not usable; create one with NewResourceCache or
// NewIdentityMap.
type ResourceCache[K any, V any] struct {
	mu      sync.Mutex
	entries map[weak.Pointer[K]]*entry[V]
	factory func(key *K) *V
}

// NewResourceCache creates a cache whose records are built by factory on
// first access. A nil factory allocates a zero record.
func NewResourceCache[K any, V any](factory func(key *K) *V) *ResourceCache[K, V] {
	if factory == nil {
		factory = func(*K) *V { return new(V) }
	}
	return &ResourceCache[K, V]{
		entries: make(map[weak.Pointer[K]]*entry[V]),
		factory: factory,
	}
}

// Get returns the record for key, creating it on first access.
// Get panics if key is nil.
func (c *ResourceCache[K, V]) Get(key *K) *V {
	if key == nil {
		panic("cache: nil key")
	}
	wp := weak.Make(key)

	c.mu.Lock()
	if e, ok := c.entries[wp]; ok {
		c.mu.Unlock()
		return e.record
	}
	c.mu.Unlock()

	// The factory runs unlocked so it may consult this cache.
	record := c.factory(key)

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[wp]; ok {
		return e.record
	}
	e := &entry[V]{record: record}
	e.cleanup = runtime.AddCleanup(key, c.evict, wp)
	c.entries[wp] = e
	return record
}

// Lookup returns the record for key without creating one.
func (c *ResourceCache[K, V]) Lookup(key *K) (*V, bool) {
	if key == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[weak.Make(key)]
	if !ok {
		return nil, false
	}
	return e.record, true
}

// Has reports whether key has a record.
func (c *ResourceCache[K, V]) Has(key *K) bool {
	_, ok := c.Lookup(key)
	return ok
}

// Delete removes the record for key and returns it.
// The second result is false if key had no record.
func (c *ResourceCache[K, V]) Delete(key *K) (*V, bool) {
	if key == nil {
		return nil, false
	}
	wp := weak.Make(key)

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[wp]
	if !ok {
		return nil, false
	}
	delete(c.entries, wp)
	e.cleanup.Stop()
	return e.record, true
}

// Len returns the number of live records.
func (c *ResourceCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every record.
func (c *ResourceCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for wp, e := range c.entries {
		e.cleanup.Stop()
		delete(c.entries, wp)
	}
}

// evict runs after the key has been collected.
func (c *ResourceCache[K, V]) evict(wp weak.Pointer[K]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, wp)
}

// IdentityMap is a ResourceCache with zero-valued records.
type IdentityMap[K any, V any] = ResourceCache[K, V]

// NewIdentityMap creates an IdentityMap.
func NewIdentityMap[K any, V any]() *IdentityMap[K, V] {
	return NewResourceCache[K, V](nil)
}
