// Package cache provides the identity-keyed side tables used by the
// renderer's resource caches.
//
// # IdentityMap[K, V] and ResourceCache[K, V]
//
// Associates a mutable record with an entity pointer without owning the
// entity. Keys are held weakly: once the entity is unreachable elsewhere
// its record is dropped by a runtime cleanup.
//
//	attrs := cache.NewIdentityMap[core.Buffer, bufferRecord]()
//	rec := attrs.Get(buf) // created on first access
//
// ResourceCache is the same table with a custom record factory.
//
// # ChainMap[V]
//
// A trie keyed by an ordered tuple of entity ids. Used where a compound
// identity (object, material, context, lights) selects one value.
//
//	m := cache.NewChainMap[*RenderObject]()
//	m.Set([]cache.Identity{obj, mat, ctx, lights}, ro)
//
// # Thread Safety
//
// IdentityMap guards its table with a mutex because cleanups run on a
// runtime goroutine. ChainMap is not safe for concurrent use; the
// renderer drives it from a single goroutine per frame.
package cache
