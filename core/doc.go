// Package core defines the CPU-side entities the renderer caches GPU state
// for: buffers and attributes, geometries, textures, render targets,
// materials and compute nodes.
//
// Entities carry a monotonically increasing Version. Mutating an entity's
// data and calling NeedsUpdate bumps the version; the renderer compares it
// against the version it last synced to decide whether GPU work is needed.
//
// Entities that own GPU state embed a Disposer. Calling Dispose notifies
// every registered listener once; the renderer's caches use it to free GPU
// resources and statistics together.
package core
