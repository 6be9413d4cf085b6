// Package backend selects a render.Backend by name.
//
// Backends register a factory from an init function and are picked at
// runtime. The HAL backend registers itself on import:
//
//	import _ "github.com/gogpu/g3d/backend/native"
//
// # Backend Selection
//
// Use Default to get the best available backend, or Get to request one
// by name:
//
//	b := backend.Default()
//
//	// Or request a specific backend
//	b := backend.Get(backend.Native)
//
// Default prefers Native. Among backends outside the priority list the
// choice is unspecified.
//
// # Available Backends
//
//   - "native": gogpu/wgpu HAL device, see package backend/native
package backend
