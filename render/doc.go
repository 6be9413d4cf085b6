// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render maps drawables onto GPU resources and keeps those
// resources coherent from frame to frame.
//
// # Key Principle
//
// Every GPU object is created through a Backend and cached against the
// CPU-side entity it mirrors. Shared objects (shader programs and
// pipelines) are reference counted and evicted when the last user lets
// go. Nothing is recreated unless a version counter, a render-state
// snapshot or a shader cache key says it must be.
//
// # Caches
//
//   - Attributes: vertex, index and storage buffers per core.Buffer
//   - Geometries: attribute lifetime per core.Geometry
//   - Textures: textures, samplers and render-target attachments
//   - Bindings: bind groups and uniform uploads per render object
//   - Pipelines: render/compute pipelines and their programs
//   - Nodes: shader builder output and scene cache keys
//   - RenderObjects: one RenderObject per (object, material, context,
//     lights, pass) tuple
//
// # Frame Protocol
//
// A frame driver processes drawables strictly in order:
//
//	ro, err := objects.Get(obj, mat, scn, cam, lights, rc, "")
//	geometries.UpdateForRender(ro)
//	pipelines.GetForRender(ro)
//	bindings.UpdateForRender(ro)
//	backend.Draw(ro, info)
//
// The caches hold no locks. They rely on a single goroutine driving each
// frame; Info.Frame provides the per-frame stamp used to skip shared
// bindings that were already refreshed.
package render
