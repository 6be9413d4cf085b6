// Package g3d is a WebGPU-style 3D renderer core for the GoGPU ecosystem.
//
// # Overview
//
// g3d maps drawables (a mesh with its material, scene, lights and render
// target) onto GPU resources: pipelines, shader programs, bind groups,
// vertex and index buffers, textures. It keeps them coherent from frame to
// frame, reusing and reference counting the expensive objects.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/g3d"
//	    _ "github.com/gogpu/g3d/backend/native"
//	    _ "github.com/gogpu/wgpu/hal/allbackends"
//	)
//
//	r := g3d.New(g3d.WithSize(800, 600))
//	defer r.Dispose()
//
//	scn := scene.New()
//	scn.Add(scene.NewMesh(geometry, core.NewMaterial(core.MaterialBasic)))
//	cam := scene.NewPerspectiveCamera(math.Pi/3, 800.0/600.0, 0.1, 100)
//
//	if err := r.Render(ctx, scn, cam); err != nil {
//	    log.Fatal(err)
//	}
//
// # Architecture
//
// The library is organized into:
//   - g3d: Renderer, the frame driver
//   - render: the resource caches (render objects, pipelines, bindings,
//     textures, attributes, geometries, nodes) and the Backend interface
//   - cache: identity-keyed maps the caches are built on
//   - core, scene: CPU-side entities and the scene graph
//   - shader: WGSL generation for the built-in materials
//   - backend, backend/native: backend registry and the gogpu/wgpu HAL
//     backend
//
// # Concurrency
//
// A Renderer and its caches are driven from one goroutine. Only
// ReadAttribute blocks, and it honors its context.
package g3d

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
