// Package shader generates WGSL programs for the built-in materials.
//
// A Builder implements render.ShaderBuilder. Each program declares its
// resources at @group(0) in a fixed order: object, material and camera
// uniforms, then the lights uniform (Lambert), the fog uniform, the color
// map with its sampler and the environment map with its sampler, each only
// when used. Vertex attributes are read at consecutive locations in the
// order position, normal, uv, color; attributes the geometry lacks are
// left out.
package shader
