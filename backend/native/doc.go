// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package native implements render.Backend on a gogpu/wgpu HAL device.
//
// A Backend either opens its own device, picking the best registered HAL
// backend and the first discrete or integrated adapter, or borrows one
// from the host through WithDevice or WithProvider. Borrowed devices are
// never destroyed.
//
// WGSL programs are compiled to SPIR-V with naga. Compiled words are kept
// in a bounded LRU keyed by source hash, so a program that is dropped and
// created again skips the compiler.
//
// Bind group layouts are derived from the bindings and shared by every
// group and pipeline with the same structure. Uniform buffers are
// reference counted per render.UniformBuffer, so a shared uniform has one
// GPU buffer however many groups use it.
//
// GPU objects that may still be referenced by submitted work are released
// once the queue reports the submission complete.
//
// The package registers no HAL backends; import one, for example
// github.com/gogpu/wgpu/hal/allbackends, from the main package.
package native
