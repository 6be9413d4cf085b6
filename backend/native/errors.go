// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import "errors"

var (
	// ErrNotInitialized is returned when a resource is used before it was
	// created, or the backend before Init.
	ErrNotInitialized = errors.New("native: not initialized")

	// ErrAlreadyInitialized is returned when a resource is created twice.
	ErrAlreadyInitialized = errors.New("native: already initialized")

	// ErrNoGPU is returned when no HAL backend or adapter is available.
	ErrNoGPU = errors.New("native: no GPU adapter available")

	// ErrNoProvider is returned when a device provider does not expose
	// HAL device and queue handles.
	ErrNoProvider = errors.New("native: provider does not expose HAL types")

	// ErrUnknownBinding is returned for a binding type the backend cannot
	// place in a bind group.
	ErrUnknownBinding = errors.New("native: unknown binding type")

	// ErrNoPass is returned when drawing or dispatching outside a pass.
	ErrNoPass = errors.New("native: no active pass")

	// ErrUnsupportedFormat is returned when image data cannot be uploaded
	// to a texture of the requested format.
	ErrUnsupportedFormat = errors.New("native: unsupported texture format")

	// ErrDisposed is returned by calls made after Dispose.
	ErrDisposed = errors.New("native: backend disposed")
)
