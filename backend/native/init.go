// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"github.com/gogpu/g3d/backend"
	"github.com/gogpu/g3d/render"
)

// init registers the native backend on package import, so that
// backend.Default picks it:
//
//	import _ "github.com/gogpu/g3d/backend/native"
//
// A HAL backend must be registered too, for example by importing
// github.com/gogpu/wgpu/hal/allbackends.
func init() {
	backend.Register(backend.Native, func() render.Backend {
		return New()
	})
}
