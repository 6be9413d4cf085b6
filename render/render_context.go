package render

import (
	"weak"

	"github.com/gogpu/g3d/core"
	"github.com/gogpu/g3d/scene"
	"github.com/gogpu/gputypes"
)

// RenderContext describes the attachments one render call draws into.
type RenderContext struct {
	id uint64

	ColorFormat gputypes.TextureFormat
	DepthFormat gputypes.TextureFormat
	ColorSpace  ColorSpace
	SampleCount int

	// Depth and Stencil enable the depth-stencil attachment aspects.
	Depth   bool
	Stencil bool

	// RenderTarget is nil when drawing to the backend's default output.
	RenderTarget *core.RenderTarget
	MipLevel     int

	// DepthTexture is the depth attachment of RenderTarget at MipLevel,
	// set by the frame driver after Textures.UpdateRenderTarget.
	DepthTexture *core.Texture

	Width, Height int

	ClearColor gputypes.Color
	Clear      bool

	camera weak.Pointer[scene.Camera]
}

// NewRenderContext creates a context with depth and stencil enabled.
func NewRenderContext() *RenderContext {
	return &RenderContext{
		id:          core.NextID(),
		ColorFormat: gputypes.TextureFormatBGRA8Unorm,
		DepthFormat: gputypes.TextureFormatDepth24PlusStencil8,
		SampleCount: 1,
		Depth:       true,
		Stencil:     true,
		ClearColor:  gputypes.Color{A: 1},
		Clear:       true,
	}
}

// ID returns the context id.
func (rc *RenderContext) ID() uint64 { return rc.id }

// DepthStencilFormat returns the depth attachment format, or Undefined
// when depth is disabled.
func (rc *RenderContext) DepthStencilFormat() gputypes.TextureFormat {
	if !rc.Depth && !rc.Stencil {
		return gputypes.TextureFormatUndefined
	}
	if rc.RenderTarget != nil {
		if dt := rc.RenderTarget.DepthTexture; dt != nil {
			return dt.Format
		}
		if rc.RenderTarget.StencilBuffer {
			return gputypes.TextureFormatDepth24PlusStencil8
		}
		return gputypes.TextureFormatDepth24Plus
	}
	return rc.DepthFormat
}

// SetCamera makes cam the camera rc is currently drawn from. Camera
// uniforms read it when they refresh, so switching cameras does not
// invalidate render objects.
func (rc *RenderContext) SetCamera(cam *scene.Camera) {
	if rc.Camera() != cam {
		rc.camera = weak.Make(cam)
	}
}

// Camera returns the current camera, or nil.
func (rc *RenderContext) Camera() *scene.Camera { return rc.camera.Value() }
