package core

import "github.com/gogpu/gputypes"

// RenderTargetOptions configures NewRenderTarget.
type RenderTargetOptions struct {
	// Count is the number of color attachments, at least 1.
	Count int

	// Format is the color attachment format.
	Format gputypes.TextureFormat

	// Samples is the MSAA sample count; 0 and 1 both mean no MSAA.
	Samples int

	// DepthBuffer requests a depth attachment.
	DepthBuffer bool

	// StencilBuffer requests a stencil aspect on the depth attachment.
	StencilBuffer bool

	// DepthTexture supplies an explicit depth attachment.
	DepthTexture *Texture
}

// RenderTarget is an offscreen framebuffer made of color attachments and
// an optional depth attachment.
type RenderTarget struct {
	Disposer

	id uint64

	Width, Height int
	Samples       int

	// Textures holds the color attachments.
	Textures []*Texture

	// DepthTexture is an explicit depth attachment. When nil the renderer
	// creates and owns a companion depth texture.
	DepthTexture *Texture

	DepthBuffer   bool
	StencilBuffer bool
}

// NewRenderTarget creates a render target of the given size.
func NewRenderTarget(width, height int, opts RenderTargetOptions) *RenderTarget {
	if opts.Count < 1 {
		opts.Count = 1
	}
	if opts.Format == gputypes.TextureFormatUndefined {
		opts.Format = gputypes.TextureFormatRGBA8Unorm
	}
	rt := &RenderTarget{
		id:            NextID(),
		Width:         width,
		Height:        height,
		Samples:       opts.Samples,
		DepthTexture:  opts.DepthTexture,
		DepthBuffer:   opts.DepthBuffer,
		StencilBuffer: opts.StencilBuffer,
	}
	for range opts.Count {
		rt.Textures = append(rt.Textures, NewAttachmentTexture(TextureRenderTarget, width, height, opts.Format))
	}
	return rt
}

// ID returns the render target id.
func (rt *RenderTarget) ID() uint64 { return rt.id }

// Texture returns the first color attachment.
func (rt *RenderTarget) Texture() *Texture {
	if len(rt.Textures) == 0 {
		return nil
	}
	return rt.Textures[0]
}

// SetSize resizes the target and its color attachments. The renderer
// detects the change on its next update and recreates the GPU textures.
func (rt *RenderTarget) SetSize(width, height int) {
	if rt.Width == width && rt.Height == height {
		return
	}
	rt.Width, rt.Height = width, height
	for _, t := range rt.Textures {
		t.Width, t.Height = width, height
	}
	if rt.DepthTexture != nil {
		rt.DepthTexture.Width, rt.DepthTexture.Height = width, height
	}
}

// SampleCount returns the effective MSAA sample count.
func (rt *RenderTarget) SampleCount() int {
	if rt.Samples <= 0 {
		return 1
	}
	return rt.Samples
}
