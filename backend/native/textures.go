// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/image/draw"

	"github.com/gogpu/g3d/core"
	"github.com/gogpu/g3d/render"
)

// texture is the GPU copy of one core.Texture. view samples every level;
// attachment views are created per mip level on first use.
type texture struct {
	raw  hal.Texture
	view hal.TextureView
	desc hal.TextureDescriptor

	levels map[int]hal.TextureView

	// msaa holds one multisampled attachment per mip level, resolved into
	// raw at the end of a pass.
	msaa map[int]*attachment
}

// sampler wraps a HAL sampler so bind groups can tell a recreated
// sampler from the one they were built with.
type sampler struct {
	raw hal.Sampler
}

// attachment is a texture used only as a render attachment.
type attachment struct {
	raw  hal.Texture
	view hal.TextureView
}

func (a *attachment) destroy(device hal.Device) {
	device.DestroyTextureView(a.view)
	device.DestroyTexture(a.raw)
}

func (t *texture) destroy(device hal.Device) {
	for _, a := range t.msaa {
		a.destroy(device)
	}
	for _, v := range t.levels {
		device.DestroyTextureView(v)
	}
	if t.view != nil {
		device.DestroyTextureView(t.view)
	}
	device.DestroyTexture(t.raw)
}

// level returns the single-level attachment view of mip.
func (t *texture) level(device hal.Device, mip int) (hal.TextureView, error) {
	if v, ok := t.levels[mip]; ok {
		return v, nil
	}
	if mip >= int(t.desc.MipLevelCount) {
		return nil, fmt.Errorf("native: texture %q has no mip level %d", t.desc.Label, mip)
	}
	v, err := device.CreateTextureView(t.raw, &hal.TextureViewDescriptor{
		Label:           t.desc.Label,
		Format:          t.desc.Format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    uint32(mip),
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create attachment view: %w", err)
	}
	if t.levels == nil {
		t.levels = make(map[int]hal.TextureView)
	}
	t.levels[mip] = v
	return v, nil
}

// multisampled returns the MSAA attachment resolved into mip.
func (t *texture) multisampled(device hal.Device, mip int, samples uint32) (*attachment, error) {
	if a, ok := t.msaa[mip]; ok {
		return a, nil
	}
	a, err := newAttachment(device, t.desc.Label+":msaa",
		max(t.desc.Size.Width>>mip, 1), max(t.desc.Size.Height>>mip, 1), t.desc.Format, samples)
	if err != nil {
		return nil, err
	}
	if t.msaa == nil {
		t.msaa = make(map[int]*attachment)
	}
	t.msaa[mip] = a
	return a, nil
}

func newAttachment(device hal.Device, label string, width, height uint32, format gputypes.TextureFormat, samples uint32) (*attachment, error) {
	raw, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   max(samples, 1),
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create attachment %q: %w", label, err)
	}
	view, err := device.CreateTextureView(raw, &hal.TextureViewDescriptor{
		Label:     label,
		Format:    format,
		Dimension: gputypes.TextureViewDimension2D,
		Aspect:    gputypes.TextureAspectAll,
	})
	if err != nil {
		device.DestroyTexture(raw)
		return nil, fmt.Errorf("native: create attachment view %q: %w", label, err)
	}
	return &attachment{raw: raw, view: view}, nil
}

func mipmapFilter(f gputypes.MipmapFilterMode) gputypes.FilterMode {
	if f == gputypes.MipmapFilterModeLinear {
		return gputypes.FilterModeLinear
	}
	return gputypes.FilterModeNearest
}

// CreateSampler creates the sampler of tex. Anisotropy is only honored
// when every filter is linear.
func (b *Backend) CreateSampler(tex *core.Texture) error {
	if err := b.check(); err != nil {
		return err
	}
	if _, ok := b.samplers[tex]; ok {
		return fmt.Errorf("%w: sampler of %q", ErrAlreadyInitialized, tex.Name)
	}
	desc := &hal.SamplerDescriptor{
		Label:        b.label(tex.Name, "sampler"),
		AddressModeU: tex.WrapS,
		AddressModeV: tex.WrapT,
		AddressModeW: tex.WrapR,
		MagFilter:    tex.MagFilter,
		MinFilter:    tex.MinFilter,
		MipmapFilter: mipmapFilter(tex.MipmapFilter),
		LodMaxClamp:  32,
		Compare:      tex.Compare,
		Anisotropy:   max(tex.Anisotropy, 1),
	}
	if desc.MagFilter != gputypes.FilterModeLinear || desc.MinFilter != gputypes.FilterModeLinear ||
		desc.MipmapFilter != gputypes.FilterModeLinear {
		desc.Anisotropy = 1
	}
	s, err := b.device.CreateSampler(desc)
	if err != nil {
		return fmt.Errorf("native: create sampler %q: %w", desc.Label, err)
	}
	b.samplers[tex] = &sampler{raw: s}
	return nil
}

// DestroySampler releases the sampler of tex.
func (b *Backend) DestroySampler(tex *core.Texture) {
	s, ok := b.samplers[tex]
	if !ok {
		return
	}
	delete(b.samplers, tex)
	b.retire(func() { b.device.DestroySampler(s.raw) })
}

func textureUsage(tex *core.Texture, samples int) gputypes.TextureUsage {
	switch tex.Kind {
	case core.TextureRenderTarget:
		return gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopySrc
	case core.TextureDepth:
		if samples > 1 {
			return gputypes.TextureUsageRenderAttachment
		}
		return gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding
	case core.TextureFramebuffer:
		return gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst
	case core.TextureStorage:
		return gputypes.TextureUsageStorageBinding | gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopySrc
	default:
		return gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst
	}
}

// CreateTexture creates the GPU texture of tex. Depth attachments are
// multisampled when opts asks for it; color attachments stay single
// sampled and get a multisampled companion per drawn mip level instead.
func (b *Backend) CreateTexture(tex *core.Texture, opts render.TextureOptions) error {
	if err := b.check(); err != nil {
		return err
	}
	if _, ok := b.textures[tex]; ok {
		return fmt.Errorf("%w: texture %q", ErrAlreadyInitialized, tex.Name)
	}
	t, err := b.allocTexture(tex, opts)
	if err != nil {
		return err
	}
	b.textures[tex] = t
	return nil
}

func (b *Backend) allocTexture(tex *core.Texture, opts render.TextureOptions) (*texture, error) {
	samples := uint32(1)
	if tex.Kind == core.TextureDepth {
		samples = uint32(max(opts.SampleCount, 1))
	}
	dimension := gputypes.TextureDimension2D
	if opts.Depth > 1 {
		dimension = gputypes.TextureDimension3D
	}
	desc := hal.TextureDescriptor{
		Label: b.label(tex.Name),
		Size: hal.Extent3D{
			Width:              uint32(max(opts.Width, 1)),
			Height:             uint32(max(opts.Height, 1)),
			DepthOrArrayLayers: uint32(max(opts.Depth, 1)),
		},
		MipLevelCount: uint32(max(opts.Levels, 1)),
		SampleCount:   samples,
		Dimension:     dimension,
		Format:        tex.Format,
		Usage:         textureUsage(tex, int(samples)),
	}
	raw, err := b.device.CreateTexture(&desc)
	if err != nil {
		return nil, fmt.Errorf("native: create texture %q: %w", desc.Label, err)
	}

	viewDimension := gputypes.TextureViewDimension2D
	if dimension == gputypes.TextureDimension3D {
		viewDimension = gputypes.TextureViewDimension3D
	}
	aspect := gputypes.TextureAspectAll
	if tex.Format.HasDepth() && tex.Format.HasStencil() {
		aspect = gputypes.TextureAspectDepthOnly
	}
	view, err := b.device.CreateTextureView(raw, &hal.TextureViewDescriptor{
		Label:     desc.Label,
		Format:    tex.Format,
		Dimension: viewDimension,
		Aspect:    aspect,
	})
	if err != nil {
		b.device.DestroyTexture(raw)
		return nil, fmt.Errorf("native: create texture view %q: %w", desc.Label, err)
	}
	return &texture{raw: raw, view: view, desc: desc}, nil
}

// CreateDefaultTexture creates a 1x1 opaque white stand-in for tex.
func (b *Backend) CreateDefaultTexture(tex *core.Texture) error {
	if err := b.check(); err != nil {
		return err
	}
	if _, ok := b.textures[tex]; ok {
		return fmt.Errorf("%w: texture %q", ErrAlreadyInitialized, tex.Name)
	}
	t, err := b.whiteTexture(b.label(tex.Name, "default"))
	if err != nil {
		return err
	}
	b.textures[tex] = t
	return nil
}

func (b *Backend) whiteTexture(label string) (*texture, error) {
	white := core.NewTexture(nil)
	white.Name = label
	t, err := b.allocTexture(white, render.TextureOptions{Width: 1, Height: 1, Depth: 1, Levels: 1})
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	copy(img.Pix, []byte{0xff, 0xff, 0xff, 0xff})
	if err := b.writeLevel(t, 0, img); err != nil {
		t.destroy(b.device)
		return nil, err
	}
	return t, nil
}

// createFallback creates the texture and sampler bound in place of
// resources that have no GPU object yet.
func (b *Backend) createFallback() error {
	t, err := b.whiteTexture(b.label("fallback"))
	if err != nil {
		return err
	}
	b.fallback = t
	s, err := b.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        b.label("fallback", "sampler"),
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
		LodMaxClamp:  32,
		Anisotropy:   1,
	})
	if err != nil {
		return fmt.Errorf("native: create fallback sampler: %w", err)
	}
	b.fallbackSampler = s
	return nil
}

// UpdateTexture uploads the image of tex and its caller-supplied mip
// levels. A texture whose image changed size is recreated; bind groups
// using it are rebuilt before their next use.
func (b *Backend) UpdateTexture(tex *core.Texture, opts render.TextureOptions) error {
	if err := b.check(); err != nil {
		return err
	}
	t, ok := b.textures[tex]
	if !ok {
		return fmt.Errorf("%w: texture %q", ErrNotInitialized, tex.Name)
	}
	if tex.Kind != core.TextureImage || tex.Image == nil {
		return nil
	}

	width, height := uint32(max(opts.Width, 1)), uint32(max(opts.Height, 1))
	if t.desc.Size.Width != width || t.desc.Size.Height != height ||
		t.desc.MipLevelCount != uint32(max(opts.Levels, 1)) {
		slogger().Debug("native: texture resized, recreating", "texture", tex.Name, "width", width, "height", height)
		next, err := b.allocTexture(tex, opts)
		if err != nil {
			return err
		}
		old := t
		b.retire(func() { old.destroy(b.device) })
		b.textures[tex] = next
		t = next
	}

	if err := b.writeLevel(t, 0, tex.Image); err != nil {
		return err
	}
	for i, img := range tex.Mipmaps {
		if i+1 >= int(t.desc.MipLevelCount) {
			break
		}
		if err := b.writeLevel(t, i+1, img); err != nil {
			return err
		}
	}
	return nil
}

// GenerateMipmaps fills every level below 0 by bilinear downscaling of
// the previous level on the CPU.
func (b *Backend) GenerateMipmaps(tex *core.Texture) error {
	if err := b.check(); err != nil {
		return err
	}
	t, ok := b.textures[tex]
	if !ok {
		return fmt.Errorf("%w: texture %q", ErrNotInitialized, tex.Name)
	}
	if tex.Image == nil {
		return nil
	}
	prev := toRGBA(tex.Image)
	for level := 1; level < int(t.desc.MipLevelCount); level++ {
		w, h := max(prev.Rect.Dx()/2, 1), max(prev.Rect.Dy()/2, 1)
		next := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.BiLinear.Scale(next, next.Rect, prev, prev.Rect, draw.Src, nil)
		if err := b.writeLevel(t, level, next); err != nil {
			return err
		}
		prev = next
	}
	return nil
}

// writeLevel uploads img into mip level of t.
func (b *Backend) writeLevel(t *texture, level int, img image.Image) error {
	px := toRGBA(img)
	switch t.desc.Format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb:
	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		px = swizzle(px)
	default:
		return fmt.Errorf("%w: %v for image upload", ErrUnsupportedFormat, t.desc.Format)
	}
	w, h := px.Rect.Dx(), px.Rect.Dy()
	err := b.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.raw, MipLevel: uint32(level), Aspect: gputypes.TextureAspectAll},
		px.Pix,
		&hal.ImageDataLayout{BytesPerRow: uint32(px.Stride), RowsPerImage: uint32(h)},
		&hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
	)
	if err != nil {
		return fmt.Errorf("native: write texture %q level %d: %w", t.desc.Label, level, err)
	}
	return nil
}

// toRGBA returns img as a tightly packed RGBA image at the origin.
func toRGBA(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	if px, ok := img.(*image.RGBA); ok && bounds.Min == (image.Point{}) && px.Stride == 4*bounds.Dx() {
		return px
	}
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Rect, img, bounds.Min, draw.Src)
	return dst
}

func swizzle(px *image.RGBA) *image.RGBA {
	out := image.NewRGBA(px.Rect)
	copy(out.Pix, px.Pix)
	for i := 0; i+3 < len(out.Pix); i += 4 {
		out.Pix[i], out.Pix[i+2] = out.Pix[i+2], out.Pix[i]
	}
	return out
}

// DestroyTexture releases the texture of tex.
func (b *Backend) DestroyTexture(tex *core.Texture) {
	t, ok := b.textures[tex]
	if !ok {
		return
	}
	delete(b.textures, tex)
	b.retire(func() { t.destroy(b.device) })
}
