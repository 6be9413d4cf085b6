package render

import (
	"fmt"
	"math/bits"

	"github.com/gogpu/g3d/cache"
	"github.com/gogpu/g3d/core"
	"github.com/gogpu/gputypes"
)

// TextureRecord is the GPU-side state of one texture.
type TextureRecord struct {
	Initialized bool

	// Version is the texture version last synced to the GPU.
	Version uint64

	// IsDefault is set while a placeholder stands in for missing data.
	IsDefault bool

	// Generation advances whenever the GPU texture object is replaced.
	// Bind groups referencing an older generation must be rebuilt.
	Generation uint64

	created bool
	sampler bool
}

type renderTargetRecord struct {
	initialized   bool
	width, height int
	sampleCount   int
	depthTextures map[int]*core.Texture
}

// Textures manages GPU textures, their samplers and render-target
// attachments. A sampler and its texture are created and destroyed as a
// pair.
type Textures struct {
	backend Backend
	info    *Info

	textures      *cache.IdentityMap[core.Texture, TextureRecord]
	renderTargets *cache.IdentityMap[core.RenderTarget, renderTargetRecord]
}

// NewTextures creates a texture cache.
func NewTextures(backend Backend, info *Info) *Textures {
	return &Textures{
		backend:       backend,
		info:          info,
		textures:      cache.NewIdentityMap[core.Texture, TextureRecord](),
		renderTargets: cache.NewIdentityMap[core.RenderTarget, renderTargetRecord](),
	}
}

// Get returns the record of tex, or nil when it was never updated.
func (t *Textures) Get(tex *core.Texture) *TextureRecord {
	rec, ok := t.textures.Lookup(tex)
	if !ok {
		return nil
	}
	return rec
}

// UpdateTexture brings the GPU copy of tex up to date. opts may be the
// zero value; size and level count are derived from tex.
func (t *Textures) UpdateTexture(tex *core.Texture, opts TextureOptions) error {
	rec := t.textures.Get(tex)
	if rec.Initialized && rec.Version == tex.Version {
		return nil
	}

	opts = t.options(tex, opts)
	attachment := tex.IsAttachment()
	switch {
	case attachment || tex.Kind == core.TextureStorage:
		// Attachments cannot be resized in place.
		t.release(tex, rec)
		if err := t.createSampler(tex, rec); err != nil {
			return err
		}
		if err := t.backend.CreateTexture(tex, opts); err != nil {
			return fmt.Errorf("render: create texture %q: %w", tex.Name, err)
		}
		rec.created = true
		rec.Generation++

	default:
		if err := t.createSampler(tex, rec); err != nil {
			return err
		}
		if tex.Version > 0 {
			if tex.Image == nil || tex.Pending {
				reason := "image is missing"
				if tex.Pending {
					reason = "image is not loaded yet"
				}
				slogger().Warn("render: texture upload skipped", "texture", tex.Name, "reason", reason)
				t.markInitialized(tex, rec)
				return nil
			}
			if !rec.created || rec.IsDefault {
				if rec.created {
					t.backend.DestroyTexture(tex)
					rec.created = false
				}
				if err := t.backend.CreateTexture(tex, opts); err != nil {
					return fmt.Errorf("render: create texture %q: %w", tex.Name, err)
				}
				rec.created = true
				rec.IsDefault = false
				rec.Generation++
			}
			if err := t.backend.UpdateTexture(tex, opts); err != nil {
				return fmt.Errorf("render: upload texture %q: %w", tex.Name, err)
			}
			if opts.NeedsMipmaps && len(tex.Mipmaps) == 0 {
				if err := t.backend.GenerateMipmaps(tex); err != nil {
					return fmt.Errorf("render: mipmaps for %q: %w", tex.Name, err)
				}
			}
		} else {
			if err := t.backend.CreateDefaultTexture(tex); err != nil {
				return fmt.Errorf("render: default texture for %q: %w", tex.Name, err)
			}
			rec.created = true
			rec.IsDefault = true
			rec.Generation++
		}
	}

	t.markInitialized(tex, rec)
	rec.Version = tex.Version
	return nil
}

// markInitialized counts tex once and arranges for its GPU objects to be
// freed on dispose. The listener removes itself, so a second dispose is
// a no-op.
func (t *Textures) markInitialized(tex *core.Texture, rec *TextureRecord) {
	if rec.Initialized {
		return
	}
	rec.Initialized = true
	t.info.Memory.Textures++

	var remove func()
	remove = tex.OnDispose(func() {
		remove()
		if t.destroyTexture(tex) {
			t.info.Memory.Textures--
		}
	})
}

func (t *Textures) createSampler(tex *core.Texture, rec *TextureRecord) error {
	if rec.sampler {
		return nil
	}
	if err := t.backend.CreateSampler(tex); err != nil {
		return fmt.Errorf("render: create sampler for %q: %w", tex.Name, err)
	}
	rec.sampler = true
	return nil
}

// release frees the sampler and texture of rec, if present.
func (t *Textures) release(tex *core.Texture, rec *TextureRecord) {
	if rec.sampler {
		t.backend.DestroySampler(tex)
		rec.sampler = false
	}
	if rec.created {
		t.backend.DestroyTexture(tex)
		rec.created = false
	}
}

func (t *Textures) destroyTexture(tex *core.Texture) bool {
	rec, ok := t.textures.Delete(tex)
	if ok {
		t.release(tex, rec)
	}
	return ok
}

// UpdateRenderTarget brings every attachment of rt up to date for
// drawing into mipLevel. A companion depth texture is created when rt
// requests depth but supplies none.
func (t *Textures) UpdateRenderTarget(rt *core.RenderTarget, mipLevel int) error {
	rec := t.renderTargets.Get(rt)
	if rec.depthTextures == nil {
		rec.depthTextures = make(map[int]*core.Texture)
	}
	sampleCount := rt.SampleCount()

	var width, height int
	if color := rt.Texture(); color != nil {
		width, height, _ = color.Size()
	} else {
		width, height = max(rt.Width, 1), max(rt.Height, 1)
	}
	mipWidth, mipHeight := max(width>>mipLevel, 1), max(height>>mipLevel, 1)

	depth := rt.DepthTexture
	if depth == nil {
		depth = rec.depthTextures[mipLevel]
	}
	if depth == nil && (rt.DepthBuffer || rt.StencilBuffer) {
		format := gputypes.TextureFormatDepth24Plus
		if rt.StencilBuffer {
			format = gputypes.TextureFormatDepth24PlusStencil8
		}
		depth = core.NewDepthTexture(mipWidth, mipHeight, format)
		depth.Name = fmt.Sprintf("depth:%d:%d", rt.ID(), mipLevel)
		rec.depthTextures[mipLevel] = depth
	}

	needsUpdate := false
	if rec.width != width || rec.height != height {
		needsUpdate = true
		if depth != nil {
			depth.Width, depth.Height = mipWidth, mipHeight
			depth.NeedsUpdate()
		}
	}
	rec.width, rec.height = width, height

	if rec.sampleCount != sampleCount {
		needsUpdate = true
		if depth != nil {
			depth.NeedsUpdate()
		}
		rec.sampleCount = sampleCount
	}

	opts := TextureOptions{SampleCount: sampleCount}
	for _, tex := range rt.Textures {
		if needsUpdate {
			tex.NeedsUpdate()
		}
		if err := t.UpdateTexture(tex, opts); err != nil {
			return err
		}
	}
	if depth != nil {
		if err := t.UpdateTexture(depth, opts); err != nil {
			return err
		}
	}

	if !rec.initialized {
		rec.initialized = true
		var remove func()
		remove = rt.OnDispose(func() {
			remove()
			t.destroyRenderTarget(rt)
		})
	}
	return nil
}

// DepthTexture returns the depth attachment used for rt at mipLevel.
func (t *Textures) DepthTexture(rt *core.RenderTarget, mipLevel int) *core.Texture {
	if rt.DepthTexture != nil {
		return rt.DepthTexture
	}
	rec, ok := t.renderTargets.Lookup(rt)
	if !ok {
		return nil
	}
	return rec.depthTextures[mipLevel]
}

func (t *Textures) destroyRenderTarget(rt *core.RenderTarget) {
	rec, ok := t.renderTargets.Delete(rt)
	if !ok {
		return
	}
	for _, tex := range rt.Textures {
		tex.Dispose()
	}
	if rt.DepthTexture != nil {
		rt.DepthTexture.Dispose()
	}
	for _, depth := range rec.depthTextures {
		depth.Dispose()
	}
}

func (t *Textures) options(tex *core.Texture, opts TextureOptions) TextureOptions {
	w, h, d := t.Size(tex)
	if opts.Width == 0 {
		opts.Width = w
	}
	if opts.Height == 0 {
		opts.Height = h
	}
	if opts.Depth == 0 {
		opts.Depth = d
	}
	opts.NeedsMipmaps = t.NeedsMipmaps(tex)
	if opts.Levels == 0 {
		switch {
		case len(tex.Mipmaps) > 0:
			opts.Levels = len(tex.Mipmaps) + 1
		case opts.NeedsMipmaps:
			opts.Levels = MipLevels(opts.Width, opts.Height)
		default:
			opts.Levels = 1
		}
	}
	if opts.SampleCount == 0 {
		opts.SampleCount = 1
	}
	return opts
}

// Size returns the extent of tex.
func (t *Textures) Size(tex *core.Texture) (width, height, depth int) {
	return tex.Size()
}

// NeedsMipmaps reports whether tex samples a full mip chain.
func (t *Textures) NeedsMipmaps(tex *core.Texture) bool {
	if tex.IsAttachment() || tex.Kind == core.TextureStorage {
		return false
	}
	if tex.GenerateMipmaps {
		return true
	}
	return len(tex.Mipmaps) > 0
}

// MipLevels returns the length of a full mip chain for the extent.
func MipLevels(width, height int) int {
	m := max(width, height, 1)
	return bits.Len(uint(m))
}

// Dispose drops every record without touching the backend.
func (t *Textures) Dispose() {
	t.textures.Clear()
	t.renderTargets.Clear()
}
