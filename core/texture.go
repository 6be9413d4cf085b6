package core

import (
	"image"

	"github.com/gogpu/gputypes"
)

// TextureKind separates sampled images from attachments.
type TextureKind int

const (
	// TextureImage is sampled from CPU image data.
	TextureImage TextureKind = iota
	// TextureRenderTarget is a color attachment of a RenderTarget.
	TextureRenderTarget
	// TextureDepth is a depth or depth-stencil attachment.
	TextureDepth
	// TextureFramebuffer receives copies of the current framebuffer.
	TextureFramebuffer
	// TextureStorage is written by compute shaders.
	TextureStorage
)

// String returns the kind name.
func (k TextureKind) String() string {
	switch k {
	case TextureImage:
		return "Image"
	case TextureRenderTarget:
		return "RenderTarget"
	case TextureDepth:
		return "Depth"
	case TextureFramebuffer:
		return "Framebuffer"
	case TextureStorage:
		return "Storage"
	default:
		return "Unknown"
	}
}

// Texture is an image sampled by shaders or rendered into.
type Texture struct {
	Disposer

	id uint64

	// Name is an optional debug label.
	Name string

	// Kind selects the update policy.
	Kind TextureKind

	// Image holds the pixels of ordinary textures. Nil means absent.
	Image image.Image

	// Pending is set while Image is still being decoded or fetched.
	Pending bool

	// Mipmaps holds caller-supplied mip levels below level 0.
	Mipmaps []image.Image

	// Width, Height and Depth size attachments and image-less textures.
	Width, Height, Depth int

	Format gputypes.TextureFormat

	MinFilter    gputypes.FilterMode
	MagFilter    gputypes.FilterMode
	MipmapFilter gputypes.MipmapFilterMode
	WrapS        gputypes.AddressMode
	WrapT        gputypes.AddressMode
	WrapR        gputypes.AddressMode
	Anisotropy   uint16

	// Compare makes the sampler a comparison sampler (shadow maps).
	Compare gputypes.CompareFunction

	// GenerateMipmaps requests a full mip chain.
	GenerateMipmaps bool

	// Version is bumped by NeedsUpdate and SetImage.
	Version uint64
}

// NewTexture creates a sampled texture. A non-nil img marks the texture
// ready for upload.
func NewTexture(img image.Image) *Texture {
	t := &Texture{
		id:           NextID(),
		Kind:         TextureImage,
		Format:       gputypes.TextureFormatRGBA8Unorm,
		MinFilter:    gputypes.FilterModeLinear,
		MagFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.MipmapFilterModeLinear,
		WrapS:        gputypes.AddressModeClampToEdge,
		WrapT:        gputypes.AddressModeClampToEdge,
		WrapR:        gputypes.AddressModeClampToEdge,
		Anisotropy:   1,
		Depth:        1,
	}
	if img != nil {
		t.SetImage(img)
	}
	return t
}

// NewAttachmentTexture creates a render-target attachment of the given
// kind and size.
func NewAttachmentTexture(kind TextureKind, width, height int, format gputypes.TextureFormat) *Texture {
	t := NewTexture(nil)
	t.Kind = kind
	t.Width, t.Height = width, height
	t.Format = format
	t.MinFilter = gputypes.FilterModeNearest
	t.MagFilter = gputypes.FilterModeNearest
	t.MipmapFilter = gputypes.MipmapFilterModeNearest
	return t
}

// NewDepthTexture creates a depth attachment.
func NewDepthTexture(width, height int, format gputypes.TextureFormat) *Texture {
	return NewAttachmentTexture(TextureDepth, width, height, format)
}

// ID returns the texture id.
func (t *Texture) ID() uint64 { return t.id }

// NeedsUpdate marks the texture dirty.
func (t *Texture) NeedsUpdate() { t.Version++ }

// SetImage replaces the pixels, clears Pending and marks the texture dirty.
func (t *Texture) SetImage(img image.Image) {
	t.Image = img
	t.Pending = false
	if img != nil {
		b := img.Bounds()
		t.Width, t.Height = b.Dx(), b.Dy()
	}
	t.Version++
}

// IsAttachment reports whether the texture is rendered into.
func (t *Texture) IsAttachment() bool {
	return t.Kind == TextureRenderTarget || t.Kind == TextureDepth || t.Kind == TextureFramebuffer
}

// Size returns the texture extent. Image-less textures report their
// declared size, or 1x1 when none is set.
func (t *Texture) Size() (width, height, depth int) {
	width, height, depth = t.Width, t.Height, t.Depth
	if t.Image != nil {
		b := t.Image.Bounds()
		width, height = b.Dx(), b.Dy()
	}
	if width <= 0 {
		width = 1
	}
	if height <= 0 {
		height = 1
	}
	if depth <= 0 {
		depth = 1
	}
	return width, height, depth
}
