package g3d

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/g3d/render"
)

// Option configures a Renderer during creation.
//
// Example:
//
//	// Default backend and shader builder
//	r := g3d.New()
//
//	// Explicit backend (dependency injection)
//	r := g3d.New(g3d.WithBackend(native.New()), g3d.WithSampleCount(4))
type Option func(*config)

// config holds the Renderer configuration.
type config struct {
	backend     render.Backend
	builder     render.ShaderBuilder
	sampleCount int
	colorFormat gputypes.TextureFormat
	depthFormat gputypes.TextureFormat
	sortObjects bool
	clearColor  gputypes.Color
	width       int
	height      int
}

// defaultConfig returns the default renderer configuration.
func defaultConfig() config {
	return config{
		backend:     nil, // backend.Default() at Init
		builder:     nil, // shader.NewBuilder()
		sampleCount: 1,
		colorFormat: gputypes.TextureFormatBGRA8Unorm,
		depthFormat: gputypes.TextureFormatDepth24PlusStencil8,
		sortObjects: true,
		clearColor:  gputypes.Color{A: 1},
		width:       1,
		height:      1,
	}
}

// WithBackend sets the backend. Without it, Init picks the best backend
// registered with the backend package.
func WithBackend(b render.Backend) Option {
	return func(c *config) {
		c.backend = b
	}
}

// WithShaderBuilder replaces the built-in WGSL builder.
func WithShaderBuilder(b render.ShaderBuilder) Option {
	return func(c *config) {
		c.builder = b
	}
}

// WithSampleCount sets the MSAA sample count of the default output.
// Values below 1 are treated as 1.
func WithSampleCount(n int) Option {
	return func(c *config) {
		c.sampleCount = max(n, 1)
	}
}

// WithColorFormat sets the color format of the default output.
func WithColorFormat(f gputypes.TextureFormat) Option {
	return func(c *config) {
		c.colorFormat = f
	}
}

// WithDepthFormat sets the depth-stencil format of the default output.
// gputypes.TextureFormatUndefined disables the depth attachment.
func WithDepthFormat(f gputypes.TextureFormat) Option {
	return func(c *config) {
		c.depthFormat = f
	}
}

// WithSortObjects enables or disables render list sorting. Unsorted
// lists draw in scene traversal order.
func WithSortObjects(sort bool) Option {
	return func(c *config) {
		c.sortObjects = sort
	}
}

// WithClearColor sets the clear color used when the scene has no
// background.
func WithClearColor(color gputypes.Color) Option {
	return func(c *config) {
		c.clearColor = color
	}
}

// WithSize sets the size of the default output.
func WithSize(width, height int) Option {
	return func(c *config) {
		c.width, c.height = max(width, 1), max(height, 1)
	}
}
