package g3d

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestDefaultConfig(t *testing.T) {
	r := New()
	c := r.cfg
	if c.sampleCount != 1 {
		t.Errorf("sampleCount = %d, want 1", c.sampleCount)
	}
	if c.colorFormat != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("colorFormat = %v, want BGRA8Unorm", c.colorFormat)
	}
	if c.depthFormat != gputypes.TextureFormatDepth24PlusStencil8 {
		t.Errorf("depthFormat = %v, want Depth24PlusStencil8", c.depthFormat)
	}
	if !c.sortObjects {
		t.Error("sortObjects = false, want true")
	}
	if c.clearColor != (gputypes.Color{A: 1}) {
		t.Errorf("clearColor = %v, want opaque black", c.clearColor)
	}
	if c.backend != nil || c.builder != nil {
		t.Error("backend or builder set by default")
	}
}

func TestOptions(t *testing.T) {
	red := gputypes.Color{R: 1, A: 1}
	r := New(
		WithSampleCount(4),
		WithColorFormat(gputypes.TextureFormatRGBA8Unorm),
		WithDepthFormat(gputypes.TextureFormatDepth32Float),
		WithSortObjects(false),
		WithClearColor(red),
		WithSize(320, 240),
	)

	rc := r.output
	if rc.SampleCount != 4 {
		t.Errorf("SampleCount = %d, want 4", rc.SampleCount)
	}
	if rc.ColorFormat != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("ColorFormat = %v, want RGBA8Unorm", rc.ColorFormat)
	}
	if rc.DepthFormat != gputypes.TextureFormatDepth32Float {
		t.Errorf("DepthFormat = %v, want Depth32Float", rc.DepthFormat)
	}
	if rc.Width != 320 || rc.Height != 240 {
		t.Errorf("size = %dx%d, want 320x240", rc.Width, rc.Height)
	}
	if r.cfg.sortObjects {
		t.Error("sortObjects = true, want false")
	}
	if r.cfg.clearColor != red {
		t.Errorf("clearColor = %v, want %v", r.cfg.clearColor, red)
	}
}

func TestOptionsClamp(t *testing.T) {
	r := New(WithSampleCount(0), WithSize(-1, 0))
	if r.output.SampleCount != 1 {
		t.Errorf("SampleCount = %d, want 1", r.output.SampleCount)
	}
	if r.output.Width != 1 || r.output.Height != 1 {
		t.Errorf("size = %dx%d, want 1x1", r.output.Width, r.output.Height)
	}

	r.SetSize(0, 8)
	if r.output.Width != 1 || r.output.Height != 8 {
		t.Errorf("SetSize(0, 8) size = %dx%d, want 1x8", r.output.Width, r.output.Height)
	}
}
