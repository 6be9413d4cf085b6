// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/gogpu/g3d/core"
	"github.com/gogpu/gputypes"
)

// ColorSpace is the color space of the output attachment.
type ColorSpace int

const (
	ColorSpaceSRGB ColorSpace = iota
	ColorSpaceLinear
)

// String returns the color space name.
func (c ColorSpace) String() string {
	if c == ColorSpaceLinear {
		return "linear"
	}
	return "srgb"
}

// TextureOptions carries the derived size and level count of a texture.
type TextureOptions struct {
	Width, Height, Depth int

	// Levels is the mip level count, at least 1.
	Levels int

	// NeedsMipmaps is set when the texture samples with mip filtering.
	NeedsMipmaps bool

	// SampleCount is the MSAA count for attachments.
	SampleCount int
}

// RenderFormat is the backend's fingerprint of the attachment formats and
// vertex input a render pipeline was compiled against.
type RenderFormat struct {
	SampleCount        uint32
	ColorSpace         ColorSpace
	ColorFormat        gputypes.TextureFormat
	DepthStencilFormat gputypes.TextureFormat
	Topology           gputypes.PrimitiveTopology

	// VertexLayout hashes the vertex buffer layouts; zero when unused.
	VertexLayout uint64
}

// String renders the fingerprint as comma-joined fields.
func (f RenderFormat) String() string {
	return fmt.Sprintf("%d,%s,%d,%d,%d,%x",
		f.SampleCount, f.ColorSpace, f.ColorFormat, f.DepthStencilFormat, f.Topology, f.VertexLayout)
}

// DefaultRenderFormat derives the fingerprint from the render object's
// context and object. Backends without extra state can return it as is.
func DefaultRenderFormat(ro *RenderObject) RenderFormat {
	rc := ro.Context
	f := RenderFormat{
		SampleCount:        uint32(max(rc.SampleCount, 1)),
		ColorSpace:         rc.ColorSpace,
		ColorFormat:        rc.ColorFormat,
		DepthStencilFormat: rc.DepthStencilFormat(),
		Topology:           gputypes.PrimitiveTopologyTriangleList,
	}
	if obj := ro.Object(); obj != nil {
		f.Topology = obj.Topology()
	}
	if layouts, err := ro.VertexLayouts(); err == nil {
		f.VertexLayout = HashVertexLayouts(layouts)
	}
	return f
}

// HashVertexLayouts returns an FNV-1a hash of layouts. Every field is
// written with a fixed width, so distinct layouts cannot alias.
func HashVertexLayouts(layouts []gputypes.VertexBufferLayout) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	write := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = h.Write(buf[:])
	}
	write(uint64(len(layouts)))
	for _, l := range layouts {
		write(l.ArrayStride)
		write(uint64(l.StepMode))
		write(uint64(len(l.Attributes)))
		for _, a := range l.Attributes {
			write(uint64(a.Format))
			write(a.Offset)
			write(uint64(a.ShaderLocation))
		}
	}
	return h.Sum64()
}

// Backend creates and destroys the GPU objects the caches track.
//
// Create methods are called at most once per entity between matching
// Destroy calls; implementations may report a violation as an error.
// All methods are called from the goroutine driving the frame.
type Backend interface {
	// Init acquires the device. It is called once before any other method.
	Init(ctx context.Context) error

	// Dispose releases the device and everything created on it.
	Dispose()

	CreateAttribute(attr *core.Attribute) error
	CreateIndexAttribute(attr *core.Attribute) error
	CreateStorageAttribute(attr *core.Attribute) error
	UpdateAttribute(attr *core.Attribute) error
	DestroyAttribute(attr *core.Attribute)

	CreateSampler(tex *core.Texture) error
	DestroySampler(tex *core.Texture)
	CreateDefaultTexture(tex *core.Texture) error
	CreateTexture(tex *core.Texture, opts TextureOptions) error
	UpdateTexture(tex *core.Texture, opts TextureOptions) error
	GenerateMipmaps(tex *core.Texture) error
	DestroyTexture(tex *core.Texture)

	// CreateBindings creates the bind group layout and bind group.
	CreateBindings(group *BindGroup) error

	// UpdateBindings rebuilds the bind group of group, for use with
	// pipeline when it is not nil.
	UpdateBindings(group *BindGroup, pipeline Pipeline) error

	// UpdateBinding uploads the CPU copy of a uniform buffer.
	UpdateBinding(binding Binding) error

	// DestroyBindings releases what CreateBindings created for group.
	DestroyBindings(group *BindGroup)

	CreateProgram(stage *ProgrammableStage) error
	DestroyProgram(stage *ProgrammableStage)

	// CreateRenderPipeline compiles ro.Pipeline against group's layout.
	CreateRenderPipeline(ro *RenderObject, group *BindGroup) error
	CreateComputePipeline(pipeline *ComputePipeline, group *BindGroup) error

	// DestroyPipeline is called when a pipeline is evicted.
	DestroyPipeline(pipeline Pipeline)

	// NeedsRenderUpdate reports backend-specific state changes that
	// require a new pipeline for ro.
	NeedsRenderUpdate(ro *RenderObject) bool

	// RenderFormat returns the attachment and vertex fingerprint for ro.
	RenderFormat(ro *RenderObject) RenderFormat

	BeginRender(rc *RenderContext) error
	Draw(ro *RenderObject, info *Info) error
	FinishRender(rc *RenderContext) error

	BeginCompute() error
	Compute(node *core.ComputeNode, group *BindGroup, pipeline *ComputePipeline) error
	FinishCompute() error

	// ReadAttribute copies the GPU contents of attr's buffer back to the
	// CPU. It does not touch cache state.
	ReadAttribute(ctx context.Context, attr *core.Attribute) ([]byte, error)
}
