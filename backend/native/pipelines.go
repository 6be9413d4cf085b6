// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"
	"hash/fnv"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/g3d/core"
	"github.com/gogpu/g3d/render"
)

// compiled is a cached SPIR-V translation of a WGSL source.
type compiled struct {
	code  string
	words []uint32
}

// pipeline is a compiled render or compute pipeline and the layouts it
// holds references to.
type pipeline struct {
	render  hal.RenderPipeline
	compute hal.ComputePipeline
	layout  hal.PipelineLayout
	layouts []*layout
}

// compile returns the SPIR-V words of code, compiling on a cache miss.
func (b *Backend) compile(code string) ([]uint32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(code))
	key := h.Sum64()
	if c, ok := b.spirv.Get(key); ok && c.code == code {
		b.programHits++
		return c.words, nil
	}
	b.programMisses++

	raw, err := naga.Compile(code)
	if err != nil {
		return nil, fmt.Errorf("native: compile shader: %w", err)
	}
	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(raw)/4)
	for i := range words {
		words[i] = uint32(raw[i*4]) |
			uint32(raw[i*4+1])<<8 |
			uint32(raw[i*4+2])<<16 |
			uint32(raw[i*4+3])<<24
	}
	b.spirv.Add(key, compiled{code: code, words: words})
	return words, nil
}

// CreateProgram compiles stage and creates its shader module.
func (b *Backend) CreateProgram(stage *render.ProgrammableStage) error {
	if err := b.check(); err != nil {
		return err
	}
	if _, ok := b.programs[stage]; ok {
		return fmt.Errorf("%w: program %q", ErrAlreadyInitialized, stage.Name)
	}
	words, err := b.compile(stage.Code)
	if err != nil {
		return fmt.Errorf("%s program %q: %w", stage.Stage, stage.Name, err)
	}
	label := b.label(stage.Name, stage.Stage.String())
	module, err := b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: words},
	})
	if err != nil {
		return fmt.Errorf("native: create shader module %q: %w", label, err)
	}
	b.programs[stage] = module
	slogger().Debug("native: program created", "stage", stage.Stage, "name", stage.Name)
	return nil
}

// DestroyProgram releases the shader module of stage.
func (b *Backend) DestroyProgram(stage *render.ProgrammableStage) {
	module, ok := b.programs[stage]
	if !ok {
		return
	}
	delete(b.programs, stage)
	b.retire(func() { b.device.DestroyShaderModule(module) })
}

func (b *Backend) module(stage *render.ProgrammableStage) (hal.ShaderModule, error) {
	if stage == nil {
		return nil, fmt.Errorf("%w: missing program", ErrNotInitialized)
	}
	module, ok := b.programs[stage]
	if !ok {
		return nil, fmt.Errorf("%w: program %q", ErrNotInitialized, stage.Name)
	}
	return module, nil
}

// pipelineLayout creates a layout with the layout of g at g.Index and
// empty layouts below it.
func (b *Backend) pipelineLayout(name string, g *render.BindGroup) (hal.PipelineLayout, []*layout, error) {
	var layouts []*layout
	fail := func(err error) (hal.PipelineLayout, []*layout, error) {
		for _, l := range layouts {
			b.releaseLayout(l)
		}
		return nil, nil, err
	}

	if g != nil {
		rec, ok := b.groups[g]
		if !ok {
			return fail(fmt.Errorf("%w: bind group %q", ErrNotInitialized, g.Name))
		}
		for range g.Index {
			l, err := b.emptyLayout()
			if err != nil {
				return fail(err)
			}
			layouts = append(layouts, l)
		}
		rec.layout.refs++
		layouts = append(layouts, rec.layout)
	}

	raws := make([]hal.BindGroupLayout, len(layouts))
	for i, l := range layouts {
		raws[i] = l.raw
	}
	pl, err := b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            b.label(name, "pipeline-layout"),
		BindGroupLayouts: raws,
	})
	if err != nil {
		return fail(fmt.Errorf("native: create pipeline layout %q: %w", name, err))
	}
	return pl, layouts, nil
}

// stencilOp maps a material stencil operation to HAL.
func stencilOp(op gputypes.StencilOperation) hal.StencilOperation {
	switch op {
	case gputypes.StencilOperationZero:
		return hal.StencilOperationZero
	case gputypes.StencilOperationReplace:
		return hal.StencilOperationReplace
	case gputypes.StencilOperationInvert:
		return hal.StencilOperationInvert
	case gputypes.StencilOperationIncrementClamp:
		return hal.StencilOperationIncrementClamp
	case gputypes.StencilOperationDecrementClamp:
		return hal.StencilOperationDecrementClamp
	case gputypes.StencilOperationIncrementWrap:
		return hal.StencilOperationIncrementWrap
	case gputypes.StencilOperationDecrementWrap:
		return hal.StencilOperationDecrementWrap
	default:
		return hal.StencilOperationKeep
	}
}

func depthStencil(state core.RenderState, format gputypes.TextureFormat) *hal.DepthStencilState {
	if format == gputypes.TextureFormatUndefined {
		return nil
	}
	ds := &hal.DepthStencilState{
		Format:            format,
		DepthWriteEnabled: state.DepthWrite && state.DepthTest,
		DepthCompare:      state.DepthFunc,
	}
	if !state.DepthTest {
		ds.DepthCompare = gputypes.CompareFunctionAlways
	}
	face := hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways}
	if state.StencilWrite && format.HasStencil() {
		face = hal.StencilFaceState{
			Compare:     state.StencilFunc,
			FailOp:      stencilOp(state.StencilFail),
			DepthFailOp: stencilOp(state.StencilZFail),
			PassOp:      stencilOp(state.StencilZPass),
		}
		ds.StencilReadMask = state.StencilFuncMask
		ds.StencilWriteMask = state.StencilWriteMask
	}
	ds.StencilFront, ds.StencilBack = face, face
	return ds
}

func isStrip(t gputypes.PrimitiveTopology) bool {
	return t == gputypes.PrimitiveTopologyTriangleStrip || t == gputypes.PrimitiveTopologyLineStrip
}

// colorFormats returns the formats of the color attachments ro draws to.
func colorFormats(ro *render.RenderObject) []gputypes.TextureFormat {
	rc := ro.Context
	if rc.RenderTarget == nil || len(rc.RenderTarget.Textures) == 0 {
		return []gputypes.TextureFormat{rc.ColorFormat}
	}
	formats := make([]gputypes.TextureFormat, len(rc.RenderTarget.Textures))
	for i, t := range rc.RenderTarget.Textures {
		formats[i] = t.Format
	}
	return formats
}

// CreateRenderPipeline compiles ro.Pipeline for the attachments of
// ro.Context and the layout of g.
func (b *Backend) CreateRenderPipeline(ro *render.RenderObject, g *render.BindGroup) error {
	if err := b.check(); err != nil {
		return err
	}
	p := ro.Pipeline
	if p == nil {
		return fmt.Errorf("%w: render object has no pipeline", ErrNotInitialized)
	}
	if _, ok := b.renderPipelines[p]; ok {
		return fmt.Errorf("%w: render pipeline", ErrAlreadyInitialized)
	}
	vertex, err := b.module(p.Vertex)
	if err != nil {
		return err
	}
	fragment, err := b.module(p.Fragment)
	if err != nil {
		return err
	}
	buffers, err := ro.VertexLayouts()
	if err != nil {
		return err
	}

	key := p.Key()
	state := key.State
	blend, ok := state.Blend()
	if !ok {
		slogger().Error("native: unknown blending mode, blending disabled", "blending", state.Blending)
	}
	formats := colorFormats(ro)
	targets := make([]gputypes.ColorTargetState, len(formats))
	for i, f := range formats {
		targets[i] = gputypes.ColorTargetState{Format: f, Blend: blend, WriteMask: state.WriteMask()}
	}

	primitive := gputypes.PrimitiveState{
		Topology:  key.Format.Topology,
		FrontFace: gputypes.FrontFaceCCW,
		CullMode:  state.CullMode(),
	}
	if index := ro.Index(); index != nil && isStrip(primitive.Topology) {
		f := index.IndexFormat
		primitive.StripIndexFormat = &f
	}

	name := "render"
	if p.Fragment.Name != "" {
		name = p.Fragment.Name
	}
	pl, layouts, err := b.pipelineLayout(name, g)
	if err != nil {
		return err
	}
	raw, err := b.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  b.label(name, "pipeline"),
		Layout: pl,
		Vertex: hal.VertexState{
			Module:     vertex,
			EntryPoint: p.Vertex.EntryPoint,
			Buffers:    buffers,
		},
		Primitive:    primitive,
		DepthStencil: depthStencil(state, key.Format.DepthStencilFormat),
		Multisample: gputypes.MultisampleState{
			Count:                  max(key.Format.SampleCount, 1),
			Mask:                   0xFFFFFFFF,
			AlphaToCoverageEnabled: state.AlphaToCoverage,
		},
		Fragment: &hal.FragmentState{
			Module:     fragment,
			EntryPoint: p.Fragment.EntryPoint,
			Targets:    targets,
		},
	})
	if err != nil {
		b.destroyPipeline(&pipeline{layout: pl, layouts: layouts})
		return fmt.Errorf("native: create render pipeline %q: %w", name, err)
	}
	b.renderPipelines[p] = &pipeline{render: raw, layout: pl, layouts: layouts}
	return nil
}

// CreateComputePipeline compiles p against the layout of g.
func (b *Backend) CreateComputePipeline(p *render.ComputePipeline, g *render.BindGroup) error {
	if err := b.check(); err != nil {
		return err
	}
	if _, ok := b.computePipelines[p]; ok {
		return fmt.Errorf("%w: compute pipeline", ErrAlreadyInitialized)
	}
	module, err := b.module(p.Compute)
	if err != nil {
		return err
	}
	name := "compute"
	if p.Compute.Name != "" {
		name = p.Compute.Name
	}
	pl, layouts, err := b.pipelineLayout(name, g)
	if err != nil {
		return err
	}
	raw, err := b.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   b.label(name, "pipeline"),
		Layout:  pl,
		Compute: hal.ComputeState{Module: module, EntryPoint: p.Compute.EntryPoint},
	})
	if err != nil {
		b.destroyPipeline(&pipeline{layout: pl, layouts: layouts})
		return fmt.Errorf("native: create compute pipeline %q: %w", name, err)
	}
	b.computePipelines[p] = &pipeline{compute: raw, layout: pl, layouts: layouts}
	return nil
}

// DestroyPipeline releases an evicted pipeline.
func (b *Backend) DestroyPipeline(p render.Pipeline) {
	var rec *pipeline
	switch v := p.(type) {
	case *render.RenderPipeline:
		rec = b.renderPipelines[v]
		delete(b.renderPipelines, v)
	case *render.ComputePipeline:
		rec = b.computePipelines[v]
		delete(b.computePipelines, v)
	}
	if rec == nil {
		return
	}
	b.retire(func() { b.destroyPipeline(rec) })
}

// destroyPipeline destroys rec now and drops its layout references.
func (b *Backend) destroyPipeline(rec *pipeline) {
	if rec.render != nil {
		b.device.DestroyRenderPipeline(rec.render)
	}
	if rec.compute != nil {
		b.device.DestroyComputePipeline(rec.compute)
	}
	if rec.layout != nil {
		b.device.DestroyPipelineLayout(rec.layout)
	}
	for _, l := range rec.layouts {
		b.releaseLayout(l)
	}
	rec.layouts = nil
}

// NeedsRenderUpdate reports false: every state the backend bakes into a
// pipeline is already part of the render format and material state.
func (b *Backend) NeedsRenderUpdate(*render.RenderObject) bool { return false }

// RenderFormat returns the default fingerprint of ro.
func (b *Backend) RenderFormat(ro *render.RenderObject) render.RenderFormat {
	return render.DefaultRenderFormat(ro)
}
