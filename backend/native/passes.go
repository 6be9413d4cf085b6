// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/g3d/core"
	"github.com/gogpu/g3d/render"
)

// renderPass is the render pass being recorded.
type renderPass struct {
	encoder hal.CommandEncoder
	pass    hal.RenderPassEncoder

	pipeline   *pipeline
	groups     map[uint32]*group
	stencilRef uint32
	stencilSet bool
}

// computePass is the compute pass being recorded.
type computePass struct {
	encoder  hal.CommandEncoder
	pass     hal.ComputePassEncoder
	pipeline *pipeline
}

// offscreen is the output drawn to when a context has no render target.
type offscreen struct {
	width, height uint32
	color, depth  gputypes.TextureFormat
	samples       uint32

	target  *attachment
	msaa    *attachment
	stencil *attachment
}

func (o *offscreen) destroy(device hal.Device) {
	for _, a := range []*attachment{o.target, o.msaa, o.stencil} {
		if a != nil {
			a.destroy(device)
		}
	}
}

func (o *offscreen) matches(width, height uint32, color, depth gputypes.TextureFormat, samples uint32) bool {
	return o.width == width && o.height == height && o.color == color && o.depth == depth && o.samples == samples
}

// output returns the offscreen attachments for rc, recreating them when
// the size, formats or sample count changed.
func (b *Backend) output(rc *render.RenderContext) (*offscreen, error) {
	width, height := uint32(max(rc.Width, 1)), uint32(max(rc.Height, 1))
	color, depth := rc.ColorFormat, rc.DepthStencilFormat()
	samples := uint32(max(rc.SampleCount, 1))
	if o := b.offscreen; o != nil {
		if o.matches(width, height, color, depth, samples) {
			return o, nil
		}
		b.offscreen = nil
		b.retire(func() { o.destroy(b.device) })
	}

	o := &offscreen{width: width, height: height, color: color, depth: depth, samples: samples}
	raw, err := b.device.CreateTexture(&hal.TextureDescriptor{
		Label:         b.label("output"),
		Size:          hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        color,
		Usage: gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding |
			gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create output texture: %w", err)
	}
	view, err := b.device.CreateTextureView(raw, &hal.TextureViewDescriptor{
		Label:     b.label("output"),
		Format:    color,
		Dimension: gputypes.TextureViewDimension2D,
		Aspect:    gputypes.TextureAspectAll,
	})
	if err != nil {
		b.device.DestroyTexture(raw)
		return nil, fmt.Errorf("native: create output view: %w", err)
	}
	o.target = &attachment{raw: raw, view: view}

	if samples > 1 {
		if o.msaa, err = newAttachment(b.device, b.label("output", "msaa"), width, height, color, samples); err != nil {
			o.destroy(b.device)
			return nil, err
		}
	}
	if depth != gputypes.TextureFormatUndefined {
		if o.stencil, err = newAttachment(b.device, b.label("output", "depth"), width, height, depth, samples); err != nil {
			o.destroy(b.device)
			return nil, err
		}
	}
	b.offscreen = o
	slogger().Debug("native: output created", "width", width, "height", height, "samples", samples)
	return o, nil
}

// Output returns the color view drawn to by contexts without a render
// target, or nil before the first such pass.
func (b *Backend) Output() hal.TextureView {
	if b.offscreen == nil {
		return nil
	}
	return b.offscreen.target.view
}

func loadOp(clear bool) gputypes.LoadOp {
	if clear {
		return gputypes.LoadOpClear
	}
	return gputypes.LoadOpLoad
}

// BeginRender opens a render pass on the attachments of rc.
func (b *Backend) BeginRender(rc *render.RenderContext) error {
	if err := b.check(); err != nil {
		return err
	}
	if b.pass != nil {
		return fmt.Errorf("%w: render pass already open", ErrAlreadyInitialized)
	}
	b.collect()

	var (
		colors        []hal.RenderPassColorAttachment
		depthView     hal.TextureView
		width, height uint32
	)
	load := loadOp(rc.Clear)
	depthFormat := rc.DepthStencilFormat()

	if rt := rc.RenderTarget; rt != nil {
		mip := rc.MipLevel
		width, height = uint32(max(rt.Width>>mip, 1)), uint32(max(rt.Height>>mip, 1))
		samples := uint32(rt.SampleCount())
		for _, tex := range rt.Textures {
			t, ok := b.textures[tex]
			if !ok {
				return fmt.Errorf("%w: render target texture %q", ErrNotInitialized, tex.Name)
			}
			view, err := t.level(b.device, mip)
			if err != nil {
				return err
			}
			att := hal.RenderPassColorAttachment{View: view, LoadOp: load, StoreOp: gputypes.StoreOpStore, ClearValue: rc.ClearColor}
			if samples > 1 {
				ms, err := t.multisampled(b.device, mip, samples)
				if err != nil {
					return err
				}
				att.View, att.ResolveTarget = ms.view, view
			}
			colors = append(colors, att)
		}
		if rc.DepthTexture != nil && depthFormat != gputypes.TextureFormatUndefined {
			t, ok := b.textures[rc.DepthTexture]
			if !ok {
				return fmt.Errorf("%w: depth texture %q", ErrNotInitialized, rc.DepthTexture.Name)
			}
			view, err := t.level(b.device, 0)
			if err != nil {
				return err
			}
			depthView = view
			depthFormat = t.desc.Format
		}
	} else {
		o, err := b.output(rc)
		if err != nil {
			return err
		}
		width, height = o.width, o.height
		att := hal.RenderPassColorAttachment{View: o.target.view, LoadOp: load, StoreOp: gputypes.StoreOpStore, ClearValue: rc.ClearColor}
		if o.msaa != nil {
			att.View, att.ResolveTarget = o.msaa.view, o.target.view
		}
		colors = append(colors, att)
		if o.stencil != nil {
			depthView = o.stencil.view
		}
	}

	desc := &hal.RenderPassDescriptor{Label: b.label("render"), ColorAttachments: colors}
	if depthView != nil {
		ds := &hal.RenderPassDepthStencilAttachment{
			View:            depthView,
			DepthLoadOp:     load,
			DepthStoreOp:    gputypes.StoreOpStore,
			DepthClearValue: 1,
		}
		if depthFormat.HasStencil() {
			ds.StencilLoadOp = load
			ds.StencilStoreOp = gputypes.StoreOpStore
		}
		desc.DepthStencilAttachment = ds
	}

	enc, err := b.encoder("render")
	if err != nil {
		return err
	}
	pass := enc.BeginRenderPass(desc)
	pass.SetViewport(0, 0, float32(width), float32(height), 0, 1)
	b.pass = &renderPass{
		encoder: enc,
		pass:    pass,
		groups:  make(map[uint32]*group),
	}
	return nil
}

// emptyGroup returns the bind group bound at slots below a group index.
func (b *Backend) emptyGroup() (hal.BindGroup, error) {
	if b.empty != nil {
		return b.empty.raw, nil
	}
	l, err := b.emptyLayout()
	if err != nil {
		return nil, err
	}
	raw, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{Label: b.label("empty"), Layout: l.raw})
	if err != nil {
		b.releaseLayout(l)
		return nil, fmt.Errorf("native: create empty bind group: %w", err)
	}
	b.empty = &group{raw: raw, layout: l}
	return raw, nil
}

// setGroups binds the current bind group of g and empty groups below it.
// set is SetBindGroup of the open pass.
func (b *Backend) setGroups(g *render.BindGroup, bound map[uint32]*group, set func(uint32, hal.BindGroup)) error {
	if g == nil {
		return nil
	}
	for i := range g.Index {
		if bound[i] != nil {
			continue
		}
		raw, err := b.emptyGroup()
		if err != nil {
			return err
		}
		set(i, raw)
		bound[i] = b.empty
	}
	rec, err := b.bindGroup(g)
	if err != nil {
		return err
	}
	if bound[g.Index] != rec {
		set(g.Index, rec.raw)
		bound[g.Index] = rec
	}
	return nil
}

// Draw records ro into the open render pass. State already set by the
// previous draw is not set again.
func (b *Backend) Draw(ro *render.RenderObject, info *render.Info) error {
	if err := b.check(); err != nil {
		return err
	}
	p := b.pass
	if p == nil {
		return ErrNoPass
	}
	if ro.Pipeline == nil {
		return fmt.Errorf("%w: render object has no pipeline", ErrNotInitialized)
	}
	rec, ok := b.renderPipelines[ro.Pipeline]
	if !ok {
		return fmt.Errorf("%w: render pipeline", ErrNotInitialized)
	}
	if p.pipeline != rec {
		p.pass.SetPipeline(rec.render)
		p.pipeline = rec
	}

	g, err := ro.Bindings()
	if err != nil {
		return err
	}
	set := func(i uint32, raw hal.BindGroup) { p.pass.SetBindGroup(i, raw, nil) }
	if err := b.setGroups(g, p.groups, set); err != nil {
		return err
	}

	if ro.Pipeline.Key().State.StencilWrite {
		if ref := ro.Material.StencilRef; !p.stencilSet || p.stencilRef != ref {
			p.pass.SetStencilReference(ref)
			p.stencilRef, p.stencilSet = ref, true
		}
	}

	buffers, err := ro.VertexBuffers()
	if err != nil {
		return err
	}
	for slot, buf := range buffers {
		vb, ok := b.buffers[buf]
		if !ok {
			return fmt.Errorf("%w: vertex buffer %q", ErrNotInitialized, buf.Label)
		}
		p.pass.SetVertexBuffer(uint32(slot), vb.raw, 0)
	}

	first, count, instances, indexed := ro.DrawParams()
	if count > 0 {
		if indexed {
			index := ro.Index()
			ib, ok := b.buffers[index.Buffer]
			if !ok {
				return fmt.Errorf("%w: index buffer of %q", ErrNotInitialized, index.Name)
			}
			p.pass.SetIndexBuffer(ib.raw, index.IndexFormat, 0)
			p.pass.DrawIndexed(uint32(count), uint32(instances), uint32(first), 0, 0)
		} else {
			p.pass.Draw(uint32(count), uint32(instances), uint32(first), 0)
		}
	}
	info.Update(ro.Pipeline.Key().Format.Topology, count, instances)
	return nil
}

// FinishRender ends the open render pass and submits it.
func (b *Backend) FinishRender(*render.RenderContext) error {
	if err := b.check(); err != nil {
		return err
	}
	p := b.pass
	if p == nil {
		return ErrNoPass
	}
	p.pass.End()
	b.pass = nil
	_, err := b.submit(p.encoder)
	return err
}

// BeginCompute opens a compute pass.
func (b *Backend) BeginCompute() error {
	if err := b.check(); err != nil {
		return err
	}
	if b.compute != nil {
		return fmt.Errorf("%w: compute pass already open", ErrAlreadyInitialized)
	}
	b.collect()
	enc, err := b.encoder("compute")
	if err != nil {
		return err
	}
	pass := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: b.label("compute")})
	b.compute = &computePass{encoder: enc, pass: pass}
	return nil
}

// Compute records a dispatch of node into the open compute pass.
func (b *Backend) Compute(node *core.ComputeNode, g *render.BindGroup, p *render.ComputePipeline) error {
	if err := b.check(); err != nil {
		return err
	}
	c := b.compute
	if c == nil {
		return ErrNoPass
	}
	rec, ok := b.computePipelines[p]
	if !ok {
		return fmt.Errorf("%w: compute pipeline of %q", ErrNotInitialized, node.Name)
	}
	if c.pipeline != rec {
		c.pass.SetPipeline(rec.compute)
		c.pipeline = rec
	}
	// Bind groups are reset per dispatch; compute nodes rarely share them.
	set := func(i uint32, raw hal.BindGroup) { c.pass.SetBindGroup(i, raw, nil) }
	if err := b.setGroups(g, make(map[uint32]*group), set); err != nil {
		return err
	}
	w := node.Workgroups
	c.pass.Dispatch(max(w[0], 1), max(w[1], 1), max(w[2], 1))
	return nil
}

// FinishCompute ends the open compute pass and submits it.
func (b *Backend) FinishCompute() error {
	if err := b.check(); err != nil {
		return err
	}
	c := b.compute
	if c == nil {
		return ErrNoPass
	}
	c.pass.End()
	b.compute = nil
	_, err := b.submit(c.encoder)
	return err
}
