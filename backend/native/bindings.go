// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/g3d/core"
	"github.com/gogpu/g3d/render"
)

// layout is a bind group layout shared by every group with the same
// entries.
type layout struct {
	key  uint64
	raw  hal.BindGroupLayout
	refs int
}

// uniform is the GPU buffer of one render.UniformBuffer. Shared uniform
// buffers are referenced by many groups.
type uniform struct {
	raw  hal.Buffer
	size uint64
	refs int
}

// dependency records the GPU object a group entry was built with.
type dependency struct {
	buffer *core.Buffer
	buf    *buffer

	texture *core.Texture
	tex     *texture

	sampledFrom *core.Texture
	sampler     *sampler
}

// group is the GPU bind group of one render.BindGroup.
type group struct {
	raw      hal.BindGroup
	layout   *layout
	deps     []dependency
	uniforms []*render.UniformBuffer
}

// stale reports whether a buffer, texture or sampler the group uses was
// recreated since it was built.
func (b *Backend) stale(g *group) bool {
	for _, d := range g.deps {
		switch {
		case d.buffer != nil && b.buffers[d.buffer] != d.buf:
			return true
		case d.texture != nil && b.textures[d.texture] != d.tex:
			return true
		case d.sampledFrom != nil && b.samplers[d.sampledFrom] != d.sampler:
			return true
		}
	}
	return false
}

func layoutEntries(g *render.BindGroup) ([]gputypes.BindGroupLayoutEntry, error) {
	entries := make([]gputypes.BindGroupLayoutEntry, len(g.Bindings))
	for i, binding := range g.Bindings {
		e := gputypes.BindGroupLayoutEntry{Binding: uint32(i), Visibility: binding.Visibility()}
		switch v := binding.(type) {
		case *render.UniformBuffer:
			e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
		case *render.StorageBuffer:
			typ := gputypes.BufferBindingTypeStorage
			if v.ReadOnly {
				typ = gputypes.BufferBindingTypeReadOnlyStorage
			}
			e.Buffer = &gputypes.BufferBindingLayout{Type: typ}
		case *render.SampledTexture:
			sample := gputypes.TextureSampleTypeFloat
			if v.Texture.Format.HasDepth() {
				sample = gputypes.TextureSampleTypeDepth
			}
			dim := gputypes.TextureViewDimension2D
			if v.Texture.Depth > 1 {
				dim = gputypes.TextureViewDimension3D
			}
			e.Texture = &gputypes.TextureBindingLayout{SampleType: sample, ViewDimension: dim}
		case *render.Sampler:
			typ := gputypes.SamplerBindingTypeFiltering
			if v.Texture.Compare != gputypes.CompareFunctionUndefined {
				typ = gputypes.SamplerBindingTypeComparison
			}
			e.Sampler = &gputypes.SamplerBindingLayout{Type: typ}
		default:
			return nil, fmt.Errorf("%w: %T at binding %d of %q", ErrUnknownBinding, binding, i, g.Name)
		}
		entries[i] = e
	}
	return entries, nil
}

// hashEntries returns an FNV-1a hash of entries with every field written
// at a fixed width.
func hashEntries(entries []gputypes.BindGroupLayoutEntry) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	write := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = h.Write(buf[:])
	}
	write(uint64(len(entries)))
	for _, e := range entries {
		write(uint64(e.Binding))
		write(uint64(e.Visibility))
		switch {
		case e.Buffer != nil:
			write(1)
			write(uint64(e.Buffer.Type))
		case e.Texture != nil:
			write(2)
			write(uint64(e.Texture.SampleType))
			write(uint64(e.Texture.ViewDimension))
		case e.Sampler != nil:
			write(3)
			write(uint64(e.Sampler.Type))
		}
	}
	return h.Sum64()
}

// acquireLayout returns the shared layout for entries.
func (b *Backend) acquireLayout(name string, entries []gputypes.BindGroupLayoutEntry) (*layout, error) {
	key := hashEntries(entries)
	if l, ok := b.layouts[key]; ok {
		l.refs++
		return l, nil
	}
	raw, err := b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   b.label(name, "layout"),
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create bind group layout %q: %w", name, err)
	}
	l := &layout{key: key, raw: raw, refs: 1}
	b.layouts[key] = l
	return l, nil
}

// emptyLayout returns the shared layout with no entries.
func (b *Backend) emptyLayout() (*layout, error) {
	return b.acquireLayout("empty", nil)
}

func (b *Backend) releaseLayout(l *layout) {
	l.refs--
	if l.refs > 0 {
		return
	}
	delete(b.layouts, l.key)
	b.retire(func() { b.device.DestroyBindGroupLayout(l.raw) })
}

// acquireUniform returns the GPU buffer of u, creating it with the
// current CPU copy.
func (b *Backend) acquireUniform(u *render.UniformBuffer) (*uniform, error) {
	if rec, ok := b.uniforms[u]; ok {
		rec.refs++
		return rec, nil
	}
	size := align4(uint64(u.Size()))
	raw, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: b.label(u.Name(), "uniform"),
		Size:  size,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create uniform buffer %q: %w", u.Name(), err)
	}
	if err := b.queue.WriteBuffer(raw, 0, padded(u.Bytes())); err != nil {
		b.device.DestroyBuffer(raw)
		return nil, fmt.Errorf("native: write uniform buffer %q: %w", u.Name(), err)
	}
	rec := &uniform{raw: raw, size: size, refs: 1}
	b.uniforms[u] = rec
	return rec, nil
}

func (b *Backend) releaseUniform(u *render.UniformBuffer) {
	rec, ok := b.uniforms[u]
	if !ok {
		return
	}
	rec.refs--
	if rec.refs > 0 {
		return
	}
	delete(b.uniforms, u)
	b.retire(func() { b.device.DestroyBuffer(rec.raw) })
}

// build creates the GPU group of g. Missing textures and samplers bind
// the fallback; a missing storage buffer is an error.
func (b *Backend) build(g *render.BindGroup) (*group, error) {
	shape, err := layoutEntries(g)
	if err != nil {
		return nil, err
	}
	l, err := b.acquireLayout(g.Name, shape)
	if err != nil {
		return nil, err
	}
	rec := &group{layout: l}

	entries := make([]gputypes.BindGroupEntry, len(g.Bindings))
	for i, binding := range g.Bindings {
		e := gputypes.BindGroupEntry{Binding: uint32(i)}
		switch v := binding.(type) {
		case *render.UniformBuffer:
			u, uerr := b.acquireUniform(v)
			if uerr != nil {
				err = uerr
				break
			}
			rec.uniforms = append(rec.uniforms, v)
			e.Resource = gputypes.BufferBinding{Buffer: u.raw.NativeHandle(), Size: u.size}
		case *render.StorageBuffer:
			buf, ok := b.buffers[v.Attribute.Buffer]
			if !ok {
				err = fmt.Errorf("%w: storage buffer %q of %q", ErrNotInitialized, v.Name(), g.Name)
				break
			}
			rec.deps = append(rec.deps, dependency{buffer: v.Attribute.Buffer, buf: buf})
			e.Resource = gputypes.BufferBinding{Buffer: buf.raw.NativeHandle(), Size: buf.size}
		case *render.SampledTexture:
			t, ok := b.textures[v.Texture]
			rec.deps = append(rec.deps, dependency{texture: v.Texture, tex: t})
			if !ok {
				slogger().Debug("native: binding fallback texture", "group", g.Name, "binding", v.Name())
				t = b.fallback
			}
			e.Resource = gputypes.TextureViewBinding{TextureView: t.view.NativeHandle()}
		case *render.Sampler:
			s, ok := b.samplers[v.Texture]
			rec.deps = append(rec.deps, dependency{sampledFrom: v.Texture, sampler: s})
			raw := b.fallbackSampler
			if ok {
				raw = s.raw
			} else {
				slogger().Debug("native: binding fallback sampler", "group", g.Name, "binding", v.Name())
			}
			e.Resource = gputypes.SamplerBinding{Sampler: raw.NativeHandle()}
		}
		if err != nil {
			b.drop(rec)
			return nil, err
		}
		entries[i] = e
	}

	raw, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   b.label(g.Name),
		Layout:  l.raw,
		Entries: entries,
	})
	if err != nil {
		b.drop(rec)
		return nil, fmt.Errorf("native: create bind group %q: %w", g.Name, err)
	}
	rec.raw = raw
	return rec, nil
}

// drop releases rec and the references it holds.
func (b *Backend) drop(rec *group) {
	for _, u := range rec.uniforms {
		b.releaseUniform(u)
	}
	if rec.raw != nil {
		raw := rec.raw
		b.retire(func() { b.device.DestroyBindGroup(raw) })
	}
	b.releaseLayout(rec.layout)
}

// CreateBindings creates the layout, uniform buffers and bind group of g.
func (b *Backend) CreateBindings(g *render.BindGroup) error {
	if err := b.check(); err != nil {
		return err
	}
	if _, ok := b.groups[g]; ok {
		return fmt.Errorf("%w: bind group %q", ErrAlreadyInitialized, g.Name)
	}
	rec, err := b.build(g)
	if err != nil {
		return err
	}
	b.groups[g] = rec
	return nil
}

// UpdateBindings rebuilds the bind group of g. Layouts are shared by
// structure, so the result stays compatible with every pipeline built
// for g and pipeline is not needed.
func (b *Backend) UpdateBindings(g *render.BindGroup, _ render.Pipeline) error {
	if err := b.check(); err != nil {
		return err
	}
	old, ok := b.groups[g]
	if !ok {
		return fmt.Errorf("%w: bind group %q", ErrNotInitialized, g.Name)
	}
	rec, err := b.build(g)
	if err != nil {
		return err
	}
	b.groups[g] = rec
	b.drop(old)
	return nil
}

// UpdateBinding uploads the CPU copy of a uniform buffer. Other bindings
// need no upload.
func (b *Backend) UpdateBinding(binding render.Binding) error {
	if err := b.check(); err != nil {
		return err
	}
	u, ok := binding.(*render.UniformBuffer)
	if !ok {
		return nil
	}
	rec, ok := b.uniforms[u]
	if !ok {
		return fmt.Errorf("%w: uniform buffer %q", ErrNotInitialized, u.Name())
	}
	if err := b.queue.WriteBuffer(rec.raw, 0, padded(u.Bytes())); err != nil {
		return fmt.Errorf("native: write uniform buffer %q: %w", u.Name(), err)
	}
	return nil
}

// DestroyBindings releases the bind group of g.
func (b *Backend) DestroyBindings(g *render.BindGroup) {
	rec, ok := b.groups[g]
	if !ok {
		return
	}
	delete(b.groups, g)
	b.drop(rec)
}

// bindGroup returns the current bind group of g, rebuilding it first when
// a resource it uses was recreated.
func (b *Backend) bindGroup(g *render.BindGroup) (*group, error) {
	rec, ok := b.groups[g]
	if !ok {
		return nil, fmt.Errorf("%w: bind group %q", ErrNotInitialized, g.Name)
	}
	if !b.stale(rec) {
		return rec, nil
	}
	slogger().Debug("native: rebuilding stale bind group", "group", g.Name)
	if err := b.UpdateBindings(g, nil); err != nil {
		return nil, err
	}
	return b.groups[g], nil
}
