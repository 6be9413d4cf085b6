package render

import (
	"fmt"

	"github.com/gogpu/g3d/cache"
	"github.com/gogpu/g3d/core"
)

type bindingsRecord struct {
	group *BindGroup

	// bound is the texture state group was last built with, by binding
	// index.
	bound map[int]TextureState
}

// Bindings builds the bind group of every render object and compute node
// and keeps its resources current.
type Bindings struct {
	backend    Backend
	nodes      *Nodes
	textures   *Textures
	attributes *Attributes
	pipelines  *Pipelines
	info       *Info

	render  *cache.IdentityMap[RenderObject, bindingsRecord]
	compute *cache.IdentityMap[core.ComputeNode, bindingsRecord]
}

// NewBindings creates a bindings cache.
func NewBindings(backend Backend, nodes *Nodes, textures *Textures, attributes *Attributes, pipelines *Pipelines, info *Info) *Bindings {
	return &Bindings{
		backend:    backend,
		nodes:      nodes,
		textures:   textures,
		attributes: attributes,
		pipelines:  pipelines,
		info:       info,
		render:     cache.NewIdentityMap[RenderObject, bindingsRecord](),
		compute:    cache.NewIdentityMap[core.ComputeNode, bindingsRecord](),
	}
}

// GetForRender returns the bind group of ro, creating it when the shader
// builder produced a new one. It returns nil when ro binds nothing.
func (b *Bindings) GetForRender(ro *RenderObject) (*BindGroup, error) {
	state, err := b.nodes.GetForRender(ro)
	if err != nil {
		return nil, err
	}
	return b.get(b.render.Get(ro), state.Bindings)
}

// GetForCompute returns the bind group of node.
func (b *Bindings) GetForCompute(node *core.ComputeNode) (*BindGroup, error) {
	state, err := b.nodes.GetForCompute(node)
	if err != nil {
		return nil, err
	}
	return b.get(b.compute.Get(node), state.Bindings)
}

func (b *Bindings) get(rec *bindingsRecord, group *BindGroup) (*BindGroup, error) {
	if group == nil || rec.group == group {
		return group, nil
	}
	if err := b.init(group); err != nil {
		return nil, err
	}
	if err := b.backend.CreateBindings(group); err != nil {
		return nil, fmt.Errorf("render: create bindings %q: %w", group.Name, err)
	}
	if rec.group != nil {
		b.backend.DestroyBindings(rec.group)
	}
	rec.group = group
	rec.bound = make(map[int]TextureState)
	for i, binding := range group.Bindings {
		if tex := boundTexture(binding); tex != nil {
			rec.bound[i] = TextureState{Texture: tex, Generation: b.generation(tex)}
		}
	}
	return group, nil
}

func boundTexture(binding Binding) *core.Texture {
	switch v := binding.(type) {
	case *SampledTexture:
		return v.Texture
	case *Sampler:
		return v.Texture
	}
	return nil
}

func (b *Bindings) init(group *BindGroup) error {
	for _, binding := range group.Bindings {
		switch v := binding.(type) {
		case *SampledTexture:
			if err := b.textures.UpdateTexture(v.Texture, TextureOptions{}); err != nil {
				return err
			}
		case *Sampler:
			if err := b.textures.UpdateTexture(v.Texture, TextureOptions{}); err != nil {
				return err
			}
		case *StorageBuffer:
			if err := b.attributes.Update(v.Attribute, AttributeStorage); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Bindings) generation(tex *core.Texture) uint64 {
	if rec := b.textures.Get(tex); rec != nil {
		return rec.Generation
	}
	return 0
}

// UpdateForRender refreshes the bindings of ro.
func (b *Bindings) UpdateForRender(ro *RenderObject) error {
	group, err := b.GetForRender(ro)
	if err != nil || group == nil {
		return err
	}
	return b.update(b.render.Get(ro), func() Pipeline {
		if p := b.pipelines.Get(ro); p != nil {
			return p
		}
		return nil
	})
}

// UpdateForCompute refreshes the bindings of node.
func (b *Bindings) UpdateForCompute(node *core.ComputeNode) error {
	group, err := b.GetForCompute(node)
	if err != nil || group == nil {
		return err
	}
	return b.update(b.compute.Get(node), func() Pipeline {
		if p := b.pipelines.GetCompute(node); p != nil {
			return p
		}
		return nil
	})
}

// update walks the group of rec once. Shared bindings already refreshed
// in this frame skip their refresh, but every group still compares its
// own texture state. A swapped or recreated texture rebuilds the bind
// group against the currently assigned pipeline; the pipeline itself is
// left alone.
func (b *Bindings) update(rec *bindingsRecord, pipeline func() Pipeline) error {
	group := rec.group
	rebuild := false
	for i, binding := range group.Bindings {
		fresh := !binding.Shared() || !binding.base().seen(b.info.Frame)

		switch v := binding.(type) {
		case *UniformBuffer:
			if fresh && v.Update() {
				if err := b.backend.UpdateBinding(v); err != nil {
					return fmt.Errorf("render: update binding %q: %w", v.Name(), err)
				}
			}
		case *SampledTexture:
			bound := rec.bound[i]
			if (fresh && v.Update()) || bound.Texture != v.Texture {
				if err := b.textures.UpdateTexture(v.Texture, TextureOptions{}); err != nil {
					return err
				}
			}
			if gen := b.generation(v.Texture); v.NeedsBindingsUpdate(bound, gen) {
				rec.bound[i] = TextureState{Texture: v.Texture, Generation: gen}
				rebuild = true
			}
		case *Sampler:
			bound := rec.bound[i]
			if bound.Texture != v.Texture {
				if err := b.textures.UpdateTexture(v.Texture, TextureOptions{}); err != nil {
					return err
				}
			}
			if gen := b.generation(v.Texture); bound.Texture != v.Texture || bound.Generation != gen {
				rec.bound[i] = TextureState{Texture: v.Texture, Generation: gen}
				rebuild = true
			}
		case *StorageBuffer:
			if !fresh {
				continue
			}
			if err := b.attributes.Update(v.Attribute, AttributeStorage); err != nil {
				return err
			}
		}
	}

	if rebuild {
		slogger().Debug("render: rebuilding bind group", "group", group.Name)
		if err := b.backend.UpdateBindings(group, pipeline()); err != nil {
			return fmt.Errorf("render: update bindings %q: %w", group.Name, err)
		}
	}
	return nil
}

// Delete drops the bind group record of ro.
func (b *Bindings) Delete(ro *RenderObject) {
	if rec, ok := b.render.Lookup(ro); ok && rec.group != nil {
		b.backend.DestroyBindings(rec.group)
	}
	b.render.Delete(ro)
}

// DeleteCompute drops the bind group record of node.
func (b *Bindings) DeleteCompute(node *core.ComputeNode) {
	if rec, ok := b.compute.Lookup(node); ok && rec.group != nil {
		b.backend.DestroyBindings(rec.group)
	}
	b.compute.Delete(node)
}

// Dispose drops every record.
func (b *Bindings) Dispose() {
	b.render.Clear()
	b.compute.Clear()
}
