package render

import (
	"bytes"

	"github.com/gogpu/g3d/core"
	"github.com/gogpu/gputypes"
)

// Binding is one resource of a bind group. The concrete types are
// *UniformBuffer, *StorageBuffer, *SampledTexture and *Sampler.
type Binding interface {
	Name() string
	Visibility() gputypes.ShaderStages

	// Shared bindings are referenced by many render objects and refreshed
	// at most once per frame.
	Shared() bool

	base() *bindingBase
}

type bindingBase struct {
	name       string
	visibility gputypes.ShaderStages
	shared     bool

	// frame is the Info.Frame this binding was last refreshed in.
	frame   uint64
	stamped bool
}

func (b *bindingBase) Name() string                      { return b.name }
func (b *bindingBase) Visibility() gputypes.ShaderStages { return b.visibility }
func (b *bindingBase) Shared() bool                      { return b.shared }
func (b *bindingBase) base() *bindingBase                { return b }

// seen stamps the binding with frame and reports whether it had already
// been stamped with it.
func (b *bindingBase) seen(frame uint64) bool {
	if b.stamped && b.frame == frame {
		return true
	}
	b.frame, b.stamped = frame, true
	return false
}

// Uniform is one member of a uniform buffer. Value returns at most Size
// bytes and is called on every refresh.
type Uniform struct {
	Name  string
	Size  int
	Value func() []byte
}

// UniformBuffer packs uniforms into one buffer. Each member starts on a
// 16-byte boundary, matching WGSL struct layout for vec4 and mat4x4
// members.
type UniformBuffer struct {
	bindingBase

	uniforms []Uniform
	offsets  []int
	data     []byte
	scratch  []byte
	dirty    bool
}

// NewUniformBuffer creates a uniform buffer visible to the vertex and
// fragment stages.
func NewUniformBuffer(name string, uniforms ...Uniform) *UniformBuffer {
	u := &UniformBuffer{
		bindingBase: bindingBase{name: name, visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment},
		uniforms:    uniforms,
		dirty:       true,
	}
	size := 0
	for _, m := range uniforms {
		u.offsets = append(u.offsets, size)
		size += align16(m.Size)
	}
	size = max(size, 16)
	u.data = make([]byte, size)
	u.scratch = make([]byte, size)
	return u
}

func align16(n int) int { return (n + 15) &^ 15 }

// SetShared marks the buffer as shared between render objects.
func (u *UniformBuffer) SetShared(shared bool) *UniformBuffer {
	u.shared = shared
	return u
}

// SetVisibility restricts the stages that see the buffer.
func (u *UniformBuffer) SetVisibility(stages gputypes.ShaderStages) *UniformBuffer {
	u.visibility = stages
	return u
}

// Update refreshes the CPU copy from the uniform sources and reports
// whether it changed. The first call always reports a change.
func (u *UniformBuffer) Update() bool {
	clear(u.scratch)
	for i, m := range u.uniforms {
		if m.Value == nil {
			continue
		}
		v := m.Value()
		copy(u.scratch[u.offsets[i]:u.offsets[i]+min(len(v), m.Size)], v)
	}
	if !u.dirty && bytes.Equal(u.scratch, u.data) {
		return false
	}
	u.data, u.scratch = u.scratch, u.data
	u.dirty = false
	return true
}

// Bytes returns the CPU copy last produced by Update.
func (u *UniformBuffer) Bytes() []byte { return u.data }

// Size returns the buffer size in bytes.
func (u *UniformBuffer) Size() int { return len(u.data) }

// Uniforms returns the members in layout order.
func (u *UniformBuffer) Uniforms() []Uniform { return u.uniforms }

// StorageBuffer binds an attribute's buffer for shader read/write access.
type StorageBuffer struct {
	bindingBase

	Attribute *core.Attribute
	ReadOnly  bool
}

// NewStorageBuffer creates a storage binding visible to compute shaders.
func NewStorageBuffer(name string, attr *core.Attribute) *StorageBuffer {
	return &StorageBuffer{
		bindingBase: bindingBase{name: name, visibility: gputypes.ShaderStageCompute},
		Attribute:   attr,
	}
}

// SetVisibility changes the stages that see the buffer.
func (s *StorageBuffer) SetVisibility(stages gputypes.ShaderStages) *StorageBuffer {
	s.visibility = stages
	return s
}

// SampledTexture binds a texture view.
type SampledTexture struct {
	bindingBase

	// Texture may be replaced; every bind group holding the binding is
	// rebuilt on its next update.
	Texture *core.Texture

	version uint64
}

// NewSampledTexture creates a texture binding visible to the fragment
// stage.
func NewSampledTexture(name string, tex *core.Texture) *SampledTexture {
	return &SampledTexture{
		bindingBase: bindingBase{name: name, visibility: gputypes.ShaderStageFragment},
		Texture:     tex,
		version:     tex.Version,
	}
}

// Update reports whether the texture version changed since the last call.
func (s *SampledTexture) Update() bool {
	if s.version == s.Texture.Version {
		return false
	}
	s.version = s.Texture.Version
	return true
}

// TextureState is the texture and GPU object generation a bind group was
// built with. Each group tracks its own, so a binding shared by several
// groups rebuilds all of them.
type TextureState struct {
	Texture    *core.Texture
	Generation uint64
}

// NeedsBindingsUpdate reports whether a group built with bound no longer
// sees the GPU texture s names at generation.
func (s *SampledTexture) NeedsBindingsUpdate(bound TextureState, generation uint64) bool {
	return bound.Texture != s.Texture || bound.Generation != generation
}

// Sampler binds the sampler of a texture.
type Sampler struct {
	bindingBase

	// Texture may be replaced like SampledTexture.Texture.
	Texture *core.Texture
}

// NewSampler creates a sampler binding visible to the fragment stage.
func NewSampler(name string, tex *core.Texture) *Sampler {
	return &Sampler{
		bindingBase: bindingBase{name: name, visibility: gputypes.ShaderStageFragment},
		Texture:     tex,
	}
}

// BindGroup is an ordered list of bindings. Binding i is bound at
// @binding(i) of @group(Index).
type BindGroup struct {
	id uint64

	Name     string
	Index    uint32
	Bindings []Binding
}

// NewBindGroup creates a bind group.
func NewBindGroup(name string, index uint32, bindings ...Binding) *BindGroup {
	return &BindGroup{id: core.NextID(), Name: name, Index: index, Bindings: bindings}
}

// ID returns the group id.
func (g *BindGroup) ID() uint64 { return g.id }
