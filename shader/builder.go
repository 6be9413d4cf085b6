package shader

import (
	"fmt"
	"strconv"
	"weak"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gogpu/g3d/core"
	"github.com/gogpu/g3d/render"
	"github.com/gogpu/g3d/scene"
	"github.com/gogpu/gputypes"
)

// sharedCacheSize bounds the number of shared uniform buffers kept for
// reuse. An evicted buffer stays valid for the render objects holding it.
const sharedCacheSize = 256

type sharedKey struct {
	kind    string
	id      uint64
	variant string
}

// Builder generates WGSL programs and bind groups for the built-in
// materials. Camera, light and fog uniforms are shared between render
// objects; object and material uniforms are per render object. Uniform
// sources hold scene entities weakly.
type Builder struct {
	shared *lru.Cache[sharedKey, *render.UniformBuffer]
}

// NewBuilder creates a builder.
func NewBuilder() *Builder {
	shared, err := lru.New[sharedKey, *render.UniformBuffer](sharedCacheSize)
	if err != nil {
		panic(err) // size is a positive constant
	}
	return &Builder{shared: shared}
}

var _ render.ShaderBuilder = (*Builder)(nil)

// BuildRender generates the program for ro's material, geometry and
// scene. Unknown material kinds fall back to MaterialBasic.
func (b *Builder) BuildRender(ro *render.RenderObject) (*render.NodeBuilderState, error) {
	mat, obj := ro.Material, weak.Make(ro.Object())
	kind := mat.Kind
	switch kind {
	case core.MaterialBasic, core.MaterialLambert, core.MaterialNormal:
	default:
		slogger().Error("shader: unsupported material, using basic", "material", mat.Name, "kind", kind)
		kind = core.MaterialBasic
	}
	p := newProgram(kind)

	if ro.Geometry.Attribute("position") == nil {
		return nil, fmt.Errorf("%w: %q", ErrMissingAttribute, "position")
	}
	names := []string{"position"}
	if kind != core.MaterialBasic {
		names = append(names, "normal")
	}
	if mat.Map != nil {
		names = append(names, "uv")
	}
	if mat.VertexColors {
		names = append(names, "color")
	}
	var attributes []string
	for _, name := range names {
		attr := ro.Geometry.Attribute(name)
		if attr == nil {
			slogger().Debug("shader: attribute not in geometry", "attribute", name, "geometry", ro.Geometry.ID())
			continue
		}
		typ, width, err := wgslType(attr.Format)
		if err != nil {
			return nil, fmt.Errorf("shader: attribute %q: %w", name, err)
		}
		p.inputs = append(p.inputs, input{name: name, location: len(attributes), wgsl: typ, width: width})
		attributes = append(attributes, name)
	}

	objectUniform := render.NewUniformBuffer("object",
		render.Uniform{Name: "model", Size: 64, Value: func() []byte { return worldBytes(obj) }},
	).SetVisibility(gputypes.ShaderStageVertex)
	materialUniform := render.NewUniformBuffer("material",
		render.Uniform{Name: "color", Size: 16, Value: func() []byte { return materialColor(mat) }},
	).SetVisibility(gputypes.ShaderStageFragment)
	bindings := []render.Binding{objectUniform, materialUniform, b.cameraUniform(ro.Context)}
	p.objectSlot, p.materialSlot, p.cameraSlot = 0, 1, 2

	if kind == core.MaterialLambert {
		p.lightsSlot = len(bindings)
		lights := ro.Lights()
		if lights != nil {
			dirs, _ := lights.Directional()
			p.directional = len(dirs)
		}
		bindings = append(bindings, b.lightsUniform(lights, p.directional))
	}
	scn := ro.Scene()
	if scn != nil {
		if fog := b.fogUniform(scn, p); fog != nil {
			p.fogSlot = len(bindings)
			bindings = append(bindings, fog)
		}
	}
	if mat.Map != nil {
		p.mapSlot = len(bindings)
		bindings = append(bindings, render.NewSampledTexture("map", mat.Map), render.NewSampler("mapSampler", mat.Map))
	}
	if kind == core.MaterialLambert && scn != nil && scn.Environment != nil {
		env := scn.Environment
		p.envSlot = len(bindings)
		bindings = append(bindings, render.NewSampledTexture("envMap", env), render.NewSampler("envSampler", env))
	}

	return &render.NodeBuilderState{
		VertexShader:   p.vertex(),
		FragmentShader: p.fragment(),
		Bindings:       render.NewBindGroup("render", 0, bindings...),
		Attributes:     attributes,
	}, nil
}

// BuildCompute binds the node's storage attributes in order and uses the
// node source as is.
func (b *Builder) BuildCompute(node *core.ComputeNode) (*render.NodeBuilderState, error) {
	if node.Source == "" {
		return nil, render.ErrEmptyShader
	}
	bindings := make([]render.Binding, 0, len(node.Storage))
	for i, attr := range node.Storage {
		bindings = append(bindings, render.NewStorageBuffer("storage"+strconv.Itoa(i), attr))
	}
	return &render.NodeBuilderState{
		ComputeShader: node.Source,
		Bindings:      render.NewBindGroup("compute", 0, bindings...),
	}, nil
}

// Shared returns the number of cached shared uniform buffers.
func (b *Builder) Shared() int { return b.shared.Len() }

// Dispose forgets every shared uniform buffer.
func (b *Builder) Dispose() { b.shared.Purge() }

func (b *Builder) sharedUniform(key sharedKey, create func() *render.UniformBuffer) *render.UniformBuffer {
	if u, ok := b.shared.Get(key); ok {
		return u
	}
	u := create().SetShared(true)
	b.shared.Add(key, u)
	return u
}

// cameraUniform is shared by every render object drawn into rc and reads
// the camera rc is currently drawn from.
func (b *Builder) cameraUniform(rc *render.RenderContext) *render.UniformBuffer {
	ref := weak.Make(rc)
	return b.sharedUniform(sharedKey{kind: "camera", id: rc.ID()}, func() *render.UniformBuffer {
		camera := func() *scene.Camera {
			if rc := ref.Value(); rc != nil {
				return rc.Camera()
			}
			return nil
		}
		return render.NewUniformBuffer("camera",
			render.Uniform{Name: "viewProjection", Size: 64, Value: func() []byte {
				cam := camera()
				if cam == nil {
					return scene.Identity().Bytes()
				}
				return cam.Projection.Mul(cam.View).Bytes()
			}},
			render.Uniform{Name: "view", Size: 64, Value: func() []byte {
				cam := camera()
				if cam == nil {
					return scene.Identity().Bytes()
				}
				return cam.View.Bytes()
			}},
		)
	})
}

// lightsUniform is keyed by the light set and its directional count; a
// composition change yields a buffer with the new layout.
func (b *Builder) lightsUniform(lights *scene.Lights, directional int) *render.UniformBuffer {
	var id uint64
	if lights != nil {
		id = lights.ID()
	}
	key := sharedKey{kind: "lights", id: id, variant: strconv.Itoa(directional)}
	ref := weak.Make(lights)
	return b.sharedUniform(key, func() *render.UniformBuffer {
		uniforms := []render.Uniform{{Name: "ambient", Size: 16, Value: func() []byte {
			lights := ref.Value()
			if lights == nil {
				return nil
			}
			a := lights.Ambient()
			return core.Float32Bytes([]float32{a[0], a[1], a[2], 0})
		}}}
		if directional > 0 {
			uniforms = append(uniforms,
				render.Uniform{Name: "directions", Size: 16 * directional, Value: func() []byte {
					lights := ref.Value()
					if lights == nil {
						return nil
					}
					dirs, _ := lights.Directional()
					out := make([]float32, 0, 4*directional)
					for _, d := range dirs[:min(len(dirs), directional)] {
						out = append(out, d[0], d[1], d[2], 0)
					}
					return core.Float32Bytes(out)
				}},
				render.Uniform{Name: "colors", Size: 16 * directional, Value: func() []byte {
					lights := ref.Value()
					if lights == nil {
						return nil
					}
					_, colors := lights.Directional()
					out := make([]float32, 0, 4*directional)
					for _, c := range colors[:min(len(colors), directional)] {
						out = append(out, c[0], c[1], c[2], 1)
					}
					return core.Float32Bytes(out)
				}},
			)
		}
		return render.NewUniformBuffer("lights", uniforms...).SetVisibility(gputypes.ShaderStageFragment)
	})
}

// fogUniform sets p.fog and returns the scene's fog buffer, or nil when
// the scene has no supported fog.
func (b *Builder) fogUniform(scn *scene.Scene, p *program) *render.UniformBuffer {
	switch render.FogKey(scn) {
	case "fog:linear":
		p.fog = fogLinear
	case "fog:exp":
		p.fog = fogExp
	default:
		return nil
	}
	key := sharedKey{kind: "fog", id: scn.ID(), variant: strconv.Itoa(int(p.fog))}
	ref := weak.Make(scn)
	return b.sharedUniform(key, func() *render.UniformBuffer {
		return render.NewUniformBuffer("fog",
			render.Uniform{Name: "color", Size: 16, Value: func() []byte { return fogColor(ref.Value()) }},
			render.Uniform{Name: "params", Size: 16, Value: func() []byte { return fogParams(ref.Value()) }},
		).SetVisibility(gputypes.ShaderStageFragment)
	})
}

func worldBytes(obj weak.Pointer[scene.Object]) []byte {
	if o := obj.Value(); o != nil {
		return o.World().Bytes()
	}
	return scene.Identity().Bytes()
}

func fogColor(scn *scene.Scene) []byte {
	if scn == nil {
		return nil
	}
	switch fog := scn.Fog.(type) {
	case *scene.LinearFog:
		return colorBytes(float32(fog.Color.R), float32(fog.Color.G), float32(fog.Color.B), 1)
	case *scene.ExpFog:
		return colorBytes(float32(fog.Color.R), float32(fog.Color.G), float32(fog.Color.B), 1)
	}
	return nil
}

func fogParams(scn *scene.Scene) []byte {
	if scn == nil {
		return nil
	}
	switch fog := scn.Fog.(type) {
	case *scene.LinearFog:
		return core.Float32Bytes([]float32{fog.Near, fog.Far, 0, 0})
	case *scene.ExpFog:
		return core.Float32Bytes([]float32{0, 0, fog.Density, 0})
	}
	return nil
}

func materialColor(mat *core.Material) []byte {
	c := mat.Color
	return colorBytes(float32(c.R), float32(c.G), float32(c.B), float32(c.A*mat.Opacity))
}

func colorBytes(r, g, b, a float32) []byte {
	return core.Float32Bytes([]float32{r, g, b, a})
}
