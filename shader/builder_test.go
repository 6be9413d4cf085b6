package shader

import (
	"errors"
	"image"
	"strings"
	"testing"

	"github.com/gogpu/naga"

	"github.com/gogpu/g3d/core"
	"github.com/gogpu/g3d/render"
	"github.com/gogpu/g3d/scene"
	"github.com/gogpu/gputypes"
)

type fixture struct {
	builder *Builder
	objects *render.RenderObjects
	scene   *scene.Scene
	camera  *scene.Camera
	lights  *scene.Lights
	ctx     *render.RenderContext
}

// newFixture wires the caches needed to create render objects. No backend
// call is made while building shaders.
func newFixture() *fixture {
	b := NewBuilder()
	info := render.NewInfo()
	nodes := render.NewNodes(b, info)
	attributes := render.NewAttributes(nil)
	pipelines := render.NewPipelines(nil, nodes)
	return &fixture{
		builder: b,
		objects: render.NewRenderObjects(nodes, render.NewGeometries(attributes, info), pipelines,
			render.NewBindings(nil, nodes, render.NewTextures(nil, info), attributes, pipelines, info), info),
		scene:  scene.New(),
		camera: scene.NewPerspectiveCamera(1, 1, 0.1, 100),
		lights: scene.NewLights(),
		ctx:    render.NewRenderContext(),
	}
}

func (f *fixture) build(t *testing.T, geo *core.Geometry, mat *core.Material) *render.NodeBuilderState {
	t.Helper()
	obj := scene.NewMesh(geo, mat)
	f.scene.Add(obj)
	ro, err := f.objects.Get(obj, mat, f.scene, f.camera, f.lights, f.ctx, "")
	if err != nil {
		t.Fatalf("RenderObjects.Get() error = %v", err)
	}
	state, err := ro.NodeBuilderState()
	if err != nil {
		t.Fatalf("NodeBuilderState() error = %v", err)
	}
	return state
}

func geometry(names ...string) *core.Geometry {
	g := core.NewGeometry()
	for _, name := range names {
		switch name {
		case "position", "normal":
			g.SetAttribute(name, core.NewFloat32Attribute(name, make([]float32, 9), 3))
		case "uv":
			g.SetAttribute(name, core.NewFloat32Attribute(name, make([]float32, 6), 2))
		case "color":
			g.SetAttribute(name, core.NewFloat32Attribute(name, make([]float32, 12), 4))
		}
	}
	return g
}

func compile(t *testing.T, stage, src string) {
	t.Helper()
	if _, err := naga.Compile(src); err != nil {
		t.Fatalf("naga.Compile(%s) error = %v\n%s", stage, err, src)
	}
}

func TestBuildRenderCompiles(t *testing.T) {
	tex := func() *core.Texture { return core.NewTexture(image.NewRGBA(image.Rect(0, 0, 4, 4))) }

	tests := []struct {
		name   string
		geo    []string
		setup  func(f *fixture, m *core.Material)
		kind   core.MaterialKind
		attrs  []string
		groups int
	}{
		{"basic", []string{"position"}, nil, core.MaterialBasic, []string{"position"}, 3},
		{"basic map", []string{"position", "uv"}, func(_ *fixture, m *core.Material) { m.Map = tex() }, core.MaterialBasic, []string{"position", "uv"}, 5},
		{"basic map without uv", []string{"position"}, func(_ *fixture, m *core.Material) { m.Map = tex() }, core.MaterialBasic, []string{"position"}, 5},
		{"vertex colors", []string{"position", "color"}, func(_ *fixture, m *core.Material) { m.VertexColors = true }, core.MaterialBasic, []string{"position", "color"}, 3},
		{"normal", []string{"position", "normal"}, nil, core.MaterialNormal, []string{"position", "normal"}, 3},
		{"lambert unlit", []string{"position", "normal"}, nil, core.MaterialLambert, []string{"position", "normal"}, 4},
		{"lambert lights", []string{"position", "normal"}, func(f *fixture, _ *core.Material) {
			f.lights.Set([]*scene.Object{
				scene.NewLight(scene.AmbientLight, gputypes.Color{R: 1, G: 1, B: 1, A: 1}, 0.2),
				scene.NewLight(scene.DirectionalLight, gputypes.Color{R: 1, G: 1, B: 1, A: 1}, 1),
				scene.NewLight(scene.DirectionalLight, gputypes.Color{R: 1, A: 1}, 0.5),
			})
		}, core.MaterialLambert, []string{"position", "normal"}, 4},
		{"lambert environment", []string{"position", "normal"}, func(f *fixture, _ *core.Material) {
			f.scene.Environment = tex()
		}, core.MaterialLambert, []string{"position", "normal"}, 6},
		{"linear fog", []string{"position"}, func(f *fixture, _ *core.Material) {
			f.scene.Fog = &scene.LinearFog{Near: 1, Far: 10}
		}, core.MaterialBasic, []string{"position"}, 4},
		{"exp fog", []string{"position", "normal"}, func(f *fixture, _ *core.Material) {
			f.scene.Fog = &scene.ExpFog{Density: 0.1}
		}, core.MaterialLambert, []string{"position", "normal"}, 5},
		{"unknown kind", []string{"position"}, nil, core.MaterialKind(42), []string{"position"}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			mat := core.NewMaterial(tt.kind)
			if tt.setup != nil {
				tt.setup(f, mat)
			}
			state := f.build(t, geometry(tt.geo...), mat)

			if got := strings.Join(state.Attributes, ","); got != strings.Join(tt.attrs, ",") {
				t.Errorf("Attributes = %q, want %q", got, strings.Join(tt.attrs, ","))
			}
			if got := len(state.Bindings.Bindings); got != tt.groups {
				t.Errorf("len(Bindings) = %d, want %d", got, tt.groups)
			}
			compile(t, "vertex", state.VertexShader)
			compile(t, "fragment", state.FragmentShader)
		})
	}
}

func TestBuildRenderMissingPosition(t *testing.T) {
	f := newFixture()
	obj := scene.NewMesh(geometry("normal"), core.NewMaterial(core.MaterialBasic))
	ro, _ := f.objects.Get(obj, obj.Material, f.scene, f.camera, f.lights, f.ctx, "")
	if _, err := ro.NodeBuilderState(); !errors.Is(err, ErrMissingAttribute) {
		t.Errorf("NodeBuilderState() error = %v, want %v", err, ErrMissingAttribute)
	}
}

func TestBuildRenderUnsupportedFormat(t *testing.T) {
	f := newFixture()
	geo := core.NewGeometry()
	geo.SetAttribute("position", core.NewAttribute("position", make([]byte, 12), gputypes.VertexFormatUint32x3))
	obj := scene.NewMesh(geo, core.NewMaterial(core.MaterialBasic))
	ro, _ := f.objects.Get(obj, obj.Material, f.scene, f.camera, f.lights, f.ctx, "")
	if _, err := ro.NodeBuilderState(); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("NodeBuilderState() error = %v, want %v", err, ErrUnsupportedFormat)
	}
}

func TestSharedUniforms(t *testing.T) {
	f := newFixture()
	a := f.build(t, geometry("position", "normal"), core.NewMaterial(core.MaterialLambert))
	b := f.build(t, geometry("position", "normal"), core.NewMaterial(core.MaterialLambert))

	if a.Bindings.Bindings[0] == b.Bindings.Bindings[0] {
		t.Error("object uniforms are shared, want one per render object")
	}
	for _, i := range []int{2, 3} {
		x, y := a.Bindings.Bindings[i], b.Bindings.Bindings[i]
		if x != y {
			t.Errorf("binding %d (%s) not shared", i, x.Name())
		}
		if !x.Shared() {
			t.Errorf("binding %d (%s) Shared() = false, want true", i, x.Name())
		}
	}
	if got := f.builder.Shared(); got != 2 {
		t.Errorf("Shared() = %d, want 2", got)
	}
	f.builder.Dispose()
	if got := f.builder.Shared(); got != 0 {
		t.Errorf("Shared() after Dispose = %d, want 0", got)
	}
}

func TestMaterialColorUniform(t *testing.T) {
	f := newFixture()
	mat := core.NewMaterial(core.MaterialBasic)
	mat.Color = gputypes.Color{R: 1, G: 0.5, B: 0, A: 1}
	mat.Opacity = 0.5
	state := f.build(t, geometry("position"), mat)

	u := state.Bindings.Bindings[1].(*render.UniformBuffer)
	u.Update()
	got := core.BytesFloat32(u.Bytes())
	want := []float32{1, 0.5, 0, 0.5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("color[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBuildCompute(t *testing.T) {
	b := NewBuilder()
	out := core.NewFloat32Attribute("out", make([]float32, 64), 1)
	in := core.NewFloat32Attribute("in", make([]float32, 64), 1)
	node := core.NewComputeNode("@compute @workgroup_size(64) fn main() {}", 1, in, out)

	state, err := b.BuildCompute(node)
	if err != nil {
		t.Fatalf("BuildCompute() error = %v", err)
	}
	if got := len(state.Bindings.Bindings); got != 2 {
		t.Fatalf("len(Bindings) = %d, want 2", got)
	}
	if sb := state.Bindings.Bindings[1].(*render.StorageBuffer); sb.Attribute != out {
		t.Error("binding 1 is not the second storage attribute")
	}

	if _, err := b.BuildCompute(core.NewComputeNode("", 1)); !errors.Is(err, render.ErrEmptyShader) {
		t.Errorf("BuildCompute(empty) error = %v, want %v", err, render.ErrEmptyShader)
	}
}

func TestWiden(t *testing.T) {
	tests := []struct {
		expr     string
		width, n int
		fill, w  string
		want     string
	}{
		{"p", 3, 3, "0.0", "1.0", "p"},
		{"p", 3, 4, "0.0", "1.0", "vec4<f32>(p, 1.0)"},
		{"p", 2, 4, "0.0", "1.0", "vec4<f32>(p, 0.0, 1.0)"},
		{"uv", 4, 2, "0.0", "0.0", "uv.xy"},
		{"c", 3, 4, "1.0", "1.0", "vec4<f32>(c, 1.0)"},
	}
	for _, tt := range tests {
		if got := widen(tt.expr, tt.width, tt.n, tt.fill, tt.w); got != tt.want {
			t.Errorf("widen(%q, %d, %d) = %q, want %q", tt.expr, tt.width, tt.n, got, tt.want)
		}
	}
}

func TestCameraUniformFollowsContext(t *testing.T) {
	f := newFixture()
	state := f.build(t, geometry("position"), core.NewMaterial(core.MaterialBasic))
	u := state.Bindings.Bindings[2].(*render.UniformBuffer)
	if u.Name() != "camera" {
		t.Fatalf("binding 2 = %q, want camera", u.Name())
	}
	u.Update()
	before := append([]byte(nil), u.Bytes()...)

	other := scene.NewOrthographicCamera(-1, 1, -1, 1, 0.1, 10)
	f.ctx.SetCamera(other)
	if !u.Update() {
		t.Fatal("Update() = false after the context camera changed")
	}
	if string(u.Bytes()) == string(before) {
		t.Error("camera uniform still holds the previous camera")
	}
	want := other.Projection.Mul(other.View).Bytes()
	if string(u.Bytes()[:64]) != string(want) {
		t.Error("viewProjection does not match the new camera")
	}
}
