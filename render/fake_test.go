package render

import (
	"context"
	"errors"
	"image"
	"testing"
	"weak"

	"github.com/gogpu/g3d/core"
	"github.com/gogpu/g3d/scene"
	"github.com/gogpu/gputypes"
)

var errDoubleCreate = errors.New("fake: created twice")

// fakeBackend records every call by name.
type fakeBackend struct {
	calls map[string]int

	buffers  map[*core.Buffer]bool
	textures map[*core.Texture]bool
	samplers map[*core.Texture]bool

	// needsUpdate is returned by NeedsRenderUpdate.
	needsUpdate bool

	// sampleCount overrides the render format sample count when set.
	sampleCount uint32

	failPipeline error
	destroyed    []Pipeline
	rebuilt      []Pipeline
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		calls:    make(map[string]int),
		buffers:  make(map[*core.Buffer]bool),
		textures: make(map[*core.Texture]bool),
		samplers: make(map[*core.Texture]bool),
	}
}

func (f *fakeBackend) count(name string) int { return f.calls[name] }

func (f *fakeBackend) Init(context.Context) error { f.calls["Init"]++; return nil }
func (f *fakeBackend) Dispose()                   { f.calls["Dispose"]++ }

func (f *fakeBackend) createBuffer(name string, attr *core.Attribute) error {
	f.calls[name]++
	if f.buffers[attr.Buffer] {
		return errDoubleCreate
	}
	f.buffers[attr.Buffer] = true
	return nil
}

func (f *fakeBackend) CreateAttribute(attr *core.Attribute) error {
	return f.createBuffer("CreateAttribute", attr)
}

func (f *fakeBackend) CreateIndexAttribute(attr *core.Attribute) error {
	return f.createBuffer("CreateIndexAttribute", attr)
}

func (f *fakeBackend) CreateStorageAttribute(attr *core.Attribute) error {
	return f.createBuffer("CreateStorageAttribute", attr)
}

func (f *fakeBackend) UpdateAttribute(*core.Attribute) error {
	f.calls["UpdateAttribute"]++
	return nil
}

func (f *fakeBackend) DestroyAttribute(attr *core.Attribute) {
	f.calls["DestroyAttribute"]++
	delete(f.buffers, attr.Buffer)
}

func (f *fakeBackend) CreateSampler(tex *core.Texture) error {
	f.calls["CreateSampler"]++
	if f.samplers[tex] {
		return errDoubleCreate
	}
	f.samplers[tex] = true
	return nil
}

func (f *fakeBackend) DestroySampler(tex *core.Texture) {
	f.calls["DestroySampler"]++
	delete(f.samplers, tex)
}

func (f *fakeBackend) CreateDefaultTexture(tex *core.Texture) error {
	f.calls["CreateDefaultTexture"]++
	if f.textures[tex] {
		return errDoubleCreate
	}
	f.textures[tex] = true
	return nil
}

func (f *fakeBackend) CreateTexture(tex *core.Texture, _ TextureOptions) error {
	f.calls["CreateTexture"]++
	if f.textures[tex] {
		return errDoubleCreate
	}
	f.textures[tex] = true
	return nil
}

func (f *fakeBackend) UpdateTexture(*core.Texture, TextureOptions) error {
	f.calls["UpdateTexture"]++
	return nil
}

func (f *fakeBackend) GenerateMipmaps(*core.Texture) error {
	f.calls["GenerateMipmaps"]++
	return nil
}

func (f *fakeBackend) DestroyTexture(tex *core.Texture) {
	f.calls["DestroyTexture"]++
	delete(f.textures, tex)
}

func (f *fakeBackend) CreateBindings(*BindGroup) error {
	f.calls["CreateBindings"]++
	return nil
}

func (f *fakeBackend) UpdateBindings(_ *BindGroup, p Pipeline) error {
	f.calls["UpdateBindings"]++
	f.rebuilt = append(f.rebuilt, p)
	return nil
}

func (f *fakeBackend) UpdateBinding(Binding) error {
	f.calls["UpdateBinding"]++
	return nil
}

func (f *fakeBackend) DestroyBindings(*BindGroup) { f.calls["DestroyBindings"]++ }

func (f *fakeBackend) CreateProgram(*ProgrammableStage) error {
	f.calls["CreateProgram"]++
	return nil
}

func (f *fakeBackend) DestroyProgram(*ProgrammableStage) { f.calls["DestroyProgram"]++ }

func (f *fakeBackend) CreateRenderPipeline(*RenderObject, *BindGroup) error {
	f.calls["CreateRenderPipeline"]++
	return f.failPipeline
}

func (f *fakeBackend) CreateComputePipeline(*ComputePipeline, *BindGroup) error {
	f.calls["CreateComputePipeline"]++
	return f.failPipeline
}

func (f *fakeBackend) DestroyPipeline(p Pipeline) {
	f.calls["DestroyPipeline"]++
	f.destroyed = append(f.destroyed, p)
}

func (f *fakeBackend) NeedsRenderUpdate(*RenderObject) bool { return f.needsUpdate }

func (f *fakeBackend) RenderFormat(ro *RenderObject) RenderFormat {
	format := DefaultRenderFormat(ro)
	if f.sampleCount != 0 {
		format.SampleCount = f.sampleCount
	}
	return format
}

func (f *fakeBackend) BeginRender(*RenderContext) error {
	f.calls["BeginRender"]++
	return nil
}

func (f *fakeBackend) Draw(*RenderObject, *Info) error {
	f.calls["Draw"]++
	return nil
}

func (f *fakeBackend) FinishRender(*RenderContext) error {
	f.calls["FinishRender"]++
	return nil
}

func (f *fakeBackend) BeginCompute() error { f.calls["BeginCompute"]++; return nil }

func (f *fakeBackend) Compute(*core.ComputeNode, *BindGroup, *ComputePipeline) error {
	f.calls["Compute"]++
	return nil
}

func (f *fakeBackend) FinishCompute() error { f.calls["FinishCompute"]++; return nil }

func (f *fakeBackend) ReadAttribute(_ context.Context, attr *core.Attribute) ([]byte, error) {
	f.calls["ReadAttribute"]++
	return append([]byte(nil), attr.Buffer.Data...), nil
}

// fakeBuilder emits one shader pair per material kind plus ProgramKey and
// a bind group holding an object uniform, the shared binding and the
// material map.
type fakeBuilder struct {
	shared *UniformBuffer

	// extra is appended to every render bind group.
	extra []Binding

	builds int
}

func (b *fakeBuilder) BuildRender(ro *RenderObject) (*NodeBuilderState, error) {
	b.builds++
	variant := ro.Material.Kind.String() + ro.Material.ProgramKey
	obj := weak.Make(ro.Object())
	bindings := []Binding{
		NewUniformBuffer("object", Uniform{Name: "model", Size: 64, Value: func() []byte {
			if o := obj.Value(); o != nil {
				return o.World().Bytes()
			}
			return nil
		}}),
	}
	if b.shared != nil {
		bindings = append(bindings, b.shared)
	}
	bindings = append(bindings, b.extra...)
	if m := ro.Material.Map; m != nil {
		bindings = append(bindings, NewSampledTexture("map", m), NewSampler("mapSampler", m))
	}
	return &NodeBuilderState{
		VertexShader:   "vs:" + variant,
		FragmentShader: "fs:" + variant,
		Bindings:       NewBindGroup(ro.Material.Name, 0, bindings...),
		Attributes:     []string{"position", "normal"},
	}, nil
}

func (b *fakeBuilder) BuildCompute(node *core.ComputeNode) (*NodeBuilderState, error) {
	b.builds++
	bindings := make([]Binding, len(node.Storage))
	for i, a := range node.Storage {
		bindings[i] = NewStorageBuffer(a.Name, a)
	}
	return &NodeBuilderState{
		ComputeShader: node.Source,
		Bindings:      NewBindGroup(node.Name, 0, bindings...),
	}, nil
}

type harness struct {
	backend *fakeBackend
	builder *fakeBuilder
	info    *Info

	attributes *Attributes
	geometries *Geometries
	textures   *Textures
	nodes      *Nodes
	pipelines  *Pipelines
	bindings   *Bindings
	objects    *RenderObjects

	scene  *scene.Scene
	camera *scene.Camera
	lights *scene.Lights
	ctx    *RenderContext
}

func newHarness() *harness {
	h := &harness{
		backend: newFakeBackend(),
		builder: &fakeBuilder{},
		info:    NewInfo(),
		scene:   scene.New(),
		camera:  scene.NewPerspectiveCamera(1, 1, 0.1, 100),
		lights:  scene.NewLights(),
		ctx:     NewRenderContext(),
	}
	h.attributes = NewAttributes(h.backend)
	h.geometries = NewGeometries(h.attributes, h.info)
	h.textures = NewTextures(h.backend, h.info)
	h.nodes = NewNodes(h.builder, h.info)
	h.pipelines = NewPipelines(h.backend, h.nodes)
	h.bindings = NewBindings(h.backend, h.nodes, h.textures, h.attributes, h.pipelines, h.info)
	h.objects = NewRenderObjects(h.nodes, h.geometries, h.pipelines, h.bindings, h.info)
	return h
}

func triangle() *core.Geometry {
	g := core.NewGeometry()
	g.SetAttribute("position", core.NewFloat32Attribute("position", []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}, 3))
	g.SetAttribute("normal", core.NewFloat32Attribute("normal", []float32{0, 0, 1, 0, 0, 1, 0, 0, 1}, 3))
	return g
}

func (h *harness) mesh(mat *core.Material) *scene.Object {
	obj := scene.NewMesh(triangle(), mat)
	h.scene.Add(obj)
	return obj
}

// get returns the render object of obj in the default pass.
func (h *harness) get(t *testing.T, obj *scene.Object) *RenderObject {
	t.Helper()
	ro, err := h.objects.Get(obj, obj.Material, h.scene, h.camera, h.lights, h.ctx, "")
	if err != nil {
		t.Fatalf("RenderObjects.Get() error = %v", err)
	}
	return ro
}

// draw runs the per-object frame protocol for ro.
func (h *harness) draw(t *testing.T, ro *RenderObject) *RenderPipeline {
	t.Helper()
	if err := h.geometries.UpdateForRender(ro); err != nil {
		t.Fatalf("Geometries.UpdateForRender() error = %v", err)
	}
	p, err := h.pipelines.GetForRender(ro)
	if err != nil {
		t.Fatalf("Pipelines.GetForRender() error = %v", err)
	}
	if err := h.bindings.UpdateForRender(ro); err != nil {
		t.Fatalf("Bindings.UpdateForRender() error = %v", err)
	}
	return p
}

// frame advances the frame stamp and render call counter.
func (h *harness) frame() {
	h.info.BeginFrame()
	h.info.Calls++
}

func solidImage(w, h int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

var _ Backend = (*fakeBackend)(nil)

func opaqueColor() gputypes.Color { return gputypes.Color{R: 1, G: 1, B: 1, A: 1} }
