package g3d

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	_ "github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/g3d/backend/native"
	"github.com/gogpu/g3d/core"
	"github.com/gogpu/g3d/render"
	"github.com/gogpu/g3d/scene"
)

const doubleWGSL = `@group(0) @binding(0) var<storage, read_write> data: array<f32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = data[id.x] * 2.0;
}
`

// newTestRenderer returns an initialized renderer on the noop HAL device.
func newTestRenderer(t *testing.T, opts ...Option) *Renderer {
	t.Helper()
	b := native.New(native.WithVariant(gputypes.BackendEmpty), native.WithLabel("test"))
	r := New(append([]Option{WithBackend(b), WithSize(64, 64)}, opts...)...)
	if err := r.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(r.Dispose)
	return r
}

func triangle() *core.Geometry {
	g := core.NewGeometry()
	g.SetAttribute("position", core.NewFloat32Attribute("position", []float32{
		0, 1, 0,
		-1, -1, 0,
		1, -1, 0,
	}, 3))
	g.SetIndex(core.NewIndexAttribute([]uint32{0, 1, 2}))
	return g
}

type fixture struct {
	scene  *scene.Scene
	camera *scene.Camera
}

func newFixture(objects ...*scene.Object) fixture {
	scn := scene.New()
	scn.Add(objects...)
	cam := scene.NewPerspectiveCamera(1, 1, 0.1, 100)
	cam.LookAt(scene.Vec3{0, 0, 5}, scene.Vec3{}, scene.Vec3{0, 1, 0})
	return fixture{scene: scn, camera: cam}
}

func (f fixture) render(t *testing.T, r *Renderer) {
	t.Helper()
	if err := r.Render(context.Background(), f.scene, f.camera); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
}

func TestRenderReusesRenderObjects(t *testing.T) {
	r := newTestRenderer(t)
	mat := core.NewMaterial(core.MaterialBasic)
	geo := triangle()
	f := newFixture(scene.NewMesh(geo, mat), scene.NewMesh(geo, mat))

	for range 3 {
		f.render(t, r)
	}
	if n := r.renderObjects.Len(); n != 2 {
		t.Errorf("render objects = %d, want 2", n)
	}
	if n, _ := r.pipelines.Len(); n != 1 {
		t.Errorf("render pipelines = %d, want 1", n)
	}
	info := r.Info()
	if info.Frame != 3 {
		t.Errorf("Frame = %d, want 3", info.Frame)
	}
	if info.Render.DrawCalls != 2 {
		t.Errorf("DrawCalls = %d, want 2", info.Render.DrawCalls)
	}
	if info.Render.Triangles != 2 {
		t.Errorf("Triangles = %d, want 2", info.Render.Triangles)
	}
	if info.Memory.Geometries != 1 {
		t.Errorf("Memory.Geometries = %d, want 1", info.Memory.Geometries)
	}
}

func TestRenderInvalidatesOnMaterialChange(t *testing.T) {
	r := newTestRenderer(t)
	mat := core.NewMaterial(core.MaterialBasic)
	mesh := scene.NewMesh(triangle(), mat)
	f := newFixture(mesh)

	f.render(t, r)
	ro, err := r.renderObjects.Get(mesh, mat, f.scene, f.camera, r.sceneLights(f.scene), r.output, "")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	oldPipeline := ro.Pipeline
	if oldPipeline == nil || oldPipeline.UsedTimes() != 1 {
		t.Fatalf("pipeline before change = %v, want one user", oldPipeline)
	}

	mat.Transparent = true
	mat.Blending = core.AdditiveBlending
	mat.NeedsUpdate()
	f.render(t, r)

	if !ro.Disposed() {
		t.Error("stale render object was not disposed")
	}
	next, err := r.renderObjects.Get(mesh, mat, f.scene, f.camera, r.sceneLights(f.scene), r.output, "")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if next == ro {
		t.Fatal("Get() returned the stale render object")
	}
	if oldPipeline.UsedTimes() != 0 {
		t.Errorf("old pipeline UsedTimes() = %d, want 0", oldPipeline.UsedTimes())
	}
	if next.Pipeline == nil || next.Pipeline == oldPipeline {
		t.Errorf("new pipeline = %v, want a different pipeline", next.Pipeline)
	}
	if n, _ := r.pipelines.Len(); n != 1 {
		t.Errorf("render pipelines = %d, want 1", n)
	}
}

func TestRenderDoubleSidedTransparent(t *testing.T) {
	r := newTestRenderer(t)
	mat := core.NewMaterial(core.MaterialBasic)
	mat.Transparent = true
	mat.Side = core.DoubleSide
	f := newFixture(scene.NewMesh(triangle(), mat))

	f.render(t, r)
	f.render(t, r)

	if n := r.renderObjects.Len(); n != 2 {
		t.Errorf("render objects = %d, want 2 (backSide and default)", n)
	}
	if mat.Side != core.DoubleSide {
		t.Errorf("material Side = %v after Render, want DoubleSide", mat.Side)
	}
	if n, _ := r.pipelines.Len(); n != 2 {
		t.Errorf("render pipelines = %d, want 2 (one per culled side)", n)
	}
	if got := r.Info().Render.DrawCalls; got != 2 {
		t.Errorf("DrawCalls = %d, want 2", got)
	}
}

func TestRenderSkipsHiddenObjects(t *testing.T) {
	r := newTestRenderer(t)
	hiddenMat := core.NewMaterial(core.MaterialBasic)
	hiddenMat.Visible = false
	hidden := scene.NewMesh(triangle(), core.NewMaterial(core.MaterialBasic))
	hidden.Visible = false
	f := newFixture(hidden, scene.NewMesh(triangle(), hiddenMat))

	f.render(t, r)
	if n := r.renderObjects.Len(); n != 0 {
		t.Errorf("render objects = %d, want 0", n)
	}
	if got := r.Info().Render.DrawCalls; got != 0 {
		t.Errorf("DrawCalls = %d, want 0", got)
	}
}

func TestRenderLitScene(t *testing.T) {
	r := newTestRenderer(t)
	geo := triangle()
	geo.SetAttribute("normal", core.NewFloat32Attribute("normal", []float32{0, 0, 1, 0, 0, 1, 0, 0, 1}, 3))
	f := newFixture(
		scene.NewMesh(geo, core.NewMaterial(core.MaterialLambert)),
		scene.NewLight(scene.AmbientLight, gputypes.Color{R: 1, G: 1, B: 1, A: 1}, 0.2),
	)
	sun := scene.NewLight(scene.DirectionalLight, gputypes.Color{R: 1, G: 1, B: 1, A: 1}, 1)
	sun.SetPosition(1, 1, 1)
	f.scene.Add(sun)
	f.scene.Fog = &scene.LinearFog{Near: 1, Far: 10}

	f.render(t, r)
	if got := r.sceneLights(f.scene).Len(); got != 2 {
		t.Errorf("lights = %d, want 2", got)
	}
	if got := r.Info().Render.DrawCalls; got != 1 {
		t.Errorf("DrawCalls = %d, want 1", got)
	}
}

func TestRenderTarget(t *testing.T) {
	r := newTestRenderer(t)
	rt := core.NewRenderTarget(32, 32, core.RenderTargetOptions{DepthBuffer: true})
	f := newFixture(scene.NewMesh(triangle(), core.NewMaterial(core.MaterialBasic)))

	r.SetRenderTarget(rt)
	f.render(t, r)

	rc := r.targets[rt]
	if rc == nil {
		t.Fatal("no render context for the target")
	}
	if rc.DepthTexture == nil {
		t.Error("render context has no depth texture")
	}
	if got := rc.DepthStencilFormat(); got != gputypes.TextureFormatDepth24Plus {
		t.Errorf("DepthStencilFormat() = %v, want Depth24Plus", got)
	}
	if rec := r.textures.Get(rt.Texture()); rec == nil || !rec.Initialized {
		t.Error("color attachment was not initialized")
	}

	rt.Dispose()
	if _, ok := r.targets[rt]; ok {
		t.Error("disposed target still has a render context")
	}
	if r.RenderTarget() != nil {
		t.Error("disposed target is still current")
	}
}

func TestCompute(t *testing.T) {
	r := newTestRenderer(t)
	data := core.NewFloat32Attribute("data", make([]float32, 64), 1)
	node := core.NewComputeNode(doubleWGSL, 1, data)
	node.Name = "double"

	for range 2 {
		if err := r.Compute(context.Background(), node); err != nil {
			t.Fatalf("Compute() error = %v", err)
		}
	}
	if _, n := r.pipelines.Len(); n != 1 {
		t.Errorf("compute pipelines = %d, want 1", n)
	}
	if got := r.Info().Compute.Calls; got != 2 {
		t.Errorf("Compute.Calls = %d, want 2", got)
	}

	out, err := r.ReadAttribute(context.Background(), data)
	if err != nil {
		t.Fatalf("ReadAttribute() error = %v", err)
	}
	if len(out) != 64*4 {
		t.Errorf("len(ReadAttribute()) = %d, want %d", len(out), 64*4)
	}

	node.Dispose()
	if _, n := r.pipelines.Len(); n != 0 {
		t.Errorf("compute pipelines after node dispose = %d, want 0", n)
	}
}

func TestRenderErrors(t *testing.T) {
	r := newTestRenderer(t)
	f := newFixture()

	if err := r.Render(context.Background(), nil, f.camera); !errors.Is(err, ErrNilScene) {
		t.Errorf("Render(nil scene) error = %v, want ErrNilScene", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Render(ctx, f.scene, f.camera); !errors.Is(err, context.Canceled) {
		t.Errorf("Render(canceled) error = %v, want context.Canceled", err)
	}

	// A mesh without positions aborts the frame and leaves no pass open.
	geo := core.NewGeometry()
	geo.SetAttribute("uv", core.NewFloat32Attribute("uv", []float32{0, 0}, 2))
	f.scene.Add(scene.NewMesh(geo, core.NewMaterial(core.MaterialBasic)))
	if err := r.Render(context.Background(), f.scene, f.camera); err == nil {
		t.Fatal("Render() without positions succeeded")
	}
	f.scene.Children = nil
	f.render(t, r)
}

func TestInitAndDispose(t *testing.T) {
	b := native.New(native.WithVariant(gputypes.BackendEmpty))
	r := New(WithBackend(b))
	if r.Backend() != nil {
		t.Error("Backend() before Init is not nil")
	}
	f := newFixture(scene.NewMesh(triangle(), core.NewMaterial(core.MaterialBasic)))

	// Render initializes lazily.
	f.render(t, r)
	if r.Backend() != b {
		t.Error("Backend() is not the configured backend")
	}
	if err := r.Init(context.Background()); err != nil {
		t.Errorf("second Init() error = %v", err)
	}

	r.Dispose()
	r.Dispose()
	if n := r.renderObjects.Len(); n != 0 {
		t.Errorf("render objects after Dispose = %d, want 0", n)
	}
	got := b.Stats()
	got.ProgramCacheHits, got.ProgramCacheMisses = 0, 0
	if got != (native.Stats{}) {
		t.Errorf("backend Stats() after Dispose = %+v, want zero", got)
	}
	if err := r.Render(context.Background(), f.scene, f.camera); !errors.Is(err, ErrDisposed) {
		t.Errorf("Render() after Dispose error = %v, want ErrDisposed", err)
	}
	if err := r.Init(context.Background()); !errors.Is(err, ErrDisposed) {
		t.Errorf("Init() after Dispose error = %v, want ErrDisposed", err)
	}
}

func TestInitBackendError(t *testing.T) {
	b := native.New(native.WithVariant(gputypes.BackendBrowserWebGPU))
	r := New(WithBackend(b))
	defer r.Dispose()
	if err := r.Init(context.Background()); !errors.Is(err, native.ErrNoGPU) {
		t.Errorf("Init() error = %v, want native.ErrNoGPU", err)
	}
	backendsMu.Lock()
	_, tracked := backends[b]
	backendsMu.Unlock()
	if tracked {
		t.Error("failed backend is still tracked for logging")
	}
}

var _ render.Backend = (*native.Backend)(nil)

func TestRenderCameraSwitch(t *testing.T) {
	r := newTestRenderer(t)
	mesh := scene.NewMesh(triangle(), core.NewMaterial(core.MaterialLambert))
	f := newFixture(mesh)
	other := scene.NewOrthographicCamera(-2, 2, -2, 2, 0.1, 100)

	for i := range 4 {
		cam := f.camera
		if i%2 == 1 {
			cam = other
		}
		if err := r.Render(context.Background(), f.scene, cam); err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if r.output.Camera() != cam {
			t.Errorf("render %d: output camera not updated", i)
		}
	}
	if n := r.renderObjects.Len(); n != 1 {
		t.Errorf("render objects = %d, want 1", n)
	}
	if n, _ := r.pipelines.Len(); n != 1 {
		t.Errorf("render pipelines = %d, want 1", n)
	}
	if got := r.pipelines.Programs(render.StageVertex); got != 1 {
		t.Errorf("vertex programs = %d, want 1", got)
	}
}

func TestRenderReleasesDroppedMeshes(t *testing.T) {
	r := newTestRenderer(t)
	f := newFixture()
	func() {
		for range 4 {
			f.scene.Add(scene.NewMesh(triangle(), core.NewMaterial(core.MaterialBasic)))
		}
		f.render(t, r)
	}()
	if n := r.renderObjects.Len(); n != 4 {
		t.Fatalf("render objects = %d, want 4", n)
	}

	f.scene.Object = scene.NewGroup()
	deadline := time.Now().Add(5 * time.Second)
	for r.renderObjects.Len() > 0 && time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
		f.render(t, r)
	}
	if n := r.renderObjects.Len(); n != 0 {
		t.Errorf("render objects = %d after the meshes were dropped, want 0", n)
	}
	if n, _ := r.pipelines.Len(); n != 0 {
		t.Errorf("render pipelines = %d, want 0", n)
	}
}
