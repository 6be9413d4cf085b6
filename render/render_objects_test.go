package render

import (
	"runtime"
	"testing"
	"time"
	"weak"

	"github.com/gogpu/g3d/core"
	"github.com/gogpu/g3d/scene"
	"github.com/gogpu/gputypes"
)

func TestRenderObjectsIdentity(t *testing.T) {
	h := newHarness()
	obj := h.mesh(core.NewMaterial(core.MaterialBasic))

	r1 := h.get(t, obj)
	h.draw(t, r1)
	h.frame()
	r2 := h.get(t, obj)
	if r1 != r2 {
		t.Error("identical Get() calls returned different render objects")
	}
	if h.builder.builds != 1 {
		t.Errorf("shader builds = %d, want 1", h.builder.builds)
	}
}

func TestRenderObjectsInvalidation(t *testing.T) {
	h := newHarness()
	mat := core.NewMaterial(core.MaterialBasic)
	obj := h.mesh(mat)

	r1 := h.get(t, obj)
	h.draw(t, r1)

	mat.ProgramKey = "variant"
	r2 := h.get(t, obj)
	if r2 == r1 {
		t.Fatal("changed cache key returned the stale render object")
	}
	if !r1.Disposed() {
		t.Error("stale render object was not disposed")
	}

	// Each cascade step is observable.
	if got := h.backend.count("DestroyPipeline"); got != 1 {
		t.Errorf("DestroyPipeline calls = %d, want 1", got)
	}
	if h.pipelines.Get(r1) != nil {
		t.Error("pipeline record survived dispose")
	}
	if h.bindings.render.Has(r1) {
		t.Error("bindings record survived dispose")
	}
	if h.nodes.HasRender(r1) {
		t.Error("nodes record survived dispose")
	}
	if h.objects.records.Has(r1) {
		t.Error("render object record survived dispose")
	}
	if h.objects.Len() != 1 {
		t.Errorf("Len() = %d, want 1", h.objects.Len())
	}
	if mat.Listeners() != 1 {
		t.Errorf("material listeners = %d, want 1", mat.Listeners())
	}

	r1.Dispose()
	if got := h.backend.count("DestroyPipeline"); got != 1 {
		t.Errorf("DestroyPipeline calls after second dispose = %d, want 1", got)
	}
	if got, _ := h.objects.chain(DefaultPass).Get(r2.ChainKey()); got != r2 {
		t.Error("second dispose of the stale object removed its replacement")
	}
}

func TestRenderObjectsVersionAndBlending(t *testing.T) {
	h := newHarness()
	mat := core.NewMaterial(core.MaterialBasic)
	obj := h.mesh(mat)

	r1 := h.get(t, obj)
	p1 := h.draw(t, r1)
	if p1.UsedTimes() != 1 {
		t.Fatalf("UsedTimes() = %d, want 1", p1.UsedTimes())
	}

	mat.NeedsUpdate()
	mat.Transparent = true
	mat.Blending = core.AdditiveBlending

	r2 := h.get(t, obj)
	if r2 == r1 {
		t.Fatal("material change returned the stale render object")
	}
	if p1.UsedTimes() != 0 {
		t.Errorf("old pipeline UsedTimes() = %d, want 0", p1.UsedTimes())
	}

	p2 := h.draw(t, r2)
	if p2 == p1 {
		t.Error("new render object reused the old pipeline")
	}
	if r2.Pipeline != p2 || p2.UsedTimes() != 1 {
		t.Errorf("new pipeline assigned = %v, UsedTimes() = %d", r2.Pipeline == p2, p2.UsedTimes())
	}
	if p2.Key().State.Blending != core.AdditiveBlending {
		t.Errorf("pipeline blending = %v, want Additive", p2.Key().State.Blending)
	}
}

func TestRenderObjectsMaterialDispose(t *testing.T) {
	h := newHarness()
	mat := core.NewMaterial(core.MaterialBasic)
	a := h.get(t, h.mesh(mat))
	b := h.get(t, h.mesh(mat))
	h.draw(t, a)
	h.draw(t, b)

	mat.Dispose()
	if !a.Disposed() || !b.Disposed() {
		t.Error("material dispose did not dispose its render objects")
	}
	if h.objects.Len() != 0 {
		t.Errorf("Len() = %d, want 0", h.objects.Len())
	}
	if mat.Listeners() != 0 {
		t.Errorf("material listeners = %d, want 0", mat.Listeners())
	}
	if n, _ := h.pipelines.Len(); n != 0 {
		t.Errorf("cached pipelines = %d, want 0", n)
	}
	if got, want := h.backend.count("DestroyBindings"), h.backend.count("CreateBindings"); got != want {
		t.Errorf("DestroyBindings calls = %d, want %d", got, want)
	}
}

func TestRenderObjectsPasses(t *testing.T) {
	h := newHarness()
	obj := h.mesh(core.NewMaterial(core.MaterialBasic))

	front := h.get(t, obj)
	back, err := h.objects.Get(obj, obj.Material, h.scene, h.camera, h.lights, h.ctx, "backSide")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if front == back {
		t.Error("different passes share a render object")
	}
	if back.PassID != "backSide" || front.PassID != DefaultPass {
		t.Errorf("PassID = %q, %q", front.PassID, back.PassID)
	}
}

func TestRenderObjectsLightsChangeKey(t *testing.T) {
	h := newHarness()
	obj := h.mesh(core.NewMaterial(core.MaterialLambert))
	r1 := h.get(t, obj)

	h.lights.Set([]*scene.Object{scene.NewLight(scene.AmbientLight, opaqueColor(), 1)})
	h.frame()
	r2 := h.get(t, obj)
	if r1 == r2 {
		t.Error("light composition change kept the render object")
	}

	// Same composition, new call: key is stable.
	h.frame()
	if r3 := h.get(t, obj); r3 != r2 {
		t.Error("unchanged lights replaced the render object")
	}
}

func TestRenderObjectsNilLights(t *testing.T) {
	h := newHarness()
	obj := h.mesh(core.NewMaterial(core.MaterialBasic))
	r1, err := h.objects.Get(obj, obj.Material, h.scene, h.camera, nil, h.ctx, "")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	r2, _ := h.objects.Get(obj, obj.Material, h.scene, h.camera, nil, h.ctx, "")
	if r1 != r2 {
		t.Error("nil lights broke identity")
	}
}

func TestRenderObjectsDispose(t *testing.T) {
	h := newHarness()
	for range 3 {
		h.draw(t, h.get(t, h.mesh(core.NewMaterial(core.MaterialBasic))))
	}
	h.objects.Dispose()
	if h.objects.Len() != 0 {
		t.Errorf("Len() = %d, want 0", h.objects.Len())
	}
	if n, _ := h.pipelines.Len(); n != 0 {
		t.Errorf("cached pipelines = %d, want 0", n)
	}
}

func TestRenderObjectVertexBuffers(t *testing.T) {
	h := newHarness()
	geo := core.NewGeometry()
	buf := core.NewBuffer(make([]byte, 3*24), 24)
	geo.SetAttribute("position", core.NewInterleavedAttribute("position", buf, gputypes.VertexFormatFloat32x3, 0))
	geo.SetAttribute("normal", core.NewInterleavedAttribute("normal", buf, gputypes.VertexFormatFloat32x3, 12))
	obj := scene.NewMesh(geo, core.NewMaterial(core.MaterialBasic))

	ro := h.get(t, obj)
	buffers, err := ro.VertexBuffers()
	if err != nil {
		t.Fatalf("VertexBuffers() error = %v", err)
	}
	if len(buffers) != 1 || buffers[0] != buf {
		t.Fatalf("VertexBuffers() = %d buffers, want the shared one", len(buffers))
	}
	layouts, err := ro.VertexLayouts()
	if err != nil {
		t.Fatalf("VertexLayouts() error = %v", err)
	}
	if len(layouts) != 1 || len(layouts[0].Attributes) != 2 {
		t.Fatalf("VertexLayouts() = %+v", layouts)
	}
	if layouts[0].ArrayStride != 24 || layouts[0].Attributes[1].Offset != 12 || layouts[0].Attributes[1].ShaderLocation != 1 {
		t.Errorf("layout = %+v", layouts[0])
	}
}

func TestRenderObjectsCameraSwitchKeepsPipeline(t *testing.T) {
	h := newHarness()
	obj := h.mesh(core.NewMaterial(core.MaterialBasic))
	cameras := []*scene.Camera{
		scene.NewPerspectiveCamera(1, 1, 0.1, 100),
		scene.NewOrthographicCamera(-1, 1, -1, 1, 0.1, 100),
	}

	var first *RenderObject
	for i := range 6 {
		cam := cameras[i%2]
		h.frame()
		ro, err := h.objects.Get(obj, obj.Material, h.scene, cam, h.lights, h.ctx, "")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if first == nil {
			first = ro
		} else if ro != first {
			t.Fatalf("render %d: camera switch replaced the render object", i)
		}
		h.draw(t, ro)
		if ro.Camera() != cam || h.ctx.Camera() != cam {
			t.Errorf("render %d: current camera not recorded", i)
		}
	}

	for name, want := range map[string]int{
		"CreateRenderPipeline": 1,
		"CreateProgram":        2,
		"DestroyPipeline":      0,
		"CreateBindings":       1,
	} {
		if got := h.backend.count(name); got != want {
			t.Errorf("%s calls = %d, want %d", name, got, want)
		}
	}
	if h.builder.builds != 1 {
		t.Errorf("shader builds = %d, want 1", h.builder.builds)
	}
}

func TestRenderObjectsReleaseCollectedObject(t *testing.T) {
	h := newHarness()
	ref := func() weak.Pointer[scene.Object] {
		obj := scene.NewMesh(triangle(), core.NewMaterial(core.MaterialBasic))
		h.draw(t, h.get(t, obj))
		return weak.Make(obj)
	}()
	if h.objects.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", h.objects.Len())
	}

	deadline := time.Now().Add(5 * time.Second)
	for h.objects.Len() > 0 && time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
		h.objects.Collect()
	}
	if ref.Value() != nil {
		t.Error("object still reachable after collection")
	}
	if h.objects.Len() != 0 {
		t.Fatalf("Len() = %d after collection, want 0", h.objects.Len())
	}
	if n, _ := h.pipelines.Len(); n != 0 {
		t.Errorf("cached pipelines = %d, want 0", n)
	}
	if got := h.backend.count("DestroyPipeline"); got != 1 {
		t.Errorf("DestroyPipeline calls = %d, want 1", got)
	}
	if got, want := h.backend.count("DestroyBindings"), h.backend.count("CreateBindings"); got != want {
		t.Errorf("DestroyBindings calls = %d, want %d", got, want)
	}
	if h.objects.Collect() != 0 {
		t.Error("Collect() disposed a render object twice")
	}
}
