package render

import (
	"errors"
	"testing"

	"github.com/gogpu/g3d/core"
)

func TestPipelinesRefCountRoundTrip(t *testing.T) {
	h := newHarness()
	a := h.get(t, h.mesh(core.NewMaterial(core.MaterialBasic)))
	b := h.get(t, h.mesh(core.NewMaterial(core.MaterialBasic)))

	pa := h.draw(t, a)
	pb := h.draw(t, b)
	if pa != pb {
		t.Fatal("equal keys resolved to different pipelines")
	}
	if pa.UsedTimes() != 2 {
		t.Errorf("UsedTimes() = %d, want 2", pa.UsedTimes())
	}
	if got := h.backend.count("CreateRenderPipeline"); got != 1 {
		t.Errorf("CreateRenderPipeline calls = %d, want 1", got)
	}

	a.Dispose()
	if pa.UsedTimes() != 1 {
		t.Errorf("UsedTimes() after first delete = %d, want 1", pa.UsedTimes())
	}
	b.Dispose()
	if pa.UsedTimes() != 0 {
		t.Errorf("UsedTimes() after second delete = %d, want 0", pa.UsedTimes())
	}
	if n, _ := h.pipelines.Len(); n != 0 {
		t.Errorf("cached render pipelines = %d, want 0", n)
	}
	if got := h.backend.count("DestroyPipeline"); got != 1 {
		t.Errorf("DestroyPipeline calls = %d, want 1", got)
	}
	if got := h.backend.count("DestroyProgram"); got != 2 {
		t.Errorf("DestroyProgram calls = %d, want 2", got)
	}

	c := h.get(t, h.mesh(core.NewMaterial(core.MaterialBasic)))
	if pc := h.draw(t, c); pc == pa {
		t.Error("pipeline recreated after eviction is the evicted instance")
	}
}

func TestPipelinesProgramSharing(t *testing.T) {
	h := newHarness()
	basic1 := h.get(t, h.mesh(core.NewMaterial(core.MaterialBasic)))
	basic2 := h.get(t, h.mesh(core.NewMaterial(core.MaterialBasic)))
	lambert := h.get(t, h.mesh(core.NewMaterial(core.MaterialLambert)))

	p1 := h.draw(t, basic1)
	p2 := h.draw(t, basic2)
	p3 := h.draw(t, lambert)

	if p1.Vertex != p2.Vertex {
		t.Error("identical vertex source did not share a program")
	}
	if p1.Vertex == p3.Vertex {
		t.Error("different vertex source shared a program")
	}
	if p1.Vertex.UsedTimes() != 2 {
		t.Errorf("shared program UsedTimes() = %d, want 2", p1.Vertex.UsedTimes())
	}
	if got := h.pipelines.Programs(StageVertex); got != 2 {
		t.Errorf("Programs(StageVertex) = %d, want 2", got)
	}
	if got := h.backend.count("CreateProgram"); got != 4 {
		t.Errorf("CreateProgram calls = %d, want 4", got)
	}
}

func TestPipelinesStateChangeReleasesPrevious(t *testing.T) {
	h := newHarness()
	mat := core.NewMaterial(core.MaterialBasic)
	ro := h.get(t, h.mesh(mat))
	p1 := h.draw(t, ro)

	mat.Transparent = true
	p2, err := h.pipelines.GetForRender(ro)
	if err != nil {
		t.Fatalf("GetForRender() error = %v", err)
	}
	if p2 == p1 {
		t.Fatal("state change kept the old pipeline")
	}
	if p1.UsedTimes() != 0 || p2.UsedTimes() != 1 {
		t.Errorf("UsedTimes() = %d, %d, want 0, 1", p1.UsedTimes(), p2.UsedTimes())
	}
	if got := h.backend.count("DestroyPipeline"); got != 1 {
		t.Errorf("DestroyPipeline calls = %d, want 1", got)
	}
	if got := h.backend.count("CreateProgram"); got != 2 {
		t.Errorf("CreateProgram calls = %d, want 2 (programs reused)", got)
	}
	if p2.Vertex.UsedTimes() != 1 {
		t.Errorf("program UsedTimes() = %d, want 1", p2.Vertex.UsedTimes())
	}
	if ro.Pipeline != p2 {
		t.Error("RenderObject.Pipeline not reassigned")
	}
}

func TestPipelinesNoUpdateWhenUnchanged(t *testing.T) {
	h := newHarness()
	ro := h.get(t, h.mesh(core.NewMaterial(core.MaterialBasic)))
	p1 := h.draw(t, ro)

	for range 3 {
		if p := h.draw(t, ro); p != p1 {
			t.Fatal("unchanged render object got a new pipeline")
		}
	}
	if p1.UsedTimes() != 1 {
		t.Errorf("UsedTimes() = %d, want 1", p1.UsedTimes())
	}

	h.backend.needsUpdate = true
	if p := h.draw(t, ro); p != p1 {
		t.Error("backend update with equal key replaced the pipeline")
	}
	if p1.UsedTimes() != 1 {
		t.Errorf("UsedTimes() after backend update = %d, want 1", p1.UsedTimes())
	}
	if got := h.backend.count("CreateRenderPipeline"); got != 1 {
		t.Errorf("CreateRenderPipeline calls = %d, want 1", got)
	}
}

func TestPipelinesFormatChange(t *testing.T) {
	h := newHarness()
	ro := h.get(t, h.mesh(core.NewMaterial(core.MaterialBasic)))
	p1 := h.draw(t, ro)

	h.backend.sampleCount = 4
	p2 := h.draw(t, ro)
	if p2 == p1 {
		t.Fatal("format change kept the old pipeline")
	}
	if p2.Key().Format.SampleCount != 4 {
		t.Errorf("Format.SampleCount = %d, want 4", p2.Key().Format.SampleCount)
	}
}

func TestPipelinesCreateFailure(t *testing.T) {
	h := newHarness()
	ro := h.get(t, h.mesh(core.NewMaterial(core.MaterialBasic)))
	h.backend.failPipeline = errors.New("boom")

	if _, err := h.pipelines.GetForRender(ro); err == nil {
		t.Fatal("GetForRender() error = nil, want failure")
	}
	if ro.Pipeline != nil {
		t.Error("failed GetForRender() assigned a pipeline")
	}
	if got := h.pipelines.Programs(StageVertex); got != 0 {
		t.Errorf("Programs(StageVertex) after failure = %d, want 0", got)
	}

	h.backend.failPipeline = nil
	if _, err := h.pipelines.GetForRender(ro); err != nil {
		t.Fatalf("GetForRender() retry error = %v", err)
	}
}

func TestPipelinesCompute(t *testing.T) {
	h := newHarness()
	data := core.NewFloat32Attribute("data", []float32{1, 2, 3, 4}, 1)
	node := core.NewComputeNode("source-a", 1, data)

	dispatch := func() *ComputePipeline {
		t.Helper()
		if err := h.bindings.UpdateForCompute(node); err != nil {
			t.Fatalf("UpdateForCompute() error = %v", err)
		}
		group, err := h.bindings.GetForCompute(node)
		if err != nil {
			t.Fatalf("GetForCompute() error = %v", err)
		}
		p, err := h.pipelines.GetForCompute(node, group)
		if err != nil {
			t.Fatalf("Pipelines.GetForCompute() error = %v", err)
		}
		return p
	}

	p1 := dispatch()
	if p := dispatch(); p != p1 {
		t.Fatal("unchanged node got a new pipeline")
	}
	if got := h.backend.count("CreateStorageAttribute"); got != 1 {
		t.Errorf("CreateStorageAttribute calls = %d, want 1", got)
	}

	node.NeedsUpdate()
	if p := dispatch(); p != p1 {
		t.Error("version bump with equal source replaced the pipeline")
	}
	if p1.UsedTimes() != 1 {
		t.Errorf("UsedTimes() = %d, want 1", p1.UsedTimes())
	}

	node.Source = "source-b"
	node.NeedsUpdate()
	p2 := dispatch()
	if p2 == p1 {
		t.Fatal("new source kept the old pipeline")
	}
	if got := h.backend.count("DestroyProgram"); got != 1 {
		t.Errorf("DestroyProgram calls = %d, want 1", got)
	}
	if got := h.backend.count("DestroyPipeline"); got != 1 {
		t.Errorf("DestroyPipeline calls = %d, want 1", got)
	}

	h.pipelines.DeleteCompute(node)
	if _, n := h.pipelines.Len(); n != 0 {
		t.Errorf("cached compute pipelines = %d, want 0", n)
	}
	if got := h.pipelines.Programs(StageCompute); got != 0 {
		t.Errorf("Programs(StageCompute) = %d, want 0", got)
	}
}

func TestPipelinesUnknownStage(t *testing.T) {
	h := newHarness()
	if _, err := h.pipelines.program(Stage(9), "x", "", nil); !errors.Is(err, ErrUnknownStage) {
		t.Errorf("program() error = %v, want ErrUnknownStage", err)
	}
}

func TestRenderPipelineKeyString(t *testing.T) {
	k1 := RenderPipelineKey{VertexProgram: 1, FragmentProgram: 2, State: core.DefaultRenderState()}
	k2 := k1
	k2.State.Side = core.DoubleSide
	if k1.String() == k2.String() {
		t.Error("String() equal for different keys")
	}
	if k1 == k2 {
		t.Error("keys with different Side compare equal")
	}
}
