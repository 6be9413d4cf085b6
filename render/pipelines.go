package render

import (
	"fmt"

	"github.com/gogpu/g3d/cache"
	"github.com/gogpu/g3d/core"
)

// renderPipelineRecord is the snapshot of everything that was baked into
// the pipeline assigned to a render object.
type renderPipelineRecord struct {
	pipeline *RenderPipeline

	materialID      uint64
	materialVersion uint64
	state           core.RenderState
	stencilRef      uint32
	format          RenderFormat
}

type computePipelineRecord struct {
	pipeline *ComputePipeline
	version  uint64
}

// Pipelines assigns render and compute pipelines and reference-counts
// them together with their programs. A pipeline or program is destroyed
// as soon as its last user lets go.
type Pipelines struct {
	backend Backend
	nodes   *Nodes

	render  *cache.IdentityMap[RenderObject, renderPipelineRecord]
	compute *cache.IdentityMap[core.ComputeNode, computePipelineRecord]

	renderPipelines  map[RenderPipelineKey]*RenderPipeline
	computePipelines map[ComputePipelineKey]*ComputePipeline

	// programs maps stage source to program, per stage.
	programs map[Stage]map[string]*ProgrammableStage
}

// NewPipelines creates a pipeline cache.
func NewPipelines(backend Backend, nodes *Nodes) *Pipelines {
	p := &Pipelines{
		backend: backend,
		nodes:   nodes,
		render:  cache.NewIdentityMap[RenderObject, renderPipelineRecord](),
		compute: cache.NewIdentityMap[core.ComputeNode, computePipelineRecord](),
	}
	p.reset()
	return p
}

func (p *Pipelines) reset() {
	p.renderPipelines = make(map[RenderPipelineKey]*RenderPipeline)
	p.computePipelines = make(map[ComputePipelineKey]*ComputePipeline)
	p.programs = map[Stage]map[string]*ProgrammableStage{
		StageVertex:   {},
		StageFragment: {},
		StageCompute:  {},
	}
}

// GetForRender returns the pipeline of ro, rebuilding it when the
// material state, the render format or the backend asks for it.
func (p *Pipelines) GetForRender(ro *RenderObject) (*RenderPipeline, error) {
	rec := p.render.Get(ro)
	if !p.needsRenderUpdate(ro, rec) {
		return rec.pipeline, nil
	}

	state, err := p.nodes.GetForRender(ro)
	if err != nil {
		return nil, err
	}
	if state.VertexShader == "" || state.FragmentShader == "" {
		return nil, fmt.Errorf("render: pipeline for %q: %w", ro.Material.Name, ErrEmptyShader)
	}

	prev := rec.pipeline
	var prevVertex, prevFragment *ProgrammableStage
	if prev != nil {
		prev.usedTimes--
		prev.Vertex.usedTimes--
		prev.Fragment.usedTimes--
		prevVertex, prevFragment = prev.Vertex, prev.Fragment
	}

	pipeline, err := p.assignRender(ro, state, prevVertex, prevFragment, prev)
	if err != nil {
		// ro no longer holds prev; let the next call start over.
		rec.pipeline = nil
		ro.Pipeline = nil
		p.sweepRender(prev, nil)
		return nil, err
	}

	pipeline.usedTimes++
	pipeline.Vertex.usedTimes++
	pipeline.Fragment.usedTimes++
	rec.pipeline = pipeline
	ro.Pipeline = pipeline

	if prev != pipeline {
		p.sweepRender(prev, pipeline)
	}
	return pipeline, nil
}

func (p *Pipelines) assignRender(ro *RenderObject, state *NodeBuilderState, prevVertex, prevFragment *ProgrammableStage, prev *RenderPipeline) (*RenderPipeline, error) {
	name := ro.Material.Name

	vertex, err := p.program(StageVertex, state.VertexShader, name, prevVertex)
	if err != nil {
		return nil, err
	}
	fragment, err := p.program(StageFragment, state.FragmentShader, name, prevFragment)
	if err != nil {
		p.releaseIfUnused(vertex)
		return nil, err
	}

	key := RenderPipelineKey{
		VertexProgram:   vertex.ID(),
		FragmentProgram: fragment.ID(),
		State:           ro.Material.State(),
		Format:          p.backend.RenderFormat(ro),
	}
	if pipeline, ok := p.renderPipelines[key]; ok {
		return pipeline, nil
	}

	if prev != nil && prev.usedTimes == 0 {
		p.releaseRender(prev)
	}
	pipeline := &RenderPipeline{key: key, Vertex: vertex, Fragment: fragment}
	ro.Pipeline = pipeline
	if err := p.backend.CreateRenderPipeline(ro, state.Bindings); err != nil {
		p.releaseIfUnused(vertex)
		p.releaseIfUnused(fragment)
		return nil, fmt.Errorf("render: create render pipeline: %w", err)
	}
	p.renderPipelines[key] = pipeline
	slogger().Debug("render: render pipeline created", "key", key.String(), "pipelines", len(p.renderPipelines))
	return pipeline, nil
}

// needsRenderUpdate compares ro against the snapshot taken when its
// pipeline was assigned and refreshes the snapshot on mismatch.
func (p *Pipelines) needsRenderUpdate(ro *RenderObject, rec *renderPipelineRecord) bool {
	m := ro.Material
	format := p.backend.RenderFormat(ro)
	state := m.State()

	changed := rec.pipeline == nil ||
		rec.materialID != m.ID() ||
		rec.materialVersion != m.Version ||
		rec.state != state ||
		rec.stencilRef != m.StencilRef ||
		rec.format != format
	if changed {
		rec.materialID = m.ID()
		rec.materialVersion = m.Version
		rec.state = state
		rec.stencilRef = m.StencilRef
		rec.format = format
		return true
	}
	return p.backend.NeedsRenderUpdate(ro)
}

// GetForCompute returns the pipeline of node, rebuilding it when the
// node version changed. group is the node's bind group.
func (p *Pipelines) GetForCompute(node *core.ComputeNode, group *BindGroup) (*ComputePipeline, error) {
	rec := p.compute.Get(node)
	if rec.pipeline != nil && rec.version == node.Version {
		return rec.pipeline, nil
	}

	state, err := p.nodes.GetForCompute(node)
	if err != nil {
		return nil, err
	}
	if state.ComputeShader == "" {
		return nil, fmt.Errorf("render: compute pipeline for %q: %w", node.Name, ErrEmptyShader)
	}

	prev := rec.pipeline
	var prevProgram *ProgrammableStage
	if prev != nil {
		prev.usedTimes--
		prev.Compute.usedTimes--
		prevProgram = prev.Compute
	}

	pipeline, err := p.assignCompute(node, state.ComputeShader, group, prevProgram, prev)
	if err != nil {
		rec.pipeline = nil
		p.sweepCompute(prev, nil)
		return nil, err
	}

	pipeline.usedTimes++
	pipeline.Compute.usedTimes++
	rec.pipeline = pipeline
	rec.version = node.Version

	if prev != pipeline {
		p.sweepCompute(prev, pipeline)
	}
	return pipeline, nil
}

func (p *Pipelines) assignCompute(node *core.ComputeNode, code string, group *BindGroup, prevProgram *ProgrammableStage, prev *ComputePipeline) (*ComputePipeline, error) {
	program, err := p.program(StageCompute, code, node.Name, prevProgram)
	if err != nil {
		return nil, err
	}

	key := ComputePipelineKey{NodeID: node.ID(), ProgramID: program.ID()}
	if pipeline, ok := p.computePipelines[key]; ok {
		return pipeline, nil
	}

	if prev != nil && prev.usedTimes == 0 {
		p.releaseCompute(prev)
	}
	pipeline := &ComputePipeline{key: key, Compute: program}
	if err := p.backend.CreateComputePipeline(pipeline, group); err != nil {
		p.releaseIfUnused(program)
		return nil, fmt.Errorf("render: create compute pipeline: %w", err)
	}
	p.computePipelines[key] = pipeline
	slogger().Debug("render: compute pipeline created", "key", key.String())
	return pipeline, nil
}

// program returns the program compiled from code, creating it on a miss.
// A previous program nobody uses any more is released first.
func (p *Pipelines) program(stage Stage, code, name string, prev *ProgrammableStage) (*ProgrammableStage, error) {
	programs, err := p.programCache(stage)
	if err != nil {
		return nil, err
	}
	if prog, ok := programs[code]; ok {
		return prog, nil
	}

	if prev != nil && prev.usedTimes == 0 {
		p.releaseProgram(prev)
	}
	prog := newProgrammableStage(code, stage, name)
	if err := p.backend.CreateProgram(prog); err != nil {
		return nil, fmt.Errorf("render: create %s program: %w", stage, err)
	}
	programs[code] = prog
	slogger().Debug("render: program created", "stage", stage, "id", prog.ID(), "programs", len(programs))
	return prog, nil
}

func (p *Pipelines) programCache(stage Stage) (map[string]*ProgrammableStage, error) {
	programs, ok := p.programs[stage]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownStage, stage)
	}
	return programs, nil
}

// sweepRender releases whatever prev left behind at zero users that
// next does not reuse.
func (p *Pipelines) sweepRender(prev, next *RenderPipeline) {
	if prev == nil {
		return
	}
	if prev.usedTimes == 0 {
		p.releaseRender(prev)
	}
	if next == nil || prev.Vertex != next.Vertex {
		p.releaseIfUnused(prev.Vertex)
	}
	if next == nil || prev.Fragment != next.Fragment {
		p.releaseIfUnused(prev.Fragment)
	}
}

func (p *Pipelines) sweepCompute(prev, next *ComputePipeline) {
	if prev == nil {
		return
	}
	if prev.usedTimes == 0 {
		p.releaseCompute(prev)
	}
	if next == nil || prev.Compute != next.Compute {
		p.releaseIfUnused(prev.Compute)
	}
}

func (p *Pipelines) releaseIfUnused(prog *ProgrammableStage) {
	if prog.usedTimes == 0 {
		p.releaseProgram(prog)
	}
}

func (p *Pipelines) releaseRender(pipeline *RenderPipeline) {
	if p.renderPipelines[pipeline.key] != pipeline {
		return
	}
	delete(p.renderPipelines, pipeline.key)
	p.backend.DestroyPipeline(pipeline)
	slogger().Debug("render: render pipeline released", "key", pipeline.key.String())
}

func (p *Pipelines) releaseCompute(pipeline *ComputePipeline) {
	if p.computePipelines[pipeline.key] != pipeline {
		return
	}
	delete(p.computePipelines, pipeline.key)
	p.backend.DestroyPipeline(pipeline)
	slogger().Debug("render: compute pipeline released", "key", pipeline.key.String())
}

func (p *Pipelines) releaseProgram(prog *ProgrammableStage) {
	programs, err := p.programCache(prog.Stage)
	if err != nil {
		slogger().Error("render: release program", "error", err)
		return
	}
	if programs[prog.Code] != prog {
		return
	}
	delete(programs, prog.Code)
	p.backend.DestroyProgram(prog)
	slogger().Debug("render: program released", "stage", prog.Stage, "id", prog.ID())
}

// Get returns the pipeline currently assigned to ro, or nil.
func (p *Pipelines) Get(ro *RenderObject) *RenderPipeline {
	if rec, ok := p.render.Lookup(ro); ok {
		return rec.pipeline
	}
	return nil
}

// GetCompute returns the pipeline currently assigned to node, or nil.
func (p *Pipelines) GetCompute(node *core.ComputeNode) *ComputePipeline {
	if rec, ok := p.compute.Lookup(node); ok {
		return rec.pipeline
	}
	return nil
}

// UpdateForRender forces the next GetForRender of ro to re-run the
// update checks against a fresh snapshot.
func (p *Pipelines) UpdateForRender(ro *RenderObject) {
	if rec, ok := p.render.Lookup(ro); ok {
		rec.materialVersion = ^uint64(0)
	}
}

// Delete drops the pipeline reference of ro.
func (p *Pipelines) Delete(ro *RenderObject) {
	rec, ok := p.render.Delete(ro)
	if !ok || rec.pipeline == nil {
		return
	}
	pipeline := rec.pipeline
	ro.Pipeline = nil

	pipeline.usedTimes--
	if pipeline.usedTimes == 0 {
		p.releaseRender(pipeline)
	}
	pipeline.Vertex.usedTimes--
	pipeline.Fragment.usedTimes--
	p.releaseIfUnused(pipeline.Vertex)
	p.releaseIfUnused(pipeline.Fragment)
}

// DeleteCompute drops the pipeline reference of node.
func (p *Pipelines) DeleteCompute(node *core.ComputeNode) {
	rec, ok := p.compute.Delete(node)
	if !ok || rec.pipeline == nil {
		return
	}
	pipeline := rec.pipeline
	pipeline.usedTimes--
	if pipeline.usedTimes == 0 {
		p.releaseCompute(pipeline)
	}
	pipeline.Compute.usedTimes--
	p.releaseIfUnused(pipeline.Compute)
}

// Len returns the number of cached render and compute pipelines.
func (p *Pipelines) Len() (render, compute int) {
	return len(p.renderPipelines), len(p.computePipelines)
}

// Programs returns the number of cached programs of stage.
func (p *Pipelines) Programs(stage Stage) int {
	return len(p.programs[stage])
}

// Dispose destroys every cached pipeline and program and drops all
// records.
func (p *Pipelines) Dispose() {
	for _, pl := range p.renderPipelines {
		p.backend.DestroyPipeline(pl)
	}
	for _, pl := range p.computePipelines {
		p.backend.DestroyPipeline(pl)
	}
	for _, programs := range p.programs {
		for _, prog := range programs {
			p.backend.DestroyProgram(prog)
		}
	}
	p.render.Clear()
	p.compute.Clear()
	p.reset()
}
