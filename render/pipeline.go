package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/g3d/core"
)

// Stage is a programmable pipeline stage.
type Stage int

const (
	StageVertex Stage = iota + 1
	StageFragment
	StageCompute
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	default:
		return "Stage(" + strconv.Itoa(int(s)) + ")"
	}
}

// ProgrammableStage is a compiled shader module. Programs are shared by
// every pipeline whose stage source is identical.
type ProgrammableStage struct {
	id uint64

	Stage      Stage
	Code       string
	EntryPoint string

	// Name is a debug label taken from the first material that used it.
	Name string

	usedTimes int
}

func newProgrammableStage(code string, stage Stage, name string) *ProgrammableStage {
	return &ProgrammableStage{id: core.NextID(), Stage: stage, Code: code, EntryPoint: "main", Name: name}
}

// ID returns the program id.
func (p *ProgrammableStage) ID() uint64 { return p.id }

// UsedTimes returns the number of pipeline users holding the program.
func (p *ProgrammableStage) UsedTimes() int { return p.usedTimes }

// Pipeline is a render or compute pipeline shared by reference count.
type Pipeline interface {
	UsedTimes() int
	String() string
}

// RenderPipelineKey identifies a render pipeline. It is comparable, so
// two keys are equal exactly when every field is.
type RenderPipelineKey struct {
	VertexProgram   uint64
	FragmentProgram uint64
	State           core.RenderState
	Format          RenderFormat
}

// String renders the key as comma-joined fields for logs.
func (k RenderPipelineKey) String() string {
	s := k.State
	fields := []any{
		k.VertexProgram, k.FragmentProgram,
		s.Transparent, int(s.Blending), s.PremultipliedAlpha,
		s.BlendSrc, s.BlendDst, s.BlendEquation,
		s.BlendSrcAlpha, s.BlendDstAlpha, s.BlendEquationAlpha,
		s.ColorWrite, s.DepthWrite, s.DepthTest, s.DepthFunc,
		s.StencilWrite, s.StencilFunc, s.StencilFail, s.StencilZFail, s.StencilZPass,
		s.StencilFuncMask, s.StencilWriteMask,
		int(s.Side), s.AlphaToCoverage,
	}
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprint(&b, f)
	}
	b.WriteByte(',')
	b.WriteString(k.Format.String())
	return b.String()
}

// RenderPipeline is a compiled render pipeline.
type RenderPipeline struct {
	key       RenderPipelineKey
	Vertex    *ProgrammableStage
	Fragment  *ProgrammableStage
	usedTimes int
}

// Key returns the cache key.
func (p *RenderPipeline) Key() RenderPipelineKey { return p.key }

// UsedTimes returns the number of render objects holding the pipeline.
func (p *RenderPipeline) UsedTimes() int { return p.usedTimes }

func (p *RenderPipeline) String() string { return "render:" + p.key.String() }

// ComputePipelineKey identifies a compute pipeline.
type ComputePipelineKey struct {
	NodeID    uint64
	ProgramID uint64
}

// String renders the key for logs.
func (k ComputePipelineKey) String() string {
	return "compute" + strconv.FormatUint(k.NodeID, 10) + "," + strconv.FormatUint(k.ProgramID, 10)
}

// ComputePipeline is a compiled compute pipeline.
type ComputePipeline struct {
	key       ComputePipelineKey
	Compute   *ProgrammableStage
	usedTimes int
}

// Key returns the cache key.
func (p *ComputePipeline) Key() ComputePipelineKey { return p.key }

// UsedTimes returns the number of compute nodes holding the pipeline.
func (p *ComputePipeline) UsedTimes() int { return p.usedTimes }

func (p *ComputePipeline) String() string { return p.key.String() }
