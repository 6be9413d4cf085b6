package core

import (
	"strconv"
	"strings"

	"github.com/gogpu/gputypes"
)

// Blending selects a predefined blend equation.
type Blending int

const (
	NoBlending Blending = iota
	NormalBlending
	AdditiveBlending
	SubtractiveBlending
	MultiplyBlending
	CustomBlending
)

// String returns the blending name.
func (b Blending) String() string {
	switch b {
	case NoBlending:
		return "None"
	case NormalBlending:
		return "Normal"
	case AdditiveBlending:
		return "Additive"
	case SubtractiveBlending:
		return "Subtractive"
	case MultiplyBlending:
		return "Multiply"
	case CustomBlending:
		return "Custom"
	default:
		return "Unknown(" + strconv.Itoa(int(b)) + ")"
	}
}

// Side selects which faces are rendered.
type Side int

const (
	FrontSide Side = iota
	BackSide
	DoubleSide
)

// String returns the side name.
func (s Side) String() string {
	switch s {
	case FrontSide:
		return "Front"
	case BackSide:
		return "Back"
	case DoubleSide:
		return "Double"
	default:
		return "Unknown"
	}
}

// MaterialKind selects the shading model.
type MaterialKind int

const (
	// MaterialBasic is unlit: color times optional map.
	MaterialBasic MaterialKind = iota
	// MaterialLambert is diffuse-lit by the scene lights.
	MaterialLambert
	// MaterialNormal visualizes view-space normals.
	MaterialNormal
)

// String returns the kind name.
func (k MaterialKind) String() string {
	switch k {
	case MaterialBasic:
		return "Basic"
	case MaterialLambert:
		return "Lambert"
	case MaterialNormal:
		return "Normal"
	default:
		return "Unknown(" + strconv.Itoa(int(k)) + ")"
	}
}

// RenderState is every material flag baked into a GPU pipeline.
// It is comparable, so a snapshot can be checked with ==.
type RenderState struct {
	Transparent        bool
	Blending           Blending
	PremultipliedAlpha bool

	BlendSrc           gputypes.BlendFactor
	BlendDst           gputypes.BlendFactor
	BlendEquation      gputypes.BlendOperation
	BlendSrcAlpha      gputypes.BlendFactor
	BlendDstAlpha      gputypes.BlendFactor
	BlendEquationAlpha gputypes.BlendOperation

	ColorWrite bool
	DepthWrite bool
	DepthTest  bool
	DepthFunc  gputypes.CompareFunction

	StencilWrite     bool
	StencilFunc      gputypes.CompareFunction
	StencilFail      gputypes.StencilOperation
	StencilZFail     gputypes.StencilOperation
	StencilZPass     gputypes.StencilOperation
	StencilFuncMask  uint32
	StencilWriteMask uint32

	Side            Side
	AlphaToCoverage bool
}

// DefaultRenderState returns opaque, depth-tested, front-face state with
// normal blending prepared for when Transparent is set.
func DefaultRenderState() RenderState {
	return RenderState{
		Blending:         NormalBlending,
		BlendSrc:         gputypes.BlendFactorSrcAlpha,
		BlendDst:         gputypes.BlendFactorOneMinusSrcAlpha,
		BlendEquation:    gputypes.BlendOperationAdd,
		ColorWrite:       true,
		DepthWrite:       true,
		DepthTest:        true,
		DepthFunc:        gputypes.CompareFunctionLessEqual,
		StencilFunc:      gputypes.CompareFunctionAlways,
		StencilFail:      gputypes.StencilOperationKeep,
		StencilZFail:     gputypes.StencilOperationKeep,
		StencilZPass:     gputypes.StencilOperationKeep,
		StencilFuncMask:  0xff,
		StencilWriteMask: 0xff,
		Side:             FrontSide,
	}
}

// Blend returns the blend state for the material. It returns nil when
// blending is disabled, and ok is false for an unknown blending mode.
func (s RenderState) Blend() (state *gputypes.BlendState, ok bool) {
	if !s.Transparent || s.Blending == NoBlending {
		return nil, true
	}
	comp := func(src, dst gputypes.BlendFactor) gputypes.BlendComponent {
		return gputypes.BlendComponent{SrcFactor: src, DstFactor: dst, Operation: gputypes.BlendOperationAdd}
	}
	set := func(srcRGB, dstRGB, srcA, dstA gputypes.BlendFactor) *gputypes.BlendState {
		return &gputypes.BlendState{Color: comp(srcRGB, dstRGB), Alpha: comp(srcA, dstA)}
	}

	const (
		zero        = gputypes.BlendFactorZero
		one         = gputypes.BlendFactorOne
		src         = gputypes.BlendFactorSrc
		oneMinusSrc = gputypes.BlendFactorOneMinusSrc
		srcAlpha    = gputypes.BlendFactorSrcAlpha
		oneMinusSA  = gputypes.BlendFactorOneMinusSrcAlpha
	)

	if s.Blending == CustomBlending {
		srcA, dstA, opA := s.BlendSrcAlpha, s.BlendDstAlpha, s.BlendEquationAlpha
		if srcA == gputypes.BlendFactorUndefined {
			srcA = one
		}
		if dstA == gputypes.BlendFactorUndefined {
			dstA = zero
		}
		if opA == gputypes.BlendOperationUndefined {
			opA = gputypes.BlendOperationAdd
		}
		return &gputypes.BlendState{
			Color: gputypes.BlendComponent{SrcFactor: s.BlendSrc, DstFactor: s.BlendDst, Operation: s.BlendEquation},
			Alpha: gputypes.BlendComponent{SrcFactor: srcA, DstFactor: dstA, Operation: opA},
		}, true
	}

	if s.PremultipliedAlpha {
		switch s.Blending {
		case NormalBlending:
			return set(one, oneMinusSA, one, oneMinusSA), true
		case AdditiveBlending:
			return set(one, one, one, one), true
		case SubtractiveBlending:
			return set(zero, oneMinusSrc, zero, one), true
		case MultiplyBlending:
			return set(zero, src, zero, srcAlpha), true
		}
		return nil, false
	}
	switch s.Blending {
	case NormalBlending:
		return set(srcAlpha, oneMinusSA, one, oneMinusSA), true
	case AdditiveBlending:
		return set(srcAlpha, one, srcAlpha, one), true
	case SubtractiveBlending:
		return set(zero, oneMinusSrc, zero, one), true
	case MultiplyBlending:
		return set(zero, src, zero, src), true
	}
	return nil, false
}

// CullMode maps Side to the rasterizer cull mode.
func (s RenderState) CullMode() gputypes.CullMode {
	switch s.Side {
	case BackSide:
		return gputypes.CullModeFront
	case DoubleSide:
		return gputypes.CullModeNone
	default:
		return gputypes.CullModeBack
	}
}

// WriteMask maps ColorWrite to a color write mask.
func (s RenderState) WriteMask() gputypes.ColorWriteMask {
	if s.ColorWrite {
		return gputypes.ColorWriteMaskAll
	}
	return gputypes.ColorWriteMaskNone
}

// Material describes how a surface is shaded and blended.
type Material struct {
	Disposer
	RenderState

	id uint64

	// Name is an optional debug label.
	Name string

	Kind MaterialKind

	// Color is the base color; alpha is multiplied by Opacity.
	Color   gputypes.Color
	Opacity float64

	// Map is an optional color texture.
	Map *Texture

	// VertexColors multiplies the color by the "color" attribute.
	VertexColors bool

	// Wireframe draws triangle edges as lines.
	Wireframe bool

	Visible bool

	// StencilRef is the dynamic stencil reference value.
	StencilRef uint32

	// ProgramKey distinguishes materials whose shaders differ in ways the
	// other fields do not capture.
	ProgramKey string

	// Version is bumped by NeedsUpdate.
	Version uint64
}

// NewMaterial creates a material of the given kind with default state.
func NewMaterial(kind MaterialKind) *Material {
	return &Material{
		RenderState: DefaultRenderState(),
		id:          NextID(),
		Kind:        kind,
		Color:       gputypes.Color{R: 1, G: 1, B: 1, A: 1},
		Opacity:     1,
		Visible:     true,
	}
}

// ID returns the material id.
func (m *Material) ID() uint64 { return m.id }

// NeedsUpdate marks the material dirty.
func (m *Material) NeedsUpdate() { m.Version++ }

// State returns a snapshot of the pipeline-relevant flags.
func (m *Material) State() RenderState { return m.RenderState }

// CacheKey identifies the shader program the material needs together with
// its version. Materials with equal keys can share render objects.
func (m *Material) CacheKey() string {
	var b strings.Builder
	b.WriteString(m.Kind.String())
	b.WriteByte(',')
	b.WriteString(strconv.FormatUint(m.Version, 10))
	b.WriteByte(',')
	b.WriteString(strconv.FormatBool(m.Map != nil))
	b.WriteByte(',')
	b.WriteString(strconv.FormatBool(m.VertexColors))
	b.WriteByte(',')
	b.WriteString(strconv.FormatBool(m.Wireframe))
	b.WriteByte(',')
	b.WriteString(strconv.FormatBool(m.Transparent))
	b.WriteByte(',')
	b.WriteString(m.Blending.String())
	b.WriteByte(',')
	b.WriteString(m.Side.String())
	if m.ProgramKey != "" {
		b.WriteByte(',')
		b.WriteString(m.ProgramKey)
	}
	return b.String()
}
