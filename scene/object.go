package scene

import (
	"github.com/gogpu/g3d/core"
	"github.com/gogpu/gputypes"
)

// Kind selects what an Object draws.
type Kind int

const (
	KindGroup Kind = iota
	KindMesh
	KindPoints
	KindLine
	KindLineSegments
	KindLight
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "Group"
	case KindMesh:
		return "Mesh"
	case KindPoints:
		return "Points"
	case KindLine:
		return "Line"
	case KindLineSegments:
		return "LineSegments"
	case KindLight:
		return "Light"
	default:
		return "Unknown"
	}
}

// Object is a node of the scene graph.
type Object struct {
	id     uint64
	parent *Object

	Name    string
	Kind    Kind
	Visible bool

	// Matrix is the transform relative to the parent.
	Matrix Mat4

	// Geometry and Material are set for drawable kinds.
	Geometry *core.Geometry
	Material *core.Material

	// Light is set for KindLight.
	Light *Light

	// RenderOrder overrides sorting inside a render list bucket.
	RenderOrder int

	Children []*Object

	world Mat4
}

// NewGroup creates an empty group.
func NewGroup() *Object {
	return &Object{id: core.NextID(), Kind: KindGroup, Visible: true, Matrix: Identity(), world: Identity()}
}

// NewMesh creates a triangle mesh.
func NewMesh(g *core.Geometry, m *core.Material) *Object {
	o := NewGroup()
	o.Kind = KindMesh
	o.Geometry, o.Material = g, m
	return o
}

// NewPoints creates a point cloud.
func NewPoints(g *core.Geometry, m *core.Material) *Object {
	o := NewMesh(g, m)
	o.Kind = KindPoints
	return o
}

// NewLine creates a line strip.
func NewLine(g *core.Geometry, m *core.Material) *Object {
	o := NewMesh(g, m)
	o.Kind = KindLine
	return o
}

// NewLineSegments creates disjoint line segments.
func NewLineSegments(g *core.Geometry, m *core.Material) *Object {
	o := NewMesh(g, m)
	o.Kind = KindLineSegments
	return o
}

// ID returns the object id.
func (o *Object) ID() uint64 { return o.id }

// Parent returns the parent, or nil for a root.
func (o *Object) Parent() *Object { return o.parent }

// Add attaches children, detaching them from previous parents.
func (o *Object) Add(children ...*Object) *Object {
	for _, c := range children {
		if c == nil || c == o {
			continue
		}
		if c.parent != nil {
			c.parent.Remove(c)
		}
		c.parent = o
		o.Children = append(o.Children, c)
	}
	return o
}

// Remove detaches a child.
func (o *Object) Remove(child *Object) {
	for i, c := range o.Children {
		if c == child {
			o.Children = append(o.Children[:i], o.Children[i+1:]...)
			child.parent = nil
			return
		}
	}
}

// SetPosition sets the translation of the local matrix.
func (o *Object) SetPosition(x, y, z float32) {
	o.Matrix[12], o.Matrix[13], o.Matrix[14] = x, y, z
}

// World returns the world matrix computed by the last UpdateWorld.
func (o *Object) World() Mat4 { return o.world }

// UpdateWorld recomputes world matrices of o and its descendants.
func (o *Object) UpdateWorld(parent Mat4) {
	o.world = parent.Mul(o.Matrix)
	for _, c := range o.Children {
		c.UpdateWorld(o.world)
	}
}

// Drawable reports whether the object issues draw calls.
func (o *Object) Drawable() bool {
	switch o.Kind {
	case KindMesh, KindPoints, KindLine, KindLineSegments:
		return o.Geometry != nil && o.Material != nil
	default:
		return false
	}
}

// IsMesh reports whether the object draws triangles.
func (o *Object) IsMesh() bool { return o.Kind == KindMesh }

// Topology returns the primitive topology for the object and material.
func (o *Object) Topology() gputypes.PrimitiveTopology {
	switch o.Kind {
	case KindPoints:
		return gputypes.PrimitiveTopologyPointList
	case KindLine:
		return gputypes.PrimitiveTopologyLineStrip
	case KindLineSegments:
		return gputypes.PrimitiveTopologyLineList
	}
	if o.Material != nil && o.Material.Wireframe {
		return gputypes.PrimitiveTopologyLineList
	}
	return gputypes.PrimitiveTopologyTriangleList
}

// Traverse calls fn for o and every visible descendant, depth first.
// Invisible subtrees are skipped.
func (o *Object) Traverse(fn func(*Object)) {
	if !o.Visible {
		return
	}
	fn(o)
	for _, c := range o.Children {
		c.Traverse(fn)
	}
}
