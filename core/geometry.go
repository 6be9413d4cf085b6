package core

// DrawRange limits the elements drawn from a geometry.
// A negative Count draws to the end.
type DrawRange struct {
	Start int
	Count int
}

// Geometry is a set of named vertex attributes plus an optional index.
type Geometry struct {
	Disposer

	id         uint64
	attributes map[string]*Attribute
	order      []string

	// Index holds element indices, nil for non-indexed drawing.
	Index *Attribute

	// DrawRange limits the drawn elements.
	DrawRange DrawRange

	// InstanceCount is the number of instances drawn, at least 1.
	InstanceCount int

	// Label is an optional debug label.
	Label string
}

// NewGeometry creates an empty geometry.
func NewGeometry() *Geometry {
	return &Geometry{
		id:            NextID(),
		attributes:    make(map[string]*Attribute),
		DrawRange:     DrawRange{Count: -1},
		InstanceCount: 1,
	}
}

// ID returns the geometry id.
func (g *Geometry) ID() uint64 { return g.id }

// SetAttribute adds or replaces the attribute stored under name.
func (g *Geometry) SetAttribute(name string, a *Attribute) *Geometry {
	if _, ok := g.attributes[name]; !ok {
		g.order = append(g.order, name)
	}
	g.attributes[name] = a
	return g
}

// Attribute returns the attribute stored under name, or nil.
func (g *Geometry) Attribute(name string) *Attribute {
	return g.attributes[name]
}

// HasAttribute reports whether name is set.
func (g *Geometry) HasAttribute(name string) bool {
	_, ok := g.attributes[name]
	return ok
}

// DeleteAttribute removes the attribute stored under name.
func (g *Geometry) DeleteAttribute(name string) {
	if _, ok := g.attributes[name]; !ok {
		return
	}
	delete(g.attributes, name)
	for i, n := range g.order {
		if n == name {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

// Attributes returns the attributes in insertion order.
func (g *Geometry) Attributes() []*Attribute {
	out := make([]*Attribute, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.attributes[name])
	}
	return out
}

// SetIndex sets the index attribute.
func (g *Geometry) SetIndex(index *Attribute) *Geometry {
	g.Index = index
	return g
}

// ElementCount returns the number of indices, or vertices when the
// geometry is not indexed.
func (g *Geometry) ElementCount() int {
	if g.Index != nil {
		return g.Index.Count()
	}
	if pos := g.attributes["position"]; pos != nil {
		return pos.Count()
	}
	return 0
}

// DrawSpan resolves DrawRange against the element count.
func (g *Geometry) DrawSpan() (first, count int) {
	total := g.ElementCount()
	first = max(g.DrawRange.Start, 0)
	if first > total {
		return total, 0
	}
	count = total - first
	if g.DrawRange.Count >= 0 && g.DrawRange.Count < count {
		count = g.DrawRange.Count
	}
	return first, count
}
