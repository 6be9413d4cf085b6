package render

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/g3d/cache"
	"github.com/gogpu/g3d/core"
	"github.com/gogpu/gputypes"
)

type geometryRecord struct {
	initialized bool

	// wireframe is the line index generated for wireframe materials and
	// the index version it was generated from.
	wireframe        *core.Attribute
	wireframeVersion uint64
	wireframeSource  *core.Buffer
}

// Geometries keeps the attributes of every drawn geometry on the GPU.
type Geometries struct {
	attributes *Attributes
	info       *Info

	records *cache.IdentityMap[core.Geometry, geometryRecord]

	// calls stamps each buffer with the render call that last synced it,
	// so a buffer shared by many objects is checked once per call.
	calls *cache.IdentityMap[core.Buffer, uint64]
}

// NewGeometries creates a geometry cache.
func NewGeometries(attributes *Attributes, info *Info) *Geometries {
	return &Geometries{
		attributes: attributes,
		info:       info,
		records:    cache.NewIdentityMap[core.Geometry, geometryRecord](),
		calls:      cache.NewIdentityMap[core.Buffer, uint64](),
	}
}

// Has reports whether geo has been initialized.
func (g *Geometries) Has(geo *core.Geometry) bool {
	rec, ok := g.records.Lookup(geo)
	return ok && rec.initialized
}

// UpdateForRender uploads the vertex attributes and index ro draws with.
func (g *Geometries) UpdateForRender(ro *RenderObject) error {
	geo := ro.Geometry
	if !g.Has(geo) {
		g.initGeometry(geo)
	}

	attrs, err := ro.Attributes()
	if err != nil {
		return err
	}
	for _, attr := range attrs {
		if err := g.updateAttribute(attr, AttributeVertex); err != nil {
			return err
		}
	}
	if index := g.Index(ro); index != nil {
		if err := g.updateAttribute(index, AttributeIndex); err != nil {
			return err
		}
	}
	return nil
}

func (g *Geometries) updateAttribute(attr *core.Attribute, kind AttributeKind) error {
	call := g.calls.Get(attr.Buffer)
	if *call == g.info.Calls && g.attributes.Get(attr) != nil {
		return nil
	}
	if err := g.attributes.Update(attr, kind); err != nil {
		return err
	}
	*call = g.info.Calls
	return nil
}

func (g *Geometries) initGeometry(geo *core.Geometry) {
	rec := g.records.Get(geo)
	rec.initialized = true
	g.info.Memory.Geometries++

	var remove func()
	remove = geo.OnDispose(func() {
		remove()
		g.destroyGeometry(geo)
	})
}

func (g *Geometries) destroyGeometry(geo *core.Geometry) {
	rec, ok := g.records.Delete(geo)
	if !ok {
		return
	}
	for _, attr := range geo.Attributes() {
		g.deleteAttribute(attr)
	}
	if geo.Index != nil {
		g.deleteAttribute(geo.Index)
	}
	if rec.wireframe != nil {
		g.deleteAttribute(rec.wireframe)
	}
	g.info.Memory.Geometries--
}

func (g *Geometries) deleteAttribute(attr *core.Attribute) {
	g.attributes.Delete(attr)
	g.calls.Delete(attr.Buffer)
}

// Index returns the index ro draws with. Wireframe meshes get a
// generated line-list index covering every triangle edge.
func (g *Geometries) Index(ro *RenderObject) *core.Attribute {
	geo := ro.Geometry
	if obj := ro.Object(); ro.Material == nil || !ro.Material.Wireframe || obj == nil || !obj.IsMesh() {
		return geo.Index
	}
	rec := g.records.Get(geo)
	source, version := sourceOf(geo)
	if rec.wireframe == nil || rec.wireframeSource != source || rec.wireframeVersion != version {
		if rec.wireframe != nil {
			g.deleteAttribute(rec.wireframe)
		}
		rec.wireframe = wireframeIndex(geo)
		rec.wireframeSource = source
		rec.wireframeVersion = version
	}
	return rec.wireframe
}

func sourceOf(geo *core.Geometry) (*core.Buffer, uint64) {
	if geo.Index != nil {
		return geo.Index.Buffer, geo.Index.Version()
	}
	if pos := geo.Attribute("position"); pos != nil {
		return pos.Buffer, pos.Version()
	}
	return nil, 0
}

func wireframeIndex(geo *core.Geometry) *core.Attribute {
	var tri []uint32
	if geo.Index != nil {
		tri = indexValues(geo.Index)
	} else {
		n := geo.ElementCount()
		tri = make([]uint32, n)
		for i := range tri {
			tri[i] = uint32(i)
		}
	}
	lines := make([]uint32, 0, len(tri)*2)
	for i := 0; i+2 < len(tri); i += 3 {
		a, b, c := tri[i], tri[i+1], tri[i+2]
		lines = append(lines, a, b, b, c, c, a)
	}
	w := core.NewIndexAttribute(lines)
	w.Name = fmt.Sprintf("wireframe:%d", geo.ID())
	return w
}

func indexValues(index *core.Attribute) []uint32 {
	data := index.Buffer.Data
	if index.IndexFormat == gputypes.IndexFormatUint16 {
		out := make([]uint32, len(data)/2)
		for i := range out {
			out[i] = uint32(binary.LittleEndian.Uint16(data[2*i:]))
		}
		return out
	}
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[4*i:])
	}
	return out
}
