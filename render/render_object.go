package render

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"weak"

	"github.com/gogpu/g3d/cache"
	"github.com/gogpu/g3d/core"
	"github.com/gogpu/g3d/scene"
	"github.com/gogpu/gputypes"
)

// RenderObject binds one drawable to one render pass. It is created and
// owned by RenderObjects.
//
// The drawable, scene, camera and lights are held weakly: a render object
// never keeps them alive. Once the drawable is collected the render
// object is disposed by RenderObjects.Collect.
type RenderObject struct {
	id uint64

	nodes      *Nodes
	geometries *Geometries

	object weak.Pointer[scene.Object]
	scn    weak.Pointer[scene.Scene]
	camera weak.Pointer[scene.Camera]
	lights weak.Pointer[scene.Lights]

	Material *core.Material
	Context  *RenderContext
	PassID   string

	// Geometry is the geometry the object had when ro was created.
	Geometry *core.Geometry

	// Pipeline is assigned by Pipelines; ro does not own it.
	Pipeline *RenderPipeline

	attributes    []*core.Attribute
	locations     []uint32
	vertexBuffers []*core.Buffer

	chainKey []cache.Identity
	cleanup  runtime.Cleanup

	onDispose func()
	disposed  bool
}

// ID returns the render object id.
func (ro *RenderObject) ID() uint64 { return ro.id }

// Object returns the drawable, or nil once it has been collected.
func (ro *RenderObject) Object() *scene.Object { return ro.object.Value() }

// Scene returns the scene of the latest Get, or nil once collected.
func (ro *RenderObject) Scene() *scene.Scene { return ro.scn.Value() }

// Camera returns the camera of the latest Get, or nil once collected.
func (ro *RenderObject) Camera() *scene.Camera { return ro.camera.Value() }

// Lights returns the light set ro was created with, or nil.
func (ro *RenderObject) Lights() *scene.Lights { return ro.lights.Value() }

// setFrame records the scene and camera ro is drawn with.
func (ro *RenderObject) setFrame(scn *scene.Scene, cam *scene.Camera) {
	if ro.Scene() != scn {
		ro.scn = weak.Make(scn)
	}
	if ro.Camera() != cam {
		ro.camera = weak.Make(cam)
	}
}

// NodeBuilderState returns the shaders and bindings built for ro.
func (ro *RenderObject) NodeBuilderState() (*NodeBuilderState, error) {
	if ro.disposed {
		return nil, ErrDisposed
	}
	return ro.nodes.GetForRender(ro)
}

// Bindings returns the bind group built for ro.
func (ro *RenderObject) Bindings() (*BindGroup, error) {
	state, err := ro.NodeBuilderState()
	if err != nil {
		return nil, err
	}
	return state.Bindings, nil
}

// Attributes returns the geometry attributes the vertex stage reads, in
// shader location order. Attributes the geometry lacks are skipped.
func (ro *RenderObject) Attributes() ([]*core.Attribute, error) {
	if ro.attributes != nil {
		return ro.attributes, nil
	}
	state, err := ro.NodeBuilderState()
	if err != nil {
		return nil, err
	}
	attrs := make([]*core.Attribute, 0, len(state.Attributes))
	locations := make([]uint32, 0, len(state.Attributes))
	for i, name := range state.Attributes {
		if a := ro.Geometry.Attribute(name); a != nil {
			attrs = append(attrs, a)
			locations = append(locations, uint32(i))
		}
	}
	ro.attributes, ro.locations = attrs, locations
	return attrs, nil
}

// VertexBuffers returns the distinct buffers behind Attributes.
// Interleaved attributes collapse to their shared buffer.
func (ro *RenderObject) VertexBuffers() ([]*core.Buffer, error) {
	if ro.vertexBuffers != nil {
		return ro.vertexBuffers, nil
	}
	attrs, err := ro.Attributes()
	if err != nil {
		return nil, err
	}
	buffers := make([]*core.Buffer, 0, len(attrs))
	seen := make(map[*core.Buffer]bool, len(attrs))
	for _, a := range attrs {
		if !seen[a.Buffer] {
			seen[a.Buffer] = true
			buffers = append(buffers, a.Buffer)
		}
	}
	ro.vertexBuffers = buffers
	return buffers, nil
}

// VertexLayouts returns one layout per vertex buffer, in VertexBuffers
// order.
func (ro *RenderObject) VertexLayouts() ([]gputypes.VertexBufferLayout, error) {
	buffers, err := ro.VertexBuffers()
	if err != nil {
		return nil, err
	}
	layouts := make([]gputypes.VertexBufferLayout, len(buffers))
	slot := make(map[*core.Buffer]int, len(buffers))
	for i, b := range buffers {
		slot[b] = i
		layouts[i] = gputypes.VertexBufferLayout{ArrayStride: uint64(b.Stride), StepMode: gputypes.VertexStepModeVertex}
	}
	for i, a := range ro.attributes {
		l := &layouts[slot[a.Buffer]]
		if a.Instanced {
			l.StepMode = gputypes.VertexStepModeInstance
		}
		l.Attributes = append(l.Attributes, gputypes.VertexAttribute{
			Format:         a.Format,
			Offset:         uint64(a.Offset),
			ShaderLocation: ro.locations[i],
		})
	}
	return layouts, nil
}

// Index returns the index attribute ro draws with, or nil.
func (ro *RenderObject) Index() *core.Attribute {
	return ro.geometries.Index(ro)
}

// DrawParams resolves the draw range. With an index, first and count
// address indices; otherwise vertices.
func (ro *RenderObject) DrawParams() (first, count, instances int, indexed bool) {
	geo := ro.Geometry
	instances = max(geo.InstanceCount, 1)
	index := ro.Index()
	if index == nil || index == geo.Index {
		first, count = geo.DrawSpan()
		return first, count, instances, index != nil
	}
	// Wireframe indices cover every edge of the drawn triangles.
	first, count = geo.DrawSpan()
	first, count = first*2, count*2
	if total := index.Count(); first+count > total {
		count = max(total-first, 0)
	}
	return first, count, instances, true
}

// CacheKey derives the key that decides whether ro is still valid: the
// material program key and version, the geometry layout and the
// scene-level shader inputs. The camera is not part of it; camera
// uniforms follow the render context.
func (ro *RenderObject) CacheKey() string {
	var b strings.Builder
	b.WriteString(ro.Material.CacheKey())

	obj := ro.Object()
	if obj == nil {
		return b.String()
	}
	geo := obj.Geometry
	b.WriteString(";geo:")
	if geo != nil {
		b.WriteString(strconv.FormatUint(geo.ID(), 10))
		for _, a := range geo.Attributes() {
			fmt.Fprintf(&b, ",%s:%d", a.Name, a.Format)
		}
		if geo.Index != nil {
			b.WriteString(",index")
		}
	}
	fmt.Fprintf(&b, ";obj:%s;out:%s", obj.Kind, ro.Context.ColorSpace)
	if scn := ro.Scene(); scn != nil {
		if key := ro.nodes.CacheKey(scn, ro.Lights()); key != "" {
			b.WriteByte(';')
			b.WriteString(key)
		}
	}
	return b.String()
}

// ChainKey returns the identities ro is stored under.
func (ro *RenderObject) ChainKey() []cache.Identity {
	return ro.chainKey
}

// Disposed reports whether Dispose ran.
func (ro *RenderObject) Disposed() bool { return ro.disposed }

// Dispose releases everything the caches hold for ro. Calling it again
// is a no-op.
func (ro *RenderObject) Dispose() {
	if ro.disposed {
		return
	}
	ro.disposed = true
	if ro.onDispose != nil {
		ro.onDispose()
	}
}
