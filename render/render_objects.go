package render

import (
	"runtime"
	"sync"
	"weak"

	"github.com/gogpu/g3d/cache"
	"github.com/gogpu/g3d/core"
	"github.com/gogpu/g3d/scene"
)

// DefaultPass is the pass id used when none is given.
const DefaultPass = "default"

type renderObjectRecord struct {
	cacheKey string
}

// idKey is a chain key element that carries only an id, so chain entries
// never reference the entities they are keyed by.
type idKey uint64

func (k idKey) ID() uint64 { return uint64(k) }

// RenderObjects hands out one RenderObject per (object, material,
// context, lights) tuple and pass, and replaces it when its cache key
// goes stale.
type RenderObjects struct {
	nodes      *Nodes
	geometries *Geometries
	pipelines  *Pipelines
	bindings   *Bindings
	info       *Info

	chains  map[string]*cache.ChainMap[*RenderObject]
	records *cache.IdentityMap[RenderObject, renderObjectRecord]

	// collected holds render objects whose drawable was garbage
	// collected. Cleanups run on a runtime goroutine, so they only queue;
	// Collect disposes on the caller's goroutine.
	mu        sync.Mutex
	collected []*RenderObject
}

// NewRenderObjects creates a render object cache.
func NewRenderObjects(nodes *Nodes, geometries *Geometries, pipelines *Pipelines, bindings *Bindings, info *Info) *RenderObjects {
	return &RenderObjects{
		nodes:      nodes,
		geometries: geometries,
		pipelines:  pipelines,
		bindings:   bindings,
		info:       info,
		chains:     make(map[string]*cache.ChainMap[*RenderObject]),
		records:    cache.NewIdentityMap[RenderObject, renderObjectRecord](),
	}
}

func chainKey(obj *scene.Object, mat *core.Material, rc *RenderContext, lights *scene.Lights) []cache.Identity {
	var lightsID uint64
	if lights != nil {
		lightsID = lights.ID()
	}
	return []cache.Identity{idKey(obj.ID()), idKey(mat.ID()), idKey(rc.ID()), idKey(lightsID)}
}

func (r *RenderObjects) chain(passID string) *cache.ChainMap[*RenderObject] {
	c, ok := r.chains[passID]
	if !ok {
		c = cache.NewChainMap[*RenderObject]()
		r.chains[passID] = c
	}
	return c
}

// Get returns the render object for the tuple. A cached object whose
// cache key changed is disposed and replaced by a new one. Get also makes
// cam the current camera of rc.
func (r *RenderObjects) Get(obj *scene.Object, mat *core.Material, scn *scene.Scene, cam *scene.Camera, lights *scene.Lights, rc *RenderContext, passID string) (*RenderObject, error) {
	if passID == "" {
		passID = DefaultPass
	}
	rc.SetCamera(cam)
	chain := r.chain(passID)
	keys := chainKey(obj, mat, rc, lights)

	ro, ok := chain.Get(keys)
	if !ok {
		ro = r.create(obj, mat, scn, cam, lights, rc, passID, keys)
		chain.Set(keys, ro)
		return ro, nil
	}

	ro.setFrame(scn, cam)
	rec := r.records.Get(ro)
	if key := ro.CacheKey(); key != rec.cacheKey {
		slogger().Debug("render: render object invalidated", "id", ro.ID(), "pass", passID)
		ro.Dispose()
		return r.Get(obj, mat, scn, cam, lights, rc, passID)
	}
	return ro, nil
}

func (r *RenderObjects) create(obj *scene.Object, mat *core.Material, scn *scene.Scene, cam *scene.Camera, lights *scene.Lights, rc *RenderContext, passID string, keys []cache.Identity) *RenderObject {
	ro := &RenderObject{
		id:         core.NextID(),
		nodes:      r.nodes,
		geometries: r.geometries,
		object:     weak.Make(obj),
		scn:        weak.Make(scn),
		camera:     weak.Make(cam),
		lights:     weak.Make(lights),
		Material:   mat,
		Context:    rc,
		PassID:     passID,
		Geometry:   obj.Geometry,
		chainKey:   keys,
	}
	r.records.Get(ro).cacheKey = ro.CacheKey()
	ro.cleanup = runtime.AddCleanup(obj, r.release, ro)

	removeMaterialListener := mat.OnDispose(ro.Dispose)
	ro.onDispose = func() {
		ro.cleanup.Stop()
		r.records.Delete(ro)
		r.pipelines.Delete(ro)
		r.bindings.Delete(ro)
		r.nodes.Delete(ro)
		if c, ok := r.chains[passID]; ok {
			if cur, ok := c.Get(keys); ok && cur == ro {
				c.Delete(keys)
			}
		}
		removeMaterialListener()
	}
	slogger().Debug("render: render object created", "id", ro.ID(), "material", mat.Name, "pass", passID)
	return ro
}

// release queues ro after its drawable was collected.
func (r *RenderObjects) release(ro *RenderObject) {
	r.mu.Lock()
	r.collected = append(r.collected, ro)
	r.mu.Unlock()
}

// Collect disposes the render objects whose drawable has been garbage
// collected and returns how many it disposed. The frame driver calls it
// once per render call.
func (r *RenderObjects) Collect() int {
	r.mu.Lock()
	dead := r.collected
	r.collected = nil
	r.mu.Unlock()

	n := 0
	for _, ro := range dead {
		if !ro.disposed {
			ro.Dispose()
			n++
		}
	}
	if n > 0 {
		slogger().Debug("render: collected render objects", "count", n)
	}
	return n
}

// Len returns the number of live render objects across passes.
func (r *RenderObjects) Len() int {
	n := 0
	for _, c := range r.chains {
		n += c.Len()
	}
	return n
}

// Dispose disposes every live render object.
func (r *RenderObjects) Dispose() {
	var all []*RenderObject
	for _, c := range r.chains {
		c.Range(func(ro *RenderObject) bool {
			all = append(all, ro)
			return true
		})
	}
	for _, ro := range all {
		ro.Dispose()
	}
	r.chains = make(map[string]*cache.ChainMap[*RenderObject])

	r.mu.Lock()
	r.collected = nil
	r.mu.Unlock()
}
