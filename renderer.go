package g3d

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/g3d/backend"
	"github.com/gogpu/g3d/cache"
	"github.com/gogpu/g3d/core"
	"github.com/gogpu/g3d/render"
	"github.com/gogpu/g3d/scene"
	"github.com/gogpu/g3d/shader"
)

// Pass ids of the two draws of a double-sided transparent material.
const (
	passBackSide = "backSide"
	passDefault  = render.DefaultPass
)

// Sentinel errors returned by Renderer.
var (
	// ErrNoBackend is returned by Init when no backend was given and none
	// is registered.
	ErrNoBackend = errors.New("g3d: no backend available")

	// ErrDisposed is returned after Dispose.
	ErrDisposed = errors.New("g3d: renderer disposed")

	// ErrNilScene is returned by Render without a scene or camera.
	ErrNilScene = errors.New("g3d: nil scene or camera")
)

type lightsRecord struct {
	lights *scene.Lights
}

type computeRecord struct {
	watched bool
}

// Renderer draws scenes and runs compute nodes. It owns the resource
// caches and drives them once per frame.
//
// A Renderer is not safe for concurrent use; call it from the goroutine
// that drives frames.
type Renderer struct {
	cfg     config
	backend render.Backend
	builder render.ShaderBuilder
	info    *render.Info

	nodes         *render.Nodes
	attributes    *render.Attributes
	geometries    *render.Geometries
	textures      *render.Textures
	pipelines     *render.Pipelines
	bindings      *render.Bindings
	renderObjects *render.RenderObjects

	list   renderList
	output *render.RenderContext
	target *core.RenderTarget

	// targets holds one render context per render target, so render
	// objects drawn into a target keep their identity across frames.
	targets map[*core.RenderTarget]*render.RenderContext

	lights  *cache.IdentityMap[scene.Scene, lightsRecord]
	compute *cache.IdentityMap[core.ComputeNode, computeRecord]

	initialized bool
	disposed    bool
}

// New creates a renderer. The backend is initialized by Init or lazily
// by the first Render or Compute.
func New(opts ...Option) *Renderer {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	r := &Renderer{
		cfg:     cfg,
		info:    render.NewInfo(),
		targets: make(map[*core.RenderTarget]*render.RenderContext),
		lights:  cache.NewIdentityMap[scene.Scene, lightsRecord](),
		compute: cache.NewIdentityMap[core.ComputeNode, computeRecord](),
	}
	r.output = render.NewRenderContext()
	r.output.ColorFormat = cfg.colorFormat
	r.output.DepthFormat = cfg.depthFormat
	r.output.SampleCount = cfg.sampleCount
	r.output.Width, r.output.Height = cfg.width, cfg.height
	return r
}

// Init acquires the backend device and builds the caches. It runs once;
// later calls return nil.
func (r *Renderer) Init(ctx context.Context) error {
	if r.disposed {
		return ErrDisposed
	}
	if r.initialized {
		return nil
	}

	b := r.cfg.backend
	if b == nil {
		b = backend.Default()
		if b == nil {
			return ErrNoBackend
		}
		Logger().Debug("g3d: using default backend", "name", backend.DefaultName())
	}
	trackBackend(b)
	if err := b.Init(ctx); err != nil {
		untrackBackend(b)
		return fmt.Errorf("g3d: init backend: %w", err)
	}

	builder := r.cfg.builder
	if builder == nil {
		builder = shader.NewBuilder()
	}

	r.backend, r.builder = b, builder
	r.nodes = render.NewNodes(builder, r.info)
	r.attributes = render.NewAttributes(b)
	r.geometries = render.NewGeometries(r.attributes, r.info)
	r.textures = render.NewTextures(b, r.info)
	r.pipelines = render.NewPipelines(b, r.nodes)
	r.bindings = render.NewBindings(b, r.nodes, r.textures, r.attributes, r.pipelines, r.info)
	r.renderObjects = render.NewRenderObjects(r.nodes, r.geometries, r.pipelines, r.bindings, r.info)
	r.initialized = true

	Logger().Info("g3d: renderer initialized")
	return nil
}

// Info returns the renderer statistics.
func (r *Renderer) Info() *render.Info { return r.info }

// Backend returns the backend, or nil before Init.
func (r *Renderer) Backend() render.Backend { return r.backend }

// SetSize resizes the default output.
func (r *Renderer) SetSize(width, height int) {
	r.output.Width, r.output.Height = max(width, 1), max(height, 1)
}

// SetRenderTarget makes later renders draw into rt. Pass nil to draw to
// the default output again.
func (r *Renderer) SetRenderTarget(rt *core.RenderTarget) {
	r.target = rt
}

// RenderTarget returns the current render target, or nil.
func (r *Renderer) RenderTarget() *core.RenderTarget { return r.target }

// Render draws scn as seen by cam. Opaque objects are drawn first, front
// to back, then transparent objects back to front.
func (r *Renderer) Render(ctx context.Context, scn *scene.Scene, cam *scene.Camera) error {
	if scn == nil || cam == nil {
		return ErrNilScene
	}
	if err := r.Init(ctx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.info.BeginFrame()
	r.info.Calls++
	r.info.Render.Calls++
	r.renderObjects.Collect()

	scn.UpdateWorld(scene.Identity())
	r.list.reset()
	lights := r.sceneLights(scn)
	lights.Set(r.list.collect(scn.Object, cam, 0, nil))
	if r.cfg.sortObjects {
		r.list.sort()
	}

	rc, err := r.renderContext(scn)
	if err != nil {
		return err
	}
	if err := r.backend.BeginRender(rc); err != nil {
		return fmt.Errorf("g3d: begin render: %w", err)
	}

	err = r.drawList(r.list.opaque, scn, cam, lights, rc)
	if err == nil {
		err = r.drawList(r.list.transparent, scn, cam, lights, rc)
	}
	if ferr := r.backend.FinishRender(rc); ferr != nil && err == nil {
		err = fmt.Errorf("g3d: finish render: %w", ferr)
	}
	return err
}

func (r *Renderer) sceneLights(scn *scene.Scene) *scene.Lights {
	rec := r.lights.Get(scn)
	if rec.lights == nil {
		rec.lights = scene.NewLights()
	}
	return rec.lights
}

// renderContext returns the context of the current target, updated for
// this frame.
func (r *Renderer) renderContext(scn *scene.Scene) (*render.RenderContext, error) {
	rc := r.output
	if rt := r.target; rt != nil {
		var err error
		if rc, err = r.targetContext(rt); err != nil {
			return nil, err
		}
	}
	rc.ClearColor = r.cfg.clearColor
	if bg, ok := render.Background(scn); ok {
		rc.ClearColor = bg
	}
	return rc, nil
}

func (r *Renderer) targetContext(rt *core.RenderTarget) (*render.RenderContext, error) {
	rc, ok := r.targets[rt]
	if !ok {
		rc = render.NewRenderContext()
		rc.RenderTarget = rt
		r.targets[rt] = rc
		var remove func()
		remove = rt.OnDispose(func() {
			remove()
			delete(r.targets, rt)
			if r.target == rt {
				r.target = nil
			}
		})
	}
	if err := r.textures.UpdateRenderTarget(rt, rc.MipLevel); err != nil {
		return nil, fmt.Errorf("g3d: update render target: %w", err)
	}
	if color := rt.Texture(); color != nil {
		rc.ColorFormat = color.Format
	}
	rc.SampleCount = rt.SampleCount()
	rc.Width, rc.Height = rt.Width, rt.Height
	rc.Depth = rt.DepthBuffer || rt.DepthTexture != nil
	rc.Stencil = rt.StencilBuffer
	rc.DepthTexture = r.textures.DepthTexture(rt, rc.MipLevel)
	return rc, nil
}

func (r *Renderer) drawList(items []renderItem, scn *scene.Scene, cam *scene.Camera, lights *scene.Lights, rc *render.RenderContext) error {
	for _, item := range items {
		mat := item.material
		if !mat.Transparent || mat.Side != core.DoubleSide {
			if err := r.draw(item, scn, cam, lights, rc, passDefault); err != nil {
				return err
			}
			continue
		}
		// Back faces first so front faces blend over them.
		mat.Side = core.BackSide
		err := r.draw(item, scn, cam, lights, rc, passBackSide)
		if err == nil {
			mat.Side = core.FrontSide
			err = r.draw(item, scn, cam, lights, rc, passDefault)
		}
		mat.Side = core.DoubleSide
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) draw(item renderItem, scn *scene.Scene, cam *scene.Camera, lights *scene.Lights, rc *render.RenderContext, pass string) error {
	ro, err := r.renderObjects.Get(item.object, item.material, scn, cam, lights, rc, pass)
	if err != nil {
		return err
	}
	if err := r.geometries.UpdateForRender(ro); err != nil {
		return fmt.Errorf("g3d: geometry of %q: %w", item.object.Name, err)
	}
	if err := r.bindings.UpdateForRender(ro); err != nil {
		return fmt.Errorf("g3d: bindings of %q: %w", item.object.Name, err)
	}
	if _, err := r.pipelines.GetForRender(ro); err != nil {
		return fmt.Errorf("g3d: pipeline of %q: %w", item.object.Name, err)
	}
	if err := r.backend.Draw(ro, r.info); err != nil {
		return fmt.Errorf("g3d: draw %q: %w", item.object.Name, err)
	}
	return nil
}

// Compute dispatches nodes in order within one compute pass.
func (r *Renderer) Compute(ctx context.Context, nodes ...*core.ComputeNode) error {
	if err := r.Init(ctx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.info.Calls++
	r.info.Compute.Calls++

	if err := r.backend.BeginCompute(); err != nil {
		return fmt.Errorf("g3d: begin compute: %w", err)
	}
	var err error
	for _, node := range nodes {
		if err = r.dispatch(node); err != nil {
			break
		}
	}
	if ferr := r.backend.FinishCompute(); ferr != nil && err == nil {
		err = fmt.Errorf("g3d: finish compute: %w", ferr)
	}
	return err
}

func (r *Renderer) dispatch(node *core.ComputeNode) error {
	r.watchCompute(node)
	if err := r.bindings.UpdateForCompute(node); err != nil {
		return fmt.Errorf("g3d: bindings of compute %q: %w", node.Name, err)
	}
	group, err := r.bindings.GetForCompute(node)
	if err != nil {
		return fmt.Errorf("g3d: bindings of compute %q: %w", node.Name, err)
	}
	pipeline, err := r.pipelines.GetForCompute(node, group)
	if err != nil {
		return fmt.Errorf("g3d: pipeline of compute %q: %w", node.Name, err)
	}
	if err := r.backend.Compute(node, group, pipeline); err != nil {
		return fmt.Errorf("g3d: compute %q: %w", node.Name, err)
	}
	return nil
}

// watchCompute releases the caches of node when it is disposed.
func (r *Renderer) watchCompute(node *core.ComputeNode) {
	rec := r.compute.Get(node)
	if rec.watched {
		return
	}
	rec.watched = true
	var remove func()
	remove = node.OnDispose(func() {
		remove()
		r.compute.Delete(node)
		if r.disposed {
			return
		}
		r.pipelines.DeleteCompute(node)
		r.bindings.DeleteCompute(node)
		r.nodes.DeleteCompute(node)
	})
}

// ReadAttribute copies the GPU contents of attr back to the CPU.
func (r *Renderer) ReadAttribute(ctx context.Context, attr *core.Attribute) ([]byte, error) {
	if err := r.Init(ctx); err != nil {
		return nil, err
	}
	return r.backend.ReadAttribute(ctx, attr)
}

// Dispose releases render objects, pipelines, bindings, textures and the
// backend. The renderer cannot be used afterwards.
func (r *Renderer) Dispose() {
	if r.disposed {
		return
	}
	r.disposed = true
	if !r.initialized {
		return
	}
	r.renderObjects.Dispose()
	r.pipelines.Dispose()
	r.bindings.Dispose()
	r.textures.Dispose()
	r.nodes.Dispose()
	if d, ok := r.builder.(interface{ Dispose() }); ok {
		d.Dispose()
	}
	r.lights.Clear()
	r.compute.Clear()
	clear(r.targets)
	r.target = nil

	r.backend.Dispose()
	untrackBackend(r.backend)
}
