// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"context"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gogpu/g3d/core"
	"github.com/gogpu/g3d/render"
)

// DefaultProgramCacheSize is the number of compiled SPIR-V programs kept
// when WithProgramCacheSize is not given.
const DefaultProgramCacheSize = 128

type options struct {
	variant    gputypes.Backend
	hasVariant bool

	device hal.Device
	queue  hal.Queue

	provider gpucontext.DeviceProvider

	programCacheSize int
	label            string
}

// Option configures a Backend.
type Option func(*options)

// WithVariant opens the device on a specific registered HAL backend
// instead of the best available one.
func WithVariant(variant gputypes.Backend) Option {
	return func(o *options) {
		o.variant = variant
		o.hasVariant = true
	}
}

// WithDevice uses an existing HAL device and queue. The backend does not
// destroy them.
func WithDevice(device hal.Device, queue hal.Queue) Option {
	return func(o *options) {
		o.device = device
		o.queue = queue
	}
}

// WithProvider shares the device of a host application. The provider, or
// the device and queue it returns, must expose HAL handles either directly
// or through HalDevice() any and HalQueue() any.
func WithProvider(provider gpucontext.DeviceProvider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithProgramCacheSize bounds the compiled program cache.
func WithProgramCacheSize(n int) Option {
	return func(o *options) {
		o.programCacheSize = n
	}
}

// WithLabel prefixes the debug labels of every GPU object.
func WithLabel(label string) Option {
	return func(o *options) {
		o.label = label
	}
}

// Stats counts the GPU objects a Backend holds.
type Stats struct {
	Buffers          int
	Textures         int
	Samplers         int
	BindGroupLayouts int
	BindGroups       int
	UniformBuffers   int
	Programs         int
	RenderPipelines  int
	ComputePipelines int

	// Retired counts objects waiting for their last submission.
	Retired int

	ProgramCacheHits   uint64
	ProgramCacheMisses uint64
}

// retired is a release deferred until the queue completes index.
type retired struct {
	index   uint64
	release func()
}

// Backend implements render.Backend on a HAL device. It is not safe for
// concurrent use; the renderer drives it from one goroutine.
type Backend struct {
	opts options

	instance      hal.Instance
	device        hal.Device
	queue         hal.Queue
	external      bool
	adapter       string
	surfaceFormat gputypes.TextureFormat

	initialized bool
	disposed    bool

	buffers  map[*core.Buffer]*buffer
	textures map[*core.Texture]*texture
	samplers map[*core.Texture]*sampler

	// fallback stands in for textures without GPU data.
	fallback        *texture
	fallbackSampler hal.Sampler

	layouts  map[uint64]*layout
	groups   map[*render.BindGroup]*group
	uniforms map[*render.UniformBuffer]*uniform

	// empty fills bind group slots below the index a pipeline uses.
	empty *group

	spirv            *lru.Cache[uint64, compiled]
	programHits      uint64
	programMisses    uint64
	programs         map[*render.ProgrammableStage]hal.ShaderModule
	renderPipelines  map[*render.RenderPipeline]*pipeline
	computePipelines map[*render.ComputePipeline]*pipeline

	pass      *renderPass
	compute   *computePass
	offscreen *offscreen

	lastSubmit uint64
	retired    []retired
}

var _ render.Backend = (*Backend)(nil)

// New creates a backend. No GPU work happens before Init.
func New(opts ...Option) *Backend {
	o := options{programCacheSize: DefaultProgramCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.programCacheSize <= 0 {
		o.programCacheSize = DefaultProgramCacheSize
	}
	return &Backend{
		opts:             o,
		buffers:          make(map[*core.Buffer]*buffer),
		textures:         make(map[*core.Texture]*texture),
		samplers:         make(map[*core.Texture]*sampler),
		layouts:          make(map[uint64]*layout),
		groups:           make(map[*render.BindGroup]*group),
		uniforms:         make(map[*render.UniformBuffer]*uniform),
		programs:         make(map[*render.ProgrammableStage]hal.ShaderModule),
		renderPipelines:  make(map[*render.RenderPipeline]*pipeline),
		computePipelines: make(map[*render.ComputePipeline]*pipeline),
	}
}

// Init acquires the device. Calling it again after success is a no-op.
func (b *Backend) Init(ctx context.Context) error {
	if b.disposed {
		return ErrDisposed
	}
	if b.initialized {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var err error
	switch {
	case b.opts.device != nil:
		if b.opts.queue == nil {
			return fmt.Errorf("native: WithDevice: %w: queue is nil", ErrNoProvider)
		}
		b.device, b.queue, b.external = b.opts.device, b.opts.queue, true
		b.adapter = "external"
	case b.opts.provider != nil:
		err = b.share(b.opts.provider)
	default:
		err = b.open()
	}
	if err != nil {
		return err
	}

	spirv, err := lru.New[uint64, compiled](b.opts.programCacheSize)
	if err != nil {
		b.release()
		return fmt.Errorf("native: program cache: %w", err)
	}
	b.spirv = spirv

	if err := b.createFallback(); err != nil {
		b.release()
		return err
	}

	b.initialized = true
	slogger().Info("native: device acquired", "adapter", b.adapter, "external", b.external)
	return nil
}

// open creates a standalone device on the selected HAL backend.
func (b *Backend) open() error {
	var backend hal.Backend
	if b.opts.hasVariant {
		be, ok := hal.GetBackend(b.opts.variant)
		if !ok {
			return fmt.Errorf("%w: backend %v is not registered", ErrNoGPU, b.opts.variant)
		}
		backend = be
	} else {
		be, err := hal.SelectBestBackend()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrNoGPU, err)
		}
		backend = be
	}

	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{})
	if err != nil {
		return fmt.Errorf("native: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return ErrNoGPU
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	dev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return fmt.Errorf("native: open device: %w", err)
	}
	b.instance = instance
	b.device, b.queue = dev.Device, dev.Queue
	b.adapter = selected.Info.Name
	return nil
}

type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// share takes the device and queue of provider.
func (b *Backend) share(provider gpucontext.DeviceProvider) error {
	var device, queue any
	if hp, ok := provider.(halProvider); ok {
		device, queue = hp.HalDevice(), hp.HalQueue()
	} else {
		device, queue = provider.Device(), provider.Queue()
		if hp, ok := device.(interface{ HalDevice() any }); ok {
			device = hp.HalDevice()
		}
		if hq, ok := queue.(interface{ HalQueue() any }); ok {
			queue = hq.HalQueue()
		}
	}

	d, ok := device.(hal.Device)
	if !ok || d == nil {
		return fmt.Errorf("%w: device is %T", ErrNoProvider, device)
	}
	q, ok := queue.(hal.Queue)
	if !ok || q == nil {
		return fmt.Errorf("%w: queue is %T", ErrNoProvider, queue)
	}
	b.device, b.queue, b.external = d, q, true
	b.adapter = provider.AdapterInfo().Name
	b.surfaceFormat = provider.SurfaceFormat()
	return nil
}

// check reports whether the backend can create resources.
func (b *Backend) check() error {
	switch {
	case b.disposed:
		return ErrDisposed
	case !b.initialized:
		return ErrNotInitialized
	}
	return nil
}

// Device returns the HAL device, or nil before Init.
func (b *Backend) Device() hal.Device { return b.device }

// Queue returns the HAL queue, or nil before Init.
func (b *Backend) Queue() hal.Queue { return b.queue }

// Adapter returns the adapter name.
func (b *Backend) Adapter() string { return b.adapter }

// SurfaceFormat returns the provider's preferred color format, or
// TextureFormatUndefined when the device is not shared with a surface.
func (b *Backend) SurfaceFormat() gputypes.TextureFormat { return b.surfaceFormat }

// Stats returns the current object counts.
func (b *Backend) Stats() Stats {
	return Stats{
		Buffers:            len(b.buffers),
		Textures:           len(b.textures),
		Samplers:           len(b.samplers),
		BindGroupLayouts:   len(b.layouts),
		BindGroups:         len(b.groups),
		UniformBuffers:     len(b.uniforms),
		Programs:           len(b.programs),
		RenderPipelines:    len(b.renderPipelines),
		ComputePipelines:   len(b.computePipelines),
		Retired:            len(b.retired),
		ProgramCacheHits:   b.programHits,
		ProgramCacheMisses: b.programMisses,
	}
}

func (b *Backend) label(parts ...string) string {
	s := b.opts.label
	for _, p := range parts {
		if p == "" {
			continue
		}
		if s != "" {
			s += ":"
		}
		s += p
	}
	return s
}

// retire defers release until the work recorded so far has completed.
// Work being recorded belongs to the next submission.
func (b *Backend) retire(release func()) {
	index := b.lastSubmit
	if b.pass != nil || b.compute != nil {
		index++
	}
	b.retireAt(index, release)
}

func (b *Backend) retireAt(index uint64, release func()) {
	b.retired = append(b.retired, retired{index: index, release: release})
}

// collect runs the releases whose submission has completed.
func (b *Backend) collect() {
	if len(b.retired) == 0 {
		return
	}
	done := b.queue.PollCompleted()
	// Releases may retire more objects.
	pending := b.retired
	b.retired = nil
	var keep []retired
	for _, r := range pending {
		if r.index <= done {
			r.release()
			continue
		}
		keep = append(keep, r)
	}
	b.retired = append(keep, b.retired...)
}

// drain runs every pending release. The device must be idle.
func (b *Backend) drain() {
	for len(b.retired) > 0 {
		pending := b.retired
		b.retired = nil
		for _, r := range pending {
			r.release()
		}
	}
}

// submit ends enc, submits it and frees it once the queue is done.
func (b *Backend) submit(enc hal.CommandEncoder) (uint64, error) {
	cmd, err := enc.EndEncoding()
	if err != nil {
		enc.Destroy()
		return 0, fmt.Errorf("native: end encoding: %w", err)
	}
	index, err := b.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		b.device.FreeCommandBuffer(cmd)
		enc.Destroy()
		return 0, fmt.Errorf("native: submit: %w", err)
	}
	b.lastSubmit = max(b.lastSubmit, index)
	b.retireAt(index, func() {
		b.device.FreeCommandBuffer(cmd)
		enc.Destroy()
	})
	return index, nil
}

// Dispose waits for the device to go idle and releases every object the
// backend created. An owned device is destroyed; a shared one is not.
func (b *Backend) Dispose() {
	if b.disposed {
		return
	}
	b.disposed = true
	if !b.initialized {
		return
	}

	if b.pass != nil {
		b.pass.pass.End()
		b.pass.encoder.DiscardEncoding()
		b.pass.encoder.Destroy()
		b.pass = nil
	}
	if b.compute != nil {
		b.compute.pass.End()
		b.compute.encoder.DiscardEncoding()
		b.compute.encoder.Destroy()
		b.compute = nil
	}
	if err := b.device.WaitIdle(); err != nil {
		slogger().Warn("native: wait idle failed", "error", err)
	}
	b.drain()

	for p, rec := range b.renderPipelines {
		b.destroyPipeline(rec)
		delete(b.renderPipelines, p)
	}
	for p, rec := range b.computePipelines {
		b.destroyPipeline(rec)
		delete(b.computePipelines, p)
	}
	for stage, module := range b.programs {
		b.device.DestroyShaderModule(module)
		delete(b.programs, stage)
	}
	if b.empty != nil {
		b.device.DestroyBindGroup(b.empty.raw)
		b.empty = nil
	}
	for key, g := range b.groups {
		if g.raw != nil {
			b.device.DestroyBindGroup(g.raw)
		}
		delete(b.groups, key)
	}
	for key, u := range b.uniforms {
		b.device.DestroyBuffer(u.raw)
		delete(b.uniforms, key)
	}
	for key, l := range b.layouts {
		b.device.DestroyBindGroupLayout(l.raw)
		delete(b.layouts, key)
	}
	for key, s := range b.samplers {
		b.device.DestroySampler(s.raw)
		delete(b.samplers, key)
	}
	for key, t := range b.textures {
		t.destroy(b.device)
		delete(b.textures, key)
	}
	for key, buf := range b.buffers {
		b.device.DestroyBuffer(buf.raw)
		delete(b.buffers, key)
	}
	if b.offscreen != nil {
		b.offscreen.destroy(b.device)
		b.offscreen = nil
	}
	b.drain()
	b.release()
	slogger().Debug("native: backend disposed")
}

// release frees the fallback texture and an owned device.
func (b *Backend) release() {
	if b.fallback != nil {
		b.fallback.destroy(b.device)
		b.fallback = nil
	}
	if b.fallbackSampler != nil {
		b.device.DestroySampler(b.fallbackSampler)
		b.fallbackSampler = nil
	}
	if !b.external {
		if b.device != nil {
			b.device.Destroy()
		}
		if b.instance != nil {
			b.instance.Destroy()
		}
	}
	b.device, b.queue, b.instance = nil, nil, nil
}
