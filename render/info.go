package render

import "github.com/gogpu/gputypes"

// MemoryInfo counts live GPU-backed entities.
type MemoryInfo struct {
	Geometries int
	Textures   int
}

// RenderInfo counts work of the current frame.
type RenderInfo struct {
	Calls     uint64
	DrawCalls uint64
	Triangles uint64
	Points    uint64
	Lines     uint64
}

// ComputeInfo counts compute work since creation.
type ComputeInfo struct {
	Calls uint64
}

// Info collects renderer statistics. Frame is the per-frame stamp used
// by Bindings to refresh shared bindings once per frame.
type Info struct {
	Frame uint64

	// Calls counts render and compute calls since creation.
	Calls uint64

	Memory  MemoryInfo
	Render  RenderInfo
	Compute ComputeInfo

	// AutoReset clears Render at the start of each frame.
	AutoReset bool
}

// NewInfo creates statistics with AutoReset enabled.
func NewInfo() *Info {
	return &Info{AutoReset: true}
}

// BeginFrame advances the frame stamp.
func (i *Info) BeginFrame() {
	i.Frame++
	if i.AutoReset {
		i.Render = RenderInfo{}
	}
}

// Update records one draw of count elements with instances instances.
func (i *Info) Update(topology gputypes.PrimitiveTopology, count, instances int) {
	if count <= 0 {
		return
	}
	instances = max(instances, 1)
	i.Render.DrawCalls++
	n := uint64(instances)
	switch topology {
	case gputypes.PrimitiveTopologyTriangleList:
		i.Render.Triangles += n * uint64(count/3)
	case gputypes.PrimitiveTopologyTriangleStrip:
		i.Render.Triangles += n * uint64(max(count-2, 0))
	case gputypes.PrimitiveTopologyPointList:
		i.Render.Points += n * uint64(count)
	case gputypes.PrimitiveTopologyLineList:
		i.Render.Lines += n * uint64(count/2)
	case gputypes.PrimitiveTopologyLineStrip:
		i.Render.Lines += n * uint64(max(count-1, 0))
	}
}

// Reset clears frame and memory counters.
func (i *Info) Reset() {
	i.Render = RenderInfo{}
	i.Compute = ComputeInfo{}
	i.Memory = MemoryInfo{}
	i.Calls = 0
}
