package scene

import (
	"github.com/gogpu/g3d/core"
	"github.com/gogpu/gputypes"
)

// LinearFog fades linearly between Near and Far.
type LinearFog struct {
	Color     gputypes.Color
	Near, Far float32
}

// ExpFog fades exponentially with Density.
type ExpFog struct {
	Color   gputypes.Color
	Density float32
}

// Scene is the root of a scene graph.
type Scene struct {
	*Object

	// Background is nil, a gputypes.Color or a *gputypes.Color. Other values
	// are reported and ignored by the renderer.
	Background any

	// Environment is an optional environment texture.
	Environment *core.Texture

	// Fog is nil, a *LinearFog or an *ExpFog. Other values are reported
	// and ignored by the renderer.
	Fog any
}

// New creates an empty scene.
func New() *Scene {
	return &Scene{Object: NewGroup()}
}

// Camera projects the scene.
type Camera struct {
	id uint64

	// View is the world-to-camera matrix.
	View Mat4

	// Projection is the camera-to-clip matrix.
	Projection Mat4

	Near, Far float32
}

// NewPerspectiveCamera creates a perspective camera at the origin looking
// down -Z.
func NewPerspectiveCamera(fovY, aspect, near, far float32) *Camera {
	return &Camera{
		id:         core.NextID(),
		View:       Identity(),
		Projection: Perspective(fovY, aspect, near, far),
		Near:       near,
		Far:        far,
	}
}

// NewOrthographicCamera creates an orthographic camera.
func NewOrthographicCamera(left, right, bottom, top, near, far float32) *Camera {
	return &Camera{
		id:         core.NextID(),
		View:       Identity(),
		Projection: Orthographic(left, right, bottom, top, near, far),
		Near:       near,
		Far:        far,
	}
}

// ID returns the camera id.
func (c *Camera) ID() uint64 { return c.id }

// LookAt points the camera from eye towards target.
func (c *Camera) LookAt(eye, target, up Vec3) {
	c.View = LookAt(eye, target, up)
}

// ViewDepth returns the distance of a world point along the view axis.
// Larger is farther.
func (c *Camera) ViewDepth(p Vec3) float32 {
	return -c.View.TransformPoint(p)[2]
}
