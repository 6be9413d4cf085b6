package scene

import (
	"strconv"
	"strings"

	"github.com/gogpu/g3d/core"
	"github.com/gogpu/gputypes"
)

// LightKind selects the light model.
type LightKind int

const (
	AmbientLight LightKind = iota
	DirectionalLight
	PointLight
)

// String returns the light kind name.
func (k LightKind) String() string {
	switch k {
	case AmbientLight:
		return "ambient"
	case DirectionalLight:
		return "directional"
	case PointLight:
		return "point"
	default:
		return "unknown"
	}
}

// Light is the payload of a KindLight object.
type Light struct {
	Kind      LightKind
	Color     gputypes.Color
	Intensity float32

	// Distance limits point lights; 0 means unlimited.
	Distance float32
}

// NewLight creates a light object.
func NewLight(kind LightKind, color gputypes.Color, intensity float32) *Object {
	o := NewGroup()
	o.Kind = KindLight
	o.Light = &Light{Kind: kind, Color: color, Intensity: intensity}
	return o
}

// Lights is the set of lights affecting a render call. Its cache key
// changes only when the composition changes, not when colors or
// positions do.
type Lights struct {
	id      uint64
	objects []*Object
	key     string
}

// NewLights creates an empty light set.
func NewLights() *Lights {
	return &Lights{id: core.NextID(), key: compositionKey(nil)}
}

// ID returns the light set id.
func (l *Lights) ID() uint64 { return l.id }

// Set replaces the lights.
func (l *Lights) Set(objects []*Object) {
	l.objects = append(l.objects[:0], objects...)
	l.key = compositionKey(l.objects)
}

// Objects returns the lights.
func (l *Lights) Objects() []*Object { return l.objects }

// Len returns the number of lights.
func (l *Lights) Len() int { return len(l.objects) }

// CacheKey summarizes the light composition.
func (l *Lights) CacheKey() string { return l.key }

// Ambient returns the summed ambient contribution.
func (l *Lights) Ambient() [3]float32 {
	var sum [3]float32
	for _, o := range l.objects {
		if o.Light.Kind != AmbientLight {
			continue
		}
		sum[0] += float32(o.Light.Color.R) * o.Light.Intensity
		sum[1] += float32(o.Light.Color.G) * o.Light.Intensity
		sum[2] += float32(o.Light.Color.B) * o.Light.Intensity
	}
	return sum
}

// Directional returns direction (towards the light) and color of every
// directional light, in order.
func (l *Lights) Directional() (dirs []Vec3, colors [][3]float32) {
	for _, o := range l.objects {
		if o.Light.Kind != DirectionalLight {
			continue
		}
		dirs = append(dirs, o.World().Position().Normalize())
		colors = append(colors, [3]float32{
			float32(o.Light.Color.R) * o.Light.Intensity,
			float32(o.Light.Color.G) * o.Light.Intensity,
			float32(o.Light.Color.B) * o.Light.Intensity,
		})
	}
	return dirs, colors
}

func compositionKey(objects []*Object) string {
	var counts [3]int
	for _, o := range objects {
		if k := o.Light.Kind; k >= AmbientLight && k <= PointLight {
			counts[k]++
		}
	}
	var b strings.Builder
	b.WriteString("lights:")
	for i, c := range counts {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(strconv.Itoa(c))
	}
	return b.String()
}
