// Command g3ddemo renders a small scene for a number of frames and runs a
// compute pass, printing renderer statistics. It needs no window.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"

	"github.com/gogpu/gputypes"
	_ "github.com/gogpu/wgpu/hal/allbackends"

	"github.com/gogpu/g3d"
	"github.com/gogpu/g3d/backend"
	"github.com/gogpu/g3d/backend/native"
	"github.com/gogpu/g3d/core"
	"github.com/gogpu/g3d/scene"
)

const doubleWGSL = `@group(0) @binding(0) var<storage, read_write> data: array<f32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = data[id.x] * 2.0;
}
`

var variants = map[string]gputypes.Backend{
	"vulkan":   gputypes.BackendVulkan,
	"metal":    gputypes.BackendMetal,
	"dx12":     gputypes.BackendDX12,
	"gl":       gputypes.BackendGL,
	"software": gputypes.BackendEmpty,
}

func main() {
	var (
		width   = flag.Int("width", 800, "output width")
		height  = flag.Int("height", 600, "output height")
		frames  = flag.Int("frames", 60, "frames to render")
		variant = flag.String("backend", "auto", "HAL backend: auto, vulkan, metal, dx12, gl, software")
		debug   = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	g3d.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	opts := []g3d.Option{g3d.WithSize(*width, *height), g3d.WithSampleCount(4)}
	if *variant != "auto" {
		v, ok := variants[*variant]
		if !ok {
			log.Fatalf("unknown backend %q", *variant)
		}
		opts = append(opts, g3d.WithBackend(native.New(native.WithVariant(v), native.WithLabel("g3ddemo"))))
	} else {
		log.Printf("backends: %v, default %q", backend.Available(), backend.DefaultName())
	}

	r := g3d.New(opts...)
	defer r.Dispose()

	ctx := context.Background()
	if err := r.Init(ctx); err != nil {
		log.Fatalf("init: %v", err)
	}

	scn, cam, spin := buildScene(float32(*width) / float32(*height))
	for i := range *frames {
		angle := float64(i) * 2 * math.Pi / 120
		spin(angle)
		if err := r.Render(ctx, scn, cam); err != nil {
			log.Fatalf("frame %d: %v", i, err)
		}
	}

	values := make([]float32, 256)
	for i := range values {
		values[i] = float32(i)
	}
	data := core.NewFloat32Attribute("data", values, 1)
	node := core.NewComputeNode(doubleWGSL, uint32(len(values)/64), data)
	node.Name = "double"
	if err := r.Compute(ctx, node); err != nil {
		log.Fatalf("compute: %v", err)
	}
	out, err := r.ReadAttribute(ctx, data)
	if err != nil {
		log.Fatalf("read back: %v", err)
	}

	info := r.Info()
	fmt.Printf("frames:     %d\n", info.Frame)
	fmt.Printf("draw calls: %d (last frame)\n", info.Render.DrawCalls)
	fmt.Printf("triangles:  %d (last frame)\n", info.Render.Triangles)
	fmt.Printf("geometries: %d, textures: %d\n", info.Memory.Geometries, info.Memory.Textures)
	fmt.Printf("compute:    %d calls, read %d bytes\n", info.Compute.Calls, len(out))
}

// buildScene returns a lit scene with opaque and transparent cubes, and a
// function that rotates them.
func buildScene(aspect float32) (*scene.Scene, *scene.Camera, func(angle float64)) {
	scn := scene.New()
	scn.Background = gputypes.Color{R: 0.05, G: 0.05, B: 0.1, A: 1}
	scn.Fog = &scene.ExpFog{Color: gputypes.Color{R: 0.05, G: 0.05, B: 0.1, A: 1}, Density: 0.05}

	sun := scene.NewLight(scene.DirectionalLight, gputypes.Color{R: 1, G: 1, B: 1, A: 1}, 1)
	sun.SetPosition(1, 2, 3)
	scn.Add(scene.NewLight(scene.AmbientLight, gputypes.Color{R: 1, G: 1, B: 1, A: 1}, 0.2), sun)

	geo := cube()
	solid := core.NewMaterial(core.MaterialLambert)
	solid.Color = gputypes.Color{R: 0.8, G: 0.3, B: 0.2, A: 1}

	glass := core.NewMaterial(core.MaterialBasic)
	glass.Name = "glass"
	glass.Transparent = true
	glass.Opacity = 0.4
	glass.Side = core.DoubleSide
	glass.DepthWrite = false

	group := scene.NewGroup()
	var meshes []*scene.Object
	for i := range 5 {
		mat := solid
		if i%2 == 1 {
			mat = glass
		}
		m := scene.NewMesh(geo, mat)
		m.Name = fmt.Sprintf("cube%d", i)
		m.SetPosition(float32(i-2)*1.5, 0, 0)
		group.Add(m)
		meshes = append(meshes, m)
	}
	scn.Add(group)

	cam := scene.NewPerspectiveCamera(math.Pi/3, aspect, 0.1, 100)
	cam.LookAt(scene.Vec3{0, 2, 8}, scene.Vec3{}, scene.Vec3{0, 1, 0})

	spin := func(angle float64) {
		s, c := float32(math.Sin(angle)), float32(math.Cos(angle))
		for _, m := range meshes {
			x, y, z := m.Matrix[12], m.Matrix[13], m.Matrix[14]
			m.Matrix = scene.Mat4{
				c, 0, -s, 0,
				0, 1, 0, 0,
				s, 0, c, 0,
				x, y, z, 1,
			}
		}
	}
	return scn, cam, spin
}

// cube returns a unit cube with per-face normals.
func cube() *core.Geometry {
	faces := [6][3]float32{{1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}, {0, 0, -1}}
	var positions, normals []float32
	var indices []uint32
	for _, n := range faces {
		// u and v span the face.
		u := [3]float32{n[1], n[2], n[0]}
		v := [3]float32{n[1]*u[2] - n[2]*u[1], n[2]*u[0] - n[0]*u[2], n[0]*u[1] - n[1]*u[0]}
		base := uint32(len(positions) / 3)
		for _, corner := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			for k := range 3 {
				positions = append(positions, 0.5*(n[k]+corner[0]*u[k]+corner[1]*v[k]))
				normals = append(normals, n[k])
			}
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	g := core.NewGeometry()
	g.SetAttribute("position", core.NewFloat32Attribute("position", positions, 3))
	g.SetAttribute("normal", core.NewFloat32Attribute("normal", normals, 3))
	g.SetIndex(core.NewIndexAttribute(indices))
	return g
}
