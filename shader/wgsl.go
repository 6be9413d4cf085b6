package shader

import (
	"fmt"
	"strings"

	"github.com/gogpu/g3d/core"
	"github.com/gogpu/gputypes"
)

// fogMode selects the fog term of the fragment stage.
type fogMode int

const (
	fogNone fogMode = iota
	fogLinear
	fogExp
)

// input is one vertex attribute read by the vertex stage.
type input struct {
	name     string
	location int
	wgsl     string
	width    int
}

// program describes one material variant. Binding slots are -1 when the
// variant does not declare the resource.
type program struct {
	kind core.MaterialKind

	inputs []input

	// directional is the number of unrolled directional lights.
	directional int
	fog         fogMode

	objectSlot   int
	materialSlot int
	cameraSlot   int
	lightsSlot   int
	fogSlot      int
	mapSlot      int
	envSlot      int
}

func newProgram(kind core.MaterialKind) *program {
	return &program{kind: kind, lightsSlot: -1, fogSlot: -1, mapSlot: -1, envSlot: -1}
}

func (p *program) lit() bool { return p.kind == core.MaterialLambert }

func (p *program) input(name string) (input, bool) {
	for _, in := range p.inputs {
		if in.name == name {
			return in, true
		}
	}
	return input{}, false
}

// wgslType returns the WGSL type of a vertex format and its component
// count.
func wgslType(f gputypes.VertexFormat) (string, int, error) {
	switch f {
	case gputypes.VertexFormatFloat32:
		return "f32", 1, nil
	case gputypes.VertexFormatFloat32x2:
		return "vec2<f32>", 2, nil
	case gputypes.VertexFormatFloat32x3:
		return "vec3<f32>", 3, nil
	case gputypes.VertexFormatFloat32x4, gputypes.VertexFormatUnorm8x4:
		return "vec4<f32>", 4, nil
	default:
		return "", 0, fmt.Errorf("%w: vertex format %d", ErrUnsupportedFormat, f)
	}
}

// widen converts expr with width components to a vecN<f32>, filling
// missing components with fill (the last one with w).
func widen(expr string, width, n int, fill, w string) string {
	if width == n {
		return expr
	}
	if width > n {
		return expr + ".xyzw"[:n+1]
	}
	parts := []string{expr}
	for i := width; i < n; i++ {
		if i == n-1 && n == 4 {
			parts = append(parts, w)
		} else {
			parts = append(parts, fill)
		}
	}
	return fmt.Sprintf("vec%d<f32>(%s)", n, strings.Join(parts, ", "))
}

func (p *program) structs(b *strings.Builder) {
	b.WriteString("struct ObjectUniforms {\n    model: mat4x4<f32>,\n}\n\n")
	b.WriteString("struct MaterialUniforms {\n    color: vec4<f32>,\n}\n\n")
	b.WriteString("struct CameraUniforms {\n    viewProjection: mat4x4<f32>,\n    view: mat4x4<f32>,\n}\n\n")
	if p.lightsSlot >= 0 {
		b.WriteString("struct LightUniforms {\n    ambient: vec4<f32>,\n")
		if p.directional > 0 {
			fmt.Fprintf(b, "    directions: array<vec4<f32>, %d>,\n", p.directional)
			fmt.Fprintf(b, "    colors: array<vec4<f32>, %d>,\n", p.directional)
		}
		b.WriteString("}\n\n")
	}
	if p.fogSlot >= 0 {
		b.WriteString("struct FogUniforms {\n    color: vec4<f32>,\n    params: vec4<f32>,\n}\n\n")
	}

	b.WriteString("struct VertexOutput {\n    @builtin(position) position: vec4<f32>,\n")
	loc := 0
	field := func(name, typ string) {
		fmt.Fprintf(b, "    @location(%d) %s: %s,\n", loc, name, typ)
		loc++
	}
	if p.needsNormal() {
		field("normal", "vec3<f32>")
	}
	if p.mapSlot >= 0 {
		field("uv", "vec2<f32>")
	}
	if _, ok := p.input("color"); ok {
		field("color", "vec4<f32>")
	}
	if p.fog != fogNone {
		field("viewDepth", "f32")
	}
	b.WriteString("}\n\n")
}

func (p *program) needsNormal() bool {
	_, ok := p.input("normal")
	return ok && p.kind != core.MaterialBasic
}

func uniform(b *strings.Builder, slot int, name, typ string) {
	fmt.Fprintf(b, "@group(0) @binding(%d) var<uniform> %s: %s;\n", slot, name, typ)
}

// vertex returns the vertex stage source.
func (p *program) vertex() string {
	var b strings.Builder
	p.structs(&b)
	uniform(&b, p.objectSlot, "u_object", "ObjectUniforms")
	uniform(&b, p.cameraSlot, "u_camera", "CameraUniforms")
	b.WriteString("\n@vertex\nfn main(")
	for i, in := range p.inputs {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "@location(%d) %s: %s", in.location, in.name, in.wgsl)
	}
	b.WriteString(") -> VertexOutput {\n    var out: VertexOutput;\n")

	pos, _ := p.input("position")
	fmt.Fprintf(&b, "    let world = u_object.model * %s;\n", widen(pos.name, pos.width, 4, "0.0", "1.0"))
	b.WriteString("    out.position = u_camera.viewProjection * world;\n")

	if p.needsNormal() {
		n, _ := p.input("normal")
		dir := widen(n.name, n.width, 4, "0.0", "0.0")
		if p.kind == core.MaterialNormal {
			fmt.Fprintf(&b, "    out.normal = normalize((u_camera.view * u_object.model * %s).xyz);\n", dir)
		} else {
			fmt.Fprintf(&b, "    out.normal = normalize((u_object.model * %s).xyz);\n", dir)
		}
	}
	if p.mapSlot >= 0 {
		if uv, ok := p.input("uv"); ok {
			fmt.Fprintf(&b, "    out.uv = %s;\n", widen(uv.name, uv.width, 2, "0.0", "0.0"))
		} else {
			b.WriteString("    out.uv = vec2<f32>(0.0, 0.0);\n")
		}
	}
	if c, ok := p.input("color"); ok {
		fmt.Fprintf(&b, "    out.color = %s;\n", widen(c.name, c.width, 4, "1.0", "1.0"))
	}
	if p.fog != fogNone {
		b.WriteString("    out.viewDepth = -(u_camera.view * world).z;\n")
	}
	b.WriteString("    return out;\n}\n")
	return b.String()
}

// fragment returns the fragment stage source.
func (p *program) fragment() string {
	var b strings.Builder
	p.structs(&b)
	uniform(&b, p.materialSlot, "u_material", "MaterialUniforms")
	if p.lightsSlot >= 0 {
		uniform(&b, p.lightsSlot, "u_lights", "LightUniforms")
	}
	if p.fogSlot >= 0 {
		uniform(&b, p.fogSlot, "u_fog", "FogUniforms")
	}
	if p.mapSlot >= 0 {
		fmt.Fprintf(&b, "@group(0) @binding(%d) var t_map: texture_2d<f32>;\n", p.mapSlot)
		fmt.Fprintf(&b, "@group(0) @binding(%d) var s_map: sampler;\n", p.mapSlot+1)
	}
	if p.envSlot >= 0 {
		fmt.Fprintf(&b, "@group(0) @binding(%d) var t_env: texture_2d<f32>;\n", p.envSlot)
		fmt.Fprintf(&b, "@group(0) @binding(%d) var s_env: sampler;\n", p.envSlot+1)
		b.WriteString("\nfn equirect(n: vec3<f32>) -> vec2<f32> {\n")
		b.WriteString("    return vec2<f32>(atan2(n.z, n.x) * 0.15915494 + 0.5, acos(clamp(n.y, -1.0, 1.0)) * 0.31830988);\n}\n")
	}

	b.WriteString("\n@fragment\nfn main(in: VertexOutput) -> @location(0) vec4<f32> {\n")
	b.WriteString("    var color = u_material.color;\n")
	if p.mapSlot >= 0 {
		b.WriteString("    color = color * textureSample(t_map, s_map, in.uv);\n")
	}
	if _, ok := p.input("color"); ok {
		b.WriteString("    color = color * in.color;\n")
	}

	switch {
	case p.kind == core.MaterialNormal && p.needsNormal():
		b.WriteString("    color = vec4<f32>(normalize(in.normal) * 0.5 + vec3<f32>(0.5, 0.5, 0.5), color.a);\n")
	case p.lit():
		b.WriteString("    var light = u_lights.ambient.xyz;\n")
		if p.needsNormal() {
			b.WriteString("    let n = normalize(in.normal);\n")
			for i := range p.directional {
				fmt.Fprintf(&b, "    light = light + u_lights.colors[%d].xyz * max(dot(n, u_lights.directions[%d].xyz), 0.0);\n", i, i)
			}
			if p.envSlot >= 0 {
				b.WriteString("    light = light + textureSample(t_env, s_env, equirect(n)).xyz;\n")
			}
		}
		b.WriteString("    color = vec4<f32>(color.xyz * light, color.a);\n")
	}

	switch p.fog {
	case fogLinear:
		b.WriteString("    let fog = smoothstep(u_fog.params.x, u_fog.params.y, in.viewDepth);\n")
	case fogExp:
		b.WriteString("    let density = u_fog.params.z;\n")
		b.WriteString("    let fog = 1.0 - exp(-density * density * in.viewDepth * in.viewDepth);\n")
	}
	if p.fog != fogNone {
		b.WriteString("    color = vec4<f32>(mix(color.xyz, u_fog.color.xyz, vec3<f32>(fog, fog, fog)), color.a);\n")
	}
	b.WriteString("    return color;\n}\n")
	return b.String()
}
