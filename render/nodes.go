package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/g3d/cache"
	"github.com/gogpu/g3d/core"
	"github.com/gogpu/g3d/scene"
	"github.com/gogpu/gputypes"
)

// NodeBuilderState is the output of a shader build.
type NodeBuilderState struct {
	VertexShader   string
	FragmentShader string
	ComputeShader  string

	// Bindings is the resource group the shaders declare at @group(0).
	Bindings *BindGroup

	// Attributes names the geometry attributes the vertex stage reads;
	// attribute i is at @location(i).
	Attributes []string
}

// ShaderBuilder generates shaders and bindings for drawables and compute
// nodes. Builders must not capture the RenderObject in binding closures;
// the caches key their records on it.
type ShaderBuilder interface {
	BuildRender(ro *RenderObject) (*NodeBuilderState, error)
	BuildCompute(node *core.ComputeNode) (*NodeBuilderState, error)
}

type nodesRecord struct {
	state   *NodeBuilderState
	version uint64
}


// noLights stands in for a missing light set in chain keys.
type noLights struct{}

func (noLights) ID() uint64 { return 0 }

// Nodes caches builder output per render object and compute node, and the
// scene-level part of render object cache keys.
type Nodes struct {
	builder ShaderBuilder
	info    *Info

	render  *cache.IdentityMap[RenderObject, nodesRecord]
	compute *cache.IdentityMap[core.ComputeNode, nodesRecord]

	// sceneKeys memoizes CacheKey per (scene, lights) for the render call
	// sceneCall.
	sceneKeys *cache.ChainMap[string]
	sceneCall uint64
}

// NewNodes creates a nodes cache over builder.
func NewNodes(builder ShaderBuilder, info *Info) *Nodes {
	return &Nodes{
		builder:   builder,
		info:      info,
		render:    cache.NewIdentityMap[RenderObject, nodesRecord](),
		compute:   cache.NewIdentityMap[core.ComputeNode, nodesRecord](),
		sceneKeys: cache.NewChainMap[string](),
	}
}

// GetForRender returns the builder state of ro, building it once.
func (n *Nodes) GetForRender(ro *RenderObject) (*NodeBuilderState, error) {
	rec := n.render.Get(ro)
	if rec.state != nil {
		return rec.state, nil
	}
	if n.builder == nil {
		return nil, ErrNoShaderBuilder
	}
	state, err := n.builder.BuildRender(ro)
	if err != nil {
		return nil, fmt.Errorf("render: build shaders for %q: %w", ro.Material.Name, err)
	}
	rec.state = state
	return state, nil
}

// GetForCompute returns the builder state of node, rebuilding it when the
// node version changed.
func (n *Nodes) GetForCompute(node *core.ComputeNode) (*NodeBuilderState, error) {
	rec := n.compute.Get(node)
	if rec.state != nil && rec.version == node.Version {
		return rec.state, nil
	}
	if n.builder == nil {
		return nil, ErrNoShaderBuilder
	}
	state, err := n.builder.BuildCompute(node)
	if err != nil {
		return nil, fmt.Errorf("render: build compute shader for %q: %w", node.Name, err)
	}
	rec.state, rec.version = state, node.Version
	return state, nil
}

// HasRender reports whether ro has builder state.
func (n *Nodes) HasRender(ro *RenderObject) bool {
	rec, ok := n.render.Lookup(ro)
	return ok && rec.state != nil
}

// CacheKey summarizes the scene state shaders depend on: lights,
// environment and fog. It is computed once per render call.
func (n *Nodes) CacheKey(scn *scene.Scene, lights *scene.Lights) string {
	var lightsID cache.Identity = noLights{}
	if lights != nil {
		lightsID = lights
	}
	chain := []cache.Identity{scn, lightsID}

	if n.sceneCall != n.info.Calls {
		n.sceneKeys.Clear()
		n.sceneCall = n.info.Calls
	}
	if key, ok := n.sceneKeys.Get(chain); ok {
		return key
	}

	var parts []string
	if lights != nil {
		parts = append(parts, lights.CacheKey())
	}
	if env := EnvironmentKey(scn); env != "" {
		parts = append(parts, env)
	}
	if fog := FogKey(scn); fog != "" {
		parts = append(parts, fog)
	}
	key := strings.Join(parts, ";")
	n.sceneKeys.Set(chain, key)
	return key
}

// EnvironmentKey describes the scene environment, or "" for none.
func EnvironmentKey(scn *scene.Scene) string {
	if scn.Environment == nil {
		return ""
	}
	return "env:" + strconv.FormatUint(scn.Environment.ID(), 10)
}

// FogKey describes the scene fog, or "" for none. Unsupported fog values
// are reported and treated as no fog.
func FogKey(scn *scene.Scene) string {
	switch scn.Fog.(type) {
	case nil:
		return ""
	case *scene.LinearFog:
		return "fog:linear"
	case *scene.ExpFog:
		return "fog:exp"
	default:
		slogger().Error("render: unsupported fog", "type", fmt.Sprintf("%T", scn.Fog))
		return ""
	}
}

// Background returns the clear color for scn and whether one is set.
// Unsupported background values are reported and ignored.
func Background(scn *scene.Scene) (gputypes.Color, bool) {
	switch bg := scn.Background.(type) {
	case nil:
		return gputypes.Color{}, false
	case gputypes.Color:
		return bg, true
	case *gputypes.Color:
		if bg == nil {
			return gputypes.Color{}, false
		}
		return *bg, true
	default:
		slogger().Error("render: unsupported background", "type", fmt.Sprintf("%T", scn.Background))
		return gputypes.Color{}, false
	}
}

// Delete drops the builder state of ro.
func (n *Nodes) Delete(ro *RenderObject) {
	n.render.Delete(ro)
}

// DeleteCompute drops the builder state of node.
func (n *Nodes) DeleteCompute(node *core.ComputeNode) {
	n.compute.Delete(node)
}

// Dispose drops every record.
func (n *Nodes) Dispose() {
	n.render.Clear()
	n.compute.Clear()
	n.sceneKeys.Clear()
}
