package g3d

import (
	"testing"

	"github.com/gogpu/g3d/core"
	"github.com/gogpu/g3d/scene"
)

func names(items []renderItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.object.Name
	}
	return out
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func mesh(name string, mat *core.Material, z float32) *scene.Object {
	o := scene.NewMesh(core.NewGeometry(), mat)
	o.Name = name
	o.SetPosition(0, 0, -z)
	return o
}

func TestRenderListSort(t *testing.T) {
	opaque := core.NewMaterial(core.MaterialBasic)
	glass := core.NewMaterial(core.MaterialBasic)
	glass.Transparent = true

	scn := scene.New()
	scn.Add(
		mesh("far", opaque, 10),
		mesh("near", opaque, 1),
		mesh("glass-near", glass, 2),
		mesh("glass-far", glass, 8),
	)
	first := mesh("first", opaque, 20)
	first.RenderOrder = -1
	scn.Add(first)

	cam := scene.NewPerspectiveCamera(1, 1, 0.1, 100)
	scn.UpdateWorld(scene.Identity())

	var l renderList
	l.collect(scn.Object, cam, 0, nil)
	l.sort()

	if got, want := names(l.opaque), []string{"first", "near", "far"}; !equalNames(got, want) {
		t.Errorf("opaque = %v, want %v", got, want)
	}
	if got, want := names(l.transparent), []string{"glass-far", "glass-near"}; !equalNames(got, want) {
		t.Errorf("transparent = %v, want %v", got, want)
	}
}

func TestRenderListGroupOrder(t *testing.T) {
	mat := core.NewMaterial(core.MaterialBasic)
	late := scene.NewGroup()
	late.RenderOrder = 1
	late.Add(mesh("late-near", mat, 1))

	scn := scene.New()
	scn.Add(late, mesh("early-far", mat, 10))
	scn.UpdateWorld(scene.Identity())

	var l renderList
	l.collect(scn.Object, scene.NewPerspectiveCamera(1, 1, 0.1, 100), 0, nil)
	l.sort()

	if got, want := names(l.opaque), []string{"early-far", "late-near"}; !equalNames(got, want) {
		t.Errorf("opaque = %v, want %v", got, want)
	}
}

func TestRenderListCollect(t *testing.T) {
	mat := core.NewMaterial(core.MaterialBasic)
	hidden := scene.NewGroup()
	hidden.Visible = false
	hidden.Add(mesh("inside-hidden", mat, 1))

	invisible := core.NewMaterial(core.MaterialBasic)
	invisible.Visible = false

	light := scene.NewLight(scene.AmbientLight, mat.Color, 1)
	empty := scene.NewMesh(nil, mat)

	scn := scene.New()
	scn.Add(hidden, mesh("shown", mat, 1), mesh("no-material", invisible, 1), light, empty)
	scn.UpdateWorld(scene.Identity())

	var l renderList
	lights := l.collect(scn.Object, nil, 0, nil)
	if got, want := names(l.opaque), []string{"shown"}; !equalNames(got, want) {
		t.Errorf("opaque = %v, want %v", got, want)
	}
	if len(lights) != 1 || lights[0] != light {
		t.Errorf("lights = %v, want [light]", lights)
	}

	l.reset()
	if len(l.opaque) != 0 || len(l.transparent) != 0 {
		t.Error("reset() left items in the list")
	}
}
