package g3d

import (
	"cmp"
	"slices"

	"github.com/gogpu/g3d/core"
	"github.com/gogpu/g3d/scene"
)

// renderItem is one drawable of a frame.
type renderItem struct {
	object   *scene.Object
	material *core.Material

	// groupOrder is the RenderOrder of the closest enclosing group that
	// sets one.
	groupOrder int

	// z is the view depth of the object origin; larger is farther.
	z float32
}

// renderList buckets the drawables of a frame. Its slices are reused
// between frames.
type renderList struct {
	opaque      []renderItem
	transparent []renderItem
}

func (l *renderList) reset() {
	clear(l.opaque)
	clear(l.transparent)
	l.opaque = l.opaque[:0]
	l.transparent = l.transparent[:0]
}

func (l *renderList) push(obj *scene.Object, groupOrder int, z float32) {
	item := renderItem{object: obj, material: obj.Material, groupOrder: groupOrder, z: z}
	if obj.Material.Transparent {
		l.transparent = append(l.transparent, item)
		return
	}
	l.opaque = append(l.opaque, item)
}

// sort orders opaque items front to back, grouped by material, and
// transparent items back to front. Ties fall back to object id.
func (l *renderList) sort() {
	slices.SortStableFunc(l.opaque, compareOpaque)
	slices.SortStableFunc(l.transparent, compareTransparent)
}

func compareOpaque(a, b renderItem) int {
	return cmp.Or(
		cmp.Compare(a.groupOrder, b.groupOrder),
		cmp.Compare(a.object.RenderOrder, b.object.RenderOrder),
		cmp.Compare(a.material.ID(), b.material.ID()),
		cmp.Compare(a.z, b.z),
		cmp.Compare(a.object.ID(), b.object.ID()),
	)
}

func compareTransparent(a, b renderItem) int {
	return cmp.Or(
		cmp.Compare(a.groupOrder, b.groupOrder),
		cmp.Compare(a.object.RenderOrder, b.object.RenderOrder),
		cmp.Compare(b.z, a.z),
		cmp.Compare(a.object.ID(), b.object.ID()),
	)
}

// collect walks the visible subtree of o, appending drawables to the list
// and light objects to lights.
func (l *renderList) collect(o *scene.Object, cam *scene.Camera, groupOrder int, lights []*scene.Object) []*scene.Object {
	if !o.Visible {
		return lights
	}
	switch {
	case o.Kind == scene.KindGroup && o.RenderOrder != 0:
		groupOrder = o.RenderOrder
	case o.Kind == scene.KindLight && o.Light != nil:
		lights = append(lights, o)
	case o.Drawable() && o.Material.Visible:
		var z float32
		if cam != nil {
			z = cam.ViewDepth(o.World().Position())
		}
		l.push(o, groupOrder, z)
	}
	for _, c := range o.Children {
		lights = l.collect(c, cam, groupOrder, lights)
	}
	return lights
}
