package scene

import (
	"fmt"

	"github.com/Faultbox/midgard-scenegraph/internal/engine/render"
	"github.com/Faultbox/midgard-scenegraph/pkg/bounds"
	"github.com/Faultbox/midgard-scenegraph/pkg/math"
)

// LOD picks one of its levels by distance from the viewpoint. Level i is
// used while the distance is below Ranges[i]; the last level has no upper
// bound when there is one more level than ranges.
type LOD struct {
	NodeBase
	center math.Vec3
	levels []Node
	ranges []float32
}

// NewLOD creates an empty level-of-detail switch measured from center.
func NewLOD(name string, center math.Vec3) *LOD {
	l := &LOD{center: center}
	l.InitNode(l, name)
	return l
}

func (l *LOD) Capabilities() Capability { return CapCustom }

// Children returns the levels, nearest first.
func (l *LOD) Children() []Node { return l.levels }

// Ranges returns the switch distances.
func (l *LOD) Ranges() []float32 { return l.ranges }

// AddLevel appends a level used up to maxDistance. Pass a negative distance
// for the unbounded last level.
func (l *LOD) AddLevel(n Node, maxDistance float32) error {
	if err := l.CheckBoundsWrite(); err != nil {
		return err
	}
	if len(l.levels) > len(l.ranges) {
		return fmt.Errorf("scene: lod %s already has an unbounded level", nameOf(l))
	}
	if err := attach(l, n); err != nil {
		return err
	}
	l.levels = append(l.levels, n)
	if maxDistance >= 0 {
		l.ranges = append(l.ranges, maxDistance)
	}
	l.invalidateBounds()
	return nil
}

// Select returns the index of the level used at distance d, or -1.
func (l *LOD) Select(d float32) int {
	for i, r := range l.ranges {
		if d < r {
			return i
		}
	}
	if len(l.levels) > len(l.ranges) {
		return len(l.levels) - 1
	}
	return -1
}

func (l *LOD) Cull(world, view math.Mat4, frustum *bounds.Frustum, kind render.Kind, out []CustomResult) []CustomResult {
	d := world.MulPoint(l.center).Distance(view.Translation())
	i := l.Select(d)
	if i < 0 {
		return out
	}
	return Flatten(l.levels[i], world, view, frustum, kind, out)
}

func (l *LOD) ComputeBounds() bounds.Volume {
	if l.explicit != nil {
		return l.explicit
	}
	return unionBounds(l.levels)
}

// Flatten appends every enabled leaf of kind below n, with its world
// transform, to out. parent is the world transform above n. Custom nodes
// below n are asked for their own output. No culling is done.
func Flatten(n Node, parent, view math.Mat4, frustum *bounds.Frustum, kind render.Kind, out []CustomResult) []CustomResult {
	for n != nil {
		caps := n.Capabilities()
		if !caps.Has(CapSingleChild) {
			break
		}
		sc, ok := n.(SingleChild)
		if !ok {
			return out
		}
		n = sc.Child()
	}
	if n == nil {
		return out
	}
	caps := n.Capabilities()
	world := parent
	if tb, ok := n.(TransformBearing); ok && caps.Has(CapTransform) {
		world = parent.Mul(tb.Transform())
	}
	switch {
	case caps.Has(CapCustom):
		if c, ok := n.(Custom); ok {
			out = c.Cull(world, view, frustum, kind, out)
		}
	case caps.Has(CapLeaf):
		lf, ok := n.(Leaf)
		if !ok || lf.Kind() != kind {
			return out
		}
		if r := lf.Renderable(); r != nil && r.Enabled() {
			out = append(out, CustomResult{Renderable: r, Transform: world})
		}
	case caps.Has(CapGroup):
		if g, ok := n.(Grouping); ok {
			for _, c := range g.Children() {
				out = Flatten(c, world, view, frustum, kind, out)
			}
		}
	}
	return out
}
