package picking

import (
	"fmt"

	"github.com/Faultbox/midgard-scenegraph/internal/engine/render"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/scene"
	"github.com/Faultbox/midgard-scenegraph/pkg/bounds"
	"github.com/Faultbox/midgard-scenegraph/pkg/math"
)

// Geometry is the shape a request is tested with.
type Geometry uint8

const (
	// GeometryPoint tests Origin.
	GeometryPoint Geometry = iota
	// GeometryRay tests from Origin along the direction Destination.
	GeometryRay
	// GeometrySegment tests from Origin to Destination.
	GeometrySegment
	// GeometryCylinder tests the capsule from Origin to Destination with
	// radius Extra.
	GeometryCylinder
	// GeometryCone tests the cone with apex Origin, axis Destination and
	// half angle Extra in radians.
	GeometryCone
	// GeometryBox tests the box with corners Origin and Destination.
	GeometryBox
	// GeometrySphere tests the sphere at Origin with radius Extra.
	GeometrySphere
	// GeometryFrustum tests against Frustum.
	GeometryFrustum
)

var geometryNames = [...]string{"point", "ray", "segment", "cylinder", "cone", "box", "sphere", "frustum"}

func (g Geometry) String() string {
	if int(g) < len(geometryNames) {
		return geometryNames[g]
	}
	return fmt.Sprintf("Geometry(%d)", g)
}

// SortMode controls how many results are kept and in which order.
type SortMode uint8

const (
	// SortAny stops at the first match.
	SortAny SortMode = iota
	// SortAll keeps every match in traversal order.
	SortAll
	// SortOrdered keeps every match, nearest first.
	SortOrdered
	// SortClosest keeps only the nearest match.
	SortClosest
)

// KindMask selects leaf kinds by bit; zero selects all.
type KindMask uint8

// MaskOf returns the mask holding kinds.
func MaskOf(kinds ...render.Kind) KindMask {
	var m KindMask
	for _, k := range kinds {
		m |= 1 << k
	}
	return m
}

func (m KindMask) has(k render.Kind) bool { return m == 0 || m&(1<<k) != 0 }

// Request is one pick query. Results and Count are filled by Pick; the
// Results backing array is reused between picks.
type Request struct {
	Geometry    Geometry
	Sort        SortMode
	Origin      math.Vec3
	Destination math.Vec3
	Extra       float32
	Frustum     *bounds.Frustum
	Kinds       KindMask
	// Exact refines ray and segment hits with render.Pickable payloads.
	Exact bool

	Results []Result
	Count   int
}

// Result is one picked node.
type Result struct {
	Node       scene.Node
	Renderable render.Renderable
	Transform  math.Mat4
	// Distance runs from the request origin to the hit. Bounds hits are
	// zero when the origin lies inside the volume, whatever its shape.
	// Exact hits measure to the first triangle the ray crosses.
	Distance float32
}

// intersects tests a world-space volume against the request.
func (r *Request) intersects(v bounds.Volume) bool {
	switch r.Geometry {
	case GeometryPoint:
		return v.IntersectsPoint(r.Origin)
	case GeometryRay:
		return v.IntersectsRay(r.Origin, r.Destination)
	case GeometrySegment:
		return v.IntersectsSegment(r.Origin, r.Destination)
	case GeometryCylinder:
		return v.IntersectsCylinder(r.Origin, r.Destination, r.Extra)
	case GeometryCone:
		return v.IntersectsCone(r.Origin, r.Destination, r.Extra)
	case GeometryBox:
		lo, hi := r.Origin.Min(r.Destination), r.Origin.Max(r.Destination)
		return v.IntersectsBox(lo, hi)
	case GeometrySphere:
		return v.IntersectsSphere(r.Origin, r.Extra)
	case GeometryFrustum:
		return r.Frustum != nil && v.ClassifyFrustum(r.Frustum) != bounds.AllOut
	}
	return false
}

// direction returns the normalized ray direction of ray and segment
// requests and the segment length.
func (r *Request) direction() (math.Vec3, float32) {
	if r.Geometry == GeometrySegment {
		d := r.Destination.Sub(r.Origin)
		return d.Normalize(), d.Length()
	}
	return r.Destination.Normalize(), 0
}

// distance measures how far a world-space volume is from the request.
func (r *Request) distance(v bounds.Volume) float32 {
	if r.Geometry == GeometryRay || r.Geometry == GeometrySegment {
		dir, _ := r.direction()
		type rayDistancer interface {
			RayDistance(origin, dir math.Vec3) (float32, bool)
		}
		if rd, ok := v.(rayDistancer); ok {
			if d, hit := rd.RayDistance(r.Origin, dir); hit {
				return d
			}
		}
	}
	return v.Center().Distance(r.Origin)
}
