package bounds

import (
	gomath "math"

	"github.com/Faultbox/midgard-scenegraph/pkg/math"
)

// Box is an axis-aligned bounding box. A box with Min greater than Max on
// any axis is empty.
type Box struct {
	Min math.Vec3
	Max math.Vec3
}

var _ Volume = (*Box)(nil)

// NewBox creates a box from two corners, ordering each axis.
func NewBox(a, b math.Vec3) *Box {
	return &Box{Min: a.Min(b), Max: a.Max(b)}
}

// EmptyBox returns a box that contains nothing and grows with Extend.
func EmptyBox() *Box {
	inf := float32(gomath.Inf(1))
	return &Box{
		Min: math.Vec3{X: inf, Y: inf, Z: inf},
		Max: math.Vec3{X: -inf, Y: -inf, Z: -inf},
	}
}

// IsEmpty reports whether the box contains no point.
func (b *Box) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// Extend grows the box to enclose v. Void volumes are ignored.
func (b *Box) Extend(v Volume) {
	if IsVoid(v) {
		return
	}
	lo, hi := v.Extents()
	b.Min = b.Min.Min(lo)
	b.Max = b.Max.Max(hi)
}

// ExtendPoint grows the box to enclose p.
func (b *Box) ExtendPoint(p math.Vec3) {
	b.Min = b.Min.Min(p)
	b.Max = b.Max.Max(p)
}

func (b *Box) Kind() Kind { return KindBox }

func (b *Box) Extents() (math.Vec3, math.Vec3) { return b.Min, b.Max }

func (b *Box) Center() math.Vec3 { return b.Min.Add(b.Max).Scale(0.5) }

// HalfSize returns the extents from the center.
func (b *Box) HalfSize() math.Vec3 { return b.Max.Sub(b.Min).Scale(0.5) }

func (b *Box) Clone() Volume {
	c := *b
	return &c
}

func (b *Box) IntersectsPoint(p math.Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// slab clips the parametric line origin + t*dir against the box and
// returns the surviving interval.
func (b *Box) slab(origin, dir math.Vec3, tmin, tmax float32) (float32, float32, bool) {
	for axis := 0; axis < 3; axis++ {
		o, d := origin.Get(axis), dir.Get(axis)
		lo, hi := b.Min.Get(axis), b.Max.Get(axis)
		if d == 0 {
			if o < lo || o > hi {
				return 0, 0, false
			}
			continue
		}
		t1 := (lo - o) / d
		t2 := (hi - o) / d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tmin {
			tmin = t1
		}
		if t2 < tmax {
			tmax = t2
		}
		if tmax < tmin {
			return 0, 0, false
		}
	}
	return tmin, tmax, true
}

// RayDistance returns the distance along dir to the first hit, or zero if
// the origin is inside the box.
func (b *Box) RayDistance(origin, dir math.Vec3) (float32, bool) {
	tmin, tmax, ok := b.slab(origin, dir, float32(-gomath.MaxFloat32), float32(gomath.MaxFloat32))
	if !ok || tmax < 0 {
		return 0, false
	}
	if tmin < 0 {
		return 0, true
	}
	return tmin, true
}

func (b *Box) IntersectsRay(origin, dir math.Vec3) bool {
	_, ok := b.RayDistance(origin, dir)
	return ok
}

func (b *Box) IntersectsSegment(start, end math.Vec3) bool {
	_, _, ok := b.slab(start, end.Sub(start), 0, 1)
	return ok
}

// closestPoint clamps p into the box.
func (b *Box) closestPoint(p math.Vec3) math.Vec3 {
	return p.Max(b.Min).Min(b.Max)
}

func (b *Box) IntersectsSphere(center math.Vec3, radius float32) bool {
	return b.closestPoint(center).DistanceSq(center) <= radius*radius
}

func (b *Box) IntersectsTriangle(p0, p1, p2 math.Vec3) bool {
	return triangleOverlapsBox(b.Center(), b.HalfSize(), p0, p1, p2)
}

// IntersectsCylinder inflates the box by the radius and tests the axis
// segment, which is conservative near the box edges.
func (b *Box) IntersectsCylinder(start, end math.Vec3, radius float32) bool {
	r := math.Vec3{X: radius, Y: radius, Z: radius}
	grown := Box{Min: b.Min.Sub(r), Max: b.Max.Add(r)}
	return grown.IntersectsSegment(start, end)
}

// IntersectsCone tests the sphere enclosing the box.
func (b *Box) IntersectsCone(apex, axis math.Vec3, angle float32) bool {
	return sphereIntersectsCone(b.Center(), b.HalfSize().Length(), apex, axis, angle)
}

func (b *Box) IntersectsBox(lo, hi math.Vec3) bool {
	return b.Min.X <= hi.X && b.Max.X >= lo.X &&
		b.Min.Y <= hi.Y && b.Max.Y >= lo.Y &&
		b.Min.Z <= hi.Z && b.Max.Z >= lo.Z
}

// ClassifyFrustum uses the positive and negative vertex of the box for each
// plane.
func (b *Box) ClassifyFrustum(f *Frustum) Classification {
	result := AllIn
	for i := range f {
		p := &f[i]
		pv, nv := b.Max, b.Min
		if p.Normal.X < 0 {
			pv.X, nv.X = b.Min.X, b.Max.X
		}
		if p.Normal.Y < 0 {
			pv.Y, nv.Y = b.Min.Y, b.Max.Y
		}
		if p.Normal.Z < 0 {
			pv.Z, nv.Z = b.Min.Z, b.Max.Z
		}
		if p.Distance(pv) < 0 {
			return AllOut
		}
		if p.Distance(nv) < 0 {
			result = Partial
		}
	}
	return result
}

// Transform replaces the box with the axis-aligned box enclosing its
// transformed corners (Arvo's method).
func (b *Box) Transform(m math.Mat4) {
	if b.IsEmpty() {
		return
	}
	c := m.MulPoint(b.Center())
	h := b.HalfSize()
	e := math.Vec3{
		X: math.Abs(m[0])*h.X + math.Abs(m[4])*h.Y + math.Abs(m[8])*h.Z,
		Y: math.Abs(m[1])*h.X + math.Abs(m[5])*h.Y + math.Abs(m[9])*h.Z,
		Z: math.Abs(m[2])*h.X + math.Abs(m[6])*h.Y + math.Abs(m[10])*h.Z,
	}
	b.Min = c.Sub(e)
	b.Max = c.Add(e)
}
