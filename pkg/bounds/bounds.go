// Package bounds implements the bounding volumes used for culling and
// picking: an empty void, spheres, axis-aligned boxes and user-supplied
// volumes, together with view frustum classification.
package bounds

import "github.com/Faultbox/midgard-scenegraph/pkg/math"

// Kind tags the concrete variant of a Volume.
type Kind uint8

const (
	KindVoid Kind = iota
	KindSphere
	KindBox
	KindUser
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindSphere:
		return "sphere"
	case KindBox:
		return "box"
	case KindUser:
		return "user"
	}
	return "unknown"
}

// Classification is the result of testing a volume against a frustum.
type Classification int8

const (
	AllOut Classification = iota
	Partial
	AllIn
)

// String returns the classification name.
func (c Classification) String() string {
	switch c {
	case AllOut:
		return "all-out"
	case Partial:
		return "partial"
	case AllIn:
		return "all-in"
	}
	return "unknown"
}

// Volume is a bounding volume. Volumes are mutable: Transform changes the
// receiver in place, use Clone first to keep the original.
//
// User-defined volumes report KindUser; everything that needs a uniform
// shape (unions, world-space conversion) falls back to their Extents.
type Volume interface {
	Kind() Kind

	// Extents returns the axis-aligned box enclosing the volume.
	Extents() (min, max math.Vec3)
	Center() math.Vec3

	IntersectsPoint(p math.Vec3) bool
	IntersectsRay(origin, dir math.Vec3) bool
	IntersectsSegment(start, end math.Vec3) bool
	IntersectsSphere(center math.Vec3, radius float32) bool
	IntersectsTriangle(a, b, c math.Vec3) bool
	// IntersectsCylinder tests the capped cylinder around start-end.
	IntersectsCylinder(start, end math.Vec3, radius float32) bool
	// IntersectsCone tests the infinite cone at apex opening along axis
	// with the given half-angle in radians.
	IntersectsCone(apex, axis math.Vec3, angle float32) bool
	IntersectsBox(min, max math.Vec3) bool
	ClassifyFrustum(f *Frustum) Classification

	Transform(m math.Mat4)
	Clone() Volume
}

// Void is the empty volume. It intersects nothing.
type Void struct{}

var _ Volume = Void{}

func (Void) Kind() Kind                                              { return KindVoid }
func (Void) Extents() (math.Vec3, math.Vec3)                         { return math.Vec3{}, math.Vec3{} }
func (Void) Center() math.Vec3                                       { return math.Vec3{} }
func (Void) IntersectsPoint(math.Vec3) bool                          { return false }
func (Void) IntersectsRay(math.Vec3, math.Vec3) bool                 { return false }
func (Void) IntersectsSegment(math.Vec3, math.Vec3) bool             { return false }
func (Void) IntersectsSphere(math.Vec3, float32) bool                { return false }
func (Void) IntersectsTriangle(math.Vec3, math.Vec3, math.Vec3) bool { return false }
func (Void) IntersectsCylinder(math.Vec3, math.Vec3, float32) bool   { return false }
func (Void) IntersectsCone(math.Vec3, math.Vec3, float32) bool       { return false }
func (Void) IntersectsBox(math.Vec3, math.Vec3) bool                 { return false }
func (Void) ClassifyFrustum(*Frustum) Classification                 { return AllOut }
func (Void) Transform(math.Mat4)                                     {}
func (Void) Clone() Volume                                           { return Void{} }

// IsVoid reports whether v is nil or the void volume.
func IsVoid(v Volume) bool {
	return v == nil || v.Kind() == KindVoid
}

// Union returns the box enclosing every non-void volume in vs, or Void if
// there is none.
func Union(vs ...Volume) Volume {
	b := EmptyBox()
	for _, v := range vs {
		b.Extend(v)
	}
	if b.IsEmpty() {
		return Void{}
	}
	return b
}

// World returns a copy of v transformed by m. User volumes come back as the
// box around their transformed extents.
func World(v Volume, m math.Mat4) Volume {
	if IsVoid(v) {
		return Void{}
	}
	switch v.Kind() {
	case KindSphere, KindBox:
		c := v.Clone()
		c.Transform(m)
		return c
	}
	lo, hi := v.Extents()
	b := NewBox(lo, hi)
	b.Transform(m)
	return b
}

// ClassifyWorld classifies v, expressed in the frame m maps to world space,
// against a world-space frustum without allocating.
func ClassifyWorld(v Volume, m math.Mat4, f *Frustum) Classification {
	switch b := v.(type) {
	case nil, Void:
		return AllOut
	case *Box:
		wb := *b
		wb.Transform(m)
		return wb.ClassifyFrustum(f)
	case *Sphere:
		ws := *b
		ws.Transform(m)
		return ws.ClassifyFrustum(f)
	}
	lo, hi := v.Extents()
	wb := Box{Min: lo, Max: hi}
	wb.Transform(m)
	return wb.ClassifyFrustum(f)
}
