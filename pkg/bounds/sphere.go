package bounds

import "github.com/Faultbox/midgard-scenegraph/pkg/math"

// Sphere is a bounding sphere around Origin.
type Sphere struct {
	Origin math.Vec3
	Radius float32
}

var _ Volume = (*Sphere)(nil)

// NewSphere creates a sphere.
func NewSphere(origin math.Vec3, radius float32) *Sphere {
	return &Sphere{Origin: origin, Radius: radius}
}

func (s *Sphere) Kind() Kind { return KindSphere }

func (s *Sphere) Extents() (math.Vec3, math.Vec3) {
	r := math.Vec3{X: s.Radius, Y: s.Radius, Z: s.Radius}
	return s.Origin.Sub(r), s.Origin.Add(r)
}

func (s *Sphere) Center() math.Vec3 { return s.Origin }

func (s *Sphere) Clone() Volume {
	c := *s
	return &c
}

func (s *Sphere) IntersectsPoint(p math.Vec3) bool {
	return p.DistanceSq(s.Origin) <= s.Radius*s.Radius
}

// RayDistance returns the distance along the normalized dir to the first
// hit, or zero if the origin is inside the sphere.
func (s *Sphere) RayDistance(origin, dir math.Vec3) (float32, bool) {
	m := origin.Sub(s.Origin)
	b := m.Dot(dir)
	c := m.LengthSq() - s.Radius*s.Radius
	if c > 0 && b > 0 {
		return 0, false
	}
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	t := -b - math.Sqrt(disc)
	if t < 0 {
		t = 0
	}
	return t, true
}

func (s *Sphere) IntersectsRay(origin, dir math.Vec3) bool {
	d := dir.Normalize()
	if d == (math.Vec3{}) {
		return s.IntersectsPoint(origin)
	}
	_, ok := s.RayDistance(origin, d)
	return ok
}

func (s *Sphere) IntersectsSegment(start, end math.Vec3) bool {
	return closestOnSegment(s.Origin, start, end).DistanceSq(s.Origin) <= s.Radius*s.Radius
}

func (s *Sphere) IntersectsSphere(center math.Vec3, radius float32) bool {
	r := s.Radius + radius
	return center.DistanceSq(s.Origin) <= r*r
}

func (s *Sphere) IntersectsTriangle(a, b, c math.Vec3) bool {
	return closestOnTriangle(s.Origin, a, b, c).DistanceSq(s.Origin) <= s.Radius*s.Radius
}

// IntersectsCylinder treats the caps as hemispheres, which is conservative.
func (s *Sphere) IntersectsCylinder(start, end math.Vec3, radius float32) bool {
	r := s.Radius + radius
	return closestOnSegment(s.Origin, start, end).DistanceSq(s.Origin) <= r*r
}

func (s *Sphere) IntersectsCone(apex, axis math.Vec3, angle float32) bool {
	return sphereIntersectsCone(s.Origin, s.Radius, apex, axis, angle)
}

func (s *Sphere) IntersectsBox(lo, hi math.Vec3) bool {
	b := Box{Min: lo, Max: hi}
	return b.IntersectsSphere(s.Origin, s.Radius)
}

func (s *Sphere) ClassifyFrustum(f *Frustum) Classification {
	result := AllIn
	for i := range f {
		d := f[i].Distance(s.Origin)
		if d < -s.Radius {
			return AllOut
		}
		if d < s.Radius {
			result = Partial
		}
	}
	return result
}

// Transform moves the center and scales the radius by the largest axis
// scale of m.
func (s *Sphere) Transform(m math.Mat4) {
	s.Origin = m.MulPoint(s.Origin)
	s.Radius *= m.MaxScale()
}
