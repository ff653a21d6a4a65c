package bounds

import (
	gomath "math"

	"github.com/Faultbox/midgard-scenegraph/pkg/math"
)

// closestOnSegment returns the point of segment a-b nearest to p.
func closestOnSegment(p, a, b math.Vec3) math.Vec3 {
	ab := b.Sub(a)
	denom := ab.LengthSq()
	if denom == 0 {
		return a
	}
	t := p.Sub(a).Dot(ab) / denom
	t = min(max(t, 0), 1)
	return a.Add(ab.Scale(t))
}

// closestOnTriangle returns the point of triangle abc nearest to p by
// Voronoi region classification.
func closestOnTriangle(p, a, b, c math.Vec3) math.Vec3 {
	ab := b.Sub(a)
	ac := c.Sub(a)
	ap := p.Sub(a)
	d1, d2 := ab.Dot(ap), ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return a
	}

	bp := p.Sub(b)
	d3, d4 := ab.Dot(bp), ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return b
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		return a.Add(ab.Scale(d1 / (d1 - d3)))
	}

	cp := p.Sub(c)
	d5, d6 := ab.Dot(cp), ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return c
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		return a.Add(ac.Scale(d2 / (d2 - d6)))
	}

	va := d3*d6 - d5*d4
	if va <= 0 && d4-d3 >= 0 && d5-d6 >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return b.Add(c.Sub(b).Scale(w))
	}

	denom := 1 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	return a.Add(ab.Scale(v)).Add(ac.Scale(w))
}

// sphereIntersectsCone tests a sphere against an infinite cone with a
// normalized axis and half-angle in radians.
func sphereIntersectsCone(center math.Vec3, radius float32, apex, axis math.Vec3, angle float32) bool {
	axis = axis.Normalize()
	v := center.Sub(apex)
	along := v.Dot(axis)
	if along < -radius {
		return false
	}
	perp := math.Sqrt(max(v.LengthSq()-along*along, 0))
	sin, cos := gomath.Sincos(float64(angle))
	closest := float32(cos)*perp - along*float32(sin)
	return closest <= radius
}

// triangleOverlapsBox is the separating axis test of Akenine-Möller.
func triangleOverlapsBox(center, half math.Vec3, p0, p1, p2 math.Vec3) bool {
	v0 := p0.Sub(center)
	v1 := p1.Sub(center)
	v2 := p2.Sub(center)
	edges := [3]math.Vec3{v1.Sub(v0), v2.Sub(v1), v0.Sub(v2)}
	axes := [3]math.Vec3{{X: 1}, {Y: 1}, {Z: 1}}

	for _, e := range edges {
		for _, u := range axes {
			a := u.Cross(e)
			if a == (math.Vec3{}) {
				continue
			}
			if separated(a, half, v0, v1, v2) {
				return false
			}
		}
	}

	for i := 0; i < 3; i++ {
		lo := min(v0.Get(i), v1.Get(i), v2.Get(i))
		hi := max(v0.Get(i), v1.Get(i), v2.Get(i))
		if lo > half.Get(i) || hi < -half.Get(i) {
			return false
		}
	}

	n := edges[0].Cross(edges[1])
	return !separated(n, half, v0, v1, v2)
}

func separated(axis, half math.Vec3, v0, v1, v2 math.Vec3) bool {
	q0, q1, q2 := v0.Dot(axis), v1.Dot(axis), v2.Dot(axis)
	r := half.X*math.Abs(axis.X) + half.Y*math.Abs(axis.Y) + half.Z*math.Abs(axis.Z)
	return min(q0, q1, q2) > r || max(q0, q1, q2) < -r
}
