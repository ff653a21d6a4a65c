package bounds

import "github.com/Faultbox/midgard-scenegraph/pkg/math"

// Plane is the half-space Normal·p + D >= 0.
type Plane struct {
	Normal math.Vec3
	D      float32
}

// Distance returns the signed distance from the plane to p. Positive is
// inside.
func (p Plane) Distance(pt math.Vec3) float32 {
	return p.Normal.Dot(pt) + p.D
}

func (p *Plane) normalize() {
	l := p.Normal.Length()
	if l == 0 {
		return
	}
	p.Normal = p.Normal.Scale(1 / l)
	p.D /= l
}

// Frustum plane indices. Normals point inward.
const (
	FrustumLeft = iota
	FrustumRight
	FrustumBottom
	FrustumTop
	FrustumNear
	FrustumFar
)

// Frustum is six inward-facing planes.
type Frustum [6]Plane

// FrustumFromMatrix extracts the planes of a column-major view-projection
// matrix (Gribb/Hartmann). The result is in the space the matrix maps from,
// i.e. world space for projection * view.
func FrustumFromMatrix(m math.Mat4) Frustum {
	// row r, column c lives at m[c*4+r]
	row := func(r int) (float32, float32, float32, float32) {
		return m[r], m[4+r], m[8+r], m[12+r]
	}
	x0, y0, z0, w0 := row(0)
	x1, y1, z1, w1 := row(1)
	x2, y2, z2, w2 := row(2)
	x3, y3, z3, w3 := row(3)

	f := Frustum{
		FrustumLeft:   {math.Vec3{X: x3 + x0, Y: y3 + y0, Z: z3 + z0}, w3 + w0},
		FrustumRight:  {math.Vec3{X: x3 - x0, Y: y3 - y0, Z: z3 - z0}, w3 - w0},
		FrustumBottom: {math.Vec3{X: x3 + x1, Y: y3 + y1, Z: z3 + z1}, w3 + w1},
		FrustumTop:    {math.Vec3{X: x3 - x1, Y: y3 - y1, Z: z3 - z1}, w3 - w1},
		FrustumNear:   {math.Vec3{X: x3 + x2, Y: y3 + y2, Z: z3 + z2}, w3 + w2},
		FrustumFar:    {math.Vec3{X: x3 - x2, Y: y3 - y2, Z: z3 - z2}, w3 - w2},
	}
	for i := range f {
		f[i].normalize()
	}
	return f
}

// ContainsPoint reports whether p is inside all six planes.
func (f *Frustum) ContainsPoint(p math.Vec3) bool {
	for i := range f {
		if f[i].Distance(p) < 0 {
			return false
		}
	}
	return true
}
