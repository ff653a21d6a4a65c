// Package debug provides debug visualization utilities: bounds wireframes
// and screenshots of the graphics device.
package debug

import (
	"github.com/Faultbox/midgard-scenegraph/pkg/bounds"
	"github.com/Faultbox/midgard-scenegraph/pkg/math"
)

// BoxLineVertexCount is the number of vertices of a box wireframe (12 edges × 2).
const BoxLineVertexCount = 24

// DefaultPadding is the default padding for selection boxes.
const DefaultPadding = 0.05

// AppendBoxLines appends line vertices for the box lo..hi to dst, format
// [x, y, z] per vertex.
func AppendBoxLines(dst []float32, lo, hi math.Vec3) []float32 {
	return append(dst,
		// Bottom face
		lo.X, lo.Y, lo.Z, hi.X, lo.Y, lo.Z,
		hi.X, lo.Y, lo.Z, hi.X, lo.Y, hi.Z,
		hi.X, lo.Y, hi.Z, lo.X, lo.Y, hi.Z,
		lo.X, lo.Y, hi.Z, lo.X, lo.Y, lo.Z,
		// Top face
		lo.X, hi.Y, lo.Z, hi.X, hi.Y, lo.Z,
		hi.X, hi.Y, lo.Z, hi.X, hi.Y, hi.Z,
		hi.X, hi.Y, hi.Z, lo.X, hi.Y, hi.Z,
		lo.X, hi.Y, hi.Z, lo.X, hi.Y, lo.Z,
		// Vertical edges
		lo.X, lo.Y, lo.Z, lo.X, hi.Y, lo.Z,
		hi.X, lo.Y, lo.Z, hi.X, hi.Y, lo.Z,
		hi.X, lo.Y, hi.Z, hi.X, hi.Y, hi.Z,
		lo.X, lo.Y, hi.Z, lo.X, hi.Y, hi.Z,
	)
}

// AppendVolumeLines appends the world-space wireframe of v's extents under
// m, grown by padding on all sides. Void volumes append nothing.
func AppendVolumeLines(dst []float32, v bounds.Volume, m math.Mat4, padding float32) []float32 {
	if v == nil || bounds.IsVoid(v) {
		return dst
	}
	lo, hi := bounds.World(v, m).Extents()
	pad := math.Vec3{X: padding, Y: padding, Z: padding}
	return AppendBoxLines(dst, lo.Sub(pad), hi.Add(pad))
}
