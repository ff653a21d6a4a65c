package render

import (
	"github.com/Faultbox/midgard-scenegraph/pkg/bounds"
	"github.com/Faultbox/midgard-scenegraph/pkg/math"
)

// ViewportRect is a viewport in device pixels.
type ViewportRect struct {
	X, Y, Width, Height int
}

// Aspect returns width/height, or 1 for a degenerate rect.
func (r ViewportRect) Aspect() float32 {
	if r.Width <= 0 || r.Height <= 0 {
		return 1
	}
	return float32(r.Width) / float32(r.Height)
}

// Environment is the per-scene snapshot produced by the cull stage. It is
// pool-reused: a device must not keep a pointer past the frame it received
// it in.
type Environment struct {
	// Layer and ViewportIndex locate the scene in the layer forest; Pass is
	// the render pass of a multipass scene.
	Layer         int
	ViewportIndex int
	Viewport      ViewportRect
	Pass          int

	Viewpoint  Renderable
	Background Renderable
	Fog        Renderable

	// ViewTransform is the world transform of the active viewpoint; View is
	// its inverse.
	ViewTransform math.Mat4
	View          math.Mat4
	Projection    math.Mat4
	Frustum       bounds.Frustum

	UserData any

	// First and Count delimit the cull records of this scene.
	First int
	Count int
}

// Reset clears the snapshot for reuse.
func (e *Environment) Reset() {
	*e = Environment{
		ViewTransform: math.Identity(),
		View:          math.Identity(),
		Projection:    math.Identity(),
	}
}

// EyePosition returns the viewpoint position in world space.
func (e *Environment) EyePosition() math.Vec3 {
	return e.ViewTransform.Translation()
}
