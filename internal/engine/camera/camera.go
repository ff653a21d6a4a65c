// Package camera provides camera rigs that drive a viewpoint. A rig
// produces the camera-to-world transform for the TransformGroup the scene's
// Viewpoint hangs under.
package camera

import (
	gomath "math"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"

	"github.com/Faultbox/midgard-scenegraph/internal/engine/scene"
	"github.com/Faultbox/midgard-scenegraph/pkg/bounds"
	"github.com/Faultbox/midgard-scenegraph/pkg/math"
)

// OrbitCamera orbits around a center point.
type OrbitCamera struct {
	// Center point to orbit around
	Center math.Vec3

	// Spherical coordinates
	Distance  float32 // Distance from center
	RotationX float32 // Pitch (vertical angle, radians)
	RotationY float32 // Yaw (horizontal angle, radians)

	// Constraints
	MinDistance float32
	MaxDistance float32
	MinPitch    float32
	MaxPitch    float32

	// Sensitivity
	DragSensitivity float32
	ZoomSensitivity float32

	zoomTween *gween.Tween
}

// NewOrbitCamera creates a new orbit camera with default settings.
func NewOrbitCamera() *OrbitCamera {
	return &OrbitCamera{
		Distance:        20.0,
		RotationX:       0.5,
		MinDistance:     2.0,
		MaxDistance:     500.0,
		MinPitch:        -1.5,
		MaxPitch:        1.5,
		DragSensitivity: 0.005,
		ZoomSensitivity: 0.1,
	}
}

// Position returns the camera position in world space.
func (c *OrbitCamera) Position() math.Vec3 {
	sinX, cosX := gomath.Sincos(float64(c.RotationX))
	sinY, cosY := gomath.Sincos(float64(c.RotationY))
	offset := math.Vec3{
		X: c.Distance * float32(cosX*sinY),
		Y: c.Distance * float32(sinX),
		Z: c.Distance * float32(cosX*cosY),
	}
	return c.Center.Add(offset)
}

// ViewMatrix returns the view matrix for this camera.
func (c *OrbitCamera) ViewMatrix() math.Mat4 {
	return math.LookAt(c.Position(), c.Center, math.Vec3{Y: 1})
}

// WorldTransform returns the camera-to-world transform, the inverse of the
// view matrix.
func (c *OrbitCamera) WorldTransform() math.Mat4 {
	return c.ViewMatrix().Inverse()
}

// HandleDrag updates rotation based on mouse drag delta.
func (c *OrbitCamera) HandleDrag(deltaX, deltaY float32) {
	c.RotationY -= deltaX * c.DragSensitivity
	c.RotationX += deltaY * c.DragSensitivity
	c.RotationX = clamp(c.RotationX, c.MinPitch, c.MaxPitch)
}

// HandleZoom updates distance based on scroll wheel delta.
func (c *OrbitCamera) HandleZoom(delta float32) {
	c.zoomTween = nil
	c.SetDistance(c.Distance - delta*c.Distance*c.ZoomSensitivity)
}

// SetDistance sets the orbit distance within the limits.
func (c *OrbitCamera) SetDistance(d float32) {
	c.Distance = clamp(d, c.MinDistance, c.MaxDistance)
}

// ZoomTo animates the distance to d over duration seconds. A manual zoom
// cancels the animation.
func (c *OrbitCamera) ZoomTo(d, duration float32, easeFn ease.TweenFunc) {
	if easeFn == nil {
		easeFn = ease.OutCubic
	}
	c.zoomTween = gween.New(c.Distance, clamp(d, c.MinDistance, c.MaxDistance), duration, easeFn)
}

// Zooming reports whether a ZoomTo animation is running.
func (c *OrbitCamera) Zooming() bool { return c.zoomTween != nil }

// Update advances animations by dt seconds and reports whether the camera
// moved.
func (c *OrbitCamera) Update(dt float32) bool {
	if c.zoomTween == nil {
		return false
	}
	d, done := c.zoomTween.Update(dt)
	c.Distance = d
	if done {
		c.zoomTween = nil
	}
	return true
}

// HandleMovement pans the camera center point based on keyboard input.
func (c *OrbitCamera) HandleMovement(forward, right, up float32) {
	// Speed scales with distance for consistent feel
	speed := c.Distance * 0.01

	sinY, cosY := gomath.Sincos(float64(c.RotationY))
	dirX, dirZ := float32(sinY), float32(cosY)
	rightX, rightZ := float32(cosY), float32(-sinY)

	// Negate forward so it moves "into" the scene
	c.Center.X += (-dirX*forward + rightX*right) * speed
	c.Center.Z += (-dirZ*forward + rightZ*right) * speed
	c.Center.Y += up * speed
}

// FitToBounds centers the camera on v and backs off until it is in view.
// Void volumes are ignored.
func (c *OrbitCamera) FitToBounds(v bounds.Volume) {
	if v == nil || bounds.IsVoid(v) {
		return
	}
	lo, hi := v.Extents()
	c.Center = v.Center()
	c.SetDistance(hi.Sub(lo).Length() * 1.5)
}

// Apply writes the camera transform into rig. When rig is live the write
// is queued on u and takes effect before the next cull.
func (c *OrbitCamera) Apply(rig *scene.TransformGroup, u *scene.Updater) error {
	m := c.WorldTransform()
	if !rig.IsLive() || u == nil {
		return rig.SetTransform(m)
	}
	return u.BoundsChanged(rig, func(scene.Node) error {
		return rig.SetTransform(m)
	})
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
