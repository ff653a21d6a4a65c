package scene

import (
	gomath "math"

	"github.com/Faultbox/midgard-scenegraph/internal/engine/render"
	"github.com/Faultbox/midgard-scenegraph/pkg/math"
)

// envNode is the shared part of the environment nodes.
type envNode struct {
	NodeBase
	payload render.Renderable
}

func (e *envNode) Capabilities() Capability { return CapEnvironment }

func (e *envNode) Renderable() render.Renderable { return e.payload }

// SetRenderable replaces the device payload.
func (e *envNode) SetRenderable(r render.Renderable) error {
	if err := e.CheckDataWrite(); err != nil {
		return err
	}
	e.payload = r
	return nil
}

// Viewpoint is a camera placed by its ancestors' transforms. It looks down
// its local -Z axis.
type Viewpoint struct {
	envNode
	fov       float32
	near, far float32
}

// NewViewpoint creates a viewpoint with a 45 degree vertical field of view.
func NewViewpoint(name string) *Viewpoint {
	v := &Viewpoint{
		fov:  gomath.Pi / 4,
		near: 0.1,
		far:  1000,
	}
	v.InitNode(v, name)
	return v
}

// FieldOfView returns the vertical field of view in radians.
func (v *Viewpoint) FieldOfView() float32 { return v.fov }

// ClipPlanes returns the near and far distances.
func (v *Viewpoint) ClipPlanes() (near, far float32) { return v.near, v.far }

// SetFieldOfView sets the vertical field of view in radians.
func (v *Viewpoint) SetFieldOfView(fov float32) error {
	if err := v.CheckDataWrite(); err != nil {
		return err
	}
	v.fov = fov
	return nil
}

// SetClipPlanes sets the near and far distances.
func (v *Viewpoint) SetClipPlanes(near, far float32) error {
	if err := v.CheckDataWrite(); err != nil {
		return err
	}
	v.near, v.far = near, far
	return nil
}

// Projection returns the perspective matrix for the given aspect ratio.
func (v *Viewpoint) Projection(aspect float32) math.Mat4 {
	return math.Perspective(v.fov, aspect, v.near, v.far)
}

// Background clears the view before the scene is drawn.
type Background struct {
	envNode
}

// NewBackground creates a background around r.
func NewBackground(name string, r render.Renderable) *Background {
	b := &Background{envNode{payload: r}}
	b.InitNode(b, name)
	return b
}

// Fog is a scene-wide fog setting.
type Fog struct {
	envNode
}

// NewFog creates a fog node around r.
func NewFog(name string, r render.Renderable) *Fog {
	f := &Fog{envNode{payload: r}}
	f.InitNode(f, name)
	return f
}

// WorldTransform accumulates the transforms from n up to its scene root,
// including n's own transform. It fails with an AmbiguousPathError when any
// node on the way has more than one parent.
func WorldTransform(n Node) (math.Mat4, error) {
	m := math.Identity()
	for cur := n; cur != nil; cur = cur.Parent() {
		if _, ok := cur.(sceneRoot); ok {
			break
		}
		if cur.HasMultipleParents() {
			return math.Identity(), &AmbiguousPathError{Start: n, Node: cur}
		}
		if tb, ok := cur.(TransformBearing); ok && cur.Capabilities().Has(CapTransform) {
			m = tb.Transform().Mul(m)
		}
	}
	return m, nil
}
