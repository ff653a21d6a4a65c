// Package render holds the data exchanged between the cull stage, the sort
// stage and the output devices: renderable payloads, environment snapshots
// and instruction lists.
package render

import (
	"github.com/Faultbox/midgard-scenegraph/pkg/bounds"
	"github.com/Faultbox/midgard-scenegraph/pkg/math"
)

// Kind identifies which output device a leaf payload is meant for.
type Kind uint8

const (
	KindGraphics Kind = iota
	KindAudio
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindGraphics:
		return "graphics"
	case KindAudio:
		return "audio"
	}
	return "unknown"
}

// Context is the opaque device context handed to renderables while a
// device draws. Each device documents its concrete type.
type Context any

// Renderable is the payload carried by scene graph leaves. Cull and sort
// only query Enabled, Transparent and Equal; Render and PostRender are
// called by the output device alone.
type Renderable interface {
	// Enabled reports whether the payload should be drawn this frame.
	Enabled() bool
	// Transparent reports whether the payload needs blending.
	Transparent() bool
	// Equal reports object identity for bucketing.
	Equal(other Renderable) bool
	Render(ctx Context)
	PostRender(ctx Context)
}

// Stateful is implemented by renderables that can be grouped by render
// state; equal keys share state.
type Stateful interface {
	StateKey() uint64
}

// Bounded is implemented by renderables that know their local bounds.
type Bounded interface {
	Bounds() bounds.Volume
}

// Pickable is implemented by renderables that can refine a bounds hit with
// an exact geometry test. The ray is in the payload's local space.
type Pickable interface {
	PickRay(origin, dir math.Vec3) (distance float32, hit bool)
}
