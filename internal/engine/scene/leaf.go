package scene

import (
	"github.com/Faultbox/midgard-scenegraph/internal/engine/render"
	"github.com/Faultbox/midgard-scenegraph/pkg/bounds"
)

// leaf is the shared part of Shape and Sound.
type leaf struct {
	NodeBase
	payload render.Renderable
}

func (l *leaf) Capabilities() Capability { return CapLeaf }

func (l *leaf) Renderable() render.Renderable { return l.payload }

// SetRenderable replaces the payload. The payload's bounds may differ, so
// this is a bounds write.
func (l *leaf) SetRenderable(r render.Renderable) error {
	if err := l.CheckBoundsWrite(); err != nil {
		return err
	}
	l.payload = r
	l.invalidateBounds()
	return nil
}

// ComputeBounds uses explicit bounds first, then the payload's own bounds.
func (l *leaf) ComputeBounds() bounds.Volume {
	if l.explicit != nil {
		return l.explicit
	}
	if b, ok := l.payload.(render.Bounded); ok {
		if v := b.Bounds(); v != nil {
			return v
		}
	}
	return bounds.Void{}
}

// Shape is a graphics leaf.
type Shape struct {
	leaf
}

// NewShape creates a shape around r.
func NewShape(name string, r render.Renderable) *Shape {
	s := &Shape{leaf{payload: r}}
	s.InitNode(s, name)
	return s
}

func (s *Shape) Kind() render.Kind { return render.KindGraphics }

// Sound is an audio leaf.
type Sound struct {
	leaf
}

// NewSound creates a sound around r.
func NewSound(name string, r render.Renderable) *Sound {
	s := &Sound{leaf{payload: r}}
	s.InitNode(s, name)
	return s
}

func (s *Sound) Kind() render.Kind { return render.KindAudio }
