package scene

import (
	"github.com/Faultbox/midgard-scenegraph/pkg/bounds"
	"github.com/Faultbox/midgard-scenegraph/pkg/math"
)

// Group holds an ordered list of children.
type Group struct {
	NodeBase
	children []Node
}

// NewGroup creates an empty group.
func NewGroup(name string) *Group {
	g := &Group{}
	g.InitNode(g, name)
	return g
}

func (g *Group) Capabilities() Capability { return CapGroup }

func (g *Group) Children() []Node { return g.children }

// AddChild appends c. It fails if c already has a parent or if g sits
// below c.
func (g *Group) AddChild(c Node) error {
	if err := g.CheckBoundsWrite(); err != nil {
		return err
	}
	if err := attach(g.self, c); err != nil {
		return err
	}
	g.children = append(g.children, c)
	g.invalidateBounds()
	return nil
}

// RemoveChild detaches c. A detached node is no longer live.
func (g *Group) RemoveChild(c Node) error {
	if err := g.CheckBoundsWrite(); err != nil {
		return err
	}
	for i, ch := range g.children {
		if ch == c {
			g.children = append(g.children[:i], g.children[i+1:]...)
			detach(g.self, c)
			g.invalidateBounds()
			return nil
		}
	}
	return ErrNotAttached
}

func (g *Group) ComputeBounds() bounds.Volume {
	if g.explicit != nil {
		return g.explicit
	}
	return unionBounds(g.children)
}

// TransformGroup is a group with a local transform. Only rigid transforms
// with uniform scale are supported.
type TransformGroup struct {
	Group
	transform math.Mat4
}

// NewTransformGroup creates a transform group with an identity transform.
func NewTransformGroup(name string) *TransformGroup {
	t := &TransformGroup{transform: math.Identity()}
	t.InitNode(t, name)
	return t
}

func (t *TransformGroup) Capabilities() Capability { return CapGroup | CapTransform }

func (t *TransformGroup) Transform() math.Mat4 { return t.transform }

// SetTransform replaces the local transform. On a live node it must be
// called from a bounds callback.
func (t *TransformGroup) SetTransform(m math.Mat4) error {
	if err := t.CheckBoundsWrite(); err != nil {
		return err
	}
	t.transform = m
	t.invalidateBounds()
	return nil
}

// ComputeBounds returns the children's bounds moved into the parent frame.
func (t *TransformGroup) ComputeBounds() bounds.Volume {
	return bounds.World(t.Group.ComputeBounds(), t.transform)
}

// SharedGroup is a group that may be attached under several parents.
type SharedGroup struct {
	Group
}

// NewSharedGroup creates an empty shared group.
func NewSharedGroup(name string) *SharedGroup {
	s := &SharedGroup{}
	s.InitNode(s, name)
	s.shared = true
	return s
}

// SharedNode is a pass-through wrapper with at most one child. Like
// SharedGroup it may have several parents.
type SharedNode struct {
	NodeBase
	child Node
}

// NewSharedNode creates a wrapper around child, which may be nil.
func NewSharedNode(name string, child Node) (*SharedNode, error) {
	s := &SharedNode{}
	s.InitNode(s, name)
	s.shared = true
	if child != nil {
		if err := s.SetChild(child); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *SharedNode) Capabilities() Capability { return CapSingleChild }

func (s *SharedNode) Child() Node { return s.child }

// SetChild replaces the wrapped node; nil clears it.
func (s *SharedNode) SetChild(c Node) error {
	if err := s.CheckBoundsWrite(); err != nil {
		return err
	}
	if c == s.child {
		return nil
	}
	if c != nil {
		if err := attach(s, c); err != nil {
			return err
		}
	}
	if s.child != nil {
		detach(s, s.child)
	}
	s.child = c
	s.invalidateBounds()
	return nil
}

func (s *SharedNode) ComputeBounds() bounds.Volume {
	if s.explicit != nil {
		return s.explicit
	}
	if s.child == nil {
		return bounds.Void{}
	}
	return s.child.Bounds()
}
