// Package scene implements the retained scene graph walked by the cull and
// pick traversals.
//
// Nodes are described by a capability bitmask rather than a type hierarchy;
// traversals switch on Capabilities and then use the matching interface.
// Mutating a live node is only allowed from inside an update callback
// granted by the node's UpdateHandler.
package scene

import (
	"github.com/Faultbox/midgard-scenegraph/internal/engine/render"
	"github.com/Faultbox/midgard-scenegraph/pkg/bounds"
	"github.com/Faultbox/midgard-scenegraph/pkg/math"
)

// Capability is a set of traversal roles a node plays.
type Capability uint16

const (
	CapGroup Capability = 1 << iota
	CapSingleChild
	CapLeaf
	CapTransform
	CapCustom
	CapEnvironment
)

// Has reports whether all bits of o are set.
func (c Capability) Has(o Capability) bool { return c&o == o }

// Node is any scene graph node. Implementations embed NodeBase and call
// InitNode from their constructor.
type Node interface {
	Capabilities() Capability
	AsNodeBase() *NodeBase
	Parent() Node
	HasMultipleParents() bool
	IsLive() bool
	// Bounds returns the memoized bounds in the parent's frame.
	Bounds() bounds.Volume
	// ComputeBounds recomputes the bounds without consulting the memo.
	ComputeBounds() bounds.Volume
}

// Grouping is implemented by nodes with an ordered child list. The returned
// slice must not be modified.
type Grouping interface {
	Node
	Children() []Node
}

// SingleChild is implemented by pass-through wrappers.
type SingleChild interface {
	Node
	Child() Node
}

// Leaf is implemented by nodes carrying a renderable payload.
type Leaf interface {
	Node
	Renderable() render.Renderable
	Kind() render.Kind
}

// TransformBearing is implemented by nodes with a local transform.
type TransformBearing interface {
	Node
	Transform() math.Mat4
}

// CustomResult is one record synthesized by a custom node.
type CustomResult struct {
	Renderable render.Renderable
	Transform  math.Mat4
}

// Custom nodes produce their own output at cull time. world is the
// accumulated transform of the node, view the world transform of the active
// viewpoint. Results are appended to out and returned.
type Custom interface {
	Node
	Cull(world, view math.Mat4, frustum *bounds.Frustum, kind render.Kind, out []CustomResult) []CustomResult
}

// Environmental is implemented by viewpoints, backgrounds and fog.
type Environmental interface {
	Node
	Renderable() render.Renderable
}

// sceneRoot marks nodes where upward walks stop.
type sceneRoot interface {
	isSceneRoot()
}

// NodeBase holds state shared by every node.
type NodeBase struct {
	name    string
	self    Node
	parents []Node
	shared  bool
	live    bool
	handler UpdateHandler

	explicit    bounds.Volume
	bounds      bounds.Volume
	boundsValid bool
}

// InitNode binds the base to the node embedding it.
func (n *NodeBase) InitNode(self Node, name string) {
	n.self = self
	n.name = name
}

func (n *NodeBase) AsNodeBase() *NodeBase { return n }

// Name returns the debug name.
func (n *NodeBase) Name() string { return n.name }

// Parent returns the first parent, or nil.
func (n *NodeBase) Parent() Node {
	if len(n.parents) == 0 {
		return nil
	}
	return n.parents[0]
}

// Parents returns all parents. The slice must not be modified.
func (n *NodeBase) Parents() []Node { return n.parents }

func (n *NodeBase) HasMultipleParents() bool { return len(n.parents) > 1 }

func (n *NodeBase) IsLive() bool { return n.live }

// Handler returns the update handler of a live node.
func (n *NodeBase) Handler() UpdateHandler { return n.handler }

// Bounds returns the memoized bounds. A live node keeps its last value until
// UpdateBounds is called.
func (n *NodeBase) Bounds() bounds.Volume {
	if n.boundsValid || (n.live && n.bounds != nil) {
		return n.bounds
	}
	if n.self == nil {
		return n.ComputeBounds()
	}
	n.bounds = n.self.ComputeBounds()
	n.boundsValid = true
	return n.bounds
}

// ComputeBounds returns the explicit bounds, or Void.
func (n *NodeBase) ComputeBounds() bounds.Volume {
	if n.explicit != nil {
		return n.explicit
	}
	return bounds.Void{}
}

// SetBounds overrides the computed bounds. Pass nil to go back to
// computing them.
func (n *NodeBase) SetBounds(v bounds.Volume) error {
	if err := n.CheckBoundsWrite(); err != nil {
		return err
	}
	n.explicit = v
	n.invalidateBounds()
	return nil
}

// CheckBoundsWrite returns a TimingError when the node is live and the
// handler does not currently permit bounds writes to it.
func (n *NodeBase) CheckBoundsWrite() error {
	if !n.live || (n.handler != nil && n.handler.IsBoundsWritePermitted(n.self)) {
		return nil
	}
	return &TimingError{Node: n.self, Write: BoundsWrite}
}

// CheckDataWrite is CheckBoundsWrite for data-only writes.
func (n *NodeBase) CheckDataWrite() error {
	if !n.live || (n.handler != nil && n.handler.IsDataWritePermitted(n.self)) {
		return nil
	}
	return &TimingError{Node: n.self, Write: DataWrite}
}

func (n *NodeBase) invalidateBounds() {
	if n.live {
		return
	}
	n.boundsValid = false
	for _, p := range n.parents {
		p.AsNodeBase().invalidateBounds()
	}
}

func (n *NodeBase) hasLiveParent() bool {
	for _, p := range n.parents {
		if p.IsLive() {
			return true
		}
	}
	return false
}

// UpdateBounds recomputes the bounds of n and of every ancestor, live or not.
func UpdateBounds(n Node) {
	nb := n.AsNodeBase()
	nb.bounds = n.ComputeBounds()
	nb.boundsValid = true
	for _, p := range nb.parents {
		UpdateBounds(p)
	}
}

// Activate makes root and its subtree live under h.
func Activate(root Node, h UpdateHandler) {
	setLive(root, true, h)
}

// Deactivate makes root and every descendant without another live parent
// not live.
func Deactivate(root Node) {
	setLive(root, false, nil)
}

func setLive(n Node, live bool, h UpdateHandler) {
	nb := n.AsNodeBase()
	if live {
		if nb.live {
			return
		}
		nb.live = true
		nb.handler = h
	} else {
		if !nb.live || nb.hasLiveParent() {
			return
		}
		nb.live = false
		nb.handler = nil
		nb.boundsValid = false
	}
	eachChild(n, func(c Node) { setLive(c, live, h) })
}

func eachChild(n Node, fn func(Node)) {
	switch c := n.(type) {
	case Grouping:
		for _, ch := range c.Children() {
			fn(ch)
		}
	case SingleChild:
		if ch := c.Child(); ch != nil {
			fn(ch)
		}
	}
}

// reaches reports whether target is from or one of its ancestors.
func reaches(from, target Node) bool {
	if from == target {
		return true
	}
	for _, p := range from.AsNodeBase().parents {
		if reaches(p, target) {
			return true
		}
	}
	return false
}

func attach(parent, child Node) error {
	if child == nil {
		return ErrNilNode
	}
	if reaches(parent, child) {
		return &CycleError{Parent: parent, Child: child}
	}
	cb := child.AsNodeBase()
	if len(cb.parents) > 0 && !cb.shared {
		return &alreadyParentedError{child: child}
	}
	cb.parents = append(cb.parents, parent)
	if pb := parent.AsNodeBase(); pb.live {
		setLive(child, true, pb.handler)
	}
	return nil
}

func detach(parent, child Node) {
	cb := child.AsNodeBase()
	for i, p := range cb.parents {
		if p == parent {
			cb.parents = append(cb.parents[:i], cb.parents[i+1:]...)
			break
		}
	}
	setLive(child, false, nil)
}

type alreadyParentedError struct {
	child Node
}

func (e *alreadyParentedError) Error() string {
	return "scene: " + nameOf(e.child) + " already has a parent"
}

func (e *alreadyParentedError) Unwrap() error { return ErrAlreadyParented }

// unionBounds returns the box around every child, or Void if any child is
// unbounded or there are none.
func unionBounds(children []Node) bounds.Volume {
	if len(children) == 0 {
		return bounds.Void{}
	}
	b := bounds.EmptyBox()
	for _, c := range children {
		v := c.Bounds()
		if bounds.IsVoid(v) {
			return bounds.Void{}
		}
		b.Extend(v)
	}
	return b
}
