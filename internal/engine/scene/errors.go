package scene

import (
	"errors"
	"fmt"
)

var (
	// ErrCycle is returned when an attach would make a node its own ancestor.
	ErrCycle = errors.New("scene: attach would create a cycle")
	// ErrAlreadyParented is returned when a non-shared node gets a second parent.
	ErrAlreadyParented = errors.New("scene: node already has a parent")
	// ErrMultipleParents is returned by upward walks that meet a shared node.
	ErrMultipleParents = errors.New("scene: ambiguous transform path")
	// ErrInvalidWriteTiming is returned when a live node is mutated outside
	// its update callback.
	ErrInvalidWriteTiming = errors.New("scene: write outside update callback")
	// ErrNilNode is returned when a nil child is attached.
	ErrNilNode = errors.New("scene: nil node")
	// ErrNotAttached is returned when removing a node that is not a child.
	ErrNotAttached = errors.New("scene: node is not a child")
)

// CycleError describes a rejected attach.
type CycleError struct {
	Parent Node
	Child  Node
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("scene: attaching %s under %s would create a cycle", nameOf(e.Child), nameOf(e.Parent))
}

func (e *CycleError) Unwrap() error { return ErrCycle }

// AmbiguousPathError is returned when an upward transform walk reaches a
// node with more than one parent.
type AmbiguousPathError struct {
	// Start is where the walk began; Node is the shared node that stopped it.
	Start Node
	Node  Node
}

func (e *AmbiguousPathError) Error() string {
	return fmt.Sprintf("scene: %s has multiple parents on the path up from %s", nameOf(e.Node), nameOf(e.Start))
}

func (e *AmbiguousPathError) Unwrap() error { return ErrMultipleParents }

// WriteKind tells which update window a write needs.
type WriteKind uint8

const (
	BoundsWrite WriteKind = iota
	DataWrite
)

func (w WriteKind) String() string {
	if w == BoundsWrite {
		return "bounds"
	}
	return "data"
}

// TimingError is returned by mutators called on a live node outside the
// matching update callback.
type TimingError struct {
	Node  Node
	Write WriteKind
}

func (e *TimingError) Error() string {
	return fmt.Sprintf("scene: %s write to live node %s outside its update callback", e.Write, nameOf(e.Node))
}

func (e *TimingError) Unwrap() error { return ErrInvalidWriteTiming }

func nameOf(n Node) string {
	if n == nil {
		return "<nil>"
	}
	if name := n.AsNodeBase().Name(); name != "" {
		return fmt.Sprintf("%q", name)
	}
	return fmt.Sprintf("%T", n)
}
