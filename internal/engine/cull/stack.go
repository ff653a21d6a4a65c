package cull

import "github.com/Faultbox/midgard-scenegraph/pkg/math"

// DefaultStackIncrement is the transform stack growth step.
const DefaultStackIncrement = 32

// TransformStack holds one accumulated transform per traversal depth. The
// caller's depth index is authoritative: pushing at depth d overwrites slot
// d+1 and returning from a recursive call is the pop.
type TransformStack struct {
	slots     []math.Mat4
	increment int
}

// NewTransformStack creates a stack that grows by increment slots.
func NewTransformStack(increment int) *TransformStack {
	if increment <= 0 {
		increment = DefaultStackIncrement
	}
	s := &TransformStack{
		slots:     make([]math.Mat4, increment),
		increment: increment,
	}
	s.slots[0] = math.Identity()
	return s
}

// Reset puts root in slot 0.
func (s *TransformStack) Reset(root math.Mat4) {
	s.slots[0] = root
}

// At returns the accumulated transform at depth.
func (s *TransformStack) At(depth int) *math.Mat4 {
	return &s.slots[depth]
}

// PushAt stores At(depth) x local in the next slot and returns its depth.
func (s *TransformStack) PushAt(depth int, local math.Mat4) int {
	next := depth + 1
	if next >= len(s.slots) {
		grown := make([]math.Mat4, len(s.slots)+s.increment)
		copy(grown, s.slots)
		s.slots = grown
	}
	math.MulInto(&s.slots[next], &s.slots[depth], &local)
	return next
}

// Cap returns the number of slots allocated.
func (s *TransformStack) Cap() int { return len(s.slots) }
