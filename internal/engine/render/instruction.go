package render

import "github.com/Faultbox/midgard-scenegraph/pkg/math"

// Op is a render operation code.
type Op uint8

const (
	OpNone Op = iota
	OpStartLayer
	OpStopLayer
	OpStartViewport
	OpStopViewport
	// OpStartScene carries the scene environment.
	OpStartScene
	OpStopScene
	OpSetViewpoint
	OpSetBackground
	OpSetFog
	OpStartTransparent
	OpStopTransparent
	OpStartRender
	OpStopRender
)

var opNames = [...]string{
	OpNone:             "none",
	OpStartLayer:       "start-layer",
	OpStopLayer:        "stop-layer",
	OpStartViewport:    "start-viewport",
	OpStopViewport:     "stop-viewport",
	OpStartScene:       "start-scene",
	OpStopScene:        "stop-scene",
	OpSetViewpoint:     "set-viewpoint",
	OpSetBackground:    "set-background",
	OpSetFog:           "set-fog",
	OpStartTransparent: "start-transparent",
	OpStopTransparent:  "stop-transparent",
	OpStartRender:      "start-render",
	OpStopRender:       "stop-render",
}

// String returns the op name.
func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "unknown"
}

// Instruction is one entry of a sorted instruction list.
type Instruction struct {
	Op          Op
	Renderable  Renderable
	Transform   math.Mat4
	Environment *Environment
}

// Instructions is a pooled instruction list. List grows by Increment and
// never shrinks; only the first Count entries are valid.
type Instructions struct {
	List      []Instruction
	Count     int
	Increment int
}

// NewInstructions creates a list with room for increment entries.
func NewInstructions(increment int) *Instructions {
	if increment <= 0 {
		increment = 256
	}
	return &Instructions{
		List:      make([]Instruction, increment),
		Increment: increment,
	}
}

// Reset drops all entries, keeping capacity.
func (l *Instructions) Reset() {
	for i := 0; i < l.Count; i++ {
		l.List[i] = Instruction{}
	}
	l.Count = 0
}

// Add appends an instruction, growing the backing array by Increment when
// full.
func (l *Instructions) Add(op Op, r Renderable, transform *math.Mat4, env *Environment) {
	if l.Count == len(l.List) {
		grown := make([]Instruction, len(l.List)+l.Increment)
		copy(grown, l.List)
		l.List = grown
	}
	in := &l.List[l.Count]
	in.Op = op
	in.Renderable = r
	if transform != nil {
		in.Transform = *transform
	} else {
		in.Transform = math.Identity()
	}
	in.Environment = env
	l.Count++
}

// Valid returns the valid prefix of List.
func (l *Instructions) Valid() []Instruction {
	return l.List[:l.Count]
}
