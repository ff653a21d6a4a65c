package cull

import (
	"github.com/Faultbox/midgard-scenegraph/internal/engine/render"
	"github.com/Faultbox/midgard-scenegraph/pkg/math"
)

// DefaultOutputIncrement is the record pool growth step.
const DefaultOutputIncrement = 256

const envIncrement = 4

// Record is one visible leaf. Transform is a copy, not a reference into the
// transform stack.
type Record struct {
	Renderable render.Renderable
	Transform  math.Mat4
}

// Frame is the output of one cull pass. Records and environments are pooled:
// the backing arrays grow by a fixed increment and never shrink, and only
// the first Count and EnvCount entries are valid.
type Frame struct {
	Kind render.Kind

	Records []Record
	Count   int

	Envs     []*render.Environment
	EnvCount int

	increment int
}

// NewFrame creates an empty frame for kind.
func NewFrame(kind render.Kind, increment int) *Frame {
	if increment <= 0 {
		increment = DefaultOutputIncrement
	}
	return &Frame{
		Kind:      kind,
		Records:   make([]Record, increment),
		increment: increment,
	}
}

// Reset invalidates all records and environments, keeping their storage.
func (f *Frame) Reset() {
	for i := 0; i < f.Count; i++ {
		f.Records[i].Renderable = nil
	}
	f.Count = 0
	for i := 0; i < f.EnvCount; i++ {
		f.Envs[i].Reset()
	}
	f.EnvCount = 0
}

func (f *Frame) addRecord(r render.Renderable, m *math.Mat4) {
	if f.Count == len(f.Records) {
		grown := make([]Record, len(f.Records)+f.increment)
		copy(grown, f.Records)
		f.Records = grown
	}
	f.Records[f.Count] = Record{Renderable: r, Transform: *m}
	f.Count++
}

func (f *Frame) addEnv() *render.Environment {
	if f.EnvCount == len(f.Envs) {
		for i := 0; i < envIncrement; i++ {
			e := &render.Environment{}
			e.Reset()
			f.Envs = append(f.Envs, e)
		}
	}
	e := f.Envs[f.EnvCount]
	f.EnvCount++
	return e
}

// dropEnv discards the last environment and its records.
func (f *Frame) dropEnv() {
	f.EnvCount--
	e := f.Envs[f.EnvCount]
	for i := e.First; i < f.Count; i++ {
		f.Records[i].Renderable = nil
	}
	f.Count = e.First
	e.Reset()
}

// Valid returns the valid records.
func (f *Frame) Valid() []Record { return f.Records[:f.Count] }

// Environments returns the valid environments in traversal order.
func (f *Frame) Environments() []*render.Environment { return f.Envs[:f.EnvCount] }

// SceneRecords returns the records of env.
func (f *Frame) SceneRecords(env *render.Environment) []Record {
	return f.Records[env.First : env.First+env.Count]
}

// Cap returns the record pool capacity.
func (f *Frame) Cap() int { return len(f.Records) }
