// Package sorter turns cull frames into instruction lists for an output
// device.
package sorter

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-scenegraph/internal/engine/cull"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/render"
)

// Receiver takes finished instruction lists. Output devices implement it.
type Receiver interface {
	SetInstructions(other any, l *render.Instructions)
}

// Options configures a Stage.
type Options struct {
	Mode      Mode
	Increment int
	Logger    *zap.Logger
}

// Stage sorts frames delivered by a cull stage. It implements
// cull.Receiver. Output lists are double buffered so the list handed to
// the device is never the one being filled.
type Stage struct {
	mode    Mode
	halted  atomic.Bool
	lists   [2]*render.Instructions
	current int

	opaque      []entry
	transparent []entry
	scratch     []entry

	receiver Receiver
	log      *zap.Logger
}

// New creates a sort stage.
func New(opts Options) *Stage {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Stage{
		mode: opts.Mode,
		log:  log.With(zap.Stringer("sort", opts.Mode)),
	}
	s.lists[0] = render.NewInstructions(opts.Increment)
	s.lists[1] = render.NewInstructions(opts.Increment)
	return s
}

// Mode returns the ordering mode.
func (s *Stage) Mode() Mode { return s.mode }

// SetReceiver registers the device taking instruction lists.
func (s *Stage) SetReceiver(r Receiver) { s.receiver = r }

func (s *Stage) Halt()        { s.halted.Store(true) }
func (s *Stage) Resume()      { s.halted.Store(false) }
func (s *Stage) Halted() bool { return s.halted.Load() }

// CullComplete sorts f and hands the result to the receiver.
func (s *Stage) CullComplete(other any, f *cull.Frame) {
	l := s.Sort(f)
	if l == nil || s.receiver == nil {
		return
	}
	s.receiver.SetInstructions(other, l)
}

// Sort builds the instruction list for f. It returns nil when halted. The
// list stays valid until the call after next.
func (s *Stage) Sort(f *cull.Frame) *render.Instructions {
	if f == nil || s.halted.Load() {
		return nil
	}
	l := s.lists[s.current]
	l.Reset()

	layer, viewport := -1, -1
	for _, env := range f.Environments() {
		if s.halted.Load() {
			return nil
		}
		if env.Layer != layer {
			if viewport >= 0 {
				l.Add(render.OpStopViewport, nil, nil, nil)
			}
			if layer >= 0 {
				l.Add(render.OpStopLayer, nil, nil, nil)
			}
			layer, viewport = env.Layer, -1
			l.Add(render.OpStartLayer, nil, nil, env)
		}
		if env.ViewportIndex != viewport {
			if viewport >= 0 {
				l.Add(render.OpStopViewport, nil, nil, nil)
			}
			viewport = env.ViewportIndex
			l.Add(render.OpStartViewport, nil, nil, env)
		}
		if !s.sortScene(l, f, env) {
			return nil
		}
	}
	if viewport >= 0 {
		l.Add(render.OpStopViewport, nil, nil, nil)
	}
	if layer >= 0 {
		l.Add(render.OpStopLayer, nil, nil, nil)
	}

	s.current ^= 1
	return l
}

func (s *Stage) sortScene(l *render.Instructions, f *cull.Frame, env *render.Environment) bool {
	l.Add(render.OpStartScene, nil, nil, env)
	if env.Viewpoint != nil {
		l.Add(render.OpSetViewpoint, env.Viewpoint, &env.ViewTransform, env)
	}
	if env.Background != nil {
		l.Add(render.OpSetBackground, env.Background, &env.ViewTransform, env)
	}
	if env.Fog != nil {
		l.Add(render.OpSetFog, env.Fog, &env.ViewTransform, env)
	}

	records := f.SceneRecords(env)
	if s.mode == ModeNull {
		for i := range records {
			if s.halted.Load() {
				return false
			}
			emit(l, &records[i], env)
		}
		l.Add(render.OpStopScene, nil, nil, env)
		return true
	}

	s.opaque = s.opaque[:0]
	s.transparent = s.transparent[:0]
	for i := range records {
		if s.halted.Load() {
			return false
		}
		r := &records[i]
		e := entry{index: i, seq: i, depth: viewDepth(r, env)}
		if r.Renderable.Transparent() {
			s.transparent = append(s.transparent, e)
			continue
		}
		if st, ok := r.Renderable.(render.Stateful); ok {
			e.key = st.StateKey()
		}
		s.opaque = append(s.opaque, e)
	}

	if s.mode == ModeStateDepth {
		s.scratch = mergeSort(s.opaque, s.scratch, byStateThenDepth)
	}
	for i := range s.opaque {
		emit(l, &records[s.opaque[i].index], env)
	}
	if len(s.transparent) > 0 {
		s.scratch = mergeSort(s.transparent, s.scratch, backToFront)
		l.Add(render.OpStartTransparent, nil, nil, env)
		for i := range s.transparent {
			emit(l, &records[s.transparent[i].index], env)
		}
		l.Add(render.OpStopTransparent, nil, nil, env)
	}
	l.Add(render.OpStopScene, nil, nil, env)
	return true
}

func emit(l *render.Instructions, r *cull.Record, env *render.Environment) {
	l.Add(render.OpStartRender, r.Renderable, &r.Transform, env)
	l.Add(render.OpStopRender, r.Renderable, &r.Transform, env)
}

// viewDepth returns the distance of the record in front of the viewpoint,
// measured at the center of its bounds when it has them.
func viewDepth(r *cull.Record, env *render.Environment) float32 {
	p := r.Transform.Translation()
	if b, ok := r.Renderable.(render.Bounded); ok {
		if v := b.Bounds(); v != nil {
			p = r.Transform.MulPoint(v.Center())
		}
	}
	return -env.View.MulPoint(p).Z
}
