package device

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-scenegraph/internal/engine/render"
)

// HeadlessContext is the render.Context of a headless device.
type HeadlessContext struct {
	Instruction *render.Instruction
	Environment *render.Environment
}

// Headless is a Backend without native resources. It keeps counters so
// benchmarks and tests can see what was drawn.
type Headless struct {
	log *zap.Logger
	ctx HeadlessContext

	frames  atomic.Uint64
	renders atomic.Uint64
	scenes  atomic.Uint64
}

// NewHeadless creates a headless backend. log may be nil.
func NewHeadless(log *zap.Logger) *Headless {
	if log == nil {
		log = zap.NewNop()
	}
	return &Headless{log: log}
}

// NewHeadlessDevice wraps a headless backend in a Base.
func NewHeadlessDevice(name string, kind render.Kind, opts ...Option) (*Base, *Headless) {
	h := NewHeadless(nil)
	b := NewBase(name, kind, h, opts...)
	h.log = b.log
	return b, h
}

func (h *Headless) Init() error {
	h.log.Debug("headless device ready")
	return nil
}

func (h *Headless) BeginFrame() error { return nil }

func (h *Headless) Environment(in *render.Instruction) bool {
	switch in.Op {
	case render.OpStartScene:
		h.scenes.Add(1)
		h.ctx.Environment = in.Environment
	case render.OpStopScene:
		h.ctx.Environment = nil
	case render.OpStartLayer, render.OpStopLayer,
		render.OpStartViewport, render.OpStopViewport,
		render.OpSetViewpoint, render.OpSetBackground, render.OpSetFog,
		render.OpStartTransparent, render.OpStopTransparent:
	default:
		return false
	}
	return true
}

func (h *Headless) Context(in *render.Instruction) render.Context {
	if in.Op == render.OpStartRender {
		h.renders.Add(1)
	}
	h.ctx.Instruction = in
	return &h.ctx
}

func (h *Headless) EndFrame() error {
	n := h.frames.Add(1)
	if n%600 == 0 {
		h.log.Debug("headless frames", zap.Uint64("frames", n), zap.Uint64("renders", h.renders.Load()))
	}
	return nil
}

func (h *Headless) Release() error { return nil }

// Frames returns the number of frames ended.
func (h *Headless) Frames() uint64 { return h.frames.Load() }

// Renders returns the number of StartRender instructions seen.
func (h *Headless) Renders() uint64 { return h.renders.Load() }

// Scenes returns the number of scenes started.
func (h *Headless) Scenes() uint64 { return h.scenes.Load() }
