// Package device defines the output device protocol and a base
// implementation that handles lazy initialization, frame snapshots and
// disposal on top of a native Backend.
package device

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-scenegraph/internal/engine/render"
	"github.com/Faultbox/midgard-scenegraph/internal/report"
)

// State is the lifecycle state of a device.
type State uint32

const (
	StateUninitialized State = iota
	StateInitialized
	// StateFailed and StateTerminated are final.
	StateFailed
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateFailed:
		return "failed"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Profile carries per-frame timing between the pipeline and a device.
type Profile struct {
	Frame        uint64
	CullTime     time.Duration
	SortTime     time.Duration
	DrawTime     time.Duration
	Instructions int
}

// Device consumes sorted instruction lists.
type Device interface {
	Kind() render.Kind
	// SetInstructions replaces the list drawn next. The last call before a
	// Draw wins.
	SetInstructions(other any, l *render.Instructions)
	// Draw draws the current list, initializing the device on first use.
	// It returns false once the device is disposed or failed, and for a
	// frame that failed at runtime.
	Draw(p *Profile) bool
	Dispose()
	IsDisposed() bool
}

// Backend does the native work behind Base. Calls other than Release are
// made from the goroutine running Draw.
type Backend interface {
	// Init acquires the native context.
	Init() error
	BeginFrame() error
	// Environment applies a structural or environment op and reports
	// whether it was recognized.
	Environment(in *render.Instruction) bool
	// Context returns the context passed to the renderable of in.
	Context(in *render.Instruction) render.Context
	EndFrame() error
	// Release frees every native resource.
	Release() error
}

// Base implements Device over a Backend.
type Base struct {
	kind    render.Kind
	name    string
	backend Backend

	mu      sync.Mutex
	pending []render.Instruction
	other   any

	drawMu   sync.Mutex
	state    atomic.Uint32
	warned   map[render.Op]bool
	inited   bool // backend.Init succeeded; guarded by drawMu
	released bool

	reporter report.Reporter
	log      *zap.Logger
}

// Option configures a Base.
type Option func(*Base)

// WithReporter sets where init, draw and release failures go.
func WithReporter(r report.Reporter) Option {
	return func(b *Base) { b.reporter = report.OrNop(r) }
}

// WithLogger sets the debug logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Base) {
		if l != nil {
			b.log = l
		}
	}
}

// NewBase creates a device named name for kind.
func NewBase(name string, kind render.Kind, backend Backend, opts ...Option) *Base {
	b := &Base{
		kind:     kind,
		name:     name,
		backend:  backend,
		warned:   make(map[render.Op]bool),
		reporter: report.Nop(),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With(zap.String("device", name))
	return b
}

func (b *Base) Kind() render.Kind { return b.kind }

// Name returns the device name.
func (b *Base) Name() string { return b.name }

// State returns the lifecycle state.
func (b *Base) State() State { return State(b.state.Load()) }

func (b *Base) SetInstructions(other any, l *render.Instructions) {
	b.mu.Lock()
	if l == nil {
		b.pending = nil
	} else {
		b.pending = l.List[:l.Count]
	}
	b.other = other
	b.mu.Unlock()
}

func (b *Base) Draw(p *Profile) bool {
	b.drawMu.Lock()
	defer b.drawMu.Unlock()

	switch b.State() {
	case StateFailed, StateTerminated:
		return false
	case StateUninitialized:
		if err := b.initBackend(); err != nil {
			b.reporter.Fatal(fmt.Sprintf("%s device init failed", b.name), err)
			b.state.CompareAndSwap(uint32(StateUninitialized), uint32(StateFailed))
			return false
		}
		b.inited = true
		if !b.state.CompareAndSwap(uint32(StateUninitialized), uint32(StateInitialized)) {
			// Disposed during Init; Dispose releases once we return.
			return false
		}
		b.log.Debug("device initialized")
	}

	b.mu.Lock()
	list := b.pending
	b.mu.Unlock()

	start := time.Now()
	ok := b.drawList(list)
	if p != nil {
		p.DrawTime = time.Since(start)
		p.Instructions = len(list)
	}
	return ok && b.State() != StateTerminated
}

func (b *Base) initBackend() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return b.backend.Init()
}

func (b *Base) drawList(list []render.Instruction) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.reporter.Error(fmt.Sprintf("%s device draw failed", b.name), fmt.Errorf("panic: %v", r))
			ok = false
		}
	}()

	if err := b.backend.BeginFrame(); err != nil {
		b.reporter.Error(fmt.Sprintf("%s device begin frame", b.name), err)
		return false
	}
	for i := range list {
		if b.State() == StateTerminated {
			break
		}
		in := &list[i]
		switch in.Op {
		case render.OpStartRender:
			if in.Renderable != nil {
				in.Renderable.Render(b.backend.Context(in))
			}
		case render.OpStopRender:
			if in.Renderable != nil {
				in.Renderable.PostRender(b.backend.Context(in))
			}
		default:
			if !b.backend.Environment(in) && !b.warned[in.Op] {
				b.warned[in.Op] = true
				b.reporter.Warning(fmt.Sprintf("%s device ignores op %s", b.name, in.Op), nil)
			}
		}
	}
	if err := b.backend.EndFrame(); err != nil {
		b.reporter.Error(fmt.Sprintf("%s device end frame", b.name), err)
		return false
	}
	return true
}

// Dispose marks the device terminated, waits for a running Draw to stop
// and releases native resources. Release failures are reported, never
// returned. A failed device stays failed.
func (b *Base) Dispose() {
	prev := State(b.state.Load())
	for prev == StateUninitialized || prev == StateInitialized {
		if b.state.CompareAndSwap(uint32(prev), uint32(StateTerminated)) {
			break
		}
		prev = State(b.state.Load())
	}
	if prev == StateTerminated {
		return
	}

	b.drawMu.Lock()
	defer b.drawMu.Unlock()
	if b.released || (!b.inited && prev != StateFailed) {
		return
	}
	b.released = true
	if err := b.release(); err != nil {
		b.reporter.Error(fmt.Sprintf("%s device release failed", b.name), err)
	}
	b.log.Debug("device disposed", zap.Stringer("from", prev))
}

func (b *Base) release() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Join(err, fmt.Errorf("panic: %v", r))
		}
	}()
	return b.backend.Release()
}

func (b *Base) IsDisposed() bool {
	s := b.State()
	return s == StateTerminated || s == StateFailed
}

var _ Device = (*Base)(nil)
