package scene

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// UpdateHandler decides whether a live node may be written right now.
type UpdateHandler interface {
	IsBoundsWritePermitted(n Node) bool
	IsDataWritePermitted(n Node) bool
}

// UpdateFunc mutates n from inside its update window.
type UpdateFunc func(n Node) error

type update struct {
	node Node
	kind WriteKind
	fn   UpdateFunc
}

type window struct {
	node Node
	kind WriteKind
}

// Updater is the UpdateHandler used by the pipeline. Applications queue
// callbacks with BoundsChanged and DataChanged from any goroutine; the
// pipeline runs them between frames with ProcessUpdates, opening the write
// window for one node at a time.
type Updater struct {
	mu      sync.Mutex
	pending []update
	spare   []update

	open    atomic.Pointer[window]
	culling atomic.Int32

	log *zap.Logger
}

// NewUpdater creates an updater. log may be nil.
func NewUpdater(log *zap.Logger) *Updater {
	if log == nil {
		log = zap.NewNop()
	}
	return &Updater{log: log}
}

// BoundsChanged schedules fn to run with bounds writes to n permitted.
// Afterwards the bounds of n and its ancestors are recomputed. When n is
// not live fn runs immediately.
func (u *Updater) BoundsChanged(n Node, fn UpdateFunc) error {
	return u.schedule(n, BoundsWrite, fn)
}

// DataChanged schedules fn to run with data writes to n permitted.
func (u *Updater) DataChanged(n Node, fn UpdateFunc) error {
	return u.schedule(n, DataWrite, fn)
}

func (u *Updater) schedule(n Node, kind WriteKind, fn UpdateFunc) error {
	if n == nil {
		return ErrNilNode
	}
	if !n.IsLive() {
		return fn(n)
	}
	u.mu.Lock()
	u.pending = append(u.pending, update{node: n, kind: kind, fn: fn})
	u.mu.Unlock()
	return nil
}

// Pending returns the number of queued callbacks.
func (u *Updater) Pending() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.pending)
}

// ProcessUpdates runs every queued callback in order. Callbacks queued
// while processing run on the next call. Errors are joined.
func (u *Updater) ProcessUpdates() error {
	u.mu.Lock()
	batch := u.pending
	u.pending = u.spare[:0]
	u.mu.Unlock()

	if len(batch) == 0 {
		u.mu.Lock()
		u.spare = batch
		u.mu.Unlock()
		return nil
	}

	var errs []error
	for i := range batch {
		up := batch[i]
		batch[i] = update{}

		err := u.run(up)

		if up.kind == BoundsWrite {
			UpdateBounds(up.node)
		}
		if err != nil {
			u.log.Warn("update callback failed",
				zap.String("node", nameOf(up.node)),
				zap.Stringer("write", up.kind),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("update %s: %w", nameOf(up.node), err))
		}
	}
	u.log.Debug("processed updates", zap.Int("count", len(batch)))

	u.mu.Lock()
	u.spare = batch[:0]
	u.mu.Unlock()
	return errors.Join(errs...)
}

// run calls up.fn inside its write window. The window is closed even when
// the callback panics; the panic comes back as an error.
func (u *Updater) run(up update) (err error) {
	u.open.Store(&window{node: up.node, kind: up.kind})
	defer func() {
		u.open.Store(nil)
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return up.fn(up.node)
}

func (u *Updater) IsBoundsWritePermitted(n Node) bool {
	w := u.open.Load()
	return w != nil && w.kind == BoundsWrite && w.node == n
}

// IsDataWritePermitted also allows data writes inside a bounds window.
func (u *Updater) IsDataWritePermitted(n Node) bool {
	w := u.open.Load()
	return w != nil && w.node == n
}

// BeginCull marks a cull traversal as running. Calls nest.
func (u *Updater) BeginCull() { u.culling.Add(1) }

// EndCull ends a traversal started with BeginCull.
func (u *Updater) EndCull() { u.culling.Add(-1) }

// IsPickingPermitted reports whether no cull traversal is running.
func (u *Updater) IsPickingPermitted() bool { return u.culling.Load() == 0 }

var _ UpdateHandler = (*Updater)(nil)
