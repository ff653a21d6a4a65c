// Package pipeline owns the scene layers and runs one cull, sort and draw
// chain per output device, either on the caller's goroutine or with one
// render goroutine per device.
package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-scenegraph/internal/config"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/cull"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/device"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/picking"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/scene"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/sorter"
	"github.com/Faultbox/midgard-scenegraph/internal/report"
)

// ErrNoDevices is returned by Run when no device was added.
var ErrNoDevices = errors.New("pipeline: no devices")

// Options configures a Manager.
type Options struct {
	MultiThreaded   bool
	FrameRate       int // 0 = unlimited
	MaxFrames       int // 0 = until stopped
	SortMode        sorter.Mode
	FrustumCulling  bool
	StackIncrement  int
	OutputIncrement int
	Logger          *zap.Logger
	Reporter        report.Reporter
}

// OptionsFromConfig converts the pipeline section of the config.
func OptionsFromConfig(cfg config.PipelineConfig) (Options, error) {
	mode, err := sorter.ParseMode(cfg.SortMode)
	if err != nil {
		return Options{}, fmt.Errorf("pipeline options: %w", err)
	}
	return Options{
		MultiThreaded:   cfg.MultiThreaded,
		FrameRate:       cfg.FrameRate,
		MaxFrames:       cfg.MaxFrames,
		SortMode:        mode,
		FrustumCulling:  cfg.FrustumCulling,
		StackIncrement:  cfg.TransformStackIncrement,
		OutputIncrement: cfg.OutputIncrement,
	}, nil
}

// chain feeds one device. It receives cull frames so the sort can be timed.
type chain struct {
	device device.Device
	cull   *cull.Stage
	sort   *sorter.Stage

	frames   uint64
	sortTime time.Duration
	profile  device.Profile
}

func (c *chain) CullComplete(other any, f *cull.Frame) {
	start := time.Now()
	c.sort.CullComplete(other, f)
	c.sortTime = time.Since(start)
}

// Manager schedules frames. Scene mutation goes through Updater callbacks,
// which run between culls.
type Manager struct {
	opts     Options
	log      *zap.Logger
	reporter report.Reporter

	updater *scene.Updater
	picker  *picking.Manager

	// sceneMu serializes update callbacks, culls and locked picks.
	sceneMu sync.Mutex
	layers  []*scene.Layer

	mu     sync.Mutex
	chains []*chain

	frame   atomic.Uint64
	halted  atomic.Bool
	frustum atomic.Bool
}

// NewManager creates a pipeline manager.
func NewManager(opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		opts:     opts,
		log:      log,
		reporter: report.OrNop(opts.Reporter),
		updater:  scene.NewUpdater(log),
	}
	m.picker = picking.NewManager(m.updater, log)
	m.frustum.Store(opts.FrustumCulling)
	return m
}

// Updater returns the mutation gate of every layer set on m.
func (m *Manager) Updater() *scene.Updater { return m.updater }

// Picker returns the pick manager. It fails with ErrInvalidPickTiming while
// a cull runs; from another goroutine use Pick instead.
func (m *Manager) Picker() *picking.Manager { return m.picker }

// Pick runs reqs between culls. It must not be called from inside an
// update callback; use Picker there.
func (m *Manager) Pick(root scene.Node, reqs ...*picking.Request) error {
	m.sceneMu.Lock()
	defer m.sceneMu.Unlock()
	return m.picker.Pick(root, reqs...)
}

// Frame returns the number of frames rendered.
func (m *Manager) Frame() uint64 { return m.frame.Load() }

// AddDevice appends a device with its own cull and sort stages.
func (m *Manager) AddDevice(d device.Device) {
	c := &chain{
		device: d,
		cull: cull.New(cull.Options{
			Kind:            d.Kind(),
			FrustumCulling:  m.frustum.Load(),
			StackIncrement:  m.opts.StackIncrement,
			OutputIncrement: m.opts.OutputIncrement,
			Logger:          m.log,
		}),
		sort: sorter.New(sorter.Options{
			Mode:      m.opts.SortMode,
			Increment: m.opts.OutputIncrement,
			Logger:    m.log,
		}),
	}
	c.cull.SetReceiver(c)
	c.sort.SetReceiver(d)
	if m.halted.Load() {
		c.cull.Halt()
		c.sort.Halt()
	}

	m.mu.Lock()
	m.chains = append(m.chains, c)
	m.mu.Unlock()
	m.log.Info("device added", zap.Stringer("kind", d.Kind()))
}

// Devices returns the devices still scheduled.
func (m *Manager) Devices() []device.Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]device.Device, len(m.chains))
	for i, c := range m.chains {
		out[i] = c.device
	}
	return out
}

// Profile returns the last frame profile of d.
func (m *Manager) Profile(d device.Device) (device.Profile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.chains {
		if c.device == d {
			return c.profile, true
		}
	}
	return device.Profile{}, false
}

// SetLayers replaces the rendered layers. The old layers stop being live
// and the new ones become live under the manager's updater.
func (m *Manager) SetLayers(layers ...*scene.Layer) {
	m.sceneMu.Lock()
	defer m.sceneMu.Unlock()
	for _, l := range m.layers {
		if l != nil {
			scene.Deactivate(l)
		}
	}
	m.layers = append(m.layers[:0:0], layers...)
	for _, l := range m.layers {
		if l != nil {
			scene.Activate(l, m.updater)
		}
	}
}

// SetFrustumCulling toggles frustum tests in every graphics cull.
func (m *Manager) SetFrustumCulling(on bool) {
	m.frustum.Store(on)
	for _, c := range m.snapshot() {
		c.cull.SetFrustumCulling(on)
	}
}

// Halt stops running culls and sorts and keeps later frames from
// rendering until Resume.
func (m *Manager) Halt() {
	m.halted.Store(true)
	for _, c := range m.snapshot() {
		c.cull.Halt()
		c.sort.Halt()
	}
}

// Resume clears a halt.
func (m *Manager) Resume() {
	m.halted.Store(false)
	for _, c := range m.snapshot() {
		c.cull.Resume()
		c.sort.Resume()
	}
}

// Shutdown halts, disposes every device and makes the layers not live.
func (m *Manager) Shutdown() {
	m.Halt()
	m.mu.Lock()
	chains := m.chains
	m.chains = nil
	m.mu.Unlock()
	for _, c := range chains {
		c.device.Dispose()
	}

	m.sceneMu.Lock()
	for _, l := range m.layers {
		if l != nil {
			scene.Deactivate(l)
		}
	}
	m.layers = nil
	m.sceneMu.Unlock()
	m.log.Info("pipeline shut down", zap.Uint64("frames", m.frame.Load()))
}

func (m *Manager) snapshot() []*chain {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*chain(nil), m.chains...)
}

// processUpdates runs the queued update callbacks.
func (m *Manager) processUpdates() error {
	m.sceneMu.Lock()
	defer m.sceneMu.Unlock()
	if err := m.updater.ProcessUpdates(); err != nil {
		return fmt.Errorf("process updates: %w", err)
	}
	return nil
}

// renderChain culls, sorts and draws one frame for c. It reports whether
// the device is still usable.
func (m *Manager) renderChain(c *chain, frame uint64) (bool, error) {
	m.sceneMu.Lock()
	m.updater.BeginCull()
	c.sortTime = 0
	start := time.Now()
	f, err := c.cull.Cull(frame, m.layers, len(m.layers))
	elapsed := time.Since(start)
	m.updater.EndCull()
	m.sceneMu.Unlock()

	if err != nil {
		return !c.device.IsDisposed(), fmt.Errorf("cull %s: %w", c.device.Kind(), err)
	}
	if c.cull.Halted() || m.halted.Load() {
		// Halted mid-frame; the device keeps its last instructions undrawn.
		return true, nil
	}
	if f == nil {
		// Nothing to draw this frame.
		c.device.SetInstructions(frame, nil)
	}

	p := device.Profile{
		Frame:    frame,
		CullTime: elapsed - c.sortTime,
		SortTime: c.sortTime,
	}
	ok := c.device.Draw(&p)
	c.frames++

	m.mu.Lock()
	c.profile = p
	m.mu.Unlock()

	if !ok && c.device.IsDisposed() {
		return false, nil
	}
	return true, nil
}

// remove drops c from the schedule.
func (m *Manager) remove(c *chain) {
	m.mu.Lock()
	for i, other := range m.chains {
		if other == c {
			m.chains = append(m.chains[:i], m.chains[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	m.log.Info("device removed", zap.Stringer("kind", c.device.Kind()), zap.Uint64("frames", c.frames))
}
