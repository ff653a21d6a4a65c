package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RenderOnce runs the queued updates and then one frame on every device,
// all on the calling goroutine. Devices that got disposed or failed for
// good are removed. Update and cull errors are returned after every device
// had its turn.
func (m *Manager) RenderOnce() error {
	if m.halted.Load() {
		return nil
	}
	var errs []error
	if err := m.processUpdates(); err != nil {
		errs = append(errs, err)
	}

	frame := m.frame.Add(1)
	for _, c := range m.snapshot() {
		alive, err := m.renderChain(c, frame)
		if err != nil {
			errs = append(errs, err)
		}
		if !alive {
			m.remove(c)
		}
	}
	return errors.Join(errs...)
}

// Run renders until ctx is done, Halt is called, MaxFrames is reached or
// no device is left. Frame errors are reported and do not stop the loop.
func (m *Manager) Run(ctx context.Context) error {
	if len(m.snapshot()) == 0 {
		return ErrNoDevices
	}
	m.log.Info("pipeline started",
		zap.Bool("multi_threaded", m.opts.MultiThreaded),
		zap.Int("frame_rate", m.opts.FrameRate),
		zap.Stringer("sort", m.opts.SortMode))
	if m.opts.MultiThreaded {
		return m.runThreaded(ctx)
	}

	tick := m.ticker()
	defer tick.stop()
	for {
		if err := tick.wait(ctx); err != nil {
			return nil
		}
		if m.halted.Load() {
			return nil
		}
		if err := m.RenderOnce(); err != nil {
			m.reporter.Error("frame failed", err)
		}
		if m.opts.MaxFrames > 0 && m.frame.Load() >= uint64(m.opts.MaxFrames) {
			return nil
		}
		if len(m.snapshot()) == 0 {
			m.log.Info("no devices left")
			return nil
		}
	}
}

// runThreaded gives every device its own render goroutine. The calling
// goroutine's role of running update callbacks moves to one more goroutine
// paced at the frame rate.
func (m *Manager) runThreaded(ctx context.Context) error {
	render, rctx := errgroup.WithContext(ctx)
	for _, c := range m.snapshot() {
		c := c
		render.Go(func() error {
			m.renderLoop(rctx, c)
			return nil
		})
	}

	var updates errgroup.Group
	updates.Go(func() error {
		tick := m.ticker()
		defer tick.stop()
		for tick.wait(rctx) == nil && !m.halted.Load() {
			if err := m.processUpdates(); err != nil {
				m.reporter.Error("update failed", err)
			}
		}
		return nil
	})

	err := render.Wait()
	return errors.Join(err, updates.Wait())
}

func (m *Manager) renderLoop(ctx context.Context, c *chain) {
	tick := m.ticker()
	defer tick.stop()
	for tick.wait(ctx) == nil && !m.halted.Load() {
		frame := m.frame.Add(1)
		alive, err := m.renderChain(c, frame)
		if err != nil {
			m.reporter.Error("frame failed", err)
		}
		if !alive {
			m.remove(c)
			return
		}
		if m.opts.MaxFrames > 0 && c.frames >= uint64(m.opts.MaxFrames) {
			return
		}
	}
}

// pacer waits for the next frame slot. With no frame rate it only checks
// for cancellation.
type pacer struct {
	t *time.Ticker
}

func (m *Manager) ticker() pacer {
	if m.opts.FrameRate <= 0 {
		return pacer{}
	}
	return pacer{t: time.NewTicker(time.Second / time.Duration(m.opts.FrameRate))}
}

func (p pacer) wait(ctx context.Context) error {
	if p.t == nil {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.t.C:
		return nil
	}
}

func (p pacer) stop() {
	if p.t != nil {
		p.t.Stop()
	}
}
