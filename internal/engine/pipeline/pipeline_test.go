package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/midgard-scenegraph/internal/config"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/device"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/picking"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/render"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/scene"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/sorter"
	"github.com/Faultbox/midgard-scenegraph/pkg/bounds"
	"github.com/Faultbox/midgard-scenegraph/pkg/math"
)

type testRenderable struct {
	name    string
	enabled bool
}

func (r *testRenderable) Enabled() bool                  { return r.enabled }
func (r *testRenderable) Transparent() bool              { return false }
func (r *testRenderable) Equal(o render.Renderable) bool { return o == render.Renderable(r) }
func (r *testRenderable) Render(render.Context)          {}
func (r *testRenderable) PostRender(render.Context)      {}
func (r *testRenderable) Bounds() bounds.Volume {
	return bounds.NewBox(math.V3(-0.5, -0.5, -0.5), math.V3(0.5, 0.5, 0.5))
}

// haltingRenderable calls halt the after'th time it is asked whether it
// is enabled.
type haltingRenderable struct {
	testRenderable
	halt  func()
	after int
	calls int
}

func (r *haltingRenderable) Enabled() bool {
	r.calls++
	if r.calls == r.after {
		r.halt()
	}
	return r.enabled
}

func (r *haltingRenderable) Equal(o render.Renderable) bool { return o == render.Renderable(r) }

// recordingDevice keeps a copy of the StartRender instructions it was
// last given.
type recordingDevice struct {
	mu       sync.Mutex
	kind     render.Kind
	renders  []render.Instruction
	draws    int
	disposed bool
}

func (d *recordingDevice) Kind() render.Kind { return d.kind }

func (d *recordingDevice) SetInstructions(_ any, l *render.Instructions) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.renders = d.renders[:0]
	if l == nil {
		return
	}
	for _, in := range l.List[:l.Count] {
		if in.Op == render.OpStartRender {
			d.renders = append(d.renders, in)
		}
	}
}

func (d *recordingDevice) Draw(*device.Profile) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.draws++
	return !d.disposed
}

func (d *recordingDevice) Dispose() {
	d.mu.Lock()
	d.disposed = true
	d.mu.Unlock()
}

func (d *recordingDevice) IsDisposed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disposed
}

func (d *recordingDevice) records() []render.Instruction {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]render.Instruction(nil), d.renders...)
}

// failingBackend cannot initialize.
type failingBackend struct {
	*device.Headless
}

func (failingBackend) Init() error { return errors.New("no context") }

type fixture struct {
	root  *scene.Group
	xform *scene.TransformGroup
	shape *scene.Shape
	r     *testRenderable
	layer *scene.Layer
}

// newFixture builds Group > TransformGroup(1,0,0) > Shape(R).
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		root:  scene.NewGroup("root"),
		xform: scene.NewTransformGroup("xform"),
		r:     &testRenderable{name: "R", enabled: true},
	}
	f.shape = scene.NewShape("shape", f.r)
	require.NoError(t, f.xform.SetTransform(math.Translate(1, 0, 0)))
	require.NoError(t, f.xform.AddChild(f.shape))
	require.NoError(t, f.root.AddChild(f.xform))

	s := scene.NewScene("scene")
	require.NoError(t, s.SetRoot(f.root))
	vl, err := scene.NewSceneLayer("main", s)
	require.NoError(t, err)
	require.NoError(t, vl.SetActiveSound(true))
	vp := scene.NewViewport("vp", render.ViewportRect{Width: 640, Height: 480})
	require.NoError(t, vp.AddLayer(vl))
	f.layer = scene.NewLayer("layer")
	require.NoError(t, f.layer.AddViewport(vp))
	return f
}

func TestEndToEndScenario(t *testing.T) {
	f := newFixture(t)
	m := NewManager(Options{})
	dev := &recordingDevice{kind: render.KindGraphics}
	m.AddDevice(dev)
	m.SetLayers(f.layer)

	require.NoError(t, m.RenderOnce())
	recs := dev.records()
	require.Len(t, recs, 1)
	assert.Same(t, f.r, recs[0].Renderable)
	assert.True(t, recs[0].Transform.ApproxEqual(math.Translate(1, 0, 0), 1e-6))

	f.r.enabled = false
	require.NoError(t, m.RenderOnce())
	assert.Empty(t, dev.records())
	assert.Equal(t, uint64(2), m.Frame())
	assert.Equal(t, 2, dev.draws)
}

func TestMutationGateReflectedInNextCull(t *testing.T) {
	f := newFixture(t)
	m := NewManager(Options{})
	dev := &recordingDevice{kind: render.KindGraphics}
	m.AddDevice(dev)
	m.SetLayers(f.layer)
	require.True(t, f.xform.IsLive())

	err := f.xform.SetTransform(math.Translate(2, 0, 0))
	require.ErrorIs(t, err, scene.ErrInvalidWriteTiming)

	require.NoError(t, m.Updater().BoundsChanged(f.xform, func(scene.Node) error {
		return f.xform.SetTransform(math.Translate(2, 0, 0))
	}))
	require.NoError(t, m.RenderOnce())
	recs := dev.records()
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Transform.ApproxEqual(math.Translate(2, 0, 0), 1e-6))
}

func TestRenderOnceReturnsUpdateErrors(t *testing.T) {
	f := newFixture(t)
	m := NewManager(Options{})
	dev := &recordingDevice{kind: render.KindGraphics}
	m.AddDevice(dev)
	m.SetLayers(f.layer)

	boom := errors.New("boom")
	require.NoError(t, m.Updater().DataChanged(f.shape, func(scene.Node) error { return boom }))
	err := m.RenderOnce()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, dev.draws, "the frame still renders")
}

func TestHeadlessDevicesAndProfile(t *testing.T) {
	f := newFixture(t)
	m := NewManager(Options{SortMode: sorter.ModeStateDepth})
	gfx, gh := device.NewHeadlessDevice("gfx", render.KindGraphics)
	snd, sh := device.NewHeadlessDevice("snd", render.KindAudio)
	m.AddDevice(gfx)
	m.AddDevice(snd)
	m.SetLayers(f.layer)

	require.NoError(t, m.RenderOnce())
	assert.Equal(t, uint64(1), gh.Renders())
	assert.Equal(t, uint64(0), sh.Renders(), "no sound leaves")
	assert.Equal(t, uint64(1), sh.Scenes())

	p, ok := m.Profile(gfx)
	require.True(t, ok)
	assert.Equal(t, uint64(1), p.Frame)
	assert.Positive(t, p.Instructions)
}

func TestFailedAndDisposedDevicesAreRemoved(t *testing.T) {
	f := newFixture(t)
	m := NewManager(Options{})
	broken := device.NewBase("broken", render.KindGraphics, failingBackend{device.NewHeadless(nil)})
	gone := &recordingDevice{kind: render.KindGraphics}
	kept := &recordingDevice{kind: render.KindGraphics}
	m.AddDevice(broken)
	m.AddDevice(gone)
	m.AddDevice(kept)
	m.SetLayers(f.layer)

	gone.Dispose()
	require.NoError(t, m.RenderOnce())
	assert.Equal(t, []device.Device{kept}, m.Devices())
	assert.True(t, broken.IsDisposed())
}

func TestHaltSkipsFrames(t *testing.T) {
	f := newFixture(t)
	m := NewManager(Options{})
	dev := &recordingDevice{kind: render.KindGraphics}
	m.AddDevice(dev)
	m.SetLayers(f.layer)

	m.Halt()
	require.NoError(t, m.RenderOnce())
	assert.Zero(t, dev.draws)

	m.Resume()
	require.NoError(t, m.RenderOnce())
	assert.Len(t, dev.records(), 1)
}

func TestHaltDuringCullSkipsDraw(t *testing.T) {
	f := newFixture(t)
	m := NewManager(Options{})
	halting := &haltingRenderable{testRenderable: testRenderable{name: "H", enabled: true}, halt: m.Halt, after: 2}
	require.NoError(t, f.xform.AddChild(scene.NewShape("halting", halting)))
	dev := &recordingDevice{kind: render.KindGraphics}
	m.AddDevice(dev)
	m.SetLayers(f.layer)

	require.NoError(t, m.RenderOnce())
	require.Equal(t, 1, dev.draws)

	require.NoError(t, m.RenderOnce())
	assert.Equal(t, 2, halting.calls)
	assert.Equal(t, 1, dev.draws, "a frame halted during cull must not be drawn")

	m.Resume()
	require.NoError(t, m.RenderOnce())
	assert.Equal(t, 2, dev.draws)
}

func TestRunSingleThreadedStopsAtMaxFrames(t *testing.T) {
	f := newFixture(t)
	m := NewManager(Options{MaxFrames: 3})
	gfx, gh := device.NewHeadlessDevice("gfx", render.KindGraphics)
	m.AddDevice(gfx)
	m.SetLayers(f.layer)

	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, uint64(3), m.Frame())
	assert.Equal(t, uint64(3), gh.Frames())
}

func TestRunMultiThreaded(t *testing.T) {
	f := newFixture(t)
	m := NewManager(Options{MultiThreaded: true, MaxFrames: 5, FrameRate: 1000})
	gfx, gh := device.NewHeadlessDevice("gfx", render.KindGraphics)
	snd, sh := device.NewHeadlessDevice("snd", render.KindAudio)
	m.AddDevice(gfx)
	m.AddDevice(snd)
	m.SetLayers(f.layer)

	require.NoError(t, m.Updater().BoundsChanged(f.xform, func(scene.Node) error {
		return f.xform.SetTransform(math.Translate(3, 0, 0))
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, m.Run(ctx))
	assert.Equal(t, uint64(5), gh.Frames())
	assert.Equal(t, uint64(5), sh.Frames())
	assert.Equal(t, uint64(10), m.Frame())
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	m := NewManager(Options{FrameRate: 100})
	gfx, _ := device.NewHeadlessDevice("gfx", render.KindGraphics)
	m.AddDevice(gfx)
	m.SetLayers(f.layer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRunWithoutDevices(t *testing.T) {
	assert.ErrorIs(t, NewManager(Options{}).Run(context.Background()), ErrNoDevices)
}

func TestShutdownDisposesDevices(t *testing.T) {
	f := newFixture(t)
	m := NewManager(Options{})
	gfx, _ := device.NewHeadlessDevice("gfx", render.KindGraphics)
	m.AddDevice(gfx)
	m.SetLayers(f.layer)
	require.NoError(t, m.RenderOnce())

	m.Shutdown()
	assert.True(t, gfx.IsDisposed())
	assert.Empty(t, m.Devices())
	assert.False(t, f.root.IsLive())
}

func TestPickBetweenFrames(t *testing.T) {
	f := newFixture(t)
	m := NewManager(Options{})
	m.AddDevice(&recordingDevice{kind: render.KindGraphics})
	m.SetLayers(f.layer)
	require.NoError(t, m.RenderOnce())

	req := &picking.Request{Geometry: picking.GeometryPoint, Sort: picking.SortAll, Origin: math.V3(1, 0, 0)}
	require.NoError(t, m.Pick(f.root, req))
	require.Equal(t, 1, req.Count)
	assert.Equal(t, scene.Node(f.shape), req.Results[0].Node)

	var inside *picking.Request
	require.NoError(t, m.Updater().DataChanged(f.shape, func(scene.Node) error {
		inside = &picking.Request{Geometry: picking.GeometryPoint, Sort: picking.SortAll, Origin: math.V3(1, 0, 0)}
		return m.Picker().Pick(f.root, inside)
	}))
	require.NoError(t, m.RenderOnce())
	assert.Equal(t, 1, inside.Count)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default().Pipeline
	cfg.SortMode = "state"
	cfg.MaxFrames = 7
	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, sorter.ModeStateDepth, opts.SortMode)
	assert.Equal(t, 7, opts.MaxFrames)

	cfg.SortMode = "bogus"
	_, err = OptionsFromConfig(cfg)
	assert.Error(t, err)
}
