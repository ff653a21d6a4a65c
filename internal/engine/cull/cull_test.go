package cull

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/midgard-scenegraph/internal/engine/render"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/scene"
	"github.com/Faultbox/midgard-scenegraph/pkg/bounds"
	"github.com/Faultbox/midgard-scenegraph/pkg/math"
)

type testRenderable struct {
	name      string
	enabled   bool
	volume    bounds.Volume
	onEnabled func()
}

func newRenderable(name string) *testRenderable {
	return &testRenderable{name: name, enabled: true}
}

func (r *testRenderable) Enabled() bool {
	if r.onEnabled != nil {
		r.onEnabled()
	}
	return r.enabled
}
func (r *testRenderable) Transparent() bool              { return false }
func (r *testRenderable) Equal(o render.Renderable) bool { return o == render.Renderable(r) }
func (r *testRenderable) Render(render.Context)          {}
func (r *testRenderable) PostRender(render.Context)      {}
func (r *testRenderable) Bounds() bounds.Volume          { return r.volume }

type captureReceiver struct {
	calls int
	other any
	frame *Frame
}

func (c *captureReceiver) CullComplete(other any, f *Frame) {
	c.calls++
	c.other = other
	c.frame = f
}

func layerOf(t *testing.T, scenes ...*scene.Scene) *scene.Layer {
	t.Helper()
	vp := scene.NewViewport("vp", render.ViewportRect{Width: 100, Height: 100})
	for _, s := range scenes {
		vl, err := scene.NewSceneLayer("", s)
		require.NoError(t, err)
		require.NoError(t, vp.AddLayer(vl))
	}
	l := scene.NewLayer("layer")
	require.NoError(t, l.AddViewport(vp))
	return l
}

func sceneWithRoot(t *testing.T, root scene.Node) *scene.Scene {
	t.Helper()
	s := scene.NewScene("scene")
	require.NoError(t, s.SetRoot(root))
	return s
}

func translated(t *testing.T, x, y, z float32, children ...scene.Node) *scene.TransformGroup {
	t.Helper()
	tg := scene.NewTransformGroup("")
	require.NoError(t, tg.SetTransform(math.Translate(x, y, z)))
	for _, c := range children {
		require.NoError(t, tg.AddChild(c))
	}
	return tg
}

func TestCullNoLayers(t *testing.T) {
	s := New(Options{Kind: render.KindGraphics})
	rec := &captureReceiver{}
	s.SetReceiver(rec)

	f, err := s.Cull(nil, nil, 0)
	require.NoError(t, err)
	assert.Nil(t, f)

	l := layerOf(t, sceneWithRoot(t, scene.NewShape("a", newRenderable("a"))))
	f, err = s.Cull(nil, []*scene.Layer{l}, 0)
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Zero(t, rec.calls)
}

func TestCullSkipsNilLayer(t *testing.T) {
	s := New(Options{Kind: render.KindGraphics})
	r := newRenderable("r")
	l := layerOf(t, sceneWithRoot(t, scene.NewShape("r", r)))

	f, err := s.Cull(nil, []*scene.Layer{nil, l}, 2)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, 1, f.Count)
	assert.Equal(t, 1, f.Envs[0].Layer)
}

func TestCullAccumulatesTransforms(t *testing.T) {
	r := newRenderable("r")
	t3 := translated(t, 0, 0, 3, scene.NewShape("leaf", r))
	t2 := translated(t, 0, 2, 0, t3)
	require.NoError(t, t2.SetTransform(math.Translate(0, 2, 0).Mul(math.RotateZ(0.5))))
	t1 := translated(t, 1, 0, 0, t2)

	s := New(Options{Kind: render.KindGraphics})
	f, err := s.Cull(nil, []*scene.Layer{layerOf(t, sceneWithRoot(t, t1))}, 1)
	require.NoError(t, err)
	require.NotNil(t, f)
	require.Equal(t, 1, f.Count)

	want := math.Translate(1, 0, 0).Mul(math.Translate(0, 2, 0).Mul(math.RotateZ(0.5))).Mul(math.Translate(0, 0, 3))
	assert.True(t, f.Records[0].Transform.ApproxEqual(want, 1e-5))
	assert.Same(t, r, f.Records[0].Renderable)
}

func TestCullEndToEnd(t *testing.T) {
	r := newRenderable("r")
	root := scene.NewGroup("root")
	require.NoError(t, root.AddChild(translated(t, 1, 0, 0, scene.NewShape("leaf", r))))
	layers := []*scene.Layer{layerOf(t, sceneWithRoot(t, root))}

	rec := &captureReceiver{}
	s := New(Options{Kind: render.KindGraphics})
	s.SetReceiver(rec)

	f, err := s.Cull("frame-1", layers, 1)
	require.NoError(t, err)
	require.Equal(t, 1, f.Count)
	assert.Same(t, r, f.Records[0].Renderable)
	assert.Equal(t, math.V3(1, 0, 0), f.Records[0].Transform.Translation())
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, "frame-1", rec.other)

	r.enabled = false
	f, err = s.Cull(nil, layers, 1)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Zero(t, f.Count)
	assert.Empty(t, f.Valid())
}

func TestCullSingleActiveSoundSource(t *testing.T) {
	var scenes []*scene.Scene
	for i := 0; i < 3; i++ {
		sc := sceneWithRoot(t, scene.NewSound("snd", newRenderable("snd")))
		require.NoError(t, sc.SetUserData(i))
		scenes = append(scenes, sc)
	}
	l := layerOf(t, scenes...)
	for _, vl := range l.Viewports()[0].Layers() {
		require.NoError(t, vl.SetActiveSound(true))
	}

	audio := New(Options{Kind: render.KindAudio})
	f, err := audio.Cull(nil, []*scene.Layer{l}, 1)
	require.NoError(t, err)
	require.NotNil(t, f)
	require.Equal(t, 1, f.EnvCount)
	assert.Equal(t, 0, f.Envs[0].UserData)
	assert.Equal(t, 1, f.Count)

	graphics := New(Options{Kind: render.KindGraphics})
	f, err = graphics.Cull(nil, []*scene.Layer{l}, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, f.EnvCount)
	assert.Zero(t, f.Count, "sound leaves are not graphics")
}

func TestCullInactiveSoundLayersProduceNothing(t *testing.T) {
	l := layerOf(t, sceneWithRoot(t, scene.NewSound("snd", newRenderable("snd"))))
	audio := New(Options{Kind: render.KindAudio})
	f, err := audio.Cull(nil, []*scene.Layer{l}, 1)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestCullRejectsAmbiguousViewpoint(t *testing.T) {
	shared := scene.NewSharedGroup("shared")
	vp := scene.NewViewpoint("vp")
	require.NoError(t, shared.AddChild(vp))
	a := scene.NewGroup("a")
	b := scene.NewGroup("b")
	require.NoError(t, a.AddChild(shared))
	require.NoError(t, b.AddChild(shared))
	root := scene.NewGroup("root")
	require.NoError(t, root.AddChild(a))
	require.NoError(t, root.AddChild(b))
	sc := sceneWithRoot(t, root)
	require.NoError(t, sc.SetViewpoint(vp))

	rec := &captureReceiver{}
	s := New(Options{Kind: render.KindGraphics})
	s.SetReceiver(rec)
	f, err := s.Cull(nil, []*scene.Layer{layerOf(t, sc)}, 1)
	assert.ErrorIs(t, err, scene.ErrMultipleParents)
	assert.Nil(t, f)
	assert.Zero(t, rec.calls)
}

func TestCullViewpointEnvironment(t *testing.T) {
	vp := scene.NewViewpoint("vp")
	cam := translated(t, 0, 0, 5, vp)
	root := scene.NewGroup("root")
	require.NoError(t, root.AddChild(cam))
	sc := sceneWithRoot(t, root)
	require.NoError(t, sc.SetViewpoint(vp))
	bg := newRenderable("bg")
	require.NoError(t, sc.SetBackground(scene.NewBackground("bg", bg)))

	s := New(Options{Kind: render.KindGraphics})
	f, err := s.Cull(nil, []*scene.Layer{layerOf(t, sc)}, 1)
	require.NoError(t, err)
	env := f.Envs[0]
	assert.Equal(t, math.V3(0, 0, 5), env.EyePosition())
	assert.True(t, env.View.ApproxEqual(math.Translate(0, 0, -5), 1e-6))
	assert.Same(t, bg, env.Background)
	assert.Nil(t, env.Fog)
}

func TestCullHaltBeforeStart(t *testing.T) {
	rec := &captureReceiver{}
	s := New(Options{Kind: render.KindGraphics})
	s.SetReceiver(rec)
	s.Halt()

	l := layerOf(t, sceneWithRoot(t, scene.NewShape("a", newRenderable("a"))))
	f, err := s.Cull(nil, []*scene.Layer{l}, 1)
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Zero(t, rec.calls)
	assert.Zero(t, s.frames[s.current].Count)

	s.Resume()
	f, err = s.Cull(nil, []*scene.Layer{l}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, f.Count)
}

func TestCullHaltMidTraversal(t *testing.T) {
	const total, haltAfter = 10, 3
	s := New(Options{Kind: render.KindGraphics})
	rec := &captureReceiver{}
	s.SetReceiver(rec)

	visited := 0
	root := scene.NewGroup("root")
	for i := 0; i < total; i++ {
		r := newRenderable("r")
		r.onEnabled = func() {
			visited++
			if visited == haltAfter {
				s.Halt()
			}
		}
		require.NoError(t, root.AddChild(scene.NewShape("", r)))
	}

	f, err := s.Cull(nil, []*scene.Layer{layerOf(t, sceneWithRoot(t, root))}, 1)
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Zero(t, rec.calls)
	assert.LessOrEqual(t, s.frames[s.current].Count, haltAfter)
	assert.Equal(t, haltAfter, visited)
}

func TestCullPoolReuse(t *testing.T) {
	root := scene.NewGroup("root")
	for i := 0; i < 40; i++ {
		require.NoError(t, root.AddChild(translated(t, float32(i), 0, 0, scene.NewShape("", newRenderable("r")))))
	}
	layers := []*scene.Layer{layerOf(t, sceneWithRoot(t, root))}
	s := New(Options{Kind: render.KindGraphics, OutputIncrement: 16, StackIncrement: 2})

	_, err := s.Cull(nil, layers, 1)
	require.NoError(t, err)
	_, err = s.Cull(nil, layers, 1)
	require.NoError(t, err)
	caps := [2]int{s.frames[0].Cap(), s.frames[1].Cap()}
	stackCap := s.StackCap()
	assert.Equal(t, 48, caps[0])

	for i := 0; i < 10000; i++ {
		f, err := s.Cull(nil, layers, 1)
		require.NoError(t, err)
		require.Equal(t, 40, f.Count)
	}
	assert.Equal(t, caps, [2]int{s.frames[0].Cap(), s.frames[1].Cap()})
	assert.Equal(t, stackCap, s.StackCap())
}

func TestCullDoubleBuffers(t *testing.T) {
	layers := []*scene.Layer{layerOf(t, sceneWithRoot(t, scene.NewShape("a", newRenderable("a"))))}
	s := New(Options{Kind: render.KindGraphics})
	f1, _ := s.Cull(nil, layers, 1)
	f2, _ := s.Cull(nil, layers, 1)
	f3, _ := s.Cull(nil, layers, 1)
	assert.NotSame(t, f1, f2)
	assert.Same(t, f1, f3)
}

func TestCullFrustum(t *testing.T) {
	vp := scene.NewViewpoint("vp")
	ahead := newRenderable("ahead")
	ahead.volume = bounds.NewBox(math.V3(-1, -1, -1), math.V3(1, 1, 1))
	behind := newRenderable("behind")
	behind.volume = bounds.NewBox(math.V3(-1, -1, -1), math.V3(1, 1, 1))
	unbounded := newRenderable("unbounded")

	root := scene.NewGroup("root")
	require.NoError(t, root.AddChild(vp))
	require.NoError(t, root.AddChild(translated(t, 0, 0, -10, scene.NewShape("ahead", ahead))))
	require.NoError(t, root.AddChild(translated(t, 0, 0, 10, scene.NewShape("behind", behind))))
	require.NoError(t, root.AddChild(translated(t, 0, 0, 10, scene.NewShape("unbounded", unbounded))))
	sc := sceneWithRoot(t, root)
	require.NoError(t, sc.SetViewpoint(vp))
	layers := []*scene.Layer{layerOf(t, sc)}

	s := New(Options{Kind: render.KindGraphics, FrustumCulling: true})
	f, err := s.Cull(nil, layers, 1)
	require.NoError(t, err)
	var got []render.Renderable
	for _, r := range f.Valid() {
		got = append(got, r.Renderable)
	}
	assert.Equal(t, []render.Renderable{ahead, unbounded}, got)

	s.SetFrustumCulling(false)
	f, err = s.Cull(nil, layers, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, f.Count)
}

func TestCullMultipass(t *testing.T) {
	mp := scene.NewMultipassScene("mp")
	for i := 0; i < 2; i++ {
		require.NoError(t, mp.AddPass(sceneWithRoot(t, scene.NewShape("", newRenderable("r")))))
	}
	vl, err := scene.NewMultipassLayer("mp", mp)
	require.NoError(t, err)
	vp := scene.NewViewport("vp", render.ViewportRect{Width: 10, Height: 10})
	require.NoError(t, vp.AddLayer(vl))
	l := scene.NewLayer("l")
	require.NoError(t, l.AddViewport(vp))

	g := New(Options{Kind: render.KindGraphics})
	f, err := g.Cull(nil, []*scene.Layer{l}, 1)
	require.NoError(t, err)
	require.Equal(t, 2, f.EnvCount)
	assert.Equal(t, 0, f.Envs[0].Pass)
	assert.Equal(t, 1, f.Envs[1].Pass)
	assert.Len(t, f.SceneRecords(f.Envs[1]), 1)

	a := New(Options{Kind: render.KindAudio})
	f, err = a.Cull(nil, []*scene.Layer{l}, 1)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestCull2DLayerProducesNothing(t *testing.T) {
	vp := scene.NewViewport("vp", render.ViewportRect{Width: 10, Height: 10})
	require.NoError(t, vp.AddLayer(scene.New2DLayer("hud")))
	l := scene.NewLayer("l")
	require.NoError(t, l.AddViewport(vp))

	s := New(Options{Kind: render.KindGraphics})
	f, err := s.Cull(nil, []*scene.Layer{l}, 1)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestCullCustomNode(t *testing.T) {
	near := newRenderable("near")
	far := newRenderable("far")
	lod := scene.NewLOD("lod", math.Vec3{})
	require.NoError(t, lod.AddLevel(scene.NewShape("near", near), 20))
	require.NoError(t, lod.AddLevel(scene.NewShape("far", far), -1))

	root := scene.NewGroup("root")
	require.NoError(t, root.AddChild(translated(t, 0, 0, -30, lod)))
	s := New(Options{Kind: render.KindGraphics})
	f, err := s.Cull(nil, []*scene.Layer{layerOf(t, sceneWithRoot(t, root))}, 1)
	require.NoError(t, err)
	require.Equal(t, 1, f.Count)
	assert.Same(t, far, f.Records[0].Renderable)
	assert.Equal(t, math.V3(0, 0, -30), f.Records[0].Transform.Translation())
}

func TestCullCustomBufferGrowsByIncrement(t *testing.T) {
	level := scene.NewGroup("level")
	for i := 0; i < 20; i++ {
		require.NoError(t, level.AddChild(scene.NewShape("", newRenderable("r"))))
	}
	lod := scene.NewLOD("lod", math.Vec3{})
	require.NoError(t, lod.AddLevel(level, -1))
	root := scene.NewGroup("root")
	require.NoError(t, root.AddChild(lod))
	layers := []*scene.Layer{layerOf(t, sceneWithRoot(t, root))}

	s := New(Options{Kind: render.KindGraphics, OutputIncrement: 8})
	assert.Equal(t, 8, s.CustomCap())

	f, err := s.Cull(nil, layers, 1)
	require.NoError(t, err)
	require.Equal(t, 20, f.Count)
	assert.Equal(t, 24, s.CustomCap())

	for i := 0; i < 1000; i++ {
		_, err := s.Cull(nil, layers, 1)
		require.NoError(t, err)
	}
	assert.Equal(t, 24, s.CustomCap())
}

func TestTransformStackGrows(t *testing.T) {
	st := NewTransformStack(4)
	st.Reset(math.Identity())
	d := 0
	for i := 0; i < 10; i++ {
		d = st.PushAt(d, math.Translate(1, 0, 0))
	}
	assert.Equal(t, 10, d)
	assert.Equal(t, 12, st.Cap())
	assert.Equal(t, math.V3(10, 0, 0), st.At(d).Translation())

	// Pushing at a shallower depth overwrites.
	d = st.PushAt(2, math.Translate(0, 5, 0))
	assert.Equal(t, 3, d)
	assert.Equal(t, math.V3(2, 5, 0), st.At(d).Translation())
}
