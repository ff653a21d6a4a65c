package picking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/midgard-scenegraph/internal/engine/render"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/scene"
	"github.com/Faultbox/midgard-scenegraph/pkg/bounds"
	"github.com/Faultbox/midgard-scenegraph/pkg/math"
)

type stubRenderable struct {
	name    string
	enabled bool
	volume  bounds.Volume
}

func (s *stubRenderable) Enabled() bool                  { return s.enabled }
func (s *stubRenderable) Transparent() bool              { return false }
func (s *stubRenderable) Equal(o render.Renderable) bool { return o == render.Renderable(s) }
func (s *stubRenderable) Render(render.Context)          {}
func (s *stubRenderable) PostRender(render.Context)      {}
func (s *stubRenderable) Bounds() bounds.Volume          { return s.volume }

// exactRenderable answers PickRay with a fixed local distance.
type exactRenderable struct {
	stubRenderable
	distance float32
	hit      bool
}

func (e *exactRenderable) PickRay(origin, dir math.Vec3) (float32, bool) {
	return e.distance, e.hit
}

func unitCube() *bounds.Box {
	return bounds.NewBox(math.V3(-1, -1, -1), math.V3(1, 1, 1))
}

func cube(name string) *stubRenderable {
	return &stubRenderable{name: name, enabled: true, volume: unitCube()}
}

// placed wraps a leaf in a transform group at (0, 0, z).
func placed(t *testing.T, z float32, leaf scene.Node) *scene.TransformGroup {
	t.Helper()
	tg := scene.NewTransformGroup("at")
	require.NoError(t, tg.SetTransform(math.Translate(0, 0, z)))
	require.NoError(t, tg.AddChild(leaf))
	return tg
}

// row builds three unit cubes at z = -15, -5, -10, in that child order.
func row(t *testing.T) (*scene.Group, map[string]*stubRenderable) {
	t.Helper()
	root := scene.NewGroup("root")
	cubes := map[string]*stubRenderable{}
	for _, p := range []struct {
		name string
		z    float32
	}{{"far", -15}, {"near", -5}, {"mid", -10}} {
		r := cube(p.name)
		cubes[p.name] = r
		require.NoError(t, root.AddChild(placed(t, p.z, scene.NewShape(p.name, r))))
	}
	return root, cubes
}

func forward(sort SortMode) *Request {
	return Ray{Origin: math.V3(0, 0, 0), Direction: math.V3(0, 0, -1)}.Request(sort)
}

func names(r *Request) []string {
	out := make([]string, 0, r.Count)
	for _, res := range r.Results[:r.Count] {
		out = append(out, res.Renderable.(*stubRenderable).name)
	}
	return out
}

func TestPickRayClosest(t *testing.T) {
	root, _ := row(t)
	m := NewManager(nil, nil)

	req := forward(SortClosest)
	require.NoError(t, m.Pick(root, req))
	require.Equal(t, 1, req.Count)
	assert.Equal(t, []string{"near"}, names(req))
	assert.InDelta(t, 4, req.Results[0].Distance, 1e-4)
	assert.True(t, req.Results[0].Transform.ApproxEqual(math.Translate(0, 0, -5), 1e-6))
}

func TestPickRayOrdered(t *testing.T) {
	root, _ := row(t)
	m := NewManager(nil, nil)

	req := forward(SortOrdered)
	require.NoError(t, m.Pick(root, req))
	assert.Equal(t, []string{"near", "mid", "far"}, names(req))
	assert.InDelta(t, 9, req.Results[1].Distance, 1e-4)
}

func TestPickRayAllKeepsTraversalOrder(t *testing.T) {
	root, _ := row(t)
	m := NewManager(nil, nil)

	req := forward(SortAll)
	require.NoError(t, m.Pick(root, req))
	assert.Equal(t, []string{"far", "near", "mid"}, names(req))
}

func TestPickAnyStopsAtFirst(t *testing.T) {
	root, _ := row(t)
	m := NewManager(nil, nil)

	req := forward(SortAny)
	require.NoError(t, m.Pick(root, req))
	assert.Equal(t, 1, req.Count)
}

func TestPickGeometries(t *testing.T) {
	root, _ := row(t)
	m := NewManager(nil, nil)
	view := math.LookAt(math.V3(0, 0, 0), math.V3(0, 0, -1), math.V3(0, 1, 0))
	frustum := bounds.FrustumFromMatrix(math.Perspective(1, 1, 0.1, 100).Mul(view))

	tests := []struct {
		name string
		req  *Request
		want []string
	}{
		{"point", &Request{Geometry: GeometryPoint, Origin: math.V3(0, 0.5, -10)}, []string{"mid"}},
		{"segment", &Request{Geometry: GeometrySegment, Origin: math.V3(0, 0, 0), Destination: math.V3(0, 0, -7)}, []string{"near"}},
		{"sphere", &Request{Geometry: GeometrySphere, Origin: math.V3(0, 2, -15), Extra: 1.5}, []string{"far"}},
		{"box", &Request{Geometry: GeometryBox, Origin: math.V3(-2, -2, -11), Destination: math.V3(2, 2, -3)}, []string{"near", "mid"}},
		{"cylinder", &Request{Geometry: GeometryCylinder, Origin: math.V3(3, 0, -20), Destination: math.V3(3, 0, -9), Extra: 2.5}, []string{"far", "mid"}},
		{"cone", &Request{Geometry: GeometryCone, Origin: math.V3(0, 0, 0), Destination: math.V3(0, 0, -1), Extra: 0.3}, []string{"far", "near", "mid"}},
		{"frustum", &Request{Geometry: GeometryFrustum, Frustum: &frustum}, []string{"far", "near", "mid"}},
		{"miss", &Request{Geometry: GeometryPoint, Origin: math.V3(10, 0, -10)}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Sort = SortAll
			require.NoError(t, m.Pick(root, tt.req))
			assert.Equal(t, tt.want, names(tt.req))
		})
	}
}

func TestPickSkipsVoidAndDisabledLeaves(t *testing.T) {
	root := scene.NewGroup("root")
	require.NoError(t, root.AddChild(scene.NewShape("void", &stubRenderable{name: "void", enabled: true})))
	require.NoError(t, root.AddChild(scene.NewShape("off", &stubRenderable{name: "off", volume: unitCube()})))

	req := &Request{Geometry: GeometryPoint, Sort: SortAll}
	require.NoError(t, NewManager(nil, nil).Pick(root, req))
	assert.Zero(t, req.Count)
}

func TestPickKindMask(t *testing.T) {
	root := scene.NewGroup("root")
	require.NoError(t, root.AddChild(scene.NewShape("shape", cube("shape"))))
	require.NoError(t, root.AddChild(scene.NewSound("sound", cube("sound"))))
	m := NewManager(nil, nil)

	all := &Request{Geometry: GeometryPoint, Sort: SortAll}
	audio := &Request{Geometry: GeometryPoint, Sort: SortAll, Kinds: MaskOf(render.KindAudio)}
	require.NoError(t, m.Pick(root, all, audio))
	assert.Equal(t, []string{"shape", "sound"}, names(all))
	assert.Equal(t, []string{"sound"}, names(audio))
}

func TestPickBatchSharesTraversal(t *testing.T) {
	root, _ := row(t)
	m := NewManager(nil, nil)

	anyReq := forward(SortAny)
	ordered := forward(SortOrdered)
	point := &Request{Geometry: GeometryPoint, Sort: SortAll, Origin: math.V3(0, 0, -15)}
	require.NoError(t, m.Pick(root, anyReq, nil, ordered, point))
	assert.Equal(t, 1, anyReq.Count)
	assert.Equal(t, []string{"near", "mid", "far"}, names(ordered))
	assert.Equal(t, []string{"far"}, names(point))
}

func TestPickRayFromInsideIsZeroDistance(t *testing.T) {
	root := scene.NewGroup("root")
	box := cube("box")
	ball := &stubRenderable{name: "ball", enabled: true, volume: bounds.NewSphere(math.Vec3{}, 2)}
	require.NoError(t, root.AddChild(placed(t, -0.5, scene.NewShape("box", box))))
	require.NoError(t, root.AddChild(placed(t, 0.5, scene.NewShape("ball", ball))))

	req := forward(SortOrdered)
	require.NoError(t, NewManager(nil, nil).Pick(root, req))
	require.Equal(t, 2, req.Count)
	for _, res := range req.Results[:req.Count] {
		assert.Zero(t, res.Distance, res.Renderable.(*stubRenderable).name)
	}
}

func TestPickExactRefinement(t *testing.T) {
	root := scene.NewGroup("root")
	scaled := scene.NewTransformGroup("scaled")
	require.NoError(t, scaled.SetTransform(math.Translate(0, 0, -5).Mul(math.UniformScale(2))))
	hit := &exactRenderable{stubRenderable: *cube("hit"), distance: 0.5, hit: true}
	require.NoError(t, scaled.AddChild(scene.NewShape("hit", hit)))
	require.NoError(t, root.AddChild(scaled))

	missing := &exactRenderable{stubRenderable: *cube("miss"), hit: false}
	require.NoError(t, root.AddChild(placed(t, -10, scene.NewShape("miss", missing))))

	req := forward(SortAll)
	req.Exact = true
	require.NoError(t, NewManager(nil, nil).Pick(root, req))
	require.Equal(t, 1, req.Count)
	assert.Same(t, hit, req.Results[0].Renderable)
	assert.InDelta(t, 1, req.Results[0].Distance, 1e-4)

	plain := forward(SortAll)
	require.NoError(t, NewManager(nil, nil).Pick(root, plain))
	assert.Equal(t, 2, plain.Count)
}

func TestPickSubtreeUsesAncestorTransforms(t *testing.T) {
	root := scene.NewGroup("root")
	outer := scene.NewTransformGroup("outer")
	require.NoError(t, outer.SetTransform(math.Translate(0, 0, -20)))
	inner := scene.NewGroup("inner")
	require.NoError(t, inner.AddChild(scene.NewShape("leaf", cube("leaf"))))
	require.NoError(t, outer.AddChild(inner))
	require.NoError(t, root.AddChild(outer))

	req := &Request{Geometry: GeometryPoint, Sort: SortAll, Origin: math.V3(0, 0, -20)}
	require.NoError(t, NewManager(nil, nil).Pick(inner, req))
	assert.Equal(t, []string{"leaf"}, names(req))
}

func TestPickSceneRoot(t *testing.T) {
	root, _ := row(t)
	s := scene.NewScene("scene")
	require.NoError(t, s.SetRoot(root))

	req := forward(SortClosest)
	require.NoError(t, NewManager(nil, nil).Pick(s, req))
	assert.Equal(t, []string{"near"}, names(req))

	assert.ErrorIs(t, NewManager(nil, nil).Pick(scene.NewScene("empty"), req), scene.ErrNilNode)
}

func TestPickTimingGate(t *testing.T) {
	root, _ := row(t)
	u := scene.NewUpdater(nil)
	m := NewManager(u, nil)

	req := forward(SortAll)
	require.NoError(t, m.Pick(root, req))
	require.Equal(t, 3, req.Count)

	u.BeginCull()
	err := m.Pick(root, req)
	assert.ErrorIs(t, err, ErrInvalidPickTiming)
	assert.Zero(t, req.Count)
	u.EndCull()

	require.NoError(t, m.Pick(root, req))
	assert.Equal(t, 3, req.Count)
}

func TestPickReusesResults(t *testing.T) {
	root, _ := row(t)
	m := NewManager(nil, nil)
	req := forward(SortAll)
	require.NoError(t, m.Pick(root, req))
	first := &req.Results[0]

	require.NoError(t, m.Pick(root, req))
	assert.Same(t, first, &req.Results[0])
}

func TestScreenToRayCenter(t *testing.T) {
	view := math.LookAt(math.V3(0, 0, 0), math.V3(0, 0, -1), math.V3(0, 1, 0))
	proj := math.Perspective(1, 1, 0.1, 100)
	ray := ScreenToRay(50, 50, 100, 100, proj.Mul(view).Inverse())

	assert.True(t, ray.Direction.ApproxEqual(math.V3(0, 0, -1), 1e-3), "direction %v", ray.Direction)
	assert.InDelta(t, -0.1, ray.Origin.Z, 1e-3)
}

func TestIntersectPlaneY(t *testing.T) {
	r := Ray{Origin: math.V3(0, 10, 0), Direction: math.V3(0, -1, 1).Normalize()}
	x, z, ok := r.IntersectPlaneY(0)
	require.True(t, ok)
	assert.InDelta(t, 0, x, 1e-4)
	assert.InDelta(t, 10, z, 1e-4)

	_, _, ok = Ray{Direction: math.V3(1, 0, 0)}.IntersectPlaneY(0)
	assert.False(t, ok)
	_, _, ok = Ray{Origin: math.V3(0, 10, 0), Direction: math.V3(0, 1, 0)}.IntersectPlaneY(0)
	assert.False(t, ok)
}

func TestGeometryString(t *testing.T) {
	assert.Equal(t, "cone", GeometryCone.String())
	assert.Equal(t, "Geometry(42)", Geometry(42).String())
}
