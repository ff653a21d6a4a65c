package scene

import "github.com/Faultbox/midgard-scenegraph/internal/engine/render"

// Scene binds a spatial graph to the viewpoint, background and fog used to
// draw it. Upward transform walks stop at the scene.
type Scene struct {
	NodeBase
	root       Node
	viewpoint  *Viewpoint
	background *Background
	fog        *Fog
	userData   any
}

// NewScene creates an empty scene.
func NewScene(name string) *Scene {
	s := &Scene{}
	s.InitNode(s, name)
	return s
}

func (s *Scene) Capabilities() Capability { return 0 }

func (s *Scene) isSceneRoot() {}

func (s *Scene) Children() []Node {
	if s.root == nil {
		return nil
	}
	return []Node{s.root}
}

func (s *Scene) Root() Node { return s.root }

// SetRoot replaces the spatial graph.
func (s *Scene) SetRoot(n Node) error {
	if err := s.CheckDataWrite(); err != nil {
		return err
	}
	if n == s.root {
		return nil
	}
	if n != nil {
		if err := attach(s, n); err != nil {
			return err
		}
	}
	if s.root != nil {
		detach(s, s.root)
	}
	s.root = n
	return nil
}

func (s *Scene) Viewpoint() *Viewpoint { return s.viewpoint }

// SetViewpoint selects the active viewpoint. It should sit below Root.
func (s *Scene) SetViewpoint(v *Viewpoint) error {
	if err := s.CheckDataWrite(); err != nil {
		return err
	}
	s.viewpoint = v
	return nil
}

func (s *Scene) Background() *Background { return s.background }

func (s *Scene) SetBackground(b *Background) error {
	if err := s.CheckDataWrite(); err != nil {
		return err
	}
	s.background = b
	return nil
}

func (s *Scene) Fog() *Fog { return s.fog }

func (s *Scene) SetFog(f *Fog) error {
	if err := s.CheckDataWrite(); err != nil {
		return err
	}
	s.fog = f
	return nil
}

// UserData returns the value copied into every environment snapshot of
// this scene.
func (s *Scene) UserData() any { return s.userData }

func (s *Scene) SetUserData(d any) error {
	if err := s.CheckDataWrite(); err != nil {
		return err
	}
	s.userData = d
	return nil
}

// MultipassScene renders several scenes, one per pass, into the same
// viewport.
type MultipassScene struct {
	NodeBase
	passes []*Scene
}

// NewMultipassScene creates a scene with no passes.
func NewMultipassScene(name string) *MultipassScene {
	m := &MultipassScene{}
	m.InitNode(m, name)
	return m
}

func (m *MultipassScene) Capabilities() Capability { return 0 }

func (m *MultipassScene) Children() []Node {
	out := make([]Node, len(m.passes))
	for i, p := range m.passes {
		out[i] = p
	}
	return out
}

// Passes returns the passes in draw order.
func (m *MultipassScene) Passes() []*Scene { return m.passes }

// AddPass appends a pass.
func (m *MultipassScene) AddPass(s *Scene) error {
	if err := m.CheckDataWrite(); err != nil {
		return err
	}
	if err := attach(m, s); err != nil {
		return err
	}
	m.passes = append(m.passes, s)
	return nil
}

// LayerKind tells the cull which traversal a viewport layer needs.
type LayerKind uint8

const (
	LayerScene LayerKind = iota
	LayerMultipass
	Layer2D
)

// ViewportLayer is one scene drawn into a viewport.
type ViewportLayer struct {
	NodeBase
	kind        LayerKind
	scene       *Scene
	multipass   *MultipassScene
	activeSound bool
}

// NewSceneLayer creates a single pass layer.
func NewSceneLayer(name string, s *Scene) (*ViewportLayer, error) {
	l := &ViewportLayer{kind: LayerScene, scene: s}
	l.InitNode(l, name)
	if s != nil {
		if err := attach(l, s); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// NewMultipassLayer creates a multipass layer.
func NewMultipassLayer(name string, m *MultipassScene) (*ViewportLayer, error) {
	l := &ViewportLayer{kind: LayerMultipass, multipass: m}
	l.InitNode(l, name)
	if m != nil {
		if err := attach(l, m); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// New2DLayer creates a 2D layer. Culls recognize it and produce nothing.
func New2DLayer(name string) *ViewportLayer {
	l := &ViewportLayer{kind: Layer2D}
	l.InitNode(l, name)
	return l
}

func (l *ViewportLayer) Capabilities() Capability { return 0 }

func (l *ViewportLayer) Children() []Node {
	switch {
	case l.scene != nil:
		return []Node{l.scene}
	case l.multipass != nil:
		return []Node{l.multipass}
	}
	return nil
}

func (l *ViewportLayer) Kind() LayerKind { return l.kind }

func (l *ViewportLayer) Scene() *Scene { return l.scene }

func (l *ViewportLayer) Multipass() *MultipassScene { return l.multipass }

// ActiveSound reports whether this layer asks to be the audio source.
func (l *ViewportLayer) ActiveSound() bool { return l.activeSound }

// SetActiveSound marks the layer as the audio source. When several layers
// are marked the first one in traversal order wins.
func (l *ViewportLayer) SetActiveSound(on bool) error {
	if err := l.CheckDataWrite(); err != nil {
		return err
	}
	l.activeSound = on
	return nil
}

// Viewport is a rectangle of the output surface holding ordered layers.
type Viewport struct {
	NodeBase
	rect   render.ViewportRect
	layers []*ViewportLayer
}

// NewViewport creates a viewport covering rect.
func NewViewport(name string, rect render.ViewportRect) *Viewport {
	v := &Viewport{rect: rect}
	v.InitNode(v, name)
	return v
}

func (v *Viewport) Capabilities() Capability { return 0 }

func (v *Viewport) Children() []Node {
	out := make([]Node, len(v.layers))
	for i, l := range v.layers {
		out[i] = l
	}
	return out
}

func (v *Viewport) Rect() render.ViewportRect { return v.rect }

// SetRect resizes the viewport.
func (v *Viewport) SetRect(r render.ViewportRect) error {
	if err := v.CheckDataWrite(); err != nil {
		return err
	}
	v.rect = r
	return nil
}

// Layers returns the layers in draw order.
func (v *Viewport) Layers() []*ViewportLayer { return v.layers }

// AddLayer appends l.
func (v *Viewport) AddLayer(l *ViewportLayer) error {
	if err := v.CheckDataWrite(); err != nil {
		return err
	}
	if err := attach(v, l); err != nil {
		return err
	}
	v.layers = append(v.layers, l)
	return nil
}

// Layer is a top level entry of the frame: a set of viewports drawn
// together.
type Layer struct {
	NodeBase
	viewports []*Viewport
}

// NewLayer creates an empty layer.
func NewLayer(name string) *Layer {
	l := &Layer{}
	l.InitNode(l, name)
	return l
}

func (l *Layer) Capabilities() Capability { return 0 }

func (l *Layer) Children() []Node {
	out := make([]Node, len(l.viewports))
	for i, v := range l.viewports {
		out[i] = v
	}
	return out
}

// Viewports returns the viewports in draw order.
func (l *Layer) Viewports() []*Viewport { return l.viewports }

// AddViewport appends v.
func (l *Layer) AddViewport(v *Viewport) error {
	if err := l.CheckDataWrite(); err != nil {
		return err
	}
	if err := attach(l, v); err != nil {
		return err
	}
	l.viewports = append(l.viewports, v)
	return nil
}
