// Package cull walks the layer forest once per frame and produces, for one
// device kind, the flat list of visible leaves with their world transforms.
package cull

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-scenegraph/internal/engine/render"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/scene"
	"github.com/Faultbox/midgard-scenegraph/pkg/bounds"
	"github.com/Faultbox/midgard-scenegraph/pkg/math"
)

// Receiver takes a finished frame. The frame stays valid until the call
// after next to Cull; receivers must not keep it longer.
type Receiver interface {
	CullComplete(other any, f *Frame)
}

// Options configures a Stage.
type Options struct {
	Kind            render.Kind
	FrustumCulling  bool
	StackIncrement  int
	OutputIncrement int
	Logger          *zap.Logger
}

// Stage culls for a single device kind. Cull is not safe for concurrent
// use; Halt and Resume may be called from any goroutine.
type Stage struct {
	kind    render.Kind
	frustum atomic.Bool
	halted  atomic.Bool

	frames  [2]*Frame
	current int
	stack   *TransformStack
	custom  []scene.CustomResult
	inc     int
	env     *render.Environment

	receiver Receiver
	log      *zap.Logger
}

// New creates a cull stage.
func New(opts Options) *Stage {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	inc := opts.OutputIncrement
	if inc <= 0 {
		inc = DefaultOutputIncrement
	}
	s := &Stage{
		kind:   opts.Kind,
		stack:  NewTransformStack(opts.StackIncrement),
		custom: make([]scene.CustomResult, 0, inc),
		inc:    inc,
		log:    log.With(zap.Stringer("kind", opts.Kind)),
	}
	s.frames[0] = NewFrame(opts.Kind, opts.OutputIncrement)
	s.frames[1] = NewFrame(opts.Kind, opts.OutputIncrement)
	s.frustum.Store(opts.FrustumCulling)
	return s
}

// Kind returns the device kind culled for.
func (s *Stage) Kind() render.Kind { return s.kind }

// SetReceiver registers the stage that takes finished frames.
func (s *Stage) SetReceiver(r Receiver) { s.receiver = r }

// SetFrustumCulling toggles view frustum tests in graphics culls.
func (s *Stage) SetFrustumCulling(on bool) { s.frustum.Store(on) }

// Halt stops the running and any later cull until Resume.
func (s *Stage) Halt() { s.halted.Store(true) }

// Resume clears a halt.
func (s *Stage) Resume() { s.halted.Store(false) }

// Halted reports whether the stage is halted.
func (s *Stage) Halted() bool { return s.halted.Load() }

// StackCap returns the transform stack capacity.
func (s *Stage) StackCap() int { return s.stack.Cap() }

// CustomCap returns the capacity of the custom node output buffer.
func (s *Stage) CustomCap() int { return cap(s.custom) }

// Cull walks the first numLayers entries of layers. Nil layers are skipped.
// It returns the delivered frame, or nil when nothing was found or the stage
// was halted. An error means the frame was rejected, for example because a
// viewpoint sits below a shared node.
func (s *Stage) Cull(other any, layers []*scene.Layer, numLayers int) (*Frame, error) {
	if numLayers > len(layers) {
		numLayers = len(layers)
	}
	if numLayers <= 0 || s.halted.Load() {
		return nil, nil
	}

	f := s.frames[s.current]
	f.Reset()
	foundSound := false

	for li := 0; li < numLayers; li++ {
		layer := layers[li]
		if layer == nil {
			continue
		}
		for vi, vp := range layer.Viewports() {
			for _, vl := range vp.Layers() {
				if s.halted.Load() {
					return nil, nil
				}
				var err error
				switch vl.Kind() {
				case scene.Layer2D:
					s.cull2D(vl)
				case scene.LayerMultipass:
					err = s.cullMultipass(f, li, vi, vp.Rect(), vl)
				case scene.LayerScene:
					if s.kind == render.KindAudio {
						if foundSound || !vl.ActiveSound() {
							continue
						}
						foundSound = true
					}
					err = s.cullScene(f, li, vi, vp.Rect(), 0, vl.Scene())
				}
				if err != nil {
					return nil, err
				}
			}
		}
	}

	if s.halted.Load() {
		s.log.Debug("cull halted", zap.Int("records", f.Count))
		return nil, nil
	}
	if f.EnvCount == 0 {
		return nil, nil
	}
	if s.receiver != nil {
		s.receiver.CullComplete(other, f)
	}
	s.current ^= 1
	return f, nil
}

// cull2D handles 2D layers. There is no 2D traversal yet, so it produces
// nothing.
func (s *Stage) cull2D(*scene.ViewportLayer) {}

func (s *Stage) cullMultipass(f *Frame, layer, viewport int, rect render.ViewportRect, vl *scene.ViewportLayer) error {
	mp := vl.Multipass()
	if mp == nil || s.kind == render.KindAudio {
		// Audio has no render passes.
		return nil
	}
	for i, pass := range mp.Passes() {
		if s.halted.Load() {
			return nil
		}
		if err := s.cullScene(f, layer, viewport, rect, i, pass); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stage) cullScene(f *Frame, layer, viewport int, rect render.ViewportRect, pass int, sc *scene.Scene) error {
	if sc == nil {
		return nil
	}
	env := f.addEnv()
	env.First = f.Count
	env.Layer = layer
	env.ViewportIndex = viewport
	env.Viewport = rect
	env.Pass = pass
	env.UserData = sc.UserData()

	vp := sc.Viewpoint()
	if vp != nil {
		vt, err := scene.WorldTransform(vp)
		if err != nil {
			f.dropEnv()
			return fmt.Errorf("cull viewpoint: %w", err)
		}
		env.Viewpoint = vp.Renderable()
		env.ViewTransform = vt
		env.View = vt.Inverse()
		env.Projection = vp.Projection(rect.Aspect())
	}
	if bg := sc.Background(); bg != nil {
		env.Background = bg.Renderable()
	}
	if fog := sc.Fog(); fog != nil {
		env.Fog = fog.Renderable()
	}
	env.Frustum = bounds.FrustumFromMatrix(env.Projection.Mul(env.View))

	s.env = env
	if root := sc.Root(); root != nil {
		test := s.kind == render.KindGraphics && vp != nil && s.frustum.Load()
		s.stack.Reset(math.Identity())
		s.cullNode(f, root, 0, test)
	}
	s.env = nil
	env.Count = f.Count - env.First
	return nil
}

func (s *Stage) cullNode(f *Frame, n scene.Node, depth int, test bool) {
	for n != nil && n.Capabilities().Has(scene.CapSingleChild) {
		if s.halted.Load() {
			return
		}
		sc, ok := n.(scene.SingleChild)
		if !ok {
			return
		}
		n = sc.Child()
	}
	if n == nil || s.halted.Load() {
		return
	}

	caps := n.Capabilities()
	if test {
		if v := n.Bounds(); !bounds.IsVoid(v) {
			switch bounds.ClassifyWorld(v, *s.stack.At(depth), &s.env.Frustum) {
			case bounds.AllOut:
				return
			case bounds.AllIn:
				test = false
			}
		}
	}
	if caps.Has(scene.CapTransform) {
		if tb, ok := n.(scene.TransformBearing); ok {
			depth = s.stack.PushAt(depth, tb.Transform())
		}
	}

	switch {
	case caps.Has(scene.CapCustom):
		c, ok := n.(scene.Custom)
		if !ok {
			return
		}
		s.keepCustom(c.Cull(*s.stack.At(depth), s.env.ViewTransform, &s.env.Frustum, s.kind, s.custom[:0]))
		for i := range s.custom {
			f.addRecord(s.custom[i].Renderable, &s.custom[i].Transform)
			s.custom[i].Renderable = nil
		}
	case caps.Has(scene.CapLeaf):
		lf, ok := n.(scene.Leaf)
		if !ok || lf.Kind() != s.kind {
			return
		}
		if r := lf.Renderable(); r != nil && r.Enabled() {
			f.addRecord(r, s.stack.At(depth))
		}
	case caps.Has(scene.CapGroup):
		g, ok := n.(scene.Grouping)
		if !ok {
			return
		}
		for _, c := range g.Children() {
			if s.halted.Load() {
				return
			}
			s.cullNode(f, c, depth, test)
		}
	}
}

// keepCustom stores out as the custom buffer. A buffer the node had to
// grow is replaced by one sized to the next output increment.
func (s *Stage) keepCustom(out []scene.CustomResult) {
	if cap(out) == cap(s.custom) {
		s.custom = out
		return
	}
	n := (len(out) + s.inc - 1) / s.inc * s.inc
	grown := make([]scene.CustomResult, len(out), n)
	copy(grown, out)
	s.custom = grown
}
