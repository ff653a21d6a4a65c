// Package picking answers spatial queries against the scene graph between
// frames. It walks nodes with the same capability dispatch as the cull stage
// and tests world-space bounds against each request's geometry.
package picking

import (
	"errors"
	"fmt"
	"math/bits"
	"sort"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-scenegraph/internal/engine/cull"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/render"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/scene"
	"github.com/Faultbox/midgard-scenegraph/pkg/bounds"
	"github.com/Faultbox/midgard-scenegraph/pkg/math"
)

// ErrInvalidPickTiming is returned when Pick runs while a cull is in
// progress.
var ErrInvalidPickTiming = errors.New("picking: invalid pick timing")

// Gate reports whether picking is currently safe. *scene.Updater implements
// it.
type Gate interface {
	IsPickingPermitted() bool
}

// batchSize is the number of requests one traversal serves.
const batchSize = 64

// Manager runs pick requests. It is not safe for concurrent use.
type Manager struct {
	gate  Gate
	stack *cull.TransformStack
	batch []*Request
	done  uint64
	log   *zap.Logger
}

// NewManager creates a pick manager. A nil gate always permits picking.
func NewManager(gate Gate, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		gate:  gate,
		stack: cull.NewTransformStack(cull.DefaultStackIncrement),
		log:   log,
	}
}

// Pick runs reqs against the subtree at root and fills each request's
// Results and Count. A *scene.Scene root picks its graph root. Requests
// share one traversal per batch of 64.
func (m *Manager) Pick(root scene.Node, reqs ...*Request) error {
	for _, r := range reqs {
		if r != nil {
			r.Results = r.Results[:0]
			r.Count = 0
		}
	}
	if m.gate != nil && !m.gate.IsPickingPermitted() {
		return ErrInvalidPickTiming
	}
	if s, ok := root.(*scene.Scene); ok {
		root = s.Root()
	}
	if root == nil {
		return scene.ErrNilNode
	}

	base := math.Identity()
	if p := root.Parent(); p != nil {
		w, err := scene.WorldTransform(p)
		if err != nil {
			return fmt.Errorf("pick: %w", err)
		}
		base = w
	}

	for start := 0; start < len(reqs); start += batchSize {
		end := min(start+batchSize, len(reqs))
		m.batch = reqs[start:end]
		m.done = 0
		var active uint64
		for i, r := range m.batch {
			if r != nil {
				active |= 1 << i
			}
		}
		m.stack.Reset(base)
		m.pickNode(root, 0, active)
	}
	m.batch = nil

	for _, r := range reqs {
		if r == nil {
			continue
		}
		if r.Sort == SortOrdered {
			sort.SliceStable(r.Results, func(i, j int) bool {
				return r.Results[i].Distance < r.Results[j].Distance
			})
		}
		r.Count = len(r.Results)
	}
	m.log.Debug("pick", zap.Int("requests", len(reqs)))
	return nil
}

func (m *Manager) pickNode(n scene.Node, depth int, active uint64) {
	for n != nil && n.Capabilities().Has(scene.CapSingleChild) {
		sc, ok := n.(scene.SingleChild)
		if !ok {
			return
		}
		n = sc.Child()
	}
	active &^= m.done
	if n == nil || active == 0 {
		return
	}

	caps := n.Capabilities()
	terminal := caps.Has(scene.CapLeaf) || caps.Has(scene.CapCustom)
	var world bounds.Volume
	if v := n.Bounds(); !bounds.IsVoid(v) {
		world = bounds.World(v, *m.stack.At(depth))
		for rest := active; rest != 0; rest &= rest - 1 {
			i := bits.TrailingZeros64(rest)
			if !m.batch[i].intersects(world) {
				active &^= 1 << i
			}
		}
		if active == 0 {
			return
		}
	} else if terminal {
		// Unbounded leaves cannot be located.
		return
	}

	if caps.Has(scene.CapTransform) {
		if tb, ok := n.(scene.TransformBearing); ok {
			depth = m.stack.PushAt(depth, tb.Transform())
		}
	}

	switch {
	case caps.Has(scene.CapCustom):
		m.hit(n, nil, depth, world, active)
	case caps.Has(scene.CapLeaf):
		lf, ok := n.(scene.Leaf)
		if !ok {
			return
		}
		r := lf.Renderable()
		if r == nil || !r.Enabled() {
			return
		}
		for rest := active; rest != 0; rest &= rest - 1 {
			i := bits.TrailingZeros64(rest)
			if !m.batch[i].Kinds.has(lf.Kind()) {
				active &^= 1 << i
			}
		}
		m.hit(n, r, depth, world, active)
	case caps.Has(scene.CapGroup):
		g, ok := n.(scene.Grouping)
		if !ok {
			return
		}
		for _, c := range g.Children() {
			m.pickNode(c, depth, active)
		}
	}
}

func (m *Manager) hit(n scene.Node, r render.Renderable, depth int, world bounds.Volume, active uint64) {
	xf := *m.stack.At(depth)
	for rest := active; rest != 0; rest &= rest - 1 {
		i := bits.TrailingZeros64(rest)
		req := m.batch[i]
		d := req.distance(world)
		if req.Exact {
			var ok bool
			if d, ok = req.refine(r, xf, d); !ok {
				continue
			}
		}
		res := Result{Node: n, Renderable: r, Transform: xf, Distance: d}
		switch req.Sort {
		case SortAny:
			req.Results = append(req.Results, res)
			m.done |= 1 << i
		case SortClosest:
			if len(req.Results) == 0 {
				req.Results = append(req.Results, res)
			} else if d < req.Results[0].Distance {
				req.Results[0] = res
			}
		default:
			req.Results = append(req.Results, res)
		}
	}
}

// refine runs the payload's exact ray test in its local frame. Payloads
// without one and non-ray geometry keep the bounds distance d.
func (r *Request) refine(rd render.Renderable, xf math.Mat4, d float32) (float32, bool) {
	if r.Geometry != GeometryRay && r.Geometry != GeometrySegment {
		return d, true
	}
	p, ok := rd.(render.Pickable)
	if !ok {
		return d, true
	}
	dir, length := r.direction()
	inv := xf.Inverse()
	local, hit := p.PickRay(inv.MulPoint(r.Origin), inv.MulDirection(dir).Normalize())
	if !hit {
		return 0, false
	}
	exact := local * xf.MaxScale()
	if r.Geometry == GeometrySegment && exact > length {
		return 0, false
	}
	return exact, true
}
