package main

import (
	"fmt"
	gomath "math"

	"github.com/Faultbox/midgard-scenegraph/internal/config"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/audio"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/camera"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/picking"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/render"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/renderer"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/scene"
	"github.com/Faultbox/midgard-scenegraph/pkg/math"
)

const (
	gridSize    = 5
	gridSpacing = 3
	spinSpeed   = 0.6 // radians per second
	groundY     = -0.6
)

var highlight = [4]float32{1, 0.9, 0.2, 1}

// world is the demo scene plus the handles the main loop drives.
type world struct {
	layer    *scene.Layer
	scene    *scene.Scene
	viewport *scene.Viewport
	root     *scene.Group
	content  *scene.Group
	rig      *scene.TransformGroup
	view     *scene.Viewpoint
	spinner  *scene.TransformGroup
	marker   *scene.TransformGroup
	camera   *camera.OrbitCamera
	sound    *audio.Source

	angle    float32
	selected *renderer.Mesh
	tint     [4]float32
}

// buildWorld creates a grid of cubes, a spinning LOD, two instances of a
// shared pillar and an optional sound source.
func buildWorld(cfg *config.Config, sound *audio.Source) (*world, error) {
	w := &world{
		root:    scene.NewGroup("root"),
		content: scene.NewGroup("content"),
		rig:     scene.NewTransformGroup("camera-rig"),
		view:    scene.NewViewpoint("eye"),
		camera:  camera.NewOrbitCamera(),
		sound:   sound,
	}
	if err := w.view.SetFieldOfView(cfg.Graphics.FieldOfView * gomath.Pi / 180); err != nil {
		return nil, err
	}
	if err := w.rig.AddChild(w.view); err != nil {
		return nil, err
	}
	if err := w.root.AddChild(w.rig); err != nil {
		return nil, err
	}

	if err := w.addGrid(); err != nil {
		return nil, fmt.Errorf("grid: %w", err)
	}
	if err := w.addSpinner(); err != nil {
		return nil, fmt.Errorf("spinner: %w", err)
	}
	if err := w.addPillars(); err != nil {
		return nil, fmt.Errorf("pillars: %w", err)
	}
	if err := w.addMarker(); err != nil {
		return nil, fmt.Errorf("marker: %w", err)
	}
	if sound != nil {
		at, err := translated("sound-pos", math.Translate(0, 2, 0), scene.NewSound("sound", sound))
		if err != nil {
			return nil, err
		}
		if err := w.content.AddChild(at); err != nil {
			return nil, err
		}
	}
	if err := w.root.AddChild(w.content); err != nil {
		return nil, err
	}

	// The viewpoint has no bounds, so only the content can be fitted
	w.camera.FitToBounds(w.content.Bounds())
	w.camera.Distance *= 1.5
	if err := w.camera.Apply(w.rig, nil); err != nil {
		return nil, err
	}

	w.scene = scene.NewScene("demo")
	if err := w.scene.SetRoot(w.root); err != nil {
		return nil, err
	}
	if err := w.scene.SetViewpoint(w.view); err != nil {
		return nil, err
	}
	bg := renderer.NewBackground([4]float32{0.08, 0.09, 0.12, 1})
	if err := w.scene.SetBackground(scene.NewBackground("sky", bg)); err != nil {
		return nil, err
	}
	fog, err := renderer.NewFog([4]float32{0.08, 0.09, 0.12, 1}, 20, 90)
	if err != nil {
		return nil, err
	}
	if err := w.scene.SetFog(scene.NewFog("haze", fog)); err != nil {
		return nil, err
	}

	vl, err := scene.NewSceneLayer("main", w.scene)
	if err != nil {
		return nil, err
	}
	if err := vl.SetActiveSound(cfg.Audio.Enabled); err != nil {
		return nil, err
	}
	w.viewport = scene.NewViewport("full", render.ViewportRect{Width: cfg.Graphics.Width, Height: cfg.Graphics.Height})
	if err := w.viewport.AddLayer(vl); err != nil {
		return nil, err
	}
	w.layer = scene.NewLayer("world")
	if err := w.layer.AddViewport(w.viewport); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *world) addGrid() error {
	grid := scene.NewGroup("grid")
	half := float32(gridSize-1) * gridSpacing / 2
	for i := 0; i < gridSize; i++ {
		for j := 0; j < gridSize; j++ {
			name := fmt.Sprintf("cube-%d-%d", i, j)
			color := [3]float32{0.3 + 0.15*float32(i), 0.4, 0.3 + 0.15*float32(j)}
			mesh := renderer.Cube(name, 1.2, color)
			if (i+j)%4 == 0 {
				mesh.SetTint([4]float32{1, 1, 1, 0.5})
			}
			x := float32(i)*gridSpacing - half
			z := float32(j)*gridSpacing - half
			tg, err := translated(name+"-pos", math.Translate(x, 0, z), scene.NewShape(name, mesh))
			if err != nil {
				return err
			}
			if err := grid.AddChild(tg); err != nil {
				return err
			}
		}
	}
	return w.content.AddChild(grid)
}

func (w *world) addSpinner() error {
	lod := scene.NewLOD("centerpiece", math.Vec3{})
	if err := lod.AddLevel(scene.NewShape("centerpiece-hi", renderer.Cube("centerpiece-hi", 2, [3]float32{0.9, 0.3, 0.3})), 25); err != nil {
		return err
	}
	if err := lod.AddLevel(scene.NewShape("centerpiece-lo", renderer.Cube("centerpiece-lo", 2, [3]float32{0.5, 0.2, 0.2})), 1e6); err != nil {
		return err
	}
	w.spinner = scene.NewTransformGroup("spinner")
	if err := w.spinner.SetTransform(math.Translate(0, 3, 0)); err != nil {
		return err
	}
	if err := w.spinner.AddChild(lod); err != nil {
		return err
	}
	return w.content.AddChild(w.spinner)
}

func (w *world) addPillars() error {
	pillar := scene.NewSharedGroup("pillar")
	if err := pillar.AddChild(scene.NewShape("pillar-mesh", renderer.Cube("pillar", 1, [3]float32{0.7, 0.7, 0.7}))); err != nil {
		return err
	}
	edge := float32(gridSize) * gridSpacing / 2
	for i, x := range []float32{-edge, edge} {
		ref, err := scene.NewSharedNode(fmt.Sprintf("pillar-ref-%d", i), pillar)
		if err != nil {
			return err
		}
		tg, err := translated(fmt.Sprintf("pillar-%d", i), math.Translate(x, 1, 0), ref)
		if err != nil {
			return err
		}
		if err := w.content.AddChild(tg); err != nil {
			return err
		}
	}
	return nil
}

// addMarker adds the small cube that shows where the last empty click met
// the ground.
func (w *world) addMarker() error {
	mesh := renderer.Cube("marker", 0.3, [3]float32{0.2, 0.8, 0.9})
	tg, err := translated("marker-pos", math.Translate(0, groundY, 0), scene.NewShape("marker", mesh))
	if err != nil {
		return err
	}
	w.marker = tg
	return w.content.AddChild(tg)
}

func translated(name string, m math.Mat4, child scene.Node) (*scene.TransformGroup, error) {
	tg := scene.NewTransformGroup(name)
	if err := tg.SetTransform(m); err != nil {
		return nil, err
	}
	if err := tg.AddChild(child); err != nil {
		return nil, err
	}
	return tg, nil
}

// tick advances the animations by dt seconds and queues the transform
// writes on u.
func (w *world) tick(dt float32, u *scene.Updater) error {
	w.angle += spinSpeed * dt
	spin := math.Translate(0, 3, 0).Mul(math.RotateY(w.angle))
	if err := u.BoundsChanged(w.spinner, func(scene.Node) error {
		return w.spinner.SetTransform(spin)
	}); err != nil {
		return err
	}
	w.camera.Update(dt)
	return w.camera.Apply(w.rig, u)
}

// placeMarker queues a move of the ground marker to where ray meets the
// ground plane. It reports false when the ray never reaches the ground.
func (w *world) placeMarker(ray picking.Ray, u *scene.Updater) (math.Vec3, bool, error) {
	x, z, ok := ray.IntersectPlaneY(groundY)
	if !ok {
		return math.Vec3{}, false, nil
	}
	at := math.Translate(x, groundY, z)
	err := u.BoundsChanged(w.marker, func(scene.Node) error {
		return w.marker.SetTransform(at)
	})
	return math.V3(x, groundY, z), true, err
}

// resize updates the viewport rect.
func (w *world) resize(width, height int, u *scene.Updater) error {
	rect := render.ViewportRect{Width: width, Height: height}
	return u.DataChanged(w.viewport, func(scene.Node) error {
		return w.viewport.SetRect(rect)
	})
}

// invViewProjection returns the inverse view-projection of the camera for
// a viewport of the given size.
func (w *world) invViewProjection(width, height int) math.Mat4 {
	aspect := render.ViewportRect{Width: width, Height: height}.Aspect()
	vp := w.view.Projection(aspect).Mul(w.camera.ViewMatrix())
	return vp.Inverse()
}

// selectMesh highlights m and restores the previous selection. A nil m
// clears the selection.
func (w *world) selectMesh(m *renderer.Mesh) {
	if w.selected != nil {
		w.selected.SetTint(w.tint)
	}
	w.selected = m
	if m != nil {
		w.tint = m.Tint()
		h := highlight
		h[3] = w.tint[3]
		m.SetTint(h)
	}
}
