package camera

import (
	"testing"

	"github.com/tanema/gween/ease"

	"github.com/Faultbox/midgard-scenegraph/internal/engine/scene"
	"github.com/Faultbox/midgard-scenegraph/pkg/bounds"
	"github.com/Faultbox/midgard-scenegraph/pkg/math"
)

func TestOrbitPosition(t *testing.T) {
	c := NewOrbitCamera()
	c.RotationX = 0
	c.RotationY = 0
	c.Distance = 10
	c.Center = math.V3(1, 2, 3)

	if got := c.Position(); !got.ApproxEqual(math.V3(1, 2, 13), 1e-5) {
		t.Errorf("Position() = %v, want (1, 2, 13)", got)
	}
}

func TestWorldTransformInvertsView(t *testing.T) {
	c := NewOrbitCamera()
	c.HandleDrag(40, 25)

	world := c.WorldTransform()
	if !world.Translation().ApproxEqual(c.Position(), 1e-4) {
		t.Errorf("world translation = %v, want %v", world.Translation(), c.Position())
	}
	if !c.ViewMatrix().Mul(world).ApproxEqual(math.Identity(), 1e-4) {
		t.Error("view x world should be identity")
	}

	// The center lies straight ahead, on -Z in camera space.
	ahead := c.ViewMatrix().MulPoint(c.Center)
	if !ahead.ApproxEqual(math.V3(0, 0, -c.Distance), 1e-3) {
		t.Errorf("center in camera space = %v", ahead)
	}
}

func TestZoomAndPitchLimits(t *testing.T) {
	c := NewOrbitCamera()
	for i := 0; i < 100; i++ {
		c.HandleZoom(1)
		c.HandleDrag(0, 100)
	}
	if c.Distance != c.MinDistance {
		t.Errorf("distance = %v, want %v", c.Distance, c.MinDistance)
	}
	if c.RotationX != c.MaxPitch {
		t.Errorf("pitch = %v, want %v", c.RotationX, c.MaxPitch)
	}
	c.SetDistance(1e6)
	if c.Distance != c.MaxDistance {
		t.Errorf("distance = %v, want %v", c.Distance, c.MaxDistance)
	}
}

func TestFitToBounds(t *testing.T) {
	c := NewOrbitCamera()
	c.FitToBounds(bounds.NewBox(math.V3(0, 0, 0), math.V3(4, 4, 4)))
	if !c.Center.ApproxEqual(math.V3(2, 2, 2), 1e-6) {
		t.Errorf("center = %v", c.Center)
	}
	if c.Distance <= 0 {
		t.Errorf("distance = %v", c.Distance)
	}

	before := c.Center
	c.FitToBounds(bounds.Void{})
	if c.Center != before {
		t.Error("void bounds should not move the camera")
	}
}

func TestApplyQueuesWhenLive(t *testing.T) {
	c := NewOrbitCamera()
	rig := scene.NewTransformGroup("rig")
	root := scene.NewGroup("root")
	if err := root.AddChild(rig); err != nil {
		t.Fatal(err)
	}

	if err := c.Apply(rig, nil); err != nil {
		t.Fatalf("Apply on detached rig: %v", err)
	}
	if !rig.Transform().ApproxEqual(c.WorldTransform(), 1e-6) {
		t.Error("detached rig should be updated immediately")
	}

	u := scene.NewUpdater(nil)
	scene.Activate(root, u)
	c.HandleDrag(100, 0)
	if err := c.Apply(rig, u); err != nil {
		t.Fatalf("Apply on live rig: %v", err)
	}
	if rig.Transform().ApproxEqual(c.WorldTransform(), 1e-6) {
		t.Error("live rig should wait for the update")
	}
	if err := u.ProcessUpdates(); err != nil {
		t.Fatal(err)
	}
	if !rig.Transform().ApproxEqual(c.WorldTransform(), 1e-6) {
		t.Error("rig not updated after ProcessUpdates")
	}
}

func TestZoomToAnimatesDistance(t *testing.T) {
	c := NewOrbitCamera()
	c.Distance = 20
	c.ZoomTo(10, 1, ease.Linear)
	if !c.Zooming() {
		t.Fatal("expected zoom animation")
	}

	if !c.Update(0.5) {
		t.Error("Update reported no movement")
	}
	if d := c.Distance; d < 14.9 || d > 15.1 {
		t.Errorf("mid-zoom distance = %g, want 15", d)
	}
	c.Update(0.6)
	if c.Distance != 10 || c.Zooming() {
		t.Errorf("distance = %g zooming = %v after finish", c.Distance, c.Zooming())
	}
	if c.Update(0.1) {
		t.Error("Update moved an idle camera")
	}
}

func TestManualZoomCancelsTween(t *testing.T) {
	c := NewOrbitCamera()
	c.ZoomTo(1000, 2, nil)
	c.HandleZoom(1)
	if c.Zooming() {
		t.Error("HandleZoom kept the animation")
	}
}
