package audio

import (
	"errors"
	gomath "math"
	"testing"

	"github.com/gopxl/beep/v2"

	"github.com/Faultbox/midgard-scenegraph/internal/engine/device"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/render"
	"github.com/Faultbox/midgard-scenegraph/pkg/math"
)

func TestVolumeConversion(t *testing.T) {
	tests := []struct {
		vol  float64
		want float64
	}{
		{1.0, 0},
		{0.5, -1},
		{0.25, -2},
		{0.0, -100},
	}

	for _, tt := range tests {
		if got := volumeExponent(tt.vol); gomath.Abs(got-tt.want) > 1e-9 {
			t.Errorf("volumeExponent(%f) = %f, want %f", tt.vol, got, tt.want)
		}
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		v, lo, hi, want float64
	}{
		{0.5, 0, 1, 0.5},
		{-1, 0, 1, 0},
		{2, 0, 1, 1},
		{0, 0, 1, 0},
		{1, 0, 1, 1},
	}

	for _, tt := range tests {
		got := clamp(tt.v, tt.lo, tt.hi)
		if got != tt.want {
			t.Errorf("clamp(%f, %f, %f) = %f, want %f", tt.v, tt.lo, tt.hi, got, tt.want)
		}
	}
}

func TestAttenuation(t *testing.T) {
	tests := []struct {
		distance, ref float32
		rolloff       float64
		want          float64
	}{
		{0, 1, 1, 1},
		{1, 1, 1, 1},
		{10, 1, 1, 0.1},
		{10, 1, 2, 1.0 / 19},
		{5, 0, 1, 0.2},
	}

	for _, tt := range tests {
		got := Attenuation(tt.distance, tt.ref, tt.rolloff)
		if gomath.Abs(got-tt.want) > 1e-6 {
			t.Errorf("Attenuation(%v, %v, %v) = %f, want %f", tt.distance, tt.ref, tt.rolloff, got, tt.want)
		}
	}
}

func TestPan(t *testing.T) {
	tests := []struct {
		local math.Vec3
		want  float64
	}{
		{math.V3(0, 0, 0), 0},
		{math.V3(5, 0, 0), 1},
		{math.V3(-5, 0, 0), -1},
		{math.V3(0, 0, -5), 0},
		{math.V3(3, 0, -4), 0.6},
	}

	for _, tt := range tests {
		if got := Pan(tt.local); gomath.Abs(got-tt.want) > 1e-6 {
			t.Errorf("Pan(%v) = %f, want %f", tt.local, got, tt.want)
		}
	}
}

func TestSourceVolume(t *testing.T) {
	s := NewTone("tone", 440, 1)
	if !s.Enabled() {
		t.Error("new source should be enabled")
	}
	if s.Volume() != 1.0 {
		t.Errorf("default volume = %f, want 1.0", s.Volume())
	}

	s.SetVolume(0.5)
	if s.Volume() != 0.5 {
		t.Errorf("volume = %f, want 0.5", s.Volume())
	}
	s.SetVolume(2.0)
	if s.Volume() != 1.0 {
		t.Errorf("volume = %f, want 1.0 (clamped)", s.Volume())
	}
	s.SetVolume(-1.0)
	if s.Volume() != 0.0 {
		t.Errorf("volume = %f, want 0.0 (clamped)", s.Volume())
	}
}

type fakeOutput struct {
	initErr error
	inits   int
	played  int
	closed  int
}

func (f *fakeOutput) output() output {
	return output{
		init: func(beep.SampleRate, int) error {
			f.inits++
			return f.initErr
		},
		play:   func(...beep.Streamer) { f.played++ },
		lock:   func() {},
		unlock: func() {},
		close:  func() { f.closed++ },
	}
}

func newTestDevice(t *testing.T, out *fakeOutput) (*device.Base, *Backend) {
	t.Helper()
	b := New(Config{MasterVolume: 1}, nil)
	b.out = out.output()
	return device.NewBase("audio", render.KindAudio, b), b
}

func frameWith(sources map[*Source]math.Mat4) *render.Instructions {
	l := render.NewInstructions(0)
	env := &render.Environment{}
	env.Reset()
	l.Add(render.OpStartScene, nil, nil, env)
	for s, m := range sources {
		m := m
		l.Add(render.OpStartRender, s, &m, env)
		l.Add(render.OpStopRender, s, &m, env)
	}
	l.Add(render.OpStopScene, nil, nil, env)
	return l
}

func TestBackendSpatializesSources(t *testing.T) {
	out := &fakeOutput{}
	dev, b := newTestDevice(t, out)

	right := NewTone("right", 440, 1)
	near := NewTone("near", 220, 5)
	dev.SetInstructions(nil, frameWith(map[*Source]math.Mat4{
		right: math.Translate(10, 0, 0),
		near:  math.Translate(0, 0, -2),
	}))
	if !dev.Draw(nil) {
		t.Fatal("Draw failed")
	}
	if out.inits != 1 || out.played != 1 {
		t.Errorf("inits = %d, played = %d, want 1 and 1", out.inits, out.played)
	}
	if b.Voices() != 2 {
		t.Fatalf("voices = %d, want 2", b.Voices())
	}

	exp, pan, paused, ok := b.voiceState(right)
	if !ok || paused {
		t.Fatalf("right voice ok=%v paused=%v", ok, paused)
	}
	if gomath.Abs(pan-1) > 1e-6 {
		t.Errorf("right pan = %f, want 1", pan)
	}
	if want := volumeExponent(0.1); gomath.Abs(exp-want) > 1e-6 {
		t.Errorf("right volume = %f, want %f", exp, want)
	}

	exp, pan, _, _ = b.voiceState(near)
	if exp != 0 || gomath.Abs(pan) > 1e-6 {
		t.Errorf("near volume = %f pan = %f, want 0 and 0", exp, pan)
	}

	// A frame without the right source pauses it.
	dev.SetInstructions(nil, frameWith(map[*Source]math.Mat4{near: math.Identity()}))
	if !dev.Draw(nil) {
		t.Fatal("Draw failed")
	}
	if _, _, paused, _ := b.voiceState(right); !paused {
		t.Error("right voice should be paused")
	}
	if _, _, paused, _ := b.voiceState(near); paused {
		t.Error("near voice should play")
	}

	dev.Dispose()
	if out.closed != 1 {
		t.Errorf("closed = %d, want 1", out.closed)
	}
	if b.Voices() != 0 {
		t.Errorf("voices after dispose = %d, want 0", b.Voices())
	}
}

func TestBackendInitFailure(t *testing.T) {
	out := &fakeOutput{initErr: errors.New("no audio device")}
	dev, _ := newTestDevice(t, out)

	if dev.Draw(nil) {
		t.Fatal("Draw should fail")
	}
	if dev.Draw(nil) {
		t.Fatal("Draw should keep failing")
	}
	if out.inits != 1 {
		t.Errorf("inits = %d, want 1", out.inits)
	}
	if dev.State() != device.StateFailed {
		t.Errorf("state = %s, want failed", dev.State())
	}
}

func TestSourceStartFailure(t *testing.T) {
	out := &fakeOutput{}
	dev, b := newTestDevice(t, out)
	bad := NewSource("bad", 1, func() (beep.Streamer, beep.Format, error) {
		return nil, beep.Format{}, errors.New("missing")
	})
	dev.SetInstructions(nil, frameWith(map[*Source]math.Mat4{bad: math.Identity()}))
	if !dev.Draw(nil) {
		t.Fatal("Draw failed")
	}
	if bad.Err() == nil {
		t.Error("expected source error")
	}
	if b.Voices() != 0 {
		t.Errorf("voices = %d, want 0", b.Voices())
	}
}

func TestMasterVolume(t *testing.T) {
	out := &fakeOutput{}
	dev, b := newTestDevice(t, out)
	if !dev.Draw(nil) {
		t.Fatal("Draw failed")
	}

	b.SetMasterVolume(2)
	if b.MasterVolume() != 1 {
		t.Errorf("master volume = %f, want 1 (clamped)", b.MasterVolume())
	}
	b.SetMasterVolume(0.25)
	if b.master.Volume != -2 || b.master.Silent {
		t.Errorf("master = %f silent=%v, want -2 and audible", b.master.Volume, b.master.Silent)
	}
	b.SetMuted(true)
	if !b.master.Silent {
		t.Error("muted master should be silent")
	}
}
