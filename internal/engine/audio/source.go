package audio

import (
	"bytes"
	"fmt"
	"io"
	gomath "math"
	"sync/atomic"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/generators"
	"github.com/gopxl/beep/v2/wav"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-scenegraph/internal/engine/render"
	"github.com/Faultbox/midgard-scenegraph/pkg/bounds"
	"github.com/Faultbox/midgard-scenegraph/pkg/math"
)

// Source is a positional sound payload for scene.Sound leaves. It is heard
// at full volume within Radius of the listener and rolls off beyond it.
type Source struct {
	name    string
	open    func() (beep.Streamer, beep.Format, error)
	enabled atomic.Bool
	volume  atomic.Uint64 // float64 bits
	radius  float32
	rolloff float64
	err     atomic.Pointer[error]
}

// NewSource creates a source that plays the streams returned by open.
func NewSource(name string, radius float32, open func() (beep.Streamer, beep.Format, error)) *Source {
	s := &Source{name: name, open: open, radius: radius, rolloff: 1}
	s.enabled.Store(true)
	s.SetVolume(1)
	return s
}

// NewTone creates a looping sine tone at freq Hz.
func NewTone(name string, freq float64, radius float32) *Source {
	return NewSource(name, radius, func() (beep.Streamer, beep.Format, error) {
		format := beep.Format{SampleRate: DefaultSampleRate, NumChannels: 2, Precision: 2}
		tone, err := generators.SineTone(format.SampleRate, freq)
		if err != nil {
			return nil, format, fmt.Errorf("tone %s: %w", name, err)
		}
		return tone, format, nil
	})
}

// NewWAV creates a source from WAV data. With loop set it restarts at the
// end.
func NewWAV(name string, data []byte, loop bool, radius float32) *Source {
	return NewSource(name, radius, func() (beep.Streamer, beep.Format, error) {
		streamer, format, err := wav.Decode(io.NopCloser(bytes.NewReader(data)))
		if err != nil {
			return nil, format, fmt.Errorf("decode wav %s: %w", name, err)
		}
		if !loop {
			return streamer, format, nil
		}
		return &loopStreamer{streamer: streamer}, format, nil
	})
}

func (s *Source) Name() string { return s.name }

func (s *Source) Enabled() bool { return s.enabled.Load() }

// SetEnabled toggles the source. A disabled source is not culled and its
// voice pauses.
func (s *Source) SetEnabled(on bool) { s.enabled.Store(on) }

// Volume returns the source volume (0.0 to 1.0).
func (s *Source) Volume() float64 { return gomath.Float64frombits(s.volume.Load()) }

// SetVolume sets the source volume (0.0 to 1.0).
func (s *Source) SetVolume(vol float64) {
	s.volume.Store(gomath.Float64bits(clamp(vol, 0, 1)))
}

// SetRolloff sets how fast the source fades past its radius.
func (s *Source) SetRolloff(r float64) {
	if r > 0 {
		s.rolloff = r
	}
}

// Err returns the last error raised while starting the source.
func (s *Source) Err() error {
	if p := s.err.Load(); p != nil {
		return *p
	}
	return nil
}

func (s *Source) Transparent() bool { return false }

func (s *Source) Equal(o render.Renderable) bool { return o == render.Renderable(s) }

// Bounds is the audible sphere around the source origin.
func (s *Source) Bounds() bounds.Volume {
	return bounds.NewSphere(math.Vec3{}, s.radius)
}

// Render starts or updates the voice. Contexts of other devices are
// ignored.
func (s *Source) Render(ctx render.Context) {
	c, ok := ctx.(*Context)
	if !ok || c.backend == nil || c.Model == nil {
		return
	}
	local := c.Listener.Mul(*c.Model).Translation()
	rolloff := s.rolloff * c.backend.cfg.Rolloff
	gain := Attenuation(local.Length(), s.radius, rolloff) * s.Volume()
	if err := c.backend.update(s, gain, Pan(local)); err != nil {
		if s.Err() == nil {
			c.backend.log.Warn("source failed to start", zap.String("source", s.name), zap.Error(err))
		}
		s.err.Store(&err)
	}
}

func (s *Source) PostRender(render.Context) {}

// stream opens the source and resamples it to sr.
func (s *Source) stream(sr beep.SampleRate) (beep.Streamer, error) {
	st, format, err := s.open()
	if err != nil {
		return nil, err
	}
	if format.SampleRate != 0 && format.SampleRate != sr {
		st = beep.Resample(4, format.SampleRate, sr, st)
	}
	return st, nil
}

// Attenuation is the inverse distance gain: 1 within ref, then
// ref / (ref + rolloff*(d-ref)).
func Attenuation(distance, ref float32, rolloff float64) float64 {
	if ref <= 0 {
		ref = 1
	}
	if distance <= ref {
		return 1
	}
	return float64(ref) / (float64(ref) + rolloff*float64(distance-ref))
}

// Pan maps a listener-space position to a stereo pan in [-1, 1]; +X is
// right.
func Pan(local math.Vec3) float64 {
	l := local.Length()
	if l < 1e-6 {
		return 0
	}
	return clamp(float64(local.X/l), -1, 1)
}

// volumeExponent converts a 0-1 volume to the base 2 exponent
// effects.Volume takes.
func volumeExponent(vol float64) float64 {
	if vol <= 0 {
		return -100 // Effectively silent
	}
	// vol=1 -> 0, vol=0.5 -> -1, vol=0.25 -> -2
	return gomath.Log2(vol)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// loopStreamer wraps a streamer to make it loop.
type loopStreamer struct {
	streamer beep.StreamSeekCloser
}

func (l *loopStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	filled := 0
	for filled < len(samples) {
		n, ok := l.streamer.Stream(samples[filled:])
		filled += n
		if !ok {
			// Reset to beginning
			if err := l.streamer.Seek(0); err != nil {
				return filled, filled > 0
			}
			if n == 0 && l.streamer.Len() == 0 {
				return filled, false
			}
		}
	}
	return filled, true
}

func (l *loopStreamer) Err() error {
	return l.streamer.Err()
}
