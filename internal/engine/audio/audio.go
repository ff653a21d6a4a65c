// Package audio is the beep output device: a device.Backend that mixes the
// sound leaves of each frame, spatialized against the scene's viewpoint.
package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-scenegraph/internal/config"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/device"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/render"
	"github.com/Faultbox/midgard-scenegraph/pkg/math"
)

// DefaultSampleRate is the default sample rate for audio playback.
const DefaultSampleRate = beep.SampleRate(44100)

// Config holds audio device settings.
type Config struct {
	SampleRate   int
	BufferMS     int
	MasterVolume float64
	Rolloff      float64
	Muted        bool
}

// ConfigFrom converts the audio section of the config.
func ConfigFrom(cfg config.AudioConfig) Config {
	return Config{
		SampleRate:   cfg.SampleRate,
		BufferMS:     cfg.BufferMS,
		MasterVolume: cfg.MasterVolume,
		Rolloff:      cfg.Rolloff,
		Muted:        cfg.Muted,
	}
}

// Context is the render.Context handed to sources.
type Context struct {
	// Listener maps world space to listener space.
	Listener math.Mat4
	// Model is the world transform of the source being rendered.
	Model *math.Mat4

	backend *Backend
}

// output is the part of the speaker package the backend uses.
type output struct {
	init   func(sr beep.SampleRate, bufferSize int) error
	play   func(s ...beep.Streamer)
	lock   func()
	unlock func()
	close  func()
}

var speakerOutput = output{
	init:   speaker.Init,
	play:   speaker.Play,
	lock:   speaker.Lock,
	unlock: speaker.Unlock,
	close: func() {
		speaker.Clear()
		speaker.Close()
	},
}

// voice is one playing source.
type voice struct {
	ctrl   *beep.Ctrl
	pan    *effects.Pan
	volume *effects.Volume
	frame  uint64
}

// Backend implements device.Backend over the system speaker.
type Backend struct {
	mu  sync.Mutex
	cfg Config
	out output
	log *zap.Logger

	sampleRate beep.SampleRate
	mixer      *beep.Mixer
	master     *effects.Volume
	voices     map[*Source]*voice
	frame      uint64
	ctx        Context
}

// New creates an audio backend. log may be nil.
func New(cfg Config, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = int(DefaultSampleRate)
	}
	if cfg.BufferMS <= 0 {
		cfg.BufferMS = 33
	}
	if cfg.Rolloff <= 0 {
		cfg.Rolloff = 1
	}
	b := &Backend{
		cfg:        cfg,
		out:        speakerOutput,
		log:        log,
		sampleRate: beep.SampleRate(cfg.SampleRate),
		mixer:      &beep.Mixer{},
		voices:     make(map[*Source]*voice),
	}
	b.ctx.backend = b
	b.ctx.Listener = math.Identity()
	return b
}

// NewDevice wraps a new backend in a device.Base.
func NewDevice(name string, cfg Config, log *zap.Logger, opts ...device.Option) (*device.Base, *Backend) {
	b := New(cfg, log)
	return device.NewBase(name, render.KindAudio, b, append([]device.Option{device.WithLogger(log)}, opts...)...), b
}

func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.out.init(b.sampleRate, b.sampleRate.N(time.Duration(b.cfg.BufferMS)*time.Millisecond)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	b.master = &effects.Volume{Streamer: b.mixer, Base: 2}
	b.applyMaster()
	b.out.play(b.master)
	b.log.Info("audio device ready", zap.Int("sample_rate", int(b.sampleRate)))
	return nil
}

// SetMasterVolume sets the master volume (0.0 to 1.0).
func (b *Backend) SetMasterVolume(vol float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg.MasterVolume = clamp(vol, 0, 1)
	b.out.lock()
	b.applyMaster()
	b.out.unlock()
}

// MasterVolume returns the master volume.
func (b *Backend) MasterVolume() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg.MasterVolume
}

// SetMuted silences all output.
func (b *Backend) SetMuted(muted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg.Muted = muted
	b.out.lock()
	b.applyMaster()
	b.out.unlock()
}

func (b *Backend) applyMaster() {
	if b.master == nil {
		return
	}
	vol := clamp(b.cfg.MasterVolume, 0, 1)
	b.master.Silent = b.cfg.Muted || vol <= 0
	b.master.Volume = volumeExponent(vol)
}

func (b *Backend) BeginFrame() error {
	b.mu.Lock()
	b.frame++
	b.mu.Unlock()
	return nil
}

func (b *Backend) Environment(in *render.Instruction) bool {
	switch in.Op {
	case render.OpStartScene:
		if in.Environment != nil {
			b.ctx.Listener = in.Environment.View
		}
	case render.OpStopScene:
		b.ctx.Listener = math.Identity()
	case render.OpSetBackground:
		// Ambient sound plays at the listener.
		if in.Renderable != nil && in.Renderable.Enabled() {
			ident := math.Identity()
			b.ctx.Model = &ident
			saved := b.ctx.Listener
			b.ctx.Listener = ident
			in.Renderable.Render(&b.ctx)
			b.ctx.Listener = saved
		}
	case render.OpStartLayer, render.OpStopLayer,
		render.OpStartViewport, render.OpStopViewport,
		render.OpSetViewpoint, render.OpSetFog,
		render.OpStartTransparent, render.OpStopTransparent:
	default:
		return false
	}
	return true
}

func (b *Backend) Context(in *render.Instruction) render.Context {
	b.ctx.Model = &in.Transform
	return &b.ctx
}

// EndFrame pauses every voice whose source was not rendered this frame.
func (b *Backend) EndFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.out.lock()
	defer b.out.unlock()
	for _, v := range b.voices {
		if v.frame != b.frame {
			v.ctrl.Paused = true
		}
	}
	return nil
}

func (b *Backend) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.out.close()
	n := len(b.voices)
	b.voices = make(map[*Source]*voice)
	b.log.Info("audio device released", zap.Int("voices", n))
	return nil
}

// Voices returns the number of sources that ever played.
func (b *Backend) Voices() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.voices)
}

// update starts or adjusts the voice of s.
func (b *Backend) update(s *Source, gain, pan float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, ok := b.voices[s]
	if !ok {
		stream, err := s.stream(b.sampleRate)
		if err != nil {
			return err
		}
		v = &voice{ctrl: &beep.Ctrl{Streamer: stream}}
		v.pan = &effects.Pan{Streamer: v.ctrl}
		v.volume = &effects.Volume{Streamer: v.pan, Base: 2}
		b.voices[s] = v
		b.out.lock()
		b.mixer.Add(v.volume)
		b.out.unlock()
		b.log.Debug("voice started", zap.String("source", s.Name()))
	}

	b.out.lock()
	v.ctrl.Paused = false
	v.pan.Pan = pan
	v.volume.Silent = gain <= 0
	v.volume.Volume = volumeExponent(gain)
	b.out.unlock()
	v.frame = b.frame
	return nil
}

// voiceState reports the volume exponent and pan of the voice of s.
func (b *Backend) voiceState(s *Source) (exp, pan float64, paused, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.voices[s]
	if !ok {
		return 0, 0, false, false
	}
	return v.volume.Volume, v.pan.Pan, v.ctrl.Paused, true
}
