// Package main runs the scene graph demo: a small scene drawn through the
// cull, sort and device pipeline, either in an SDL2/OpenGL window with
// spatial audio or headless.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/midgard-scenegraph/internal/assets"
	"github.com/Faultbox/midgard-scenegraph/internal/config"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/audio"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/device"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/input"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/picking"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/pipeline"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/render"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/renderer"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/window"
	"github.com/Faultbox/midgard-scenegraph/internal/logger"
	"github.com/Faultbox/midgard-scenegraph/internal/report"
)

const (
	soundFile   = "hum.wav"
	soundRadius = 4
	zoomSeconds = 0.6
)

var (
	flagAssets      = flag.String("assets", "assets", "Directory with demo assets")
	flagScreenshots = flag.String("screenshots", "screenshots", "Directory for F12 screenshots")
	flagShotFormat  = flag.String("screenshot-format", "png", "Screenshot format: png or bmp")
)

func main() {
	// Parse CLI flags first
	config.ParseFlags()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("=== Midgard Scene Graph ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("demo failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("demo closed normally")
}

// app is the running demo.
type app struct {
	cfg      *config.Config
	pm       *pipeline.Manager
	world    *world
	win      *window.Window
	in       *input.Input
	gfx      *renderer.Backend
	snd      *audio.Backend
	home     float32
	boundsOn bool
	muted    bool
}

func run(ctx context.Context, cfg *config.Config) error {
	opts, err := pipeline.OptionsFromConfig(cfg.Pipeline)
	if err != nil {
		return err
	}
	opts.Logger = logger.Log
	opts.Reporter = report.NewZap(logger.Log)

	a := &app{
		cfg:      cfg,
		pm:       pipeline.NewManager(opts),
		boundsOn: cfg.Graphics.DebugBounds,
		muted:    cfg.Audio.Muted,
	}
	a.world, err = buildWorld(cfg, loadSound(cfg))
	if err != nil {
		return fmt.Errorf("building scene: %w", err)
	}
	a.home = a.world.camera.Distance
	a.pm.SetLayers(a.world.layer)

	if cfg.Graphics.Headless {
		a.addHeadlessDevices(opts.Reporter)
		defer a.shutdown()
	} else {
		if err := a.openWindow(opts.Reporter); err != nil {
			a.pm.Shutdown()
			if a.win != nil {
				a.win.Close()
			}
			return err
		}
		defer a.win.Close()
		defer a.shutdown()
	}
	a.watchConfig(ctx)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	if cfg.Pipeline.MultiThreaded {
		g.Go(func() error {
			defer cancel()
			return a.pm.Run(gctx)
		})
	}
	loopErr := a.loop(gctx)
	cancel()
	if err := errors.Join(loopErr, g.Wait()); err != nil {
		return err
	}
	a.logProfiles()
	return nil
}

// loadSound returns the looping demo sound, or a tone when no sound file
// is found.
func loadSound(cfg *config.Config) *audio.Source {
	if !cfg.Audio.Enabled {
		return nil
	}
	files := assets.NewManager[[]byte]()
	defer files.Close()
	files.AddLoader(assets.Dir(*flagAssets))

	data, err := files.Load(soundFile)
	if err != nil {
		logger.Debug("no sound file, using a tone", zap.Error(err))
		return audio.NewTone("hum", 220, soundRadius)
	}
	return audio.NewWAV("hum", data, true, soundRadius)
}

func (a *app) addHeadlessDevices(rep report.Reporter) {
	gfx, _ := device.NewHeadlessDevice("graphics", render.KindGraphics,
		device.WithLogger(logger.Log), device.WithReporter(rep))
	a.pm.AddDevice(gfx)
	if a.cfg.Audio.Enabled {
		snd, _ := device.NewHeadlessDevice("audio", render.KindAudio,
			device.WithLogger(logger.Log), device.WithReporter(rep))
		a.pm.AddDevice(snd)
	}
}

func (a *app) openWindow(rep report.Reporter) error {
	win, err := window.New(window.ConfigFrom(a.cfg.Graphics), logger.Log)
	if err != nil {
		return fmt.Errorf("creating window: %w", err)
	}
	a.win = win
	a.in = input.New()

	gfxDev, gfx := renderer.NewDevice("opengl", win, renderer.Config{
		ClearColor:       [4]float32{0, 0, 0, 1},
		DebugBounds:      a.cfg.Graphics.DebugBounds,
		ScreenshotDir:    *flagScreenshots,
		ScreenshotFormat: *flagShotFormat,
	}, logger.Log, device.WithReporter(rep))
	a.gfx = gfx
	a.pm.AddDevice(gfxDev)

	if a.cfg.Audio.Enabled {
		sndDev, snd := audio.NewDevice("speaker", audio.ConfigFrom(a.cfg.Audio), logger.Log, device.WithReporter(rep))
		a.snd = snd
		a.pm.AddDevice(sndDev)
	}

	width, height := win.GetSize()
	if err := a.world.resize(width, height, a.pm.Updater()); err != nil {
		return err
	}

	// The render goroutine makes the context current in device init
	if a.cfg.Pipeline.MultiThreaded {
		if err := win.ReleaseCurrent(); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) shutdown() {
	if a.win != nil && a.cfg.Pipeline.MultiThreaded {
		// The render goroutine is gone; release GL objects from here
		if err := a.win.MakeCurrent(); err != nil {
			logger.Warn("reacquiring GL context failed", zap.Error(err))
		}
	}
	a.pm.Shutdown()
}

// watchConfig applies log level, culling, debug bounds and volume changes
// of the config file while running.
func (a *app) watchConfig(ctx context.Context) {
	path := config.FilePath()
	if path == "" {
		return
	}
	err := config.Watch(ctx, path, func(c *config.Config, err error) {
		if err != nil {
			logger.Warn("config reload failed", zap.String("file", path), zap.Error(err))
			return
		}
		logger.SetLevel(c.Logging.Level)
		a.pm.SetFrustumCulling(c.Pipeline.FrustumCulling)
		if a.gfx != nil {
			a.gfx.SetDebugBounds(c.Graphics.DebugBounds)
		}
		if a.snd != nil {
			a.snd.SetMasterVolume(float64(c.Audio.MasterVolume))
			a.snd.SetMuted(c.Audio.Muted)
		}
		logger.Info("config reloaded", zap.String("file", path))
	})
	if err != nil {
		logger.Warn("config watch disabled", zap.Error(err))
	}
}

// loop polls input and advances the scene. Input is polled at the frame
// rate, 60 Hz when unlimited. In single-threaded mode it also renders.
func (a *app) loop(ctx context.Context) error {
	rate := a.cfg.Pipeline.FrameRate
	if rate <= 0 {
		rate = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	last := time.Now()
	frames := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			dt := float32(now.Sub(last).Seconds())
			last = now

			if a.handleInput() {
				return nil
			}
			if err := a.world.tick(dt, a.pm.Updater()); err != nil {
				return fmt.Errorf("scene update: %w", err)
			}
			if a.cfg.Pipeline.MultiThreaded {
				continue
			}
			if err := a.pm.RenderOnce(); err != nil {
				logger.Warn("frame failed", zap.Error(err))
			}
			if len(a.pm.Devices()) == 0 {
				return pipeline.ErrNoDevices
			}
			frames++
			if limit := a.cfg.Pipeline.MaxFrames; limit > 0 && frames >= limit {
				return nil
			}
		}
	}
}

// handleInput processes window events and reports whether to quit.
func (a *app) handleInput() bool {
	if a.in == nil {
		return false
	}
	if a.in.Update() {
		return true
	}
	u := a.pm.Updater()
	cam := a.world.camera
	for _, e := range a.in.Events() {
		switch e.Type {
		case input.EventWindowResize:
			if err := a.world.resize(e.Width, e.Height, u); err != nil {
				logger.Warn("resize failed", zap.Error(err))
			}
		case input.EventKeyDown:
			switch e.Key {
			case sdl.SCANCODE_ESCAPE:
				return true
			case sdl.SCANCODE_F12:
				a.gfx.RequestScreenshot()
			case sdl.SCANCODE_B:
				a.boundsOn = !a.boundsOn
				a.gfx.SetDebugBounds(a.boundsOn)
			case sdl.SCANCODE_Z:
				target := a.home
				if cam.Distance > a.home/2 {
					target = a.home / 3
				}
				cam.ZoomTo(target, zoomSeconds, nil)
			case sdl.SCANCODE_M:
				if a.snd != nil {
					a.muted = !a.muted
					a.snd.SetMuted(a.muted)
				}
			}
		}
	}

	if dx, dy := a.in.Drag(sdl.BUTTON_RIGHT); dx != 0 || dy != 0 {
		cam.HandleDrag(dx, dy)
	}
	if w := a.in.Wheel(); w != 0 {
		cam.HandleZoom(w)
	}
	for _, c := range a.in.Clicks(sdl.BUTTON_LEFT) {
		a.pick(c[0], c[1])
	}
	return false
}

// pick selects the closest mesh under the cursor. A click on empty space
// moves the ground marker instead.
func (a *app) pick(x, y int) {
	width, height := a.win.GetSize()
	ray := picking.ScreenToRay(float32(x), float32(y), float32(width), float32(height),
		a.world.invViewProjection(width, height))
	req := ray.Request(picking.SortClosest)
	req.Kinds = picking.MaskOf(render.KindGraphics)
	req.Exact = true

	if err := a.pm.Pick(a.world.root, req); err != nil {
		logger.Warn("pick failed", zap.Error(err))
		return
	}
	if req.Count == 0 {
		a.world.selectMesh(nil)
		at, ok, err := a.world.placeMarker(ray, a.pm.Updater())
		if err != nil {
			logger.Warn("marker move failed", zap.Error(err))
		} else if ok {
			logger.Debug("marker moved", zap.Float32("x", at.X), zap.Float32("z", at.Z))
		}
		return
	}
	hit := req.Results[0]
	mesh, _ := hit.Renderable.(*renderer.Mesh)
	a.world.selectMesh(mesh)
	logger.Info("picked",
		zap.String("node", hit.Node.AsNodeBase().Name()),
		zap.Float32("distance", hit.Distance))
}

func (a *app) logProfiles() {
	for _, d := range a.pm.Devices() {
		p, ok := a.pm.Profile(d)
		if !ok {
			continue
		}
		logger.Info("last frame",
			zap.Stringer("kind", d.Kind()),
			zap.Uint64("frame", p.Frame),
			zap.Duration("cull", p.CullTime),
			zap.Duration("sort", p.SortTime),
			zap.Duration("draw", p.DrawTime),
			zap.Int("instructions", p.Instructions))
	}
}
