package config

import "flag"

var (
	flagConfig        = flag.String("config", "", "Path to config file")
	flagDebug         = flag.Bool("debug", false, "Enable debug logging and bounds wireframes")
	flagHeadless      = flag.Bool("headless", false, "Run without a window or audio output")
	flagMultiThreaded = flag.Bool("multithreaded", false, "Run each device chain on its own goroutine")
	flagFrames        = flag.Int("frames", 0, "Stop after this many frames")
	flagWidth         = flag.Int("width", 0, "Window width")
	flagHeight        = flag.Int("height", 0, "Window height")
	flagSort          = flag.String("sort", "", "Sort mode: null, transparency or state")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
		cfg.Graphics.DebugBounds = true
	}
	if *flagHeadless {
		cfg.Graphics.Headless = true
	}
	if *flagMultiThreaded {
		cfg.Pipeline.MultiThreaded = true
	}
	if *flagFrames > 0 {
		cfg.Pipeline.MaxFrames = *flagFrames
	}
	if *flagWidth > 0 {
		cfg.Graphics.Width = *flagWidth
	}
	if *flagHeight > 0 {
		cfg.Graphics.Height = *flagHeight
	}
	if *flagSort != "" {
		cfg.Pipeline.SortMode = *flagSort
	}
}
