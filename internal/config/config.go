// Package config handles pipeline and demo configuration loading and
// management.
package config

import (
	"errors"
	"fmt"
)

// Config holds all settings.
type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
	Graphics GraphicsConfig `yaml:"graphics"`
	Audio    AudioConfig    `yaml:"audio"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// PipelineConfig holds cull/sort/draw settings.
type PipelineConfig struct {
	MultiThreaded           bool   `yaml:"multi_threaded"`
	FrameRate               int    `yaml:"frame_rate"` // 0 = unlimited
	MaxFrames               int    `yaml:"max_frames"` // 0 = run until closed
	SortMode                string `yaml:"sort_mode"`  // null, transparency or state
	FrustumCulling          bool   `yaml:"frustum_culling"`
	TransformStackIncrement int    `yaml:"transform_stack_increment"`
	OutputIncrement         int    `yaml:"output_increment"`
}

// GraphicsConfig holds display and rendering settings.
type GraphicsConfig struct {
	Title       string  `yaml:"title"`
	Width       int     `yaml:"width"`
	Height      int     `yaml:"height"`
	Fullscreen  bool    `yaml:"fullscreen"`
	VSync       bool    `yaml:"vsync"`
	Headless    bool    `yaml:"headless"`
	DebugBounds bool    `yaml:"debug_bounds"`
	FieldOfView float32 `yaml:"field_of_view"` // degrees
}

// AudioConfig holds audio settings.
type AudioConfig struct {
	Enabled      bool    `yaml:"enabled"`
	SampleRate   int     `yaml:"sample_rate"`
	BufferMS     int     `yaml:"buffer_ms"`
	MasterVolume float32 `yaml:"master_volume"`
	Rolloff      float32 `yaml:"rolloff"`
	Muted        bool    `yaml:"muted"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// SortModes lists the accepted pipeline.sort_mode values.
var SortModes = []string{"null", "transparency", "state"}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			MultiThreaded:           false,
			FrameRate:               60,
			SortMode:                "transparency",
			FrustumCulling:          true,
			TransformStackIncrement: 32,
			OutputIncrement:         256,
		},
		Graphics: GraphicsConfig{
			Title:       "Midgard Scene Graph",
			Width:       1280,
			Height:      720,
			Fullscreen:  false,
			VSync:       true,
			FieldOfView: 60,
		},
		Audio: AudioConfig{
			Enabled:      true,
			SampleRate:   44100,
			BufferMS:     100,
			MasterVolume: 0.8,
			Rolloff:      1,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate reports every setting the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	p := c.Pipeline
	if p.TransformStackIncrement <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.transform_stack_increment must be positive, got %d", p.TransformStackIncrement))
	}
	if p.OutputIncrement <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.output_increment must be positive, got %d", p.OutputIncrement))
	}
	if p.FrameRate < 0 {
		errs = append(errs, fmt.Errorf("pipeline.frame_rate must not be negative, got %d", p.FrameRate))
	}
	if !validSortMode(p.SortMode) {
		errs = append(errs, fmt.Errorf("pipeline.sort_mode %q is not one of %v", p.SortMode, SortModes))
	}
	if c.Graphics.Width <= 0 || c.Graphics.Height <= 0 {
		errs = append(errs, fmt.Errorf("graphics size %dx%d is invalid", c.Graphics.Width, c.Graphics.Height))
	}
	if fov := c.Graphics.FieldOfView; fov <= 0 || fov >= 180 {
		errs = append(errs, fmt.Errorf("graphics.field_of_view must be in (0, 180), got %g", fov))
	}
	if c.Audio.Enabled && c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate))
	}
	if v := c.Audio.MasterVolume; v < 0 || v > 1 {
		errs = append(errs, fmt.Errorf("audio.master_volume must be in [0, 1], got %g", v))
	}
	return errors.Join(errs...)
}

func validSortMode(m string) bool {
	for _, s := range SortModes {
		if s == m {
			return true
		}
	}
	return false
}
