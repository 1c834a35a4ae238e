// Package config loads nodemap settings from an optional TOML file with
// NODEMAP_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/signalsfoundry/nodemap/core"
	"github.com/signalsfoundry/nodemap/internal/logging"
	"github.com/signalsfoundry/nodemap/internal/observability"
	"github.com/signalsfoundry/nodemap/internal/viz"
)

// ErrInvalid wraps every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Duration is a time.Duration written as a string ("500ms") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds nodemap configuration.
type Config struct {
	Engine  EngineConfig  `toml:"engine"`
	Server  ServerConfig  `toml:"server"`
	Data    DataConfig    `toml:"data"`
	Log     LogConfig     `toml:"log"`
	Tracing TracingConfig `toml:"tracing"`
}

// EngineConfig sizes the map and tunes marker animation.
type EngineConfig struct {
	Variant        string   `toml:"variant"` // "flat" or "globe"
	Width          float64  `toml:"width"`
	Height         float64  `toml:"height"`
	Lambda         float64  `toml:"lambda"`
	Phi            float64  `toml:"phi"`
	EnterDuration  Duration `toml:"enter_duration"`
	UpdateDuration Duration `toml:"update_duration"`
	ExitDuration   Duration `toml:"exit_duration"`
	PulsePeriod    Duration `toml:"pulse_period"`
	PulseAmplitude float64  `toml:"pulse_amplitude"`
	HoverScale     float64  `toml:"hover_scale"`
	Seed           int64    `toml:"seed"` // 0 seeds pulse phases from the clock
}

// ServerConfig controls the HTTP, websocket and gRPC listeners.
type ServerConfig struct {
	HTTPAddr        string   `toml:"http_addr"`
	GRPCAddr        string   `toml:"grpc_addr"`
	FrameRate       int      `toml:"frame_rate"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// DataConfig names the node and backdrop inputs.
type DataConfig struct {
	NodesFile    string `toml:"nodes_file"`
	BackdropFile string `toml:"backdrop_file"`
	Watch        bool   `toml:"watch"`
}

// LogConfig mirrors logging.Config.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// TracingConfig mirrors observability.TracingConfig.
type TracingConfig struct {
	Enabled     bool    `toml:"enabled"`
	ServiceName string  `toml:"service_name"`
	Exporter    string  `toml:"exporter"`
	Endpoint    string  `toml:"endpoint"`
	SampleRatio float64 `toml:"sample_ratio"`
}

// Default returns the default configuration.
func Default() *Config {
	anim := viz.DefaultAnimationConfig()
	tr := observability.DefaultTracingConfig()
	return &Config{
		Engine: EngineConfig{
			Variant:        string(viz.VariantFlat),
			Width:          960,
			Height:         480,
			EnterDuration:  Duration{anim.EnterDuration},
			UpdateDuration: Duration{anim.UpdateDuration},
			ExitDuration:   Duration{anim.ExitDuration},
			PulsePeriod:    Duration{anim.PulsePeriod},
			PulseAmplitude: anim.PulseAmplitude,
			HoverScale:     anim.HoverScale,
		},
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			GRPCAddr:        ":9090",
			FrameRate:       30,
			ShutdownTimeout: Duration{5 * time.Second},
		},
		Data: DataConfig{Watch: true},
		Log:  LogConfig{Level: "info", Format: "text"},
		Tracing: TracingConfig{
			Enabled:     tr.Enabled,
			ServiceName: tr.ServiceName,
			Exporter:    tr.Exporter,
			SampleRatio: tr.SampleRatio,
		},
	}
}

// Load reads path on top of the defaults. An empty path returns the
// defaults. Unknown keys are an error so typos do not pass silently.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalid, path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// Write encodes cfg as TOML.
func Write(w io.Writer, cfg *Config) error {
	return toml.NewEncoder(w).Encode(cfg)
}

// ApplyEnv overrides cfg with NODEMAP_* environment variables that are set.
// Malformed numeric values are ignored.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("NODEMAP_VARIANT"); v != "" {
		c.Engine.Variant = strings.ToLower(v)
	}
	if v := os.Getenv("NODEMAP_HTTP_ADDR"); v != "" {
		c.Server.HTTPAddr = v
	}
	if v := os.Getenv("NODEMAP_GRPC_ADDR"); v != "" {
		c.Server.GRPCAddr = v
	}
	if v := os.Getenv("NODEMAP_FRAME_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.FrameRate = n
		}
	}
	if v := os.Getenv("NODEMAP_NODES_FILE"); v != "" {
		c.Data.NodesFile = v
	}
	if v := os.Getenv("NODEMAP_BACKDROP_FILE"); v != "" {
		c.Data.BackdropFile = v
	}
	if v := os.Getenv("NODEMAP_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("NODEMAP_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	tr := observability.ApplyTracingEnv(c.TracingConfig())
	c.Tracing = TracingConfig{
		Enabled:     tr.Enabled,
		ServiceName: tr.ServiceName,
		Exporter:    tr.Exporter,
		Endpoint:    tr.Endpoint,
		SampleRatio: tr.SampleRatio,
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if _, err := viz.ParseVariant(c.Engine.Variant); err != nil {
		bad("engine.variant %q must be flat or globe", c.Engine.Variant)
	}
	if !(c.Engine.Width > 0) || !(c.Engine.Height > 0) {
		bad("engine size %vx%v must be positive", c.Engine.Width, c.Engine.Height)
	}
	for name, d := range map[string]Duration{
		"engine.enter_duration":   c.Engine.EnterDuration,
		"engine.update_duration":  c.Engine.UpdateDuration,
		"engine.exit_duration":    c.Engine.ExitDuration,
		"engine.pulse_period":     c.Engine.PulsePeriod,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
	} {
		if d.Duration < 0 {
			bad("%s must not be negative", name)
		}
	}
	if c.Engine.PulseAmplitude < 0 || c.Engine.HoverScale < 0 {
		bad("engine.pulse_amplitude and engine.hover_scale must not be negative")
	}
	if c.Server.FrameRate < 1 || c.Server.FrameRate > 240 {
		bad("server.frame_rate %d must be within [1,240]", c.Server.FrameRate)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		bad("tracing.sample_ratio %v must be within [0,1]", c.Tracing.SampleRatio)
	}
	return errors.Join(errs...)
}

// VizConfig converts the engine section for viz.New.
func (c *Config) VizConfig() viz.Config {
	return viz.Config{
		Variant:  viz.Variant(c.Engine.Variant),
		Width:    c.Engine.Width,
		Height:   c.Engine.Height,
		Rotation: core.Rotation{Lambda: c.Engine.Lambda, Phi: c.Engine.Phi},
		Animation: viz.AnimationConfig{
			EnterDuration:  c.Engine.EnterDuration.Duration,
			UpdateDuration: c.Engine.UpdateDuration.Duration,
			ExitDuration:   c.Engine.ExitDuration.Duration,
			PulsePeriod:    c.Engine.PulsePeriod.Duration,
			PulseAmplitude: c.Engine.PulseAmplitude,
			HoverScale:     c.Engine.HoverScale,
		},
	}
}

// Rand returns the pulse-phase source: seeded from Engine.Seed when set,
// otherwise nil so the engine seeds from the clock.
func (c *Config) Rand() *rand.Rand {
	if c.Engine.Seed == 0 {
		return nil
	}
	return rand.New(rand.NewSource(c.Engine.Seed))
}

// FrameInterval converts the frame rate into a ticker interval.
func (c *Config) FrameInterval() time.Duration {
	if c.Server.FrameRate <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.Server.FrameRate)
}

// LoggingConfig converts the log section for logging.New.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format}
}

// TracingConfig converts the tracing section for observability.InitTracing.
func (c *Config) TracingConfig() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: c.Tracing.ServiceName,
		Exporter:    c.Tracing.Exporter,
		Endpoint:    c.Tracing.Endpoint,
		SampleRatio: c.Tracing.SampleRatio,
	}
}
