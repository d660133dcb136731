// Package config holds clipnship's tunables: canvas size, playback and render
// rates, preview width, logging and the HTTP bind address. Values come from
// Default, then an optional TOML file, then CLIPNSHIP_* environment variables.
package config

import (
	"bytes"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CLIPNSHIP_"

const (
	// DefaultCanvasWidth and DefaultCanvasHeight are the 9:16 output canvas.
	DefaultCanvasWidth  = 1080
	DefaultCanvasHeight = 1920

	DefaultTickRate      = 60
	DefaultFPS           = 60
	DefaultFlushInterval = 500 * time.Millisecond
	DefaultMutedGain     = 0.001
	DefaultPreviewWidth  = "500px"
	DefaultProfile       = "webm-vp9"
	DefaultPreset        = "realtime"
	DefaultOutput        = "clipnship.webm"
	DefaultBind          = "127.0.0.1:8089"
)

// Canvas is the output surface size in pixels.
type Canvas struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`
}

// Playback controls the preview draw tick.
type Playback struct {
	TickRate int `toml:"tick_rate"`
}

// Render controls capture and encoding.
type Render struct {
	FPS             int     `toml:"fps"`
	FlushIntervalMS int     `toml:"flush_interval_ms"`
	MutedGain       float64 `toml:"muted_gain"`
	Profile         string  `toml:"profile"`
	Preset          string  `toml:"preset"`
	Output          string  `toml:"output"`
}

// FlushInterval is how often encoded chunks are handed to the caller.
func (r Render) FlushInterval() time.Duration {
	return time.Duration(r.FlushIntervalMS) * time.Millisecond
}

// Preview controls the preview surface.
type Preview struct {
	Width string `toml:"width"`
}

// Logging selects the slog level and handler.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Server configures `clipnship serve`.
type Server struct {
	Bind string `toml:"bind"`
}

// Config is the full configuration.
type Config struct {
	Canvas   Canvas   `toml:"canvas"`
	Playback Playback `toml:"playback"`
	Render   Render   `toml:"render"`
	Preview  Preview  `toml:"preview"`
	Logging  Logging  `toml:"logging"`
	Server   Server   `toml:"server"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Canvas:   Canvas{Width: DefaultCanvasWidth, Height: DefaultCanvasHeight},
		Playback: Playback{TickRate: DefaultTickRate},
		Render: Render{
			FPS:             DefaultFPS,
			FlushIntervalMS: int(DefaultFlushInterval / time.Millisecond),
			MutedGain:       DefaultMutedGain,
			Profile:         DefaultProfile,
			Preset:          DefaultPreset,
			Output:          DefaultOutput,
		},
		Preview: Preview{Width: DefaultPreviewWidth},
		Logging: Logging{Level: "info", Format: "text"},
		Server:  Server{Bind: DefaultBind},
	}
}

// Load reads path over Default, applies environment overrides and validates
// the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config")
		}
		if err := Decode(data, &cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Decode parses TOML into cfg. Unknown keys are rejected so typos surface.
func Decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return errors.Wrap(err, "failed to parse config")
	}
	return nil
}

// Encode renders cfg as TOML, for `clipnship config` style dumps.
func Encode(cfg Config) ([]byte, error) {
	out, err := toml.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode config")
	}
	return out, nil
}

// LoadDotEnv loads .env style files into the process environment. Variables
// already set win. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return errors.Wrapf(err, "failed to load %s", p)
		}
	}
	return nil
}

// ApplyEnv overrides fields from CLIPNSHIP_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(EnvPrefix + key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	ints := map[string]*int{
		"CANVAS_WIDTH":      &c.Canvas.Width,
		"CANVAS_HEIGHT":     &c.Canvas.Height,
		"TICK_RATE":         &c.Playback.TickRate,
		"FPS":               &c.Render.FPS,
		"FLUSH_INTERVAL_MS": &c.Render.FlushIntervalMS,
	}
	for key, dst := range ints {
		v, ok := get(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Errorf("%s%s: %q is not an integer", EnvPrefix, key, v)
		}
		*dst = n
	}
	if v, ok := get("MUTED_GAIN"); ok {
		g, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Errorf("%sMUTED_GAIN: %q is not a number", EnvPrefix, v)
		}
		c.Render.MutedGain = g
	}
	strs := map[string]*string{
		"PROFILE":       &c.Render.Profile,
		"PRESET":        &c.Render.Preset,
		"OUTPUT":        &c.Render.Output,
		"PREVIEW_WIDTH": &c.Preview.Width,
		"LOG_LEVEL":     &c.Logging.Level,
		"LOG_FORMAT":    &c.Logging.Format,
		"BIND":          &c.Server.Bind,
	}
	for key, dst := range strs {
		if v, ok := get(key); ok {
			*dst = v
		}
	}
	return nil
}
