package testsupport

import (
	"testing"

	"github.com/ZacxDev/clipnship/internal/config"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig returns a valid config with a small canvas so pixel tests stay
// fast, then applies opts.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Canvas = config.Canvas{Width: 108, Height: 192}
	cfg.Preview.Width = "54px"
	cfg.Server.Bind = "127.0.0.1:0"
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}
	return &cfg
}

// WithCanvas overrides the canvas size.
func WithCanvas(width, height int) ConfigOption {
	return func(c *config.Config) {
		c.Canvas = config.Canvas{Width: width, Height: height}
	}
}

// WithMutedGain overrides the render gain.
func WithMutedGain(g float64) ConfigOption {
	return func(c *config.Config) {
		c.Render.MutedGain = g
	}
}
