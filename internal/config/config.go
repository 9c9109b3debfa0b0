// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/kyiku/slide-textguard-back/internal/controller"
	"github.com/kyiku/slide-textguard-back/internal/mask"
	"github.com/kyiku/slide-textguard-back/internal/overlay"
	"github.com/kyiku/slide-textguard-back/internal/solver"
)

// Config holds the application configuration.
type Config struct {
	Port               string
	AllowedOrigin      string
	AWSRegion          string
	S3Bucket           string
	CloudfrontDomain   string
	RateLimitPerMinute int
	LogLevel           string
	SessionTTL         time.Duration
	Solver             SolverConfig
}

// SolverConfig holds the layout solver tuning. It can also be read from a TOML file.
type SolverConfig struct {
	StepPx           float64 `toml:"step_px"`
	MaxRadiusPx      float64 `toml:"max_radius_px"`
	TextPaddingPx    float64 `toml:"text_padding_px"`
	ContentPaddingPx float64 `toml:"content_padding_px"`
	MaskStride       int     `toml:"mask_stride"`
	MaxMaskDimension int     `toml:"max_mask_dimension"`
	// MaxCanvasDimension bounds the right and bottom edges of canvases and images.
	MaxCanvasDimension int    `toml:"max_canvas_dimension"`
	MaxPasses          int    `toml:"max_passes"`
	PushOutPrefer      string `toml:"push_out_prefer"`
}

// DefaultSolverConfig returns the solver defaults.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		StepPx:             solver.DefaultStepPx,
		MaxRadiusPx:        solver.DefaultMaxRadiusPx,
		TextPaddingPx:      solver.DefaultTextPaddingPx,
		ContentPaddingPx:   24,
		MaskStride:         solver.DefaultMaskStride,
		MaxMaskDimension:   mask.DefaultMaxDimension,
		MaxCanvasDimension: overlay.DefaultMaxDimension,
		MaxPasses:          1,
		PushOutPrefer:      solver.SideRight.String(),
	}
}

// LoadDotEnv loads variables from .env files. Missing files are not an error
// and variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	def := DefaultSolverConfig()
	p := &envParser{}

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		AllowedOrigin:      getEnv("ALLOWED_ORIGIN", "http://localhost:5173"),
		AWSRegion:          getEnv("AWS_REGION", "ap-northeast-1"),
		S3Bucket:           getEnv("S3_BUCKET", ""),
		CloudfrontDomain:   getEnv("CLOUDFRONT_DOMAIN", ""),
		RateLimitPerMinute: p.intVar("RATE_LIMIT_PER_MINUTE", 600),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		SessionTTL:         p.durationVar("SESSION_TTL", 2*time.Hour),
		Solver: SolverConfig{
			StepPx:             p.floatVar("SOLVER_STEP_PX", def.StepPx),
			MaxRadiusPx:        p.floatVar("SOLVER_MAX_RADIUS_PX", def.MaxRadiusPx),
			TextPaddingPx:      p.floatVar("TEXT_PADDING_PX", def.TextPaddingPx),
			ContentPaddingPx:   p.floatVar("CONTENT_PADDING_PX", def.ContentPaddingPx),
			MaskStride:         p.intVar("MASK_SAMPLE_STRIDE", def.MaskStride),
			MaxMaskDimension:   p.intVar("MAX_MASK_DIMENSION", def.MaxMaskDimension),
			MaxCanvasDimension: p.intVar("MAX_CANVAS_DIMENSION", def.MaxCanvasDimension),
			MaxPasses:          p.intVar("SOLVER_MAX_PASSES", def.MaxPasses),
			PushOutPrefer:      getEnv("PUSH_OUT_PREFER", def.PushOutPrefer),
		},
	}
	if p.err != nil {
		return nil, p.err
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate port is a number
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.New("invalid port: must be a number")
	}
	if c.RateLimitPerMinute <= 0 {
		return errors.New("invalid rate limit: must be positive")
	}
	if c.SessionTTL < 0 {
		return errors.New("invalid session ttl: must not be negative")
	}
	return c.Solver.Validate()
}

// Validate validates the solver settings.
func (s SolverConfig) Validate() error {
	search := solver.SearchOptions{StepPx: s.StepPx, MaxRadiusPx: s.MaxRadiusPx}
	if err := search.Validate(); err != nil {
		return err
	}
	switch {
	case s.TextPaddingPx < 0 || s.ContentPaddingPx < 0:
		return errors.New("invalid padding: must not be negative")
	case s.MaskStride <= 0:
		return errors.New("invalid mask stride: must be positive")
	case s.MaxMaskDimension <= 0:
		return errors.New("invalid max mask dimension: must be positive")
	case s.MaxCanvasDimension <= 0:
		return errors.New("invalid max canvas dimension: must be positive")
	case s.MaxPasses < 1 || s.MaxPasses > solver.MaxEnforcePasses:
		return fmt.Errorf("invalid max passes: must be between 1 and %d", solver.MaxEnforcePasses)
	}
	if _, err := ParseSide(s.PushOutPrefer); err != nil {
		return err
	}
	return nil
}

// Settings converts the solver config into controller settings.
func (s SolverConfig) Settings() controller.Settings {
	side, err := ParseSide(s.PushOutPrefer)
	if err != nil {
		side = solver.SideRight
	}
	return controller.Settings{
		Search: solver.SearchOptions{
			StepPx:      s.StepPx,
			MaxRadiusPx: s.MaxRadiusPx,
		},
		TextPaddingPx:    s.TextPaddingPx,
		MaskStride:       s.MaskStride,
		MaxPasses:        s.MaxPasses,
		MaxMaskDimension: s.MaxMaskDimension,
		PushOut:          solver.PushOutPolicy{Prefer: side},
	}
}

// LoadSolverFile reads a TOML solver file. Keys missing from the file keep the
// values from base.
func LoadSolverFile(path string, base SolverConfig) (SolverConfig, error) {
	cfg := base
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return SolverConfig{}, fmt.Errorf("failed to read solver config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return SolverConfig{}, fmt.Errorf("invalid solver config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseSide parses a push-out side name.
func ParseSide(name string) (solver.Side, error) {
	for _, s := range []solver.Side{solver.SideRight, solver.SideLeft, solver.SideBelow, solver.SideAbove} {
		if strings.EqualFold(strings.TrimSpace(name), s.String()) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("invalid push-out side: %q", name)
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envParser reads typed variables and keeps the first parse error.
type envParser struct {
	err error
}

func (p *envParser) intVar(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		p.fail(key, err)
		return defaultValue
	}
	return n
}

func (p *envParser) floatVar(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		p.fail(key, err)
		return defaultValue
	}
	return f
}

func (p *envParser) durationVar(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		p.fail(key, err)
		return defaultValue
	}
	return d
}

func (p *envParser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}
