package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Status      StatusConfig    `toml:"status"`
	Export      ExportConfig    `toml:"export"`
	Assets      AssetsConfig    `toml:"assets"`
	Sweep       SweepConfig     `toml:"sweep"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gt=0,lte=65535"`
	Host string `toml:"host" validate:"required"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
}

// WebSocketConfig contains configuration for the push channel
type WebSocketConfig struct {
	MinLevel        string   `toml:"min_level"`        // Minimum log level to broadcast ("debug", "info", "warn", "error")
	ExcludePatterns []string `toml:"exclude_patterns"` // Log message patterns to exclude from broadcasting
	// Throttle interval for stage_change events. Completion messages are never throttled.
	StageThrottle string `toml:"stage_throttle"`
}

// StatusConfig holds the visual-stage transition schedule for the
// reconciliation engine. Delays are design parameters; they must be
// positive and finite.
type StatusConfig struct {
	AnalyzingDelay  time.Duration `toml:"analyzing_delay"`  // analyzing -> generating
	GeneratingDelay time.Duration `toml:"generating_delay"` // generating -> finalizing
	FinalizingDelay time.Duration `toml:"finalizing_delay"` // finalizing -> complete (gated on backend flag)
	InboxSize       int           `toml:"inbox_size"`       // bounded message queue feeding the engine loop
}

// ExportConfig holds page geometry and sandbox timing for report export
type ExportConfig struct {
	PageWidth    float64       `toml:"page_width" validate:"gt=0"`  // destination page width in points
	PageHeight   float64       `toml:"page_height" validate:"gt=0"` // destination page height in points
	Margin       float64       `toml:"margin" validate:"gte=0"`     // border inset on all sides, points
	SandboxWidth int64         `toml:"sandbox_width" validate:"gt=0"`
	RasterScale  float64       `toml:"raster_scale" validate:"gt=0"`
	LoadTimeout  time.Duration `toml:"load_timeout"` // bounded wait for sandbox content, proceed on expiry
	SettleDelay  time.Duration `toml:"settle_delay"` // absorbs paint-timing nondeterminism after readiness
}

// AssetsConfig holds signed asset URL settings
type AssetsConfig struct {
	Dir        string        `toml:"dir" validate:"required"` // directory holding source drawings
	SigningKey string        `toml:"signing_key"`             // HMAC key for time-limited URLs
	URLTTL     time.Duration `toml:"url_ttl"`                 // signed URL lifetime
}

// SweepConfig configures the fallback re-fetch sweep for missed push updates
type SweepConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // cron schedule format
}

// NewDefaultConfig creates a configuration with default values.
// Only user-facing settings should be exposed in atelier.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/atelier",
				ResetOnStartup: false,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		WebSocket: WebSocketConfig{
			MinLevel:      "info",
			StageThrottle: "250ms",
		},
		Status: StatusConfig{
			AnalyzingDelay:  9 * time.Second,
			GeneratingDelay: 3 * time.Second,
			FinalizingDelay: 1 * time.Second,
			InboxSize:       256,
		},
		Export: ExportConfig{
			PageWidth:    595, // A4 in points
			PageHeight:   842,
			Margin:       40,
			SandboxWidth: 794, // printable-page width at 96dpi
			RasterScale:  2,
			LoadTimeout:  7 * time.Second,
			SettleDelay:  200 * time.Millisecond,
		},
		Assets: AssetsConfig{
			Dir:    "./data/assets",
			URLTTL: time.Hour,
		},
		Sweep: SweepConfig{
			Enabled:  true,
			Schedule: "@every 30s",
		},
	}
}

// LoadConfig loads configuration in order: defaults -> file -> env.
// A missing file is not an error; the defaults stand.
func LoadConfig(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Status.AnalyzingDelay <= 0 || c.Status.GeneratingDelay <= 0 || c.Status.FinalizingDelay <= 0 {
		return fmt.Errorf("invalid configuration: status delays must be positive")
	}
	if c.Export.PageWidth <= 2*c.Export.Margin {
		return fmt.Errorf("invalid configuration: page width must exceed twice the margin")
	}
	if c.Export.PageHeight <= 2*c.Export.Margin {
		return fmt.Errorf("invalid configuration: page height must exceed twice the margin")
	}
	return nil
}

// applyEnvOverrides applies ATELIER_* environment variables over the loaded config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ATELIER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ATELIER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("ATELIER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ATELIER_DB_PATH"); v != "" {
		cfg.Storage.Badger.Path = v
	}
	if v := os.Getenv("ATELIER_ASSETS_DIR"); v != "" {
		cfg.Assets.Dir = v
	}
	if v := os.Getenv("ATELIER_ASSET_SIGNING_KEY"); v != "" {
		cfg.Assets.SigningKey = v
	}
}
