package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable that overrides the config path.
const EnvPath = "FRAMETASK_CONFIG"

// DefaultPath is used when neither a flag nor EnvPath selects a file.
const DefaultPath = "config/frametask.toml"

type Config struct {
	App       AppConfig       `toml:"app" yaml:"app"`
	Async     AsyncConfig     `toml:"async" yaml:"async"`
	Logging   LoggingConfig   `toml:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `toml:"metrics" yaml:"metrics"`
	Journal   JournalConfig   `toml:"journal" yaml:"journal"`
	Scripting ScriptingConfig `toml:"scripting" yaml:"scripting"`
}

type AppConfig struct {
	TickRate  Duration `toml:"tick_rate" yaml:"tick_rate"`
	MaxFrames uint64   `toml:"max_frames" yaml:"max_frames"` // 0 = until exit or signal
}

type AsyncConfig struct {
	CommandQueueSize int      `toml:"command_queue_size" yaml:"command_queue_size"`
	SettleTimeout    Duration `toml:"settle_timeout" yaml:"settle_timeout"`
}

type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"` // "json" or "console"
}

type MetricsConfig struct {
	Enabled     bool   `toml:"enabled" yaml:"enabled"`
	BindAddress string `toml:"bind_address" yaml:"bind_address"`
}

// JournalConfig configures the routine lifecycle journal. An empty DSN
// disables it.
type JournalConfig struct {
	DSN                 string `toml:"dsn" yaml:"dsn"`
	MaxConns            int    `toml:"max_conns" yaml:"max_conns"`
	FlushIntervalFrames int    `toml:"flush_interval_frames" yaml:"flush_interval_frames"`
	BufferSize          int    `toml:"buffer_size" yaml:"buffer_size"`
}

type ScriptingConfig struct {
	Dir string `toml:"dir" yaml:"dir"`
}

// Duration is a time.Duration written as "200ms" or "1m30s" in both formats.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Path resolves the config file: flag value first, then EnvPath, then
// DefaultPath.
func Path(flag string) string {
	if flag != "" {
		return flag
	}
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads path over the defaults. Files ending in .yaml or .yml are YAML,
// everything else TOML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config { return defaults() }

func (c *Config) validate() error {
	if c.App.TickRate <= 0 {
		return fmt.Errorf("app.tick_rate must be positive, got %s", c.App.TickRate)
	}
	if c.Async.CommandQueueSize <= 0 {
		return fmt.Errorf("async.command_queue_size must be positive, got %d", c.Async.CommandQueueSize)
	}
	if c.Async.SettleTimeout < 0 {
		return fmt.Errorf("async.settle_timeout must not be negative, got %s", c.Async.SettleTimeout)
	}
	if c.Journal.FlushIntervalFrames <= 0 {
		c.Journal.FlushIntervalFrames = 1
	}
	return nil
}

func defaults() *Config {
	return &Config{
		App: AppConfig{
			TickRate: Duration(16 * time.Millisecond),
		},
		Async: AsyncConfig{
			CommandQueueSize: 100,
			SettleTimeout:    Duration(50 * time.Millisecond),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enabled:     false,
			BindAddress: "127.0.0.1:9464",
		},
		Journal: JournalConfig{
			MaxConns:            4,
			FlushIntervalFrames: 60,
			BufferSize:          1024,
		},
		Scripting: ScriptingConfig{
			Dir: "scripts",
		},
	}
}
