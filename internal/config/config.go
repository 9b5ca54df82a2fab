package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment override, e.g. CELLXGENE_SERVER_PORT.
const EnvPrefix = "CELLXGENE"

// FileEnv names the optional TOML config file.
const FileEnv = EnvPrefix + "_CONFIG"

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig `toml:"server"`
	Window  WindowConfig `toml:"window"`
	Engine  EngineConfig `toml:"engine"`
	Workers WorkerConfig `toml:"workers"`
	Logging LogConfig    `toml:"logging" envconfig:"LOG"`
}

// ServerConfig holds the local backend address.
type ServerConfig struct {
	Host string `toml:"host" envconfig:"HOST"`
	Port int    `toml:"port" envconfig:"PORT"`
}

type WindowConfig struct {
	Title  string `toml:"title" envconfig:"TITLE"`
	Width  int    `toml:"width" envconfig:"WIDTH"`
	Height int    `toml:"height" envconfig:"HEIGHT"`
}

// EngineConfig holds embedded browser engine settings. ExternalPump forces the
// external message pump; when unset the engine's own capability decides.
type EngineConfig struct {
	PumpInterval time.Duration `toml:"pump_interval" envconfig:"PUMP_INTERVAL"`
	ExternalPump *bool         `toml:"external_pump" envconfig:"EXTERNAL_PUMP"`
	Debug        bool          `toml:"debug" envconfig:"DEBUG"`
	InitialURL   string        `toml:"initial_url" envconfig:"INITIAL_URL"`
}

// WorkerConfig sizes the worker pool; zero means one worker per CPU (minimum two).
type WorkerConfig struct {
	Size int `toml:"size" envconfig:"SIZE"`
}

type LogConfig struct {
	Level string `toml:"level" envconfig:"LEVEL"`
	JSON  bool   `toml:"json" envconfig:"JSON"`
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8000,
		},
		Window: WindowConfig{
			Title:  "cellxgene",
			Width:  1024,
			Height: 768,
		},
		Engine: EngineConfig{
			PumpInterval: 10 * time.Millisecond,
			InitialURL:   "about:blank",
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}

// Load layers the defaults, the optional TOML file named by CELLXGENE_CONFIG and
// the CELLXGENE_* environment, in that order.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	meta, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config file %s: unknown keys %v", path, undecoded)
	}
	return nil
}

// Validate rejects values the application cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Host == "" {
		errs = append(errs, errors.New("server host is empty"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		errs = append(errs, fmt.Errorf("window size %dx%d is invalid", c.Window.Width, c.Window.Height))
	}
	if c.Engine.PumpInterval <= 0 {
		errs = append(errs, fmt.Errorf("pump interval %s must be positive", c.Engine.PumpInterval))
	}
	if c.Workers.Size < 0 {
		errs = append(errs, fmt.Errorf("worker pool size %d is negative", c.Workers.Size))
	}
	if c.Workers.Size == 1 {
		errs = append(errs, errors.New("worker pool size 1 cannot run the server and a load together"))
	}

	return errors.Join(errs...)
}

// ServerURL is the address the browser navigates to once a dataset is attached.
func (c *Config) ServerURL() string {
	return fmt.Sprintf("http://%s:%d/", c.Server.Host, c.Server.Port)
}
