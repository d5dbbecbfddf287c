// Package config loads the orchestrator service configuration from a config
// file and SWARM_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full service configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	LLM    LLMConfig    `mapstructure:"llm"`
	Engine EngineConfig `mapstructure:"engine"`
	Store  StoreConfig  `mapstructure:"store"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	EnableCORS     bool          `mapstructure:"enable_cors"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	Debug          bool          `mapstructure:"debug"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// LLMConfig configures the completion provider gateway.
type LLMConfig struct {
	BaseURL      string            `mapstructure:"base_url"`
	APIKey       string            `mapstructure:"api_key"`
	Timeout      int               `mapstructure:"timeout_seconds"`
	MaxRetries   int               `mapstructure:"max_retries"`
	SummaryModel string            `mapstructure:"summary_model"`
	Headers      map[string]string `mapstructure:"headers"`
}

// EngineConfig configures the execution engine.
type EngineConfig struct {
	BaseDirectory     string `mapstructure:"base_directory"`
	MaxParallelAgents int    `mapstructure:"max_parallel_agents"`
}

// StoreConfig selects the task state store backend.
type StoreConfig struct {
	Backend    string `mapstructure:"backend"` // "memory" or "sqlite"
	SQLitePath string `mapstructure:"sqlite_path"`
}

// Default returns the configuration used when no file or overrides exist.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:         "localhost",
			Port:         8080,
			EnableCORS:   true,
			Debug:        false,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		LLM: LLMConfig{
			BaseURL:      "https://openrouter.ai/api/v1",
			Timeout:      120,
			MaxRetries:   3,
			SummaryModel: "openai/gpt-4o",
		},
		Engine: EngineConfig{
			BaseDirectory:     mustWorkingDir(),
			MaxParallelAgents: 4,
		},
		Store: StoreConfig{
			Backend: "memory",
		},
	}
}

// Load reads configuration from the given file (optional), overlaying
// environment variables of the form SWARM_SECTION_KEY.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigName("swarm")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")
	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	v.SetEnvPrefix("SWARM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if configPath != "" {
			return Config{}, fmt.Errorf("read config %s: %w", configPath, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		// Missing default config file is fine; defaults and env apply.
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Engine.MaxParallelAgents <= 0 {
		return fmt.Errorf("max_parallel_agents must be positive, got %d", c.Engine.MaxParallelAgents)
	}
	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			return fmt.Errorf("sqlite backend requires sqlite_path")
		}
	default:
		return fmt.Errorf("unknown store backend: %q", c.Store.Backend)
	}
	if c.Engine.BaseDirectory == "" {
		return fmt.Errorf("engine base_directory is required")
	}
	if !filepath.IsAbs(c.Engine.BaseDirectory) {
		return fmt.Errorf("engine base_directory must be absolute: %s", c.Engine.BaseDirectory)
	}
	return nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.enable_cors", cfg.Server.EnableCORS)
	v.SetDefault("server.debug", cfg.Server.Debug)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("llm.base_url", cfg.LLM.BaseURL)
	v.SetDefault("llm.timeout_seconds", cfg.LLM.Timeout)
	v.SetDefault("llm.max_retries", cfg.LLM.MaxRetries)
	v.SetDefault("llm.summary_model", cfg.LLM.SummaryModel)
	v.SetDefault("engine.base_directory", cfg.Engine.BaseDirectory)
	v.SetDefault("engine.max_parallel_agents", cfg.Engine.MaxParallelAgents)
	v.SetDefault("store.backend", cfg.Store.Backend)
	v.SetDefault("store.sqlite_path", cfg.Store.SQLitePath)
}

func mustWorkingDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return string(filepath.Separator)
	}
	return dir
}
