// Package config loads the tally.yaml configuration file with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the default configuration file name.
const FileName = "tally.yaml"

// Config is the top-level tally.yaml configuration.
type Config struct {
	DataDir string       `yaml:"data_dir"`
	Server  ServerConfig `yaml:"server"`
	Log     LogConfig    `yaml:"log"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Load reads a tally.yaml file, then applies .env and environment variable
// overrides (TALLY_DATA_DIR, TALLY_PORT, TALLY_LOG_LEVEL).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Missing .env is fine; environment variables still apply.
	_ = godotenv.Load()
	applyEnv(&cfg)

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TALLY_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("TALLY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TALLY_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new project.
func Default() *Config {
	return &Config{
		DataDir: "data",
		Server: ServerConfig{
			Port: 8080,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// DatabasePath is the sqlite database location under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "tally.db")
}

// ImportDir is where the import command looks for statement CSVs.
func (c *Config) ImportDir() string {
	return filepath.Join(c.DataDir, "import")
}

// ProcessedDir is where ingested statement CSVs are moved.
func (c *Config) ProcessedDir() string {
	return filepath.Join(c.DataDir, "import", "processed")
}
