package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

const (
	DefaultMaxWords    = 10000
	DefaultMaxTokenLen = 99
	DefaultSeed        = -1
	DefaultLogLevel    = "info"
	DefaultOverlong    = "truncate"
	DefaultServerPort  = 8080
	DefaultMcpHost     = "localhost"
	DefaultMcpPort     = 8081
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Generator GeneratorConfig `yaml:"generator"`
	Server    ServerConfig    `yaml:"server"`
	Mcp       McpConfig       `yaml:"mcp"`
}

type AppConfig struct {
	LogLevel string   `yaml:"log_level"`
	Inputs   []string `yaml:"inputs"` // Training corpus files, read in order; empty means stdin
}

type GeneratorConfig struct {
	MaxWords    int    `yaml:"max_words"`
	MaxTokenLen int    `yaml:"max_token_len"`
	Seed        *int64 `yaml:"seed"` // nil or -1 selects a random seed
	Overlong    string `yaml:"overlong"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type McpConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// GetAddress returns the host:port the MCP server listens on
func (m McpConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}

// GetSeed returns the configured seed, or DefaultSeed when none is set
func (g GeneratorConfig) GetSeed() int64 {
	if g.Seed == nil {
		return DefaultSeed
	}
	return *g.Seed
}

// Default returns a configuration with every field set to its default
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads a YAML configuration file. An empty path or a missing
// file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values that can not be defaulted
func (c *Config) Validate() error {
	if c.Generator.MaxWords < 0 {
		return fmt.Errorf("generator.max_words must be non-negative, got %d", c.Generator.MaxWords)
	}
	if c.Generator.MaxTokenLen < 0 {
		return fmt.Errorf("generator.max_token_len must be non-negative, got %d", c.Generator.MaxTokenLen)
	}
	switch c.Generator.Overlong {
	case "truncate", "split":
	default:
		return fmt.Errorf("generator.overlong must be truncate or split, got %q", c.Generator.Overlong)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = DefaultLogLevel
	}
	if c.Generator.MaxWords == 0 {
		c.Generator.MaxWords = DefaultMaxWords
	}
	if c.Generator.MaxTokenLen == 0 {
		c.Generator.MaxTokenLen = DefaultMaxTokenLen
	}
	if c.Generator.Overlong == "" {
		c.Generator.Overlong = DefaultOverlong
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Mcp.Host == "" {
		c.Mcp.Host = DefaultMcpHost
	}
	if c.Mcp.Port == 0 {
		c.Mcp.Port = DefaultMcpPort
	}
}
