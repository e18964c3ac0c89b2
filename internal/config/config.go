package config

import (
	"fmt"
	"os"

	"github.com/EchoPBX/gbstats/internal/emuwatch"
	"gopkg.in/yaml.v3"
)

const (
	ModeDemo   = "demo"
	ModeBridge = "bridge"
)

type Config struct {
	Emulator struct {
		Mode         string             `yaml:"mode"` // demo | bridge
		Headless     bool               `yaml:"headless"`
		FrameRate    int                `yaml:"frame_rate"`
		PollInterval int                `yaml:"poll_interval"`
		Addresses    emuwatch.Addresses `yaml:"addresses"`
	} `yaml:"emulator"`
	Demo struct {
		Seed            uint64 `yaml:"seed"`
		DurationSeconds int    `yaml:"duration_seconds"`
	} `yaml:"demo"`
	Bridge struct {
		URL      string `yaml:"url"` // ws://127.0.0.1:8765/frames
		Token    string `yaml:"token"`
		Insecure bool   `yaml:"insecure"`
	} `yaml:"bridge"`
	Bus struct {
		HistoryLimit int `yaml:"history_limit"`
	} `yaml:"bus"`
	Health struct {
		MaxHP int `yaml:"max_hp"`
	} `yaml:"health"`
	HTTP struct {
		Enabled bool   `yaml:"enabled"`
		Bind    string `yaml:"bind"`
		Port    int    `yaml:"port"`
		TLS     struct {
			Enabled bool   `yaml:"enabled"`
			Cert    string `yaml:"cert"`
			Key     string `yaml:"key"`
		} `yaml:"tls"`
	} `yaml:"http"`
	Auth struct {
		JWTPublicKeys []string `yaml:"jwt_public_keys"` // PEM certificates
		Issuer        string   `yaml:"issuer"`
		Audience      string   `yaml:"audience"`
	} `yaml:"auth"`
	Logging struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Plugins struct {
		Manifest string `yaml:"manifest"`
	} `yaml:"plugins"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var c Config
	c.Emulator.Mode = ModeDemo
	c.Emulator.Addresses = emuwatch.DefaultAddresses()
	c.Demo.Seed = 1
	applyDefaults(&c)
	return &c
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyDefaults(c)
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func applyDefaults(c *Config) {
	if c.Emulator.Mode == "" {
		c.Emulator.Mode = ModeDemo
	}
	if c.Emulator.FrameRate == 0 {
		c.Emulator.FrameRate = 60
	}
	if c.Emulator.PollInterval == 0 {
		c.Emulator.PollInterval = emuwatch.DefaultPollInterval
	}
	if c.Health.MaxHP == 0 {
		c.Health.MaxHP = 100
	}
	if c.HTTP.Bind == "" {
		c.HTTP.Bind = "127.0.0.1"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.File == "" {
		c.Logging.File = "gameplay.log"
	}
}

func (c *Config) validate() error {
	switch c.Emulator.Mode {
	case ModeDemo:
	case ModeBridge:
		if c.Bridge.URL == "" {
			return fmt.Errorf("bridge mode needs bridge.url")
		}
	default:
		return fmt.Errorf("unknown emulator mode %q", c.Emulator.Mode)
	}
	if c.Emulator.PollInterval < 0 || c.Emulator.FrameRate < 0 {
		return fmt.Errorf("poll_interval and frame_rate must be positive")
	}
	if c.Bus.HistoryLimit < 0 {
		return fmt.Errorf("bus.history_limit must not be negative")
	}
	return nil
}
