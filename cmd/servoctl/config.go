package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/neka-nat/feetech-servo-go/feetech"
)

// Config is the yaml configuration for servoctl.
type Config struct {
	Port      string `yaml:"port"`
	BaudRate  int    `yaml:"baud_rate"`
	Protocol  string `yaml:"protocol"` // "sts" (default) or "scs"
	TimeoutMs int    `yaml:"timeout_ms"`
	Model     string `yaml:"model"`
	LogLevel  string `yaml:"log_level"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		BaudRate:  1000000,
		Protocol:  "sts",
		TimeoutMs: 1000,
		Model:     "sts3215",
		LogLevel:  "info",
	}
}

// LoadConfig reads and validates a yaml config file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config load failed: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config parse failed: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate checks the configuration for values the bus would reject.
func (c Config) Validate() error {
	switch c.Protocol {
	case "sts", "scs":
	default:
		return fmt.Errorf("unknown protocol %q (want sts or scs)", c.Protocol)
	}

	if _, ok := feetech.ModelByName(c.Model); !ok {
		return fmt.Errorf("unknown model %q", c.Model)
	}

	if c.TimeoutMs <= 0 {
		return fmt.Errorf("timeout_ms must be positive, got %d", c.TimeoutMs)
	}

	return nil
}

// ProtocolVersion maps the protocol name to the bus constant.
func (c Config) ProtocolVersion() int {
	if c.Protocol == "scs" {
		return feetech.ProtocolSCS
	}
	return feetech.ProtocolSTS
}

// Timeout returns the transaction timeout as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}
