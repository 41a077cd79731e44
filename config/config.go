// Package config loads the TOML run configuration used to resolve the
// simulator's address-space size, stack size, log verbosity, and checkpoint
// behavior before CLI flags are layered on top.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"rv32i/mem"
)

// Config holds the resolved run parameters for a simulator invocation.
type Config struct {
	DefaultAddrSpace uint32 `toml:"default_addr_space"`
	DefaultStackSize uint32 `toml:"default_stack_size"`
	LogLevel         int    `toml:"log_level"`
	Checkpoints      bool   `toml:"checkpoints"`
}

// DefaultConfig returns the documented defaults: a 64 KiB address space, an
// 8 KiB stack, silent logging, and checkpointing disabled.
func DefaultConfig() *Config {
	return &Config{
		DefaultAddrSpace: mem.DefaultAddrSpace,
		DefaultStackSize: mem.DefaultStackSize,
		LogLevel:         0,
		Checkpoints:      false,
	}
}

// Load reads and decodes a TOML file at path, starting from DefaultConfig
// and overwriting only the fields the file sets. A missing file is not an
// error; the defaults apply unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save writes cfg to path in TOML form, overwriting any existing file.
func (c *Config) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// ApplyLogLevel overrides the config's log level when override is >= 0,
// modeling the CLI's "--logs N overrides the config file" layering rule.
func (c *Config) ApplyLogLevel(override int) {
	if override >= 0 {
		c.LogLevel = override
	}
}
