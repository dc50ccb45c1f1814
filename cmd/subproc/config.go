package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// fileConfig is the optional TOML configuration for the subproc command.
// Flags override file values.
type fileConfig struct {
	// Dir is the default working directory for spawned commands.
	Dir string `toml:"dir"`
	// Env entries are merged over the inherited environment.
	Env map[string]string `toml:"env"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
	// Deny and Allow are glob patterns applied to the executable path
	// before a spawn. Deny wins over allow.
	Deny  []string `toml:"deny"`
	Allow []string `toml:"allow"`
}

func loadConfig(path string) (*fileConfig, error) {
	cfg := &fileConfig{LogLevel: "info"}
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
