// Package config loads the server settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// ErrInvalid marks a configuration that loaded but cannot be used.
var ErrInvalid = errors.New("invalid config")

// Board is the grid size of new games.
type Board struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Bot seats a random bot on black. Seed 0 seeds from the clock.
type Bot struct {
	Enabled bool  `yaml:"enabled"`
	Seed    int64 `yaml:"seed"`
}

// Archive is where finished matches are stored. An empty path disables it.
type Archive struct {
	Path string `yaml:"path"`
}

// Log selects the zap development logger.
type Log struct {
	Development bool `yaml:"development"`
}

// Config is the full server configuration.
type Config struct {
	Addr         string  `yaml:"addr"`
	FrontendHost string  `yaml:"frontendHost"`
	Board        Board   `yaml:"board"`
	Stock        int     `yaml:"stock"`
	Bot          Bot     `yaml:"bot"`
	Archive      Archive `yaml:"archive"`
	Log          Log     `yaml:"log"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Addr:  ":8080",
		Board: Board{Width: 6, Height: 6},
		Stock: 16,
	}
}

// Load reads path on top of Default and validates the result.
// An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values the game and server depend on.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr is empty", ErrInvalid)
	}
	if c.Board.Width < 2 || c.Board.Height < 2 {
		return fmt.Errorf("%w: board must be at least 2x2, got %dx%d", ErrInvalid, c.Board.Width, c.Board.Height)
	}
	if c.Stock < 1 {
		return fmt.Errorf("%w: stock must be positive, got %d", ErrInvalid, c.Stock)
	}
	return nil
}
