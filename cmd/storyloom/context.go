package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"storyloom/internal/config"
	"storyloom/internal/logging"
)

const skipConfigAnnotation = "skipConfigLoad"

// memo computes a value and its error once.
type memo[T any] struct {
	once sync.Once
	val  T
	err  error
}

func (m *memo[T]) get(fn func() (T, error)) (T, error) {
	m.once.Do(func() { m.val, m.err = fn() })
	return m.val, m.err
}

// commandContext holds the persistent flags and the lazily built config and
// logger shared by every subcommand.
type commandContext struct {
	configFile string
	envFile    string

	cfg    memo[*config.Config]
	logger memo[*slog.Logger]
}

func (c *commandContext) configPath() string {
	return strings.TrimSpace(c.configFile)
}

// ensureConfig loads the env file, then the configuration, and creates the
// configured directories. Variables already in the environment beat the env
// file, and a missing env file is ignored.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	return c.cfg.get(func() (*config.Config, error) {
		if path := strings.TrimSpace(c.envFile); path != "" {
			if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load env file %s: %w", path, err)
			}
		}
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			return nil, err
		}
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, err
		}
		return cfg, nil
	})
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	return c.logger.get(func() (*slog.Logger, error) {
		cfg, err := c.ensureConfig()
		if err != nil {
			return nil, err
		}
		return logging.NewFromConfig(cfg)
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		if cmd.Annotations[skipConfigAnnotation] == "true" {
			return true
		}
	}
	return false
}
