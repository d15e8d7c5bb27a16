// Package config reads the plugin settings Munin passes through the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/danpilch/cpu1sec/pkg/cache"
)

// Name is the plugin name, used for the graph and the state files.
const Name = "cpu1sec"

// DefaultEnvFile is loaded, if present, before reading the environment.
const DefaultEnvFile = "/etc/munin/cpu1sec.env"

// Config holds the plugin settings.
type Config struct {
	Name        string
	StateDir    string
	CPUDetail   bool
	DirtyConfig bool
	Interval    time.Duration
	StaleAfter  time.Duration
	SpawnWait   time.Duration
	LogLevel    string
	LogFormat   string

	// EnvFileErr is set when the env file exists but could not be loaded.
	// The settings then come from the environment alone.
	EnvFileErr error
}

// Load reads the optional env file and then the environment. Variables
// already set in the environment win over the file. A broken env file never
// fails the load, so fetch can still answer munin.
func Load() *Config {
	envFile := os.Getenv("CPU1SEC_ENV_FILE")
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	var envErr error
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		envErr = fmt.Errorf("cannot load env file %s: %w", envFile, err)
	}
	cfg := FromEnv()
	cfg.EnvFileErr = envErr
	return cfg
}

// FromEnv builds a Config from the current environment only.
func FromEnv() *Config {
	return &Config{
		Name:        Name,
		StateDir:    cache.DefaultDir(),
		CPUDetail:   os.Getenv("cpudetail") == "1",
		DirtyConfig: os.Getenv("MUNIN_CAP_DIRTYCONFIG") == "1",
		Interval:    duration("CPU1SEC_INTERVAL", time.Second),
		StaleAfter:  duration("CPU1SEC_STALE_AFTER", 10*time.Second),
		SpawnWait:   duration("CPU1SEC_WAIT", 2*time.Second),
		LogLevel:    value("CPU1SEC_LOG_LEVEL", "info"),
		LogFormat:   value("CPU1SEC_LOG_FORMAT", "text"),
	}
}

// CachePath returns the cache file location.
func (c *Config) CachePath() string {
	return filepath.Join(c.StateDir, c.Name+".json")
}

// PidPath returns the pid file location.
func (c *Config) PidPath() string {
	return filepath.Join(c.StateDir, c.Name+".pid")
}

// LogPath returns where the detached sampler writes its log.
func (c *Config) LogPath() string {
	return filepath.Join(c.StateDir, c.Name+".log")
}

func value(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
