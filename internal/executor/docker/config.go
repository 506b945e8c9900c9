package docker

import (
	"time"
)

// Config holds the configuration for the Docker Engine runner.
type Config struct {
	// OutputLimit caps each captured stream, in bytes. Zero means unlimited.
	OutputLimit int
	// PullConcurrency bounds parallel image pulls during warm-up.
	PullConcurrency int
	// PullTimeout bounds a single image pull.
	PullTimeout time.Duration
	// CleanupTimeout bounds the kill and remove calls made after a run.
	CleanupTimeout time.Duration
}

// DefaultConfig: 64 KiB per stream, two pulls at a time.
func DefaultConfig() Config {
	return Config{
		OutputLimit:     64 * 1024,
		PullConcurrency: 2,
		PullTimeout:     5 * time.Minute,
		CleanupTimeout:  10 * time.Second,
	}
}

func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.OutputLimit < 0 {
		c.OutputLimit = 0
	}
	if c.PullConcurrency <= 0 {
		c.PullConcurrency = d.PullConcurrency
	}
	if c.PullTimeout <= 0 {
		c.PullTimeout = d.PullTimeout
	}
	if c.CleanupTimeout <= 0 {
		c.CleanupTimeout = d.CleanupTimeout
	}
	return c
}
