package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateCollaborators(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateMonitor(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Workers < 1 {
		return errors.New("pipeline.workers must be at least 1")
	}
	if c.Pipeline.RetryLimit < 0 {
		return errors.New("pipeline.retry_limit must not be negative")
	}
	if len(c.Pipeline.ImageExtensions) == 0 && len(c.Pipeline.VideoExtensions) == 0 {
		return errors.New("pipeline must recognize at least one media extension")
	}
	return nil
}

func (c *Config) validateCollaborators() error {
	if c.Extract.TimeoutSeconds <= 0 {
		return errors.New("extract.timeout_seconds must be positive")
	}
	if c.Convert.TimeoutSeconds <= 0 {
		return errors.New("convert.timeout_seconds must be positive")
	}
	if c.Describe.TimeoutSeconds <= 0 {
		return errors.New("describe.timeout_seconds must be positive")
	}
	switch c.Convert.Format {
	case "png", "jpeg", "jpg", "webp":
	default:
		return fmt.Errorf("convert.format: unsupported canonical format %q", c.Convert.Format)
	}
	if c.Describe.Provider == "" {
		return errors.New("describe.provider must be set")
	}
	if c.Describe.Model == "" {
		return errors.New("describe.model must be set")
	}
	return nil
}

func (c *Config) validateStore() error {
	if c.Store.LockGraceSeconds < 0 {
		return errors.New("store.lock_grace_seconds must not be negative")
	}
	if c.Cache.Enabled && c.Cache.Path == "" {
		return errors.New("cache.path must be set when the cache is enabled")
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if c.Monitor.PollIntervalSeconds <= 0 {
		return errors.New("monitor.poll_interval_seconds must be positive")
	}
	if c.Monitor.RecentResults < 0 {
		return errors.New("monitor.recent_results must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json", "":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
