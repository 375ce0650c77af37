package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateConversion(); err != nil {
		return err
	}
	if err := c.validateMonitor(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateConversion() error {
	if c.Conversion.Workers < 0 {
		return errors.New("conversion.workers must be >= 0")
	}
	if c.Conversion.TaskTimeoutSeconds <= 0 {
		return errors.New("conversion.task_timeout_seconds must be positive")
	}
	if c.Conversion.GCEvery < 0 {
		return errors.New("conversion.gc_every must be >= 0")
	}
	if c.Conversion.EncodeRetries < 0 {
		return errors.New("conversion.encode_retries must be >= 0")
	}
	switch c.Conversion.SuccessPolicy {
	case PolicyAny, PolicyMajority, PolicyAll:
	default:
		return fmt.Errorf("conversion.success_policy: unsupported value %q", c.Conversion.SuccessPolicy)
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if c.Monitor.IntervalSeconds <= 0 {
		return errors.New("monitor.interval_seconds must be positive")
	}
	for name, v := range map[string]float64{
		"monitor.cpu_critical":    c.Monitor.CPUCritical,
		"monitor.memory_critical": c.Monitor.MemoryCritical,
		"monitor.disk_critical":   c.Monitor.DiskCritical,
	} {
		if v <= 0 || v > 100 {
			return fmt.Errorf("%s must be within (0, 100], got %v", name, v)
		}
	}
	if c.Monitor.WarningMargin < 0 {
		return errors.New("monitor.warning_margin must be >= 0")
	}
	if c.Monitor.HistoryWindow < 0 {
		return errors.New("monitor.history_window must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
