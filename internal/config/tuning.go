// Package config loads the engine tuning knobs: debounce and poll timing,
// the history cap, and the latest-point glow window. Fields omitted from the
// JSON file keep their defaults, so partial configs are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TuningConfig represents the root configuration for engine tuning
// parameters. All fields are optional; the Get* methods supply defaults.
type TuningConfig struct {
	// Write-behind params
	WriteDebounce *string `json:"write_debounce,omitempty"` // duration string like "800ms"

	// Poll intervals. The engine uses the active interval while a stream is
	// progressing and falls back to the idle interval otherwise.
	PrefPollActive   *string `json:"pref_poll_active,omitempty"`   // e.g. "2s"
	PrefPollIdle     *string `json:"pref_poll_idle,omitempty"`     // e.g. "15s"
	StatusPollActive *string `json:"status_poll_active,omitempty"` // e.g. "1s"
	StatusPollIdle   *string `json:"status_poll_idle,omitempty"`   // e.g. "10s"

	// Derived-data params
	HistoryCap   *int `json:"history_cap,omitempty"`
	LatestWindow *int `json:"latest_window,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	durations := map[string]*string{
		"write_debounce":     c.WriteDebounce,
		"pref_poll_active":   c.PrefPollActive,
		"pref_poll_idle":     c.PrefPollIdle,
		"status_poll_active": c.StatusPollActive,
		"status_poll_idle":   c.StatusPollIdle,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.HistoryCap != nil && *c.HistoryCap < 1 {
		return fmt.Errorf("history_cap must be at least 1, got %d", *c.HistoryCap)
	}
	if c.LatestWindow != nil && *c.LatestWindow < 0 {
		return fmt.Errorf("latest_window must be non-negative, got %d", *c.LatestWindow)
	}

	return nil
}

func (c *TuningConfig) duration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetWriteDebounce returns the write-behind debounce interval or the default.
func (c *TuningConfig) GetWriteDebounce() time.Duration {
	return c.duration(c.WriteDebounce, 800*time.Millisecond)
}

// GetPrefPollActive returns the preference poll interval while streaming.
func (c *TuningConfig) GetPrefPollActive() time.Duration {
	return c.duration(c.PrefPollActive, 2*time.Second)
}

// GetPrefPollIdle returns the preference poll interval while idle.
func (c *TuningConfig) GetPrefPollIdle() time.Duration {
	return c.duration(c.PrefPollIdle, 15*time.Second)
}

// GetStatusPollActive returns the streaming-status poll interval while streaming.
func (c *TuningConfig) GetStatusPollActive() time.Duration {
	return c.duration(c.StatusPollActive, time.Second)
}

// GetStatusPollIdle returns the streaming-status poll interval while idle.
func (c *TuningConfig) GetStatusPollIdle() time.Duration {
	return c.duration(c.StatusPollIdle, 10*time.Second)
}

// GetHistoryCap returns the history window cap or the default.
func (c *TuningConfig) GetHistoryCap() int {
	if c.HistoryCap == nil {
		return 10000
	}
	return *c.HistoryCap
}

// GetLatestWindow returns the latest-point glow window or the default.
func (c *TuningConfig) GetLatestWindow() int {
	if c.LatestWindow == nil {
		return 10
	}
	return *c.LatestWindow
}
