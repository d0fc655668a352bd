// Package config loads the sink's JSON configuration file and builds the
// process logger.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds the sink's runtime configuration. Unknown keys in the
// JSON file are ignored.
type Config struct {
	// MaxParallelTasks is the decoder worker count.
	MaxParallelTasks int `json:"MaxParallelTasks"`
	// TimeoutMS is the per-decode wall-clock budget in milliseconds.
	TimeoutMS int `json:"Timeout"`
	// ListenHost is the default bind address if --host is absent.
	ListenHost string `json:"listen_host"`
	// CameraNodeIP is the default ACK target if --client is absent.
	CameraNodeIP string `json:"camera_node_ip"`

	// SlotCount is the ring buffer capacity. Not part of the JSON
	// schema; a code-level default.
	SlotCount int `json:"-"`
	// QueueCapacity is the decoder job queue's fixed capacity.
	QueueCapacity int `json:"-"`
	// StatsIntervalSec is how often the health observer emits a snapshot.
	StatsIntervalSec float64 `json:"-"`
}

// DefaultConfig returns a Config populated with the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxParallelTasks: 8,
		TimeoutMS:        10000,
		ListenHost:       "0.0.0.0",
		CameraNodeIP:     "192.168.0.176",
		SlotCount:        5000,
		QueueCapacity:    200,
		StatsIntervalSec: 30,
	}
}

// Load reads the JSON config file at path, falling back to defaults
// for any key that is missing. On a read or parse error the returned
// Config still carries the defaults, so the caller can warn and
// proceed.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	var raw struct {
		MaxParallelTasks *int    `json:"MaxParallelTasks"`
		Timeout          *int    `json:"Timeout"`
		ListenHost       *string `json:"listen_host"`
		CameraNodeIP     *string `json:"camera_node_ip"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if raw.MaxParallelTasks != nil && *raw.MaxParallelTasks > 0 {
		cfg.MaxParallelTasks = *raw.MaxParallelTasks
	}
	if raw.Timeout != nil && *raw.Timeout > 0 {
		cfg.TimeoutMS = *raw.Timeout
	}
	if raw.ListenHost != nil && *raw.ListenHost != "" {
		cfg.ListenHost = *raw.ListenHost
	}
	if raw.CameraNodeIP != nil && *raw.CameraNodeIP != "" {
		cfg.CameraNodeIP = *raw.CameraNodeIP
	}

	return cfg, nil
}
