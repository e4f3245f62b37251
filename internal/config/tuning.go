// Package config loads the driver's tuning configuration: idle-gate timing,
// heartbeat cadence, command-ack deadlines, discovery windows, capture
// bounds and duration-compensation factors. The JSON schema uses optional
// pointer fields so a partial file only overrides what it names, matching
// the pattern in the teacher repository's tuning loader.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the canonical tuning defaults file, loaded when no
// override path is given.
const DefaultConfigPath = "config/driver.defaults.json"

// DriverConfig is the root configuration for all driver tunables. Fields
// omitted from a loaded JSON file keep their documented defaults via the
// Get* accessors.
type DriverConfig struct {
	// Idle gate / command path.
	IdleReleaseWindow *string `json:"idle_release_window,omitempty"` // duration string, e.g. "100ms"
	CommandAckTimeout *string `json:"command_ack_timeout,omitempty"` // duration string, e.g. "100ms"
	HeartbeatInterval *string `json:"heartbeat_interval,omitempty"`  // duration string, e.g. "1s"
	SocketSettleDelay *string `json:"socket_settle_delay,omitempty"` // duration string, e.g. "150ms"

	// Discovery.
	DiscoveryScanWindow *string `json:"discovery_scan_window,omitempty"` // duration string, e.g. "1s"

	// Capture bounds (spec §4.5 start contract).
	MaxWaitSeconds     *int64 `json:"max_wait_seconds,omitempty"`
	MaxDurationSeconds *int64 `json:"max_duration_seconds,omitempty"`
	UDPReceiveBuffer   *int   `json:"udp_receive_buffer_bytes,omitempty"`

	// Duration-compensation k-factors, keyed implicitly by firmware type
	// (single/dual/triple) via the Get* accessors below (spec §4.5).
	DurationCompensationSingle *float64 `json:"duration_compensation_single,omitempty"`
	DurationCompensationDual   *float64 `json:"duration_compensation_dual,omitempty"`
	DurationCompensationTriple *float64 `json:"duration_compensation_triple,omitempty"`

	// Inventory store.
	InventoryDBPath *string `json:"inventory_db_path,omitempty"`
}

// EmptyDriverConfig returns a DriverConfig with every field nil. Use
// LoadDriverConfig to load actual values from a file.
func EmptyDriverConfig() *DriverConfig {
	return &DriverConfig{}
}

// LoadDriverConfig loads a DriverConfig from a JSON file. The file must
// have a .json extension and be under 1 MiB; fields the file omits retain
// their documented defaults.
func LoadDriverConfig(path string) (*DriverConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyDriverConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that any set duration-string fields parse and that
// capture bounds are non-negative and within the protocol's hard limits
// (spec §4.5: wait ≤ 900s, duration < 126,230,400s ≈ 4 years).
func (c *DriverConfig) Validate() error {
	for name, s := range map[string]*string{
		"idle_release_window":    c.IdleReleaseWindow,
		"command_ack_timeout":    c.CommandAckTimeout,
		"heartbeat_interval":     c.HeartbeatInterval,
		"socket_settle_delay":    c.SocketSettleDelay,
		"discovery_scan_window":  c.DiscoveryScanWindow,
	} {
		if s != nil && *s != "" {
			if _, err := time.ParseDuration(*s); err != nil {
				return fmt.Errorf("invalid %s %q: %w", name, *s, err)
			}
		}
	}

	if c.MaxWaitSeconds != nil && (*c.MaxWaitSeconds < 0 || *c.MaxWaitSeconds > 900) {
		return fmt.Errorf("max_wait_seconds must be in [0,900], got %d", *c.MaxWaitSeconds)
	}
	if c.MaxDurationSeconds != nil && (*c.MaxDurationSeconds < 0 || *c.MaxDurationSeconds >= 126230400) {
		return fmt.Errorf("max_duration_seconds must be in [0,126230400), got %d", *c.MaxDurationSeconds)
	}
	if c.UDPReceiveBuffer != nil && *c.UDPReceiveBuffer < 0 {
		return fmt.Errorf("udp_receive_buffer_bytes must be non-negative, got %d", *c.UDPReceiveBuffer)
	}

	return nil
}

func (c *DriverConfig) getDuration(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

// GetIdleReleaseWindow returns the window the heartbeat releases the
// command socket for between beats (spec §5). Default 100ms.
func (c *DriverConfig) GetIdleReleaseWindow() time.Duration {
	return c.getDuration(c.IdleReleaseWindow, 100*time.Millisecond)
}

// GetCommandAckTimeout returns the deadline a commander waits for an ACK.
// Default 100ms (spec §4.3/§4.4).
func (c *DriverConfig) GetCommandAckTimeout() time.Duration {
	return c.getDuration(c.CommandAckTimeout, 100*time.Millisecond)
}

// GetHeartbeatInterval returns the heartbeat task's pacing interval.
// Default 1s (spec §4.3, "1 Hz").
func (c *DriverConfig) GetHeartbeatInterval() time.Duration {
	return c.getDuration(c.HeartbeatInterval, 1*time.Second)
}

// GetSocketSettleDelay returns the settle delay after binding or
// disconnecting sockets. Default 150ms (spec §5: "100-200ms settle").
func (c *DriverConfig) GetSocketSettleDelay() time.Duration {
	return c.getDuration(c.SocketSettleDelay, 150*time.Millisecond)
}

// GetDiscoveryScanWindow returns the default discovery collection window.
// Default 1s (spec §4.2).
func (c *DriverConfig) GetDiscoveryScanWindow() time.Duration {
	return c.getDuration(c.DiscoveryScanWindow, 1*time.Second)
}

// GetMaxWaitSeconds returns the capture start contract's upper bound on
// wait_secs. Default 900 (spec §4.5).
func (c *DriverConfig) GetMaxWaitSeconds() int64 {
	if c.MaxWaitSeconds == nil {
		return 900
	}
	return *c.MaxWaitSeconds
}

// GetMaxDurationSeconds returns the capture start contract's internal
// bound for an "indefinite" (duration_secs==0) run. Default ~4 years
// (spec §4.5: 126,230,400 seconds).
func (c *DriverConfig) GetMaxDurationSeconds() int64 {
	if c.MaxDurationSeconds == nil {
		return 126230400
	}
	return *c.MaxDurationSeconds
}

// GetUDPReceiveBuffer returns the OS receive-buffer size requested for
// data/IMU sockets. Default 8MiB, generous enough for hundreds of
// thousands of points/sec without kernel-side drops.
func (c *DriverConfig) GetUDPReceiveBuffer() int {
	if c.UDPReceiveBuffer == nil {
		return 8 * 1024 * 1024
	}
	return *c.UDPReceiveBuffer
}

// GetDurationCompensation returns the k-factor for the given firmware
// type's duration compensation (spec §4.5): single 0.001, dual 0.0005,
// triple 0.00055.
func (c *DriverConfig) GetDurationCompensation(firmwareType int) float64 {
	switch firmwareType {
	case 1:
		if c.DurationCompensationSingle != nil {
			return *c.DurationCompensationSingle
		}
		return 0.001
	case 2:
		if c.DurationCompensationDual != nil {
			return *c.DurationCompensationDual
		}
		return 0.0005
	case 3:
		if c.DurationCompensationTriple != nil {
			return *c.DurationCompensationTriple
		}
		return 0.00055
	default:
		return 0.001
	}
}

// GetInventoryDBPath returns the sqlite database path for internal/inventory.
// Default "lidar_inventory.db" in the working directory.
func (c *DriverConfig) GetInventoryDBPath() string {
	if c.InventoryDBPath == nil {
		return "lidar_inventory.db"
	}
	return *c.InventoryDBPath
}
