package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyDriverConfigDefaults(t *testing.T) {
	cfg := EmptyDriverConfig()
	assert.Equal(t, 100*time.Millisecond, cfg.GetIdleReleaseWindow())
	assert.Equal(t, 100*time.Millisecond, cfg.GetCommandAckTimeout())
	assert.Equal(t, 1*time.Second, cfg.GetHeartbeatInterval())
	assert.Equal(t, 150*time.Millisecond, cfg.GetSocketSettleDelay())
	assert.Equal(t, 1*time.Second, cfg.GetDiscoveryScanWindow())
	assert.Equal(t, int64(900), cfg.GetMaxWaitSeconds())
	assert.Equal(t, int64(126230400), cfg.GetMaxDurationSeconds())
	assert.Equal(t, 8*1024*1024, cfg.GetUDPReceiveBuffer())
	assert.Equal(t, 0.001, cfg.GetDurationCompensation(1))
	assert.Equal(t, 0.0005, cfg.GetDurationCompensation(2))
	assert.Equal(t, 0.00055, cfg.GetDurationCompensation(3))
	assert.Equal(t, "lidar_inventory.db", cfg.GetInventoryDBPath())
}

func TestLoadDriverConfigPartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "driver.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"heartbeat_interval": "2s",
		"max_wait_seconds": 60,
		"duration_compensation_dual": 0.001
	}`), 0o644))

	cfg, err := LoadDriverConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.GetHeartbeatInterval())
	assert.Equal(t, int64(60), cfg.GetMaxWaitSeconds())
	assert.Equal(t, 0.001, cfg.GetDurationCompensation(2))

	// Fields not present in the file keep their documented defaults.
	assert.Equal(t, 100*time.Millisecond, cfg.GetCommandAckTimeout())
	assert.Equal(t, int64(126230400), cfg.GetMaxDurationSeconds())
}

func TestLoadDriverConfigRejectsNonJSONExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "driver.txt")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))

	_, err := LoadDriverConfig(path)
	require.Error(t, err)
}

func TestLoadDriverConfigRejectsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "driver.json")
	big := make([]byte, 2*1024*1024)
	for i := range big {
		big[i] = ' '
	}
	require.NoError(t, os.WriteFile(path, big, 0o644))

	_, err := LoadDriverConfig(path)
	require.Error(t, err)
}

func TestValidateRejectsOutOfBoundCaptureLimits(t *testing.T) {
	tooLongWait := int64(901)
	cfg := &DriverConfig{MaxWaitSeconds: &tooLongWait}
	assert.Error(t, cfg.Validate())

	tooLongDuration := int64(126230400)
	cfg2 := &DriverConfig{MaxDurationSeconds: &tooLongDuration}
	assert.Error(t, cfg2.Validate())
}

func TestValidateRejectsBadDurationString(t *testing.T) {
	bad := "not-a-duration"
	cfg := &DriverConfig{HeartbeatInterval: &bad}
	assert.Error(t, cfg.Validate())
}
