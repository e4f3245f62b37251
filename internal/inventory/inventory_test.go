package inventory

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlivox/lidarhost/internal/capture"
	"github.com/openlivox/lidarhost/internal/discovery"
	"github.com/openlivox/lidarhost/internal/timeutil"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inventory.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenAppliesMigrationsToLatestVersion(t *testing.T) {
	db := openTestDB(t)
	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)
}

func TestRecordAnnouncementAndSessionLifecycle(t *testing.T) {
	db := openTestDB(t)
	clock := timeutil.NewMockClock(time.Unix(1000, 0))

	ann := discovery.Announcement{SensorIP: "192.168.1.100", Serial: "12345678901234", IPRangeCode: 1, DeviceType: 3}
	require.NoError(t, db.RecordAnnouncement(clock, ann))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM announcements WHERE serial = ?`, ann.Serial).Scan(&count))
	assert.Equal(t, 1, count)

	sessionID, err := db.StartSession(clock, ann)
	require.NoError(t, err)
	assert.NotZero(t, sessionID)

	clock.Advance(5 * time.Second)
	require.NoError(t, db.EndSession(clock, sessionID))

	var disconnectedAt float64
	require.NoError(t, db.QueryRow(`SELECT disconnected_at FROM sessions WHERE id = ?`, sessionID).Scan(&disconnectedAt))
	assert.InDelta(t, 1005.0, disconnectedAt, 1e-9)
}

func TestCaptureRunRoundTripsThroughRecentCaptureRuns(t *testing.T) {
	db := openTestDB(t)
	clock := timeutil.NewMockClock(time.Unix(2000, 0))

	ann := discovery.Announcement{SensorIP: "192.168.1.101", Serial: "98765432101234", IPRangeCode: 2, DeviceType: 3}
	sessionID, err := db.StartSession(clock, ann)
	require.NoError(t, err)

	runID := uuid.New()
	require.NoError(t, db.StartCaptureRun(clock, runID, sessionID, "M", "/data/run.bin", capture.ModeBinary))

	clock.Advance(10 * time.Second)
	require.NoError(t, db.EndCaptureRun(clock, runID, 0, capture.Stats{Good: 500, Null: 3, Packets: 6}))

	runs, err := db.RecentCaptureRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID.String(), runs[0].RunID)
	assert.Equal(t, "M", runs[0].Label)
	assert.Equal(t, 500, runs[0].GoodPoints)
	require.NotNil(t, runs[0].DataType)
	assert.Equal(t, 0, *runs[0].DataType)
	require.NotNil(t, runs[0].EndedAt)
	assert.InDelta(t, 2010.0, *runs[0].EndedAt, 1e-9)
}
