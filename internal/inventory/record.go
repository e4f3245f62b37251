package inventory

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/openlivox/lidarhost/internal/capture"
	"github.com/openlivox/lidarhost/internal/discovery"
	"github.com/openlivox/lidarhost/internal/timeutil"
)

// RecordAnnouncement stores one discovery broadcast sighting.
func (db *DB) RecordAnnouncement(clock timeutil.Clock, ann discovery.Announcement) error {
	_, err := db.Exec(
		`INSERT INTO announcements (serial, ip_range_code, device_kind, sensor_ip, seen_at) VALUES (?, ?, ?, ?, ?)`,
		ann.Serial, ann.IPRangeCode, ann.Kind(), ann.SensorIP, float64(clock.Now().UnixNano())/1e9,
	)
	if err != nil {
		return fmt.Errorf("inventory: record announcement: %w", err)
	}
	return nil
}

// StartSession records a new session connection and returns its row ID, to
// be passed to EndSession and StartCaptureRun.
func (db *DB) StartSession(clock timeutil.Clock, ann discovery.Announcement) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO sessions (serial, ip_range_code, device_kind, sensor_ip, connected_at) VALUES (?, ?, ?, ?, ?)`,
		ann.Serial, ann.IPRangeCode, ann.Kind(), ann.SensorIP, float64(clock.Now().UnixNano())/1e9,
	)
	if err != nil {
		return 0, fmt.Errorf("inventory: start session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("inventory: start session: %w", err)
	}
	return id, nil
}

// EndSession marks a session as disconnected.
func (db *DB) EndSession(clock timeutil.Clock, sessionID int64) error {
	_, err := db.Exec(`UPDATE sessions SET disconnected_at = ? WHERE id = ?`, float64(clock.Now().UnixNano())/1e9, sessionID)
	if err != nil {
		return fmt.Errorf("inventory: end session %d: %w", sessionID, err)
	}
	return nil
}

// StartCaptureRun records a capture run's start, keyed by its uuid.UUID ID.
func (db *DB) StartCaptureRun(clock timeutil.Clock, runID uuid.UUID, sessionID int64, label, path string, mode capture.Mode) error {
	_, err := db.Exec(
		`INSERT INTO capture_runs (run_id, session_id, label, path, mode, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID.String(), sessionID, label, path, int(mode), float64(clock.Now().UnixNano())/1e9,
	)
	if err != nil {
		return fmt.Errorf("inventory: start capture run %s: %w", runID, err)
	}
	return nil
}

// EndCaptureRun records a capture run's final Stats and data type.
func (db *DB) EndCaptureRun(clock timeutil.Clock, runID uuid.UUID, dataType int, stats capture.Stats) error {
	_, err := db.Exec(
		`UPDATE capture_runs SET ended_at = ?, data_type = ?, good_points = ?, null_points = ?, imu_records = ?, packets = ? WHERE run_id = ?`,
		float64(clock.Now().UnixNano())/1e9, dataType, stats.Good, stats.Null, stats.IMURecords, stats.Packets, runID.String(),
	)
	if err != nil {
		return fmt.Errorf("inventory: end capture run %s: %w", runID, err)
	}
	return nil
}

// CaptureRunSummary is one row read back from capture_runs.
type CaptureRunSummary struct {
	RunID      string
	SessionID  int64
	Label      string
	Path       string
	Mode       int
	DataType   *int
	StartedAt  float64
	EndedAt    *float64
	GoodPoints int
	NullPoints int
	IMURecords int
	Packets    int
}

// RecentCaptureRuns returns the most recently started capture runs, most
// recent first.
func (db *DB) RecentCaptureRuns(limit int) ([]CaptureRunSummary, error) {
	rows, err := db.Query(
		`SELECT run_id, session_id, label, path, mode, data_type, started_at, ended_at, good_points, null_points, imu_records, packets
		 FROM capture_runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("inventory: recent capture runs: %w", err)
	}
	defer rows.Close()

	var out []CaptureRunSummary
	for rows.Next() {
		var s CaptureRunSummary
		if err := rows.Scan(&s.RunID, &s.SessionID, &s.Label, &s.Path, &s.Mode, &s.DataType, &s.StartedAt, &s.EndedAt, &s.GoodPoints, &s.NullPoints, &s.IMURecords, &s.Packets); err != nil {
			return nil, fmt.Errorf("inventory: scan capture run row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
