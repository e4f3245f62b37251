package capture

import (
	"bufio"
	"fmt"
	"os"
)

// csvHeader returns the column header row for dt. Rows use the same numeric
// precision as the transcoder's CSV output, but their own columns: timestamp
// first, then coordinates, intensity, tag, and return_num for DT4/DT5.
func csvHeader(dt DataType) string {
	if dt.Cartesian() {
		if dt.IsMultiReturn() {
			return "timestamp,x,y,z,intensity,tag,return_num\n"
		}
		return "timestamp,x,y,z,intensity,tag\n"
	}
	if dt.IsMultiReturn() {
		return "timestamp,distance,zenith,azimuth,intensity,tag,return_num\n"
	}
	return "timestamp,distance,zenith,azimuth,intensity,tag\n"
}

// csvRow formats one point as a CSV line at the transcoder's fixed
// precision: distances 3dp, angles 2dp, times 6dp.
func csvRow(dt DataType, p Point) string {
	if p.Cartesian {
		row := fmt.Sprintf("%.6f,%.3f,%.3f,%.3f,%d,%d", p.Timestamp, p.X, p.Y, p.Z, p.Intensity, p.Tag)
		if dt.IsMultiReturn() {
			return row + fmt.Sprintf(",%d\n", p.ReturnNum)
		}
		return row + "\n"
	}
	row := fmt.Sprintf("%.6f,%.3f,%.2f,%.2f,%d,%d", p.Timestamp, p.Distance, p.Zenith, p.Azimuth, p.Intensity, p.Tag)
	if dt.IsMultiReturn() {
		return row + fmt.Sprintf(",%d\n", p.ReturnNum)
	}
	return row + "\n"
}

// RealtimeCSVWriter writes one CSV line to disk per point as it arrives
// (spec §4.5: the non-deprecated CSV mode).
type RealtimeCSVWriter struct {
	f     *os.File
	w     *bufio.Writer
	dt    DataType
	count int
}

// NewRealtimeCSVWriter creates path, writes the header row, and is ready
// for point-at-a-time writes.
func NewRealtimeCSVWriter(path string, dt DataType) (*RealtimeCSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("capture: create csv file: %w", err)
	}
	w := bufio.NewWriter(f)
	if _, err := w.WriteString(csvHeader(dt)); err != nil {
		f.Close()
		return nil, err
	}
	return &RealtimeCSVWriter{f: f, w: w, dt: dt}, nil
}

// WritePoint appends p's row immediately.
func (cw *RealtimeCSVWriter) WritePoint(p Point) error {
	if _, err := cw.w.WriteString(csvRow(cw.dt, p)); err != nil {
		return err
	}
	cw.count++
	return nil
}

// Count returns the number of points written so far.
func (cw *RealtimeCSVWriter) Count() int { return cw.count }

// Close flushes and closes the underlying file.
func (cw *RealtimeCSVWriter) Close() error {
	if err := cw.w.Flush(); err != nil {
		cw.f.Close()
		return err
	}
	return cw.f.Close()
}

// BufferedCSVWriter accumulates every row in memory and writes the whole
// file on Close. Deprecated (spec §4.5): kept only for parity with the
// source driver's original buffered mode, which risks unbounded memory
// growth on long captures — prefer RealtimeCSVWriter.
type BufferedCSVWriter struct {
	path string
	dt   DataType
	rows []string
}

// NewBufferedCSVWriter prepares a buffered writer; no file is created until
// Close.
func NewBufferedCSVWriter(path string, dt DataType) *BufferedCSVWriter {
	return &BufferedCSVWriter{path: path, dt: dt}
}

// WritePoint buffers p's row in memory.
func (bw *BufferedCSVWriter) WritePoint(p Point) error {
	bw.rows = append(bw.rows, csvRow(bw.dt, p))
	return nil
}

// Count returns the number of points buffered so far.
func (bw *BufferedCSVWriter) Count() int { return len(bw.rows) }

// Close writes the header and every buffered row to bw.path in one pass.
func (bw *BufferedCSVWriter) Close() error {
	f, err := os.Create(bw.path)
	if err != nil {
		return fmt.Errorf("capture: create csv file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if _, err := w.WriteString(csvHeader(bw.dt)); err != nil {
		return err
	}
	for _, row := range bw.rows {
		if _, err := w.WriteString(row); err != nil {
			return err
		}
	}
	return w.Flush()
}

const imuCSVHeader = "timestamp,gyro_x,gyro_y,gyro_z,accel_x,accel_y,accel_z\n"

func imuCSVRow(s IMUSample) string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f\n",
		s.Timestamp, s.GyroX, s.GyroY, s.GyroZ, s.AccelX, s.AccelY, s.AccelZ)
}

// RealtimeIMUCSVWriter writes one CSV line per IMU sample as it arrives.
type RealtimeIMUCSVWriter struct {
	f     *os.File
	w     *bufio.Writer
	count int
}

// NewRealtimeIMUCSVWriter creates path and writes the header row.
func NewRealtimeIMUCSVWriter(path string) (*RealtimeIMUCSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("capture: create imu csv file: %w", err)
	}
	w := bufio.NewWriter(f)
	if _, err := w.WriteString(imuCSVHeader); err != nil {
		f.Close()
		return nil, err
	}
	return &RealtimeIMUCSVWriter{f: f, w: w}, nil
}

// WriteIMU appends s's row immediately.
func (cw *RealtimeIMUCSVWriter) WriteIMU(s IMUSample) error {
	if _, err := cw.w.WriteString(imuCSVRow(s)); err != nil {
		return err
	}
	cw.count++
	return nil
}

// Count returns the number of IMU samples written so far.
func (cw *RealtimeIMUCSVWriter) Count() int { return cw.count }

// Close flushes and closes the underlying file.
func (cw *RealtimeIMUCSVWriter) Close() error {
	if err := cw.w.Flush(); err != nil {
		cw.f.Close()
		return err
	}
	return cw.f.Close()
}

// BufferedIMUCSVWriter accumulates IMU rows in memory and writes them all
// on Close. Deprecated, matching BufferedCSVWriter's point-path rationale.
type BufferedIMUCSVWriter struct {
	path string
	rows []string
}

// NewBufferedIMUCSVWriter prepares a buffered IMU writer.
func NewBufferedIMUCSVWriter(path string) *BufferedIMUCSVWriter {
	return &BufferedIMUCSVWriter{path: path}
}

// WriteIMU buffers s's row in memory.
func (bw *BufferedIMUCSVWriter) WriteIMU(s IMUSample) error {
	bw.rows = append(bw.rows, imuCSVRow(s))
	return nil
}

// Count returns the number of IMU samples buffered so far.
func (bw *BufferedIMUCSVWriter) Count() int { return len(bw.rows) }

// Close writes the header and every buffered row to bw.path in one pass.
func (bw *BufferedIMUCSVWriter) Close() error {
	f, err := os.Create(bw.path)
	if err != nil {
		return fmt.Errorf("capture: create imu csv file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if _, err := w.WriteString(imuCSVHeader); err != nil {
		return err
	}
	for _, row := range bw.rows {
		if _, err := w.WriteString(row); err != nil {
			return err
		}
	}
	return w.Flush()
}
