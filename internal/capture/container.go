package capture

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// pointMagic and imuMagic are the container header strings written at the
// start of a Binary-mode point or IMU file (spec §6).
const (
	pointMagic = "OPENPYLIVOX"
	imuMagic   = "OPENPYLIVOX_IMU"
)

// BinaryPointWriter writes the Binary-mode point container: an 11-byte
// magic, a firmware_type/data_type header, then one record per point
// (raw packet bytes, an 8-byte little-endian timestamp, and — for
// multi-return data types only — a single ASCII '1'/'2' return marker).
type BinaryPointWriter struct {
	f           *os.File
	w           *bufio.Writer
	multiReturn bool
	count       int
}

// NewBinaryPointWriter creates path and writes the container header.
func NewBinaryPointWriter(path string, firmwareType int16, dt DataType) (*BinaryPointWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("capture: create point file: %w", err)
	}
	w := bufio.NewWriter(f)
	if _, err := w.WriteString(pointMagic); err != nil {
		f.Close()
		return nil, err
	}
	var hdr [4]byte
	binary.LittleEndian.PutUint16(hdr[0:2], uint16(firmwareType))
	binary.LittleEndian.PutUint16(hdr[2:4], uint16(dt))
	if _, err := w.Write(hdr[:]); err != nil {
		f.Close()
		return nil, err
	}
	return &BinaryPointWriter{f: f, w: w, multiReturn: dt.IsMultiReturn()}, nil
}

// WritePoint appends one point record: raw bytes, f64 LE timestamp, and the
// optional return marker.
func (bw *BinaryPointWriter) WritePoint(p Point) error {
	if _, err := bw.w.Write(p.Raw); err != nil {
		return err
	}
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], math.Float64bits(p.Timestamp))
	if _, err := bw.w.Write(ts[:]); err != nil {
		return err
	}
	if bw.multiReturn {
		if err := bw.w.WriteByte('0' + p.ReturnNum); err != nil {
			return err
		}
	}
	bw.count++
	return nil
}

// RecordStride returns the per-point byte stride this writer emits
// (record size + 8 timestamp bytes + 1 marker byte if multi-return).
func (bw *BinaryPointWriter) RecordStride(recordSize int) int {
	stride := recordSize + 8
	if bw.multiReturn {
		stride++
	}
	return stride
}

// Count returns the number of points written so far.
func (bw *BinaryPointWriter) Count() int { return bw.count }

// Close flushes and closes the underlying file.
func (bw *BinaryPointWriter) Close() error {
	if err := bw.w.Flush(); err != nil {
		bw.f.Close()
		return err
	}
	return bw.f.Close()
}

// BinaryIMUWriter writes the Binary-mode IMU container: a 15-byte magic,
// then one 24-byte IMU payload + 8-byte timestamp per sample.
type BinaryIMUWriter struct {
	f     *os.File
	w     *bufio.Writer
	count int
}

// NewBinaryIMUWriter creates path and writes the IMU container header.
func NewBinaryIMUWriter(path string) (*BinaryIMUWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("capture: create imu file: %w", err)
	}
	w := bufio.NewWriter(f)
	if _, err := w.WriteString(imuMagic); err != nil {
		f.Close()
		return nil, err
	}
	return &BinaryIMUWriter{f: f, w: w}, nil
}

// WriteIMU appends one IMU record.
func (iw *BinaryIMUWriter) WriteIMU(s IMUSample) error {
	if _, err := iw.w.Write(s.Raw); err != nil {
		return err
	}
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], math.Float64bits(s.Timestamp))
	if _, err := iw.w.Write(ts[:]); err != nil {
		return err
	}
	iw.count++
	return nil
}

// Count returns the number of IMU samples written so far.
func (iw *BinaryIMUWriter) Count() int { return iw.count }

// Close flushes and closes the underlying file.
func (iw *BinaryIMUWriter) Close() error {
	if err := iw.w.Flush(); err != nil {
		iw.f.Close()
		return err
	}
	return iw.f.Close()
}

// ExpectedPointFileSize returns the container-invariant file size for a
// Binary point file: 15 header bytes + recordCount × stride (spec §8).
func ExpectedPointFileSize(recordSize int, multiReturn bool, recordCount int) int64 {
	stride := recordSize + 8
	if multiReturn {
		stride++
	}
	return int64(len(pointMagic)+4) + int64(stride)*int64(recordCount)
}

// ExpectedIMUFileSize returns the container-invariant file size for a
// Binary IMU file: 15 header bytes + sampleCount × 32 (spec §8).
func ExpectedIMUFileSize(sampleCount int) int64 {
	return int64(len(imuMagic)) + int64(sampleCount)*32
}
