// Package transcoder reads the Binary container format written by
// internal/capture and converts it to delimited text (CSV), a LAS 1.2
// point-cloud file, or summary diagnostics (spec §4.7). It never reopens
// a live session: it only reads finished files from disk.
//
// The container's per-record shape for the multi-return data types (4, 5)
// differs from their on-wire packet layout: internal/capture writes one
// independent record per return (DT4 returns are DT2-shaped, 14 bytes;
// DT5 returns are DT3-shaped, 10 bytes, with the shared zenith/azimuth
// copied into each return's record) rather than one combined pair record.
// recordSize below reflects that on-disk shape, not spec §4.5's packet
// table.
package transcoder

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/openlivox/lidarhost/internal/protoerr"
)

const (
	pointMagic    = "OPENPYLIVOX"
	imuMagic      = "OPENPYLIVOX_IMU"
	pointMagicLen = 15 // magic + firmware_type + data_type, all little-endian i16
	imuMagicLen   = 15
	imuRecordLen  = 24 + 8 // raw IMU payload + f64 timestamp
)

// recordSize returns the on-disk raw-record length for dataType, or 0 if
// dataType is not a recognized point data type.
func recordSize(dataType int16) int {
	switch dataType {
	case 0:
		return 13
	case 1:
		return 9
	case 2, 4:
		return 14 // DT4 returns are stored DT2-shaped
	case 3, 5:
		return 10 // DT5 returns are stored DT3-shaped
	default:
		return 0
	}
}

func isMultiReturn(dataType int16) bool { return dataType == 4 || dataType == 5 }

func isCartesian(dataType int16) bool { return dataType == 0 || dataType == 2 || dataType == 4 }

// PointRecord is one record read back from a Binary point file.
type PointRecord struct {
	Cartesian              bool
	X, Y, Z                float64 // meters
	Distance, Zenith, Azimuth float64 // meters, degrees, degrees
	Intensity              byte
	Tag                    byte
	ReturnNum              byte
	Timestamp              float64
}

// PointReader streams PointRecord values back out of a Binary point file.
type PointReader struct {
	f            *os.File
	r            *bufio.Reader
	FirmwareType int16
	DataType     int16
	stride       int
	multiReturn  bool
}

// OpenPointFile opens path, validates the container magic, and returns a
// reader positioned at the first record.
func OpenPointFile(path string) (*PointReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transcoder: open point file: %w", err)
	}
	r := bufio.NewReader(f)

	magic := make([]byte, len(pointMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != pointMagic {
		f.Close()
		return nil, fmt.Errorf("transcoder: %q is not an OPENPYLIVOX point file: %w", path, protoerr.ErrMalformedFrame)
	}
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("transcoder: read point file header: %w", protoerr.ErrMalformedFrame)
	}
	firmwareType := int16(binary.LittleEndian.Uint16(hdr[0:2]))
	dataType := int16(binary.LittleEndian.Uint16(hdr[2:4]))
	size := recordSize(dataType)
	if size == 0 {
		f.Close()
		return nil, fmt.Errorf("transcoder: unrecognized data_type %d: %w", dataType, protoerr.ErrConfiguration)
	}

	stride := size + 8
	multi := isMultiReturn(dataType)
	if multi {
		stride++
	}

	return &PointReader{f: f, r: r, FirmwareType: firmwareType, DataType: dataType, stride: stride, multiReturn: multi}, nil
}

// Next reads the next record, or io.EOF once the file is exhausted.
func (pr *PointReader) Next() (PointRecord, error) {
	buf := make([]byte, pr.stride)
	if _, err := io.ReadFull(pr.r, buf); err != nil {
		if err == io.ErrUnexpectedEOF {
			return PointRecord{}, fmt.Errorf("transcoder: truncated record: %w", protoerr.ErrMalformedFrame)
		}
		return PointRecord{}, err
	}

	size := recordSize(pr.DataType)
	rec := buf[:size]
	ts := math.Float64frombits(binary.LittleEndian.Uint64(buf[size : size+8]))

	out := PointRecord{Timestamp: ts, ReturnNum: 1}
	if pr.multiReturn {
		out.ReturnNum = buf[size+8] - '0'
	}

	if isCartesian(pr.DataType) {
		out.Cartesian = true
		out.X = float64(int32(binary.LittleEndian.Uint32(rec[0:4]))) / 1000
		out.Y = float64(int32(binary.LittleEndian.Uint32(rec[4:8]))) / 1000
		out.Z = float64(int32(binary.LittleEndian.Uint32(rec[8:12]))) / 1000
		out.Intensity = rec[12]
		if size == 14 {
			out.Tag = rec[13]
		}
	} else {
		out.Distance = float64(binary.LittleEndian.Uint32(rec[0:4])) / 1000
		out.Zenith = float64(binary.LittleEndian.Uint16(rec[4:6])) / 100
		out.Azimuth = float64(binary.LittleEndian.Uint16(rec[6:8])) / 100
		out.Intensity = rec[8]
		if size == 10 {
			out.Tag = rec[9]
		}
	}
	return out, nil
}

// Close releases the underlying file.
func (pr *PointReader) Close() error { return pr.f.Close() }

// IMURecord is one record read back from a Binary IMU file.
type IMURecord struct {
	GyroX, GyroY, GyroZ    float32
	AccelX, AccelY, AccelZ float32
	Timestamp              float64
}

// IMUReader streams IMURecord values back out of a Binary IMU file.
type IMUReader struct {
	f *os.File
	r *bufio.Reader
}

// OpenIMUFile opens path and validates the IMU container magic.
func OpenIMUFile(path string) (*IMUReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transcoder: open imu file: %w", err)
	}
	r := bufio.NewReader(f)
	magic := make([]byte, len(imuMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != imuMagic {
		f.Close()
		return nil, fmt.Errorf("transcoder: %q is not an OPENPYLIVOX_IMU file: %w", path, protoerr.ErrMalformedFrame)
	}
	return &IMUReader{f: f, r: r}, nil
}

// Next reads the next IMU record, or io.EOF once the file is exhausted.
func (ir *IMUReader) Next() (IMURecord, error) {
	buf := make([]byte, imuRecordLen)
	if _, err := io.ReadFull(ir.r, buf); err != nil {
		if err == io.ErrUnexpectedEOF {
			return IMURecord{}, fmt.Errorf("transcoder: truncated imu record: %w", protoerr.ErrMalformedFrame)
		}
		return IMURecord{}, err
	}
	f := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4])) }
	ts := math.Float64frombits(binary.LittleEndian.Uint64(buf[24:32]))
	return IMURecord{
		GyroX: f(0), GyroY: f(4), GyroZ: f(8),
		AccelX: f(12), AccelY: f(16), AccelZ: f(20),
		Timestamp: ts,
	}, nil
}

// Close releases the underlying file.
func (ir *IMUReader) Close() error { return ir.f.Close() }
