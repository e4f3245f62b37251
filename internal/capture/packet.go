// Package capture implements the per-session capture task: two reader
// loops (data, IMU) cooperating with one writer, per-point timestamp
// synthesis, duration compensation, the null-point filter, and the three
// writer modes (spec §4.5). Grounded on the teacher's lidar/parse/extract.go
// point-decode shape and lidar/recorder/recorder.go's writer lifecycle.
package capture

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/openlivox/lidarhost/internal/protoerr"
	"github.com/openlivox/lidarhost/internal/session"
)

// DataType identifies the layout of points inside a packet (0-6); 6 is IMU.
type DataType byte

const (
	DT0 DataType = 0 // Cartesian single-return
	DT1 DataType = 1 // Spherical single-return
	DT2 DataType = 2 // Cartesian single-return + tag
	DT3 DataType = 3 // Spherical single-return + tag
	DT4 DataType = 4 // Cartesian dual-return
	DT5 DataType = 5 // Spherical dual-return
	DT6 DataType = 6 // IMU
)

// layout describes one data-type's on-wire record size and point count.
type layout struct {
	RecordSize int
	PointCount int
}

// layouts is the data-type → (size, count) table (spec §4.5).
var layouts = map[DataType]layout{
	DT0: {RecordSize: 13, PointCount: 100},
	DT1: {RecordSize: 9, PointCount: 100},
	DT2: {RecordSize: 14, PointCount: 96},
	DT3: {RecordSize: 10, PointCount: 96},
	DT4: {RecordSize: 28, PointCount: 48},
	DT5: {RecordSize: 16, PointCount: 48},
	DT6: {RecordSize: 24, PointCount: 1},
}

// IsMultiReturn reports whether dt packs two returns per point index
// (DT4/DT5), requiring an ASCII '1'/'2' return-number marker in Binary mode.
func (dt DataType) IsMultiReturn() bool { return dt == DT4 || dt == DT5 }

// Cartesian reports whether dt decodes to x/y/z rather than polar fields.
func (dt DataType) Cartesian() bool { return dt == DT0 || dt == DT2 || dt == DT4 }

const packetHeaderLen = 18

// pointPacketVersion is the only header.version value point packets may
// carry (spec §3, §6); any other value means the packet is discarded and
// the anomaly counted.
const pointPacketVersion = 5

// Header is the fixed 18-byte point-packet preamble (spec §6).
type Header struct {
	Version       byte
	Slot          byte
	LidarID       byte
	HealthWord    session.HealthWord
	TimestampType byte
	DataType      DataType
	TimestampRaw  [8]byte
}

// ParseHeader decodes the fixed 18-byte point-packet header and returns the
// remaining point bytes.
func ParseHeader(packet []byte) (Header, []byte, error) {
	if len(packet) < packetHeaderLen {
		return Header{}, nil, fmt.Errorf("capture: packet shorter than header (%d bytes): %w", len(packet), protoerr.ErrMalformedFrame)
	}
	var h Header
	h.Version = packet[0]
	h.Slot = packet[1]
	h.LidarID = packet[2]
	h.HealthWord = session.HealthWord(binary.LittleEndian.Uint32(packet[4:8]))
	h.TimestampType = packet[8]
	h.DataType = DataType(packet[9])
	copy(h.TimestampRaw[:], packet[10:18])
	return h, packet[packetHeaderLen:], nil
}

// PacketTimestamp decodes the packet-level t0 as seconds since the Unix
// epoch, per the timestamp-type table (spec §6):
//   - types 0, 1, 4: uint64 nanoseconds since epoch.
//   - type 3 (UTC): (year, month, day, hour) bytes + uint32 microseconds
//     into the hour. The source does not handle hour/day/month/year
//     rollover and neither does this: values are interpreted literally
//     against the epoch year base (Design Note, §9 open question).
//   - any other type (undocumented in the source): treated as uint64
//     nanoseconds, matching the common case.
func PacketTimestamp(h Header) float64 {
	switch h.TimestampType {
	case 3:
		year := 2000 + int(h.TimestampRaw[0])
		month := int(h.TimestampRaw[1])
		day := int(h.TimestampRaw[2])
		hour := int(h.TimestampRaw[3])
		micros := binary.LittleEndian.Uint32(h.TimestampRaw[4:8])
		base := time.Date(year, time.Month(month), day, hour, 0, 0, 0, time.UTC)
		return float64(base.Unix()) + float64(micros)/1e6
	default:
		ns := binary.LittleEndian.Uint64(h.TimestampRaw[:])
		return float64(ns) / 1e9
	}
}

// Point is one decoded point record, meters/degrees per spec §3. Raw holds
// the packet's original bytes for this record, reused verbatim by the
// Binary writer.
type Point struct {
	Cartesian bool
	X, Y, Z   float64 // meters
	Distance  float64 // meters
	Zenith    float64 // degrees
	Azimuth   float64 // degrees
	Intensity byte
	ReturnNum byte // 1-based; 2 for the second record of a DT4/DT5 pair; Run sets 1/2/3 under triple-return firmware
	Tag       byte
	Timestamp float64 // synthesized seconds since epoch
	Raw       []byte
}

// IsNull reports whether p's coordinate fields are all zero (Cartesian) or
// its distance is zero (Spherical) — the canonical null-point definition
// (spec §9 open question: distance==0, not the source's inconsistent
// coord1-sign check in stored paths).
func (p Point) IsNull() bool {
	if p.Cartesian {
		return p.X == 0 && p.Y == 0 && p.Z == 0
	}
	return p.Distance == 0
}

// DecodePoints decodes every point record in a packet body (the bytes
// following the 18-byte header) for the given data type. It does not
// assign timestamps; call AssignTimestamps afterward.
func DecodePoints(dt DataType, body []byte) ([]Point, error) {
	lo, ok := layouts[dt]
	if !ok {
		return nil, fmt.Errorf("capture: unknown data-type %d: %w", dt, protoerr.ErrMalformedFrame)
	}
	want := lo.RecordSize * lo.PointCount
	if len(body) < want {
		return nil, fmt.Errorf("capture: packet body too short for dt=%d: want %d got %d: %w", dt, want, len(body), protoerr.ErrMalformedFrame)
	}

	switch dt {
	case DT0:
		return decodeCartesianSingle(body, lo, false), nil
	case DT2:
		return decodeCartesianSingle(body, lo, true), nil
	case DT1:
		return decodeSphericalSingle(body, lo, false), nil
	case DT3:
		return decodeSphericalSingle(body, lo, true), nil
	case DT4:
		return decodeCartesianDual(body, lo), nil
	case DT5:
		return decodeSphericalDual(body, lo), nil
	default:
		return nil, fmt.Errorf("capture: data-type %d has no point decoder: %w", dt, protoerr.ErrMalformedFrame)
	}
}

func decodeCartesianSingle(body []byte, lo layout, tagged bool) []Point {
	pts := make([]Point, 0, lo.PointCount)
	for i := 0; i < lo.PointCount; i++ {
		rec := body[i*lo.RecordSize : (i+1)*lo.RecordSize]
		x := int32(binary.LittleEndian.Uint32(rec[0:4]))
		y := int32(binary.LittleEndian.Uint32(rec[4:8]))
		z := int32(binary.LittleEndian.Uint32(rec[8:12]))
		p := Point{
			Cartesian: true,
			X:         float64(x) / 1000, Y: float64(y) / 1000, Z: float64(z) / 1000,
			Intensity: rec[12],
			ReturnNum: 1,
			Raw:       rec,
		}
		if tagged {
			p.Tag = rec[13]
		}
		pts = append(pts, p)
	}
	return pts
}

func decodeSphericalSingle(body []byte, lo layout, tagged bool) []Point {
	pts := make([]Point, 0, lo.PointCount)
	for i := 0; i < lo.PointCount; i++ {
		rec := body[i*lo.RecordSize : (i+1)*lo.RecordSize]
		d := binary.LittleEndian.Uint32(rec[0:4])
		theta := binary.LittleEndian.Uint16(rec[4:6])
		phi := binary.LittleEndian.Uint16(rec[6:8])
		p := Point{
			Cartesian: false,
			Distance:  float64(d) / 1000,
			Zenith:    float64(theta) / 100,
			Azimuth:   float64(phi) / 100,
			Intensity: rec[8],
			ReturnNum: 1,
			Raw:       rec,
		}
		if tagged {
			p.Tag = rec[9]
		}
		pts = append(pts, p)
	}
	return pts
}

// decodeCartesianDual decodes DT4: 48 pairs, each two DT2-shaped 14-byte
// sub-records (return 1 then return 2) sharing one per-pair timestamp.
func decodeCartesianDual(body []byte, lo layout) []Point {
	pts := make([]Point, 0, lo.PointCount*2)
	for i := 0; i < lo.PointCount; i++ {
		pair := body[i*lo.RecordSize : (i+1)*lo.RecordSize]
		for r := 0; r < 2; r++ {
			rec := pair[r*14 : (r+1)*14]
			x := int32(binary.LittleEndian.Uint32(rec[0:4]))
			y := int32(binary.LittleEndian.Uint32(rec[4:8]))
			z := int32(binary.LittleEndian.Uint32(rec[8:12]))
			pts = append(pts, Point{
				Cartesian: true,
				X:         float64(x) / 1000, Y: float64(y) / 1000, Z: float64(z) / 1000,
				Intensity: rec[12],
				Tag:       rec[13],
				ReturnNum: byte(r + 1),
				Raw:       rec,
			})
		}
	}
	return pts
}

// decodeSphericalDual decodes DT5: 48 groups, shared theta/phi, two (d,i,tag)
// sub-records. Raw is synthesized into a DT3-shaped 10-byte record
// (d,theta,phi,i,tag) per return so the shared angle survives round-trip
// through the Binary container, which stores one independent record per
// return rather than per pair.
func decodeSphericalDual(body []byte, lo layout) []Point {
	pts := make([]Point, 0, lo.PointCount*2)
	for i := 0; i < lo.PointCount; i++ {
		group := body[i*lo.RecordSize : (i+1)*lo.RecordSize]
		thetaBytes := group[0:2]
		phiBytes := group[2:4]
		theta := binary.LittleEndian.Uint16(thetaBytes)
		phi := binary.LittleEndian.Uint16(phiBytes)
		for r := 0; r < 2; r++ {
			sub := group[4+r*6 : 4+(r+1)*6]
			d := binary.LittleEndian.Uint32(sub[0:4])
			raw := make([]byte, 10)
			copy(raw[0:4], sub[0:4])
			copy(raw[4:6], thetaBytes)
			copy(raw[6:8], phiBytes)
			raw[8] = sub[4]
			raw[9] = sub[5]
			pts = append(pts, Point{
				Cartesian: false,
				Distance:  float64(d) / 1000,
				Zenith:    float64(theta) / 100,
				Azimuth:   float64(phi) / 100,
				Intensity: sub[4],
				Tag:       sub[5],
				ReturnNum: byte(r + 1),
				Raw:       raw,
			})
		}
	}
	return pts
}

// IMUSample is one decoded IMU record (data-type 6): six IEEE-754 floats.
type IMUSample struct {
	GyroX, GyroY, GyroZ    float32
	AccelX, AccelY, AccelZ float32
	Timestamp              float64
	Raw                    []byte
}

// DecodeIMU decodes the single 24-byte IMU record in a packet body.
func DecodeIMU(body []byte) (IMUSample, error) {
	if len(body) < 24 {
		return IMUSample{}, fmt.Errorf("capture: imu packet body too short (%d bytes): %w", len(body), protoerr.ErrMalformedFrame)
	}
	rec := body[:24]
	f := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(rec[off : off+4]))
	}
	return IMUSample{
		GyroX: f(0), GyroY: f(4), GyroZ: f(8),
		AccelX: f(12), AccelY: f(16), AccelZ: f(20),
		Raw: rec,
	}, nil
}
