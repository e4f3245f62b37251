package transcoder

import (
	"encoding/binary"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlivox/lidarhost/internal/capture"
)

func TestPointReaderRoundTripsCartesianSingle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "points.bin")

	w, err := capture.NewBinaryPointWriter(path, 1, capture.DT0)
	require.NoError(t, err)
	rec := make([]byte, 13)
	binary.LittleEndian.PutUint32(rec[0:4], uint32(int32(1000)))
	binary.LittleEndian.PutUint32(rec[4:8], uint32(int32(2000)))
	binary.LittleEndian.PutUint32(rec[8:12], uint32(int32(3000)))
	rec[12] = 42
	require.NoError(t, w.WritePoint(capture.Point{Raw: rec, Timestamp: 1.5}))
	require.NoError(t, w.Close())

	pr, err := OpenPointFile(path)
	require.NoError(t, err)
	defer pr.Close()
	assert.Equal(t, int16(0), pr.DataType)

	rec0, err := pr.Next()
	require.NoError(t, err)
	assert.True(t, rec0.Cartesian)
	assert.InDelta(t, 1.0, rec0.X, 1e-9)
	assert.InDelta(t, 2.0, rec0.Y, 1e-9)
	assert.InDelta(t, 3.0, rec0.Z, 1e-9)
	assert.Equal(t, byte(42), rec0.Intensity)
	assert.Equal(t, byte(1), rec0.ReturnNum)
	assert.InDelta(t, 1.5, rec0.Timestamp, 1e-9)

	_, err = pr.Next()
	assert.Equal(t, io.EOF, err)
}

// TestPointReaderRoundTripsSphericalDual locks in the decodeSphericalDual
// fix in internal/capture/packet.go: the shared zenith/azimuth bytes must
// survive in each return's Raw record, since the container stores one
// independent record per return rather than one record per pair.
func TestPointReaderRoundTripsSphericalDual(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "points.bin")

	group := make([]byte, 16)
	binary.LittleEndian.PutUint16(group[0:2], 9000)  // theta, shared
	binary.LittleEndian.PutUint16(group[2:4], 18000) // phi, shared
	binary.LittleEndian.PutUint32(group[4:8], 5000)  // d, return 1
	group[8] = 10                                    // intensity, return 1
	group[9] = 0xAB                                  // tag, return 1
	binary.LittleEndian.PutUint32(group[10:14], 6000) // d, return 2
	group[14] = 20                                    // intensity, return 2
	group[15] = 0xCD                                  // tag, return 2

	pts, err := capture.DecodePoints(capture.DT5, mustGroupBody(group))
	require.NoError(t, err)
	require.Len(t, pts, 2)

	w, err := capture.NewBinaryPointWriter(path, 1, capture.DT5)
	require.NoError(t, err)
	for _, p := range pts {
		p.Timestamp = 2.0
		require.NoError(t, w.WritePoint(p))
	}
	require.NoError(t, w.Close())

	pr, err := OpenPointFile(path)
	require.NoError(t, err)
	defer pr.Close()
	assert.Equal(t, int16(5), pr.DataType)

	first, err := pr.Next()
	require.NoError(t, err)
	assert.False(t, first.Cartesian)
	assert.InDelta(t, 5.0, first.Distance, 1e-9)
	assert.InDelta(t, 90.0, first.Zenith, 1e-9)
	assert.InDelta(t, 180.0, first.Azimuth, 1e-9)
	assert.Equal(t, byte(10), first.Intensity)
	assert.Equal(t, byte(0xAB), first.Tag)
	assert.Equal(t, byte(1), first.ReturnNum)

	second, err := pr.Next()
	require.NoError(t, err)
	assert.InDelta(t, 6.0, second.Distance, 1e-9)
	assert.InDelta(t, 90.0, second.Zenith, 1e-9)
	assert.InDelta(t, 180.0, second.Azimuth, 1e-9)
	assert.Equal(t, byte(20), second.Intensity)
	assert.Equal(t, byte(0xCD), second.Tag)
	assert.Equal(t, byte(2), second.ReturnNum)

	_, err = pr.Next()
	assert.Equal(t, io.EOF, err)
}

// mustGroupBody repeats a single 16-byte DT5 group 48 times, matching the
// packet's fixed point count, so DecodePoints accepts it without a
// short-body error.
func mustGroupBody(group []byte) []byte {
	body := make([]byte, 0, 16*48)
	for i := 0; i < 48; i++ {
		body = append(body, group...)
	}
	return body
}

func TestIMUReaderRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "imu.bin")

	w, err := capture.NewBinaryIMUWriter(path)
	require.NoError(t, err)
	raw := make([]byte, 24)
	binary.LittleEndian.PutUint32(raw[0:4], 0x3F800000) // 1.0f
	require.NoError(t, w.WriteIMU(capture.IMUSample{Raw: raw, Timestamp: 3.25}))
	require.NoError(t, w.Close())

	ir, err := OpenIMUFile(path)
	require.NoError(t, err)
	defer ir.Close()

	rec, err := ir.Next()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, rec.GyroX, 1e-6)
	assert.InDelta(t, 3.25, rec.Timestamp, 1e-9)

	_, err = ir.Next()
	assert.Equal(t, io.EOF, err)
}
