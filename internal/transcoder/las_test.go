package transcoder

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlivox/lidarhost/internal/capture"
	"github.com/openlivox/lidarhost/internal/protoerr"
)

func TestConvertPointsToLASRejectsSphericalWithNoFileCreated(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "points.bin")

	w, err := capture.NewBinaryPointWriter(binPath, 1, capture.DT1)
	require.NoError(t, err)
	rec := make([]byte, 9)
	require.NoError(t, w.WritePoint(capture.Point{Raw: rec, Timestamp: 0}))
	require.NoError(t, w.Close())

	_, err = ConvertPointsToLAS(binPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, protoerr.ErrConfiguration)

	_, statErr := os.Stat(binPath + ".las")
	assert.True(t, os.IsNotExist(statErr))
}

func TestConvertPointsToLASWritesValidHeaderAndRecords(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "points.bin")

	w, err := capture.NewBinaryPointWriter(binPath, 1, capture.DT0)
	require.NoError(t, err)
	mk := func(x, y, z int32) []byte {
		rec := make([]byte, 13)
		binary.LittleEndian.PutUint32(rec[0:4], uint32(x))
		binary.LittleEndian.PutUint32(rec[4:8], uint32(y))
		binary.LittleEndian.PutUint32(rec[8:12], uint32(z))
		rec[12] = 100
		return rec
	}
	require.NoError(t, w.WritePoint(capture.Point{Raw: mk(1000, 2000, 3000), Timestamp: 1.0}))
	require.NoError(t, w.WritePoint(capture.Point{Raw: mk(-500, 4000, 1000), Timestamp: 2.0}))
	require.NoError(t, w.Close())

	count, err := ConvertPointsToLAS(binPath)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	data, err := os.ReadFile(binPath + ".las")
	require.NoError(t, err)
	require.Equal(t, lasHeaderSize+2*lasRecordSize, len(data))
	assert.Equal(t, "LASF", string(data[0:4]))
	assert.Equal(t, byte(1), data[24])
	assert.Equal(t, byte(2), data[25])
	assert.Equal(t, byte(3), data[104])
	assert.Equal(t, uint16(lasRecordSize), binary.LittleEndian.Uint16(data[105:107]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[107:111]))

	scaleX := math.Float64frombits(binary.LittleEndian.Uint64(data[131:139]))
	assert.InDelta(t, 0.001, scaleX, 1e-12)
	offX := math.Float64frombits(binary.LittleEndian.Uint64(data[155:163]))
	assert.InDelta(t, -1.0, offX, 1e-9) // floor(min(-0.5, 1.0))

	firstX := int32(binary.LittleEndian.Uint32(data[lasHeaderSize : lasHeaderSize+4]))
	// (1.0 - (-1.0)) / 0.001 = 2000
	assert.Equal(t, int32(2000), firstX)
}
