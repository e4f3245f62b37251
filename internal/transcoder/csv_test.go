package transcoder

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlivox/lidarhost/internal/capture"
)

// TestTagBreakdownMatchesMSBFirstBitSlicing locks in the source's
// tag_bits[0:2]/[2:4]/[4:6] MSB-first convention against a known byte:
// 0b10_01_11_00 -> spatial=0b10=2, intensity=0b01=1, returnType=0b11=3.
func TestTagBreakdownMatchesMSBFirstBitSlicing(t *testing.T) {
	returnType, spatialConf, intensityConf := tagBreakdown(0b10_01_11_00)
	assert.Equal(t, 2, spatialConf)
	assert.Equal(t, 1, intensityConf)
	assert.Equal(t, 3, returnType)
}

func TestCSVHeaderUntaggedVsTagged(t *testing.T) {
	assert.Equal(t, "X,Y,Z,Intensity,Time,ReturnNum\n", csvHeader(0))
	assert.Equal(t, "Distance,Zenith,Azimuth,Intensity,Time,ReturnNum\n", csvHeader(1))
	assert.Equal(t, "X,Y,Z,Intensity,Time,ReturnNum,ReturnType,SpatialConf,IntensityConf\n", csvHeader(2))
}

func TestCSVRowPrecision(t *testing.T) {
	row := csvRow(0, PointRecord{Cartesian: true, X: 1.23456, Y: -2.0, Z: 0.1, Intensity: 7, Timestamp: 0.123456789, ReturnNum: 1})
	assert.Equal(t, "1.235,-2.000,0.100,7,0.123457,1\n", row)

	rowPolar := csvRow(1, PointRecord{Distance: 12.3456, Zenith: 45.678, Azimuth: 90.123, Intensity: 9, Timestamp: 1.0, ReturnNum: 1})
	assert.Equal(t, "12.346,45.68,90.12,9,1.000000,1\n", rowPolar)
}

func TestConvertPointsToCSVWritesHeaderAndOneLinePerRecord(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "points.bin")

	w, err := capture.NewBinaryPointWriter(binPath, 1, capture.DT0)
	require.NoError(t, err)
	rec := make([]byte, 13)
	rec[12] = 5
	const n = 10
	for i := 0; i < n; i++ {
		require.NoError(t, w.WritePoint(capture.Point{Raw: rec, Timestamp: float64(i)}))
	}
	require.NoError(t, w.Close())

	count, err := ConvertPointsToCSV(binPath)
	require.NoError(t, err)
	assert.Equal(t, n, count)

	f, err := os.Open(binPath + ".csv")
	require.NoError(t, err)
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, n+1)
	assert.True(t, strings.HasPrefix(lines[0], "X,Y,Z"))
}

func TestConvertIMUToCSV(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "imu.bin")

	w, err := capture.NewBinaryIMUWriter(binPath)
	require.NoError(t, err)
	require.NoError(t, w.WriteIMU(capture.IMUSample{Raw: make([]byte, 24), Timestamp: 0.5}))
	require.NoError(t, w.Close())

	count, err := ConvertIMUToCSV(binPath)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	data, err := os.ReadFile(binPath + ".csv")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), imuCSVHeader))
}
