package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlivox/lidarhost/internal/codec"
	"github.com/openlivox/lidarhost/internal/config"
)

func singleReturnPoints(n int) []Point {
	pts := make([]Point, n)
	for i := range pts {
		pts[i].ReturnNum = 1
	}
	return pts
}

func TestAssignTimestampsFirstPointEqualsPacketTimestamp(t *testing.T) {
	pts := singleReturnPoints(5)
	AssignTimestamps(pts, 10.0, 10*time.Microsecond)
	assert.InDelta(t, 10.0, pts[0].Timestamp, 1e-9)
	assert.InDelta(t, 10.0+10e-6, pts[1].Timestamp, 1e-9)
	assert.InDelta(t, 10.0+40e-6, pts[4].Timestamp, 1e-9)
}

func TestAssignTimestampsMonotonicNonDecreasing(t *testing.T) {
	pts := singleReturnPoints(100)
	AssignTimestamps(pts, 0, 10*time.Microsecond)
	for i := 1; i < len(pts); i++ {
		assert.GreaterOrEqual(t, pts[i].Timestamp, pts[i-1].Timestamp)
	}
}

func TestAssignTimestampsSharesOneTimestampPerReturnGroup(t *testing.T) {
	pts := []Point{
		{ReturnNum: 1}, {ReturnNum: 2}, // DT4/DT5-style pair
		{ReturnNum: 1}, {ReturnNum: 2},
	}
	AssignTimestamps(pts, 100.0, 2083*time.Nanosecond)
	assert.InDelta(t, 100.0, pts[0].Timestamp, 1e-9)
	assert.Equal(t, pts[0].Timestamp, pts[1].Timestamp)
	assert.InDelta(t, 100.0+2083e-9, pts[2].Timestamp, 1e-9)
	assert.Equal(t, pts[2].Timestamp, pts[3].Timestamp)
}

func TestDeltaForPacketDualReturnDataTypesOverride(t *testing.T) {
	d := deltaForPacket(DT4, codec.FirmwareSingleReturn)
	require.Equal(t, time.Duration(2083), d)
	d = deltaForPacket(DT5, codec.FirmwareDualReturn)
	require.Equal(t, time.Duration(2083), d)
}

func TestDeltaForPacketGenericFirmwareTypes(t *testing.T) {
	assert.Equal(t, 10*time.Microsecond, deltaForPacket(DT0, codec.FirmwareSingleReturn))
	assert.Equal(t, 10*time.Microsecond, deltaForPacket(DT1, codec.FirmwareDualReturn))
	assert.InDelta(t, float64(16666), float64(deltaForPacket(DT0, codec.FirmwareTripleReturn)), 1)
}

func TestCompensatedDurationScalesByKOverTwo(t *testing.T) {
	cfg := config.EmptyDriverConfig()
	got := CompensatedDuration(cfg, codec.FirmwareSingleReturn, 1000*time.Second)
	want := time.Duration(float64(1000*time.Second) * (1 + 0.001/2))
	assert.Equal(t, want, got)
}
