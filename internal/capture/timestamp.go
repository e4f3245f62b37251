package capture

import (
	"time"

	"github.com/openlivox/lidarhost/internal/codec"
	"github.com/openlivox/lidarhost/internal/config"
)

// deltaForPacket returns the inter-point synthesis step Δ for a packet's
// data type under firmwareType (spec §4.5):
//   - Horizon/Tele-15 dual-return point data (DT4/DT5) always use ~2.083μs,
//     regardless of the generic firmware-type Δ below.
//   - single-return firmware: 10μs.
//   - dual-return firmware (any other data type): 10μs per return-pair.
//   - triple-return firmware: ~16.666μs per return-triple.
func deltaForPacket(dt DataType, firmwareType codec.FirmwareType) time.Duration {
	if dt.IsMultiReturn() {
		return time.Duration(2083) * time.Nanosecond
	}
	switch firmwareType {
	case codec.FirmwareTripleReturn:
		return time.Duration(50000) / 3 * time.Nanosecond
	default:
		return 10 * time.Microsecond
	}
}

// AssignTimestamps synthesizes a per-point timestamp for every entry in pts,
// in place, given the packet-level t0 (seconds since epoch) and the
// inter-point step Δ. The first point's timestamp equals t0 exactly: t is
// pre-corrected by subtracting one Δ before the loop and adding it back
// before the first return-group is emitted (spec §8 scenario 3). Δ advances
// only at a return-group boundary (ReturnNum == 1); every other return in the
// group (DT4/DT5's second record, a triple-return firmware's 2nd/3rd record)
// shares the same timestamp as the group's first return (spec §4.5, §4.7).
func AssignTimestamps(pts []Point, t0 float64, delta time.Duration) {
	step := delta.Seconds()
	t := t0 - step
	for i := range pts {
		if pts[i].ReturnNum == 1 {
			t += step
		}
		pts[i].Timestamp = t
	}
}

// AssignIMUTimestamp stamps a single IMU sample with the packet's t0; IMU
// packets carry exactly one sample so no per-point synthesis applies.
func AssignIMUTimestamp(s *IMUSample, t0 float64) {
	s.Timestamp = t0
}

// CompensatedDuration scales a requested capture duration by
// (1 + k/2) to offset the sensor's point-stream time base drift (spec
// §4.5), where k is config's per-firmware-type duration-compensation
// factor.
func CompensatedDuration(cfg *config.DriverConfig, firmwareType codec.FirmwareType, requested time.Duration) time.Duration {
	k := cfg.GetDurationCompensation(int(firmwareType))
	factor := 1 + k/2
	return time.Duration(float64(requested) * factor)
}
