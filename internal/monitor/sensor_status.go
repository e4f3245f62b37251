package monitor

import "github.com/openlivox/lidarhost/internal/session"

// SensorStatus is one sensor's connection_info + status_codes rendering
// (spec §12), derived from a Session.Snapshot() and its HealthSnapshot.
type SensorStatus struct {
	Label     string
	Serial    string
	SensorIP  string
	Firmware  string
	Connected bool
	Streaming bool

	Temperature string
	Voltage     string
	Motor       string
	System      string

	TemperatureClass string
	VoltageClass     string
	MotorClass       string
	SystemClass      string
}

func newSensorStatus(ls LabeledSession) SensorStatus {
	snap := ls.Sess.Snapshot()
	health := ls.Sess.Health

	status := SensorStatus{
		Label:     ls.Label,
		Serial:    snap.Serial,
		SensorIP:  snap.SensorIP.String(),
		Firmware:  snap.FirmwareVersion,
		Connected: snap.Connected,
		Streaming: snap.Streaming,
	}
	if health != nil {
		status.Temperature, status.TemperatureClass = levelText(health.Word.Temperature())
		status.Voltage, status.VoltageClass = levelText(health.Word.Voltage())
		status.Motor, status.MotorClass = levelText(health.Word.Motor())
		status.System, status.SystemClass = levelText(health.Word.System())
	}
	return status
}

func levelText(l session.StatusLevel) (text, class string) {
	switch l {
	case session.StatusOK:
		return "ok", "ok"
	case session.StatusWarn:
		return "warn", "warn"
	default:
		return "error", "error"
	}
}
