// Package session implements the sensor session lifecycle: socket binding,
// the connect handshake, the heartbeat task with health surveillance, idle
// gating between the heartbeat and command paths, and orderly teardown.
// Grounded on spec §4.3 and OpenPyLivox's _heartbeat()/_info() loop, using
// the teacher's UDPSocket abstraction for testability.
package session

// HealthWord is the 32-bit status field carried in every point packet,
// IMU packet, and heartbeat ACK (spec §4.3).
type HealthWord uint32

// WorkState is the heartbeat ACK's operating-mode field.
type WorkState int

const (
	WorkStateInitialising WorkState = 0
	WorkStateNormal       WorkState = 1
	WorkStatePowerSave    WorkState = 2
	WorkStateStandby      WorkState = 3
	WorkStateError        WorkState = 4
)

// StatusLevel is a 2-bit ok/warn/error field.
type StatusLevel int

const (
	StatusOK StatusLevel = iota
	StatusWarn
	StatusError
)

// TimeSyncSource is the health word's 2-bit time-sync field.
type TimeSyncSource int

const (
	TimeSyncInternal TimeSyncSource = iota
	TimeSyncPTP
	TimeSyncGPS
	TimeSyncPPS
	TimeSyncAbnormal
)

func bits(word HealthWord, low, high uint) uint32 {
	mask := uint32(1)<<(high-low) - 1
	return (uint32(word) >> low) & mask
}

// Temperature returns the [0..2) temperature field.
func (h HealthWord) Temperature() StatusLevel { return StatusLevel(bits(h, 0, 2)) }

// Voltage returns the [2..4) voltage field.
func (h HealthWord) Voltage() StatusLevel { return StatusLevel(bits(h, 2, 4)) }

// Motor returns the [4..6) motor field.
func (h HealthWord) Motor() StatusLevel { return StatusLevel(bits(h, 4, 6)) }

// DirtyOrBlocked returns the [6..8) dirty/blocked field (0 ok, 1 warn).
func (h HealthWord) DirtyOrBlocked() StatusLevel { return StatusLevel(bits(h, 6, 8)) }

// FirmwareOK returns the [8..9) firmware field (0 ok, 1 error).
func (h HealthWord) FirmwareOK() bool { return bits(h, 8, 9) == 0 }

// PPSPresent returns the [9..10) PPS field (0 absent, 1 ok).
func (h HealthWord) PPSPresent() bool { return bits(h, 9, 10) == 1 }

// DeviceLifeWarn returns the [10..11) device-life field (0 ok, 1 warn).
func (h HealthWord) DeviceLifeWarn() bool { return bits(h, 10, 11) == 1 }

// FanWarn returns the [11..12) fan field (0 ok, 1 warn).
func (h HealthWord) FanWarn() bool { return bits(h, 11, 12) == 1 }

// SelfHeatingOn returns the [12..13) self-heating field (0 on, 1 off).
func (h HealthWord) SelfHeatingOn() bool { return bits(h, 12, 13) == 0 }

// PTPPresent returns the [13..14) PTP field (0 absent, 1 ok).
func (h HealthWord) PTPPresent() bool { return bits(h, 13, 14) == 1 }

// TimeSync returns the [14..16) time-sync field.
func (h HealthWord) TimeSync() TimeSyncSource { return TimeSyncSource(bits(h, 14, 16)) }

// System returns the [30..32) aggregate system field.
func (h HealthWord) System() StatusLevel { return StatusLevel(bits(h, 30, 32)) }

// Fatal reports whether this health word's aggregate system field signals
// error (spec §4.3: "Transitions into work_state==4 or system==error are fatal").
func (h HealthWord) Fatal() bool { return h.System() == StatusError }

// HealthSnapshot is a mutable record of the most recently observed health
// word and work state, updated on every inbound packet.
type HealthSnapshot struct {
	Word      HealthWord
	WorkState WorkState
}

// Update replaces the snapshot's fields.
func (s *HealthSnapshot) Update(word HealthWord, workState WorkState) {
	s.Word = word
	s.WorkState = workState
}

// Fatal reports whether the current snapshot represents a fatal transition:
// work_state==4 (error) or the health word's aggregate system field is error.
func (s *HealthSnapshot) Fatal() bool {
	return s.WorkState == WorkStateError || s.Word.Fatal()
}
