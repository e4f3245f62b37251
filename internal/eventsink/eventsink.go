// Package eventsink replaces the source driver's per-object verbose-print
// boolean with an injected sink, matching the role internal/monitoring.Logf
// plays in the teacher repository but generalised to three variants: Off,
// Stderr and Callback.
package eventsink

import (
	"fmt"
	"log"
	"os"
)

// Level classifies an emitted event for filtering by Callback sinks.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Event is a single human-readable line describing a command, discovery
// result, heartbeat transition, or capture milestone.
type Event struct {
	Level    Level
	SensorIP string
	Message  string
}

// Sink receives events. Direction arrows and sensor IP prefixing (legacy
// behaviour) are the caller's responsibility via Emit's format string; Sink
// only decides where the resulting line goes.
type Sink interface {
	Emit(Event)
}

// offSink discards everything. Zero value of *offSink is usable.
type offSink struct{}

func (offSink) Emit(Event) {}

// Off returns a Sink that discards all events.
func Off() Sink { return offSink{} }

// stderrSink writes formatted lines through the standard log package,
// matching the teacher's default use of log.Printf everywhere.
type stderrSink struct {
	logger *log.Logger
}

// Stderr returns a Sink that writes to os.Stderr via a *log.Logger with the
// standard date/time prefix, the legacy "verbose messaging" behaviour.
func Stderr() Sink {
	return &stderrSink{logger: log.New(os.Stderr, "", log.LstdFlags)}
}

func (s *stderrSink) Emit(e Event) {
	s.logger.Print(formatLine(e))
}

// Callback returns a Sink that forwards every Event to fn, e.g. to keep a
// ring buffer for a status dashboard.
func Callback(fn func(Event)) Sink {
	return &callbackSink{fn: fn}
}

type callbackSink struct {
	fn func(Event)
}

func (s *callbackSink) Emit(e Event) {
	if s.fn != nil {
		s.fn(e)
	}
}

func formatLine(e Event) string {
	prefix := "  "
	if e.SensorIP != "" {
		prefix = e.SensorIP
	}
	return fmt.Sprintf("[%s] %s %s", e.Level, prefix, e.Message)
}

// Emitter wraps a Sink with convenience methods so call sites read like the
// source's print statements (sensor IP, direction arrow, message) without
// each call site formatting the arrow by hand.
type Emitter struct {
	sink Sink
}

// New wraps sink in an Emitter. A nil sink behaves like Off().
func New(sink Sink) *Emitter {
	if sink == nil {
		sink = Off()
	}
	return &Emitter{sink: sink}
}

// Sent logs an outbound command: "sensorIP   <--   message".
func (e *Emitter) Sent(sensorIP, format string, args ...any) {
	e.sink.Emit(Event{Level: LevelInfo, SensorIP: sensorIP, Message: "<-- " + fmt.Sprintf(format, args...)})
}

// Received logs an inbound response: "sensorIP   -->   message".
func (e *Emitter) Received(sensorIP, format string, args ...any) {
	e.sink.Emit(Event{Level: LevelInfo, SensorIP: sensorIP, Message: "--> " + fmt.Sprintf(format, args...)})
}

// Warnf logs a warning-level event (e.g. a rejected command, a dropped
// malformed frame).
func (e *Emitter) Warnf(sensorIP, format string, args ...any) {
	e.sink.Emit(Event{Level: LevelWarn, SensorIP: sensorIP, Message: fmt.Sprintf(format, args...)})
}

// Errorf logs an error-level event (fatal health, IO failure).
func (e *Emitter) Errorf(sensorIP, format string, args ...any) {
	e.sink.Emit(Event{Level: LevelError, SensorIP: sensorIP, Message: fmt.Sprintf(format, args...)})
}
