package capture

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openlivox/lidarhost/internal/codec"
	"github.com/openlivox/lidarhost/internal/config"
	"github.com/openlivox/lidarhost/internal/eventsink"
	"github.com/openlivox/lidarhost/internal/protoerr"
	"github.com/openlivox/lidarhost/internal/session"
)

// Mode selects a capture run's output format (spec §4.5).
type Mode int

const (
	ModeBinary      Mode = iota // container format, one record per point
	ModeRealtimeCSV             // one CSV line per point at write time
	ModeBufferedCSV             // deprecated: buffers every row until Stop
)

// Stats summarizes one capture run's counters (spec §4.5: good, null,
// imu_records).
type Stats struct {
	Good       int
	Null       int
	IMURecords int
	Packets    int
	Anomalies  int // header.version != 5, or otherwise malformed/undecodable
}

type pointSink interface {
	WritePoint(Point) error
	Count() int
	Close() error
}

type imuSink interface {
	WriteIMU(IMUSample) error
	Count() int
	Close() error
}

// Run drives one session's capture task: a data-socket reader loop and an
// IMU-socket reader loop feeding a single writer, per the start contract
// (wait_secs, duration_secs, mode) in spec §4.5.
type Run struct {
	ID      uuid.UUID
	sess    *session.Session
	cfg     *config.DriverConfig
	emitter *eventsink.Emitter

	mu        sync.Mutex
	pointSink pointSink
	imuSink   imuSink
	stats     Stats
	cancel    context.CancelFunc
	dataDone  chan struct{}
	imuDone   chan struct{}
	done      chan struct{}
}

// NewRun constructs a capture task bound to sess, tagged with a fresh run ID.
// cmd/livoxctl keys its inventory capture-run rows with IDs of its own, not
// with this one.
func NewRun(sess *session.Session, cfg *config.DriverConfig, emitter *eventsink.Emitter) *Run {
	return &Run{ID: uuid.New(), sess: sess, cfg: cfg, emitter: emitter}
}

// Start begins the wait-then-capture task in the background. wait is the
// number of sensor-time seconds of packets to discard before writing;
// duration is the number of sensor-time seconds to capture for afterward,
// or 0 for "indefinite" (internally bounded to cfg.GetMaxDurationSeconds()).
// Start returns once both sockets' reader goroutines are running; Done
// closes when the run completes, and Stop ends it and closes its sinks.
func (r *Run) Start(ctx context.Context, path string, wait, duration time.Duration, mode Mode) error {
	waitSecs := wait.Seconds()
	if waitSecs < 0 || waitSecs > float64(r.cfg.GetMaxWaitSeconds()) {
		return fmt.Errorf("capture: wait_secs %.3f out of range [0,%d]: %w", waitSecs, r.cfg.GetMaxWaitSeconds(), protoerr.ErrConfiguration)
	}
	durationSecs := duration.Seconds()
	if durationSecs < 0 || durationSecs >= float64(r.cfg.GetMaxDurationSeconds()) {
		return fmt.Errorf("capture: duration_secs %.3f out of range [0,%d): %w", durationSecs, r.cfg.GetMaxDurationSeconds(), protoerr.ErrConfiguration)
	}
	if durationSecs == 0 {
		durationSecs = float64(r.cfg.GetMaxDurationSeconds())
	}
	firmwareType := codec.ClassifyFirmware(r.sess.Snapshot().FirmwareVersion)
	durationSecs = CompensatedDuration(r.cfg, firmwareType, time.Duration(durationSecs*float64(time.Second))).Seconds()

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.dataDone = make(chan struct{})
	r.imuDone = make(chan struct{})
	r.done = make(chan struct{})

	go r.readLoop(runCtx, r.sess.DataSocket, waitSecs, durationSecs, mode, path)
	go r.readIMULoop(runCtx, r.sess.IMUSocket)
	go func() {
		<-r.dataDone
		<-r.imuDone
		close(r.done)
	}()

	return nil
}

// Done returns a channel that closes once both reader loops have exited,
// whether because a packet past the capture duration arrived, the data
// socket failed, or Stop was called; the IMU loop ends with the data loop. Used by internal/group's AllDoneCapturing to poll a run without
// blocking on Stop.
func (r *Run) Done() <-chan struct{} { return r.done }

// Stats returns a snapshot of the run's counters while it is still active.
func (r *Run) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Stop ends the run, closes any open sinks, and returns final counters.
func (r *Run) Stop() (Stats, error) {
	if r.cancel != nil {
		r.cancel()
	}
	if r.dataDone != nil {
		<-r.dataDone
	}
	if r.imuDone != nil {
		<-r.imuDone
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if r.pointSink != nil {
		err = r.pointSink.Close()
		r.pointSink = nil
	}
	if r.imuSink != nil {
		if e := r.imuSink.Close(); e != nil && err == nil {
			err = e
		}
		r.imuSink = nil
	}
	return r.stats, err
}

// siblingIMUPath derives the IMU output path from the point path by
// inserting an "_imu" suffix before the extension.
func siblingIMUPath(path string) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	return stem + "_imu" + ext
}

func (r *Run) readLoop(ctx context.Context, sock interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	SetReadDeadline(time.Time) error
}, waitSecs, durationSecs float64, mode Mode, pointPath string) {
	defer close(r.dataDone)
	defer r.cancel() // end the IMU loop with this one so Done closes

	buf := make([]byte, 1500)
	waitStart := 0.0
	captureStart := 0.0
	waiting := true

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		sock.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
		n, _, err := sock.ReadFromUDP(buf)
		if err != nil {
			if isTimeoutErr(err) {
				continue
			}
			return
		}
		hdr, body, err := ParseHeader(buf[:n])
		if err != nil {
			r.mu.Lock()
			r.stats.Anomalies++
			r.mu.Unlock()
			continue
		}
		if hdr.Version != pointPacketVersion {
			r.mu.Lock()
			r.stats.Anomalies++
			r.mu.Unlock()
			continue
		}
		t0 := PacketTimestamp(hdr)
		firmwareType := codec.ClassifyFirmware(r.sess.Snapshot().FirmwareVersion)

		if waiting {
			if waitStart == 0 {
				waitStart = t0
			}
			if t0-waitStart < waitSecs {
				continue
			}
			waiting = false
			captureStart = t0
			if err := r.openPointSink(mode, pointPath, hdr.DataType, int16(firmwareType)); err != nil {
				return
			}
		}
		if t0-captureStart > durationSecs {
			return
		}

		pts, err := DecodePoints(hdr.DataType, body)
		if err != nil {
			r.mu.Lock()
			r.stats.Anomalies++
			r.mu.Unlock()
			continue
		}
		if firmwareType == codec.FirmwareTripleReturn && !hdr.DataType.IsMultiReturn() {
			// Triple-return firmware sends each return as its own record;
			// number them 1/2/3 so Δ advances once per triple.
			for i := range pts {
				pts[i].ReturnNum = byte(i%3 + 1)
			}
		}
		AssignTimestamps(pts, t0, deltaForPacket(hdr.DataType, firmwareType))

		mid100 := strings.Contains(strings.ToLower(r.sess.Snapshot().DeviceKind), "100")
		r.mu.Lock()
		r.stats.Packets++
		for _, p := range pts {
			if p.IsNull() && !mid100 {
				r.stats.Null++
				continue
			}
			if r.pointSink != nil {
				if err := r.pointSink.WritePoint(p); err == nil {
					r.stats.Good++
				}
			}
		}
		r.mu.Unlock()
	}
}

func (r *Run) readIMULoop(ctx context.Context, sock interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	SetReadDeadline(time.Time) error
}) {
	defer close(r.imuDone)
	if sock == nil {
		return
	}
	buf := make([]byte, 256)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		sock.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
		n, _, err := sock.ReadFromUDP(buf)
		if err != nil {
			if isTimeoutErr(err) {
				continue
			}
			return
		}
		hdr, body, err := ParseHeader(buf[:n])
		if err != nil {
			r.mu.Lock()
			r.stats.Anomalies++
			r.mu.Unlock()
			continue
		}
		if hdr.Version != pointPacketVersion {
			r.mu.Lock()
			r.stats.Anomalies++
			r.mu.Unlock()
			continue
		}
		sample, err := DecodeIMU(body)
		if err != nil {
			r.mu.Lock()
			r.stats.Anomalies++
			r.mu.Unlock()
			continue
		}
		t0 := PacketTimestamp(hdr)
		AssignIMUTimestamp(&sample, t0)

		r.mu.Lock()
		if r.imuSink != nil {
			if err := r.imuSink.WriteIMU(sample); err == nil {
				r.stats.IMURecords++
			}
		}
		r.mu.Unlock()
	}
}

// openPointSink lazily creates the point (and IMU) sinks once the actual
// data type is known from the first captured packet.
func (r *Run) openPointSink(mode Mode, pointPath string, dt DataType, firmwareType int16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pointSink != nil {
		return nil
	}

	var err error
	switch mode {
	case ModeBinary:
		r.pointSink, err = NewBinaryPointWriter(pointPath, firmwareType, dt)
		if err == nil {
			r.imuSink, err = NewBinaryIMUWriter(siblingIMUPath(pointPath))
		}
	case ModeRealtimeCSV:
		r.pointSink, err = NewRealtimeCSVWriter(pointPath, dt)
		if err == nil {
			r.imuSink, err = NewRealtimeIMUCSVWriter(siblingIMUPath(pointPath))
		}
	case ModeBufferedCSV:
		r.pointSink = NewBufferedCSVWriter(pointPath, dt)
		r.imuSink = NewBufferedIMUCSVWriter(siblingIMUPath(pointPath))
	default:
		return fmt.Errorf("capture: unknown mode %d: %w", mode, protoerr.ErrConfiguration)
	}
	return err
}

type timeoutErr interface {
	Timeout() bool
}

func isTimeoutErr(err error) bool {
	te, ok := err.(timeoutErr)
	return ok && te.Timeout()
}
