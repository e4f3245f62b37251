package session

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/openlivox/lidarhost/internal/codec"
	"github.com/openlivox/lidarhost/internal/config"
	"github.com/openlivox/lidarhost/internal/eventsink"
	"github.com/openlivox/lidarhost/internal/lidar/network"
	"github.com/openlivox/lidarhost/internal/protoerr"
	"github.com/openlivox/lidarhost/internal/timeutil"
)

// State is the single-owner mutable record of a live session (spec §3:
// SessionState). The commander mutates it only while not streaming, except
// for pure telemetry queries.
type State struct {
	mu sync.RWMutex

	ComputerIP      net.IP
	SensorIP        net.IP
	DataPort        uint16
	CmdPort         uint16
	IMUPort         uint16
	FirmwareVersion string
	Serial          string
	IPRangeCode     int
	DeviceKind      string
	CoordSystem     codec.CoordinateSystem
	Extrinsics      codec.Extrinsics

	Connected bool
	Streaming bool
	Writing   bool
}

// SetCoordSystem records the commander's last-applied coordinate system.
func (s *State) SetCoordSystem(cs codec.CoordinateSystem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CoordSystem = cs
}

// SetExtrinsics records the commander's last-applied extrinsics.
func (s *State) SetExtrinsics(e codec.Extrinsics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Extrinsics = e
}

func (s *State) snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := *s
	cp.mu = sync.RWMutex{}
	return cp
}

// Session owns the three UDP sockets for one sensor and runs its heartbeat.
type Session struct {
	factory network.UDPSocketFactory
	cfg     *config.DriverConfig
	clock   timeutil.Clock
	emitter *eventsink.Emitter

	DataSocket network.UDPSocket
	CmdSocket  network.UDPSocket
	IMUSocket  network.UDPSocket

	State  *State
	Health *HealthSnapshot
	Gate   *IdleGate

	// Fatal surfaces a FatalReason the first time a fatal health transition
	// or abnormal-status MSG is observed (Design Note: expose through a
	// channel rather than os.Exit inside the library).
	Fatal chan *protoerr.FatalReason

	cancelHeartbeat context.CancelFunc
	heartbeatDone   chan struct{}
}

// New constructs a Session with the given dependencies. Use
// network.NewRealUDPSocketFactory()/timeutil.RealClock{} in production.
func New(factory network.UDPSocketFactory, cfg *config.DriverConfig, clock timeutil.Clock, emitter *eventsink.Emitter) *Session {
	return &Session{
		factory: factory,
		cfg:     cfg,
		clock:   clock,
		emitter: emitter,
		State:   &State{},
		Health:  &HealthSnapshot{},
		Gate:    NewIdleGate(),
		Fatal:   make(chan *protoerr.FatalReason, 1),
	}
}

// Bind opens the three UDP sockets (data, command, IMU) on computerIP.
// Requested port 0 lets the OS assign; failure is fatal (spec §4.3).
func (s *Session) Bind(computerIP net.IP, dataPort, cmdPort, imuPort uint16) error {
	open := func(port uint16) (network.UDPSocket, error) {
		sock, err := s.factory.ListenUDP("udp", &net.UDPAddr{IP: computerIP, Port: int(port)})
		if err != nil {
			return nil, fmt.Errorf("session: bind %s:%d: %w", computerIP, port, protoerr.ErrIOFailure)
		}
		if err := sock.SetReadBuffer(s.cfg.GetUDPReceiveBuffer()); err != nil {
			s.emitter.Warnf(computerIP.String(), "failed to set receive buffer: %v", err)
		}
		return sock, nil
	}

	dataSock, err := open(dataPort)
	if err != nil {
		return err
	}
	cmdSock, err := open(cmdPort)
	if err != nil {
		return err
	}
	imuSock, err := open(imuPort)
	if err != nil {
		return err
	}

	s.DataSocket, s.CmdSocket, s.IMUSocket = dataSock, cmdSock, imuSock

	s.State.mu.Lock()
	s.State.ComputerIP = computerIP
	s.State.DataPort = uint16(dataSock.LocalAddr().(*net.UDPAddr).Port)
	s.State.CmdPort = uint16(cmdSock.LocalAddr().(*net.UDPAddr).Port)
	s.State.IMUPort = uint16(imuSock.LocalAddr().(*net.UDPAddr).Port)
	s.State.mu.Unlock()

	s.clock.Sleep(s.cfg.GetSocketSettleDelay())
	return nil
}

// Connect sends the handshake command and awaits an ACK with ret_code 0
// within the configured command-ack timeout. On success it starts the
// heartbeat task and issues an initial query to populate the firmware
// version (spec §4.3); the serial is not set here.
func (s *Session) Connect(ctx context.Context, sensorIP net.IP) error {
	s.State.mu.Lock()
	s.State.SensorIP = sensorIP
	s.State.mu.Unlock()

	payload, err := codec.BuildConnect(s.State.ComputerIP, s.State.DataPort, s.State.CmdPort, s.State.IMUPort)
	if err != nil {
		return fmt.Errorf("session: build connect frame: %w", protoerr.ErrConfiguration)
	}

	ack, err := s.sendAndAwaitACK(payload)
	if err != nil {
		return err
	}

	if len(ack.Payload) < 1 {
		return fmt.Errorf("session: connect ack missing ret_code: %w", protoerr.ErrMalformedFrame)
	}
	if ack.Payload[0] != 0 {
		return fmt.Errorf("session: connect rejected, ret_code=%d: %w", ack.Payload[0], protoerr.ErrRejectedByDevice)
	}

	s.State.mu.Lock()
	s.State.Connected = true
	s.State.mu.Unlock()

	s.emitter.Sent(sensorIP.String(), "connect")
	s.emitter.Received(sensorIP.String(), "connect ack, ret_code=0")

	s.startHeartbeat(ctx)

	if err := s.query(); err != nil {
		s.emitter.Warnf(sensorIP.String(), "post-connect query failed: %v", err)
	}

	return nil
}

// query issues a General/query command to populate the firmware version.
// Non-fatal on failure; callers may retry via a later query.
func (s *Session) query() error {
	ack, err := s.sendAndAwaitACK(codec.CmdQuery)
	if err != nil {
		return err
	}
	// Firmware version is four bytes (major.minor.patch.build) following a
	// 1-byte ret_code, per OpenPyLivox's _parseResp firmware decode.
	if len(ack.Payload) >= 5 {
		s.State.mu.Lock()
		s.State.FirmwareVersion = fmt.Sprintf("%02d.%02d.%02d%02d", ack.Payload[1], ack.Payload[2], ack.Payload[3], ack.Payload[4])
		s.State.mu.Unlock()
	}
	return nil
}

// SendAndAwaitACK is the commander's entry point for every mutating or
// telemetry command: it waits for the idle gate, sends frame on the command
// socket, and blocks for an ACK up to the configured timeout.
func (s *Session) SendAndAwaitACK(frame []byte) (codec.Frame, error) {
	return s.sendAndAwaitACK(frame)
}

// sendAndAwaitACK waits for the idle gate, sends a pre-built frame on the
// command socket, and blocks for an ACK up to the configured timeout,
// releasing the gate before returning.
func (s *Session) sendAndAwaitACK(frame []byte) (codec.Frame, error) {
	if err := s.Gate.Acquire(context.Background(), s.cfg.GetCommandAckTimeout()); err != nil {
		return codec.Frame{}, fmt.Errorf("session: acquire idle gate: %w", err)
	}
	defer s.Gate.Release()

	addr := &net.UDPAddr{IP: s.State.SensorIP, Port: sensorCommandPort}
	if err := s.writeCmd(frame, addr); err != nil {
		return codec.Frame{}, err
	}

	return s.readACK(s.cfg.GetCommandAckTimeout())
}

// sensorCommandPort is the protocol-fixed port every sensor listens for
// commands on (spec §4.3), independent of the host-side command socket's
// local port assigned by Bind.
const sensorCommandPort = 65000

func (s *Session) writeCmd(frame []byte, addr *net.UDPAddr) error {
	if _, err := s.CmdSocket.WriteToUDP(frame, addr); err != nil {
		return fmt.Errorf("session: write command: %w", protoerr.ErrIOFailure)
	}
	return nil
}

func (s *Session) readACK(timeout time.Duration) (codec.Frame, error) {
	buf := make([]byte, codec.MaxPayloadLen+32)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if err := s.CmdSocket.SetReadDeadline(time.Now().Add(10 * time.Millisecond)); err != nil {
			return codec.Frame{}, fmt.Errorf("session: set read deadline: %w", protoerr.ErrIOFailure)
		}
		n, _, err := s.CmdSocket.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return codec.Frame{}, fmt.Errorf("session: read ack: %w", protoerr.ErrIOFailure)
		}
		frame, err := codec.Parse(buf[:n])
		if err != nil {
			continue // malformed ack: drop, keep waiting within the deadline
		}
		if frame.Type != codec.FrameACK {
			continue
		}
		return frame, nil
	}
	return codec.Frame{}, fmt.Errorf("session: %w", protoerr.ErrTimeout)
}

// startHeartbeat launches the 1Hz heartbeat task (spec §4.3). It holds the
// idle gate only while sending the beat and reading its ack, then releases
// it for the configured idle window before the next beat.
func (s *Session) startHeartbeat(ctx context.Context) {
	hbCtx, cancel := context.WithCancel(ctx)
	s.cancelHeartbeat = cancel
	s.heartbeatDone = make(chan struct{})

	go func() {
		defer close(s.heartbeatDone)
		ticker := s.clock.NewTicker(s.cfg.GetHeartbeatInterval())
		defer ticker.Stop()

		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C():
				s.beat()
			}
		}
	}()
}

func (s *Session) beat() {
	if err := s.Gate.Acquire(context.Background(), s.cfg.GetCommandAckTimeout()); err != nil {
		return // command path holds the gate; skip this beat
	}

	addr := &net.UDPAddr{IP: s.State.SensorIP, Port: sensorCommandPort}
	sendErr := s.writeCmd(codec.CmdHeartbeat, addr)
	var ack codec.Frame
	var ackErr error
	if sendErr == nil {
		ack, ackErr = s.readACK(s.cfg.GetCommandAckTimeout())
	}
	s.Gate.Release()

	if sendErr != nil || ackErr != nil {
		return // timeouts/drops are tolerated; the next beat retries
	}
	if len(ack.Payload) < 5 {
		return
	}

	workState := WorkState(ack.Payload[0])
	healthWord := HealthWord(binary.LittleEndian.Uint32(ack.Payload[1:5]))
	s.Health.Update(healthWord, workState)

	if s.Health.Fatal() {
		s.raiseFatal(protoerr.NewFatalReason(protoerr.ExitFatalHeartbeat, fmt.Errorf("session: fatal heartbeat, work_state=%d: %w", workState, protoerr.ErrFatalHealth)))
	}
}

// ObserveAbnormalStatusMSG reports an inbound General/cmd-id-7 MSG frame as
// a fatal abnormal-status transition (spec §4.3, §7).
func (s *Session) ObserveAbnormalStatusMSG() {
	s.raiseFatal(protoerr.NewFatalReason(protoerr.ExitAbnormalStatus, fmt.Errorf("session: abnormal status msg: %w", protoerr.ErrFatalHealth)))
}

func (s *Session) raiseFatal(reason *protoerr.FatalReason) {
	select {
	case s.Fatal <- reason:
	default:
		// Already reported; callers drain the channel before the next fatal.
	}
}

// Disconnect waits for the idle gate, sends the disconnect command, expects
// an ACK, closes sockets, and joins the heartbeat task (spec §4.3).
func (s *Session) Disconnect() error {
	if _, err := s.sendAndAwaitACK(codec.CmdDisconnect); err != nil {
		s.emitter.Warnf(s.State.SensorIP.String(), "disconnect ack not received: %v", err)
	}

	if s.cancelHeartbeat != nil {
		s.cancelHeartbeat()
		<-s.heartbeatDone
	}

	s.closeSockets()

	s.State.mu.Lock()
	s.State.Connected = false
	s.State.mu.Unlock()

	s.clock.Sleep(s.cfg.GetSocketSettleDelay())
	return nil
}

// Reboot waits for the idle gate, sends the reboot command, expects an ACK,
// closes sockets, and joins the heartbeat task.
func (s *Session) Reboot() error {
	if _, err := s.sendAndAwaitACK(codec.CmdReboot); err != nil {
		return err
	}

	if s.cancelHeartbeat != nil {
		s.cancelHeartbeat()
		<-s.heartbeatDone
	}
	s.closeSockets()

	s.State.mu.Lock()
	s.State.Connected = false
	s.State.mu.Unlock()

	return nil
}

func (s *Session) closeSockets() {
	if s.DataSocket != nil {
		s.DataSocket.Close()
	}
	if s.CmdSocket != nil {
		s.CmdSocket.Close()
	}
	if s.IMUSocket != nil {
		s.IMUSocket.Close()
	}
}

// Snapshot returns a copy of the session's current state.
func (s *Session) Snapshot() State { return s.State.snapshot() }
