package session

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlivox/lidarhost/internal/codec"
	"github.com/openlivox/lidarhost/internal/config"
	"github.com/openlivox/lidarhost/internal/eventsink"
	"github.com/openlivox/lidarhost/internal/lidar/network"
	"github.com/openlivox/lidarhost/internal/timeutil"
)

// sequencedFactory hands out a distinct mock socket per ListenUDP call, in
// the order Bind opens them (data, command, imu).
type sequencedFactory struct {
	sockets []*network.MockUDPSocket
	next    int
}

func (f *sequencedFactory) ListenUDP(netw string, laddr *net.UDPAddr) (network.UDPSocket, error) {
	sock := f.sockets[f.next]
	f.next++
	return sock, nil
}

func newTestSession(t *testing.T, cmdSocket *network.MockUDPSocket) (*Session, *timeutil.MockClock) {
	t.Helper()
	factory := &sequencedFactory{sockets: []*network.MockUDPSocket{
		network.NewMockUDPSocket(nil),
		cmdSocket,
		network.NewMockUDPSocket(nil),
	}}
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	cfg := config.EmptyDriverConfig()
	sess := New(factory, cfg, clock, eventsink.New(eventsink.Off()))

	require.NoError(t, sess.Bind(net.ParseIP("192.168.1.5"), 0, 0, 0))
	return sess, clock
}

func ackFrame(t *testing.T, cmdID byte, payload []byte) []byte {
	t.Helper()
	frame, err := codec.Build(codec.FrameACK, 0, codec.CommandSetGeneral, cmdID, payload)
	require.NoError(t, err)
	return frame
}

func TestConnectSuccess(t *testing.T) {
	ack := ackFrame(t, 1, []byte{0x00, 0x01, 0x02, 0x00, 0x00})
	cmdSocket := network.NewMockUDPSocket([]network.MockUDPPacket{
		{Data: ack, Addr: &net.UDPAddr{IP: net.ParseIP("192.168.1.100"), Port: 65000}},
		{Data: ackFrame(t, 0, []byte{0x00, 0x01, 0x02, 0x00, 0x00}), Addr: &net.UDPAddr{IP: net.ParseIP("192.168.1.100"), Port: 65000}},
	})
	sess, _ := newTestSession(t, cmdSocket)

	err := sess.Connect(context.Background(), net.ParseIP("192.168.1.100"))
	require.NoError(t, err)

	snap := sess.Snapshot()
	assert.True(t, snap.Connected)
	assert.Equal(t, "01.02.0000", snap.FirmwareVersion)

	require.Len(t, cmdSocket.Written, 2)
	assert.Equal(t, byte(1), cmdSocket.Written[0].Data[10]) // connect is General/cmd-id-1
}

func TestConnectRejectedByDevice(t *testing.T) {
	ack := ackFrame(t, 1, []byte{0x01})
	cmdSocket := network.NewMockUDPSocket([]network.MockUDPPacket{
		{Data: ack, Addr: &net.UDPAddr{IP: net.ParseIP("192.168.1.100")}},
	})
	sess, _ := newTestSession(t, cmdSocket)

	err := sess.Connect(context.Background(), net.ParseIP("192.168.1.100"))
	require.Error(t, err)
	assert.False(t, sess.Snapshot().Connected)
}

func TestConnectTimesOutWithoutAck(t *testing.T) {
	cmdSocket := network.NewMockUDPSocket(nil)
	sess, _ := newTestSession(t, cmdSocket)

	err := sess.Connect(context.Background(), net.ParseIP("192.168.1.100"))
	require.Error(t, err)
}

func TestHeartbeatFatalTransitionRaisesFatal(t *testing.T) {
	healthWord := make([]byte, 4)
	binary.LittleEndian.PutUint32(healthWord, 2<<30) // aggregate system = error
	hbAck := ackFrame(t, 3, append([]byte{byte(WorkStateNormal)}, healthWord...))

	cmdSocket := network.NewMockUDPSocket([]network.MockUDPPacket{
		{Data: hbAck, Addr: &net.UDPAddr{IP: net.ParseIP("192.168.1.100")}},
	})
	sess, _ := newTestSession(t, cmdSocket)
	sess.State.mu.Lock()
	sess.State.SensorIP = net.ParseIP("192.168.1.100")
	sess.State.mu.Unlock()

	sess.beat()

	select {
	case reason := <-sess.Fatal:
		assert.Equal(t, 0, int(reason.Code))
	default:
		t.Fatal("expected a fatal reason to be raised")
	}
}

func TestHeartbeatNormalDoesNotRaiseFatal(t *testing.T) {
	hbAck := ackFrame(t, 3, append([]byte{byte(WorkStateNormal)}, 0, 0, 0, 0))
	cmdSocket := network.NewMockUDPSocket([]network.MockUDPPacket{
		{Data: hbAck, Addr: &net.UDPAddr{IP: net.ParseIP("192.168.1.100")}},
	})
	sess, _ := newTestSession(t, cmdSocket)
	sess.State.mu.Lock()
	sess.State.SensorIP = net.ParseIP("192.168.1.100")
	sess.State.mu.Unlock()

	sess.beat()

	select {
	case <-sess.Fatal:
		t.Fatal("unexpected fatal reason")
	default:
	}
}

func TestIdleGateTryAcquireAndRelease(t *testing.T) {
	g := NewIdleGate()
	require.True(t, g.TryAcquire())
	assert.False(t, g.TryAcquire())
	g.Release()
	assert.True(t, g.TryAcquire())
}

func TestIdleGateAcquireTimesOut(t *testing.T) {
	g := NewIdleGate()
	require.True(t, g.TryAcquire())

	err := g.Acquire(context.Background(), 20*time.Millisecond)
	require.Error(t, err)
}

func TestHealthWordDecode(t *testing.T) {
	var w HealthWord
	w |= 1 << 0  // temperature warn
	w |= 1 << 9  // PPS present
	w |= 2 << 30 // system error (binary 10 at bits [30..32))

	assert.Equal(t, StatusWarn, w.Temperature())
	assert.True(t, w.PPSPresent())
	assert.Equal(t, StatusError, w.System())
	assert.True(t, w.Fatal())
}
