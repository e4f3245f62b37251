package commander

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlivox/lidarhost/internal/codec"
	"github.com/openlivox/lidarhost/internal/config"
	"github.com/openlivox/lidarhost/internal/eventsink"
	"github.com/openlivox/lidarhost/internal/lidar/network"
	"github.com/openlivox/lidarhost/internal/protoerr"
	"github.com/openlivox/lidarhost/internal/session"
	"github.com/openlivox/lidarhost/internal/timeutil"
)

type oneSocketFactory struct{ sock *network.MockUDPSocket }

func (f *oneSocketFactory) ListenUDP(netw string, laddr *net.UDPAddr) (network.UDPSocket, error) {
	return f.sock, nil
}

func newTestCommander(t *testing.T, cmdSocket *network.MockUDPSocket) *Commander {
	t.Helper()
	factory := &oneSocketFactory{sock: cmdSocket}
	sess := session.New(factory, config.EmptyDriverConfig(), timeutil.NewMockClock(time.Unix(0, 0)), eventsink.New(eventsink.Off()))
	require.NoError(t, sess.Bind(net.ParseIP("192.168.1.5"), 0, 0, 0))
	sess.State.SetCoordSystem(codec.CoordinateCartesian)
	return New(sess)
}

func ack(t *testing.T, cmdSet codec.CommandSet, cmdID byte, payload []byte) network.MockUDPPacket {
	t.Helper()
	frame, err := codec.Build(codec.FrameACK, 0, cmdSet, cmdID, payload)
	require.NoError(t, err)
	return network.MockUDPPacket{Data: frame, Addr: &net.UDPAddr{IP: net.ParseIP("192.168.1.100")}}
}

func TestLidarSpinUpAccepted(t *testing.T) {
	sock := network.NewMockUDPSocket([]network.MockUDPPacket{ack(t, codec.CommandSetLidar, 0, []byte{0x00})})
	cmd := newTestCommander(t, sock)
	require.NoError(t, cmd.LidarSpinUp())
}

func TestLidarSpinUpRejected(t *testing.T) {
	sock := network.NewMockUDPSocket([]network.MockUDPPacket{ack(t, codec.CommandSetLidar, 0, []byte{0x01})})
	cmd := newTestCommander(t, sock)
	require.Error(t, cmd.LidarSpinUp())
}

func TestSetStaticIPRejectsOutOfRange(t *testing.T) {
	sock := network.NewMockUDPSocket(nil)
	cmd := newTestCommander(t, sock)
	err := cmd.SetStaticIP(net.ParseIP("192.168.1.9"), 1)
	require.Error(t, err)
	assert.Empty(t, sock.Written)
}

func TestSetStaticIPSucceedsRequiresPowerCycle(t *testing.T) {
	sock := network.NewMockUDPSocket([]network.MockUDPPacket{ack(t, codec.CommandSetGeneral, 0, []byte{0x00})})
	cmd := newTestCommander(t, sock)
	err := cmd.SetStaticIP(net.ParseIP("192.168.1.50"), 1)
	require.Error(t, err)
	require.ErrorIs(t, err, protoerr.ErrSensorPowerCycleRequired)
}

func TestSetExtrinsicsUpdatesState(t *testing.T) {
	sock := network.NewMockUDPSocket([]network.MockUDPPacket{ack(t, codec.CommandSetLidar, 1, []byte{0x00})})
	cmd := newTestCommander(t, sock)
	require.NoError(t, cmd.SetExtrinsics(codec.Extrinsics{X: 1, Y: 2, Z: 3, Roll: 4, Pitch: 5, Yaw: 6}))
}

func TestReadExtrinsicsParsesResponse(t *testing.T) {
	payload := make([]byte, 25)
	// ret_code=0 already zero; fill roll/pitch/yaw/x/y/z via BuildSetExtrinsics-equivalent encoding.
	built, err := codec.BuildSetExtrinsics(codec.Extrinsics{Roll: 1, Pitch: 2, Yaw: 3, X: 1.5, Y: -2.25, Z: 0.001})
	require.NoError(t, err)
	parsed, err := codec.Parse(built)
	require.NoError(t, err)
	copy(payload[1:], parsed.Payload)

	sock := network.NewMockUDPSocket([]network.MockUDPPacket{ack(t, codec.CommandSetLidar, 2, payload)})
	cmd := newTestCommander(t, sock)

	ext, err := cmd.ReadExtrinsics()
	require.NoError(t, err)
	assert.InDelta(t, 1.5, ext.X, 0.001)
	assert.InDelta(t, -2.25, ext.Y, 0.001)
}
