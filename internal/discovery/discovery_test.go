package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlivox/lidarhost/internal/codec"
	"github.com/openlivox/lidarhost/internal/lidar/network"
)

// broadcastCode builds the 16-byte ASCII broadcast code: a 14-character
// serial, the ip-range-code digit, and a trailing reserved character.
func broadcastCode(serial14 string, ipRangeDigit byte) string {
	if len(serial14) != 14 {
		panic("serial must be 14 characters")
	}
	return serial14 + string(ipRangeDigit) + "X"
}

func broadcastFrame(t *testing.T, serial14 string, ipRangeDigit byte, deviceType byte) []byte {
	t.Helper()
	code := broadcastCode(serial14, ipRangeDigit)
	require.Len(t, code, 16)
	payload := append([]byte(code), deviceType)
	frame, err := codec.Build(codec.FrameMSG, 0, codec.CommandSetGeneral, 0, payload)
	require.NoError(t, err)
	return frame
}

func TestParseBroadcast(t *testing.T) {
	code := broadcastCode("3GGDJ6K0010011", '1')
	payload := append([]byte(code), 1) // device type Mid-40

	ann, err := parseBroadcast("192.168.1.12", payload)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.12", ann.SensorIP)
	assert.Equal(t, "3GGDJ6K0010011", ann.Serial)
	assert.Equal(t, 1, ann.IPRangeCode)
	assert.Equal(t, "Mid-40", ann.Kind())
}

func TestParseBroadcastRejectsShortPayload(t *testing.T) {
	_, err := parseBroadcast("192.168.1.12", []byte{0x01, 0x02})
	require.Error(t, err)
}

func TestDiscoverCollectsUntilWindowExpiresWithNoNewIP(t *testing.T) {
	frame1 := broadcastFrame(t, "3GGDJ6K0010A01", '1', 1)
	frame2 := broadcastFrame(t, "3GGDJ6K0020B02", '1', 3)

	sock := network.NewMockUDPSocket([]network.MockUDPPacket{
		{Data: frame1, Addr: &net.UDPAddr{IP: net.ParseIP("192.168.1.10")}},
		{Data: frame2, Addr: &net.UDPAddr{IP: net.ParseIP("192.168.1.11")}},
	})
	factory := network.NewMockUDPSocketFactory(sock)

	l, err := NewListener(factory)
	require.NoError(t, err)
	defer l.Close()

	anns, err := l.Discover(context.Background(), 120*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, anns, 2)

	byIP := make(map[string]Announcement)
	for _, a := range anns {
		byIP[a.SensorIP] = a
	}
	assert.Equal(t, "Mid-40", byIP["192.168.1.10"].Kind())
	assert.Equal(t, "Horizon", byIP["192.168.1.11"].Kind())
}

func TestDiscoverHonorsContextCancellation(t *testing.T) {
	sock := network.NewMockUDPSocket(nil)
	factory := network.NewMockUDPSocketFactory(sock)

	l, err := NewListener(factory)
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	anns, err := l.Discover(ctx, time.Second)
	require.Error(t, err)
	assert.Empty(t, anns)
}

func TestDiscoverDropsMalformedFrames(t *testing.T) {
	sock := network.NewMockUDPSocket([]network.MockUDPPacket{
		{Data: []byte{0xAA, 0x01}, Addr: &net.UDPAddr{IP: net.ParseIP("192.168.1.10")}},
	})
	factory := network.NewMockUDPSocketFactory(sock)

	l, err := NewListener(factory)
	require.NoError(t, err)
	defer l.Close()

	anns, err := l.Discover(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, anns)
}

func TestClassifyGroupsAtomicCompositeIndeterminate(t *testing.T) {
	anns := []Announcement{
		{SensorIP: "192.168.1.10", Serial: "ATOMIC0000001", IPRangeCode: 1},

		{SensorIP: "192.168.1.20", Serial: "MID100000001", IPRangeCode: 1},
		{SensorIP: "192.168.1.21", Serial: "MID100000001", IPRangeCode: 2},
		{SensorIP: "192.168.1.22", Serial: "MID100000001", IPRangeCode: 3},

		{SensorIP: "192.168.1.30", Serial: "PARTIAL00001", IPRangeCode: 1},
		{SensorIP: "192.168.1.31", Serial: "PARTIAL00001", IPRangeCode: 2},
	}

	groups := ClassifyGroups(anns)
	require.Len(t, groups, 3)

	byKind := make(map[GroupKind]int)
	for _, g := range groups {
		byKind[g.Kind]++
	}
	assert.Equal(t, 1, byKind[GroupAtomic])
	assert.Equal(t, 1, byKind[GroupComposite])
	assert.Equal(t, 1, byKind[GroupIndeterminate])
}
