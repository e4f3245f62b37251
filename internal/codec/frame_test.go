package codec

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC16Fixture(t *testing.T) {
	// spec §8: in the fixture "AA010F0000000004D7", the CRC-16 of the first
	// 7 bytes ("AA010F00000000") must equal the value stored at bytes 7-8
	// (0x04D7, little-endian) of every General-command-set lifecycle frame
	// with this length.
	header := mustHex("AA010F00000000")
	require.Equal(t, 7, len(header))

	got := CRC16(header)
	want := binary.LittleEndian.Uint16(mustHex("04D7"))
	assert.Equal(t, want, got)
}

func TestCRC32AgainstCatalogue(t *testing.T) {
	for name, frame := range map[string][]byte{
		"query":     CmdQuery,
		"heartbeat": CmdHeartbeat,
		"disconnect": CmdDisconnect,
	} {
		t.Run(name, func(t *testing.T) {
			body := frame[:len(frame)-4]
			stored := binary.LittleEndian.Uint32(frame[len(frame)-4:])
			assert.Equal(t, stored, CRC32(body), "crc32 mismatch for %s", name)
		})
	}
}

func TestBuildParseRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		ft      FrameType
		cmdSet  CommandSet
		cmdID   byte
		payload []byte
	}{
		{"empty payload", FrameCMD, CommandSetGeneral, 3, nil},
		{"short payload", FrameACK, CommandSetLidar, 1, []byte{0x00, 0x01, 0x02}},
		{"max payload", FrameMSG, CommandSetHub, 255, make([]byte, MaxPayloadLen)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			built, err := Build(tc.ft, 0x1234, tc.cmdSet, tc.cmdID, tc.payload)
			require.NoError(t, err)

			parsed, err := Parse(built)
			require.NoError(t, err)

			assert.Equal(t, tc.ft, parsed.Type)
			assert.Equal(t, tc.cmdSet, parsed.CommandSet)
			assert.Equal(t, tc.cmdID, parsed.CommandID)
			if diff := cmp.Diff(tc.payload, parsed.Payload); diff != "" && len(tc.payload) > 0 {
				t.Errorf("payload mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildRejectsOversizedPayload(t *testing.T) {
	_, err := Build(FrameCMD, 0, CommandSetGeneral, 1, make([]byte, MaxPayloadLen+1))
	require.Error(t, err)
}

func TestParseRejectsSingleBitFlips(t *testing.T) {
	built, err := Build(FrameCMD, 0x0102, CommandSetLidar, 7, []byte("hello world"))
	require.NoError(t, err)

	for byteIdx := range built {
		for bit := 0; bit < 8; bit++ {
			flipped := append([]byte(nil), built...)
			flipped[byteIdx] ^= 1 << bit

			_, err := Parse(flipped)
			assert.Error(t, err, "expected malformed frame at byte %d bit %d", byteIdx, bit)
		}
	}
}

func TestParseRejectsShortInput(t *testing.T) {
	_, err := Parse([]byte{0xAA, 0x01})
	require.Error(t, err)
}

func TestBuildConnectPayload(t *testing.T) {
	built, err := BuildConnect(net.ParseIP("192.168.1.5"), 50000, 50001, 50002)
	require.NoError(t, err)

	parsed, err := Parse(built)
	require.NoError(t, err)

	assert.Equal(t, CommandSetGeneral, parsed.CommandSet)
	assert.Equal(t, byte(1), parsed.CommandID)
	require.Len(t, parsed.Payload, 10)
	assert.Equal(t, []byte{192, 168, 1, 5}, parsed.Payload[0:4])
	assert.Equal(t, uint16(50000), binary.LittleEndian.Uint16(parsed.Payload[4:6]))
	assert.Equal(t, uint16(50001), binary.LittleEndian.Uint16(parsed.Payload[6:8]))
	assert.Equal(t, uint16(50002), binary.LittleEndian.Uint16(parsed.Payload[8:10]))
}

func TestValidateStaticIP(t *testing.T) {
	cases := []struct {
		name        string
		ip          string
		ipRangeCode int
		wantErr     bool
	}{
		{"in range code 1", "192.168.1.50", 1, false},
		{"below range code 1", "192.168.1.9", 1, true},
		{"above range code 1", "192.168.1.90", 1, true},
		{"in range code 2", "192.168.1.100", 2, false},
		{"in range code 3", "192.168.1.200", 3, false},
		{"unknown code", "192.168.1.50", 9, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateStaticIP(net.ParseIP(tc.ip), tc.ipRangeCode)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUTCUpdateClamp(t *testing.T) {
	u := UTCUpdate{Year: 1999, Month: 13, Day: 0, Hour: 99, Microseconds: -1}
	c := u.Clamp()
	assert.Equal(t, 2000, c.Year)
	assert.Equal(t, 1, c.Month)
	assert.Equal(t, 1, c.Day)
	assert.Equal(t, 0, c.Hour)
	assert.Equal(t, int64(0), c.Microseconds)

	valid := UTCUpdate{Year: 2024, Month: 6, Day: 15, Hour: 10, Microseconds: 5000}
	assert.Equal(t, valid, valid.Clamp())
}

func TestBuildSetExtrinsicsLayout(t *testing.T) {
	built, err := BuildSetExtrinsics(Extrinsics{X: 1.5, Y: -2.25, Z: 0.001, Roll: 1, Pitch: 2, Yaw: 3})
	require.NoError(t, err)

	parsed, err := Parse(built)
	require.NoError(t, err)
	assert.Equal(t, CommandSetLidar, parsed.CommandSet)
	assert.Equal(t, byte(1), parsed.CommandID)
	require.Len(t, parsed.Payload, 24)
}

func TestClassifyFirmware(t *testing.T) {
	assert.Equal(t, FirmwareTripleReturn, ClassifyFirmware("03.08.0000"))
	assert.Equal(t, FirmwareDualReturn, ClassifyFirmware("02.03.0000"))
	assert.Equal(t, FirmwareSingleReturn, ClassifyFirmware("01.01.0000"))
}
