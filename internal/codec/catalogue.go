package codec

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"net"
	"strings"

	"github.com/openlivox/lidarhost/internal/protoerr"
)

// Lifecycle commands have constant payloads and are stored as the exact
// precomputed frames the sensor firmware expects; the hex strings below
// are transcribed bit-for-bit from the _CMD_* constants in OpenPyLivox's
// openpylivox.py so the checksums are guaranteed bit-exact without
// recomputing them at init time. Build/Parse round-trip these identically.
var (
	CmdQuery             = mustHex("AA010F0000000004D70002AE8A8A7B")
	CmdHeartbeat         = mustHex("AA010F0000000004D7000338BA8D0C")
	CmdDisconnect        = mustHex("AA010F0000000004D70006B74EE77C")
	CmdReadExtrinsic     = mustHex("AA010F0000000004D70102EFBB9162")
	CmdGetFan            = mustHex("AA010F0000000004D701054C2EF5FC")
	CmdGetIMU            = mustHex("AA010F0000000004D70109676243F5")
	CmdRainFogOn         = mustHex("AA011000000000B809010301D271D049")
	CmdRainFogOff        = mustHex("AA011000000000B8090103004441D73E")
	CmdLidarStart        = mustHex("AA011000000000B8090100011122FD62")
	CmdLidarPowersave    = mustHex("AA011000000000B809010002AB73F4FB")
	CmdLidarStandby      = mustHex("AA011000000000B8090100033D43F38C")
	CmdDataStop          = mustHex("AA011000000000B809000400B4BD5470")
	CmdDataStart         = mustHex("AA011000000000B809000401228D5307")
	CmdCartesianCS       = mustHex("AA011000000000B809000500F58C4F69")
	CmdSphericalCS       = mustHex("AA011000000000B80900050163BC481E")
	CmdFanOn             = mustHex("AA011000000000B80901040115E79106")
	CmdFanOff            = mustHex("AA011000000000B80901040083D79671")
	CmdLidarSingle1st    = mustHex("AA011000000000B80901060001B5A043")
	CmdLidarSingleStrong = mustHex("AA011000000000B8090106019785A734")
	CmdLidarDual         = mustHex("AA011000000000B8090106022DD4AEAD")
	CmdIMUDataOn         = mustHex("AA011000000000B80901080119A824AA")
	CmdIMUDataOff        = mustHex("AA011000000000B8090108008F9823DD")
	CmdReboot            = mustHex("AA011100000000FC02000A000004477736")
	CmdDynamicIP         = mustHex("AA011400000000A8240008000000000068F8DD50")
	CmdWriteZeroEO       = mustHex("AA012700000000B5ED01010000000000000000000000000000000000000000000000004CDEA4E7")
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic("codec: bad catalogue hex constant: " + err.Error())
	}
	return b
}

// ReturnMode selects the sensor's point-return behaviour.
type ReturnMode int

const (
	ReturnSingleFirst ReturnMode = iota
	ReturnSingleStrongest
	ReturnDual
)

// CoordinateSystem selects Cartesian or Spherical point encoding.
type CoordinateSystem int

const (
	CoordinateCartesian CoordinateSystem = iota
	CoordinateSpherical
)

// BuildConnect constructs the parameterised handshake payload (General,
// cmd-id 1): computer IP followed by the three host-side ports, each
// little-endian. Grounded on openpylivox.py's connect(): cmdString =
// "AA011900000000DC580001" + IPhex + dataHex + cmdHex + imuHex.
func BuildConnect(computerIP net.IP, dataPort, cmdPort, imuPort uint16) ([]byte, error) {
	ip4 := computerIP.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("codec: computer IP %q is not IPv4: %w", computerIP, protoerr.ErrConfiguration)
	}

	payload := make([]byte, 10)
	copy(payload[0:4], ip4)
	binary.LittleEndian.PutUint16(payload[4:6], dataPort)
	binary.LittleEndian.PutUint16(payload[6:8], cmdPort)
	binary.LittleEndian.PutUint16(payload[8:10], imuPort)

	return Build(FrameCMD, 0, CommandSetGeneral, 1, payload)
}

// staticIPRanges maps ip_range_code to the sensor-defined sub-range that a
// new static address must fall within (spec §4.4).
var staticIPRanges = map[int][2]byte{
	1: {11, 80},
	2: {81, 150},
	3: {151, 220},
}

// ValidateStaticIP checks that ip's last octet falls in the sub-range the
// sensor's ip_range_code permits. It performs no I/O; a ConfigurationError
// here means BuildSetStaticIP/the commander must not send anything.
func ValidateStaticIP(ip net.IP, ipRangeCode int) error {
	ip4 := ip.To4()
	if ip4 == nil {
		return fmt.Errorf("codec: static IP %q is not IPv4: %w", ip, protoerr.ErrConfiguration)
	}
	bounds, ok := staticIPRanges[ipRangeCode]
	if !ok {
		return fmt.Errorf("codec: unknown ip_range_code %d: %w", ipRangeCode, protoerr.ErrConfiguration)
	}
	last := ip4[3]
	if last < bounds[0] || last > bounds[1] {
		return fmt.Errorf("codec: static IP %q last octet %d outside range [%d,%d] for ip_range_code %d: %w",
			ip, last, bounds[0], bounds[1], ipRangeCode, protoerr.ErrRejectedByDevice)
	}
	return nil
}

// BuildSetStaticIP constructs the static-IP command (General, cmd-id 8,
// static flag 01). Callers must call ValidateStaticIP first.
func BuildSetStaticIP(ip net.IP) ([]byte, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("codec: static IP %q is not IPv4: %w", ip, protoerr.ErrConfiguration)
	}
	payload := append([]byte{0x01}, ip4...)
	return Build(FrameCMD, 0, CommandSetGeneral, 8, payload)
}

// BuildSetDynamicIP returns the fixed dynamic-IP (DHCP) command.
func BuildSetDynamicIP() []byte { return CmdDynamicIP }

// Extrinsics holds the sensor's installed-orientation calibration.
type Extrinsics struct {
	X, Y, Z          float64 // meters, quantised to millimeters on the wire
	Roll, Pitch, Yaw float64 // degrees
}

// BuildSetExtrinsics constructs the Lidar/cmd-id 1 set-extrinsics payload:
// roll, pitch, yaw as little-endian float32, then x, y, z quantised to
// millimeters as little-endian int32. Order matches openpylivox.py's
// setExtrinsicTo byte layout exactly (roll/pitch/yaw first, then x/y/z).
func BuildSetExtrinsics(e Extrinsics) ([]byte, error) {
	payload := make([]byte, 24)
	binary.LittleEndian.PutUint32(payload[0:4], math.Float32bits(float32(e.Roll)))
	binary.LittleEndian.PutUint32(payload[4:8], math.Float32bits(float32(e.Pitch)))
	binary.LittleEndian.PutUint32(payload[8:12], math.Float32bits(float32(e.Yaw)))
	binary.LittleEndian.PutUint32(payload[12:16], uint32(int32(math.Floor(e.X*1000))))
	binary.LittleEndian.PutUint32(payload[16:20], uint32(int32(math.Floor(e.Y*1000))))
	binary.LittleEndian.PutUint32(payload[20:24], uint32(int32(math.Floor(e.Z*1000))))
	return Build(FrameCMD, 0, CommandSetLidar, 1, payload)
}

// UTCUpdate is the clamped argument set for BuildUpdateUTC.
type UTCUpdate struct {
	Year, Month, Day, Hour int
	Microseconds           int64 // 0..3.6e9, microseconds into the hour
}

// Clamp applies the source's silent out-of-range clamping (spec §4.4):
// year < 2000 or > 2255 clamps to 2000 (wire field is a single byte,
// years-since-2000); month/day/hour/microsecond invalid values reset to
// their safe defaults rather than erroring.
func (u UTCUpdate) Clamp() UTCUpdate {
	c := u
	if c.Year < 2000 || c.Year > 2255 {
		c.Year = 2000
	}
	if c.Month < 1 || c.Month > 12 {
		c.Month = 1
	}
	if c.Day < 1 || c.Day > 31 {
		c.Day = 1
	}
	if c.Hour < 0 || c.Hour > 23 {
		c.Hour = 0
	}
	if c.Microseconds < 0 || c.Microseconds > 60*60*1000000 {
		c.Microseconds = 0
	}
	return c
}

// BuildUpdateUTC constructs the Lidar/cmd-id 10 UTC-update payload: year
// (since 2000), month, day, hour as single bytes, then microseconds-into-
// the-hour as a little-endian uint32.
func BuildUpdateUTC(u UTCUpdate) ([]byte, error) {
	c := u.Clamp()
	payload := make([]byte, 8)
	payload[0] = byte(c.Year - 2000)
	payload[1] = byte(c.Month)
	payload[2] = byte(c.Day)
	payload[3] = byte(c.Hour)
	binary.LittleEndian.PutUint32(payload[4:8], uint32(c.Microseconds))
	return Build(FrameCMD, 0, CommandSetLidar, 10, payload)
}

// ParseExtrinsicsResponse decodes a read-extrinsics ACK payload (Lidar,
// cmd-id 2): ret_code(1) + roll,pitch,yaw f32 LE (degrees) + x,y,z i32 LE
// (millimeters). Callers must check the ret_code byte before calling this.
// Grounded on openpylivox.py's readExtrinsic() byte offsets.
func ParseExtrinsicsResponse(payload []byte) (Extrinsics, error) {
	if len(payload) < 25 {
		return Extrinsics{}, fmt.Errorf("codec: extrinsics response too short (%d bytes): %w", len(payload), protoerr.ErrMalformedFrame)
	}
	roll := math.Float32frombits(binary.LittleEndian.Uint32(payload[1:5]))
	pitch := math.Float32frombits(binary.LittleEndian.Uint32(payload[5:9]))
	yaw := math.Float32frombits(binary.LittleEndian.Uint32(payload[9:13]))
	x := int32(binary.LittleEndian.Uint32(payload[13:17]))
	y := int32(binary.LittleEndian.Uint32(payload[17:21]))
	z := int32(binary.LittleEndian.Uint32(payload[21:25]))
	return Extrinsics{
		X: float64(x) / 1000, Y: float64(y) / 1000, Z: float64(z) / 1000,
		Roll: float64(roll), Pitch: float64(pitch), Yaw: float64(yaw),
	}, nil
}

// ReturnModeCommand maps a ReturnMode to its precomputed fixed frame.
func ReturnModeCommand(mode ReturnMode) ([]byte, error) {
	switch mode {
	case ReturnSingleFirst:
		return CmdLidarSingle1st, nil
	case ReturnSingleStrongest:
		return CmdLidarSingleStrong, nil
	case ReturnDual:
		return CmdLidarDual, nil
	default:
		return nil, fmt.Errorf("codec: unknown return mode %d: %w", mode, protoerr.ErrConfiguration)
	}
}

// CoordinateSystemCommand maps a CoordinateSystem to its precomputed frame.
func CoordinateSystemCommand(cs CoordinateSystem) ([]byte, error) {
	switch cs {
	case CoordinateCartesian:
		return CmdCartesianCS, nil
	case CoordinateSpherical:
		return CmdSphericalCS, nil
	default:
		return nil, fmt.Errorf("codec: unknown coordinate system %d: %w", cs, protoerr.ErrConfiguration)
	}
}

// RainFogCommand maps a boolean to the precomputed rain/fog-suppression
// frame.
func RainFogCommand(on bool) []byte {
	if on {
		return CmdRainFogOn
	}
	return CmdRainFogOff
}

// FanCommand maps a boolean to the precomputed fan frame.
func FanCommand(on bool) []byte {
	if on {
		return CmdFanOn
	}
	return CmdFanOff
}

// IMUPushCommand maps a boolean to the precomputed IMU-push frame.
func IMUPushCommand(on bool) []byte {
	if on {
		return CmdIMUDataOn
	}
	return CmdIMUDataOff
}

// DeviceTypeName renders the one-byte device-type code from a discovery
// broadcast into its model name.
func DeviceTypeName(deviceType byte) string {
	switch deviceType {
	case 0:
		return "Hub"
	case 1:
		return "Mid-40"
	case 2:
		return "Tele-15"
	case 3:
		return "Horizon"
	default:
		return "Unknown"
	}
}

// FirmwareType classifies a firmware-version string into the single/dual/
// triple return family that drives timestamp-delta and duration-
// compensation constants (glossary: "Firmware-type").
type FirmwareType int

const (
	FirmwareSingleReturn FirmwareType = 1
	FirmwareDualReturn   FirmwareType = 2
	FirmwareTripleReturn FirmwareType = 3
)

// ClassifyFirmware derives a FirmwareType from a dotted firmware version
// string such as "03.08.0000". The leading component distinguishes the
// return-count family in the source implementation's sensor table.
func ClassifyFirmware(version string) FirmwareType {
	parts := strings.SplitN(version, ".", 2)
	if len(parts) == 0 {
		return FirmwareSingleReturn
	}
	switch parts[0] {
	case "03":
		return FirmwareTripleReturn
	case "02":
		return FirmwareDualReturn
	default:
		return FirmwareSingleReturn
	}
}
