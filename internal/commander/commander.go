// Package commander exposes a typed operation per catalogue command:
// validates arguments, waits for the idle gate, transmits, awaits an ACK
// within the configured deadline, and maps ret_code to success or
// ErrorKind::RejectedByDevice (spec §4.4).
package commander

import (
	"fmt"
	"net"

	"github.com/openlivox/lidarhost/internal/codec"
	"github.com/openlivox/lidarhost/internal/protoerr"
	"github.com/openlivox/lidarhost/internal/session"
)

// Commander issues mutating and telemetry commands against one session.
type Commander struct {
	sess *session.Session
}

// New wraps sess in a Commander.
func New(sess *session.Session) *Commander {
	return &Commander{sess: sess}
}

func (c *Commander) send(frame []byte) (codec.Frame, error) {
	return c.sess.SendAndAwaitACK(frame)
}

// retCodeErr maps a 1-byte ret_code to nil (0) or RejectedByDevice.
func retCodeErr(ack codec.Frame) error {
	if len(ack.Payload) < 1 {
		return fmt.Errorf("commander: ack missing ret_code: %w", protoerr.ErrMalformedFrame)
	}
	if ack.Payload[0] != 0 {
		return fmt.Errorf("commander: rejected, ret_code=%d: %w", ack.Payload[0], protoerr.ErrRejectedByDevice)
	}
	return nil
}

// LidarSpinUp starts the laser (lidar_start).
func (c *Commander) LidarSpinUp() error {
	ack, err := c.send(codec.CmdLidarStart)
	if err != nil {
		return err
	}
	return retCodeErr(ack)
}

// LidarSpinDown enters power-save mode.
func (c *Commander) LidarSpinDown() error {
	ack, err := c.send(codec.CmdLidarPowersave)
	if err != nil {
		return err
	}
	return retCodeErr(ack)
}

// LidarStandBy enters standby mode.
func (c *Commander) LidarStandBy() error {
	ack, err := c.send(codec.CmdLidarStandby)
	if err != nil {
		return err
	}
	return retCodeErr(ack)
}

// DataStart enables point-stream transmission from the sensor.
func (c *Commander) DataStart() error {
	ack, err := c.send(codec.CmdDataStart)
	if err != nil {
		return err
	}
	return retCodeErr(ack)
}

// DataStop disables point-stream transmission.
func (c *Commander) DataStop() error {
	ack, err := c.send(codec.CmdDataStop)
	if err != nil {
		return err
	}
	return retCodeErr(ack)
}

// SetCoordinateSystem selects Cartesian or Spherical point encoding.
func (c *Commander) SetCoordinateSystem(cs codec.CoordinateSystem) error {
	frame, err := codec.CoordinateSystemCommand(cs)
	if err != nil {
		return fmt.Errorf("commander: %w", protoerr.ErrConfiguration)
	}
	ack, err := c.send(frame)
	if err != nil {
		return err
	}
	if err := retCodeErr(ack); err != nil {
		return err
	}
	c.sess.State.SetCoordSystem(cs)
	return nil
}

// SetReturnMode selects single-first, single-strongest, or dual return.
func (c *Commander) SetReturnMode(mode codec.ReturnMode) error {
	frame, err := codec.ReturnModeCommand(mode)
	if err != nil {
		return fmt.Errorf("commander: %w", protoerr.ErrConfiguration)
	}
	ack, err := c.send(frame)
	if err != nil {
		return err
	}
	return retCodeErr(ack)
}

// SetRainFog enables or disables rain/fog suppression mode.
func (c *Commander) SetRainFog(on bool) error {
	ack, err := c.send(codec.RainFogCommand(on))
	if err != nil {
		return err
	}
	return retCodeErr(ack)
}

// SetIMUPush enables or disables IMU packet transmission.
func (c *Commander) SetIMUPush(on bool) error {
	ack, err := c.send(codec.IMUPushCommand(on))
	if err != nil {
		return err
	}
	return retCodeErr(ack)
}

// SetFan enables or disables the sensor's cooling fan.
func (c *Commander) SetFan(on bool) error {
	ack, err := c.send(codec.FanCommand(on))
	if err != nil {
		return err
	}
	return retCodeErr(ack)
}

// SetExtrinsics sets the sensor's mounting offset and rotation. Translation
// is in meters, rotation in degrees (spec §4.4).
func (c *Commander) SetExtrinsics(e codec.Extrinsics) error {
	frame, err := codec.BuildSetExtrinsics(e)
	if err != nil {
		return fmt.Errorf("commander: %w", protoerr.ErrConfiguration)
	}
	ack, err := c.send(frame)
	if err != nil {
		return err
	}
	if err := retCodeErr(ack); err != nil {
		return err
	}
	c.sess.State.SetExtrinsics(e)
	return nil
}

// ReadExtrinsics queries the sensor's currently configured extrinsics
// (supplemented feature, originally openpylivox's readExtrinsic()).
func (c *Commander) ReadExtrinsics() (codec.Extrinsics, error) {
	ack, err := c.send(codec.CmdReadExtrinsic)
	if err != nil {
		return codec.Extrinsics{}, err
	}
	if err := retCodeErr(ack); err != nil {
		return codec.Extrinsics{}, err
	}
	return codec.ParseExtrinsicsResponse(ack.Payload)
}

// SetStaticIP sets a static IP within the sub-range keyed by ipRangeCode.
// On success the sensor requires a power cycle before the new address takes
// effect; the caller's session is no longer valid (spec §4.4).
func (c *Commander) SetStaticIP(ip net.IP, ipRangeCode int) error {
	if err := codec.ValidateStaticIP(ip, ipRangeCode); err != nil {
		return err
	}
	frame, err := codec.BuildSetStaticIP(ip)
	if err != nil {
		return fmt.Errorf("commander: %w", protoerr.ErrConfiguration)
	}
	ack, err := c.send(frame)
	if err != nil {
		return err
	}
	if err := retCodeErr(ack); err != nil {
		return err
	}
	return protoerr.ErrSensorPowerCycleRequired
}

// SetDynamicIP reverts the sensor to DHCP addressing. On success the sensor
// requires a power cycle (spec §4.4).
func (c *Commander) SetDynamicIP() error {
	ack, err := c.send(codec.BuildSetDynamicIP())
	if err != nil {
		return err
	}
	if err := retCodeErr(ack); err != nil {
		return err
	}
	return protoerr.ErrSensorPowerCycleRequired
}

// UpdateUTC sets the sensor's onboard clock. Out-of-range fields clamp to
// safe defaults silently (spec §4.4).
func (c *Commander) UpdateUTC(u codec.UTCUpdate) error {
	frame, err := codec.BuildUpdateUTC(u.Clamp())
	if err != nil {
		return fmt.Errorf("commander: %w", protoerr.ErrConfiguration)
	}
	ack, err := c.send(frame)
	if err != nil {
		return err
	}
	return retCodeErr(ack)
}

// Reboot sends the reboot command and tears down the session.
func (c *Commander) Reboot() error {
	return c.sess.Reboot()
}
