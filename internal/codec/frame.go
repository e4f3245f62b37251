// Package codec implements the sensor's command/ack/message wire framing:
// building outbound frames with correct CRC-16/CRC-32 checksums, parsing
// and validating inbound frames, and the fixed command catalogue (see
// catalogue.go). Grounded on spec §4.1/§6 and the frame layout reverse
// engineered from ryan-brazeal-ufl/OpenPyLivox's openpylivox.py (_parseResp,
// the _CMD_* byte constants, _crc16/_crc32).
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/openlivox/lidarhost/internal/protoerr"
)

// FrameType distinguishes a command request, its acknowledgement, or an
// unsolicited message from the sensor.
type FrameType byte

const (
	FrameCMD FrameType = 0
	FrameACK FrameType = 1
	FrameMSG FrameType = 2
)

// CommandSet partitions command IDs into the three namespaces the protocol
// defines.
type CommandSet byte

const (
	CommandSetGeneral CommandSet = 0
	CommandSetLidar   CommandSet = 1
	CommandSetHub     CommandSet = 2
)

const (
	startOfFrame  byte = 0xAA
	frameVersion  byte = 1
	maxFrameLen        = 1400
	headerLen          = 11 // SOF..cmd-id inclusive
	crc32Len           = 4
	minFrameLen        = headerLen + crc32Len
	// MaxPayloadLen is the largest payload Build accepts: total frame
	// length is capped at 1400 and the framing overhead is headerLen (11,
	// which already includes the 2-byte crc16) plus the 4-byte crc32, so
	// 1385 bytes.
	MaxPayloadLen = maxFrameLen - headerLen - crc32Len
)

// Frame is the decoded representation of a single command/ack/message unit.
type Frame struct {
	Type       FrameType
	Sequence   uint16
	CommandSet CommandSet
	CommandID  byte
	Payload    []byte
}

// Build serialises a Frame into its wire representation: SOF, version,
// length, frame-type, sequence, CRC-16 over bytes [0,7), cmd-set, cmd-id,
// payload, CRC-32 over everything preceding it.
func Build(frameType FrameType, sequence uint16, cmdSet CommandSet, cmdID byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("codec: payload length %d exceeds max %d: %w", len(payload), MaxPayloadLen, protoerr.ErrConfiguration)
	}

	total := headerLen + len(payload) + crc32Len
	buf := make([]byte, total)

	buf[0] = startOfFrame
	buf[1] = frameVersion
	binary.LittleEndian.PutUint16(buf[2:4], uint16(total))
	buf[4] = byte(frameType)
	binary.LittleEndian.PutUint16(buf[5:7], sequence)

	crc16 := CRC16(buf[0:7])
	binary.LittleEndian.PutUint16(buf[7:9], crc16)

	buf[9] = byte(cmdSet)
	buf[10] = cmdID
	copy(buf[11:], payload)

	crc32 := CRC32(buf[0 : total-crc32Len])
	binary.LittleEndian.PutUint32(buf[total-crc32Len:], crc32)

	return buf, nil
}

// Parse validates and decodes a received frame. Checksum mismatches and
// structural invariant violations are non-fatal: callers drop the frame
// and bump an anomaly counter rather than propagating an error upward as a
// fatal condition, per spec §4.1/§7.
func Parse(data []byte) (Frame, error) {
	if len(data) < minFrameLen {
		return Frame{}, fmt.Errorf("codec: frame too short (%d bytes): %w", len(data), protoerr.ErrMalformedFrame)
	}

	crc16Stored := binary.LittleEndian.Uint16(data[7:9])
	if CRC16(data[0:7]) != crc16Stored {
		return Frame{}, fmt.Errorf("codec: crc16 mismatch: %w", protoerr.ErrMalformedFrame)
	}

	crc32Stored := binary.LittleEndian.Uint32(data[len(data)-crc32Len:])
	if CRC32(data[0:len(data)-crc32Len]) != crc32Stored {
		return Frame{}, fmt.Errorf("codec: crc32 mismatch: %w", protoerr.ErrMalformedFrame)
	}

	if data[0] != startOfFrame {
		return Frame{}, fmt.Errorf("codec: bad start-of-frame byte 0x%02x: %w", data[0], protoerr.ErrMalformedFrame)
	}
	if data[1] != frameVersion {
		return Frame{}, fmt.Errorf("codec: unsupported frame version %d: %w", data[1], protoerr.ErrMalformedFrame)
	}

	length := binary.LittleEndian.Uint16(data[2:4])
	if int(length) != len(data) || length > maxFrameLen {
		return Frame{}, fmt.Errorf("codec: bad frame length %d (have %d bytes): %w", length, len(data), protoerr.ErrMalformedFrame)
	}

	frameType := FrameType(data[4])
	if frameType != FrameCMD && frameType != FrameACK && frameType != FrameMSG {
		return Frame{}, fmt.Errorf("codec: unknown frame type %d: %w", frameType, protoerr.ErrMalformedFrame)
	}

	cmdSet := CommandSet(data[9])
	if cmdSet != CommandSetGeneral && cmdSet != CommandSetLidar && cmdSet != CommandSetHub {
		return Frame{}, fmt.Errorf("codec: unknown command set %d: %w", cmdSet, protoerr.ErrMalformedFrame)
	}

	payload := make([]byte, len(data)-headerLen-crc32Len)
	copy(payload, data[headerLen:len(data)-crc32Len])

	return Frame{
		Type:       frameType,
		Sequence:   binary.LittleEndian.Uint16(data[5:7]),
		CommandSet: cmdSet,
		CommandID:  data[10],
		Payload:    payload,
	}, nil
}
