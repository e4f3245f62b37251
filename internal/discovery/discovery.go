// Package discovery listens for sensor broadcast announcements on
// UDP/55000 and clusters them into atomic or composite (Mid-100) groups.
// Grounded on spec §4.2 and OpenPyLivox's _info()/_reinit() broadcast
// parsing, using the teacher's UDPSocket abstraction
// (internal/lidar/network/udp_interface.go) for testability.
package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/openlivox/lidarhost/internal/codec"
	"github.com/openlivox/lidarhost/internal/lidar/network"
	"github.com/openlivox/lidarhost/internal/protoerr"
)

// ListenPort is the fixed UDP port sensors broadcast announcements to.
const ListenPort = 55000

// Announcement is one parsed broadcast from a single sensor IP.
type Announcement struct {
	SensorIP    string
	Serial      string // 14-character serial, broadcast code minus the trailing ip-range digit and device suffix
	IPRangeCode int    // digit at broadcast-code index 14; labels L/M/R sub-sensors in a composite unit
	DeviceType  byte
}

// Kind renders the announcement's device-type byte as a model name.
func (a Announcement) Kind() string { return codec.DeviceTypeName(a.DeviceType) }

// parseBroadcast decodes a General/MSG/cmd-id-0 frame payload into an
// Announcement. The payload is 16 ASCII bytes of broadcast code followed
// by a 1-byte device-type (OpenPyLivox's _info()).
func parseBroadcast(sensorIP string, payload []byte) (Announcement, error) {
	if len(payload) < 17 {
		return Announcement{}, fmt.Errorf("discovery: broadcast payload too short (%d bytes): %w", len(payload), protoerr.ErrMalformedFrame)
	}
	code := string(payload[0:16])
	if len(code) < 15 {
		return Announcement{}, fmt.Errorf("discovery: broadcast code too short: %w", protoerr.ErrMalformedFrame)
	}
	var ipRangeCode int
	if _, err := fmt.Sscanf(code[14:15], "%d", &ipRangeCode); err != nil {
		return Announcement{}, fmt.Errorf("discovery: bad ip-range-code digit %q: %w", code[14:15], protoerr.ErrMalformedFrame)
	}
	return Announcement{
		SensorIP:    sensorIP,
		Serial:      code[:len(code)-2],
		IPRangeCode: ipRangeCode,
		DeviceType:  payload[16],
	}, nil
}

// Listener binds UDP/55000 and decodes broadcast announcements.
type Listener struct {
	socket  network.UDPSocket
	factory network.UDPSocketFactory
}

// NewListener binds a UDP socket on 0.0.0.0:55000 using factory (pass
// network.NewRealUDPSocketFactory() in production, a
// network.MockUDPSocketFactory in tests).
func NewListener(factory network.UDPSocketFactory) (*Listener, error) {
	socket, err := factory.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: ListenPort})
	if err != nil {
		return nil, fmt.Errorf("discovery: bind udp/%d: %w", ListenPort, protoerr.ErrIOFailure)
	}
	return &Listener{socket: socket, factory: factory}, nil
}

// Close releases the discovery socket.
func (l *Listener) Close() error { return l.socket.Close() }

// Discover collects announcements until scanWindow elapses with no newly
// seen source IP, deduplicating by source IP (spec §4.2). ctx cancellation
// stops collection early.
func (l *Listener) Discover(ctx context.Context, scanWindow time.Duration) ([]Announcement, error) {
	seen := make(map[string]Announcement)
	buf := make([]byte, 1500)

	deadline := time.Now().Add(scanWindow)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return announcementSlice(seen), ctx.Err()
		default:
		}

		if err := l.socket.SetReadDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
			return nil, fmt.Errorf("discovery: set read deadline: %w", err)
		}

		n, addr, err := l.socket.ReadFromUDP(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return announcementSlice(seen), nil
		}

		frame, err := codec.Parse(buf[:n])
		if err != nil {
			continue // malformed frame: drop, do not extend the scan window
		}
		if frame.Type != codec.FrameMSG || frame.CommandSet != codec.CommandSetGeneral || frame.CommandID != 0 {
			continue
		}

		ann, err := parseBroadcast(addr.IP.String(), frame.Payload)
		if err != nil {
			continue
		}

		if _, dup := seen[ann.SensorIP]; !dup {
			deadline = time.Now().Add(scanWindow) // new IP resets the window
		}
		seen[ann.SensorIP] = ann
	}

	return announcementSlice(seen), nil
}

func announcementSlice(seen map[string]Announcement) []Announcement {
	out := make([]Announcement, 0, len(seen))
	for _, a := range seen {
		out = append(out, a)
	}
	return out
}

type timeouter interface {
	Timeout() bool
}

func isTimeout(err error) bool {
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}

// GroupKind classifies a cluster of announcements sharing a serial.
type GroupKind int

const (
	GroupAtomic GroupKind = iota
	GroupComposite
	GroupIndeterminate
)

// Group is a cluster of announcements that share a serial number.
type Group struct {
	Serial        string
	Kind          GroupKind
	Announcements []Announcement
}

// ClassifyGroups clusters announcements by serial: a group of 3 is a
// composite Mid-100, a group of 1 is atomic, a group of 2 is flagged
// indeterminate and skipped by callers (spec §4.2).
func ClassifyGroups(anns []Announcement) []Group {
	bySerial := make(map[string][]Announcement)
	order := make([]string, 0)
	for _, a := range anns {
		if _, ok := bySerial[a.Serial]; !ok {
			order = append(order, a.Serial)
		}
		bySerial[a.Serial] = append(bySerial[a.Serial], a)
	}

	groups := make([]Group, 0, len(order))
	for _, serial := range order {
		members := bySerial[serial]
		kind := GroupAtomic
		switch len(members) {
		case 1:
			kind = GroupAtomic
		case 3:
			kind = GroupComposite
		default:
			kind = GroupIndeterminate
		}
		groups = append(groups, Group{Serial: serial, Kind: kind, Announcements: members})
	}
	return groups
}
