// Package group models the Mid-100 composite sensor unit: three physical
// heads sharing one enclosure and one serial, exposed to callers as a
// homogeneous collection of sessions behind one façade (spec §4.6, Design
// Note "Composite Mid-100"). The L/M/R identity is purely a labelling over
// ip_range_code; there is no parent/child distinction in the wire protocol.
//
// Grounded on the source driver's _mid100_sensors list plus the primary
// sensor (openpylivox.py's saveDataToFile/closeFile/doneCapturing fan-out),
// and on internal/commander's one-session Commander for the per-head
// command path.
package group

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/openlivox/lidarhost/internal/capture"
	"github.com/openlivox/lidarhost/internal/commander"
	"github.com/openlivox/lidarhost/internal/config"
	"github.com/openlivox/lidarhost/internal/discovery"
	"github.com/openlivox/lidarhost/internal/eventsink"
	"github.com/openlivox/lidarhost/internal/lidar/network"
	"github.com/openlivox/lidarhost/internal/protoerr"
	"github.com/openlivox/lidarhost/internal/session"
	"github.com/openlivox/lidarhost/internal/timeutil"
)

// Label identifies a Mid-100 sub-sensor by its ip_range_code, not by any
// parent/child role.
type Label string

const (
	LabelL Label = "L" // ip_range_code 1
	LabelM Label = "M" // ip_range_code 2
	LabelR Label = "R" // ip_range_code 3
)

func labelForRangeCode(code int) (Label, error) {
	switch code {
	case 1:
		return LabelL, nil
	case 2:
		return LabelM, nil
	case 3:
		return LabelR, nil
	default:
		return "", fmt.Errorf("group: unexpected ip_range_code %d: %w", code, protoerr.ErrConfiguration)
	}
}

// member is one labelled sub-sensor: its session, its commander, and its
// capture run, if one is active.
type member struct {
	label Label
	sess  *session.Session
	cmd   *commander.Commander
	run   *capture.Run
}

// Group is a composite handle over a primary session (L) plus up to two
// secondary sessions (M, R). Every fan-out operation below iterates members
// in declaration order: L, then M, then R.
type Group struct {
	cfg     *config.DriverConfig
	emitter *eventsink.Emitter
	members []*member
}

// Connect discovers all three sub-sensors of a composite announcement
// group atomically, binds a session to each in L, M, R order (by
// ip_range_code), and connects them. g.Kind must be discovery.GroupComposite
// with exactly three announcements; any other shape is a caller error.
func Connect(ctx context.Context, factory network.UDPSocketFactory, cfg *config.DriverConfig, clock timeutil.Clock, emitter *eventsink.Emitter, g discovery.Group, computerIP net.IP) (*Group, error) {
	if g.Kind != discovery.GroupComposite || len(g.Announcements) != 3 {
		return nil, fmt.Errorf("group: composite connect requires 3 announcements, got kind=%d len=%d: %w", g.Kind, len(g.Announcements), protoerr.ErrConfiguration)
	}

	ordered := make([]discovery.Announcement, 3)
	for _, ann := range g.Announcements {
		label, err := labelForRangeCode(ann.IPRangeCode)
		if err != nil {
			return nil, err
		}
		ordered[labelIndex(label)] = ann
	}

	grp := &Group{cfg: cfg, emitter: emitter}
	labels := []Label{LabelL, LabelM, LabelR}
	for i, ann := range ordered {
		sess := session.New(factory, cfg, clock, emitter)
		if err := sess.Bind(computerIP, 0, 0, 0); err != nil {
			grp.disconnectAll()
			return nil, fmt.Errorf("group: bind %s sub-sensor: %w", labels[i], err)
		}
		if err := sess.Connect(ctx, net.ParseIP(ann.SensorIP)); err != nil {
			grp.disconnectAll()
			return nil, fmt.Errorf("group: connect %s sub-sensor: %w", labels[i], err)
		}
		// Discovery already supplied the serial, ip_range_code and kind;
		// Connect's own query only populates firmware version, so fill the
		// rest in directly from the announcement that led here.
		sess.State.Serial = ann.Serial
		sess.State.IPRangeCode = ann.IPRangeCode
		sess.State.DeviceKind = ann.Kind()
		grp.members = append(grp.members, &member{
			label: labels[i],
			sess:  sess,
			cmd:   commander.New(sess),
		})
	}
	return grp, nil
}

func labelIndex(l Label) int {
	switch l {
	case LabelL:
		return 0
	case LabelM:
		return 1
	default:
		return 2
	}
}

// Serial returns the primary (L) sub-sensor's serial, copied from its
// discovery announcement during Connect.
func (g *Group) Serial() string {
	if len(g.members) == 0 {
		return ""
	}
	return g.members[0].sess.Snapshot().Serial
}

// Sessions returns the member sessions in L, M, R order, for callers that
// need direct access (e.g. a status dashboard).
func (g *Group) Sessions() []*session.Session {
	out := make([]*session.Session, len(g.members))
	for i, m := range g.members {
		out[i] = m.sess
	}
	return out
}

// forEach applies fn to every member's commander in declaration order,
// joining any errors rather than stopping at the first (every head should
// get the command even if one is unreachable).
func (g *Group) forEach(fn func(*commander.Commander) error) error {
	var errs []error
	for _, m := range g.members {
		if err := fn(m.cmd); err != nil {
			errs = append(errs, fmt.Errorf("group: %s: %w", m.label, err))
		}
	}
	return errors.Join(errs...)
}

// LidarSpinUp starts the laser on every sub-sensor.
func (g *Group) LidarSpinUp() error { return g.forEach((*commander.Commander).LidarSpinUp) }

// LidarSpinDown enters power-save mode on every sub-sensor.
func (g *Group) LidarSpinDown() error { return g.forEach((*commander.Commander).LidarSpinDown) }

// LidarStandBy enters standby mode on every sub-sensor.
func (g *Group) LidarStandBy() error { return g.forEach((*commander.Commander).LidarStandBy) }

// DataStart enables point-stream transmission on every sub-sensor.
func (g *Group) DataStart() error { return g.forEach((*commander.Commander).DataStart) }

// DataStop disables point-stream transmission on every sub-sensor.
func (g *Group) DataStop() error { return g.forEach((*commander.Commander).DataStop) }

// Reboot reboots every sub-sensor and tears down its session.
func (g *Group) Reboot() error { return g.forEach((*commander.Commander).Reboot) }

// Disconnect disconnects every sub-sensor's session in declaration order.
func (g *Group) Disconnect() error {
	var errs []error
	for _, m := range g.members {
		if err := m.sess.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("group: %s disconnect: %w", m.label, err))
		}
	}
	return errors.Join(errs...)
}

func (g *Group) disconnectAll() {
	for _, m := range g.members {
		m.sess.Disconnect()
	}
}

// siblingPath derives the M/R sub-sensor's output path from the primary's
// by suffixing the filename stem (spec §4.6: "_M", "_R"), matching
// openpylivox's saveDataToFile fan-out.
func siblingPath(path string, label Label) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s_%s%s", stem, label, ext)
}

// StartCapture begins a capture run on every sub-sensor: the primary
// writes to path, M and R write to path with a "_M"/"_R" stem suffix
// (spec §4.6).
func (g *Group) StartCapture(ctx context.Context, path string, wait, duration time.Duration, mode capture.Mode) error {
	var errs []error
	for _, m := range g.members {
		p := path
		if m.label != LabelL {
			p = siblingPath(path, m.label)
		}
		run := capture.NewRun(m.sess, g.cfg, g.emitter)
		if err := run.Start(ctx, p, wait, duration, mode); err != nil {
			errs = append(errs, fmt.Errorf("group: %s start capture: %w", m.label, err))
			continue
		}
		m.run = run
	}
	return errors.Join(errs...)
}

// StopCapture stops every sub-sensor's active capture run and returns the
// per-label stats of whichever runs were active.
func (g *Group) StopCapture() (map[Label]capture.Stats, error) {
	out := make(map[Label]capture.Stats, len(g.members))
	var errs []error
	for _, m := range g.members {
		if m.run == nil {
			continue
		}
		stats, err := m.run.Stop()
		out[m.label] = stats
		if err != nil {
			errs = append(errs, fmt.Errorf("group: %s stop capture: %w", m.label, err))
		}
		m.run = nil
	}
	return out, errors.Join(errs...)
}

// AllDoneCapturing reports whether every sub-sensor's capture run has
// either finished or was never started (spec §4.6, source's
// allDoneCapturing/doneCapturing). A run started with indefinite duration
// (duration==0, internally bounded to cfg.GetMaxDurationSeconds()) is not
// treated specially: it counts as not done until that bound passes or it
// is stopped.
func (g *Group) AllDoneCapturing() bool {
	time.Sleep(10 * time.Millisecond) // matches the source's rate-limit against tight polling loops
	for _, m := range g.members {
		if m.run == nil {
			continue
		}
		select {
		case <-m.run.Done():
		default:
			return false
		}
	}
	return true
}
