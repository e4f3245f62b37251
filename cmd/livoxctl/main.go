// Command livoxctl discovers Livox sensors on the local network, connects
// to the first atomic or composite (Mid-100) unit found, optionally runs a
// timed capture, and serves a status dashboard for the life of the
// process — the host-side driver entry point (spec §4), grounded on
// cmd/lidar/lidar.go's flag/signal.NotifyContext/sync.WaitGroup shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/openlivox/lidarhost/internal/capture"
	"github.com/openlivox/lidarhost/internal/config"
	"github.com/openlivox/lidarhost/internal/discovery"
	"github.com/openlivox/lidarhost/internal/eventsink"
	"github.com/openlivox/lidarhost/internal/group"
	"github.com/openlivox/lidarhost/internal/inventory"
	"github.com/openlivox/lidarhost/internal/lidar/network"
	"github.com/openlivox/lidarhost/internal/monitor"
	"github.com/openlivox/lidarhost/internal/session"
	"github.com/openlivox/lidarhost/internal/timeutil"
)

var (
	listen          = flag.String("listen", ":8081", "HTTP status dashboard listen address")
	computerAddr    = flag.String("computer-ip", "", "local IP to bind sensor sockets on (default: first non-loopback IPv4 interface address, else 0.0.0.0)")
	discoveryWindow = flag.Duration("discovery-window", 2*time.Second, "how long to listen for broadcast announcements with no new sensor before giving up")
	configPath      = flag.String("config", "", "path to a driver tuning JSON file (default: built-in defaults)")
	dbPath          = flag.String("db", "", "path to the inventory SQLite database (default: config's inventory_db_path, or lidar_inventory.db)")
	captureDir      = flag.String("capture-dir", "", "if set, start a capture run writing capture.bin (or capture.csv) into this existing directory once connected")
	captureDuration = flag.Duration("capture-duration", 0, "capture duration; 0 means run until the process is stopped")
	captureMode     = flag.String("capture-mode", "binary", "capture output mode: binary, realtime-csv, or buffered-csv")
)

func parseCaptureMode(s string) (capture.Mode, error) {
	switch s {
	case "binary":
		return capture.ModeBinary, nil
	case "realtime-csv":
		return capture.ModeRealtimeCSV, nil
	case "buffered-csv":
		return capture.ModeBufferedCSV, nil
	default:
		return 0, fmt.Errorf("livoxctl: unknown capture mode %q", s)
	}
}

// connectedUnit is either a single atomic session or a connected composite
// group, normalized into the labeled-session view monitor.Server and
// internal/inventory both need, and into a single start/stop capture pair
// regardless of which shape is underneath.
type connectedUnit struct {
	sessions []monitor.LabeledSession
	grp      *group.Group // nil for an atomic unit
	cfg      *config.DriverConfig
	emitter  *eventsink.Emitter
	run      *capture.Run // atomic unit only; nil for a composite unit
}

func (u *connectedUnit) startCapture(ctx context.Context, path string, duration time.Duration, mode capture.Mode) error {
	if u.grp != nil {
		return u.grp.StartCapture(ctx, path, 0, duration, mode)
	}
	ls := u.sessions[0]
	u.run = capture.NewRun(ls.Sess, u.cfg, u.emitter)
	return u.run.Start(ctx, path, 0, duration, mode)
}

// stopCapture returns each label's final stats, keyed the same way
// monitor.LabeledSession labels its sessions ("" for an atomic unit, L/M/R
// for a composite one).
func (u *connectedUnit) stopCapture() (map[string]capture.Stats, error) {
	if u.grp != nil {
		byLabel, err := u.grp.StopCapture()
		if err != nil {
			return nil, err
		}
		out := make(map[string]capture.Stats, len(byLabel))
		for label, stats := range byLabel {
			out[string(label)] = stats
		}
		return out, nil
	}
	stats, err := u.run.Stop()
	if err != nil {
		return nil, err
	}
	return map[string]capture.Stats{"": stats}, nil
}

func connectUnit(ctx context.Context, factory network.UDPSocketFactory, cfg *config.DriverConfig, clock timeutil.Clock, emitter *eventsink.Emitter, g discovery.Group, computerIP net.IP) (*connectedUnit, error) {
	if g.Kind == discovery.GroupComposite {
		grp, err := group.Connect(ctx, factory, cfg, clock, emitter, g, computerIP)
		if err != nil {
			return nil, err
		}
		labels := []string{"L", "M", "R"}
		sessions := grp.Sessions()
		labeled := make([]monitor.LabeledSession, len(sessions))
		for i, sess := range sessions {
			labeled[i] = monitor.LabeledSession{Label: labels[i], Sess: sess}
		}
		return &connectedUnit{sessions: labeled, grp: grp, cfg: cfg, emitter: emitter}, nil
	}

	ann := g.Announcements[0]
	sess := session.New(factory, cfg, clock, emitter)
	if err := sess.Bind(computerIP, 0, 0, 0); err != nil {
		return nil, fmt.Errorf("livoxctl: bind %s: %w", ann.SensorIP, err)
	}
	if err := sess.Connect(ctx, net.ParseIP(ann.SensorIP)); err != nil {
		return nil, fmt.Errorf("livoxctl: connect %s: %w", ann.SensorIP, err)
	}
	sess.State.Serial = ann.Serial
	sess.State.IPRangeCode = ann.IPRangeCode
	sess.State.DeviceKind = ann.Kind()
	return &connectedUnit{sessions: []monitor.LabeledSession{{Label: "", Sess: sess}}, cfg: cfg, emitter: emitter}, nil
}

func (u *connectedUnit) disconnect() {
	if u.grp != nil {
		if err := u.grp.Disconnect(); err != nil {
			log.Printf("livoxctl: group disconnect: %v", err)
		}
		return
	}
	if err := u.sessions[0].Sess.Disconnect(); err != nil {
		log.Printf("livoxctl: disconnect: %v", err)
	}
}

func main() {
	flag.Parse()

	cfg := config.EmptyDriverConfig()
	if *configPath != "" {
		loaded, err := config.LoadDriverConfig(*configPath)
		if err != nil {
			log.Fatalf("livoxctl: load config: %v", err)
		}
		cfg = loaded
	}

	mode, err := parseCaptureMode(*captureMode)
	if err != nil {
		log.Fatal(err)
	}

	invPath := *dbPath
	if invPath == "" {
		invPath = cfg.GetInventoryDBPath()
	}
	inv, err := inventory.Open(invPath)
	if err != nil {
		log.Fatalf("livoxctl: open inventory db %q: %v", invPath, err)
	}
	defer inv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	emitter := eventsink.New(eventsink.Stderr())
	clock := timeutil.RealClock{}
	factory := network.NewRealUDPSocketFactory()

	listener, err := discovery.NewListener(factory)
	if err != nil {
		log.Fatalf("livoxctl: discovery listener: %v", err)
	}
	log.Printf("livoxctl: scanning for sensors (window %s)...", *discoveryWindow)
	anns, err := listener.Discover(ctx, *discoveryWindow)
	listener.Close()
	if err != nil {
		log.Fatalf("livoxctl: discovery: %v", err)
	}
	for _, ann := range anns {
		if err := inv.RecordAnnouncement(clock, ann); err != nil {
			log.Printf("livoxctl: record announcement %s: %v", ann.SensorIP, err)
		}
	}

	groups := discovery.ClassifyGroups(anns)
	var target *discovery.Group
	for i := range groups {
		if groups[i].Kind != discovery.GroupIndeterminate {
			target = &groups[i]
			break
		}
	}
	if target == nil {
		log.Fatalf("livoxctl: no connectable sensor found (saw %d announcement(s))", len(anns))
	}
	log.Printf("livoxctl: connecting to serial %s (%s)", target.Serial, groupKindName(target.Kind))

	computerIP := net.IPv4zero
	if *computerAddr != "" {
		computerIP = net.ParseIP(*computerAddr)
	} else if addrs, err := net.InterfaceAddrs(); err == nil {
		for _, a := range addrs {
			if ipn, ok := a.(*net.IPNet); ok && !ipn.IP.IsLoopback() && ipn.IP.To4() != nil {
				computerIP = ipn.IP
				break
			}
		}
	}

	unit, err := connectUnit(ctx, factory, cfg, clock, emitter, *target, computerIP)
	if err != nil {
		log.Fatalf("livoxctl: connect: %v", err)
	}
	defer unit.disconnect()

	sessionIDs := make(map[string]int64, len(unit.sessions))
	for _, ls := range unit.sessions {
		snap := ls.Sess.Snapshot()
		sessionID, err := inv.StartSession(clock, discovery.Announcement{
			SensorIP:    snap.SensorIP.String(),
			Serial:      snap.Serial,
			IPRangeCode: snap.IPRangeCode,
			DeviceType:  0,
		})
		if err != nil {
			log.Printf("livoxctl: start session row for %s: %v", ls.Label, err)
			continue
		}
		sessionIDs[ls.Label] = sessionID
		defer func(id int64) {
			if err := inv.EndSession(clock, id); err != nil {
				log.Printf("livoxctl: end session row: %v", err)
			}
		}(sessionID)
	}

	capturing := *captureDir != ""
	runIDs := make(map[string]uuid.UUID, len(unit.sessions))
	if capturing {
		ext := ".bin"
		if mode != capture.ModeBinary {
			ext = ".csv"
		}
		capturePath := filepath.Join(*captureDir, "capture"+ext)
		for label, sessionID := range sessionIDs {
			runID := uuid.New()
			runIDs[label] = runID
			if err := inv.StartCaptureRun(clock, runID, sessionID, label, capturePath, mode); err != nil {
				log.Printf("livoxctl: start capture run row %q: %v", label, err)
			}
		}
		if err := unit.startCapture(ctx, capturePath, *captureDuration, mode); err != nil {
			log.Fatalf("livoxctl: start capture: %v", err)
		}
		log.Printf("livoxctl: capture running, writing to %s", capturePath)
	}

	var wg sync.WaitGroup
	srv := monitor.NewServer(monitor.Config{
		Address:   *listen,
		Inventory: inv,
		Sensors:   func() []monitor.LabeledSession { return unit.sessions },
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Start(ctx); err != nil {
			log.Printf("livoxctl: monitor server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("livoxctl: shutting down")

	if capturing {
		statsByLabel, err := unit.stopCapture()
		if err != nil {
			log.Printf("livoxctl: stop capture: %v", err)
		}
		for label, stats := range statsByLabel {
			if runID, ok := runIDs[label]; ok {
				if err := inv.EndCaptureRun(clock, runID, int(capture.DT0), stats); err != nil {
					log.Printf("livoxctl: end capture run row %q: %v", label, err)
				}
			}
		}
	}

	wg.Wait()
	log.Println("livoxctl: graceful shutdown complete")
}

func groupKindName(k discovery.GroupKind) string {
	switch k {
	case discovery.GroupAtomic:
		return "atomic"
	case discovery.GroupComposite:
		return "composite"
	default:
		return "indeterminate"
	}
}
