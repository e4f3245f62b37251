// Package monitor serves an HTTP status dashboard over the driver's live
// sensor connections and capture-run history (spec §12's "connection
// summary / status_codes / connection_info" rendering), grounded on
// internal/lidar/monitor/webserver.go's WebServer shape: a config struct,
// a constructor, RegisterRoutes/Start/Shutdown, and go-echarts debug
// endpoints alongside a plain status page.
package monitor

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/openlivox/lidarhost/internal/inventory"
	"github.com/openlivox/lidarhost/internal/session"
	"github.com/openlivox/lidarhost/internal/version"
)

//go:embed status.html
var statusHTML embed.FS

var statusTemplate = template.Must(template.ParseFS(statusHTML, "status.html"))

// SensorAccessor returns the live sessions to report on, labeled. For an
// atomic unit this is a single ("", sess) pair; for a Mid-100 group it is
// the L/M/R triple (group.Group.Sessions(), zipped with L/M/R in order).
type SensorAccessor func() []LabeledSession

// LabeledSession pairs a display label with the session it reports on.
type LabeledSession struct {
	Label string
	Sess  *session.Session
}

// Config configures a Server.
type Config struct {
	Address   string
	Sensors   SensorAccessor
	Inventory *inventory.DB // optional; nil disables capture-run history endpoints
}

// Server serves the status dashboard and its JSON/chart endpoints.
type Server struct {
	address   string
	sensors   SensorAccessor
	inventory *inventory.DB
	server    *http.Server
	startedAt time.Time
}

// NewServer constructs a Server from cfg. Call Start to begin serving.
func NewServer(cfg Config) *Server {
	return &Server{address: cfg.Address, sensors: cfg.Sensors, inventory: cfg.Inventory, startedAt: time.Now()}
}

// RegisterRoutes registers every monitor endpoint on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleStatusPage)
	mux.HandleFunc("/api/status", s.handleStatusJSON)
	mux.HandleFunc("/debug/captures", s.handleCapturesChart)
}

// Start begins serving in the background and blocks until ctx is
// cancelled, then shuts the server down gracefully — the same
// serve-until-context-cancelled shape as the teacher's WebServer.Start.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	s.server = &http.Server{Addr: s.address, Handler: mux}

	go func() {
		log.Printf("monitor: listening on %s", s.address)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("monitor: server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","service":"lidarhost","timestamp":%q}`, time.Now().UTC().Format(time.RFC3339))
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	page, err := s.buildStatusPage()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusTemplate.Execute(w, page); err != nil {
		log.Printf("monitor: render status page: %v", err)
	}
}

func (s *Server) handleStatusJSON(w http.ResponseWriter, r *http.Request) {
	page, err := s.buildStatusPage()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(page)
}

// StatusPage is the data rendered by both the HTML template and the JSON
// endpoint: spec §12's connection_info + status_codes + recent capture-run
// history, in one shape.
type StatusPage struct {
	Version     string
	Uptime      string
	Sensors     []SensorStatus
	CaptureRuns []inventory.CaptureRunSummary
}

func (s *Server) buildStatusPage() (StatusPage, error) {
	page := StatusPage{Version: version.Version, Uptime: time.Since(s.startedAt).Round(time.Second).String()}
	if s.sensors != nil {
		for _, ls := range s.sensors() {
			page.Sensors = append(page.Sensors, newSensorStatus(ls))
		}
	}
	if s.inventory != nil {
		runs, err := s.inventory.RecentCaptureRuns(20)
		if err != nil {
			return StatusPage{}, fmt.Errorf("monitor: recent capture runs: %w", err)
		}
		page.CaptureRuns = runs
	}
	return page, nil
}
