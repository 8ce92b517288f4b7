package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"vendorrisk/internal/config"
	"vendorrisk/internal/engine"
	"vendorrisk/internal/feed"
	"vendorrisk/internal/model"
	"vendorrisk/internal/ratings"
	"vendorrisk/internal/simulation"
	"vendorrisk/internal/storage"
	"vendorrisk/internal/timeline"
)

// SimulationControl is the part of the runner the API drives.
type SimulationControl interface {
	Start(ctx context.Context)
	Stop()
	Running() bool
	Step() model.TimelineEntry
	Trigger() (model.Incident, error)
	Resolve(id string) (model.Incident, error)
	Reset()
	Snapshot() model.State
	Status() simulation.Status
	UpdateConfig(cfg *config.Config)
	Residual(vendorID string) (engine.ResidualScore, error)
}

type Deps struct {
	Config     *config.Manager
	Simulation SimulationControl
	Timeline   *timeline.Store
	Ratings    *ratings.Store
	Records    storage.Store
	View       *feed.View
	Metrics    http.Handler
	Logger     *slog.Logger
	Version    string
}

type Server struct {
	cfg      *config.Manager
	sim      SimulationControl
	timeline *timeline.Store
	ratings  *ratings.Store
	records  storage.Store
	view     *feed.View
	metrics  http.Handler
	logger   *slog.Logger
	version  string
	runCtx   context.Context
}

type statusResponse struct {
	Status     string            `json:"status"`
	Time       string            `json:"time"`
	Version    string            `json:"version"`
	ConfigPath string            `json:"config_path"`
	Simulation simulation.Status `json:"simulation"`
	Feed       feedStatus        `json:"feed"`
	Storage    storageStatus     `json:"storage"`
	Publish    publishStatus     `json:"publish"`
}

type feedStatus struct {
	Webhook  bool   `json:"webhook"`
	Kafka    bool   `json:"kafka"`
	Postgres bool   `json:"postgres"`
	Applied  uint64 `json:"applied"`
}

type storageStatus struct {
	Enabled bool   `json:"enabled"`
	Driver  string `json:"driver,omitempty"`
}

type publishStatus struct {
	Redis bool `json:"redis"`
}

// NewServer builds the handler set. ctx bounds simulation loops started
// through the API.
func NewServer(ctx context.Context, deps Deps) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Server{
		cfg:      deps.Config,
		sim:      deps.Simulation,
		timeline: deps.Timeline,
		ratings:  deps.Ratings,
		records:  deps.Records,
		view:     deps.View,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		version:  deps.Version,
		runCtx:   ctx,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/status", s.handleStatus)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/simulation", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)
		r.Post("/tick", s.handleTick)
		r.Post("/trigger", s.handleTrigger)
		r.Post("/reset", s.handleReset)
		r.Post("/incidents/{id}/resolve", s.handleSimResolve)
		r.Get("/vendors/{id}/residual", s.handleResidual)
		r.Get("/vendors/{id}/ratings", s.handleRatings)
		r.Get("/timeline", s.handleTimeline)
	})
	r.Get("/config/simulation", s.handleGetSimulationConfig)
	r.Post("/config/simulation", s.handleSetSimulationConfig)

	r.Route("/vendors", func(r chi.Router) {
		r.Use(s.requireRecords)
		r.Get("/", s.handleListVendors)
		r.Post("/", s.handleCreateVendor)
		r.Get("/{id}", s.handleGetVendor)
		r.Patch("/{id}", s.handleUpdateVendor)
		r.Delete("/{id}", s.handleDeleteVendor)
	})
	r.Route("/incidents", func(r chi.Router) {
		r.Use(s.requireRecords)
		r.Get("/", s.handleListIncidents)
		r.Post("/", s.handleCreateIncident)
		r.Get("/{id}", s.handleGetIncident)
		r.Patch("/{id}", s.handleUpdateIncident)
		r.Delete("/{id}", s.handleDeleteIncident)
		r.Post("/{id}/resolve", s.handleResolveIncident)
	})

	r.Get("/live/vendors", s.handleLiveVendors)
	r.Get("/live/incidents", s.handleLiveIncidents)
	return r
}

func Start(ctx context.Context, deps Deps) *http.Server {
	if deps.Config == nil {
		return nil
	}
	logger := deps.Logger
	current := deps.Config.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := NewServer(ctx, deps)
	httpServer := &http.Server{Addr: current.Addr, Handler: server.Routes(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Simulation: s.sim.Status(),
		Feed: feedStatus{
			Webhook:  cfg.Feed.Webhook.Enabled,
			Kafka:    cfg.Feed.Kafka.Enabled,
			Postgres: cfg.Feed.Postgres.Enabled,
		},
		Storage: storageStatus{Enabled: s.records != nil},
		Publish: publishStatus{Redis: cfg.Publish.Redis.Enabled},
	}
	if s.records != nil {
		resp.Storage.Driver = cfg.Storage.Driver
	}
	if s.view != nil {
		resp.Feed.Applied = s.view.Applied()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLiveVendors(w http.ResponseWriter, _ *http.Request) {
	if s.view == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "live view disabled"})
		return
	}
	list := s.view.Vendors()
	writeJSON(w, http.StatusOK, map[string]any{"vendors": list, "count": len(list)})
}

func (s *Server) handleLiveIncidents(w http.ResponseWriter, _ *http.Request) {
	if s.view == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "live view disabled"})
		return
	}
	list := s.view.Incidents()
	writeJSON(w, http.StatusOK, map[string]any{"incidents": list, "count": len(list)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
