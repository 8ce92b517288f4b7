package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"vendorrisk/internal/config"
	"vendorrisk/internal/model"
	"vendorrisk/internal/simulation"
)

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sim.Snapshot())
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	s.sim.Start(s.runCtx)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "running": s.sim.Running()})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.sim.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "running": s.sim.Running()})
}

func (s *Server) handleTick(w http.ResponseWriter, _ *http.Request) {
	entry := s.sim.Step()
	writeJSON(w, http.StatusOK, map[string]any{"entry": entry, "state": s.sim.Snapshot()})
}

func (s *Server) handleTrigger(w http.ResponseWriter, _ *http.Request) {
	inc, err := s.sim.Trigger()
	if errors.Is(err, simulation.ErrNoVendors) {
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incident": inc, "state": s.sim.Snapshot()})
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.sim.Reset()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "state": s.sim.Snapshot()})
}

func (s *Server) handleSimResolve(w http.ResponseWriter, r *http.Request) {
	inc, err := s.sim.Resolve(chi.URLParam(r, "id"))
	if errors.Is(err, simulation.ErrIncidentNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incident": inc})
}

func (s *Server) handleResidual(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	score, err := s.sim.Residual(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vendor_id": id, "score": score})
}

func (s *Server) handleRatings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	points, updated, ok := s.ratings.Get(id)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"vendor_id":  id,
		"updated_at": updated.Format(time.RFC3339Nano),
		"points":     points,
	})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	var list []model.TimelineEntry
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.timeline.Since(ts)
	} else {
		list = s.timeline.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": list,
		"count":   len(list),
	})
}

type simulationView struct {
	TickInterval        string  `json:"tick_interval"`
	AutoStart           bool    `json:"autostart"`
	Seed                uint64  `json:"seed"`
	IncidentProbability float64 `json:"incident_probability"`
	ResolveProbability  float64 `json:"resolve_probability"`
	HistoryLimit        int     `json:"history_limit"`
	PenaltyScale        float64 `json:"penalty_scale"`
	Fluctuation         float64 `json:"fluctuation"`
	TriggerPenalty      float64 `json:"trigger_penalty"`
	SeedFromStorage     bool    `json:"seed_from_storage"`
	Vendors             int     `json:"vendors"`
}

func viewOf(sim config.SimulationConfig) simulationView {
	return simulationView{
		TickInterval:        sim.TickInterval.String(),
		AutoStart:           sim.AutoStart,
		Seed:                sim.Seed,
		IncidentProbability: sim.IncidentProbability,
		ResolveProbability:  sim.ResolveProbability,
		HistoryLimit:        sim.HistoryLimit,
		PenaltyScale:        sim.PenaltyScale,
		Fluctuation:         sim.Fluctuation,
		TriggerPenalty:      sim.TriggerPenalty,
		SeedFromStorage:     sim.SeedFromStorage,
		Vendors:             len(sim.Vendors),
	}
}

// simulationUpdate carries the tunable parameters; omitted fields keep their
// current value.
type simulationUpdate struct {
	TickInterval        *string  `json:"tick_interval"`
	AutoStart           *bool    `json:"autostart"`
	IncidentProbability *float64 `json:"incident_probability"`
	ResolveProbability  *float64 `json:"resolve_probability"`
	HistoryLimit        *int     `json:"history_limit"`
	PenaltyScale        *float64 `json:"penalty_scale"`
	Fluctuation         *float64 `json:"fluctuation"`
	TriggerPenalty      *float64 `json:"trigger_penalty"`
}

func (u simulationUpdate) apply(sim *config.SimulationConfig) error {
	if u.TickInterval != nil {
		d, err := time.ParseDuration(*u.TickInterval)
		if err != nil {
			return err
		}
		if d <= 0 {
			return errors.New("tick_interval must be positive")
		}
		sim.TickInterval = d
	}
	if u.AutoStart != nil {
		sim.AutoStart = *u.AutoStart
	}
	if u.IncidentProbability != nil {
		sim.IncidentProbability = *u.IncidentProbability
	}
	if u.ResolveProbability != nil {
		sim.ResolveProbability = *u.ResolveProbability
	}
	if u.HistoryLimit != nil {
		sim.HistoryLimit = *u.HistoryLimit
	}
	if u.PenaltyScale != nil {
		sim.PenaltyScale = *u.PenaltyScale
	}
	if u.Fluctuation != nil {
		sim.Fluctuation = *u.Fluctuation
	}
	if u.TriggerPenalty != nil {
		sim.TriggerPenalty = *u.TriggerPenalty
	}
	return nil
}

func (s *Server) handleGetSimulationConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"simulation": viewOf(s.cfg.Get().Simulation)})
}

func (s *Server) handleSetSimulationConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var update simulationUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	current := s.cfg.Get()
	next := *current
	if err := update.apply(&next.Simulation); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if err := config.Validate(&next); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if err := s.cfg.Update(&next); err != nil {
		if s.logger != nil {
			s.logger.Error("config update failed", "err", err)
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if s.sim != nil {
		s.sim.UpdateConfig(&next)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "simulation": viewOf(next.Simulation)})
}
