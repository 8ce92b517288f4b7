package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vendorrisk/internal/model"
	"vendorrisk/internal/storage"
)

type envelope struct {
	Data  any     `json:"data"`
	Error *string `json:"error"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Error: &msg})
}

func (s *Server) requireRecords(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.records == nil {
			writeError(w, http.StatusServiceUnavailable, "storage disabled")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		if s.logger != nil {
			s.logger.Error("record store error", "method", r.Method, "path", r.URL.Path, "err", err)
		}
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s *Server) handleListVendors(w http.ResponseWriter, r *http.Request) {
	list, err := s.records.ListVendors(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (s *Server) handleGetVendor(w http.ResponseWriter, r *http.Request) {
	v, err := s.records.GetVendor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, v)
}

func (s *Server) handleCreateVendor(w http.ResponseWriter, r *http.Request) {
	var v model.Vendor
	if !decodeBody(w, r, &v) {
		return
	}
	created, err := s.records.CreateVendor(r.Context(), v)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateVendor(w http.ResponseWriter, r *http.Request) {
	var patch storage.VendorPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	updated, err := s.records.UpdateVendor(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteVendor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.records.DeleteVendor(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	list, err := s.records.ListIncidents(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (s *Server) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := s.records.GetIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, inc)
}

func (s *Server) handleCreateIncident(w http.ResponseWriter, r *http.Request) {
	var inc model.Incident
	if !decodeBody(w, r, &inc) {
		return
	}
	created, err := s.records.CreateIncident(r.Context(), inc)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateIncident(w http.ResponseWriter, r *http.Request) {
	var patch storage.IncidentPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	updated, err := s.records.UpdateIncident(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, updated)
}

func (s *Server) handleResolveIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := s.records.ResolveIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, inc)
}

func (s *Server) handleDeleteIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.records.DeleteIncident(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"id": id})
}
