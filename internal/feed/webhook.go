package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"vendorrisk/internal/config"
)

const maxWebhookBody = 2 << 20

type webhookServer struct {
	out    chan<- ChangeEvent
	logger *slog.Logger
}

// NewWebhookHandler accepts change events on POST /changes.
func NewWebhookHandler(out chan<- ChangeEvent, logger *slog.Logger) http.Handler {
	s := &webhookServer{out: out, logger: logger}
	r := chi.NewRouter()
	r.Post("/changes", s.handleChanges)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

func StartWebhook(ctx context.Context, cfg *config.Manager, out chan<- ChangeEvent, logger *slog.Logger) *http.Server {
	wc := cfg.Get().Feed.Webhook
	if !wc.Enabled {
		if logger != nil {
			logger.Info("webhook feed disabled")
		}
		return nil
	}
	srv := &http.Server{Addr: wc.Addr, Handler: NewWebhookHandler(out, logger), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if logger != nil {
			logger.Info("webhook feed listening", "addr", wc.Addr)
		}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && logger != nil {
			logger.Error("webhook server stopped", "err", err)
		}
	}()
	return srv
}

func (s *webhookServer) handleChanges(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err == nil && len(body) == 0 {
		err = errors.New("empty body")
	}
	var events []ChangeEvent
	if err == nil {
		events, err = Decode(body)
	}
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("webhook change rejected", "err", err, "remote", r.RemoteAddr)
		}
		respond(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	accepted, dropped := deliver(r.Context(), s.out, events, "webhook", s.logger)
	respond(w, http.StatusOK, map[string]any{"accepted": accepted, "dropped": dropped})
}

func respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
