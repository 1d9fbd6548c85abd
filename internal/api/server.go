// Package api exposes the trigger/status/cancel contract over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/tasks"
)

const dateLayout = "2006-01-02"

// Orchestrator is the task facade the handlers drive.
type Orchestrator interface {
	Trigger(ctx context.Context, req tasks.TriggerRequest) (string, error)
	Status(ctx context.Context, runID string) (*model.IngestionRun, error)
	Active(ctx context.Context) ([]model.IngestionRun, error)
	Scheduled(ctx context.Context) ([]tasks.ScheduledRun, error)
	Cancel(ctx context.Context, runID string) error
}

// Config holds router options.
type Config struct {
	JWTSecret      string
	AllowedOrigins []string
}

type server struct {
	orch Orchestrator
}

type errorResponse struct {
	Error string `json:"error"`
}

type triggerRequest struct {
	Chamber   string `json:"chamber"`
	DaysBack  int    `json:"days_back,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

type triggerResponse struct {
	RunID string `json:"run_id"`
}

// NewRouter builds the HTTP handler. Only /healthz is unauthenticated.
func NewRouter(orch Orchestrator, cfg Config) http.Handler {
	s := &server{orch: orch}
	auth := NewAuthenticator(cfg.JWTSecret)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Post("/runs", s.handleTrigger)
		r.Get("/runs/active", s.handleActive)
		r.Get("/runs/{id}", s.handleStatus)
		r.Post("/runs/{id}/cancel", s.handleCancel)
		r.Get("/schedules", s.handleScheduled)
	})
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var body triggerRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	req := tasks.TriggerRequest{Chamber: body.Chamber, DaysBack: body.DaysBack}
	var err error
	if req.Start, err = parseDate(body.StartDate); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "start_date must be YYYY-MM-DD"})
		return
	}
	if req.End, err = parseDate(body.EndDate); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "end_date must be YYYY-MM-DD"})
		return
	}

	runID, err := s.orch.Trigger(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	zap.L().Info("api: run triggered",
		zap.String("run_id", runID),
		zap.String("subject", Subject(r.Context())),
	)
	writeJSON(w, http.StatusAccepted, triggerResponse{RunID: runID})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	run, err := s.orch.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *server) handleActive(w http.ResponseWriter, r *http.Request) {
	runs, err := s.orch.Active(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []model.IngestionRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *server) handleScheduled(w http.ResponseWriter, r *http.Request) {
	scheduled, err := s.orch.Scheduled(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": scheduled})
}

func (s *server) handleCancel(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if err := s.orch.Cancel(r.Context(), runID); err != nil {
		writeError(w, err)
		return
	}
	zap.L().Info("api: run cancel requested",
		zap.String("run_id", runID),
		zap.String("subject", Subject(r.Context())),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "status": "cancel_requested"})
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tasks.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, tasks.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "run not found"})
	case errors.Is(err, tasks.ErrNotActive):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "run is not active"})
	default:
		zap.L().Error("api: request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
