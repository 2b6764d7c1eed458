// Package httpapi exposes target management, state, logs and uptime over
// HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/pingwatch/internal/domain"
	apimw "github.com/hamed0406/pingwatch/internal/httpapi/middleware"
	"github.com/hamed0406/pingwatch/internal/metrics"
	"github.com/hamed0406/pingwatch/internal/monitor"
	"github.com/hamed0406/pingwatch/internal/registry"
)

const maxBody = 1 << 20

// Service is the monitor surface the API drives.
type Service interface {
	Overview(ctx context.Context) ([]monitor.TargetStatus, error)
	Targets(ctx context.Context) ([]*domain.Target, error)
	Target(ctx context.Context, id domain.TargetID) (*domain.Target, error)
	CreateTarget(ctx context.Context, t *domain.Target) error
	UpdateTarget(ctx context.Context, t *domain.Target) error
	DeleteTarget(ctx context.Context, id domain.TargetID) error
	Import(ctx context.Context, ts []*domain.Target) error
	CurrentState(ctx context.Context, id domain.TargetID) (domain.TargetState, error)
	Logs(ctx context.Context, id domain.TargetID, window string) ([]*domain.Observation, error)
	Uptime(ctx context.Context, id domain.TargetID, window string) (monitor.Uptime, error)
	RunNow(ctx context.Context, id domain.TargetID) (*domain.Observation, error)
	Pause(ctx context.Context, id domain.TargetID) error
	Resume(ctx context.Context, id domain.TargetID) error
	NotificationSettings(ctx context.Context) (domain.NotificationConfig, error)
	UpdateNotificationSettings(ctx context.Context, cfg domain.NotificationConfig) error
}

type Server struct {
	Logger  *zap.Logger
	Service Service
	Metrics *metrics.Metrics
}

func NewServer(l *zap.Logger, svc Service, m *metrics.Metrics) *Server {
	return &Server{Logger: l, Service: svc, Metrics: m}
}

// Router builds the handler. Reads need any key and use the public rate
// limit; writes need an admin key and use the admin limit.
func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.accessLog)
	r.Use(corsHandler(allowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apimw.RequireAny(keys))
			r.Use(apimw.RateLimit(pubRPM, pubBurst))

			r.Get("/status", s.handleStatus)
			r.Get("/targets", s.handleListTargets)
			r.Get("/targets/{id}", s.handleGetTarget)
			r.Get("/targets/{id}/state", s.handleState)
			r.Get("/targets/{id}/logs", s.handleLogs)
			r.Get("/targets/{id}/uptime", s.handleUptime)
		})
		r.Group(func(r chi.Router) {
			r.Use(apimw.RequireAdmin(keys))
			r.Use(apimw.RateLimit(admRPM, admBurst))

			r.Post("/targets", s.handleAddTarget)
			r.Post("/targets/import", s.handleImport)
			r.Put("/targets/{id}", s.handleUpdateTarget)
			r.Delete("/targets/{id}", s.handleDeleteTarget)
			r.Post("/targets/{id}/check", s.handleCheck)
			r.Post("/targets/{id}/pause", s.handlePause)
			r.Post("/targets/{id}/resume", s.handleResume)
			r.Get("/settings/notifications", s.handleGetSettings)
			r.Put("/settings/notifications", s.handlePutSettings)
		})
	})
	return r
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.Logger.Debug("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}

func targetID(r *http.Request) domain.TargetID {
	return domain.TargetID(chi.URLParam(r, "id"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	out, err := s.Service.Overview(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	ts, err := s.Service.Targets(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if label := r.URL.Query().Get("label"); label != "" {
		filtered := ts[:0]
		for _, t := range ts {
			if t.HasLabel(label) {
				filtered = append(filtered, t)
			}
		}
		ts = filtered
	}
	writeJSON(w, http.StatusOK, ts)
}

func (s *Server) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	t, err := s.Service.Target(r.Context(), targetID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func decodeTarget(r *http.Request) (*domain.Target, error) {
	var t domain.Target
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		return nil, &domain.ConfigError{Field: "body", Msg: err.Error()}
	}
	return &t, nil
}

func (s *Server) handleAddTarget(w http.ResponseWriter, r *http.Request) {
	t, err := decodeTarget(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Service.CreateTarget(r.Context(), t); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Logger.Info("added_target",
		zap.String("target_id", string(t.ID)),
		zap.String("protocol", string(t.Protocol)),
		zap.String("address", t.Address),
	)
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleUpdateTarget(w http.ResponseWriter, r *http.Request) {
	t, err := decodeTarget(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	t.ID = targetID(r)
	if err := s.Service.UpdateTarget(r.Context(), t); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	if err := s.Service.DeleteTarget(r.Context(), targetID(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleImport accepts a YAML target file and applies it all or nothing.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ts, err := registry.Parse(data)
	if err != nil {
		s.writeError(w, r, &domain.ConfigError{Field: "targets", Msg: err.Error()})
		return
	}
	if err := s.Service.Import(r.Context(), ts); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": len(ts)})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st, err := s.Service.CurrentState(r.Context(), targetID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type logsResponse struct {
	TargetID     domain.TargetID       `json:"target_id"`
	Window       string                `json:"window"`
	Observations []*domain.Observation `json:"observations"`
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	window := r.URL.Query().Get("window")
	if window == "" {
		window = domain.WindowRecent
	}
	obs, err := s.Service.Logs(r.Context(), targetID(r), window)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if obs == nil {
		obs = []*domain.Observation{}
	}
	writeJSON(w, http.StatusOK, logsResponse{TargetID: targetID(r), Window: window, Observations: obs})
}

func (s *Server) handleUptime(w http.ResponseWriter, r *http.Request) {
	up, err := s.Service.Uptime(r.Context(), targetID(r), r.URL.Query().Get("window"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, up)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	obs, err := s.Service.RunNow(r.Context(), targetID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.Service.Pause(r.Context(), targetID(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.Service.Resume(r.Context(), targetID(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.Service.NotificationSettings(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var cfg domain.NotificationConfig
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&cfg); err != nil {
		s.writeError(w, r, &domain.ConfigError{Field: "body", Msg: err.Error()})
		return
	}
	if err := s.Service.UpdateNotificationSettings(r.Context(), cfg); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type errorBody struct {
	Error string `json:"error"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrConfiguration), errors.Is(err, domain.ErrInvalidWindow):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrProbeInFlight), errors.Is(err, domain.ErrPaused), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.Logger.Error("api_error",
			zap.String("path", r.URL.Path),
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.Error(err),
		)
		msg = "internal error"
	}
	writeJSON(w, code, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
