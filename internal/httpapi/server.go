package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimewatch/internal/domain"
	apimw "github.com/hamed0406/uptimewatch/internal/httpapi/middleware"
	"github.com/hamed0406/uptimewatch/internal/hub"
	"github.com/hamed0406/uptimewatch/internal/repo"
	"github.com/hamed0406/uptimewatch/internal/scheduler"
)

// CycleRunner runs one check cycle on demand.
type CycleRunner interface {
	RunOnce(ctx context.Context, force bool) (scheduler.TickReport, error)
}

type Server struct {
	Logger *zap.Logger
	Store  repo.Store
	Hub    *hub.Hub
	Runner CycleRunner
}

func NewServer(l *zap.Logger, store repo.Store, h *hub.Hub, runner CycleRunner) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Store: store, Hub: h, Runner: runner}
}

// Router wires routes. Empty allowedOrigins allows every origin.
func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(apimw.RequestLogger(s.Logger))

	if len(allowedOrigins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// push feeds; browsers cannot set headers on these, so the key may come in the query
	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(pubRPM, pubBurst))
		r.Use(apimw.QueryKey)
		r.Use(apimw.RequireAny(keys))

		r.Get("/ws", s.handleWS)
		r.Get("/api/stream", s.handleSSE)
	})

	// read routes
	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(pubRPM, pubBurst))
		r.Use(apimw.RequireAny(keys))

		r.Get("/api/monitors", s.handleListMonitors)
		r.Get("/api/monitors/{id}", s.handleGetMonitor)
		r.Get("/api/monitors/{id}/events", s.handleListEvents)

		r.Get("/api/notifications", s.handleListNotifications)
		r.Post("/api/notifications/ack", s.handleAckNotifications)
	})

	// trigger surface
	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(admRPM, admBurst))
		r.Use(apimw.RequireAdmin(keys))

		r.Post("/api/check", s.handleCheck)
	})

	return r
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if s.Runner == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not configured")
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	report, err := s.Runner.RunOnce(context.WithoutCancel(r.Context()), force)
	if err != nil {
		s.Logger.Warn("manual_check_failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "could not load monitors")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	ms, err := s.Store.ListActive(r.Context())
	if err != nil {
		s.Logger.Warn("list_monitors_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

func (s *Server) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
	m, ok := s.monitorFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	m, ok := s.monitorFromPath(w, r)
	if !ok {
		return
	}
	events, err := s.Store.ListEvents(r.Context(), m.ID, queryLimit(r))
	if err != nil {
		s.Logger.Warn("list_events_failed", zap.String("monitor_id", string(m.ID)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	user := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if user == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	notes, err := s.Store.ListNotifications(r.Context(), domain.UserID(user), queryLimit(r))
	if err != nil {
		s.Logger.Warn("list_notifications_failed", zap.String("user_id", user), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

type ackPayload struct {
	UserID string   `json:"user_id"`
	IDs    []string `json:"ids"`
}

func (s *Server) handleAckNotifications(w http.ResponseWriter, r *http.Request) {
	var p ackPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || strings.TrimSpace(p.UserID) == "" || len(p.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	ids := make([]domain.NotificationID, 0, len(p.IDs))
	for _, id := range p.IDs {
		ids = append(ids, domain.NotificationID(id))
	}
	n, err := s.Store.MarkSent(r.Context(), domain.UserID(strings.TrimSpace(p.UserID)), ids)
	if err != nil {
		s.Logger.Warn("ack_notifications_failed", zap.String("user_id", p.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not update")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (s *Server) monitorFromPath(w http.ResponseWriter, r *http.Request) (*domain.Monitor, bool) {
	id := domain.MonitorID(chi.URLParam(r, "id"))
	m, err := s.Store.Get(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "monitor not found")
		return nil, false
	}
	if err != nil {
		s.Logger.Warn("get_monitor_failed", zap.String("monitor_id", string(id)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup error")
		return nil, false
	}
	return m, true
}

// queryLimit returns the "limit" query value, or 0 for the store default.
func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
