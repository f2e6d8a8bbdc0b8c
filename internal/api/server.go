package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"mentorlink/internal/metrics"
	"mentorlink/internal/websocket"
	"mentorlink/pkg/interfaces"
	"mentorlink/pkg/types"
)

// HealthChecker is the part of the store the health endpoint needs.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ConnectionDirectory reports who is connected.
type ConnectionDirectory interface {
	Lookup(userID string) (interfaces.Connection, bool)
	GetStats() map[string]int
}

type RoomStats interface {
	Stats() map[string]int
}

// NotificationRouter delivers to one user or to many.
type NotificationRouter interface {
	interfaces.Notifier
	NotifyAll(notifications []types.Notification) int
}

// Deps are the collaborators the HTTP surface reads from.
type Deps struct {
	Store         HealthChecker
	Connections   ConnectionDirectory
	Rooms         RoomStats
	Notifier      NotificationRouter
	Authenticator websocket.Authenticator
	WebSocket     http.Handler
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
}

// Server is the HTTP surface: health, stats, presence, notification ingress
// and the websocket upgrade. It holds no collaboration logic of its own.
type Server struct {
	deps      Deps
	validate  *validator.Validate
	logger    *zap.Logger
	router    chi.Router
	startedAt time.Time
}

func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &Server{
		deps:      deps,
		validate:  validator.New(),
		logger:    deps.Logger,
		router:    chi.NewRouter(),
		startedAt: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.metricsMiddleware)
	r.Use(s.corsMiddleware)

	r.With(s.jsonMiddleware).Get("/health", s.healthCheck)
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics.Handler())
	}
	if s.deps.WebSocket != nil {
		r.Handle("/ws", s.deps.WebSocket)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.jsonMiddleware)
		r.Get("/stats", s.getStats)
		r.Get("/presence/{userID}", s.getPresence)
		r.With(s.requireAdmin).Post("/notifications", s.postNotification)
		r.With(s.requireAdmin).Post("/notifications/batch", s.postNotificationBatch)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type HealthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Database    string                 `json:"database"`
	Connections map[string]int         `json:"connections"`
	System      map[string]interface{} `json:"system"`
}

type StatsResponse struct {
	Connections map[string]int   `json:"connections"`
	Rooms       map[string]int   `json:"rooms"`
	Metrics     metrics.Snapshot `json:"metrics"`
}

type PresenceResponse struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// NotificationRequest is the body of POST /api/notifications.
type NotificationRequest struct {
	UserID  string          `json:"userId" validate:"required,max=50"`
	Payload json.RawMessage `json:"payload"`
}

type NotificationResponse struct {
	Delivered bool `json:"delivered"`
}

// BatchNotificationRequest is the body of POST /api/notifications/batch.
type BatchNotificationRequest struct {
	Notifications []NotificationRequest `json:"notifications" validate:"required,min=1,max=500,dive"`
}

type BatchNotificationResponse struct {
	Requested int `json:"requested"`
	Delivered int `json:"delivered"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GET /health. Returns 503 when the store does not answer.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if s.deps.Store != nil {
		if err := s.deps.Store.HealthCheck(ctx); err != nil {
			status = "unhealthy"
			dbStatus = "unavailable"
			s.logger.Warn("health check failed", zap.Error(err))
		}
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Database:    dbStatus,
		Connections: s.connectionStats(),
		System: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"uptime":     time.Since(s.startedAt).Round(time.Second).String(),
		},
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, response)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	rooms := map[string]int{}
	if s.deps.Rooms != nil {
		rooms = s.deps.Rooms.Stats()
	}
	s.writeJSON(w, http.StatusOK, StatsResponse{
		Connections: s.connectionStats(),
		Rooms:       rooms,
		Metrics:     s.deps.Metrics.Snapshot(),
	})
}

func (s *Server) getPresence(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if !types.IsValidID(userID) {
		s.sendError(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	online := false
	if s.deps.Connections != nil {
		_, online = s.deps.Connections.Lookup(userID)
	}
	s.writeJSON(w, http.StatusOK, PresenceResponse{UserID: userID, Online: online})
}

// POST /api/notifications hands a payload to the notifier. Offline
// recipients are not an error: the response just says delivered=false.
func (s *Server) postNotification(w http.ResponseWriter, r *http.Request) {
	var req NotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil || !types.IsValidID(req.UserID) {
		s.sendError(w, "userId is required", http.StatusBadRequest)
		return
	}
	if s.deps.Notifier == nil {
		s.sendError(w, "Notifications are not available", http.StatusServiceUnavailable)
		return
	}

	var payload interface{} = req.Payload
	if len(req.Payload) == 0 {
		payload = nil
	}
	delivered := s.deps.Notifier.Notify(req.UserID, payload)
	s.writeJSON(w, http.StatusAccepted, NotificationResponse{Delivered: delivered})
}

// POST /api/notifications/batch fans a list of notifications out. The
// whole batch is rejected if any entry is malformed.
func (s *Server) postNotificationBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.sendError(w, "notifications must hold 1 to 500 entries with a userId", http.StatusBadRequest)
		return
	}
	if s.deps.Notifier == nil {
		s.sendError(w, "Notifications are not available", http.StatusServiceUnavailable)
		return
	}

	batch := make([]types.Notification, 0, len(req.Notifications))
	for _, n := range req.Notifications {
		if !types.IsValidID(n.UserID) {
			s.sendError(w, "userId is required", http.StatusBadRequest)
			return
		}
		var payload interface{} = n.Payload
		if len(n.Payload) == 0 {
			payload = nil
		}
		batch = append(batch, types.Notification{UserID: n.UserID, Payload: payload})
	}

	delivered := s.deps.Notifier.NotifyAll(batch)
	s.writeJSON(w, http.StatusAccepted, BatchNotificationResponse{Requested: len(batch), Delivered: delivered})
}

func (s *Server) connectionStats() map[string]int {
	if s.deps.Connections == nil {
		return map[string]int{}
	}
	return s.deps.Connections.GetStats()
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// requireAdmin lets through only requests bearing an administrator token.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Authenticator == nil {
			s.sendError(w, "Authentication is not configured", http.StatusUnauthorized)
			return
		}
		identity, err := s.deps.Authenticator.Authenticate(r)
		if err != nil {
			s.sendError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if !identity.IsAdmin() {
			s.sendError(w, "Administrator role required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.deps.Metrics.ObserveHTTPRequest(r.Method, route, status)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.String("status", strconv.Itoa(status)))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
