package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mentorlink/pkg/types"
)

// Authenticator turns an upgrade request into an identity.
type Authenticator interface {
	Authenticate(r *http.Request) (types.Identity, error)
}

// Dispatcher receives every inbound frame of a connection, in order, and is
// told once when the connection goes away.
type Dispatcher interface {
	HandleMessage(conn *Connection, data []byte)
	HandleDisconnect(conn *Connection)
}

// HandlerConfig carries the connection tuning knobs.
type HandlerConfig struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	MaxMessageSize int64
	AllowedOrigins []string
}

func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteTimeout:   5 * time.Second,
		SendBuffer:     DefaultSendBuffer,
		MaxMessageSize: 64 * 1024,
	}
}

// Handler authenticates upgrade requests, registers the resulting
// connection and pumps its frames into the dispatcher.
type Handler struct {
	registry      *Registry
	authenticator Authenticator
	dispatcher    Dispatcher
	config        HandlerConfig
	upgrader      websocket.Upgrader
	logger        *zap.Logger

	// live holds every upgraded connection until its read loop exits,
	// including ones the registry no longer points at.
	mu      sync.Mutex
	live    map[string]*Connection
	closing bool
	wg      sync.WaitGroup
}

func NewHandler(registry *Registry, authenticator Authenticator, dispatcher Dispatcher, config HandlerConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	defaults := DefaultHandlerConfig()
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.PongWait <= config.PingInterval {
		config.PongWait = 2 * config.PingInterval
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = defaults.MaxMessageSize
	}

	h := &Handler{
		registry:      registry,
		authenticator: authenticator,
		dispatcher:    dispatcher,
		config:        config,
		logger:        logger,
		live:          make(map[string]*Connection),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

// SetDispatcher wires the dispatcher after construction.
func (h *Handler) SetDispatcher(dispatcher Dispatcher) {
	h.dispatcher = dispatcher
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// HandleWebSocket authenticates before upgrading so that rejected clients
// get a plain HTTP 401.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := h.authenticator.Authenticate(r)
	if err != nil {
		h.logger.Debug("websocket authentication failed", zap.Error(err), zap.String("remote_addr", r.RemoteAddr))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err), zap.String("user_id", identity.UserID))
		return
	}

	wsConn := NewConnection(conn, identity, h.config.SendBuffer, h.config.WriteTimeout)
	if !h.track(wsConn) {
		_ = wsConn.Close()
		return
	}

	if err := h.registry.Register(wsConn); err != nil {
		h.logger.Error("failed to register connection", zap.Error(err), zap.String("user_id", identity.UserID))
		_ = wsConn.Close()
		h.untrack(wsConn)
		return
	}

	h.logger.Info("connection established",
		zap.String("user_id", identity.UserID),
		zap.String("role", identity.Role),
		zap.String("connection", wsConn.ID()))

	go h.handleConnection(wsConn)
}

func (h *Handler) track(conn *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.live[conn.ID()] = conn
	h.wg.Add(1)
	return true
}

func (h *Handler) untrack(conn *Connection) {
	h.mu.Lock()
	_, ok := h.live[conn.ID()]
	delete(h.live, conn.ID())
	h.mu.Unlock()
	if ok {
		h.wg.Done()
	}
}

// Live reports how many upgraded connections are still being served.
func (h *Handler) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

// Shutdown refuses further upgrades, closes every live connection, and
// waits for their read loops to finish or ctx to end. It returns how many
// connections it closed.
func (h *Handler) Shutdown(ctx context.Context) (int, error) {
	h.mu.Lock()
	h.closing = true
	snapshot := make([]*Connection, 0, len(h.live))
	for _, conn := range h.live {
		snapshot = append(snapshot, conn)
	}
	h.mu.Unlock()

	for _, conn := range snapshot {
		_ = conn.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return len(snapshot), nil
	case <-ctx.Done():
		return len(snapshot), ctx.Err()
	}
}

func (h *Handler) handleConnection(conn *Connection) {
	defer h.untrack(conn)
	defer func() {
		if h.dispatcher != nil {
			h.dispatcher.HandleDisconnect(conn)
		} else {
			h.registry.Unregister(conn)
			_ = conn.Close()
		}
		h.logger.Info("connection closed",
			zap.String("user_id", conn.Identity().UserID),
			zap.String("connection", conn.ID()))
	}()

	conn.conn.SetReadLimit(h.config.MaxMessageSize)
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.config.PongWait)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	})

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", zap.Error(err), zap.String("user_id", conn.Identity().UserID))
			}
			return
		}

		if messageType != websocket.TextMessage || h.dispatcher == nil {
			continue
		}
		h.dispatcher.HandleMessage(conn, data)
	}
}
