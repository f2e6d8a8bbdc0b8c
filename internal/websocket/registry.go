package websocket

import (
	"sync"

	"go.uber.org/zap"

	"mentorlink/internal/metrics"
	"mentorlink/pkg/interfaces"
)

// Registry maps a user id to that user's most recent live connection.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]interfaces.Connection
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

func NewRegistry(logger *zap.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		connections: make(map[string]interfaces.Connection),
		logger:      logger,
		metrics:     m,
	}
}

// Register makes conn the live connection of its user. A previous
// connection of the same user stays open but is no longer reachable
// through Lookup.
func (r *Registry) Register(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	userID := conn.Identity().UserID
	if userID == "" {
		return ErrMissingIdentity
	}

	r.mu.Lock()
	previous, replaced := r.connections[userID]
	r.connections[userID] = conn
	r.mu.Unlock()

	if replaced {
		r.logger.Debug("connection superseded",
			zap.String("user_id", userID),
			zap.String("previous_connection", previous.ID()),
			zap.String("connection", conn.ID()))
	} else {
		r.metrics.ConnectionOpened()
	}

	return nil
}

// Unregister removes conn only if it is still the registered connection of
// its user. It reports whether anything was removed and is safe to call
// more than once.
func (r *Registry) Unregister(conn interfaces.Connection) bool {
	if conn == nil {
		return false
	}

	userID := conn.Identity().UserID

	r.mu.Lock()
	registered, exists := r.connections[userID]
	if !exists || registered.ID() != conn.ID() {
		r.mu.Unlock()
		return false
	}
	delete(r.connections, userID)
	r.mu.Unlock()

	r.metrics.ConnectionClosed()
	return true
}

// Lookup returns the live connection for userID.
func (r *Registry) Lookup(userID string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[userID]
	return conn, exists
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// GetStats returns registry statistics for monitoring.
func (r *Registry) GetStats() map[string]int {
	return map[string]int{
		"total_connections": r.Count(),
	}
}
