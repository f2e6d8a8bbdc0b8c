package notify

import (
	"go.uber.org/zap"

	"mentorlink/internal/metrics"
	"mentorlink/pkg/interfaces"
	"mentorlink/pkg/types"
)

// Directory resolves a user to their live connection.
type Directory interface {
	Lookup(userID string) (interfaces.Connection, bool)
}

// Router delivers notifications to users who are connected right now.
// Offline users are skipped; the REST layer keeps the durable copy.
type Router struct {
	directory Directory
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewRouter(directory Directory, logger *zap.Logger, m *metrics.Metrics) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{directory: directory, logger: logger, metrics: m}
}

// Notify sends payload to userID's current connection and reports whether
// it was queued. It never blocks and never returns an error.
func (r *Router) Notify(userID string, payload interface{}) bool {
	conn, ok := r.directory.Lookup(userID)
	if !ok {
		r.metrics.ObserveNotification(false)
		return false
	}

	if err := conn.Send(types.NewEvent(types.EventNotification, payload)); err != nil {
		r.logger.Debug("notification dropped",
			zap.String("user_id", userID),
			zap.String("conn_id", conn.ID()),
			zap.Error(err))
		r.metrics.ObserveNotification(false)
		return false
	}

	r.metrics.ObserveNotification(true)
	return true
}

// NotifyAll delivers each notification in order and returns how many
// were queued.
func (r *Router) NotifyAll(notifications []types.Notification) int {
	delivered := 0
	for _, n := range notifications {
		if r.Notify(n.UserID, n.Payload) {
			delivered++
		}
	}
	return delivered
}
