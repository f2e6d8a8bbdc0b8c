package interfaces

// Notifier delivers a single event to a user if and only if they are
// currently connected. It never blocks and never reports failure to callers
// beyond the delivered flag.
type Notifier interface {
	Notify(userID string, payload interface{}) bool
}
