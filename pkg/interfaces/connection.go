package interfaces

import "mentorlink/pkg/types"

// Connection is a live, authenticated client handle.
type Connection interface {
	// ID uniquely identifies this handle; two connections of the same user
	// have different ids.
	ID() string

	// Identity returns the immutable identity established at connect time.
	Identity() types.Identity

	// Send queues an event for delivery without blocking. It fails when the
	// connection is closed or its outbound buffer is full.
	Send(event types.Event) error

	// Close closes the connection and releases its resources. Idempotent.
	Close() error
}

// RoomTracker is implemented by connections that remember which assignment
// rooms they joined, so that disconnect cleanup can leave each of them.
type RoomTracker interface {
	JoinedRooms() []string
	AddRoom(assignmentID string)
	RemoveRoom(assignmentID string)
}
