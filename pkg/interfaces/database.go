package interfaces

import (
	"context"
	"time"

	"mentorlink/pkg/types"
)

// AssignmentStore reads assignments and persists collaboration section state.
type AssignmentStore interface {
	// GetAssignment returns ErrAssignmentNotFound when the id is unknown.
	GetAssignment(ctx context.Context, assignmentID string) (*types.Assignment, error)

	// UpdateSectionStatus writes completed and lastUpdatedAt for one section
	// and returns the persisted section. Last write wins.
	UpdateSectionStatus(ctx context.Context, assignmentID string, section types.Section, completed bool, at time.Time) (*types.CollaborationSection, error)

	// CreateAssignment inserts an assignment with empty sections.
	CreateAssignment(ctx context.Context, assignment *types.Assignment) error
}

// MessageStore persists chat messages and read receipts.
type MessageStore interface {
	// CreateMessage persists a message and returns the canonical record with a
	// server-assigned id and timestamp.
	CreateMessage(ctx context.Context, assignmentID, senderID, body string) (*types.AssignmentMessage, error)

	// MarkMessagesRead adds userID to the readBy set of each listed message
	// that belongs to assignmentID. Re-marking is a no-op.
	MarkMessagesRead(ctx context.Context, assignmentID string, messageIDs []string, userID string) error

	// ListMessages returns the assignment's messages in persistence order.
	ListMessages(ctx context.Context, assignmentID string) ([]*types.AssignmentMessage, error)
}

// DatabaseManager is the full persistence collaborator used by the app.
type DatabaseManager interface {
	AssignmentStore
	MessageStore

	HealthCheck(ctx context.Context) error
	Close() error
}
