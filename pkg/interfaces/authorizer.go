package interfaces

import (
	"context"

	"mentorlink/pkg/types"
)

// Authorizer decides whether an identity may act on an assignment. Every
// write path calls it against the current assignment record.
type Authorizer interface {
	Authorize(ctx context.Context, identity types.Identity, assignmentID string) (*types.Assignment, error)
}
