package collab

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mentorlink/internal/room"
	"mentorlink/pkg/interfaces"
	"mentorlink/pkg/types"

	appErrors "mentorlink/pkg/errors"
)

// Pipeline toggles collaboration sections. Sections are independent: no
// section requires another to be completed first.
type Pipeline struct {
	gate   interfaces.Authorizer
	rooms  *room.Manager
	store  interfaces.AssignmentStore
	now    func() time.Time
	logger *zap.Logger
}

func NewPipeline(g interfaces.Authorizer, rooms *room.Manager, store interfaces.AssignmentStore, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		gate:   g,
		rooms:  rooms,
		store:  store,
		now:    time.Now,
		logger: logger,
	}
}

// UpdateTaskStatus persists completed for section with a fresh
// lastUpdatedAt and broadcasts the result to the room. Concurrent updates
// resolve last-write-wins in persistence order.
func (p *Pipeline) UpdateTaskStatus(ctx context.Context, conn interfaces.Connection, assignmentID string, section types.Section, completed bool) (*types.CollaborationUpdateEvent, error) {
	if !types.IsValidSection(section) {
		return nil, appErrors.Invalid("Invalid section")
	}

	identity := conn.Identity()
	var update *types.CollaborationUpdateEvent

	err := p.rooms.Sequence(assignmentID, func() error {
		assignment, err := p.gate.Authorize(ctx, identity, assignmentID)
		if err != nil {
			return err
		}

		at := nextTimestamp(p.now(), assignment.Section(section).LastUpdatedAt)

		persisted, err := p.store.UpdateSectionStatus(ctx, assignmentID, section, completed, at)
		if err != nil {
			return appErrors.Internal(err)
		}
		if persisted.LastUpdatedAt != nil {
			at = *persisted.LastUpdatedAt
		}

		update = &types.CollaborationUpdateEvent{
			AssignmentID:  assignmentID,
			Section:       section,
			Completed:     persisted.Completed,
			LastUpdatedAt: at,
		}
		p.rooms.Broadcast(assignmentID, types.NewEvent(types.EventCollaborationUpdate, *update), "")
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Debug("task status updated",
		zap.String("user_id", identity.UserID),
		zap.String("assignment_id", assignmentID),
		zap.String("section", string(section)),
		zap.Bool("completed", completed))
	return update, nil
}

// nextTimestamp returns now at microsecond precision, bumped past previous
// so that lastUpdatedAt strictly increases per section.
func nextTimestamp(now time.Time, previous *time.Time) time.Time {
	at := now.UTC().Truncate(time.Microsecond)
	if previous != nil && !at.After(*previous) {
		at = previous.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	}
	return at
}
