package gate

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"mentorlink/internal/room"
	"mentorlink/pkg/interfaces"
	"mentorlink/pkg/types"

	appErrors "mentorlink/pkg/errors"
)

// Gate decides who may enter an assignment room and re-checks that decision
// on every write.
type Gate struct {
	store  interfaces.AssignmentStore
	rooms  *room.Manager
	logger *zap.Logger
}

func NewGate(store interfaces.AssignmentStore, rooms *room.Manager, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{store: store, rooms: rooms, logger: logger}
}

// Authorize loads the current assignment record and checks that identity is
// its mentor, its mentee or an administrator.
func (g *Gate) Authorize(ctx context.Context, identity types.Identity, assignmentID string) (*types.Assignment, error) {
	if !types.IsValidID(assignmentID) {
		return nil, appErrors.ErrAssignmentNotFound
	}

	assignment, err := g.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, interfaces.ErrAssignmentNotFound) {
			return nil, appErrors.ErrAssignmentNotFound
		}
		return nil, appErrors.Internal(err)
	}

	if !assignment.CanAccess(identity) {
		return nil, appErrors.ErrUnauthorized
	}

	return assignment, nil
}

// Join authorizes conn, adds it to the room and confirms to the caller only.
func (g *Gate) Join(ctx context.Context, conn interfaces.Connection, assignmentID string) error {
	identity := conn.Identity()
	if _, err := g.Authorize(ctx, identity, assignmentID); err != nil {
		return err
	}

	g.rooms.Join(assignmentID, conn)
	g.logger.Debug("joined assignment",
		zap.String("user_id", identity.UserID),
		zap.String("assignment_id", assignmentID),
		zap.String("conn_id", conn.ID()))

	if err := conn.Send(types.NewEvent(types.EventJoinedAssignment, types.AssignmentRef{AssignmentID: assignmentID})); err != nil {
		g.logger.Debug("failed to confirm join", zap.String("conn_id", conn.ID()), zap.Error(err))
	}
	return nil
}

// Leave removes conn from the room and confirms to the caller.
func (g *Gate) Leave(ctx context.Context, conn interfaces.Connection, assignmentID string) error {
	g.rooms.Leave(assignmentID, conn)

	if err := conn.Send(types.NewEvent(types.EventLeftAssignment, types.AssignmentRef{AssignmentID: assignmentID})); err != nil {
		g.logger.Debug("failed to confirm leave", zap.String("conn_id", conn.ID()), zap.Error(err))
	}
	return nil
}

// RequireMember fails with ErrNotJoined unless conn has joined the room.
func (g *Gate) RequireMember(conn interfaces.Connection, assignmentID string) error {
	if !g.rooms.IsMember(assignmentID, conn) {
		return appErrors.ErrNotJoined
	}
	return nil
}
