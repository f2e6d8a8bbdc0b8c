package interfaces_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mentorlink/pkg/interfaces"
	"mentorlink/pkg/types"
)

type mockConnection struct{ identity types.Identity }

func (m *mockConnection) ID() string                     { return "conn-1" }
func (m *mockConnection) Identity() types.Identity       { return m.identity }
func (m *mockConnection) Send(event types.Event) error   { return nil }
func (m *mockConnection) Close() error                   { return nil }
func (m *mockConnection) JoinedRooms() []string          { return nil }
func (m *mockConnection) AddRoom(assignmentID string)    {}
func (m *mockConnection) RemoveRoom(assignmentID string) {}

type mockDB struct{}

func (m *mockDB) GetAssignment(ctx context.Context, id string) (*types.Assignment, error) {
	return nil, interfaces.ErrAssignmentNotFound
}
func (m *mockDB) UpdateSectionStatus(ctx context.Context, id string, s types.Section, c bool, at time.Time) (*types.CollaborationSection, error) {
	return &types.CollaborationSection{Completed: c, LastUpdatedAt: &at}, nil
}
func (m *mockDB) CreateAssignment(ctx context.Context, a *types.Assignment) error { return nil }
func (m *mockDB) CreateMessage(ctx context.Context, aid, sid, body string) (*types.AssignmentMessage, error) {
	return &types.AssignmentMessage{AssignmentID: aid, SenderID: sid, Body: body}, nil
}
func (m *mockDB) MarkMessagesRead(ctx context.Context, aid string, ids []string, uid string) error {
	return nil
}
func (m *mockDB) ListMessages(ctx context.Context, aid string) ([]*types.AssignmentMessage, error) {
	return nil, nil
}
func (m *mockDB) HealthCheck(ctx context.Context) error { return nil }
func (m *mockDB) Close() error                          { return nil }

type mockNotifier struct{}

func (mockNotifier) Notify(userID string, payload interface{}) bool { return false }

func TestInterfaces_Conformance(t *testing.T) {
	var _ interfaces.Connection = &mockConnection{}
	var _ interfaces.RoomTracker = &mockConnection{}
	var _ interfaces.DatabaseManager = &mockDB{}
	var _ interfaces.Notifier = mockNotifier{}
}

func TestInterfaces_NotFoundSentinel(t *testing.T) {
	var db interfaces.AssignmentStore = &mockDB{}
	_, err := db.GetAssignment(context.Background(), "missing")
	assert.True(t, errors.Is(err, interfaces.ErrAssignmentNotFound))
}
