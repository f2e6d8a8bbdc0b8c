package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbconfig "mentorlink/pkg/database"
	"mentorlink/pkg/interfaces"
	"mentorlink/pkg/types"
)

var _ interfaces.DatabaseManager = (*Manager)(nil)
var _ interfaces.DatabaseManager = (*PostgresManager)(nil)

func setupTestDB(t *testing.T) *Manager {
	t.Helper()

	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	manager, err := NewManager(config)
	require.NoError(t, err)
	require.NoError(t, manager.Migrate())

	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

func createAssignment(t *testing.T, m *Manager, id string) *types.Assignment {
	t.Helper()
	assignment := &types.Assignment{ID: id, MentorID: "mentor_m", MenteeID: "mentee_n"}
	require.NoError(t, m.CreateAssignment(context.Background(), assignment))
	return assignment
}

func TestManager_CreateAndGetAssignment(t *testing.T) {
	m := setupTestDB(t)
	ctx := context.Background()
	createAssignment(t, m, "A-1")

	got, err := m.GetAssignment(ctx, "A-1")
	require.NoError(t, err)
	assert.Equal(t, "mentor_m", got.MentorID)
	assert.Equal(t, "mentee_n", got.MenteeID)
	assert.Equal(t, "pending", got.Status)
	assert.False(t, got.LessonPlanReview.Completed)
	assert.Nil(t, got.ExamPlanReview.LastUpdatedAt)
}

func TestManager_GetAssignmentNotFound(t *testing.T) {
	m := setupTestDB(t)

	_, err := m.GetAssignment(context.Background(), "missing")
	assert.ErrorIs(t, err, interfaces.ErrAssignmentNotFound)
}

func TestManager_UpdateSectionStatus(t *testing.T) {
	m := setupTestDB(t)
	ctx := context.Background()
	createAssignment(t, m, "A-1")

	at := time.Date(2026, 3, 1, 10, 0, 0, 123456000, time.UTC)
	section, err := m.UpdateSectionStatus(ctx, "A-1", types.SectionExamPlanReview, true, at)
	require.NoError(t, err)
	assert.True(t, section.Completed)
	require.NotNil(t, section.LastUpdatedAt)
	assert.True(t, at.Equal(*section.LastUpdatedAt))

	got, err := m.GetAssignment(ctx, "A-1")
	require.NoError(t, err)
	assert.True(t, got.ExamPlanReview.Completed)
	assert.False(t, got.LessonPlanReview.Completed, "other sections are untouched")

	later := at.Add(time.Second)
	section, err = m.UpdateSectionStatus(ctx, "A-1", types.SectionExamPlanReview, false, later)
	require.NoError(t, err)
	assert.False(t, section.Completed)
	assert.True(t, later.Equal(*section.LastUpdatedAt))
}

func TestManager_UpdateSectionStatusUnknownAssignment(t *testing.T) {
	m := setupTestDB(t)

	_, err := m.UpdateSectionStatus(context.Background(), "missing", types.SectionLessonPlanReview, true, time.Now())
	assert.ErrorIs(t, err, interfaces.ErrAssignmentNotFound)
}

func TestManager_UpdateSectionStatusUnknownSection(t *testing.T) {
	m := setupTestDB(t)
	createAssignment(t, m, "A-1")

	_, err := m.UpdateSectionStatus(context.Background(), "A-1", "finalReview", true, time.Now())
	assert.Error(t, err)
}

func TestManager_CreateMessage(t *testing.T) {
	m := setupTestDB(t)
	ctx := context.Background()
	createAssignment(t, m, "A-1")

	message, err := m.CreateMessage(ctx, "A-1", "mentor_m", "ready?")
	require.NoError(t, err)
	assert.NotEmpty(t, message.ID)
	assert.Equal(t, "ready?", message.Body)
	assert.Equal(t, "mentor_m", message.SenderID)
	assert.NotNil(t, message.ReadBy)
	assert.Empty(t, message.ReadBy)
	assert.False(t, message.CreatedAt.IsZero())

	messages, err := m.ListMessages(ctx, "A-1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, message.ID, messages[0].ID)
	assert.True(t, message.CreatedAt.Equal(messages[0].CreatedAt))
}

func TestManager_ListMessagesPersistenceOrder(t *testing.T) {
	m := setupTestDB(t)
	ctx := context.Background()
	createAssignment(t, m, "A-1")
	createAssignment(t, m, "A-2")

	var ids []string
	for i := 0; i < 5; i++ {
		message, err := m.CreateMessage(ctx, "A-1", "mentor_m", fmt.Sprintf("message %d", i))
		require.NoError(t, err)
		ids = append(ids, message.ID)
	}
	_, err := m.CreateMessage(ctx, "A-2", "mentor_m", "elsewhere")
	require.NoError(t, err)

	messages, err := m.ListMessages(ctx, "A-1")
	require.NoError(t, err)
	require.Len(t, messages, 5)
	for i, message := range messages {
		assert.Equal(t, ids[i], message.ID)
	}
}

func TestManager_MarkMessagesReadIsSetUnion(t *testing.T) {
	m := setupTestDB(t)
	ctx := context.Background()
	createAssignment(t, m, "A-1")
	createAssignment(t, m, "A-2")

	first, err := m.CreateMessage(ctx, "A-1", "mentor_m", "one")
	require.NoError(t, err)
	second, err := m.CreateMessage(ctx, "A-1", "mentor_m", "two")
	require.NoError(t, err)
	foreign, err := m.CreateMessage(ctx, "A-2", "mentor_m", "other")
	require.NoError(t, err)

	require.NoError(t, m.MarkMessagesRead(ctx, "A-1", []string{first.ID, second.ID, foreign.ID, "unknown"}, "mentee_n"))
	require.NoError(t, m.MarkMessagesRead(ctx, "A-1", []string{first.ID}, "mentee_n"))

	messages, err := m.ListMessages(ctx, "A-1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, []string{"mentee_n"}, messages[0].ReadBy)
	assert.Equal(t, []string{"mentee_n"}, messages[1].ReadBy)

	others, err := m.ListMessages(ctx, "A-2")
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.Empty(t, others[0].ReadBy, "ids from another assignment are ignored")
}

func TestManager_ConcurrentWrites(t *testing.T) {
	m := setupTestDB(t)
	ctx := context.Background()
	createAssignment(t, m, "A-1")

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.CreateMessage(ctx, "A-1", "mentee_n", fmt.Sprintf("concurrent %d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	messages, err := m.ListMessages(ctx, "A-1")
	require.NoError(t, err)
	assert.Len(t, messages, writers)
}

func TestManager_HealthCheck(t *testing.T) {
	m := setupTestDB(t)
	assert.NoError(t, m.HealthCheck(context.Background()))
}

func TestManager_CloseIsIdempotent(t *testing.T) {
	m := setupTestDB(t)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := m.CreateMessage(context.Background(), "A-1", "mentor_m", "late")
	assert.ErrorIs(t, err, interfaces.ErrStoreClosed)
}

func TestManager_WriteHonoursCancelledContext(t *testing.T) {
	m := setupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.CreateAssignment(ctx, &types.Assignment{ID: "A-9", MentorID: "m", MenteeID: "n"})
	assert.Error(t, err)
}

func TestManager_CreateMessageDriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	m := NewManagerWithDB(sqlx.NewDb(db, "sqlmock"))
	m.newID = func() string { return "msg-1" }
	defer m.Close()

	mock.ExpectExec("INSERT INTO assignment_messages").
		WithArgs("msg-1", "A-1", "mentor_m", "hello", sqlmock.AnyArg()).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectClose()

	_, err = m.CreateMessage(context.Background(), "A-1", "mentor_m", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert message")
	assert.NotErrorIs(t, err, interfaces.ErrAssignmentNotFound)
}

func TestManager_GetAssignmentQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	m := NewManagerWithDB(sqlx.NewDb(db, "sqlmock"))
	defer m.Close()

	mock.ExpectQuery("SELECT id, mentor_id, mentee_id, status FROM assignments").
		WithArgs("A-1").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectClose()

	_, err = m.GetAssignment(context.Background(), "A-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, interfaces.ErrAssignmentNotFound)
}
