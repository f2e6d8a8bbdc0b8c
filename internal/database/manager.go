package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	dbconfig "mentorlink/pkg/database"
	"mentorlink/pkg/interfaces"
	"mentorlink/pkg/types"
)

// Manager is the sqlite implementation of interfaces.DatabaseManager.
// Reads run concurrently on the pool; writes are funnelled through a single
// writer goroutine because sqlite allows one writer at a time.
type Manager struct {
	db           *sqlx.DB
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex

	now   func() time.Time
	newID func() string
}

type writeOperation struct {
	operation func(*sqlx.DB) error
	result    chan error
}

type sectionRow struct {
	Section string `db:"section"`
	types.CollaborationSection
}

type readRow struct {
	MessageID string `db:"message_id"`
	UserID    string `db:"user_id"`
}

// NewManager opens the sqlite database described by config.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sqlx.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db.DB); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	return NewManagerWithDB(db), nil
}

// NewManagerWithDB wraps an already opened database and starts the writer.
func NewManagerWithDB(db *sqlx.DB) *Manager {
	m := &Manager{
		db:           db,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		now:          func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		newID:        func() string { return uuid.New().String() },
	}

	m.wg.Add(1)
	go m.writeLoop()

	return m
}

// Migrate applies the embedded sqlite migrations and validates the schema.
func (m *Manager) Migrate() error {
	migrations := dbconfig.NewMigrationManager(m.db.DB, dbconfig.SQLiteMigrations())
	if err := migrations.ApplyMigrations(); err != nil {
		return err
	}
	return migrations.ValidateSchema()
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			op.result <- op.operation(m.db)
		case <-m.shutdown:
			return
		}
	}
}

// executeWrite queues a write on the single writer and waits for its result.
func (m *Manager) executeWrite(ctx context.Context, operation func(*sqlx.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return interfaces.ErrStoreClosed
	}
	m.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return interfaces.ErrStoreClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateAssignment inserts an assignment with its three sections.
func (m *Manager) CreateAssignment(ctx context.Context, assignment *types.Assignment) error {
	return m.executeWrite(ctx, func(db *sqlx.DB) error {
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		status := assignment.Status
		if status == "" {
			status = "pending"
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO assignments (id, mentor_id, mentee_id, status) VALUES (?, ?, ?, ?)`,
			assignment.ID, assignment.MentorID, assignment.MenteeID, status,
		)
		if err != nil {
			return fmt.Errorf("failed to insert assignment: %w", err)
		}

		for _, name := range types.Sections {
			section := assignment.Section(name)
			_, err = tx.ExecContext(ctx,
				`INSERT INTO collaboration_sections (assignment_id, section, file_reference, notes, completed, last_updated_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				assignment.ID, string(name), section.FileReference, section.Notes, section.Completed, section.LastUpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert section %s: %w", name, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit assignment creation: %w", err)
		}
		assignment.Status = status
		return nil
	})
}

// GetAssignment loads an assignment and its collaboration sections.
func (m *Manager) GetAssignment(ctx context.Context, assignmentID string) (*types.Assignment, error) {
	var assignment types.Assignment
	err := m.db.GetContext(ctx, &assignment,
		`SELECT id, mentor_id, mentee_id, status FROM assignments WHERE id = ?`, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to query assignment: %w", err)
	}

	var rows []sectionRow
	err = m.db.SelectContext(ctx, &rows,
		`SELECT section, file_reference, notes, completed, last_updated_at
		 FROM collaboration_sections WHERE assignment_id = ?`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sections: %w", err)
	}

	for _, row := range rows {
		if section := assignment.Section(types.Section(row.Section)); section != nil {
			*section = normalizeSection(row.CollaborationSection)
		}
	}

	return &assignment, nil
}

// UpdateSectionStatus upserts completed and last_updated_at for one section.
func (m *Manager) UpdateSectionStatus(ctx context.Context, assignmentID string, section types.Section, completed bool, at time.Time) (*types.CollaborationSection, error) {
	if !types.IsValidSection(section) {
		return nil, fmt.Errorf("unknown section %q", section)
	}

	var persisted sectionRow
	err := m.executeWrite(ctx, func(db *sqlx.DB) error {
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var exists int
		if err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM assignments WHERE id = ?`, assignmentID); err != nil {
			return fmt.Errorf("failed to check assignment: %w", err)
		}
		if exists == 0 {
			return interfaces.ErrAssignmentNotFound
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO collaboration_sections (assignment_id, section, completed, last_updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (assignment_id, section)
			 DO UPDATE SET completed = excluded.completed, last_updated_at = excluded.last_updated_at`,
			assignmentID, string(section), completed, at.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to update section: %w", err)
		}

		err = tx.GetContext(ctx, &persisted,
			`SELECT section, file_reference, notes, completed, last_updated_at
			 FROM collaboration_sections WHERE assignment_id = ? AND section = ?`,
			assignmentID, string(section))
		if err != nil {
			return fmt.Errorf("failed to read back section: %w", err)
		}

		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}

	result := normalizeSection(persisted.CollaborationSection)
	return &result, nil
}

// CreateMessage persists a chat message with a server id and timestamp.
func (m *Manager) CreateMessage(ctx context.Context, assignmentID, senderID, body string) (*types.AssignmentMessage, error) {
	message := &types.AssignmentMessage{
		ID:           m.newID(),
		AssignmentID: assignmentID,
		SenderID:     senderID,
		Body:         body,
		CreatedAt:    m.now(),
		ReadBy:       []string{},
	}

	err := m.executeWrite(ctx, func(db *sqlx.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO assignment_messages (id, assignment_id, sender_id, body, created_at) VALUES (?, ?, ?, ?, ?)`,
			message.ID, message.AssignmentID, message.SenderID, message.Body, message.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return message, nil
}

// MarkMessagesRead adds userID to readBy of each message of the assignment.
func (m *Manager) MarkMessagesRead(ctx context.Context, assignmentID string, messageIDs []string, userID string) error {
	readAt := m.now()

	return m.executeWrite(ctx, func(db *sqlx.DB) error {
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for _, messageID := range messageIDs {
			_, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO message_reads (message_id, user_id, read_at)
				 SELECT id, ?, ? FROM assignment_messages WHERE id = ? AND assignment_id = ?`,
				userID, readAt, messageID, assignmentID,
			)
			if err != nil {
				return fmt.Errorf("failed to mark message %s read: %w", messageID, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit read receipts: %w", err)
		}
		return nil
	})
}

// ListMessages returns an assignment's messages in persistence order.
func (m *Manager) ListMessages(ctx context.Context, assignmentID string) ([]*types.AssignmentMessage, error) {
	var messages []*types.AssignmentMessage
	err := m.db.SelectContext(ctx, &messages,
		`SELECT id, assignment_id, sender_id, body, created_at
		 FROM assignment_messages WHERE assignment_id = ? ORDER BY seq ASC`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	var reads []readRow
	err = m.db.SelectContext(ctx, &reads,
		`SELECT r.message_id, r.user_id
		 FROM message_reads r
		 JOIN assignment_messages am ON am.id = r.message_id
		 WHERE am.assignment_id = ?
		 ORDER BY r.read_at ASC, r.user_id ASC`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query read receipts: %w", err)
	}

	return attachReads(messages, reads), nil
}

// HealthCheck validates database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM assignments LIMIT 1"); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// DB returns the underlying handle for migrations and tests.
func (m *Manager) DB() *sqlx.DB {
	return m.db
}

// Close stops the writer and closes the database. Safe to call twice.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

func normalizeSection(s types.CollaborationSection) types.CollaborationSection {
	if s.LastUpdatedAt != nil {
		t := s.LastUpdatedAt.UTC()
		s.LastUpdatedAt = &t
	}
	return s
}

func attachReads(messages []*types.AssignmentMessage, reads []readRow) []*types.AssignmentMessage {
	byID := make(map[string]*types.AssignmentMessage, len(messages))
	for _, message := range messages {
		message.CreatedAt = message.CreatedAt.UTC()
		message.ReadBy = []string{}
		byID[message.ID] = message
	}
	for _, read := range reads {
		if message, ok := byID[read.MessageID]; ok {
			message.ReadBy = append(message.ReadBy, read.UserID)
		}
	}
	return messages
}
