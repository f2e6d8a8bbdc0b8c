package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	dbconfig "mentorlink/pkg/database"
	"mentorlink/pkg/interfaces"
	"mentorlink/pkg/types"
)

// pgxPool is the subset of *pgxpool.Pool the store uses.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresManager implements interfaces.DatabaseManager on a pgx pool.
// Postgres serialises concurrent writers itself, so there is no write loop.
type PostgresManager struct {
	pool   pgxPool
	logger *zap.Logger
	now    func() time.Time
}

// NewPostgresPool opens and pings a pool for databaseURL.
func NewPostgresPool(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

func NewPostgresManager(pool pgxPool, logger *zap.Logger) *PostgresManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresManager{
		pool:   pool,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Migrate applies the embedded postgres migrations that are not yet recorded.
func (m *PostgresManager) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := m.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations, err := dbconfig.LoadMigrations(dbconfig.PostgresMigrations())
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		var exists bool
		err := m.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", migration.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration %s: %w", migration.Version, err)
		}
		if exists {
			continue
		}

		tx, err := m.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %s: %w", migration.Version, err)
		}

		if _, err := tx.Exec(ctx, migration.SQL); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("failed to execute migration %s: %w", migration.Version, err)
		}

		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version, description) VALUES ($1, $2)", migration.Version, migration.Description); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", migration.Version, err)
		}

		m.logger.Info("applied migration", zap.String("version", migration.Version), zap.String("description", migration.Description))
	}

	return nil
}

func (m *PostgresManager) CreateAssignment(ctx context.Context, assignment *types.Assignment) error {
	status := assignment.Status
	if status == "" {
		status = "pending"
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO assignments (id, mentor_id, mentee_id, status) VALUES ($1, $2, $3, $4)`,
		assignment.ID, assignment.MentorID, assignment.MenteeID, status,
	)
	if err != nil {
		return fmt.Errorf("failed to insert assignment: %w", err)
	}

	for _, name := range types.Sections {
		section := assignment.Section(name)
		_, err = tx.Exec(ctx,
			`INSERT INTO collaboration_sections (assignment_id, section, file_reference, notes, completed, last_updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			assignment.ID, string(name), section.FileReference, section.Notes, section.Completed, section.LastUpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert section %s: %w", name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit assignment creation: %w", err)
	}
	assignment.Status = status
	return nil
}

func (m *PostgresManager) GetAssignment(ctx context.Context, assignmentID string) (*types.Assignment, error) {
	assignment := &types.Assignment{}
	err := m.pool.QueryRow(ctx,
		`SELECT id, mentor_id, mentee_id, status FROM assignments WHERE id = $1`, assignmentID,
	).Scan(&assignment.ID, &assignment.MentorID, &assignment.MenteeID, &assignment.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, interfaces.ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to query assignment: %w", err)
	}

	rows, err := m.pool.Query(ctx,
		`SELECT section, file_reference, notes, completed, last_updated_at
		 FROM collaboration_sections WHERE assignment_id = $1`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var section types.CollaborationSection
		if err := rows.Scan(&name, &section.FileReference, &section.Notes, &section.Completed, &section.LastUpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		if target := assignment.Section(types.Section(name)); target != nil {
			*target = normalizeSection(section)
		}
	}

	return assignment, rows.Err()
}

func (m *PostgresManager) UpdateSectionStatus(ctx context.Context, assignmentID string, section types.Section, completed bool, at time.Time) (*types.CollaborationSection, error) {
	if !types.IsValidSection(section) {
		return nil, fmt.Errorf("unknown section %q", section)
	}

	var exists bool
	if err := m.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM assignments WHERE id = $1)`, assignmentID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check assignment: %w", err)
	}
	if !exists {
		return nil, interfaces.ErrAssignmentNotFound
	}

	var result types.CollaborationSection
	err := m.pool.QueryRow(ctx,
		`INSERT INTO collaboration_sections (assignment_id, section, completed, last_updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (assignment_id, section)
		 DO UPDATE SET completed = EXCLUDED.completed, last_updated_at = EXCLUDED.last_updated_at
		 RETURNING file_reference, notes, completed, last_updated_at`,
		assignmentID, string(section), completed, at.UTC(),
	).Scan(&result.FileReference, &result.Notes, &result.Completed, &result.LastUpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update section: %w", err)
	}

	result = normalizeSection(result)
	return &result, nil
}

func (m *PostgresManager) CreateMessage(ctx context.Context, assignmentID, senderID, body string) (*types.AssignmentMessage, error) {
	message := &types.AssignmentMessage{
		ID:           uuid.New().String(),
		AssignmentID: assignmentID,
		SenderID:     senderID,
		Body:         body,
		CreatedAt:    m.now(),
		ReadBy:       []string{},
	}

	_, err := m.pool.Exec(ctx,
		`INSERT INTO assignment_messages (id, assignment_id, sender_id, body, created_at) VALUES ($1, $2, $3, $4, $5)`,
		message.ID, message.AssignmentID, message.SenderID, message.Body, message.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	return message, nil
}

func (m *PostgresManager) MarkMessagesRead(ctx context.Context, assignmentID string, messageIDs []string, userID string) error {
	_, err := m.pool.Exec(ctx,
		`INSERT INTO message_reads (message_id, user_id, read_at)
		 SELECT id, $1, $2 FROM assignment_messages WHERE assignment_id = $3 AND id = ANY($4)
		 ON CONFLICT (message_id, user_id) DO NOTHING`,
		userID, m.now(), assignmentID, messageIDs,
	)
	if err != nil {
		return fmt.Errorf("failed to mark messages read: %w", err)
	}
	return nil
}

func (m *PostgresManager) ListMessages(ctx context.Context, assignmentID string) ([]*types.AssignmentMessage, error) {
	rows, err := m.pool.Query(ctx,
		`SELECT id, assignment_id, sender_id, body, created_at
		 FROM assignment_messages WHERE assignment_id = $1 ORDER BY seq ASC`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*types.AssignmentMessage
	for rows.Next() {
		message := &types.AssignmentMessage{}
		if err := rows.Scan(&message.ID, &message.AssignmentID, &message.SenderID, &message.Body, &message.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	readRows, err := m.pool.Query(ctx,
		`SELECT r.message_id, r.user_id
		 FROM message_reads r
		 JOIN assignment_messages am ON am.id = r.message_id
		 WHERE am.assignment_id = $1
		 ORDER BY r.read_at ASC, r.user_id ASC`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query read receipts: %w", err)
	}
	defer readRows.Close()

	var reads []readRow
	for readRows.Next() {
		var read readRow
		if err := readRows.Scan(&read.MessageID, &read.UserID); err != nil {
			return nil, fmt.Errorf("failed to scan read receipt: %w", err)
		}
		reads = append(reads, read)
	}
	if err := readRows.Err(); err != nil {
		return nil, err
	}

	return attachReads(messages, reads), nil
}

func (m *PostgresManager) HealthCheck(ctx context.Context) error {
	if err := m.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func (m *PostgresManager) Close() error {
	m.pool.Close()
	return nil
}
