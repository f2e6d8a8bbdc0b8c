package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator checks that an sqlite database has the structure the
// stores expect.
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist.
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"assignments":            "Assignment participants",
		"collaboration_sections": "Collaboration checklist state",
		"assignment_messages":    "Chat messages",
		"message_reads":          "Read receipts",
		"schema_migrations":      "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.objectExists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies column types of the message tables.
func (v *SchemaValidator) ValidateTableStructure() error {
	sectionColumns := map[string]string{
		"assignment_id":   "TEXT",
		"section":         "TEXT",
		"file_reference":  "TEXT",
		"notes":           "TEXT",
		"completed":       "BOOLEAN",
		"last_updated_at": "DATETIME",
	}
	if err := v.validateColumns("collaboration_sections", sectionColumns); err != nil {
		return fmt.Errorf("collaboration_sections table structure invalid: %w", err)
	}

	messageColumns := map[string]string{
		"seq":           "INTEGER",
		"id":            "TEXT",
		"assignment_id": "TEXT",
		"sender_id":     "TEXT",
		"body":          "TEXT",
		"created_at":    "DATETIME",
	}
	if err := v.validateColumns("assignment_messages", messageColumns); err != nil {
		return fmt.Errorf("assignment_messages table structure invalid: %w", err)
	}

	return nil
}

// ValidateIndexes verifies that the lookup indexes exist.
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_assignments_mentor":      "Mentor assignment lookups",
		"idx_assignments_mentee":      "Mentee assignment lookups",
		"idx_messages_assignment_seq": "Message history in persistence order",
		"idx_message_reads_user":      "Read receipt lookups",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.objectExists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

func (v *SchemaValidator) objectExists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid, notNull, pk int
		var name, dataType string
		var defaultValue interface{}

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		foundColumns[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for expectedCol, expectedType := range expectedColumns {
		foundType, exists := foundColumns[expectedCol]
		if !exists {
			return fmt.Errorf("column %s not found", expectedCol)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", expectedCol, foundType, expectedType)
		}
	}

	return nil
}
