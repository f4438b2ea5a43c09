// Package database provides SQLite storage for the request history
package database

import (
	"database/sql"
	"fmt"
	"time"

	"media-fetch-bot/pkg/models"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	// Add connection parameters to help with concurrent access
	connString := dbPath
	if dbPath != ":memory:" {
		connString = dbPath + "?_busy_timeout=30000&_journal_mode=WAL&_synchronous=NORMAL"
	}

	conn, err := sql.Open("sqlite", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't handle concurrent writes well
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		chat_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		url TEXT NOT NULL,
		profile TEXT NOT NULL,
		status TEXT NOT NULL,
		error_message TEXT,
		file_size INTEGER DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);
	CREATE INDEX IF NOT EXISTS idx_requests_user_id ON requests(user_id);
	CREATE INDEX IF NOT EXISTS idx_requests_created_at ON requests(created_at);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// CreateRequest creates a new request history record
func (db *DB) CreateRequest(record *models.RequestRecord) error {
	query := `
	INSERT INTO requests (
		id, chat_id, user_id, url, profile, status,
		error_message, file_size, created_at, updated_at, completed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.conn.Exec(query,
		record.ID, record.ChatID, record.UserID, record.URL,
		record.Profile, record.Status, record.ErrorMessage,
		record.FileSize, record.CreatedAt, record.UpdatedAt,
		record.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create request record: %w", err)
	}

	return nil
}

// UpdateRequest updates an existing request history record
func (db *DB) UpdateRequest(record *models.RequestRecord) error {
	query := `
	UPDATE requests SET
		status = ?, error_message = ?, file_size = ?,
		updated_at = ?, completed_at = ?
	WHERE id = ?
	`

	result, err := db.conn.Exec(query,
		record.Status, record.ErrorMessage, record.FileSize,
		record.UpdatedAt, record.CompletedAt, record.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update request record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("request record not found: %s", record.ID)
	}

	return nil
}

// GetRequest retrieves a request record by ID
func (db *DB) GetRequest(id string) (*models.RequestRecord, error) {
	query := `
	SELECT id, chat_id, user_id, url, profile, status,
		error_message, file_size, created_at, updated_at, completed_at
	FROM requests WHERE id = ?
	`

	record := &models.RequestRecord{}
	var errorMessage sql.NullString

	err := db.conn.QueryRow(query, id).Scan(
		&record.ID, &record.ChatID, &record.UserID, &record.URL,
		&record.Profile, &record.Status, &errorMessage,
		&record.FileSize, &record.CreatedAt, &record.UpdatedAt,
		&record.CompletedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("request record not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get request record: %w", err)
	}

	record.ErrorMessage = errorMessage.String
	return record, nil
}

// ListRecentRequests returns the most recent request records
func (db *DB) ListRecentRequests(limit int) ([]*models.RequestRecord, error) {
	query := `
	SELECT id, chat_id, user_id, url, profile, status,
		error_message, file_size, created_at, updated_at, completed_at
	FROM requests ORDER BY created_at DESC LIMIT ?
	`

	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list request records: %w", err)
	}
	defer rows.Close()

	var records []*models.RequestRecord
	for rows.Next() {
		record := &models.RequestRecord{}
		var errorMessage sql.NullString

		if err := rows.Scan(
			&record.ID, &record.ChatID, &record.UserID, &record.URL,
			&record.Profile, &record.Status, &errorMessage,
			&record.FileSize, &record.CreatedAt, &record.UpdatedAt,
			&record.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan request record: %w", err)
		}

		record.ErrorMessage = errorMessage.String
		records = append(records, record)
	}

	return records, rows.Err()
}

// CountByStatus returns how many requests sit in each status
func (db *DB) CountByStatus() (map[models.RequestStatus]int, error) {
	rows, err := db.conn.Query(`SELECT status, COUNT(*) FROM requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count requests: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.RequestStatus]int)
	for rows.Next() {
		var status models.RequestStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}

	return counts, rows.Err()
}

// DeleteOldRequests removes records older than the retention period
func (db *DB) DeleteOldRequests(retention time.Duration) error {
	cutoff := time.Now().Add(-retention)

	_, err := db.conn.Exec(`DELETE FROM requests WHERE created_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to delete old request records: %w", err)
	}

	return nil
}
