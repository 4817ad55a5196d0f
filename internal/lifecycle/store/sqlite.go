package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	apperrors "github.com/agentsocial/agentsocial/internal/common/errors"
	v1 "github.com/agentsocial/agentsocial/pkg/api/v1"
)

// SQLiteStore provides SQLite-backed command history storage.
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the history database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS commands (
		id TEXT PRIMARY KEY,
		correlation_id TEXT NOT NULL DEFAULT '',
		app_id TEXT NOT NULL,
		chat_id TEXT NOT NULL,
		command TEXT NOT NULL,
		project_root TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		plan TEXT NOT NULL DEFAULT '',
		output TEXT NOT NULL DEFAULT '',
		exit_code INTEGER,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_commands_correlation ON commands(correlation_id);
	CREATE INDEX IF NOT EXISTS idx_commands_chat ON commands(app_id, chat_id);
	CREATE INDEX IF NOT EXISTS idx_commands_updated ON commands(updated_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Create persists a new command record.
func (s *SQLiteStore) Create(ctx context.Context, rec *v1.CommandRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO commands (id, correlation_id, app_id, chat_id, command, project_root, state, plan, output, exit_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.CorrelationID, rec.AppID, rec.ChatID, rec.Command, rec.ProjectRoot, rec.State, rec.Plan, rec.Output, rec.ExitCode, rec.CreatedAt, rec.UpdatedAt)

	return err
}

// Get retrieves a record by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*v1.CommandRecord, error) {
	return s.queryOne(ctx, `WHERE id = ?`, id)
}

// GetByCorrelation retrieves a record by correlation ID.
func (s *SQLiteStore) GetByCorrelation(ctx context.Context, correlationID string) (*v1.CommandRecord, error) {
	return s.queryOne(ctx, `WHERE correlation_id = ?`, correlationID)
}

func (s *SQLiteStore) queryOne(ctx context.Context, where string, arg any) (*v1.CommandRecord, error) {
	rec := &v1.CommandRecord{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, correlation_id, app_id, chat_id, command, project_root, state, plan, output, exit_code, created_at, updated_at
		FROM commands `+where,
		arg,
	).Scan(&rec.ID, &rec.CorrelationID, &rec.AppID, &rec.ChatID, &rec.Command, &rec.ProjectRoot, &rec.State, &rec.Plan, &rec.Output, &rec.ExitCode, &rec.CreatedAt, &rec.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("command", fmt.Sprintf("%v", arg))
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Update persists changes to an existing record.
func (s *SQLiteStore) Update(ctx context.Context, rec *v1.CommandRecord) error {
	rec.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE commands SET state = ?, plan = ?, output = ?, exit_code = ?, updated_at = ?
		WHERE id = ?
	`, rec.State, rec.Plan, rec.Output, rec.ExitCode, rec.UpdatedAt, rec.ID)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.NotFound("command", rec.ID)
	}
	return nil
}

// ListRecent returns the most recently updated records, newest first.
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]*v1.CommandRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, correlation_id, app_id, chat_id, command, project_root, state, plan, output, exit_code, created_at, updated_at
		FROM commands ORDER BY updated_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanRecords(rows)
}

// ListByChat returns a conversation's records, newest first.
func (s *SQLiteStore) ListByChat(ctx context.Context, appID, chatID string, limit int) ([]*v1.CommandRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, correlation_id, app_id, chat_id, command, project_root, state, plan, output, exit_code, created_at, updated_at
		FROM commands WHERE app_id = ? AND chat_id = ? ORDER BY updated_at DESC LIMIT ?
	`, appID, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanRecords(rows)
}

func (s *SQLiteStore) scanRecords(rows *sql.Rows) ([]*v1.CommandRecord, error) {
	var result []*v1.CommandRecord
	for rows.Next() {
		rec := &v1.CommandRecord{}
		err := rows.Scan(&rec.ID, &rec.CorrelationID, &rec.AppID, &rec.ChatID, &rec.Command, &rec.ProjectRoot, &rec.State, &rec.Plan, &rec.Output, &rec.ExitCode, &rec.CreatedAt, &rec.UpdatedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}
