package ratelimit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteFileName is the database file created inside the data directory.
const SQLiteFileName = "dqmon.db"

// SQLiteStore keeps limiter state in a SQLite database so it survives
// restarts of a single host.
//
// Design decision: one row per key with the emission list stored as JSON.
// The window never holds more than max-per-hour timestamps, so a row stays
// small and a read is a single primary key lookup.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// SQLiteOptions configures SQLiteStore behavior.
type SQLiteOptions struct {
	// CreateIfNotExists creates the directory and database file if missing.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultSQLiteOptions returns the default options.
func DefaultSQLiteOptions() SQLiteOptions {
	return SQLiteOptions{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// OpenSQLite opens or creates the limiter database in dir.
func OpenSQLite(dir string, opts SQLiteOptions) (*SQLiteStore, error) {
	dbPath := filepath.Join(dir, SQLiteFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite: mode=rw refuses to create the file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.dbPath }

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rate_limits (
		alert_key TEXT PRIMARY KEY,
		emissions TEXT NOT NULL,
		cooldown_until TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_rate_limits_updated ON rate_limits(updated_at);
	`
	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// Get loads the state of key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (State, error) {
	query := `
	SELECT emissions, cooldown_until FROM rate_limits
	WHERE alert_key = ?
	`

	var emissionsJSON string
	var cooldown sql.NullString
	err := s.db.QueryRowContext(ctx, query, key).Scan(&emissionsJSON, &cooldown)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("failed to get rate limit state: %w", err)
	}

	var state State
	if err := json.Unmarshal([]byte(emissionsJSON), &state.Emissions); err != nil {
		return State{}, fmt.Errorf("failed to parse emissions: %w", err)
	}
	if cooldown.Valid && cooldown.String != "" {
		t, err := time.Parse(time.RFC3339Nano, cooldown.String)
		if err != nil {
			return State{}, fmt.Errorf("failed to parse cooldown: %w", err)
		}
		state.CooldownUntil = t
	}
	return state, nil
}

// Put upserts the state of key.
func (s *SQLiteStore) Put(ctx context.Context, key string, state State) error {
	emissions := state.Emissions
	if emissions == nil {
		emissions = []time.Time{}
	}
	emissionsJSON, err := json.Marshal(emissions)
	if err != nil {
		return fmt.Errorf("failed to serialize emissions: %w", err)
	}

	var cooldown sql.NullString
	if !state.CooldownUntil.IsZero() {
		cooldown = sql.NullString{String: state.CooldownUntil.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	query := `
	INSERT INTO rate_limits (alert_key, emissions, cooldown_until)
	VALUES (?, ?, ?)
	ON CONFLICT(alert_key) DO UPDATE SET
		emissions = excluded.emissions,
		cooldown_until = excluded.cooldown_until,
		updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, key, string(emissionsJSON), cooldown); err != nil {
		return fmt.Errorf("failed to save rate limit state: %w", err)
	}
	return nil
}

// DeleteIdle removes keys that have not been written for longer than idle.
func (s *SQLiteStore) DeleteIdle(ctx context.Context, idle time.Duration) (int64, error) {
	modifier := fmt.Sprintf("-%d seconds", int(idle.Seconds()))
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM rate_limits WHERE updated_at < datetime('now', ?)`, modifier)
	if err != nil {
		return 0, fmt.Errorf("failed to delete idle keys: %w", err)
	}
	return result.RowsAffected()
}
