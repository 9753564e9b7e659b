// Package healthstore persists plugin health history in a SQLite database so
// `llx health` can show failures from earlier runs.
package healthstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/platinummonkey/llx/pkg/plugins"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store implements plugins.HealthStore on SQLite.
type Store struct {
	db *sql.DB
}

var _ plugins.HealthStore = (*Store)(nil)

// Open opens or creates the database at path, creating its directory.
func Open(path string) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create health database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open health database: %w", err)
	}
	// Each :memory: connection is a separate database.
	db.SetMaxOpenConns(1)

	store, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an open database, creating the tables if needed.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, fmt.Errorf("failed to ensure health tables: %w", err)
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS plugin_health_events (
		id TEXT PRIMARY KEY,
		plugin TEXT NOT NULL,
		occurred_at INTEGER NOT NULL,
		message TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_plugin_health_events_plugin ON plugin_health_events(plugin, occurred_at);

	CREATE TABLE IF NOT EXISTS plugin_missing_dependencies (
		plugin TEXT NOT NULL,
		dependency TEXT NOT NULL,
		recorded_at INTEGER NOT NULL,
		PRIMARY KEY (plugin, dependency)
	);
	`

	_, err := s.db.Exec(query)
	return err
}

// AppendError stores one health event.
func (s *Store) AppendError(ctx context.Context, plugin string, ev plugins.HealthEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO plugin_health_events (id, plugin, occurred_at, message) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), plugin, ev.At.UnixNano(), ev.Message,
	)
	if err != nil {
		return fmt.Errorf("failed to insert health event: %w", err)
	}
	return nil
}

// AddMissingDependency records dep for plugin. Recording it again is a no-op.
func (s *Store) AddMissingDependency(ctx context.Context, plugin, dep string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO plugin_missing_dependencies (plugin, dependency, recorded_at) VALUES (?, ?, ?)`,
		plugin, dep, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert missing dependency: %w", err)
	}
	return nil
}

// Load returns every stored event for plugin, oldest first, and its missing
// dependencies sorted by name.
func (s *Store) Load(ctx context.Context, plugin string) (plugins.HealthRecord, error) {
	rec := plugins.HealthRecord{Plugin: plugin}

	rows, err := s.db.QueryContext(ctx,
		`SELECT occurred_at, message FROM plugin_health_events WHERE plugin = ? ORDER BY occurred_at, rowid`,
		plugin,
	)
	if err != nil {
		return rec, fmt.Errorf("failed to query health events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			at  int64
			msg string
		)
		if err := rows.Scan(&at, &msg); err != nil {
			return rec, fmt.Errorf("failed to scan health event: %w", err)
		}
		rec.Errors = append(rec.Errors, plugins.HealthEvent{At: time.Unix(0, at), Message: msg})
	}
	if err := rows.Err(); err != nil {
		return rec, fmt.Errorf("failed to read health events: %w", err)
	}

	deps, err := s.db.QueryContext(ctx,
		`SELECT dependency FROM plugin_missing_dependencies WHERE plugin = ? ORDER BY dependency`,
		plugin,
	)
	if err != nil {
		return rec, fmt.Errorf("failed to query missing dependencies: %w", err)
	}
	defer deps.Close()

	for deps.Next() {
		var dep string
		if err := deps.Scan(&dep); err != nil {
			return rec, fmt.Errorf("failed to scan missing dependency: %w", err)
		}
		rec.MissingDependencies = append(rec.MissingDependencies, dep)
	}
	return rec, deps.Err()
}

// Plugins lists every plugin with stored history, sorted.
func (s *Store) Plugins(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT plugin FROM plugin_health_events
		UNION
		SELECT plugin FROM plugin_missing_dependencies
		ORDER BY plugin`)
	if err != nil {
		return nil, fmt.Errorf("failed to query plugins: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan plugin: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Clear deletes the stored history of plugin.
func (s *Store) Clear(ctx context.Context, plugin string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM plugin_health_events WHERE plugin = ?`, plugin); err != nil {
		return fmt.Errorf("failed to delete health events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM plugin_missing_dependencies WHERE plugin = ?`, plugin); err != nil {
		return fmt.Errorf("failed to delete missing dependencies: %w", err)
	}
	return tx.Commit()
}

// Prune deletes events older than before and returns how many were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM plugin_health_events WHERE occurred_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune health events: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
