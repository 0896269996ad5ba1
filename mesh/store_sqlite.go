package mesh

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteStoreSchema = `
CREATE TABLE IF NOT EXISTS grids (
	uuid TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	position INTEGER NOT NULL,
	payload BLOB NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS datasets (
	uuid TEXT PRIMARY KEY,
	grid_uuid TEXT NOT NULL REFERENCES grids(uuid) ON DELETE CASCADE,
	name TEXT NOT NULL,
	position INTEGER NOT NULL,
	payload BLOB NOT NULL,
	updated_at TEXT NOT NULL
);`

const (
	defaultSQLiteStoreDir = ".xmstool"
	defaultSQLiteStoreDB  = "workspace.db"
)

// SQLiteStore persists a Project between CLI runs.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultSQLitePath returns the default workspace path, ~/.xmstool/workspace.db.
func DefaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("mesh: resolve user home: %w", err)
	}
	return filepath.Join(home, defaultSQLiteStoreDir, defaultSQLiteStoreDB), nil
}

// OpenSQLiteStore opens (or creates) the workspace database at dsn.
func OpenSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("mesh: sqlite store dsn is required")
	}
	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("mesh: sqlite store create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("mesh: sqlite store open: %w", err)
	}
	// one connection keeps :memory: databases alive across calls
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mesh: sqlite store set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mesh: sqlite store enable foreign keys: %w", err)
	}
	if _, err := db.Exec(sqliteStoreSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mesh: sqlite store create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load reads the whole project. An empty database yields an empty project.
func (s *SQLiteStore) Load(ctx context.Context) (*Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, errors.New("mesh: sqlite store is nil")
	}

	project := NewProject()
	err := s.scan(ctx, `SELECT payload FROM grids ORDER BY position ASC`, func(payload []byte) error {
		var g UGrid
		if err := json.Unmarshal(payload, &g); err != nil {
			return fmt.Errorf("mesh: sqlite decode grid: %w", err)
		}
		return project.AddGrid(&g)
	})
	if err != nil {
		return nil, err
	}
	err = s.scan(ctx, `SELECT payload FROM datasets ORDER BY position ASC`, func(payload []byte) error {
		var d Dataset
		if err := json.Unmarshal(payload, &d); err != nil {
			return fmt.Errorf("mesh: sqlite decode dataset: %w", err)
		}
		return project.AddDataset(&d)
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

func (s *SQLiteStore) scan(ctx context.Context, query string, fn func(payload []byte) error) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("mesh: sqlite query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("mesh: sqlite scan: %w", err)
		}
		if err := fn(payload); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("mesh: sqlite rows: %w", err)
	}
	return nil
}

// Save replaces the stored project with p in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, p *Project) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return errors.New("mesh: sqlite store is nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mesh: sqlite begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM datasets`); err != nil {
		return fmt.Errorf("mesh: sqlite clear datasets: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM grids`); err != nil {
		return fmt.Errorf("mesh: sqlite clear grids: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for i, g := range p.grids {
		payload, err := json.Marshal(g)
		if err != nil {
			return fmt.Errorf("mesh: sqlite encode grid %q: %w", g.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO grids (uuid, name, position, payload, updated_at)
VALUES (?, ?, ?, ?, ?)`, g.UUID, g.Name, i, payload, now); err != nil {
			return fmt.Errorf("mesh: sqlite insert grid %q: %w", g.Name, err)
		}
	}
	for i, d := range p.datasets {
		payload, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("mesh: sqlite encode dataset %q: %w", d.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO datasets (uuid, grid_uuid, name, position, payload, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`, d.UUID, d.GridUUID, d.Name, i, payload, now); err != nil {
			return fmt.Errorf("mesh: sqlite insert dataset %q: %w", d.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mesh: sqlite commit: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
