package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/track-folder-changes/tfc/trees"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"
)

// ErrSnapshotNotFound is returned when no snapshot matches a lookup
var ErrSnapshotNotFound = errors.New("snapshot not found")

// takenAtLayout sorts lexicographically in the same order as time
const takenAtLayout = "2006-01-02T15:04:05.000000000Z"

// Snapshot is a saved copy of a change tree
type Snapshot struct {
	ID       uuid.UUID      `json:"id"`
	Root     string         `json:"root"`
	TakenAt  time.Time      `json:"taken_at"`
	Changed  int            `json:"changed"`
	Entities []trees.Entity `json:"entities"`
}

// SnapshotStore persists snapshots in a libsql database
type SnapshotStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Connect opens a libsql database. A "file:" DSN gets its directory created.
func Connect(dsn string) (*sql.DB, error) {
	if path, ok := strings.CutPrefix(dsn, "file:"); ok {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("could not create database directory: %w", err)
		}
	}

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// NewSnapshotStore opens or initializes the snapshot database at dsn
func NewSnapshotStore(dsn string) (*SnapshotStore, error) {
	db, err := Connect(dsn)
	if err != nil {
		return nil, err
	}

	store := &SnapshotStore{db: db, logger: slog.Default().With("component", "snapshot_store")}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	store.logger.Debug("Snapshot store opened", "dsn", dsn)
	return store, nil
}

// init sets up the snapshot tables.
func (s *SnapshotStore) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY UNIQUE,
		root_path TEXT NOT NULL,
		taken_at TEXT NOT NULL,
		changed_count INTEGER NOT NULL,
		directory_state BLOB
	)`)
	if err != nil {
		return fmt.Errorf("failed to create snapshots table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_snapshots_root_taken ON snapshots (root_path, taken_at)`)
	if err != nil {
		return fmt.Errorf("failed to create snapshots index: %w", err)
	}

	return nil
}

// Save stores the entities of a change tree rooted at root
func (s *SnapshotStore) Save(ctx context.Context, root string, entities []trees.Entity) (*Snapshot, error) {
	snapshot := &Snapshot{
		ID:       uuid.New(),
		Root:     root,
		TakenAt:  time.Now().UTC(),
		Entities: entities,
	}
	for _, e := range entities {
		if e.Status != trees.Unmarked {
			snapshot.Changed++
		}
	}

	state, err := json.Marshal(entities)
	if err != nil {
		return nil, fmt.Errorf("error marshalling change tree: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		"INSERT INTO snapshots (id, root_path, taken_at, changed_count, directory_state) VALUES (?, ?, ?, ?, ?)",
		snapshot.ID.String(),
		snapshot.Root,
		snapshot.TakenAt.Format(takenAtLayout),
		snapshot.Changed,
		state,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected != 1 {
		return nil, fmt.Errorf("expected 1 row affected, got %d", rowsAffected)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("Snapshot saved", "id", snapshot.ID, "root", root, "changed", snapshot.Changed)
	return snapshot, nil
}

// List returns every snapshot, newest first, without their entities
func (s *SnapshotStore) List(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, root_path, taken_at, changed_count FROM snapshots ORDER BY taken_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		var (
			snapshot Snapshot
			id       string
			takenAt  string
		)
		if err := rows.Scan(&id, &snapshot.Root, &takenAt, &snapshot.Changed); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if err := snapshot.parse(id, takenAt, nil); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during snapshot iteration: %w", err)
	}

	return snapshots, nil
}

// Get retrieves a snapshot with its entities
func (s *SnapshotStore) Get(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, root_path, taken_at, changed_count, directory_state FROM snapshots WHERE id = ?", id.String())
	return scanSnapshot(row)
}

// Latest retrieves the newest snapshot of root, or of any root when root is empty
func (s *SnapshotStore) Latest(ctx context.Context, root string) (*Snapshot, error) {
	var row *sql.Row
	if root == "" {
		row = s.db.QueryRowContext(ctx,
			"SELECT id, root_path, taken_at, changed_count, directory_state FROM snapshots ORDER BY taken_at DESC LIMIT 1")
	} else {
		row = s.db.QueryRowContext(ctx,
			"SELECT id, root_path, taken_at, changed_count, directory_state FROM snapshots WHERE root_path = ? ORDER BY taken_at DESC LIMIT 1", root)
	}
	return scanSnapshot(row)
}

// Delete removes a snapshot
func (s *SnapshotStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	return nil
}

// Close closes the database connection
func (s *SnapshotStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanSnapshot(row *sql.Row) (*Snapshot, error) {
	var (
		snapshot Snapshot
		id       string
		takenAt  string
		state    []byte
	)

	err := row.Scan(&id, &snapshot.Root, &takenAt, &snapshot.Changed, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	if err := snapshot.parse(id, takenAt, state); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (sn *Snapshot) parse(id, takenAt string, state []byte) error {
	var err error
	sn.ID, err = uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("failed to parse snapshot ID: %w", err)
	}

	sn.TakenAt, err = time.Parse(takenAtLayout, takenAt)
	if err != nil {
		return fmt.Errorf("failed to parse snapshot timestamp: %w", err)
	}

	if state != nil {
		if err := json.Unmarshal(state, &sn.Entities); err != nil {
			return fmt.Errorf("error unmarshalling change tree: %w", err)
		}
	}
	return nil
}
