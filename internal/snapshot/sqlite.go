/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists snapshots in a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *log.Logger
}

// OpenSQLiteStore opens (or creates) dir/snapshots.db.
func OpenSQLiteStore(dir string, logger *log.Logger) (*SQLiteStore, error) {
	if logger == nil {
		return nil, errors.New("logger must not be nil")
	}

	if dir == "" {
		dir = "."
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "snapshots.db"))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.init(); err != nil {
		db.Close()

		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			items TEXT NOT NULL,
			checksum TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating table: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Set(ctx context.Context, snap *Snapshot) error {
	if snap == nil || snap.ID == "" {
		return fmt.Errorf("%w: snapshot has no id", ErrInvalidItems)
	}

	items, err := json.Marshal(snap.Items)
	if err != nil {
		return fmt.Errorf("marshaling items: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshots (id, title, items, checksum, created_at) VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.Title, string(items), snap.Checksum, snap.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot %s: %w", snap.ID, err)
	}

	s.logger.Debug("snapshot saved", "id", snap.ID, "title", snap.Title)

	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, items, checksum, created_at FROM snapshots WHERE id = ?`, id)

	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", id, err)
	}

	return snap, nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, items, checksum, created_at FROM snapshots ORDER BY created_at DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var out []*Snapshot

	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			s.logger.Warn("skipping unreadable snapshot", "err", err)

			continue
		}

		out = append(out, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	return out, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", id, err)
	}

	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (*Snapshot, error) {
	var (
		snap      Snapshot
		items     string
		createdAt int64
	)

	if err := row.Scan(&snap.ID, &snap.Title, &items, &snap.Checksum, &createdAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(items), &snap.Items); err != nil {
		return nil, fmt.Errorf("unmarshaling items: %w", err)
	}

	snap.CreatedAt = time.UnixMilli(createdAt).UTC()
	snap.Locked = true

	return &snap, nil
}
