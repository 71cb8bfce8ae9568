// Package sqlite provides a SQLite-backed dispatcher store.
//
// The full state snapshot is kept as one cramberry-encoded row; the
// active epoch, root and frozen flag are duplicated into plain columns
// for inspection with the sqlite shell. Built manifests are archived by
// epoch.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/blockberries/cramberry/pkg/cramberry"
	_ "modernc.org/sqlite"

	"github.com/blockberries/facetroute/store"
	"github.com/blockberries/facetroute/store/sqlite/migrations"
	"github.com/blockberries/facetroute/types"
)

// ErrManifestNotFound is returned by Manifest for an unknown epoch.
var ErrManifestNotFound = errors.New("sqlite: manifest not found")

// Store persists dispatcher state in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open opens a SQLite store at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return New(sqlDB), nil
}

// New wraps an already migrated database handle.
func New(sqlDB *sql.DB) *Store {
	return &Store{sqlDB: sqlDB, now: time.Now}
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Load returns the saved state or store.ErrNotFound.
func (s *Store) Load(ctx context.Context) (types.State, error) {
	var payload []byte
	err := s.sqlDB.QueryRowContext(ctx, `SELECT payload FROM dispatcher_state WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return types.State{}, store.ErrNotFound
	}
	if err != nil {
		return types.State{}, fmt.Errorf("load dispatcher state: %w", err)
	}
	return store.DecodeState(payload)
}

// Save replaces the saved state.
func (s *Store) Save(ctx context.Context, st types.State) error {
	payload, err := store.EncodeState(st)
	if err != nil {
		return err
	}
	frozen := 0
	if st.Frozen {
		frozen = 1
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO dispatcher_state (id, active_epoch, active_root, frozen, payload, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   active_epoch = excluded.active_epoch,
		   active_root = excluded.active_root,
		   frozen = excluded.frozen,
		   payload = excluded.payload,
		   updated_at = excluded.updated_at`,
		int64(st.ActiveEpoch), st.ActiveRoot.Hex(), frozen, payload, s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save dispatcher state: %w", err)
	}
	return nil
}

// SaveManifest archives m under its epoch. Re-saving an epoch replaces
// the previous archive; the last committed manifest wins just as the
// last committed root does.
func (s *Store) SaveManifest(ctx context.Context, m types.Manifest) error {
	payload, err := cramberry.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO manifests (epoch, root, route_count, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(epoch) DO UPDATE SET
		   root = excluded.root,
		   route_count = excluded.route_count,
		   payload = excluded.payload,
		   created_at = excluded.created_at`,
		int64(m.Epoch), m.Root.Hex(), len(m.Routes), payload, s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}
	return nil
}

// Manifest returns the archived manifest for epoch.
func (s *Store) Manifest(ctx context.Context, epoch uint64) (types.Manifest, error) {
	var payload []byte
	err := s.sqlDB.QueryRowContext(ctx, `SELECT payload FROM manifests WHERE epoch = ?`, int64(epoch)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Manifest{}, ErrManifestNotFound
	}
	if err != nil {
		return types.Manifest{}, fmt.Errorf("load manifest: %w", err)
	}
	var m types.Manifest
	if err := cramberry.Unmarshal(payload, &m); err != nil {
		return types.Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}
