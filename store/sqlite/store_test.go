package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/blockberries/facetroute/store"
	"github.com/blockberries/facetroute/store/sqlite/migrations"
	"github.com/blockberries/facetroute/types"
)

func openTempStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "facetroute.db")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), " "); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestLoadEmpty(t *testing.T) {
	t.Parallel()

	s, _ := openTempStore(t)
	if _, err := s.Load(context.Background()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveLoadSurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, path := openTempStore(t)
	st := types.State{
		ActiveRoot:  types.Digest{0x11},
		ActiveEpoch: 1,
		MinDelay:    types.DurationFromGo(time.Hour),
		Routes: []types.LiveRoute{{
			CallID: types.CallID{0xa9, 0x05, 0x9c, 0xbb},
			Target: types.Target{Module: types.Address{0x01}, Codehash: types.Digest{0x02}},
			Epoch:  1,
		}},
	}
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("save: %v", err)
	}
	st.Frozen = true
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.Frozen || got.ActiveRoot != st.ActiveRoot || len(got.Routes) != 1 {
		t.Fatalf("unexpected state after reopen: %+v", got)
	}
	if got.Routes[0] != st.Routes[0] {
		t.Fatalf("route = %+v, want %+v", got.Routes[0], st.Routes[0])
	}
}

func TestManifestArchive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := openTempStore(t)
	m := types.Manifest{
		Version: types.ManifestVersion,
		Epoch:   2,
		Root:    types.Digest{0x33},
		Routes: []types.Route{
			{CallID: types.CallID{0, 0, 0, 1}, Module: types.Address{0x01}, Codehash: types.Digest{0x0a}},
		},
	}
	if err := s.SaveManifest(ctx, m); err != nil {
		t.Fatalf("save manifest: %v", err)
	}
	m.Root = types.Digest{0x44}
	if err := s.SaveManifest(ctx, m); err != nil {
		t.Fatalf("replace manifest: %v", err)
	}

	got, err := s.Manifest(ctx, 2)
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if got.Root != (types.Digest{0x44}) || len(got.Routes) != 1 {
		t.Fatalf("unexpected manifest %+v", got)
	}
	if _, err := s.Manifest(ctx, 7); !errors.Is(err, ErrManifestNotFound) {
		t.Fatalf("expected ErrManifestNotFound, got %v", err)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	t.Parallel()

	s, _ := openTempStore(t)
	if err := applyMigrations(context.Background(), s.sqlDB, migrations.FS); err != nil {
		t.Fatalf("second migration run: %v", err)
	}
}

func TestSaveWrapsDriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	boom := errors.New("disk full")
	mock.ExpectExec("INSERT INTO dispatcher_state").WillReturnError(boom)

	s := New(db)
	err = s.Save(context.Background(), types.State{ActiveEpoch: 1})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLoadWrapsDriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	boom := errors.New("io error")
	mock.ExpectQuery("SELECT payload FROM dispatcher_state").WillReturnError(boom)

	s := New(db)
	if _, err := s.Load(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
