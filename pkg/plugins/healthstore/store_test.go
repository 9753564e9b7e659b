package healthstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/llx/pkg/plugins"
)

func setupTestStore(t *testing.T) *Store {
	store, err := Open(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNew(t *testing.T) {
	t.Run("nil database", func(t *testing.T) {
		store, err := New(nil)
		assert.Error(t, err)
		assert.Nil(t, store)
		assert.Contains(t, err.Error(), "database connection is required")
	})

	t.Run("schema error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS plugin_health_events").WillReturnError(errors.New("read-only file system"))

		store, err := New(db)
		assert.Error(t, err)
		assert.Nil(t, store)
		assert.Contains(t, err.Error(), "failed to ensure health tables")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "health.db")
	ctx := context.Background()

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.AppendError(ctx, "git", plugins.HealthEvent{At: time.Now(), Message: "boom"}))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	rec, err := reopened.Load(ctx, "git")
	require.NoError(t, err)
	require.Len(t, rec.Errors, 1)
	assert.Equal(t, "boom", rec.Errors[0].Message)
}

func TestStore_AppendAndLoad(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.AppendError(ctx, "git", plugins.HealthEvent{At: base.Add(time.Second), Message: "second"}))
	require.NoError(t, store.AppendError(ctx, "git", plugins.HealthEvent{At: base, Message: "first"}))
	require.NoError(t, store.AppendError(ctx, "size", plugins.HealthEvent{At: base, Message: "other plugin"}))

	rec, err := store.Load(ctx, "git")
	require.NoError(t, err)
	assert.Equal(t, "git", rec.Plugin)
	require.Len(t, rec.Errors, 2)
	assert.Equal(t, "first", rec.Errors[0].Message)
	assert.True(t, rec.Errors[0].At.Equal(base))
	assert.Equal(t, "second", rec.Errors[1].Message)
}

func TestStore_MissingDependencies(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddMissingDependency(ctx, "git", "libgit2"))
	require.NoError(t, store.AddMissingDependency(ctx, "git", "git"))
	require.NoError(t, store.AddMissingDependency(ctx, "git", "libgit2"))

	rec, err := store.Load(ctx, "git")
	require.NoError(t, err)
	assert.Equal(t, []string{"git", "libgit2"}, rec.MissingDependencies)
	assert.Empty(t, rec.Errors)
}

func TestStore_LoadUnknownPlugin(t *testing.T) {
	store := setupTestStore(t)

	rec, err := store.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, "nope", rec.Plugin)
	assert.Empty(t, rec.Errors)
	assert.Empty(t, rec.MissingDependencies)
}

func TestStore_Plugins(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendError(ctx, "size", plugins.HealthEvent{At: time.Now(), Message: "x"}))
	require.NoError(t, store.AppendError(ctx, "git", plugins.HealthEvent{At: time.Now(), Message: "x"}))
	require.NoError(t, store.AppendError(ctx, "git", plugins.HealthEvent{At: time.Now(), Message: "y"}))
	require.NoError(t, store.AddMissingDependency(ctx, "icons", "nerd-fonts"))

	names, err := store.Plugins(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"git", "icons", "size"}, names)
}

func TestStore_Clear(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendError(ctx, "git", plugins.HealthEvent{At: time.Now(), Message: "x"}))
	require.NoError(t, store.AddMissingDependency(ctx, "git", "libgit2"))
	require.NoError(t, store.AppendError(ctx, "size", plugins.HealthEvent{At: time.Now(), Message: "x"}))

	require.NoError(t, store.Clear(ctx, "git"))

	rec, err := store.Load(ctx, "git")
	require.NoError(t, err)
	assert.Empty(t, rec.Errors)
	assert.Empty(t, rec.MissingDependencies)

	names, err := store.Plugins(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"size"}, names)
}

func TestStore_Prune(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.AppendError(ctx, "git", plugins.HealthEvent{At: now.Add(-48 * time.Hour), Message: "old"}))
	require.NoError(t, store.AppendError(ctx, "git", plugins.HealthEvent{At: now, Message: "new"}))

	n, err := store.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rec, err := store.Load(ctx, "git")
	require.NoError(t, err)
	require.Len(t, rec.Errors, 1)
	assert.Equal(t, "new", rec.Errors[0].Message)
}

func TestStore_AppendErrorFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS plugin_health_events").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO plugin_health_events").
		WithArgs(sqlmock.AnyArg(), "git", sqlmock.AnyArg(), "boom").
		WillReturnError(sql.ErrConnDone)

	store, err := New(db)
	require.NoError(t, err)

	err = store.AppendError(context.Background(), "git", plugins.HealthEvent{At: time.Now(), Message: "boom"})
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithLedger(t *testing.T) {
	store := setupTestStore(t)
	ledger := plugins.NewHealthLedger(plugins.WithHealthStore(store))

	ledger.RecordError("git", "decorate /a: boom")
	ledger.RecordMissingDependency("git", "libgit2")
	ledger.RecordMissingDependency("git", "libgit2")

	rec, err := ledger.History(context.Background(), "git")
	require.NoError(t, err)
	require.Len(t, rec.Errors, 1)
	assert.Equal(t, "decorate /a: boom", rec.Errors[0].Message)
	assert.Equal(t, []string{"libgit2"}, rec.MissingDependencies)

	// A fresh ledger over the same store sees the earlier run.
	next := plugins.NewHealthLedger(plugins.WithHealthStore(store))
	names, err := next.HistoryPlugins(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"git"}, names)
}
