/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package snapshot

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.WarnLevel})
}

func newTestBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)

	db, err := badger.Open(opts)
	require.NoError(t, err)

	store, err := NewBadgerStore(db, quietLogger())
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })

	return store
}

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := OpenSQLiteStore(t.TempDir(), quietLogger())
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })

	return store
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"badger": newTestBadgerStore(t),
		"sqlite": newTestSQLiteStore(t),
	}
}

func TestStores(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			older, err := New("older", rankedItems(30))
			require.NoError(t, err)
			older.CreatedAt = older.CreatedAt.Add(-time.Hour)

			newer, err := New("newer", rankedItems(100))
			require.NoError(t, err)

			require.NoError(t, store.Set(ctx, older))
			require.NoError(t, store.Set(ctx, newer))

			got, err := store.Get(ctx, newer.ID)
			require.NoError(t, err)
			assert.Equal(t, newer.Title, got.Title)
			assert.Equal(t, newer.Items, got.Items)
			assert.Equal(t, newer.Checksum, got.Checksum)
			assert.True(t, newer.CreatedAt.Equal(got.CreatedAt))
			assert.True(t, got.Locked)
			assert.NoError(t, got.Verify())

			list, err := store.List(ctx, 0)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, newer.ID, list[0].ID)
			assert.Equal(t, older.ID, list[1].ID)

			limited, err := store.List(ctx, 1)
			require.NoError(t, err)
			assert.Len(t, limited, 1)

			require.NoError(t, store.Delete(ctx, older.ID))

			_, err = store.Get(ctx, older.ID)
			assert.ErrorIs(t, err, ErrNotFound)

			assert.ErrorIs(t, store.Delete(ctx, older.ID), ErrNotFound)
		})
	}
}

func TestStoresRejectMissingID(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, store.Set(context.Background(), &Snapshot{}), ErrInvalidItems)
		})
	}
}

func TestGetUnknown(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "does-not-exist")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestNewBadgerStoreNilArgs(t *testing.T) {
	_, err := NewBadgerStore(nil, quietLogger())
	assert.Error(t, err)

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = NewBadgerStore(db, nil)
	assert.Error(t, err)
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryStore().Get(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}
