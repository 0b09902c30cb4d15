package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larder/larder-backend/pkg/logger"
	"github.com/larder/larder-backend/pkg/testutil"
)

func TestFileStore_LoadMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "pantry.json"), logger.Nop())

	items, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestFileStore_LoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pantry.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	items, err := NewFileStore(path, logger.Nop()).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "pantry.json")
	store := NewFileStore(path, logger.Nop())

	l := testutil.FixtureLedger()
	items := testutil.Collection(l,
		testutil.DefaultItemFixture(),
		testutil.ItemFixture{Name: "Rice", Unit: "kg", QuantityPerPack: "0.5", Quantity: "2"},
	)

	require.NoError(t, store.Save(ctx, items))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	for id, want := range items {
		got := loaded[id]
		require.NotNil(t, got, "item %s missing", id)
		assert.Equal(t, want.Name, got.Name)
		assert.True(t, want.CurrentQuantity().Equal(got.CurrentQuantity()))
		assert.Equal(t, want.Batches(), got.Batches())
	}

	require.NoError(t, store.Save(ctx, loaded))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second), "save/load must preserve the document")
}

func TestFileStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "pantry.json"), logger.Nop())

	l := testutil.FixtureLedger()
	require.NoError(t, store.Save(context.Background(), testutil.Collection(l, testutil.DefaultItemFixture())))
	require.NoError(t, store.Save(context.Background(), nil))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "pantry.json", entries[0].Name())

	items, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pantry.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	_, err := NewFileStore(path, logger.Nop()).Load(context.Background())
	assert.Error(t, err)
}

func TestFileStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewFileStore(filepath.Join(t.TempDir(), "pantry.json"), logger.Nop())
	assert.ErrorIs(t, store.Save(ctx, nil), context.Canceled)
}
