package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "input_batch.jsonl", []byte("line1\nline2\n")))

	data, err := store.Get(ctx, "input_batch.jsonl")
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2\n", string(data))

	ok, err := store.Exists(ctx, "input_batch.jsonl")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Delete(ctx, "input_batch.jsonl"))
	ok, err = store.Exists(ctx, "input_batch.jsonl")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStorageGetMissing(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorageDeleteMissingIsNoop(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, store.Delete(context.Background(), "missing.txt"))
}

func TestLocalStorageOverwrite(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "input_id.txt", []byte("batch-1")))
	require.NoError(t, store.Put(ctx, "input_id.txt", []byte("batch-2")))

	data, err := store.Get(ctx, "input_id.txt")
	require.NoError(t, err)
	assert.Equal(t, "batch-2", string(data))
}

func TestLocalStorageNestedKeys(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "runs/run-1/report.json", []byte("{}")))
	_, err = os.Stat(filepath.Join(dir, "runs", "run-1", "report.json"))
	assert.NoError(t, err)
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	assert.Error(t, store.Put(ctx, "../outside.txt", []byte("x")))
	_, err = store.Get(ctx, "../../etc/passwd")
	assert.Error(t, err)
	assert.Error(t, store.Put(ctx, "/abs/path.txt", []byte("x")))
}

func TestLocalStoragePutLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	require.NoError(t, store.Put(context.Background(), "report.json", []byte("{}")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "report.json", entries[0].Name())
}
