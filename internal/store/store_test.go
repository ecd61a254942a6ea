package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStorage(t *testing.T) *FileStorage {
	t.Helper()

	storage, err := NewFileStorage(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return storage
}

func TestFileStorage_RoundTrip(t *testing.T) {
	storage := newTestStorage(t)

	require.True(t, storage.Set("key", "value"))

	got, ok := storage.Get("key")
	assert.True(t, ok)
	assert.Equal(t, "value", got)
}

func TestFileStorage_LastWriteWins(t *testing.T) {
	storage := newTestStorage(t)

	require.True(t, storage.Set("key", "first"))
	require.True(t, storage.Set("key", "second"))

	got, _ := storage.Get("key")
	assert.Equal(t, "second", got)
}

func TestFileStorage_ClearIsIdempotent(t *testing.T) {
	storage := newTestStorage(t)

	require.True(t, storage.Set("key", "value"))
	storage.Clear("key")
	storage.Clear("key") // second clear must not panic or error

	_, ok := storage.Get("key")
	assert.False(t, ok)
}

func TestFileStorage_UnsafeKeysAreEncoded(t *testing.T) {
	storage := newTestStorage(t)

	key := "draft:q/1:az"
	require.True(t, storage.Set(key, "text"))

	got, ok := storage.Get(key)
	require.True(t, ok)
	assert.Equal(t, "text", got)

	assert.Contains(t, storage.Keys("draft:"), key)
}

func TestFileStorage_WriteFailureReportsFalseNotPanic(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewFileStorage(dir, zap.NewNop())
	require.NoError(t, err)

	// Make the state dir unwritable; the contract is a boolean result, never
	// an error or panic, so the interview degrades instead of crashing.
	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	if os.Getuid() == 0 {
		t.Skip("cannot make a directory unwritable as root")
	}

	assert.False(t, storage.Set("key", "value"))
	_, ok := storage.Get("key")
	assert.False(t, ok)
}

func TestDraftStore_RoundTripAndClear(t *testing.T) {
	drafts := NewDraftStore(newTestStorage(t))

	require.True(t, drafts.Save("q1", "half-typed answer"))

	got, ok := drafts.Load("q1")
	require.True(t, ok)
	assert.Equal(t, "half-typed answer", got)

	drafts.Clear("q1")
	_, ok = drafts.Load("q1")
	assert.False(t, ok)
}

func TestDraftStore_EmptyTextClearsDraft(t *testing.T) {
	drafts := NewDraftStore(newTestStorage(t))

	require.True(t, drafts.Save("q1", "something"))
	require.True(t, drafts.Save("q1", "   "))

	_, ok := drafts.Load("q1")
	assert.False(t, ok, "an erased answer must not resurface on restore")
}

func TestDraftStore_ClearAll(t *testing.T) {
	storage := newTestStorage(t)
	drafts := NewDraftStore(storage)
	identity := NewSessionIdentityStore(storage)

	require.True(t, drafts.Save("q1", "a"))
	require.True(t, drafts.Save("q2", "b"))
	require.True(t, identity.Save("session-1"))

	drafts.ClearAll()

	_, ok := drafts.Load("q1")
	assert.False(t, ok)
	_, ok = drafts.Load("q2")
	assert.False(t, ok)

	// Drafts and identity share the storage but not the namespace.
	id, ok := identity.Load()
	require.True(t, ok)
	assert.Equal(t, "session-1", id)
}

func TestSessionIdentityStore(t *testing.T) {
	identity := NewSessionIdentityStore(newTestStorage(t))

	_, ok := identity.Load()
	assert.False(t, ok)

	assert.False(t, identity.Save(""), "empty id must not be persisted")

	require.True(t, identity.Save("session-42"))
	id, ok := identity.Load()
	require.True(t, ok)
	assert.Equal(t, "session-42", id)

	identity.Clear()
	_, ok = identity.Load()
	assert.False(t, ok)
}

func TestFileStorage_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	first, err := NewFileStorage(dir, zap.NewNop())
	require.NoError(t, err)
	require.True(t, first.Set("session_id", "abc"))

	second, err := NewFileStorage(dir, zap.NewNop())
	require.NoError(t, err)

	got, ok := second.Get("session_id")
	require.True(t, ok)
	assert.Equal(t, "abc", got)

	// No stray temp files after writes.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, ".tmp", filepath.Ext(e.Name()))
	}
}
