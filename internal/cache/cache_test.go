package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ekisa-team/flamingo/internal/avsr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, s.Set(ctx, "k", []byte("v2"), time.Hour))
	got, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestMemory(t *testing.T) {
	testStore(t, NewMemory())
}

func TestMemory_Expiry(t *testing.T) {
	m := NewMemory()
	now := time.Now()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(context.Background(), "k", []byte("v"), time.Minute))
	now = now.Add(2 * time.Minute)

	_, err := m.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadger_InMemory(t *testing.T) {
	b, err := NewBadger(BadgerOptions{InMemory: true})
	require.NoError(t, err)
	defer b.Close()

	testStore(t, b)
}

func TestBadger_OnDisk(t *testing.T) {
	dir := t.TempDir()

	b, err := NewBadger(BadgerOptions{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, b.Set(context.Background(), "k", []byte("persisted"), 0))
	require.NoError(t, b.Close())

	b, err = NewBadger(BadgerOptions{Dir: dir})
	require.NoError(t, err)
	defer b.Close()

	got, err := b.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), got)
}

func TestNewBadger_RequiresDir(t *testing.T) {
	_, err := NewBadger(BadgerOptions{})
	assert.Error(t, err)
}

func TestResults(t *testing.T) {
	r := NewResults(NewMemory(), 0, nil)
	ctx := context.Background()

	_, ok := r.Get(ctx, "k")
	assert.False(t, ok)

	r.Put(ctx, "k", avsr.Result{Text: "hola", Language: "es", Metrics: map[string]any{"decode_ms": 3}})
	got, ok := r.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "hola", got.Text)
	assert.Equal(t, "es", got.Language)
	assert.Nil(t, got.Metrics)
}

func TestKeyBuilder(t *testing.T) {
	a := NewKey().Bytes([]byte("ab")).String("c").Sum()
	b := NewKey().Bytes([]byte("a")).String("bc").Sum()
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, NewKey().Bytes([]byte("ab")).String("c").Sum())
	assert.Len(t, a, 64)
}

func TestKeyBuilder_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("frames"), 0o644))

	k := NewKey()
	require.NoError(t, k.File(path))
	a := k.Sum()

	require.NoError(t, os.WriteFile(path, []byte("other frames"), 0o644))
	k = NewKey()
	require.NoError(t, k.File(path))
	assert.NotEqual(t, a, k.Sum())

	assert.Error(t, NewKey().File(filepath.Join(t.TempDir(), "missing")))
}
