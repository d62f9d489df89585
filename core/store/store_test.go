package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/adalundhe/sabir/core/corpus"
	sberrors "github.com/adalundhe/sabir/core/errors"
	"github.com/adalundhe/sabir/core/model"
	"github.com/adalundhe/sabir/core/train"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func buildModel(t *testing.T, texts map[string][]string) *model.Model {
	t.Helper()
	b, err := train.NewBuilder(train.WithTableSize(16))
	require.NoError(t, err)
	m, _, err := b.Build(context.Background(), corpus.FromStrings(texts))
	require.NoError(t, err)
	return m
}

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(MemoryPath, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PutGet(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	m := buildModel(t, map[string][]string{"en": {"the quick fox"}, "fr": {"le renard rapide"}})

	info, err := s.Put(ctx, "news", m)
	require.NoError(t, err)
	assert.Equal(t, "news", info.Name)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, 4, info.NGramSize)
	assert.Equal(t, 16, info.TableSize)
	assert.Equal(t, []string{"en", "fr"}, info.Languages)
	assert.Positive(t, info.Size)

	got, err := s.Get(ctx, "news")
	require.NoError(t, err)
	assert.True(t, m.Equal(got))

	// Bypass the cache to exercise decoding.
	s.cache.Purge()
	got, err = s.Get(ctx, "news")
	require.NoError(t, err)
	assert.True(t, m.Equal(got))

	stored, err := s.Info(ctx, "news")
	require.NoError(t, err)
	assert.Equal(t, info, stored)
}

func TestStore_PutDiscardsInFlightRead(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	first := buildModel(t, map[string][]string{"en": {"the quick fox"}})
	second := buildModel(t, map[string][]string{"xx": {"the fox"}, "yy": {"zzzz"}})

	_, err := s.Put(ctx, "m", first)
	require.NoError(t, err)

	// A Get that read the first body before the replacing Put committed
	// finishes afterwards.
	since := s.writeCount()
	_, err = s.Put(ctx, "m", second)
	require.NoError(t, err)
	s.remember("m", first, since)

	got, err := s.Get(ctx, "m")
	require.NoError(t, err)
	assert.True(t, second.Equal(got))
}

func TestStore_ConcurrentPutGet(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	models := []*model.Model{
		buildModel(t, map[string][]string{"en": {"the quick fox"}}),
		buildModel(t, map[string][]string{"xx": {"the fox"}, "yy": {"zzzz"}}),
	}
	_, err := s.Put(ctx, "m", models[0])
	require.NoError(t, err)

	var g errgroup.Group
	for i := range 20 {
		g.Go(func() error {
			_, err := s.Put(ctx, "m", models[i%2])
			return err
		})
		g.Go(func() error {
			_, err := s.Get(ctx, "m")
			return err
		})
	}
	require.NoError(t, g.Wait())

	last, err := s.Put(ctx, "m", models[1])
	require.NoError(t, err)
	got, err := s.Get(ctx, "m")
	require.NoError(t, err)
	assert.True(t, models[1].Equal(got), "stale model for %s", last.ID)
}

func TestStore_PutReplaces(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	first := buildModel(t, map[string][]string{"en": {"the quick fox"}})
	second := buildModel(t, map[string][]string{"xx": {"the fox"}, "yy": {"zzzz"}})

	a, err := s.Put(ctx, "m", first)
	require.NoError(t, err)
	b, err := s.Put(ctx, "m", second)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	s.cache.Purge()
	got, err := s.Get(ctx, "m")
	require.NoError(t, err)
	assert.True(t, second.Equal(got))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)

	var blobs int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM model_blobs`).Scan(&blobs))
	assert.Equal(t, 1, blobs)
}

func TestStore_List(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	m := buildModel(t, map[string][]string{"en": {"the quick fox"}})
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := s.Put(ctx, name, m)
		require.NoError(t, err)
	}

	list, err = s.List(ctx)
	require.NoError(t, err)
	var names []string
	for _, info := range list {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func TestStore_Delete(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	m := buildModel(t, map[string][]string{"en": {"the quick fox"}})

	_, err := s.Put(ctx, "gone", m)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "gone"))

	_, err = s.Get(ctx, "gone")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, sberrors.IsInput(err))

	err = s.Delete(ctx, "gone")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_NotFound(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "absent")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Info(ctx, "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_InvalidName(t *testing.T) {
	s := openMemory(t)
	m := buildModel(t, map[string][]string{"en": {"the quick fox"}})

	for _, name := range []string{"", "../escape", "a/b", ".hidden"} {
		_, err := s.Put(context.Background(), name, m)
		require.Error(t, err, "name %q", name)
		assert.True(t, sberrors.IsConfig(err), "name %q", name)
	}
}

func TestStore_NilModel(t *testing.T) {
	s := openMemory(t)
	_, err := s.Put(context.Background(), "nil", nil)
	require.Error(t, err)
	assert.True(t, sberrors.IsModel(err))
}

func TestStore_CorruptBody(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	m := buildModel(t, map[string][]string{"en": {"the quick fox"}})

	info, err := s.Put(ctx, "bad", m)
	require.NoError(t, err)
	_, err = s.db.Exec(`UPDATE model_blobs SET body = ? WHERE model_id = ?`, []byte("garbage\n"), info.ID)
	require.NoError(t, err)
	s.cache.Purge()

	_, err = s.Get(ctx, "bad")
	require.Error(t, err)
	assert.True(t, sberrors.IsModel(err))
}

func TestStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "models.db")
	ctx := context.Background()
	m := buildModel(t, map[string][]string{"en": {"the quick fox"}, "fr": {"le renard rapide"}})

	assert.False(t, Exists(path))
	s, err := Open(path, Options{CacheSize: 1})
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())
	_, err = s.Put(ctx, "kept", m)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.True(t, Exists(path))

	reopened, err := Open(path, Options{})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "kept")
	require.NoError(t, err)
	assert.True(t, m.Equal(got))
}

func TestStore_CancelledContext(t *testing.T) {
	s := openMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
