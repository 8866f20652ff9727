package history

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbpage-agent/internal/storage/sqlite"
)

type failingPersister struct {
	saves int
}

func (f *failingPersister) LoadKeys(context.Context) ([]string, error) { return nil, nil }

func (f *failingPersister) SaveKeys(context.Context, []string) error {
	f.saves++
	return errors.New("disk full")
}

func TestKey(t *testing.T) {
	assert.Equal(t, "photo.jpg|12345", Key("photo.jpg", "12345"))
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, repo.Migrate())
	defer repo.Close()

	store, err := Load(ctx, NewSettingsPersister(repo))
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())

	require.NoError(t, store.Add(ctx, Key("a.jpg", "page")))
	require.NoError(t, store.Add(ctx, Key("b.mp4", "page")))
	require.NoError(t, store.Add(ctx, Key("a.jpg", "page")))

	reloaded, err := Load(ctx, NewSettingsPersister(repo))
	require.NoError(t, err)
	assert.True(t, reloaded.Has("a.jpg|page"))
	assert.True(t, reloaded.Has("b.mp4|page"))
	assert.False(t, reloaded.Has("a.jpg|other"))

	if diff := cmp.Diff([]string{"a.jpg|page", "b.mp4|page"}, reloaded.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	raw, err := repo.GetSetting(ctx, SettingKey)
	require.NoError(t, err)
	assert.JSONEq(t, `["a.jpg|page","b.mp4|page"]`, raw)
}

func TestAddKeepsKeyWhenPersistFails(t *testing.T) {
	p := &failingPersister{}
	store := New(p)

	err := store.Add(context.Background(), "x|1")
	assert.Error(t, err)
	assert.True(t, store.Has("x|1"))
	assert.Equal(t, 1, p.saves)

	// already present, nothing to write
	assert.NoError(t, store.Add(context.Background(), "x|1"))
	assert.Equal(t, 1, p.saves)
}

func TestMemoryOnlyStore(t *testing.T) {
	store, err := Load(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, store.Add(context.Background(), "k"))
	assert.True(t, store.Has("k"))
}
