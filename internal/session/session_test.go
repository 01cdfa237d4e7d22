package session

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/cartsync/internal/domain"
	apperrors "github.com/utafrali/cartsync/pkg/errors"
	"github.com/utafrali/cartsync/pkg/logger"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ""), mr
}

func allStores(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	rs, _ := newRedisStore(t)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fs,
		"redis":  rs,
	}
}

func TestStores_Contract(t *testing.T) {
	ctx := context.Background()
	for name, store := range allStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(ctx, GuestKey)
			assert.True(t, errors.Is(err, apperrors.ErrNotFound))

			require.NoError(t, store.Set(ctx, GuestKey, "g-1"))
			got, err := store.Get(ctx, GuestKey)
			require.NoError(t, err)
			assert.Equal(t, "g-1", got)

			require.NoError(t, store.Set(ctx, GuestKey, "g-2"))
			got, err = store.Get(ctx, GuestKey)
			require.NoError(t, err)
			assert.Equal(t, "g-2", got)

			require.NoError(t, store.Delete(ctx, GuestKey))
			require.NoError(t, store.Delete(ctx, GuestKey))
			_, err = store.Get(ctx, GuestKey)
			assert.True(t, errors.Is(err, apperrors.ErrNotFound))
		})
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	fs, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, fs.Set(ctx, GuestKey, "g-1"))

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := reopened.Get(ctx, GuestKey)
	require.NoError(t, err)
	assert.Equal(t, "g-1", got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestFileStore_CorruptDocument(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(fs.Path(), []byte("{not json"), 0o600))

	_, err = fs.Get(context.Background(), GuestKey)
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestRedisStore_UsesPrefix(t *testing.T) {
	store, mr := newRedisStore(t)
	require.NoError(t, store.Set(context.Background(), GuestKey, "g-1"))

	got, err := mr.Get(DefaultRedisPrefix + GuestKey)
	require.NoError(t, err)
	assert.Equal(t, "g-1", got)
}

func TestRedisStore_ServerDown(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	_, err := store.Get(context.Background(), GuestKey)
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestResolver_GuestCreatedOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := NewResolver(store, logger.Discard())

	var wg sync.WaitGroup
	owners := make([]domain.Owner, 10)
	for i := range owners {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := r.Resolve(ctx)
			assert.NoError(t, err)
			owners[i] = o
		}(i)
	}
	wg.Wait()

	for _, o := range owners {
		assert.Equal(t, domain.OwnerGuest, o.Kind)
		assert.Equal(t, owners[0].ID, o.ID)
	}
	persisted, err := store.Get(ctx, GuestKey)
	require.NoError(t, err)
	assert.Equal(t, owners[0].ID, persisted)
}

func TestResolver_ReusesPersistedGuest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, GuestKey, "existing"))

	o, err := NewResolver(store, logger.Discard()).Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Owner{Kind: domain.OwnerGuest, ID: "existing"}, o)
}

func TestResolver_LoginClearsGuestAndLogoutStartsFresh(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := NewResolver(store, logger.Discard())

	guest, err := r.Resolve(ctx)
	require.NoError(t, err)

	require.NoError(t, r.Login(ctx, "u-1"))
	assert.Equal(t, "u-1", r.UserID())

	o, err := r.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Owner{Kind: domain.OwnerUser, ID: "u-1"}, o)

	_, err = store.Get(ctx, GuestKey)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	r.Logout()
	o, err = r.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.OwnerGuest, o.Kind)
	assert.NotEqual(t, guest.ID, o.ID)
}

func TestResolver_LoginRequiresUser(t *testing.T) {
	err := NewResolver(NewMemoryStore(), logger.Discard()).Login(context.Background(), "")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

type failingStore struct{ *MemoryStore }

func (f *failingStore) Set(context.Context, string, string) error { return errors.New("disk full") }

func TestResolver_PersistFailure(t *testing.T) {
	r := NewResolver(&failingStore{MemoryStore: NewMemoryStore()}, logger.Discard())
	_, err := r.Resolve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
