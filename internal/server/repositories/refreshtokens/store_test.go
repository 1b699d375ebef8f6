package refreshtokens

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/orgdesk/internal/common"
	"github.com/dmitrijs2005/orgdesk/internal/server/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisRepo(t *testing.T, retention time.Duration) (*RedisRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisRepository(rdb, "test", retention), mr
}

// storeFactories covers the implementations that can run without a database.
func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryRepository() },
		"redis": func(t *testing.T) Store {
			r, _ := newRedisRepo(t, 0)
			return r
		},
	}
}

func record(id, family string) *models.RefreshToken {
	return &models.RefreshToken{ID: id, TokenHash: "hash-" + id, UserID: "u1", TokenFamily: family}
}

func TestStore_Lifecycle(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)

			rt := record("a", "fam")
			require.NoError(t, s.Create(ctx, rt))
			assert.False(t, rt.CreatedAt.IsZero())

			got, err := s.FindByID(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, "hash-a", got.TokenHash)
			assert.Equal(t, "u1", got.UserID)
			assert.Equal(t, "fam", got.TokenFamily)
			assert.False(t, got.Revoked)

			ok, err := s.RevokeIfActive(ctx, "a")
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = s.RevokeIfActive(ctx, "a")
			require.NoError(t, err)
			assert.False(t, ok, "second revoke must not win")

			got, err = s.FindByID(ctx, "a")
			require.NoError(t, err)
			assert.True(t, got.Revoked)
		})
	}
}

func TestStore_FindByID_NotFound(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			_, err := factory(t).FindByID(context.Background(), "missing")
			assert.ErrorIs(t, err, common.ErrorNotFound)
		})
	}
}

func TestStore_RevokeIfActive_Missing(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ok, err := factory(t).RevokeIfActive(context.Background(), "missing")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_CreateDuplicate(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)
			require.NoError(t, s.Create(ctx, record("a", "fam")))
			assert.ErrorIs(t, s.Create(ctx, record("a", "fam")), common.ErrorAlreadyExists)
		})
	}
}

func TestStore_RevokeFamily(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)

			for i := 0; i < 3; i++ {
				require.NoError(t, s.Create(ctx, record(fmt.Sprintf("f1-%d", i), "f1")))
			}
			require.NoError(t, s.Create(ctx, record("other", "f2")))

			ok, err := s.RevokeIfActive(ctx, "f1-0")
			require.NoError(t, err)
			require.True(t, ok)

			n, err := s.CountActive(ctx, "f1")
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			n, err = s.RevokeFamily(ctx, "f1")
			require.NoError(t, err)
			assert.Equal(t, int64(2), n, "only records that changed state are counted")

			n, err = s.CountActive(ctx, "f1")
			require.NoError(t, err)
			assert.Zero(t, n)

			n, err = s.CountActive(ctx, "f2")
			require.NoError(t, err)
			assert.Equal(t, int64(1), n, "other families are untouched")

			n, err = s.RevokeFamily(ctx, "f1")
			require.NoError(t, err)
			assert.Zero(t, n)

			n, err = s.RevokeFamily(ctx, "unknown")
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestStore_RevokeIfActive_ExactlyOneWinner(t *testing.T) {
	const workers = 32
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)
			require.NoError(t, s.Create(ctx, record("hot", "fam")))

			var wins atomic.Int64
			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					ok, err := s.RevokeIfActive(ctx, "hot")
					if err == nil && ok {
						wins.Add(1)
					}
				}()
			}
			close(start)
			wg.Wait()

			assert.Equal(t, int64(1), wins.Load())
		})
	}
}

func TestStore_Rotate(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)
			require.NoError(t, s.Create(ctx, record("old", "fam")))

			next := record("next", "fam")
			won, err := s.Rotate(ctx, "old", next)
			require.NoError(t, err)
			assert.True(t, won)
			assert.False(t, next.CreatedAt.IsZero())

			got, err := s.FindByID(ctx, "old")
			require.NoError(t, err)
			assert.True(t, got.Revoked)

			got, err = s.FindByID(ctx, "next")
			require.NoError(t, err)
			assert.False(t, got.Revoked)
			assert.Equal(t, "hash-next", got.TokenHash)

			n, err := s.CountActive(ctx, "fam")
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			won, err = s.Rotate(ctx, "old", record("again", "fam"))
			require.NoError(t, err)
			assert.False(t, won, "a revoked record cannot be rotated twice")
			_, err = s.FindByID(ctx, "again")
			assert.ErrorIs(t, err, common.ErrorNotFound)

			won, err = s.Rotate(ctx, "missing", record("orphan", "fam"))
			require.NoError(t, err)
			assert.False(t, won)
		})
	}
}

func TestStore_Rotate_FailureLeavesOldActive(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)
			require.NoError(t, s.Create(ctx, record("old", "fam")))
			require.NoError(t, s.Create(ctx, record("taken", "fam")))

			won, err := s.Rotate(ctx, "old", record("taken", "fam"))
			assert.ErrorIs(t, err, common.ErrorAlreadyExists)
			assert.False(t, won)

			got, err := s.FindByID(ctx, "old")
			require.NoError(t, err)
			assert.False(t, got.Revoked, "a failed rotation must not revoke the presented record")
		})
	}
}

func TestStore_Rotate_ExactlyOneWinner(t *testing.T) {
	const workers = 32
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)
			require.NoError(t, s.Create(ctx, record("hot", "fam")))

			var wins atomic.Int64
			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					won, err := s.Rotate(ctx, "hot", record(fmt.Sprintf("succ-%d", i), "fam"))
					if err == nil && won {
						wins.Add(1)
					}
				}()
			}
			close(start)
			wg.Wait()

			assert.Equal(t, int64(1), wins.Load())
			n, err := s.CountActive(ctx, "fam")
			require.NoError(t, err)
			assert.Equal(t, int64(1), n, "only the winner's successor exists")
		})
	}
}

func TestRedisRepository_Retention(t *testing.T) {
	repo, mr := newRedisRepo(t, time.Hour)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, record("a", "fam")))

	assert.Equal(t, time.Hour, mr.TTL("test:rt:a"))
	assert.Equal(t, time.Hour, mr.TTL("test:rtf:fam"))

	mr.FastForward(2 * time.Hour)

	_, err := repo.FindByID(ctx, "a")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRedisRepository_Unavailable(t *testing.T) {
	repo, mr := newRedisRepo(t, 0)
	mr.Close()

	_, err := repo.RevokeIfActive(context.Background(), "a")
	assert.ErrorContains(t, err, "redis error")
}
