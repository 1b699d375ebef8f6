package refreshtokens

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/orgdesk/internal/common"
	"github.com/dmitrijs2005/orgdesk/internal/server/models"
	"github.com/redis/go-redis/v9"
)

// Record layout:
//
//	{prefix}:rt:{id}       hash  hash, user, family, revoked ("0"/"1"), created (unix nanos)
//	{prefix}:rtf:{family}  set   ids of every record in the family
//
// Every state change goes through a Lua script so the check and the write
// happen in one step on the server.

const createScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "hash", ARGV[1], "user", ARGV[2], "family", ARGV[3], "revoked", "0", "created", ARGV[4])
redis.call("SADD", KEYS[2], ARGV[5])
local ttl = tonumber(ARGV[6])
if ttl > 0 then
  redis.call("PEXPIRE", KEYS[1], ttl)
  redis.call("PEXPIRE", KEYS[2], ttl)
end
return 1
`

const revokeIfActiveScript = `
local v = redis.call("HGET", KEYS[1], "revoked")
if v ~= "0" then
  return 0
end
redis.call("HSET", KEYS[1], "revoked", "1")
return 1
`

// Record keys are derived inside the script, so a family and its records
// must live on the same node.
const revokeFamilyScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local n = 0
for _, id in ipairs(ids) do
  local k = ARGV[1] .. id
  if redis.call("HGET", k, "revoked") == "0" then
    redis.call("HSET", k, "revoked", "1")
    n = n + 1
  end
end
return n
`

const countActiveScript = `
local ids = redis.call("SMEMBERS", KEYS[1])
local n = 0
for _, id in ipairs(ids) do
  if redis.call("HGET", ARGV[1] .. id, "revoked") == "0" then
    n = n + 1
  end
end
return n
`

// KEYS: old record, new record, family set.
const rotateScript = `
if redis.call("HGET", KEYS[1], "revoked") ~= "0" then
  return 0
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return -1
end
redis.call("HSET", KEYS[1], "revoked", "1")
redis.call("HSET", KEYS[2], "hash", ARGV[1], "user", ARGV[2], "family", ARGV[3], "revoked", "0", "created", ARGV[4])
redis.call("SADD", KEYS[3], ARGV[5])
local ttl = tonumber(ARGV[6])
if ttl > 0 then
  redis.call("PEXPIRE", KEYS[2], ttl)
  redis.call("PEXPIRE", KEYS[3], ttl)
end
return 1
`

var (
	rotateLua         = redis.NewScript(rotateScript)
	createLua         = redis.NewScript(createScript)
	revokeIfActiveLua = redis.NewScript(revokeIfActiveScript)
	revokeFamilyLua   = redis.NewScript(revokeFamilyScript)
	countActiveLua    = redis.NewScript(countActiveScript)
)

// RedisRepository stores refresh-token records in Redis.
type RedisRepository struct {
	rdb       redis.UniversalClient
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewRedisRepository builds a repository over rdb. Keys are namespaced with
// prefix. A positive retention expires records and family sets after that
// long; zero keeps them forever.
func NewRedisRepository(rdb redis.UniversalClient, prefix string, retention time.Duration) *RedisRepository {
	if prefix == "" {
		prefix = "orgdesk"
	}
	return &RedisRepository{rdb: rdb, prefix: prefix, retention: retention, now: time.Now}
}

func (r *RedisRepository) recordPrefix() string { return r.prefix + ":rt:" }

func (r *RedisRepository) recordKey(id string) string { return r.recordPrefix() + id }

func (r *RedisRepository) familyKey(family string) string { return r.prefix + ":rtf:" + family }

func (r *RedisRepository) Create(ctx context.Context, rt *models.RefreshToken) error {
	created := r.now()
	res, err := createLua.Run(ctx, r.rdb,
		[]string{r.recordKey(rt.ID), r.familyKey(rt.TokenFamily)},
		rt.TokenHash, rt.UserID, rt.TokenFamily, created.UnixNano(), rt.ID, r.retention.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	if res == 0 {
		return common.ErrorAlreadyExists
	}
	rt.Revoked = false
	rt.CreatedAt = created
	return nil
}

func (r *RedisRepository) FindByID(ctx context.Context, id string) (*models.RefreshToken, error) {
	fields, err := r.rdb.HGetAll(ctx, r.recordKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}
	if len(fields) == 0 {
		return nil, common.ErrorNotFound
	}

	created, err := strconv.ParseInt(fields["created"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt refresh token record %s: %w", id, err)
	}

	return &models.RefreshToken{
		ID:          id,
		TokenHash:   fields["hash"],
		UserID:      fields["user"],
		TokenFamily: fields["family"],
		Revoked:     fields["revoked"] == "1",
		CreatedAt:   time.Unix(0, created),
	}, nil
}

func (r *RedisRepository) RevokeIfActive(ctx context.Context, id string) (bool, error) {
	res, err := revokeIfActiveLua.Run(ctx, r.rdb, []string{r.recordKey(id)}).Int64()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	return res == 1, nil
}

func (r *RedisRepository) RevokeFamily(ctx context.Context, family string) (int64, error) {
	n, err := revokeFamilyLua.Run(ctx, r.rdb, []string{r.familyKey(family)}, r.recordPrefix()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}
	return n, nil
}

func (r *RedisRepository) CountActive(ctx context.Context, family string) (int64, error) {
	n, err := countActiveLua.Run(ctx, r.rdb, []string{r.familyKey(family)}, r.recordPrefix()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}
	return n, nil
}

func (r *RedisRepository) Rotate(ctx context.Context, oldID string, next *models.RefreshToken) (bool, error) {
	created := r.now()
	res, err := rotateLua.Run(ctx, r.rdb,
		[]string{r.recordKey(oldID), r.recordKey(next.ID), r.familyKey(next.TokenFamily)},
		next.TokenHash, next.UserID, next.TokenFamily, created.UnixNano(), next.ID, r.retention.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	switch res {
	case -1:
		return false, common.ErrorAlreadyExists
	case 0:
		return false, nil
	}
	next.Revoked = false
	next.CreatedAt = created
	return true, nil
}
