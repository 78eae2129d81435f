package refreshtokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/gradekeeper/internal/common"
	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
	"github.com/redis/go-redis/v9"
)

const redisPrefix = "gradekeeper:refresh:"

// RedisRepository keeps each record under its own key with a TTL matching
// its expiry. A per-user set indexes records for DeleteByUser and a sorted
// set scored by expiry (unix ms) drives DeleteExpired. Writes and deletes
// run in MULTI/EXEC so the indexes never disagree with the records.
type RedisRepository struct {
	rdb redis.Cmdable
}

// NewRedisRepository wraps a go-redis client.
func NewRedisRepository(rdb redis.Cmdable) *RedisRepository {
	return &RedisRepository{rdb: rdb}
}

type redisRecord struct {
	UserID    string    `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func recordKey(id string) string { return redisPrefix + "token:" + id }

func userKey(userID string) string { return redisPrefix + "user:" + userID }

func expiryKey() string { return redisPrefix + "expiry" }

func expiryMember(userID, id string) string { return userID + "/" + id }

func (r *RedisRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	data, err := json.Marshal(redisRecord{UserID: token.UserID, IssuedAt: token.IssuedAt, ExpiresAt: token.ExpiresAt})
	if err != nil {
		return fmt.Errorf("encode refresh record: %w", err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, recordKey(token.ID), data, 0)
		pipe.ExpireAt(ctx, recordKey(token.ID), token.ExpiresAt)
		pipe.SAdd(ctx, userKey(token.UserID), token.ID)
		pipe.ZAdd(ctx, expiryKey(), redis.Z{
			Score:  float64(token.ExpiresAt.UnixMilli()),
			Member: expiryMember(token.UserID, token.ID),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (r *RedisRepository) Find(ctx context.Context, id string) (*models.RefreshToken, error) {
	data, err := r.rdb.Get(ctx, recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}

	var rec redisRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode refresh record: %w", err)
	}
	return &models.RefreshToken{ID: id, UserID: rec.UserID, IssuedAt: rec.IssuedAt, ExpiresAt: rec.ExpiresAt}, nil
}

func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	t, err := r.Find(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		// Either never existed or its TTL already fired; DeleteExpired
		// cleans the leftover index entries.
		return nil
	}
	if err != nil {
		return err
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, recordKey(id))
		pipe.SRem(ctx, userKey(t.UserID), id)
		pipe.ZRem(ctx, expiryKey(), expiryMember(t.UserID, id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

// DeleteByUser removes every record indexed for userID. Only the ids read
// are taken out of the user set: a record another instance adds meanwhile
// stays indexed, so the next DeleteByUser still finds it.
func (r *RedisRepository) DeleteByUser(ctx context.Context, userID string) error {
	ids, err := r.rdb.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		members := make([]any, 0, len(ids))
		for _, id := range ids {
			pipe.Del(ctx, recordKey(id))
			pipe.ZRem(ctx, expiryKey(), expiryMember(userID, id))
			members = append(members, id)
		}
		pipe.SRem(ctx, userKey(userID), members...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (r *RedisRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	members, err := r.rdb.ZRangeByScore(ctx, expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range members {
			userID, id, ok := strings.Cut(m, "/")
			if ok {
				pipe.Del(ctx, recordKey(id))
				pipe.SRem(ctx, userKey(userID), id)
			}
			pipe.ZRem(ctx, expiryKey(), m)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}
	return int64(len(members)), nil
}
