package window

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var redisWindowPrefix string = "window/"

// WindowStore backed by redis sorted sets, for sharing windows between processes (or surviving restarts).
//
// Each entry is a zset member scored by its timestamp (unix nanoseconds). Members are JSON-encoded entries with a random nonce, so identical entries do not collapse.
type RedisWindowStore struct {
	Client *redis.Client
	// keys expire this long after their last write; should be longer than any window in use
	TTL time.Duration
}

var _ WindowStore = (*RedisWindowStore)(nil)

type redisMember struct {
	Entry
	Nonce string `json:"n"`
}

func NewRedisWindowStore(redisURL string, ttl time.Duration) (*RedisWindowStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, err
	}
	return &RedisWindowStore{
		Client: rdb,
		TTL:    ttl,
	}, nil
}

func score(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

func (s *RedisWindowStore) Record(ctx context.Context, name, key string, e Entry, window time.Duration) (int, error) {
	rk := redisWindowPrefix + windowKey(name, key)
	member, err := json.Marshal(redisMember{Entry: e, Nonce: uuid.NewString()})
	if err != nil {
		return 0, err
	}

	// prune, append, and count in a single round-trip
	multi := s.Client.TxPipeline()
	multi.ZRemRangeByScore(ctx, rk, "-inf", "("+score(e.At.Add(-window)))
	multi.ZAdd(ctx, rk, redis.Z{Score: float64(e.At.UnixNano()), Member: string(member)})
	card := multi.ZCard(ctx, rk)
	multi.Expire(ctx, rk, s.TTL)
	if _, err := multi.Exec(ctx); err != nil {
		return 0, err
	}
	return int(card.Val()), nil
}

func (s *RedisWindowStore) Count(ctx context.Context, name, key string, now time.Time, window time.Duration) (int, error) {
	rk := redisWindowPrefix + windowKey(name, key)
	multi := s.Client.TxPipeline()
	multi.ZRemRangeByScore(ctx, rk, "-inf", "("+score(now.Add(-window)))
	card := multi.ZCard(ctx, rk)
	if _, err := multi.Exec(ctx); err != nil {
		return 0, err
	}
	return int(card.Val()), nil
}

func (s *RedisWindowStore) Entries(ctx context.Context, name, key string, now time.Time, window time.Duration) ([]Entry, error) {
	rk := redisWindowPrefix + windowKey(name, key)
	raw, err := s.Client.ZRangeByScore(ctx, rk, &redis.ZRangeBy{
		Min: score(now.Add(-window)),
		Max: "+inf",
	}).Result()
	if err == redis.Nil {
		return []Entry{}, nil
	} else if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(raw))
	for _, m := range raw {
		var rm redisMember
		if err := json.Unmarshal([]byte(m), &rm); err != nil {
			return nil, fmt.Errorf("decoding window entry: %w", err)
		}
		out = append(out, rm.Entry)
	}
	return out, nil
}

func (s *RedisWindowStore) Reset(ctx context.Context, name, key string) error {
	return s.Client.Del(ctx, redisWindowPrefix+windowKey(name, key)).Err()
}
