package memo

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
)

// RedisClient captures the subset of redis.Client used by the store.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

// redisStore appends documents to a list per key digest and tracks the lists
// of each collection in a set so Count can walk them.
type redisStore struct {
	client   RedisClient
	prefix   string
	database string
}

var errRedisUnavailable = errors.New("redis memo client unavailable")

func newRedisStore(client RedisClient, cfg StoreConfig) Store {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &redisStore{client: client, prefix: prefix, database: cfg.Database}
}

func (s *redisStore) Driver() Driver { return DriverRedis }

func (s *redisStore) Ready(ctx context.Context) error {
	if s.client == nil {
		return errRedisUnavailable
	}
	return s.client.Ping(ctx).Err()
}

// EnsureIndex is a no-op: documents are already bucketed by key digest.
func (s *redisStore) EnsureIndex(context.Context, string, []string) error { return nil }

func (s *redisStore) FindOne(ctx context.Context, collection string, filter Doc) (bson.Raw, bool, error) {
	if s.client == nil {
		return nil, false, errRedisUnavailable
	}
	digest, err := keyDigest(filter)
	if err != nil {
		return nil, false, err
	}
	bodies, err := s.client.LRange(ctx, s.bucketKey(collection, digest), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	for _, body := range bodies {
		ok, err := matchDoc(filter, bson.Raw(body))
		if err != nil {
			return nil, false, err
		}
		if ok {
			return bson.Raw(body), true, nil
		}
	}
	return nil, false, nil
}

func (s *redisStore) Insert(ctx context.Context, collection string, doc Doc) error {
	if s.client == nil {
		return errRedisUnavailable
	}
	body, err := bson.Marshal(storeDoc(doc))
	if err != nil {
		return err
	}
	digest, err := keyDigest(doc)
	if err != nil {
		return err
	}
	bucket := s.bucketKey(collection, digest)
	if err := s.client.RPush(ctx, bucket, body).Err(); err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, s.bucketsKey(collection), bucket).Err(); err != nil {
		return fmt.Errorf("track redis bucket: %w", err)
	}
	return nil
}

func (s *redisStore) Count(ctx context.Context, collection string, filter Doc) (int64, error) {
	if s.client == nil {
		return 0, errRedisUnavailable
	}
	buckets, err := s.client.SMembers(ctx, s.bucketsKey(collection)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	var n int64
	for _, bucket := range buckets {
		bodies, err := s.client.LRange(ctx, bucket, 0, -1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return 0, err
		}
		for _, body := range bodies {
			if len(filter) == 0 {
				n++
				continue
			}
			ok, err := matchDoc(filter, bson.Raw(body))
			if err != nil {
				return 0, err
			}
			if ok {
				n++
			}
		}
	}
	return n, nil
}

func (s *redisStore) Namespace(collection string) string {
	return "redis/" + s.scope(collection)
}

func (s *redisStore) Close(context.Context) error { return nil }

func (s *redisStore) scope(collection string) string {
	return s.prefix + ":" + s.database + ":" + collection
}

func (s *redisStore) bucketKey(collection, digest string) string {
	return s.scope(collection) + ":" + digest
}

func (s *redisStore) bucketsKey(collection string) string {
	return s.scope(collection) + ":buckets"
}
