package memo

import (
	"context"
	"errors"
	"testing"

	"github.com/goforj/memo/memotest"
	"github.com/redis/go-redis/v9"
)

type stubRedisClient struct {
	lists map[string][]string
	sets  map[string]map[string]struct{}

	pingErr   error
	pushErr   error
	rangeErr  error
	saddErr   error
	membersEr error
}

func newStubRedisClient() *stubRedisClient {
	return &stubRedisClient{
		lists: make(map[string][]string),
		sets:  make(map[string]map[string]struct{}),
	}
}

func (s *stubRedisClient) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if s.pingErr != nil {
		cmd.SetErr(s.pingErr)
		return cmd
	}
	cmd.SetVal("PONG")
	return cmd
}

func (s *stubRedisClient) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if s.pushErr != nil {
		cmd.SetErr(s.pushErr)
		return cmd
	}
	for _, v := range values {
		switch b := v.(type) {
		case []byte:
			s.lists[key] = append(s.lists[key], string(b))
		case string:
			s.lists[key] = append(s.lists[key], b)
		}
	}
	cmd.SetVal(int64(len(s.lists[key])))
	return cmd
}

func (s *stubRedisClient) LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	cmd := redis.NewStringSliceCmd(ctx)
	if s.rangeErr != nil {
		cmd.SetErr(s.rangeErr)
		return cmd
	}
	// The store always reads whole lists.
	cmd.SetVal(append([]string(nil), s.lists[key]...))
	return cmd
}

func (s *stubRedisClient) SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if s.saddErr != nil {
		cmd.SetErr(s.saddErr)
		return cmd
	}
	if s.sets[key] == nil {
		s.sets[key] = make(map[string]struct{})
	}
	var added int64
	for _, m := range members {
		name, _ := m.(string)
		if _, ok := s.sets[key][name]; !ok {
			s.sets[key][name] = struct{}{}
			added++
		}
	}
	cmd.SetVal(added)
	return cmd
}

func (s *stubRedisClient) SMembers(ctx context.Context, key string) *redis.StringSliceCmd {
	cmd := redis.NewStringSliceCmd(ctx)
	if s.membersEr != nil {
		cmd.SetErr(s.membersEr)
		return cmd
	}
	out := make([]string, 0, len(s.sets[key]))
	for m := range s.sets[key] {
		out = append(out, m)
	}
	cmd.SetVal(out)
	return cmd
}

func TestRedisStoreNilClientErrors(t *testing.T) {
	ctx := context.Background()
	store := newRedisStore(nil, StoreConfig{})
	if err := store.Ready(ctx); err == nil {
		t.Fatalf("expected ready error when redis client is nil")
	}
	if _, _, err := store.FindOne(ctx, "c", Doc{{Key: "x", Value: 1}}); err == nil {
		t.Fatalf("expected find error when redis client is nil")
	}
	if err := store.Insert(ctx, "c", Doc{{Key: "x", Value: 1}}); err == nil {
		t.Fatalf("expected insert error when redis client is nil")
	}
	if _, err := store.Count(ctx, "c", nil); err == nil {
		t.Fatalf("expected count error when redis client is nil")
	}
}

func TestRedisStoreContractWithStubClient(t *testing.T) {
	store := newRedisStore(newStubRedisClient(), testStoreConfig("memo", "pfx"))
	memotest.RunStoreContract(t, store, memotest.Options{CaseName: t.Name()})
}

func TestRedisStoreKeyLayout(t *testing.T) {
	ctx := context.Background()
	client := newStubRedisClient()
	store := newRedisStore(client, testStoreConfig("db", "pfx"))

	doc := Doc{{Key: "x", Value: 1}, {Key: "value", Value: "v"}}
	if err := store.Insert(ctx, "pairs", doc); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	digest, err := keyDigest(doc)
	if err != nil {
		t.Fatalf("digest failed: %v", err)
	}
	bucket := "pfx:db:pairs:" + digest
	if len(client.lists[bucket]) != 1 {
		t.Fatalf("expected document in bucket %q, got lists %v", bucket, client.lists)
	}
	if _, ok := client.sets["pfx:db:pairs:buckets"][bucket]; !ok {
		t.Fatalf("expected bucket to be tracked for the collection")
	}
	if got := store.Namespace("pairs"); got != "redis/pfx:db:pairs" {
		t.Fatalf("unexpected namespace %q", got)
	}
}

func TestRedisStoreErrorPropagation(t *testing.T) {
	ctx := context.Background()
	key := Doc{{Key: "x", Value: 1}}

	client := newStubRedisClient()
	client.rangeErr = errors.New("lrange")
	store := newRedisStore(client, StoreConfig{})
	if _, _, err := store.FindOne(ctx, "c", key); err == nil {
		t.Fatalf("expected find error")
	}

	client = newStubRedisClient()
	client.pushErr = errors.New("rpush")
	store = newRedisStore(client, StoreConfig{})
	if err := store.Insert(ctx, "c", key); err == nil {
		t.Fatalf("expected insert error")
	}

	client = newStubRedisClient()
	client.saddErr = errors.New("sadd")
	store = newRedisStore(client, StoreConfig{})
	if err := store.Insert(ctx, "c", key); err == nil {
		t.Fatalf("expected bucket tracking error")
	}

	client = newStubRedisClient()
	client.membersEr = errors.New("smembers")
	store = newRedisStore(client, StoreConfig{})
	if _, err := store.Count(ctx, "c", nil); err == nil {
		t.Fatalf("expected count error")
	}

	client = newStubRedisClient()
	client.pingErr = errors.New("ping")
	store = newRedisStore(client, StoreConfig{})
	if err := store.Ready(ctx); err == nil {
		t.Fatalf("expected ready error")
	}
}
