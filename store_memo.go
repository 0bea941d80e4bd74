package memo

import (
	"context"

	"github.com/dgraph-io/ristretto/v2"
	"go.mongodb.org/mongo-driver/bson"
)

const defaultMemoEntries = 10_000

// NewMemoStore decorates store with a per-process cache of FindOne hits.
// Stored documents are never modified, so a remembered hit stays valid; misses
// always reach the backing store. maxEntries <= 0 uses a default of 10000.
// @group Memoization
//
// Example: memoize a backing store
//
//	ctx := context.Background()
//	base := memo.NewMemoryStore(ctx)
//	store := memo.NewMemoStore(base, 1000)
//	client := memo.NewClient(store)
//	_ = client
func NewMemoStore(store Store, maxEntries int64) Store {
	if maxEntries <= 0 {
		maxEntries = defaultMemoEntries
	}
	hits, err := ristretto.NewCache(&ristretto.Config[string, bson.Raw]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return store
	}
	return &memoStore{store: store, hits: hits}
}

type memoStore struct {
	store Store
	hits  *ristretto.Cache[string, bson.Raw]
}

func (s *memoStore) Driver() Driver { return s.store.Driver() }

func (s *memoStore) Ready(ctx context.Context) error { return s.store.Ready(ctx) }

func (s *memoStore) EnsureIndex(ctx context.Context, collection string, keys []string) error {
	return s.store.EnsureIndex(ctx, collection, keys)
}

func (s *memoStore) FindOne(ctx context.Context, collection string, filter Doc) (bson.Raw, bool, error) {
	key, keyErr := s.hitKey(collection, filter)
	if keyErr == nil {
		if raw, ok := s.hits.Get(key); ok {
			return cloneRaw(raw), true, nil
		}
	}
	raw, ok, err := s.store.FindOne(ctx, collection, filter)
	if err != nil || !ok {
		return raw, ok, err
	}
	if keyErr == nil {
		s.hits.Set(key, cloneRaw(raw), 1)
	}
	return raw, true, nil
}

func (s *memoStore) Insert(ctx context.Context, collection string, doc Doc) error {
	return s.store.Insert(ctx, collection, doc)
}

func (s *memoStore) Count(ctx context.Context, collection string, filter Doc) (int64, error) {
	return s.store.Count(ctx, collection, filter)
}

func (s *memoStore) Namespace(collection string) string { return s.store.Namespace(collection) }

func (s *memoStore) Close(ctx context.Context) error {
	s.hits.Close()
	return s.store.Close(ctx)
}

// Wait blocks until buffered hit writes are visible to FindOne.
func (s *memoStore) Wait() { s.hits.Wait() }

func (s *memoStore) hitKey(collection string, filter Doc) (string, error) {
	body, err := canonicalBytes(filter, true)
	if err != nil {
		return "", err
	}
	return s.store.Namespace(collection) + "\x00" + string(body), nil
}
