package memo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// ErrDocumentTooLarge is returned by Insert when an encoded entry exceeds the
// configured MaxDocumentBytes.
var ErrDocumentTooLarge = errors.New("memo: document exceeds size limit")

// limitStore rejects oversized documents before they reach the backing store.
type limitStore struct {
	inner Store
	max   int
}

func newLimitStore(inner Store, max int) Store {
	if max <= 0 {
		return inner
	}
	return &limitStore{inner: inner, max: max}
}

func (s *limitStore) Driver() Driver                  { return s.inner.Driver() }
func (s *limitStore) Ready(ctx context.Context) error { return s.inner.Ready(ctx) }

func (s *limitStore) EnsureIndex(ctx context.Context, collection string, keys []string) error {
	return s.inner.EnsureIndex(ctx, collection, keys)
}

func (s *limitStore) FindOne(ctx context.Context, collection string, filter Doc) (bson.Raw, bool, error) {
	return s.inner.FindOne(ctx, collection, filter)
}

func (s *limitStore) Insert(ctx context.Context, collection string, doc Doc) error {
	body, err := bson.Marshal(storeDoc(doc))
	if err != nil {
		return err
	}
	if len(body) > s.max {
		return fmt.Errorf("%w: %d bytes > %d", ErrDocumentTooLarge, len(body), s.max)
	}
	return s.inner.Insert(ctx, collection, doc)
}

func (s *limitStore) Count(ctx context.Context, collection string, filter Doc) (int64, error) {
	return s.inner.Count(ctx, collection, filter)
}

func (s *limitStore) Namespace(collection string) string { return s.inner.Namespace(collection) }
func (s *limitStore) Close(ctx context.Context) error    { return s.inner.Close(ctx) }
