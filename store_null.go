package memo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// nullStore never finds anything and discards inserts, so every memoized call
// runs the wrapped function.
type nullStore struct{}

func newNullStore() Store { return nullStore{} }

func (nullStore) Driver() Driver { return DriverNull }

func (nullStore) Ready(context.Context) error { return nil }

func (nullStore) EnsureIndex(context.Context, string, []string) error { return nil }

func (nullStore) FindOne(context.Context, string, Doc) (bson.Raw, bool, error) {
	return nil, false, nil
}

func (nullStore) Insert(context.Context, string, Doc) error { return nil }

func (nullStore) Count(context.Context, string, Doc) (int64, error) { return 0, nil }

func (nullStore) Namespace(collection string) string { return "null/" + collection }

func (nullStore) Close(context.Context) error { return nil }
