package memocore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// Store is the document store contract the memoizer runs on.
type Store interface {
	Driver() Driver
	// Ready reports whether the backend is reachable.
	Ready(ctx context.Context) error
	// EnsureIndex declares a compound ascending index over keys. It is idempotent.
	EnsureIndex(ctx context.Context, collection string, keys []string) error
	// FindOne returns the first document matching filter.
	FindOne(ctx context.Context, collection string, filter Doc) (bson.Raw, bool, error)
	Insert(ctx context.Context, collection string, doc Doc) error
	// Count returns the number of documents matching filter; an empty filter counts the collection.
	Count(ctx context.Context, collection string, filter Doc) (int64, error)
	// Namespace describes where collection lives, e.g. "localhost:27017/db.coll".
	Namespace(collection string) string
	Close(ctx context.Context) error
}
