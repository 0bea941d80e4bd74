package memo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// errorStore is returned when a driver fails to initialize; it preserves the driver
// identity while surfacing the construction error on every call. The memoizer
// treats those errors like any other store outage and falls back to the function.
type errorStore struct {
	driver Driver
	err    error
}

func (e *errorStore) Driver() Driver              { return e.driver }
func (e *errorStore) Ready(context.Context) error { return e.err }
func (e *errorStore) EnsureIndex(context.Context, string, []string) error {
	return e.err
}
func (e *errorStore) FindOne(context.Context, string, Doc) (bson.Raw, bool, error) {
	return nil, false, e.err
}
func (e *errorStore) Insert(context.Context, string, Doc) error          { return e.err }
func (e *errorStore) Count(context.Context, string, Doc) (int64, error) { return 0, e.err }
func (e *errorStore) Namespace(collection string) string {
	return string(e.driver) + "/" + collection
}
func (e *errorStore) Close(context.Context) error { return nil }
