package memo

import (
	"context"
	"time"
)

// Operation names reported to observers.
const (
	OpEnsureIndex = "ensure_index"
	OpFind        = "find"
	OpInsert      = "insert"
	OpMemoize     = "memoize"
	OpCache       = "cache"
)

// Observer receives events for store and memoization operations.
// It is called from Client helpers after each operation completes.
type Observer interface {
	OnMemoOp(ctx context.Context, op string, collection string, hit bool, err error, dur time.Duration, driver Driver)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, op string, collection string, hit bool, err error, dur time.Duration, driver Driver)

// OnMemoOp implements Observer.
func (f ObserverFunc) OnMemoOp(ctx context.Context, op string, collection string, hit bool, err error, dur time.Duration, driver Driver) {
	if f == nil {
		return
	}
	f(ctx, op, collection, hit, err, dur, driver)
}
