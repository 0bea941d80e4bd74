package memo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrSerialization reports key fields or results the store encoding cannot represent.
	ErrSerialization = errors.New("memo: value cannot be serialized")
	// ErrNilFunc is returned when a nil function is memoized.
	ErrNilFunc = errors.New("memo: memoize requires a function")
)

// Func is a memoizable function. args are positional and never part of the
// cache key; kwargs are the named arguments that identify an entry.
type Func[V any] func(ctx context.Context, args []any, kwargs Doc) (V, error)

// Memoize wraps fn so results are read through collection in the client's
// database. On a hit the stored value is returned; on a miss fn runs and a
// cacheable result is stored as kwargs plus a value field. Store failures are
// logged and the call falls through to fn uncached. Errors from fn propagate.
// @group Memoization
//
// Example: memoize a lookup
//
//	ctx := context.Background()
//	c := memo.NewClient(memo.NewMemoryStore(ctx))
//	square := memo.Memoize(c, "squares", func(_ context.Context, _ []any, kw memo.Doc) (int, error) {
//		x := kw[0].Value.(int)
//		return x * x, nil
//	})
//	v, _ := square(ctx, nil, memo.Doc{{Key: "x", Value: 12}})
//	fmt.Println(v) // 144
func Memoize[V any](c *Client, collection string, fn Func[V], opts ...MemoOption) Func[V] {
	settings := memoSettings{cacheable: Truthy}
	for _, opt := range c.memoDefaults {
		opt(&settings)
	}
	for _, opt := range opts {
		opt(&settings)
	}
	m := &memoizer[V]{
		client:     c,
		collection: c.resolveCollection(collection),
		fn:         fn,
		settings:   settings,
	}
	return m.call
}

type memoizer[V any] struct {
	client     *Client
	collection string
	fn         Func[V]
	settings   memoSettings
	flights    singleflight.Group
}

type flightResult[V any] struct {
	value V
	err   error
}

func (m *memoizer[V]) call(ctx context.Context, args []any, kwargs Doc) (V, error) {
	var zero V
	if m.fn == nil {
		return zero, ErrNilFunc
	}
	if err := checkKwargs(kwargs, m.settings.shape); err != nil {
		return zero, err
	}
	if len(kwargs) == 0 {
		// Nothing identifies the call, so there is nothing to cache it under.
		return m.fn(ctx, args, kwargs)
	}
	if _, err := bson.Marshal(kwargs); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if !m.settings.singleFlight {
		return m.resolve(ctx, args, kwargs)
	}

	digest, err := keyDigest(kwargs)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	// The flight outlives any single caller, so it must not inherit the
	// leader's cancellation; each caller stops waiting on its own context.
	flight := m.flights.DoChan(digest, func() (any, error) {
		value, err := m.resolve(context.WithoutCancel(ctx), args, kwargs)
		return flightResult[V]{value: value, err: err}, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case out := <-flight:
		res := out.Val.(flightResult[V])
		return res.value, res.err
	}
}

func (m *memoizer[V]) resolve(ctx context.Context, args []any, kwargs Doc) (V, error) {
	c := m.client
	start := time.Now()

	if err := c.ensureIndex(ctx, m.collection, keyNames(kwargs)); err != nil {
		return m.fallback(ctx, args, kwargs, "ensure index", err, start)
	}
	raw, found, err := c.find(ctx, m.collection, kwargs)
	if err != nil {
		return m.fallback(ctx, args, kwargs, "probe", err, start)
	}
	if found {
		value, err := decodeStoredValue[V](raw)
		if err != nil {
			return m.fallback(ctx, args, kwargs, "decode", err, start)
		}
		c.logger.Debug("memo hit",
			zap.String("namespace", c.store.Namespace(m.collection)),
			zapDoc("key", kwargs),
		)
		c.observe(ctx, OpMemoize, m.collection, true, nil, start)
		return value, nil
	}

	c.logger.Debug("memo miss",
		zap.String("namespace", c.store.Namespace(m.collection)),
		zapDoc("key", kwargs),
	)
	value, err := m.fn(ctx, args, kwargs)
	if err != nil {
		c.observe(ctx, OpMemoize, m.collection, false, err, start)
		return value, err
	}
	if !m.settings.cacheable(value) {
		c.observe(ctx, OpMemoize, m.collection, false, nil, start)
		return value, nil
	}

	entry := make(Doc, 0, len(kwargs)+1)
	entry = append(entry, kwargs...)
	entry = append(entry, Elem{Key: valueField, Value: value})
	if _, err := bson.Marshal(entry); err != nil {
		err = fmt.Errorf("%w: %v", ErrSerialization, err)
		c.observe(ctx, OpMemoize, m.collection, false, err, start)
		return value, err
	}
	if err := c.insert(ctx, m.collection, entry); err != nil {
		m.warn("insert", kwargs, err)
	} else {
		c.logger.Debug("memo stored",
			zap.String("namespace", c.store.Namespace(m.collection)),
			zapDoc("key", kwargs),
		)
	}
	c.observe(ctx, OpMemoize, m.collection, false, nil, start)
	return value, nil
}

// fallback runs fn uncached after a store failure; the store error is logged, not returned.
func (m *memoizer[V]) fallback(ctx context.Context, args []any, kwargs Doc, stage string, cause error, start time.Time) (V, error) {
	m.warn(stage, kwargs, cause)
	value, err := m.fn(ctx, args, kwargs)
	m.client.observe(ctx, OpMemoize, m.collection, false, err, start)
	return value, err
}

func (m *memoizer[V]) warn(stage string, kwargs Doc, cause error) {
	m.client.logger.Warn("memo store failure, calling through",
		zap.String("stage", stage),
		zap.String("namespace", m.client.store.Namespace(m.collection)),
		zapDoc("key", kwargs),
		zap.Error(cause),
	)
}

func decodeStoredValue[V any](raw bson.Raw) (V, error) {
	var out V
	rv, err := raw.LookupErr(valueField)
	if err != nil {
		return out, fmt.Errorf("stored entry has no %s field: %w", valueField, err)
	}
	if err := rv.Unmarshal(&out); err != nil {
		return out, fmt.Errorf("decode stored value: %w", err)
	}
	return out, nil
}
