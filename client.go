package memo

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Client binds a document store to the logging, observation and index
// bookkeeping shared by every function memoized through it.
type Client struct {
	store        Store
	collection   string
	logger       *zap.Logger
	observer     Observer
	opTimeout    time.Duration
	indexRecheck time.Duration
	memoDefaults []MemoOption
	ensured      *gocache.Cache
}

// NewClient wraps store. The store stays owned by the client; Close releases it.
// @group Client
//
// Example: client over the memory store
//
//	ctx := context.Background()
//	c := memo.NewClient(memo.NewMemoryStore(ctx))
//	fmt.Println(c.Driver()) // memory
func NewClient(store Store, opts ...Option) *Client {
	c := &Client{
		store:        store,
		collection:   defaultCollection,
		logger:       zap.NewNop(),
		indexRecheck: defaultIndexRecheckInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ensured = gocache.New(c.indexRecheck, 2*c.indexRecheck)
	return c
}

// New builds the store described by cfg and wraps it in a Client. A store that
// fails to build degrades to an error store, so memoized functions keep working
// uncached; Ready reports the failure.
// @group Client
//
// Example: client from configuration
//
//	ctx := context.Background()
//	c := memo.New(ctx, memo.Config{
//		StoreConfig: memo.StoreConfig{Driver: memo.DriverMemory},
//		Collection:  "lookups",
//	})
//	fmt.Println(c.Driver()) // memory
func New(ctx context.Context, cfg Config, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	base := []Option{
		WithCollection(cfg.Collection),
		WithOperationTimeout(cfg.OperationTimeout),
		WithIndexRecheckInterval(cfg.IndexRecheckInterval),
	}
	if cfg.CacheFalsy {
		base = append(base, WithMemoDefaults(WithCacheFalsy()))
	}
	if cfg.SingleFlight {
		base = append(base, WithMemoDefaults(WithSingleFlight()))
	}
	c := NewClient(NewStore(ctx, cfg.StoreConfig), append(base, opts...)...)
	if es, ok := c.store.(*errorStore); ok {
		c.logger.Warn("memo store unavailable, calls will not be cached",
			zap.String("driver", string(es.driver)),
			zap.Error(es.err),
		)
	}
	return c
}

// Store returns the underlying store implementation.
func (c *Client) Store() Store {
	return c.store
}

// Driver reports the underlying store driver.
func (c *Client) Driver() Driver {
	return c.store.Driver()
}

// Namespace describes where collection lives.
func (c *Client) Namespace(collection string) string {
	return c.store.Namespace(c.resolveCollection(collection))
}

// Ready reports whether the store is reachable.
func (c *Client) Ready(ctx context.Context) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	return c.store.Ready(ctx)
}

// Close releases the store connection.
func (c *Client) Close(ctx context.Context) error {
	return c.store.Close(ctx)
}

// Cache inserts doc into collection unless a document equal to it already
// exists. Store errors are returned. The probe and the insert are separate
// round-trips, so concurrent callers may both insert.
// @group Client
//
// Example: insert once
//
//	ctx := context.Background()
//	c := memo.NewClient(memo.NewMemoryStore(ctx))
//	_ = c.Cache(ctx, "instances", memo.Doc{{Key: "arg1", Value: "paris"}})
//	_ = c.Cache(ctx, "instances", memo.Doc{{Key: "arg1", Value: "paris"}})
//	n, _ := c.Store().Count(ctx, "instances", nil)
//	fmt.Println(n) // 1
func (c *Client) Cache(ctx context.Context, collection string, doc Doc) error {
	start := time.Now()
	collection = c.resolveCollection(collection)
	c.logger.Debug("memo cache probe",
		zap.String("namespace", c.store.Namespace(collection)),
		zapDoc("doc", doc),
	)
	_, found, err := c.find(ctx, collection, doc)
	if err != nil {
		c.observe(ctx, OpCache, collection, false, err, start)
		return err
	}
	if found {
		c.observe(ctx, OpCache, collection, true, nil, start)
		return nil
	}
	if err := c.insert(ctx, collection, doc); err != nil {
		c.observe(ctx, OpCache, collection, false, err, start)
		return err
	}
	c.logger.Info("memo cache insert",
		zap.String("namespace", c.store.Namespace(collection)),
		zapDoc("doc", doc),
	)
	c.observe(ctx, OpCache, collection, false, nil, start)
	return nil
}

// Find probes collection with filter, e.g. a canonical query from MakeQuery.
// @group Client
func (c *Client) Find(ctx context.Context, collection string, filter Doc) (bson.Raw, bool, error) {
	return c.find(ctx, c.resolveCollection(collection), filter)
}

// EnsureQueryIndex declares the compound index matching MakeQuery output for
// n positional values.
// @group Client
func (c *Client) EnsureQueryIndex(ctx context.Context, collection string, n int, withRel bool) error {
	return c.ensureIndex(ctx, c.resolveCollection(collection), QueryIndexKeys(n, withRel))
}

// ensureIndex declares the index once per recheck interval for a given
// (collection, key list) pair.
func (c *Client) ensureIndex(ctx context.Context, collection string, keys []string) error {
	id := collection + "\x00" + strings.Join(keys, "\x00")
	if _, ok := c.ensured.Get(id); ok {
		return nil
	}
	start := time.Now()
	opCtx, cancel := c.opContext(ctx)
	defer cancel()
	err := c.store.EnsureIndex(opCtx, collection, keys)
	c.observe(ctx, OpEnsureIndex, collection, false, err, start)
	if err != nil {
		return err
	}
	c.ensured.Set(id, struct{}{}, gocache.DefaultExpiration)
	return nil
}

func (c *Client) find(ctx context.Context, collection string, filter Doc) (bson.Raw, bool, error) {
	start := time.Now()
	opCtx, cancel := c.opContext(ctx)
	defer cancel()
	raw, found, err := c.store.FindOne(opCtx, collection, filter)
	c.observe(ctx, OpFind, collection, found, err, start)
	return raw, found, err
}

func (c *Client) insert(ctx context.Context, collection string, doc Doc) error {
	start := time.Now()
	opCtx, cancel := c.opContext(ctx)
	defer cancel()
	err := c.store.Insert(opCtx, collection, doc)
	c.observe(ctx, OpInsert, collection, false, err, start)
	return err
}

func (c *Client) resolveCollection(collection string) string {
	if collection == "" {
		return c.collection
	}
	return collection
}

func (c *Client) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.opTimeout)
}

func (c *Client) observe(ctx context.Context, op, collection string, hit bool, err error, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.OnMemoOp(ctx, op, collection, hit, err, time.Since(start), c.Driver())
}

// docObject logs a Doc as an object, keeping field order.
type docObject Doc

func (d docObject) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	for _, e := range d {
		if err := enc.AddReflected(e.Key, e.Value); err != nil {
			return err
		}
	}
	return nil
}

func zapDoc(key string, doc Doc) zap.Field {
	return zap.Object(key, docObject(doc))
}
