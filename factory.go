package memo

import (
	"context"
	"errors"
	"fmt"
)

// NewStore returns a concrete store for the requested driver. When the driver
// cannot be built, the returned store reports the construction error from every
// call, which the memoizer treats as an unavailable store.
// Caller is responsible for providing any driver-specific dependencies.
// @group Constructors
//
// Example: select driver explicitly
//
//	ctx := context.Background()
//	store := memo.NewStore(ctx, memo.StoreConfig{
//		Driver: memo.DriverMemory,
//	})
//	fmt.Println(store.Driver()) // memory
func NewStore(ctx context.Context, cfg StoreConfig) Store {
	cfg = cfg.withDefaults()
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return &errorStore{driver: cfg.Driver, err: fmt.Errorf("open %s store: %w", cfg.Driver, err)}
	}
	return newLimitStore(store, cfg.MaxDocumentBytes)
}

func buildStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	switch cfg.Driver {
	case DriverMongo:
		return newMongoStore(ctx, cfg)
	case DriverMemory:
		return newMemoryStore(cfg)
	case DriverSQL:
		return newSQLStore(ctx, cfg)
	case DriverRedis:
		if cfg.RedisClient == nil {
			return nil, errors.New("redis driver requires a client")
		}
		return newRedisStore(cfg.RedisClient, cfg), nil
	case DriverNATS:
		if cfg.NATSKeyValue == nil {
			return nil, errors.New("nats driver requires a key-value bucket")
		}
		return newNATSStore(cfg.NATSKeyValue, cfg), nil
	case DriverDynamo:
		return newDynamoStore(ctx, cfg)
	case DriverNull:
		return newNullStore(), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
}

// NewStoreWith builds a store using a driver and a set of functional options.
// Required data (e.g., Redis client) must be provided via options when needed.
// @group Constructors
//
// Example: sqlite store (options)
//
//	ctx := context.Background()
//	store := memo.NewStoreWith(ctx, memo.DriverSQL,
//		memo.WithSQL("sqlite", "file:memo.db"),
//		memo.WithDatabase("experiments"),
//	)
//	fmt.Println(store.Driver()) // sql
func NewStoreWith(ctx context.Context, driver Driver, opts ...StoreOption) Store {
	cfg := StoreConfig{Driver: driver}
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	return NewStore(ctx, cfg)
}

// NewMongoStore connects to the mongo server at host:port.
// @group Constructors
//
// Example: mongo helper
//
//	ctx := context.Background()
//	store := memo.NewMongoStore(ctx, "localhost", 1979, memo.WithDatabase("relations"))
//	fmt.Println(store.Namespace("pairs")) // localhost:1979/relations.pairs
func NewMongoStore(ctx context.Context, host string, port int, opts ...StoreOption) Store {
	cfg := StoreConfig{Driver: DriverMongo, Host: host, Port: port}
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	return NewStore(ctx, cfg)
}

// NewMemoryStore is a convenience for an in-process store with optional overrides.
// @group Constructors
//
// Example: memory helper
//
//	ctx := context.Background()
//	store := memo.NewMemoryStore(ctx)
//	fmt.Println(store.Driver()) // memory
func NewMemoryStore(ctx context.Context, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverMemory, opts...)
}

// NewSQLStore is a convenience for a database/sql-backed store.
// @group Constructors
func NewSQLStore(ctx context.Context, driverName, dsn string, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverSQL, append([]StoreOption{WithSQL(driverName, dsn)}, opts...)...)
}

// NewRedisStore is a convenience for a redis-backed store. Redis client is required.
// @group Constructors
//
// Example: redis helper
//
//	ctx := context.Background()
//	redisClient := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
//	store := memo.NewRedisStore(ctx, redisClient, memo.WithPrefix("app"))
//	fmt.Println(store.Driver()) // redis
func NewRedisStore(ctx context.Context, client RedisClient, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverRedis, append([]StoreOption{WithRedisClient(client)}, opts...)...)
}

// NewNATSStore is a convenience for a JetStream key-value store.
// @group Constructors
func NewNATSStore(ctx context.Context, kv NATSKeyValue, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverNATS, append([]StoreOption{WithNATSKeyValue(kv)}, opts...)...)
}

// NewDynamoStore is a convenience for a DynamoDB-backed store.
// @group Constructors
func NewDynamoStore(ctx context.Context, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverDynamo, opts...)
}

// NewNullStore returns a store that never remembers anything.
// @group Constructors
func NewNullStore(ctx context.Context) Store {
	return NewStoreWith(ctx, DriverNull)
}
