package memo

import (
	"time"

	"go.uber.org/zap"
)

// StoreOption mutates StoreConfig when constructing a store.
type StoreOption func(StoreConfig) StoreConfig

// WithDatabase selects the database entries are scoped to.
func WithDatabase(name string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.Database = name
		return cfg
	}
}

// WithPrefix sets the key prefix for key-value backends (redis, nats).
func WithPrefix(prefix string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.Prefix = prefix
		return cfg
	}
}

// WithURI sets a full mongo connection string, overriding host and port.
func WithURI(uri string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.URI = uri
		return cfg
	}
}

// WithConnectTimeout bounds connection setup and server selection.
func WithConnectTimeout(timeout time.Duration) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.ConnectTimeout = timeout
		return cfg
	}
}

// WithMaxDocumentBytes rejects inserts whose BSON encoding exceeds max bytes.
func WithMaxDocumentBytes(max int) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.MaxDocumentBytes = max
		return cfg
	}
}

// WithSQL selects the database/sql driver (sqlite, pgx or mysql) and its DSN.
func WithSQL(driverName, dsn string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.SQLDriverName = driverName
		cfg.SQLDSN = dsn
		return cfg
	}
}

// WithSQLTable overrides the table used by the sql driver.
func WithSQLTable(table string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.SQLTable = table
		return cfg
	}
}

// WithRedisClient sets the redis client; required when using DriverRedis.
func WithRedisClient(client RedisClient) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.RedisClient = client
		return cfg
	}
}

// WithNATSKeyValue sets the JetStream key-value bucket; required when using DriverNATS.
func WithNATSKeyValue(kv NATSKeyValue) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.NATSKeyValue = kv
		return cfg
	}
}

// WithDynamoClient injects a DynamoDB client instead of building one from region/endpoint.
func WithDynamoClient(client DynamoAPI) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.DynamoClient = client
		return cfg
	}
}

// WithDynamoTable overrides the DynamoDB table name.
func WithDynamoTable(table string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.DynamoTable = table
		return cfg
	}
}

// WithDynamoRegion sets the region used when the DynamoDB client is built from config.
func WithDynamoRegion(region string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.DynamoRegion = region
		return cfg
	}
}

// WithDynamoEndpoint points the DynamoDB client at a custom endpoint (e.g. DynamoDB Local).
func WithDynamoEndpoint(endpoint string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.DynamoEndpoint = endpoint
		return cfg
	}
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver attaches an observer to receive operation events.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithCollection sets the collection used when callers pass an empty name.
func WithCollection(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.collection = name
		}
	}
}

// WithOperationTimeout bounds each store round-trip.
func WithOperationTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.opTimeout = timeout
	}
}

// WithIndexRecheckInterval controls how long an ensured index is trusted.
func WithIndexRecheckInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.indexRecheck = interval
		}
	}
}

// WithMemoDefaults applies opts to every function memoized through the client,
// before any per-function options.
func WithMemoDefaults(opts ...MemoOption) Option {
	return func(c *Client) {
		c.memoDefaults = append(c.memoDefaults, opts...)
	}
}

// MemoOption configures a single memoized function.
type MemoOption func(*memoSettings)

type memoSettings struct {
	shape        []KeyField
	cacheable    func(any) bool
	singleFlight bool
}

// WithKeyShape declares the exact ordered key set of the memoized function.
// Calls with different names, order or value types fail with ErrKeyShape.
func WithKeyShape(fields ...KeyField) MemoOption {
	return func(s *memoSettings) {
		s.shape = append([]KeyField(nil), fields...)
	}
}

// WithCacheable replaces the policy deciding which results are stored.
// The default stores truthy results only.
func WithCacheable(pred func(any) bool) MemoOption {
	return func(s *memoSettings) {
		if pred != nil {
			s.cacheable = pred
		}
	}
}

// WithCacheFalsy stores every result, including zero values.
func WithCacheFalsy() MemoOption {
	return WithCacheable(func(any) bool { return true })
}

// WithSingleFlight collapses concurrent misses for the same key set into one call.
// The shared call is not cancelled with the caller that started it; a caller
// whose own context ends stops waiting and gets the context error.
func WithSingleFlight() MemoOption {
	return func(s *memoSettings) {
		s.singleFlight = true
	}
}
