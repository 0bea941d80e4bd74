package memo

import (
	"time"

	"github.com/goforj/memo/memocore"
)

const (
	defaultHost                 = "localhost"
	defaultPort                 = 27017
	defaultDatabase             = "memo"
	defaultCollection           = "memo"
	defaultPrefix               = "memo"
	defaultConnectTimeout       = 10 * time.Second
	defaultIndexRecheckInterval = 10 * time.Minute
	defaultSQLTable             = "memo_documents"
	defaultDynamoTable          = "memo_documents"
	defaultDynamoRegion         = "us-east-1"
)

// StoreConfig controls how a Store is constructed.
type StoreConfig struct {
	memocore.BaseConfig `mapstructure:",squash"`

	Driver Driver `mapstructure:"driver"`

	// Host and Port locate the mongo endpoint; URI overrides both when set.
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	URI  string `mapstructure:"uri"`

	// ConnectTimeout bounds connection and server selection for network drivers.
	ConnectTimeout time.Duration `mapstructure:"connect-timeout"`

	// SQLDriverName is one of sqlite, pgx/postgres or mysql.
	SQLDriverName string `mapstructure:"sql-driver"`
	SQLDSN        string `mapstructure:"sql-dsn"`
	SQLTable      string `mapstructure:"sql-table"`

	// RedisClient is required when DriverRedis is used.
	RedisClient RedisClient `mapstructure:"-"`

	// NATSKeyValue is required when DriverNATS is used.
	NATSKeyValue NATSKeyValue `mapstructure:"-"`

	// DynamoClient is optional; a client is built from region/endpoint when nil.
	DynamoClient   DynamoAPI `mapstructure:"-"`
	DynamoRegion   string    `mapstructure:"dynamo-region"`
	DynamoEndpoint string    `mapstructure:"dynamo-endpoint"`
	DynamoTable    string    `mapstructure:"dynamo-table"`
}

func (c StoreConfig) withDefaults() StoreConfig {
	if c.Driver == "" {
		c.Driver = DriverMongo
	}
	if c.Host == "" {
		c.Host = defaultHost
	}
	if c.Port <= 0 {
		c.Port = defaultPort
	}
	if c.Database == "" {
		c.Database = defaultDatabase
	}
	if c.Prefix == "" {
		c.Prefix = defaultPrefix
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.SQLTable == "" {
		c.SQLTable = defaultSQLTable
	}
	if c.DynamoRegion == "" {
		c.DynamoRegion = defaultDynamoRegion
	}
	if c.DynamoTable == "" {
		c.DynamoTable = defaultDynamoTable
	}
	return c
}

// Config is the full configuration surface of a Client.
type Config struct {
	StoreConfig `mapstructure:",squash"`

	// Collection is used when Memoize or Cache is given an empty collection name.
	Collection string `mapstructure:"collection"`

	// CacheFalsy stores every result, including zero values.
	CacheFalsy bool `mapstructure:"cache-falsy"`

	// SingleFlight collapses concurrent misses for the same key set.
	SingleFlight bool `mapstructure:"single-flight"`

	// OperationTimeout bounds each store round-trip. Zero leaves it to the caller's context.
	OperationTimeout time.Duration `mapstructure:"operation-timeout"`

	// IndexRecheckInterval controls how long an ensured index is trusted before it is re-ensured.
	IndexRecheckInterval time.Duration `mapstructure:"index-recheck-interval"`
}

func (c Config) withDefaults() Config {
	c.StoreConfig = c.StoreConfig.withDefaults()
	if c.Collection == "" {
		c.Collection = defaultCollection
	}
	if c.IndexRecheckInterval <= 0 {
		c.IndexRecheckInterval = defaultIndexRecheckInterval
	}
	return c
}
