package memocore

// BaseConfig contains shared, backend-agnostic driver configuration.
type BaseConfig struct {
	// Database scopes collections; every driver namespaces entries by it.
	Database string `mapstructure:"database"`
	// Prefix is used by key-value backends (redis, nats) to namespace keys.
	Prefix string `mapstructure:"prefix"`
	// MaxDocumentBytes rejects inserts whose BSON encoding is larger. Zero disables the check.
	MaxDocumentBytes int `mapstructure:"max-document-bytes"`
}
