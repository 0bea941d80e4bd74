package memo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. MEMO_HOST or MEMO_CACHE_FALSY.
const EnvPrefix = "MEMO"

// LoadConfig reads a YAML, TOML or JSON file into Config. An empty path looks
// for memo.{yaml,toml,json} in the working directory; a missing file is not an
// error. Environment variables override file values.
// @group Configuration
//
// Example: load configuration
//
//	cfg, err := memo.LoadConfig("memo.yaml")
//	if err != nil {
//		fmt.Println(err)
//		return
//	}
//	client := memo.New(context.Background(), cfg)
//	fmt.Println(client.Driver())
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("memo")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read memo config: %w", err)
		}
	}
	return ConfigFromViper(v)
}

// ConfigFromViper decodes Config from a viper instance owned by the caller,
// registering defaults and MEMO_ environment overrides on it.
// @group Configuration
func ConfigFromViper(v *viper.Viper) (Config, error) {
	setConfigDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode memo config: %w", err)
	}
	return cfg.withDefaults(), nil
}

// setConfigDefaults registers every key so environment-only values are decoded.
func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("driver", string(DriverMongo))
	v.SetDefault("host", defaultHost)
	v.SetDefault("port", defaultPort)
	v.SetDefault("uri", "")
	v.SetDefault("database", defaultDatabase)
	v.SetDefault("collection", defaultCollection)
	v.SetDefault("prefix", defaultPrefix)
	v.SetDefault("cache-falsy", false)
	v.SetDefault("single-flight", false)
	v.SetDefault("connect-timeout", defaultConnectTimeout)
	v.SetDefault("operation-timeout", 0)
	v.SetDefault("index-recheck-interval", defaultIndexRecheckInterval)
	v.SetDefault("max-document-bytes", 0)
	v.SetDefault("sql-driver", "")
	v.SetDefault("sql-dsn", "")
	v.SetDefault("sql-table", defaultSQLTable)
	v.SetDefault("dynamo-region", defaultDynamoRegion)
	v.SetDefault("dynamo-endpoint", "")
	v.SetDefault("dynamo-table", defaultDynamoTable)
}
