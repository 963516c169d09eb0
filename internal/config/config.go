// Package config provides configuration management for the parameter service.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the parameter service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	MongoDB   MongoDBConfig   `mapstructure:"mongodb"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Security  SecurityConfig  `mapstructure:"security"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Datatypes DatatypesConfig `mapstructure:"datatypes"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// BaseURL qualifies baseurl parameter values.
	BaseURL string `mapstructure:"base_url"`
}

// MongoDBConfig holds MongoDB connection configuration. An empty URI
// disables job parameter persistence.
type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// RedisConfig holds Redis connection configuration. An empty address
// disables job request publishing.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// DatabaseConfig holds the Galaxy Postgres connection. An empty DSN selects
// the in-memory datastore.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// SecurityConfig holds id encoding and API key configuration.
type SecurityConfig struct {
	IDSecret string `mapstructure:"id_secret"`
	// APIKeys maps user names to API keys. The API is open when empty.
	APIKeys map[string]string `mapstructure:"api_keys"`
}

// ToolsConfig holds tool loading configuration.
type ToolsConfig struct {
	Dir       string `mapstructure:"dir"`
	CacheSize int    `mapstructure:"cache_size"`
}

// DatatypesConfig points at a YAML datatype registry. An empty path uses
// the built in set.
type DatatypesConfig struct {
	Registry string `mapstructure:"registry"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.base_url", "http://localhost:8080")

	v.SetDefault("mongodb.uri", "")
	v.SetDefault("mongodb.database", "galaxy_params")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "job_requests")

	v.SetDefault("database.dsn", "")

	v.SetDefault("security.id_secret", "")

	v.SetDefault("tools.dir", "./tools")
	v.SetDefault("tools.cache_size", 256)

	v.SetDefault("datatypes.registry", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/galaxy-params")
	}

	v.SetEnvPrefix("GALAXY_PARAMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing config file is fine; defaults and env still apply.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
