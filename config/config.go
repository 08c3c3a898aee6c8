package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type AppConfig struct {
	Port int `mapstructure:"port" validate:"required,numeric,min=1,max=65535"`

	Database    DatabaseConfig    `mapstructure:"database"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Media       MediaConfig       `mapstructure:"media"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

type PersistenceConfig struct {
	// Type selects the blob store backend: filesystem, s3 or memory.
	Type       string   `mapstructure:"type"`
	StorageDir string   `mapstructure:"storage_dir"`
	S3         S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	KeyID     string `mapstructure:"key_id"`
	AccessKey string `mapstructure:"access_key"`
	Timeout   string `mapstructure:"timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MediaConfig struct {
	DefaultFolder string `mapstructure:"default_folder"`
	MaxDimension  int    `mapstructure:"max_dimension"`
	MinDimension  int    `mapstructure:"min_dimension"`
	// NameAttempts bounds the numeric-suffix probing when resolving a free
	// filename.
	NameAttempts int `mapstructure:"name_attempts"`
	// LockWaitSeconds bounds how long a deletion waits for the per-image
	// lock before giving up with a retryable failure.
	LockWaitSeconds int `mapstructure:"lock_wait_seconds"`
	// MetaDeleteAttempts bounds the metadata deletion retries after all
	// files were removed.
	MetaDeleteAttempts int `mapstructure:"meta_delete_attempts"`
	// FeaturedDocument points at the semi-structured content document that
	// the usage scanner consults as a best-effort secondary channel. May be
	// empty or missing.
	FeaturedDocument string `mapstructure:"featured_document"`
	// SweepAfterHours is how long an image may stay unlabeled before the
	// retention sweep removes it. Zero disables the sweep.
	SweepAfterHours int `mapstructure:"sweep_after_hours"`
}

var Cfg = &AppConfig{}

// Load reads configuration from an optional config file and the environment
// into Cfg. Environment variables use the IMAGE_REGISTRY_ prefix with
// underscores for nesting, e.g. IMAGE_REGISTRY_DATABASE_HOST.
func Load() error {
	v := viper.New()

	v.SetDefault("port", 8080)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.database", "image_registry")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("persistence.type", "filesystem")
	v.SetDefault("persistence.storage_dir", "")
	v.SetDefault("persistence.s3.timeout", "60s")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("media.default_folder", "images")
	v.SetDefault("media.max_dimension", 6000)
	v.SetDefault("media.min_dimension", 10)
	v.SetDefault("media.name_attempts", 50)
	v.SetDefault("media.lock_wait_seconds", 30)
	v.SetDefault("media.meta_delete_attempts", 3)
	v.SetDefault("media.featured_document", "")
	v.SetDefault("media.sweep_after_hours", 0)

	v.SetEnvPrefix("IMAGE_REGISTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/image-registry")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(Cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return nil
}
