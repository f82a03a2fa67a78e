package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Mapping  MappingConfig  `mapstructure:"mapping"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
}

type ServerConfig struct {
	Port          int        `mapstructure:"port"`
	Mode          string     `mapstructure:"mode"`
	MaxUploadMB   int64      `mapstructure:"max_upload_mb"`
	CORS          CORSConfig `mapstructure:"cors"`
	ShutdownGrace int        `mapstructure:"shutdown_grace_seconds"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres, sqlite
	Path            string        `mapstructure:"path"`   // sqlite file
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// DSN returns the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // local, s3, r2, s3compatible
	LocalDir  string `mapstructure:"local_dir"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
}

type QueueConfig struct {
	Driver   string `mapstructure:"driver"` // memory, redis
	RedisURL string `mapstructure:"redis_url"`
	Key      string `mapstructure:"key"`
	Workers  int    `mapstructure:"workers"`
	// LeaseTTL bounds how long one worker owns a job id before another may claim it.
	LeaseTTL time.Duration `mapstructure:"lease_ttl"`
}

type IngestConfig struct {
	BatchSize        int           `mapstructure:"batch_size"`
	SampleSize       int           `mapstructure:"sample_size"`
	FallbackEstimate int           `mapstructure:"fallback_estimate"`
	MaxErrorSamples  int           `mapstructure:"max_error_samples"`
	StaleAfter       time.Duration `mapstructure:"stale_after"`
	ReapInterval     time.Duration `mapstructure:"reap_interval"`
}

// MappingConfig holds the header aliases and positional fallback used to
// turn arbitrary catalog exports into sku/name/description.
type MappingConfig struct {
	SKUAliases          []string `mapstructure:"sku_aliases"`
	NameAliases         []string `mapstructure:"name_aliases"`
	DescriptionAliases  []string `mapstructure:"description_aliases"`
	SKUPosition         int      `mapstructure:"sku_position"`
	NamePosition        int      `mapstructure:"name_position"`
	DescriptionPosition int      `mapstructure:"description_position"`
}

type WebhookConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Workers int           `mapstructure:"workers"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets and deployment knobs
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("storage.bucket", "STORAGE_BUCKET")
	v.BindEnv("queue.driver", "QUEUE_DRIVER")
	v.BindEnv("queue.redis_url", "REDIS_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.max_upload_mb", 512)
	v.SetDefault("server.shutdown_grace_seconds", 5)
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/catalog.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "catalog")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_dir", "./data/uploads")
	v.SetDefault("storage.bucket", "uploads")
	v.SetDefault("storage.prefix", "uploads")

	v.SetDefault("queue.driver", "memory")
	v.SetDefault("queue.redis_url", "redis://localhost:6379/0")
	v.SetDefault("queue.key", "prodimport:ingest")
	v.SetDefault("queue.workers", 2)
	v.SetDefault("queue.lease_ttl", "2h")

	v.SetDefault("ingest.batch_size", 1000)
	v.SetDefault("ingest.sample_size", 1024)
	v.SetDefault("ingest.fallback_estimate", 1000)
	v.SetDefault("ingest.max_error_samples", 10)
	v.SetDefault("ingest.stale_after", "15m")
	v.SetDefault("ingest.reap_interval", "1m")

	v.SetDefault("mapping.sku_aliases", []string{"uniq_id", "sku", "product_sku", "product-id", "product_id", "id", "item_sku", "pid"})
	v.SetDefault("mapping.name_aliases", []string{"product_name", "name", "title", "product-title", "item_name"})
	v.SetDefault("mapping.description_aliases", []string{"description", "desc", "product_description", "item_description"})
	v.SetDefault("mapping.sku_position", 0)
	v.SetDefault("mapping.name_position", 3)
	v.SetDefault("mapping.description_position", 10)

	v.SetDefault("webhook.timeout", "10s")
	v.SetDefault("webhook.workers", 4)
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.SampleSize <= 0 {
		return fmt.Errorf("ingest.sample_size must be positive, got %d", c.Ingest.SampleSize)
	}
	switch c.Queue.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("queue.driver must be memory or redis, got %q", c.Queue.Driver)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	return nil
}
