package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Storage StorageConfig `mapstructure:"storage"`
	Etcd    EtcdConfig    `mapstructure:"etcd"`
	Redis   RedisConfig   `mapstructure:"redis"`
	MySQL   MySQLConfig   `mapstructure:"mysql"`
	MongoDB MongoDBConfig `mapstructure:"mongodb"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Payment PaymentConfig `mapstructure:"payment"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig is the gRPC listener.
type ServerConfig struct {
	Name string `mapstructure:"name"`
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type GatewayConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
}

// StorageConfig selects the backends for the stores. Driver applies to the
// catalog, users, admin config and activity log; Ledger overrides the order
// ledger backend and defaults to Driver.
type StorageConfig struct {
	Driver    string `mapstructure:"driver"`
	Ledger    string `mapstructure:"ledger"`
	DataDir   string `mapstructure:"data_dir"`
	UploadDir string `mapstructure:"upload_dir"`
}

func (s StorageConfig) LedgerDriver() string {
	if s.Ledger == "" {
		return s.Driver
	}
	return s.Ledger
}

type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Prefix      string        `mapstructure:"prefix"`
	LeaseTTL    int64         `mapstructure:"lease_ttl"`
}

type RedisConfig struct {
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	PoolSize   int           `mapstructure:"pool_size"`
	CatalogTTL time.Duration `mapstructure:"catalog_ttl"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	AdminEmail    string        `mapstructure:"admin_email"`
	AdminPassword string        `mapstructure:"admin_password"`
}

// PaymentConfig holds gateway endpoint settings. Keys are not configured
// here; admins store them at runtime.
type PaymentConfig struct {
	APIURL   string        `mapstructure:"api_url"`
	Currency string        `mapstructure:"currency"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Encoding    string   `mapstructure:"encoding"`
	OutputPaths []string `mapstructure:"output_paths"`
}

const envPrefix = "STOREFRONT"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "storefront")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 50052)

	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("gateway.port", 8080)
	v.SetDefault("gateway.allowed_origins", []string{"*"})
	v.SetDefault("gateway.read_timeout", 7*time.Second)
	v.SetDefault("gateway.write_timeout", 15*time.Second)
	v.SetDefault("gateway.shutdown_timeout", 10*time.Second)
	v.SetDefault("gateway.rate_limit", 5.0)
	v.SetDefault("gateway.rate_burst", 10)
	v.SetDefault("gateway.max_upload_bytes", 10<<20)

	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.upload_dir", "uploads")
	v.SetDefault("storage.ledger", "")

	v.SetDefault("etcd.dial_timeout", 5*time.Second)
	v.SetDefault("etcd.prefix", "/services/")
	v.SetDefault("etcd.lease_ttl", 30)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.catalog_ttl", time.Minute)

	v.SetDefault("mysql.host", "")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.username", "")
	v.SetDefault("mysql.password", "")
	v.SetDefault("mysql.database", "")
	v.SetDefault("mysql.max_idle_conns", 5)
	v.SetDefault("mysql.max_open_conns", 20)

	v.SetDefault("mongodb.uri", "")
	v.SetDefault("mongodb.database", "storefront")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "orders.placed")

	// Empty defaults register the keys so environment overrides reach Unmarshal.
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.admin_email", "")
	v.SetDefault("auth.admin_password", "")

	v.SetDefault("payment.api_url", "https://api.razorpay.com/v1")
	v.SetDefault("payment.currency", "INR")
	v.SetDefault("payment.timeout", 15*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.output_paths", []string{"stdout"})
}

// Load reads the YAML file at configPath (optional when empty), applies
// defaults and STOREFRONT_* environment overrides. A .env file in the working
// directory is loaded first if present.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Gateway.Port <= 0 {
		errs = append(errs, errors.New("gateway.port must be positive"))
	}
	if c.Server.Port <= 0 {
		errs = append(errs, errors.New("server.port must be positive"))
	}

	switch c.Storage.Driver {
	case "file":
		if c.Storage.DataDir == "" {
			errs = append(errs, errors.New("storage.data_dir is required for the file driver"))
		}
	case "mongo":
		if c.MongoDB.URI == "" {
			errs = append(errs, errors.New("mongodb.uri is required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}

	switch c.Storage.LedgerDriver() {
	case "file", "mongo":
	case "mysql":
		if c.MySQL.Host == "" || c.MySQL.Database == "" {
			errs = append(errs, errors.New("mysql.host and mysql.database are required for the mysql ledger"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.ledger %q", c.Storage.Ledger))
	}

	return errors.Join(errs...)
}

func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.Username, c.Password, c.Host, c.Port, c.Database)
}
