package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Environment string
	LogLevel    string
	ServiceName string

	HTTP       HTTPConfig
	Cart       CartConfig
	Orders     OrdersConfig
	Catalog    CatalogConfig
	Kafka      KafkaConfig
	Pricing    PricingConfig
	Validation ValidationConfig
	Payment    PaymentConfig
	Checkout   CheckoutConfig
}

type HTTPConfig struct {
	Port            string
	GRPCPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// CartConfig: empty MongoURI keeps carts in memory, empty RedisAddr disables the cache.
type CartConfig struct {
	MongoURI       string
	MongoDatabase  string
	RedisAddr      string
	CacheTTL       time.Duration
	ReservationTTL time.Duration
}

// OrdersConfig: empty PostgresHost keeps orders in memory.
type OrdersConfig struct {
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	MigrationsPath   string
}

type CatalogConfig struct {
	SQLitePath     string
	MigrationsPath string
}

// KafkaConfig: no brokers means order events are dropped.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type PricingConfig struct {
	VATRate          decimal.Decimal
	StandardShipping decimal.Decimal
	ExpressShipping  decimal.Decimal
	Currency         string
}

type ValidationConfig struct {
	PhonePattern string
}

type PaymentConfig struct {
	MaxWait            time.Duration
	PollInterval       time.Duration
	ChargeTimeout      time.Duration
	StatusRedisAddr    string
	SimulatorLatency   time.Duration
	SimulatorSuccess   float64
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

type CheckoutConfig struct {
	IdleTTL        time.Duration
	GatewayTimeout time.Duration
}

var defaults = map[string]any{
	"ENVIRONMENT":  "development",
	"LOG_LEVEL":    "info",
	"SERVICE_NAME": "storefront",

	"HTTP_PORT":             "8080",
	"GRPC_PORT":             "50051",
	"HTTP_READ_TIMEOUT":     "15s",
	"HTTP_WRITE_TIMEOUT":    "15s",
	"HTTP_REQUEST_TIMEOUT":  "30s",
	"HTTP_SHUTDOWN_TIMEOUT": "10s",

	"CART_MONGO_URI":       "",
	"CART_MONGO_DATABASE":  "cart_db",
	"CART_REDIS_ADDR":      "",
	"CART_CACHE_TTL":       "15m",
	"CART_RESERVATION_TTL": "15m",

	"ORDERS_DB_HOST":         "",
	"ORDERS_DB_PORT":         5432,
	"ORDERS_DB_USER":         "postgres",
	"ORDERS_DB_PASSWORD":     "postgres",
	"ORDERS_DB_NAME":         "orders",
	"ORDERS_MIGRATIONS_PATH": "internal/order/repository/migrations",

	"CATALOG_SQLITE_PATH":     "catalog.db",
	"CATALOG_MIGRATIONS_PATH": "internal/catalog/migrations",

	"KAFKA_BROKERS": "",
	"KAFKA_TOPIC":   "storefront-orders",

	"VAT_RATE":          "0.16",
	"SHIPPING_STANDARD": "200",
	"SHIPPING_EXPRESS":  "500",
	"CURRENCY":          "KES",

	"PHONE_PATTERN": `^(?:\+254|0)[1-9][0-9]{8}$`,

	"PAYMENT_MAX_WAIT":             "60s",
	"PAYMENT_POLL_INTERVAL":        "3s",
	"PAYMENT_CHARGE_TIMEOUT":       "10s",
	"PAYMENT_STATUS_REDIS_ADDR":    "",
	"PAYMENT_SIMULATOR_LATENCY":    "2s",
	"PAYMENT_SIMULATOR_SUCCESS":    0.9,
	"PAYMENT_BREAKER_MAX_FAILURES": 5,
	"PAYMENT_BREAKER_OPEN_TIMEOUT": "30s",

	"CHECKOUT_IDLE_TTL":        "30m",
	"CHECKOUT_GATEWAY_TIMEOUT": "5s",
}

// Load reads configuration from the environment and an optional .env file in
// the working directory or one of its parents.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("env")
	v.SetConfigName(".env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper builds the config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	p := parser{v: v}
	cfg := &Config{
		Environment: v.GetString("ENVIRONMENT"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		ServiceName: v.GetString("SERVICE_NAME"),
		HTTP: HTTPConfig{
			Port:            v.GetString("HTTP_PORT"),
			GRPCPort:        v.GetString("GRPC_PORT"),
			ReadTimeout:     p.duration("HTTP_READ_TIMEOUT"),
			WriteTimeout:    p.duration("HTTP_WRITE_TIMEOUT"),
			RequestTimeout:  p.duration("HTTP_REQUEST_TIMEOUT"),
			ShutdownTimeout: p.duration("HTTP_SHUTDOWN_TIMEOUT"),
		},
		Cart: CartConfig{
			MongoURI:       strings.TrimSpace(v.GetString("CART_MONGO_URI")),
			MongoDatabase:  v.GetString("CART_MONGO_DATABASE"),
			RedisAddr:      strings.TrimSpace(v.GetString("CART_REDIS_ADDR")),
			CacheTTL:       p.duration("CART_CACHE_TTL"),
			ReservationTTL: p.duration("CART_RESERVATION_TTL"),
		},
		Orders: OrdersConfig{
			PostgresHost:     strings.TrimSpace(v.GetString("ORDERS_DB_HOST")),
			PostgresPort:     v.GetInt("ORDERS_DB_PORT"),
			PostgresUser:     v.GetString("ORDERS_DB_USER"),
			PostgresPassword: v.GetString("ORDERS_DB_PASSWORD"),
			PostgresDB:       v.GetString("ORDERS_DB_NAME"),
			MigrationsPath:   v.GetString("ORDERS_MIGRATIONS_PATH"),
		},
		Catalog: CatalogConfig{
			SQLitePath:     v.GetString("CATALOG_SQLITE_PATH"),
			MigrationsPath: v.GetString("CATALOG_MIGRATIONS_PATH"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetString("KAFKA_BROKERS")),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
		Pricing: PricingConfig{
			VATRate:          p.decimal("VAT_RATE"),
			StandardShipping: p.decimal("SHIPPING_STANDARD"),
			ExpressShipping:  p.decimal("SHIPPING_EXPRESS"),
			Currency:         v.GetString("CURRENCY"),
		},
		Validation: ValidationConfig{
			PhonePattern: v.GetString("PHONE_PATTERN"),
		},
		Payment: PaymentConfig{
			MaxWait:            p.duration("PAYMENT_MAX_WAIT"),
			PollInterval:       p.duration("PAYMENT_POLL_INTERVAL"),
			ChargeTimeout:      p.duration("PAYMENT_CHARGE_TIMEOUT"),
			StatusRedisAddr:    strings.TrimSpace(v.GetString("PAYMENT_STATUS_REDIS_ADDR")),
			SimulatorLatency:   p.duration("PAYMENT_SIMULATOR_LATENCY"),
			SimulatorSuccess:   v.GetFloat64("PAYMENT_SIMULATOR_SUCCESS"),
			BreakerMaxFailures: v.GetUint32("PAYMENT_BREAKER_MAX_FAILURES"),
			BreakerOpenTimeout: p.duration("PAYMENT_BREAKER_OPEN_TIMEOUT"),
		},
		Checkout: CheckoutConfig{
			IdleTTL:        p.duration("CHECKOUT_IDLE_TTL"),
			GatewayTimeout: p.duration("CHECKOUT_GATEWAY_TIMEOUT"),
		},
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) validate() error {
	if c.Payment.PollInterval <= 0 {
		return fmt.Errorf("PAYMENT_POLL_INTERVAL must be positive")
	}
	if c.Payment.MaxWait < c.Payment.PollInterval {
		return fmt.Errorf("PAYMENT_MAX_WAIT must be at least PAYMENT_POLL_INTERVAL")
	}
	if c.Payment.ChargeTimeout <= 0 {
		return fmt.Errorf("PAYMENT_CHARGE_TIMEOUT must be positive")
	}
	if c.Checkout.GatewayTimeout <= 0 {
		return fmt.Errorf("CHECKOUT_GATEWAY_TIMEOUT must be positive")
	}
	if c.Pricing.VATRate.IsNegative() {
		return fmt.Errorf("VAT_RATE must not be negative")
	}
	if c.Payment.SimulatorSuccess < 0 || c.Payment.SimulatorSuccess > 1 {
		return fmt.Errorf("PAYMENT_SIMULATOR_SUCCESS must be between 0 and 1")
	}
	return nil
}

// parser collects conversion errors so every bad key is reported at once.
type parser struct {
	v    *viper.Viper
	errs []error
}

func (p *parser) duration(key string) time.Duration {
	raw := strings.TrimSpace(p.v.GetString(key))
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, raw))
	}
	return d
}

func (p *parser) decimal(key string) decimal.Decimal {
	raw := strings.TrimSpace(p.v.GetString(key))
	d, err := decimal.NewFromString(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid amount %q", key, raw))
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
