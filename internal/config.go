package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreDriverAuto      = "auto"
	StoreDriverFirestore = "firestore"
	StoreDriverPostgres  = "postgres"
	StoreDriverBolt      = "bolt"
	StoreDriverNone      = "none"
)

type Config struct {
	Env      string         `mapstructure:"env"`
	Server   ServerConfig   `mapstructure:"http_server"`
	Database DatabaseConfig `mapstructure:"database"`
	Store    StoreConfig    `mapstructure:"store"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	PayPal   PayPalConfig   `mapstructure:"paypal"`
	PayU     PayUConfig     `mapstructure:"payu"`
	FX       FXConfig       `mapstructure:"fx"`
	OTP      OTPConfig      `mapstructure:"otp"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	PagesBaseURL      string        `mapstructure:"pages_base_url"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	OpenAPIPath       string        `mapstructure:"openapi_path"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

// StoreConfig selects the PaymentStore backend. Driver "auto" picks the first
// backend with credentials in the order firestore, postgres, bolt.
type StoreConfig struct {
	Driver                   string `mapstructure:"driver"`
	FirestoreProjectID       string `mapstructure:"firestore_project_id"`
	FirestoreCredentialsFile string `mapstructure:"firestore_credentials_file"`
	FirestoreCredentialsJSON string `mapstructure:"firestore_credentials_json"`
	FirestoreCollection      string `mapstructure:"firestore_collection"`
	BoltPath                 string `mapstructure:"bolt_path"`
	BoltBucket               string `mapstructure:"bolt_bucket"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type PayPalConfig struct {
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	APIBase      string        `mapstructure:"api_base"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type PayUConfig struct {
	Key  string `mapstructure:"key"`
	Salt string `mapstructure:"salt"`
	URL  string `mapstructure:"url"`
}

type FXConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	APIBase      string        `mapstructure:"api_base"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FallbackRate float64       `mapstructure:"fallback_rate"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	RedisAddr    string        `mapstructure:"redis_addr"`
	RedisDB      int           `mapstructure:"redis_db"`
}

type OTPConfig struct {
	TTL         time.Duration `mapstructure:"ttl"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	SendEvery   time.Duration `mapstructure:"send_every"`
	SendBurst   int           `mapstructure:"send_burst"`
	BCryptCost  int           `mapstructure:"bcrypt_cost"`
}

// LoggingConfig leaves the level to the environment when Level is empty:
// info in production, debug elsewhere.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns the values used when neither config.yml nor the
// environment set a field.
func DefaultConfig() *Config {
	return &Config{
		Env: "development",
		Server: ServerConfig{
			Port:              8080,
			BaseURL:           "http://localhost:3000",
			AllowedOrigins:    []string{"http://localhost:3000"},
			OpenAPIPath:       "./api/openapi.yml",
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Store: StoreConfig{
			Driver:              StoreDriverAuto,
			FirestoreCollection: "payments",
			BoltBucket:          "payments",
		},
		PayPal: PayPalConfig{
			APIBase: "https://api-m.sandbox.paypal.com",
			Timeout: 10 * time.Second,
		},
		PayU: PayUConfig{
			URL: "https://test.payu.in/_payment",
		},
		FX: FXConfig{
			APIBase:      "https://v6.exchangerate-api.com",
			Timeout:      5 * time.Second,
			FallbackRate: 88.44,
			CacheTTL:     time.Hour,
		},
		OTP: OTPConfig{
			TTL:         10 * time.Minute,
			MaxAttempts: 5,
			SendEvery:   30 * time.Second,
			SendBurst:   3,
			BCryptCost:  10,
		},
		Logging: LoggingConfig{
			Format: "text",
		},
	}
}

// ApplyEnv overlays the deployment environment variables on top of c.
func (c *Config) ApplyEnv() {
	c.Env = getEnv("APP_ENV", c.Env)
	c.Server.Port = getEnvAsInt("PORT", c.Server.Port)
	c.Server.BaseURL = strings.TrimRight(getEnv("NEXT_PUBLIC_BASE_URL", c.Server.BaseURL), "/")
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = strings.Split(origins, ",")
	}

	c.Database.Source = getEnv("DATABASE_URL", c.Database.Source)

	c.Store.Driver = getEnv("STORE_DRIVER", c.Store.Driver)
	c.Store.FirestoreProjectID = getEnv("FIRESTORE_PROJECT_ID", c.Store.FirestoreProjectID)
	c.Store.FirestoreCredentialsFile = getEnv("FIRESTORE_CREDENTIALS_FILE", c.Store.FirestoreCredentialsFile)
	c.Store.FirestoreCredentialsJSON = getEnv("FIRESTORE_CREDENTIALS_JSON", c.Store.FirestoreCredentialsJSON)
	c.Store.FirestoreCollection = getEnv("FIRESTORE_COLLECTION", c.Store.FirestoreCollection)
	c.Store.BoltPath = getEnv("BOLT_PATH", c.Store.BoltPath)

	c.Stripe.SecretKey = getEnv("STRIPE_SECRET_KEY", c.Stripe.SecretKey)
	c.Stripe.WebhookSecret = getEnv("STRIPE_WEBHOOK_SECRET", c.Stripe.WebhookSecret)

	c.PayPal.ClientID = getEnv("PAYPAL_CLIENT_ID", c.PayPal.ClientID)
	c.PayPal.ClientSecret = getEnv("PAYPAL_CLIENT_SECRET", c.PayPal.ClientSecret)
	c.PayPal.APIBase = strings.TrimRight(getEnv("PAYPAL_API_BASE", c.PayPal.APIBase), "/")

	c.PayU.Key = getEnv("PAYU_KEY", c.PayU.Key)
	c.PayU.Salt = getEnv("PAYU_SALT", c.PayU.Salt)
	c.PayU.URL = getEnv("PAYU_URL", c.PayU.URL)

	// both spellings are in use across deployments
	c.FX.APIKey = getEnv("EXCHANGERATE_API_KEY", getEnv("EXCHANGE_RATE_API_KEY", c.FX.APIKey))
	c.FX.RedisAddr = getEnv("REDIS_ADDR", c.FX.RedisAddr)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

// Validate checks structural consistency only. Missing gateway secrets are
// reported per request, not at startup.
func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Store.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("store config: %v", err))
	}

	if err := c.FX.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("fx config: %v", err))
	}

	if err := c.OTP.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("otp config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid base_url %q", c.BaseURL)
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *StoreConfig) Validate() error {
	switch c.Driver {
	case "", StoreDriverAuto, StoreDriverNone:
		return nil
	case StoreDriverFirestore:
		if c.FirestoreProjectID == "" {
			return errors.New("firestore_project_id is required for the firestore driver")
		}
	case StoreDriverBolt:
		if c.BoltPath == "" {
			return errors.New("bolt_path is required for the bolt driver")
		}
	case StoreDriverPostgres:
		return nil
	default:
		return fmt.Errorf("unknown store driver %q", c.Driver)
	}
	return nil
}

func (c *FXConfig) Validate() error {
	if c.FallbackRate <= 0 {
		return errors.New("fallback_rate must be positive")
	}
	return nil
}

func (c *OTPConfig) Validate() error {
	if c.MaxAttempts <= 0 {
		return errors.New("max_attempts must be positive")
	}
	if c.TTL <= 0 {
		return errors.New("ttl must be positive")
	}
	return nil
}

func (c *StripeConfig) Configured() bool {
	return c.SecretKey != ""
}

func (c *PayPalConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

func (c *PayUConfig) Configured() bool {
	return c.Key != "" && c.Salt != ""
}
