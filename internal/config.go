package internal

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Vending       VendingConfig       `mapstructure:"vending"`
	SMS           SMSConfig           `mapstructure:"sms"`
	Daraja        DarajaConfig        `mapstructure:"daraja"`
	Redis         RedisConfig         `mapstructure:"redis"`
	NATS          NATSConfig          `mapstructure:"nats"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	JWTPrivateKey         string        `mapstructure:"jwt_private_key"`
	JWTPublicKey          string        `mapstructure:"jwt_public_key"`
	OperatorTokenDuration time.Duration `mapstructure:"operator_token_duration"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Path        string `mapstructure:"path"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// VendingConfig drives unit conversion, token issuance and the vend worker pool.
type VendingConfig struct {
	RatePerUnit      float64       `mapstructure:"rate_per_unit"`
	TokenLength      int           `mapstructure:"token_length"`
	MaxTokenAttempts int           `mapstructure:"max_token_attempts"`
	NotifyTimeout    time.Duration `mapstructure:"notify_timeout"`
	Workers          int           `mapstructure:"workers"`
	QueueSize        int           `mapstructure:"queue_size"`
	DispatchMode     string        `mapstructure:"dispatch_mode"`
}

type SMSConfig struct {
	Provider          string               `mapstructure:"provider"`
	SenderID          string               `mapstructure:"sender_id"`
	Timeout           time.Duration        `mapstructure:"timeout"`
	BulkRatePerSecond float64              `mapstructure:"bulk_rate_per_second"`
	Twilio            TwilioConfig         `mapstructure:"twilio"`
	AfricasTalking    AfricasTalkingConfig `mapstructure:"africastalking"`
	Mobizon           MobizonConfig        `mapstructure:"mobizon"`
}

type TwilioConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	FromNumber string `mapstructure:"from_number"`
}

type AfricasTalkingConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	Username string `mapstructure:"username"`
	APIKey   string `mapstructure:"api_key"`
}

type MobizonConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type DarajaConfig struct {
	BaseURL                string        `mapstructure:"base_url"`
	ConsumerKey            string        `mapstructure:"consumer_key"`
	ConsumerSecret         string        `mapstructure:"consumer_secret"`
	ShortCode              string        `mapstructure:"short_code"`
	CallbackBaseURL        string        `mapstructure:"callback_base_url"`
	InitiatorName          string        `mapstructure:"initiator_name"`
	SecurityCredential     string        `mapstructure:"security_credential"`
	SandboxMSISDN          string        `mapstructure:"sandbox_msisdn"`
	Timeout                time.Duration `mapstructure:"timeout"`
	RequireRegisteredMeter bool          `mapstructure:"require_registered_meter"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

const (
	DispatchModeInline = "inline"
	DispatchModeNATS   = "nats"
)

// ----------------- DEFAULTS -----------------

// ApplyDefaults fills zero values with the reference behaviour of the vending system.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Observability.Metrics.Path == "" {
		c.Observability.Metrics.Path = "/metrics"
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "text"
	}
	if c.Security.OperatorTokenDuration == 0 {
		c.Security.OperatorTokenDuration = 12 * time.Hour
	}
	if c.Vending.RatePerUnit == 0 {
		c.Vending.RatePerUnit = 10
	}
	if c.Vending.TokenLength == 0 {
		c.Vending.TokenLength = 20
	}
	if c.Vending.MaxTokenAttempts == 0 {
		c.Vending.MaxTokenAttempts = 5
	}
	if c.Vending.NotifyTimeout == 0 {
		c.Vending.NotifyTimeout = 5 * time.Second
	}
	if c.Vending.Workers == 0 {
		c.Vending.Workers = 4
	}
	if c.Vending.QueueSize == 0 {
		c.Vending.QueueSize = 100
	}
	if c.Vending.DispatchMode == "" {
		c.Vending.DispatchMode = DispatchModeInline
	}
	if c.SMS.Provider == "" {
		c.SMS.Provider = "mock"
	}
	if c.SMS.SenderID == "" {
		c.SMS.SenderID = "SMARTWATER"
	}
	if c.SMS.Timeout == 0 {
		c.SMS.Timeout = 10 * time.Second
	}
	if c.Daraja.BaseURL == "" {
		c.Daraja.BaseURL = "https://sandbox.safaricom.co.ke"
	}
	if c.Daraja.Timeout == 0 {
		c.Daraja.Timeout = 15 * time.Second
	}
	if c.Daraja.SandboxMSISDN == "" {
		c.Daraja.SandboxMSISDN = "254708374149"
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = 10 * time.Second
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "smartwater"
	}
}

// LoadConfigFromEnv builds the configuration for container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("PORT", 8080),
			BaseURL:           getEnv("BASE_URL", ""),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", ""),
			ReadHeaderTimeout: getEnvAsDuration("READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DATABASE_DRIVER", "postgres"),
			Source:          getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvAsInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvAsInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DATABASE_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Security: SecurityConfig{
			JWTPrivateKey:         getEnv("JWT_PRIVATE_KEY", ""),
			JWTPublicKey:          getEnv("JWT_PUBLIC_KEY", ""),
			OperatorTokenDuration: getEnvAsDuration("OPERATOR_TOKEN_DURATION", 12*time.Hour),
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled:     getEnv("METRICS_ENABLED", "true") == "true",
				Path:        getEnv("METRICS_PATH", "/metrics"),
				ServiceName: getEnv("SERVICE_NAME", "smartwater"),
				Environment: getEnv("APP_ENV", "production"),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
		Vending: VendingConfig{
			RatePerUnit:      getEnvAsFloat("VENDING_RATE_PER_UNIT", 10),
			TokenLength:      getEnvAsInt("VENDING_TOKEN_LENGTH", 20),
			MaxTokenAttempts: getEnvAsInt("VENDING_MAX_TOKEN_ATTEMPTS", 5),
			NotifyTimeout:    getEnvAsDuration("VENDING_NOTIFY_TIMEOUT", 5*time.Second),
			Workers:          getEnvAsInt("VENDING_WORKERS", 4),
			QueueSize:        getEnvAsInt("VENDING_QUEUE_SIZE", 100),
			DispatchMode:     getEnv("VENDING_DISPATCH_MODE", DispatchModeInline),
		},
		SMS: SMSConfig{
			Provider:          getEnv("SMS_PROVIDER", "mock"),
			SenderID:          getEnv("SMS_SENDER_ID", "SMARTWATER"),
			Timeout:           getEnvAsDuration("SMS_TIMEOUT", 10*time.Second),
			BulkRatePerSecond: getEnvAsFloat("SMS_BULK_RATE_PER_SECOND", 5),
			Twilio: TwilioConfig{
				BaseURL:    getEnv("TWILIO_BASE_URL", "https://api.twilio.com"),
				AccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
				AuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
				FromNumber: getEnv("TWILIO_FROM_NUMBER", ""),
			},
			AfricasTalking: AfricasTalkingConfig{
				BaseURL:  getEnv("AFRICASTALKING_BASE_URL", "https://api.africastalking.com"),
				Username: getEnv("AFRICASTALKING_USERNAME", ""),
				APIKey:   getEnv("AFRICASTALKING_API_KEY", ""),
			},
			Mobizon: MobizonConfig{
				BaseURL: getEnv("MOBIZON_BASE_URL", "https://api.mobizon.kz"),
				APIKey:  getEnv("MOBIZON_API_KEY", ""),
			},
		},
		Daraja: DarajaConfig{
			BaseURL:                getEnv("DARAJA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			ConsumerKey:            getEnv("CONSUMER_KEY", ""),
			ConsumerSecret:         getEnv("CONSUMER_SECRET", ""),
			ShortCode:              getEnv("SHORTCODE", ""),
			CallbackBaseURL:        getEnv("CALLBACK_BASE_URL", ""),
			InitiatorName:          getEnv("INITIATOR_NAME", ""),
			SecurityCredential:     getEnv("SECURITY_CREDENTIAL", ""),
			SandboxMSISDN:          getEnv("DARAJA_SANDBOX_MSISDN", "254708374149"),
			Timeout:                getEnvAsDuration("DARAJA_TIMEOUT", 15*time.Second),
			RequireRegisteredMeter: getEnv("DARAJA_REQUIRE_REGISTERED_METER", "false") == "true",
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			LockTTL:  getEnvAsDuration("REDIS_LOCK_TTL", 10*time.Second),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", ""),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "smartwater"),
		},
	}
	cfg.ApplyDefaults()
	return cfg
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

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Vending.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("vending config: %v", err))
	}

	if err := c.SMS.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("sms config: %v", err))
	}

	if err := c.Observability.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging config: %v", err))
	}

	if c.Vending.DispatchMode == DispatchModeNATS && c.NATS.URL == "" {
		errs = append(errs, "nats config: url is required when vending.dispatch_mode is nats")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Driver != "postgres" && c.Driver != "sqlite" {
		return fmt.Errorf("unsupported driver %q", c.Driver)
	}
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

// Validate only checks keys that are present; admin endpoints stay disabled without a public key.
func (c *SecurityConfig) Validate() error {
	if c.JWTPrivateKey != "" {
		if _, err := c.GetPrivateKey(); err != nil {
			return fmt.Errorf("invalid JWT private key: %w", err)
		}
	}
	if c.JWTPublicKey != "" {
		if _, err := c.GetPublicKey(); err != nil {
			return fmt.Errorf("invalid JWT public key: %w", err)
		}
	}
	return nil
}

func (c *SecurityConfig) GetPrivateKey() (*rsa.PrivateKey, error) {
	keyData, err := base64.StdEncoding.DecodeString(c.JWTPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, errors.New("failed to parse PEM block")
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

func (c *SecurityConfig) GetPublicKey() (*rsa.PublicKey, error) {
	keyData, err := base64.StdEncoding.DecodeString(c.JWTPublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, errors.New("failed to parse PEM block")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return rsaPub, nil
}

func (c *VendingConfig) Validate() error {
	if c.RatePerUnit <= 0 {
		return errors.New("rate_per_unit must be positive")
	}
	if c.TokenLength < 12 {
		return errors.New("token_length must be at least 12 digits")
	}
	if c.MaxTokenAttempts < 1 {
		return errors.New("max_token_attempts must be at least 1")
	}
	if c.DispatchMode != DispatchModeInline && c.DispatchMode != DispatchModeNATS {
		return fmt.Errorf("unknown dispatch_mode %q", c.DispatchMode)
	}
	return nil
}

func (c *SMSConfig) Validate() error {
	switch c.Provider {
	case "mock":
	case "twilio":
		if c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" {
			return errors.New("twilio account_sid and auth_token are required")
		}
	case "africastalking":
		if c.AfricasTalking.Username == "" || c.AfricasTalking.APIKey == "" {
			return errors.New("africastalking username and api_key are required")
		}
	case "mobizon":
		if c.Mobizon.APIKey == "" {
			return errors.New("mobizon api_key is required")
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	return nil
}

func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown level %q", c.Level)
	}
	if c.Format != "json" && c.Format != "text" {
		return fmt.Errorf("unknown format %q", c.Format)
	}
	return nil
}
