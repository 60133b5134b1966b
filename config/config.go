package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/supplierportal/notify-api/internal/gateway"
	"github.com/supplierportal/notify-api/pkg/messaging/redis"
	"github.com/supplierportal/notify-api/pkg/worker"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	JWT         JWTConfig       `mapstructure:"jwt"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Security    SecurityConfig  `mapstructure:"security"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Gateway     GatewayConfig   `mapstructure:"gateway"`
	Templates   TemplatesConfig `mapstructure:"templates"`
	Tracking    TrackingConfig  `mapstructure:"tracking"`
	Jobs        JobsConfig      `mapstructure:"jobs"`
	Queue       QueueConfig     `mapstructure:"queue"`
	Registry    RegistryConfig  `mapstructure:"registry"`
	Portal      PortalConfig    `mapstructure:"portal"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	HealthPort      int           `mapstructure:"health_port"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`

	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

type GatewayConfig struct {
	// Provider selects email delivery: api, smtp, ses or resend.
	Provider string `mapstructure:"provider"`
	// SMSProvider selects SMS delivery: api, sns or kavenegar.
	SMSProvider       string          `mapstructure:"sms_provider"`
	BaseURL           string          `mapstructure:"base_url"`
	Timeout           time.Duration   `mapstructure:"timeout"`
	ImmediateAttempts int             `mapstructure:"immediate_attempts"`
	ImmediateDelay    time.Duration   `mapstructure:"immediate_delay"`
	FromEmail         string          `mapstructure:"from_email"`
	FromName          string          `mapstructure:"from_name"`
	SMTP              SMTPConfig      `mapstructure:"smtp"`
	AWS               AWSConfig       `mapstructure:"aws"`
	Resend            ResendConfig    `mapstructure:"resend"`
	Kavenegar         KavenegarConfig `mapstructure:"kavenegar"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type AWSConfig struct {
	Region string `mapstructure:"region"`
}

type ResendConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type KavenegarConfig struct {
	APIKey string  `mapstructure:"api_key"`
	Sender string  `mapstructure:"sender"`
	Cost   float64 `mapstructure:"cost_per_message"`
}

type TemplatesConfig struct {
	AutoCreate bool          `mapstructure:"auto_create"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

type TrackingConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	SigningKey string `mapstructure:"signing_key"`
}

type JobsConfig struct {
	BatchSize         int           `mapstructure:"batch_size"`
	DispatchInterval  time.Duration `mapstructure:"dispatch_interval"`
	RetryInterval     time.Duration `mapstructure:"retry_interval"`
	PurgeInterval     time.Duration `mapstructure:"purge_interval"`
	RetentionDays     int           `mapstructure:"retention_days"`
	AnalyticsInterval time.Duration `mapstructure:"analytics_interval"`
	CampaignInterval  time.Duration `mapstructure:"campaign_interval"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
}

type QueueConfig struct {
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	LogRetryDelay     time.Duration `mapstructure:"log_retry_delay"`
	DefaultMaxRetries int           `mapstructure:"default_max_retries"`
	ItemTTL           time.Duration `mapstructure:"item_ttl"`
}

type RegistryConfig struct {
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`
	HeartbeatChannel string        `mapstructure:"heartbeat_channel"`
	EventsChannel    string        `mapstructure:"events_channel"`
}

// PortalConfig holds the links and switches used in business-event messages.
type PortalConfig struct {
	URL        string `mapstructure:"url"`
	AdminURL   string `mapstructure:"admin_url"`
	SMSEnabled bool   `mapstructure:"sms_enabled"`
}

// secretOverrides are read from NOTIFY_* environment variables after the file.
type secretOverrides struct {
	DBHost          string `envconfig:"DB_HOST"`
	DBPort          int    `envconfig:"DB_PORT"`
	DBPassword      string `envconfig:"DB_PASSWORD"`
	RedisURL        string `envconfig:"REDIS_URL"`
	JWTSecret       string `envconfig:"JWT_SECRET"`
	SigningKey      string `envconfig:"TRACKING_SIGNING_KEY"`
	SMTPPassword    string `envconfig:"SMTP_PASSWORD"`
	ResendAPIKey    string `envconfig:"RESEND_API_KEY"`
	KavenegarAPIKey string `envconfig:"KAVENEGAR_API_KEY"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.health_port", 8081)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "supplier_portal")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("jwt.issuer", "supplier-portal")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 50)
	v.SetDefault("rate_limit.burst", 100)

	v.SetDefault("security.allowed_origins", []string{"*"})
	v.SetDefault("security.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("security.allowed_headers", []string{"Authorization", "Content-Type", "X-Request-ID"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)

	v.SetDefault("gateway.provider", "api")
	v.SetDefault("gateway.sms_provider", "api")
	v.SetDefault("gateway.base_url", "http://localhost:3000")
	v.SetDefault("gateway.timeout", 30*time.Second)
	v.SetDefault("gateway.immediate_attempts", 3)
	v.SetDefault("gateway.immediate_delay", 2*time.Second)
	v.SetDefault("gateway.from_name", "Supplier Portal")
	v.SetDefault("gateway.smtp.port", 587)
	v.SetDefault("gateway.aws.region", "us-east-1")

	v.SetDefault("templates.auto_create", true)
	v.SetDefault("templates.cache_ttl", 5*time.Minute)

	v.SetDefault("tracking.base_url", "http://localhost:8080")

	v.SetDefault("jobs.batch_size", 50)
	v.SetDefault("jobs.dispatch_interval", 60*time.Second)
	v.SetDefault("jobs.retry_interval", 5*time.Minute)
	v.SetDefault("jobs.purge_interval", 24*time.Hour)
	v.SetDefault("jobs.retention_days", 30)
	v.SetDefault("jobs.analytics_interval", 24*time.Hour)
	v.SetDefault("jobs.campaign_interval", 10*time.Second)
	v.SetDefault("jobs.heartbeat_interval", 15*time.Second)
	v.SetDefault("jobs.lock_ttl", 5*time.Minute)

	v.SetDefault("queue.retry_delay", 60*time.Second)
	v.SetDefault("queue.log_retry_delay", 30*time.Minute)
	v.SetDefault("queue.default_max_retries", 3)
	v.SetDefault("queue.item_ttl", 72*time.Hour)

	v.SetDefault("registry.heartbeat_timeout", 90*time.Second)
	v.SetDefault("registry.heartbeat_channel", "notify.heartbeats")
	v.SetDefault("registry.events_channel", "application.events")

	v.SetDefault("portal.url", "http://localhost:3000")
	v.SetDefault("portal.admin_url", "http://localhost:3001")
	v.SetDefault("portal.sms_enabled", false)
}

// LoadConfig reads config.yml (optional), the environment, and a .env file if present.
func LoadConfig() (*Config, error) {
	return Load(nil)
}

// Load is LoadConfig with command-line flags bound over the file values.
func Load(flags *pflag.FlagSet) (*Config, error) {
	// .env is optional; a missing file is not an error
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app")
	v.AddConfigPath("/app/config")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var secrets secretOverrides
	if err := envconfig.Process("NOTIFY", &secrets); err != nil {
		return nil, fmt.Errorf("failed to read environment overrides: %w", err)
	}
	cfg.applySecrets(secrets)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applySecrets(s secretOverrides) {
	if s.DBHost != "" {
		c.Database.Host = s.DBHost
	}
	if s.DBPort != 0 {
		c.Database.Port = s.DBPort
	}
	if s.DBPassword != "" {
		c.Database.Password = s.DBPassword
	}
	if s.RedisURL != "" {
		c.Redis.URL = s.RedisURL
	}
	if s.JWTSecret != "" {
		c.JWT.Secret = s.JWTSecret
	}
	if s.SigningKey != "" {
		c.Tracking.SigningKey = s.SigningKey
	}
	if s.SMTPPassword != "" {
		c.Gateway.SMTP.Password = s.SMTPPassword
	}
	if s.ResendAPIKey != "" {
		c.Gateway.Resend.APIKey = s.ResendAPIKey
	}
	if s.KavenegarAPIKey != "" {
		c.Gateway.Kavenegar.APIKey = s.KavenegarAPIKey
	}
}

func (c *Config) Validate() error {
	if c.Jobs.BatchSize <= 0 {
		return fmt.Errorf("jobs.batch_size must be greater than 0")
	}
	if c.Jobs.RetentionDays <= 0 {
		return fmt.Errorf("jobs.retention_days must be greater than 0")
	}
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("gateway.timeout must be greater than 0")
	}
	if c.IsProduction() && c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required in production")
	}
	if c.IsProduction() && c.Tracking.SigningKey == "" {
		return fmt.Errorf("tracking.signing_key is required in production")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// TemplateAutoCreate is disabled in production regardless of the file setting.
func (c *Config) TemplateAutoCreate() bool {
	return c.Templates.AutoCreate && !c.IsProduction()
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

func (c *GatewayConfig) ToClientConfig() gateway.Config {
	return gateway.Config{
		BaseURL:           c.BaseURL,
		Timeout:           c.Timeout,
		ImmediateAttempts: c.ImmediateAttempts,
		ImmediateDelay:    c.ImmediateDelay,
		FromEmail:         c.FromEmail,
		FromName:          c.FromName,
		Provider:          c.Provider,
		SMSProvider:       c.SMSProvider,
		SMTP: gateway.SMTPConfig{
			Host:     c.SMTP.Host,
			Port:     c.SMTP.Port,
			Username: c.SMTP.Username,
			Password: c.SMTP.Password,
		},
		AWSRegion:       c.AWS.Region,
		ResendAPIKey:    c.Resend.APIKey,
		KavenegarAPIKey: c.Kavenegar.APIKey,
		KavenegarSender: c.Kavenegar.Sender,
		SMSCost:         c.Kavenegar.Cost,
	}
}

// RunnerConfig builds the periodic runner settings for one job.
func (c *JobsConfig) RunnerConfig(name string, interval time.Duration) worker.RunnerConfig {
	return worker.RunnerConfig{
		Name:     name,
		Interval: interval,
		LockTTL:  c.LockTTL,
	}
}
