package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewProvisioningProfileHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	SiteURL     string
	StaticDir   string

	Observability ObservabilityConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisURL string

	Jobs        JobsConfig
	Stripe      StripeConfig
	Linode      LinodeConfig
	DNS         DNSConfig
	Email       EmailConfig
	Stream      StreamConfig
	RateLimit   RateLimitConfig
	MetricsPush MetricsPushConfig
}

// ObservabilityConfig carries the logging, tracing and query logging knobs.
// OTEL_* variables win over the shorter streamgate names.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	LogSampling bool

	SlowQueryThreshold time.Duration

	OtelEnabled       bool
	OtelEndpoint      string
	OtelProtocol      string
	OtelSamplingRatio float64
}

type JobsConfig struct {
	Mode    string
	Workers int
	// ReplicaID names this process's Redis processing list. It must be
	// stable across restarts and unique among running replicas.
	ReplicaID string
}

type StripeConfig struct {
	SecretKey         string
	PublishableKey    string
	WebhookSecret     string
	APIVersion        string
	BaseURL           string
	SubscriptionPrice string
	DonationProduct   string
}

type LinodeConfig struct {
	Token        string
	BaseURL      string
	InstanceType string
	ImageLabel   string
	WaitForBoot  bool
	PollInterval time.Duration
}

type DNSConfig struct {
	RootDomain string
	ReadToken  string
	WriteToken string
	BaseURL    string
}

type EmailConfig struct {
	Provider       string
	From           string
	SendGridAPIKey string
	SendGridURL    string
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
}

type StreamConfig struct {
	WebhookTimeout time.Duration
}

type RateLimitConfig struct {
	StreamKeyRate  float64
	StreamKeyBurst int
}

// MetricsPushConfig ships the prometheus registry to a Pushgateway or a
// remote_write endpoint for deployments that cannot be scraped.
type MetricsPushConfig struct {
	Exporter  string
	Endpoint  string
	AuthToken string
	Interval  time.Duration
}

const (
	JobModeQueue  = "queue"
	JobModeInline = "inline"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "streamgate"),
		AppVersion:        strings.TrimSpace(getenv("SERVICE_VERSION", getenv("APP_VERSION", "0.1.0"))),
		Environment:       strings.TrimSpace(getenv("DEPLOYMENT_ENV", getenv("ENVIRONMENT", "development"))),
		HTTPAddr:          getenv("HTTP_ADDR", ":4242"),
		SiteURL:           strings.TrimRight(getenv("SITE_URL", getenv("DOMAIN", "http://localhost:4242")), "/"),
		StaticDir:         getenv("STATIC_DIR", "./public"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "streamgate"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		RedisURL:          strings.TrimSpace(getenv("REDIS_URL", "")),
		Observability: loadObservability(),
		Jobs: JobsConfig{
			Mode:      normalizeJobMode(getenv("JOB_MODE", JobModeQueue)),
			Workers:   getenvInt("JOB_WORKERS", 2),
			ReplicaID: strings.TrimSpace(getenv("JOB_REPLICA_ID", hostname())),
		},
		Stripe: StripeConfig{
			SecretKey:         strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			PublishableKey:    strings.TrimSpace(getenv("STRIPE_PUBLISHABLE_KEY", "")),
			WebhookSecret:     strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			APIVersion:        strings.TrimSpace(getenv("STRIPE_API_VERSION", "")),
			BaseURL:           getenv("STRIPE_BASE_URL", "https://api.stripe.com"),
			SubscriptionPrice: strings.TrimSpace(getenv("SUBSCRIPTION_PRICE_ID", "")),
			DonationProduct:   strings.TrimSpace(getenv("DONATION_PRODUCT_ID", "")),
		},
		Linode: LinodeConfig{
			Token:        strings.TrimSpace(getenv("LINODE_TOKEN", "")),
			BaseURL:      getenv("LINODE_BASE_URL", ""),
			InstanceType: getenv("LINODE_TYPE", "g6-standard-1"),
			ImageLabel:   getenv("LINODE_IMAGE_NAME", ""),
			WaitForBoot:  getenvBool("LINODE_WAIT_FOR_BOOT", true),
			PollInterval: getenvDuration("LINODE_POLL_INTERVAL", 5*time.Second),
		},
		DNS: DNSConfig{
			RootDomain: strings.ToLower(strings.TrimSpace(getenv("CLOUDFLARE_DOMAIN", ""))),
			ReadToken:  strings.TrimSpace(getenv("CLOUDFLARE_READ_KEY", "")),
			WriteToken: strings.TrimSpace(getenv("CLOUDFLARE_WRITE_KEY", "")),
			BaseURL:    getenv("CLOUDFLARE_BASE_URL", "https://api.cloudflare.com/client/v4"),
		},
		Email: EmailConfig{
			Provider:       strings.ToLower(getenv("EMAIL_PROVIDER", "sendgrid")),
			From:           getenv("EMAIL_FROM", "support@enterprisesworldwide.com"),
			SendGridAPIKey: strings.TrimSpace(getenv("SENDGRID_API_KEY", "")),
			SendGridURL:    getenv("SENDGRID_BASE_URL", "https://api.sendgrid.com"),
			SMTPHost:       getenv("SMTP_HOST", "localhost"),
			SMTPPort:       getenvInt("SMTP_PORT", 587),
			SMTPUsername:   getenv("SMTP_USERNAME", ""),
			SMTPPassword:   getenv("SMTP_PASSWORD", ""),
		},
		Stream: StreamConfig{
			WebhookTimeout: getenvDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		},
		RateLimit: RateLimitConfig{
			StreamKeyRate:  getenvFloat("STREAM_KEY_RATE", 1),
			StreamKeyBurst: getenvInt("STREAM_KEY_BURST", 10),
		},
		MetricsPush: MetricsPushConfig{
			Exporter:  strings.ToLower(strings.TrimSpace(getenv("METRICS_PUSH_EXPORTER", ""))),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_TOKEN", "")),
			Interval:  getenvDuration("METRICS_PUSH_INTERVAL", time.Minute),
		},
	}

	return cfg
}

func loadObservability() ObservabilityConfig {
	protocol := getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	if traces := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}
	return ObservabilityConfig{
		LogLevel:           strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:          strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		LogSampling:        getenvBool("LOG_SAMPLING", true),
		SlowQueryThreshold: getenvDuration("DB_SLOW_QUERY_THRESHOLD", 200*time.Millisecond),
		OtelEnabled:        getenvBool("OTEL_ENABLED", true),
		OtelEndpoint:       strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317"))),
		OtelProtocol:       strings.ToLower(strings.TrimSpace(protocol)),
		OtelSamplingRatio:  getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
	}
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return ""
	}
	return name
}

func normalizeJobMode(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case JobModeInline:
		return JobModeInline
	default:
		return JobModeQueue
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
