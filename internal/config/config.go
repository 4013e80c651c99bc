// Package config defines the global configuration structure for the
// TeamNetwork platform. Configuration is loaded once at process
// initialization and is immutable thereafter. It follows 12-Factor App
// principles by strictly separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format causes the application
// to fail immediately on startup.
package config

import (
	"time"

	"teamnetwork/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret
// type used throughout configuration to prevent accidental logging of
// sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the TeamNetwork
// platform. It is populated once during process initialization and
// never modified. Sub-components receive only the specific config
// subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"teamnetwork-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	// Domain Configurations
	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Billing       BillingConfig
	Email         EmailConfig
	Auth          AuthConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public base URL for redirects and emails (no trailing slash),
	// e.g. https://www.myteamnetwork.com
	AppBaseURL     string        `envconfig:"APP_BASE_URL" validate:"required,url"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	NotificationQueue string `envconfig:"SQS_NOTIFICATIONS" validate:"required,url"`
	DlqURL            string `envconfig:"SQS_DLQ" validate:"required,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BillingConfig holds Stripe credentials, dashboard price IDs, and the
// self-serve price book.
type BillingConfig struct {
	StripeSecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`

	// Stripe Price IDs, one per pricing axis and interval.
	SeatPriceMonth   string `envconfig:"STRIPE_PRICE_SEAT_MONTH" validate:"required"`
	SeatPriceYear    string `envconfig:"STRIPE_PRICE_SEAT_YEAR" validate:"required"`
	BucketPriceMonth string `envconfig:"STRIPE_PRICE_BUCKET_MONTH" validate:"required"`
	BucketPriceYear  string `envconfig:"STRIPE_PRICE_BUCKET_YEAR" validate:"required"`

	// Price book. Cent amounts here must match the Stripe dashboard
	// prices above; the calculator only renders quotes, Stripe bills.
	FreeSubOrgs            int   `envconfig:"BILLING_FREE_SUB_ORGS" default:"3"`
	SeatCentsMonth         int64 `envconfig:"BILLING_SEAT_CENTS_MONTH" default:"500"`
	SeatCentsYear          int64 `envconfig:"BILLING_SEAT_CENTS_YEAR" default:"5000"`
	BucketCentsMonth       int64 `envconfig:"BILLING_BUCKET_CENTS_MONTH" default:"2500"`
	BucketCentsYear        int64 `envconfig:"BILLING_BUCKET_CENTS_YEAR" default:"25000"`
	SalesLedBucketQuantity int   `envconfig:"BILLING_SALES_LED_BUCKET" default:"8"`
}

// EmailConfig holds email delivery provider credentials.
type EmailConfig struct {
	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY" validate:"required"`
	FromAddress    string       `envconfig:"EMAIL_FROM_ADDRESS" default:"no-reply@myteamnetwork.com"`
	FromName       string       `envconfig:"EMAIL_FROM_NAME" default:"TeamNetwork"`
}

// AuthConfig holds session management configuration.
type AuthConfig struct {
	SessionKey SecretString  `envconfig:"SESSION_KEY" validate:"required,min=32"`
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"720h"`
	BcryptCost int           `envconfig:"BCRYPT_COST" default:"12"`
}

// SecurityConfig holds CORS and canonical-host settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig holds telemetry and monitoring settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"TeamNetwork"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable
	// values into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
