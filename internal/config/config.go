// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8085).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN; empty until DB is wired.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "rdx-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "rdx-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "720h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// VerificationCodeTTL is the email/phone verification code lifetime (e.g. "10m").
	VerificationCodeTTL string `mapstructure:"VERIFICATION_CODE_TTL"`
	// VerificationMaxAttempts is the number of verify attempts allowed per challenge before it is invalidated.
	VerificationMaxAttempts int `mapstructure:"VERIFICATION_MAX_ATTEMPTS"`
	// AuthCodeTTL is the authorization code lifetime (e.g. "60s").
	AuthCodeTTL string `mapstructure:"AUTH_CODE_TTL"`
	// OAuthClients is a comma-separated list of registered client IDs allowed on /auth/authorize.
	OAuthClients string `mapstructure:"OAUTH_CLIENTS"`

	// SMTPHost, SMTPPort, SMTPUser, SMTPPassword, SMTPFrom configure email delivery of verification codes.
	// When SMTPHost is empty, codes are logged instead of sent (dev only).
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUser     string `mapstructure:"SMTP_USER"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	// SMSAPIKey is the API key for the SMS gateway. Required for phone verification in production.
	SMSAPIKey string `mapstructure:"SMS_API_KEY"`
	// SMSSender is the optional sender ID for the SMS gateway.
	SMSSender string `mapstructure:"SMS_SENDER"`
	// SMSBaseURL is the SMS gateway API base URL.
	SMSBaseURL string `mapstructure:"SMS_BASE_URL"`

	// CodeReturnToClient when true enables dev code mode: no email/SMS dispatch, the code is stored
	// for GET /dev/verification/code. Must not be true when Env is production (error at startup).
	CodeReturnToClient bool `mapstructure:"CODE_RETURN_TO_CLIENT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// CORSOrigin restricts browser callers to the given origin. Empty allows any origin (dev).
	CORSOrigin string `mapstructure:"CORS_ALLOWED_ORIGIN"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint (e.g. http://localhost:4317). Empty disables telemetry export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP export even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8085")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ISSUER", "rdx-auth")
	v.SetDefault("JWT_AUDIENCE", "rdx-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "720h") // 30d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("VERIFICATION_CODE_TTL", "10m")
	v.SetDefault("VERIFICATION_MAX_ATTEMPTS", 5)
	v.SetDefault("AUTH_CODE_TTL", "60s")
	v.SetDefault("OAUTH_CLIENTS", "rdx-web")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMS_BASE_URL", "https://www.smslocal.com/dev/bulkV2")
	v.SetDefault("CODE_RETURN_TO_CLIENT", false)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("CORS_ALLOWED_ORIGIN", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.CodeReturnToClient && cfg.Env == "production" {
		return nil, errors.New("config: CODE_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.VerificationMaxAttempts <= 0 {
		return nil, errors.New("config: VERIFICATION_MAX_ATTEMPTS must be positive")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 720h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTRefreshTTL)
	if err != nil || d <= 0 {
		return 720 * time.Hour
	}
	return d
}

// VerificationTTL parses VerificationCodeTTL as a time.Duration. Returns 10m if unset or invalid.
func (c *Config) VerificationTTL() time.Duration {
	d, err := time.ParseDuration(c.VerificationCodeTTL)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// CodeTTL parses AuthCodeTTL as a time.Duration. Returns 60s if unset or invalid.
func (c *Config) CodeTTL() time.Duration {
	d, err := time.ParseDuration(c.AuthCodeTTL)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// OAuthClientList returns the registered OAuth client IDs from the comma-separated config.
func (c *Config) OAuthClientList() []string {
	if c == nil || c.OAuthClients == "" {
		return nil
	}
	parts := strings.Split(c.OAuthClients, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
