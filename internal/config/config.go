package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env      string
	HTTPPort string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTIssuer       string
	JWTAudience     string
	JWTAccessSecret string
	JWTAccessTTL    time.Duration

	TokenPepper string

	RefreshTokenTTL time.Duration

	PasswordResetTTL     time.Duration
	EmailVerificationTTL time.Duration
	EmailChangeTTL       time.Duration
	MagicLinkTTL         time.Duration

	LockoutThreshold int
	LockoutBaseLock  time.Duration
	LockoutMaxLock   time.Duration

	MagicLinkMaxPerWindow int
	MagicLinkWindow       time.Duration

	SmsCodeTTL     time.Duration
	SmsMaxAttempts int

	RetentionWindow time.Duration

	LogLevel string

	OTELMetricsEnabled        bool
	OTELTracesEnabled         bool
	OTELLogsEnabled           bool
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELServiceName           string
	OTELEnvironment           string
	OTELMetricsExportInterval time.Duration
}

func Load(ctx context.Context) (*Config, error) {
	cfg := &Config{
		Env:                      getEnv("APP_ENV", "development"),
		HTTPPort:                 getEnv("HTTP_PORT", "8080"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		RedisAddr:                getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  getEnvInt("REDIS_DB", 0),
		JWTIssuer:                getEnv("JWT_ISSUER", "auth-core-service"),
		JWTAudience:              getEnv("JWT_AUDIENCE", "auth-core-service-api"),
		JWTAccessSecret:          os.Getenv("JWT_ACCESS_SECRET"),
		TokenPepper:              os.Getenv("TOKEN_PEPPER"),
		LockoutThreshold:         getEnvInt("LOCKOUT_THRESHOLD", 5),
		MagicLinkMaxPerWindow:    getEnvInt("MAGIC_LINK_MAX_PER_WINDOW", 3),
		SmsMaxAttempts:           getEnvInt("SMS_MAX_ATTEMPTS", 5),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		OTELMetricsEnabled:       getEnvBool("OTEL_METRICS_ENABLED", false),
		OTELTracesEnabled:        getEnvBool("OTEL_TRACES_ENABLED", false),
		OTELLogsEnabled:          getEnvBool("OTEL_LOGS_ENABLED", false),
		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "127.0.0.1:4317"),
		OTELExporterOTLPInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELServiceName:          getEnv("OTEL_SERVICE_NAME", "auth-core-service"),
		OTELEnvironment:          getEnv("OTEL_ENVIRONMENT", "development"),
	}

	durations := []struct {
		dst *time.Duration
		key string
		def string
	}{
		{&cfg.JWTAccessTTL, "JWT_ACCESS_TTL", "15m"},
		{&cfg.RefreshTokenTTL, "REFRESH_TOKEN_TTL", "168h"},
		{&cfg.PasswordResetTTL, "PASSWORD_RESET_TTL", "30m"},
		{&cfg.EmailVerificationTTL, "EMAIL_VERIFICATION_TTL", "24h"},
		{&cfg.EmailChangeTTL, "EMAIL_CHANGE_TTL", "1h"},
		{&cfg.MagicLinkTTL, "MAGIC_LINK_TTL", "10m"},
		{&cfg.LockoutBaseLock, "LOCKOUT_BASE_LOCK", "1m"},
		{&cfg.LockoutMaxLock, "LOCKOUT_MAX_LOCK", "1h"},
		{&cfg.MagicLinkWindow, "MAGIC_LINK_WINDOW", "1h"},
		{&cfg.SmsCodeTTL, "SMS_CODE_TTL", "5m"},
		{&cfg.RetentionWindow, "RETENTION_WINDOW", "2160h"},
		{&cfg.OTELMetricsExportInterval, "OTEL_METRICS_EXPORT_INTERVAL", "30s"},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnv(d.key, d.def))
		if err != nil {
			err = fmt.Errorf("parse %s: %w", d.key, err)
			recordConfigValidationEvent(ctx, cfg.Env, "failure", classifyConfigLoadError(err))
			return nil, err
		}
		*d.dst = v
	}

	if err := cfg.Validate(); err != nil {
		err = fmt.Errorf("validate config: %w", err)
		recordConfigValidationEvent(ctx, cfg.Env, "failure", classifyConfigLoadError(err))
		return nil, err
	}
	recordConfigValidationEvent(ctx, cfg.Env, "success", "none")
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if len(c.JWTAccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 chars")
	}
	if len(c.TokenPepper) < 16 {
		errs = append(errs, "TOKEN_PEPPER must be at least 16 chars")
	}
	if c.JWTAccessTTL <= 0 || c.JWTAccessTTL > time.Hour {
		errs = append(errs, "JWT_ACCESS_TTL must be between 1s and 1h")
	}
	if c.RefreshTokenTTL <= 0 || c.RefreshTokenTTL > (30*24*time.Hour) {
		errs = append(errs, "REFRESH_TOKEN_TTL must be between 1s and 30d")
	}
	if c.PasswordResetTTL <= 0 || c.EmailVerificationTTL <= 0 || c.EmailChangeTTL <= 0 || c.MagicLinkTTL <= 0 {
		errs = append(errs, "one-time token TTLs must be > 0")
	}
	if c.LockoutThreshold <= 0 {
		errs = append(errs, "LOCKOUT_THRESHOLD must be > 0")
	}
	if c.LockoutBaseLock <= 0 || c.LockoutMaxLock < c.LockoutBaseLock {
		errs = append(errs, "LOCKOUT_MAX_LOCK must be >= LOCKOUT_BASE_LOCK and both > 0")
	}
	if c.MagicLinkMaxPerWindow <= 0 || c.MagicLinkWindow <= 0 {
		errs = append(errs, "MAGIC_LINK_MAX_PER_WINDOW and MAGIC_LINK_WINDOW must be > 0")
	}
	if c.SmsCodeTTL <= 0 || c.SmsMaxAttempts <= 0 {
		errs = append(errs, "SMS_CODE_TTL and SMS_MAX_ATTEMPTS must be > 0")
	}
	if c.RetentionWindow <= 0 {
		errs = append(errs, "RETENTION_WINDOW must be > 0")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
