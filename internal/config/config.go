package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	PredictorURL     string        `mapstructure:"PREDICTOR_URL"`
	PredictorTimeout time.Duration `mapstructure:"PREDICTOR_TIMEOUT"`
	AssistantURL     string        `mapstructure:"ASSISTANT_URL"`

	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string   `mapstructure:"KAFKA_TOPIC"`

	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	RefreshInterval time.Duration `mapstructure:"REFRESH_INTERVAL"`
	DashboardWindow int           `mapstructure:"DASHBOARD_WINDOW"`
	AdminWindow     int           `mapstructure:"ADMIN_WINDOW"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("PREDICTOR_URL", "http://localhost:5000")
	v.SetDefault("PREDICTOR_TIMEOUT", "10s")
	v.SetDefault("KAFKA_TOPIC", "model-metrics")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REFRESH_INTERVAL", "5m")
	v.SetDefault("DASHBOARD_WINDOW", 200)
	v.SetDefault("ADMIN_WINDOW", 1000)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"REDIS_URL", "PREDICTOR_URL", "PREDICTOR_TIMEOUT", "ASSISTANT_URL",
		"KAFKA_BROKERS", "KAFKA_TOPIC",
		"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
		"CORS_ORIGINS", "REFRESH_INTERVAL", "DASHBOARD_WINDOW", "ADMIN_WINDOW",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	if cfg.KafkaBrokers == nil {
		if brokers := v.GetString("KAFKA_BROKERS"); brokers != "" {
			cfg.KafkaBrokers = strings.Split(brokers, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. Outside development
// real JWT verification must be configured: a JWKS endpoint or an explicit
// signing key. An issuer alone only constrains claims and cannot verify a
// signature.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthJWKSURL == "" && c.AuthSigningKey == "" {
		return fmt.Errorf(
			"AUTH_JWKS_URL or AUTH_SIGNING_KEY must be set when ENV=%q; "+
				"refusing to start without a token verification source", c.Env)
	}
	if c.DashboardWindow <= 0 {
		return fmt.Errorf("DASHBOARD_WINDOW must be positive, got %d", c.DashboardWindow)
	}
	if c.AdminWindow < c.DashboardWindow {
		return fmt.Errorf("ADMIN_WINDOW (%d) must be at least DASHBOARD_WINDOW (%d)",
			c.AdminWindow, c.DashboardWindow)
	}
	if c.RefreshInterval < time.Second {
		return fmt.Errorf("REFRESH_INTERVAL must be at least 1s, got %s", c.RefreshInterval)
	}
	return nil
}
