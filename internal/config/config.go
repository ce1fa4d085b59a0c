package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port       string `mapstructure:"PORT"`
	Env        string `mapstructure:"ENV"`
	AuthMode   string `mapstructure:"AUTH_MODE"`
	AuthIssuer string `mapstructure:"AUTH_ISSUER"`
	AuthSecret string `mapstructure:"AUTH_SECRET"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	RedisURL            string `mapstructure:"REDIS_URL"`
	IngressStream       string `mapstructure:"INGRESS_STREAM"`
	IngressGroup        string `mapstructure:"INGRESS_GROUP"`
	IngressConsumer     string `mapstructure:"INGRESS_CONSUMER"`
	IngressWorkers      int    `mapstructure:"INGRESS_WORKERS"`
	DispatchStream      string `mapstructure:"DISPATCH_STREAM"`
	CallbackStream      string `mapstructure:"CALLBACK_STREAM"`
	CallbackGroup       string `mapstructure:"CALLBACK_GROUP"`

	// Escalation policy. The SLA windows and the retry ceiling are deployment
	// policy, so they must come from configuration rather than code.
	EscalationSLACriticalMins int `mapstructure:"ESCALATION_SLA_CRITICAL_MINUTES"`
	EscalationSLAHighMins     int `mapstructure:"ESCALATION_SLA_HIGH_MINUTES"`
	EscalationMaxRetries      int `mapstructure:"ESCALATION_MAX_RETRIES"`
	EscalationSweepMins       int `mapstructure:"ESCALATION_SWEEP_MINUTES"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // auto-detect: "" -> inferred from ENV
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("INGRESS_STREAM", "renalert:ingress")
	v.SetDefault("INGRESS_GROUP", "risk-engine")
	v.SetDefault("INGRESS_CONSUMER", "worker")
	v.SetDefault("INGRESS_WORKERS", 4)
	v.SetDefault("DISPATCH_STREAM", "renalert:dispatch")
	v.SetDefault("CALLBACK_STREAM", "renalert:callbacks")
	v.SetDefault("CALLBACK_GROUP", "notification-engine")
	v.SetDefault("ESCALATION_SLA_CRITICAL_MINUTES", 15)
	v.SetDefault("ESCALATION_SLA_HIGH_MINUTES", 60)
	v.SetDefault("ESCALATION_MAX_RETRIES", 3)
	v.SetDefault("ESCALATION_SWEEP_MINUTES", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("AUTH_MODE")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_SECRET")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("INGRESS_STREAM")
	v.BindEnv("INGRESS_GROUP")
	v.BindEnv("INGRESS_CONSUMER")
	v.BindEnv("INGRESS_WORKERS")
	v.BindEnv("DISPATCH_STREAM")
	v.BindEnv("CALLBACK_STREAM")
	v.BindEnv("CALLBACK_GROUP")
	v.BindEnv("ESCALATION_SLA_CRITICAL_MINUTES")
	v.BindEnv("ESCALATION_SLA_HIGH_MINUTES")
	v.BindEnv("ESCALATION_MAX_RETRIES")
	v.BindEnv("ESCALATION_SWEEP_MINUTES")
	v.BindEnv("CORS_ORIGINS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active, all requests get admin access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production and configure AUTH_SECRET for production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is explicitly
// set, it is returned. Otherwise, the mode is inferred:
//   - ENV=development → "development" (no auth, all requests get admin)
//   - Otherwise       → "jwt" (HMAC-signed tokens via AUTH_SECRET)
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "jwt"
}

// Validate checks that the configuration is safe to run. The escalation
// policy is required whenever the server starts the sweeper, and auth must
// be configured outside development.
func (c *Config) Validate() error {
	mode := c.ResolvedAuthMode()
	if mode != "development" && mode != "jwt" {
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"jwt\", got %q", mode)
	}
	if mode == "jwt" && c.AuthSecret == "" {
		return fmt.Errorf(
			"AUTH_SECRET must be set when AUTH_MODE is \"jwt\" (current ENV=%q). "+
				"Refusing to start without authentication configuration", c.Env)
	}

	if c.EscalationSLACriticalMins <= 0 {
		return fmt.Errorf("ESCALATION_SLA_CRITICAL_MINUTES must be a positive number of minutes")
	}
	if c.EscalationSLAHighMins <= 0 {
		return fmt.Errorf("ESCALATION_SLA_HIGH_MINUTES must be a positive number of minutes")
	}
	if c.EscalationSLAHighMins < c.EscalationSLACriticalMins {
		return fmt.Errorf("ESCALATION_SLA_HIGH_MINUTES (%d) must not be shorter than ESCALATION_SLA_CRITICAL_MINUTES (%d)",
			c.EscalationSLAHighMins, c.EscalationSLACriticalMins)
	}
	if c.EscalationMaxRetries <= 0 {
		return fmt.Errorf("ESCALATION_MAX_RETRIES must be a positive integer")
	}
	if c.IngressWorkers <= 0 {
		return fmt.Errorf("INGRESS_WORKERS must be a positive integer")
	}

	return nil
}
