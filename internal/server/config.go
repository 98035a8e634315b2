package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// RateLimitConfig defines the parameters for per-connection frame rate limiting.
type RateLimitConfig struct {
	Burst          int           `mapstructure:"burst"`
	RefillInterval time.Duration `mapstructure:"refill_interval"`
}

// AuthConfig controls the account endpoints and the optional token check
// performed when a connection registers.
type AuthConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret" validate:"required_if=RequireToken true"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
	RequireToken bool          `mapstructure:"require_token"`
}

// Config holds the relay configuration.
type Config struct {
	Port            string          `mapstructure:"port" validate:"required"`
	AllowedOrigins  []string        `mapstructure:"allowed_origins"`
	MaxMessageSize  int64           `mapstructure:"max_message_size" validate:"gt=0"`
	SendBufferSize  int             `mapstructure:"send_buffer_size" validate:"gt=0"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
	DataDir         string          `mapstructure:"data_dir"`
	LogLevel        string          `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	LogPretty       bool            `mapstructure:"log_pretty"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	Auth            AuthConfig      `mapstructure:"auth"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
// An empty DataDir keeps the account store in memory.
func DefaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 4096,
		SendBufferSize: 256,
		RateLimit: RateLimitConfig{
			Burst:          10,
			RefillInterval: time.Second,
		},
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
	}
}

// sanitized replaces out-of-range values with their defaults.
func (c Config) sanitized() Config {
	def := DefaultConfig()

	if c.Port == "" {
		c.Port = def.Port
	}
	if !strings.Contains(c.Port, ":") {
		c.Port = ":" + c.Port
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = def.SendBufferSize
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = def.RateLimit.Burst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = def.Auth.TokenTTL
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	c.AllowedOrigins = parseOrigins(c.AllowedOrigins)
	return c
}

// Validate reports the first invalid field of an already sanitized config.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// SetDefaults registers every config key on v so that environment variables
// and config files can override them.
func SetDefaults(v *viper.Viper) {
	def := DefaultConfig()
	v.SetDefault("port", def.Port)
	v.SetDefault("allowed_origins", def.AllowedOrigins)
	v.SetDefault("max_message_size", def.MaxMessageSize)
	v.SetDefault("send_buffer_size", def.SendBufferSize)
	v.SetDefault("rate_limit.burst", def.RateLimit.Burst)
	v.SetDefault("rate_limit.refill_interval", def.RateLimit.RefillInterval)
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_pretty", def.LogPretty)
	v.SetDefault("shutdown_timeout", def.ShutdownTimeout)
	v.SetDefault("auth.jwt_secret", def.Auth.JWTSecret)
	v.SetDefault("auth.token_ttl", def.Auth.TokenTTL)
	v.SetDefault("auth.require_token", def.Auth.RequireToken)
}

// LoadConfig reads the configuration from v. Environment variables use the
// RELAYCHAT_ prefix with dots replaced by underscores, e.g.
// RELAYCHAT_RATE_LIMIT_BURST. The unprefixed names older deployments used
// (SERVER_PORT, ALLOWED_ORIGINS, MAX_MESSAGE_SIZE, RATE_LIMIT_BURST and
// RATE_LIMIT_REFILL_INTERVAL) are still honoured.
func LoadConfig(v *viper.Viper) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix("RELAYCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("port", "RELAYCHAT_PORT", "SERVER_PORT")
	_ = v.BindEnv("allowed_origins", "RELAYCHAT_ALLOWED_ORIGINS", "ALLOWED_ORIGINS")
	_ = v.BindEnv("max_message_size", "RELAYCHAT_MAX_MESSAGE_SIZE", "MAX_MESSAGE_SIZE")
	_ = v.BindEnv("rate_limit.burst", "RELAYCHAT_RATE_LIMIT_BURST", "RATE_LIMIT_BURST")
	_ = v.BindEnv("rate_limit.refill_interval", "RELAYCHAT_RATE_LIMIT_REFILL_INTERVAL", "RATE_LIMIT_REFILL_INTERVAL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode configuration: %w", err)
	}

	cfg = cfg.sanitized()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// parseOrigins flattens comma separated entries, which is how a list arrives
// from a single environment variable.
func parseOrigins(origins []string) []string {
	var out []string
	for _, entry := range origins {
		for _, part := range strings.Split(entry, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
