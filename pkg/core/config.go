package core

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Default endpoints.
const (
	DefaultBaseURL     = "https://api.kraken.com"
	DefaultWSAuthURL   = "wss://ws-auth.kraken.com/v2"
	DefaultWSPublicURL = "wss://ws.kraken.com/v2"
	DefaultUserAgent   = "kraken-go"
)

// Credentials holds API authentication credentials.
type Credentials struct {
	// APIKey is the public API key sent in the API-Key header.
	APIKey string `json:"api_key" mapstructure:"api_key" validate:"required"`
	// SecretKey is the base64 encoded private key used to sign requests.
	SecretKey string `json:"secret_key" mapstructure:"secret_key" validate:"required,base64"`
}

// Config contains all configuration options for a Kraken client.
type Config struct {
	BaseURL     string           `json:"base_url" validate:"required,url"`
	WSAuthURL   string           `json:"ws_auth_url" validate:"required,url"`
	WSPublicURL string           `json:"ws_public_url" validate:"required,url"`
	Tier        VerificationTier `json:"tier" validate:"min=0,max=1"`
	Credentials *Credentials     `json:"credentials,omitempty" validate:"omitempty"`

	// Timeout is the maximum duration for HTTP requests.
	Timeout   time.Duration `json:"timeout" validate:"min=1ms"`
	UserAgent string        `json:"user_agent"`

	CircuitBreakerEnabled          bool          `json:"circuit_breaker_enabled"`
	CircuitBreakerFailThreshold    int           `json:"circuit_breaker_fail_threshold"`
	CircuitBreakerSuccessThreshold int           `json:"circuit_breaker_success_threshold"`
	CircuitBreakerTimeout          time.Duration `json:"circuit_breaker_timeout"`

	LogLevel string `json:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns a Config for the production API with an
// Intermediate tier, a 10s timeout and a circuit breaker that opens after
// 5 failures and closes after 2 successes, retried after 30s.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     DefaultBaseURL,
		WSAuthURL:   DefaultWSAuthURL,
		WSPublicURL: DefaultWSPublicURL,
		Tier:        TierIntermediate,
		Timeout:     10 * time.Second,
		UserAgent:   DefaultUserAgent,

		CircuitBreakerEnabled:          true,
		CircuitBreakerFailThreshold:    5,
		CircuitBreakerSuccessThreshold: 2,
		CircuitBreakerTimeout:          30 * time.Second,

		LogLevel: "info",
	}
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.CircuitBreakerEnabled {
		if c.CircuitBreakerFailThreshold <= 0 {
			return errors.New("CircuitBreakerFailThreshold must be positive when enabled")
		}
		if c.CircuitBreakerSuccessThreshold <= 0 {
			return errors.New("CircuitBreakerSuccessThreshold must be positive when enabled")
		}
		if c.CircuitBreakerTimeout <= 0 {
			return errors.New("CircuitBreakerTimeout must be positive when enabled")
		}
	}
	return nil
}

// WithCredentials sets the API credentials and returns the config for chaining.
func (c *Config) WithCredentials(creds *Credentials) *Config {
	c.Credentials = creds
	return c
}

// WithTier sets the verification tier and returns the config for chaining.
func (c *Config) WithTier(tier VerificationTier) *Config {
	c.Tier = tier
	return c
}

// WithBaseURL sets the REST base URL and returns the config for chaining.
func (c *Config) WithBaseURL(url string) *Config {
	c.BaseURL = url
	return c
}

// WithTimeout sets the request timeout and returns the config for chaining.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithCircuitBreaker enables or disables the circuit breaker and returns the config for chaining.
func (c *Config) WithCircuitBreaker(enabled bool) *Config {
	c.CircuitBreakerEnabled = enabled
	return c
}

// fileConfig mirrors Config with the tier as text so viper can decode it.
type fileConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	WSAuthURL   string `mapstructure:"ws_auth_url"`
	WSPublicURL string `mapstructure:"ws_public_url"`
	Tier        string `mapstructure:"tier"`
	APIKey      string `mapstructure:"api_key"`
	APISecret   string `mapstructure:"api_secret"`

	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`

	CircuitBreaker struct {
		Enabled          bool          `mapstructure:"enabled"`
		FailThreshold    int           `mapstructure:"fail_threshold"`
		SuccessThreshold int           `mapstructure:"success_threshold"`
		Timeout          time.Duration `mapstructure:"timeout"`
	} `mapstructure:"circuit_breaker"`

	LogLevel string `mapstructure:"log_level"`
}

// LoadConfig reads a YAML, JSON or TOML file with KRAKEN_* environment
// overrides on top of DefaultConfig. An empty path loads defaults and
// environment only. The credentials are also read from KRAKEN_API_KEY and
// KRAKEN_API_SECRET.
func LoadConfig(path string) (*Config, error) {
	def := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix("KRAKEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("base_url", def.BaseURL)
	v.SetDefault("ws_auth_url", def.WSAuthURL)
	v.SetDefault("ws_public_url", def.WSPublicURL)
	v.SetDefault("tier", def.Tier.String())
	v.SetDefault("api_key", "")
	v.SetDefault("api_secret", "")
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("user_agent", def.UserAgent)
	v.SetDefault("circuit_breaker.enabled", def.CircuitBreakerEnabled)
	v.SetDefault("circuit_breaker.fail_threshold", def.CircuitBreakerFailThreshold)
	v.SetDefault("circuit_breaker.success_threshold", def.CircuitBreakerSuccessThreshold)
	v.SetDefault("circuit_breaker.timeout", def.CircuitBreakerTimeout)
	v.SetDefault("log_level", def.LogLevel)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	tier, err := ParseVerificationTier(fc.Tier)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := &Config{
		BaseURL:     fc.BaseURL,
		WSAuthURL:   fc.WSAuthURL,
		WSPublicURL: fc.WSPublicURL,
		Tier:        tier,
		Timeout:     fc.Timeout,
		UserAgent:   fc.UserAgent,

		CircuitBreakerEnabled:          fc.CircuitBreaker.Enabled,
		CircuitBreakerFailThreshold:    fc.CircuitBreaker.FailThreshold,
		CircuitBreakerSuccessThreshold: fc.CircuitBreaker.SuccessThreshold,
		CircuitBreakerTimeout:          fc.CircuitBreaker.Timeout,

		LogLevel: fc.LogLevel,
	}

	key, secret := fc.APIKey, fc.APISecret
	if env := os.Getenv("KRAKEN_API_KEY"); env != "" {
		key = env
	}
	if env := os.Getenv("KRAKEN_API_SECRET"); env != "" {
		secret = env
	}
	if key != "" || secret != "" {
		cfg.Credentials = &Credentials{APIKey: key, SecretKey: secret}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
