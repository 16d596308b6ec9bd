package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Gateway drivers.
const (
	DriverStripe = "stripe"
	DriverMemory = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (PAY_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (PAY_DATABASE_URL or DATABASE_URL); empty keeps all data in memory" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (PAY_API_KEY_PEPPER)" flag:"api-key-pepper"`
	ClientURL    string `default:"http://localhost:5173" usage:"Storefront URL the payment page redirects back to" flag:"client-url"`
	SeedAPIKey   string `usage:"API key registered at startup when running with in-memory storage (PAY_SEED_API_KEY)" flag:"seed-api-key"`
	Gateway      GatewayConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// GatewayConfig selects and configures the payment gateway.
type GatewayConfig struct {
	Driver          string        `default:"stripe" usage:"Payment gateway driver: stripe or memory"`
	SecretKey       string        `usage:"Gateway secret API key (PAY_GATEWAY_SECRET_KEY)" flag:"gateway-secret-key"`
	WebhookSecret   string        `usage:"Webhook signing secret (PAY_GATEWAY_WEBHOOK_SECRET)" flag:"gateway-webhook-secret"`
	BaseURL         string        `usage:"Gateway API base URL override; for the memory driver, the public URL of this server" flag:"gateway-base-url"`
	Currency        string        `default:"usd" usage:"ISO currency of all prices"`
	Timeout         time.Duration `default:"10s" usage:"Timeout of a single gateway call"`
	BreakerFailures uint32        `default:"5" usage:"Consecutive gateway failures that open the circuit breaker"`
	BreakerCooldown time.Duration `default:"30s" usage:"Time the breaker stays open before probing again"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// SuccessURL is where the payment page sends the buyer after paying. The
// gateway substitutes the session id placeholder.
func (c *Config) SuccessURL() string {
	return strings.TrimSuffix(c.ClientURL, "/") + "/purchase-success?session_id={CHECKOUT_SESSION_ID}"
}

// CancelURL is where the payment page sends the buyer after canceling.
func (c *Config) CancelURL() string {
	return strings.TrimSuffix(c.ClientURL, "/") + "/purchase-cancel"
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "PAY",
		Files:     []string{"config.yaml", "/etc/checkout/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Gateway.Driver {
	case DriverStripe:
		if c.Gateway.SecretKey == "" {
			return errors.New("gateway secret key is required: set PAY_GATEWAY_SECRET_KEY or STRIPE_SECRET_KEY")
		}
	case DriverMemory:
	default:
		return errors.Errorf("unknown gateway driver %q", c.Gateway.Driver)
	}
	if c.Gateway.Timeout <= 0 {
		return errors.New("gateway timeout must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's PAY_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
	if c.Gateway.SecretKey == "" {
		c.Gateway.SecretKey = os.Getenv("STRIPE_SECRET_KEY")
	}
	if c.Gateway.WebhookSecret == "" {
		c.Gateway.WebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
	}
}
