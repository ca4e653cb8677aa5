package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/meridianlabs/loyalty-engine/internal/loyalty"
)

// Config holds the complete service configuration, loadable from environment
// variables (LOYALTY_ prefix), flags, or YAML config files.
type Config struct {
	Addr      string `default:"0.0.0.0:8080" usage:"notification server listen address"`
	Platform  PlatformConfig
	Keys      KeysConfig
	Kafka     KafkaConfig
	Dedup     DedupConfig
	RateLimit RateLimitConfig
	Graceful  GracefulConfig

	// WriteAttempts bounds the optimistic-concurrency retry loop on the
	// customer balance write.
	WriteAttempts int `default:"5" usage:"Max balance write attempts per event" flag:"write-attempts"`
}

// PlatformConfig points the engine at one commerce platform project.
type PlatformConfig struct {
	APIURL       string        `usage:"Platform API base URL" flag:"api-url"`
	AuthURL      string        `usage:"Platform OAuth base URL" flag:"auth-url"`
	ProjectKey   string        `usage:"Platform project key" flag:"project-key"`
	ClientID     string        `usage:"OAuth client id" flag:"client-id"`
	ClientSecret string        `usage:"OAuth client secret" flag:"client-secret"`
	Scopes       []string      `usage:"OAuth scopes"`
	Timeout      time.Duration `default:"10s" usage:"Per-request timeout against the platform"`
}

// KeysConfig overrides the platform-side identifiers; zero values fall back
// to loyalty.DefaultKeys.
type KeysConfig struct {
	RateContainer     string `usage:"Custom object container of the conversion table" flag:"rate-container"`
	RateKey           string `usage:"Custom object key of the conversion table" flag:"rate-key"`
	CustomerTypeKey   string `usage:"Customer custom type key" flag:"customer-type-key"`
	BalanceField      string `usage:"Customer custom field holding the balance" flag:"balance-field"`
	CancelledStateKey string `usage:"Order state key treated as cancellation" flag:"cancelled-state-key"`
}

// KafkaConfig enables the broker transport when brokers are set.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka brokers (empty disables the consumer)"`
	Topic   string   `default:"order-events" usage:"Topic carrying order notifications"`
	GroupID string   `default:"loyalty-engine" usage:"Consumer group id" flag:"group-id"`
}

// DedupConfig controls in-memory duplicate suppression.
type DedupConfig struct {
	Enabled    bool `default:"true" usage:"Suppress duplicate deliveries within this process"`
	MaxEntries int  `default:"65536" usage:"Event keys remembered per generation" flag:"max-entries"`
}

// RateLimitConfig controls the per-client sliding window rate limiter on the
// notification endpoint.
type RateLimitConfig struct {
	Max    int           `default:"300" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies hosting-provider defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "LOYALTY",
		Files:     []string{"config.yaml", "/etc/loyalty-engine/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyHostingDefaults()

	if cfg.Platform.APIURL == "" || cfg.Platform.AuthURL == "" {
		return nil, errors.New("platform URLs are required: set LOYALTY_PLATFORM_API_URL and LOYALTY_PLATFORM_AUTH_URL")
	}
	if cfg.Platform.ProjectKey == "" {
		return nil, errors.New("platform project key is required: set LOYALTY_PLATFORM_PROJECT_KEY")
	}

	return &cfg, nil
}

// applyHostingDefaults maps hosting-provider environment variables that use
// standard names like PORT onto the LOYALTY_-prefixed configuration.
func (c *Config) applyHostingDefaults() {
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

// LoyaltyKeys merges the configured overrides onto the default identifiers.
func (c *Config) LoyaltyKeys() loyalty.Keys {
	keys := loyalty.DefaultKeys()
	if v := c.Keys.RateContainer; v != "" {
		keys.RateContainer = v
	}
	if v := c.Keys.RateKey; v != "" {
		keys.RateKey = v
	}
	if v := c.Keys.CustomerTypeKey; v != "" {
		keys.CustomerTypeKey = v
	}
	if v := c.Keys.BalanceField; v != "" {
		keys.BalanceField = v
	}
	if v := c.Keys.CancelledStateKey; v != "" {
		keys.CancelledStateKey = v
	}
	return keys
}
