package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/arnavshah/shift-offer-api/pkg/models"
	"github.com/arnavshah/shift-offer-api/pkg/policy"
)

// Config holds everything the service reads at startup. Secrets come from
// the environment; tunables may also come from an optional YAML file whose
// path is given in OFFER_CONFIG.
type Config struct {
	Port    string
	GinMode string

	ResponseWindow time.Duration `validate:"required,min=1m"`
	SweepInterval  time.Duration `validate:"required,min=1s"`

	RetryBase        time.Duration `validate:"required,min=1s"`
	RetryFactor      float64       `validate:"required,min=1"`
	RetryMaxAttempts int           `validate:"required,min=1"`

	Workers      int           `validate:"required,min=1"`
	PollInterval time.Duration `validate:"required,min=100ms"`

	// Channels in priority order.
	Channels   []models.Channel `validate:"required,min=1,dive,oneof=push email sms"`
	Supervisor string
	WebhookURL string
	// TemplatesPath points at an optional YAML template override file.
	TemplatesPath string

	Weights policy.Weights

	// DemoMode serves from the in-memory store with seeded data.
	DemoMode bool

	JWTSecret       string
	APIMasterSecret string
	TokenTTL        time.Duration `validate:"required,min=1m"`
}

var validate = validator.New()

// Default returns the product defaults: 15 minute response window, 30 second
// sweep, 30s/x2/10 retry schedule.
func Default() *Config {
	return &Config{
		Port:             "8000",
		ResponseWindow:   15 * time.Minute,
		SweepInterval:    30 * time.Second,
		RetryBase:        30 * time.Second,
		RetryFactor:      2,
		RetryMaxAttempts: 10,
		Workers:          4,
		PollInterval:     time.Second,
		Channels:         []models.Channel{models.ChannelPush, models.ChannelEmail, models.ChannelSMS},
		Weights:          policy.DefaultWeights(),
		TokenTTL:         24 * time.Hour,
	}
}

// Load builds the config from defaults, an optional YAML file, then the
// environment, and validates the result.
func Load() (*Config, error) {
	// Load .env if it exists. Try root and parent directories for
	// flexibility when run from cmd/.
	for _, p := range []string{".env", "../.env", "../../.env"} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			break
		}
	}

	cfg := Default()
	if path := os.Getenv("OFFER_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.loadEnv()

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// fileConfig mirrors the YAML layout. Durations are strings there
// ("15m", "30s") and parsed into the Config fields.
type fileConfig struct {
	Port             string           `yaml:"port"`
	GinMode          string           `yaml:"ginMode"`
	ResponseWindow   string           `yaml:"responseWindow"`
	SweepInterval    string           `yaml:"sweepInterval"`
	RetryBase        string           `yaml:"retryBase"`
	RetryFactor      *float64         `yaml:"retryFactor"`
	RetryMaxAttempts *int             `yaml:"retryMaxAttempts"`
	Workers          *int             `yaml:"workers"`
	PollInterval     string           `yaml:"pollInterval"`
	Channels         []models.Channel `yaml:"channels"`
	Supervisor       string           `yaml:"supervisor"`
	WebhookURL       string           `yaml:"webhookURL"`
	TemplatesPath    string           `yaml:"templatesPath"`
	Weights          *policy.Weights  `yaml:"weights"`
	DemoMode         *bool            `yaml:"demoMode"`
	TokenTTL         string           `yaml:"tokenTTL"`
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if fc.Port != "" {
		c.Port = fc.Port
	}
	if fc.GinMode != "" {
		c.GinMode = fc.GinMode
	}
	for _, d := range []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{fc.ResponseWindow, "responseWindow", &c.ResponseWindow},
		{fc.SweepInterval, "sweepInterval", &c.SweepInterval},
		{fc.RetryBase, "retryBase", &c.RetryBase},
		{fc.PollInterval, "pollInterval", &c.PollInterval},
		{fc.TokenTTL, "tokenTTL", &c.TokenTTL},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s in config file: %w", d.name, err)
		}
		*d.dst = parsed
	}
	if fc.RetryFactor != nil {
		c.RetryFactor = *fc.RetryFactor
	}
	if fc.RetryMaxAttempts != nil {
		c.RetryMaxAttempts = *fc.RetryMaxAttempts
	}
	if fc.Workers != nil {
		c.Workers = *fc.Workers
	}
	if len(fc.Channels) > 0 {
		c.Channels = fc.Channels
	}
	if fc.Supervisor != "" {
		c.Supervisor = fc.Supervisor
	}
	if fc.WebhookURL != "" {
		c.WebhookURL = fc.WebhookURL
	}
	if fc.TemplatesPath != "" {
		c.TemplatesPath = fc.TemplatesPath
	}
	if fc.Weights != nil {
		c.Weights = *fc.Weights
	}
	if fc.DemoMode != nil {
		c.DemoMode = *fc.DemoMode
	}
	return nil
}

func (c *Config) loadEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("GIN_MODE"); v != "" {
		c.GinMode = v
	}
	if v, ok := envDuration("RESPONSE_WINDOW"); ok {
		c.ResponseWindow = v
	}
	if v, ok := envDuration("SWEEP_INTERVAL"); ok {
		c.SweepInterval = v
	}
	if v, ok := envDuration("RETRY_BASE"); ok {
		c.RetryBase = v
	}
	if v := os.Getenv("RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RetryMaxAttempts = n
		}
	}
	if v := os.Getenv("NOTIFY_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers = n
		}
	}
	if v := os.Getenv("SUPERVISOR_CONTACT"); v != "" {
		c.Supervisor = v
	}
	if v := os.Getenv("PUSH_WEBHOOK_URL"); v != "" {
		c.WebhookURL = v
	}
	if v := os.Getenv("TEMPLATES_PATH"); v != "" {
		c.TemplatesPath = v
	}
	if v := os.Getenv("DEMO_MODE"); v != "" {
		c.DemoMode = v == "1" || v == "true"
	}
	c.JWTSecret = os.Getenv("JWT_SECRET")
	c.APIMasterSecret = os.Getenv("API_MASTER_SECRET")
}

func envDuration(name string) (time.Duration, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}
