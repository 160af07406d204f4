package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tradegate/internal/client/extract"
	"github.com/dmitrijs2005/tradegate/internal/client/webauto"
	"github.com/dmitrijs2005/tradegate/internal/docstore/backend"
)

// EnvConfigPath names the environment variable consulted for the JSON config
// file when neither -c nor -config is given.
const EnvConfigPath = "TRADEGATE_CONFIG"

// Config holds runtime settings for the TradeGate client.
//
// Units: every duration is a time.Duration; MaxPollAttempts is a count.
type Config struct {
	// registration page automation
	RegistrationURL    string
	ClickLabel         string
	SuccessPatterns    []string
	LoadTimeout        time.Duration
	GraceDelay         time.Duration
	InteractionTimeout time.Duration
	ClickRetryInterval time.Duration
	PollInterval       time.Duration
	MaxPollAttempts    int
	SettleDelay        time.Duration
	EvalTimeout        time.Duration

	Headless          bool
	BrowserBin        string
	BrowserControlURL string

	// allow-list store
	StoreBackend  string
	MongoURI      string
	MongoDatabase string
	PostgresDSN   string
	WatchInterval time.Duration
	Collection    string

	// local session
	SessionDBPath     string
	SessionPassphrase string

	// upstream API and device metadata
	APIBaseURL  string
	HTTPTimeout time.Duration
	DeviceType  string
	UserAgent   string
	Currency    string
	CurrencyISO string

	LogLevel  string
	LogFormat string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	d := webauto.DefaultSettings()

	c.RegistrationURL = "http://127.0.0.1:8080/register"
	c.ClickLabel = d.ClickLabel
	c.SuccessPatterns = append([]string(nil), d.SuccessPatterns...)
	c.LoadTimeout = d.LoadTimeout
	c.GraceDelay = d.GraceDelay
	c.InteractionTimeout = d.InteractionTimeout
	c.ClickRetryInterval = d.ClickRetryInterval
	c.PollInterval = d.PollInterval
	c.MaxPollAttempts = d.MaxPollAttempts
	c.SettleDelay = d.SettleDelay
	c.EvalTimeout = d.EvalTimeout

	c.Headless = false

	c.StoreBackend = backend.Memory
	c.MongoDatabase = "tradegate"
	c.WatchInterval = 2 * time.Second
	c.Collection = "whitelist"

	c.SessionDBPath = "tradegate.db"

	c.APIBaseURL = "http://127.0.0.1:8080"
	c.HTTPTimeout = 15 * time.Second
	c.DeviceType = "desktop"
	c.UserAgent = "TradeGate/1.0"
	c.Currency = "USD"
	c.CurrencyISO = "840"

	c.LogLevel = "info"
	c.LogFormat = "text"
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	if c.RegistrationURL == "" {
		errs = append(errs, errors.New("registration url is required"))
	}
	if c.APIBaseURL == "" {
		errs = append(errs, errors.New("api base url is required"))
	}
	if !backend.Valid(c.StoreBackend) {
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.StoreBackend))
	}
	if c.StoreBackend == backend.Mongo && c.MongoURI == "" {
		errs = append(errs, errors.New("mongo backend needs a mongo uri"))
	}
	if c.StoreBackend == backend.Postgres && c.PostgresDSN == "" {
		errs = append(errs, errors.New("postgres backend needs a dsn"))
	}
	if c.MaxPollAttempts < 0 {
		errs = append(errs, errors.New("max poll attempts must not be negative"))
	}
	return errors.Join(errs...)
}

// Automation returns the controller settings described by c.
func (c *Config) Automation() webauto.Settings {
	return webauto.Settings{
		StartURL:           c.RegistrationURL,
		ClickLabel:         c.ClickLabel,
		SuccessPatterns:    c.SuccessPatterns,
		Keys:               extract.DefaultKeys,
		LoadTimeout:        c.LoadTimeout,
		GraceDelay:         c.GraceDelay,
		InteractionTimeout: c.InteractionTimeout,
		ClickRetryInterval: c.ClickRetryInterval,
		PollInterval:       c.PollInterval,
		MaxPollAttempts:    c.MaxPollAttempts,
		SettleDelay:        c.SettleDelay,
		EvalTimeout:        c.EvalTimeout,
	}
}

// Store returns the allow-list backend settings described by c.
func (c *Config) Store() backend.Config {
	return backend.Config{
		Kind:          c.StoreBackend,
		MongoURI:      c.MongoURI,
		MongoDatabase: c.MongoDatabase,
		PostgresDSN:   c.PostgresDSN,
		PollInterval:  c.WatchInterval,
	}
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
