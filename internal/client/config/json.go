package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/tradegate/internal/flagx"
	"github.com/dmitrijs2005/tradegate/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "800ms" or as integer nanoseconds.
type JsonConfig struct {
	RegistrationURL    string         `json:"registration_url"`
	ClickLabel         string         `json:"click_label"`
	SuccessPatterns    []string       `json:"success_patterns"`
	LoadTimeout        timex.Duration `json:"load_timeout"`
	GraceDelay         timex.Duration `json:"grace_delay"`
	InteractionTimeout timex.Duration `json:"interaction_timeout"`
	ClickRetryInterval timex.Duration `json:"click_retry_interval"`
	PollInterval       timex.Duration `json:"poll_interval"`
	MaxPollAttempts    int            `json:"max_poll_attempts"`
	SettleDelay        timex.Duration `json:"settle_delay"`
	EvalTimeout        timex.Duration `json:"eval_timeout"`

	Headless          *bool  `json:"headless"`
	BrowserBin        string `json:"browser_bin"`
	BrowserControlURL string `json:"browser_control_url"`

	StoreBackend  string         `json:"store_backend"`
	MongoURI      string         `json:"mongo_uri"`
	MongoDatabase string         `json:"mongo_database"`
	PostgresDSN   string         `json:"postgres_dsn"`
	WatchInterval timex.Duration `json:"watch_interval"`
	Collection    string         `json:"collection"`

	SessionDBPath     string `json:"session_db_path"`
	SessionPassphrase string `json:"session_passphrase"`

	APIBaseURL  string         `json:"api_base_url"`
	HTTPTimeout timex.Duration `json:"http_timeout"`
	DeviceType  string         `json:"device_type"`
	UserAgent   string         `json:"user_agent"`
	Currency    string         `json:"currency"`
	CurrencyISO string         `json:"currency_iso"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// The file is named by -c/-config or, failing that, by TRADEGATE_CONFIG.
// Only keys present with a non-zero value override cfg. Panics on read or
// unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigPath(EnvConfigPath)
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	jc.apply(cfg)
}

func (jc *JsonConfig) apply(cfg *Config) {
	setString(&cfg.RegistrationURL, jc.RegistrationURL)
	setString(&cfg.ClickLabel, jc.ClickLabel)
	if len(jc.SuccessPatterns) > 0 {
		cfg.SuccessPatterns = jc.SuccessPatterns
	}
	setDuration(&cfg.LoadTimeout, jc.LoadTimeout)
	setDuration(&cfg.GraceDelay, jc.GraceDelay)
	setDuration(&cfg.InteractionTimeout, jc.InteractionTimeout)
	setDuration(&cfg.ClickRetryInterval, jc.ClickRetryInterval)
	setDuration(&cfg.PollInterval, jc.PollInterval)
	if jc.MaxPollAttempts != 0 {
		cfg.MaxPollAttempts = jc.MaxPollAttempts
	}
	setDuration(&cfg.SettleDelay, jc.SettleDelay)
	setDuration(&cfg.EvalTimeout, jc.EvalTimeout)

	if jc.Headless != nil {
		cfg.Headless = *jc.Headless
	}
	setString(&cfg.BrowserBin, jc.BrowserBin)
	setString(&cfg.BrowserControlURL, jc.BrowserControlURL)

	setString(&cfg.StoreBackend, jc.StoreBackend)
	setString(&cfg.MongoURI, jc.MongoURI)
	setString(&cfg.MongoDatabase, jc.MongoDatabase)
	setString(&cfg.PostgresDSN, jc.PostgresDSN)
	setDuration(&cfg.WatchInterval, jc.WatchInterval)
	setString(&cfg.Collection, jc.Collection)

	setString(&cfg.SessionDBPath, jc.SessionDBPath)
	setString(&cfg.SessionPassphrase, jc.SessionPassphrase)

	setString(&cfg.APIBaseURL, jc.APIBaseURL)
	setDuration(&cfg.HTTPTimeout, jc.HTTPTimeout)
	setString(&cfg.DeviceType, jc.DeviceType)
	setString(&cfg.UserAgent, jc.UserAgent)
	setString(&cfg.Currency, jc.Currency)
	setString(&cfg.CurrencyISO, jc.CurrencyISO)

	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFormat, jc.LogFormat)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
