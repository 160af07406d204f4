package webauto

import (
	"time"

	"github.com/dmitrijs2005/tradegate/internal/client/extract"
)

// Settings tunes the controller. Zero values are replaced by defaults.
type Settings struct {
	StartURL        string
	ClickLabel      string
	SuccessPatterns []string
	Keys            extract.Keys

	LoadTimeout        time.Duration
	GraceDelay         time.Duration
	InteractionTimeout time.Duration
	ClickRetryInterval time.Duration
	PollInterval       time.Duration
	MaxPollAttempts    int
	SettleDelay        time.Duration
	EvalTimeout        time.Duration
}

var DefaultSuccessPatterns = []string{"/registration/success", "/welcome", "/dashboard", "/account"}

func DefaultSettings() Settings {
	return Settings{
		ClickLabel:         "register",
		SuccessPatterns:    DefaultSuccessPatterns,
		Keys:               extract.DefaultKeys,
		LoadTimeout:        30 * time.Second,
		GraceDelay:         12 * time.Second,
		InteractionTimeout: 60 * time.Second,
		ClickRetryInterval: 2 * time.Second,
		PollInterval:       time.Second,
		MaxPollAttempts:    30,
		SettleDelay:        800 * time.Millisecond,
		EvalTimeout:        10 * time.Second,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.ClickLabel == "" {
		s.ClickLabel = d.ClickLabel
	}
	if len(s.SuccessPatterns) == 0 {
		s.SuccessPatterns = d.SuccessPatterns
	}
	if len(s.Keys.Token) == 0 && len(s.Keys.Device) == 0 && len(s.Keys.Email) == 0 {
		s.Keys = d.Keys
	}
	if s.LoadTimeout <= 0 {
		s.LoadTimeout = d.LoadTimeout
	}
	if s.GraceDelay <= 0 {
		s.GraceDelay = d.GraceDelay
	}
	if s.InteractionTimeout <= 0 {
		s.InteractionTimeout = d.InteractionTimeout
	}
	if s.ClickRetryInterval <= 0 {
		s.ClickRetryInterval = d.ClickRetryInterval
	}
	if s.PollInterval <= 0 {
		s.PollInterval = d.PollInterval
	}
	if s.MaxPollAttempts <= 0 {
		s.MaxPollAttempts = d.MaxPollAttempts
	}
	if s.SettleDelay <= 0 {
		s.SettleDelay = d.SettleDelay
	}
	if s.EvalTimeout <= 0 {
		s.EvalTimeout = d.EvalTimeout
	}
	return s
}
