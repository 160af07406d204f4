// Package services contains application services for the TradeGate client.
// This file defines the gate service: it turns a finished web registration
// or a password login into an authorized session, and revokes that session
// when its allow-list record is deactivated.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tradegate/internal/allowlist"
	"github.com/dmitrijs2005/tradegate/internal/client/extract"
	"github.com/dmitrijs2005/tradegate/internal/client/session"
	"github.com/dmitrijs2005/tradegate/internal/client/upstream"
	"github.com/dmitrijs2005/tradegate/internal/client/webauto"
	"github.com/dmitrijs2005/tradegate/internal/common"
	"github.com/dmitrijs2005/tradegate/internal/logging"
)

var (
	// ErrFlowAbandoned means the registration page was not driven to success;
	// the user can retry or finish it by hand.
	ErrFlowAbandoned = errors.New("registration flow abandoned")
	// ErrRevoked is returned by WatchRevocation after it ended the session.
	ErrRevoked = errors.New("access revoked")
)

// Authorizer is the allow-list as seen by the client.
type Authorizer interface {
	Authorize(ctx context.Context, id allowlist.Identity) allowlist.Verdict
	AuthorizeExistingLogin(ctx context.Context, externalUserID string) allowlist.Verdict
	Watch(ctx context.Context, id string) (<-chan allowlist.RecordEvent, error)
}

// Upstream is the trading platform API.
type Upstream interface {
	Login(ctx context.Context, email, password string, dev upstream.Device) (upstream.LoginResult, error)
	Profile(ctx context.Context, token string) (upstream.Profile, error)
}

// Flow is a web registration run; *webauto.Controller implements it.
type Flow interface {
	Run(ctx context.Context) webauto.Result
	Proceed(ctx context.Context) (extract.Identity, error)
	UserAgent(ctx context.Context) string
}

// Device carries the installation metadata stored with every session.
type Device struct {
	ID          string
	Type        string
	Timezone    string
	UserAgent   string
	Currency    string
	CurrencyISO string
}

// Registration is the outcome of RunRegistration. Verdict is zero when the
// flow never reached authorization.
type Registration struct {
	Flow    webauto.Result
	Verdict allowlist.Verdict
	Session session.AuthorizedSession
}

// GateService defines the client's access operations.
//
// Contract:
//   - RunRegistration: drive the web flow, authorize the extracted identity
//     and start a session on success.
//   - Login: password login for users registered earlier.
//   - Logout: end the session.
//   - Current: the active session, if any.
//   - SetCurrency: supersede the session with a new display currency.
//   - WatchRevocation: end the session as soon as its record is deactivated.
//
// A session is started only for an Authorized verdict.
type GateService interface {
	RunRegistration(ctx context.Context, flow Flow) (Registration, error)
	Login(ctx context.Context, email, password string) (allowlist.Verdict, error)
	Logout(ctx context.Context) error
	Current() (session.AuthorizedSession, bool)
	SetCurrency(ctx context.Context, currency, iso string) error
	WatchRevocation(ctx context.Context) error
}

type gateService struct {
	auth     Authorizer
	api      Upstream
	sessions *session.Context
	device   Device
	logger   logging.Logger
}

func NewGateService(auth Authorizer, api Upstream, sessions *session.Context, device Device, logger logging.Logger) GateService {
	return &gateService{
		auth:     auth,
		api:      api,
		sessions: sessions,
		device:   device,
		logger:   logger.With("module", "gate"),
	}
}

func (g *gateService) RunRegistration(ctx context.Context, flow Flow) (Registration, error) {
	res := flow.Run(ctx)
	reg := Registration{Flow: res}
	if res.Outcome != webauto.OutcomeSucceeded {
		return reg, fmt.Errorf("%w: %s", ErrFlowAbandoned, res.Reason)
	}

	id, err := flow.Proceed(ctx)
	if err != nil {
		g.logger.Warn(ctx, "extraction incomplete", "error", err)
		return reg, err
	}

	// best effort: the allow-list still works on email alone
	var profile upstream.Profile
	if p, err := g.api.Profile(ctx, id.AuthToken); err != nil {
		g.logger.Warn(ctx, "profile lookup failed", "error", err)
	} else {
		profile = p
	}

	email := id.Email
	if email == "" {
		email = profile.Email
	}
	deviceID := id.DeviceID
	if deviceID == "" {
		deviceID = g.device.ID
	}

	reg.Verdict = g.auth.Authorize(ctx, allowlist.Identity{
		Email:          email,
		ExternalUserID: profile.ExternalUserID,
		DeviceID:       deviceID,
		Name:           profile.Name,
	})
	if reg.Verdict.Kind != allowlist.Authorized {
		g.logger.Info(ctx, "registration not authorized", "verdict", reg.Verdict.Kind)
		return reg, reg.Verdict.Err()
	}

	ua := flow.UserAgent(ctx)
	if ua == "" {
		ua = g.device.UserAgent
	}

	s := g.newSession(id.AuthToken, profile.ExternalUserID, deviceID, email)
	s.UserAgent = ua
	if err := g.sessions.Begin(ctx, reg.Verdict, s); err != nil {
		return reg, err
	}
	reg.Session, _ = g.sessions.Session()
	return reg, nil
}

func (g *gateService) Login(ctx context.Context, email, password string) (allowlist.Verdict, error) {
	res, err := g.api.Login(ctx, email, password, upstream.Device{
		ID:        g.device.ID,
		Type:      g.device.Type,
		Timezone:  g.device.Timezone,
		UserAgent: g.device.UserAgent,
	})
	if err != nil {
		return allowlist.Verdict{}, fmt.Errorf("login error: %w", err)
	}

	externalID := res.UserID
	if externalID == "" {
		p, err := g.api.Profile(ctx, res.Token)
		if err != nil {
			return allowlist.Verdict{}, fmt.Errorf("profile error: %w", err)
		}
		externalID = p.ExternalUserID
	}

	v := g.auth.AuthorizeExistingLogin(ctx, externalID)
	if v.Kind == allowlist.NotRegistered && v.Diagnosis.Kind == allowlist.DiagnosisFieldMismatch {
		g.logger.Warn(ctx, "allow-list record stored under legacy field",
			"external_user_id", externalID, "field", v.Diagnosis.Field, "record_id", v.Diagnosis.RecordID)
	}
	if v.Kind != allowlist.Authorized {
		return v, v.Err()
	}

	if err := g.sessions.Begin(ctx, v, g.newSession(res.Token, externalID, g.device.ID, res.Email)); err != nil {
		return v, err
	}
	return v, nil
}

func (g *gateService) newSession(token, externalID, deviceID, email string) session.AuthorizedSession {
	return session.AuthorizedSession{
		AuthToken:      token,
		ExternalUserID: externalID,
		DeviceID:       deviceID,
		Email:          email,
		Timezone:       g.device.Timezone,
		UserAgent:      g.device.UserAgent,
		DeviceType:     g.device.Type,
		Currency:       g.device.Currency,
		CurrencyISO:    g.device.CurrencyISO,
	}
}

func (g *gateService) Logout(ctx context.Context) error {
	return g.sessions.End(ctx)
}

func (g *gateService) Current() (session.AuthorizedSession, bool) {
	return g.sessions.Session()
}

func (g *gateService) SetCurrency(ctx context.Context, currency, iso string) error {
	return g.sessions.SetCurrency(ctx, currency, iso)
}

// WatchRevocation follows the current session's record until the session
// ends (nil), the record is deactivated or deleted (ErrRevoked, session
// ended) or ctx is done.
func (g *gateService) WatchRevocation(ctx context.Context) error {
	s, ok := g.sessions.Session()
	if !ok {
		return common.ErrNoSession
	}
	if s.RecordID == "" {
		g.logger.Debug(ctx, "session has no record binding, nothing to watch")
		return nil
	}
	done := g.sessions.Done()

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := g.auth.Watch(wctx, s.RecordID)
	if err != nil {
		return fmt.Errorf("watch record: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return nil
		case ev, ok := <-events:
			if !ok {
				select {
				case <-done:
					return nil
				default:
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("record watch stopped")
			}
			if !ev.Deleted && ev.Record.IsActive {
				continue
			}

			g.logger.Warn(ctx, "allow-list record revoked, ending session", "record_id", s.RecordID, "deleted", ev.Deleted)
			if err := g.sessions.End(ctx); err != nil {
				return err
			}
			return ErrRevoked
		}
	}
}
