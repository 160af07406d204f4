package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tradegate/internal/allowlist"
	"github.com/dmitrijs2005/tradegate/internal/client/extract"
	"github.com/dmitrijs2005/tradegate/internal/client/services"
	"github.com/dmitrijs2005/tradegate/internal/client/session"
	"github.com/dmitrijs2005/tradegate/internal/client/webauto"
	"github.com/dmitrijs2005/tradegate/internal/common"
	"github.com/dmitrijs2005/tradegate/internal/docstore"
	"github.com/dmitrijs2005/tradegate/internal/logging"
)

func stubInputs(t *testing.T, username string, password []byte) {
	t.Helper()
	origST, origGP := getSimpleText, getPassword
	getSimpleText = func(_ *bufio.Reader, _ string, _ io.Writer) (string, error) { return username, nil }
	getPassword = func(_ io.Writer, _ string) ([]byte, error) { return password, nil }
	t.Cleanup(func() {
		getSimpleText = origST
		getPassword = origGP
	})
}

type fakeGate struct {
	current *session.AuthorizedSession

	reg    services.Registration
	regErr error

	loginEmail, loginPass string
	loginVerdict          allowlist.Verdict
	loginErr              error

	logoutErr   error
	currencyErr error
	currency    []string

	watchErr   error
	watchCalls chan struct{}
}

func (f *fakeGate) RunRegistration(ctx context.Context, flow services.Flow) (services.Registration, error) {
	flow.Run(ctx)
	if f.regErr == nil {
		s := f.reg.Session
		f.current = &s
	}
	return f.reg, f.regErr
}

func (f *fakeGate) Login(_ context.Context, email, password string) (allowlist.Verdict, error) {
	f.loginEmail, f.loginPass = email, password
	if f.loginErr != nil {
		return f.loginVerdict, f.loginErr
	}
	f.current = &session.AuthorizedSession{Email: email, Currency: "USD"}
	return allowlist.Verdict{Kind: allowlist.Authorized}, nil
}

func (f *fakeGate) Logout(context.Context) error {
	if f.logoutErr != nil {
		return f.logoutErr
	}
	f.current = nil
	return nil
}

func (f *fakeGate) Current() (session.AuthorizedSession, bool) {
	if f.current == nil {
		return session.AuthorizedSession{}, false
	}
	return *f.current, true
}

func (f *fakeGate) SetCurrency(_ context.Context, currency, iso string) error {
	if f.currencyErr != nil {
		return f.currencyErr
	}
	f.currency = []string{currency, iso}
	return nil
}

func (f *fakeGate) WatchRevocation(ctx context.Context) error {
	if f.watchCalls != nil {
		f.watchCalls <- struct{}{}
	}
	return f.watchErr
}

type stubFlow struct{ ran bool }

func (s *stubFlow) Run(context.Context) webauto.Result {
	s.ran = true
	return webauto.Result{Outcome: webauto.OutcomeSucceeded}
}
func (s *stubFlow) Proceed(context.Context) (extract.Identity, error) { return extract.Identity{}, nil }
func (s *stubFlow) UserAgent(context.Context) string                  { return "" }

func newTestApp(g *fakeGate) (*App, *stubFlow, *bool) {
	flow := &stubFlow{}
	released := false
	a := &App{
		gate:   g,
		logger: logging.Nop(),
		out:    io.Discard,
		openFlow: func(context.Context) (services.Flow, func() error, error) {
			return flow, func() error { released = true; return nil }, nil
		},
	}
	return a, flow, &released
}

func TestRegister_Success(t *testing.T) {
	out := capturePrintln(t)
	g := &fakeGate{reg: services.Registration{Session: session.AuthorizedSession{Email: "alice@example.org"}}}
	a, flow, released := newTestApp(g)

	require.NoError(t, a.Register(context.Background()))

	assert.True(t, flow.ran)
	assert.True(t, *released, "browser must be released")
	assert.True(t, a.isLoggedIn())
	assert.Contains(t, *out, "Registration complete. Welcome, alice@example.org")
}

func TestRegister_FriendlyOutcomes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		reg  services.Registration
		want string
	}{
		{
			name: "abandoned",
			err:  fmt.Errorf("%w: load timeout", services.ErrFlowAbandoned),
			reg:  services.Registration{Flow: webauto.Result{Reason: "load timeout"}},
			want: "Registration was not completed: load timeout",
		},
		{
			name: "incomplete",
			err:  common.ErrExtractionIncomplete,
			want: "Registration succeeded but the session could not be captured. Please use 'login'.",
		},
		{
			name: "inactive",
			err:  common.ErrInactiveBlocked,
			reg:  services.Registration{Verdict: verdicts(t).inactive},
			want: "Your account has been deactivated. Please contact the administrator.",
		},
		{
			name: "store unreachable",
			err:  verdicts(t).transient.Err(),
			reg:  services.Registration{Verdict: verdicts(t).transient},
			want: "Could not reach the authorization service. Check your connection and try again.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := capturePrintln(t)
			a, _, released := newTestApp(&fakeGate{reg: tt.reg, regErr: tt.err})

			require.NoError(t, a.Register(context.Background()))
			assert.Contains(t, *out, tt.want)
			assert.True(t, *released)
			assert.False(t, a.isLoggedIn())
		})
	}
}

func TestRegister_UnexpectedErrorPropagates(t *testing.T) {
	capturePrintln(t)
	boom := errors.New("save session: disk full")
	a, _, _ := newTestApp(&fakeGate{regErr: boom})

	require.ErrorIs(t, a.Register(context.Background()), boom)
}

func TestRegister_TransientHidesCause(t *testing.T) {
	out := capturePrintln(t)
	v := verdicts(t).transient
	a, _, _ := newTestApp(&fakeGate{reg: services.Registration{Verdict: v}, regErr: v.Err()})

	require.NoError(t, a.Register(context.Background()))
	require.Len(t, *out, 1)
	assert.NotContains(t, (*out)[0], "10.0.0.5")
}

func TestRegister_OpenFailure(t *testing.T) {
	a, _, _ := newTestApp(&fakeGate{})
	a.openFlow = func(context.Context) (services.Flow, func() error, error) {
		return nil, nil, errors.New("chrome not found")
	}

	err := a.Register(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open registration page: chrome not found")
}

func TestLogin_Success(t *testing.T) {
	out := capturePrintln(t)
	stubInputs(t, "alice@example.org", []byte("secret"))
	g := &fakeGate{}
	a, _, _ := newTestApp(g)

	require.NoError(t, a.Login(context.Background()))

	assert.Equal(t, "alice@example.org", g.loginEmail)
	assert.Equal(t, "secret", g.loginPass)
	assert.Contains(t, *out, "Login successful. Welcome, alice@example.org")
}

func TestLogin_WipesPassword(t *testing.T) {
	capturePrintln(t)
	pw := []byte("secret")
	stubInputs(t, "alice@example.org", pw)
	a, _, _ := newTestApp(&fakeGate{})

	require.NoError(t, a.Login(context.Background()))
	assert.Equal(t, make([]byte, len(pw)), pw)
}

func TestLogin_Refusals(t *testing.T) {
	vs := verdicts(t)
	tests := []struct {
		name    string
		verdict allowlist.Verdict
		err     error
		want    string
	}{
		{
			name:    "not registered",
			verdict: vs.missing,
			err:     vs.missing.Err(),
			want:    "No registration was found for this account. Please register first.",
		},
		{
			name:    "legacy field name",
			verdict: vs.mismatch,
			err:     vs.mismatch.Err(),
			want:    "Your registration was found but is stored in an outdated format. Please contact the administrator.",
		},
		{
			name:    "inactive",
			verdict: vs.inactive,
			err:     vs.inactive.Err(),
			want:    "Your account has been deactivated. Please contact the administrator.",
		},
		{
			name:    "store unreachable",
			verdict: vs.transient,
			err:     vs.transient.Err(),
			want:    "Could not reach the authorization service. Check your connection and try again.",
		},
		{
			name: "bad password",
			err:  fmt.Errorf("login error: %w", common.ErrorUnauthorized),
			want: "Wrong email or password.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := capturePrintln(t)
			stubInputs(t, "bob@example.org", []byte("pw"))
			a, _, _ := newTestApp(&fakeGate{loginVerdict: tt.verdict, loginErr: tt.err})

			require.NoError(t, a.Login(context.Background()))
			assert.Equal(t, []string{tt.want}, *out)
			assert.False(t, a.isLoggedIn())
		})
	}
}

func TestLogin_UpstreamErrorPropagates(t *testing.T) {
	capturePrintln(t)
	stubInputs(t, "bob@example.org", []byte("pw"))
	a, _, _ := newTestApp(&fakeGate{loginErr: fmt.Errorf("login error: %w", common.ErrUnavailable)})

	require.ErrorIs(t, a.Login(context.Background()), common.ErrUnavailable)
}

func TestLogin_InputError(t *testing.T) {
	orig := getSimpleText
	getSimpleText = func(*bufio.Reader, string, io.Writer) (string, error) { return "", io.EOF }
	t.Cleanup(func() { getSimpleText = orig })

	g := &fakeGate{}
	a, _, _ := newTestApp(g)

	require.ErrorIs(t, a.Login(context.Background()), io.EOF)
	assert.Empty(t, g.loginEmail)
}

func TestLogout(t *testing.T) {
	out := capturePrintln(t)
	g := &fakeGate{current: &session.AuthorizedSession{Email: "a@b.c"}}
	a, _, _ := newTestApp(g)

	require.NoError(t, a.Logout(context.Background()))
	assert.False(t, a.isLoggedIn())
	assert.Contains(t, *out, "Logged out.")

	require.NoError(t, a.Logout(context.Background()))
	assert.Contains(t, *out, "Not logged in.")
}

func TestLogout_ErrorPropagates(t *testing.T) {
	g := &fakeGate{current: &session.AuthorizedSession{}, logoutErr: errors.New("clear failed")}
	a, _, _ := newTestApp(g)

	require.Error(t, a.Logout(context.Background()))
}

func TestCurrency(t *testing.T) {
	out := capturePrintln(t)
	g := &fakeGate{}
	a, _, _ := newTestApp(g)

	require.NoError(t, a.Currency(context.Background(), nil))
	assert.Contains(t, *out, "Usage: currency <code> [iso]")

	require.NoError(t, a.Currency(context.Background(), []string{"eur", "978"}))
	assert.Equal(t, []string{"EUR", "978"}, g.currency)

	g.currencyErr = common.ErrNoSession
	require.NoError(t, a.Currency(context.Background(), []string{"gbp"}))
	assert.Equal(t, "Not logged in.", (*out)[len(*out)-1])
}

func TestStatus(t *testing.T) {
	out := capturePrintln(t)
	g := &fakeGate{}
	a, _, _ := newTestApp(g)

	require.NoError(t, a.Status(context.Background()))
	assert.Equal(t, []string{"Not logged in."}, *out)

	g.current = &session.AuthorizedSession{
		ExternalUserID: "u-1", DeviceType: "desktop", DeviceID: "dev", Currency: "EUR", CurrencyISO: "978",
		SavedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	*out = nil
	require.NoError(t, a.Status(context.Background()))
	assert.Contains(t, *out, "User:     u-1")
	assert.Contains(t, *out, "Currency: EUR 978")
	assert.Equal(t, "(u-1 EUR)", a.getStatus())
}

type unreachableStore struct{ *docstore.MemoryStore }

func (unreachableStore) FindByField(context.Context, string, string, any) ([]docstore.Snapshot, error) {
	return nil, errors.New("mongo find whitelist: server selection error: dial tcp 10.0.0.5:27017")
}

type sampleVerdicts struct {
	missing, mismatch, inactive, transient allowlist.Verdict
}

// verdicts produces the refusals through a real allow-list service.
func verdicts(t *testing.T) sampleVerdicts {
	t.Helper()
	ctx := context.Background()

	store := docstore.NewMemoryStore()
	require.NoError(t, store.Set(ctx, "whitelist", "legacy", docstore.Document{
		"email": "old@example.org", "userId": "u-legacy", "isActive": true,
	}))
	require.NoError(t, store.Set(ctx, "whitelist", "off", docstore.Document{
		allowlist.FieldEmail: "off@example.org", allowlist.FieldExternalUserID: "u-off", allowlist.FieldIsActive: false,
	}))
	svc := allowlist.NewService(store, logging.Nop(), allowlist.WithCollection("whitelist"))
	down := allowlist.NewService(unreachableStore{docstore.NewMemoryStore()}, logging.Nop(), allowlist.WithCollection("whitelist"))

	vs := sampleVerdicts{
		missing:   svc.AuthorizeExistingLogin(ctx, "u-nobody"),
		mismatch:  svc.AuthorizeExistingLogin(ctx, "u-legacy"),
		inactive:  svc.AuthorizeExistingLogin(ctx, "u-off"),
		transient: down.AuthorizeExistingLogin(ctx, "u-any"),
	}
	require.Equal(t, allowlist.DiagnosisFieldMismatch, vs.mismatch.Diagnosis.Kind)
	require.Equal(t, allowlist.InactiveBlocked, vs.inactive.Kind)
	require.Equal(t, allowlist.TransientError, vs.transient.Kind)
	return vs
}
