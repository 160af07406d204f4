package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tradegate/internal/allowlist"
	"github.com/dmitrijs2005/tradegate/internal/client/extract"
	"github.com/dmitrijs2005/tradegate/internal/client/session"
	"github.com/dmitrijs2005/tradegate/internal/client/upstream"
	"github.com/dmitrijs2005/tradegate/internal/client/webauto"
	"github.com/dmitrijs2005/tradegate/internal/common"
	"github.com/dmitrijs2005/tradegate/internal/docstore"
	"github.com/dmitrijs2005/tradegate/internal/logging"
)

const token = "tok-AAAAAAAAAAAAAAAAAAAA"

// ---- fakes ----

type fakeFlow struct {
	result     webauto.Result
	identity   extract.Identity
	proceedErr error
	ua         string
	proceeded  bool
}

func (f *fakeFlow) Run(context.Context) webauto.Result { return f.result }

func (f *fakeFlow) Proceed(context.Context) (extract.Identity, error) {
	f.proceeded = true
	return f.identity, f.proceedErr
}

func (f *fakeFlow) UserAgent(context.Context) string { return f.ua }

func succeededFlow(id extract.Identity) *fakeFlow {
	return &fakeFlow{
		result:   webauto.Result{Outcome: webauto.OutcomeSucceeded, Identity: id, SuccessURL: "https://broker.example/welcome"},
		identity: id,
		ua:       "Mozilla/5.0 (page)",
	}
}

type fakeUpstream struct {
	loginRes   upstream.LoginResult
	loginErr   error
	profile    upstream.Profile
	profileErr error

	lastDevice upstream.Device
	lastToken  string
}

func (f *fakeUpstream) Login(_ context.Context, _, _ string, dev upstream.Device) (upstream.LoginResult, error) {
	f.lastDevice = dev
	return f.loginRes, f.loginErr
}

func (f *fakeUpstream) Profile(_ context.Context, tok string) (upstream.Profile, error) {
	f.lastToken = tok
	return f.profile, f.profileErr
}

// watchSignal reports when a subscription has been opened.
type watchSignal struct {
	Authorizer
	opened chan struct{}
}

func (w *watchSignal) Watch(ctx context.Context, id string) (<-chan allowlist.RecordEvent, error) {
	ch, err := w.Authorizer.Watch(ctx, id)
	close(w.opened)
	return ch, err
}

// brokenStore fails every allow-list query.
type brokenStore struct {
	docstore.Store
}

func (brokenStore) FindByField(context.Context, string, string, any) ([]docstore.Snapshot, error) {
	return nil, errors.New("connection reset")
}

type fixture struct {
	gate     GateService
	allow    *allowlist.Service
	docs     *docstore.MemoryStore
	store    *session.MemoryStore
	sessions *session.Context
	api      *fakeUpstream
}

var testDevice = Device{
	ID:          "device-from-config",
	Type:        "desktop",
	Timezone:    "Europe/Riga",
	UserAgent:   "tradegate-cli",
	Currency:    "Euro",
	CurrencyISO: "EUR",
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	docs := docstore.NewMemoryStore()
	allow := allowlist.NewService(docs, logging.Nop())
	store := session.NewMemoryStore()
	sessions := session.NewContext(store, logging.Nop())
	api := &fakeUpstream{profile: upstream.Profile{ExternalUserID: "ext-1", Name: "Ann"}}

	return &fixture{
		gate:     NewGateService(allow, api, sessions, testDevice, logging.Nop()),
		allow:    allow,
		docs:     docs,
		store:    store,
		sessions: sessions,
		api:      api,
	}
}

func (f *fixture) records(t *testing.T) []allowlist.Record {
	t.Helper()
	recs, err := f.allow.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	return recs
}

func (f *fixture) requireNoSession(t *testing.T) {
	t.Helper()
	_, ok := f.gate.Current()
	require.False(t, ok)
	authed, err := f.store.IsAuthenticated(context.Background())
	require.NoError(t, err)
	require.False(t, authed)
}

// ---- RunRegistration ----

func TestRunRegistration_NewUserIsProvisionedAndSessionStarts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.gate.RunRegistration(ctx, succeededFlow(extract.Identity{AuthToken: token, Email: "ann@example.com"}))
	require.NoError(t, err)
	require.Equal(t, allowlist.Authorized, reg.Verdict.Kind)

	recs := f.records(t)
	require.Len(t, recs, 1)
	require.Equal(t, "ann@example.com", recs[0].Email)
	require.Equal(t, "ext-1", recs[0].ExternalUserID)
	require.Equal(t, "Ann", recs[0].Name)
	require.Equal(t, common.AddedByWebRegistration, recs[0].AddedBy)
	require.True(t, recs[0].IsActive)

	s, ok := f.gate.Current()
	require.True(t, ok)
	require.Equal(t, reg.Session, s)
	require.Equal(t, token, s.AuthToken)
	require.Equal(t, "ext-1", s.ExternalUserID)
	require.Equal(t, "device-from-config", s.DeviceID)
	require.Equal(t, "Mozilla/5.0 (page)", s.UserAgent)
	require.Equal(t, "EUR", s.CurrencyISO)
	require.Equal(t, recs[0].ID, s.RecordID)
	require.Equal(t, token, f.api.lastToken)

	stored, err := f.store.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, s, stored)
}

func TestRunRegistration_SecondRunReusesRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := extract.Identity{AuthToken: token, Email: "ann@example.com", DeviceID: "dev-11111111111111111111"}

	_, err := f.gate.RunRegistration(ctx, succeededFlow(id))
	require.NoError(t, err)
	_, err = f.gate.RunRegistration(ctx, succeededFlow(id))
	require.NoError(t, err)

	require.Len(t, f.records(t), 1)
	s, _ := f.gate.Current()
	require.Equal(t, "dev-11111111111111111111", s.DeviceID)
}

func TestRunRegistration_Abandoned(t *testing.T) {
	f := newFixture(t)
	flow := &fakeFlow{result: webauto.Result{Outcome: webauto.OutcomeAbandoned, Reason: "page closed"}}

	reg, err := f.gate.RunRegistration(context.Background(), flow)
	require.ErrorIs(t, err, ErrFlowAbandoned)
	require.Contains(t, err.Error(), "page closed")
	require.False(t, flow.proceeded)
	require.Nil(t, reg.Verdict.Record)
	require.Empty(t, f.records(t))
	f.requireNoSession(t)
}

func TestRunRegistration_IncompleteExtraction(t *testing.T) {
	f := newFixture(t)
	flow := succeededFlow(extract.Identity{Email: "ann@example.com"})
	flow.result.Incomplete = true
	flow.proceedErr = common.ErrExtractionIncomplete

	_, err := f.gate.RunRegistration(context.Background(), flow)
	require.ErrorIs(t, err, common.ErrExtractionIncomplete)
	require.Empty(t, f.records(t))
	f.requireNoSession(t)
}

func TestRunRegistration_InactiveRecordBlocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.docs.Set(ctx, allowlist.DefaultCollection, "r1", allowlist.Record{
		Email: "ann@example.com", IsActive: false, AddedAt: time.Now(),
	}.Document()))

	reg, err := f.gate.RunRegistration(ctx, succeededFlow(extract.Identity{AuthToken: token, Email: "ann@example.com"}))
	require.ErrorIs(t, err, common.ErrInactiveBlocked)
	require.Equal(t, allowlist.InactiveBlocked, reg.Verdict.Kind)
	require.Len(t, f.records(t), 1)
	f.requireNoSession(t)
}

func TestRunRegistration_ProfileFailureFallsBackToEmail(t *testing.T) {
	f := newFixture(t)
	f.api.profileErr = errors.New("502")

	_, err := f.gate.RunRegistration(context.Background(), succeededFlow(extract.Identity{AuthToken: token, Email: "ann@example.com"}))
	require.NoError(t, err)

	recs := f.records(t)
	require.Len(t, recs, 1)
	require.Empty(t, recs[0].ExternalUserID)
}

func TestRunRegistration_EmailFromProfileWhenPageHadNone(t *testing.T) {
	f := newFixture(t)
	f.api.profile = upstream.Profile{ExternalUserID: "ext-2", Email: "profile@example.com"}

	reg, err := f.gate.RunRegistration(context.Background(), succeededFlow(extract.Identity{AuthToken: token}))
	require.NoError(t, err)
	require.Equal(t, "profile@example.com", reg.Session.Email)
}

func TestRunRegistration_UserAgentFallsBackToDevice(t *testing.T) {
	f := newFixture(t)
	flow := succeededFlow(extract.Identity{AuthToken: token, Email: "ann@example.com"})
	flow.ua = ""

	reg, err := f.gate.RunRegistration(context.Background(), flow)
	require.NoError(t, err)
	require.Equal(t, "tradegate-cli", reg.Session.UserAgent)
}

func TestRunRegistration_StoreFailureIsTransient(t *testing.T) {
	store := session.NewMemoryStore()
	sessions := session.NewContext(store, logging.Nop())
	allow := allowlist.NewService(brokenStore{Store: docstore.NewMemoryStore()}, logging.Nop())
	gate := NewGateService(allow, &fakeUpstream{}, sessions, testDevice, logging.Nop())

	reg, err := gate.RunRegistration(context.Background(), succeededFlow(extract.Identity{AuthToken: token, Email: "ann@example.com"}))
	require.ErrorIs(t, err, common.ErrTransient)
	require.Equal(t, allowlist.TransientError, reg.Verdict.Kind)
	_, ok := gate.Current()
	require.False(t, ok)
}

// ---- Login ----

func TestLogin_RegisteredUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.docs.Set(ctx, allowlist.DefaultCollection, "r1", allowlist.Record{
		Email: "ann@example.com", ExternalUserID: "ext-9", IsActive: true, AddedAt: time.Now(),
	}.Document()))
	f.api.loginRes = upstream.LoginResult{Token: "login-token", UserID: "ext-9", Email: "ann@example.com"}

	v, err := f.gate.Login(ctx, "ann@example.com", "pw")
	require.NoError(t, err)
	require.Equal(t, allowlist.Authorized, v.Kind)
	require.Equal(t, upstream.Device{ID: testDevice.ID, Type: testDevice.Type, Timezone: testDevice.Timezone, UserAgent: testDevice.UserAgent}, f.api.lastDevice)

	s, ok := f.gate.Current()
	require.True(t, ok)
	require.Equal(t, "login-token", s.AuthToken)
	require.Equal(t, "ext-9", s.ExternalUserID)
	require.Equal(t, "r1", s.RecordID)
}

func TestLogin_ResolvesUserIDThroughProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.docs.Set(ctx, allowlist.DefaultCollection, "r1", allowlist.Record{
		ExternalUserID: "ext-1", IsActive: true,
	}.Document()))
	f.api.loginRes = upstream.LoginResult{Token: "login-token"}

	_, err := f.gate.Login(ctx, "ann@example.com", "pw")
	require.NoError(t, err)
	require.Equal(t, "login-token", f.api.lastToken)
}

func TestLogin_LegacyFieldIsDiagnosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.docs.Set(ctx, allowlist.DefaultCollection, "old", docstore.Document{
		"userId": "ext-9", "isActive": true,
	}))
	f.api.loginRes = upstream.LoginResult{Token: "t", UserID: "ext-9"}

	v, err := f.gate.Login(ctx, "ann@example.com", "pw")
	require.ErrorIs(t, err, common.ErrNotRegistered)
	require.Equal(t, allowlist.DiagnosisFieldMismatch, v.Diagnosis.Kind)
	require.Equal(t, "userId", v.Diagnosis.Field)
	f.requireNoSession(t)
}

func TestLogin_UpstreamRejects(t *testing.T) {
	f := newFixture(t)
	f.api.loginErr = &upstream.StatusError{Code: 401}

	_, err := f.gate.Login(context.Background(), "ann@example.com", "bad")
	require.ErrorIs(t, err, common.ErrorUnauthorized)
	require.Contains(t, err.Error(), "login error:")
	f.requireNoSession(t)
}

// ---- session operations ----

func TestLogoutAndCurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.ErrorIs(t, f.gate.SetCurrency(ctx, "US Dollar", "USD"), common.ErrNoSession)

	_, err := f.gate.RunRegistration(ctx, succeededFlow(extract.Identity{AuthToken: token, Email: "ann@example.com"}))
	require.NoError(t, err)

	require.NoError(t, f.gate.SetCurrency(ctx, "US Dollar", "USD"))
	s, _ := f.gate.Current()
	require.Equal(t, "USD", s.CurrencyISO)

	require.NoError(t, f.gate.Logout(ctx))
	f.requireNoSession(t)
}

// ---- WatchRevocation ----

func TestWatchRevocation_NoSession(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.gate.WatchRevocation(context.Background()), common.ErrNoSession)
}

func TestWatchRevocation_DeactivationEndsSession(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reg, err := f.gate.RunRegistration(ctx, succeededFlow(extract.Identity{AuthToken: token, Email: "ann@example.com"}))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- f.gate.WatchRevocation(ctx) }()

	require.NoError(t, f.allow.SetActive(ctx, reg.Session.RecordID, false))

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrRevoked)
	case <-ctx.Done():
		t.Fatal("watch did not react to deactivation")
	}
	f.requireNoSession(t)
}

func TestWatchRevocation_DeletionEndsSession(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reg, err := f.gate.RunRegistration(ctx, succeededFlow(extract.Identity{AuthToken: token, Email: "ann@example.com"}))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- f.gate.WatchRevocation(ctx) }()

	require.NoError(t, f.allow.Delete(ctx, reg.Session.RecordID))

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrRevoked)
	case <-ctx.Done():
		t.Fatal("watch did not react to deletion")
	}
	f.requireNoSession(t)
}

func TestWatchRevocation_LogoutStopsWatch(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sig := &watchSignal{Authorizer: f.allow, opened: make(chan struct{})}
	gate := NewGateService(sig, f.api, f.sessions, testDevice, logging.Nop())

	_, err := gate.RunRegistration(ctx, succeededFlow(extract.Identity{AuthToken: token, Email: "ann@example.com"}))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- gate.WatchRevocation(ctx) }()

	<-sig.opened
	require.NoError(t, gate.Logout(ctx))

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("watch did not stop on logout")
	}
}

func TestWatchRevocation_UnsupportedStore(t *testing.T) {
	sessions := session.NewContext(session.NewMemoryStore(), logging.Nop())
	// a store without live queries
	allow := allowlist.NewService(struct{ docstore.Store }{docstore.NewMemoryStore()}, logging.Nop())
	gate := NewGateService(allow, &fakeUpstream{}, sessions, testDevice, logging.Nop())

	_, err := gate.RunRegistration(context.Background(), succeededFlow(extract.Identity{AuthToken: token, Email: "ann@example.com"}))
	require.NoError(t, err)

	err = gate.WatchRevocation(context.Background())
	require.ErrorIs(t, err, allowlist.ErrWatchUnsupported)
}
