package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/tradegate/internal/allowlist"
	"github.com/dmitrijs2005/tradegate/internal/client/browser"
	"github.com/dmitrijs2005/tradegate/internal/client/config"
	"github.com/dmitrijs2005/tradegate/internal/client/services"
	"github.com/dmitrijs2005/tradegate/internal/client/session"
	"github.com/dmitrijs2005/tradegate/internal/client/upstream"
	"github.com/dmitrijs2005/tradegate/internal/client/webauto"
	"github.com/dmitrijs2005/tradegate/internal/common"
	"github.com/dmitrijs2005/tradegate/internal/docstore/backend"
	"github.com/dmitrijs2005/tradegate/internal/logging"
)

// flowOpener prepares a registration page and returns the flow driving it
// together with a function that releases the page and its browser.
type flowOpener func(ctx context.Context) (services.Flow, func() error, error)

type App struct {
	config   *config.Config
	gate     services.GateService
	sessions *session.Context
	openFlow flowOpener
	logger   logging.Logger

	reader *bufio.Reader
	out    io.Writer

	group    *errgroup.Group
	groupCtx context.Context
	closers  []func(ctx context.Context) error
}

// NewApp wires the allow-list store, the local session store and the
// upstream API into a ready App. Resources opened here are released by Run.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	a := &App{
		config: c,
		logger: logger.With("module", "cli"),
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}
	a.openFlow = a.openBrowserFlow

	store, closeStore, err := backend.Open(ctx, c.Store())
	if err != nil {
		return nil, fmt.Errorf("open allow-list store: %w", err)
	}
	a.closers = append(a.closers, closeStore)
	auth := allowlist.NewService(store, logger, allowlist.WithCollection(c.Collection))

	passphrase := []byte(c.SessionPassphrase)
	if len(passphrase) == 0 {
		passphrase, err = getPassword(a.out, "Session passphrase: ")
		if err != nil {
			a.close(ctx)
			return nil, err
		}
	}
	st, err := session.OpenSQLiteStore(ctx, c.SessionDBPath, passphrase)
	common.WipeByteArray(passphrase)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("open session store: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return st.Close() })

	deviceID, err := st.DeviceID(ctx)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	api, err := upstream.New(c.APIBaseURL, c.HTTPTimeout, logger)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	a.sessions = session.NewContext(st, logger)
	a.gate = services.NewGateService(auth, api, a.sessions, services.Device{
		ID:          deviceID,
		Type:        c.DeviceType,
		Timezone:    time.Local.String(),
		UserAgent:   c.UserAgent,
		Currency:    c.Currency,
		CurrencyISO: c.CurrencyISO,
	}, logger)

	return a, nil
}

// Run restores a saved session, then serves the REPL until the user exits.
// While a session is active its allow-list record is watched in the
// background.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.close(context.Background())

	g, gctx := errgroup.WithContext(ctx)
	a.group, a.groupCtx = g, gctx

	printlnFn("Welcome to TradeGate (type 'help' for commands)")

	if ok, err := a.sessions.Restore(gctx); err != nil {
		a.logger.Warn(gctx, "saved session could not be restored", "error", err)
	} else if ok {
		s, _ := a.gate.Current()
		printlnFn("Welcome back,", displayName(s))
		a.watchRevocation()
	}

	g.Go(func() error {
		defer cancel()
		runREPL(gctx, a, a.getStatus, a.reader)
		return nil
	})

	return g.Wait()
}

func (a *App) isLoggedIn() bool {
	_, ok := a.gate.Current()
	return ok
}

func (a *App) getStatus() string {
	s, ok := a.gate.Current()
	if !ok {
		return ""
	}
	return fmt.Sprintf("(%s %s)", displayName(s), s.Currency)
}

// watchRevocation ends the current session as soon as its allow-list
// record is deactivated or deleted.
func (a *App) watchRevocation() {
	if a.group == nil {
		return
	}
	ctx := a.groupCtx
	a.group.Go(func() error {
		err := a.gate.WatchRevocation(ctx)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
		case errors.Is(err, services.ErrRevoked):
			printlnFn("Your access has been revoked. You have been logged out.")
		default:
			a.logger.Warn(ctx, "revocation watch stopped", "error", err)
		}
		return nil
	})
}

func (a *App) openBrowserFlow(ctx context.Context) (services.Flow, func() error, error) {
	b, err := browser.Launch(ctx, browser.Options{
		ControlURL: a.config.BrowserControlURL,
		Bin:        a.config.BrowserBin,
		Headless:   a.config.Headless,
	}, a.logger)
	if err != nil {
		return nil, nil, err
	}
	page, err := b.NewPage(ctx, 0)
	if err != nil {
		_ = b.Close()
		return nil, nil, err
	}

	ctrl := webauto.NewController(page, a.config.Automation(), a.logger, webauto.WithObserver(showProgress))
	release := func() error {
		return errors.Join(page.Close(), b.Close())
	}
	return ctrl, release, nil
}

// showProgress drives the loading indicator.
func showProgress(_, to webauto.State) {
	switch to {
	case webauto.StateLoading:
		printlnFn("Loading registration page...")
	case webauto.StateAwaitingInteraction:
		printlnFn("Page ready. Complete the form in the browser window.")
	case webauto.StatePollingForSuccessURL:
		printlnFn("Waiting for the registration to be confirmed...")
	case webauto.StateExtractingCredentials:
		printlnFn("Reading credentials...")
	}
}

func (a *App) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn(ctx, "close failed", "error", err)
		}
	}
	a.closers = nil
}

func displayName(s session.AuthorizedSession) string {
	if s.Email != "" {
		return s.Email
	}
	return s.ExternalUserID
}
