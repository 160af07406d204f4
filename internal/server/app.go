// Package server wires the allow-list admin server: it opens the configured
// document store, serves the admin gRPC API and shuts down on signals.
package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/tradegate/internal/allowlist"
	"github.com/dmitrijs2005/tradegate/internal/docstore/backend"
	"github.com/dmitrijs2005/tradegate/internal/logging"
	"github.com/dmitrijs2005/tradegate/internal/server/auth"
	"github.com/dmitrijs2005/tradegate/internal/server/config"

	gs "github.com/dmitrijs2005/tradegate/internal/server/grpc"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	records    *allowlist.Service
	closeStore backend.CloseFunc
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	store, closeStore, err := backend.Open(ctx, c.Store())
	if err != nil {
		return nil, fmt.Errorf("store init error: %w", err)
	}

	return &App{
		config:     c,
		logger:     logger,
		records:    allowlist.NewService(store, logger, allowlist.WithCollection(c.Collection)),
		closeStore: closeStore,
	}, nil
}

// IssueToken writes a fresh admin token for operator to w.
func IssueToken(c *config.Config, operator string, w io.Writer) error {
	tok, err := auth.GenerateToken(operator, auth.RoleAdmin, []byte(c.SecretKey), c.AccessTokenValidityDuration)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	_, err = fmt.Fprintln(w, tok)
	return err
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

// Run serves until ctx is cancelled or a signal arrives, then closes the
// store.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(ctx, cancelFunc)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.records, app.config.SecretKey)
		if err := s.Run(gctx); err != nil {
			app.logger.Error(gctx, "grpc server failed", "error", err)
			return err
		}
		return nil
	})

	err := g.Wait()

	if cerr := app.closeStore(context.Background()); cerr != nil {
		app.logger.Warn(context.Background(), "closing store failed", "error", cerr)
	}

	return err
}
