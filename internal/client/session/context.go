package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/tradegate/internal/allowlist"
	"github.com/dmitrijs2005/tradegate/internal/common"
	"github.com/dmitrijs2005/tradegate/internal/logging"
)

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Context owns the lifecycle of the current session. It is created once by
// the application and handed to whatever needs the session; nothing reads
// the store directly.
//
// A session is begun only from an Authorized verdict, superseded by Replace
// or SetCurrency, and destroyed by End.
type Context struct {
	store  Store
	logger logging.Logger
	now    func() time.Time

	mu      sync.RWMutex
	current *AuthorizedSession
	done    chan struct{}
}

func NewContext(store Store, logger logging.Logger) *Context {
	return &Context{
		store:  store,
		logger: logger.With("module", "session"),
		now:    time.Now,
		done:   closedCh,
	}
}

// Restore loads a session persisted by an earlier run.
func (c *Context) Restore(ctx context.Context) (bool, error) {
	s, err := c.store.Get(ctx)
	if errors.Is(err, common.ErrNoSession) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("restore session: %w", err)
	}
	if s.AuthToken == "" {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeDone()
	c.current = &s
	c.done = make(chan struct{})
	return true, nil
}

// Begin persists s as the current session. v must be an Authorized verdict
// for an active record; any other verdict is refused with its error.
func (c *Context) Begin(ctx context.Context, v allowlist.Verdict, s AuthorizedSession) error {
	if v.Kind != allowlist.Authorized {
		return v.Err()
	}
	if v.Record == nil || !v.Record.IsActive {
		return common.ErrInactiveBlocked
	}
	if s.AuthToken == "" {
		return common.ErrExtractionIncomplete
	}

	s.RecordID = v.Record.ID
	if s.ExternalUserID == "" {
		s.ExternalUserID = v.Record.ExternalUserID
	}
	s.SavedAt = c.now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	// whoever followed the previous session is done with it
	c.closeDone()
	c.current = &s
	c.done = make(chan struct{})

	c.logger.Info(ctx, "session started", "record_id", s.RecordID, "external_user_id", s.ExternalUserID)
	return nil
}

// Replace supersedes the current session, keeping its record binding.
func (c *Context) Replace(ctx context.Context, s AuthorizedSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replaceLocked(ctx, s)
}

func (c *Context) replaceLocked(ctx context.Context, s AuthorizedSession) error {
	if c.current == nil {
		return common.ErrNoSession
	}
	if s.AuthToken == "" {
		return common.ErrExtractionIncomplete
	}
	if s.RecordID == "" {
		s.RecordID = c.current.RecordID
	}
	s.SavedAt = c.now().UTC()

	if err := c.store.Save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	c.current = &s
	return nil
}

func (c *Context) SetCurrency(ctx context.Context, currency, iso string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return common.ErrNoSession
	}
	s := *c.current
	s.Currency = currency
	s.CurrencyISO = iso
	return c.replaceLocked(ctx, s)
}

func (c *Context) Session() (AuthorizedSession, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return AuthorizedSession{}, false
	}
	return *c.current, true
}

// Done is closed when the current session ends or is superseded by Begin.
// Without a session it returns a closed channel.
func (c *Context) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.done
}

// End destroys the session. The in-memory session is dropped even if
// clearing the store fails.
func (c *Context) End(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	had := c.current != nil
	c.current = nil
	c.closeDone()
	c.done = closedCh

	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	if had {
		c.logger.Info(ctx, "session ended")
	}
	return nil
}

func (c *Context) closeDone() {
	if c.done != closedCh {
		close(c.done)
	}
}
