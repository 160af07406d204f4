package webauto

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/tradegate/internal/client/extract"
	"github.com/dmitrijs2005/tradegate/internal/common"
	"github.com/dmitrijs2005/tradegate/internal/logging"
)

type State int

const (
	StateIdle State = iota
	StateLoading
	StateAwaitingInteraction
	StatePollingForSuccessURL
	StateExtractingCredentials
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateAwaitingInteraction:
		return "awaiting_interaction"
	case StatePollingForSuccessURL:
		return "polling_for_success_url"
	case StateExtractingCredentials:
		return "extracting_credentials"
	case StateTerminal:
		return "terminal"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Outcome int

const (
	// OutcomeAbandoned: the flow gave up; the page may still be usable manually.
	OutcomeAbandoned Outcome = iota
	OutcomeSucceeded
)

func (o Outcome) String() string {
	if o == OutcomeSucceeded {
		return "succeeded"
	}
	return "abandoned"
}

// Result is the terminal output of a run. Incomplete is set on success when
// no usable token was extracted; Proceed performs the final fallback read.
type Result struct {
	Outcome    Outcome
	Identity   extract.Identity
	Incomplete bool
	SuccessURL string
	Reason     string
}

var (
	ErrNotSucceeded = errors.New("registration flow has not succeeded")
	errPageClosed   = errors.New("page closed")
)

type Option func(*Controller)

// WithObserver registers fn to be called on every state transition, from the
// goroutine running the controller.
func WithObserver(fn func(from, to State)) Option {
	return func(c *Controller) { c.observer = fn }
}

type Controller struct {
	page     Page
	cfg      Settings
	logger   logging.Logger
	observer func(from, to State)

	runMu sync.Mutex

	mu     sync.Mutex
	state  State
	result *Result

	extracting atomic.Bool
}

func NewController(page Page, cfg Settings, logger logging.Logger, opts ...Option) *Controller {
	c := &Controller{
		page:   page,
		cfg:    cfg.withDefaults(),
		logger: logger.With("module", "webauto"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Result returns the terminal result, if any.
func (c *Controller) Result() (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return Result{}, false
	}
	return *c.result, true
}

// Restart clears the terminal result so that the next Run drives the page again.
func (c *Controller) Restart() {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	c.mu.Lock()
	c.result = nil
	c.state = StateIdle
	c.mu.Unlock()
	c.extracting.Store(false)
}

// Run drives the page until a terminal state. Failures never surface as
// errors: they end the flow as OutcomeAbandoned. Once terminal, Run returns
// the same result until Restart is called.
func (c *Controller) Run(ctx context.Context) Result {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if r, ok := c.Result(); ok {
		return r
	}

	res := c.drive(ctx)

	c.mu.Lock()
	c.result = &res
	c.mu.Unlock()
	c.setState(ctx, StateTerminal)

	c.logger.Info(ctx, "registration flow finished", "outcome", res.Outcome, "incomplete", res.Incomplete, "reason", res.Reason)
	return res
}

// Proceed is called when the caller commits to the extracted identity. It
// re-reads the cookie jar directly to fill fields the probes missed and
// fails with common.ErrExtractionIncomplete when no usable token exists.
func (c *Controller) Proceed(ctx context.Context) (extract.Identity, error) {
	res, ok := c.Result()
	if !ok || res.Outcome != OutcomeSucceeded {
		return extract.Identity{}, ErrNotSucceeded
	}

	url := res.SuccessURL
	if url == "" {
		url = c.cfg.StartURL
	}

	id := res.Identity
	if cookies, err := c.page.Cookies(ctx, url); err != nil {
		c.logger.Warn(ctx, "fallback cookie read failed", "error", err)
	} else {
		id = extract.Merge(id, extract.Sanitize(extract.FromCookies(cookies, c.cfg.Keys)))
	}

	if !id.Usable() {
		return extract.Identity{}, common.ErrExtractionIncomplete
	}

	c.mu.Lock()
	if c.result != nil {
		c.result.Identity = id
		c.result.Incomplete = false
	}
	c.mu.Unlock()

	return id, nil
}

// UserAgent reports the page's navigator.userAgent, or "" when it cannot be read.
func (c *Controller) UserAgent(ctx context.Context) string {
	ua, err := c.eval(ctx, extract.UserAgentScript)
	if err != nil {
		c.logger.Debug(ctx, "user agent unavailable", "error", err)
		return ""
	}
	return ua
}

func (c *Controller) setState(ctx context.Context, to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()

	if from == to {
		return
	}
	c.logger.Debug(ctx, "state changed", "from", from, "to", to)
	if c.observer != nil {
		c.observer(from, to)
	}
}

func abandoned(format string, args ...any) Result {
	return Result{Outcome: OutcomeAbandoned, Reason: fmt.Sprintf(format, args...)}
}

func (c *Controller) drive(ctx context.Context) Result {
	c.setState(ctx, StateLoading)

	if err := c.page.Navigate(ctx, c.cfg.StartURL); err != nil {
		c.logger.Warn(ctx, "navigation failed", "url", c.cfg.StartURL, "error", err)
		return abandoned("navigation failed: %v", err)
	}

	success, loaded, err := c.await(ctx, c.cfg.LoadTimeout, func(ev Event) bool { return ev.Kind == EventLoadFinished })
	if err != nil {
		return abandoned("%v", err)
	}
	if success != "" {
		return c.extract(ctx, success)
	}
	if !loaded {
		return abandoned("page did not finish loading within %s", c.cfg.LoadTimeout)
	}

	c.setState(ctx, StateAwaitingInteraction)

	// grace period for the page's own client-side rendering; the user may
	// also complete the flow by hand meanwhile
	success, _, err = c.await(ctx, c.cfg.GraceDelay, nil)
	if err != nil {
		return abandoned("%v", err)
	}
	if success != "" {
		return c.extract(ctx, success)
	}

	success, err = c.click(ctx)
	if err != nil {
		return abandoned("%v", err)
	}
	if success != "" {
		return c.extract(ctx, success)
	}

	c.setState(ctx, StatePollingForSuccessURL)

	for attempt := 1; attempt <= c.cfg.MaxPollAttempts; attempt++ {
		success, _, err = c.await(ctx, c.cfg.PollInterval, nil)
		if err != nil {
			return abandoned("%v", err)
		}
		if success != "" {
			return c.extract(ctx, success)
		}

		loc, err := c.eval(ctx, extract.LocationScript)
		if err != nil {
			c.logger.Debug(ctx, "location poll failed", "attempt", attempt, "error", err)
			continue
		}
		if c.matchSuccess(loc) {
			return c.extract(ctx, loc)
		}
	}

	return abandoned("success url not reached after %d attempts", c.cfg.MaxPollAttempts)
}

// click activates the target element, retrying until InteractionTimeout. A
// non-empty success URL is returned if the page reached it meanwhile.
func (c *Controller) click(ctx context.Context) (string, error) {
	deadline := time.Now().Add(c.cfg.InteractionTimeout)
	script := extract.ClickScript(c.cfg.ClickLabel)

	for attempt := 1; ; attempt++ {
		res, err := c.eval(ctx, script)
		switch {
		case err != nil:
			c.logger.Warn(ctx, "click attempt failed", "attempt", attempt, "error", err)
		case res == extract.ClickResultClicked:
			c.logger.Info(ctx, "registration control activated", "label", c.cfg.ClickLabel, "attempt", attempt)
			return "", nil
		default:
			c.logger.Debug(ctx, "click target not found yet", "label", c.cfg.ClickLabel, "attempt", attempt)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", fmt.Errorf("no element labelled %q within %s", c.cfg.ClickLabel, c.cfg.InteractionTimeout)
		}

		success, _, err := c.await(ctx, min(c.cfg.ClickRetryInterval, remaining), nil)
		if err != nil || success != "" {
			return success, err
		}
	}
}

// await consumes page events for up to d. It returns early with the URL of
// an event matching a success pattern, or with stopped=true when stop
// accepts an event.
func (c *Controller) await(ctx context.Context, d time.Duration, stop func(Event) bool) (success string, stopped bool, err error) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	events := c.page.Events()
	for {
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-timer.C:
			return "", false, nil
		case ev, ok := <-events:
			if !ok {
				return "", false, errPageClosed
			}
			c.observe(ctx, ev)
			if ev.Kind != EventConsole && c.matchSuccess(ev.URL) {
				return ev.URL, false, nil
			}
			if stop != nil && stop(ev) {
				return "", true, nil
			}
		}
	}
}

func (c *Controller) observe(ctx context.Context, ev Event) {
	if ev.Kind == EventConsole {
		if p, err := extract.ParsePayload(ev.Text); err == nil {
			c.logger.Debug(ctx, "probe payload on console", "source", p.Source)
		}
		return
	}
	c.logger.Debug(ctx, "page event", "kind", ev.Kind, "url", ev.URL)
}

func (c *Controller) matchSuccess(url string) bool {
	if url == "" {
		return false
	}
	u := strings.ToLower(url)
	for _, p := range c.cfg.SuccessPatterns {
		if p != "" && strings.Contains(u, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func (c *Controller) eval(ctx context.Context, script string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.EvalTimeout)
	defer cancel()
	return c.page.Eval(ctx, script)
}

// extract runs the probes once per success event; the guard rejects
// re-entry until Restart.
func (c *Controller) extract(ctx context.Context, successURL string) Result {
	if !c.extracting.CompareAndSwap(false, true) {
		return abandoned("extraction already ran for this flow")
	}

	c.setState(ctx, StateExtractingCredentials)
	c.logger.Info(ctx, "success url reached", "url", successURL)

	parts := make([]extract.Identity, 0, len(extract.Order))
	for i, src := range extract.Order {
		if i > 0 {
			if err := sleep(ctx, c.cfg.SettleDelay); err != nil {
				return abandoned("%v", err)
			}
		}
		parts = append(parts, c.probe(ctx, src))
	}

	id := extract.Merge(parts...)
	return Result{
		Outcome:    OutcomeSucceeded,
		Identity:   id,
		Incomplete: !id.Usable(),
		SuccessURL: successURL,
	}
}

func (c *Controller) probe(ctx context.Context, src extract.Source) extract.Identity {
	raw, err := c.eval(ctx, extract.ProbeScript(src, c.cfg.Keys))
	if err != nil {
		c.logger.Warn(ctx, "probe failed", "source", src, "error", err)
		return extract.Identity{}
	}

	p, err := extract.ParsePayload(raw)
	if err != nil {
		c.logger.Warn(ctx, "probe returned garbage", "source", src, "error", err)
		return extract.Identity{}
	}
	if p.Source != src {
		c.logger.Warn(ctx, "probe answered for another source", "want", src, "got", p.Source)
		return extract.Identity{}
	}

	id := extract.Sanitize(p.Identity)
	c.logger.Debug(ctx, "probe result", "source", src,
		"token", id.AuthToken != "", "device", id.DeviceID != "", "email", id.Email != "",
		"malformed_token", p.Identity.AuthToken != "" && id.AuthToken == "")
	return id
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
