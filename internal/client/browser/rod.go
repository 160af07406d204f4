// Package browser implements webauto.Page on top of a Chrome instance driven
// through the DevTools protocol.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/dmitrijs2005/tradegate/internal/client/webauto"
	"github.com/dmitrijs2005/tradegate/internal/logging"
)

// Registration pages commonly keep their session in third-party cookies and
// mix http assets into https pages.
var DefaultFlags = []string{
	"disable-features=BlockThirdPartyCookies,ThirdPartyStoragePartitioning",
	"allow-running-insecure-content",
}

const defaultEventBuffer = 64

type Options struct {
	// ControlURL attaches to an already running browser; Bin and Flags are
	// ignored when it is set.
	ControlURL  string
	Bin         string
	Headless    bool
	Flags       []string
	EventBuffer int
}

type Browser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	logger   logging.Logger
}

// Launch starts (or attaches to) a browser.
func Launch(ctx context.Context, opts Options, logger logging.Logger) (*Browser, error) {
	logger = logger.With("module", "browser")

	var l *launcher.Launcher
	controlURL := opts.ControlURL
	if controlURL == "" {
		l = launcher.New().Headless(opts.Headless)
		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		}
		for _, raw := range append(append([]string{}, DefaultFlags...), opts.Flags...) {
			name, val, hasVal := parseFlag(raw)
			if name == "" {
				continue
			}
			if hasVal {
				l = l.Set(flags.Flag(name), val)
			} else {
				l = l.Set(flags.Flag(name))
			}
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	logger.Info(ctx, "browser connected", "headless", opts.Headless, "attached", opts.ControlURL != "")
	return &Browser{browser: b, launcher: l, logger: logger}, nil
}

// NewPage opens a blank page in a fresh incognito context so that no state
// leaks between registration attempts.
func (b *Browser) NewPage(ctx context.Context, eventBuffer int) (*Page, error) {
	incognito, err := b.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	rp, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if eventBuffer <= 0 {
		eventBuffer = defaultEventBuffer
	}
	p := &Page{
		page:   rp,
		events: make(chan webauto.Event, eventBuffer),
		done:   make(chan struct{}),
		logger: b.logger,
	}
	p.pump()
	return p, nil
}

func (b *Browser) Close() error {
	err := b.browser.Close()
	if b.launcher != nil {
		b.launcher.Kill()
	}
	return err
}

// Page adapts a rod page to webauto.Page.
type Page struct {
	page   *rod.Page
	events chan webauto.Event
	cancel context.CancelFunc
	done   chan struct{}
	logger logging.Logger

	closeOnce sync.Once
}

var _ webauto.Page = (*Page)(nil)

// pump subscribes before the first navigation so that early load events
// reach the buffer.
func (p *Page) pump() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	wait := p.page.Context(ctx).EachEvent(
		func(ev *proto.PageLoadEventFired) {
			p.emit(webauto.Event{Kind: webauto.EventLoadFinished, URL: p.currentURL()})
		},
		func(ev *proto.PageFrameNavigated) {
			if ev.Frame != nil && ev.Frame.ParentID == "" {
				p.emit(webauto.Event{Kind: webauto.EventURLChanged, URL: ev.Frame.URL})
			}
		},
		func(ev *proto.PageNavigatedWithinDocument) {
			p.emit(webauto.Event{Kind: webauto.EventURLChanged, URL: ev.URL})
		},
		func(ev *proto.NetworkRequestWillBeSent) {
			if ev.RedirectResponse != nil && ev.Type == proto.NetworkResourceTypeDocument && ev.Request != nil {
				p.emit(webauto.Event{Kind: webauto.EventRedirect, URL: ev.Request.URL})
			}
		},
		func(ev *proto.RuntimeConsoleAPICalled) {
			p.emit(webauto.Event{Kind: webauto.EventConsole, Text: stringifyConsoleArgs(ev.Args)})
		},
		func(ev *proto.TargetTargetDestroyed) bool {
			return ev.TargetID == p.page.TargetID
		},
	)

	go func() {
		defer close(p.done)
		defer close(p.events)
		wait()
	}()
}

// emit never blocks the CDP reader; when the consumer lags the oldest
// event is dropped.
func (p *Page) emit(ev webauto.Event) {
	for {
		select {
		case p.events <- ev:
			return
		default:
		}
		select {
		case old := <-p.events:
			p.logger.Debug(context.Background(), "page event dropped", "kind", old.Kind, "url", old.URL)
		default:
		}
	}
}

func (p *Page) currentURL() string {
	info, err := p.page.Info()
	if err != nil || info == nil {
		return ""
	}
	return info.URL
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (p *Page) Eval(ctx context.Context, script string) (string, error) {
	res, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           script,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return "", fmt.Errorf("evaluate: %w", err)
	}
	if res == nil || res.Value.Nil() {
		return "", nil
	}
	return res.Value.String(), nil
}

func (p *Page) Events() <-chan webauto.Event { return p.events }

func (p *Page) Cookies(ctx context.Context, url string) (map[string]string, error) {
	req := proto.NetworkGetCookies{}
	if url != "" {
		req.Urls = []string{url}
	}
	res, err := req.Call(p.page.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	out := make(map[string]string, len(res.Cookies))
	for _, c := range res.Cookies {
		if c == nil {
			continue
		}
		// first wins, matching document.cookie ordering for duplicate names
		if _, ok := out[c.Name]; !ok {
			out[c.Name] = c.Value
		}
	}
	return out, nil
}

// Close stops the event pump and closes the tab. The events channel is
// closed once the pump has exited.
func (p *Page) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.page.Close()
		p.cancel()
		<-p.done
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func parseFlag(raw string) (name, val string, hasVal bool) {
	s := strings.TrimLeft(strings.TrimSpace(raw), "-")
	name, val, hasVal = strings.Cut(s, "=")
	return strings.TrimSpace(name), strings.TrimSpace(val), hasVal
}

func stringifyConsoleArgs(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		if !a.Value.Nil() {
			parts = append(parts, a.Value.String())
			continue
		}
		if a.Description != "" {
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}
