// Package webauto drives an untrusted third-party registration page to its
// success state and extracts the credentials it leaves behind.
//
// The Controller is a finite-state machine:
//
//	Loading -> AwaitingInteraction -> PollingForSuccessURL -> ExtractingCredentials -> Terminal
//
// It talks to the page only through Page, a narrow "navigate, evaluate a
// script and get a string back, observe events" surface, so the automation
// logic stays independent of the browser engine.
package webauto

import "context"

type EventKind int

const (
	EventLoadFinished EventKind = iota
	EventURLChanged
	EventRedirect
	EventConsole
)

func (k EventKind) String() string {
	switch k {
	case EventLoadFinished:
		return "load_finished"
	case EventURLChanged:
		return "url_changed"
	case EventRedirect:
		return "redirect"
	case EventConsole:
		return "console"
	}
	return "unknown"
}

// Event is emitted by the page. URL is set for load, navigation and redirect
// events; Text carries console output.
type Event struct {
	Kind EventKind
	URL  string
	Text string
}

// Page is the embedded web surface. Events must be buffered from the moment
// the page is created so that nothing emitted during Navigate is lost; the
// channel is closed when the page goes away.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// Eval runs a JavaScript function expression and returns its result
	// converted to a string.
	Eval(ctx context.Context, script string) (string, error)
	Events() <-chan Event
	// Cookies reads the cookie jar for url directly, bypassing page scripts.
	Cookies(ctx context.Context, url string) (map[string]string, error)
}
