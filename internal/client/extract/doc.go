// Package extract assembles credentials from a third-party page whose
// client-side state is outside our control.
//
// Four sources are probed in a fixed order: cookies, localStorage,
// sessionStorage and page globals. Each probe is a self-contained script
// template that returns a tagged payload string; the payloads decode into
// partial identities that Merge folds left to right, first non-empty value
// per field winning. FromCookies supports the final direct cookie read that
// bypasses page scripts.
package extract
