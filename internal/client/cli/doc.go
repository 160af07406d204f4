// Package cli provides the interactive TradeGate command-line client.
//
// It wires configuration, the allow-list store, the local session store and
// the upstream API into an interactive REPL. A saved session is restored on
// start; while a session is active its allow-list record is watched and the
// session ends as soon as the record is deactivated.
//
// Key features:
//   - register: drive the broker's registration page in a browser window and
//     capture the resulting credentials
//   - login / logout for accounts registered earlier
//   - status and currency for the active session
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
