// Package app is the composition root of deckhand.
//
// # Overview
//
// This package wires configuration, logging, the library client and the
// presentation layer together. The TUI and the headless commands share the
// same Env, so both drive the identical synchronization core.
//
// # Startup
//
//	┌──────────────┐
//	│   Run()      │
//	└──────┬───────┘
//	       ├─────> LoadConfig()        config.toml plus flag overrides
//	       ├─────> logging.OpenFile()  TUI logs go to the log file
//	       ├─────> NewEnv()            session + library.Client
//	       ├─────> Preflight()         priming request, 3 second timeout
//	       └─────> ui.Run()            blocks until quit
//
// # Watcher
//
// A Watcher belongs to one screen. It owns a poller.Group and a set of song
// stores: Sync attaches a poller to every song with a known status, and each
// status a poller observes is written into every tracked store holding that
// song before the screen is notified. Close is the screen teardown; updates
// in flight after Close never reach a store.
//
// # Error Handling
//
// Fatal errors (returned from Run):
//   - Configuration file invalid
//   - Library client initialization failure
//   - Preflight failure (server unreachable)
//   - Session expiry, wrapping library.ErrSessionExpired so the caller can
//     hand over to the login flow
//
// Everything else is shown in the UI and logged.
package app
