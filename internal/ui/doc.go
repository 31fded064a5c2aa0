// Package ui provides the terminal user interface of deckhand.
//
// # Architecture Overview
//
// The UI is a single Bubble Tea program. Model holds a stack of screens;
// the library screen sits at the bottom and the others are pushed on top of
// it and popped with esc. Each screen owns its list stores, its guard groups
// and a Watcher (one poller group), and closes all of them when it is
// popped, so no update reaches a screen that is gone.
//
// # Package Structure
//
//   - ui.go: Options, the Watcher contract and Run
//   - model.go: Model, message dispatch, the screen stack and guard wiring
//   - messages.go: messages and the commands that produce them
//   - layout.go: wideLayout and compactLayout
//   - rows.go: song and playlist rows, status cells
//   - header.go: header, status line and command bar
//   - library.go, detail.go, manager.go, playlist.go, logs.go: screens
//   - theme.go, keys.go, strings.go, style_helpers.go: presentation helpers
//
// # Screens
//
//   - Library: saved songs page by page (n/p, f filter) next to new songs
//     (c check against the source playlist, R refresh)
//   - Song detail: metadata, job label and progress
//   - Playlist manager: songs in no playlist, playlists; space picks a
//     song up, enter drops it on a playlist
//   - Playlist detail: members, x removes
//   - Logs: tail of the log file with level filter
//
// # Events
//
// Pollers, guard timers and the session run outside the Bubble Tea loop.
// They post statusMsg, guardMsg and expiredMsg to a buffered channel that a
// waitForEvent command drains one message at a time.
//
// # Destructive Actions
//
// Delete match, delete playlist and remove from playlist go through a
// guard.Group: the first x arms the row, the second performs. Any other key
// disarms it, and it disarms by itself after the configured timeout.
//
// # Layouts
//
// Both layouts read the same panes. auto picks compactLayout below
// LayoutCompactWidth columns; V cycles auto, wide and compact and saves the
// choice to the prefs file.
//
// # Session Expiry
//
// When the backend rejects the session a banner replaces the status line,
// every screen is torn down and the program exits shortly after. Run then
// returns an error wrapping library.ErrSessionExpired.
package ui
