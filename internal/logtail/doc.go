// Package logtail reads and colorizes deckhand's own log file for the
// in-app log screen.
//
// # Reading
//
// Read returns the last maxLines of a file using a ring buffer, so memory is
// O(maxLines) regardless of file size. Missing files read as empty; a
// non-positive maxLines reads nothing.
//
//	lines, err := logtail.Read(cfg.LogFile, 400)
//
// # Levels
//
// Lines are expected in the text format written by charmbracelet/log:
//
//	2026/10/16 14:32:15 INFO <poller/poller.go:88> status changed component=poller job=4uLU6h
//
// ParseLevel recognizes the severity; Filter drops records below a minimum
// level while keeping indented continuation lines with their record.
//
// # Colorization
//
// A Palette holds one lipgloss style per part (timestamp, level, caller,
// key=value keys, detail lines). ColorizeLine never fails: lines that do not
// parse are rendered with the Detail style.
package logtail
