// Package config loads the deckhand client configuration.
//
// # Configuration Discovery
//
// Load follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/deckhand/config.toml
//  3. If the file doesn't exist, fall back to defaults
//  4. If the file exists but fields are missing or empty, use defaults
//
// # Fields
//
//	api_base            = "http://127.0.0.1:8000"  # library server
//	page_size           = 15                       # library screen rows
//	manager_page_size   = 1000                     # playlist manager source list
//	poll_interval       = "1s"                     # download status polling
//	disarm_timeout      = "4s"                     # confirm-twice window
//	requests_per_second = 10                       # 0 disables the limiter
//	log_level           = "info"
//	log_file            = "~/.local/state/deckhand/deckhand.log"
//
// Malformed TOML and unparseable durations are errors; everything else
// degrades to the default. Paths beginning with ~ expand to the user's home
// directory.
package config
