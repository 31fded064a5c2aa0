package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/five82/deckhand/internal/config"
	"github.com/five82/deckhand/internal/guard"
	"github.com/five82/deckhand/internal/jobstatus"
	"github.com/five82/deckhand/internal/library"
	"github.com/five82/deckhand/internal/logging"
	"github.com/five82/deckhand/internal/poller"
	"github.com/five82/deckhand/internal/prefs"
	"github.com/five82/deckhand/internal/session"
	"github.com/five82/deckhand/internal/ui"
)

const preflightTimeout = 3 * time.Second

// Options configure deckhand. Non-zero fields override the config file.
type Options struct {
	ConfigPath   string
	PrefsPath    string // empty uses default ~/.config/deckhand/prefs.toml
	APIBase      string
	PollInterval time.Duration
	LogLevel     string
}

// Env is the configured core shared by the TUI and the headless commands.
type Env struct {
	Config  config.Config
	Client  *library.Client
	Session *session.Session
	Logger  *log.Logger
}

// LoadConfig reads the config file and applies the overrides in opts.
func LoadConfig(opts Options) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if v := strings.TrimSpace(opts.APIBase); v != "" {
		cfg.APIBase = v
	}
	if opts.PollInterval > 0 {
		cfg.PollInterval = opts.PollInterval
	}
	if v := strings.TrimSpace(opts.LogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	return cfg, nil
}

// NewEnv builds the library client for cfg. logger may be nil.
func NewEnv(cfg config.Config, logger *log.Logger) (*Env, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	sess := session.New()
	client, err := library.NewClient(cfg.APIBase, sess,
		library.WithLogger(logger),
		library.WithRateLimit(cfg.RequestsPerSecond),
	)
	if err != nil {
		return nil, fmt.Errorf("init library client: %w", err)
	}
	return &Env{Config: cfg, Client: client, Session: sess, Logger: logger}, nil
}

// Setup loads the config and builds an Env logging to w.
func Setup(opts Options, w io.Writer) (*Env, error) {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, err
	}
	return NewEnv(cfg, logging.New(w, cfg.LogLevel))
}

// PollerOptions returns the poller settings from the config.
func (e *Env) PollerOptions() poller.Options {
	return poller.Options{Interval: e.Config.PollInterval, Logger: e.Logger}
}

// GuardOptions returns the guard settings from the config.
func (e *Env) GuardOptions() guard.Options {
	return guard.Options{Timeout: e.Config.DisarmTimeout, Logger: e.Logger}
}

// Preflight checks that the library server answers before the UI starts.
func (e *Env) Preflight(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, preflightTimeout)
	defer cancel()
	if err := e.Client.Prime(ctx); err != nil {
		return fmt.Errorf("library server unreachable at %s: %w", e.Config.APIBase, err)
	}
	return nil
}

// Run boots the deckhand TUI until the user quits or the context is cancelled.
// It returns an error wrapping library.ErrSessionExpired when the backend
// rejected the session.
func Run(ctx context.Context, opts Options) error {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return err
	}

	logFile, err := logging.OpenFile(cfg.LogFile)
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger := logging.New(logFile, cfg.LogLevel)

	env, err := NewEnv(cfg, logger)
	if err != nil {
		return err
	}
	if err := env.Preflight(ctx); err != nil {
		return err
	}

	userPrefs, err := prefs.Load(opts.PrefsPath)
	if err != nil {
		logger.Warn("using default preferences", "path", opts.PrefsPath, "err", err)
	}

	logger.Info("deckhand started", "api", cfg.APIBase, "poll", cfg.PollInterval)
	err = ui.Run(ctx, ui.Options{
		Client:          env.Client,
		Session:         env.Session,
		Logger:          logger,
		PageSize:        cfg.PageSize,
		ManagerPageSize: cfg.ManagerPageSize,
		Guard:           env.GuardOptions(),
		LogFile:         cfg.LogFile,
		Prefs:           userPrefs,
		PrefsPath:       opts.PrefsPath,
		NewWatcher: func(ctx context.Context, notify func(string, jobstatus.Status)) ui.Watcher {
			return NewWatcher(ctx, env.Client, env.PollerOptions(), notify)
		},
	})
	if errors.Is(err, library.ErrSessionExpired) {
		logger.Warn("session expired", "err", err)
	}
	return err
}
