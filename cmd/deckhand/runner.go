package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/five82/deckhand/internal/app"
)

// Runner holds the output streams of the CLI and provides one method per
// command action.
type Runner struct {
	output    io.Writer
	logOutput io.Writer
	prefsPath string
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Output    io.Writer
	LogOutput io.Writer
	PrefsPath string
}

// NewRunner creates a Runner writing results to opts.Output and logs to
// opts.LogOutput.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}
	return &Runner{output: opts.Output, logOutput: opts.LogOutput, prefsPath: opts.PrefsPath}
}

// Command builds the root command.
func (r *Runner) Command() *cli.Command {
	return &cli.Command{
		Name:    "deckhand",
		Usage:   "Keep a music library in sync from the terminal",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "config file path (default ~/.config/deckhand/config.toml)",
			},
			&cli.StringFlag{
				Name:  "api",
				Usage: "library server base URL",
			},
			&cli.DurationFlag{
				Name:  "poll",
				Usage: "job status poll interval",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
		},
		Action:   r.TUI,
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		tuiCommand, songsCommand, statusCommand, retryCommand,
		playlistsCommand, playlistCommand, assignCommand, matchCommand,
		exportCommand,
	} {
		commands = append(commands, fn(r))
	}
	return commands
}

// options maps the global flags onto app.Options.
func (r *Runner) options(cmd *cli.Command) app.Options {
	return app.Options{
		ConfigPath:   cmd.String("config"),
		PrefsPath:    r.prefsPath,
		APIBase:      cmd.String("api"),
		PollInterval: cmd.Duration("poll"),
		LogLevel:     cmd.String("log-level"),
	}
}

// env builds the headless core. Logs go to the log output, never to the
// result stream.
func (r *Runner) env(cmd *cli.Command) (*app.Env, error) {
	return app.Setup(r.options(cmd), r.logOutput)
}

func (r *Runner) writeJSON(data any) error {
	enc := json.NewEncoder(r.output)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) {
	fmt.Fprintf(r.output, format, args...)
}

func (r *Runner) writePlainln(text string) {
	fmt.Fprintln(r.output, text)
}
