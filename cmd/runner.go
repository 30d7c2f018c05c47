package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/gamify-app/gamify/internal/backend"
	"github.com/gamify-app/gamify/internal/collections"
	"github.com/gamify-app/gamify/internal/repositories"
	"github.com/gamify-app/gamify/internal/session"
	"github.com/gamify-app/gamify/internal/shared"
	"github.com/urfave/cli/v3"
)

// setSessionFunc adopts tokens obtained out of band, e.g. from a provider
// sign-in flow.
type setSessionFunc func(ctx context.Context, accessToken, refreshToken string) (*backend.Session, error)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	client      backend.Client
	setSession  setSessionFunc
	db          *sql.DB
	sessions    *session.Manager
	collections *collections.Manager
	snapshots   *repositories.SnapshotRepository
	logger      *log.Logger
	output      io.Writer
	started     bool
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	Client     backend.Client
	SetSession setSessionFunc
	DB         *sql.DB
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	r := &Runner{
		config:     opts.Config,
		client:     opts.Client,
		setSession: opts.SetSession,
		db:         opts.DB,
		logger:     opts.Logger,
		output:     opts.Output,
	}

	if opts.Client != nil {
		r.sessions = session.NewManager(opts.Client, opts.Config.Cache, session.Opts{Logger: opts.Logger})
		r.collections = collections.NewManager(opts.Client, r.sessions, opts.Config.Cache, collections.Opts{Logger: opts.Logger})
	}
	if opts.DB != nil {
		r.snapshots = repositories.NewSnapshotRepository(opts.DB)
	}

	return r
}

// ensureStarted lazily boots the session and collection managers so commands
// that never touch the backend stay offline.
func (r *Runner) ensureStarted(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("%w: backend url and api key must be set in config.toml", shared.ErrMissingConfig)
	}
	if r.started {
		return nil
	}

	if err := r.sessions.Start(ctx); err != nil {
		r.logger.Warn("session restore failed, continuing signed out", "error", err)
	}
	r.collections.Start(ctx)
	r.started = true
	return nil
}

// Close releases the managers and the continuity database.
func (r *Runner) Close() {
	if r.started {
		r.collections.Close()
		r.sessions.Close()
	}
	if r.db != nil {
		r.db.Close()
	}
}

// SetLogger replaces the runner logger.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, playlistsCommand, favoritesCommand, profileCommand, exportCommand, snapshotCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = shared.MarshalIndentJSON(data)
	} else {
		output, err = json.Marshal(data)
		output = append(output, '\n')
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
