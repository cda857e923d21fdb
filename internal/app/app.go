// Package app wires the store, the agent, the job runner and the HTTP API
// into one daemon.
package app

import (
	"context"
	"reflect"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/ibeckermayer/prayerkit/internal/ai"
	"github.com/ibeckermayer/prayerkit/internal/config"
	"github.com/ibeckermayer/prayerkit/internal/history"
	"github.com/ibeckermayer/prayerkit/internal/kit"
	"github.com/ibeckermayer/prayerkit/internal/logger"
	"github.com/ibeckermayer/prayerkit/internal/media"
	"github.com/ibeckermayer/prayerkit/internal/notifier"
	"github.com/ibeckermayer/prayerkit/internal/runner"
	"github.com/ibeckermayer/prayerkit/internal/scheduler"
	"github.com/ibeckermayer/prayerkit/internal/server"
	"github.com/ibeckermayer/prayerkit/internal/store"
	"github.com/ibeckermayer/prayerkit/internal/types"
)

// ErrNotConfigured is returned by jobs while no AI client could be built
// from the configuration.
var ErrNotConfigured = errors.New("ai client is not configured")

// App holds the application state.
type App struct {
	mu sync.RWMutex

	// Immutable after New.
	store    *store.Store
	history  *history.Collection
	registry *media.Registry
	sheets   *kit.Builder
	sched    *scheduler.Scheduler
	server   *server.Server
	log      *zap.SugaredLogger

	// Mutable fields - use getSnapshot() for concurrent access.
	config   *config.Config
	gen      runner.Generator
	genErr   error
	notifier *notifier.Notifier

	fixedGen bool
	serveErr chan error
}

// snapshot holds fields that may be replaced by Reload.
// Use getSnapshot() to obtain a consistent, point-in-time copy.
type snapshot struct {
	config   *config.Config
	gen      runner.Generator
	genErr   error
	notifier *notifier.Notifier
}

// getSnapshot returns a snapshot of mutable fields under read lock.
func (a *App) getSnapshot() snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return snapshot{
		config:   a.config,
		gen:      a.gen,
		genErr:   a.genErr,
		notifier: a.notifier,
	}
}

// Option configures an App.
type Option func(*App)

// WithGenerator pins the generator instead of building one from the AI
// config. Reload then leaves it alone.
func WithGenerator(gen runner.Generator) Option {
	return func(a *App) {
		a.gen = gen
		a.fixedGen = true
	}
}

// New opens the store and builds every component. A missing or invalid
// AI configuration is not fatal: the daemon starts and jobs fail with
// ErrNotConfigured until a reload fixes it.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		config:   cfg,
		log:      logger.Named("app"),
		serveErr: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(a)
	}

	dbPath, err := cfg.DBPath()
	if err != nil {
		return nil, err
	}
	st, err := store.New(dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}
	a.store = st

	a.sheets, err = kit.New()
	if err != nil {
		st.Close()
		return nil, err
	}
	a.history = history.New(st.KV(), st.Blobs())
	a.registry = media.NewRegistry(st.Blobs())
	// Nothing is running yet, so unreferenced blobs are leftovers.
	if _, err := a.history.SweepOrphans(ctx, st.Blobs()); err != nil {
		a.log.Warnw("Orphaned media sweep failed", logger.FieldError, err)
	}

	table, err := scheduler.TableFromConfig(cfg.Schedule)
	if err != nil {
		st.Close()
		return nil, err
	}
	schedOpts, err := scheduler.OptionsFromConfig(cfg.Agent)
	if err != nil {
		st.Close()
		return nil, err
	}
	a.sched = scheduler.New(table, st.KV(), a, schedOpts...)

	a.server = server.New(server.Deps{
		Agents:   a.sched,
		History:  a.history,
		Registry: a.registry,
		Sheets:   a.sheets,
	})

	a.apply(ctx, cfg)
	a.log.Infow("App ready",
		logger.FieldPath, dbPath,
		logger.FieldCount, a.history.Len(),
	)
	return a, nil
}

// apply rebuilds the reloadable components from cfg and installs them.
func (a *App) apply(ctx context.Context, cfg *config.Config) {
	var (
		gen    runner.Generator
		genErr error
	)
	if !a.fixedGen {
		client, err := ai.New(ctx, cfg.AI)
		if err != nil {
			genErr = errors.Mark(errors.Wrap(err, "ai"), ErrNotConfigured)
			a.log.Warnw("AI client unavailable; jobs will fail until the config is fixed", logger.FieldError, err)
		} else {
			gen = client
		}
	}

	n, err := notifier.NewFromConfig(cfg.Email, a.sheets)
	if err != nil {
		a.log.Warnw("Email notifications disabled", logger.FieldError, err)
		n = nil
	}

	a.mu.Lock()
	a.config = cfg
	if !a.fixedGen {
		a.gen = gen
		a.genErr = genErr
	}
	a.notifier = n
	a.mu.Unlock()
}

// Reload installs a freshly loaded configuration. The AI client and the
// notifier are rebuilt; schedule, storage and server settings need a
// restart.
func (a *App) Reload(ctx context.Context, cfg *config.Config) {
	old := a.getSnapshot().config
	if !reflect.DeepEqual(old.Schedule, cfg.Schedule) ||
		old.Agent != cfg.Agent ||
		old.Storage != cfg.Storage ||
		old.Server != cfg.Server {
		a.log.Warnw("Schedule, agent, storage and server changes take effect after restart")
	}
	a.apply(ctx, cfg)
	a.log.Infow("Configuration reloaded")
}

// Run executes one job with the current generator. It is the runner the
// scheduler drives.
func (a *App) Run(ctx context.Context, l types.Locale, class types.JobClass) (*types.HistoryItem, error) {
	s := a.getSnapshot()
	if s.gen == nil {
		if s.genErr != nil {
			return nil, s.genErr
		}
		return nil, ErrNotConfigured
	}
	r := runner.New(s.gen, a.store.Blobs(), a.history, runner.WithNotifier(a))
	return r.Run(ctx, l, class)
}

// KitReady forwards to the configured notifier, if any.
func (a *App) KitReady(ctx context.Context, item types.HistoryItem) error {
	n := a.getSnapshot().notifier
	if n == nil {
		return nil
	}
	return n.KitReady(ctx, item)
}

// Scheduler returns the agent.
func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

// History returns the kit collection.
func (a *App) History() *history.Collection { return a.history }

// Server returns the HTTP API.
func (a *App) Server() *server.Server { return a.server }

// Start starts the agent and, when enabled, the HTTP API. Server failures
// are reported on Errors.
func (a *App) Start() {
	a.sched.Start()

	cfg := a.getSnapshot().config
	if !cfg.Server.Enabled {
		return
	}
	go func() {
		if err := a.server.Start(cfg.Server.Addr); err != nil {
			a.serveErr <- err
		}
	}()
}

// Errors delivers fatal server errors.
func (a *App) Errors() <-chan error {
	return a.serveErr
}

// Shutdown stops polling and the server, waits for an in-flight job and
// closes the store.
func (a *App) Shutdown(ctx context.Context) error {
	a.sched.Stop()
	var errs error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrap(err, "server shutdown"))
	}

	done := make(chan struct{})
	go func() {
		a.sched.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warnw("Gave up waiting for the running job")
	}

	if err := a.store.Close(); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrap(err, "close store"))
	}
	return errs
}
