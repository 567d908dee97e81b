// Package app wires configuration, storage, mail, jobs, the scheduler and
// the admin HTTP server into one runnable engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/quality-escalation/internal/api"
	"github.com/nhle/quality-escalation/internal/directory"
	"github.com/nhle/quality-escalation/internal/jobs"
	"github.com/nhle/quality-escalation/internal/logger"
	"github.com/nhle/quality-escalation/internal/model"
	"github.com/nhle/quality-escalation/internal/scheduler"
	"github.com/nhle/quality-escalation/internal/store"
)

// shutdownTimeout bounds the graceful stop of the admin server.
const shutdownTimeout = 10 * time.Second

// App is the assembled escalation engine.
type App struct {
	cfg       *model.AppConfig
	log       *logrus.Logger
	store     store.Store
	driver    *scheduler.Driver
	reminders *jobs.Reminders
	server    *http.Server
}

// New builds every component from cfg. The caller must Close the App.
func New(ctx context.Context, cfg *model.AppConfig, log *logrus.Logger) (*App, error) {
	loc, err := cfg.TimeLocation()
	if err != nil {
		return nil, err
	}

	st, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	m, err := newMailer(cfg.Mail, logger.Component(log, "mailer"))
	if err != nil {
		st.Close()
		return nil, err
	}

	users := directory.New(st)
	deps := jobs.Deps{
		Store:          st,
		Directory:      users,
		Mailer:         m,
		Log:            logger.Component(log, "jobs"),
		Cooldown:       cfg.Escalation.Cooldown,
		DeadlineWindow: cfg.Escalation.DeadlineWindow,
		Location:       loc,
		Locks:          jobs.NewKeyedMutex(),
	}

	cadences := map[string]time.Duration{
		jobs.NameOverdueScan:  cfg.Schedule.OverdueScan,
		jobs.NameFormScan:     cfg.Schedule.FormScan,
		jobs.NameDeadlineScan: cfg.Schedule.DeadlineScan,
		jobs.NameDigest:       cfg.Schedule.Digest,
	}

	driver := scheduler.New(logger.Component(log, "scheduler"))
	for _, job := range jobs.All(deps) {
		if err := driver.Register(job, cadences[job.Name()]); err != nil {
			st.Close()
			return nil, err
		}
	}

	a := &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		driver:    driver,
		reminders: jobs.NewReminders(deps),
	}

	if cfg.Admin.Enabled {
		srv := api.NewServer(driver, a.reminders, st, users, logger.Component(log, "api"))
		a.server = &http.Server{
			Addr:              cfg.Admin.Address,
			Handler:           srv.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return a, nil
}

// OpenStore opens the configured persistence backend. Read-only commands
// use it without building the rest of the engine.
func OpenStore(ctx context.Context, cfg model.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "mongo":
		s, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("opening mongo store: %w", err)
		}
		return s, nil
	default:
		s, err := store.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store %s: %w", cfg.Path, err)
		}
		return s, nil
	}
}

// Run starts the scheduler and, when enabled, the admin server, and blocks
// until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.driver.Start()
	defer a.driver.Stop()

	errCh := make(chan error, 1)
	if a.server != nil {
		go func() {
			a.log.WithField("address", a.server.Addr).Info("Admin server listening")
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("admin server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down admin server: %w", err)
		}
	}
	return nil
}

// RunOnce runs a single job pass immediately and returns its aggregate
// error. This is the command-line manual trigger.
func (a *App) RunOnce(ctx context.Context, name string) (jobs.Result, error) {
	return a.driver.RunNow(ctx, name)
}

// Jobs lists the registered job names.
func (a *App) Jobs() []string {
	return a.driver.Jobs()
}

// Store exposes the opened store for read-only commands.
func (a *App) Store() store.Store {
	return a.store
}

// Close stops the scheduler and releases the store.
func (a *App) Close() error {
	a.driver.Stop()
	return a.store.Close()
}
