package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"tailor/internal/config"
	"tailor/internal/generation"
	"tailor/internal/logging"
	"tailor/internal/runstore"
)

// drainTimeout bounds how long Stop waits for background runs.
const drainTimeout = 10 * time.Second

var (
	ErrAlreadyRunning = errors.New("daemon already running")
	ErrLocked         = errors.New("another tailor daemon instance is already running")
)

// Daemon owns the single-instance lock, the API server, and the lifetime of
// background generation runs.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *runstore.Store
	service *generation.Service
	api     *apiServer
	lock    *flock.Flock

	mu        sync.Mutex
	cancel    context.CancelFunc
	startedAt time.Time
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StartedAt    time.Time
	LockFilePath string
	RunStorePath string
	Service      generation.Status
}

// New wires a daemon around an opened run store and generation service.
func New(cfg *config.Config, store *runstore.Store, service *generation.Service, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || service == nil {
		return nil, errors.New("daemon requires config, run store, and generation service")
	}
	d := &Daemon{
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "daemon"),
		store:   store,
		service: service,
		lock:    flock.New(cfg.LockPath()),
	}
	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = srv
	return d, nil
}

// Start takes the lock, fails over runs left running by a previous
// instance, prunes expired history, and brings up the progress janitor and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return ErrAlreadyRunning
	}

	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return ErrLocked
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.recoverInterrupted(runCtx)
	d.pruneHistory(runCtx)
	d.service.Registry().Start(runCtx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api server: %w", err)
	}

	d.cancel = cancel
	d.startedAt = time.Now()
	d.logger.Info("tailor daemon started",
		logging.String("lock", d.lock.Path()),
		logging.String("address", d.api.addr()),
	)
	return nil
}

func (d *Daemon) recoverInterrupted(ctx context.Context) {
	reset, err := d.store.ResetInterrupted(ctx)
	switch {
	case err != nil:
		logging.WarnWithContext(d.logger, "interrupted runs not reset", "runstore_reset_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check run store integrity with tailor status"),
			logging.String(logging.FieldImpact, "stale runs stay marked running"),
		)
	case reset > 0:
		d.logger.Info("marked interrupted runs as failed",
			logging.Int64("count", reset),
			logging.String(logging.FieldEventType, "runstore_reset"),
		)
	}
}

func (d *Daemon) pruneHistory(ctx context.Context) {
	retention := d.cfg.RunRetention()
	if retention <= 0 {
		return
	}
	removed, err := d.store.Prune(ctx, time.Now().Add(-retention))
	switch {
	case err != nil:
		d.logger.Warn("run history not pruned",
			logging.Error(err),
			logging.String(logging.FieldEventType, "runstore_prune_failed"),
		)
	case removed > 0:
		d.logger.Info("pruned finished runs",
			logging.Int64("count", removed),
			logging.Int("retention_days", d.cfg.Runs.RetentionDays),
			logging.String(logging.FieldEventType, "runstore_prune"),
		)
	}
}

// Stop closes the API, gives background runs drainTimeout to finish,
// closes every progress channel, and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel == nil {
		return
	}

	d.api.stop()
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), drainTimeout)
	if err := d.service.Wait(drainCtx); err != nil {
		d.logger.Warn("background runs still active at shutdown",
			logging.Int("active", d.service.Active()),
			logging.String(logging.FieldEventType, "daemon_drain_timeout"),
			logging.String(logging.FieldErrorHint, "interrupted runs are marked failed on next start"),
		)
	}
	cancelDrain()

	d.cancel()
	d.cancel = nil
	d.service.Registry().Close()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("tailor daemon stopped", logging.Duration("uptime", time.Since(d.startedAt)))
	d.startedAt = time.Time{}
}

// Close stops the daemon and closes the run store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Addr returns the API listen address, empty until started.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// Status reports runtime state.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.Lock()
	running, started := d.cancel != nil, d.startedAt
	d.mu.Unlock()
	return Status{
		Running:      running,
		PID:          os.Getpid(),
		StartedAt:    started,
		LockFilePath: d.lock.Path(),
		RunStorePath: d.store.Path(),
		Service:      d.service.Status(ctx),
	}
}
