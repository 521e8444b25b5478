package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"tailor/internal/catalog"
	"tailor/internal/config"
	"tailor/internal/daemon"
	"tailor/internal/generation"
	"tailor/internal/logging"
	"tailor/internal/progress"
	"tailor/internal/runstore"
	"tailor/internal/services/llm"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	LogFormat   string
	Development bool
}

// Run starts the tailor daemon and blocks until ctx is done or the process
// receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	} else if opts.Development {
		cfg.Logging.Level = "debug"
	}
	if format := strings.TrimSpace(opts.LogFormat); format != "" {
		cfg.Logging.Format = format
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "tailord.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := runstore.Open(cfg)
	if err != nil {
		logger.Error("open run store", logging.Error(err))
		return err
	}

	cat, err := catalog.LoadFromConfig(cfg)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("load pipeline catalog: %w", err)
	}
	adapter := llm.NewAdapterFromConfig(cfg, logger)
	logDependencySnapshot(logger, cfg, adapter, cat)

	svc, err := generation.NewService(signalCtx, generation.Dependencies{
		Config:   cfg,
		Catalog:  cat,
		Adapter:  adapter,
		Registry: progress.NewRegistryFromConfig(cfg, logger),
		Store:    store,
		Logger:   logger,
	})
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create generation service: %w", err)
	}

	d, err := daemon.New(cfg, store, svc, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check api_bind and whether another tailord holds the lock"),
			logging.String(logging.FieldImpact, "no requests will be served"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("tailor daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config, adapter *llm.Adapter, cat *catalog.Catalog) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("provider_order", strings.Join(adapter.Providers(), ",")),
		logging.String("pipelines", strings.Join(cat.Names(), ",")),
		logging.String("pipelines_file", cfg.Paths.PipelinesFile),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.Bool("api_token_set", strings.TrimSpace(cfg.Paths.APIToken) != ""),
	}
	for _, name := range adapter.Providers() {
		client, ok := adapter.Client(name)
		if !ok {
			continue
		}
		attrs = append(attrs,
			logging.Bool(name+"_key_present", client.Configured()),
			logging.String(name+"_model", client.Model()),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
