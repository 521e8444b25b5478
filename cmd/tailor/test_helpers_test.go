package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"tailor/internal/api"
	"tailor/internal/catalog"
	"tailor/internal/config"
	"tailor/internal/daemon"
	"tailor/internal/generation"
	"tailor/internal/logging"
	"tailor/internal/progress"
	"tailor/internal/services/llm"
	"tailor/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	provider   *testsupport.FakeProvider
	configPath string
	url        string
	baseDir    string
}

// cliReply answers the provider health prompt and otherwise returns three
// keywords. Prompts containing FAIL make the fake provider return HTTP 500.
func cliReply(prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, `{"ok":true}`):
		return `{"ok": true}`, nil
	case strings.Contains(prompt, "FAIL"):
		return "", errors.New("upstream exploded")
	default:
		return `["Go", "Kubernetes", "gRPC"]`, nil
	}
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))

	provider := testsupport.NewFakeProvider(t, cliReply)
	cfg := testsupport.NewConfig(t,
		testsupport.WithProviderURL(config.ProviderDeepSeek, provider.URL()),
		testsupport.WithProviderURL(config.ProviderOpenAI, provider.URL()),
		testsupport.WithProviderOrder(config.ProviderDeepSeek),
	)

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	// Reload so the daemon sees exactly what the CLI will load.
	loaded, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	store := testsupport.MustOpenStore(t, loaded)
	cat, err := catalog.LoadFromConfig(loaded)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	logger := logging.NewNop()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	svc, err := generation.NewService(ctx, generation.Dependencies{
		Config:   loaded,
		Catalog:  cat,
		Adapter:  llm.NewAdapterFromConfig(loaded, logger),
		Registry: progress.NewRegistryFromConfig(loaded, logger),
		Store:    store,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	d, err := daemon.New(loaded, store, svc, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)

	return &cliTestEnv{
		cfg:        loaded,
		daemon:     d,
		provider:   provider,
		configPath: configPath,
		url:        api.BaseURL(d.Addr()),
		baseDir:    base,
	}
}

func runCLI(t *testing.T, args []string, url, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if url != "" {
		flags = append(flags, "--url", url)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
