package generation

import (
	"context"

	"tailor/internal/progress"
	"tailor/internal/runstore"
)

// ProviderStatus describes one configured provider.
type ProviderStatus struct {
	Name       string `json:"name"`
	Model      string `json:"model"`
	Configured bool   `json:"configured"`
}

// Status is a point-in-time view of the service.
type Status struct {
	Pipelines  []string                 `json:"pipelines"`
	Providers  []ProviderStatus         `json:"providers"`
	ActiveRuns int                      `json:"activeRuns"`
	Progress   progress.Stats           `json:"progress"`
	Runs       *runstore.HealthSummary  `json:"runs,omitempty"`
	Database   *runstore.DatabaseHealth `json:"database,omitempty"`
}

type healthReporter interface {
	Health(ctx context.Context) (runstore.HealthSummary, error)
	CheckHealth(ctx context.Context) (runstore.DatabaseHealth, error)
}

// Status collects pipeline, provider, progress, and run store state. Store
// errors leave the corresponding fields empty.
func (s *Service) Status(ctx context.Context) Status {
	status := Status{
		Pipelines:  s.catalog.Names(),
		ActiveRuns: s.Active(),
		Progress:   s.registry.Stats(),
	}
	if s.adapter != nil {
		for _, name := range s.adapter.Providers() {
			client, ok := s.adapter.Client(name)
			if !ok {
				continue
			}
			status.Providers = append(status.Providers, ProviderStatus{
				Name:       name,
				Model:      client.Model(),
				Configured: client.Configured(),
			})
		}
	}
	if reporter, ok := s.store.(healthReporter); ok {
		if runs, err := reporter.Health(ctx); err == nil {
			status.Runs = &runs
		}
		if db, err := reporter.CheckHealth(ctx); err == nil {
			status.Database = &db
		}
	}
	return status
}
