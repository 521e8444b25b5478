package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"tailor/internal/batch"
	"tailor/internal/catalog"
	"tailor/internal/config"
	"tailor/internal/logging"
	"tailor/internal/pipeline"
	"tailor/internal/progress"
	"tailor/internal/runstore"
	"tailor/internal/services"
	"tailor/internal/services/llm"
)

// DefaultPipeline is used when a request names no pipeline.
const DefaultPipeline = "resume"

// Request asks for one pipeline run.
type Request struct {
	RequestID string         `json:"requestId,omitempty"`
	Pipeline  string         `json:"pipeline,omitempty"`
	Inputs    map[string]any `json:"inputs"`
	Providers []string       `json:"providers,omitempty"`
}

// BatchRequest asks for one run per item.
type BatchRequest struct {
	Pipeline        string       `json:"pipeline,omitempty"`
	Items           []batch.Item `json:"items"`
	ConcurrencyHint int          `json:"concurrencyHint,omitempty"`
	Providers       []string     `json:"providers,omitempty"`
}

// Store is the persistence collaborator.
type Store interface {
	Begin(ctx context.Context, start runstore.Start) error
	Finish(ctx context.Context, run *pipeline.Run) error
	Get(ctx context.Context, requestID string) (*runstore.Record, error)
}

// Service wires the catalog, orchestrator, registry, and run store.
type Service struct {
	cfg          *config.Config
	catalog      *catalog.Catalog
	adapter      *llm.Adapter
	registry     *progress.Registry
	orchestrator *pipeline.Orchestrator
	store        Store
	logger       *slog.Logger

	baseCtx context.Context
	wg      sync.WaitGroup
	mu      sync.Mutex
	active  map[string]struct{}
}

// Dependencies are the collaborators of a Service. Orchestrator is built from
// Adapter and Registry when nil.
type Dependencies struct {
	Config       *config.Config
	Catalog      *catalog.Catalog
	Adapter      *llm.Adapter
	Registry     *progress.Registry
	Orchestrator *pipeline.Orchestrator
	Store        Store
	Logger       *slog.Logger
}

// NewService constructs a service. baseCtx bounds background runs.
func NewService(baseCtx context.Context, deps Dependencies) (*Service, error) {
	if deps.Config == nil {
		return nil, errors.New("generation: config is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("generation: catalog is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("generation: progress registry is required")
	}
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	orch := deps.Orchestrator
	if orch == nil {
		if deps.Adapter == nil {
			return nil, errors.New("generation: adapter or orchestrator is required")
		}
		orch = pipeline.New(deps.Adapter, deps.Registry, logger,
			pipeline.WithDefaults(deps.Config.LLM.Temperature, deps.Config.LLM.MaxTokens))
	}
	s := &Service{
		cfg:          deps.Config,
		catalog:      deps.Catalog,
		adapter:      deps.Adapter,
		registry:     deps.Registry,
		orchestrator: orch,
		store:        deps.Store,
		logger:       logging.NewComponentLogger(logger, "generation"),
		baseCtx:      baseCtx,
		active:       make(map[string]struct{}),
	}
	return s, nil
}

// Catalog returns the pipeline catalog.
func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

// Registry returns the progress registry.
func (s *Service) Registry() *progress.Registry { return s.registry }

// prepare resolves the pipeline and builds an orchestrator request.
func (s *Service) prepare(req Request) (*pipeline.Request, error) {
	name := strings.TrimSpace(req.Pipeline)
	if name == "" {
		name = DefaultPipeline
	}
	def, err := s.catalog.Get(name)
	if err != nil {
		return nil, err
	}
	id := strings.TrimSpace(req.RequestID)
	if id == "" {
		id = uuid.NewString()
	}
	providers := req.Providers
	if len(providers) == 0 {
		providers = s.cfg.LLM.ProviderOrder
	}
	built, err := def.Build(id, req.Inputs, providers)
	if err != nil {
		return nil, err
	}
	if err := pipeline.ValidateStages(built.Stages); err != nil {
		return nil, err
	}
	return built, nil
}

// Generate runs a pipeline and waits for it.
func (s *Service) Generate(ctx context.Context, req Request) (*pipeline.Run, error) {
	built, err := s.prepare(req)
	if err != nil {
		return nil, err
	}
	if err := s.begin(ctx, built, runstore.Start{}); err != nil {
		return nil, err
	}
	return s.execute(ctx, built)
}

// Start validates req, records it, and runs it in the background. The
// returned id can be subscribed to immediately; a subscriber that arrives
// after the run ends still receives the terminal event.
func (s *Service) Start(ctx context.Context, req Request) (string, error) {
	built, err := s.prepare(req)
	if err != nil {
		return "", err
	}
	if err := s.begin(ctx, built, runstore.Start{}); err != nil {
		return "", err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		runCtx := services.WithRequestID(s.baseCtx, built.ID)
		_, _ = s.execute(runCtx, built)
	}()
	return built.ID, nil
}

// Batch runs every item and waits for all of them. Items without a pipeline
// use the batch pipeline.
func (s *Service) Batch(ctx context.Context, req BatchRequest) (batch.Result, error) {
	if len(req.Items) == 0 {
		return batch.Result{}, services.Wrap(services.ErrValidation, "", "batch", "no items", nil)
	}
	if limit := s.cfg.Batch.MaxItems; limit > 0 && len(req.Items) > limit {
		return batch.Result{}, services.Wrap(services.ErrValidation, "", "batch",
			fmt.Sprintf("%d items exceeds batch.max_items (%d)", len(req.Items), limit), nil)
	}
	items := make([]batch.Item, len(req.Items))
	for i, item := range req.Items {
		if item.Pipeline == "" {
			item.Pipeline = req.Pipeline
		}
		items[i] = item
	}
	batchID := uuid.NewString()
	runner := func(ctx context.Context, index int, item batch.Item) (*pipeline.Run, error) {
		return s.runBatchItemWith(ctx, batchID, index, item, req.Providers)
	}
	coordinator := batch.New(runner, s.cfg.BatchConcurrency, s.logger)
	return coordinator.Run(ctx, batchID, items, req.ConcurrencyHint), nil
}

func (s *Service) runBatchItemWith(ctx context.Context, batchID string, index int, item batch.Item, providers []string) (*pipeline.Run, error) {
	built, err := s.prepare(Request{RequestID: item.RequestID, Pipeline: item.Pipeline, Inputs: item.Inputs, Providers: providers})
	if err != nil {
		return nil, err
	}
	idx := index
	if err := s.begin(ctx, built, runstore.Start{BatchID: batchID, ItemIndex: &idx}); err != nil {
		return nil, err
	}
	return s.execute(ctx, built)
}

// Record returns the persisted record for a run.
func (s *Service) Record(ctx context.Context, requestID string) (*runstore.Record, error) {
	if s.store == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "runs", "run store disabled", nil)
	}
	return s.store.Get(ctx, requestID)
}

// Active returns the number of runs currently executing.
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Wait blocks until background runs finish or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) begin(ctx context.Context, built *pipeline.Request, start runstore.Start) error {
	if s.store == nil {
		return nil
	}
	start.RequestID = built.ID
	start.Pipeline = built.Pipeline
	start.Inputs = built.Context
	if err := s.store.Begin(ctx, start); err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	return nil
}

func (s *Service) execute(ctx context.Context, built *pipeline.Request) (*pipeline.Run, error) {
	s.mu.Lock()
	s.active[built.ID] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.active, built.ID)
		s.mu.Unlock()
	}()

	run, runErr := s.orchestrator.Run(ctx, built)
	if s.store != nil && run != nil {
		// Record the outcome even if the caller has gone away.
		if err := s.store.Finish(context.WithoutCancel(ctx), run); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, s.logger), "run record not updated", "runstore_finish_failed",
				logging.String(logging.FieldRequestID, built.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "run history shows the run as running"),
				logging.String(logging.FieldErrorHint, "check data_dir permissions and disk space"),
			)
		}
	}
	return run, runErr
}
