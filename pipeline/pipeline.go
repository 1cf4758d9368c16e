package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	cl "github.com/gofhir/codelists"
)

// Pipeline orchestrates the execution of normalization stages.
// Stages run one after another in priority order; the first stage error
// aborts the run.
type Pipeline struct {
	// registry holds all registered stages
	registry *StageRegistry

	// ordered holds the enabled stages in execution order
	ordered []*StageConfig

	// metrics tracks execution metrics
	metrics *cl.Metrics

	// options holds pipeline configuration
	options *Options

	// mu protects concurrent access
	mu sync.RWMutex
}

// Options configures pipeline behavior.
type Options struct {
	// StageTimeout is the maximum time for a single stage
	StageTimeout time.Duration

	// CollectMetrics enables metric collection
	CollectMetrics bool
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		StageTimeout:   0, // no timeout
		CollectMetrics: true,
	}
}

// StageError reports which stage aborted a run.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewPipeline creates a new normalization pipeline.
func NewPipeline(opts *Options) *Pipeline {
	if opts == nil {
		opts = DefaultOptions()
	}

	return &Pipeline{
		registry: NewStageRegistry(),
		metrics:  cl.NewMetrics(),
		options:  opts,
	}
}

// StageOption configures a stage registration.
type StageOption func(*StageConfig)

// WithPriority sets the stage priority.
func WithPriority(priority StagePriority) StageOption {
	return func(c *StageConfig) {
		c.Priority = priority
	}
}

// WithRequired marks the stage as required.
func WithRequired(required bool) StageOption {
	return func(c *StageConfig) {
		c.Required = required
	}
}

// Register adds a stage to the pipeline.
func (p *Pipeline) Register(id StageID, stage Stage, opts ...StageOption) {
	config := &StageConfig{
		Stage:    stage,
		Priority: PriorityProject,
		Enabled:  true,
	}

	for _, opt := range opts {
		opt(config)
	}

	p.RegisterConfig(id, config)
}

// RegisterConfig adds a pre-configured stage to the pipeline.
func (p *Pipeline) RegisterConfig(id StageID, config *StageConfig) {
	if config == nil {
		return
	}

	p.mu.Lock()
	p.registry.Register(id, config)
	p.mu.Unlock()

	p.rebuildOrder()
}

// Enable enables a stage by ID.
func (p *Pipeline) Enable(id StageID) {
	p.mu.Lock()
	p.registry.Enable(id)
	p.mu.Unlock()
	p.rebuildOrder()
}

// Disable disables a stage by ID.
func (p *Pipeline) Disable(id StageID) {
	p.mu.Lock()
	p.registry.Disable(id)
	p.mu.Unlock()
	p.rebuildOrder()
}

// rebuildOrder sorts the enabled stages by priority. Ties keep name order
// so that execution never depends on map iteration.
func (p *Pipeline) rebuildOrder() {
	p.mu.Lock()
	defer p.mu.Unlock()

	enabled := p.registry.GetEnabled()
	sort.Slice(enabled, func(i, j int) bool {
		if enabled[i].Priority != enabled[j].Priority {
			return enabled[i].Priority < enabled[j].Priority
		}
		return enabled[i].Stage.Name() < enabled[j].Stage.Name()
	})
	p.ordered = enabled
}

// Execute runs every enabled stage over rctx. Advisory issues are recorded
// on rctx.Result, stamped with the originating stage. A stage error aborts
// the run and is returned wrapped in a *StageError.
func (p *Pipeline) Execute(ctx context.Context, rctx *Context) (*cl.Result, error) {
	start := time.Now()

	if rctx.Result == nil {
		rctx.Result = cl.NewResult(rctx.Codelist(), "")
	}
	rctx.Result.Stats.Concepts = len(rctx.Raw)

	p.mu.RLock()
	stages := p.ordered
	p.mu.RUnlock()

	var runErr error
	for _, cfg := range stages {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("run cancelled before %s: %w", cfg.Stage.Name(), err)
			break
		}

		if err := p.executeStage(ctx, rctx, cfg); err != nil {
			runErr = err
			break
		}
		rctx.Result.Stats.StagesRun++
	}

	rctx.Result.Stats.Eligible = len(rctx.Eligible)
	rctx.Result.Stats.Resolved = len(rctx.Resolved)
	rctx.Result.Stats.Records = len(rctx.Result.Records)
	rctx.Result.Stats.Duration = time.Since(start)

	if p.options.CollectMetrics && p.metrics != nil {
		p.metrics.RecordRun(rctx.Result.Stats.Duration, len(rctx.Raw), len(rctx.Result.Records), runErr != nil)
	}

	return rctx.Result, runErr
}

// executeStage runs a single stage with timing.
func (p *Pipeline) executeStage(ctx context.Context, rctx *Context, cfg *StageConfig) error {
	stageCtx := ctx
	var cancel context.CancelFunc
	if p.options.StageTimeout > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, p.options.StageTimeout)
		defer cancel()
	}

	name := cfg.Stage.Name()
	start := time.Now()
	issues, err := cfg.Stage.Run(stageCtx, rctx)
	duration := time.Since(start)

	if p.options.CollectMetrics && p.metrics != nil {
		p.metrics.RecordStage(name, duration, len(issues))
		for _, issue := range issues {
			p.metrics.RecordIssue(issue.Severity)
		}
	}

	for i := range issues {
		if issues[i].Stage == "" {
			issues[i].Stage = name
		}
	}
	rctx.Result.AddIssues(issues)

	if err != nil {
		return &StageError{Stage: name, Err: err}
	}
	return nil
}

// Metrics returns the pipeline metrics.
func (p *Pipeline) Metrics() *cl.Metrics {
	return p.metrics
}

// SetMetrics sets the metrics collector.
func (p *Pipeline) SetMetrics(m *cl.Metrics) {
	p.metrics = m
}

// StageNames returns the enabled stages in execution order.
func (p *Pipeline) StageNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, len(p.ordered))
	for i, cfg := range p.ordered {
		names[i] = cfg.Stage.Name()
	}
	return names
}

// StageCount returns the number of enabled stages.
func (p *Pipeline) StageCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.ordered)
}
