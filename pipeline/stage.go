package pipeline

import (
	"context"

	cl "github.com/gofhir/codelists"
)

// Stage represents a single step of a normalization run.
//
// Stages should be:
// - Pure: they read the run Context and write only their own output fields
// - Complete: each stage consumes the full concept set of its input
// - Explicit: advisory findings are returned as issues, fatal ones as errors
type Stage interface {
	// Name returns the unique identifier for this stage.
	Name() string

	// Run performs the stage. Returned issues are advisory and recorded on
	// the run result; a returned error aborts the run.
	Run(ctx context.Context, rctx *Context) ([]cl.Issue, error)
}

// StageID uniquely identifies a stage.
type StageID string

// Standard stage identifiers.
const (
	StageIDAggregate StageID = "aggregate"
	StageIDDrift     StageID = "drift"
	StageIDClassify  StageID = "classify"
	StageIDSynonyms  StageID = "synonyms"
	StageIDProject   StageID = "project"
)

// StagePriority defines the order in which stages run.
// Lower values run first.
type StagePriority int

const (
	PriorityAggregate StagePriority = 100
	PriorityDrift     StagePriority = 200
	PriorityClassify  StagePriority = 300
	PrioritySynonyms  StagePriority = 400
	PriorityProject   StagePriority = 500
)

// StageConfig holds configuration for a stage in the pipeline.
type StageConfig struct {
	// Stage is the stage implementation
	Stage Stage

	// Priority determines execution order (lower runs first)
	Priority StagePriority

	// Required indicates the stage cannot be disabled
	Required bool

	// Enabled indicates if this stage is currently enabled
	Enabled bool
}

// StageRegistry manages the registered stages.
type StageRegistry struct {
	stages map[StageID]*StageConfig
}

// NewStageRegistry creates a new empty registry.
func NewStageRegistry() *StageRegistry {
	return &StageRegistry{
		stages: make(map[StageID]*StageConfig),
	}
}

// Register adds a stage to the registry.
func (r *StageRegistry) Register(id StageID, config *StageConfig) {
	r.stages[id] = config
}

// Get returns a stage configuration by ID.
func (r *StageRegistry) Get(id StageID) (*StageConfig, bool) {
	cfg, ok := r.stages[id]
	return cfg, ok
}

// GetEnabled returns all enabled stages.
func (r *StageRegistry) GetEnabled() []*StageConfig {
	var enabled []*StageConfig
	for _, cfg := range r.stages {
		if cfg.Enabled {
			enabled = append(enabled, cfg)
		}
	}
	return enabled
}

// Enable enables a stage by ID.
func (r *StageRegistry) Enable(id StageID) {
	if cfg, ok := r.stages[id]; ok {
		cfg.Enabled = true
	}
}

// Disable disables a stage by ID (unless required).
func (r *StageRegistry) Disable(id StageID) {
	if cfg, ok := r.stages[id]; ok && !cfg.Required {
		cfg.Enabled = false
	}
}

// ConditionalStage wraps a stage with a condition for execution.
type ConditionalStage struct {
	stage     Stage
	condition func(*Context) bool
}

// NewConditionalStage creates a stage that only runs when a condition is met.
func NewConditionalStage(stage Stage, condition func(*Context) bool) Stage {
	return &ConditionalStage{
		stage:     stage,
		condition: condition,
	}
}

// Name returns the wrapped stage name.
func (s *ConditionalStage) Name() string {
	return s.stage.Name()
}

// Run runs the stage if the condition is met.
func (s *ConditionalStage) Run(ctx context.Context, rctx *Context) ([]cl.Issue, error) {
	if s.condition != nil && !s.condition(rctx) {
		return nil, nil
	}
	return s.stage.Run(ctx, rctx)
}
