package stage

import (
	"context"

	cl "github.com/gofhir/codelists"
	"github.com/gofhir/codelists/concept"
	"github.com/gofhir/codelists/pipeline"
)

// NotSelectableSet returns the codes of every category marker.
func NotSelectableSet(concepts []*concept.Aggregated) concept.Set {
	set := make(concept.Set)
	for _, c := range concepts {
		if c.NotSelectable() {
			set.Add(c.Code)
		}
	}
	return set
}

// IsEligible reports whether c is a selectable leaf: not a marker itself,
// active, and with at least one direct parent in notSelectable.
// Only direct parents are checked; ancestors further up are ignored.
func IsEligible(c *concept.Aggregated, notSelectable concept.Set) bool {
	if c.NotSelectable() || !c.Active() {
		return false
	}
	return c.Multi(concept.PropSubsumedBy).Intersects(notSelectable)
}

// Classify returns the eligible concepts in input order and the
// not-selectable set. The set is complete before any concept is tested,
// so the outcome does not depend on input order.
func Classify(concepts []*concept.Aggregated) ([]*concept.Aggregated, concept.Set) {
	notSelectable := NotSelectableSet(concepts)

	eligible := make([]*concept.Aggregated, 0, len(concepts))
	for _, c := range concepts {
		if IsEligible(c, notSelectable) {
			eligible = append(eligible, c)
		}
	}
	return eligible, notSelectable
}

// ClassifyStage filters a run down to its eligible concepts.
type ClassifyStage struct{}

// NewClassifyStage creates a new hierarchy classification stage.
func NewClassifyStage() *ClassifyStage {
	return &ClassifyStage{}
}

// Name returns the stage name.
func (s *ClassifyStage) Name() string {
	return string(pipeline.StageIDClassify)
}

// Run classifies rctx.Concepts. Codelists without a hierarchy pass every
// concept through.
func (s *ClassifyStage) Run(ctx context.Context, rctx *pipeline.Context) ([]cl.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !rctx.Rules.Policy.Classify {
		rctx.Eligible = rctx.Concepts
		rctx.NotSelectable = make(concept.Set)
		return nil, nil
	}

	eligible, notSelectable := Classify(rctx.Concepts)
	rctx.Eligible = eligible
	rctx.NotSelectable = notSelectable
	rctx.Result.NotSelectable = notSelectable.Sorted()

	var issues []cl.Issue
	warn := rctx.Options == nil || rctx.Options.WarnOnEmptyList
	if warn && len(eligible) == 0 && len(rctx.Concepts) > 0 {
		issues = append(issues, cl.Diagnostic(cl.DiagNoEligibleConcepts, map[string]any{
			"total": len(rctx.Concepts),
		}).Build())
	}
	return issues, nil
}

// ClassifyStageConfig returns the pipeline configuration for classification.
func ClassifyStageConfig() *pipeline.StageConfig {
	return &pipeline.StageConfig{
		Stage:    NewClassifyStage(),
		Priority: pipeline.PriorityClassify,
		Required: true,
		Enabled:  true,
	}
}
