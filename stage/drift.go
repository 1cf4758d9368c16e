package stage

import (
	"context"
	"strings"

	cl "github.com/gofhir/codelists"
	"github.com/gofhir/codelists/concept"
	"github.com/gofhir/codelists/pipeline"
)

// UnexpectedProperties returns observed − expected, sorted.
func UnexpectedProperties(observed, expected concept.Set) []string {
	return observed.Difference(expected).Sorted()
}

// DriftStage reports property names the codelist does not expect.
// It never changes the run's concepts.
type DriftStage struct{}

// NewDriftStage creates a new schema-drift stage.
func NewDriftStage() *DriftStage {
	return &DriftStage{}
}

// Name returns the stage name.
func (s *DriftStage) Name() string {
	return string(pipeline.StageIDDrift)
}

// Run emits at most one warning naming every unexpected property.
func (s *DriftStage) Run(ctx context.Context, rctx *pipeline.Context) ([]cl.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unexpected := UnexpectedProperties(rctx.Observed, rctx.Rules.ExpectedSet())
	if len(unexpected) == 0 {
		return nil, nil
	}

	issue := cl.Diagnostic(cl.DiagSchemaDrift, map[string]any{
		"properties": strings.Join(unexpected, ", "),
	}).Payload(unexpected...).Build()

	return []cl.Issue{issue}, nil
}

// DriftStageConfig returns the pipeline configuration for drift detection.
// The stage only runs when the run options enable it.
func DriftStageConfig() *pipeline.StageConfig {
	return &pipeline.StageConfig{
		Stage: pipeline.NewConditionalStage(NewDriftStage(), func(rctx *pipeline.Context) bool {
			return rctx.Options == nil || rctx.Options.DetectDrift
		}),
		Priority: pipeline.PriorityDrift,
		Enabled:  true,
	}
}
