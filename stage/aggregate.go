package stage

import (
	"context"
	"errors"
	"fmt"

	cl "github.com/gofhir/codelists"
	"github.com/gofhir/codelists/concept"
	"github.com/gofhir/codelists/pipeline"
	"github.com/gofhir/codelists/rules"
)

// ErrConflict is returned when a single-valued property receives two
// different values for one concept.
var ErrConflict = errors.New("conflicting property values")

// ConflictError identifies the contradicting source record.
type ConflictError struct {
	Codelist string
	Code     string
	Property string
	Existing string
	Incoming string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: concept %q: property %q set to %q, not %q",
		e.Codelist, e.Code, e.Property, e.Existing, e.Incoming)
}

// Unwrap allows errors.Is(err, ErrConflict).
func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// Aggregate folds the property pairs of every raw concept into a typed
// property map following the codelist's schema. It also returns the set of
// distinct property names seen across all concepts.
//
// Declared multi-valued properties start as empty sets and accumulate.
// Any other name is single-valued: repeating the same value is accepted,
// a different value fails with a *ConflictError.
func Aggregate(list *rules.Codelist, raw []concept.Raw) ([]*concept.Aggregated, concept.Set, error) {
	out := make([]*concept.Aggregated, 0, len(raw))
	observed := make(concept.Set)

	for i := range raw {
		r := &raw[i]
		c := &concept.Aggregated{
			Code:          r.Code,
			Display:       r.Display,
			Definition:    r.Definition,
			HasDefinition: r.HasDefinition,
			Properties:    make(map[string]concept.Value, len(list.MultiValued)+len(r.Properties)),
		}
		for _, name := range list.MultiValued {
			c.Properties[name] = concept.MultiValue()
		}

		for _, p := range r.Properties {
			observed.Add(p.Name)

			if list.IsMultiValued(p.Name) {
				c.Properties[p.Name].Set().Add(p.Value)
				continue
			}

			existing, seen := c.Properties[p.Name]
			if !seen {
				c.Properties[p.Name] = concept.SingleValue(p.Value)
				continue
			}
			if v, _ := existing.Single(); v != p.Value {
				return nil, observed, &ConflictError{
					Codelist: list.Name,
					Code:     r.Code,
					Property: p.Name,
					Existing: v,
					Incoming: p.Value,
				}
			}
		}

		out = append(out, c)
	}

	return out, observed, nil
}

// AggregateStage builds the aggregated concepts of a run.
type AggregateStage struct{}

// NewAggregateStage creates a new aggregation stage.
func NewAggregateStage() *AggregateStage {
	return &AggregateStage{}
}

// Name returns the stage name.
func (s *AggregateStage) Name() string {
	return string(pipeline.StageIDAggregate)
}

// Run aggregates rctx.Raw. A conflict is reported as a fatal issue and
// returned as the run error.
func (s *AggregateStage) Run(ctx context.Context, rctx *pipeline.Context) ([]cl.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	concepts, observed, err := Aggregate(rctx.Rules, rctx.Raw)
	rctx.Observed = observed
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			issue := cl.Diagnostic(cl.DiagPropertyConflict, map[string]any{"error": err.Error()}).
				Payload(conflict.Code, conflict.Property).
				Build()
			return []cl.Issue{issue}, err
		}
		return nil, err
	}

	rctx.Concepts = concepts
	rctx.Result.ObservedProperties = observed.Sorted()
	return nil, nil
}

// AggregateStageConfig returns the pipeline configuration for aggregation.
func AggregateStageConfig() *pipeline.StageConfig {
	return &pipeline.StageConfig{
		Stage:    NewAggregateStage(),
		Priority: pipeline.PriorityAggregate,
		Required: true,
		Enabled:  true,
	}
}
