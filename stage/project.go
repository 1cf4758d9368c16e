package stage

import (
	"context"
	"unicode"
	"unicode/utf8"

	cl "github.com/gofhir/codelists"
	"github.com/gofhir/codelists/concept"
	"github.com/gofhir/codelists/pipeline"
	"github.com/gofhir/codelists/rules"
)

// CapitalizeFirst upper-cases the first character of s and leaves the rest
// unchanged.
func CapitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || unicode.IsUpper(r) {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// Project maps concepts to output records in input order, applying the
// codelist's exclusion rule, title transform and description source.
func Project(list *rules.Codelist, concepts []*concept.Aggregated) []cl.Record {
	records := make([]cl.Record, 0, len(concepts))
	for _, c := range concepts {
		if list.Excluded(c.Code) {
			continue
		}

		rec := cl.Record{Code: c.Code, Title: c.Display}
		if list.Policy.CapitalizeTitle {
			rec.Title = CapitalizeFirst(rec.Title)
		}

		switch list.Policy.Description {
		case rules.DescriptionDefinition:
			rec.Description = c.Definition
			rec.HasDescription = c.HasDefinition
		case rules.DescriptionProperty:
			rec.Description, rec.HasDescription = c.Single(list.Policy.DescriptionProperty)
		}

		records = append(records, rec)
	}
	return records
}

// ProjectStage produces the output records of a run.
type ProjectStage struct{}

// NewProjectStage creates a new output projection stage.
func NewProjectStage() *ProjectStage {
	return &ProjectStage{}
}

// Name returns the stage name.
func (s *ProjectStage) Name() string {
	return string(pipeline.StageIDProject)
}

// Run projects rctx.Resolved onto the run result.
func (s *ProjectStage) Run(ctx context.Context, rctx *pipeline.Context) ([]cl.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rctx.Result.Columns = rctx.Rules.Columns()
	rctx.Result.Records = Project(rctx.Rules, rctx.Resolved)
	return nil, nil
}

// ProjectStageConfig returns the pipeline configuration for projection.
func ProjectStageConfig() *pipeline.StageConfig {
	return &pipeline.StageConfig{
		Stage:    NewProjectStage(),
		Priority: pipeline.PriorityProject,
		Required: true,
		Enabled:  true,
	}
}

// Register adds the five normalization stages to p.
func Register(p *pipeline.Pipeline) {
	p.RegisterConfig(pipeline.StageIDAggregate, AggregateStageConfig())
	p.RegisterConfig(pipeline.StageIDDrift, DriftStageConfig())
	p.RegisterConfig(pipeline.StageIDClassify, ClassifyStageConfig())
	p.RegisterConfig(pipeline.StageIDSynonyms, SynonymStageConfig())
	p.RegisterConfig(pipeline.StageIDProject, ProjectStageConfig())
}
