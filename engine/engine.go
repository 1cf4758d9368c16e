// Package engine provides the codelist normalization engine.
package engine

import (
	"context"
	"errors"

	cl "github.com/gofhir/codelists"
	"github.com/gofhir/codelists/concept"
	"github.com/gofhir/codelists/pipeline"
	"github.com/gofhir/codelists/rules"
	"github.com/gofhir/codelists/stage"
	"github.com/gofhir/codelists/worker"
)

// ErrNoRules is returned when Normalize is called without codelist rules.
var ErrNoRules = errors.New("codelist rules are required")

// Engine normalizes codelists. It holds no per-run state, so one Engine
// can serve concurrent runs.
type Engine struct {
	options *cl.Options
	pipe    *pipeline.Pipeline
	metrics *cl.Metrics
}

// Input is one codelist and its raw concepts.
type Input struct {
	Rules    *rules.Codelist
	Concepts []concept.Raw
}

// New creates a new Engine with the given options.
func New(opts ...cl.Option) *Engine {
	options := cl.DefaultOptions()
	options.Apply(opts...)

	e := &Engine{
		options: options,
		metrics: cl.NewMetrics(),
	}
	e.buildPipeline()
	return e
}

// buildPipeline constructs the stage pipeline based on options.
func (e *Engine) buildPipeline() {
	e.pipe = pipeline.NewPipeline(&pipeline.Options{
		StageTimeout:   e.options.StageTimeout,
		CollectMetrics: e.options.CollectMetrics,
	})
	e.pipe.SetMetrics(e.metrics)
	stage.Register(e.pipe)
}

// Normalize runs every stage over the raw concepts of one codelist.
//
// Advisory findings are returned on the result. A fatal error aborts the
// run; the partial result is still returned so its issues can be reported.
func (e *Engine) Normalize(ctx context.Context, list *rules.Codelist, raw []concept.Raw) (*cl.Result, error) {
	if list == nil {
		return nil, ErrNoRules
	}

	rctx := pipeline.NewContext(list, raw)
	rctx.Options = &pipeline.ContextOptions{
		DetectDrift:     e.options.DetectDrift,
		ReportDrops:     e.options.ReportDrops,
		WarnOnEmptyList: e.options.WarnOnEmptyList,
	}
	rctx.Result = cl.NewResult(list.Name, e.options.NewRunID())

	return e.pipe.Execute(ctx, rctx)
}

// NormalizeAll normalizes independent codelists on a bounded worker pool.
// Results come back in input order; one codelist failing never stops the
// others.
func (e *Engine) NormalizeAll(ctx context.Context, inputs []Input) *worker.BatchResult {
	jobs := make([]worker.Job, len(inputs))
	for i, in := range inputs {
		if in.Rules != nil {
			jobs[i].ID = in.Rules.Name
		}
	}

	batch := worker.NewBatch(func(ctx context.Context, job worker.Job) (*cl.Result, error) {
		in := inputs[job.Seq]
		return e.Normalize(ctx, in.Rules, in.Concepts)
	}, e.options.WorkerCount)

	return batch.Run(ctx, jobs)
}

// Metrics returns the engine's metrics.
func (e *Engine) Metrics() *cl.Metrics {
	return e.metrics
}

// Options returns the engine's options.
func (e *Engine) Options() *cl.Options {
	return e.options
}

// Stages returns the enabled stages in execution order.
func (e *Engine) Stages() []string {
	return e.pipe.StageNames()
}
