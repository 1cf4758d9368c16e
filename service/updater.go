package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	cl "github.com/gofhir/codelists"
	"github.com/gofhir/codelists/engine"
	"github.com/gofhir/codelists/pkg/logger"
	"github.com/gofhir/codelists/rules"
	"github.com/gofhir/codelists/sink"
	"github.com/gofhir/codelists/source"
	"github.com/gofhir/codelists/worker"
)

// errSkipped marks a job that was not run because its codelist has no
// source location.
var errSkipped = errors.New("no source configured")

// Outcome is the result of updating one codelist.
type Outcome struct {
	// Name of the codelist
	Name string
	// Result is nil when the source could not be loaded
	Result *cl.Result
	// Err is the fatal error of the codelist, if any
	Err error
	// Written is true when every sink accepted the result
	Written bool
	// Skipped is true when the codelist has no source location and was
	// not named explicitly
	Skipped  bool
	Duration time.Duration
}

// Report collects the outcomes of an update in the order the codelists
// were requested.
type Report struct {
	Outcomes []Outcome
}

// Failed returns the outcomes that ended in a fatal error.
func (r *Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Skipped returns the outcomes of codelists left out for lack of a source.
func (r *Report) Skipped() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Skipped {
			out = append(out, o)
		}
	}
	return out
}

// OK reports whether no codelist failed. Skipped codelists do not count as
// failures.
func (r *Report) OK() bool {
	return len(r.Failed()) == 0
}

// Updater loads, normalizes and stores codelists.
type Updater struct {
	registry *rules.Registry
	loader   SourceLoader
	engine   *engine.Engine
	sink     sink.Sink
	log      zerolog.Logger
	workers  int
	dryRun   bool
	progress func(Outcome)
}

// UpdaterOption configures the Updater.
type UpdaterOption func(*Updater)

// WithSink sets where normalized codelists are written. Without a sink the
// updater only normalizes.
func WithSink(s sink.Sink) UpdaterOption {
	return func(u *Updater) {
		u.sink = s
	}
}

// WithLogger sets the logger that mirrors run summaries and issues.
func WithLogger(log zerolog.Logger) UpdaterOption {
	return func(u *Updater) {
		u.log = log
	}
}

// WithEngine sets the normalization engine.
func WithEngine(e *engine.Engine) UpdaterOption {
	return func(u *Updater) {
		if e != nil {
			u.engine = e
		}
	}
}

// WithWorkers sets how many codelists are updated at once.
func WithWorkers(n int) UpdaterOption {
	return func(u *Updater) {
		u.workers = n
	}
}

// WithDryRun normalizes without writing to the sink.
func WithDryRun(dryRun bool) UpdaterOption {
	return func(u *Updater) {
		u.dryRun = dryRun
	}
}

// WithProgress sets a callback invoked as each codelist finishes, in
// completion order. It is called from a single goroutine.
func WithProgress(fn func(Outcome)) UpdaterOption {
	return func(u *Updater) {
		u.progress = fn
	}
}

// NewUpdater creates an updater over the codelists in registry.
func NewUpdater(registry *rules.Registry, loader SourceLoader, opts ...UpdaterOption) *Updater {
	u := &Updater{
		registry: registry,
		loader:   loader,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.engine == nil {
		u.engine = engine.New()
	}
	if u.workers <= 0 {
		u.workers = u.engine.Options().WorkerCount
	}
	return u
}

// Engine returns the updater's engine.
func (u *Updater) Engine() *engine.Engine {
	return u.engine
}

// Update refreshes the named codelists, or every registered codelist when
// no name is given. Unknown names fail the whole call before anything runs.
// Otherwise each codelist succeeds or fails on its own and the report
// carries every outcome. When every codelist is updated, those without a
// source location are skipped; a named one without a location fails.
func (u *Updater) Update(ctx context.Context, names ...string) (*Report, error) {
	lists, err := u.resolve(names)
	if err != nil {
		return nil, err
	}

	report := &Report{Outcomes: make([]Outcome, len(lists))}
	if len(lists) == 0 {
		return report, nil
	}

	workers := u.workers
	if workers > len(lists) {
		workers = len(lists)
	}
	pool := worker.NewPool(func(_ context.Context, job worker.Job) (*cl.Result, error) {
		return u.updateOne(ctx, lists[job.Seq], job.Options)
	}, workers)
	defer pool.Close()

	opts := &worker.JobOptions{
		SkipSink:      u.dryRun,
		SkipUnsourced: len(names) == 0,
	}
	go func() {
		for i, list := range lists {
			if !pool.Submit(worker.Job{ID: list.Name, Seq: i, Options: opts}) {
				return
			}
		}
	}()

	start := time.Now()
	warnings := 0
	for range lists {
		jr := <-pool.Results()
		o := Outcome{
			Name:     jr.ID,
			Result:   jr.Result,
			Err:      jr.Error,
			Written:  jr.Error == nil && u.sink != nil && !u.dryRun,
			Duration: time.Duration(jr.Duration),
		}
		if errors.Is(jr.Error, errSkipped) {
			o.Err = nil
			o.Written = false
			o.Skipped = true
		}
		if jr.Result != nil {
			warnings += jr.Result.WarningCount()
		}
		report.Outcomes[jr.Seq] = o
		if u.progress != nil {
			u.progress(o)
		}
	}

	u.log.Info().
		Int("codelists", len(report.Outcomes)).
		Int("failed", len(report.Failed())).
		Int("skipped", len(report.Skipped())).
		Int("warnings", warnings).
		Dur("duration", time.Since(start)).
		Msg("update finished")

	return report, nil
}

func (u *Updater) resolve(names []string) ([]*rules.Codelist, error) {
	if len(names) == 0 {
		return u.registry.All(), nil
	}

	lists := make([]*rules.Codelist, 0, len(names))
	for _, name := range names {
		list, err := u.registry.Get(name)
		if err != nil {
			return nil, err
		}
		lists = append(lists, list)
	}
	return lists, nil
}

func (u *Updater) updateOne(ctx context.Context, list *rules.Codelist, opts *worker.JobOptions) (*cl.Result, error) {
	log := u.log.With().Str("codelist", list.Name).Logger()

	doc, err := u.loader.Load(ctx, list)
	if err != nil && opts != nil && opts.SkipUnsourced && errors.Is(err, source.ErrNoLocation) {
		log.Info().Msg("no source configured, skipped")
		return nil, errSkipped
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to load source")
		return nil, fmt.Errorf("load source: %w", err)
	}
	log.Debug().Str("url", doc.URL).Int("concepts", len(doc.Concepts)).Msg("source loaded")

	result, err := u.engine.Normalize(ctx, list, doc.Concepts)
	if err != nil {
		if result != nil {
			logger.Issues(log, result.Issues)
		}
		log.Error().Err(err).Msg("normalization failed")
		return result, err
	}
	logger.Result(log, result)

	if u.sink == nil {
		return result, nil
	}
	if opts != nil && opts.SkipSink {
		log.Debug().Str("sink", u.sink.Name()).Msg("dry run, codelist not written")
		return result, nil
	}
	if err := u.sink.Write(ctx, list, result); err != nil {
		log.Error().Err(err).Str("sink", u.sink.Name()).Msg("failed to write codelist")
		return result, fmt.Errorf("write %s: %w", u.sink.Name(), err)
	}
	log.Debug().Str("sink", u.sink.Name()).Msg("codelist written")
	return result, nil
}
