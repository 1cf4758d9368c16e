package codelists

import (
	"runtime"
	"time"

	"github.com/google/uuid"
)

// Option configures the Engine.
type Option func(*Options)

// Options holds all configuration for the Engine.
type Options struct {
	// Stage toggles
	DetectDrift     bool
	ReportDrops     bool
	WarnOnEmptyList bool

	// Performance
	WorkerCount  int
	StageTimeout time.Duration

	// Metrics
	CollectMetrics bool

	// NewRunID generates run identifiers
	NewRunID func() string
}

// DefaultOptions returns the default configuration.
func DefaultOptions() *Options {
	return &Options{
		DetectDrift:     true,
		ReportDrops:     true,
		WarnOnEmptyList: true,

		WorkerCount:  runtime.NumCPU(),
		StageTimeout: 0, // no timeout

		CollectMetrics: true,

		NewRunID: func() string { return uuid.NewString() },
	}
}

// WithDriftDetection enables or disables the schema-drift check.
func WithDriftDetection(enable bool) Option {
	return func(o *Options) {
		o.DetectDrift = enable
	}
}

// WithDropReports enables informational issues for codes removed by
// synonym overrides.
func WithDropReports(enable bool) Option {
	return func(o *Options) {
		o.ReportDrops = enable
	}
}

// WithEmptyListWarning enables a warning when no concept survives classification.
func WithEmptyListWarning(enable bool) Option {
	return func(o *Options) {
		o.WarnOnEmptyList = enable
	}
}

// WithWorkerCount sets the number of codelists normalized concurrently.
// Defaults to runtime.NumCPU().
func WithWorkerCount(count int) Option {
	return func(o *Options) {
		if count > 0 {
			o.WorkerCount = count
		}
	}
}

// WithStageTimeout sets a timeout for each stage.
// Use 0 for no timeout.
func WithStageTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.StageTimeout = timeout
	}
}

// WithMetrics enables or disables metrics collection.
func WithMetrics(enable bool) Option {
	return func(o *Options) {
		o.CollectMetrics = enable
	}
}

// WithRunIDGenerator replaces the run ID generator. Tests use it to get
// stable identifiers.
func WithRunIDGenerator(fn func() string) Option {
	return func(o *Options) {
		if fn != nil {
			o.NewRunID = fn
		}
	}
}

// Apply applies the given options to the Options.
func (o *Options) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(o)
	}
}
