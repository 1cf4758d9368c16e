package worker

import (
	"context"

	cl "github.com/gofhir/codelists"
)

// Job identifies one codelist to normalize.
type Job struct {
	// ID is the codelist name.
	ID string

	// Seq is the job's position in its batch. Batch.Run sets it; Pool
	// callers set it themselves.
	Seq int

	// Options contains optional parameters for the job.
	Options *JobOptions
}

// JobOptions contains optional parameters for a job.
type JobOptions struct {
	// SkipSink disables persisting the result.
	SkipSink bool

	// SkipUnsourced reports a codelist without a source location as
	// skipped instead of failed.
	SkipUnsourced bool
}

// Func normalizes the codelist named by job.
type Func func(ctx context.Context, job Job) (*cl.Result, error)

// JobResult represents the result of a job.
type JobResult struct {
	// ID matches the Job.ID that produced this result.
	ID string

	// Seq matches the Job.Seq that produced this result.
	Seq int

	// Result contains the normalization result. It may be set alongside
	// Error when the run aborted part way.
	Result *cl.Result

	// Error contains the fatal error of the run, if any.
	Error error

	// Duration is the time taken by the job (in nanoseconds).
	Duration int64
}

// BatchResult aggregates results from multiple jobs.
type BatchResult struct {
	// Results contains all job results.
	Results []*JobResult

	// TotalJobs is the number of jobs submitted.
	TotalJobs int

	// CompletedJobs is the number of jobs completed (including errors).
	CompletedJobs int

	// FailedJobs is the number of jobs that failed with an error.
	FailedJobs int

	// TotalDuration is the wall time of the batch (in nanoseconds).
	TotalDuration int64
}

// HasErrors returns true if any job failed.
func (br *BatchResult) HasErrors() bool {
	for _, r := range br.Results {
		if r != nil && r.Error != nil {
			return true
		}
	}
	return false
}

// Failed returns the results of the failed jobs.
func (br *BatchResult) Failed() []*JobResult {
	var out []*JobResult
	for _, r := range br.Results {
		if r != nil && r.Error != nil {
			out = append(out, r)
		}
	}
	return out
}

// WarningCount returns the total number of warnings across all results.
func (br *BatchResult) WarningCount() int {
	count := 0
	for _, r := range br.Results {
		if r != nil && r.Result != nil {
			count += r.Result.WarningCount()
		}
	}
	return count
}
