package codelists

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks normalization metrics using lock-free atomic operations.
// All methods are safe for concurrent use.
type Metrics struct {
	// Run counts
	runsTotal  atomic.Uint64
	runsFailed atomic.Uint64

	// Timing (stored as nanoseconds)
	runTimeTotal atomic.Uint64
	runTimeMax   atomic.Uint64

	// Volume
	conceptsTotal atomic.Uint64
	recordsTotal  atomic.Uint64

	// Issue counts by severity
	errorsTotal   atomic.Uint64
	warningsTotal atomic.Uint64
	infosTotal    atomic.Uint64

	// Per-stage timing
	stageTiming sync.Map // map[string]*stageMetrics
}

// stageMetrics tracks metrics for a single stage.
type stageMetrics struct {
	invocations atomic.Uint64
	totalTime   atomic.Uint64 // nanoseconds
	issuesFound atomic.Uint64
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordRun records a completed normalization run.
func (m *Metrics) RecordRun(duration time.Duration, concepts, records int, failed bool) {
	m.runsTotal.Add(1)
	if failed {
		m.runsFailed.Add(1)
	}
	m.conceptsTotal.Add(uint64(concepts)) //nolint:gosec // counts are never negative
	m.recordsTotal.Add(uint64(records))   //nolint:gosec // counts are never negative

	ns := uint64(duration.Nanoseconds()) //nolint:gosec // durations are never negative
	m.runTimeTotal.Add(ns)

	for {
		old := m.runTimeMax.Load()
		if ns <= old {
			break
		}
		if m.runTimeMax.CompareAndSwap(old, ns) {
			break
		}
	}
}

// RecordIssue records an issue based on severity.
func (m *Metrics) RecordIssue(severity IssueSeverity) {
	switch severity {
	case SeverityError, SeverityFatal:
		m.errorsTotal.Add(1)
	case SeverityWarning:
		m.warningsTotal.Add(1)
	case SeverityInformation:
		m.infosTotal.Add(1)
	}
}

// RecordStage records metrics for one stage execution.
func (m *Metrics) RecordStage(stage string, duration time.Duration, issuesFound int) {
	sm := m.getOrCreateStageMetrics(stage)
	sm.invocations.Add(1)
	sm.totalTime.Add(uint64(duration.Nanoseconds())) //nolint:gosec // durations are never negative
	sm.issuesFound.Add(uint64(issuesFound))          //nolint:gosec // counts are never negative
}

func (m *Metrics) getOrCreateStageMetrics(name string) *stageMetrics {
	if v, ok := m.stageTiming.Load(name); ok {
		return v.(*stageMetrics)
	}
	actual, _ := m.stageTiming.LoadOrStore(name, &stageMetrics{})
	return actual.(*stageMetrics)
}

// RunsTotal returns the number of runs performed.
func (m *Metrics) RunsTotal() uint64 {
	return m.runsTotal.Load()
}

// RunsFailed returns the number of runs that aborted.
func (m *Metrics) RunsFailed() uint64 {
	return m.runsFailed.Load()
}

// RecordsTotal returns the number of records produced.
func (m *Metrics) RecordsTotal() uint64 {
	return m.recordsTotal.Load()
}

// WarningsTotal returns the total warning issues found.
func (m *Metrics) WarningsTotal() uint64 {
	return m.warningsTotal.Load()
}

// AverageRunTime returns the average run duration.
func (m *Metrics) AverageRunTime() time.Duration {
	total := m.runsTotal.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.runTimeTotal.Load() / total) //nolint:gosec // nanoseconds within int64 range
}

// StageStats holds statistics for one stage.
type StageStats struct {
	Name        string        `json:"name"`
	Invocations uint64        `json:"invocations"`
	TotalTime   time.Duration `json:"totalTime"`
	AvgTime     time.Duration `json:"avgTime"`
	IssuesFound uint64        `json:"issuesFound"`
}

func (sm *stageMetrics) stats(name string) StageStats {
	invocations := sm.invocations.Load()
	totalTime := sm.totalTime.Load()

	var avgTime time.Duration
	if invocations > 0 {
		avgTime = time.Duration(totalTime / invocations) //nolint:gosec // nanoseconds within int64 range
	}
	return StageStats{
		Name:        name,
		Invocations: invocations,
		TotalTime:   time.Duration(totalTime), //nolint:gosec // nanoseconds within int64 range
		AvgTime:     avgTime,
		IssuesFound: sm.issuesFound.Load(),
	}
}

// StageStats returns statistics for a specific stage.
func (m *Metrics) StageStats(stage string) (StageStats, bool) {
	v, ok := m.stageTiming.Load(stage)
	if !ok {
		return StageStats{Name: stage}, false
	}
	return v.(*stageMetrics).stats(stage), true
}

// AllStageStats returns statistics for all stages, sorted by name.
func (m *Metrics) AllStageStats() []StageStats {
	var stats []StageStats
	m.stageTiming.Range(func(key, value any) bool {
		stats = append(stats, value.(*stageMetrics).stats(key.(string)))
		return true
	})
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Snapshot represents a point-in-time snapshot of all metrics.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`

	RunsTotal  uint64 `json:"runs_total"`
	RunsFailed uint64 `json:"runs_failed"`

	AvgRunTimeNs uint64 `json:"avg_run_time_ns"`
	MaxRunTimeNs uint64 `json:"max_run_time_ns"`

	ConceptsTotal uint64 `json:"concepts_total"`
	RecordsTotal  uint64 `json:"records_total"`

	ErrorsTotal   uint64 `json:"errors_total"`
	WarningsTotal uint64 `json:"warnings_total"`
	InfosTotal    uint64 `json:"infos_total"`

	Stages []StageStats `json:"stages,omitempty"`
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	total := m.runsTotal.Load()
	var avg uint64
	if total > 0 {
		avg = m.runTimeTotal.Load() / total
	}

	return Snapshot{
		Timestamp:     time.Now(),
		RunsTotal:     total,
		RunsFailed:    m.runsFailed.Load(),
		AvgRunTimeNs:  avg,
		MaxRunTimeNs:  m.runTimeMax.Load(),
		ConceptsTotal: m.conceptsTotal.Load(),
		RecordsTotal:  m.recordsTotal.Load(),
		ErrorsTotal:   m.errorsTotal.Load(),
		WarningsTotal: m.warningsTotal.Load(),
		InfosTotal:    m.infosTotal.Load(),
		Stages:        m.AllStageStats(),
	}
}

// Reset clears all metrics.
func (m *Metrics) Reset() {
	m.runsTotal.Store(0)
	m.runsFailed.Store(0)
	m.runTimeTotal.Store(0)
	m.runTimeMax.Store(0)
	m.conceptsTotal.Store(0)
	m.recordsTotal.Store(0)
	m.errorsTotal.Store(0)
	m.warningsTotal.Store(0)
	m.infosTotal.Store(0)

	m.stageTiming.Range(func(key, _ any) bool {
		m.stageTiming.Delete(key)
		return true
	})
}
