package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	cl "github.com/gofhir/codelists"
	"github.com/gofhir/codelists/rules"
)

// mockStage is a test stage that records execution
type mockStage struct {
	name       string
	issues     []cl.Issue
	err        error
	delay      time.Duration
	executions atomic.Int32
	order      *[]string
}

func (s *mockStage) Name() string {
	return s.name
}

func (s *mockStage) Run(ctx context.Context, rctx *Context) ([]cl.Issue, error) {
	s.executions.Add(1)
	if s.order != nil {
		*s.order = append(*s.order, s.name)
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.issues, s.err
}

func newTestContext() *Context {
	rctx := NewContext(&rules.Codelist{Name: "test"}, nil)
	rctx.Result = cl.NewResult("test", "run-1")
	return rctx
}

func TestPipeline_Basic(t *testing.T) {
	pipeline := NewPipeline(nil)

	pipeline.Register(StageIDAggregate, &mockStage{name: "aggregate"}, WithPriority(PriorityAggregate))
	pipeline.Register(StageIDProject, &mockStage{name: "project"}, WithPriority(PriorityProject))

	if pipeline.StageCount() != 2 {
		t.Errorf("StageCount() = %d; want 2", pipeline.StageCount())
	}
}

func TestPipeline_ExecuteOrder(t *testing.T) {
	pipeline := NewPipeline(nil)

	var order []string
	pipeline.Register(StageIDProject, &mockStage{name: "project", order: &order}, WithPriority(PriorityProject))
	pipeline.Register(StageIDAggregate, &mockStage{name: "aggregate", order: &order}, WithPriority(PriorityAggregate))
	pipeline.Register(StageIDClassify, &mockStage{name: "classify", order: &order}, WithPriority(PriorityClassify))

	rctx := newTestContext()
	result, err := pipeline.Execute(context.Background(), rctx)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	want := []string{"aggregate", "classify", "project"}
	if len(order) != len(want) {
		t.Fatalf("ran %v; want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q; want %q", i, order[i], want[i])
		}
	}
	if result.Stats.StagesRun != 3 {
		t.Errorf("StagesRun = %d; want 3", result.Stats.StagesRun)
	}
}

func TestPipeline_IssuesStamped(t *testing.T) {
	pipeline := NewPipeline(nil)

	stage := &mockStage{
		name: "drift",
		issues: []cl.Issue{
			{Severity: cl.SeverityWarning, Code: cl.IssueTypeNotSupported, Kind: cl.KindSchemaDrift},
		},
	}
	pipeline.Register(StageIDDrift, stage, WithPriority(PriorityDrift))

	result, err := pipeline.Execute(context.Background(), newTestContext())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if len(result.Issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(result.Issues))
	}
	issue := result.Issues[0]
	if issue.Stage != "drift" {
		t.Errorf("Stage = %q; want drift", issue.Stage)
	}
	if issue.Codelist != "test" {
		t.Errorf("Codelist = %q; want test", issue.Codelist)
	}
	if issue.RunID != "run-1" {
		t.Errorf("RunID = %q; want run-1", issue.RunID)
	}
}

func TestPipeline_ErrorAborts(t *testing.T) {
	pipeline := NewPipeline(nil)

	boom := errors.New("boom")
	first := &mockStage{name: "aggregate", err: boom}
	second := &mockStage{name: "project"}

	pipeline.Register(StageIDAggregate, first, WithPriority(PriorityAggregate))
	pipeline.Register(StageIDProject, second, WithPriority(PriorityProject))

	_, err := pipeline.Execute(context.Background(), newTestContext())
	if !errors.Is(err, boom) {
		t.Fatalf("Execute() error = %v; want %v", err, boom)
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != "aggregate" {
		t.Errorf("error %v is not a StageError for aggregate", err)
	}
	if second.executions.Load() != 0 {
		t.Error("stage after a failed stage should not run")
	}
	if pipeline.Metrics().RunsFailed() != 1 {
		t.Errorf("RunsFailed() = %d; want 1", pipeline.Metrics().RunsFailed())
	}
}

func TestPipeline_DisableStage(t *testing.T) {
	pipeline := NewPipeline(nil)

	required := &mockStage{name: "aggregate"}
	optional := &mockStage{name: "drift"}

	pipeline.Register(StageIDAggregate, required, WithPriority(PriorityAggregate), WithRequired(true))
	pipeline.Register(StageIDDrift, optional, WithPriority(PriorityDrift))

	pipeline.Disable(StageIDDrift)
	pipeline.Disable(StageIDAggregate)

	if pipeline.StageCount() != 1 {
		t.Fatalf("StageCount() = %d; want 1", pipeline.StageCount())
	}

	if _, err := pipeline.Execute(context.Background(), newTestContext()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if optional.executions.Load() != 0 {
		t.Error("disabled stage should not run")
	}
	if required.executions.Load() != 1 {
		t.Error("required stage should run")
	}

	pipeline.Enable(StageIDDrift)
	if pipeline.StageCount() != 2 {
		t.Errorf("StageCount() after Enable = %d; want 2", pipeline.StageCount())
	}
}

func TestPipeline_Cancelled(t *testing.T) {
	pipeline := NewPipeline(nil)

	stage := &mockStage{name: "aggregate"}
	pipeline.Register(StageIDAggregate, stage, WithPriority(PriorityAggregate))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pipeline.Execute(ctx, newTestContext())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute() error = %v; want context.Canceled", err)
	}
	if stage.executions.Load() != 0 {
		t.Error("stage should not run on a cancelled context")
	}
}

func TestPipeline_StageTimeout(t *testing.T) {
	pipeline := NewPipeline(&Options{
		StageTimeout:   10 * time.Millisecond,
		CollectMetrics: true,
	})

	slow := &mockStage{name: "slow", delay: time.Second}
	pipeline.Register(StageIDAggregate, slow, WithPriority(PriorityAggregate))

	_, err := pipeline.Execute(context.Background(), newTestContext())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Execute() error = %v; want DeadlineExceeded", err)
	}
}

func TestPipeline_Metrics(t *testing.T) {
	pipeline := NewPipeline(nil)

	pipeline.Register(StageIDDrift, &mockStage{
		name:   "drift",
		issues: []cl.Issue{{Severity: cl.SeverityWarning}},
	}, WithPriority(PriorityDrift))

	for i := 0; i < 3; i++ {
		if _, err := pipeline.Execute(context.Background(), newTestContext()); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}

	m := pipeline.Metrics()
	if m.RunsTotal() != 3 {
		t.Errorf("RunsTotal() = %d; want 3", m.RunsTotal())
	}
	if m.WarningsTotal() != 3 {
		t.Errorf("WarningsTotal() = %d; want 3", m.WarningsTotal())
	}
	stats, ok := m.StageStats("drift")
	if !ok || stats.Invocations != 3 {
		t.Errorf("StageStats(drift) = %+v, %v; want 3 invocations", stats, ok)
	}
}

func TestConditionalStage(t *testing.T) {
	inner := &mockStage{name: "synonyms"}
	stage := NewConditionalStage(inner, func(rctx *Context) bool {
		return rctx.Rules.DeclaresSynonyms()
	})

	if stage.Name() != "synonyms" {
		t.Errorf("Name() = %q; want synonyms", stage.Name())
	}

	if _, err := stage.Run(context.Background(), newTestContext()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if inner.executions.Load() != 0 {
		t.Error("condition false: inner stage should not run")
	}

	rctx := newTestContext()
	rctx.Rules.MultiValued = []string{"synonymCode"}
	if _, err := stage.Run(context.Background(), rctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if inner.executions.Load() != 1 {
		t.Error("condition true: inner stage should run once")
	}
}

func TestNewContext(t *testing.T) {
	rctx := NewContext(&rules.Codelist{Name: "dosageForm"}, nil)
	if rctx.Codelist() != "dosageForm" {
		t.Errorf("Codelist() = %q; want dosageForm", rctx.Codelist())
	}
	if rctx.Options == nil || !rctx.Options.DetectDrift {
		t.Error("NewContext should carry default options")
	}

	var empty Context
	if empty.Codelist() != "" {
		t.Errorf("Codelist() on empty context = %q; want empty", empty.Codelist())
	}
}
