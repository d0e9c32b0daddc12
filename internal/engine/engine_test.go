package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	xerrors "DataWalker/internal/errors"
	"DataWalker/internal/plan"
	"DataWalker/internal/registry"
	"DataWalker/pkg/capability"
)

// stubModule 以可编程的行为实现模块接口。
type stubModule struct {
	insights []string
	payload  any
	err      error
	latency  time.Duration
	panics   bool
}

func (m *stubModule) Declare() registry.ModuleDescriptor {
	return registry.ModuleDescriptor{ID: "stub"}
}

func (m *stubModule) Execute(ctx context.Context, _ map[string]any, _ *capability.Context) (*capability.Output, error) {
	if m.panics {
		panic("boom")
	}
	if m.latency > 0 {
		select {
		case <-time.After(m.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &capability.Output{Payload: m.payload, Insights: m.insights}, nil
}

// stubResolver 按模块 ID 返回预设实例并统计解析次数。
type stubResolver struct {
	modules  map[string]capability.Module
	failures map[string]error
	resolved atomic.Int32
	latency  time.Duration
}

func (r *stubResolver) Resolve(id string) (capability.Module, error) {
	r.resolved.Add(1)
	if r.latency > 0 {
		time.Sleep(r.latency)
	}
	if err, ok := r.failures[id]; ok {
		return nil, err
	}
	mod, ok := r.modules[id]
	if !ok {
		return nil, fmt.Errorf("unknown module %s", id)
	}
	return mod, nil
}

func testRegistry(t *testing.T, sourceIDs ...string) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for _, id := range sourceIDs {
		if err := reg.RegisterSource(registry.DataSourceDescriptor{
			ID:              id,
			Kind:            "csv",
			AvailableFields: []string{"date", "sales"},
		}); err != nil {
			t.Fatalf("register source %s: %v", id, err)
		}
	}
	return reg
}

func step(id int, module, source string, deps ...int) plan.ExecutionStep {
	return plan.ExecutionStep{
		StepID:    id,
		ModuleID:  module,
		SourceID:  source,
		DependsOn: deps,
	}
}

func errKind(t *testing.T, r StepResult) xerrors.Code {
	t.Helper()
	if r.Error == nil {
		t.Fatalf("step %d: expected error record, got none", r.StepID)
	}
	return r.Error.Kind
}

func TestExecuteResultsMatchPlanOrder(t *testing.T) {
	resolver := &stubResolver{modules: map[string]capability.Module{
		"describe": &stubModule{insights: []string{"洞察一"}},
		"trend":    &stubModule{insights: []string{"洞察二"}},
	}}
	e := New(resolver, testRegistry(t, "s1"))

	p := &plan.Plan{Steps: []plan.ExecutionStep{
		step(1, "describe", "s1"),
		step(2, "trend", "s1"),
	}}
	results := e.Execute(context.Background(), p)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].StepID != 1 || results[1].StepID != 2 {
		t.Fatalf("results must follow plan order: %d, %d", results[0].StepID, results[1].StepID)
	}
	for _, r := range results {
		if !r.Success {
			t.Fatalf("step %d failed unexpectedly: %+v", r.StepID, r.Error)
		}
	}
}

func TestExecuteDependencySkip(t *testing.T) {
	resolver := &stubResolver{modules: map[string]capability.Module{
		"broken": &stubModule{err: errors.New("数据读取失败")},
		"trend":  &stubModule{insights: []string{"ok"}},
		"other":  &stubModule{insights: []string{"ok"}},
	}}
	e := New(resolver, testRegistry(t, "s1"))

	p := &plan.Plan{Steps: []plan.ExecutionStep{
		step(1, "broken", "s1"),
		step(2, "trend", "s1", 1),
		step(3, "other", "s1"),
	}}
	results := e.Execute(context.Background(), p)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Success {
		t.Fatal("step 1 should fail")
	}
	if got := errKind(t, results[0]); got != xerrors.CodeInvocationError {
		t.Fatalf("step 1: expected INVOCATION_ERROR, got %s", got)
	}
	if results[1].Success {
		t.Fatal("step 2 should be skipped")
	}
	if got := errKind(t, results[1]); got != xerrors.CodeDependencySkipped {
		t.Fatalf("step 2: expected DEPENDENCY_SKIPPED, got %s", got)
	}
	if !results[2].Success {
		t.Fatalf("independent step 3 should succeed: %+v", results[2].Error)
	}
}

func TestExecuteTransitiveSkip(t *testing.T) {
	resolver := &stubResolver{
		modules:  map[string]capability.Module{"ok": &stubModule{}},
		failures: map[string]error{"broken": errors.New("no factory")},
	}
	e := New(resolver, testRegistry(t, "s1"))

	p := &plan.Plan{Steps: []plan.ExecutionStep{
		step(1, "broken", "s1"),
		step(2, "ok", "s1", 1),
		step(3, "ok", "s1", 2),
	}}
	results := e.Execute(context.Background(), p)
	if got := errKind(t, results[0]); got != xerrors.CodeInstantiationFailure {
		t.Fatalf("step 1: expected INSTANTIATION_FAILURE, got %s", got)
	}
	if got := errKind(t, results[1]); got != xerrors.CodeDependencySkipped {
		t.Fatalf("step 2: expected DEPENDENCY_SKIPPED, got %s", got)
	}
	if got := errKind(t, results[2]); got != xerrors.CodeDependencySkipped {
		t.Fatalf("step 3: expected DEPENDENCY_SKIPPED, got %s", got)
	}
}

func TestExecuteSingleInstantiationUnderConcurrency(t *testing.T) {
	resolver := &stubResolver{
		modules: map[string]capability.Module{"describe": &stubModule{}},
		latency: 20 * time.Millisecond,
	}
	e := New(resolver, testRegistry(t, "s1"), WithWorkerCount(8))

	steps := make([]plan.ExecutionStep, 0, 8)
	for i := 1; i <= 8; i++ {
		steps = append(steps, step(i, "describe", "s1"))
	}
	results := e.Execute(context.Background(), &plan.Plan{Steps: steps})
	for _, r := range results {
		if !r.Success {
			t.Fatalf("step %d failed: %+v", r.StepID, r.Error)
		}
	}
	if got := resolver.resolved.Load(); got != 1 {
		t.Fatalf("expected exactly one instantiation, got %d", got)
	}
}

func TestExecuteInstanceCacheSurvivesExecutions(t *testing.T) {
	resolver := &stubResolver{modules: map[string]capability.Module{"describe": &stubModule{}}}
	e := New(resolver, testRegistry(t, "s1"))

	p := &plan.Plan{Steps: []plan.ExecutionStep{step(1, "describe", "s1")}}
	e.Execute(context.Background(), p)
	e.Execute(context.Background(), p)
	if got := resolver.resolved.Load(); got != 1 {
		t.Fatalf("instance cache should span executions, resolved %d times", got)
	}
}

func TestExecuteFailedInstantiationNotRetriedWithinExecution(t *testing.T) {
	resolver := &stubResolver{failures: map[string]error{"broken": errors.New("no factory")}}
	e := New(resolver, testRegistry(t, "s1"), WithWorkerCount(1))

	p := &plan.Plan{Steps: []plan.ExecutionStep{
		step(1, "broken", "s1"),
		step(2, "broken", "s1"),
	}}
	results := e.Execute(context.Background(), p)
	for _, r := range results {
		if got := errKind(t, r); got != xerrors.CodeInstantiationFailure {
			t.Fatalf("step %d: expected INSTANTIATION_FAILURE, got %s", r.StepID, got)
		}
	}
	if got := resolver.resolved.Load(); got != 1 {
		t.Fatalf("failed instantiation must not be retried within one execution, resolved %d times", got)
	}
}

func TestExecuteStepTimeout(t *testing.T) {
	resolver := &stubResolver{modules: map[string]capability.Module{
		"slow": &stubModule{latency: 500 * time.Millisecond},
	}}
	e := New(resolver, testRegistry(t, "s1"), WithStepTimeout(30*time.Millisecond))

	p := &plan.Plan{Steps: []plan.ExecutionStep{step(1, "slow", "s1")}}
	results := e.Execute(context.Background(), p)
	if results[0].Success {
		t.Fatal("expected timeout failure")
	}
	if got := errKind(t, results[0]); got != xerrors.CodeInvocationTimeout {
		t.Fatalf("expected INVOCATION_TIMEOUT, got %s", got)
	}
}

func TestExecuteCancellation(t *testing.T) {
	resolver := &stubResolver{modules: map[string]capability.Module{
		"slow": &stubModule{latency: time.Second},
	}}
	e := New(resolver, testRegistry(t, "s1"), WithWorkerCount(1))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	p := &plan.Plan{Steps: []plan.ExecutionStep{
		step(1, "slow", "s1"),
		step(2, "slow", "s1"),
		step(3, "slow", "s1"),
	}}
	results := e.Execute(ctx, p)
	if len(results) != 3 {
		t.Fatalf("expected 3 results even when cancelled, got %d", len(results))
	}
	cancelled := 0
	for _, r := range results {
		if r.Success {
			t.Fatalf("step %d should not succeed after cancellation", r.StepID)
		}
		if r.Error != nil && r.Error.Kind == xerrors.CodeCancelled {
			cancelled++
		}
	}
	if cancelled == 0 {
		t.Fatal("expected at least one CANCELLED step")
	}
}

func TestExecutePanicBecomesInvocationError(t *testing.T) {
	resolver := &stubResolver{modules: map[string]capability.Module{
		"explosive": &stubModule{panics: true},
	}}
	e := New(resolver, testRegistry(t, "s1"))

	p := &plan.Plan{Steps: []plan.ExecutionStep{step(1, "explosive", "s1")}}
	results := e.Execute(context.Background(), p)
	if got := errKind(t, results[0]); got != xerrors.CodeInvocationError {
		t.Fatalf("expected INVOCATION_ERROR from panic, got %s", got)
	}
}

func TestExecuteUnknownSource(t *testing.T) {
	resolver := &stubResolver{modules: map[string]capability.Module{"describe": &stubModule{}}}
	e := New(resolver, testRegistry(t, "s1"))

	p := &plan.Plan{Steps: []plan.ExecutionStep{step(1, "describe", "ghost")}}
	results := e.Execute(context.Background(), p)
	if got := errKind(t, results[0]); got != xerrors.CodeInvocationError {
		t.Fatalf("expected INVOCATION_ERROR for unknown source, got %s", got)
	}
}

func TestExecuteEmptyPlan(t *testing.T) {
	resolver := &stubResolver{}
	e := New(resolver, testRegistry(t))

	results := e.Execute(context.Background(), &plan.Plan{})
	if len(results) != 0 {
		t.Fatalf("expected no results for empty plan, got %d", len(results))
	}
}
