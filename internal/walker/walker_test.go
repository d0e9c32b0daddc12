package walker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	xerrors "DataWalker/internal/errors"
	"DataWalker/internal/intent"
	"DataWalker/internal/registry"
	"DataWalker/pkg/capability"
)

// fakeModule 返回固定的洞察与载荷。
type fakeModule struct {
	id       string
	payload  any
	insights []string
	err      error
}

func (m *fakeModule) Declare() registry.ModuleDescriptor {
	return registry.ModuleDescriptor{ID: m.id}
}

func (m *fakeModule) Execute(ctx context.Context, _ map[string]any, _ *capability.Context) (*capability.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}
	return &capability.Output{Payload: m.payload, Insights: m.insights}, nil
}

type fakeResolver struct {
	modules map[string]capability.Module
}

func (r *fakeResolver) Resolve(id string) (capability.Module, error) {
	mod, ok := r.modules[id]
	if !ok {
		return nil, fmt.Errorf("unknown module %s", id)
	}
	return mod, nil
}

func analysisRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	mods := []registry.ModuleDescriptor{
		{
			ID:                   "describe",
			Name:                 "描述性统计",
			Description:          "statistical summary analysis",
			SupportedSourceKinds: []string{"csv"},
		},
		{
			ID:                   "trend",
			Name:                 "趋势分析",
			Description:          "trend analysis over time",
			SupportedSourceKinds: []string{"csv"},
			RequiredFields:       []string{"date"},
		},
	}
	for _, m := range mods {
		if err := reg.RegisterModule(m); err != nil {
			t.Fatalf("register module: %v", err)
		}
	}
	if err := reg.RegisterSource(registry.DataSourceDescriptor{
		ID:              "sales_csv",
		Kind:            "csv",
		AvailableFields: []string{"date", "sales"},
		ConnectionInfo:  "data/sales.csv",
	}); err != nil {
		t.Fatalf("register source: %v", err)
	}
	return reg
}

func TestRunCycleEndToEnd(t *testing.T) {
	reg := analysisRegistry(t)
	resolver := &fakeResolver{modules: map[string]capability.Module{
		"describe": &fakeModule{
			id:       "describe",
			payload:  map[string]any{"field_count": 2, "visualization": nil},
			insights: []string{"数据源共有 2 个字段。", "字段 sales 存在缺失值"},
		},
		"trend": &fakeModule{
			id:       "trend",
			payload:  map[string]any{"visualization": map[string]any{"chart_type": "line"}},
			insights: []string{"销量整体呈上升趋势。"},
		},
	}}

	w := New(reg, resolver)
	cycle, err := w.RunCycle(context.Background(), intent.Intent{
		Action: "analyze",
		Target: "trend_analysis",
	})
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	if !cycle.Outcome.OverallSuccess {
		t.Fatalf("expected overall success: %+v", cycle.Outcome)
	}
	if len(cycle.Outcome.Results) != 2 {
		t.Fatalf("expected 2 step results, got %d", len(cycle.Outcome.Results))
	}
	if len(cycle.Outcome.Insights) != 3 {
		t.Fatalf("expected merged insights from both modules, got %v", cycle.Outcome.Insights)
	}

	// describe 的空 visualization 键与缺失值洞察各触发一条后续意图。
	if len(cycle.Followups) != 2 {
		t.Fatalf("expected 2 followups, got %+v", cycle.Followups)
	}
}

func TestRunCycleInvalidIntent(t *testing.T) {
	w := New(analysisRegistry(t), &fakeResolver{})

	_, err := w.RunCycle(context.Background(), intent.Intent{Target: "x"})
	if err == nil {
		t.Fatal("expected validation error for missing action")
	}
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %s", xerrors.CodeOf(err))
	}

	_, err = w.RunCycle(context.Background(), intent.Intent{Action: "analyze"})
	if err == nil {
		t.Fatal("expected validation error for missing target")
	}
}

func TestRunCycleNoCompatibleCombination(t *testing.T) {
	reg := registry.New()
	if err := reg.RegisterModule(registry.ModuleDescriptor{
		ID:                   "trend",
		SupportedSourceKinds: []string{"csv"},
		RequiredFields:       []string{"date"},
	}); err != nil {
		t.Fatalf("register module: %v", err)
	}
	if err := reg.RegisterSource(registry.DataSourceDescriptor{
		ID:              "orders_db",
		Kind:            "mysql",
		AvailableFields: []string{"amount"},
	}); err != nil {
		t.Fatalf("register source: %v", err)
	}

	w := New(reg, &fakeResolver{})
	cycle, err := w.RunCycle(context.Background(), intent.Intent{Action: "analyze", Target: "trend"})
	if err != nil {
		t.Fatalf("empty strategy set is not an error: %v", err)
	}
	if cycle.Outcome.OverallSuccess {
		t.Fatal("no executable strategy should not be successful")
	}
	if len(cycle.Outcome.Results) != 0 {
		t.Fatalf("expected no results, got %d", len(cycle.Outcome.Results))
	}
	if cycle.Outcome.Summary != "没有可执行的分析策略。" {
		t.Fatalf("unexpected summary: %s", cycle.Outcome.Summary)
	}
}

func TestRunCycleExecutionFailureStaysInResults(t *testing.T) {
	reg := analysisRegistry(t)
	resolver := &fakeResolver{modules: map[string]capability.Module{
		"describe": &fakeModule{id: "describe", err: errors.New("读取数据失败")},
		"trend":    &fakeModule{id: "trend", err: errors.New("读取数据失败")},
	}}

	w := New(reg, resolver)
	cycle, err := w.RunCycle(context.Background(), intent.Intent{Action: "analyze", Target: "analysis"})
	if err != nil {
		t.Fatalf("execution failures must not fail the cycle: %v", err)
	}
	if cycle.Outcome.OverallSuccess {
		t.Fatal("all steps failed, outcome should not be successful")
	}
	for _, r := range cycle.Outcome.Results {
		if r.Success {
			t.Fatalf("step %d should have failed", r.StepID)
		}
		if r.Error == nil {
			t.Fatalf("step %d missing error record", r.StepID)
		}
	}
}

func TestRunCycleWithUnsatisfiableExecutionOrder(t *testing.T) {
	reg := registry.New()
	// describe 需要的字段不存在，执行顺序中的前置组合不会产出策略。
	if err := reg.RegisterModule(registry.ModuleDescriptor{
		ID:                   "describe",
		SupportedSourceKinds: []string{"csv"},
		RequiredFields:       []string{"missing"},
	}); err != nil {
		t.Fatalf("register module: %v", err)
	}
	if err := reg.RegisterModule(registry.ModuleDescriptor{
		ID:                   "trend",
		Description:          "trend analysis",
		SupportedSourceKinds: []string{"csv"},
	}); err != nil {
		t.Fatalf("register module: %v", err)
	}
	if err := reg.RegisterSource(registry.DataSourceDescriptor{
		ID:              "sales_csv",
		Kind:            "csv",
		AvailableFields: []string{"date", "sales"},
	}); err != nil {
		t.Fatalf("register source: %v", err)
	}

	resolver := &fakeResolver{modules: map[string]capability.Module{
		"trend": &fakeModule{id: "trend", insights: []string{"趋势"}},
	}}
	w := New(reg, resolver)
	cycle, err := w.RunCycle(context.Background(), intent.Intent{
		Action: "analyze",
		Target: "analysis",
		Requirements: &intent.Requirements{
			ExecutionOrder: []string{"describe", "trend"},
		},
	})
	if err != nil {
		t.Fatalf("missing order predecessor must not abort the cycle: %v", err)
	}
	if len(cycle.Outcome.Results) != 1 || cycle.Outcome.Results[0].ModuleID != "trend" {
		t.Fatalf("expected trend to run alone, got %+v", cycle.Outcome.Results)
	}
	if !cycle.Outcome.OverallSuccess {
		t.Fatalf("expected success: %+v", cycle.Outcome)
	}
}

func TestRunCycleHonorsModulesNeeded(t *testing.T) {
	reg := analysisRegistry(t)
	resolver := &fakeResolver{modules: map[string]capability.Module{
		"trend": &fakeModule{id: "trend", insights: []string{"趋势"}},
	}}

	w := New(reg, resolver)
	cycle, err := w.RunCycle(context.Background(), intent.Intent{
		Action: "analyze",
		Target: "analysis",
		Requirements: &intent.Requirements{
			ModulesNeeded: []string{"trend"},
		},
	})
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if len(cycle.Outcome.Results) != 1 {
		t.Fatalf("expected only the requested module, got %d results", len(cycle.Outcome.Results))
	}
	if cycle.Outcome.Results[0].ModuleID != "trend" {
		t.Fatalf("expected trend, got %s", cycle.Outcome.Results[0].ModuleID)
	}
}
