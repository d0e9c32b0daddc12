package aggregate

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"DataWalker/internal/engine"
	xerrors "DataWalker/internal/errors"
)

func okStep(id int, elapsed time.Duration, insights ...string) engine.StepResult {
	return engine.StepResult{
		StepID:   id,
		ModuleID: "m",
		SourceID: "s",
		Success:  true,
		Insights: insights,
		Elapsed:  elapsed,
	}
}

func failedStep(id int, elapsed time.Duration) engine.StepResult {
	return engine.StepResult{
		StepID:   id,
		ModuleID: "m",
		SourceID: "s",
		Elapsed:  elapsed,
		Error:    &engine.ErrorRecord{Kind: xerrors.CodeInvocationError, Message: "boom"},
	}
}

func TestAggregateOverallSuccess(t *testing.T) {
	a := New()

	mixed := a.Aggregate([]engine.StepResult{okStep(1, time.Second, "发现"), failedStep(2, time.Second)})
	if !mixed.OverallSuccess {
		t.Fatal("one success should make the outcome successful")
	}

	allFailed := a.Aggregate([]engine.StepResult{failedStep(1, 0), failedStep(2, 0)})
	if allFailed.OverallSuccess {
		t.Fatal("all failures should not be successful")
	}

	empty := a.Aggregate(nil)
	if empty.OverallSuccess {
		t.Fatal("empty result set should not be successful")
	}
}

func TestAggregateMergesInsightsInOrderWithDuplicates(t *testing.T) {
	a := New()

	outcome := a.Aggregate([]engine.StepResult{
		okStep(1, 0, "销量上升", "存在缺失值"),
		failedStep(2, 0),
		okStep(3, 0, "销量上升"),
	})
	want := []string{"销量上升", "存在缺失值", "销量上升"}
	if !reflect.DeepEqual(outcome.Insights, want) {
		t.Fatalf("expected insights %v, got %v", want, outcome.Insights)
	}
}

func TestAggregateSkipsFailedStepInsights(t *testing.T) {
	a := New()

	failed := failedStep(1, 0)
	failed.Insights = []string{"不应出现"}
	outcome := a.Aggregate([]engine.StepResult{failed, okStep(2, 0, "应出现")})
	if len(outcome.Insights) != 1 || outcome.Insights[0] != "应出现" {
		t.Fatalf("failed step insights must be excluded, got %v", outcome.Insights)
	}
}

func TestAggregateTotalElapsedIsSum(t *testing.T) {
	a := New()

	outcome := a.Aggregate([]engine.StepResult{
		okStep(1, 2*time.Second),
		failedStep(2, 3*time.Second),
	})
	if outcome.TotalElapsed != 5*time.Second {
		t.Fatalf("expected 5s total, got %v", outcome.TotalElapsed)
	}
}

func TestAggregateSummary(t *testing.T) {
	a := New()

	outcome := a.Aggregate([]engine.StepResult{okStep(1, 0, "发现一"), okStep(2, 0, "发现二")})
	if !strings.Contains(outcome.Summary, "成功执行了 2 个分析策略。") {
		t.Fatalf("unexpected summary: %s", outcome.Summary)
	}
	if !strings.Contains(outcome.Summary, "发现一") || !strings.Contains(outcome.Summary, "发现二") {
		t.Fatalf("summary should quote insights: %s", outcome.Summary)
	}
}

func TestAggregateSummaryInsightLimit(t *testing.T) {
	a := New(WithSummaryInsights(2))

	outcome := a.Aggregate([]engine.StepResult{okStep(1, 0, "一", "二", "三")})
	if !strings.Contains(outcome.Summary, "一") || !strings.Contains(outcome.Summary, "二") {
		t.Fatalf("summary should include first insights: %s", outcome.Summary)
	}
	if strings.Contains(outcome.Summary, "三") {
		t.Fatalf("summary should stop at the configured limit: %s", outcome.Summary)
	}
}

func TestAggregateAllFailedSummary(t *testing.T) {
	a := New()

	outcome := a.Aggregate([]engine.StepResult{failedStep(1, 0), failedStep(2, 0)})
	if outcome.Summary != "全部 2 个分析策略执行失败。" {
		t.Fatalf("unexpected summary: %s", outcome.Summary)
	}

	empty := a.Aggregate(nil)
	if empty.Summary != "没有可执行的分析策略。" {
		t.Fatalf("unexpected empty summary: %s", empty.Summary)
	}
}

func TestAggregateIsIdempotent(t *testing.T) {
	a := New()
	input := []engine.StepResult{okStep(1, time.Second, "发现"), failedStep(2, time.Second)}

	first := a.Aggregate(input)
	for i := 0; i < 5; i++ {
		again := a.Aggregate(input)
		if again.Summary != first.Summary ||
			again.OverallSuccess != first.OverallSuccess ||
			again.TotalElapsed != first.TotalElapsed ||
			!reflect.DeepEqual(again.Insights, first.Insights) {
			t.Fatalf("aggregation not idempotent: %+v vs %+v", again, first)
		}
	}
}
