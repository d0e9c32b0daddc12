package aggregate

import (
	"fmt"
	"strings"
	"time"

	"DataWalker/internal/engine"
)

const defaultSummaryInsights = 5

// Outcome 是一次执行周期的汇总结果。
type Outcome struct {
	OverallSuccess bool                `json:"overall_success"`
	Summary        string              `json:"summary"`
	Insights       []string            `json:"insights,omitempty"`
	Results        []engine.StepResult `json:"results"`
	TotalElapsed   time.Duration       `json:"total_elapsed"`
}

// Aggregator 把步骤结果合并为一个整体结论。纯函数，无副作用。
type Aggregator struct {
	summaryInsights int
}

// Option 配置聚合器。
type Option func(*Aggregator)

// WithSummaryInsights 设置摘要中引用的洞察条数上限。
func WithSummaryInsights(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.summaryInsights = n
		}
	}
}

// New 创建聚合器。
func New(opts ...Option) *Aggregator {
	a := &Aggregator{summaryInsights: defaultSummaryInsights}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate 汇总一组步骤结果。只要有一个步骤成功，整体即成功；
// 洞察按结果顺序合并且保留重复，耗时为各步骤耗时之和。
// 对同一输入重复调用产出相同结果。
func (a *Aggregator) Aggregate(results []engine.StepResult) Outcome {
	out := Outcome{Results: results}
	succeeded := 0
	for _, r := range results {
		out.TotalElapsed += r.Elapsed
		if !r.Success {
			continue
		}
		succeeded++
		out.Insights = append(out.Insights, r.Insights...)
	}
	out.OverallSuccess = succeeded > 0
	out.Summary = a.summarize(succeeded, len(results), out.Insights)
	return out
}

func (a *Aggregator) summarize(succeeded, total int, insights []string) string {
	if succeeded == 0 {
		if total == 0 {
			return "没有可执行的分析策略。"
		}
		return fmt.Sprintf("全部 %d 个分析策略执行失败。", total)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "成功执行了 %d 个分析策略。", succeeded)
	if len(insights) > 0 {
		b.WriteString("主要发现:")
		limit := a.summaryInsights
		if len(insights) < limit {
			limit = len(insights)
		}
		for _, ins := range insights[:limit] {
			b.WriteString(" ")
			b.WriteString(ins)
		}
	}
	return b.String()
}
