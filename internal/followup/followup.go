package followup

import (
	"strings"

	"DataWalker/internal/aggregate"
	"DataWalker/internal/intent"
)

// Generator 检查执行结果并提出后续分析意图。
// 规则是确定性的：相同的结果集合总是产出相同的意图列表。
type Generator struct{}

// New 创建后续意图生成器。
func New() *Generator {
	return &Generator{}
}

// Generate 依次应用所有规则，返回建议的后续意图。
// 没有命中任何规则时返回空切片。
func (g *Generator) Generate(outcome aggregate.Outcome) []intent.Intent {
	followups := make([]intent.Intent, 0, 2)
	if g.needsVisualization(outcome) {
		followups = append(followups, intent.Intent{
			Action: "visualize",
			Target: "data_visualization",
			Parameters: map[string]any{
				"chart_types": []string{"histogram", "scatter", "correlation"},
			},
		})
	}
	if g.needsCleaning(outcome) {
		followups = append(followups, intent.Intent{
			Action: "clean",
			Target: "data_cleaning",
			Parameters: map[string]any{
				"focus": "missing_values",
			},
		})
	}
	return followups
}

// needsVisualization 在任一成功步骤的载荷中存在空的
// "visualization" 键时成立：模块以此声明结果适合可视化
// 但自身没有产出图表。
func (g *Generator) needsVisualization(outcome aggregate.Outcome) bool {
	for _, r := range outcome.Results {
		if !r.Success {
			continue
		}
		payload, ok := r.Payload.(map[string]any)
		if !ok {
			continue
		}
		v, present := payload["visualization"]
		if !present {
			continue
		}
		if emptyVisualization(v) {
			return true
		}
	}
	return false
}

// emptyVisualization 判断可视化值是否为空。
// nil、空字符串、空 map、空切片都代表模块没有产出图表。
func emptyVisualization(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case map[string]any:
		return len(val) == 0
	case []any:
		return len(val) == 0
	}
	return false
}

// needsCleaning 在任一洞察提到缺失值时成立。
func (g *Generator) needsCleaning(outcome aggregate.Outcome) bool {
	for _, ins := range outcome.Insights {
		if strings.Contains(ins, "缺失值") {
			return true
		}
	}
	return false
}
