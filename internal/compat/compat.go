package compat

import (
	"fmt"

	"DataWalker/internal/registry"
)

// Result 是一次兼容性判定的结果。
// 纯值类型，按需重算，不跨数据变更缓存。
type Result struct {
	Score         float64  `json:"score"`
	Passed        bool     `json:"passed"`
	MissingFields []string `json:"missing_fields,omitempty"`
	Reason        string   `json:"reason,omitempty"`
}

// Score 计算模块与数据源的兼容性。
//
// 评分规则是策略选择的一部分，必须逐字保持：
//   - 数据源类型不被支持时直接判负，得分 0.0；
//   - 必需字段未被完全覆盖时判负，得分为覆盖率的一半（部分学分，
//     上限低于通过线）；
//   - 必需字段全覆盖（或无必需字段）时判正，得分为
//     0.5 + 0.5 * 可选字段覆盖率，可选覆盖只影响排序，不决定通过。
//
// 纯函数，无副作用。
func Score(module registry.ModuleDescriptor, source registry.DataSourceDescriptor) Result {
	if !module.SupportsKind(source.Kind) {
		return Result{
			Score:         0.0,
			Passed:        false,
			MissingFields: append([]string(nil), module.RequiredFields...),
			Reason:        fmt.Sprintf("不支持数据源类型: %s", source.Kind),
		}
	}

	var missing []string
	for _, field := range module.RequiredFields {
		if !source.HasField(field) {
			missing = append(missing, field)
		}
	}

	if len(missing) > 0 {
		covered := len(module.RequiredFields) - len(missing)
		score := float64(covered) / float64(len(module.RequiredFields)) * 0.5
		return Result{
			Score:         score,
			Passed:        false,
			MissingFields: missing,
			Reason:        fmt.Sprintf("缺少必需字段: %v", missing),
		}
	}

	optionalCovered := 0
	for _, field := range module.OptionalFields {
		if source.HasField(field) {
			optionalCovered++
		}
	}
	optionalTotal := len(module.OptionalFields)
	if optionalTotal == 0 {
		optionalTotal = 1
	}
	score := 0.5 + 0.5*(float64(optionalCovered)/float64(optionalTotal))
	if score > 1.0 {
		score = 1.0
	}
	return Result{
		Score:  score,
		Passed: true,
		Reason: fmt.Sprintf("兼容，覆盖 %d 个可选字段", optionalCovered),
	}
}
