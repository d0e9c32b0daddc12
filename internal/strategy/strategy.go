package strategy

import (
	"fmt"

	"DataWalker/internal/compat"
)

// Strategy 是一个经过排序的候选：某个模块在某个数据源上的一次
// 参数化调用。生成之后不再修改，变更即产生新值。
type Strategy struct {
	ModuleID      string         `json:"module_id"`
	SourceID      string         `json:"source_id"`
	Parameters    map[string]any `json:"parameters"`
	Compatibility compat.Result  `json:"compatibility"`
	Priority      int            `json:"priority"`
	EstimatedCost float64        `json:"estimated_cost,omitempty"`
	Dependencies  []string       `json:"dependencies,omitempty"`
}

// Key 返回策略在同一次生成调用内的标识，用于依赖解析。
// 同一 (模块, 数据源) 组合的多个参数候选共享同一个键。
func (s Strategy) Key() string {
	return fmt.Sprintf("%s@%s", s.ModuleID, s.SourceID)
}
