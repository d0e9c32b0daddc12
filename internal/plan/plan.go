package plan

import xerrors "DataWalker/internal/errors"

// ExecutionStep 是规划器归一化之后的一个工作单元，
// 与模块内部实现完全无关。
type ExecutionStep struct {
	StepID     int            `json:"step_id"`
	ModuleID   string         `json:"module_id"`
	SourceID   string         `json:"source_id"`
	Parameters map[string]any `json:"parameters"`
	DependsOn  []int          `json:"depends_on,omitempty"`
}

// Plan 是一个依赖已解析、顺序已确定的执行计划。
// Steps 的排列是 DependsOn 偏序的一个合法拓扑序。
type Plan struct {
	Steps []ExecutionStep `json:"steps"`
}

// Len 返回计划中的步骤数量。
func (p *Plan) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Steps)
}

var (
	// ErrCyclicPlan 表示策略依赖存在环，无法构造计划。
	ErrCyclicPlan = xerrors.New(xerrors.CodeCyclicPlan, "策略依赖存在环")
	// ErrUnresolvedDependency 表示策略引用了不在本次输入中的依赖。
	ErrUnresolvedDependency = xerrors.New(xerrors.CodeUnresolvedDependency, "策略依赖无法解析")
)
