package plan

import (
	"fmt"

	xerrors "DataWalker/internal/errors"
	"DataWalker/internal/strategy"
)

// Planner 把排序后的策略集转换成带显式依赖的执行计划。
// 无状态，可安全复用。
type Planner struct{}

// NewPlanner 构造 Planner。
func NewPlanner() *Planner {
	return &Planner{}
}

// Plan 为每个策略生成一个步骤，按输入顺序分配递增的 step_id，
// 再把策略键形式的依赖解析为 step_id 并做稳定拓扑排序。
//
// 依赖引用了不在输入集中的策略时返回 ErrUnresolvedDependency，
// 依赖成环时返回 ErrCyclicPlan；两种情况都不产生部分计划。
// 同一策略键存在多个参数候选时，依赖解析到输入顺序中最早的那个步骤。
func (p *Planner) Plan(strategies []strategy.Strategy) (*Plan, error) {
	steps := make([]ExecutionStep, len(strategies))
	keyIndex := make(map[string]int, len(strategies))
	for i, s := range strategies {
		steps[i] = ExecutionStep{
			StepID:     i + 1,
			ModuleID:   s.ModuleID,
			SourceID:   s.SourceID,
			Parameters: s.Parameters,
		}
		if _, ok := keyIndex[s.Key()]; !ok {
			keyIndex[s.Key()] = i
		}
	}

	for i, s := range strategies {
		for _, dep := range s.Dependencies {
			target, ok := keyIndex[dep]
			if !ok {
				return nil, xerrors.Wrap(xerrors.CodeUnresolvedDependency, ErrUnresolvedDependency,
					fmt.Sprintf("策略 %s 依赖的 %s 不在本次输入中", s.Key(), dep))
			}
			if target == i {
				// 自依赖等价于环。
				return nil, xerrors.Wrap(xerrors.CodeCyclicPlan, ErrCyclicPlan,
					fmt.Sprintf("策略 %s 依赖自身", s.Key()))
			}
			steps[i].DependsOn = append(steps[i].DependsOn, steps[target].StepID)
		}
	}

	ordered, err := topoSort(steps)
	if err != nil {
		return nil, err
	}
	return &Plan{Steps: ordered}, nil
}

// topoSort 做 Kahn 拓扑排序。无依赖关系的步骤之间保持输入顺序（稳定）。
func topoSort(steps []ExecutionStep) ([]ExecutionStep, error) {
	n := len(steps)
	indexOf := make(map[int]int, n) // step_id -> 输入下标
	for i, s := range steps {
		indexOf[s.StepID] = i
	}

	indegree := make([]int, n)
	dependents := make([][]int, n)
	for i, s := range steps {
		for _, dep := range s.DependsOn {
			j := indexOf[dep]
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	ordered := make([]ExecutionStep, 0, n)
	emitted := make([]bool, n)
	for len(ordered) < n {
		// 每轮按输入顺序取第一个入度为零且未输出的步骤，保证稳定性。
		next := -1
		for i := 0; i < n; i++ {
			if !emitted[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next == -1 {
			return nil, xerrors.Wrap(xerrors.CodeCyclicPlan, ErrCyclicPlan,
				fmt.Sprintf("拓扑排序在输出 %d/%d 个步骤后停滞", len(ordered), n))
		}
		emitted[next] = true
		ordered = append(ordered, steps[next])
		for _, dependent := range dependents[next] {
			indegree[dependent]--
		}
	}
	return ordered, nil
}
