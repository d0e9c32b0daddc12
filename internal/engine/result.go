package engine

import (
	"time"

	xerrors "DataWalker/internal/errors"
)

// ErrorRecord 把一次步骤失败固化为数据。
// 任何执行期错误都不会越过引擎边界向上抛出。
type ErrorRecord struct {
	Kind    xerrors.Code `json:"kind"`
	Message string       `json:"message"`
}

// StepResult 是一个步骤执行完毕后产出的不可变结果。
// 每个被尝试的步骤恰好产出一次；因依赖未满足而跳过的步骤
// 记为失败而不是缺失。
type StepResult struct {
	StepID     int            `json:"step_id"`
	ModuleID   string         `json:"module_id"`
	SourceID   string         `json:"source_id"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Success    bool           `json:"success"`
	Payload    any            `json:"payload,omitempty"`
	Insights   []string       `json:"insights,omitempty"`
	Elapsed    time.Duration  `json:"elapsed"`
	Error      *ErrorRecord   `json:"error,omitempty"`
}

// Failed 返回带错误记录的失败结果。
func (r *StepResult) fail(kind xerrors.Code, message string) {
	r.Success = false
	r.Error = &ErrorRecord{Kind: kind, Message: message}
}
