package intent

// Intent 是外部意图识别协作方产出的结构化意图记录。
// 本核心不解析自由文本；DescriptiveText 只用于关键词匹配打分。
type Intent struct {
	Action          string         `json:"action,omitempty"`
	Target          string         `json:"target"`
	DescriptiveText string         `json:"descriptive_text,omitempty"`
	Parameters      map[string]any `json:"parameters,omitempty"`
	Flags           map[string]any `json:"flags,omitempty"`
	Requirements    *Requirements  `json:"analysis_requirements,omitempty"`
}

// Requirements 声明意图对模块集合与执行顺序的要求。
// ExecutionOrder 中前后相邻的模块形成执行依赖。
type Requirements struct {
	ModulesNeeded  []string `json:"modules_needed,omitempty"`
	ExecutionOrder []string `json:"execution_order,omitempty"`
}

// Clone 返回意图的深拷贝，参数与标记均复制。
func (it Intent) Clone() Intent {
	dup := it
	dup.Parameters = cloneMap(it.Parameters)
	dup.Flags = cloneMap(it.Flags)
	if it.Requirements != nil {
		req := Requirements{
			ModulesNeeded:  append([]string(nil), it.Requirements.ModulesNeeded...),
			ExecutionOrder: append([]string(nil), it.Requirements.ExecutionOrder...),
		}
		dup.Requirements = &req
	}
	return dup
}

// Empty 判断意图是否没有任何可用信息。
func (it Intent) Empty() bool {
	return it.Target == "" && it.DescriptiveText == "" && len(it.Parameters) == 0
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
