package modules

import (
	"context"
	"fmt"

	"DataWalker/internal/registry"
	"DataWalker/pkg/capability"
)

// DescribeModule 对数据源做描述性统计概览。
// 它不读取底层数据，只基于描述符与参数给出结构层面的结论。
type DescribeModule struct{}

// NewDescribe 创建描述性统计模块。
func NewDescribe() (capability.Module, error) {
	return &DescribeModule{}, nil
}

func (m *DescribeModule) Declare() registry.ModuleDescriptor {
	return registry.ModuleDescriptor{
		ID:          "describe",
		Name:        "描述性统计",
		Description: "对数据源字段做描述性统计与质量概览 statistical summary",
		SupportedSourceKinds: []string{
			"csv", "mysql", "sqlite",
		},
		RequiredFields: nil,
		ParameterSchema: map[string]registry.ParameterSpec{
			"target_column": {Type: registry.ParamString},
			"include_nulls": {Type: registry.ParamBoolean, Default: true},
			"sample_limit":  {Type: registry.ParamNumber, Default: 1000.0},
		},
	}
}

func (m *DescribeModule) Execute(ctx context.Context, params map[string]any, execCtx *capability.Context) (*capability.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fields := execCtx.Source.AvailableFields
	insights := []string{
		fmt.Sprintf("数据源 %s 共有 %d 个字段。", execCtx.Source.ID, len(fields)),
	}

	target, _ := params["target_column"].(string)
	if target != "" {
		if execCtx.Source.HasField(target) {
			insights = append(insights, fmt.Sprintf("字段 %s 可用于进一步分析。", target))
		} else {
			insights = append(insights, fmt.Sprintf("字段 %s 不存在，可能包含缺失值。", target))
		}
	}

	includeNulls, _ := params["include_nulls"].(bool)
	if includeNulls {
		insights = append(insights, "空值已纳入统计范围。")
	}

	payload := map[string]any{
		"source_id":     execCtx.Source.ID,
		"field_count":   len(fields),
		"fields":        fields,
		"visualization": nil,
	}
	return &capability.Output{Payload: payload, Insights: insights}, nil
}
