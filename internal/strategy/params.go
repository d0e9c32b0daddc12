package strategy

import (
	"sort"
	"strings"

	"DataWalker/internal/intent"
	"DataWalker/internal/registry"
)

// parameterCandidates 为一个 (模块, 数据源) 组合生成参数候选集。
//
// 每个参数的取值来源按优先级依次为：意图中的显式值、数据源元数据
// （字段名与参数语义匹配）、参数声明的默认值。布尔参数在既无显式值
// 也无默认值时产生 true/false 两个候选——这是刻意的扇出，不是错误。
func parameterCandidates(module registry.ModuleDescriptor, it intent.Intent, source registry.DataSourceDescriptor) []map[string]any {
	base := map[string]any{
		"data_source": source.ConnectionInfo,
	}
	for k, v := range it.Parameters {
		base[k] = v
	}

	candidates := []map[string]any{base}
	if len(module.ParameterSchema) == 0 {
		return candidates
	}

	// map 遍历顺序不确定，按参数名排序保证扇出顺序稳定。
	names := make([]string, 0, len(module.ParameterSchema))
	for name := range module.ParameterSchema {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := module.ParameterSchema[name]
		if _, ok := base[name]; ok {
			continue
		}

		if value, ok := sourceDerivedValue(name, spec, source); ok {
			for _, candidate := range candidates {
				candidate[name] = value
			}
			continue
		}

		if spec.Default != nil {
			for _, candidate := range candidates {
				candidate[name] = spec.Default
			}
			continue
		}

		if spec.Type == registry.ParamBoolean {
			fanned := make([]map[string]any, 0, len(candidates)*2)
			for _, candidate := range candidates {
				withTrue := cloneParams(candidate)
				withTrue[name] = true
				withFalse := cloneParams(candidate)
				withFalse[name] = false
				fanned = append(fanned, withTrue, withFalse)
			}
			candidates = fanned
		}
	}
	return candidates
}

// sourceDerivedValue 尝试从数据源元数据推导字符串参数的取值：
// 参数名去掉 _field/_column 后缀后，与字段名做精确或包含匹配。
func sourceDerivedValue(name string, spec registry.ParameterSpec, source registry.DataSourceDescriptor) (any, bool) {
	if spec.Type != registry.ParamString {
		return nil, false
	}
	stem := strings.TrimSuffix(strings.TrimSuffix(name, "_field"), "_column")
	if stem == name && !strings.HasSuffix(name, "_field") && !strings.HasSuffix(name, "_column") {
		// 没有字段语义后缀的参数不做推导，避免误配。
		return nil, false
	}
	for _, field := range source.AvailableFields {
		if field == stem {
			return field, true
		}
	}
	for _, field := range source.AvailableFields {
		if strings.Contains(field, stem) {
			return field, true
		}
	}
	return nil, false
}

func cloneParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

func containsFold(text, keyword string) bool {
	return strings.Contains(strings.ToLower(text), keyword)
}
