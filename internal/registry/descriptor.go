package registry

// ParameterSpec 描述模块的一个参数要求。
type ParameterSpec struct {
	Type     string `yaml:"type" json:"type"`
	Default  any    `yaml:"default,omitempty" json:"default,omitempty"`
	Required bool   `yaml:"required" json:"required"`
}

// 支持的参数类型。
const (
	ParamString  = "string"
	ParamNumber  = "number"
	ParamBoolean = "boolean"
)

// ModuleDescriptor 是一个分析模块的静态能力声明。
// 注册之后不再修改；进程启动时从配置载入，随进程销毁。
type ModuleDescriptor struct {
	ID                   string                   `yaml:"module_id" json:"module_id"`
	Name                 string                   `yaml:"module_name" json:"module_name"`
	Description          string                   `yaml:"description" json:"description"`
	SupportedSourceKinds []string                 `yaml:"supported_source_kinds" json:"supported_source_kinds"`
	RequiredFields       []string                 `yaml:"required_fields" json:"required_fields"`
	OptionalFields       []string                 `yaml:"optional_fields" json:"optional_fields"`
	ParameterSchema      map[string]ParameterSpec `yaml:"parameter_schema" json:"parameter_schema"`
}

// SupportsKind 判断模块是否支持给定的数据源类型。
// 空的支持列表表示不限类型。
func (m ModuleDescriptor) SupportsKind(kind string) bool {
	if len(m.SupportedSourceKinds) == 0 {
		return true
	}
	for _, k := range m.SupportedSourceKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// DataSourceDescriptor 描述一个可访问的数据资源。
// ConnectionInfo 由外部数据层持有，本核心绝不修改。
type DataSourceDescriptor struct {
	ID              string   `yaml:"id" json:"id"`
	Kind            string   `yaml:"kind" json:"kind"`
	AvailableFields []string `yaml:"available_fields" json:"available_fields"`
	ConnectionInfo  string   `yaml:"connection_info" json:"connection_info"`
}

// HasField 判断数据源是否暴露指定字段。
func (d DataSourceDescriptor) HasField(field string) bool {
	for _, f := range d.AvailableFields {
		if f == field {
			return true
		}
	}
	return false
}
