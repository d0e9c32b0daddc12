package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// modulesFile 对应 modules.yaml 的顶层结构。
type modulesFile struct {
	Modules []ModuleDescriptor `yaml:"modules"`
}

// sourcesFile 对应 sources.yaml 的顶层结构。
type sourcesFile struct {
	Sources []DataSourceDescriptor `yaml:"sources"`
}

// LoadModules 从 YAML 文件读取模块声明并注册。
func (r *Registry) LoadModules(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取模块声明文件失败: %w", err)
	}
	var file modulesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("解析模块声明失败: %w", err)
	}
	for _, desc := range file.Modules {
		if err := r.RegisterModule(desc); err != nil {
			return err
		}
	}
	return nil
}

// LoadSources 从 YAML 文件读取数据源声明并注册。
func (r *Registry) LoadSources(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取数据源声明文件失败: %w", err)
	}
	var file sourcesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("解析数据源声明失败: %w", err)
	}
	for _, desc := range file.Sources {
		if err := r.RegisterSource(desc); err != nil {
			return err
		}
	}
	return nil
}
