package registry

import (
	"fmt"
	"sort"

	xerrors "DataWalker/internal/errors"
)

// Registry 持有全部模块与数据源的声明元数据。
// 启动阶段填充，之后只读；作为显式依赖注入给生成器、规划器和引擎，
// 而不是包级全局状态。
type Registry struct {
	modules map[string]ModuleDescriptor
	sources map[string]DataSourceDescriptor
}

// New 创建一个空的 Registry。
func New() *Registry {
	return &Registry{
		modules: make(map[string]ModuleDescriptor),
		sources: make(map[string]DataSourceDescriptor),
	}
}

// RegisterModule 注册一个模块声明。重复 ID 视为冲突。
func (r *Registry) RegisterModule(desc ModuleDescriptor) error {
	if desc.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "模块 ID 不能为空")
	}
	if _, ok := r.modules[desc.ID]; ok {
		return xerrors.New(xerrors.CodeConflict, fmt.Sprintf("模块 %s 已注册", desc.ID))
	}
	r.modules[desc.ID] = desc
	return nil
}

// RegisterSource 注册一个数据源声明。
func (r *Registry) RegisterSource(desc DataSourceDescriptor) error {
	if desc.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "数据源 ID 不能为空")
	}
	if _, ok := r.sources[desc.ID]; ok {
		return xerrors.New(xerrors.CodeConflict, fmt.Sprintf("数据源 %s 已注册", desc.ID))
	}
	r.sources[desc.ID] = desc
	return nil
}

// Module 按 ID 查找模块声明。
func (r *Registry) Module(id string) (ModuleDescriptor, bool) {
	desc, ok := r.modules[id]
	return desc, ok
}

// Source 按 ID 查找数据源声明。
func (r *Registry) Source(id string) (DataSourceDescriptor, bool) {
	desc, ok := r.sources[id]
	return desc, ok
}

// Modules 返回全部模块声明，按 ID 升序，保证遍历顺序确定。
func (r *Registry) Modules() []ModuleDescriptor {
	out := make([]ModuleDescriptor, 0, len(r.modules))
	for _, desc := range r.modules {
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Sources 返回全部数据源声明，按 ID 升序。
func (r *Registry) Sources() []DataSourceDescriptor {
	out := make([]DataSourceDescriptor, 0, len(r.sources))
	for _, desc := range r.sources {
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ModuleCount 返回已注册模块数量。
func (r *Registry) ModuleCount() int {
	return len(r.modules)
}

// SourceCount 返回已注册数据源数量。
func (r *Registry) SourceCount() int {
	return len(r.sources)
}
