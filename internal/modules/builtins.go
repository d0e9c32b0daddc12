package modules

import (
	"DataWalker/internal/registry"
	"DataWalker/pkg/capability"
)

// RegisterBuiltins 把内置分析模块注册到目录和注册表中。
func RegisterBuiltins(cat *capability.Catalog, reg *registry.Registry) error {
	builtins := []capability.Factory{NewDescribe, NewTrend}
	for _, factory := range builtins {
		mod, err := factory()
		if err != nil {
			return err
		}
		desc := mod.Declare()
		if err := cat.Register(desc.ID, factory); err != nil {
			return err
		}
		if err := reg.RegisterModule(desc); err != nil {
			return err
		}
	}
	return nil
}
