package capability

import (
	"errors"
	goplugin "plugin"
)

// Loader resolves module binaries into factories.
type Loader interface {
	Load(path string) (Factory, error)
}

// GoPluginLoader uses the Go standard library plugin mechanism to load
// analysis modules compiled as shared objects.
type GoPluginLoader struct{}

// Load opens the shared object and searches for a `Module` symbol that is
// either a Module value, a pointer to one, or a factory function.
func (GoPluginLoader) Load(path string) (Factory, error) {
	if path == "" {
		return nil, errors.New("module path cannot be empty")
	}
	so, err := goplugin.Open(path)
	if err != nil {
		return nil, err
	}
	symbol, err := so.Lookup("Module")
	if err != nil {
		return nil, err
	}
	switch m := symbol.(type) {
	case Module:
		return func() (Module, error) { return m, nil }, nil
	case *Module:
		if m == nil {
			return nil, errors.New("module symbol is nil")
		}
		return func() (Module, error) { return *m, nil }, nil
	case func() (Module, error):
		return Factory(m), nil
	case func() Module:
		return func() (Module, error) { return m(), nil }, nil
	default:
		return nil, errors.New("module symbol must implement capability.Module")
	}
}
