package capability

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
)

// Resolver resolves a module id to a fresh module instance.
type Resolver interface {
	Resolve(id string) (Module, error)
}

// Catalog maps module ids to factories. Built-in modules register their
// factories in code; external implementations are loaded from shared
// objects through a Loader. The catalog hands out new instances; caching
// belongs to the engine.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
	loader    Loader
}

// CatalogOption modifies the behaviour of a catalog instance.
type CatalogOption func(*Catalog)

// WithLoader overrides the default shared-object loader implementation.
func WithLoader(loader Loader) CatalogOption {
	return func(c *Catalog) {
		if loader != nil {
			c.loader = loader
		}
	}
}

// NewCatalog constructs an empty catalog.
func NewCatalog(opts ...CatalogOption) *Catalog {
	c := &Catalog{
		factories: make(map[string]Factory),
		loader:    GoPluginLoader{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register registers a factory for a module id.
func (c *Catalog) Register(id string, factory Factory) error {
	if id == "" {
		return errors.New("module id cannot be empty")
	}
	if factory == nil {
		return errors.New("module factory cannot be nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.factories[id]; exists {
		return fmt.Errorf("module %s already registered", id)
	}
	c.factories[id] = factory
	return nil
}

// Load loads an external module implementation from disk and registers it.
func (c *Catalog) Load(id string, path string) error {
	if path == "" {
		return errors.New("module path cannot be empty")
	}
	factory, err := c.loader.Load(path)
	if err != nil {
		return fmt.Errorf("load module from %s: %w", path, err)
	}
	return c.Register(id, factory)
}

// LoadConfigured loads every enabled external module from a CatalogConfig.
func (c *Catalog) LoadConfigured(cfg CatalogConfig) error {
	for id, moduleCfg := range cfg.Modules {
		if !moduleCfg.Enabled {
			continue
		}
		path := moduleCfg.Path
		if !filepath.IsAbs(path) && cfg.ModuleDir != "" {
			path = filepath.Join(cfg.ModuleDir, path)
		}
		if err := c.Load(id, path); err != nil {
			return err
		}
	}
	return nil
}

// Resolve creates a fresh instance of the module with the given id.
func (c *Catalog) Resolve(id string) (Module, error) {
	c.mu.RLock()
	factory, ok := c.factories[id]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("module %s not registered", id)
	}
	return factory()
}

// IDs returns the ids of all registered modules.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.factories))
	for id := range c.factories {
		ids = append(ids, id)
	}
	return ids
}
