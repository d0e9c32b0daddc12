package capability

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CatalogConfig describes which external module binaries to load.
type CatalogConfig struct {
	ModuleDir string                  `yaml:"moduleDir"`
	Modules   map[string]ModuleConfig `yaml:"modules"`
}

// ModuleConfig is the configuration block for a single external module.
type ModuleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoadCatalogConfig reads a YAML file into a CatalogConfig.
func LoadCatalogConfig(path string) (CatalogConfig, error) {
	var cfg CatalogConfig
	if path == "" {
		return cfg, errors.New("config path cannot be empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read catalog config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal catalog config: %w", err)
	}
	if cfg.Modules == nil {
		cfg.Modules = map[string]ModuleConfig{}
	}
	return cfg, nil
}

// Validate ensures the catalog configuration is internally consistent.
func (c CatalogConfig) Validate() error {
	for id, module := range c.Modules {
		if id == "" {
			return errors.New("module id cannot be empty")
		}
		if module.Enabled && module.Path == "" {
			return fmt.Errorf("module %s path cannot be empty when enabled", id)
		}
	}
	return nil
}
