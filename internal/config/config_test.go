package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "walker.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected address: %s", cfg.Server.Address)
	}
	if cfg.Storage.RunStore.Driver != "memory" || cfg.Queue.Driver != "memory" {
		t.Fatalf("unexpected drivers: %+v %+v", cfg.Storage.RunStore, cfg.Queue)
	}
	if cfg.Walker.MaxStrategies != 5 || cfg.Walker.WorkerCount != 4 || cfg.Walker.MaxRetries != 3 {
		t.Fatalf("unexpected walker defaults: %+v", cfg.Walker)
	}
	if cfg.Walker.StepTimeout() != 30*time.Second {
		t.Fatalf("unexpected step timeout: %v", cfg.Walker.StepTimeout())
	}
	if cfg.Runtime.DataDir != filepath.Join(filepath.Dir(path), "data") {
		t.Fatalf("unexpected data dir: %s", cfg.Runtime.DataDir)
	}
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	path := writeConfig(t, `{
  "registry": {"modules_file": "modules.yaml", "sources_file": "/abs/sources.yaml"},
  "catalog": {"config_file": "catalog.yaml"}
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	base := filepath.Dir(path)
	if cfg.Registry.ModulesFile != filepath.Join(base, "modules.yaml") {
		t.Fatalf("relative modules file not resolved: %s", cfg.Registry.ModulesFile)
	}
	if cfg.Registry.SourcesFile != "/abs/sources.yaml" {
		t.Fatalf("absolute path must stay untouched: %s", cfg.Registry.SourcesFile)
	}
	if cfg.Catalog.ConfigFile != filepath.Join(base, "catalog.yaml") {
		t.Fatalf("relative catalog file not resolved: %s", cfg.Catalog.ConfigFile)
	}
}

func TestLoadFallsBackToEnv(t *testing.T) {
	path := writeConfig(t, `{"server": {"address": ":9090"}}`)
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load via env: %v", err)
	}
	if cfg.Server.Address != ":9090" {
		t.Fatalf("unexpected address: %s", cfg.Server.Address)
	}

	t.Setenv(EnvConfigPath, "")
	if _, err := Load(""); err == nil {
		t.Fatal("empty path must fail")
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := writeConfig(t, `{"server":`)
	if _, err := Load(path); err == nil {
		t.Fatal("malformed json must fail")
	}
}
