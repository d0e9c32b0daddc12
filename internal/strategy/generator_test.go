package strategy

import (
	"testing"

	"DataWalker/internal/intent"
	"DataWalker/internal/registry"
)

// fixedMatcher 返回常数匹配度，隔离兼容性与参数信号。
type fixedMatcher struct {
	score float64
}

func (m fixedMatcher) Match(intent.Intent, registry.ModuleDescriptor) float64 {
	return m.score
}

func csvModule(id string, required []string) registry.ModuleDescriptor {
	return registry.ModuleDescriptor{
		ID:                   id,
		Name:                 id,
		Description:          "analysis module " + id,
		SupportedSourceKinds: []string{"csv"},
		RequiredFields:       required,
	}
}

func TestGenerateSingleCompatiblePair(t *testing.T) {
	g := NewGenerator()
	it := intent.Intent{Action: "analyze", Target: "sales_analysis"}

	modules := []registry.ModuleDescriptor{csvModule("m1", []string{"sales"})}
	sources := []registry.DataSourceDescriptor{
		{ID: "s1", Kind: "csv", AvailableFields: []string{"date", "sales"}, ConnectionInfo: "data/sales.csv"},
	}

	strategies := g.Generate(it, modules, sources, 0)
	if len(strategies) != 1 {
		t.Fatalf("expected exactly one strategy, got %d", len(strategies))
	}
	s := strategies[0]
	if s.ModuleID != "m1" || s.SourceID != "s1" {
		t.Fatalf("unexpected pair: %s@%s", s.ModuleID, s.SourceID)
	}
	if !s.Compatibility.Passed {
		t.Fatalf("expected passing compatibility: %+v", s.Compatibility)
	}
	if s.Parameters["data_source"] != "data/sales.csv" {
		t.Fatalf("expected connection info in parameters, got %v", s.Parameters["data_source"])
	}
}

func TestGenerateRemovesIncompatiblePairs(t *testing.T) {
	g := NewGenerator()
	it := intent.Intent{Action: "analyze", Target: "sales_analysis"}

	modules := []registry.ModuleDescriptor{csvModule("m1", []string{"sales"})}
	sources := []registry.DataSourceDescriptor{
		{ID: "s1", Kind: "csv", AvailableFields: []string{"date", "amount"}},
	}

	if strategies := g.Generate(it, modules, sources, 0); len(strategies) != 0 {
		t.Fatalf("expected no strategies for missing required field, got %d", len(strategies))
	}
}

func TestGenerateHonorsModulesNeeded(t *testing.T) {
	g := NewGenerator()
	it := intent.Intent{
		Action: "analyze",
		Target: "analysis",
		Requirements: &intent.Requirements{
			ModulesNeeded: []string{"m2"},
		},
	}

	modules := []registry.ModuleDescriptor{
		csvModule("m1", nil),
		csvModule("m2", nil),
	}
	sources := []registry.DataSourceDescriptor{
		{ID: "s1", Kind: "csv", AvailableFields: []string{"date"}},
	}

	strategies := g.Generate(it, modules, sources, 0)
	if len(strategies) != 1 || strategies[0].ModuleID != "m2" {
		t.Fatalf("expected only m2, got %+v", strategies)
	}
}

func TestGenerateDeterministicOrder(t *testing.T) {
	g := NewGenerator(WithMatcher(fixedMatcher{score: 0.5}))
	it := intent.Intent{Action: "analyze", Target: "analysis"}

	modules := []registry.ModuleDescriptor{
		csvModule("b", nil),
		csvModule("a", nil),
	}
	sources := []registry.DataSourceDescriptor{
		{ID: "s2", Kind: "csv", AvailableFields: []string{"x"}},
		{ID: "s1", Kind: "csv", AvailableFields: []string{"x"}},
	}

	first := g.Generate(it, modules, sources, 0)
	if len(first) != 4 {
		t.Fatalf("expected 4 strategies, got %d", len(first))
	}
	// 同优先级按 (module_id, source_id) 升序。
	wantOrder := []string{"a@s1", "a@s2", "b@s1", "b@s2"}
	for i, want := range wantOrder {
		if got := first[i].Key(); got != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, got)
		}
	}

	for i := 0; i < 5; i++ {
		again := g.Generate(it, modules, sources, 0)
		for j := range again {
			if again[j].Key() != first[j].Key() {
				t.Fatalf("order changed between runs at %d: %s vs %s", j, again[j].Key(), first[j].Key())
			}
		}
	}
}

func TestGenerateBooleanFanOut(t *testing.T) {
	g := NewGenerator()
	it := intent.Intent{Action: "analyze", Target: "analysis"}

	module := csvModule("m1", nil)
	module.ParameterSchema = map[string]registry.ParameterSpec{
		"include_nulls": {Type: registry.ParamBoolean},
	}
	sources := []registry.DataSourceDescriptor{
		{ID: "s1", Kind: "csv", AvailableFields: []string{"x"}},
	}

	strategies := g.Generate(it, []registry.ModuleDescriptor{module}, sources, 0)
	if len(strategies) != 2 {
		t.Fatalf("expected boolean fan-out into 2 strategies, got %d", len(strategies))
	}
	seen := map[bool]bool{}
	for _, s := range strategies {
		v, ok := s.Parameters["include_nulls"].(bool)
		if !ok {
			t.Fatalf("expected boolean parameter, got %v", s.Parameters["include_nulls"])
		}
		seen[v] = true
	}
	if !seen[true] || !seen[false] {
		t.Fatalf("expected both true and false candidates, got %v", seen)
	}
}

func TestGenerateBooleanDefaultSuppressesFanOut(t *testing.T) {
	g := NewGenerator()
	it := intent.Intent{Action: "analyze", Target: "analysis"}

	module := csvModule("m1", nil)
	module.ParameterSchema = map[string]registry.ParameterSpec{
		"include_nulls": {Type: registry.ParamBoolean, Default: true},
	}
	sources := []registry.DataSourceDescriptor{
		{ID: "s1", Kind: "csv", AvailableFields: []string{"x"}},
	}

	strategies := g.Generate(it, []registry.ModuleDescriptor{module}, sources, 0)
	if len(strategies) != 1 {
		t.Fatalf("expected single strategy when default exists, got %d", len(strategies))
	}
	if v, _ := strategies[0].Parameters["include_nulls"].(bool); !v {
		t.Fatalf("expected default true, got %v", strategies[0].Parameters["include_nulls"])
	}
}

func TestGenerateSourceDerivedParameter(t *testing.T) {
	g := NewGenerator()
	it := intent.Intent{Action: "analyze", Target: "analysis"}

	module := csvModule("m1", nil)
	module.ParameterSchema = map[string]registry.ParameterSpec{
		"value_column": {Type: registry.ParamString, Required: true},
	}
	sources := []registry.DataSourceDescriptor{
		{ID: "s1", Kind: "csv", AvailableFields: []string{"date", "value"}},
	}

	strategies := g.Generate(it, []registry.ModuleDescriptor{module}, sources, 0)
	if len(strategies) != 1 {
		t.Fatalf("expected one strategy, got %d", len(strategies))
	}
	if got := strategies[0].Parameters["value_column"]; got != "value" {
		t.Fatalf("expected value_column derived from source fields, got %v", got)
	}
}

func TestGenerateExplicitParameterWins(t *testing.T) {
	g := NewGenerator()
	it := intent.Intent{
		Action:     "analyze",
		Target:     "analysis",
		Parameters: map[string]any{"value_column": "amount"},
	}

	module := csvModule("m1", nil)
	module.ParameterSchema = map[string]registry.ParameterSpec{
		"value_column": {Type: registry.ParamString, Required: true},
	}
	sources := []registry.DataSourceDescriptor{
		{ID: "s1", Kind: "csv", AvailableFields: []string{"date", "value"}},
	}

	strategies := g.Generate(it, []registry.ModuleDescriptor{module}, sources, 0)
	if len(strategies) != 1 {
		t.Fatalf("expected one strategy, got %d", len(strategies))
	}
	if got := strategies[0].Parameters["value_column"]; got != "amount" {
		t.Fatalf("explicit intent parameter must win, got %v", got)
	}
}

func TestGenerateDependenciesFromExecutionOrder(t *testing.T) {
	g := NewGenerator()
	it := intent.Intent{
		Action: "analyze",
		Target: "analysis",
		Requirements: &intent.Requirements{
			ModulesNeeded:  []string{"m1", "m2"},
			ExecutionOrder: []string{"m1", "m2"},
		},
	}

	modules := []registry.ModuleDescriptor{csvModule("m1", nil), csvModule("m2", nil)}
	sources := []registry.DataSourceDescriptor{
		{ID: "s1", Kind: "csv", AvailableFields: []string{"x"}},
	}

	strategies := g.Generate(it, modules, sources, 0)
	if len(strategies) != 2 {
		t.Fatalf("expected 2 strategies, got %d", len(strategies))
	}
	for _, s := range strategies {
		switch s.ModuleID {
		case "m1":
			if len(s.Dependencies) != 0 {
				t.Fatalf("m1 should have no dependencies, got %v", s.Dependencies)
			}
		case "m2":
			if len(s.Dependencies) != 1 || s.Dependencies[0] != "m1@s1" {
				t.Fatalf("m2 should depend on m1@s1, got %v", s.Dependencies)
			}
		}
	}
}

func TestGenerateDropsDependencyOnIncompatiblePredecessor(t *testing.T) {
	g := NewGenerator()
	it := intent.Intent{
		Action: "analyze",
		Target: "analysis",
		Requirements: &intent.Requirements{
			ModulesNeeded:  []string{"m1", "m2"},
			ExecutionOrder: []string{"m1", "m2"},
		},
	}

	// m1 需要的字段不存在，组合被兼容性检查淘汰。
	modules := []registry.ModuleDescriptor{csvModule("m1", []string{"missing"}), csvModule("m2", nil)}
	sources := []registry.DataSourceDescriptor{
		{ID: "s1", Kind: "csv", AvailableFields: []string{"x"}},
	}

	strategies := g.Generate(it, modules, sources, 0)
	if len(strategies) != 1 || strategies[0].ModuleID != "m2" {
		t.Fatalf("expected only m2, got %+v", strategies)
	}
	if len(strategies[0].Dependencies) != 0 {
		t.Fatalf("dependency on a filtered-out predecessor must be dropped, got %v", strategies[0].Dependencies)
	}
}

func TestGenerateDropsDependencyOnTruncatedPredecessor(t *testing.T) {
	g := NewGenerator()
	// 目标只命中 m2，让 m2 的优先级高于 m1；裁剪后 m1@s1 不在产出里。
	it := intent.Intent{
		Action: "analyze",
		Target: "m2",
		Requirements: &intent.Requirements{
			ModulesNeeded:  []string{"m1", "m2"},
			ExecutionOrder: []string{"m1", "m2"},
		},
	}

	modules := []registry.ModuleDescriptor{csvModule("m1", nil), csvModule("m2", nil)}
	sources := []registry.DataSourceDescriptor{
		{ID: "s1", Kind: "csv", AvailableFields: []string{"x"}},
	}

	strategies := g.Generate(it, modules, sources, 1)
	if len(strategies) != 1 || strategies[0].ModuleID != "m2" {
		t.Fatalf("expected m2 to survive truncation, got %+v", strategies)
	}
	if len(strategies[0].Dependencies) != 0 {
		t.Fatalf("dependency on a truncated predecessor must be dropped, got %v", strategies[0].Dependencies)
	}
}

func TestGenerateRespectsMaxStrategies(t *testing.T) {
	g := NewGenerator()
	it := intent.Intent{Action: "analyze", Target: "analysis"}

	modules := make([]registry.ModuleDescriptor, 0, 4)
	for _, id := range []string{"a", "b", "c", "d"} {
		modules = append(modules, csvModule(id, nil))
	}
	sources := []registry.DataSourceDescriptor{
		{ID: "s1", Kind: "csv", AvailableFields: []string{"x"}},
		{ID: "s2", Kind: "csv", AvailableFields: []string{"x"}},
	}

	strategies := g.Generate(it, modules, sources, 3)
	if len(strategies) != 3 {
		t.Fatalf("expected truncation to 3 strategies, got %d", len(strategies))
	}
}

func TestPriorityBounds(t *testing.T) {
	module := csvModule("m1", nil)
	module.OptionalFields = []string{"category"}
	source := registry.DataSourceDescriptor{
		ID:              "s1",
		Kind:            "csv",
		AvailableFields: []string{"category"},
	}

	g := NewGenerator(WithMatcher(fixedMatcher{score: 1.0}))
	it := intent.Intent{Action: "analyze", Target: "analysis"}
	strategies := g.Generate(it, []registry.ModuleDescriptor{module}, []registry.DataSourceDescriptor{source}, 0)
	if len(strategies) != 1 {
		t.Fatalf("expected one strategy, got %d", len(strategies))
	}
	// 满分兼容 + 满分匹配 + 无必需参数 = 50 + 30 + 20。
	if strategies[0].Priority != 100 {
		t.Fatalf("expected priority 100, got %d", strategies[0].Priority)
	}
}
