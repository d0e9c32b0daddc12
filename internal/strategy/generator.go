package strategy

import (
	"log/slog"
	"math"
	"sort"

	"DataWalker/internal/compat"
	"DataWalker/internal/intent"
	"DataWalker/internal/registry"
	"DataWalker/pkg/logger"
)

// defaultMaxStrategies 是一次生成调用返回策略数量的默认上限。
const defaultMaxStrategies = 5

// Generator 枚举模块与数据源的组合，经打分过滤后产出排序的策略集。
type Generator struct {
	matcher  intent.Matcher
	minScore float64
	logger   *slog.Logger
}

// GeneratorOption 定义可选配置。
type GeneratorOption func(*Generator)

// WithMatcher 替换意图匹配度量。
func WithMatcher(matcher intent.Matcher) GeneratorOption {
	return func(g *Generator) {
		if matcher != nil {
			g.matcher = matcher
		}
	}
}

// WithMinScore 设置策略入选的最低兼容性分数。
// 默认 0：passed 是唯一门槛，分数只作为排序信号。
func WithMinScore(min float64) GeneratorOption {
	return func(g *Generator) {
		if min > 0 {
			g.minScore = min
		}
	}
}

// WithGeneratorLogger 指定日志输出。
func WithGeneratorLogger(l *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGenerator 构造 Generator。
func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{matcher: intent.KeywordMatcher{}}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	if g.logger == nil {
		g.logger = logger.Named("strategy")
	}
	return g
}

// Generate 针对给定意图枚举所有 (模块, 数据源) 组合，过滤掉不兼容的，
// 为存活组合生成参数候选并逐一打分，返回按优先级降序、数量受限的策略集。
// 没有组合通过兼容性检查时返回空集，不视为错误。
func (g *Generator) Generate(it intent.Intent, modules []registry.ModuleDescriptor, sources []registry.DataSourceDescriptor, maxStrategies int) []Strategy {
	if maxStrategies <= 0 {
		maxStrategies = defaultMaxStrategies
	}

	wanted := wantedModules(it, modules)
	order := executionOrder(it)

	var strategies []Strategy
	for _, module := range wanted {
		for _, source := range sources {
			result := compat.Score(module, source)
			if !result.Passed || result.Score < g.minScore {
				g.logger.Debug("组合未通过兼容性检查",
					slog.String("module_id", module.ID),
					slog.String("source_id", source.ID),
					slog.Float64("score", result.Score),
					slog.String("reason", result.Reason),
				)
				continue
			}

			candidates := parameterCandidates(module, it, source)
			for _, params := range candidates {
				strategies = append(strategies, Strategy{
					ModuleID:      module.ID,
					SourceID:      source.ID,
					Parameters:    params,
					Compatibility: result,
					Priority:      priority(result, g.matcher.Match(it, module), completeness(module, params)),
					EstimatedCost: estimateCost(module, source),
					Dependencies:  dependenciesFor(module.ID, source.ID, order),
				})
			}
		}
	}

	// 优先级降序；同分按 (module_id, source_id) 升序，保证输出确定。
	sort.SliceStable(strategies, func(i, j int) bool {
		if strategies[i].Priority != strategies[j].Priority {
			return strategies[i].Priority > strategies[j].Priority
		}
		if strategies[i].ModuleID != strategies[j].ModuleID {
			return strategies[i].ModuleID < strategies[j].ModuleID
		}
		return strategies[i].SourceID < strategies[j].SourceID
	})

	if len(strategies) > maxStrategies {
		strategies = strategies[:maxStrategies]
	}
	pruneDanglingDependencies(strategies)
	g.logger.Debug("策略生成完成",
		slog.String("target", it.Target),
		slog.Int("count", len(strategies)),
	)
	return strategies
}

// wantedModules 根据意图的模块需求筛选模块集合。
// 意图未指明时使用全部模块。
func wantedModules(it intent.Intent, modules []registry.ModuleDescriptor) []registry.ModuleDescriptor {
	if it.Requirements == nil || len(it.Requirements.ModulesNeeded) == 0 {
		return modules
	}
	index := make(map[string]registry.ModuleDescriptor, len(modules))
	for _, m := range modules {
		index[m.ID] = m
	}
	out := make([]registry.ModuleDescriptor, 0, len(it.Requirements.ModulesNeeded))
	for _, id := range it.Requirements.ModulesNeeded {
		if m, ok := index[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

// pruneDanglingDependencies 移除指向本次未产出策略的依赖。
// 执行顺序里的前置模块可能没有通过兼容性检查，或被数量上限裁掉；
// 依赖只在前置策略真实存在时保留，否则顺序要求退化为纯粹的排序信号，
// 不能让后续规划因为一个缺席的前置而整体失败。
func pruneDanglingDependencies(strategies []Strategy) {
	keys := make(map[string]struct{}, len(strategies))
	for _, s := range strategies {
		keys[s.Key()] = struct{}{}
	}
	for i := range strategies {
		if len(strategies[i].Dependencies) == 0 {
			continue
		}
		kept := strategies[i].Dependencies[:0]
		for _, dep := range strategies[i].Dependencies {
			if _, ok := keys[dep]; ok {
				kept = append(kept, dep)
			}
		}
		if len(kept) == 0 {
			strategies[i].Dependencies = nil
		} else {
			strategies[i].Dependencies = kept
		}
	}
}

func executionOrder(it intent.Intent) []string {
	if it.Requirements == nil {
		return nil
	}
	return it.Requirements.ExecutionOrder
}

// dependenciesFor 把意图声明的执行顺序转换为策略依赖：
// 顺序中位于本模块之前的相邻模块成为前置，落在同一数据源上。
func dependenciesFor(moduleID, sourceID string, order []string) []string {
	for i, id := range order {
		if id == moduleID && i > 0 {
			return []string{order[i-1] + "@" + sourceID}
		}
	}
	return nil
}

// priority 组合三个有界信号：兼容性 (0-50)、意图匹配 (0-30)、
// 参数完整度 (0-20)，最终裁剪到 [0,100]。公式是策略的一部分，
// 不得近似。
func priority(result compat.Result, match, compl float64) int {
	p := int(math.Round(result.Score*50)) +
		int(math.Round(match*30)) +
		int(math.Round(compl*20))
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return p
}

// completeness 计算必需参数在候选中的出现比例。
func completeness(module registry.ModuleDescriptor, params map[string]any) float64 {
	required := 0
	satisfied := 0
	for name, spec := range module.ParameterSchema {
		if !spec.Required {
			continue
		}
		required++
		if _, ok := params[name]; ok {
			satisfied++
		}
	}
	if required == 0 {
		return 1.0
	}
	return float64(satisfied) / float64(required)
}

// estimateCost 粗略估算执行代价（秒），只用于排序参考。
func estimateCost(module registry.ModuleDescriptor, source registry.DataSourceDescriptor) float64 {
	base := 1.0
	if len(source.AvailableFields) > 32 {
		base *= 2.0
	}
	indicators := []string{"visualization", "machine_learning", "statistical"}
	multiplier := 1.0
	for _, keyword := range indicators {
		if containsFold(module.Description, keyword) {
			multiplier += 0.5
		}
	}
	return base * multiplier
}
