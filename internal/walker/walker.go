package walker

import (
	"context"
	"log/slog"
	"time"

	"DataWalker/internal/aggregate"
	"DataWalker/internal/engine"
	xerrors "DataWalker/internal/errors"
	"DataWalker/internal/followup"
	"DataWalker/internal/intent"
	"DataWalker/internal/plan"
	"DataWalker/internal/registry"
	"DataWalker/internal/strategy"
	"DataWalker/pkg/capability"
	"DataWalker/pkg/logger"
)

// Walker 串起一次完整的分析周期：
// 意图 -> 策略 -> 计划 -> 执行 -> 聚合 -> 后续意图。
type Walker struct {
	reg           *registry.Registry
	generator     *strategy.Generator
	planner       *plan.Planner
	engine        *engine.Engine
	aggregator    *aggregate.Aggregator
	followups     *followup.Generator
	maxStrategies int
	logger        *slog.Logger
}

// Cycle 是一次执行周期的完整产物。
type Cycle struct {
	Outcome   aggregate.Outcome `json:"outcome"`
	Followups []intent.Intent   `json:"followups,omitempty"`
}

// Option 配置 Walker。
type Option func(*config)

type config struct {
	matcher         intent.Matcher
	minScore        float64
	maxStrategies   int
	workerCount     int
	stepTimeout     time.Duration
	summaryInsights int
	resources       map[string]any
	logger          *slog.Logger
}

// WithMatcher 覆盖意图与模块之间的匹配算法。
func WithMatcher(m intent.Matcher) Option {
	return func(c *config) {
		if m != nil {
			c.matcher = m
		}
	}
}

// WithMinScore 设置策略采纳的最低兼容性得分。
func WithMinScore(score float64) Option {
	return func(c *config) { c.minScore = score }
}

// WithMaxStrategies 设置单次周期生成的策略数量上限。
func WithMaxStrategies(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxStrategies = n
		}
	}
}

// WithWorkerCount 设置执行阶段的并发上限。
func WithWorkerCount(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.workerCount = n
		}
	}
}

// WithStepTimeout 设置单个步骤的执行时限。
func WithStepTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.stepTimeout = d
		}
	}
}

// WithSummaryInsights 设置摘要引用的洞察条数。
func WithSummaryInsights(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.summaryInsights = n
		}
	}
}

// WithResources 注入模块执行时可见的共享资源。
func WithResources(res map[string]any) Option {
	return func(c *config) { c.resources = res }
}

// WithLogger 覆盖 Walker 使用的日志器。
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// New 组装一个 Walker。catalog 负责解析模块实例，
// reg 提供模块与数据源的描述符。
func New(reg *registry.Registry, catalog capability.Resolver, opts ...Option) *Walker {
	c := &config{
		logger: logger.Named("walker"),
	}
	for _, opt := range opts {
		opt(c)
	}

	genOpts := []strategy.GeneratorOption{}
	if c.matcher != nil {
		genOpts = append(genOpts, strategy.WithMatcher(c.matcher))
	}
	if c.minScore > 0 {
		genOpts = append(genOpts, strategy.WithMinScore(c.minScore))
	}

	engOpts := []engine.Option{engine.WithEngineLogger(c.logger)}
	if c.workerCount > 0 {
		engOpts = append(engOpts, engine.WithWorkerCount(c.workerCount))
	}
	if c.stepTimeout > 0 {
		engOpts = append(engOpts, engine.WithStepTimeout(c.stepTimeout))
	}
	if c.resources != nil {
		engOpts = append(engOpts, engine.WithResources(c.resources))
	}

	aggOpts := []aggregate.Option{}
	if c.summaryInsights > 0 {
		aggOpts = append(aggOpts, aggregate.WithSummaryInsights(c.summaryInsights))
	}

	return &Walker{
		reg:           reg,
		generator:     strategy.NewGenerator(genOpts...),
		planner:       plan.NewPlanner(),
		engine:        engine.New(catalog, reg, engOpts...),
		aggregator:    aggregate.New(aggOpts...),
		followups:     followup.New(),
		maxStrategies: c.maxStrategies,
		logger:        c.logger,
	}
}

// RunCycle 对一个意图执行完整的分析周期。
// 规划期错误(环、未解析依赖、无效意图)作为 error 返回；
// 执行期失败固化在结果里，不会让周期本身失败。
func (w *Walker) RunCycle(ctx context.Context, it intent.Intent) (*Cycle, error) {
	if err := validateIntent(it); err != nil {
		return nil, err
	}

	strategies := w.generator.Generate(it, w.reg.Modules(), w.reg.Sources(), w.maxStrategies)
	w.logger.Info("strategies generated",
		slog.String("action", it.Action),
		slog.String("target", it.Target),
		slog.Int("count", len(strategies)))

	execPlan, err := w.planner.Plan(strategies)
	if err != nil {
		return nil, err
	}

	results := w.engine.Execute(ctx, execPlan)
	outcome := w.aggregator.Aggregate(results)
	followups := w.followups.Generate(outcome)

	w.logger.Info("cycle completed",
		slog.Bool("overall_success", outcome.OverallSuccess),
		slog.Int("steps", len(results)),
		slog.Int("followups", len(followups)),
		slog.Duration("total_elapsed", outcome.TotalElapsed))

	return &Cycle{Outcome: outcome, Followups: followups}, nil
}

func validateIntent(it intent.Intent) error {
	if it.Action == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "意图缺少 action")
	}
	if it.Target == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "意图缺少 target")
	}
	return nil
}
