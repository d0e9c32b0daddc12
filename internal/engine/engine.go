package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	xerrors "DataWalker/internal/errors"
	"DataWalker/internal/plan"
	"DataWalker/internal/registry"
	"DataWalker/pkg/capability"
	"DataWalker/pkg/logger"
)

const (
	defaultWorkerCount = 4
	defaultStepTimeout = 30 * time.Second
)

// Engine 并发执行一份执行计划。
// 模块实例按 ID 缓存并在引擎的生命周期内复用；
// 并发首用时同一模块只会被实例化一次。
type Engine struct {
	catalog     capability.Resolver
	reg         *registry.Registry
	resources   map[string]any
	workers     int
	stepTimeout time.Duration
	logger      *slog.Logger

	mu        sync.Mutex
	instances map[string]capability.Module
	creating  singleflight.Group
}

// Option 配置执行引擎。
type Option func(*Engine)

// WithWorkerCount 设置同时执行的步骤上限。
func WithWorkerCount(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithStepTimeout 设置单个步骤的执行时限。
func WithStepTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.stepTimeout = d
		}
	}
}

// WithResources 注入模块执行时可见的共享资源。
func WithResources(res map[string]any) Option {
	return func(e *Engine) { e.resources = res }
}

// WithEngineLogger 覆盖引擎使用的日志器。
func WithEngineLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New 创建执行引擎。
func New(catalog capability.Resolver, reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		catalog:     catalog,
		reg:         reg,
		workers:     defaultWorkerCount,
		stepTimeout: defaultStepTimeout,
		logger:      logger.Named("engine"),
		instances:   make(map[string]capability.Module),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// execState 保存单次执行范围内的瞬态状态。
// 实例化失败在本次执行内不会被重试：所有引用同一模块的
// 步骤直接拿到同一个失败记录。
type execState struct {
	mu     sync.Mutex
	failed map[string]error
}

type invokeOutcome struct {
	out *capability.Output
	err error
}

// Execute 运行计划中的所有步骤并按计划顺序返回结果。
// 返回的切片长度恒等于计划步骤数：跳过、超时、取消
// 都体现为失败的 StepResult，而非缺失的条目。
func (e *Engine) Execute(ctx context.Context, p *plan.Plan) []StepResult {
	n := p.Len()
	results := make([]StepResult, n)
	if n == 0 {
		return results
	}

	done := make([]chan struct{}, n)
	idToIndex := make(map[int]int, n)
	for i, step := range p.Steps {
		done[i] = make(chan struct{})
		idToIndex[step.StepID] = i
	}

	st := &execState{failed: make(map[string]error)}
	slots := make(chan struct{}, e.workers)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := range p.Steps {
		go func(idx int) {
			defer wg.Done()
			defer close(done[idx])
			e.runStep(ctx, st, p.Steps[idx], idx, results, done, idToIndex, slots)
		}(i)
	}
	wg.Wait()
	return results
}

func (e *Engine) runStep(ctx context.Context, st *execState, step plan.ExecutionStep, idx int,
	results []StepResult, done []chan struct{}, idToIndex map[int]int, slots chan struct{}) {

	res := &results[idx]
	res.StepID = step.StepID
	res.ModuleID = step.ModuleID
	res.SourceID = step.SourceID
	res.Parameters = step.Parameters

	// 等待所有依赖步骤结束(无论成败)，取消时立即退出。
	for _, depID := range step.DependsOn {
		j, ok := idToIndex[depID]
		if !ok {
			res.fail(xerrors.CodeDependencySkipped, fmt.Sprintf("依赖步骤 %d 不在计划中", depID))
			return
		}
		select {
		case <-done[j]:
		case <-ctx.Done():
			res.fail(xerrors.CodeCancelled, "执行已取消")
			return
		}
	}
	for _, depID := range step.DependsOn {
		dep := &results[idToIndex[depID]]
		if !dep.Success {
			res.fail(xerrors.CodeDependencySkipped,
				fmt.Sprintf("依赖步骤 %d 失败: %s", depID, dep.failureMessage()))
			e.logger.Warn("step skipped",
				slog.Int("step_id", step.StepID),
				slog.Int("failed_dependency", depID))
			return
		}
	}

	// 占用一个工作槽；等槽期间被取消的步骤记为 CANCELLED。
	select {
	case slots <- struct{}{}:
		defer func() { <-slots }()
	case <-ctx.Done():
		res.fail(xerrors.CodeCancelled, "执行已取消")
		return
	}
	if ctx.Err() != nil {
		res.fail(xerrors.CodeCancelled, "执行已取消")
		return
	}

	mod, err := e.instance(st, step.ModuleID)
	if err != nil {
		res.fail(xerrors.CodeInstantiationFailure,
			fmt.Sprintf("模块 %s 实例化失败: %v", step.ModuleID, err))
		return
	}

	source, ok := e.reg.Source(step.SourceID)
	if !ok {
		res.fail(xerrors.CodeInvocationError, fmt.Sprintf("数据源未注册: %s", step.SourceID))
		return
	}

	e.invoke(ctx, mod, source, step, res)
}

// invoke 在步骤时限内调用模块，并把 panic 收敛为错误记录。
func (e *Engine) invoke(ctx context.Context, mod capability.Module,
	source registry.DataSourceDescriptor, step plan.ExecutionStep, res *StepResult) {

	stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()

	execCtx := &capability.Context{Source: source, Resources: e.resources}
	start := time.Now()
	outcome := make(chan invokeOutcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				outcome <- invokeOutcome{err: fmt.Errorf("模块内部 panic: %v", rec)}
			}
		}()
		out, err := mod.Execute(stepCtx, step.Parameters, execCtx)
		outcome <- invokeOutcome{out: out, err: err}
	}()

	select {
	case o := <-outcome:
		res.Elapsed = time.Since(start)
		if o.err != nil {
			res.fail(classify(ctx, o.err), o.err.Error())
			e.logger.Warn("step failed",
				slog.Int("step_id", step.StepID),
				slog.String("module", step.ModuleID),
				slog.String("error", o.err.Error()))
			return
		}
		res.Success = true
		if o.out != nil {
			res.Payload = o.out.Payload
			res.Insights = o.out.Insights
		}
		e.logger.Debug("step completed",
			slog.Int("step_id", step.StepID),
			slog.String("module", step.ModuleID),
			slog.Duration("elapsed", res.Elapsed))
	case <-stepCtx.Done():
		// 超时或取消后放弃在途调用，其最终结果被丢弃。
		res.Elapsed = time.Since(start)
		if ctx.Err() != nil {
			res.fail(xerrors.CodeCancelled, "执行已取消")
			return
		}
		res.fail(xerrors.CodeInvocationTimeout,
			fmt.Sprintf("步骤 %d 超过时限 %s", step.StepID, e.stepTimeout))
	}
}

// instance 解析模块实例。命中缓存直接返回；否则通过 singleflight
// 保证并发首用只实例化一次。失败结果记入本次执行的负缓存。
func (e *Engine) instance(st *execState, moduleID string) (capability.Module, error) {
	e.mu.Lock()
	if mod, ok := e.instances[moduleID]; ok {
		e.mu.Unlock()
		return mod, nil
	}
	e.mu.Unlock()

	st.mu.Lock()
	if err, ok := st.failed[moduleID]; ok {
		st.mu.Unlock()
		return nil, err
	}
	st.mu.Unlock()

	v, err, _ := e.creating.Do(moduleID, func() (any, error) {
		e.mu.Lock()
		if mod, ok := e.instances[moduleID]; ok {
			e.mu.Unlock()
			return mod, nil
		}
		e.mu.Unlock()
		mod, err := e.catalog.Resolve(moduleID)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		e.instances[moduleID] = mod
		e.mu.Unlock()
		return mod, nil
	})
	if err != nil {
		st.mu.Lock()
		st.failed[moduleID] = err
		st.mu.Unlock()
		return nil, err
	}
	return v.(capability.Module), nil
}

func classify(ctx context.Context, err error) xerrors.Code {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return xerrors.CodeInvocationTimeout
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		return xerrors.CodeCancelled
	default:
		return xerrors.CodeInvocationError
	}
}

func (r *StepResult) failureMessage() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Message
}
