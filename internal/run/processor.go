package run

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	xerrors "DataWalker/internal/errors"
	"DataWalker/internal/intent"
	"DataWalker/internal/observability/alerting"
	"DataWalker/internal/walker"
	"DataWalker/pkg/logger"
)

const defaultMaxFollowupDepth = 2

// Executor 定义了处理器所需的分析能力。
type Executor interface {
	RunCycle(ctx context.Context, it intent.Intent) (*walker.Cycle, error)
}

// Processor 负责从队列消费运行并交给 Walker 执行。
// 成功的运行若产出后续意图，会在深度上限内自动派生子运行。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	producer    Producer
	service     *Service
	workerCount int
	maxDepth    int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithProcessorWorkers 设置消费协程数量。
func WithProcessorWorkers(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithMaxFollowupDepth 设置后续意图链的最大深度。
func WithMaxFollowupDepth(depth int) ProcessorOption {
	return func(p *Processor) {
		if depth >= 0 {
			p.maxDepth = depth
		}
	}
}

// WithFollowupService 指定用于派生子运行的服务。
// 不设置时后续意图只记录在结果里，不会自动执行。
func WithFollowupService(service *Service) ProcessorOption {
	return func(p *Processor) {
		p.service = service
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
		maxDepth:    defaultMaxFollowupDepth,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start 启动运行处理循环。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置运行消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, runID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	r, err := p.store.Claim(ctx, runID)
	if err != nil {
		if stdErrors.Is(err, ErrRunNotFound) || stdErrors.Is(err, ErrRunCompleted) || stdErrors.Is(err, ErrRunExhausted) {
			p.logDebug("跳过运行", slog.String("run_id", runID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取运行失败", slog.Any("error", err), slog.String("run_id", runID))
		p.emitAlert(ctx, &Run{ID: runID}, CodeRunProcessing, err, "claim")
		return err
	}

	cycle, execErr := p.executor.RunCycle(ctx, r.Intent)
	if execErr != nil {
		return p.handleExecutionFailure(ctx, r, execErr)
	}

	var record walker.Cycle
	if cycle != nil {
		record = *cycle
	}
	if err := p.store.MarkSucceeded(ctx, r.ID, record); err != nil {
		logger.L().Error("标记运行成功状态失败", slog.Any("error", err), slog.String("run_id", r.ID))
		if storeErr := p.store.MarkFailed(ctx, r.ID, CodeRunProcessing, err.Error(), false); storeErr != nil {
			logger.L().Error("回写失败状态出错", slog.Any("error", storeErr), slog.String("run_id", r.ID))
			return storeErr
		}
		if pubErr := p.producer.Publish(ctx, r.ID); pubErr != nil {
			return xerrors.Wrap(CodeRunPublish, pubErr, fmt.Sprintf("运行 %s 在标记成功失败后重投失败", r.ID))
		}
		return nil
	}
	logger.Audit().Info("运行执行成功",
		slog.String("run_id", r.ID),
		slog.String("action", r.Intent.Action),
		slog.String("target", r.Intent.Target),
		slog.Bool("overall_success", record.Outcome.OverallSuccess),
		slog.Int("followups", len(record.Followups)),
	)

	p.submitFollowups(ctx, r, record.Followups)
	return nil
}

// submitFollowups 把后续意图派生为子运行。深度达到上限时只记录不派生，
// 防止可视化与清洗建议互相触发形成无限链。
func (p *Processor) submitFollowups(ctx context.Context, parent *Run, followups []intent.Intent) {
	if p.service == nil || len(followups) == 0 {
		return
	}
	if parent.Depth >= p.maxDepth {
		p.logDebug("后续意图达到深度上限",
			slog.String("run_id", parent.ID),
			slog.Int("depth", parent.Depth),
			slog.Int("dropped", len(followups)))
		return
	}
	for _, it := range followups {
		child, err := p.service.Submit(ctx, SubmitRequest{
			Intent:   it,
			Depth:    parent.Depth + 1,
			ParentID: parent.ID,
		})
		if err != nil {
			logger.L().Error("派生后续运行失败",
				slog.Any("error", err),
				slog.String("parent_id", parent.ID),
				slog.String("action", it.Action))
			continue
		}
		p.logDebug("后续运行已派生",
			slog.String("parent_id", parent.ID),
			slog.String("run_id", child.ID),
			slog.Int("depth", child.Depth))
	}
}

func (p *Processor) handleExecutionFailure(ctx context.Context, r *Run, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeRunProcessing
	}
	retryable := xerrors.RetryableError(execErr)
	terminal := r.Attempts >= r.MaxRetries || !retryable

	if storeErr := p.store.MarkFailed(ctx, r.ID, code, execErr.Error(), terminal); storeErr != nil {
		logger.L().Error("标记运行失败状态出错", slog.Any("error", storeErr), slog.String("run_id", r.ID))
		return storeErr
	}
	logger.Audit().Warn("运行执行失败",
		slog.String("run_id", r.ID),
		slog.String("action", r.Intent.Action),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", r.Attempts),
		slog.Int("max_retries", r.MaxRetries),
	)

	stage := "retry"
	if terminal {
		stage = "terminal"
	} else if !retryable {
		stage = "non_retryable"
	}
	p.emitAlert(ctx, r, code, execErr, stage)

	if retryable && !terminal {
		if pubErr := p.producer.Publish(ctx, r.ID); pubErr != nil {
			return xerrors.Wrap(CodeRunPublish, pubErr, fmt.Sprintf("运行 %s 重投失败", r.ID))
		}
		p.logDebug("运行已重新排队", slog.String("run_id", r.ID), slog.Int("attempts", r.Attempts))
	}
	return nil
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		p.logger.Debug(msg, args...)
	}
}

func (p *Processor) emitAlert(ctx context.Context, r *Run, code xerrors.Code, cause error, stage string) {
	if p == nil || p.alerter == nil || r == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	if cause != nil {
		message = cause.Error()
	}
	metadata := map[string]string{
		"stage": stage,
	}
	if cause != nil {
		metadata["cause"] = cause.Error()
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		RunID:      r.ID,
		Attempts:   r.Attempts,
		MaxRetries: r.MaxRetries,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("run_id", r.ID),
			slog.String("stage", stage),
		)
	}
}
