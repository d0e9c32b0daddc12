package run

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "DataWalker/internal/errors"
	"DataWalker/internal/intent"
	"DataWalker/pkg/logger"
)

// SubmitRequest 描述一次提交分析运行的请求。
type SubmitRequest struct {
	ID       string        `json:"id,omitempty"`
	Intent   intent.Intent `json:"intent"`
	Depth    int           `json:"depth,omitempty"`
	ParentID string        `json:"parent_id,omitempty"`
}

// Service 负责运行的创建与查询。
type Service struct {
	store      Store
	producer   Producer
	maxRetries int
}

// NewService 构造运行服务。
func NewService(store Store, producer Producer, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{store: store, producer: producer, maxRetries: maxRetries}
}

// Submit 创建一个新的运行并推送到队列。
// 带 ID 的重复提交是幂等的：已存在的运行原样返回。
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Run, error) {
	if req.Intent.Action == "" || req.Intent.Target == "" {
		return nil, xerrors.New(CodeRunValidation, "意图的 action 与 target 不能为空")
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "运行服务未初始化")
	}

	runID := strings.TrimSpace(req.ID)
	if runID != "" {
		r, err := s.store.Get(ctx, runID)
		if err == nil {
			return r, nil
		}
		if !stdErrors.Is(err, ErrRunNotFound) {
			return nil, err
		}
	} else {
		runID = uuid.NewString()
	}

	r := &Run{
		ID:         runID,
		Intent:     req.Intent.Clone(),
		Depth:      req.Depth,
		ParentID:   req.ParentID,
		Status:     StatusPending,
		Attempts:   0,
		MaxRetries: s.maxRetries,
	}
	if err := s.store.Create(ctx, r); err != nil {
		if stdErrors.Is(err, ErrRunConflict) {
			existing, getErr := s.store.Get(ctx, runID)
			if getErr == nil {
				return existing, nil
			}
			if !stdErrors.Is(getErr, ErrRunNotFound) {
				return nil, getErr
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, runID); err != nil {
		logger.L().Error("运行入队失败", slog.Any("error", err), slog.String("run_id", runID))
		wrapped := xerrors.Wrap(CodeRunPublish, err, "发布运行到队列失败")
		_ = s.store.MarkFailed(ctx, runID, CodeRunPublish, wrapped.Error(), true)
		return nil, wrapped
	}
	logger.Audit().Info("运行入队成功",
		slog.String("run_id", runID),
		slog.String("action", r.Intent.Action),
		slog.String("target", r.Intent.Target),
		slog.Int("depth", r.Depth),
		slog.Int("max_retries", r.MaxRetries),
	)
	return r, nil
}

// Get 返回指定运行的状态。
func (s *Service) Get(ctx context.Context, id string) (*Run, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "运行存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的运行列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Run, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "运行存储未初始化")
	}
	options := buildListOptions(opts)
	return s.store.List(ctx, options)
}

// Stats 返回符合过滤条件的运行统计信息。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (RunStats, error) {
	if s.store == nil {
		return RunStats{}, xerrors.New(xerrors.CodeInitializationFailure, "运行存储未初始化")
	}
	options := buildListOptions(opts)
	return s.store.Stats(ctx, options)
}

// Close 释放资源。
func (s *Service) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return err
		}
	}
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

// WaitUntilCompleted 在指定超时时间内轮询运行状态。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Run, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if r.Status == StatusSucceeded || r.Status == StatusFailed {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
