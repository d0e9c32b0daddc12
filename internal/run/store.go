package run

import (
	"context"

	xerrors "DataWalker/internal/errors"
	"DataWalker/internal/walker"
)

// Store 抽象了运行状态的持久化接口。
type Store interface {
	Create(ctx context.Context, r *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	Claim(ctx context.Context, id string) (*Run, error)
	MarkSucceeded(ctx context.Context, id string, result walker.Cycle) error
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error
	List(ctx context.Context, opts ListOptions) ([]*Run, error)
	Stats(ctx context.Context, opts ListOptions) (RunStats, error)
	Close() error
}
