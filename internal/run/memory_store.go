package run

import (
	"context"
	"sort"
	"sync"
	"time"

	xerrors "DataWalker/internal/errors"
	"DataWalker/internal/walker"
)

// MemoryStore 以内存方式保存运行状态，主要用于测试。
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*Run)}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, r *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "run 不能为空")
	}
	if r.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "运行 ID 不能为空")
	}
	if _, ok := m.runs[r.ID]; ok {
		return ErrRunConflict
	}
	now := time.Now().Unix()
	if r.CreatedAt == 0 {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	m.runs[r.ID] = cloneRun(r)
	return nil
}

// Get 返回运行。
func (m *MemoryStore) Get(_ context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return cloneRun(r), nil
}

// Claim 将运行状态更新为运行中。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	switch r.Status {
	case StatusSucceeded:
		return cloneRun(r), ErrRunCompleted
	case StatusRunning:
		return cloneRun(r), ErrRunConflict
	}
	if r.Attempts >= r.MaxRetries {
		return cloneRun(r), ErrRunExhausted
	}
	r.Status = StatusRunning
	r.Attempts++
	r.LastError = ""
	r.ErrorCode = ""
	r.UpdatedAt = time.Now().Unix()
	return cloneRun(r), nil
}

// MarkSucceeded 记录成功结果。
func (m *MemoryStore) MarkSucceeded(_ context.Context, id string, result walker.Cycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	r.Status = StatusSucceeded
	r.Result = &result
	r.LastError = ""
	r.ErrorCode = ""
	r.UpdatedAt = time.Now().Unix()
	return nil
}

// MarkFailed 标记运行失败。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, lastError string, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	r.Status = StatusFailed
	r.LastError = lastError
	r.ErrorCode = string(code)
	r.UpdatedAt = time.Now().Unix()
	return nil
}

// List 返回最近的运行。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	results := make([]*Run, 0, len(m.runs))
	for _, r := range m.runs {
		if !matchesListFilters(r, opts) {
			continue
		}
		results = append(results, cloneRun(r))
	}

	sort.Slice(results, func(i, j int) bool {
		if opts.Order == SortByUpdatedAsc {
			if results[i].UpdatedAt == results[j].UpdatedAt {
				if results[i].CreatedAt == results[j].CreatedAt {
					return results[i].ID < results[j].ID
				}
				return results[i].CreatedAt < results[j].CreatedAt
			}
			return results[i].UpdatedAt < results[j].UpdatedAt
		}
		if results[i].UpdatedAt == results[j].UpdatedAt {
			if results[i].CreatedAt == results[j].CreatedAt {
				return results[i].ID < results[j].ID
			}
			return results[i].CreatedAt > results[j].CreatedAt
		}
		return results[i].UpdatedAt > results[j].UpdatedAt
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(results) {
			return []*Run{}, nil
		}
		results = results[opts.Offset:]
	}
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Stats 统计符合过滤条件的运行数量与更新时间范围。
func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (RunStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	stats := RunStats{}
	for _, r := range m.runs {
		if !matchesListFilters(r, opts) {
			continue
		}
		stats.Total++
		switch r.Status {
		case StatusPending:
			stats.Pending++
		case StatusRunning:
			stats.Running++
		case StatusSucceeded:
			stats.Succeeded++
		case StatusFailed:
			stats.Failed++
		}
		if r.UpdatedAt > stats.NewestUpdatedAt {
			stats.NewestUpdatedAt = r.UpdatedAt
		}
		if stats.OldestUpdatedAt == 0 || (r.UpdatedAt != 0 && r.UpdatedAt < stats.OldestUpdatedAt) {
			stats.OldestUpdatedAt = r.UpdatedAt
		}
	}
	if stats.Total == 0 {
		stats.OldestUpdatedAt = 0
		stats.NewestUpdatedAt = 0
	}
	return stats, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

func matchesListFilters(r *Run, opts ListOptions) bool {
	if len(opts.Statuses) > 0 {
		matched := false
		for _, status := range opts.Statuses {
			if r.Status == status {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if opts.UpdatedGTE > 0 && r.UpdatedAt < opts.UpdatedGTE {
		return false
	}
	if opts.UpdatedLTE > 0 && r.UpdatedAt > opts.UpdatedLTE {
		return false
	}
	// MaxDepth 为 0 时不过滤后续意图层级。
	if opts.MaxDepth > 0 && r.Depth > opts.MaxDepth {
		return false
	}
	return true
}

// ensure interface compliance at compile time
var _ Store = (*MemoryStore)(nil)
