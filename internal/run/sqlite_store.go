package run

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	xerrors "DataWalker/internal/errors"
	"DataWalker/internal/walker"
)

// SQLiteStore 使用单文件 SQLite 记录运行状态，
// 适合无外部数据库依赖的单机部署。
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore 创建一个新的 SQLiteStore。path 为数据库文件路径，
// ":memory:" 表示纯内存数据库。
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "SQLite 路径不能为空")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开 SQLite 失败")
	}
	// SQLite 只支持单写入者。
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 SQLite")
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS analysis_runs (
        id TEXT PRIMARY KEY,
        intent TEXT NOT NULL,
        depth INTEGER NOT NULL DEFAULT 0,
        parent_id TEXT DEFAULT '',
        status TEXT NOT NULL,
        attempts INTEGER NOT NULL DEFAULT 0,
        max_retries INTEGER NOT NULL DEFAULT 3,
        last_error TEXT,
        error_code TEXT DEFAULT '',
        result TEXT,
        created_at INTEGER NOT NULL,
        updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_status ON analysis_runs (status);
CREATE INDEX IF NOT EXISTS idx_run_updated ON analysis_runs (updated_at);`

	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 analysis_runs 表失败")
	}
	return nil
}

// Create 插入新的运行记录。
func (s *SQLiteStore) Create(ctx context.Context, r *Run) error {
	if r == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "run 不能为空")
	}
	if strings.TrimSpace(r.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "运行 ID 不能为空")
	}

	now := time.Now().Unix()
	r.CreatedAt = now
	r.UpdatedAt = now

	intentValue, err := json.Marshal(r.Intent)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码运行意图失败")
	}

	const stmt = `INSERT INTO analysis_runs
        (id, intent, depth, parent_id, status, attempts, max_retries, last_error, error_code, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, '', '', ?, ?)`

	_, err = s.db.ExecContext(ctx, stmt,
		r.ID,
		string(intentValue),
		r.Depth,
		r.ParentID,
		r.Status,
		r.Attempts,
		r.MaxRetries,
		r.CreatedAt,
		r.UpdatedAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if stdErrors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return ErrRunConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入运行失败")
	}
	return nil
}

// Get 查询指定运行。
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Run, error) {
	const stmt = `SELECT id, intent, depth, parent_id, status, attempts, max_retries, last_error, error_code,
        result, created_at, updated_at FROM analysis_runs WHERE id = ?`

	row := s.db.QueryRowContext(ctx, stmt, id)
	r, err := scanRun(row.Scan)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return r, nil
}

// Claim 将运行标记为运行中并返回最新状态。
func (s *SQLiteStore) Claim(ctx context.Context, id string) (*Run, error) {
	const updateStmt = `UPDATE analysis_runs SET status = ?, attempts = attempts + 1, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ? AND status IN (?, ?) AND attempts < max_retries`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, updateStmt,
		StatusRunning,
		now,
		id,
		StatusPending,
		StatusFailed,
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新运行状态失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	if affected == 0 {
		r, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		switch r.Status {
		case StatusSucceeded:
			return r, ErrRunCompleted
		case StatusRunning:
			return r, ErrRunConflict
		default:
			if r.Attempts >= r.MaxRetries {
				return r, ErrRunExhausted
			}
			return r, ErrRunConflict
		}
	}
	return s.Get(ctx, id)
}

// MarkSucceeded 将运行标记为成功。
func (s *SQLiteStore) MarkSucceeded(ctx context.Context, id string, result walker.Cycle) error {
	resultValue, err := json.Marshal(result)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码运行结果失败")
	}

	const stmt = `UPDATE analysis_runs SET status = ?, result = ?, updated_at = ?, last_error = '', error_code = '' WHERE id = ?`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, stmt,
		StatusSucceeded,
		string(resultValue),
		now,
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记运行成功失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRunNotFound
	}
	return nil
}

// MarkFailed 将运行标记为失败。
func (s *SQLiteStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, _ bool) error {
	const stmt = `UPDATE analysis_runs SET status = ?, last_error = ?, error_code = ?, updated_at = ? WHERE id = ?`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, stmt,
		StatusFailed,
		lastError,
		string(code),
		now,
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记运行失败失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRunNotFound
	}
	return nil
}

// List 返回最近的运行。
func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) ([]*Run, error) {
	opts.applyDefaults()

	query := `SELECT id, intent, depth, parent_id, status, attempts, max_retries, last_error, error_code,
        result, created_at, updated_at FROM analysis_runs`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	order := " ORDER BY updated_at DESC, created_at DESC, id DESC"
	if opts.Order == SortByUpdatedAsc {
		order = " ORDER BY updated_at ASC, created_at ASC, id ASC"
	}
	query += order + " LIMIT ? OFFSET ?"

	args := append(filterArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询运行列表失败")
	}
	defer rows.Close()

	runs := make([]*Run, 0, opts.Limit)
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历运行失败")
	}
	return runs, nil
}

// Stats 返回符合过滤条件的运行聚合信息。
func (s *SQLiteStore) Stats(ctx context.Context, opts ListOptions) (RunStats, error) {
	opts.applyDefaults()

	query := `SELECT
        COUNT(*) AS total,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS pending,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS running,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS succeeded,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS failed,
        COALESCE(MIN(updated_at), 0) AS oldest,
        COALESCE(MAX(updated_at), 0) AS newest
        FROM analysis_runs`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	args := []any{string(StatusPending), string(StatusRunning), string(StatusSucceeded), string(StatusFailed)}
	args = append(args, filterArgs...)

	row := s.db.QueryRowContext(ctx, query, args...)

	var stats RunStats
	if err := row.Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Running,
		&stats.Succeeded,
		&stats.Failed,
		&stats.OldestUpdatedAt,
		&stats.NewestUpdatedAt,
	); err != nil {
		return RunStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询运行统计失败")
	}
	if stats.Total == 0 {
		stats.OldestUpdatedAt = 0
		stats.NewestUpdatedAt = 0
	}
	return stats, nil
}

// Close 关闭底层数据库连接。
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
