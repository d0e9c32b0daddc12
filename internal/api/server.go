package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"DataWalker/internal/run"
)

// Server 负责暴露 REST 接口，供外部提交与查询分析运行。
type Server struct {
	addr    string
	service *run.Service
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, service *run.Service) *Server {
	return &Server{addr: addr, service: service}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler 返回路由后的 HTTP 处理器。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/analyses", s.handleAnalyses)
	mux.HandleFunc("/api/v1/analyses/", s.handleAnalysisByID)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	return mux
}

func (s *Server) handleAnalyses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmit(w, r)
	case http.MethodGet:
		s.handleList(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

// handleSubmit 处理提交分析运行的请求。
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		http.Error(w, "运行服务未初始化", http.StatusServiceUnavailable)
		return
	}

	var req run.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	// 外部提交一律从深度 0 开始，子运行只能由处理器派生。
	req.Depth = 0
	req.ParentID = ""

	result, err := s.service.Submit(r.Context(), req)
	if err != nil {
		if run.IsRunError(err, run.CodeRunValidation) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(result)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		http.Error(w, "运行服务未初始化", http.StatusServiceUnavailable)
		return
	}

	opts := make([]run.ListOption, 0, 3)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts = append(opts, run.WithLimit(parsed))
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts = append(opts, run.WithOffset(parsed))
		}
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		statuses := make([]run.Status, 0, 2)
		for _, item := range strings.Split(raw, ",") {
			statuses = append(statuses, run.Status(strings.TrimSpace(item)))
		}
		opts = append(opts, run.WithStatuses(statuses...))
	}

	results, err := s.service.List(r.Context(), opts...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(results)
}

// handleAnalysisByID 处理单个运行的查询。
func (s *Server) handleAnalysisByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.service == nil {
		http.Error(w, "运行服务未初始化", http.StatusServiceUnavailable)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/analyses/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "无效的运行 ID", http.StatusBadRequest)
		return
	}

	result, err := s.service.Get(r.Context(), id)
	if err != nil {
		if run.IsRunError(err, run.CodeRunNotFound) {
			http.Error(w, "运行不存在", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.service == nil {
		http.Error(w, "运行服务未初始化", http.StatusServiceUnavailable)
		return
	}

	stats, err := s.service.Stats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
