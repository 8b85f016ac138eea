package server

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/iabetor/ttshub/internal/cache"
	"github.com/iabetor/ttshub/internal/config"
	"github.com/iabetor/ttshub/internal/logger"
	"github.com/iabetor/ttshub/internal/synth"
)

// Server 对外提供合成 HTTP API。
type Server struct {
	cfg   *config.Config
	svc   *synth.Service
	cache *cache.Cache
	http  *http.Server
}

// New 创建 HTTP 服务。cache 可为 nil（缓存禁用）。
func New(cfg *config.Config, svc *synth.Service, c *cache.Cache) (*Server, error) {
	if err := os.MkdirAll(cfg.Server.OutputDir, 0755); err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, svc: svc, cache: c}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/tts", s.handleSynthesize)
	mux.HandleFunc("GET /api/tts/stream", s.handleStream)
	mux.HandleFunc("POST /api/tts/stream", s.handleStream)
	mux.Handle("/output/", http.StripPrefix("/output/",
		http.FileServer(http.Dir(cfg.Server.OutputDir))))

	s.http = &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
		// 流式响应在首个模型加载时可能持续很久，不设 WriteTimeout
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	return s, nil
}

// Handler 返回底层 http.Handler（测试用）。
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start 启动 HTTP 服务并阻塞到服务关闭。
func (s *Server) Start() error {
	logger.Infof("[server] HTTP 服务启动: %s", s.cfg.Server.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 优雅关闭。
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("[server] HTTP 服务关闭中...")
	return s.http.Shutdown(ctx)
}
