package metrics

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"

	"github.com/lk2023060901/xdooria-ai/pkg/logger"
)

// Server 持有独立的 registry，并按配置通过 HTTP 暴露
type Server struct {
	config   *Config
	registry *prometheus.Registry
	system   *SystemCollector
	logger   logger.Logger

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	done       chan struct{}

	closed atomic.Bool
}

// NewServer 创建 registry 并注册默认采集器，调用 Start 后才监听端口
func NewServer(cfg *Config, l logger.Logger) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate metrics config")
	}
	if l == nil {
		l = logger.NewNoop()
	}

	s := &Server{
		config:   cfg,
		registry: prometheus.NewRegistry(),
		logger:   l.Named("metrics"),
	}
	if cfg.EnableGoCollector {
		s.registry.MustRegister(collectors.NewGoCollector())
	}
	if cfg.EnableProcessCollector {
		s.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	if cfg.EnableSystemCollector {
		sys, err := NewSystemCollector(cfg.Namespace)
		if err != nil {
			return nil, err
		}
		s.system = sys
		s.registry.MustRegister(sys)
	}
	return s, nil
}

// Registry 底层 registry
func (s *Server) Registry() *prometheus.Registry { return s.registry }

// System 资源采集器，未启用时为 nil
func (s *Server) System() *SystemCollector { return s.system }

// Handler 指标 HTTP handler
func (s *Server) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Start 监听并在后台提供指标，HTTP 未启用时什么也不做
func (s *Server) Start() error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	if !s.config.HTTPServer.Enabled {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.config.HTTPServer.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", s.config.HTTPServer.Addr)
	}
	mux := http.NewServeMux()
	mux.Handle(s.config.HTTPServer.Path, s.Handler())
	s.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  s.config.HTTPServer.Timeout,
		WriteTimeout: s.config.HTTPServer.Timeout,
	}
	s.listener = ln
	s.done = make(chan struct{})

	srv, done := s.httpServer, s.done
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", "error", err)
		}
	}()
	s.logger.Info("metrics server listening", "addr", ln.Addr().String(), "path", s.config.HTTPServer.Path)
	return nil
}

// Addr 实际监听地址，未启动时为空
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown 关闭 HTTP 服务并等待退出
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.closed.CAS(false, true) {
		return ErrServerClosed
	}

	s.mu.Lock()
	srv, done := s.httpServer, s.done
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "shutdown metrics server")
	}
	<-done
	return nil
}
