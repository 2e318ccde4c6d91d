// Package hub serves the lazkit intelligence API: settlement-signed RAG
// queries, in-process keyword retrieval, LLM insights and ledger trends.
package hub

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lazkit/internal/ledger"
	"lazkit/internal/logging"
	"lazkit/internal/query"
)

// Retriever runs a RAG query against the configured query node.
type Retriever interface {
	Retrieve(ctx context.Context, req query.RAGRequest) (*query.RAGResponse, error)
}

// Completer answers a prompt, optionally anchored to a data file.
type Completer interface {
	Complete(ctx context.Context, fileID *big.Int, system, prompt string) (string, error)
}

// Config holds configuration for the hub server.
type Config struct {
	Listen          string
	CORSOrigins     []string
	RateLimitRPS    float64
	RateLimitBurst  int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// DefaultLimit applies when a request omits limit.
	DefaultLimit int
	// Wallet is reported by /health.
	Wallet string
	// DocsDir, when set, is watched and each document in it served as a
	// /query/local collection.
	DocsDir string
}

// Deps are the collaborators behind the endpoints. Any of them may be nil;
// endpoints that need a missing one answer 503.
type Deps struct {
	Retriever Retriever
	// InsightRetriever serves the retrievals behind an insight, which is
	// recorded once as a whole. It should not record them itself. Retriever
	// is used when nil.
	InsightRetriever Retriever
	Completer        Completer
	Ledger           *ledger.Ledger
	// ChainCheck reports whether the RPC endpoint is reachable.
	ChainCheck func(ctx context.Context) error
}

// Server is the hub HTTP server.
type Server struct {
	cfg     Config
	deps    Deps
	router  *gin.Engine
	limiter *RateLimiter
	local   *collections
	started time.Time
}

// NewServer builds the router.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:8000"
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 5
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 10
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 3
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		router:  router,
		limiter: NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		local:   newCollections(64),
		started: time.Now(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(s.cfg.CORSOrigins) == 1 && s.cfg.CORSOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.cfg.CORSOrigins
	}

	s.router.Use(requestIDMiddleware())
	s.router.Use(accessLogMiddleware())
	s.router.Use(cors.New(corsConfig))
	s.router.Use(RateLimitMiddleware(s.limiter))
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	q := s.router.Group("/query")
	{
		q.POST("/rag", s.handleRAG)
		q.POST("/local", s.handleLocal)
	}

	a := s.router.Group("/analytics")
	{
		a.POST("/insights", s.handleInsights)
		a.GET("/trends", s.handleTrends)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.DocsDir != "" {
		dw, err := newDocWatcher(s.cfg.DocsDir, s.local)
		if err != nil {
			return fmt.Errorf("failed to create document watcher: %w", err)
		}
		if err := dw.Start(ctx); err != nil {
			dw.Stop()
			return fmt.Errorf("failed to watch %s: %w", s.cfg.DocsDir, err)
		}
		defer dw.Stop()
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Hub("Hub listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("hub server failed: %w", err)
	case <-ctx.Done():
	}

	logging.Hub("Shutting down hub")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("hub shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
