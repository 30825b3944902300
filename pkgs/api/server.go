// Package api exposes the relay over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/naveenchin/tt-backend/pkgs/history"
	"github.com/naveenchin/tt-backend/pkgs/metrics"
	"github.com/naveenchin/tt-backend/pkgs/submission"
	log "github.com/sirupsen/logrus"
)

// Submitter records stages on chain
type Submitter interface {
	Submit(ctx context.Context, req *submission.Request) (*submission.TransactionRecord, error)
}

// HistoryReader rebuilds a product's stage history
type HistoryReader interface {
	Reconstruct(ctx context.Context, productID string) (*history.History, error)
}

// MediaStore serves stored media by content id
type MediaStore interface {
	Retrieve(ctx context.Context, cid string) ([]byte, error)
	IsAvailable(ctx context.Context) bool
}

// SubmissionIndex lists recently submitted event ids
type SubmissionIndex interface {
	RecentSubmissions(ctx context.Context, limit int64) ([]string, error)
}

// Options tunes request handling
type Options struct {
	SubmitTimeout time.Duration
	ReadTimeout   time.Duration
	MaxMediaBytes int64
	MaxMediaFiles int
	Debug         bool
}

// Server routes HTTP requests to the pipelines. Media, Index and ChainCheck
// are optional.
type Server struct {
	submitter  Submitter
	history    HistoryReader
	media      MediaStore
	index      SubmissionIndex
	chainCheck func(ctx context.Context) error
	opts       Options

	router *gin.Engine
	srv    *http.Server
}

// NewServer builds the router
func NewServer(submitter Submitter, historyReader HistoryReader, opts Options) *Server {
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 3 * time.Minute
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.MaxMediaBytes <= 0 {
		opts.MaxMediaBytes = 10 << 20
	}

	s := &Server{
		submitter: submitter,
		history:   historyReader,
		opts:      opts,
		router:    gin.New(),
	}
	s.router.Use(gin.Recovery(), requestLogger())
	_ = s.router.SetTrustedProxies(nil)
	s.routes()
	return s
}

// WithMedia enables media retrieval and IPFS health reporting
func (s *Server) WithMedia(store MediaStore) *Server {
	s.media = store
	return s
}

// WithIndex enables the recent submissions listing
func (s *Server) WithIndex(index SubmissionIndex) *Server {
	s.index = index
	return s
}

// WithChainCheck sets the chain reachability check used by /health
func (s *Server) WithChainCheck(check func(ctx context.Context) error) *Server {
	s.chainCheck = check
	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.GET("/health", s.HandleHealth)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := s.router.Group("/api/v1")
	v1.POST("/stages", s.HandleSubmitStage)
	v1.GET("/stages/:productId", s.HandleGetStages)
	v1.GET("/media/:cid", s.HandleGetMedia)
	v1.GET("/submissions/recent", s.HandleRecentSubmissions)
}

// Start serves on addr until Shutdown
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Infof("Stage relay API listening on %s", addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("HTTP request")
	}
}
