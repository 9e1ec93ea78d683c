package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/choraleia/coach/pkg/config"
	"github.com/choraleia/coach/pkg/db"
	"github.com/choraleia/coach/pkg/event"
	"github.com/choraleia/coach/pkg/handler"
	"github.com/choraleia/coach/pkg/metrics"
	"github.com/choraleia/coach/pkg/service"
	"github.com/choraleia/coach/pkg/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Server struct {
	cfg       *config.AppConfig
	ginEngine *gin.Engine
	db        *gorm.DB
	core      *core
	events    *event.Emitter
	metrics   *metrics.Metrics
	logger    *slog.Logger
	port      int
}

// NewServer opens storage, builds the turn pipeline and registers routes.
func NewServer(ctx context.Context, cfg *config.AppConfig) (*Server, error) {
	logger := utils.GetLogger()

	database, err := db.Open(cfg.StorageDriver(), cfg.StorageDSN(), logger)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(database); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	m := metrics.New()
	c, err := newCore(ctx, cfg, m)
	if err != nil {
		return nil, err
	}

	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())
	ginEngine.Use(corsMiddleware())

	s := &Server{
		cfg:       cfg,
		ginEngine: ginEngine,
		db:        database,
		core:      c,
		events:    event.NewEmitter(),
		metrics:   m,
		logger:    logger,
	}
	s.SetupRoutes()
	return s, nil
}

// corsMiddleware allows browser clients on localhost origins.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// If there's no Origin header, it's not a browser CORS request.
		if origin != "" {
			if !localOrigin(origin) {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-User-ID")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func localOrigin(origin string) bool {
	for _, prefix := range []string{"http://localhost", "http://127.0.0.1", "https://localhost", "https://127.0.0.1"} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

func (s *Server) SetupRoutes() {
	store := service.NewGormStore(s.db, s.events)
	chatService := service.NewChatService(s.core.orchestrator, store, s.cfg.MaxHistoryLength(), s.metrics)
	chatHandler := handler.NewChatHandler(chatService, store)
	wsHandler := event.NewWSHandler(s.events, handler.UserID)

	s.ginEngine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	s.ginEngine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API group
	// /api/v1
	apiGroup := s.ginEngine.Group("/api/v1")
	chatHandler.RegisterRoutes(apiGroup)
	apiGroup.GET("/models/providers", handler.GetProviders(s.cfg.ModelProvider()))
	apiGroup.GET("/events/ws", wsHandler.Handle)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host(), s.cfg.Port())
	srv := &http.Server{Addr: addr, Handler: s.ginEngine}

	// Attempt to listen on port first; if occupied return error immediately
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	}
	s.logger.Info("Server listening", "addr", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Close releases storage and cache connections.
func (s *Server) Close() {
	s.core.Close()
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
