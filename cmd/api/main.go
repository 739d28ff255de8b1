package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"call-platform/internal/auth"
	"call-platform/internal/calls"
	"call-platform/internal/config"
	"call-platform/internal/conversation"
	"call-platform/internal/directory"
	"call-platform/internal/httpapi"
	"call-platform/internal/media"
	"call-platform/internal/push"
	"call-platform/pkg/logger"
	"call-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	tokenIssuer, err := media.NewIssuer(cfg.Media)
	if err != nil {
		log.Error("media issuer init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	var dispatcher push.Dispatcher = push.Disabled{}
	if cfg.Push.ProviderURL != "" {
		dispatcher = push.NewHTTPDispatcher(cfg.Push)
	}

	sessions := calls.NewPostgresStore(db)
	history := calls.NewPostgresHistory(db)
	pointers := calls.NewRedisPointers(rdb)
	convos := conversation.NewPostgresStore(db)
	users := directory.NewPostgresRepo(db)
	archiver := calls.NewArchiver(history, convos)
	effects := calls.NewAsyncRunner(16, 10*time.Second, log)

	callService := calls.NewService(calls.ServiceDeps{
		Sessions:   sessions,
		History:    history,
		Pointers:   pointers,
		Directory:  users,
		Tokens:     tokenIssuer,
		Push:       dispatcher,
		Archiver:   archiver,
		Effects:    effects,
		PendingTTL: cfg.Call.PendingTTL,
		GraceTTL:   cfg.Call.GraceTTL,
	})

	sweeper := calls.NewSweeper(sessions, pointers, archiver, effects, calls.SweeperConfig{
		Interval: cfg.Call.SweepInterval,
		Batch:    cfg.Call.SweepBatch,
		GraceTTL: cfg.Call.GraceTTL,
	}, log)
	go sweeper.Run(rootCtx)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{Auth: authManager, Calls: callService}
	registerRoutes(r, h, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
