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

	"golang.org/x/sync/errgroup"

	"github.com/archivault/archivault/internal/app"
	"github.com/archivault/archivault/internal/audit"
	audithttp "github.com/archivault/archivault/internal/audit/http"
	"github.com/archivault/archivault/internal/auth"
	"github.com/archivault/archivault/internal/impersonate"
	"github.com/archivault/archivault/internal/platform/cache"
	"github.com/archivault/archivault/internal/platform/db"
	"github.com/archivault/archivault/internal/rbac"
	"github.com/archivault/archivault/internal/records"
	"github.com/archivault/archivault/internal/store"
	"github.com/archivault/archivault/internal/token"
	"github.com/archivault/archivault/internal/users"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	tokens, err := token.NewManager(cfg.TokenSecret, cfg.TokenIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		logger.Error("token manager", slog.Any("error", err))
		os.Exit(1)
	}

	var dedup audit.Deduper
	var memDedup *audit.MemoryDeduper
	if cfg.AuditDedupBackend == "redis" {
		redisClient, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Error("connect redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		dedup = audit.NewRedisDeduper(redisClient, cfg.AuditDedupTTL)
	} else {
		memDedup = audit.NewMemoryDeduper(cfg.AuditDedupTTL, cfg.AuditDedupMax, nil)
		dedup = memDedup
	}

	auditRepo := audit.NewRepository(pool)
	recorder := audit.NewRecorder(auditRepo, logger, cfg.AuditBuffer, cfg.AuditWriteTimeout)
	defer recorder.Close()

	storeClient := store.NewClient(
		store.NewPgxExecutor(pool).Execute,
		audit.Interceptor(recorder, dedup, logger),
	)

	usersService := users.NewService(users.NewRepository(pool))
	rbacService := rbac.NewService(rbac.NewRepository(pool), logger)
	if err := rbacService.ValidateCatalog(ctx); err != nil {
		logger.Warn("permission catalog validation", slog.Any("error", err))
	}

	authService := auth.NewService(usersService, rbacService, tokens)
	impersonateService := impersonate.NewService(usersService, rbacService, tokens, authService)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Guard:              auth.Guard{Logger: logger, Service: authService, Tokens: tokens},
		RBACMiddleware:     rbac.Middleware{Logger: logger},
		AuthHandler:        auth.NewHandler(logger, authService),
		UsersHandler:       users.NewHandler(logger, usersService),
		RBACHandler:        rbac.NewHandler(logger, rbacService),
		AuditHandler:       audithttp.NewHandler(logger, audit.NewService(auditRepo)),
		RecordsHandler:     records.NewHandler(logger, storeClient),
		ImpersonateHandler: impersonate.NewHandler(logger, impersonateService),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if memDedup != nil {
		g.Go(func() error {
			ticker := time.NewTicker(cfg.AuditDedupTTL)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					memDedup.Sweep()
				}
			}
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}

	// Flush any audit events still buffered before the process exits.
	recorder.Close()
}
