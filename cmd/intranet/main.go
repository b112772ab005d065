package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/batisseur/intranet/internal/app"
	"github.com/batisseur/intranet/internal/audit"
	audithttp "github.com/batisseur/intranet/internal/audit/http"
	"github.com/batisseur/intranet/internal/auth"
	"github.com/batisseur/intranet/internal/chantiers"
	"github.com/batisseur/intranet/internal/invoices"
	"github.com/batisseur/intranet/internal/observability"
	"github.com/batisseur/intranet/internal/ownership"
	"github.com/batisseur/intranet/internal/platform/cache"
	"github.com/batisseur/intranet/internal/platform/db"
	"github.com/batisseur/intranet/internal/rbac"
	"github.com/batisseur/intranet/internal/stock"
	"github.com/batisseur/intranet/internal/users"
	"github.com/batisseur/intranet/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{
		MaxConns:        cfg.PGMaxConns,
		MaxConnLifetime: cfg.PGMaxConnLifetime,
	})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisOpts := cfg.RedisOptions()
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	asynqOpts := asynq.RedisClientOpt{Addr: redisOpts.Addr, Password: redisOpts.Password, DB: redisOpts.DB}
	jobClient, err := jobs.NewClient(asynqOpts, cfg.AuditRetryMax)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(asynqOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	auditRepo := audit.NewRepository(dbpool)
	recorder := audit.NewRecorder(auditRepo, logger,
		audit.WithRetryQueue(jobClient),
		audit.WithFailureCounter(metrics),
		audit.WithWriteTimeout(cfg.AuditWriteTimeout),
	)
	auditService := audit.NewService(auditRepo)

	authRepo := auth.NewRepository(dbpool)
	tokens := auth.NewTokenStore(redisClient, cfg.SessionTTL)
	resolver := auth.NewResolver(tokens, authRepo)
	authService := auth.NewService(authRepo, tokens)
	authHandler := auth.NewHandler(logger, authService, resolver, recorder, cfg.IsProduction())

	owners := ownership.NewResolver(ownership.NewPGLookup(dbpool))
	pdp := rbac.NewPDP(resolver, owners, rbac.WithObserver(metrics))
	guard := rbac.NewGuard(pdp, recorder)
	rbacMiddleware := rbac.Middleware{PDP: pdp, Logger: logger}

	auditHandler := audithttp.NewHandler(logger, auditService, recorder, pdp, cfg.AuditIngestToken)

	usersService := users.NewService(users.NewRepository(dbpool, auditRepo), guard, recorder)
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	chantiersService := chantiers.NewService(chantiers.NewRepository(dbpool), guard, recorder)
	chantiersHandler := chantiers.NewHandler(logger, chantiersService, rbacMiddleware)

	invoicesService := invoices.NewService(invoices.NewRepository(dbpool), guard, recorder)
	invoicesHandler := invoices.NewHandler(logger, invoicesService, rbacMiddleware)

	stockService := stock.NewService(stock.NewRepository(dbpool), guard, recorder)
	stockHandler := stock.NewHandler(logger, stockService, rbacMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AuthHandler:      authHandler,
		AuditHandler:     auditHandler,
		UsersHandler:     usersHandler,
		ChantiersHandler: chantiersHandler,
		InvoicesHandler:  invoicesHandler,
		StockHandler:     stockHandler,
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
