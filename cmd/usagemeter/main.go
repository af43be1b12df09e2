package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/heritage-labs/usagemeter/internal/catalog"
	"github.com/heritage-labs/usagemeter/internal/config"
	dbPostgres "github.com/heritage-labs/usagemeter/internal/db/postgres"
	dbRedis "github.com/heritage-labs/usagemeter/internal/db/redis"
	"github.com/heritage-labs/usagemeter/internal/domain/category"
	"github.com/heritage-labs/usagemeter/internal/domain/period"
	logpkg "github.com/heritage-labs/usagemeter/internal/logger"
	"github.com/heritage-labs/usagemeter/internal/metrics"
	"github.com/heritage-labs/usagemeter/internal/repository/counter"
	chiTransport "github.com/heritage-labs/usagemeter/internal/transport/chi"
	"github.com/heritage-labs/usagemeter/internal/usecase/entitlement"
	healthuc "github.com/heritage-labs/usagemeter/internal/usecase/health"
	"github.com/heritage-labs/usagemeter/internal/usecase/recorder"
	usageuc "github.com/heritage-labs/usagemeter/internal/usecase/usage"
	"github.com/heritage-labs/usagemeter/internal/version"
)

// counterRepo is what every counter backend provides to the use cases.
type counterRepo interface {
	Read(ctx context.Context, userID string, cat category.Category, p period.Period) (int64, error)
	ReadMany(ctx context.Context, userID string, cats []category.Category, p period.Period) (map[category.Category]int64, error)
	Increment(ctx context.Context, userID string, cat category.Category, p period.Period) (int64, error)
}

// backend bundles a counter repository with its connection lifecycle.
type backend struct {
	counters counterRepo
	pinger   healthuc.DBPinger
	close    func()
}

func main() {
	// .env is optional; real environments inject variables directly.
	_ = godotenv.Load()

	// Load configuration based on ENV
	env := config.GetEnv()

	cfg := config.MustLoad(env)

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting usagemeter API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("period_policy", cfg.Metering.PeriodPolicy),
	)

	limits, err := catalog.New(cfg.Limits)
	if err != nil {
		logger.Fatal("Invalid limit overrides", zap.Error(err))
	}
	policy, err := period.ParsePolicy(cfg.Metering.PeriodPolicy)
	if err != nil {
		logger.Fatal("Invalid period policy", zap.Error(err))
	}
	periods := period.NewResolver(policy)

	ctx := context.Background()
	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open counter store", zap.Error(err))
	}
	defer be.close()

	// Register metering metrics explicitly (no init())
	metrics.RegisterMeteringMetrics()

	// Create use case services
	timeout := cfg.Metering.StoreTimeout()
	checkSvc := entitlement.New(limits, periods, be.counters, timeout, logger)
	recordSvc := recorder.New(limits, periods, be.counters, timeout, logger)
	usageSvc := usageuc.New(limits, periods, be.counters, timeout, logger)
	healthSvc := healthuc.New(be.pinger, cfg.Database.Driver)

	// Create chi server
	server := chiTransport.NewServer(checkSvc, recordSvc, usageSvc, healthSvc, logger)
	verifier := chiTransport.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)

	r := newRouter(server, verifier, cfg.CORS.AllowedOrigins, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// openBackend connects the configured counter store and waits until it answers.
func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backend, error) {
	readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second

	switch cfg.Database.Driver {
	case config.DriverRedis, config.DriverValkey:
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
			DB:       cfg.Database.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("create %s store: %w", cfg.Database.Driver, err)
		}
		if err := store.WaitForReady(ctx, readiness); err != nil {
			store.Close()
			return nil, fmt.Errorf("%s not ready: %w", cfg.Database.Driver, err)
		}
		logger.Info("Connected to database", zap.Strings("db_addrs", cfg.Database.Addrs))
		return &backend{
			counters: counter.NewKV(store, cfg.Storage.KeyPrefix, cfg.Storage.Retention()),
			pinger:   store,
			close:    store.Close,
		}, nil

	case config.DriverPostgres:
		store, err := dbPostgres.NewStore(dbPostgres.Config{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime(),
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres store: %w", err)
		}
		if err := store.WaitForReady(ctx, readiness); err != nil {
			store.Close()
			return nil, fmt.Errorf("postgres not ready: %w", err)
		}
		repo := counter.NewSQL(store.DB())
		if err := repo.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		logger.Info("Connected to database", zap.String("db_driver", config.DriverPostgres))
		return &backend{counters: repo, pinger: store, close: store.Close}, nil

	case config.DriverMemory:
		logger.Warn("Using in-process counter store; usage is lost on restart and not shared between replicas")
		repo := counter.NewMemory()
		return &backend{counters: repo, pinger: repo, close: func() {}}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// newRouter mounts the middleware stack and API routes.
// Metrics wrap auth so rejected requests are counted.
func newRouter(server *chiTransport.Server, verifier *chiTransport.TokenVerifier, origins []string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Metering-Degraded"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(metrics.Middleware())
	r.Use(chiTransport.AuthMiddleware(verifier))
	server.Routes(r)
	return r
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			}
			if ww.Header().Get("X-Metering-Degraded") != "" {
				fields = append(fields, zap.Bool("metering_degraded", true))
			}
			// Canonical log line, one per request
			reqLogger.Info("http_request", fields...)
		})
	}
}
