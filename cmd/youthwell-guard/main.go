package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/xzc516/fit5032-youthwell-project/internal/api"
	"github.com/xzc516/fit5032-youthwell-project/internal/auth"
	"github.com/xzc516/fit5032-youthwell-project/internal/chat"
	"github.com/xzc516/fit5032-youthwell-project/internal/chread"
	"github.com/xzc516/fit5032-youthwell-project/internal/contentguard"
	"github.com/xzc516/fit5032-youthwell-project/internal/observability"
	"github.com/xzc516/fit5032-youthwell-project/internal/ratelimit"
	"github.com/xzc516/fit5032-youthwell-project/internal/risk"
	"github.com/xzc516/fit5032-youthwell-project/internal/server"
	"github.com/xzc516/fit5032-youthwell-project/internal/storage"
	"github.com/xzc516/fit5032-youthwell-project/internal/store"
)

func main() {
	// A missing .env is normal in containers.
	_ = godotenv.Load()

	logger := mustBuildLogger(envOrDefault("GUARD_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	httpPort := envOrDefault("GUARD_HTTP_PORT", "8080")
	grpcPort := envOrDefault("GUARD_GRPC_PORT", "50051")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	redisAddr := os.Getenv("REDIS_ADDR")
	cacheTTL := envOrDefaultDuration("GUARD_AUTH_CACHE_TTL", 30*time.Second)
	sessionTTL := envOrDefaultDuration("GUARD_SESSION_TTL", 30*time.Minute)
	rateLimit := ratelimit.Config{
		MaxRequests: envOrDefaultInt("GUARD_RATE_LIMIT_MAX", 10),
		Window:      envOrDefaultDuration("GUARD_RATE_LIMIT_WINDOW", time.Minute),
	}

	logger.Info("starting youthwell guard",
		zap.String("http_port", httpPort),
		zap.String("grpc_port", grpcPort),
		zap.Int("rate_limit_max", rateLimit.MaxRequests),
		zap.Duration("rate_limit_window", rateLimit.Window),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.New()

	// Crisis resources: built-in list unless a YAML file overrides it.
	classifier := risk.DefaultClassifier()
	if path := os.Getenv("GUARD_RESOURCES_FILE"); path != "" {
		res, err := risk.LoadResources(path)
		if err != nil {
			logger.Fatal("failed to load crisis resources", zap.String("path", path), zap.Error(err))
		}
		classifier = risk.NewClassifier(res)
		logger.Info("crisis resources loaded", zap.String("path", path))
	}

	// Postgres: client registry and policies. Without it, keys are only
	// format-checked.
	var (
		authenticator auth.Authenticator = auth.NewStaticAuthenticator()
		clients       api.ClientStore
		invalidate    func(string)
	)
	if postgresDSN != "" {
		db, err := sql.Open("pgx", postgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		pgStore := store.NewStore(db)
		if err := pgStore.Migrate(ctx); err != nil {
			logger.Fatal("failed to migrate postgres", zap.Error(err))
		}
		pgAuth := auth.NewPostgresAuthenticator(pgStore, cacheTTL, logger)
		authenticator, clients, invalidate = pgAuth, pgStore, pgAuth.Invalidate
		logger.Info("postgres connected")
	} else {
		logger.Warn("no POSTGRES_DSN set, using static key check and disabling client admin")
	}

	// ClickHouse: event writer and reader share one connection.
	var (
		writer storage.EventWriter
		reader api.EventReader
	)
	if clickhouseDSN != "" {
		conn, err := storage.Open(clickhouseDSN)
		if err == nil {
			err = storage.EnsureSchema(ctx, conn)
		}
		if err != nil {
			logger.Warn("clickhouse unavailable, falling back to log writer", zap.Error(err))
			writer = storage.NewLogWriter(logger)
		} else {
			writer = storage.NewClickHouseWriter(conn, logger, storage.WithDropHook(metrics.ObserveEventDropped))
			chReader := chread.NewReader(conn, logger)
			defer func() { _ = chReader.Close() }()
			reader = chReader
			logger.Info("clickhouse connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}

	// Rate limiting: Redis shares windows across replicas.
	factory := ratelimit.MemoryFactory()
	if redisAddr != "" {
		rdb, err := ratelimit.Connect(ctx, redisAddr, os.Getenv("REDIS_PASSWORD"), envOrDefaultInt("REDIS_CONNECT_RETRIES", 3))
		if err != nil {
			logger.Warn("redis unavailable, using in-memory rate limits", zap.Error(err))
		} else {
			defer func() { _ = rdb.Close() }()
			factory = ratelimit.RedisFactory(rdb, envOrDefault("REDIS_KEY_PREFIX", "youthwell:ratelimit:"))
			logger.Info("redis rate limiter connected", zap.String("addr", redisAddr))
		}
	}
	limiter := ratelimit.NewRegistry(factory)
	go limiter.Run(ctx, time.Minute)

	// Support chat is optional.
	sessions := chat.NewSessionStore(sessionTTL)
	go sessions.Run(ctx, 10*time.Minute)
	var chatService *chat.Service
	if key := os.Getenv("CHAT_API_KEY"); key != "" {
		completer, err := chat.NewOpenAICompleter(chat.OpenAIConfig{
			APIKey:  key,
			BaseURL: os.Getenv("CHAT_BASE_URL"),
			Model:   os.Getenv("CHAT_MODEL"),
		})
		if err != nil {
			logger.Fatal("failed to configure chat", zap.Error(err))
		}
		chatService = chat.NewService(completer, classifier, logger)
		logger.Info("support chat enabled")
	}

	deps := &api.Dependencies{
		Auth:       authenticator,
		Invalidate: invalidate,
		Clients:    clients,
		Reader:     reader,
		Writer:     writer,
		Limiter:    limiter,
		RateLimit:  rateLimit,
		PostLimits: contentguard.DefaultPostLimits(),
		Classifier: classifier,
		Chat:       chatService,
		Sessions:   sessions,
		Metrics:    metrics,
		Logger:     logger,
		AdminToken: os.Getenv("GUARD_ADMIN_TOKEN"),
		Origins:    splitList(os.Getenv("GUARD_CORS_ORIGINS")),
	}
	if deps.AdminToken == "" && clients != nil {
		logger.Warn("GUARD_ADMIN_TOKEN not set, client admin routes are unauthenticated")
	}

	httpServer := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	guard := server.NewGuardServer(server.Options{
		Auth:       authenticator,
		Limiter:    limiter,
		RateLimit:  rateLimit,
		Classifier: classifier,
		Writer:     writer,
		Metrics:    metrics,
		Logger:     logger,
	})
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(guard.UnaryInterceptor()))
	server.Register(grpcServer, guard)
	healthServer := health.NewServer()
	healthServer.SetServingStatus(server.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		logger.Fatal("failed to listen for grpc", zap.Error(err))
	}
	go func() {
		logger.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal("grpc server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("received signal, shutting down")

	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	grpcServer.GracefulStop()
	writer.Close()

	logger.Info("youthwell guard stopped")
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

// envOrDefaultDuration accepts Go durations ("90s") or bare seconds ("90").
func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if s, err := strconv.Atoi(v); err == nil {
		return time.Duration(s) * time.Second
	}
	return defaultVal
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
