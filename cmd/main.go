package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Drivers
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	// Instrumentation
	"github.com/exaring/otelpgx"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	// Interne
	"github.com/jupiterclapton/cenackle/services/post-feed/config"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/adapters/primary/events"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/adapters/primary/rest"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/adapters/secondary/broadcast"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/adapters/secondary/eventbroker"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/adapters/secondary/repository"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/adapters/secondary/security"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/adapters/secondary/storage"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/auth"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/ports"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/services"
)

func main() {
	// 1. Config & Logger
	cfg := config.Load()
	initLogger(cfg)
	slog.Info("🚀 Starting Post Feed Service", "config", cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Télémétrie (Tracing)
	tp, err := initTracer(ctx, cfg)
	if err != nil {
		slog.Error("Failed to init tracer", "error", err)
	} else {
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	// 3. Infrastructure: Base de données (Postgres)
	dbConfig, err := pgxpool.ParseConfig(cfg.DBUrl)
	if err != nil {
		slog.Error("Unable to parse DB config", "error", err)
		os.Exit(1)
	}
	dbConfig.ConnConfig.Tracer = otelpgx.NewTracer()

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		slog.Error("Unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	postRepo := repository.NewPostgresRepo(dbPool)
	if err := postRepo.Migrate(ctx); err != nil {
		slog.Error("Unable to migrate database", "error", err)
		os.Exit(1)
	}
	slog.Info("✅ Connected to Postgres")

	// 4. Infrastructure: Redis (index user -> posts)
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		slog.Error("Unable to instrument Redis", "error", err)
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("Unable to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	slog.Info("✅ Connected to Redis")

	// 5. Infrastructure: Object storage (S3)
	media, err := storage.NewS3Gateway(storage.Config{
		Bucket:   cfg.S3Bucket,
		Region:   cfg.S3Region,
		Endpoint: cfg.S3Endpoint,
		Folder:   cfg.S3Folder,
		BaseURL:  cfg.MediaBaseURL,
	})
	if err != nil {
		slog.Error("Unable to init object storage", "error", err)
		os.Exit(1)
	}

	// 6. Sécurité : vérification des tokens émis par l'identity-service
	publicKey, err := os.ReadFile(cfg.JWTPublicKeyPath)
	if err != nil {
		slog.Error("Failed to read JWT public key", "path", cfg.JWTPublicKeyPath, "error", err)
		os.Exit(1)
	}
	verifier, err := security.NewJWTVerifier(publicKey, cfg.JWTIssuer)
	if err != nil {
		slog.Error("Failed to init JWT verifier", "error", err)
		os.Exit(1)
	}

	// 7. Feed : hub local, alimenté via NATS quand il est configuré
	hub := broadcast.NewHub(broadcast.DefaultBufferSize)
	var publisher ports.EventPublisher = hub

	if cfg.NatsUrl != "none" {
		nc, err := nats.Connect(cfg.NatsUrl, nats.Name("post-feed"))
		if err != nil {
			slog.Error("Unable to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer nc.Drain()

		if _, err := events.NewRelay(hub).Subscribe(nc, cfg.FeedSubject); err != nil {
			slog.Error("Failed to subscribe to NATS", "error", err)
			os.Exit(1)
		}
		publisher = eventbroker.NewNatsPublisher(nc, cfg.FeedSubject)
		slog.Info("✅ Connected to NATS", "subject", cfg.FeedSubject)
	} else {
		slog.Warn("NATS disabled, feed events stay local to this instance")
	}

	// 8. Core
	store := services.NewPostStore(postRepo, repository.NewRedisPostIndex(rdb))
	feedService := services.NewFeedService(
		store,
		repository.NewPostgresUserRepo(dbPool),
		media,
		publisher,
		services.WithMutationTimeout(cfg.MutationTimeout),
	)

	// 9. HTTP : routes + chaîne de middlewares
	corsPolicy := rest.NewCORS(cfg.CORSOrigins)
	api := rest.NewServer(feedService, hub,
		rest.WithUploadDir(cfg.UploadDir),
		rest.WithCORS(corsPolicy),
	)

	var h http.Handler = api.Handler()
	h = auth.Middleware(verifier)(h)
	h = corsPolicy.Handler(h)
	h = otelhttp.NewHandler(h, "post-feed", otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
		return fmt.Sprintf("HTTP %s %s", r.Method, r.URL.Path)
	}))

	srvHTTP := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 10. gRPC : health check standard + reflection
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		slog.Error("Failed to listen", "error", err)
		os.Exit(1)
	}

	// 11. Démarrage
	go func() {
		slog.Info("📡 Health gRPC listening", "port", cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("gRPC server error", "error", err)
			os.Exit(1)
		}
	}()

	go func() {
		slog.Info("📡 Post Feed HTTP listening", "port", cfg.HTTPPort)
		if err := srvHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("🛑 Shutting down server...")

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.MutationTimeout+5*time.Second)
	defer shutdownCancel()
	if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	grpcServer.GracefulStop()

	slog.Info("👋 Server exited")
}

// --- Helpers ---

func initLogger(cfg config.Config) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.Env == "local" {
		opts.Level = slog.LevelDebug
	}
	var handler slog.Handler
	if cfg.Env == "local" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func initTracer(ctx context.Context, cfg config.Config) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OtelEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, _ := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String("post-feed"),
			semconv.DeploymentEnvironmentKey.String(cfg.Env),
		),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}
