package main

import (
	"context"
	"flag"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/totegamma/castline/client"
	"github.com/totegamma/castline/internal/config"
	"github.com/totegamma/castline/internal/infra/cache"
	"github.com/totegamma/castline/internal/infra/database"
	"github.com/totegamma/castline/internal/infra/memory"
	"github.com/totegamma/castline/internal/infra/repository"
	"github.com/totegamma/castline/internal/interface/rest"
	restmw "github.com/totegamma/castline/internal/interface/rest/middleware"
	"github.com/totegamma/castline/internal/logger"
	"github.com/totegamma/castline/internal/service"
	"github.com/totegamma/castline/internal/usecase"
)

const serviceName = "castline"

func main() {
	configPath := flag.String("config", os.Getenv("CASTLINE_CONFIG"), "path to config yaml")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.New(serviceName, "info")
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New(serviceName, conf.Server.LogLevel)
	ctx := context.Background()

	if conf.Server.EnableTrace {
		cleanup, err := setupTraceProvider(ctx, conf.Server.TraceEndpoint, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to setup trace provider")
		}
		defer cleanup()
	}

	var store usecase.DocumentStore
	switch conf.Server.DocumentDriver {
	case "postgres":
		db, err := database.NewPostgres(conf.Server.PostgresDsn, database.PostgresOptions{
			MaxOpenConns: conf.Server.PostgresMaxOpenConns,
			LogLevel:     conf.Server.LogLevel,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect database")
		}
		if err := database.MigratePostgres(db); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		store = repository.NewDocumentRepository(db)
	default:
		store = memory.NewDocumentStore()
	}

	var localCache usecase.LocalCache
	var signals *service.SignalService
	if conf.Server.RedisAddr != "" {
		rdb, err := database.NewRedis(ctx, conf.Server.RedisAddr, conf.Server.RedisPassword, conf.Server.RedisDB)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rdb.Close()
		signals = service.NewSignalService(rdb)
		if conf.Server.CacheDriver == "redis" {
			localCache = cache.NewRedisCache(rdb, conf.Server.CacheNamespace)
		}
	}
	if conf.Server.CacheDriver == "memcached" {
		mc, err := database.NewMemcached(conf.Server.MemcachedAddr)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect memcached")
		}
		localCache = cache.NewMemcachedCache(mc, conf.Server.CacheNamespace)
	}
	if localCache == nil {
		localCache = cache.NewMemoryCache()
	}

	// Interfaces stay untyped nil when their backend is not configured.
	var notifier usecase.AggregateNotifier
	var subscriber rest.Subscriber
	if signals != nil {
		notifier = signals
		subscriber = signals
	}

	var screener usecase.MediaScreener
	if conf.Moderation.Endpoint != "" {
		screener = usecase.NewModerationUsecase(
			client.NewModerationClient(conf.Moderation.Endpoint, conf.Moderation.APIKey),
			log,
		)
	}

	clock := usecase.SystemClock{}
	consolidation := usecase.NewConsolidationUsecase(store, localCache, notifier, conf.Server.SignalChannel, clock, log)
	backup := usecase.NewBackupUsecase(store, localCache, clock, log)
	profile := usecase.NewProfileUsecase(store, localCache, consolidation, screener, clock, log)
	session := usecase.NewSessionUsecase(store, localCache, consolidation, backup, clock, log)
	browse := usecase.NewBrowseUsecase(localCache, clock, log)

	if conf.Server.RestoreOnStart {
		if backup.Restore(ctx) {
			log.Info().Msg("aggregate restored from backup")
		} else {
			log.Warn().Msg("no usable backup to restore")
		}
	}

	handler := rest.NewHandler(profile, consolidation, backup, session, browse, subscriber, conf.Server.SignalChannel, log)

	e := echo.New()
	e.HideBanner = true
	if conf.Server.EnableTrace {
		e.Use(otelecho.Middleware(serviceName))
	}
	e.Use(restmw.RequestLogger(log))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	handler.RegisterRoutes(e)

	log.Info().
		Str("listen", conf.Server.Listen).
		Str("documentDriver", conf.Server.DocumentDriver).
		Str("cacheDriver", conf.Server.CacheDriver).
		Bool("signals", signals != nil).
		Bool("moderation", screener != nil).
		Msg("starting castline")

	if err := e.Start(conf.Server.Listen); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func setupTraceProvider(ctx context.Context, endpoint string, log zerolog.Logger) (func(), error) {
	exporter, err := otlptracehttp.New(
		ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	cleanup := func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}
	return cleanup, nil
}
