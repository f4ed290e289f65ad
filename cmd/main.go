package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"tenderdocs/internal/auth"
	"tenderdocs/internal/cache"
	"tenderdocs/internal/config"
	"tenderdocs/internal/handler"
	"tenderdocs/internal/repository"
	"tenderdocs/internal/service"
	"tenderdocs/internal/service/s3"
	"tenderdocs/migrations"
)

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Str("service", "tenderdocs").Logger()
}

func connectWithRetry(cfg config.DatabaseConfig, maxAttempts int, delay time.Duration, logger zerolog.Logger) (*sqlx.DB, error) {
	// Сначала подключаемся к системной базе postgres и создаем рабочую базу, если ее нет
	system := cfg
	system.Name = "postgres"
	pgDB, err := sqlx.Connect("postgres", system.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres database: %w", err)
	}
	defer pgDB.Close()

	var exists bool
	err = pgDB.Get(&exists, "SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)", cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %w", err)
	}

	if !exists {
		logger.Info().Str("database", cfg.Name).Msg("database does not exist, creating")
		if _, err = pgDB.Exec(fmt.Sprintf("CREATE DATABASE %q", cfg.Name)); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	var db *sqlx.DB
	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.Connect("postgres", cfg.GetDSN())
		if err == nil {
			return db, nil
		}

		logger.Warn().Err(err).Int("attempt", i+1).Int("max_attempts", maxAttempts).Msg("failed to connect to database")
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxAttempts, err)
}

func runMigrations(cfg *config.Config, logger zerolog.Logger) error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	var m *migrate.Migrate
	for i := 0; i < 5; i++ {
		m, err = migrate.NewWithSourceInstance("iofs", source, cfg.Database.GetURL())
		if err == nil {
			break
		}
		logger.Warn().Err(err).Int("attempt", i+1).Msg("failed to create migrate instance")
		time.Sleep(5 * time.Second)
	}
	if err != nil {
		return fmt.Errorf("failed to create migrate instance after retries: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if dirty {
		logger.Warn().Uint("version", version).Msg("found dirty database state, forcing version")
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func newStatusCache(cfg config.RedisConfig, logger zerolog.Logger) (cache.StatusCache, func()) {
	if cfg.Addr == "" {
		logger.Info().Msg("redis address is not set, status cache disabled")
		return cache.NullStatusCache{}, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis is not reachable, status cache will degrade to misses")
	}

	return cache.NewRedisStatusCache(client, cfg.StatusTTL, logger), func() { client.Close() }
}

func main() {
	// Загружаем конфигурации
	appConfig, err := config.NewConfig(".app.env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(appConfig)

	db, err := connectWithRetry(appConfig.Database, 5, 5*time.Second, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database after retries")
	}
	defer db.Close()

	if err := runMigrations(appConfig, logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("failed to ping database")
	}

	// Хранилище документов
	storageConfig, err := s3.NewConfig(".s3.env")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load storage config")
	}

	storage, err := s3.New(storageConfig, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create storage client")
	}

	authConfig, err := auth.NewConfig(".auth.env")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load auth config")
	}

	statusCache, closeCache := newStatusCache(appConfig.Redis, logger)
	defer closeCache()

	// Инициализация репозиториев
	tenderRepo := repository.NewTenderRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	sessionRepo := repository.NewUploadSessionRepository(db)
	fileRepo := repository.NewUploadedFileRepository(db)
	formStateRepo := repository.NewFormStateRepository(db)

	// Инициализация сервисов
	uploadService := service.NewUploadService(tenderRepo, submissionRepo, sessionRepo, fileRepo, storage, statusCache, appConfig.Upload, logger)
	submissionService := service.NewSubmissionService(tenderRepo, submissionRepo, fileRepo, statusCache, logger)
	formStateService := service.NewFormStateService(submissionRepo, formStateRepo, logger)
	sweeper := service.NewSessionSweeper(sessionRepo, storage, appConfig.Upload.SweepBatchSize, appConfig.Upload.StorageTimeout, logger)

	// Инициализация хендлеров
	responder := handler.NewResponder(appConfig.Debug.ExposeErrors, logger)
	router := handler.NewRouter(handler.RouterConfig{
		Uploads:        handler.NewUploadHandler(uploadService, submissionService, responder),
		FormStates:     handler.NewFormStateHandler(formStateService, responder),
		Responder:      responder,
		Verifier:       auth.NewVerifier(authConfig),
		AllowedOrigins: appConfig.Server.AllowedOrigins,
		RequestTimeout: appConfig.Server.RequestTimeout,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", appConfig.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// gRPC сервер отдает только статус готовности
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	readiness := newReadiness(healthServer, logger, map[string]func(ctx context.Context) error{
		"database": db.PingContext,
		"cache":    statusCache.Ping,
		"storage":  storage.Ping,
	})
	go readiness.run(ctx, 15*time.Second)

	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%s", appConfig.Server.GRPCPort))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to listen for gRPC")
		}
		logger.Info().Str("port", appConfig.Server.GRPCPort).Msg("starting gRPC health server")
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal().Err(err).Msg("failed to serve gRPC")
		}
	}()

	go func() {
		logger.Info().Str("port", appConfig.Server.Port).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start HTTP server")
		}
	}()

	// Очистка просроченных сессий загрузки
	go sweeper.Run(ctx, appConfig.Upload.SweepInterval)

	<-ctx.Done()
	logger.Info().Msg("shutting down servers")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server forced to shutdown")
	}

	grpcServer.GracefulStop()

	logger.Info().Msg("server exited properly")
}
