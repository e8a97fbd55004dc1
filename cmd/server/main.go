package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fekuna/omnipos-stock-service/config"
	"github.com/fekuna/omnipos-stock-service/internal/broker"
	"github.com/fekuna/omnipos-stock-service/internal/cache"
	"github.com/fekuna/omnipos-stock-service/internal/database/sqlite"
	"github.com/fekuna/omnipos-stock-service/internal/events"
	"github.com/fekuna/omnipos-stock-service/internal/health"
	"github.com/fekuna/omnipos-stock-service/internal/lock"
	"github.com/fekuna/omnipos-stock-service/internal/logger"
	"github.com/fekuna/omnipos-stock-service/internal/metrics"
	"github.com/fekuna/omnipos-stock-service/internal/middleware"
	"github.com/fekuna/omnipos-stock-service/internal/search"

	bomH "github.com/fekuna/omnipos-stock-service/internal/bom/handler"
	bomRepoPkg "github.com/fekuna/omnipos-stock-service/internal/bom/repository"
	bomUCPkg "github.com/fekuna/omnipos-stock-service/internal/bom/usecase"

	invH "github.com/fekuna/omnipos-stock-service/internal/inventory/handler"
	invRepoPkg "github.com/fekuna/omnipos-stock-service/internal/inventory/repository"
	invUCPkg "github.com/fekuna/omnipos-stock-service/internal/inventory/usecase"

	mvH "github.com/fekuna/omnipos-stock-service/internal/movement/handler"
	mvListenerPkg "github.com/fekuna/omnipos-stock-service/internal/movement/listener"
	mvRepoPkg "github.com/fekuna/omnipos-stock-service/internal/movement/repository"
	mvUCPkg "github.com/fekuna/omnipos-stock-service/internal/movement/usecase"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const serviceName = "stock-service"

func main() {
	// 1. Load Configuration
	_ = godotenv.Load()
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          "json",
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
		ServiceName:       serviceName,
	}
	if cfg.Server.AppEnv == "dev" || cfg.Server.AppEnv == "development" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = cfg.Logger.Encoding
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	// 3. Open Database
	db, err := sqlite.NewSQLite(&sqlite.Config{
		Path:            cfg.SQLite.Path,
		BusyTimeoutMS:   cfg.SQLite.BusyTimeoutMS,
		MaxOpenConns:    cfg.SQLite.MaxOpenConns,
		MaxIdleConns:    cfg.SQLite.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.SQLite.ConnMaxLifetime) * time.Second,
	})
	if err != nil {
		appLogger.Fatal("Could not open database", zap.Error(err))
	}
	defer db.Close()
	appLogger.Info("Opened SQLite database", zap.String("path", cfg.SQLite.Path))

	healthServer := health.NewServer(db, appLogger)
	appMetrics := metrics.New()

	// 4. Initialize Redis
	var redisClient *cache.RedisClient
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(&cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			appLogger.Fatal("Could not connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	// 5. Initialize Locker
	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.Stock.LockBackend == "redis" {
		if redisClient == nil {
			appLogger.Fatal("LOCK_BACKEND=redis requires REDIS_ENABLED=true")
		}
		locker = lock.NewRedisLocker(redisClient, lock.RedisConfig{
			TTL: time.Duration(cfg.Stock.LockTTL) * time.Second,
		}, appLogger)
	}
	appLogger.Info("Stock lock backend ready", zap.String("backend", cfg.Stock.LockBackend))

	// 6. Initialize Elasticsearch
	var esClient *search.Client
	if len(cfg.Elastic.Addresses) > 0 {
		esClient, err = search.NewClient(&search.Config{
			Addresses: cfg.Elastic.Addresses,
			Username:  cfg.Elastic.Username,
			Password:  cfg.Elastic.Password,
		})
		if err != nil {
			appLogger.Warn("Could not connect to Elasticsearch, listing falls back to SQL", zap.Error(err))
			esClient = nil
		} else {
			if err := invUCPkg.EnsureIndex(context.Background(), esClient); err != nil {
				appLogger.Warn("Could not create stock index", zap.Error(err))
			}
			appLogger.Info("Connected to Elasticsearch", zap.Strings("addresses", cfg.Elastic.Addresses))
		}
	}

	// 7. Initialize Event Publisher
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RabbitMQ.URL != "" {
		rabbit, err := events.NewRabbitPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, serviceName)
		if err != nil {
			appLogger.Warn("Could not connect to RabbitMQ, movement events are dropped", zap.Error(err))
		} else {
			publisher = rabbit
			healthServer.Register("rabbitmq", rabbit)
			appLogger.Info("Connected to RabbitMQ", zap.String("exchange", cfg.RabbitMQ.Exchange))
		}
	}
	defer publisher.Close()

	// 8. Initialize Repositories and UseCases
	invRepo := invRepoPkg.NewSQLiteRepository(db)
	bomRepo := bomRepoPkg.NewSQLiteRepository(db)
	mvRepo := mvRepoPkg.NewSQLiteRepository(db)

	invUC := invUCPkg.NewInventoryUseCase(invRepo, locker, redisClient, esClient, appLogger)
	bomUC := bomUCPkg.NewBOMUseCase(bomRepo, locker, invUC, appLogger)
	mvUC := mvUCPkg.NewMovementUseCase(mvRepo, locker, mvUCPkg.Options{
		MaxDepth:  cfg.Stock.MaxBOMDepth,
		Publisher: publisher,
		Metrics:   appMetrics,
		Cache:     invUC,
	}, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 9. Start Sale Listener
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaConsumer := broker.NewConsumer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		})
		defer kafkaConsumer.Close()
		appLogger.Info("Connected to Kafka Consumer", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))

		saleListener := mvListenerPkg.NewSaleListener(kafkaConsumer, mvUC, appLogger)
		go saleListener.Start(ctx)
	}

	// 10. HTTP Router
	if !logConfig.IsDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logger(appLogger),
		middleware.CORS(),
		middleware.Metrics(appMetrics),
		gzip.Gzip(gzip.DefaultCompression),
	)
	router.GET("/healthz", healthServer.HTTPHandler)
	router.GET("/metrics", gin.WrapH(appMetrics.Handler()))

	api := router.Group("/api")
	invH.NewInventoryHandler(invUC, appLogger).MapRoutes(api)
	bomH.NewBOMHandler(bomUC, appLogger).MapRoutes(api)
	mvH.NewMovementHandler(mvUC, appLogger).MapRoutes(api)

	httpServer := &http.Server{
		Addr:              normalizePort(cfg.Server.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 11. gRPC Health Server
	grpcPort := normalizePort(cfg.Server.GRPCPort)
	lis, err := net.Listen("tcp", grpcPort)
	if err != nil {
		appLogger.Fatal("failed to listen", zap.String("port", grpcPort), zap.Error(err))
	}
	grpcServer := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	go func() {
		appLogger.Info("Starting gRPC server", zap.String("port", grpcPort))
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Fatal("failed to serve grpc", zap.Error(err))
		}
	}()
	go func() {
		appLogger.Info("Starting HTTP server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("failed to serve http", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP shutdown failed", zap.Error(err))
	}
	grpcServer.GracefulStop()
	appLogger.Info("Server stopped")
}

func normalizePort(port string) string {
	if !strings.HasPrefix(port, ":") && !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}
