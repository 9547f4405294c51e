package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/supply-share/internal/adapter/handler"
	"github.com/rl1809/supply-share/internal/adapter/storage"
	"github.com/rl1809/supply-share/internal/config"
	"github.com/rl1809/supply-share/internal/core/service"
)

const serviceName = "supply-share"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	log := config.NewLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := config.SetupTracing(ctx, cfg.OTELEndpoint, serviceName)
	if err != nil {
		log.WithError(err).Fatal("failed to set up tracing")
	}

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.WithError(err).Fatal("failed to connect mysql")
	}
	db.SetMaxOpenConns(cfg.MySQLMaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQLMaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQLConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		log.WithError(err).Fatal("failed to ping mysql")
	}
	log.Info("connected to mysql")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: cfg.RedisPoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("failed to connect redis")
	}
	log.Info("connected to redis")

	// Initialize adapters
	mysqlAdapter := storage.NewMySQLAdapter(db, cfg.LockWaitTimeout)
	redisAdapter := storage.NewRedisAdapter(rdb, cfg.IdempotencyTTL)

	if cfg.AutoMigrate {
		if err := mysqlAdapter.EnsureSchema(ctx); err != nil {
			log.WithError(err).Fatal("failed to apply schema")
		}
	}

	// Initialize services
	audit := service.NewAuditDispatcher(mysqlAdapter, cfg.AuditQueueSize, log)
	audit.Start(cfg.AuditWorkers)
	log.WithField("workers", cfg.AuditWorkers).Info("started audit workers")

	links := service.NewShareLinkService(mysqlAdapter, mysqlAdapter, audit, log, service.ShareLinkOptions{
		DefaultTTL:        cfg.DefaultLinkTTL,
		MaxTTL:            cfg.MaxLinkTTL,
		ExtractCodeLength: cfg.ExtractCodeLength,
		BcryptCost:        cfg.BcryptCost,
	})
	tracker := service.NewVisitorTracker(mysqlAdapter, log)
	gateway := service.NewAccessGateway(links, tracker, audit, log, cfg.RequestTimeout)
	validator := service.NewQuantityValidator(mysqlAdapter, mysqlAdapter)
	records := service.NewSupplyRecordService(gateway, validator, mysqlAdapter, mysqlAdapter, redisAdapter, audit, log, cfg.RequestTimeout)
	sweeper := service.NewExpirySweeper(mysqlAdapter, redisAdapter, audit, log, cfg.SweepInterval)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	// Initialize gRPC server
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	handler.RegisterShareServiceServer(grpcServer, handler.NewGRPCHandler(links, gateway, validator, records))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.WithError(err).Fatal("failed to listen")
	}

	go func() {
		log.WithField("addr", cfg.GRPCAddr).Info("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.WithError(err).Error("gRPC server error")
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(links, gateway, validator, records, log)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewRouter(httpHandler, log, cfg.AllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown")
	}
	log.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	// Stop the sweeper, then drain pending audit events
	cancel()
	wg.Wait()
	audit.Close()
	if dropped := audit.Dropped(); dropped > 0 {
		log.WithField("dropped", dropped).Warn("audit events dropped while queue was full")
	}
	log.Info("workers stopped")

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.WithError(err).Warn("tracing shutdown")
	}
	rdb.Close()
	db.Close()
	log.Info("connections closed")
}
