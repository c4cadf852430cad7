package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/config"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/handler"
	"github.com/bitfantasy/nimo-mes/internal/mes/notify"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/sse"
	"github.com/bitfantasy/nimo-mes/internal/mes/workflow"
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/bitfantasy/nimo-mes/internal/shared/lock"
	"github.com/bitfantasy/nimo-mes/internal/shared/storage"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// backend the storage side of the server
type backend struct {
	store         workflow.Store
	notifications interface {
		handler.NotificationStore
		Create(ctx context.Context, n *entity.Notification) error
	}
	audit interface {
		handler.AuditLogStore
		Create(ctx context.Context, l *entity.AuditLog) error
	}
	ready func(ctx context.Context) error
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting nimo-mes service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("database", cfg.Database.Driver),
		zap.String("lock_backend", cfg.Workflow.LockBackend),
	)

	be, err := initBackend(cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to init storage", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.Workflow.LockBackend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		defer redisClient.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			zapLogger.Fatal("Failed to connect to redis", zap.String("addr", cfg.Redis.Addr()), zap.Error(err))
		}
	}
	locker := initLocker(cfg.Workflow, redisClient, zapLogger)

	hub := sse.NewHub(zapLogger.Named("sse"))
	notifiers := notify.Fanout{
		notify.NewDBSink(be.notifications),
		notify.NewSSESink(hub),
	}
	if cfg.NATS.URL != "" {
		nc, err := notify.Connect(cfg.NATS.URL, "nimo-mes", zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer nc.Drain()
		notifiers = append(notifiers, notify.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix, zapLogger))
	} else {
		notifiers = append(notifiers, notify.NewLogSink(zapLogger.Named("notify")))
	}
	audit := notify.AuditFanout{notify.NewDBAuditSink(be.audit)}

	orchestrator := workflow.NewOrchestrator(be.store, locker, notifiers, audit, zapLogger.Named("workflow"),
		workflow.WithShortageLeadTime(cfg.Workflow.ShortageLeadTime()),
	)

	attachments, err := initAttachments(cfg.MinIO)
	if err != nil {
		zapLogger.Fatal("Failed to init attachment storage", zap.Error(err))
	}

	if err := handler.RegisterValidators(); err != nil {
		zapLogger.Fatal("Failed to register validators", zap.Error(err))
	}
	handlers := &handler.Handlers{
		Workflow:   handler.NewWorkflowHandler(orchestrator, zapLogger),
		Attachment: handler.NewAttachmentHandler(attachments, zapLogger),
		Event:      handler.NewEventHandler(hub),
		Inbox:      handler.NewInboxHandler(be.notifications, be.audit, zapLogger),
	}

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	// the event stream must not be buffered by the compressor
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/v1/events"})))

	router.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "nimo-mes"})
	})
	router.GET("/health/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := be.ready(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "nimo-mes", "sse_clients": hub.ClientCount()})
	})
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":    "nimo-mes",
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	v1 := router.Group("/api/v1")
	v1.Use(middleware.JWTAuth(cfg.JWT.Secret))
	handlers.RegisterRoutes(v1)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zapCfg.Level = level
	return zapCfg.Build()
}

func initBackend(cfg config.DatabaseConfig, zapLogger *zap.Logger) (*backend, error) {
	db, err := initDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if err := entity.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}
	zapLogger.Info("Database migration completed", zap.String("driver", cfg.Driver))

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	return &backend{
		store:         repository.NewStore(db),
		notifications: repository.NewNotificationRepository(db),
		audit:         repository.NewAuditLogRepository(db),
		ready:         sqlDB.PingContext,
	}, nil
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	if cfg.Driver == "sqlite" {
		return repository.OpenSQLite(cfg.SQLitePath, gormCfg)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

func initLocker(cfg config.WorkflowConfig, client *redis.Client, zapLogger *zap.Logger) workflow.Locker {
	if cfg.LockBackend == "redis" {
		return lock.NewRedisLocker(client, cfg.LockTTL, zapLogger.Named("lock"))
	}
	return lock.NewKeyedMutex()
}

func initAttachments(cfg config.MinIOConfig) (handler.AttachmentStore, error) {
	if cfg.Endpoint == "" {
		return storage.NewMemoryStore(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return storage.NewMinIOStore(ctx, storage.MinIOConfig{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.Bucket,
		UseSSL:    cfg.UseSSL,
	})
}
