package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cooktodor/notifier/internal/api"
	"github.com/cooktodor/notifier/internal/app"
	"github.com/cooktodor/notifier/internal/app/maintenance"
	iauth "github.com/cooktodor/notifier/internal/auth"
	"github.com/cooktodor/notifier/internal/database"
	"github.com/cooktodor/notifier/internal/events"
	"github.com/cooktodor/notifier/internal/middleware"
	"github.com/cooktodor/notifier/internal/monitoring"
	"github.com/cooktodor/notifier/internal/monitoring/checks"
	"github.com/cooktodor/notifier/internal/notifications"
	"github.com/cooktodor/notifier/internal/realtime"
	"github.com/cooktodor/notifier/internal/services"
	"github.com/cooktodor/notifier/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB            *gorm.DB
	Registry      *realtime.Registry
	Heartbeat     *realtime.Heartbeat
	Notifications *services.NotificationService
	Cleaner       *maintenance.Cleaner
	RateStore     middleware.RateStore
	Router        *gin.Engine

	consumerCancel context.CancelFunc
	consumerWG     sync.WaitGroup
}

// consumerGroupFactory is swapped in tests so no broker is needed.
var consumerGroupFactory = events.NewConsumerGroup

// bootstrapRuntime initialises the database, realtime machinery, background
// jobs, the optional event consumer and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Registry = realtime.NewRegistry(realtime.WithMaxLifetime(cfg.Realtime.MaxLifetime))

	// Without push there are no stream routes, so nothing needs probing.
	var sender notifications.Sender = notifications.Nop{}
	if cfg.Features.Notifications.Enabled {
		if sender, err = notifications.NewDispatcher(stack.Registry); err != nil {
			return nil, fmt.Errorf("initialise dispatcher: %w", err)
		}
		stack.Heartbeat = realtime.NewHeartbeat(stack.Registry, realtime.WithHeartbeatInterval(cfg.Realtime.HeartbeatInterval))
		if err := stack.Heartbeat.Start(); err != nil {
			return nil, fmt.Errorf("start heartbeat: %w", err)
		}
	} else {
		log.Info("realtime push disabled; notifications are stored only")
	}

	stack.Notifications, err = services.NewNotificationService(stack.DB, sender)
	if err != nil {
		return nil, fmt.Errorf("initialise notification service: %w", err)
	}

	cleanerOpts := []maintenance.Option{
		maintenance.WithRetentionDays(cfg.Features.Notifications.RetentionDays),
		maintenance.WithRetentionSchedule(cfg.Features.Notifications.RetentionSchedule),
	}
	switch store := strings.ToLower(strings.TrimSpace(cfg.Realtime.ConnectLimit.Store)); store {
	case "", "memory":
		stack.RateStore = middleware.NewMemoryRateStore(cfg.Realtime.ConnectLimit.Window)
	case "database":
		dbStore, err := middleware.NewDatabaseRateStore(stack.DB)
		if err != nil {
			return nil, fmt.Errorf("initialise rate store: %w", err)
		}
		stack.RateStore = dbStore
		cleanerOpts = append(cleanerOpts, maintenance.WithCounterPurger(dbStore))
	default:
		return nil, fmt.Errorf("unsupported connect limit store %q", store)
	}

	stack.Cleaner = maintenance.NewCleaner(stack.Notifications, cleanerOpts...)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	if cfg.Events.Kafka.Enabled {
		if err := stack.startConsumer(ctx, cfg.Events.Kafka.ConsumerConfig(), log); err != nil {
			return nil, err
		}
	}

	stack.Router, err = api.NewRouter(stack.DB, jwtSvc, cfg, api.Dependencies{
		Registry:      stack.Registry,
		Notifications: stack.Notifications,
		RateStore:     stack.RateStore,
		Health:        stack.healthManager(),
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// healthManager probes the heartbeat, when push is enabled, for liveness;
// readiness covers the database, the registry and the retention job.
func (s *runtimeStack) healthManager() *monitoring.HealthManager {
	manager := monitoring.NewHealthManager()
	if s.Heartbeat != nil {
		manager.RegisterLiveness(checks.Heartbeat(s.Heartbeat, 3, nil))
	}
	manager.RegisterReadiness(checks.Database(s.DB))
	manager.RegisterReadiness(checks.Streams(s.Registry))
	manager.RegisterReadiness(checks.Retention(s.Cleaner))
	return manager
}

func (s *runtimeStack) startConsumer(ctx context.Context, cfg events.KafkaConfig, log *zap.Logger) error {
	handler, err := events.NewHandler(s.Notifications)
	if err != nil {
		return fmt.Errorf("initialise event handler: %w", err)
	}

	group, err := consumerGroupFactory(cfg)
	if err != nil {
		return fmt.Errorf("connect kafka consumer group: %w", err)
	}

	consumer, err := events.NewConsumer(cfg.Topic, group, handler)
	if err != nil {
		_ = group.Close()
		return fmt.Errorf("initialise kafka consumer: %w", err)
	}

	consumerCtx, cancel := context.WithCancel(ctx)
	s.consumerCancel = cancel
	s.consumerWG.Add(1)
	go func() {
		defer s.consumerWG.Done()
		if err := consumer.Start(consumerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("kafka consumer stopped", zap.Error(err))
		}
	}()

	log.Info("kafka consumer started",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
		zap.String("group", cfg.Group),
	)
	return nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	// The consumer closes its group on the way out.
	if s.consumerCancel != nil {
		s.consumerCancel()
		s.consumerWG.Wait()
	}

	if s.Heartbeat != nil {
		waitOrTimeout(ctx, s.Heartbeat.Stop())
	}
	if s.Registry != nil {
		s.Registry.CloseAll()
	}

	if s.Cleaner != nil {
		waitOrTimeout(ctx, s.Cleaner.Stop())
	}

	if stopper, ok := s.RateStore.(interface{ Stop() }); ok {
		stopper.Stop()
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func waitOrTimeout(ctx, done context.Context) {
	if done == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	timer := time.NewTimer(5 * time.Second)
	defer timer.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	case <-timer.C:
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseConnConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if err := database.Close(db); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
