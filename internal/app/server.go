// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"medlink-service/internal/config"
	"medlink-service/internal/db"
	"medlink-service/internal/domain/usage"
	assignmentHandler "medlink-service/internal/handlers/assignment"
	authHandler "medlink-service/internal/handlers/auth"
	availabilityHandler "medlink-service/internal/handlers/availability"
	notifyHandler "medlink-service/internal/handlers/notification"
	patientHandler "medlink-service/internal/handlers/patient"
	paymentHandler "medlink-service/internal/handlers/payment"
	planHandler "medlink-service/internal/handlers/plan"
	subscriptionHandler "medlink-service/internal/handlers/subscription"
	usageHandler "medlink-service/internal/handlers/usage"
	wsHandler "medlink-service/internal/handlers/websocket"
	"medlink-service/internal/middleware"
	"medlink-service/internal/pkg/cache"
	"medlink-service/internal/pkg/jwt"
	"medlink-service/internal/pkg/session"
	"medlink-service/internal/repository/postgres"
	assignmentUsecase "medlink-service/internal/service/assignment"
	auditUsecase "medlink-service/internal/service/audit"
	notifyUsecase "medlink-service/internal/service/notification"
	patientUsecase "medlink-service/internal/service/patient"
	paymentUsecase "medlink-service/internal/service/payment"
	planUsecase "medlink-service/internal/service/plan"
	"medlink-service/internal/service/slot"
	subscriptionUsecase "medlink-service/internal/service/subscription"
	usageUsecase "medlink-service/internal/service/usage"
	"medlink-service/internal/websocket"
	wsHandlers "medlink-service/internal/websocket/handler"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger

	httpServer *http.Server
	pool       *pgxpool.Pool
	redis      redis.UniversalClient

	// background work started by Start and drained by Shutdown
	stopWorkers context.CancelFunc
	workers     sync.WaitGroup
	sinks       []interface{ Wait() }
}

func NewServer() (*Server, error) {
	cfg := config.Load()

	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsDevelopment() {
		logger, err = zap.NewDevelopment()
	} else {
		gin.SetMode(gin.ReleaseMode)
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return &Server{
		cfg:    cfg,
		engine: gin.New(),
		logger: logger,
	}, nil
}

func (s *Server) Start() error {
	ctx := context.Background()
	logger := s.logger

	// ----- PostgreSQL -----
	if s.cfg.RunMigrations {
		if err := db.Migrate(s.cfg.DatabaseURL, logger); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	pool, err := db.ConnectDB(ctx, db.PostgresConfig{URL: s.cfg.DatabaseURL, MaxConns: s.cfg.DBMaxConns})
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	s.pool = pool
	logger.Info("connected to PostgreSQL")

	// ----- Redis -----
	redisClient, err := db.NewRedis(ctx, db.RedisConfig{
		ClusterMode: s.cfg.RedisCluster,
		Addresses:   s.cfg.RedisAddrs,
		Password:    s.cfg.RedisPass,
		DB:          s.cfg.RedisDB,
		PoolSize:    10,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	s.redis = redisClient
	logger.Info("connected to Redis", zap.Strings("addrs", s.cfg.RedisAddrs))

	usageCache := cache.New(redisClient, "medlink:usage:")
	paymentLocks := cache.New(redisClient, "medlink:payment:")
	revocations := session.NewRevocations(redisClient, "medlink:auth:")
	limiter := session.NewRateLimiter(redisClient, "medlink:")

	// ----- JWT -----
	jwtManager, err := jwt.LoadAndBuild(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT manager: %w", err)
	}

	// ----- Repositories -----
	usageRepo := postgres.NewUsageRepository(pool)
	entitlementRepo := postgres.NewEntitlementRepository(pool)
	planRepo := postgres.NewPlanRepository(pool)
	slotRepo := postgres.NewSlotRepository(pool)
	templateRepo := postgres.NewTemplateRepository(pool)
	subscriptionRepo := postgres.NewSubscriptionRepository(pool)
	paymentRepo := postgres.NewPaymentRepository(pool)
	assignmentRepo := postgres.NewAssignmentRepository(pool)
	patientRepo := postgres.NewPatientRepository(pool)
	profileRepo := postgres.NewProfileRepository(pool)
	notifyRepo := postgres.NewNotificationRepository(pool)
	auditRepo := postgres.NewAuditRepository(pool)

	// ----- WebSocket Hub -----
	hub := websocket.NewHub(jwtManager.Verifier, logger, websocket.WithRevocations(revocations))

	// ----- Services (Usecases) -----
	notifService := notifyUsecase.NewService(notifyRepo, hub, logger)
	auditRecorder := auditUsecase.NewRecorder(auditRepo, logger)
	s.sinks = append(s.sinks, notifService, auditRecorder)

	hub.RegisterHandler(wsHandlers.NewNotificationHandler(notifService))

	ledger := usageUsecase.NewLedger(usageRepo, entitlementRepo, logger,
		usageUsecase.WithCache(usageCache, s.cfg.UsageCacheTTL),
		usageUsecase.WithDefaults(usage.Limits{
			usage.EntityHospital: {
				usage.ResourcePatients:    s.cfg.DefaultHospitalPatients,
				usage.ResourceAssignments: s.cfg.DefaultHospitalAssignments,
			},
			usage.EntityDoctor: {
				usage.ResourceAssignments: s.cfg.DefaultDoctorAssignments,
			},
		}),
	)
	carver := slot.NewCarver(slotRepo, templateRepo, logger)
	catalog := planUsecase.NewCatalog(planRepo, logger)
	lifecycle := subscriptionUsecase.NewLifecycle(subscriptionRepo, catalog, logger)
	paymentService := paymentUsecase.NewService(
		paymentRepo,
		catalog,
		lifecycle,
		paymentLocks,
		notifService,
		auditRecorder,
		paymentUsecase.Config{
			KeySecret:           s.cfg.RazorpayKeySecret,
			StripeWebhookSecret: s.cfg.StripeWebhookSecret,
			MaxAttempts:         s.cfg.OutboxMaxAttempts,
		},
		logger,
	)
	assignmentService := assignmentUsecase.NewService(
		assignmentRepo,
		profileRepo,
		patientRepo,
		ledger,
		carver,
		notifService,
		auditRecorder,
		logger,
		assignmentUsecase.WithCancellationNotice(s.cfg.AssignmentCancelNotice),
	)
	patientService := patientUsecase.NewService(patientRepo, ledger, auditRecorder, logger)

	// ----- Handlers -----
	handlers := &Handlers{
		AuthHandler:         authHandler.NewAuthHandler(profileRepo, revocations, logger),
		PlanHandler:         planHandler.NewPlanHandler(catalog),
		UsageHandler:        usageHandler.NewUsageHandler(ledger),
		AvailabilityHandler: availabilityHandler.NewAvailabilityHandler(carver),
		PatientHandler:      patientHandler.NewPatientHandler(patientService),
		AssignmentHandler:   assignmentHandler.NewAssignmentHandler(assignmentService),
		PaymentHandler:      paymentHandler.NewPaymentHandler(paymentService, logger),
		SubscriptionHandler: subscriptionHandler.NewSubscriptionHandler(lifecycle),
		NotifHandler:        notifyHandler.NewNotificationHandler(notifService),
		WSHandler:           wsHandler.NewWebSocketHandler(hub, s.cfg.CORSOrigins, logger),
		AuthMiddleware:      middleware.NewAuthMiddleware(jwtManager.Verifier, middleware.WithRevocations(revocations)),
		Health:              s.health,
		WriteLimit: func(bucket string) gin.HandlerFunc {
			return middleware.RateLimit(limiter, logger, bucket, s.cfg.RateLimitWrites, s.cfg.RateLimitWindow)
		},
		PaymentLimit: func(bucket string) gin.HandlerFunc {
			return middleware.RateLimit(limiter, logger, bucket, s.cfg.RateLimitPayments, s.cfg.RateLimitWindow)
		},
	}

	// ----- Middlewares -----
	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.MetricsMiddleware(),
		middleware.CORSMiddleware(s.cfg.CORSOrigins),
	)
	SetupRouter(s.engine, logger, handlers)

	// ----- Background workers -----
	workerCtx, cancel := context.WithCancel(context.Background())
	s.stopWorkers = cancel
	s.goWorker(func() { hub.Run(workerCtx) })
	s.startWorkers(workerCtx, paymentService, lifecycle, assignmentService, carver)

	// ----- Start HTTP -----
	s.httpServer = &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("server running", zap.String("addr", s.cfg.HTTPAddr), zap.String("env", s.cfg.Env))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then drains workers and pending
// notification and audit writes before closing the pools.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	if s.stopWorkers != nil {
		s.stopWorkers()
	}
	s.workers.Wait()
	for _, sink := range s.sinks {
		sink.Wait()
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}

	_ = s.logger.Sync()
	return errors.Join(errs...)
}

func (s *Server) Logger() *zap.Logger {
	return s.logger
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := gin.H{"status": "ok", "postgres": "ok", "redis": "ok"}
	code := http.StatusOK
	if err := s.pool.Ping(ctx); err != nil {
		status["postgres"], status["status"], code = err.Error(), "degraded", http.StatusServiceUnavailable
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		status["redis"], status["status"], code = err.Error(), "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
