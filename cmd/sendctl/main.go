package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sendctl/internal/core/domain"
	"sendctl/internal/core/ports"
	"sendctl/internal/core/services"
	httphandlers "sendctl/internal/handlers/http"
	"sendctl/internal/infrastructure/distributed"
	"sendctl/internal/infrastructure/middleware"
	"sendctl/internal/infrastructure/monitoring"
	"sendctl/internal/infrastructure/native"
	"sendctl/internal/infrastructure/pionengine"
	repositories "sendctl/internal/infrastructure/repositories"
	eventstream "sendctl/internal/infrastructure/signal"
	"sendctl/pkg/config"
	"sendctl/pkg/logger"
	"sendctl/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	startTime := time.Now()

	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/sendctl/config.yaml",
		"config.yaml",
	}
	if path := os.Getenv("SENDCTL_CONFIG"); path != "" {
		configPaths = []string{path}
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	if cfg.Logging.Format == "console" {
		zapLogger = logger.NewConsole(cfg.Logging.Level)
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()
	if err != nil {
		log.Warnw("Using default configuration", "error", err)
	}

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "sendctl",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: os.Getenv("SENDCTL_ENV"),
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Media engine
	var (
		lib    native.Library
		engine *pionengine.Engine
	)
	switch cfg.Engine.Backend {
	case "native":
		loaded, err := native.LoadLibrary(cfg.Engine.LibraryPath)
		if err != nil {
			log.Fatalw("failed to load engine library", "path", cfg.Engine.LibraryPath, "error", err)
		}
		defer loaded.Close()
		log.Infow("Loaded engine library", "path", loaded.Path())
		lib = loaded
	default:
		engine, err = pionengine.New(pionengine.Config{}, log.Named("pion"))
		if err != nil {
			log.Fatalw("failed to create pion engine", "error", err)
		}
		lib = engine
	}

	if err := native.Initialize(lib, native.InitOptions{
		FieldTrials:   cfg.FieldTrialString(),
		NativeLogging: cfg.Engine.NativeLogging,
	}); err != nil {
		log.Fatalw("failed to initialize media engine", "error", err)
	}
	log.Infow("Media engine initialized",
		"backend", cfg.Engine.Backend,
		"field_trials", cfg.Engine.FieldTrials.String(),
	)
	bridge := native.NewBridge(lib, log.Named("engine"))

	// Metrics and storage
	collector := monitoring.NewPrometheusCollector()
	repoFactory := repositories.NewRepositoryFactory(cfg, log)
	statsRepo := repoFactory.CreateStatsRepository()

	session, err := services.NewSession(bridge, services.SessionOptions{
		TextureBounds: services.TextureBounds{
			Min: cfg.Sender.MinTextureSize,
			Max: cfg.Sender.MaxTextureSize,
		},
		Metrics: collector,
	}, log)
	if err != nil {
		log.Fatalw("failed to create session", "error", err)
	}

	// Adaptation monitoring and fan-out
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	events := eventstream.NewEventStreamServer(eventstream.EventStreamOptions{
		PingInterval: cfg.Events.PingInterval,
		WriteTimeout: cfg.Events.WriteTimeout,
		ClientBuffer: cfg.Events.ClientBuffer,
	}, log.Named("events"))

	var eventBus *distributed.EventBus
	if client := repoFactory.RedisClient(); client != nil {
		eventBus = distributed.NewEventBus(client, uuid.NewString(), cfg.Redis.Channel, log.Named("bus"))
		go func() {
			if err := eventBus.Subscribe(rootCtx, events.Broadcast); err != nil && rootCtx.Err() == nil {
				log.Errorw("event bus subscription ended", "error", err)
			}
		}()
		log.Infow("Adaptation events fan out over Redis", "channel", cfg.Redis.Channel, "instance_id", eventBus.InstanceID())
	}

	var monitor *services.AdaptationMonitor
	if cfg.Adaptation.Enabled {
		var source ports.StatsSource = statsRepo
		if engine != nil {
			source = pionengine.NewStatsSource(engine, session.Lookup)
		}
		var publisher ports.AdaptationPublisher
		if eventBus != nil {
			publisher = eventBus
		}
		monitor = services.NewAdaptationMonitor(source, cfg.Adaptation.PollInterval, collector, publisher, log.Named("adaptation"))
		events.Attach(monitor)
	}

	// HTTP handlers
	handlerOptions := httphandlers.SenderHandlerOptions{
		Monitor:     monitor,
		Stats:       statsRepo,
		LiveStats:   engine != nil && monitor != nil,
		FieldTrials: cfg.Engine.FieldTrials,
		OnRemove:    collector.ForgetSender,
	}
	if engine != nil {
		handlerOptions.Tracks = engine
		handlerOptions.Feedback = func(h domain.SenderHandle) (interface{}, bool) {
			return engine.Feedback(h)
		}
	}
	senderHandler := httphandlers.NewSenderHandler(session, handlerOptions, log)

	health := monitoring.NewHealthChecker(log.Named("health"))
	health.AddEngineCheck(bridge, 10*time.Second, 2*time.Second)
	if client := repoFactory.RedisClient(); client != nil {
		health.AddRedisCheck(client, 10*time.Second, 2*time.Second)
	}
	health.StartBackgroundChecks(rootCtx)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.TracingMiddleware(),
		middleware.ErrorHandlerMiddleware(log),
	)

	api := router.Group("/api/v1")
	protected := api.Group("")
	if cfg.Auth.Enabled {
		authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
		httphandlers.NewAuthHandler(authService, cfg.Auth.IssuerKey, cfg.Auth.AccessTokenTTL, log).RegisterRoutes(api)
		protected.Use(middleware.ScopeMiddleware(authService))
	}
	protected.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	senderHandler.RegisterRoutes(protected)
	protected.GET("/events", gin.WrapF(events.HandleWebSocket))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
			"senders":   len(session.Senders()),
			"clients":   events.ClientCount(),
		})
	})
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := health.GetReadinessStatus(ctx)
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting sendctl on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down sendctl...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	shutdown(shutdownCtx, log, events, monitor, session, eventBus)
	cancelRoot()

	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracing", "error", err)
	}

	log.Info("sendctl stopped")
}

// shutdown releases senders before the engine goes away.
func shutdown(
	ctx context.Context,
	log *zap.SugaredLogger,
	events *eventstream.EventStreamServer,
	monitor *services.AdaptationMonitor,
	session *services.Session,
	eventBus *distributed.EventBus,
) {
	events.Close()
	if monitor != nil {
		monitor.Stop()
	}
	if err := session.Close(ctx); err != nil {
		log.Errorw("Error closing session", "error", err)
	}
	if eventBus != nil {
		if err := eventBus.Close(); err != nil {
			log.Warnw("Error closing event bus", "error", err)
		}
	}
	if err := native.Shutdown(); err != nil {
		log.Errorw("Error shutting down media engine", "error", err)
	}
}
