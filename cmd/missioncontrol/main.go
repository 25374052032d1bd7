// Package main is the entry point for the Mission Control service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cpravetz/stage7-sub007/internal/auth"
	"github.com/cpravetz/stage7-sub007/internal/client"
	"github.com/cpravetz/stage7-sub007/internal/common/config"
	"github.com/cpravetz/stage7-sub007/internal/common/httpmw"
	"github.com/cpravetz/stage7-sub007/internal/common/logger"
	"github.com/cpravetz/stage7-sub007/internal/events"
	"github.com/cpravetz/stage7-sub007/internal/mission/api"
	"github.com/cpravetz/stage7-sub007/internal/mission/humaninput"
	"github.com/cpravetz/stage7-sub007/internal/mission/ingress"
	"github.com/cpravetz/stage7-sub007/internal/mission/lifecycle"
	"github.com/cpravetz/stage7-sub007/internal/mission/reflection"
	"github.com/cpravetz/stage7-sub007/internal/mission/registry"
	"github.com/cpravetz/stage7-sub007/internal/mission/telemetry"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	logCfg := logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	}
	log, err := logger.NewLogger(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting Mission Control service...")

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Connect the event bus (NATS if configured, otherwise in-memory)
	provided, closeBus, err := events.Provide(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize event bus", zap.Error(err))
	}
	defer closeBus()
	log.Info("Event bus ready")

	// 5. Build the authenticated clients to every collaborator
	serviceToken := os.Getenv("MISSIONCTL_SERVICE_TOKEN")
	collaboratorTimeout := 10 * time.Second
	tm := client.NewTrafficManagerClient(client.NewBaseClient("trafficmanager", cfg.Collaborators.TrafficManagerURL, serviceToken, collaboratorTimeout, log))
	librarian := client.NewLibrarianClient(client.NewBaseClient("librarian", cfg.Collaborators.LibrarianURL, serviceToken, collaboratorTimeout, log))
	postOffice := client.NewPostOfficeClient(client.NewBaseClient("postoffice", cfg.Collaborators.PostOfficeURL, serviceToken, collaboratorTimeout, log))
	brain := client.NewBrainClient(client.NewBaseClient("brain", cfg.Collaborators.BrainURL, serviceToken, collaboratorTimeout, log))
	engineer := client.NewEngineerClient(client.NewBaseClient("engineer", cfg.Collaborators.EngineerURL, serviceToken, collaboratorTimeout, log))
	capabilitiesManager := client.NewCapabilitiesManagerClient(client.NewBaseClient("capabilitiesmanager", cfg.Collaborators.CapabilitiesManagerURL, serviceToken, collaboratorTimeout, log))

	// 6. Build the bearer-token verifier: local key first, remote fallback
	var verifiers []auth.Verifier
	if cfg.Auth.JWTPublicKeyPath != "" {
		localVerifier, err := auth.NewLocalVerifier(cfg.Auth.JWTPublicKeyPath)
		if err != nil {
			log.Fatal("Failed to load local JWT verifier", zap.Error(err))
		}
		verifiers = append(verifiers, localVerifier)
	}
	if cfg.Auth.VerifyURL != "" {
		verifyBase := client.NewBaseClient("security-verify", cfg.Auth.VerifyURL, "", cfg.Auth.RequestTimeoutDuration(), log)
		verifiers = append(verifiers, auth.NewRemoteVerifier(verifyBase))
	}
	verifier := auth.NewCompositeVerifier(verifiers...)

	// 7. Wire the mission domain: registry -> lifecycle -> telemetry -> reflection
	reg := registry.New()
	inputs := humaninput.New()

	engine := lifecycle.New(reg, inputs, tm, librarian, postOffice, log)

	coordinator := reflection.New(reg, capabilitiesManager, engine, log)

	aggregator := telemetry.New(reg, tm, brain, engineer, postOffice,
		cfg.Telemetry.TickIntervalDuration(), cfg.Telemetry.CollectTimeoutDuration(), log)
	aggregator.SetReflectionTrigger(coordinator)
	aggregator.Start(ctx)
	defer aggregator.Stop()
	log.Info("Telemetry aggregator started", zap.Duration("tick_interval", cfg.Telemetry.TickIntervalDuration()))

	dispatcher := ingress.New(engine, inputs, tm, log)

	// 8. Subscribe the dispatcher to queue ingress
	ingressSubject := cfg.Events.IngressSubject
	if ingressSubject == "" {
		ingressSubject = events.IngressSubject
	}
	queueGroup := "missioncontrol"
	if cfg.Events.Namespace != "" {
		queueGroup = cfg.Events.Namespace + "." + queueGroup
	}
	sub, err := dispatcher.SubscribeQueue(provided.Bus, ingressSubject, queueGroup)
	if err != nil {
		log.Fatal("Failed to subscribe to ingress subject", zap.Error(err))
	}
	defer func() { _ = sub.Unsubscribe() }()
	log.Info("Subscribed to queue ingress", zap.String("subject", ingressSubject), zap.String("queue", queueGroup))

	// 9. Set up the HTTP server with Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpmw.RequestLogger(log, "missioncontrol"))

	handlers := api.NewHandlers(dispatcher, engine, inputs, tm, aggregator, log)
	v1 := router.Group("/")
	api.Register(v1, handlers, verifier)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 10. Start the HTTP server
	port := cfg.Server.Port
	if port == 0 {
		port = 8090
	}
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("HTTP server listening", zap.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 11. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Mission Control service...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("Mission Control service stopped")
}
