package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/internal/api/handlers"
	"github.com/troikatech/engage-api/internal/tracking"
	"github.com/troikatech/engage-api/pkg/activity"
	"github.com/troikatech/engage-api/pkg/auth"
	"github.com/troikatech/engage-api/pkg/broadcast"
	"github.com/troikatech/engage-api/pkg/env"
	"github.com/troikatech/engage-api/pkg/exotel"
	"github.com/troikatech/engage-api/pkg/gtm"
	"github.com/troikatech/engage-api/pkg/logger"
	"github.com/troikatech/engage-api/pkg/middleware"
	"github.com/troikatech/engage-api/pkg/mongo"
	"github.com/troikatech/engage-api/pkg/otel"
	"github.com/troikatech/engage-api/pkg/storage"
	"github.com/troikatech/engage-api/pkg/surepass"
	"github.com/troikatech/engage-api/pkg/webhook"
	"github.com/troikatech/engage-api/pkg/whatsapp"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

// relayDedupSize bounds the ids remembered for relayed broadcast messages.
const relayDedupSize = 4096

// Server holds the long-lived dependencies shared by the router and jobs.
type Server struct {
	cfg         *env.Config
	redisClient *redis.Client
	sessions    auth.SessionStore
	handler     *handlers.Handler
}

func main() {
	cfg, err := env.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.LogLevel, cfg.AppEnv); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.OTELEnabled {
		shutdown, err := otel.Init(context.Background(), otel.Config{
			ServiceName: otel.TracerName,
			Version:     version,
			Environment: cfg.AppEnv,
			Endpoint:    cfg.OTELEndpoint,
			SampleRatio: cfg.OTELSampleRatio,
		})
		if err != nil {
			logger.Log.Warn("Failed to initialize OpenTelemetry", zap.Error(err))
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					logger.Log.Warn("Failed to flush traces", zap.Error(err))
				}
			}()
			logger.Log.Info("OpenTelemetry tracing enabled", zap.String("endpoint", cfg.OTELEndpoint))
		}
	}

	logger.Log.Info("Starting engage API",
		zap.String("env", cfg.AppEnv),
		zap.String("port", cfg.AppPort),
	)

	if err := middleware.RegisterValidators(); err != nil {
		logger.Log.Fatal("Failed to register validators", zap.Error(err))
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Log.Fatal("Failed to parse Redis URL", zap.Error(err))
	}
	redisClient := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	mongoClient, err := mongo.NewClient(cfg.MongoURI, cfg.DBName)
	if err != nil {
		logger.Log.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(ctx); err != nil {
			logger.Log.Warn("Failed to disconnect MongoDB", zap.Error(err))
		}
	}()
	if err := mongoClient.EnsureIndexes(ctx); err != nil {
		logger.Log.Fatal("Failed to create MongoDB indexes", zap.Error(err))
	}

	// Relays run until shutdown.
	runCtx, stopRelays := context.WithCancel(context.Background())
	defer stopRelays()

	hub := broadcast.NewHub(logger.For("broadcast"), originAllowed(cfg.CORSAllowedOrigins))
	defer hub.Close()

	// One cross-instance bus: NATS when it connects, else Redis pub/sub.
	relayed := broadcast.NewDedup(hub, relayDedupSize)
	publisher := broadcast.Multi{hub}
	if cfg.NATSURL != "" {
		relay, err := broadcast.NewNatsRelay(cfg.NATSURL, cfg.NATSSubject, relayed, logger.For("broadcast"))
		if err != nil {
			logger.Log.Warn("NATS relay disabled", zap.Error(err))
		} else if err := relay.Start(); err != nil {
			logger.Log.Warn("NATS relay subscribe failed", zap.Error(err))
			relay.Close()
		} else {
			defer relay.Close()
			publisher = append(publisher, relay)
		}
	}
	if len(publisher) == 1 && cfg.TrackingRedisChannel != "" {
		relay := broadcast.NewRedisRelay(redisClient, cfg.TrackingRedisChannel, relayed, logger.For("broadcast"))
		go func() {
			if err := relay.Run(runCtx); err != nil && runCtx.Err() == nil {
				logger.Log.Error("Tracking redis relay stopped", zap.Error(err))
			}
		}()
		publisher = append(publisher, relay)
	}

	var (
		gtmClient      *gtm.Client
		whatsappClient *whatsapp.Client
		exotelClient   *exotel.Client
		surepassClient *surepass.Client
		tagSyncer      tracking.TagSyncer
		downloader     storage.Downloader
	)

	if cfg.GTMEnabled() {
		gtmClient, err = gtm.NewClient(context.Background(), gtm.Config{
			CredentialsJSON: cfg.GTMCredentialsJSON,
			CredentialsFile: cfg.GTMCredentialsFile,
			AccountID:       cfg.GTMAccountID,
			ContainerID:     cfg.GTMContainerID,
			WorkspaceID:     cfg.GTMWorkspaceID,
		})
		if err != nil {
			logger.Log.Warn("GTM client disabled", zap.Error(err))
			gtmClient = nil
		} else {
			tagSyncer = gtmClient
			logger.Log.Info("GTM tag sync enabled", zap.String("container", cfg.GTMContainerID))
		}
	}

	if cfg.WhatsAppEnabled() {
		whatsappClient = whatsapp.NewClient(whatsapp.Config{
			APIVersion:        cfg.WhatsAppAPIVersion,
			AccessToken:       cfg.WhatsAppAccessToken,
			PhoneNumberID:     cfg.WhatsAppPhoneNumberID,
			BusinessAccountID: cfg.WhatsAppBusinessAccountID,
			Timeout:           cfg.HTTPTimeout,
		})
	}

	if cfg.ExotelEnabled() {
		exotelClient = exotel.NewClient(exotel.Config{
			Subdomain:  cfg.ExotelSubdomain,
			AccountSID: cfg.ExotelAccountSID,
			APIKey:     cfg.ExotelAPIKey,
			APIToken:   cfg.ExotelAPIToken,
			Timeout:    cfg.HTTPTimeout,
		})
		downloader = exotelClient
	}

	if cfg.SurepassToken != "" {
		surepassClient = surepass.NewClient(cfg.SurepassBaseURL, cfg.SurepassToken, cfg.HTTPTimeout)
	}

	storageDriver, err := storage.NewDriver(cfg.StorageDriver, cfg.LocalStoragePath, downloader)
	if err != nil {
		logger.Log.Fatal("Failed to create storage driver", zap.Error(err))
	}

	trackingService := tracking.NewService(tracking.NewMongoStore(mongoClient), publisher, tagSyncer, logger.For("tracking"))
	sessions := auth.NewMongoSessionStore(mongoClient)

	apiHandler := handlers.NewHandler(handlers.Deps{
		Config:   cfg,
		Redis:    redisClient,
		Mongo:    mongoClient,
		Sessions: sessions,
		Activity: activity.NewMongoRecorder(mongoClient),
		Tracking: trackingService,
		Hub:      hub,
		WhatsApp: whatsappClient,
		Exotel:   exotelClient,
		Surepass: surepassClient,
		GTM:      gtmClient,
		Storage:  storageDriver,
		Deduper:  webhook.NewDeduper(redisClient, "webhook"),
	})

	server := &Server{
		cfg:         cfg,
		redisClient: redisClient,
		sessions:    sessions,
		handler:     apiHandler,
	}

	router := server.setupRouter()

	jobs, err := server.startJobs()
	if err != nil {
		logger.Log.Fatal("Failed to schedule jobs", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")

	<-jobs.Stop().Done()
	stopRelays()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	// Let in-flight GTM syncs finish before the clients go away.
	trackingService.Wait()

	logger.Log.Info("Server exited")
}
