package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bloodbridge/platform/pkg/common/config"
	"github.com/bloodbridge/platform/pkg/common/database"
	"github.com/bloodbridge/platform/pkg/common/kafka"
	"github.com/bloodbridge/platform/pkg/common/logger"
	"github.com/bloodbridge/platform/pkg/dispatch"
	"github.com/bloodbridge/platform/pkg/donors"
	"github.com/bloodbridge/platform/pkg/gateway/auth"
	"github.com/bloodbridge/platform/pkg/gateway/middleware"
	"github.com/bloodbridge/platform/pkg/identity"
	"github.com/bloodbridge/platform/pkg/live"
	"github.com/bloodbridge/platform/pkg/notifications"
	"github.com/bloodbridge/platform/pkg/observability/metrics"
	"github.com/bloodbridge/platform/pkg/responses"
	"github.com/bloodbridge/platform/pkg/sms"
	"github.com/bloodbridge/platform/pkg/tokens"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type migrator interface {
	AutoMigrate() error
}

func main() {
	cfg := config.Load()
	logger.Init(cfg.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.OpenPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.Close(db)

	requestRepo := dispatch.NewRepository(db)
	donorRepo := donors.NewRepository(db)
	responseRepo := responses.NewRepository(db)
	notificationRepo := notifications.NewRepository(db)
	tokenRepo := tokens.NewRepository(db)
	identityRepo := identity.NewRepository(db)

	for _, m := range []migrator{identityRepo, requestRepo, donorRepo, responseRepo, notificationRepo, tokenRepo} {
		if err := m.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("failed to migrate tables")
		}
	}

	var rdb *redis.Client
	var tokenStore tokens.Store = tokenRepo
	switch cfg.TokenStore {
	case "postgres":
	case "redis":
		rdb, err = database.OpenRedis(ctx, cfg)
		if err != nil {
			logger.Log.WithError(err).Fatal("failed to connect to redis")
		}
		defer rdb.Close()
		tokenStore = tokens.NewRedisStore(rdb, cfg.TokenTTL)
	default:
		logger.Log.WithField("token_store", cfg.TokenStore).Fatal("unknown token store")
	}
	registry := tokens.NewRegistry(tokenStore, cfg.TokenTTL)

	var audit notifications.EventPublisher
	if cfg.KafkaNotificationTopic != "" {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaNotificationTopic)
		defer producer.Close()
		audit = producer
	}

	sender, closeSender := buildSender(cfg)
	defer closeSender()

	templates, err := sms.LoadTemplates(cfg.SMSTemplatesPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load sms templates")
	}

	hub := live.NewHub()
	emitter := notifications.NewService(notificationRepo, hub, audit, cfg.ServiceName)

	orchestrator := dispatch.NewOrchestrator(requestRepo, donorRepo, registry, sender, emitter, dispatch.Options{
		PublicBaseURL: cfg.PublicBaseURL,
		Concurrency:   cfg.DispatchConcurrency,
		SendTimeout:   cfg.SMSTimeout,
		Templates:     templates,
	})
	recorder := responses.NewRecorder(registry, requestRepo, donorRepo, responseRepo, emitter)

	jwt, err := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTTTL)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to initialise session tokens")
	}

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	router.Use(middleware.CORS)
	router.Use(middleware.RateLimit(cfg.GatewayRateLimitRPS, cfg.GatewayRateLimitBurst))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/ready", readiness(db, rdb)).Methods(http.MethodGet)
	router.HandleFunc("/metrics", metrics.Handler).Methods(http.MethodGet)

	responseHandler := responses.NewHTTPHandler(recorder, requestRepo)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.BodyLimit(cfg.MaxRequestBody))

	identity.NewHTTPHandler(identity.NewService(identityRepo), jwt).Register(api)

	public := api.NewRoute().Subrouter()
	responseHandler.RegisterPublic(public)

	private := api.NewRoute().Subrouter()
	private.Use(middleware.Authenticate(jwt))
	dispatch.NewHTTPHandler(orchestrator).Register(private)
	responseHandler.Register(private)
	donors.NewHTTPHandler(donorRepo).Register(private)
	notifications.NewHTTPHandler(notificationRepo).Register(private)
	live.NewHTTPHandler(hub, cfg.LiveHeartbeat, cfg.LiveBuffer).Register(private)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":        cfg.ServerHost,
			"port":        cfg.ServerPort,
			"token_store": cfg.TokenStore,
			"sms":         cfg.SMSTransport,
		}).Info("Dispatch Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				purged, err := registry.PurgeExpired(ctx)
				if err != nil {
					logger.Log.WithError(err).Warn("token cleanup failed")
					continue
				}
				logger.Log.WithField("purged", purged).Info("expired response tokens purged")
			case <-ctx.Done():
				return
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Dispatch Service...")
	cancel()

	// Live streams never go idle on their own; end them before draining the server.
	hub.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Dispatch Service stopped")
}

// buildSender picks the SMS transport. The returned func releases its resources.
func buildSender(cfg *config.Config) (sms.Sender, func()) {
	switch cfg.SMSTransport {
	case "log":
		logger.Log.Warn("SMS_TRANSPORT=log, messages are only logged")
		return sms.LogSender{}, func() {}
	case "http":
		sender, err := sms.NewHTTPSender(sms.HTTPConfig{
			GatewayURL:   cfg.SMSGatewayURL,
			SenderID:     cfg.SMSSenderID,
			ClientID:     cfg.SMSClientID,
			ClientSecret: cfg.SMSClientSecret,
			TokenURL:     cfg.SMSTokenURL,
			Timeout:      cfg.SMSTimeout,
			Attempts:     cfg.SMSRetryAttempts,
		})
		if err != nil {
			logger.Log.WithError(err).Fatal("failed to configure sms gateway")
		}
		return sender, func() {}
	case "kafka":
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaSMSTopic)
		return sms.NewOutboxSender(producer, cfg.ServiceName), func() { producer.Close() }
	}
	logger.Log.WithField("sms_transport", cfg.SMSTransport).Fatal("unknown sms transport")
	return nil, nil
}

func readiness(db *gorm.DB, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err == nil && rdb != nil {
			err = rdb.Ping(ctx).Err()
		}
		if err != nil {
			logger.Log.WithError(err).Warn("readiness check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}
