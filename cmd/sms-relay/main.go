package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bloodbridge/platform/pkg/common/config"
	"github.com/bloodbridge/platform/pkg/common/kafka"
	"github.com/bloodbridge/platform/pkg/common/logger"
	"github.com/bloodbridge/platform/pkg/common/models"
	"github.com/bloodbridge/platform/pkg/sms"
	"github.com/gorilla/mux"
)

// relay drains the sms outbox topic into the carrier gateway.
type relay struct {
	sender  sms.Sender
	timeout time.Duration
}

func main() {
	cfg := config.Load()
	logger.Init("sms-relay")

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
	r := &relay{sender: sender, timeout: cfg.SMSTimeout}

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaSMSTopic, cfg.KafkaGroupID)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := consumer.Consume(ctx, r.handle); err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.WithError(err).Fatal("consumer error")
		}
	}()

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"topic": cfg.KafkaSMSTopic,
			"group": cfg.KafkaGroupID,
		}).Info("SMS Relay started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down SMS Relay...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("SMS Relay stopped")
}

// handle sends one queued message. Malformed events and rejected numbers are
// dropped; transport errors make the consumer retry the same message with backoff.
func (r *relay) handle(ctx context.Context, event models.Event) error {
	if event.Type != sms.EventSMSRequested {
		return nil
	}

	phone, text, err := sms.DecodeOutboxEvent(event.Data)
	if err != nil {
		logger.Log.WithError(err).WithField("event_id", event.ID).Warn("dropping malformed sms event")
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err = r.sender.Send(sendCtx, phone, text)
	if errors.Is(err, sms.ErrInvalidNumber) {
		logger.Log.WithField("event_id", event.ID).Warn("dropping sms to invalid number")
		return nil
	}
	return err
}
