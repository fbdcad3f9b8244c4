package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/app"
	"github.com/ariefcatur/go-storefront-core/internal/config"
	"github.com/ariefcatur/go-storefront-core/internal/events"
	kafkax "github.com/ariefcatur/go-storefront-core/internal/kafka"
	"github.com/ariefcatur/go-storefront-core/internal/logging"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.ServiceName+"-callbacks", cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("config_invalid", zap.Error(err))
	}
	if len(cfg.Brokers()) == 0 {
		logger.Fatal("config_invalid", zap.String("reason", "KAFKA_BROKERS is required"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup_failed", zap.Error(err))
	}
	defer a.Close()

	cons := kafkax.NewConsumer(cfg.Brokers(), cfg.CallbackGroup, events.TopicGatewayCallback, cfg.CallbackWorkers, logger)
	logger.Info("callback_consumer_started",
		zap.String("group", cfg.CallbackGroup),
		zap.String("topic", events.TopicGatewayCallback),
		zap.Int("workers", cfg.CallbackWorkers),
	)

	// Start returns once ctx is cancelled and every worker has exited
	if err := cons.Start(logging.WithContext(ctx, logger), a.Payments.ConsumeCallback); err != nil {
		logger.Error("consumer_exit", zap.Error(err))
	}
	logger.Info("shutting_down")
}
