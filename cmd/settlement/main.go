package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-core/internal/cache"
	"github.com/ariefcatur/go-marketplace-core/internal/config"
	kafkax "github.com/ariefcatur/go-marketplace-core/internal/kafka"
	"github.com/ariefcatur/go-marketplace-core/internal/order"
	"github.com/ariefcatur/go-marketplace-core/internal/postgres"
	"github.com/ariefcatur/go-marketplace-core/internal/redisx"
	"github.com/ariefcatur/go-marketplace-core/internal/settlement"
	"github.com/ariefcatur/go-marketplace-core/internal/stock"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Producer for lifecycle + notify events emitted by transitions
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, logger)
	prod.Start(ctx)

	orderSvc := &order.Service{
		Run:         postgres.Runner{DB: db},
		Store:       &order.Repo{DB: db},
		Stock:       &stock.Ledger{DB: db},
		Cache:       &cache.Snapshots{RDB: rdb, Log: logger},
		Pub:         prod,
		ServiceName: cfg.ServiceName + "-settlement",
		Log:         logger,
	}
	svc := &settlement.Service{
		Orders: orderSvc,
		Dedup:  &redisx.Dedup{RDB: rdb, Service: "settlement"},
		Log:    logger,
	}

	payments := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.SettlementGroup,
		order.TopicPaymentConfirmed, cfg.SettlementWorkers, logger)
	deliveries := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.SettlementGroup,
		order.TopicDeliveryConfirmed, cfg.SettlementWorkers, logger)

	go func() {
		logger.Info("payment consumer started",
			zap.String("group", cfg.SettlementGroup),
			zap.String("topic", order.TopicPaymentConfirmed))
		if err := payments.Start(ctx, svc.HandlePaymentConfirmed); err != nil {
			logger.Error("payment consumer exit", zap.Error(err))
			cancel()
		}
	}()
	go func() {
		logger.Info("delivery consumer started",
			zap.String("group", cfg.SettlementGroup),
			zap.String("topic", order.TopicDeliveryConfirmed))
		if err := deliveries.Start(ctx, svc.HandleDeliveryConfirmed); err != nil {
			logger.Error("delivery consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down consumers")
	cancel()
	time.Sleep(500 * time.Millisecond)
	prod.Close()
	prod.WaitClosed()
}
