package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-core/internal/cache"
	"github.com/ariefcatur/go-marketplace-core/internal/cart"
	"github.com/ariefcatur/go-marketplace-core/internal/checkout"
	"github.com/ariefcatur/go-marketplace-core/internal/config"
	"github.com/ariefcatur/go-marketplace-core/internal/httpx"
	kafkax "github.com/ariefcatur/go-marketplace-core/internal/kafka"
	"github.com/ariefcatur/go-marketplace-core/internal/order"
	"github.com/ariefcatur/go-marketplace-core/internal/postgres"
	"github.com/ariefcatur/go-marketplace-core/internal/redisx"
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

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, logger)
	prod.Start(ctx)

	// Wiring
	snapshots := &cache.Snapshots{RDB: rdb, Log: logger}
	locks := &redisx.Lock{RDB: rdb, Retries: cfg.LockRetries, Backoff: cfg.LockBackoff}
	ledger := &stock.Ledger{DB: db}
	run := postgres.Runner{DB: db}
	cartRepo := &cart.Repo{DB: db}
	orderRepo := &order.Repo{DB: db}

	cartSvc := &cart.Service{
		Store:     cartRepo,
		Catalog:   ledger,
		Locks:     locks,
		Cache:     snapshots,
		LockLease: cfg.LockLease,
		Log:       logger,
	}
	orderSvc := &order.Service{
		Run:         run,
		Store:       orderRepo,
		Stock:       ledger,
		Cache:       snapshots,
		Pub:         prod,
		ServiceName: cfg.ServiceName,
		Log:         logger,
	}
	checkoutSvc := &checkout.Service{
		Run:            run,
		Carts:          cartRepo,
		Orders:         orderRepo,
		Stock:          ledger,
		Cache:          snapshots,
		Pub:            prod,
		CommissionRate: cfg.CommissionRate,
		ServiceName:    cfg.ServiceName,
		Log:            logger,
	}

	router := httpx.NewRouter()
	(&httpx.CartHandler{Svc: cartSvc, Snapshots: snapshots, Log: logger}).Register(router)
	(&httpx.OrdersHandler{
		Checkout: checkoutSvc,
		Orders:   orderSvc,
		Ledger:   ledger,
		Log:      logger,
	}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // close inbox -> flush & close writer
	cancel()          // stop producer loop
	prod.WaitClosed() // drain
}
