package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-settlement.git/internal/config"
	"github.com/ariefcatur/go-order-settlement.git/internal/httpx"
	kafkax "github.com/ariefcatur/go-order-settlement.git/internal/kafka"
	"github.com/ariefcatur/go-order-settlement.git/internal/orders"
	"github.com/ariefcatur/go-order-settlement.git/internal/payments"
	"github.com/ariefcatur/go-order-settlement.git/internal/payments/stripex"
	"github.com/ariefcatur/go-order-settlement.git/internal/postgres"
	"github.com/ariefcatur/go-order-settlement.git/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	statusStore := &redisx.StatusStore{R: rdb, Service: cfg.ServiceName}

	// One producer per topic; every message is keyed by order id so one
	// order's events stay ordered.
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024, log)
	pCancelled := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCancelled, 1024, log)
	pPaid := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPaid, 1024, log)
	pFailed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicPaymentFailed, 1024, log)
	producers := []*kafkax.Producer{pCreated, pCancelled, pPaid, pFailed}
	for _, p := range producers {
		p.Start(ctx)
	}

	inventoryRepo := &orders.InventoryRepo{DB: db}
	orderRepo := &orders.Repo{DB: db}
	paymentRepo := &payments.Repo{DB: db}

	orderSvc := &orders.Service{
		DB:        db,
		Inventory: inventoryRepo,
		Orders:    orderRepo,
		Log:       log,
	}

	provider := stripex.New(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	intentSvc := &payments.IntentService{
		Orders:   orderRepo,
		Payments: paymentRepo,
		Provider: provider,
		Name:     stripex.ProviderName,
		Currency: cfg.PaymentCurrency,
		Log:      log,
	}
	settler := &payments.Settler{
		DB:           db,
		Payments:     paymentRepo,
		Orders:       orderRepo,
		Inventory:    inventoryRepo,
		ProducerPaid: pPaid,
		ProducerFail: pFailed,
		ServiceName:  cfg.ServiceName,
		Log:          log,
	}

	auth := httpx.UserHeaderAuth("X-User-Id")
	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Service:      orderSvc,
		Inventory:    inventoryRepo,
		Status:       statusStore,
		ProducerNew:  pCreated,
		ProducerCanc: pCancelled,
		Auth:         auth,
		ServiceName:  cfg.ServiceName,
		Log:          log,
	}
	oh.Register(router)
	ph := &httpx.PaymentsHandler{
		Intents: intentSvc,
		Settler: settler,
		Decoder: provider,
		Auth:    auth,
		Log:     log,
	}
	ph.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	for _, p := range producers {
		p.Close()
	}
	cancel()
	for _, p := range producers {
		p.WaitClosed()
	}
}
