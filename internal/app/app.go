// Package app wires the fulfillment services for the cmd binaries.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/cart"
	"github.com/ariefcatur/go-storefront-core/internal/config"
	"github.com/ariefcatur/go-storefront-core/internal/events"
	"github.com/ariefcatur/go-storefront-core/internal/gateway"
	"github.com/ariefcatur/go-storefront-core/internal/inventory"
	kafkax "github.com/ariefcatur/go-storefront-core/internal/kafka"
	"github.com/ariefcatur/go-storefront-core/internal/metrics"
	"github.com/ariefcatur/go-storefront-core/internal/orders"
	"github.com/ariefcatur/go-storefront-core/internal/payments"
	"github.com/ariefcatur/go-storefront-core/internal/pricing"
	"github.com/ariefcatur/go-storefront-core/internal/redisx"
	"github.com/ariefcatur/go-storefront-core/internal/store"
	"github.com/ariefcatur/go-storefront-core/internal/store/memory"
	"github.com/ariefcatur/go-storefront-core/internal/store/postgres"
)

// eventTopics get one producer each.
var eventTopics = []string{
	events.TopicOrderCreated,
	events.TopicOrderStatusChanged,
	events.TopicPaymentCaptured,
	events.TopicPaymentFailed,
	events.TopicGatewayCallback,
}

type App struct {
	Config   config.Config
	Log      *zap.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Store     store.Store
	Redis     *redis.Client
	Gateway   *gateway.Client
	Producers map[string]*kafkax.Producer

	Inventory *inventory.Service
	Carts     *cart.Service
	Orders    *orders.Service
	Payments  *payments.Service
}

// New connects the backing services named in cfg. An empty REDIS_ADDR or
// KAFKA_BROKERS falls back to in-process locking and no event publishing.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Log: log, Registry: prometheus.NewRegistry(), Producers: map[string]*kafkax.Producer{}}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	switch cfg.StoreDriver {
	case config.DriverMemory:
		a.Store = memory.New()
	default:
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		pg := postgres.New(pool)
		a.Store = pg
		if err := pg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("db migrate: %w", err)
		}
	}

	var emitter events.Emitter = events.Nop{}
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		pubs := map[string]events.Publisher{}
		for _, topic := range eventTopics {
			p := kafkax.NewProducer(brokers, topic, 1024, log.With(zap.String("topic", topic)))
			// stopped by Close, not by the caller's context
			p.Start(context.Background())
			a.Producers[topic] = p
			pubs[topic] = p
		}
		emitter = &events.KafkaEmitter{Producer: cfg.ServiceName, Producers: pubs}
	}

	a.Gateway = gateway.New(gateway.Config{
		BaseURL:       cfg.GatewayBaseURL,
		KeyID:         cfg.GatewayKeyID,
		KeySecret:     cfg.GatewayKeySecret,
		WebhookSecret: cfg.GatewayWebhookSecret,
	}, a.Metrics)

	a.Inventory = inventory.New(a.Store, a.Metrics)
	a.Carts = cart.New(a.Store)
	a.Orders = orders.New(a.Store, a.Inventory, pricing.NewCalculator(cfg.Tax(), cfg.DiscountAmount()), emitter, a.Metrics)
	a.Orders.SettleInventory = cfg.SettleInventory

	a.Payments = payments.New(a.Store, a.Orders, a.Gateway, emitter, a.Metrics)
	a.Payments.Currency = cfg.Currency
	a.Payments.LockTTL = cfg.SessionLockTTL
	if cfg.RedisAddr != "" {
		if a.Redis, err = redisx.New(ctx, cfg.RedisAddr); err != nil {
			return nil, err
		}
		a.Payments.Locker = redisx.NewLocker(a.Redis)
		a.Payments.Dedup = redisx.NewDeduper(a.Redis)
	}

	log.Info("app_ready",
		zap.String("store", cfg.StoreDriver),
		zap.Bool("redis", a.Redis != nil),
		zap.Int("producers", len(a.Producers)),
		zap.Bool("settle_inventory", cfg.SettleInventory),
	)
	return a, nil
}

// Callbacks is the publisher for verified webhook callbacks, nil without Kafka.
func (a *App) Callbacks() events.Publisher {
	if p, ok := a.Producers[events.TopicGatewayCallback]; ok {
		return p
	}
	return nil
}

// Close flushes pending events and releases connections.
func (a *App) Close() {
	for topic, p := range a.Producers {
		p.Close()
		a.Log.Debug("producer_closed", zap.String("topic", topic))
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Store != nil {
		a.Store.Close()
	}
}
