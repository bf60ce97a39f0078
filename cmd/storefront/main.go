package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/storefront/internal/cart/cache"
	cartrepo "github.com/fjod/storefront/internal/cart/repository"
	cartservice "github.com/fjod/storefront/internal/cart/service"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/config"
	h "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/order"
	orderrepo "github.com/fjod/storefront/internal/order/repository"
	"github.com/fjod/storefront/internal/order/publisher"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/payment/store"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/fjod/storefront/internal/validation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Environment, cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if err := run(cfg, log); err != nil {
		log.Fatal("storefront stopped with error", zap.Error(err))
	}
	log.Info("storefront stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Catalog
	products, err := catalog.NewRepository(cfg.Catalog.SQLitePath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer products.Close()
	if err := products.RunMigrations(cfg.Catalog.MigrationsPath); err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}

	// Carts
	var carts cartrepo.CartRepository = cartrepo.NewMemoryRepository()
	if cfg.Cart.MongoURI != "" {
		db, err := cartrepo.ConnectMongoDB(ctx, cfg.Cart.MongoURI, cfg.Cart.MongoDatabase)
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		defer func() { _ = db.Client().Disconnect(context.Background()) }()

		mongoRepo := cartrepo.NewMongoRepository(db)
		if err := mongoRepo.CreateIndexes(ctx); err != nil {
			return fmt.Errorf("create cart indexes: %w", err)
		}
		carts = mongoRepo
		log.Info("carts stored in mongodb", zap.String("database", cfg.Cart.MongoDatabase))
	} else {
		log.Warn("CART_MONGO_URI not set, carts are kept in memory")
	}

	var cartCache cache.CartCache = cache.NopCache{}
	if cfg.Cart.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Cart.RedisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("cart redis ping: %w", err)
		}
		cartCache = cache.NewRedisCache(client, cfg.Cart.CacheTTL)
	}

	cartSvc := cartservice.NewCartService(carts, cartCache, products, log, m, cartservice.Options{
		ReservationTTL: cfg.Cart.ReservationTTL,
		Currency:       cfg.Pricing.Currency,
	})

	// Orders
	var orders orderrepo.OrderRepository = orderrepo.NewMemoryRepository()
	if cfg.Orders.PostgresHost != "" {
		cred := &orderrepo.Credentials{
			Host:              cfg.Orders.PostgresHost,
			Port:              cfg.Orders.PostgresPort,
			User:              cfg.Orders.PostgresUser,
			Password:          cfg.Orders.PostgresPassword,
			DBName:            cfg.Orders.PostgresDB,
			MigrationsDirPath: cfg.Orders.MigrationsPath,
		}
		pg, err := orderrepo.NewPostgresRepository(cred)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		if err := pg.RunMigrations(cred); err != nil {
			return fmt.Errorf("migrate orders: %w", err)
		}
		orders = pg
	} else {
		log.Warn("ORDERS_DB_HOST not set, orders are kept in memory")
	}

	var events order.Publisher = order.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := publisher.NewKafkaPublisher(publisher.NewKafkaWriter(cfg.Kafka.Topic, cfg.Kafka.Brokers...), 5*time.Second)
		defer kp.Close()
		events = kp
	}
	orderSvc := order.NewService(orders, events, log, m)

	// Payments
	breakerCfg := payment.BreakerConfig{
		MaxFailures: cfg.Payment.BreakerMaxFailures,
		OpenTimeout: cfg.Payment.BreakerOpenTimeout,
	}
	sim := payment.NewSimulator(cfg.Payment.SimulatorSuccess, cfg.Payment.SimulatorLatency)

	var statusSource payment.StatusSource = sim
	var statusStore *store.RedisStatusStore
	if cfg.Payment.StatusRedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Payment.StatusRedisAddr})
		defer client.Close()
		statusStore = store.NewRedisStatusStore(client, 24*time.Hour)
		statusSource = statusStore

		// the simulator answers pushes through the callback path
		sim.OnCallback(func(orderID string, r payment.Report) {
			cbCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := statusStore.Record(cbCtx, orderID, r); err != nil {
				log.Warn("simulated callback not stored", zap.String("order_id", orderID), zap.Error(err))
			}
		})
	}

	tracker := payment.NewTracker(
		payment.NewBreakerCharger(sim, breakerCfg, log),
		payment.NewBreakerMobileMoney(sim, breakerCfg, log),
		payment.NewBreakerStatusSource(statusSource, breakerCfg, log),
		payment.Config{
			MaxWait:       cfg.Payment.MaxWait,
			PollInterval:  cfg.Payment.PollInterval,
			ChargeTimeout: cfg.Payment.ChargeTimeout,
		},
		log, m)

	// Checkout
	rules, err := validation.NewRules(cfg.Validation.PhonePattern)
	if err != nil {
		return err
	}
	calc := pricing.NewCalculator(pricing.Rates{
		VATRate:          cfg.Pricing.VATRate,
		StandardShipping: cfg.Pricing.StandardShipping,
		ExpressShipping:  cfg.Pricing.ExpressShipping,
		Currency:         cfg.Pricing.Currency,
	})
	registry := checkout.NewRegistry(cfg.Checkout.IdleTTL)
	checkoutSvc := checkout.NewService(cartSvc, orderSvc, tracker, rules, calc, registry, log, m,
		checkout.Options{GatewayTimeout: cfg.Checkout.GatewayTimeout})

	handlers := h.Handlers{
		Cart:     h.NewCartHandler(cartSvc, cfg.HTTP.RequestTimeout, log),
		Checkout: h.NewCheckoutHandler(checkoutSvc, cfg.HTTP.RequestTimeout, log),
		Orders:   h.NewOrdersHandler(orderSvc, cfg.HTTP.RequestTimeout, log),
	}
	if statusStore != nil {
		handlers.Payments = h.NewPaymentsHandler(statusStore, cfg.HTTP.RequestTimeout, log)
	} else {
		handlers.Payments = h.NewPaymentsHandler(unconfiguredCallbacks{}, cfg.HTTP.RequestTimeout, log)
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTP.Port,
		Handler: h.NewRouter(handlers, h.RouterConfig{
			RequestTimeout: cfg.HTTP.RequestTimeout,
			Logger:         log,
			Metrics:        m,
			Gatherer:       reg,
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", ":"+cfg.HTTP.GRPCPort)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		log.Info("grpc health server listening", zap.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		registry.Run(gctx, time.Minute)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return err
	})

	return g.Wait()
}

// unconfiguredCallbacks rejects provider callbacks when no status store is set up.
type unconfiguredCallbacks struct{}

func (unconfiguredCallbacks) Record(context.Context, string, payment.Report) (bool, error) {
	return false, errors.New("PAYMENT_STATUS_REDIS_ADDR not configured")
}
