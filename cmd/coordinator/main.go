package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appmetrics "provision-saga/internal/application/metrics"
	"provision-saga/internal/application/saga"
	"provision-saga/internal/common/configs"
	"provision-saga/internal/common/health"
	"provision-saga/internal/common/logger"
	commonmetrics "provision-saga/internal/common/metrics"
	"provision-saga/internal/domain/pricing"
	"provision-saga/internal/infrastructure/dlq"
	"provision-saga/internal/infrastructure/eventbus"
	"provision-saga/internal/infrastructure/gateway"
	httphandler "provision-saga/internal/infrastructure/http"
	"provision-saga/internal/infrastructure/incidents"
	"provision-saga/internal/infrastructure/ledgerstore"
	"provision-saga/internal/infrastructure/provisioner"
	"provision-saga/internal/infrastructure/redisstore"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	l := logger.NewConsoleLogger()

	if err := configs.LoadDotEnv(); err != nil {
		l.Error("Failed to load .env", logger.Err(err))
		os.Exit(1)
	}

	cfg, err := configs.Load()
	if err != nil {
		l.Error("Invalid configuration", logger.Err(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Pricing
	engine, err := initPricing(cfg.PricingFile)
	if err != nil {
		l.Error("Failed to load pricing scheme", logger.Err(err))
		os.Exit(1)
	}

	checker := health.NewDependencyChecker(2 * time.Second)
	collector := commonmetrics.NewPrometheusCollector("provision_saga")

	// Ledger, plus the incident log when Postgres is available
	var (
		txLedger    ledgerstore.Ledger
		incidentLog appmetrics.IncidentStore
	)
	switch cfg.LedgerBackend {
	case configs.LedgerBackendBolt:
		boltLedger, err := ledgerstore.OpenBolt(cfg.BoltPath)
		if err != nil {
			l.Error("Failed to open ledger", logger.Err(err))
			os.Exit(1)
		}
		defer boltLedger.Close()
		txLedger = boltLedger
		checker.Register("ledger", boltLedger)
	default:
		db, err := initPostgreSQL(cfg.DatabaseURL)
		if err != nil {
			l.Error("Failed to initialize database", logger.Err(err))
			os.Exit(1)
		}
		defer db.Close()

		pgLedger := ledgerstore.NewPostgresLedger(db)
		if err := pgLedger.InitSchema(ctx); err != nil {
			l.Error("Failed to initialize ledger schema", logger.Err(err))
			os.Exit(1)
		}
		pgLog := incidents.NewPostgresLog(db)
		if err := pgLog.InitSchema(ctx); err != nil {
			l.Error("Failed to initialize incident schema", logger.Err(err))
			os.Exit(1)
		}
		txLedger = pgLedger
		incidentLog = pgLog
		checker.Register("ledger", pgLedger)
	}

	// Optional Redis for cross-instance locking and charge reuse
	var (
		locker  saga.Locker
		charges saga.ChargeRegistry
	)
	if cfg.RedisURL != "" {
		client, err := redisstore.Connect(ctx, cfg.RedisURL)
		if err != nil {
			l.Error("Failed to connect to Redis", logger.Err(err))
			os.Exit(1)
		}
		defer client.Close()
		locker = redisstore.NewLocker(client, cfg.LockTTL)
		charges = redisstore.NewChargeRegistry(client, cfg.Payment.ChargeTTL)
		checker.Register("redis", redisstore.NewHealthCheck(client))
	} else {
		l.Warn("REDIS_URL not set, locks and charge reuse are local to this process")
	}

	// Adapters
	gw, sim := initGateway(cfg.Payment, l)
	panel := initProvisioner(cfg.Panel, l)

	// Event Bus
	var bus eventbus.EventBus
	if brokers := configs.GetKafkaBrokers(); len(brokers) > 0 {
		bus = eventbus.NewEventBus(brokers, l)
	} else {
		l.Warn("KAFKA_BROKERS not set, provisioning events stay in process")
		bus = eventbus.NewMemoryBus(l)
	}
	defer bus.Close()

	// Operator incidents
	queue := dlq.NewQueue(l)
	defer queue.Close()
	queue.Subscribe(appmetrics.NewService(nil, incidentLog, collector, l).HandleIncident)

	coordinator, err := saga.NewCoordinator(saga.Dependencies{
		Pricing:     engine,
		Gateway:     gw,
		Merchant:    gateway.Merchant{ID: cfg.Payment.MerchantID, Key: cfg.Payment.MerchantKey},
		Provisioner: panel,
		Ledger:      txLedger,
		Charges:     charges,
		Locker:      locker,
		Publisher:   bus,
		Incidents:   queue,
		Metrics:     collector,
		Logger:      l,
	})
	if err != nil {
		l.Error("Failed to initialize coordinator", logger.Err(err))
		os.Exit(1)
	}

	router := httphandler.NewRouter(httphandler.NewPaymentHandler(coordinator, l), checker, collector.Handler())
	if sim != nil {
		registerSimulatorRoutes(router, sim)
	}

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	l.Info("Starting saga coordinator",
		logger.String("port", cfg.Port),
		logger.String("ledger", cfg.LedgerBackend),
	)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Error("Server failed", logger.Err(err))
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	l.Info("Shutting down server...")

	// In-flight confirms may still be provisioning.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error("Server forced to shutdown", logger.Err(err))
	}
}

func initPricing(path string) (*pricing.Engine, error) {
	scheme := pricing.DefaultScheme()
	if path != "" {
		var err error
		if scheme, err = pricing.LoadScheme(path); err != nil {
			return nil, err
		}
	}
	return pricing.NewEngine(scheme)
}

func initPostgreSQL(connString string) (*sql.DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func initGateway(cfg configs.PaymentConfig, l logger.Logger) (gateway.Gateway, *gateway.Simulator) {
	if cfg.Simulate {
		l.Warn("PAYMENT_SIMULATE is set, using the in-memory gateway")
		sim := gateway.NewSimulator(cfg.ChargeTTL)
		return sim, sim
	}
	return gateway.NewQRISClient(gateway.QRISConfig{
		BaseURL:   cfg.APIURL,
		APIKey:    cfg.APIKey,
		QRCode:    cfg.QRCode,
		ChargeTTL: cfg.ChargeTTL,
		Timeout:   15 * time.Second,
	}, l), nil
}

func initProvisioner(cfg configs.PanelConfig, l logger.Logger) provisioner.Provisioner {
	if cfg.Simulate {
		l.Warn("PTERODACTYL_SIMULATE is set, using the in-memory panel")
		return provisioner.NewSimulator(cfg.URL)
	}
	return provisioner.NewPterodactylClient(provisioner.PterodactylConfig{
		URL:         cfg.URL,
		APIKey:      cfg.APIKey,
		NestID:      cfg.NestID,
		EggID:       cfg.EggID,
		LocationID:  cfg.LocationID,
		DockerImage: cfg.DockerImage,
		Startup:     cfg.Startup,
		Timeout:     60 * time.Second,
	}, l)
}

// registerSimulatorRoutes lets a developer pay a simulated charge.
func registerSimulatorRoutes(router *gin.Engine, sim *gateway.Simulator) {
	router.POST("/dev/pay/:id", func(c *gin.Context) {
		if err := sim.PayCharge(c.Param("id")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})
}
