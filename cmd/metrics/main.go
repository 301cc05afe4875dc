package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"provision-saga/internal/application/metrics"
	"provision-saga/internal/common/configs"
	"provision-saga/internal/common/health"
	"provision-saga/internal/common/logger"
	commonmetrics "provision-saga/internal/common/metrics"
	"provision-saga/internal/infrastructure/eventbus"
	"provision-saga/internal/infrastructure/eventstore"
	httphandler "provision-saga/internal/infrastructure/http"
	"provision-saga/internal/infrastructure/incidents"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	l := logger.NewConsoleLogger()

	if err := configs.LoadDotEnv(); err != nil {
		l.Error("Failed to load .env", logger.Err(err))
		os.Exit(1)
	}

	port := configs.PortMetricsService
	dbURL := configs.GetDatabaseURL()
	m := commonmetrics.NewPrometheusCollector("provision_saga")

	// Database for the event journal and the operator incident view
	db, err := initPostgreSQL(dbURL)
	if err != nil {
		l.Error("Failed to initialize database", logger.Err(err))
		os.Exit(1)
	}
	defer db.Close()

	incidentLog := incidents.NewPostgresLog(db)
	if err := incidentLog.InitSchema(context.Background()); err != nil {
		l.Error("Failed to initialize incident schema", logger.Err(err))
		os.Exit(1)
	}

	journal := eventstore.NewPostgresEventStore(db)
	if err := journal.InitSchema(context.Background()); err != nil {
		l.Error("Failed to initialize event journal schema", logger.Err(err))
		os.Exit(1)
	}

	eventBus := eventbus.NewEventBus(configs.GetKafkaBrokers(), l)
	defer eventBus.Close()

	metricsService := metrics.NewService(journal, incidentLog, m, l)

	checker := health.NewDependencyChecker(2 * time.Second)
	checker.Register("database", db)

	router := setupRouter(checker, m, incidentLog, journal, l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eventBus.SubscribeWithGroupID(ctx, configs.TopicProvisioning, configs.ServiceNameMetricsService, metricsService.HandleEvent); err != nil {
		l.Error("Failed to subscribe to provisioning events", logger.Err(err))
		os.Exit(1)
	}
	l.Info("Event consumers started", logger.String("topic", configs.TopicProvisioning))

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	l.Info("Starting metrics service", logger.String("port", port))

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Error("Server failed", logger.Err(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error("Server forced to shutdown", logger.Err(err))
	}
}

func setupRouter(checker health.HealthChecker, m *commonmetrics.PrometheusCollector, incidentLog httphandler.IncidentLog, journal httphandler.EventLoader, l logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", httphandler.HealthHandler(checker))
	router.GET("/metrics", gin.WrapH(m.Handler()))
	httphandler.NewIncidentHandler(incidentLog, l).Register(router)
	httphandler.NewEventsHandler(journal, l).Register(router)

	return router
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
