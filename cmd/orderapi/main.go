package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/saborhub/ordercore/internal/authz"
	"github.com/saborhub/ordercore/internal/config"
	"github.com/saborhub/ordercore/internal/draft"
	"github.com/saborhub/ordercore/internal/events"
	"github.com/saborhub/ordercore/internal/httpapi"
	"github.com/saborhub/ordercore/internal/logging"
	"github.com/saborhub/ordercore/internal/metrics"
	"github.com/saborhub/ordercore/internal/models"
	"github.com/saborhub/ordercore/internal/payment"
	"github.com/saborhub/ordercore/internal/pushhub"
	"github.com/saborhub/ordercore/internal/shift"
	"github.com/saborhub/ordercore/internal/sweeper"
	"github.com/saborhub/ordercore/internal/telemetry"
	"github.com/saborhub/ordercore/internal/ticket"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := logging.Setup("ordercore", cfg.Env)

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "ordercore",
		Environment: cfg.Env,
		Endpoint:    strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		Insecure:    true,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("database connection error: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		log.Fatalf("auto migrate error: %v", err)
	}

	reg := prometheus.NewRegistry()
	metrics.Register(reg)

	bus := events.NewBus()
	hub := pushhub.NewHub()
	bus.Subscribe(hub.Publish)

	draftSvc := draft.NewService(db, bus, cfg.DraftLockTTL, cfg.DraftDefaultTTL)
	ticketSvc := ticket.NewService(db, bus)
	bus.Subscribe(ticketSvc.HandleDraftConfirmed)
	paymentSvc := payment.NewService(db, bus)
	shiftSvc := shift.NewService(db, bus)

	sw := sweeper.New(draftSvc, cfg.SweepInterval, logger.With().Str("component", "sweeper").Logger())
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	go sw.Start(sweepCtx)

	authMiddleware := authz.NewMiddleware(cfg.JWTSecret)

	apiServer := httpapi.New(httpapi.Config{
		DB: db, Bus: bus, Hub: hub, Auth: authMiddleware,
		Draft: draftSvc, Ticket: ticketSvc, Payment: paymentSvc, Shift: shiftSvc,
		Log: logger.With().Str("component", "http").Logger(),
	})

	mux := http.NewServeMux()
	mux.Handle("/", apiServer.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	handler := otelhttp.NewHandler(mux, "ordercore")

	addr := ":" + cfg.Port
	logger.Info().Str("addr", addr).Msg("starting ordercore")
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
