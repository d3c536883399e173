package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	"agroledger/config"
	"agroledger/core/events"
	"agroledger/core/state"
	"agroledger/gateway/auth"
	"agroledger/gateway/middleware"
	"agroledger/gateway/models"
	"agroledger/gateway/server"
	"agroledger/native/escrow"
	"agroledger/native/offers"
	"agroledger/native/orders"
	"agroledger/native/registry"
	"agroledger/observability"
	"agroledger/observability/logging"
	"agroledger/observability/otel"
	"agroledger/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "./config.toml", "path to the TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup("agroledgerd", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if endpoint := os.Getenv("AGROLEDGER_OTLP_ENDPOINT"); endpoint != "" {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "agroledgerd",
			Environment: cfg.Environment,
			Endpoint:    endpoint,
			Insecure:    os.Getenv("AGROLEDGER_OTLP_INSECURE") == "true",
			Headers:     otel.ParseHeaders(os.Getenv("AGROLEDGER_OTLP_HEADERS")),
		})
		if err != nil {
			logger.Error("init telemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown", "error", err)
			}
		}()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("create data dir", "error", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		logger.Error("open state database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	outbox, err := storage.NewOutbox(cfg.OutboxPath)
	if err != nil {
		logger.Error("open outbox", "error", err)
		os.Exit(1)
	}
	defer outbox.Close()

	gatewayDB, err := gorm.Open(sqlite.Open(cfg.GatewayDBPath), &gorm.Config{})
	if err != nil {
		logger.Error("open gateway database", "error", err)
		os.Exit(1)
	}
	if err := models.AutoMigrate(gatewayDB); err != nil {
		logger.Error("migrate gateway database", "error", err)
		os.Exit(1)
	}

	store := state.NewStore(db)
	store.SetEmitter(logEmitter{logger: logger})
	store.SetOutbox(outbox)

	pickupTTL, err := cfg.PickupExpiry()
	if err != nil {
		logger.Error("invalid pickup ttl", "error", err)
		os.Exit(1)
	}
	deliveryTTL, err := cfg.DeliveryExpiry()
	if err != nil {
		logger.Error("invalid delivery ttl", "error", err)
		os.Exit(1)
	}

	registryEngine := registry.NewEngine()
	offerLedger := offers.NewLedger()
	custodian := escrow.NewCustodian(escrow.Split{FarmerBps: cfg.FarmerBps})
	orderEngine := orders.NewEngine(offerLedger, custodian, orders.Expiry{
		Pickup:   pickupTTL,
		Delivery: deliveryTTL,
	})

	srv := server.New(server.Options{
		Store:     store,
		DB:        gatewayDB,
		Logger:    logger,
		Verifier:  auth.NewVerifier(cfg.JWTSecret),
		Registry:  registryEngine,
		Offers:    offerLedger,
		Custodian: custodian,
		Orders:    orderEngine,
		Limits: map[string]middleware.RateLimit{
			"api": {
				RequestsPerMinute: float64(cfg.RateLimitPerMinute),
				Burst:             cfg.RateLimitBurst,
			},
		},
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: otelhttp.NewHandler(srv.Handler(), "agroledger-gateway"),
	}
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddress,
		Handler: promhttp.Handler(),
	}

	go func() {
		logger.Info("gateway listening", "address", cfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("gateway listen", "error", err)
			stop()
		}
	}()
	go func() {
		logger.Info("metrics listening", "address", cfg.MetricsAddress)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics listen", "error", err)
		}
	}()
	go relayOutbox(ctx, outbox, logger)

	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gateway shutdown", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics shutdown", "error", err)
	}
}

// relayOutbox drains committed events for external consumers. The stand-in
// sink is the structured log; an indexer replaces this loop by pulling
// Pending itself.
func relayOutbox(ctx context.Context, outbox *storage.Outbox, logger *slog.Logger) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		entries, err := outbox.Pending(0, 100)
		if err != nil {
			logger.Warn("read outbox", "error", err)
			continue
		}
		observability.Settlement().SetOutboxPending(len(entries))
		for _, entry := range entries {
			logger.Info("event delivered",
				"outboxId", entry.ID,
				"type", entry.Event.Type,
				"attributes", entry.Event.Attributes,
			)
			if err := outbox.MarkDelivered(entry.ID); err != nil {
				logger.Warn("mark delivered", "outboxId", entry.ID, "error", err)
				break
			}
		}
	}
}

// logEmitter surfaces committed events on the service log.
type logEmitter struct {
	logger *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	payload := evt.Event()
	if payload == nil {
		return
	}
	l.logger.Debug("event emitted", "type", payload.Type, "attributes", payload.Attributes)
}
