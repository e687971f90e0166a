package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"

	"github.com/aqua-x402/credit-engine/internal/api"
	"github.com/aqua-x402/credit-engine/internal/auction"
	"github.com/aqua-x402/credit-engine/internal/bridge"
	"github.com/aqua-x402/credit-engine/internal/config"
	"github.com/aqua-x402/credit-engine/internal/liquidity"
	"github.com/aqua-x402/credit-engine/internal/publisher"
	"github.com/aqua-x402/credit-engine/internal/rabbitmq"
	"github.com/aqua-x402/credit-engine/internal/rfq"
	internalsecrets "github.com/aqua-x402/credit-engine/internal/secrets"
	"github.com/aqua-x402/credit-engine/internal/store"
	"github.com/aqua-x402/credit-engine/internal/ws"
	"github.com/aqua-x402/credit-engine/pkg/eventbus"
	"github.com/aqua-x402/credit-engine/pkg/logger"
	"github.com/aqua-x402/credit-engine/pkg/secrets"
)

// engineCommands routes queued lender commands to the matching engines.
type engineCommands struct {
	rfqs     *rfq.Engine
	auctions *auction.Engine
}

func (e engineCommands) SubmitQuote(rfqID uint64, lender string, rateBps uint32, limit, collateralRequired decimal.Decimal) (int, error) {
	return e.rfqs.SubmitQuote(rfqID, lender, rateBps, limit, collateralRequired)
}

func (e engineCommands) PlaceBid(auctionID uint64, lender string, rateBps uint32, limit decimal.Decimal) (int, error) {
	return e.auctions.PlaceBid(auctionID, lender, rateBps, limit)
}

// maskDSN hides credentials when logging the database URL.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	u.User = url.User(u.User.Username())
	return u.String()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Info("starting [credit-engine]...")
	logg.Info("connection to DSN: ", maskDSN(cfg.DatabaseURL))

	// --- Database DSN from AWS Secrets Manager (optional) ---
	stopCleaner := make(chan struct{})
	if cfg.DatabaseDSNID != "" {
		awsProvider, err := secrets.NewAWSProvider(cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
		}

		dsnCache := secrets.NewCache[string](cfg.CacheTTL)
		go dsnCache.StartCleaner(cfg.CleanupFreq, stopCleaner)

		resolver := internalsecrets.NewDSNResolver(logger.L(), awsProvider, dsnCache)
		dsn, err := resolver.Resolve(ctx, cfg.DatabaseDSNID)
		if err != nil {
			logg.Fatalw("failed to resolve database DSN", "secret_id", cfg.DatabaseDSNID, "error", err)
		}
		cfg.DatabaseURL = dsn
	}

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logg.Fatalw("failed to connect to NATS", "error", err)
	}

	// --- Event bus and outbound publisher ---
	bus := eventbus.New()

	pub, err := publisher.New(nc, cfg.ServiceName)
	if err != nil {
		logg.Fatalw("failed to init publisher", "error", err)
	}
	pub.Attach(bus)

	// --- Store (Redis + Postgres hybrid, read side) ---
	var st store.Store
	if cfg.SnapshotEnabled {
		st, err = store.NewHybrid(cfg.RedisAddr, cfg.RedisDB, cfg.DatabaseURL, store.PGPoolConfig{
			MaxConns:          int32(cfg.PGMaxConns),
			MinConns:          int32(cfg.PGMinConns),
			MaxConnLifetime:   cfg.PGMaxConnLifetime,
			MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
			HealthCheckPeriod: cfg.PGHealthCheckPeriod,
		}, logger.L())
		if err != nil {
			logg.Fatalw("failed to init store", "error", err)
		}
		store.NewArchiver(st, logger.L()).Attach(bus)
	} else {
		logg.Warn("SNAPSHOT_ENABLED=false; read-side snapshots disabled")
	}

	// --- Matching engines ---
	rfqs := rfq.NewEngine(bus, logger.L())
	auctions := auction.NewEngine(bus, logger.L())
	pool := liquidity.NewPool(bus, logger.L())
	br := bridge.New(rfqs, auctions, pool, bus, logger.L())

	// --- Auction finalizer sweep ---
	finalizer := auction.NewFinalizer(auctions, logger.L(), cfg.FinalizeInterval)
	go finalizer.Start(ctx)

	// --- Lender command consumer (RabbitMQ) ---
	consumer, err := rabbitmq.NewConsumer(cfg.AMQPURL, cfg.CommandQueues, engineCommands{rfqs: rfqs, auctions: auctions}, logger.L())
	if err != nil {
		logg.Fatalw("failed to connect to RabbitMQ", "error", err)
	}
	if err := consumer.Start(ctx); err != nil {
		logg.Fatalw("failed to start command consumer", "error", err)
	}

	// --- Websocket event stream ---
	hub := ws.NewHub(logger.L())
	hub.Attach(bus)
	go hub.Run(ctx)
	go func() {
		if err := hub.ListenAndServe(ctx, cfg.WSPort); err != nil {
			logg.Fatalw("ws.listen_failed", "error", err)
		}
	}()

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})

	handler := api.NewHandler(logger.L(), rfqs, auctions, pool, br)
	api.RegisterRoutes(app, nc, st, handler)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	logg.Infow("[credit-engine] running",
		"nats", cfg.NATSURL,
		"env", cfg.Env,
		"finalize_interval", cfg.FinalizeInterval,
		"ws_port", cfg.WSPort)

	<-ctx.Done()
	logg.Info("shutting down [credit-engine]...")

	close(stopCleaner)
	if err := consumer.Close(); err != nil {
		logg.Warnw("rabbitmq.close_failed", "error", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if err := nc.Drain(); err != nil {
		logg.Warnw("nats.drain_failed", "error", err)
	}
	if st != nil {
		if err := st.Close(); err != nil {
			logg.Warnw("store.close_failed", "error", err)
		}
	}
}
