package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/InfernusReal/beddingstore/internal/cart"
	"github.com/InfernusReal/beddingstore/internal/catalog"
	"github.com/InfernusReal/beddingstore/internal/checkout"
	"github.com/InfernusReal/beddingstore/internal/clientstore"
	"github.com/InfernusReal/beddingstore/internal/handlers"
	"github.com/InfernusReal/beddingstore/internal/orderapi"
	"github.com/InfernusReal/beddingstore/internal/payment"
	"github.com/InfernusReal/beddingstore/internal/platform/config"
	"github.com/InfernusReal/beddingstore/internal/platform/observability"
	"github.com/InfernusReal/beddingstore/internal/poller"
	"github.com/InfernusReal/beddingstore/internal/session"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("storefront")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	durable, closeDurable := openDurableStore(logger, cfg.Store)
	defer closeDurable()

	transfer := clientstore.NewEphemeralStore(cfg.Store.EphemeralTTL)

	orderClient := orderapi.NewClient(cfg.OrderAPI.BaseURL,
		orderapi.WithTimeout(cfg.OrderAPI.Timeout),
	)
	catalogClient := catalog.NewClient(cfg.Catalog.BaseURL,
		catalog.WithHTTPClient(&http.Client{Timeout: cfg.Catalog.Timeout}),
	)
	notifier := payment.NewNotifier(cfg.Notifier.BaseURL,
		payment.WithNotifierHTTPClient(&http.Client{Timeout: cfg.Notifier.Timeout}),
	)

	identity, err := session.NewIdentity(session.IdentityDeps{
		Store:  durable,
		Clock:  time.Now,
		Rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		Logger: observability.EventLogger(logger.Named("session")),
	})
	if err != nil {
		logger.Fatal("failed to initialise session identity", zap.Error(err))
	}

	bus := cart.NewBus()
	carts, err := cart.NewStore(cart.StoreDeps{
		Orders:           orderClient,
		Catalog:          catalogClient,
		Sessions:         identity,
		Client:           durable,
		Bus:              bus,
		Logger:           observability.EventLogger(logger.Named("cart")),
		PlaceholderImage: cfg.Merchant.PlaceholderImage,
	})
	if err != nil {
		logger.Fatal("failed to initialise cart store", zap.Error(err))
	}

	guard, err := checkout.NewGuard(checkout.GuardDeps{
		Transfer: transfer,
		Logger:   observability.EventLogger(logger.Named("checkout")),
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout guard", zap.Error(err))
	}
	intents, err := checkout.NewIntents(checkout.IntentsDeps{
		Transfer: transfer,
		Durable:  durable,
		Guard:    guard,
		Logger:   observability.EventLogger(logger.Named("checkout")),
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout intents", zap.Error(err))
	}
	snapshots, err := checkout.NewSession(checkout.SessionDeps{
		Transfer: transfer,
		Clock:    time.Now,
		Logger:   observability.EventLogger(logger.Named("checkout")),
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout session", zap.Error(err))
	}

	flow, err := payment.NewFlow(payment.FlowDeps{
		Snapshots: snapshots,
		Orders:    orderClient,
		Sessions:  identity,
		Transfer:  transfer,
		Durable:   durable,
		Notifier:  notifier,
		Refresher: bus,
		Logger:    observability.EventLogger(logger.Named("payment")),
	})
	if err != nil {
		logger.Fatal("failed to initialise payment flow", zap.Error(err))
	}

	statusPoller, err := poller.NewPoller(poller.PollerDeps{
		Status:   orderClient,
		Interval: cfg.Poller.Interval,
		MaxWait:  cfg.Poller.MaxWait,
		Logger:   observability.EventLogger(logger.Named("poller")),
	})
	if err != nil {
		logger.Fatal("failed to initialise status poller", zap.Error(err))
	}
	tracker, err := poller.NewTracker(poller.TrackerDeps{
		Poller:   statusPoller,
		Tracking: flow,
		Logger:   observability.EventLogger(logger.Named("poller")),
	})
	if err != nil {
		logger.Fatal("failed to initialise status tracker", zap.Error(err))
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthCheck("client_store", func(ctx context.Context) error {
			_, _, err := durable.Get(ctx, "healthz", "probe")
			return err
		}),
	)

	httpLogger := logger.Named("http")
	router := handlers.NewRouter(
		handlers.WithMiddlewares(injectLogger(httpLogger), handlers.ScopeMiddleware),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCartRoutes(handlers.NewCartHandlers(carts, catalogClient, intents).Routes),
		handlers.WithCheckoutRoutes(handlers.NewCheckoutHandlers(guard, intents, snapshots, catalogClient).Routes),
		handlers.WithPaymentRoutes(handlers.NewPaymentHandlers(snapshots, flow, tracker).Routes),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(carts).Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := httpLogger.With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// openDurableStore opens the SQLite-backed client store, falling back to an
// in-memory store when the file cannot be opened. The storefront stays usable
// either way; only persistence across restarts is lost.
func openDurableStore(logger *zap.Logger, cfg config.StoreConfig) (clientstore.Store, func()) {
	sqlite, err := clientstore.OpenSQLite(cfg.Path)
	if err != nil {
		logger.Warn("sqlite store unavailable; using in-memory client store",
			zap.String("path", cfg.Path), zap.Error(err))
		return clientstore.NewMemoryStore(), func() {}
	}
	logger.Info("client store opened", zap.String("path", cfg.Path))
	return sqlite, func() {
		if err := sqlite.Close(); err != nil {
			logger.Warn("client store close error", zap.Error(err))
		}
	}
}

func injectLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(observability.WithLogger(r.Context(), logger)))
		})
	}
}
