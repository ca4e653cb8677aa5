package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridianlabs/loyalty-engine/internal/dedup"
	"github.com/meridianlabs/loyalty-engine/internal/eventstream"
	"github.com/meridianlabs/loyalty-engine/internal/loyalty"
	"github.com/meridianlabs/loyalty-engine/internal/platform"
	"github.com/meridianlabs/loyalty-engine/internal/webhook"
	"github.com/meridianlabs/loyalty-engine/pkg/health"
	"github.com/meridianlabs/loyalty-engine/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the notification server (and the
// Kafka consumer when configured), and handles graceful shutdown. It is the
// single wiring point for the service.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	keys := cfg.LoyaltyKeys()

	client, err := platform.NewClient(platform.Config{
		APIURL:       cfg.Platform.APIURL,
		AuthURL:      cfg.Platform.AuthURL,
		ProjectKey:   cfg.Platform.ProjectKey,
		ClientID:     cfg.Platform.ClientID,
		ClientSecret: cfg.Platform.ClientSecret,
		Scopes:       cfg.Platform.Scopes,
		Timeout:      cfg.Platform.Timeout,
	})
	if err != nil {
		return errors.Wrap(err, "create platform client")
	}

	processor := loyalty.NewProcessor(loyalty.ProcessorConfig{
		Orders:        client,
		Payments:      client,
		Discounts:     client,
		Customers:     client,
		Tables:        platform.NewRatesLoader(client, keys),
		Keys:          keys,
		WriteAttempts: cfg.WriteAttempts,
	})

	var ledger webhook.Deduper
	if cfg.Dedup.Enabled {
		ledger = dedup.NewLedger(cfg.Dedup.MaxEntries)
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("platform", 5*time.Second, func(ctx context.Context) error {
		return client.Ping(ctx, keys.RateContainer, keys.RateKey)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/notifications/orders", webhook.NewHandler(processor, ledger))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(
			httpmiddleware.Wrap(mux,
				httpmiddleware.Recovery(),
				httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
					Max:    cfg.RateLimit.Max,
					Window: cfg.RateLimit.Window,
				}),
				httpmiddleware.RequestID(),
				httpmiddleware.InjectLogger(zctx.From(ctx)),
				httpmiddleware.LogRequests(),
			),
			"loyalty-notifications",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	if len(cfg.Kafka.Brokers) > 0 {
		consumer := eventstream.NewConsumer(eventstream.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, processor, ledger)

		g.Go(func() error {
			defer func() { _ = consumer.Close() }()
			lg.Info("Consuming order events",
				zap.Strings("brokers", cfg.Kafka.Brokers),
				zap.String("topic", cfg.Kafka.Topic),
			)
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return errors.Wrap(err, "consumer")
			}
			return nil
		})
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	return g.Wait()
}
