package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/auth"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/domain/settlement"
	"github.com/xenking/kart-checkout/internal/gateway"
	"github.com/xenking/kart-checkout/internal/handler"
	"github.com/xenking/kart-checkout/pkg/health"
	"github.com/xenking/kart-checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("gateway", cfg.Gateway.Driver),
	)

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc", time.Second, health.GCMaxPauseCheck(5*time.Second))

	st, err := openStorage(ctx, lg, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer st.close()

	// Payment gateway behind timeouts and a circuit breaker.
	gw := newGateway(cfg, lg)
	breaker := gateway.NewBreaker(gw.api, gateway.BreakerConfig{
		Timeout:  cfg.Gateway.Timeout,
		Failures: cfg.Gateway.BreakerFailures,
		Cooldown: cfg.Gateway.BreakerCooldown,
	}, lg.Named("gateway"))
	healthSvc.AddReadinessCheck("payment_gateway", time.Second, health.CircuitCheck(breaker.Open))

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Domain services.
	tp, mp := m.TracerProvider(), m.MeterProvider()
	products := product.NewValidator(st.products)
	coupons := coupon.NewService(st.coupons, breaker)
	sessions := checkout.NewSessionFactory(breaker, checkout.SessionConfig{
		SuccessURL: cfg.SuccessURL(),
		CancelURL:  cfg.CancelURL(),
	})
	checkoutSvc, err := checkout.NewService(products, coupons, sessions, tp, mp)
	if err != nil {
		return errors.Wrap(err, "create checkout service")
	}
	settleSvc, err := settlement.NewService(breaker, products, st.coupons, st.orders, st.settlements, tp, mp)
	if err != nil {
		return errors.Wrap(err, "create settlement service")
	}

	h := handler.NewHandler(
		checkoutSvc,
		settleSvc,
		coupons,
		order.NewService(st.orders),
		gw.webhooks,
		auth.NewKeyVerifier(st.apikeys, []byte(cfg.APIKeyPepper)),
	)

	router := newRouter(healthSvc, h, gw.payPage)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.Gateway.Timeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins: cfg.CORS.Origins,
				Headers: []string{
					"Content-Type",
					handler.HeaderAPIKey,
					handler.HeaderUserID,
					handler.HeaderUserRole,
					httpmiddleware.HeaderRequestID,
				},
				Credentials: cfg.CORS.AllowCredentials,
				MaxAge:      86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.KeyByHeader(handler.HeaderAPIKey),
			}),
			httpmiddleware.Instrument("checkout-api", tp, mp),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
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
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newRouter serves health endpoints and API routes on one mux. Route-aware
// middleware runs inside chi so the matched pattern is known.
func newRouter(healthSvc *health.Health, h *handler.Handler, payPage http.HandlerFunc) chi.Router {
	router := chi.NewRouter()
	router.Use(httpmiddleware.LogRequests(), httpmiddleware.Labeler())
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	h.Routes(router)
	if payPage != nil {
		router.Get("/pay/{id}", payPage)
	}
	return router
}
