package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/db"
	"github.com/xenking/kart-checkout/internal/domain/auth"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/domain/settlement"
	"github.com/xenking/kart-checkout/internal/seed"
	"github.com/xenking/kart-checkout/internal/storage/memory"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
	"github.com/xenking/kart-checkout/pkg/health"
)

// storage bundles the repositories of one backend.
type storage struct {
	products    product.Repository
	coupons     coupon.Repository
	orders      order.Repository
	settlements settlement.Store
	apikeys     auth.Repository
	close       func()
}

// openStorage connects to PostgreSQL, or falls back to a seeded in-memory
// store when no database URL is configured.
func openStorage(ctx context.Context, lg *zap.Logger, cfg *Config, h *health.Health) (*storage, error) {
	if cfg.DatabaseURL == "" {
		return openMemory(ctx, lg, cfg)
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	h.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))

	return &storage{
		products:    postgres.NewProductRepository(pool),
		coupons:     postgres.NewCouponRepository(pool),
		orders:      postgres.NewOrderRepository(pool),
		settlements: postgres.NewSettlementStore(pool),
		apikeys:     postgres.NewAPIKeyRepository(pool),
		close:       pool.Close,
	}, nil
}

func openMemory(ctx context.Context, lg *zap.Logger, cfg *Config) (*storage, error) {
	lg.Warn("No database configured, data is kept in memory and lost on exit")

	store := memory.NewStore()
	catalog, err := seed.Parse(db.Catalog)
	if err != nil {
		return nil, errors.Wrap(err, "parse demo catalog")
	}
	stats, err := seed.Apply(ctx, store, catalog, time.Now())
	if err != nil {
		return nil, errors.Wrap(err, "seed memory store")
	}
	if cfg.SeedAPIKey != "" {
		if err := seed.APIKey(ctx, store, "seed", cfg.SeedAPIKey, []byte(cfg.APIKeyPepper)); err != nil {
			return nil, errors.Wrap(err, "seed api key")
		}
	}
	lg.Info("Memory store seeded",
		zap.Int("products", stats.Products),
		zap.Int("coupons", stats.Coupons),
		zap.Bool("api_key", cfg.SeedAPIKey != ""),
	)

	return &storage{
		products:    store,
		coupons:     store,
		orders:      store,
		settlements: store,
		apikeys:     store,
		close:       func() {},
	}, nil
}
