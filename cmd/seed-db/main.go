package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/db"
	"github.com/xenking/kart-checkout/internal/domain/auth"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/seed"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		catalogFile  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "", "path to a catalog JSON file (default: embedded demo catalog)")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or PAY_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or PAY_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("PAY_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or PAY_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("PAY_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogFile, apiKey, pepper string) error {
	data := db.Catalog
	if catalogFile != "" {
		slog.Info("reading catalog file", slog.String("path", catalogFile))
		var err error
		if data, err = os.ReadFile(catalogFile); err != nil {
			return errors.Wrap(err, "read catalog file")
		}
	}
	catalog, err := seed.Parse(data)
	if err != nil {
		return err
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	target := newTarget(pool)
	stats, err := seed.Apply(ctx, target, catalog, time.Now())
	if err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	slog.Info("seeded catalog",
		slog.Int("products", stats.Products),
		slog.Int("coupons", stats.Coupons),
		slog.Int("existing_coupons", stats.SkippedCoupons),
	)

	if err := seed.APIKey(ctx, target, "default", apiKey, []byte(pepper)); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	slog.Info("seeded API key", slog.String("id", "default"))

	return nil
}

// pgTarget adapts the PostgreSQL repositories to seed.Target.
type pgTarget struct {
	products *postgres.ProductRepository
	coupons  *postgres.CouponRepository
	apikeys  *postgres.APIKeyRepository
}

func newTarget(pool *pgxpool.Pool) *pgTarget {
	return &pgTarget{
		products: postgres.NewProductRepository(pool),
		coupons:  postgres.NewCouponRepository(pool),
		apikeys:  postgres.NewAPIKeyRepository(pool),
	}
}

func (t *pgTarget) UpsertProduct(ctx context.Context, p product.Product) error {
	return t.products.Upsert(ctx, p)
}

func (t *pgTarget) CreateCoupon(ctx context.Context, c coupon.Coupon) error {
	return t.coupons.Create(ctx, c)
}

func (t *pgTarget) CreateAPIKey(ctx context.Context, info auth.APIKeyInfo) error {
	return t.apikeys.Create(ctx, info)
}
