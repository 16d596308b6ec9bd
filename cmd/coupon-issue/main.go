package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/campaign"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
)

func main() {
	var (
		usersFile   string
		databaseURL string
		prefix      string
		percentage  string
		validFor    time.Duration
		capacity    uint
		workers     int
	)

	flag.StringVar(&usersFile, "users", "users.gz", "gzip-compressed file with one user id per line")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&prefix, "prefix", "PROMO", "coupon code prefix")
	flag.StringVar(&percentage, "percentage", "10", "discount percentage")
	flag.DurationVar(&validFor, "valid-for", 30*24*time.Hour, "coupon validity")
	flag.UintVar(&capacity, "capacity", 10_000_000, "expected number of coupon codes, used to size the bloom filter")
	flag.IntVar(&workers, "workers", 16, "concurrent inserts")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	pct, err := decimal.NewFromString(percentage)
	if err != nil {
		slog.Error("invalid percentage", slog.String("value", percentage))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	tmpl := campaign.Template{Prefix: prefix, Percentage: pct, ValidFor: validFor}
	cfg := campaign.Config{Capacity: capacity, Workers: workers}
	if err := run(ctx, usersFile, databaseURL, tmpl, cfg); err != nil {
		slog.Error("coupon issue failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon issue completed successfully")
}

func run(ctx context.Context, usersFile, databaseURL string, tmpl campaign.Template, cfg campaign.Config) error {
	f, err := os.Open(usersFile)
	if err != nil {
		return errors.Wrap(err, "open users file")
	}
	defer func() { _ = f.Close() }()

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	issuer, err := campaign.NewIssuer(ctx, couponStore{postgres.NewCouponRepository(pool)}, cfg)
	if err != nil {
		return err
	}

	start := time.Now()
	stats, err := issuer.Issue(ctx, f, tmpl)
	if stats != nil {
		slog.Info("issue stats",
			slog.Int64("users", stats.Users),
			slog.Int64("issued", stats.Issued),
			slog.Int64("duplicate_users", stats.Duplicates),
			slog.Int64("collisions", stats.Collisions),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
	return err
}

// couponStore adapts the coupon repository to campaign.Store.
type couponStore struct {
	*postgres.CouponRepository
}

func (s couponStore) CreateCoupon(ctx context.Context, c coupon.Coupon) error {
	return s.Create(ctx, c)
}
