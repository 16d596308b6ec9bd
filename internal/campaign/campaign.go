// Package campaign issues promotional coupons to a list of users.
//
// User lists arrive as gzip-compressed files with one user id per line.
// Every user gets a coupon with a fresh random code. A bloom filter over the
// codes already in the store lets most collisions be rejected before they
// reach the database; the store's unique constraint catches the rest.
package campaign

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
)

const (
	bloomFPR      = 0.001
	maxAttempts   = 5
	progressEvery = 10_000
)

// Store creates coupons and lists the codes already taken.
type Store interface {
	CreateCoupon(ctx context.Context, c coupon.Coupon) error
	ForEachCode(ctx context.Context, fn func(code string) error) error
}

// Template describes the coupons of one campaign.
type Template struct {
	// Prefix starts every code, e.g. SPRING.
	Prefix     string
	Percentage decimal.Decimal
	ValidFor   time.Duration
}

// Config tunes an Issuer.
type Config struct {
	// Capacity is the expected number of codes, existing plus new, used to
	// size the bloom filter.
	Capacity uint
	// Workers bounds concurrent coupon inserts.
	Workers int
}

// Stats summarizes a run.
type Stats struct {
	Users      int64
	Issued     int64
	Duplicates int64 // repeated user ids in the input
	Collisions int64 // generated codes rejected as taken
}

// Issuer issues campaign coupons.
type Issuer struct {
	store   Store
	workers int
	now     func() time.Time
	newCode func(prefix string) string

	mu    sync.Mutex
	taken *bloom.BloomFilter
}

// NewIssuer loads the existing codes of store into the collision filter.
func NewIssuer(ctx context.Context, store Store, cfg Config) (*Issuer, error) {
	if cfg.Capacity == 0 {
		cfg.Capacity = 1_000_000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}

	taken := bloom.NewWithEstimates(cfg.Capacity, bloomFPR)
	var existing int
	if err := store.ForEachCode(ctx, func(code string) error {
		taken.AddString(code)
		existing++
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "load existing codes")
	}
	slog.Info("loaded existing coupon codes", slog.Int("count", existing))

	return &Issuer{
		store:   store,
		workers: cfg.Workers,
		now:     time.Now,
		newCode: randomCode,
		taken:   taken,
	}, nil
}

// Issue reads a gzip-compressed user list from r and creates one coupon per
// distinct user. Blank lines and lines starting with # are skipped.
func (i *Issuer) Issue(ctx context.Context, r io.Reader, tmpl Template) (*Stats, error) {
	if !coupon.ValidPercentage(tmpl.Percentage) {
		return nil, coupon.ErrInvalidPercentage
	}
	if tmpl.ValidFor <= 0 {
		return nil, errors.New("validity must be positive")
	}

	gz, err := pgzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "create gzip reader")
	}
	defer func() { _ = gz.Close() }()

	var (
		st   Stats
		seen = make(map[string]struct{})
		now  = i.now()
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.workers)

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if gctx.Err() != nil {
			break
		}
		user := strings.TrimSpace(scanner.Text())
		if user == "" || strings.HasPrefix(user, "#") {
			continue
		}
		if _, ok := seen[user]; ok {
			st.Duplicates++
			continue
		}
		seen[user] = struct{}{}
		st.Users++

		g.Go(func() error {
			if err := i.issueOne(gctx, user, tmpl, now, &st); err != nil {
				return errors.Wrapf(err, "issue coupon for %s", user)
			}
			if n := atomic.AddInt64(&st.Issued, 1); n%progressEvery == 0 {
				slog.Info("issue progress", slog.Int64("issued", n))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return &st, err
	}
	if err := scanner.Err(); err != nil {
		return &st, errors.Wrap(err, "read user list")
	}
	return &st, ctx.Err()
}

func (i *Issuer) issueOne(ctx context.Context, user string, tmpl Template, now time.Time, st *Stats) error {
	for range maxAttempts {
		code := i.reserve(tmpl.Prefix, st)
		err := i.store.CreateCoupon(ctx, coupon.Coupon{
			ID:                 uuid.New().String(),
			Code:               code,
			OwnerID:            user,
			DiscountPercentage: tmpl.Percentage,
			ExpiresAt:          now.Add(tmpl.ValidFor),
			Active:             true,
			CreatedAt:          now,
		})
		if errors.Is(err, coupon.ErrDuplicateCode) {
			atomic.AddInt64(&st.Collisions, 1)
			continue
		}
		return err
	}
	return errors.Errorf("no free code after %d attempts", maxAttempts)
}

// reserve returns a code the filter has not seen and records it.
func (i *Issuer) reserve(prefix string, st *Stats) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	for {
		code := i.newCode(prefix)
		if !i.taken.TestOrAddString(code) {
			return code
		}
		atomic.AddInt64(&st.Collisions, 1)
	}
}

// randomCode appends ten upper-case hex digits of a random UUID to prefix.
func randomCode(prefix string) string {
	id := uuid.New()
	return strings.ToUpper(prefix) + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:10])
}
