// Package memory implements the domain repositories in process memory for
// local development and tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/auth"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/domain/settlement"
)

var (
	_ product.Repository = (*Store)(nil)
	_ coupon.Repository  = (*Store)(nil)
	_ order.Repository   = (*Store)(nil)
	_ settlement.Store   = (*Store)(nil)
	_ auth.Repository    = (*Store)(nil)
)

// Store keeps every table behind one lock, which makes Commit atomic with
// respect to all other operations. Values are copied in and out.
type Store struct {
	mu        sync.RWMutex
	products  map[string]product.Product
	coupons   map[string]coupon.Coupon // by id
	codes     map[string]string        // code -> coupon id
	orders    map[string]order.Order   // by id
	bySession map[string]string        // gateway session id -> order id
	apikeys   map[string]auth.APIKeyInfo
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		products:  make(map[string]product.Product),
		coupons:   make(map[string]coupon.Coupon),
		codes:     make(map[string]string),
		orders:    make(map[string]order.Order),
		bySession: make(map[string]string),
		apikeys:   make(map[string]auth.APIKeyInfo),
	}
}

// AddProduct inserts or replaces a catalog entry.
func (s *Store) AddProduct(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// AddCoupon inserts a coupon. Codes are unique.
func (s *Store) AddCoupon(c coupon.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addCoupon(c)
}

func (s *Store) addCoupon(c coupon.Coupon) error {
	if _, ok := s.codes[c.Code]; ok {
		return errors.Wrap(coupon.ErrDuplicateCode, c.Code)
	}
	s.coupons[c.ID] = c
	s.codes[c.Code] = c.ID
	return nil
}

// AddAPIKey stores an API key record by its hash.
func (s *Store) AddAPIKey(info auth.APIKeyInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apikeys[info.KeyHash] = info
}

// UpsertProduct is AddProduct in the seed.Target form.
func (s *Store) UpsertProduct(_ context.Context, p product.Product) error {
	s.AddProduct(p)
	return nil
}

// CreateCoupon is AddCoupon in the seed.Target form.
func (s *Store) CreateCoupon(_ context.Context, c coupon.Coupon) error {
	return s.AddCoupon(c)
}

// CreateAPIKey is AddAPIKey in the seed.Target form.
func (s *Store) CreateAPIKey(_ context.Context, info auth.APIKeyInfo) error {
	s.AddAPIKey(info)
	return nil
}

// GetByIDs returns the products matching any of ids.
func (s *Store) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) FindActive(ctx context.Context, code, ownerID string) (*coupon.Coupon, error) {
	c, err := s.FindByCode(ctx, code, ownerID)
	if err != nil {
		return nil, err
	}
	if !c.Active {
		return nil, coupon.ErrNotFound
	}
	return c, nil
}

func (s *Store) FindByCode(_ context.Context, code, ownerID string) (*coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.coupons[s.codes[code]]
	if !ok || c.OwnerID != ownerID {
		return nil, coupon.ErrNotFound
	}
	return &c, nil
}

// ForEachCode calls fn for every coupon code under a read lock.
func (s *Store) ForEachCode(_ context.Context, fn func(code string) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for code := range s.codes {
		if err := fn(code); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SetExternalDiscountID(_ context.Context, id, externalID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coupons[id]
	if !ok || c.ExternalDiscountID != "" {
		return false, nil
	}
	c.ExternalDiscountID = externalID
	s.coupons[id] = c
	return true, nil
}

func (s *Store) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deactivate(id)
	return nil
}

func (s *Store) deactivate(id string) {
	if c, ok := s.coupons[id]; ok {
		c.Active = false
		s.coupons[id] = c
	}
}

func (s *Store) GetByID(_ context.Context, id string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return copyOrder(o), nil
}

func (s *Store) GetBySessionID(ctx context.Context, sessionID string) (*order.Order, error) {
	s.mu.RLock()
	id, ok := s.bySession[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, order.ErrNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *Store) UpdateStatus(_ context.Context, id string, from, to order.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != from {
		return errors.Wrapf(order.ErrInvalidTransition, "order %s is no longer %s", id, from)
	}
	o.Status = to
	s.orders[id] = o
	return nil
}

func (s *Store) TotalSales(_ context.Context) (order.Sales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := order.Sales{Revenue: decimal.Zero}
	for _, o := range s.orders {
		if o.Status == order.StatusCanceled {
			continue
		}
		total.Orders++
		total.Revenue = total.Revenue.Add(o.Total())
	}
	return total, nil
}

func (s *Store) DailySales(_ context.Context, from, to time.Time) ([]order.DailySales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDay := make(map[time.Time]order.Sales)
	for _, o := range s.orders {
		if o.Status == order.StatusCanceled || o.CreatedAt.Before(from) || !o.CreatedAt.Before(to) {
			continue
		}
		day := order.Day(o.CreatedAt)
		sales, ok := byDay[day]
		if !ok {
			sales.Revenue = decimal.Zero
		}
		sales.Orders++
		sales.Revenue = sales.Revenue.Add(o.Total())
		byDay[day] = sales
	}

	days := make([]order.DailySales, 0, len(byDay))
	for day, sales := range byDay {
		days = append(days, order.DailySales{Day: day, Sales: sales})
	}
	slices.SortFunc(days, func(a, b order.DailySales) int { return a.Day.Compare(b.Day) })
	return days, nil
}

// Commit applies the settlement writes all at once, or none of them when the
// gateway session already has an order.
func (s *Store) Commit(_ context.Context, st settlement.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bySession[st.Order.GatewaySessionID]; ok {
		return errors.Wrapf(order.ErrDuplicateSession, "session %s", st.Order.GatewaySessionID)
	}
	if st.Gift != nil {
		if err := s.addCoupon(*st.Gift); err != nil {
			return errors.Wrap(err, "issue gift coupon")
		}
	}
	if st.SpentCouponID != "" {
		s.deactivate(st.SpentCouponID)
	}
	s.orders[st.Order.ID] = *copyOrder(st.Order)
	s.bySession[st.Order.GatewaySessionID] = st.Order.ID
	return nil
}

func (s *Store) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.apikeys[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return &info, nil
}

func copyOrder(o order.Order) *order.Order {
	o.Lines = slices.Clone(o.Lines)
	return &o
}
