package checkout

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	products map[string]product.Product
	err      error
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockApplier struct {
	discount *coupon.Discount
	err      error
	gotTotal int64
	gotCode  string
}

func (m *mockApplier) Apply(_ context.Context, code string, totalMinor int64, _ string) (*coupon.Discount, error) {
	m.gotCode = code
	m.gotTotal = totalMinor
	return m.discount, m.err
}

type mockGateway struct {
	mu        sync.Mutex
	discounts map[string]decimal.Decimal
	requests  []payment.SessionRequest
	err       error
}

func (m *mockGateway) CreateDiscount(_ context.Context, percentOff float64) (string, error) {
	return "", errors.New("not used")
}

func (m *mockGateway) CreateCheckoutSession(_ context.Context, req payment.SessionRequest) (*payment.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.requests = append(m.requests, req)

	var total int64
	for _, li := range req.LineItems {
		total += li.UnitAmount * li.Quantity
	}
	if pct, ok := m.discounts[req.DiscountID]; ok {
		total -= coupon.DiscountAmount(total, pct)
	}
	return &payment.Session{
		ID:          "cs_test_1",
		URL:         "https://pay.example.com/cs_test_1",
		AmountTotal: total,
		Metadata:    req.Metadata,
	}, nil
}

func (m *mockGateway) RetrieveSession(context.Context, string) (*payment.Session, error) {
	return nil, payment.ErrSessionNotFound
}

// --- Helpers ---

func newTestCatalog() *mockProductRepo {
	return &mockProductRepo{products: map[string]product.Product{
		"p1": {ID: "p1", Name: "Waffle", Price: decimal.RequireFromString("19.99"), Image: "w.jpg"},
		"p2": {ID: "p2", Name: "Brownie", Price: decimal.RequireFromString("5.50"), Image: "b.jpg"},
	}}
}

func newTestCheckout(t *testing.T, repo product.Repository, applier CouponApplier, gw payment.Gateway) *Service {
	t.Helper()
	sessions := NewSessionFactory(gw, SessionConfig{
		SuccessURL: "https://shop.example.com/purchase-success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  "https://shop.example.com/purchase-cancel",
	})
	svc, err := NewService(
		product.NewValidator(repo),
		applier,
		sessions,
		tracenoop.NewTracerProvider(),
		metricnoop.NewMeterProvider(),
	)
	require.NoError(t, err)
	return svc
}

// --- Tests ---

func TestService_Start(t *testing.T) {
	t.Run("discounted checkout", func(t *testing.T) {
		gw := &mockGateway{discounts: map[string]decimal.Decimal{"disc_1": decimal.NewFromInt(10)}}
		applier := &mockApplier{discount: &coupon.Discount{
			ExternalDiscountID: "disc_1",
			Code:               "SAVE10",
			Percentage:         decimal.NewFromInt(10),
			Amount:             400,
		}}
		svc := newTestCheckout(t, newTestCatalog(), applier, gw)

		res, err := svc.Start(context.Background(), Request{
			UserID:     "u1",
			Products:   []product.Request{{ProductID: "p1", Quantity: 2}},
			CouponCode: "SAVE10",
		})
		require.NoError(t, err)

		assert.Equal(t, "cs_test_1", res.SessionID)
		assert.Equal(t, "https://pay.example.com/cs_test_1", res.URL)
		assert.Equal(t, int64(3598), res.AmountTotal)
		assert.Equal(t, int64(3998), res.SubtotalMinor)
		assert.Equal(t, int64(3998), applier.gotTotal)
		assert.Equal(t, "SAVE10", applier.gotCode)

		require.Len(t, gw.requests, 1)
		req := gw.requests[0]
		assert.Equal(t, "disc_1", req.DiscountID)
		assert.Equal(t, []payment.LineItem{{Name: "Waffle", Image: "w.jpg", UnitAmount: 1999, Quantity: 2}}, req.LineItems)
		assert.Contains(t, req.SuccessURL, "{CHECKOUT_SESSION_ID}")
		assert.Equal(t, "u1", req.Metadata[MetaUserID])
		assert.Equal(t, "SAVE10", req.Metadata[MetaCouponCode])
		assert.Equal(t, `[{"id":"p1","q":2}]`, req.Metadata[MetaLines])
	})

	t.Run("without coupon", func(t *testing.T) {
		gw := &mockGateway{}
		svc := newTestCheckout(t, newTestCatalog(), &mockApplier{}, gw)

		res, err := svc.Start(context.Background(), Request{
			UserID: "u1",
			Products: []product.Request{
				{ProductID: "p2", Quantity: 1},
				{ProductID: "p1", Quantity: 1},
				{ProductID: "p2", Quantity: 2},
			},
		})
		require.NoError(t, err)

		assert.Equal(t, int64(1999+3*550), res.AmountTotal)
		assert.Nil(t, res.Discount)
		require.Len(t, gw.requests, 1)
		assert.Empty(t, gw.requests[0].DiscountID)
		assert.Empty(t, gw.requests[0].Metadata[MetaCouponCode])
		assert.Equal(t, `[{"id":"p2","q":3},{"id":"p1","q":1}]`, gw.requests[0].Metadata[MetaLines])
	})

	t.Run("empty products", func(t *testing.T) {
		gw := &mockGateway{}
		svc := newTestCheckout(t, newTestCatalog(), &mockApplier{}, gw)

		_, err := svc.Start(context.Background(), Request{UserID: "u1"})
		require.ErrorIs(t, err, ErrEmptyProducts)
		assert.Empty(t, gw.requests)
	})

	t.Run("unknown product", func(t *testing.T) {
		gw := &mockGateway{}
		svc := newTestCheckout(t, newTestCatalog(), &mockApplier{}, gw)

		_, err := svc.Start(context.Background(), Request{
			UserID:   "u1",
			Products: []product.Request{{ProductID: "p1", Quantity: 1}, {ProductID: "ghost", Quantity: 1}},
		})
		var unavailable *product.UnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.Equal(t, []string{"ghost"}, unavailable.ProductIDs)
		assert.Empty(t, gw.requests)
	})

	t.Run("invalid quantity", func(t *testing.T) {
		svc := newTestCheckout(t, newTestCatalog(), &mockApplier{}, &mockGateway{})

		_, err := svc.Start(context.Background(), Request{
			UserID:   "u1",
			Products: []product.Request{{ProductID: "p1", Quantity: 0}},
		})
		var invalid *product.InvalidQuantityError
		require.ErrorAs(t, err, &invalid)
	})

	t.Run("coupon failure aborts", func(t *testing.T) {
		gw := &mockGateway{}
		applier := &mockApplier{err: &payment.GatewayError{Op: "create discount", Err: errors.New("timeout")}}
		svc := newTestCheckout(t, newTestCatalog(), applier, gw)

		_, err := svc.Start(context.Background(), Request{
			UserID:     "u1",
			Products:   []product.Request{{ProductID: "p1", Quantity: 1}},
			CouponCode: "SAVE10",
		})
		var gwErr *payment.GatewayError
		require.ErrorAs(t, err, &gwErr)
		assert.Empty(t, gw.requests)
	})

	t.Run("gateway failure", func(t *testing.T) {
		gw := &mockGateway{err: &payment.GatewayError{Op: "create session", Err: errors.New("502")}}
		svc := newTestCheckout(t, newTestCatalog(), &mockApplier{}, gw)

		_, err := svc.Start(context.Background(), Request{
			UserID:   "u1",
			Products: []product.Request{{ProductID: "p1", Quantity: 1}},
		})
		var gwErr *payment.GatewayError
		require.ErrorAs(t, err, &gwErr)
		assert.Contains(t, err.Error(), "create checkout session")
	})
}
