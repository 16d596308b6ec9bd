package gateway

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/payment"
)

// --- Mock implementations ---

type mockGateway struct {
	calls       atomic.Int32
	err         error
	block       bool
	sawDeadline atomic.Bool
}

func (m *mockGateway) CreateDiscount(_ context.Context, _ float64) (string, error) {
	m.calls.Add(1)
	if m.err != nil {
		return "", m.err
	}
	return "disc_1", nil
}

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, _ payment.SessionRequest) (*payment.Session, error) {
	m.calls.Add(1)
	if _, ok := ctx.Deadline(); ok {
		m.sawDeadline.Store(true)
	}
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.err != nil {
		return nil, m.err
	}
	return &payment.Session{ID: "cs_1"}, nil
}

func (m *mockGateway) RetrieveSession(_ context.Context, id string) (*payment.Session, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return &payment.Session{ID: id, PaymentStatus: payment.StatusPaid}, nil
}

// --- Tests ---

func TestBreaker_PassesThrough(t *testing.T) {
	next := &mockGateway{}
	b := NewBreaker(next, BreakerConfig{Timeout: time.Second, Failures: 3, Cooldown: time.Minute}, zap.NewNop())

	id, err := b.CreateDiscount(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "disc_1", id)

	s, err := b.CreateCheckoutSession(context.Background(), payment.SessionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", s.ID)
	assert.True(t, next.sawDeadline.Load())

	s, err = b.RetrieveSession(context.Background(), "cs_9")
	require.NoError(t, err)
	assert.Equal(t, "cs_9", s.ID)
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	next := &mockGateway{err: &payment.GatewayError{Op: "create discount", Err: errors.New("503")}}
	b := NewBreaker(next, BreakerConfig{Timeout: time.Second, Failures: 3, Cooldown: time.Minute}, zap.NewNop())

	for range 3 {
		assert.False(t, b.Open())
		_, err := b.CreateDiscount(context.Background(), 10)
		require.Error(t, err)
	}
	require.Equal(t, int32(3), next.calls.Load())
	assert.True(t, b.Open())

	_, err := b.CreateDiscount(context.Background(), 10)
	var gwErr *payment.GatewayError
	require.ErrorAs(t, err, &gwErr)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), next.calls.Load(), "open circuit must not reach the gateway")
}

func TestBreaker_NotFoundDoesNotTrip(t *testing.T) {
	next := &mockGateway{err: payment.ErrSessionNotFound}
	b := NewBreaker(next, BreakerConfig{Failures: 2, Cooldown: time.Minute}, zap.NewNop())

	for range 5 {
		_, err := b.RetrieveSession(context.Background(), "cs_x")
		require.ErrorIs(t, err, payment.ErrSessionNotFound)
	}
	assert.Equal(t, int32(5), next.calls.Load())
}

func TestBreaker_Timeout(t *testing.T) {
	next := &mockGateway{block: true}
	b := NewBreaker(next, BreakerConfig{Timeout: 20 * time.Millisecond, Failures: 5}, zap.NewNop())

	start := time.Now()
	_, err := b.CreateCheckoutSession(context.Background(), payment.SessionRequest{})
	var gwErr *payment.GatewayError
	require.ErrorAs(t, err, &gwErr)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
