package checkout

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/product"
)

func newTestLine(id, name, price string, qty int) product.PricedLine {
	return product.PricedLine{
		Product: product.Product{
			ID:    id,
			Name:  name,
			Price: decimal.RequireFromString(price),
			Image: "https://img.example.com/" + id + ".jpg",
		},
		Quantity: qty,
	}
}

func TestToMinor(t *testing.T) {
	tests := []struct {
		major string
		want  int64
	}{
		{major: "19.99", want: 1999},
		{major: "0", want: 0},
		{major: "1.005", want: 101},
		{major: "1.004", want: 100},
		{major: "100", want: 10000},
	}
	for _, tt := range tests {
		t.Run(tt.major, func(t *testing.T) {
			assert.Equal(t, tt.want, ToMinor(decimal.RequireFromString(tt.major)))
		})
	}
}

func TestFromMinor(t *testing.T) {
	assert.True(t, decimal.RequireFromString("35.98").Equal(FromMinor(3598)))
	assert.True(t, decimal.Zero.Equal(FromMinor(0)))
}

func TestSummarize(t *testing.T) {
	t.Run("single line", func(t *testing.T) {
		s, err := Summarize([]product.PricedLine{newTestLine("p1", "Waffle", "19.99", 2)})
		require.NoError(t, err)

		assert.Equal(t, int64(3998), s.TotalMinor)
		assert.Equal(t, []payment.LineItem{{
			Name:       "Waffle",
			Image:      "https://img.example.com/p1.jpg",
			UnitAmount: 1999,
			Quantity:   2,
		}}, s.LineItems)
	})

	t.Run("rounds per unit before multiplying", func(t *testing.T) {
		s, err := Summarize([]product.PricedLine{newTestLine("p1", "Tart", "1.005", 3)})
		require.NoError(t, err)

		// 101 * 3, not round(1.005 * 3 * 100) = 302.
		assert.Equal(t, int64(303), s.TotalMinor)
	})

	t.Run("multiple lines keep order", func(t *testing.T) {
		s, err := Summarize([]product.PricedLine{
			newTestLine("p2", "Brownie", "5.50", 1),
			newTestLine("p1", "Waffle", "19.99", 2),
		})
		require.NoError(t, err)

		assert.Equal(t, int64(550+3998), s.TotalMinor)
		assert.Equal(t, "Brownie", s.LineItems[0].Name)
		assert.Equal(t, "Waffle", s.LineItems[1].Name)
	})

	t.Run("empty", func(t *testing.T) {
		s, err := Summarize(nil)
		require.NoError(t, err)
		assert.Zero(t, s.TotalMinor)
		assert.Empty(t, s.LineItems)
	})
}

func TestSummarize_Bounds(t *testing.T) {
	tests := []struct {
		name    string
		lines   []product.PricedLine
		wantErr func(t *testing.T, err error)
	}{
		{
			name:  "quantity above the per-line limit",
			lines: []product.PricedLine{newTestLine("p1", "Waffle", "19.99", 5_000_000_000_000_000)},
			wantErr: func(t *testing.T, err error) {
				var iq *product.InvalidQuantityError
				require.ErrorAs(t, err, &iq)
				assert.Equal(t, "p1", iq.ProductID)
			},
		},
		{
			name:  "zero quantity",
			lines: []product.PricedLine{newTestLine("p1", "Waffle", "19.99", 0)},
			wantErr: func(t *testing.T, err error) {
				var iq *product.InvalidQuantityError
				require.ErrorAs(t, err, &iq)
			},
		},
		{
			name:  "total above the gateway maximum",
			lines: []product.PricedLine{newTestLine("p1", "Waffle", "19.99", product.MaxQuantity)},
			wantErr: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrAmountTooLarge)
			},
		},
		{
			name: "sum of lines above the gateway maximum",
			lines: []product.PricedLine{
				newTestLine("p1", "Kart", "600000", 1),
				newTestLine("p2", "Trailer", "500000", 1),
			},
			wantErr: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrAmountTooLarge)
			},
		},
		{
			name:  "unit price above the gateway maximum",
			lines: []product.PricedLine{newTestLine("p1", "Yacht", "92233720368547758.07", 1)},
			wantErr: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrAmountTooLarge)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Summarize(tt.lines)
			tt.wantErr(t, err)
			assert.Zero(t, s.TotalMinor)
		})
	}

	t.Run("largest accepted total", func(t *testing.T) {
		s, err := Summarize([]product.PricedLine{newTestLine("p1", "Kart", "999999.99", 1)})
		require.NoError(t, err)
		assert.Equal(t, int64(MaxAmountMinor), s.TotalMinor)
	})
}
