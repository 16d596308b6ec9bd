package product

import (
	"context"
	"math"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	byID     map[string]Product
	err      error
	lastIDs  []string
	numCalls int
}

func (m *mockRepo) GetByIDs(_ context.Context, ids []string) ([]Product, error) {
	m.numCalls++
	m.lastIDs = ids
	if m.err != nil {
		return nil, m.err
	}
	var out []Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func newRepo(products ...Product) *mockRepo {
	byID := make(map[string]Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockRepo{byID: byID}
}

func TestValidator_Resolve(t *testing.T) {
	waffle := Product{ID: "p1", Name: "Waffle", Price: decimal.RequireFromString("19.99"), Image: "waffle.jpg"}
	brulee := Product{ID: "p2", Name: "Creme Brulee", Price: decimal.RequireFromString("7.00")}

	tests := []struct {
		name      string
		repo      *mockRepo
		requested []Request
		want      []PricedLine
		wantErr   func(t *testing.T, err error)
	}{
		{
			name:      "resolves catalog prices",
			repo:      newRepo(waffle, brulee),
			requested: []Request{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}},
			want: []PricedLine{
				{Product: waffle, Quantity: 2},
				{Product: brulee, Quantity: 1},
			},
		},
		{
			name:      "duplicate ids are merged",
			repo:      newRepo(waffle, brulee),
			requested: []Request{{ProductID: "p1", Quantity: 1}, {ProductID: "p2", Quantity: 1}, {ProductID: "p1", Quantity: 3}},
			want: []PricedLine{
				{Product: waffle, Quantity: 4},
				{Product: brulee, Quantity: 1},
			},
		},
		{
			name:      "missing product",
			repo:      newRepo(waffle),
			requested: []Request{{ProductID: "p1", Quantity: 1}, {ProductID: "nope", Quantity: 1}},
			wantErr: func(t *testing.T, err error) {
				var unavailable *UnavailableError
				require.ErrorAs(t, err, &unavailable)
				assert.Equal(t, []string{"nope"}, unavailable.ProductIDs)
			},
		},
		{
			name:      "zero quantity",
			repo:      newRepo(waffle),
			requested: []Request{{ProductID: "p1", Quantity: 0}},
			wantErr: func(t *testing.T, err error) {
				var iq *InvalidQuantityError
				require.ErrorAs(t, err, &iq)
				assert.Equal(t, "p1", iq.ProductID)
			},
		},
		{
			name:      "quantity above the per-line limit",
			repo:      newRepo(waffle),
			requested: []Request{{ProductID: "p1", Quantity: MaxQuantity + 1}},
			wantErr: func(t *testing.T, err error) {
				var iq *InvalidQuantityError
				require.ErrorAs(t, err, &iq)
				assert.Equal(t, "p1", iq.ProductID)
			},
		},
		{
			name:      "merged quantity above the per-line limit",
			repo:      newRepo(waffle),
			requested: []Request{{ProductID: "p1", Quantity: MaxQuantity}, {ProductID: "p1", Quantity: 1}},
			wantErr: func(t *testing.T, err error) {
				var iq *InvalidQuantityError
				require.ErrorAs(t, err, &iq)
				assert.Equal(t, "p1", iq.ProductID)
			},
		},
		{
			name:      "quantities that would wrap when merged",
			repo:      newRepo(waffle),
			requested: []Request{{ProductID: "p1", Quantity: math.MaxInt}, {ProductID: "p1", Quantity: 2}},
			wantErr: func(t *testing.T, err error) {
				var iq *InvalidQuantityError
				require.ErrorAs(t, err, &iq)
			},
		},
		{
			name:      "negative quantity",
			repo:      newRepo(waffle),
			requested: []Request{{ProductID: "p1", Quantity: -3}},
			wantErr: func(t *testing.T, err error) {
				var iq *InvalidQuantityError
				require.ErrorAs(t, err, &iq)
			},
		},
		{
			name:      "largest merged quantity",
			repo:      newRepo(waffle),
			requested: []Request{{ProductID: "p1", Quantity: MaxQuantity - 1}, {ProductID: "p1", Quantity: 1}},
			want:      []PricedLine{{Product: waffle, Quantity: MaxQuantity}},
		},
		{
			name:      "repository failure",
			repo:      &mockRepo{err: errors.New("db down")},
			requested: []Request{{ProductID: "p1", Quantity: 1}},
			wantErr: func(t *testing.T, err error) {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "get products")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewValidator(tt.repo).Resolve(context.Background(), tt.requested)
			if tt.wantErr != nil {
				tt.wantErr(t, err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidator_ResolveQueriesDistinctIDs(t *testing.T) {
	repo := newRepo(Product{ID: "p1", Name: "Waffle", Price: decimal.NewFromInt(5)})

	_, err := NewValidator(repo).Resolve(context.Background(), []Request{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "p1", Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.numCalls)
	assert.Equal(t, []string{"p1"}, repo.lastIDs)
}
