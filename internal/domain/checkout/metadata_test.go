package checkout

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/domain/product"
)

func TestMetadata_Encode(t *testing.T) {
	m := Metadata{
		UserID:     "u1",
		CouponCode: "SAVE10",
		Lines: []product.Request{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
	}

	raw, err := m.Encode()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		MetaUserID:     "u1",
		MetaCouponCode: "SAVE10",
		MetaLines:      `[{"id":"p1","q":2},{"id":"p2","q":1}]`,
	}, raw)

	decoded, err := DecodeMetadata(raw)
	require.NoError(t, err)
	assert.Equal(t, m, decoded)
}

func TestMetadata_EncodeTooLarge(t *testing.T) {
	m := Metadata{UserID: "u1"}
	for i := range 40 {
		m.Lines = append(m.Lines, product.Request{
			ProductID: fmt.Sprintf("00000000-0000-0000-0000-%012d", i),
			Quantity:  1,
		})
	}

	_, err := m.Encode()
	require.ErrorIs(t, err, ErrMetadataTooLarge)
}

func TestDecodeMetadata(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]string
		want    Metadata
		wantErr string
	}{
		{
			name: "without coupon",
			raw:  map[string]string{MetaUserID: "u1", MetaLines: `[{"id":"p1","q":3}]`},
			want: Metadata{UserID: "u1", Lines: []product.Request{{ProductID: "p1", Quantity: 3}}},
		},
		{
			name: "unknown fields are skipped",
			raw:  map[string]string{MetaUserID: "u1", MetaLines: `[{"id":"p1","q":1,"x":[1,2]}]`},
			want: Metadata{UserID: "u1", Lines: []product.Request{{ProductID: "p1", Quantity: 1}}},
		},
		{
			name:    "missing user",
			raw:     map[string]string{MetaLines: `[{"id":"p1","q":1}]`},
			wantErr: "missing user id",
		},
		{
			name:    "missing lines",
			raw:     map[string]string{MetaUserID: "u1"},
			wantErr: "missing lines",
		},
		{
			name:    "not json",
			raw:     map[string]string{MetaUserID: "u1", MetaLines: `{oops`},
			wantErr: "decode lines",
		},
		{
			name:    "zero quantity",
			raw:     map[string]string{MetaUserID: "u1", MetaLines: `[{"id":"p1","q":0}]`},
			wantErr: "invalid line",
		},
		{
			name:    "empty product id",
			raw:     map[string]string{MetaUserID: "u1", MetaLines: `[{"id":"","q":1}]`},
			wantErr: "invalid line",
		},
		{
			name:    "quantity is a string",
			raw:     map[string]string{MetaUserID: "u1", MetaLines: `[{"id":"p1","q":"2"}]`},
			wantErr: "decode lines",
		},
		{
			name:    "empty array",
			raw:     map[string]string{MetaUserID: "u1", MetaLines: `[]`},
			wantErr: "empty lines",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeMetadata(tt.raw)
			if tt.wantErr != "" {
				require.ErrorIs(t, err, ErrMalformedMetadata)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
