package checkout

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-checkout/internal/domain/product"
)

// Gateway metadata keys.
const (
	MetaUserID     = "user_id"
	MetaCouponCode = "coupon_code"
	MetaLines      = "lines"

	// MaxLinesSize is the largest encoded lines payload the gateway accepts
	// as a single metadata value.
	MaxLinesSize = 500
)

var (
	// ErrMetadataTooLarge is returned when the encoded lines exceed MaxLinesSize.
	ErrMetadataTooLarge = errors.New("too many products for a single checkout")
	// ErrMalformedMetadata is returned when a metadata payload cannot be decoded
	// or misses required fields.
	ErrMalformedMetadata = errors.New("malformed checkout metadata")
)

// Metadata is the replay-safe payload embedded in a checkout session. It
// carries no prices or names so settlement re-resolves them from the catalog.
type Metadata struct {
	UserID     string
	CouponCode string
	Lines      []product.Request
}

// Encode renders m as gateway metadata. Lines are encoded as a compact JSON
// array of {"id": productID, "q": quantity}.
func (m Metadata) Encode() (map[string]string, error) {
	var e jx.Encoder
	e.ArrStart()
	for _, l := range m.Lines {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(l.ProductID)
		e.FieldStart("q")
		e.Int(l.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()

	lines := e.String()
	if len(lines) > MaxLinesSize {
		return nil, errors.Wrapf(ErrMetadataTooLarge, "encoded lines are %d bytes, limit %d", len(lines), MaxLinesSize)
	}

	return map[string]string{
		MetaUserID:     m.UserID,
		MetaCouponCode: m.CouponCode,
		MetaLines:      lines,
	}, nil
}

// DecodeMetadata parses gateway metadata produced by Encode. It requires a
// user id and at least one line with a non-empty product id and a positive
// quantity.
func DecodeMetadata(raw map[string]string) (Metadata, error) {
	m := Metadata{
		UserID:     raw[MetaUserID],
		CouponCode: raw[MetaCouponCode],
	}
	if m.UserID == "" {
		return Metadata{}, errors.Wrap(ErrMalformedMetadata, "missing user id")
	}

	payload := raw[MetaLines]
	if payload == "" {
		return Metadata{}, errors.Wrap(ErrMalformedMetadata, "missing lines")
	}
	if len(payload) > MaxLinesSize {
		return Metadata{}, errors.Wrap(ErrMalformedMetadata, "lines too large")
	}

	d := jx.DecodeStr(payload)
	if err := d.Arr(func(d *jx.Decoder) error {
		var l product.Request
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			switch string(key) {
			case "id":
				v, err := d.Str()
				if err != nil {
					return err
				}
				l.ProductID = v
			case "q":
				v, err := d.Int()
				if err != nil {
					return err
				}
				l.Quantity = v
			default:
				return d.Skip()
			}
			return nil
		}); err != nil {
			return err
		}
		if l.ProductID == "" || l.Quantity <= 0 {
			return errors.Errorf("invalid line %q x %d", l.ProductID, l.Quantity)
		}
		m.Lines = append(m.Lines, l)
		return nil
	}); err != nil {
		return Metadata{}, errors.Wrapf(ErrMalformedMetadata, "decode lines: %v", err)
	}

	if len(m.Lines) == 0 {
		return Metadata{}, errors.Wrap(ErrMalformedMetadata, "empty lines")
	}
	return m, nil
}
