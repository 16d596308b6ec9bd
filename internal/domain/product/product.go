package product

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// MaxQuantity is the largest quantity of one product in a single purchase,
// matching the gateway's per-line limit.
const MaxQuantity = 999_999

// Product is a read-only catalog snapshot of an item available for purchase.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Category string
	Image    string
}

// Request is a client-supplied product reference with the desired quantity.
type Request struct {
	ProductID string
	Quantity  int
}

// PricedLine joins a catalog entry with the requested quantity. The price and
// name always come from the catalog.
type PricedLine struct {
	Product
	Quantity int
}

// Repository defines read operations for the product catalog.
type Repository interface {
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}

// UnavailableError indicates that some requested products are not in the catalog.
type UnavailableError struct {
	ProductIDs []string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("some products are unavailable: %s", strings.Join(e.ProductIDs, ", "))
}

// InvalidQuantityError indicates a line item quantity outside [1, MaxQuantity].
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be between 1 and %d for product %s", MaxQuantity, e.ProductID)
}

// ValidQuantity reports whether q lies in [1, MaxQuantity].
func ValidQuantity(q int) bool {
	return q >= 1 && q <= MaxQuantity
}
