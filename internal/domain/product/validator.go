package product

import (
	"context"

	"github.com/go-faster/errors"
)

// Validator resolves client-supplied product references against the catalog.
type Validator struct {
	repo Repository
}

// NewValidator creates a Validator backed by the given catalog Repository.
func NewValidator(repo Repository) *Validator {
	return &Validator{repo: repo}
}

// Resolve fetches the distinct set of requested products in one batch and
// returns priced lines carrying the current catalog name and price.
//
// Repeated references to the same product are merged by summing their
// quantities; the first occurrence decides the line order. Resolve fails with
// *UnavailableError when the catalog returns fewer entries than the number of
// distinct ids requested.
func (v *Validator) Resolve(ctx context.Context, requested []Request) ([]PricedLine, error) {
	merged, err := Merge(requested)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(merged))
	for i, r := range merged {
		ids[i] = r.ProductID
	}

	fetched, err := v.repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	byID := make(map[string]Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	if len(byID) != len(ids) {
		var missing []string
		for _, id := range ids {
			if _, ok := byID[id]; !ok {
				missing = append(missing, id)
			}
		}
		return nil, &UnavailableError{ProductIDs: missing}
	}

	lines := make([]PricedLine, len(merged))
	for i, r := range merged {
		lines[i] = PricedLine{
			Product:  byID[r.ProductID],
			Quantity: r.Quantity,
		}
	}
	return lines, nil
}

// Merge validates quantities and collapses duplicate product ids. Both every
// entry and every merged sum must lie in [1, MaxQuantity].
func Merge(requested []Request) ([]Request, error) {
	index := make(map[string]int, len(requested))
	merged := make([]Request, 0, len(requested))
	for _, r := range requested {
		if r.ProductID == "" {
			return nil, &UnavailableError{ProductIDs: []string{r.ProductID}}
		}
		if !ValidQuantity(r.Quantity) {
			return nil, &InvalidQuantityError{ProductID: r.ProductID}
		}
		if i, ok := index[r.ProductID]; ok {
			merged[i].Quantity += r.Quantity
			if merged[i].Quantity > MaxQuantity {
				return nil, &InvalidQuantityError{ProductID: r.ProductID}
			}
			continue
		}
		index[r.ProductID] = len(merged)
		merged = append(merged, r)
	}
	return merged, nil
}
