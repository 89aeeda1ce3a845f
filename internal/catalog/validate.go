package catalog

import "errors"

// Validation failure reasons, stable strings surfaced in API responses.
var (
	// ErrNoProductSelected means the raw key was absent or empty.
	ErrNoProductSelected = errors.New("no_product_selected")
	// ErrInvalidProduct means the key (after alias resolution) is not in the catalog.
	ErrInvalidProduct = errors.New("invalid_product")
	// ErrProductUnavailable means the product exists but carries no Stripe
	// price ID, so it cannot be purchased. Catalog misconfiguration.
	ErrProductUnavailable = errors.New("product_unavailable")
)

// Validate normalizes a raw product key and looks it up in the catalog.
// On success the full Product is returned so callers never need a second
// lookup. Pure; no side effects.
func (c *Catalog) Validate(raw string) (Product, error) {
	key := Normalize(raw)
	if key == "" {
		return Product{}, ErrNoProductSelected
	}
	p, ok := c.products[key]
	if !ok {
		return Product{}, ErrInvalidProduct
	}
	if p.PriceID == "" {
		return Product{}, ErrProductUnavailable
	}
	return p, nil
}
