// Package model defines the catalog and cart data structures shared by the
// storefront packages, plus the error taxonomy used at API boundaries.
package model

// === Catalog ===

// Product is one entry of the catalog snapshot returned by the catalog service.
// Products are read-only to the cart and search packages.
type Product struct {
	ID       string  `json:"_id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Cost     float64 `json:"cost"`   // Unit price in major currency units, >= 0
	Rating   int     `json:"rating"` // Aggregate rating, 0-5
	Image    string  `json:"image"`  // Product image URL
}

// === Cart ===

// CartSelection is the user's local choice of a product and quantity,
// independent of any catalog data. At most one selection exists per ProductID;
// the view that owns the list keeps it that way.
type CartSelection struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"qty"`
}

// CartLineItem is a selection joined with its catalog product.
// Derived on every reconciliation, never stored.
type CartLineItem struct {
	Product
	Quantity int `json:"qty"`
}

// Subtotal returns cost × quantity for the line.
func (li CartLineItem) Subtotal() float64 {
	return li.Cost * float64(li.Quantity)
}

// ProductIndex maps product IDs to catalog entries.
func ProductIndex(catalog []Product) map[string]Product {
	index := make(map[string]Product, len(catalog))
	for _, p := range catalog {
		if _, seen := index[p.ID]; seen {
			// first occurrence wins, same as a linear scan
			continue
		}
		index[p.ID] = p
	}
	return index
}
