// Package reconcile joins the user's cart selections with the catalog snapshot
// and provides the quantity arithmetic behind add/remove buttons.
// Everything here is pure: inputs are never mutated, and no function fails.
// Empty or mismatched inputs produce empty or unchanged outputs.
package reconcile

import (
	"slices"

	"storefront/internal/model"
)

// Reconcile joins selections with catalog products by strict ProductID equality.
// Selections with no matching product are skipped. Output order follows
// selections, which is the on-screen cart order.
//
// Product fields are always read from the catalog passed in, so a price change
// in a fresh snapshot shows up on the next call.
func Reconcile(selections []model.CartSelection, catalog []model.Product) []model.CartLineItem {
	items := make([]model.CartLineItem, 0, len(selections))
	if len(selections) == 0 || len(catalog) == 0 {
		return items
	}

	index := model.ProductIndex(catalog)
	for _, sel := range selections {
		product, ok := index[sel.ProductID]
		if !ok {
			continue
		}
		items = append(items, model.CartLineItem{
			Product:  product,
			Quantity: sel.Quantity,
		})
	}
	return items
}

// TotalValue returns Σ cost × quantity. Zero for no items.
// Accumulates in float64; rounding belongs to the display layer (model.FormatCost).
func TotalValue(items []model.CartLineItem) float64 {
	var total float64
	for _, item := range items {
		total += item.Subtotal()
	}
	return total
}

// ItemCount returns the number of units across all line items.
func ItemCount(items []model.CartLineItem) int {
	var n int
	for _, item := range items {
		n += item.Quantity
	}
	return n
}

// Visible returns line items with a non-zero quantity, in order.
// Zero-quantity selections stay in the cart but are not displayed.
func Visible(items []model.CartLineItem) []model.CartLineItem {
	out := make([]model.CartLineItem, 0, len(items))
	for _, item := range items {
		if item.Quantity > 0 {
			out = append(out, item)
		}
	}
	return out
}

// AdjustQuantity returns a copy of selections with productID's quantity changed
// by delta, floored at 0.
//
//   - present: quantity = max(quantity+delta, 0); an entry reaching 0 is kept
//   - absent, delta > 0: appended as {productID, delta}
//   - absent, delta <= 0: unchanged copy
func AdjustQuantity(selections []model.CartSelection, productID string, delta int) []model.CartSelection {
	out := slices.Clone(selections)
	if out == nil {
		out = []model.CartSelection{}
	}

	i := indexOf(out, productID)
	if i < 0 {
		if delta > 0 {
			out = append(out, model.CartSelection{ProductID: productID, Quantity: delta})
		}
		return out
	}

	out[i].Quantity = max(out[i].Quantity+delta, 0)
	return out
}

// SetQuantity returns a copy of selections with productID's quantity set to qty,
// floored at 0. Absent products are appended only when qty > 0.
func SetQuantity(selections []model.CartSelection, productID string, qty int) []model.CartSelection {
	qty = max(qty, 0)

	i := indexOf(selections, productID)
	if i < 0 {
		return AdjustQuantity(selections, productID, qty)
	}
	return AdjustQuantity(selections, productID, qty-selections[i].Quantity)
}

// Prune returns a copy of selections without zero-quantity entries.
func Prune(selections []model.CartSelection) []model.CartSelection {
	out := make([]model.CartSelection, 0, len(selections))
	for _, sel := range selections {
		if sel.Quantity > 0 {
			out = append(out, sel)
		}
	}
	return out
}

// QuantityOf returns the selected quantity for productID, 0 if absent.
func QuantityOf(selections []model.CartSelection, productID string) int {
	if i := indexOf(selections, productID); i >= 0 {
		return selections[i].Quantity
	}
	return 0
}

// indexOf finds the first selection for productID, -1 if none.
func indexOf(selections []model.CartSelection, productID string) int {
	return slices.IndexFunc(selections, func(s model.CartSelection) bool {
		return s.ProductID == productID
	})
}
