package handler

import (
	"log/slog"
	"net/http"

	"storefront/internal/model"
	"storefront/internal/storefront"
)

// ProductsResponse is the displayed product list of a view.
type ProductsResponse struct {
	SessionID string          `json:"session_id,omitempty"`
	Products  []model.Product `json:"products"`
	Query     string          `json:"query"`
	Loading   bool            `json:"loading"`
	Searching bool            `json:"searching"`
	Error     *errorBody      `json:"error,omitempty"` // last retryable failure, if any
}

// CartResponse is the reconciled cart of a view.
type CartResponse struct {
	SessionID      string               `json:"session_id,omitempty"`
	Items          []model.CartLineItem `json:"items"`
	Total          float64              `json:"total"`
	FormattedTotal string               `json:"formatted_total"`
	ItemCount      int                  `json:"item_count"`
	Empty          bool                 `json:"empty"`
}

// SearchRequest is the body of PUT /search.
type SearchRequest struct {
	Query string `json:"query"`
}

// AdjustItemRequest is the body of POST /cart/items. Delta defaults to 1.
type AdjustItemRequest struct {
	ProductID string `json:"product_id"`
	Delta     *int   `json:"delta,omitempty"`
}

// SetItemRequest is the body of PUT /cart/items/{id}.
type SetItemRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *Handler) productsResponse(snap storefront.Snapshot) *ProductsResponse {
	resp := &ProductsResponse{
		Products:  snap.Products,
		Query:     snap.Query,
		Loading:   snap.Loading,
		Searching: snap.Searching,
	}
	if resp.Products == nil {
		resp.Products = []model.Product{}
	}
	if snap.Err != nil {
		resp.Error = h.errorBody(snap.Err)
	}
	return resp
}

func cartResponse(cart storefront.Cart) *CartResponse {
	items := cart.Items
	if items == nil {
		items = []model.CartLineItem{}
	}
	return &CartResponse{
		Items:          items,
		Total:          cart.Total,
		FormattedTotal: cart.FormattedTotal,
		ItemCount:      cart.ItemCount,
		Empty:          cart.Empty,
	}
}

// handleListProducts returns the displayed products.
// GET /products
func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	v := h.view(r.Context())
	h.writeJSON(w, http.StatusOK, h.productsResponse(v.Snapshot()))
}

// handleSearch feeds a query into the view's search debouncer. The filtered
// list is available from GET /products once the quiescence window passes.
// An empty query restores the full catalog immediately.
// PUT /search
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SearchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.DebugContext(ctx, "query changed", slog.String("query", req.Query))

	v := h.view(ctx)
	v.Query(req.Query)

	status := http.StatusAccepted
	if req.Query == "" {
		status = http.StatusOK
	}
	h.writeJSON(w, status, h.productsResponse(v.Snapshot()))
}

// handleRetry reloads the catalog and reissues the active search.
// POST /retry
func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v := h.view(ctx)

	if err := v.Retry(ctx); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.productsResponse(v.Snapshot()))
}

// handleGetCart returns the reconciled cart.
// GET /cart
func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	v := h.view(r.Context())
	h.writeJSON(w, http.StatusOK, cartResponse(v.Cart()))
}

// handleAdjustCartItem changes a product's quantity by a delta.
// POST /cart/items
func (h *Handler) handleAdjustCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AdjustItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	delta := 1
	if req.Delta != nil {
		delta = *req.Delta
	}

	h.logger.InfoContext(ctx, "adjusting cart item",
		slog.String("product_id", req.ProductID),
		slog.Int("delta", delta),
	)

	v := h.view(ctx)
	if err := v.AdjustQuantity(req.ProductID, delta); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cartResponse(v.Cart()))
}

// handleSetCartItem sets a product's quantity.
// PUT /cart/items/{id}
func (h *Handler) handleSetCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID := r.PathValue("id")

	var req SetItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Quantity == nil {
		h.writeError(w, model.NewValidationError("quantity", "is required"))
		return
	}

	h.logger.InfoContext(ctx, "setting cart item",
		slog.String("product_id", productID),
		slog.Int("quantity", *req.Quantity),
	)

	v := h.view(ctx)
	if err := v.SetQuantity(productID, *req.Quantity); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cartResponse(v.Cart()))
}

// handlePruneCart drops zero-quantity lines from the cart.
// DELETE /cart/items
func (h *Handler) handlePruneCart(w http.ResponseWriter, r *http.Request) {
	v := h.view(r.Context())
	v.PruneCart()
	h.writeJSON(w, http.StatusOK, cartResponse(v.Cart()))
}
