// Package storefront holds per-session storefront state: the catalog
// snapshot, the displayed (possibly filtered) product list and the cart.
package storefront

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/text/currency"

	"storefront/internal/catalog"
	"storefront/internal/model"
	"storefront/internal/reconcile"
	"storefront/internal/search"
)

// Options configures a View.
type Options struct {
	Currency     currency.Unit
	Search       []search.Option
	DiscardStale bool // also keeps catalog loads from overwriting an active search
	Logger       *slog.Logger
}

// Snapshot is a point-in-time copy of what the view displays.
type Snapshot struct {
	Products  []model.Product
	Query     string
	Loading   bool  // catalog fetch in flight
	Searching bool  // search scheduled or awaiting its result
	Err       error // last non-"not found" failure; cleared by the next success
}

// Cart is the reconciled cart as displayed.
type Cart struct {
	Items          []model.CartLineItem
	Total          float64
	FormattedTotal string
	ItemCount      int
	Empty          bool
}

// View is one client's storefront. All methods are safe for concurrent use.
//
// The displayed list is written by three paths: catalog load completion,
// clearing the query, and debounced search completion. Unless DiscardStale is
// set, whichever lands last wins.
type View struct {
	catalog      catalog.Service
	debouncer    *search.Debouncer
	unit         currency.Unit
	discardStale bool
	logger       *slog.Logger

	mu         sync.Mutex
	snapshot   []model.Product
	displayed  []model.Product
	query      string
	loading    bool
	err        error
	selections []model.CartSelection
}

// NewView creates an empty view. Call Load to fetch the catalog.
func NewView(svc catalog.Service, opts Options) *View {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	unit := opts.Currency
	if unit == (currency.Unit{}) {
		unit = model.DefaultCurrency
	}

	v := &View{
		catalog:      svc,
		unit:         unit,
		discardStale: opts.DiscardStale,
		logger:       logger,
		snapshot:     []model.Product{},
		displayed:    []model.Product{},
		selections:   []model.CartSelection{},
	}
	searchOpts := append([]search.Option{
		search.WithLogger(logger),
		search.WithDiscardStale(opts.DiscardStale),
	}, opts.Search...)
	v.debouncer = search.New(svc, v.applySearch, searchOpts...)
	return v
}

// Load fetches the full catalog. A not-found response means an empty
// catalog. Other failures are recorded in Snapshot().Err, leave the displayed
// list unchanged and are returned.
func (v *View) Load(ctx context.Context) error {
	v.mu.Lock()
	v.loading = true
	v.mu.Unlock()

	products, err := v.catalog.FetchAll(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.loading = false

	if err != nil && !model.IsNotFound(err) {
		v.logger.Warn("catalog load failed", slog.String("error", err.Error()))
		v.err = err
		return err
	}
	if products == nil {
		products = []model.Product{}
	}

	v.snapshot = products
	v.err = nil
	if !v.discardStale || v.query == "" {
		v.displayed = products
	}
	v.logger.Debug("catalog loaded", slog.Int("products", len(products)))
	return nil
}

// Query feeds a keystroke into the search debouncer. An empty query restores
// the catalog snapshot immediately.
func (v *View) Query(q string) {
	v.mu.Lock()
	v.query = q
	v.mu.Unlock()

	v.debouncer.OnQueryChange(q)
}

// applySearch is the debouncer's result callback.
func (v *View) applySearch(res search.Result) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.discardStale && !res.Restore && res.Query != v.query {
		return
	}

	switch {
	case res.Restore:
		v.displayed = v.snapshot
		v.err = nil
	case res.Err != nil:
		v.err = res.Err
	default:
		v.displayed = res.Products
		v.err = nil
	}
}

// Snapshot returns a copy of the displayed state.
func (v *View) Snapshot() Snapshot {
	searching := v.debouncer.Busy()

	v.mu.Lock()
	defer v.mu.Unlock()
	return Snapshot{
		Products:  slices.Clone(v.displayed),
		Query:     v.query,
		Loading:   v.loading,
		Searching: searching,
		Err:       v.err,
	}
}

// Retry reloads the catalog and, if a query is active, schedules its search
// again.
func (v *View) Retry(ctx context.Context) error {
	err := v.Load(ctx)

	v.mu.Lock()
	q := v.query
	v.mu.Unlock()
	if q != "" {
		v.debouncer.OnQueryChange(q)
	}
	return err
}

// AddToCart adds one unit of productID.
func (v *View) AddToCart(productID string) error {
	return v.AdjustQuantity(productID, 1)
}

// AdjustQuantity changes the quantity of productID by delta, flooring at 0.
// Adding a product that is not in the catalog snapshot is a not-found error;
// decrementing an absent product is a no-op.
func (v *View) AdjustQuantity(productID string, delta int) error {
	if productID == "" {
		return model.NewValidationError("product_id", "is required")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if delta > 0 && reconcile.QuantityOf(v.selections, productID) == 0 && !v.inCatalog(productID) {
		return model.NewNotFoundError("product")
	}
	v.selections = reconcile.AdjustQuantity(v.selections, productID, delta)
	return nil
}

// SetQuantity sets the quantity of productID. qty must not be negative.
func (v *View) SetQuantity(productID string, qty int) error {
	if productID == "" {
		return model.NewValidationError("product_id", "is required")
	}
	if qty < 0 {
		return model.NewValidationError("quantity", "must not be negative")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if qty > 0 && !v.inCatalog(productID) {
		return model.NewNotFoundError("product")
	}
	v.selections = reconcile.SetQuantity(v.selections, productID, qty)
	return nil
}

// Cart reconciles the selections against the current catalog snapshot.
// Zero-quantity lines are kept in the selections but not displayed.
func (v *View) Cart() Cart {
	v.mu.Lock()
	items := reconcile.Visible(reconcile.Reconcile(v.selections, v.snapshot))
	v.mu.Unlock()

	total := reconcile.TotalValue(items)
	return Cart{
		Items:          items,
		Total:          total,
		FormattedTotal: model.FormatCost(total, v.unit),
		ItemCount:      reconcile.ItemCount(items),
		Empty:          len(items) == 0,
	}
}

// Selections returns a copy of the raw cart selections, including
// zero-quantity entries.
func (v *View) Selections() []model.CartSelection {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.selections)
}

// PruneCart drops zero-quantity selections.
func (v *View) PruneCart() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selections = reconcile.Prune(v.selections)
}

// Close stops the debouncer. Pending and in-flight searches are discarded.
func (v *View) Close() {
	v.debouncer.Close()
}

// inCatalog must be called with mu held.
func (v *View) inCatalog(productID string) bool {
	return slices.ContainsFunc(v.snapshot, func(p model.Product) bool {
		return p.ID == productID
	})
}
