// Package search coalesces rapid query edits into at most one catalog search
// per quiescence window.
package search

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"storefront/internal/model"
)

// DefaultWindow is the quiescence window between the last keystroke and the search.
const DefaultWindow = 500 * time.Millisecond

// Searcher issues the remote catalog search. catalog.Service satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string) ([]model.Product, error)
}

// Result is delivered to the result callback.
//
//   - Restore: the query was cleared; the caller shows its full catalog snapshot.
//   - Err == nil: Products replaces the displayed set (empty on "not found").
//   - Err != nil: the search failed for a reason other than "not found";
//     Products is nil and the displayed set should be left as is.
type Result struct {
	Query    string
	Products []model.Product
	Err      error
	Restore  bool
	Seq      uint64 // Monotonic request number, 0 for Restore
}

// Option configures a Debouncer.
type Option func(*Debouncer)

// WithWindow overrides DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(db *Debouncer) {
		if d > 0 {
			db.window = d
		}
	}
}

// WithSearchTimeout bounds each remote search. Zero leaves it to the transport.
func WithSearchTimeout(d time.Duration) Option {
	return func(db *Debouncer) { db.timeout = d }
}

// WithDiscardStale drops completions of searches older than the newest one
// issued. Off by default: whichever response lands last wins.
func WithDiscardStale(discard bool) Option {
	return func(db *Debouncer) { db.discardStale = discard }
}

// WithLogger sets the logger used for search failures.
func WithLogger(logger *slog.Logger) Option {
	return func(db *Debouncer) {
		if logger != nil {
			db.logger = logger
		}
	}
}

// Debouncer is a two-state machine: Idle (timer == nil) and Pending.
// The timer is owned here; replacing it and bumping gen happen under mu, so a
// superseded timer that already fired sees a stale generation and does nothing.
type Debouncer struct {
	searcher Searcher
	onResult func(Result)
	logger   *slog.Logger

	window       time.Duration
	timeout      time.Duration
	discardStale bool

	// emitMu is held while a result callback runs and is taken before mu.
	// Close acquires it after marking the Debouncer closed, which waits out
	// a callback already in progress.
	emitMu sync.Mutex

	mu       sync.Mutex
	timer    *time.Timer
	gen      uint64 // bumped on every schedule/cancel
	seq      uint64 // last issued search
	inFlight int    // searches fired whose result has not been handled yet
	closed   bool
	// ctx is cancelled by Close so in-flight searches stop early.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Debouncer. onResult runs on the timer goroutine for searches
// and on the caller's goroutine for the empty-query fast path.
func New(searcher Searcher, onResult func(Result), opts ...Option) *Debouncer {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Debouncer{
		searcher: searcher,
		onResult: onResult,
		logger:   slog.New(slog.DiscardHandler),
		window:   DefaultWindow,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnQueryChange is called on every keystroke with the full query value.
// An empty query cancels any pending search and emits a Restore result
// synchronously. A non-empty query replaces the pending search, if any.
func (d *Debouncer) OnQueryChange(query string) {
	if query == "" {
		d.emitMu.Lock()
		defer d.emitMu.Unlock()
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.stopLocked()

	if query == "" {
		d.mu.Unlock()
		d.emit(Result{Restore: true})
		return
	}

	gen := d.gen
	d.timer = time.AfterFunc(d.window, func() { d.fire(gen, query) })
	d.mu.Unlock()
}

// Pending reports whether a search is scheduled but has not fired.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// InFlight reports whether a fired search has not yet had its result
// delivered (or dropped).
func (d *Debouncer) InFlight() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight > 0
}

// Busy reports whether a search is scheduled or in flight.
func (d *Debouncer) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil || d.inFlight > 0
}

// Cancel discards the pending search, if any, without emitting anything.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

// Close cancels the pending search and any in-flight one, and ignores further
// query changes. If a result callback is running, Close waits for it; no
// result is delivered once Close returns.
func (d *Debouncer) Close() {
	d.mu.Lock()
	d.stopLocked()
	d.closed = true
	d.cancel()
	d.mu.Unlock()

	d.emitMu.Lock()
	d.emitMu.Unlock()
}

// stopLocked moves to Idle. Must hold mu.
func (d *Debouncer) stopLocked() {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// fire runs on the timer goroutine.
func (d *Debouncer) fire(gen uint64, query string) {
	d.mu.Lock()
	if gen != d.gen || d.closed {
		// superseded between the timer firing and acquiring the lock
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.seq++
	d.inFlight++
	seq := d.seq
	ctx := d.ctx
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.inFlight--
		d.mu.Unlock()
	}()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	products, err := d.searcher.Search(ctx, query)
	res := Result{Query: query, Seq: seq}
	switch {
	case err == nil:
		res.Products = nonNil(products)
	case model.IsNotFound(err):
		res.Products = []model.Product{}
	default:
		d.logger.Warn("catalog search failed",
			slog.String("query", query),
			slog.Uint64("seq", seq),
			slog.String("error", err.Error()))
		res.Err = err
	}

	d.emitMu.Lock()
	defer d.emitMu.Unlock()

	d.mu.Lock()
	drop := d.closed || (d.discardStale && seq != d.seq)
	d.mu.Unlock()
	if drop {
		d.logger.Debug("dropping stale search result",
			slog.String("query", query),
			slog.Uint64("seq", seq))
		return
	}

	d.emit(res)
}

func (d *Debouncer) emit(res Result) {
	if d.onResult != nil {
		d.onResult(res)
	}
}

func nonNil(products []model.Product) []model.Product {
	if products == nil {
		return []model.Product{}
	}
	return products
}
