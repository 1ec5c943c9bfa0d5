package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"storefront/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSearcher records queries and answers from a per-query table.
type fakeSearcher struct {
	mu      sync.Mutex
	calls   []string
	results map[string][]model.Product
	errs    map[string]error
	delays  map[string]time.Duration
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]model.Product, error) {
	f.mu.Lock()
	f.calls = append(f.calls, query)
	delay := f.delays[query]
	res, err := f.results[query], f.errs[query]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return res, err
}

func (f *fakeSearcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// recorder collects results delivered to the callback.
type recorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *recorder) add(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recorder) all() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.results...)
}

func TestDebouncer_BurstIssuesOneSearchWithLastQuery(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		searcher := &fakeSearcher{results: map[string][]model.Product{
			"abc": {{ID: "p1", Name: "abc widget"}},
		}}
		rec := &recorder{}
		d := New(searcher, rec.add)
		defer d.Close()

		for _, q := range []string{"a", "ab", "abc"} {
			d.OnQueryChange(q)
			time.Sleep(100 * time.Millisecond)
		}
		if got := searcher.Calls(); len(got) != 0 {
			t.Fatalf("search issued inside the window: %v", got)
		}

		time.Sleep(DefaultWindow)
		synctest.Wait()

		if diff := cmp.Diff([]string{"abc"}, searcher.Calls()); diff != "" {
			t.Errorf("search calls mismatch (-want +got):\n%s", diff)
		}
		results := rec.all()
		if len(results) != 1 {
			t.Fatalf("len(results) = %d, want 1", len(results))
		}
		if results[0].Query != "abc" || len(results[0].Products) != 1 {
			t.Errorf("result = %+v, want one product for abc", results[0])
		}
	})
}

func TestDebouncer_ManyChangesWithinWindow(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		searcher := &fakeSearcher{}
		d := New(searcher, nil)
		defer d.Close()

		queries := []string{"s", "sh", "sho", "shoe", "shoes", "shoe"}
		for _, q := range queries {
			d.OnQueryChange(q)
			time.Sleep(499 * time.Millisecond)
		}
		time.Sleep(time.Second)
		synctest.Wait()

		if diff := cmp.Diff([]string{"shoe"}, searcher.Calls()); diff != "" {
			t.Errorf("search calls mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestDebouncer_FiresAfterWindow(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		searcher := &fakeSearcher{}
		d := New(searcher, nil)
		defer d.Close()

		d.OnQueryChange("bag")
		if !d.Pending() {
			t.Fatal("Pending() = false after non-empty query")
		}

		time.Sleep(DefaultWindow - time.Millisecond)
		synctest.Wait()
		if got := len(searcher.Calls()); got != 0 {
			t.Fatalf("search fired %d times before the window elapsed", got)
		}

		time.Sleep(time.Millisecond)
		synctest.Wait()
		if diff := cmp.Diff([]string{"bag"}, searcher.Calls()); diff != "" {
			t.Errorf("search calls mismatch (-want +got):\n%s", diff)
		}
		if d.Pending() {
			t.Error("Pending() = true after the search fired")
		}
	})
}

func TestDebouncer_ClearCancelsPendingSearch(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		searcher := &fakeSearcher{}
		rec := &recorder{}
		d := New(searcher, rec.add)
		defer d.Close()

		d.OnQueryChange("lamp")
		time.Sleep(200 * time.Millisecond)
		d.OnQueryChange("")

		// restore is synchronous
		results := rec.all()
		if len(results) != 1 || !results[0].Restore {
			t.Fatalf("results = %+v, want a single Restore", results)
		}
		if d.Pending() {
			t.Error("Pending() = true after clearing the query")
		}

		time.Sleep(10 * DefaultWindow)
		synctest.Wait()

		if got := searcher.Calls(); len(got) != 0 {
			t.Errorf("search invoked after clear: %v", got)
		}
		if got := len(rec.all()); got != 1 {
			t.Errorf("len(results) = %d, want 1", got)
		}
	})
}

func TestDebouncer_SeparateBurstsSearchSeparately(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		searcher := &fakeSearcher{}
		d := New(searcher, nil, WithWindow(200*time.Millisecond))
		defer d.Close()

		d.OnQueryChange("tv")
		time.Sleep(300 * time.Millisecond)
		d.OnQueryChange("tv stand")
		time.Sleep(300 * time.Millisecond)
		synctest.Wait()

		if diff := cmp.Diff([]string{"tv", "tv stand"}, searcher.Calls()); diff != "" {
			t.Errorf("search calls mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestDebouncer_ResultKinds(t *testing.T) {
	upstream := model.NewUpstreamError("catalog", errors.New("connection refused"))

	tests := []struct {
		name         string
		query        string
		searcher     *fakeSearcher
		wantProducts []model.Product
		wantErr      error
	}{
		{
			name:         "success",
			query:        "fan",
			searcher:     &fakeSearcher{results: map[string][]model.Product{"fan": {{ID: "p3"}}}},
			wantProducts: []model.Product{{ID: "p3"}},
		},
		{
			name:         "success with nil body becomes empty",
			query:        "fan",
			searcher:     &fakeSearcher{},
			wantProducts: []model.Product{},
		},
		{
			name:         "not found becomes empty result",
			query:        "zzz",
			searcher:     &fakeSearcher{errs: map[string]error{"zzz": model.NewNotFoundError("products")}},
			wantProducts: []model.Product{},
		},
		{
			name:     "other failure is surfaced",
			query:    "fan",
			searcher: &fakeSearcher{errs: map[string]error{"fan": upstream}},
			wantErr:  upstream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synctest.Test(t, func(t *testing.T) {
				rec := &recorder{}
				d := New(tt.searcher, rec.add)
				defer d.Close()

				d.OnQueryChange(tt.query)
				time.Sleep(DefaultWindow)
				synctest.Wait()

				results := rec.all()
				if len(results) != 1 {
					t.Fatalf("len(results) = %d, want 1", len(results))
				}
				res := results[0]
				if !errors.Is(res.Err, tt.wantErr) {
					t.Errorf("Err = %v, want %v", res.Err, tt.wantErr)
				}
				if diff := cmp.Diff(tt.wantProducts, res.Products); diff != "" {
					t.Errorf("Products mismatch (-want +got):\n%s", diff)
				}
				if res.Restore {
					t.Error("Restore = true for a search result")
				}
			})
		})
	}
}

func TestDebouncer_LastWriteWinsByDefault(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		searcher := &fakeSearcher{delays: map[string]time.Duration{
			"slow": 2 * time.Second,
			"fast": 10 * time.Millisecond,
		}}
		rec := &recorder{}
		d := New(searcher, rec.add)
		defer d.Close()

		d.OnQueryChange("slow")
		time.Sleep(DefaultWindow + time.Millisecond) // slow search now in flight
		d.OnQueryChange("fast")
		time.Sleep(5 * time.Second)
		synctest.Wait()

		var order []string
		for _, res := range rec.all() {
			order = append(order, res.Query)
		}
		if diff := cmp.Diff([]string{"fast", "slow"}, order); diff != "" {
			t.Errorf("completion order mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestDebouncer_DiscardStale(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		searcher := &fakeSearcher{delays: map[string]time.Duration{
			"slow": 2 * time.Second,
			"fast": 10 * time.Millisecond,
		}}
		rec := &recorder{}
		d := New(searcher, rec.add, WithDiscardStale(true))
		defer d.Close()

		d.OnQueryChange("slow")
		time.Sleep(DefaultWindow + time.Millisecond)
		d.OnQueryChange("fast")
		time.Sleep(5 * time.Second)
		synctest.Wait()

		results := rec.all()
		if len(results) != 1 {
			t.Fatalf("len(results) = %d, want 1", len(results))
		}
		if results[0].Query != "fast" || results[0].Seq != 2 {
			t.Errorf("result = {Query:%s Seq:%d}, want {Query:fast Seq:2}", results[0].Query, results[0].Seq)
		}
	})
}

func TestDebouncer_SearchTimeout(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		searcher := &fakeSearcher{delays: map[string]time.Duration{"hang": time.Hour}}
		rec := &recorder{}
		d := New(searcher, rec.add, WithSearchTimeout(time.Second))
		defer d.Close()

		d.OnQueryChange("hang")
		time.Sleep(DefaultWindow + 2*time.Second)
		synctest.Wait()

		results := rec.all()
		if len(results) != 1 {
			t.Fatalf("len(results) = %d, want 1", len(results))
		}
		if !errors.Is(results[0].Err, context.DeadlineExceeded) {
			t.Errorf("Err = %v, want context.DeadlineExceeded", results[0].Err)
		}
	})
}

func TestDebouncer_CloseStopsEverything(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		searcher := &fakeSearcher{delays: map[string]time.Duration{"inflight": time.Hour}}
		rec := &recorder{}
		d := New(searcher, rec.add)

		d.OnQueryChange("inflight")
		time.Sleep(DefaultWindow)
		synctest.Wait()

		d.Close()
		d.OnQueryChange("after-close")
		d.OnQueryChange("")
		time.Sleep(time.Second)
		synctest.Wait()

		if diff := cmp.Diff([]string{"inflight"}, searcher.Calls()); diff != "" {
			t.Errorf("search calls mismatch (-want +got):\n%s", diff)
		}
		if got := rec.all(); len(got) != 0 {
			t.Errorf("results delivered after Close: %+v", got)
		}
	})
}

func TestDebouncer_CancelIsSilent(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		searcher := &fakeSearcher{}
		rec := &recorder{}
		d := New(searcher, rec.add)
		defer d.Close()

		d.OnQueryChange("desk")
		d.Cancel()
		time.Sleep(time.Second)
		synctest.Wait()

		if len(searcher.Calls()) != 0 || len(rec.all()) != 0 {
			t.Errorf("calls=%v results=%v, want none", searcher.Calls(), rec.all())
		}
	})
}

func TestDebouncer_BusyUntilResultDelivered(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		searcher := &fakeSearcher{
			results: map[string][]model.Product{"bag": {{ID: "p1"}}},
			delays:  map[string]time.Duration{"bag": 2 * time.Second},
		}
		rec := &recorder{}
		d := New(searcher, rec.add)
		defer d.Close()

		d.OnQueryChange("bag")
		if !d.Busy() || d.InFlight() {
			t.Fatalf("Busy() = %v, InFlight() = %v; want true, false while scheduled", d.Busy(), d.InFlight())
		}

		time.Sleep(DefaultWindow + 100*time.Millisecond)
		synctest.Wait()
		if d.Pending() {
			t.Error("Pending() = true after the search fired")
		}
		if !d.InFlight() || !d.Busy() {
			t.Errorf("InFlight() = %v, Busy() = %v; want true while the search runs", d.InFlight(), d.Busy())
		}
		if got := len(rec.all()); got != 0 {
			t.Fatalf("results = %d before the search returned", got)
		}

		time.Sleep(2 * time.Second)
		synctest.Wait()
		if d.InFlight() || d.Busy() {
			t.Errorf("InFlight() = %v, Busy() = %v; want false after delivery", d.InFlight(), d.Busy())
		}
		if got := rec.all(); len(got) != 1 || got[0].Query != "bag" {
			t.Errorf("results = %+v, want one for bag", got)
		}
	})
}

func TestDebouncer_CloseWaitsForRunningCallback(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	rec := &recorder{}
	d := New(&fakeSearcher{}, func(res Result) {
		if res.Query == "bag" {
			close(entered)
			<-release
		}
		rec.add(res)
	}, WithWindow(time.Millisecond))

	d.OnQueryChange("bag")
	<-entered

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a result callback was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-closed

	d.OnQueryChange("desk")
	d.OnQueryChange("")
	time.Sleep(20 * time.Millisecond)

	if got := rec.all(); len(got) != 1 || got[0].Query != "bag" {
		t.Errorf("results = %+v, want only the one delivered before Close", got)
	}
}
