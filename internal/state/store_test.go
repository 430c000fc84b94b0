package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spadilla89/proxy-universe/internal/domain"
	"github.com/spadilla89/proxy-universe/internal/jobs/checker"
	"github.com/spadilla89/proxy-universe/internal/jobs/scraper"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func proxyOf(t *testing.T, ipPort, country, code string) domain.Proxy {
	t.Helper()
	proxy, err := domain.ParseProxy(ipPort, domain.ProtocolHTTP, domain.Metadata{Country: country, CountryCode: code, Source: "API: Test"})
	require.NoError(t, err)
	return proxy
}

type fakeFetcher struct {
	mu      sync.Mutex
	results []scraper.Result
	errs    []error
	gates   []chan struct{}
	filters []scraper.Filter
	calls   int
	panics  bool
}

func (f *fakeFetcher) FetchAll(ctx context.Context, protocol domain.Protocol, filter scraper.Filter) (scraper.Result, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.filters = append(f.filters, filter)
	var gate chan struct{}
	if i < len(f.gates) {
		gate = f.gates[i]
	}
	f.mu.Unlock()

	if f.panics {
		panic("parser exploded")
	}
	if gate != nil {
		<-gate
	}

	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], err
	}
	return scraper.Result{}, err
}

type fakeChecker struct {
	working map[string]bool
	gate    chan struct{}
	calls   int
	got     []domain.Proxy
}

func (c *fakeChecker) ValidateMany(ctx context.Context, proxies []domain.Proxy, onProgress checker.ProgressFunc) []domain.Proxy {
	c.calls++
	c.got = proxies
	if c.gate != nil {
		<-c.gate
	}
	out := make([]domain.Proxy, len(proxies))
	for i, proxy := range proxies {
		out[i] = proxy.WithValidation(c.working[proxy.Key()], 25)
		if onProgress != nil {
			onProgress(i+1, len(proxies))
		}
	}
	return out
}

func TestFetchReplacesResultSet(t *testing.T) {
	fetcher := &fakeFetcher{results: []scraper.Result{
		{RoundID: "r1", Proxies: []domain.Proxy{proxyOf(t, "1.1.1.1:80", "United States", "US")}},
		{RoundID: "r2", Proxies: []domain.Proxy{proxyOf(t, "2.2.2.2:80", "Germany", "DE"), proxyOf(t, "3.3.3.3:80", "Germany", "DE")}},
	}}
	store := New(fetcher, &fakeChecker{})

	require.NoError(t, store.Fetch(context.Background(), domain.ProtocolHTTP))
	store.SelectAll()
	require.Len(t, store.Selected(), 1)

	store.SelectCountries("de")
	store.SetAnonymity([]domain.AnonymityLevel{domain.AnonymityElite})
	require.NoError(t, store.Fetch(context.Background(), domain.ProtocolHTTPS))

	snap := store.Snapshot()
	assert.Equal(t, "r2", snap.RoundID)
	assert.Equal(t, domain.ProtocolHTTPS, snap.Protocol)
	assert.Len(t, snap.Proxies, 2)
	assert.Empty(t, snap.Selected, "a new round clears the selection")
	assert.False(t, snap.Loading)
	assert.Equal(t, "Found 2 proxies", snap.Message)

	require.Len(t, fetcher.filters, 2)
	assert.Empty(t, fetcher.filters[0].Countries)
	assert.Equal(t, []string{"DE", "Germany"}, fetcher.filters[1].Countries)
	assert.Equal(t, []domain.AnonymityLevel{domain.AnonymityElite}, fetcher.filters[1].Anonymity)
}

func TestFetchErrorKeepsPreviousSet(t *testing.T) {
	fetcher := &fakeFetcher{
		results: []scraper.Result{{Proxies: []domain.Proxy{proxyOf(t, "1.1.1.1:80", "", "")}}},
		errs:    []error{nil, scraper.ErrAllSourcesFailed},
	}
	store := New(fetcher, &fakeChecker{})

	require.NoError(t, store.Fetch(context.Background(), domain.ProtocolHTTP))
	_, _ = store.ConsumeMessages()

	err := store.Fetch(context.Background(), domain.ProtocolHTTP)
	require.ErrorIs(t, err, scraper.ErrAllSourcesFailed)

	snap := store.Snapshot()
	assert.Len(t, snap.Proxies, 1)
	assert.Equal(t, "Error fetching proxies: every proxy source failed", snap.Error)

	message, errMessage := store.ConsumeMessages()
	assert.Empty(t, message)
	assert.NotEmpty(t, errMessage)

	message, errMessage = store.ConsumeMessages()
	assert.Empty(t, message)
	assert.Empty(t, errMessage, "messages are shown once")
}

func TestFetchRecoversFromPanics(t *testing.T) {
	store := New(&fakeFetcher{panics: true}, &fakeChecker{})

	err := store.Fetch(context.Background(), domain.ProtocolSOCKS4)
	require.Error(t, err)
	assert.Contains(t, store.Snapshot().Error, "Error fetching proxies: unexpected failure")
	assert.False(t, store.Snapshot().Loading)
}

func TestSupersededFetchIsDiscarded(t *testing.T) {
	slow := make(chan struct{})
	fetcher := &fakeFetcher{
		gates: []chan struct{}{slow, nil},
		results: []scraper.Result{
			{RoundID: "old", Proxies: []domain.Proxy{proxyOf(t, "1.1.1.1:80", "", "")}},
			{RoundID: "new", Proxies: []domain.Proxy{proxyOf(t, "2.2.2.2:80", "", "")}},
		},
	}
	store := New(fetcher, &fakeChecker{})

	done := make(chan error, 1)
	started := make(chan struct{})
	unsubscribe := store.Subscribe(func(s Snapshot) {
		if s.Loading && s.Generation == 1 {
			select {
			case <-started:
			default:
				close(started)
			}
		}
	})
	go func() { done <- store.Fetch(context.Background(), domain.ProtocolHTTP) }()
	<-started
	unsubscribe()

	require.NoError(t, store.Fetch(context.Background(), domain.ProtocolSOCKS5))
	close(slow)
	require.ErrorIs(t, <-done, ErrSuperseded)

	snap := store.Snapshot()
	assert.Equal(t, "new", snap.RoundID)
	require.Len(t, snap.Proxies, 1)
	assert.Equal(t, "2.2.2.2:80", snap.Proxies[0].GetFullProxy())
	assert.Equal(t, domain.ProtocolSOCKS5, snap.Protocol)
}

func TestValidateSelectedMergesByKey(t *testing.T) {
	a := proxyOf(t, "1.1.1.1:80", "", "")
	b := proxyOf(t, "2.2.2.2:80", "", "")
	c := proxyOf(t, "3.3.3.3:80", "", "")

	check := &fakeChecker{working: map[string]bool{a.Key(): true}}
	store := New(&fakeFetcher{results: []scraper.Result{{Proxies: []domain.Proxy{a, b, c}}}}, check)
	require.NoError(t, store.Fetch(context.Background(), domain.ProtocolHTTP))

	store.ToggleSelect(a.Key())
	store.ToggleSelect(b.Key())

	var progress []Progress
	store.Subscribe(func(s Snapshot) {
		if s.Validating {
			progress = append(progress, s.Progress)
		}
	})

	require.NoError(t, store.ValidateSelected(context.Background()))
	require.Len(t, check.got, 2)

	snap := store.Snapshot()
	assert.Equal(t, domain.StatusWorking, snap.Proxies[0].Status)
	assert.Equal(t, domain.StatusFailed, snap.Proxies[1].Status)
	assert.Equal(t, domain.StatusUnchecked, snap.Proxies[2].Status, "records outside the subset are untouched")
	assert.Equal(t, "Validation complete: 1 working, 1 failed", snap.Message)
	assert.False(t, snap.Validating)
	assert.Equal(t, Progress{}, snap.Progress)

	require.NotEmpty(t, progress)
	assert.Equal(t, Progress{Completed: 0, Total: 2}, progress[0])
	assert.Equal(t, Progress{Completed: 2, Total: 2}, progress[len(progress)-1])
}

func TestValidateSelectedWithoutSelectionIsNoop(t *testing.T) {
	check := &fakeChecker{}
	store := New(&fakeFetcher{results: []scraper.Result{{Proxies: []domain.Proxy{proxyOf(t, "1.1.1.1:80", "", "")}}}}, check)
	require.NoError(t, store.Fetch(context.Background(), domain.ProtocolHTTP))

	require.NoError(t, store.ValidateSelected(context.Background()))
	assert.Zero(t, check.calls)
}

func TestValidateAllDiscardedAfterNewFetch(t *testing.T) {
	gate := make(chan struct{})
	check := &fakeChecker{gate: gate, working: map[string]bool{}}
	fetcher := &fakeFetcher{results: []scraper.Result{
		{Proxies: []domain.Proxy{proxyOf(t, "1.1.1.1:80", "", "")}},
		{Proxies: []domain.Proxy{proxyOf(t, "1.1.1.1:80", "", ""), proxyOf(t, "9.9.9.9:80", "", "")}},
	}}
	store := New(fetcher, check)
	require.NoError(t, store.Fetch(context.Background(), domain.ProtocolHTTP))

	done := make(chan error, 1)
	go func() { done <- store.ValidateAll(context.Background()) }()

	require.Eventually(t, func() bool { return store.Snapshot().Validating }, time.Second, time.Millisecond)
	require.ErrorIs(t, store.ValidateAll(context.Background()), ErrValidationRunning)

	require.NoError(t, store.Fetch(context.Background(), domain.ProtocolHTTP))
	close(gate)
	require.ErrorIs(t, <-done, ErrSuperseded)

	for _, proxy := range store.Snapshot().Proxies {
		assert.Equal(t, domain.StatusUnchecked, proxy.Status)
	}
}

func TestValidateCancelled(t *testing.T) {
	store := New(&fakeFetcher{results: []scraper.Result{{Proxies: []domain.Proxy{proxyOf(t, "1.1.1.1:80", "", "")}}}}, &fakeChecker{})
	require.NoError(t, store.Fetch(context.Background(), domain.ProtocolHTTP))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.ValidateAll(ctx)
	require.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, "Validation error: context canceled", store.Snapshot().Error)
	assert.Equal(t, domain.StatusUnchecked, store.Snapshot().Proxies[0].Status)
}

func TestFilteredView(t *testing.T) {
	store := New(&fakeFetcher{results: []scraper.Result{{Proxies: []domain.Proxy{
		proxyOf(t, "10.0.0.1:8080", "United States", "US"),
		proxyOf(t, "192.168.1.5:3128", "Germany", "DE"),
		proxyOf(t, "172.16.0.9:80", "Ukraine", "UA"),
	}}}}, &fakeChecker{})
	require.NoError(t, store.Fetch(context.Background(), domain.ProtocolHTTP))

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"10.0.0.1:8080", "192.168.1.5:3128", "172.16.0.9:80"}},
		{"GERMANY", []string{"192.168.1.5:3128"}},
		{"3128", []string{"192.168.1.5:3128"}},
		{"0.1:80", []string{"10.0.0.1:8080"}},
		{"u", []string{"10.0.0.1:8080", "172.16.0.9:80"}},
		{"nowhere", nil},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			var got []string
			for _, proxy := range store.FilteredView(tt.query) {
				got = append(got, proxy.GetFullProxy())
			}
			assert.Equal(t, tt.want, got)
		})
	}

	store.SetSearchQuery("ukraine")
	require.Len(t, store.Filtered(), 1)
	assert.Len(t, store.Snapshot().Proxies, 3, "searching never shrinks the result set")
}

func TestSelectionNeverTouchesResultSet(t *testing.T) {
	a := proxyOf(t, "1.1.1.1:80", "", "")
	b := proxyOf(t, "2.2.2.2:80", "", "")
	store := New(&fakeFetcher{results: []scraper.Result{{Proxies: []domain.Proxy{a, b}}}}, &fakeChecker{})
	require.NoError(t, store.Fetch(context.Background(), domain.ProtocolHTTP))

	store.ToggleSelect(b.Key())
	assert.Equal(t, []string{b.Key()}, store.Snapshot().Selected)
	store.ToggleSelect(b.Key())
	assert.Empty(t, store.Snapshot().Selected)

	store.SelectAll()
	assert.Len(t, store.Selected(), 2)
	store.ClearSelection()
	assert.Empty(t, store.Selected())

	assert.Len(t, store.Snapshot().Proxies, 2)

	store.Clear()
	snap := store.Snapshot()
	assert.Empty(t, snap.Proxies)
	assert.Empty(t, snap.Selected)
}

func TestSetCountriesUsesSelectedEntries(t *testing.T) {
	fetcher := &fakeFetcher{}
	store := New(fetcher, &fakeChecker{})

	countries := domain.Countries()
	for i := range countries {
		countries[i].Selected = countries[i].Code == "FR" || countries[i].Code == "JP"
	}
	store.SetCountries(countries)

	_ = store.Fetch(context.Background(), domain.ProtocolHTTP)
	require.Len(t, fetcher.filters, 1)
	assert.ElementsMatch(t, []string{"FR", "France", "JP", "Japan"}, fetcher.filters[0].Countries)
}

func TestSubscribe(t *testing.T) {
	store := New(&fakeFetcher{}, &fakeChecker{})

	var seen []string
	unsubscribe := store.Subscribe(func(s Snapshot) { seen = append(seen, s.SearchQuery) })

	store.SetSearchQuery("a")
	store.SetSearchQuery("ab")
	unsubscribe()
	store.SetSearchQuery("abc")

	assert.Equal(t, []string{"a", "ab"}, seen)
}

func TestProtocolSwitchDropsPreviousSet(t *testing.T) {
	fetcher := &fakeFetcher{
		results: []scraper.Result{{Proxies: []domain.Proxy{proxyOf(t, "1.1.1.1:80", "", "")}}},
		errs:    []error{nil, scraper.ErrAllSourcesFailed},
	}
	store := New(fetcher, &fakeChecker{})
	require.NoError(t, store.Fetch(context.Background(), domain.ProtocolHTTP))
	store.SelectAll()

	require.Error(t, store.Fetch(context.Background(), domain.ProtocolSOCKS4))

	snap := store.Snapshot()
	assert.Equal(t, domain.ProtocolSOCKS4, snap.Protocol)
	assert.Empty(t, snap.Proxies)
	assert.Empty(t, snap.Selected)
}

func TestCountryFilterKeepsNameOnlyRecords(t *testing.T) {
	fetcher := &fakeFetcher{}
	store := New(fetcher, &fakeChecker{})
	store.SelectCountries("US")

	_ = store.Fetch(context.Background(), domain.ProtocolHTTP)
	require.Len(t, fetcher.filters, 1)

	rows := []domain.Proxy{
		proxyOf(t, "1.1.1.1:80", "United States", ""),
		proxyOf(t, "2.2.2.2:80", "", "US"),
		proxyOf(t, "3.3.3.3:80", "Germany", ""),
	}
	kept := scraper.ApplyFilter(rows, fetcher.filters[0])
	require.Len(t, kept, 2)
	assert.Equal(t, "1.1.1.1:80", kept[0].GetFullProxy())
	assert.Equal(t, "2.2.2.2:80", kept[1].GetFullProxy())
}
