package state

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/spadilla89/proxy-universe/internal/domain"
	"github.com/spadilla89/proxy-universe/internal/jobs/checker"
	"github.com/spadilla89/proxy-universe/internal/jobs/scraper"

	"github.com/charmbracelet/log"
)

var (
	// ErrSuperseded is returned when a newer fetch replaced the result set
	// while a round was in flight; the round's output was discarded.
	ErrSuperseded = errors.New("round superseded by a newer fetch")
	// ErrValidationRunning is returned when a validation round is already active.
	ErrValidationRunning = errors.New("validation already running")
)

type Fetcher interface {
	FetchAll(ctx context.Context, protocol domain.Protocol, filter scraper.Filter) (scraper.Result, error)
}

type Checker interface {
	ValidateMany(ctx context.Context, proxies []domain.Proxy, onProgress checker.ProgressFunc) []domain.Proxy
}

type Progress struct {
	Completed int
	Total     int
}

// Snapshot is an immutable copy of the store handed to readers and observers.
type Snapshot struct {
	Generation  uint64
	RoundID     string
	Protocol    domain.Protocol
	Proxies     []domain.Proxy
	Selected    []string
	SearchQuery string
	Countries   []domain.Country
	Anonymity   []domain.AnonymityLevel
	Loading     bool
	Validating  bool
	Progress    Progress
	Message     string
	Error       string
}

// Store owns the current result set and every setting that shapes it. All
// mutation goes through its methods under one lock; fetchers and checkers
// only return values that the store folds in.
type Store struct {
	fetcher Fetcher
	checker Checker

	mu          sync.Mutex
	generation  uint64
	roundID     string
	protocol    domain.Protocol
	proxies     []domain.Proxy
	selected    map[string]struct{}
	searchQuery string
	countries   []domain.Country
	anonymity   []domain.AnonymityLevel
	loading     bool
	validating  bool
	progress    Progress
	message     string
	errMessage  string

	observersMu sync.Mutex
	observers   map[int]func(Snapshot)
	nextID      int
}

func New(fetcher Fetcher, checker Checker) *Store {
	return &Store{
		fetcher:   fetcher,
		checker:   checker,
		selected:  make(map[string]struct{}),
		countries: domain.Countries(),
		observers: make(map[int]func(Snapshot)),
	}
}

/* ─────────────────────────────  rounds  ─────────────────────────────────── */

// Fetch replaces the result set with a fresh round for protocol and clears the
// selection. Switching protocol drops the old set up front; otherwise a failed
// round keeps the previous result set. A round overtaken by a newer Fetch is
// dropped and ErrSuperseded returned.
func (s *Store) Fetch(ctx context.Context, protocol domain.Protocol) error {
	s.mu.Lock()
	s.generation++
	generation := s.generation
	if protocol != s.protocol {
		s.proxies = nil
		s.roundID = ""
		s.selected = make(map[string]struct{})
	}
	s.protocol = protocol
	s.loading = true
	s.errMessage = ""
	filter := s.filterLocked()
	s.mu.Unlock()
	s.notify()

	result, err := s.runFetch(ctx, protocol, filter)

	s.mu.Lock()
	if generation != s.generation {
		s.mu.Unlock()
		log.Debug("Discarding superseded fetch round", "round", result.RoundID, "generation", generation)
		return ErrSuperseded
	}
	s.loading = false
	if err != nil {
		s.errMessage = "Error fetching proxies: " + err.Error()
		s.mu.Unlock()
		s.notify()
		return err
	}
	s.roundID = result.RoundID
	s.proxies = result.Proxies
	s.selected = make(map[string]struct{})
	s.message = fmt.Sprintf("Found %d proxies", len(result.Proxies))
	s.mu.Unlock()
	s.notify()

	if failed := result.Failed(); len(failed) > 0 {
		log.Debug("Fetch round finished with failing sources", "round", result.RoundID, "failed", len(failed))
	}
	return nil
}

func (s *Store) runFetch(ctx context.Context, protocol domain.Protocol, filter scraper.Filter) (result scraper.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Fetch round panicked", "panic", r)
			err = fmt.Errorf("unexpected failure: %v", r)
		}
	}()
	return s.fetcher.FetchAll(ctx, protocol, filter)
}

// ValidateSelected probes the selected records. Nothing selected is a no-op.
func (s *Store) ValidateSelected(ctx context.Context) error {
	return s.validate(ctx, true)
}

// ValidateAll probes every record of the current result set.
func (s *Store) ValidateAll(ctx context.Context) error {
	return s.validate(ctx, false)
}

func (s *Store) validate(ctx context.Context, onlySelected bool) error {
	s.mu.Lock()
	if s.validating {
		s.mu.Unlock()
		return ErrValidationRunning
	}

	subset := make([]domain.Proxy, 0, len(s.proxies))
	for _, proxy := range s.proxies {
		if onlySelected {
			if _, ok := s.selected[proxy.Key()]; !ok {
				continue
			}
		}
		subset = append(subset, proxy)
	}
	if len(subset) == 0 {
		s.mu.Unlock()
		return nil
	}

	generation := s.generation
	s.validating = true
	s.progress = Progress{Completed: 0, Total: len(subset)}
	s.mu.Unlock()
	s.notify()

	results, err := s.runValidation(ctx, generation, subset)

	s.mu.Lock()
	s.validating = false
	s.progress = Progress{}
	if err != nil {
		s.errMessage = "Validation error: " + err.Error()
		s.mu.Unlock()
		s.notify()
		return err
	}
	if generation != s.generation {
		s.mu.Unlock()
		s.notify()
		log.Debug("Discarding validation results for a superseded result set", "generation", generation)
		return ErrSuperseded
	}

	s.proxies = mergeByKey(s.proxies, results)
	working, failed := checker.Summarize(results)
	s.message = fmt.Sprintf("Validation complete: %d working, %d failed", working, failed)
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *Store) runValidation(ctx context.Context, generation uint64, subset []domain.Proxy) (results []domain.Proxy, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Validation round panicked", "panic", r)
			err = fmt.Errorf("unexpected failure: %v", r)
		}
	}()

	results = s.checker.ValidateMany(ctx, subset, func(completed, total int) {
		s.mu.Lock()
		current := generation == s.generation
		if current {
			s.progress = Progress{Completed: completed, Total: total}
		}
		s.mu.Unlock()
		if current {
			s.notify()
		}
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// mergeByKey swaps in the validated copy of every record it has one for.
func mergeByKey(current, validated []domain.Proxy) []domain.Proxy {
	byKey := make(map[string]domain.Proxy, len(validated))
	for _, proxy := range validated {
		byKey[proxy.Key()] = proxy
	}
	merged := make([]domain.Proxy, len(current))
	for i, proxy := range current {
		if updated, ok := byKey[proxy.Key()]; ok {
			merged[i] = updated
		} else {
			merged[i] = proxy
		}
	}
	return merged
}

/* ─────────────────────────────  queries  ────────────────────────────────── */

// FilteredView returns the records whose ip, port, country or "ip:port"
// contains query, ignoring case. An empty query returns everything.
func (s *Store) FilteredView(query string) []domain.Proxy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterByQuery(s.proxies, query)
}

// Filtered applies the stored search query.
func (s *Store) Filtered() []domain.Proxy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterByQuery(s.proxies, s.searchQuery)
}

func filterByQuery(proxies []domain.Proxy, query string) []domain.Proxy {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return slices.Clone(proxies)
	}

	var matches []domain.Proxy
	for _, proxy := range proxies {
		if strings.Contains(strings.ToLower(proxy.GetIp()), query) ||
			strings.Contains(strconv.Itoa(int(proxy.Port)), query) ||
			strings.Contains(strings.ToLower(proxy.Country), query) ||
			strings.Contains(strings.ToLower(proxy.GetFullProxy()), query) {
			matches = append(matches, proxy)
		}
	}
	return matches
}

// Selected returns the selected records in result set order.
func (s *Store) Selected() []domain.Proxy {
	s.mu.Lock()
	defer s.mu.Unlock()

	var selected []domain.Proxy
	for _, proxy := range s.proxies {
		if _, ok := s.selected[proxy.Key()]; ok {
			selected = append(selected, proxy)
		}
	}
	return selected
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	selected := make([]string, 0, len(s.selected))
	for key := range s.selected {
		selected = append(selected, key)
	}
	slices.Sort(selected)

	return Snapshot{
		Generation:  s.generation,
		RoundID:     s.roundID,
		Protocol:    s.protocol,
		Proxies:     slices.Clone(s.proxies),
		Selected:    selected,
		SearchQuery: s.searchQuery,
		Countries:   slices.Clone(s.countries),
		Anonymity:   slices.Clone(s.anonymity),
		Loading:     s.loading,
		Validating:  s.validating,
		Progress:    s.progress,
		Message:     s.message,
		Error:       s.errMessage,
	}
}

func (s *Store) filterLocked() scraper.Filter {
	return scraper.Filter{
		Countries: domain.SelectedTerms(s.countries),
		Anonymity: slices.Clone(s.anonymity),
	}
}

/* ─────────────────────────────  selection  ──────────────────────────────── */

// ToggleSelect flips the selection of the record with the given Key.
func (s *Store) ToggleSelect(key string) {
	key = strings.ToLower(strings.TrimSpace(key))
	s.mu.Lock()
	if _, ok := s.selected[key]; ok {
		delete(s.selected, key)
	} else {
		s.selected[key] = struct{}{}
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) SelectAll() {
	s.mu.Lock()
	s.selected = make(map[string]struct{}, len(s.proxies))
	for _, proxy := range s.proxies {
		s.selected[proxy.Key()] = struct{}{}
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) ClearSelection() {
	s.mu.Lock()
	s.selected = make(map[string]struct{})
	s.mu.Unlock()
	s.notify()
}

/* ─────────────────────────────  settings  ───────────────────────────────── */

func (s *Store) SetSearchQuery(query string) {
	s.mu.Lock()
	s.searchQuery = query
	s.mu.Unlock()
	s.notify()
}

// SetCountries replaces the country list; the selected entries become the
// country filter of the next Fetch.
func (s *Store) SetCountries(countries []domain.Country) {
	s.mu.Lock()
	s.countries = slices.Clone(countries)
	s.mu.Unlock()
	s.notify()
}

// SelectCountries marks the given codes as selected in the country list.
func (s *Store) SelectCountries(codes ...string) {
	s.mu.Lock()
	for i := range s.countries {
		s.countries[i].Selected = slices.ContainsFunc(codes, func(code string) bool {
			return strings.EqualFold(strings.TrimSpace(code), s.countries[i].Code)
		})
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) SetAnonymity(levels []domain.AnonymityLevel) {
	s.mu.Lock()
	s.anonymity = slices.Clone(levels)
	s.mu.Unlock()
	s.notify()
}

/* ─────────────────────────────  messages  ───────────────────────────────── */

// ConsumeMessages returns the pending success and error messages and clears
// them, so each is shown once.
func (s *Store) ConsumeMessages() (message, errMessage string) {
	s.mu.Lock()
	message, errMessage = s.message, s.errMessage
	s.message, s.errMessage = "", ""
	s.mu.Unlock()
	return message, errMessage
}

func (s *Store) ClearMessages() {
	s.mu.Lock()
	s.message, s.errMessage = "", ""
	s.mu.Unlock()
	s.notify()
}

// Clear empties the result set and the selection. In-flight rounds are
// invalidated.
func (s *Store) Clear() {
	s.mu.Lock()
	s.generation++
	s.proxies = nil
	s.roundID = ""
	s.selected = make(map[string]struct{})
	s.loading = false
	s.mu.Unlock()
	s.notify()
}

/* ─────────────────────────────  observers  ──────────────────────────────── */

// Subscribe registers fn to receive a snapshot after every change. The
// returned function removes it.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.observersMu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.observersMu.Unlock()

	return func() {
		s.observersMu.Lock()
		delete(s.observers, id)
		s.observersMu.Unlock()
	}
}

func (s *Store) notify() {
	s.observersMu.Lock()
	if len(s.observers) == 0 {
		s.observersMu.Unlock()
		return
	}
	observers := make([]func(Snapshot), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.observersMu.Unlock()

	snapshot := s.Snapshot()
	for _, fn := range observers {
		fn(snapshot)
	}
}
