package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spadilla89/proxy-universe/internal/domain"
	"github.com/spadilla89/proxy-universe/internal/sources"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrAllSourcesFailed is returned when every consulted source errored. A round
// in which some source answered, even with nothing, is not a failure.
var ErrAllSourcesFailed = errors.New("every proxy source failed")

var errSourcePanicked = errors.New("source panicked")

// Enricher fills in details the sources left out, e.g. the country.
type Enricher interface {
	Enrich(proxies []domain.Proxy) []domain.Proxy
}

type SourceReport struct {
	Source  string
	Kind    sources.Kind
	Count   int
	Elapsed time.Duration
	Err     error
}

type Result struct {
	RoundID string
	Proxies []domain.Proxy
	Reports []SourceReport
	// Unique is the number of distinct records before filtering.
	Unique int
}

// Failed lists the reports of sources that errored.
func (r Result) Failed() []SourceReport {
	var failed []SourceReport
	for _, report := range r.Reports {
		if report.Err != nil {
			failed = append(failed, report)
		}
	}
	return failed
}

type Option func(*Aggregator)

// WithEnricher runs e over the deduplicated records before filtering.
func WithEnricher(e Enricher) Option {
	return func(a *Aggregator) { a.enricher = e }
}

// WithTimeouts bounds each API and scraper source independently. Zero leaves
// the bound to the source's own client.
func WithTimeouts(api, scraper time.Duration) Option {
	return func(a *Aggregator) {
		a.apiTimeout = api
		a.scraperTimeout = scraper
	}
}

// Aggregator fans a request out to every source and merges the answers.
type Aggregator struct {
	apiSources     []sources.Source
	scraperSources []sources.Source

	enricher       Enricher
	apiTimeout     time.Duration
	scraperTimeout time.Duration
}

func NewAggregator(all []sources.Source, opts ...Option) *Aggregator {
	a := &Aggregator{}
	for _, src := range all {
		if src.Kind() == sources.KindAPI {
			a.apiSources = append(a.apiSources, src)
		} else {
			a.scraperSources = append(a.scraperSources, src)
		}
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type outcome struct {
	proxies []domain.Proxy
	report  SourceReport
}

// FetchAll queries the API group and the scraper group concurrently, then
// concatenates API results before scraper results, dedupes by Key, enriches
// and filters. Per-source failures are logged and reported, never fatal.
func (a *Aggregator) FetchAll(ctx context.Context, protocol domain.Protocol, filter Filter) (Result, error) {
	roundID := uuid.NewString()
	start := time.Now()

	apiOutcomes := make([]outcome, len(a.apiSources))
	scraperOutcomes := make([]outcome, len(a.scraperSources))

	var groups errgroup.Group
	groups.Go(func() error {
		a.runGroup(ctx, a.apiSources, protocol, a.apiTimeout, apiOutcomes)
		return nil
	})
	groups.Go(func() error {
		a.runGroup(ctx, a.scraperSources, protocol, a.scraperTimeout, scraperOutcomes)
		return nil
	})
	_ = groups.Wait()

	var (
		merged  []domain.Proxy
		reports = make([]SourceReport, 0, len(apiOutcomes)+len(scraperOutcomes))
		failed  int
	)
	for _, out := range append(apiOutcomes, scraperOutcomes...) {
		merged = append(merged, out.proxies...)
		reports = append(reports, out.report)
		if out.report.Err != nil {
			failed++
		}
	}

	unique := Dedupe(merged)
	if a.enricher != nil {
		unique = a.enricher.Enrich(unique)
	}
	kept := ApplyFilter(unique, filter)

	result := Result{
		RoundID: roundID,
		Proxies: kept,
		Reports: reports,
		Unique:  len(unique),
	}

	log.Info("Proxy round finished",
		"round", roundID,
		"protocol", protocol,
		"fetched", len(merged),
		"unique", len(unique),
		"kept", len(kept),
		"failed_sources", failed,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	if len(reports) > 0 && failed == len(reports) {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("%w: %w", ErrAllSourcesFailed, err)
		}
		return result, ErrAllSourcesFailed
	}
	return result, nil
}

func (a *Aggregator) runGroup(ctx context.Context, group []sources.Source, protocol domain.Protocol, timeout time.Duration, outcomes []outcome) {
	var g errgroup.Group
	for i, src := range group {
		g.Go(func() error {
			outcomes[i] = runSource(ctx, src, protocol, timeout)
			return nil
		})
	}
	_ = g.Wait()
}

func runSource(ctx context.Context, src sources.Source, protocol domain.Protocol, timeout time.Duration) (out outcome) {
	label := sources.Label(src)
	start := time.Now()
	out.report = SourceReport{Source: label, Kind: src.Kind()}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Proxy source panicked", "source", label, "panic", r)
			out.proxies = nil
			out.report.Count = 0
			out.report.Err = fmt.Errorf("%w: %v", errSourcePanicked, r)
		}
		out.report.Elapsed = time.Since(start)
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	proxies, err := src.Fetch(ctx, protocol)
	out.proxies = proxies
	out.report.Count = len(proxies)
	out.report.Err = err

	if err != nil {
		log.Warn("Proxy source failed", "source", label, "err", err)
	} else {
		log.Debug("Proxy source finished", "source", label, "count", len(proxies), "elapsed", time.Since(start).Round(time.Millisecond))
	}
	return out
}
