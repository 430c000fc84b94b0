package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/spadilla89/proxy-universe/internal/config"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
	"github.com/temoto/robotstxt"
)

const robotsCacheTTL = time.Hour

// ErrDisallowedByRobots is returned by GuardedFetcher when robots.txt forbids a page.
var ErrDisallowedByRobots = errors.New("disallowed by robots.txt")

type robotsCacheEntry struct {
	data    *robotstxt.RobotsData
	fetched time.Time
}

type RobotsCheckResult struct {
	Allowed     bool
	RobotsFound bool
}

// RobotsGuard answers robots.txt questions per host and caches each file for an hour.
type RobotsGuard struct {
	client    *http.Client
	userAgent string

	mu      sync.Mutex
	entries map[string]robotsCacheEntry
}

func NewRobotsGuard(client *http.Client, userAgent string) *RobotsGuard {
	if client == nil {
		client = http.DefaultClient
	}
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}
	return &RobotsGuard{
		client:    client,
		userAgent: userAgent,
		entries:   make(map[string]robotsCacheEntry),
	}
}

// Check reports whether targetURL may be fetched. A missing or unreadable
// robots.txt allows everything.
func (g *RobotsGuard) Check(ctx context.Context, targetURL string) (RobotsCheckResult, error) {
	if config.IsWebsiteBlocked(targetURL) {
		return RobotsCheckResult{Allowed: false}, fmt.Errorf("%w: %s", ErrBlocked, targetURL)
	}

	parsed, err := url.Parse(targetURL)
	if err != nil {
		return RobotsCheckResult{Allowed: true}, fmt.Errorf("parse robots target: %w", err)
	}
	if parsed.Host == "" {
		return RobotsCheckResult{Allowed: true}, fmt.Errorf("parse robots target: missing host in %q", targetURL)
	}

	entry, fetchErr := g.loadEntry(ctx, parsed)
	if fetchErr != nil {
		return RobotsCheckResult{Allowed: true}, fetchErr
	}
	if entry.data == nil {
		return RobotsCheckResult{Allowed: true, RobotsFound: false}, nil
	}

	group := entry.data.FindGroup(g.userAgent)
	if group == nil {
		return RobotsCheckResult{Allowed: true, RobotsFound: true}, nil
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}

	return RobotsCheckResult{
		Allowed:     group.Test(path),
		RobotsFound: true,
	}, nil
}

func (g *RobotsGuard) loadEntry(ctx context.Context, parsed *url.URL) (robotsCacheEntry, error) {
	key := robotsCacheKey(parsed)

	if entry, ok := g.cached(key); ok {
		return entry, nil
	}

	entry, err := g.fetchEntry(ctx, parsed)
	if err != nil {
		return entry, err
	}
	entry.fetched = time.Now()

	g.mu.Lock()
	g.entries[key] = entry
	g.mu.Unlock()

	return entry, nil
}

func (g *RobotsGuard) cached(key string) (robotsCacheEntry, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.entries[key]
	if !ok {
		return robotsCacheEntry{}, false
	}
	if time.Since(entry.fetched) > robotsCacheTTL {
		delete(g.entries, key)
		return robotsCacheEntry{}, false
	}
	return entry, true
}

func (g *RobotsGuard) fetchEntry(ctx context.Context, parsed *url.URL) (robotsCacheEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURLFor(parsed), nil)
	if err != nil {
		return robotsCacheEntry{}, err
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return robotsCacheEntry{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return robotsCacheEntry{}, nil
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return robotsCacheEntry{}, err
	}
	return robotsCacheEntry{data: data}, nil
}

func robotsCacheKey(parsed *url.URL) string {
	scheme := parsed.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, parsed.Host)
}

func robotsURLFor(parsed *url.URL) string {
	return robotsCacheKey(parsed) + "/robots.txt"
}

// GuardedFetcher consults a RobotsGuard before delegating to the wrapped fetcher.
type GuardedFetcher struct {
	next  DocumentFetcher
	guard *RobotsGuard
}

func NewGuardedFetcher(next DocumentFetcher, guard *RobotsGuard) *GuardedFetcher {
	return &GuardedFetcher{next: next, guard: guard}
}

func (f *GuardedFetcher) FetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	result, err := f.guard.Check(ctx, url)
	if errors.Is(err, ErrBlocked) {
		return nil, err
	}
	if err != nil {
		log.Warn("robots.txt check failed", "url", url, "err", err)
	}
	if result.RobotsFound && !result.Allowed {
		log.Info("robots.txt disallows scraping; skipping", "url", url)
		return nil, fmt.Errorf("%w: %s", ErrDisallowedByRobots, url)
	}
	return f.next.FetchDocument(ctx, url)
}
