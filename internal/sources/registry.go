package sources

import (
	"errors"
	"net/http"

	"github.com/spadilla89/proxy-universe/internal/config"
	"github.com/spadilla89/proxy-universe/internal/fetch"

	"github.com/charmbracelet/log"
)

// Options are the collaborators shared by the default sources.
type Options struct {
	HTTPClient    *http.Client
	Documents     fetch.DocumentFetcher
	UserAgent     string
	MaxPerRequest int
	PubProxyLimit int
}

// Defaults lists every built-in source, APIs first.
func Defaults(opts Options) []Source {
	return []Source{
		NewProxyScrape(opts.HTTPClient, opts.UserAgent, opts.MaxPerRequest),
		NewGeoNode(opts.HTTPClient, opts.UserAgent, opts.MaxPerRequest),
		NewPubProxy(opts.HTTPClient, opts.UserAgent, opts.PubProxyLimit),
		NewFreeProxyList(opts.Documents),
		NewSSLProxies(opts.Documents),
		NewSocksProxy(opts.Documents),
		NewHideMyName(opts.Documents),
		NewProxyNova(opts.Documents),
	}
}

// Registry owns the configured sources and whatever fetchers they share.
type Registry struct {
	Sources []Source

	browser *fetch.BrowserFetcher
}

// NewRegistry builds the default sources from cfg, dropping disabled ones.
func NewRegistry(cfg config.Config) *Registry {
	registry := &Registry{}

	var documents fetch.DocumentFetcher
	if cfg.Sources.UseBrowser {
		registry.browser = fetch.NewBrowserFetcher(5, cfg.Sources.ScraperTimeout)
		documents = registry.browser
	} else {
		documents = fetch.NewCollyFetcher(cfg.Sources.UserAgent, cfg.Sources.ScraperTimeout)
	}
	if cfg.Sources.RespectRobots {
		guard := fetch.NewRobotsGuard(fetch.NewHTTPClient(cfg.Sources.ScraperTimeout), cfg.Sources.UserAgent)
		documents = fetch.NewGuardedFetcher(documents, guard)
	}

	all := Defaults(Options{
		HTTPClient:    fetch.NewHTTPClient(cfg.Sources.APITimeout),
		Documents:     documents,
		UserAgent:     cfg.Sources.UserAgent,
		MaxPerRequest: cfg.Sources.MaxPerRequest,
		PubProxyLimit: cfg.Sources.PubProxyLimit,
	})

	for _, src := range all {
		if cfg.IsSourceDisabled(src.Name()) {
			log.Debug("Source disabled by configuration", "source", Label(src))
			continue
		}
		registry.Sources = append(registry.Sources, src)
	}
	return registry
}

func (r *Registry) Close() error {
	var errs []error
	if r.browser != nil {
		errs = append(errs, r.browser.Close())
	}
	return errors.Join(errs...)
}
