package fetch

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/spadilla89/proxy-universe/internal/config"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// DocumentFetcher loads a page and hands back a parsed HTML document.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, url string) (*goquery.Document, error)
}

// CollyFetcher downloads pages with a fresh colly collector per request so
// concurrent scrapers never share callbacks.
type CollyFetcher struct {
	userAgent string
	timeout   time.Duration
}

func NewCollyFetcher(userAgent string, timeout time.Duration) *CollyFetcher {
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}
	return &CollyFetcher{userAgent: userAgent, timeout: timeout}
}

func (f *CollyFetcher) FetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	if config.IsWebsiteBlocked(url) {
		return nil, fmt.Errorf("%w: %s", ErrBlocked, url)
	}

	c := colly.NewCollector(
		colly.UserAgent(f.userAgent),
		colly.StdlibContext(ctx),
		colly.IgnoreRobotsTxt(),
		colly.AllowURLRevisit(),
		colly.DetectCharset(),
		colly.MaxBodySize(maxBodyBytes),
	)
	if f.timeout > 0 {
		c.SetRequestTimeout(f.timeout)
	}

	var (
		body     []byte
		fetchErr error
	)

	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= 300 {
			fetchErr = &StatusError{URL: url, StatusCode: r.StatusCode}
			return
		}
		fetchErr = err
	})

	visitErr := c.Visit(url)
	c.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if visitErr != nil {
		return nil, visitErr
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html from %s: %w", url, err)
	}
	return doc, nil
}
