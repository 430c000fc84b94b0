package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spadilla89/proxy-universe/internal/config"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

/* ─────────────────────────────  browser & page pool  ───────────────────── */

// BrowserFetcher renders pages in a headless Chrome through a small pool of
// stealth pages. The browser is launched on first use.
type BrowserFetcher struct {
	timeout time.Duration
	size    int

	mu       sync.Mutex
	browser  *rod.Browser
	pagePool chan *rod.Page
	pages    int
}

func NewBrowserFetcher(pages int, timeout time.Duration) *BrowserFetcher {
	if pages <= 0 {
		pages = 1
	}
	return &BrowserFetcher{
		timeout:  timeout,
		size:     pages,
		pagePool: make(chan *rod.Page, pages),
	}
}

func (f *BrowserFetcher) FetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	if config.IsWebsiteBlocked(url) {
		return nil, fmt.Errorf("%w: %s", ErrBlocked, url)
	}

	html, err := f.render(ctx, url)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html from %s: %w", url, err)
	}
	return doc, nil
}

func (f *BrowserFetcher) render(ctx context.Context, url string) (string, error) {
	p, err := f.acquirePage(ctx)
	if err != nil {
		return "", err
	}
	defer f.recyclePage(p)

	page := p.Context(ctx)
	if f.timeout > 0 {
		page = page.Timeout(f.timeout)
	}

	// Deny disk downloads for this page; deprecated API but still honored.
	_ = proto.PageSetDownloadBehavior{
		Behavior: proto.PageSetDownloadBehaviorBehaviorDeny,
	}.Call(page)

	if err := page.Navigate(url); err != nil {
		if isNavigationAbortError(err) {
			return "", fmt.Errorf("navigation aborted: %w", err)
		}
		return "", err
	}
	if err := page.WaitLoad(); err != nil {
		return "", err
	}

	return page.HTML()
}

func (f *BrowserFetcher) acquirePage(ctx context.Context) (*rod.Page, error) {
	select {
	case p := <-f.pagePool:
		return p, nil
	default:
	}

	if err := f.addPage(); err != nil && !errors.Is(err, errPoolFull) {
		return nil, err
	}

	wait := f.timeout
	if wait <= 0 {
		wait = 30 * time.Second
	}
	select {
	case p := <-f.pagePool:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(wait):
		return nil, fmt.Errorf("timeout waiting for available page")
	}
}

var errPoolFull = errors.New("pool full")

func (f *BrowserFetcher) addPage() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pages >= f.size {
		return errPoolFull
	}
	if err := f.ensureBrowserLocked(); err != nil {
		return err
	}

	p, err := stealth.Page(f.browser)
	if err != nil {
		return fmt.Errorf("stealth page: %w", err)
	}
	f.pages++
	f.pagePool <- p
	return nil
}

func (f *BrowserFetcher) recyclePage(p *rod.Page) {
	if err := resetPage(p); err != nil {
		log.Debug("page reset failed, dropping", "err", err)
		_ = rod.Try(func() { _ = p.Close() })
		f.mu.Lock()
		f.pages--
		f.mu.Unlock()
		return
	}

	select {
	case f.pagePool <- p:
	default:
		_ = rod.Try(func() { _ = p.Close() })
		f.mu.Lock()
		f.pages--
		f.mu.Unlock()
	}
}

func resetPage(page *rod.Page) error {
	if err := (proto.NetworkClearBrowserCookies{}).Call(page); err != nil {
		return fmt.Errorf("clear cookies: %w", err)
	}
	if err := page.Navigate("about:blank"); err != nil {
		return fmt.Errorf("navigate blank: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait blank: %w", err)
	}
	return nil
}

/* ─────────────────────────────  browser lifecycle  ──────────────────────── */

func (f *BrowserFetcher) ensureBrowserLocked() error {
	if f.browser != nil {
		return nil
	}

	controlURL, err := launcher.New().
		Leakless(true).
		Headless(true).
		Set("disable-background-timer-throttling").
		Set("disable-renderer-backgrounding").
		Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	for i := 0; i < 5; i++ {
		if err = b.Connect(); err == nil {
			break
		}
		time.Sleep(time.Duration(250*(i+1)) * time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}

	log.Debug("Headless browser started")
	f.browser = b
	return nil
}

// Close shuts every pooled page and the browser down.
func (f *BrowserFetcher) Close() error {
	for {
		select {
		case p := <-f.pagePool:
			_ = rod.Try(func() { _ = p.Close() })
		default:
			f.mu.Lock()
			defer f.mu.Unlock()
			f.pages = 0
			if f.browser == nil {
				return nil
			}
			err := f.browser.Close()
			f.browser = nil
			return err
		}
	}
}

func isNavigationAbortError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, sig := range []string{"net::ERR_ABORTED", "NS_BINDING_ABORTED", "ERR_INTERNET_DISCONNECTED"} {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
