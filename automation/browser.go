package automation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// BrowserFetcher downloads feed files by clicking the download control next
// to the file name on a chain's listing page, for sites that only serve files
// to a real browser session.
type BrowserFetcher struct {
	PageURL  string
	Headless bool

	mu      sync.Mutex
	browser *rod.Browser
}

func NewBrowserFetcher(pageURL string, headless bool) *BrowserFetcher {
	return &BrowserFetcher{PageURL: pageURL, Headless: headless}
}

func (f *BrowserFetcher) connect() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser != nil {
		return f.browser, nil
	}

	// Leakless(false) keeps security software from killing the helper.
	u, err := launcher.New().
		Headless(f.Headless).
		Leakless(false).
		Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	f.browser = b
	return b, nil
}

// Fetch opens the listing page and waits for the file's download. The whole
// exchange is bound to ctx.
func (f *BrowserFetcher) Fetch(ctx context.Context, filename string) ([]byte, error) {
	if f.PageURL == "" {
		return nil, errors.New("browser fetcher has no page URL")
	}
	browser, err := f.connect()
	if err != nil {
		return nil, err
	}

	log.Infof("browser download of %s from %s", filename, f.PageURL)
	var data []byte
	err = rod.Try(func() {
		b := browser.Context(ctx)
		page := b.MustPage(f.PageURL)
		defer page.Close()
		page.MustWaitStable()

		row := page.MustElementR("tr", regexp.QuoteMeta(filename))
		wait := b.MustWaitDownload()
		row.MustElement("button, a").MustClick()
		data = wait()
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("download of %s: %w", filename, ctxErr)
		}
		return nil, fmt.Errorf("download of %s failed: %w", filename, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("download of %s is empty", filename)
	}
	return data, nil
}

func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	f.browser = nil
	return err
}
