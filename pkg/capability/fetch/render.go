package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/chromedp/chromedp"
)

// DefaultUserAgent identifies page requests.
const DefaultUserAgent = "crew-scraper/1.0 (+https://github.com/jllopis/crew)"

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 5 << 20

// Page is a fetched resource before extraction.
type Page struct {
	URL         *url.URL
	ContentType string
	Body        string
}

// Renderer retrieves the raw content behind a URL.
type Renderer interface {
	Render(ctx context.Context, u *url.URL) (*Page, error)
}

// statusError reports a non-success HTTP status.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http status %d %s", e.code, http.StatusText(e.code))
}

func (e *statusError) transient() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// HTTPRenderer fetches pages with a plain HTTP GET.
type HTTPRenderer struct {
	Client    *http.Client
	UserAgent string
}

// Render implements Renderer.
func (r *HTTPRenderer) Render(ctx context.Context, u *url.URL) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	ua := r.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &statusError{code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(body)
	}
	final := u
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL
	}
	return &Page{URL: final, ContentType: ct, Body: string(body)}, nil
}

// BrowserRenderer loads pages in headless Chrome so client-side rendered
// content is present before extraction.
type BrowserRenderer struct {
	UserAgent string
	// WaitSelector is awaited before the DOM is captured. Defaults to "body".
	WaitSelector string
}

// Render implements Renderer.
func (r *BrowserRenderer) Render(ctx context.Context, u *url.URL) (*Page, error) {
	ua := r.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	wait := r.WaitSelector
	if wait == "" {
		wait = "body"
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent(ua),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(u.String()),
		chromedp.WaitReady(wait, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, err
	}
	return &Page{URL: u, ContentType: "text/html; charset=utf-8", Body: html}, nil
}

// mediaType returns the lowercased media type without parameters.
func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	return strings.ToLower(mt)
}
