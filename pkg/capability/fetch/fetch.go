// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package fetch implements the scrape_website capability: it retrieves a page
// and returns its readable text.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jllopis/crew/pkg/capability"
	"github.com/jllopis/crew/pkg/core"
	"github.com/jllopis/crew/pkg/resilience"
)

const (
	// Name is the capability name agents call.
	Name = "scrape_website"

	DefaultTimeout  = 15 * time.Second
	DefaultMaxChars = 20000
)

const description = "Fetch the web page at the given URL and return its readable text, " +
	"preceded by the page title, author and source when known. Input: an absolute http(s) URL."

// Capability fetches pages and extracts their text.
type Capability struct {
	renderer Renderer
	timeout  time.Duration
	maxChars int
	retry    resilience.RetryConfig
	cache    *lru.Cache[string, string]
	logger   *slog.Logger

	client    *http.Client
	userAgent string
	browser   bool
}

// Option configures the capability.
type Option func(*Capability) error

// WithTimeout bounds each fetch attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Capability) error {
		if d < 0 {
			return fmt.Errorf("timeout must be positive")
		}
		c.timeout = d
		return nil
	}
}

// WithMaxChars caps the extracted text length in characters. Zero disables it.
func WithMaxChars(n int) Option {
	return func(c *Capability) error {
		if n < 0 {
			return fmt.Errorf("max chars must be >= 0")
		}
		c.maxChars = n
		return nil
	}
}

// WithRetry sets the retry policy for unreachable pages. The recoverable
// predicate is always replaced by the capability's own.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Capability) error {
		c.retry = cfg
		return nil
	}
}

// WithAttempts sets the total number of attempts per fetch.
func WithAttempts(n int) Option {
	return func(c *Capability) error {
		if n < 1 {
			return fmt.Errorf("attempts must be >= 1")
		}
		c.retry = c.retry.WithMaxAttempts(n)
		return nil
	}
}

// WithCache keeps up to size successful extractions keyed by URL.
func WithCache(size int) Option {
	return func(c *Capability) error {
		if size <= 0 {
			c.cache = nil
			return nil
		}
		cache, err := lru.New[string, string](size)
		if err != nil {
			return err
		}
		c.cache = cache
		return nil
	}
}

// WithHTTPClient sets the client used by the HTTP renderer.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Capability) error {
		c.client = client
		return nil
	}
}

// WithUserAgent sets the User-Agent sent with page requests.
func WithUserAgent(ua string) Option {
	return func(c *Capability) error {
		c.userAgent = ua
		return nil
	}
}

// WithBrowser renders pages in headless Chrome instead of a plain GET.
func WithBrowser() Option {
	return func(c *Capability) error {
		c.browser = true
		return nil
	}
}

// WithRenderer replaces the page renderer.
func WithRenderer(r Renderer) Option {
	return func(c *Capability) error {
		if r == nil {
			return fmt.Errorf("renderer is nil")
		}
		c.renderer = r
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Capability) error {
		if l != nil {
			c.logger = l
		}
		return nil
	}
}

// New builds the scrape_website capability.
func New(opts ...Option) (*Capability, error) {
	c := &Capability{
		timeout:  DefaultTimeout,
		maxChars: DefaultMaxChars,
		retry:    resilience.DefaultRetryConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.renderer == nil {
		if c.browser {
			c.renderer = &BrowserRenderer{UserAgent: c.userAgent}
		} else {
			c.renderer = &HTTPRenderer{Client: c.client, UserAgent: c.userAgent}
		}
	}
	c.retry = c.retry.WithIsRecoverable(transient)
	return c, nil
}

func (c *Capability) Name() string        { return Name }
func (c *Capability) Description() string { return description }

// Invoke fetches argument, a URL, and returns its formatted text. Failures are
// *capability.Error values.
func (c *Capability) Invoke(ctx context.Context, argument string) (string, error) {
	raw := strings.TrimSpace(argument)
	u, err := parseURL(raw)
	if err != nil {
		return "", capability.Unsupported(Name, raw, err)
	}
	key := u.String()
	if c.cache != nil {
		if text, ok := c.cache.Get(key); ok {
			c.logger.DebugContext(ctx, "fetch.cache.hit", slog.String("url", key))
			return text, nil
		}
	}

	retry := c.retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		c.logger.InfoContext(ctx, "fetch.retry",
			slog.String("url", key),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
	})
	text, err := resilience.Retry(ctx, retry, func(ctx context.Context) (string, error) {
		return c.fetchOnce(ctx, u)
	})
	if err != nil {
		if _, ok := capability.KindOf(err); !ok {
			// cancelled while backing off
			err = capability.Unreachable(Name, key, err)
		}
		return "", err
	}
	if c.cache != nil {
		c.cache.Add(key, text)
	}
	return text, nil
}

func (c *Capability) fetchOnce(ctx context.Context, u *url.URL) (string, error) {
	key := u.String()
	page, err := resilience.WithTimeout(ctx, c.timeout, func(ctx context.Context) (*Page, error) {
		return c.renderer.Render(ctx, u)
	})
	if err != nil {
		return "", capability.Unreachable(Name, key, err)
	}
	mt := mediaType(page.ContentType)
	extract := extractorFor(mt)
	if extract == nil {
		return "", capability.Unsupported(Name, key, fmt.Errorf("content type %q is not text", mt))
	}
	ex, err := extract(page)
	if err != nil || ex.Text == "" {
		return "", capability.Empty(Name, key)
	}
	if ex.Source == "" {
		ex.Source = key
	}
	ex.Text = truncate(ex.Text, c.maxChars)
	return ex.Format(), nil
}

func parseURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, errors.New("url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("scheme %q is not supported", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("url has no host")
	}
	u.Fragment = ""
	return u, nil
}

// transient reports whether a failed attempt is worth repeating: network
// failures, timeouts, 429 and 5xx responses.
func transient(err error) bool {
	kind, ok := capability.KindOf(err)
	if !ok || kind != capability.KindUnreachable {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.transient()
	}
	return !errors.Is(err, context.Canceled)
}

var _ core.Capability = (*Capability)(nil)
