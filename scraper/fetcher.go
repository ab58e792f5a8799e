// Package scraper fetches paginated listing pages from the restaurant site.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-restaurants/config"
	"github.com/aluiziolira/go-scrape-restaurants/metrics"
	"github.com/aluiziolira/go-scrape-restaurants/models"
)

// AcceptLanguage matches what a Dutch browser sends; the site localises
// listing content on it.
const AcceptLanguage = "nl-NL,nl;q=0.9,en;q=0.8"

// Fetcher issues sequential GET requests against the paginated listing
// endpoint through a synchronous colly collector.
type Fetcher struct {
	cfg       config.FetchConfig
	listURL   *url.URL
	collector *colly.Collector
	transport *contextTransport
	Metrics   *metrics.Metrics

	// last is written by the collector callbacks during a Visit. The
	// collector is synchronous, so only one request is ever in flight.
	last visitResult
}

type visitResult struct {
	statusCode int
	body       []byte
	err        error
}

// NewFetcher builds a fetcher configured from cfg. m may be nil.
func NewFetcher(cfg config.FetchConfig, m *metrics.Metrics) (*Fetcher, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(hostVariants(base.Hostname())...),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)

	timeout := cfg.Timeout()
	collector.SetRequestTimeout(timeout)
	collector.IgnoreRobotsTxt = true
	transport := &contextTransport{base: &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}}
	collector.WithTransport(transport)

	f := &Fetcher{
		cfg:       cfg,
		listURL:   base.ResolveReference(&url.URL{Path: cfg.ListPath}),
		collector: collector,
		transport: transport,
		Metrics:   m,
	}
	f.configureHandlers()
	return f, nil
}

// WithTransport replaces the HTTP round tripper used for listing requests.
// Requests still carry the context passed to Fetch.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.transport.base = rt
}

// hostVariants allows redirects between the bare and www forms of host.
func hostVariants(host string) []string {
	if net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return []string{host}
	}
	if bare, ok := strings.CutPrefix(host, "www."); ok {
		return []string{host, bare}
	}
	return []string{host, "www." + host}
}

// ListingURL returns the absolute URL of a listing page. Page 1 carries no
// page parameter; the city filter maps to the site's "plaats" parameter.
func (f *Fetcher) ListingURL(page int) string {
	u := *f.listURL
	query := url.Values{}
	if page > 1 {
		query.Set("page", strconv.Itoa(page))
	}
	if f.cfg.City != "" {
		query.Set("plaats", f.cfg.City)
	}
	u.RawQuery = query.Encode()
	return u.String()
}

// Fetch retrieves a single listing page.
func (f *Fetcher) Fetch(ctx context.Context, page int) (*models.ListingPage, error) {
	pageURL := f.ListingURL(page)
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{URL: pageURL, Page: page, Err: err}
	}

	slog.Debug("fetching listing page", slog.Int("page", page), slog.String("url", pageURL))

	f.last = visitResult{}
	f.transport.ctx = ctx
	err := f.collector.Visit(pageURL)
	f.transport.ctx = nil
	result := f.last
	if err == nil {
		err = result.err
	}
	if err != nil {
		fetchErr := &FetchError{URL: pageURL, Page: page, StatusCode: result.statusCode, Err: err}
		f.Metrics.IncFetchError(fetchErr.Category())
		return nil, fetchErr
	}

	return &models.ListingPage{
		URL:        pageURL,
		PageNumber: page,
		StatusCode: result.statusCode,
		Body:       result.body,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

// Pages yields listing pages 1..MaxPages lazily, pausing between
// successive requests. Iteration stops at the first error, which is
// yielded with a nil page.
func (f *Fetcher) Pages(ctx context.Context) iter.Seq2[*models.ListingPage, error] {
	return func(yield func(*models.ListingPage, error) bool) {
		for page := 1; page <= f.cfg.MaxPages; page++ {
			if page > 1 {
				if err := pause(ctx, f.cfg.Pause()); err != nil {
					yield(nil, &FetchError{URL: f.ListingURL(page), Page: page, Err: err})
					return
				}
			}
			listing, err := f.Fetch(ctx, page)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(listing, nil) {
				return
			}
		}
	}
}

func (f *Fetcher) configureHandlers() {
	f.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
		r.Headers.Set("Accept-Language", AcceptLanguage)
	})

	// Error statuses reach OnResponse too; any 2xx is a success.
	f.collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode < http.StatusOK || r.StatusCode >= http.StatusMultipleChoices {
			f.fail(r, errors.New(http.StatusText(r.StatusCode)))
			return
		}
		f.observe(r)
		f.last.statusCode = r.StatusCode
		f.last.body = r.Body
	})

	f.collector.OnError(f.fail)
}

func (f *Fetcher) fail(r *colly.Response, err error) {
	statusCode := 0
	if r != nil {
		statusCode = r.StatusCode
		if statusCode != 0 {
			f.observe(r)
		}
	}
	f.last.statusCode = statusCode
	f.last.err = err

	pageURL := ""
	if r != nil && r.Request != nil && r.Request.URL != nil {
		pageURL = r.Request.URL.String()
	}
	slog.Error("listing request error",
		slog.String("url", pageURL),
		slog.Int("status", statusCode),
		slog.String("category", errorTypeLabel(classifyError(err, statusCode))),
		slog.Any("error", err),
	)
}

func (f *Fetcher) observe(r *colly.Response) {
	if f.Metrics == nil {
		return
	}
	f.Metrics.IncRequest(r.StatusCode)
	if r.Request == nil || r.Request.Ctx == nil {
		return
	}
	if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
		f.Metrics.ObserveDuration(time.Since(start))
	}
}

// contextTransport cancels each request when the context of the Fetch call
// in progress is done, so cancellation also aborts a request in flight. The
// request keeps its own context and with it the client timeout.
type contextTransport struct {
	base http.RoundTripper
	ctx  context.Context
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.ctx == nil {
		return t.base.RoundTrip(req)
	}

	ctx, cancel := context.WithCancel(req.Context())
	stop := context.AfterFunc(t.ctx, cancel)
	release := func() {
		stop()
		cancel()
	}

	resp, err := t.base.RoundTrip(req.WithContext(ctx))
	if err != nil {
		release()
		return nil, err
	}
	resp.Body = &releaseOnClose{ReadCloser: resp.Body, release: release}
	return resp, nil
}

type releaseOnClose struct {
	io.ReadCloser
	release func()
}

func (b *releaseOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.release()
	return err
}

// pause blocks for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	slog.Debug("pausing between requests", slog.Duration("pause", d))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
