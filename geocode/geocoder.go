// Package geocode resolves restaurant addresses to coordinates through a
// Nominatim-compatible search endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/aluiziolira/go-scrape-restaurants/config"
	"github.com/aluiziolira/go-scrape-restaurants/metrics"
	"github.com/aluiziolira/go-scrape-restaurants/models"
)

// Match is an accepted geocoding candidate.
type Match struct {
	Latitude    float64
	Longitude   float64
	Importance  float64
	DisplayName string
}

// Stats summarizes one Annotate call.
type Stats struct {
	Attempted int
	Geocoded  int
	Failed    int
	Skipped   int
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLimiter replaces the limiter that spaces out provider calls.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// Client geocodes free-form address queries. It is not safe for concurrent
// use; the pipeline drives it from a single goroutine.
type Client struct {
	cfg        config.GeocodeConfig
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *lru.Cache[string, cacheEntry]
	Metrics    *metrics.Metrics
}

type cacheEntry struct {
	match *Match
	err   error
}

type searchResult struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	Importance  float64 `json:"importance"`
	DisplayName string  `json:"display_name"`
}

// New builds a Client. A contact email is mandatory.
func New(cfg config.GeocodeConfig, m *metrics.Metrics, opts ...Option) (*Client, error) {
	cfg.Email = strings.TrimSpace(cfg.Email)
	if cfg.Email == "" {
		return nil, &config.ConfigError{Field: "geocode.email", Err: config.ErrMissingEmail}
	}
	endpoint, err := url.Parse(cfg.ProviderURL)
	if err != nil || endpoint.Host == "" {
		return nil, &config.ConfigError{Field: "geocode.provider_url", Err: fmt.Errorf("invalid url %q", cfg.ProviderURL)}
	}
	if cfg.Limit < 1 {
		cfg.Limit = 1
	}

	limit := rate.Inf
	if pause := cfg.Pause(); pause > 0 {
		limit = rate.Every(pause)
	}

	c := &Client{
		cfg:        cfg,
		endpoint:   endpoint.String(),
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		limiter:    rate.NewLimiter(limit, 1),
		Metrics:    m,
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, cacheEntry](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create geocode cache: %w", err)
		}
		c.cache = cache
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Geocode resolves one query. Repeated queries within a run are answered
// from the cache, including earlier non-matches.
func (c *Client) Geocode(ctx context.Context, query string) (*Match, error) {
	query = strings.Join(strings.Fields(query), " ")
	if query == "" {
		return nil, ErrNoAddress
	}
	key := strings.ToLower(query)

	if c.cache != nil {
		if entry, ok := c.cache.Get(key); ok {
			c.Metrics.IncGeocode("cache_hit")
			return entry.match, entry.err
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("geocode: wait for rate limit: %w", err)
	}

	start := time.Now()
	match, err := c.search(ctx, query)
	c.Metrics.ObserveGeocode(time.Since(start))

	switch {
	case err == nil:
		c.Metrics.IncGeocode("matched")
	case errors.Is(err, ErrNoMatch):
		c.Metrics.IncGeocode("no_match")
	default:
		c.Metrics.IncGeocode("error")
		return nil, err
	}

	if c.cache != nil {
		c.cache.Add(key, cacheEntry{match: match, err: err})
	}
	return match, err
}

func (c *Client) search(ctx context.Context, query string) (*Match, error) {
	params := url.Values{
		"format": {"jsonv2"},
		"q":      {query},
		"limit":  {strconv.Itoa(c.cfg.Limit)},
		"email":  {c.cfg.Email},
	}
	if cc := strings.TrimSpace(c.cfg.CountryCodes); cc != "" {
		params.Set("countrycodes", cc)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("geocode: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("From", c.cfg.Email)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode: provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("geocode: read body: %w", err)
	}

	var results []searchResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("geocode: parse response: %w", err)
	}
	return c.accept(results)
}

// accept returns the first candidate with usable coordinates whose
// importance reaches the configured threshold.
func (c *Client) accept(results []searchResult) (*Match, error) {
	for _, r := range results {
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(r.Lat), 64)
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(r.Lon), 64)
		if errLat != nil || errLon != nil {
			continue
		}
		if r.Importance < c.cfg.MinImportance {
			continue
		}
		return &Match{Latitude: lat, Longitude: lon, Importance: r.Importance, DisplayName: r.DisplayName}, nil
	}
	return nil, ErrNoMatch
}

// Annotate fills coordinates for records that lack them. Per-record
// failures are logged and leave the record unlocated; only cancellation
// stops the loop.
func (c *Client) Annotate(ctx context.Context, records []*models.Restaurant) (Stats, error) {
	var stats Stats
	for _, r := range records {
		if r == nil || r.HasCoordinates() {
			continue
		}
		query := r.GeocodeQuery()
		if query == "" {
			stats.Skipped++
			slog.Debug("skipping geocode, no address", slog.String("restaurant", r.Name))
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		stats.Attempted++
		match, err := c.Geocode(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Failed++
			gerr := &GeocodeError{Name: r.Name, Query: query, Err: err}
			slog.Warn("geocoding failed",
				slog.String("restaurant", r.Name),
				slog.String("url", r.URL),
				slog.Any("error", gerr),
			)
			continue
		}

		r.SetCoordinates(match.Latitude, match.Longitude)
		stats.Geocoded++
	}
	return stats, nil
}
