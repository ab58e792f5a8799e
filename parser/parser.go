// Package parser extracts restaurant records from listing page payloads.
//
// Two strategies are tried in order: embedded JSON-LD structured data, then
// the client-side framework's bootstrap payload (window.__NUXT__ or
// application/json script blocks). The first strategy yielding records wins.
package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-restaurants/models"
)

// Strategy identifies which extraction path produced a page's records.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyJSONLD
	StrategyBootstrap
)

func (s Strategy) String() string {
	switch s {
	case StrategyJSONLD:
		return "jsonld"
	case StrategyBootstrap:
		return "bootstrap"
	default:
		return "none"
	}
}

// Options carries page context into the parser.
type Options struct {
	// BaseURL resolves relative listing URLs.
	BaseURL    string
	PageURL    string
	PageNumber int
	// ScrapedAt stamps every record; zero means time.Now.
	ScrapedAt time.Time
}

// Result is the outcome of parsing one page.
type Result struct {
	Strategy    Strategy
	Restaurants []*models.Restaurant
}

// payload holds the decoded JSON blocks of a page, split by strategy.
type payload struct {
	structured []any
	bootstrap  []any
}

type strategy struct {
	kind    Strategy
	extract func(p payload, opts Options) []*models.Restaurant
}

var strategies = []strategy{
	{kind: StrategyJSONLD, extract: extractJSONLD},
	{kind: StrategyBootstrap, extract: extractBootstrap},
}

var nuxtAssignment = regexp.MustCompile(`(?s)window\.__NUXT__\s*=\s*(\{.*\})`)

// Parse extracts restaurants from a raw HTML or JSON page body. It returns a
// *ParseError when neither strategy yields a record.
func Parse(body []byte, opts Options) (*Result, error) {
	if opts.ScrapedAt.IsZero() {
		opts.ScrapedAt = time.Now()
	}

	p, err := decodePayload(body, opts)
	if err != nil {
		return nil, &ParseError{PageURL: opts.PageURL, PageNumber: opts.PageNumber, Err: err}
	}

	for _, s := range strategies {
		restaurants := s.extract(p, opts)
		if len(restaurants) == 0 {
			continue
		}
		slog.Debug("extracted restaurants",
			slog.String("strategy", s.kind.String()),
			slog.Int("count", len(restaurants)),
			slog.String("url", opts.PageURL),
		)
		return &Result{Strategy: s.kind, Restaurants: restaurants}, nil
	}

	return nil, &ParseError{PageURL: opts.PageURL, PageNumber: opts.PageNumber, Err: ErrNoListings}
}

func decodePayload(body []byte, opts Options) (payload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		data, err := decodeJSON(string(trimmed))
		if err != nil {
			return payload{}, fmt.Errorf("decode json body: %w", err)
		}
		return payload{structured: []any{data}, bootstrap: []any{data}}, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return payload{}, fmt.Errorf("read html: %w", err)
	}

	var p payload
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		scriptType := strings.ToLower(strings.TrimSpace(s.AttrOr("type", "")))

		switch {
		case scriptType == "application/ld+json":
			data, err := decodeJSON(text)
			if err != nil {
				slog.Debug("skipping undecodable ld+json block", slog.String("url", opts.PageURL), slog.Any("error", err))
				return
			}
			p.structured = append(p.structured, data)
		case scriptType == "application/json":
			data, err := decodeJSON(text)
			if err != nil {
				slog.Debug("skipping undecodable json script block", slog.String("url", opts.PageURL), slog.Any("error", err))
				return
			}
			p.bootstrap = append(p.bootstrap, data)
		default:
			m := nuxtAssignment.FindStringSubmatch(text)
			if m == nil {
				return
			}
			data, err := decodeJSON(m[1])
			if err != nil {
				slog.Debug("skipping undecodable window.__NUXT__ payload", slog.String("url", opts.PageURL), slog.Any("error", err))
				return
			}
			p.bootstrap = append(p.bootstrap, data)
		}
	})
	return p, nil
}

func decodeJSON(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	return data, nil
}

// ValidateRestaurant ensures the parser captured the required fields.
func ValidateRestaurant(r *models.Restaurant) error {
	if r == nil {
		return fmt.Errorf("restaurant is nil")
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("restaurant missing name (url %q)", r.URL)
	}
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("restaurant missing url for %s", r.Name)
	}
	return nil
}
