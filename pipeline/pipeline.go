// Package pipeline runs the extract-transform-load sequence and writes the
// resulting table.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-restaurants/geo"
	"github.com/aluiziolira/go-scrape-restaurants/geocode"
	"github.com/aluiziolira/go-scrape-restaurants/metrics"
	"github.com/aluiziolira/go-scrape-restaurants/models"
	"github.com/aluiziolira/go-scrape-restaurants/parser"
)

// ErrPipelineUsed is returned when Run is called a second time.
var ErrPipelineUsed = errors.New("pipeline: already run")

// OutputWriter defines the interface for data output. Close publishes the
// output; Discard abandons it and leaves any previous output in place.
type OutputWriter interface {
	Write(restaurants []*models.Restaurant) error
	Close() error
	Discard() error
	Validate() error
}

// PageSource yields listing pages in order, stopping after the first error.
type PageSource interface {
	Pages(ctx context.Context) iter.Seq2[*models.ListingPage, error]
}

// Geocoder fills coordinates for records that lack them.
type Geocoder interface {
	Annotate(ctx context.Context, records []*models.Restaurant) (geocode.Stats, error)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithGeocoder enables the geocoding stage.
func WithGeocoder(g Geocoder) Option {
	return func(p *Pipeline) {
		p.geocoder = g
	}
}

// WithMetrics records stage counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.prom = m
	}
}

// WithBaseURL sets the base used to resolve relative listing URLs.
func WithBaseURL(base string) Option {
	return func(p *Pipeline) {
		p.baseURL = base
	}
}

// WithRunID tags the result and log lines with an identifier.
func WithRunID(id string) Option {
	return func(p *Pipeline) {
		p.runID = id
	}
}

// Pipeline coordinates parsing, validation, de-duplication, enrichment and
// output writing. It runs on the caller's goroutine.
type Pipeline struct {
	source   PageSource
	writer   OutputWriter
	geocoder Geocoder
	prom     *metrics.Metrics
	baseURL  string
	runID    string
	now      func() time.Time

	seen    map[string]struct{}
	metrics counters

	mu   sync.Mutex
	used bool
}

// NewPipeline wires a page source to a writer.
func NewPipeline(source PageSource, writer OutputWriter, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:  source,
		writer:  writer,
		now:     time.Now,
		seen:    make(map[string]struct{}),
		metrics: newCounters(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run fetches every page, builds the de-duplicated record list, enriches it
// and writes it once. A fetch, write or cancellation error aborts the run
// before anything is written; the partial result is still returned.
func (p *Pipeline) Run(ctx context.Context) (*models.RunResult, error) {
	p.mu.Lock()
	if p.used {
		p.mu.Unlock()
		return nil, ErrPipelineUsed
	}
	p.used = true
	p.mu.Unlock()

	result := &models.RunResult{RunID: p.runID, StartTime: p.now()}
	log := slog.With(slog.String("run_id", p.runID))

	var records []*models.Restaurant
	for page, err := range p.source.Pages(ctx) {
		if err != nil {
			return p.finish(result), err
		}
		result.PageCount++

		parsed, err := parser.Parse(page.Body, parser.Options{
			BaseURL:    p.baseURL,
			PageURL:    page.URL,
			PageNumber: page.PageNumber,
			ScrapedAt:  page.FetchedAt,
		})
		if err != nil {
			p.prom.IncParseError()
			result.ParseErrors = append(result.ParseErrors, err.Error())
			log.Warn("skipping page",
				slog.Int("page", page.PageNumber),
				slog.String("url", page.URL),
				slog.Any("error", err),
			)
			continue
		}

		p.prom.AddParsed(parsed.Strategy.String(), len(parsed.Restaurants))
		result.ParsedCount += len(parsed.Restaurants)
		kept := 0
		for _, r := range parsed.Restaurants {
			if prepared := p.prepare(r); prepared != nil {
				records = append(records, prepared)
				kept++
			}
		}
		log.Info("page parsed",
			slog.Int("page", page.PageNumber),
			slog.String("strategy", parsed.Strategy.String()),
			slog.Int("records", len(parsed.Restaurants)),
			slog.Int("new", kept),
		)
	}

	if err := ctx.Err(); err != nil {
		return p.finish(result), err
	}

	if p.geocoder != nil {
		stats, err := p.geocoder.Annotate(ctx, records)
		result.GeocodeAttempts = stats.Attempted
		result.Geocoded = stats.Geocoded
		result.GeocodeFailures = stats.Failed
		if err != nil {
			return p.finish(result), fmt.Errorf("geocode: %w", err)
		}
		log.Info("geocoding finished",
			slog.Int("attempted", stats.Attempted),
			slog.Int("geocoded", stats.Geocoded),
			slog.Int("failed", stats.Failed),
			slog.Int("skipped", stats.Skipped),
		)
	}

	result.WithDistance = geo.AnnotateDistances(records)

	if err := p.writer.Write(records); err != nil {
		return p.finish(result), fmt.Errorf("write records: %w", err)
	}
	p.prom.AddExported(len(records))

	result.Restaurants = records
	return p.finish(result), nil
}

// finish copies the drop counters into result and stamps the end time.
func (p *Pipeline) finish(result *models.RunResult) *models.RunResult {
	snapshot := p.metrics.snapshot()
	result.DuplicateCount = snapshot.Validation["duplicate_url"]
	result.InvalidCount = snapshot.Validation["invalid_record"]
	result.EndTime = p.now()
	return result
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() Snapshot {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs until ctx is done.
func (p *Pipeline) StartMetricsReporting(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s := p.GetMetrics()
				slog.Info("pipeline progress",
					slog.Int64("processed", s.Processed),
					slog.Any("validation_errors", s.Validation),
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (p *Pipeline) prepare(r *models.Restaurant) *models.Restaurant {
	if err := parser.ValidateRestaurant(r); err != nil {
		p.metrics.addValidation("invalid_record")
		p.prom.IncDropped("invalid_record")
		slog.Debug("dropping invalid record", slog.Any("error", err))
		return nil
	}

	key := r.DedupKey()
	if _, ok := p.seen[key]; ok {
		p.metrics.addValidation("duplicate_url")
		p.prom.IncDropped("duplicate_url")
		return nil
	}
	p.seen[key] = struct{}{}

	r.Tags = parser.NormalizeTags(r.Tags)
	p.metrics.incrementProcessed()
	return r
}

// Snapshot is a point-in-time copy of the pipeline counters.
type Snapshot struct {
	Processed  int64
	Validation map[string]int
}

type counters struct {
	mu         sync.Mutex
	processed  int64
	validation map[string]int
}

func newCounters() counters {
	return counters{
		validation: make(map[string]int),
	}
}

func (c *counters) incrementProcessed() {
	c.mu.Lock()
	c.processed++
	c.mu.Unlock()
}

func (c *counters) addValidation(kind string) {
	c.mu.Lock()
	c.validation[kind]++
	c.mu.Unlock()
}

func (c *counters) snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	validation := make(map[string]int, len(c.validation))
	for k, v := range c.validation {
		validation[k] = v
	}
	return Snapshot{Processed: c.processed, Validation: validation}
}
