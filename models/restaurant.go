// Package models defines data structures for the scraper.
package models

import (
	"strings"
	"time"
)

const (
	// Source tags every record with the site it was scraped from.
	Source = "diner-cadeau"
	// DefaultCountry is used when a listing carries no country.
	DefaultCountry = "Netherlands"
)

// Restaurant is one normalized listing and one row of the exported table.
type Restaurant struct {
	Name                  string    `csv:"name" json:"name"`
	URL                   string    `csv:"url" json:"url"`
	City                  string    `csv:"city" json:"city,omitempty"`
	Address               string    `csv:"address" json:"address,omitempty"`
	PostalCode            string    `csv:"postal_code" json:"postal_code,omitempty"`
	Country               string    `csv:"country" json:"country"`
	Description           string    `csv:"description" json:"description,omitempty"`
	Tags                  []string  `csv:"tags" json:"tags,omitempty"`
	PriceRange            string    `csv:"price_range" json:"price_range,omitempty"`
	Rating                *float64  `csv:"rating" json:"rating,omitempty"`
	ReviewCount           *int      `csv:"review_count" json:"review_count,omitempty"`
	Latitude              *float64  `csv:"latitude" json:"latitude,omitempty"`
	Longitude             *float64  `csv:"longitude" json:"longitude,omitempty"`
	DistanceKMFromUtrecht *float64  `csv:"distance_km_from_utrecht" json:"distance_km_from_utrecht,omitempty"`
	Source                string    `csv:"source" json:"source"`
	ScrapedAt             time.Time `csv:"scraped_at" json:"scraped_at"`
}

// NewRestaurant returns a record with the constant fields filled in.
func NewRestaurant(name, url string, scrapedAt time.Time) *Restaurant {
	return &Restaurant{
		Name:      name,
		URL:       url,
		Country:   DefaultCountry,
		Source:    Source,
		ScrapedAt: scrapedAt.UTC(),
	}
}

// HasCoordinates reports whether both latitude and longitude are known.
func (r *Restaurant) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// SetCoordinates stores a latitude/longitude pair.
func (r *Restaurant) SetCoordinates(lat, lon float64) {
	r.Latitude = &lat
	r.Longitude = &lon
}

// DedupKey identifies the record within a run.
func (r *Restaurant) DedupKey() string {
	if key := strings.ToLower(strings.TrimSpace(r.URL)); key != "" {
		return key
	}
	return strings.ToLower(strings.TrimSpace(r.Name))
}

// GeocodeQuery builds a free-form address query, or "" when there is
// nothing more specific than the country to look up.
func (r *Restaurant) GeocodeQuery() string {
	parts := make([]string, 0, 4)
	for _, part := range []string{r.Address, r.PostalCode, r.City} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	if country := strings.TrimSpace(r.Country); country != "" {
		parts = append(parts, country)
	}
	return strings.Join(parts, ", ")
}

// ListingPage is one raw page fetched from the listing endpoint.
type ListingPage struct {
	URL        string
	PageNumber int
	StatusCode int
	Body       []byte
	FetchedAt  time.Time
}

// RunResult holds the overall result of a scraping run.
type RunResult struct {
	RunID           string
	Restaurants     []*Restaurant
	StartTime       time.Time
	EndTime         time.Time
	PageCount       int
	ParsedCount     int
	DuplicateCount  int
	InvalidCount    int
	ParseErrors     []string
	GeocodeAttempts int
	Geocoded        int
	GeocodeFailures int
	WithDistance    int
}
