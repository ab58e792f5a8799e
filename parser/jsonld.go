package parser

import (
	"strings"

	"github.com/aluiziolira/go-scrape-restaurants/models"
)

var restaurantTypes = []string{"Restaurant", "FoodEstablishment"}

func extractJSONLD(p payload, opts Options) []*models.Restaurant {
	var out []*models.Restaurant
	for _, block := range p.structured {
		for _, entity := range jsonLDEntities(block) {
			if !hasType(entity, restaurantTypes...) {
				continue
			}
			if r := fromJSONLD(entity, opts); r != nil {
				out = append(out, r)
			}
		}
	}
	return out
}

// jsonLDEntities flattens a JSON-LD block into its candidate entities,
// descending into arrays, @graph and ItemList elements.
func jsonLDEntities(v any) []map[string]any {
	switch t := v.(type) {
	case []any:
		var out []map[string]any
		for _, item := range t {
			out = append(out, jsonLDEntities(item)...)
		}
		return out
	case map[string]any:
		out := []map[string]any{t}
		if graph, ok := t["@graph"]; ok {
			out = append(out, jsonLDEntities(graph)...)
		}
		if hasType(t, "ItemList") {
			elements, _ := t["itemListElement"].([]any)
			for _, el := range elements {
				m, ok := el.(map[string]any)
				if !ok {
					continue
				}
				if item, ok := m["item"]; ok {
					out = append(out, jsonLDEntities(item)...)
				} else {
					out = append(out, jsonLDEntities(m)...)
				}
			}
		}
		return out
	}
	return nil
}

func hasType(m map[string]any, want ...string) bool {
	var types []string
	switch t := m["@type"].(type) {
	case string:
		types = []string{t}
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				types = append(types, s)
			}
		}
	}
	for _, have := range types {
		for _, w := range want {
			if strings.EqualFold(strings.TrimSpace(have), w) {
				return true
			}
		}
	}
	return false
}

func fromJSONLD(m map[string]any, opts Options) *models.Restaurant {
	name := stringValue(lookup(m, "name"))
	link := ResolveURL(opts.BaseURL, stringValue(lookup(m, "url", "@id")))
	if name == "" || link == "" {
		return nil
	}

	r := models.NewRestaurant(name, link, opts.ScrapedAt)
	r.Description = stringValue(lookup(m, "description", "disambiguatingDescription"))

	switch addr := lookup(m, "address").(type) {
	case string:
		r.Address = NormalizeText(addr)
	default:
		if a := firstMap(addr); a != nil {
			r.Address = stringValue(lookup(a, "streetAddress"))
			r.City = stringValue(lookup(a, "addressLocality"))
			r.PostalCode = stringValue(lookup(a, "postalCode"))
			switch c := lookup(a, "addressCountry").(type) {
			case string:
				r.Country = NormalizeText(c)
			case map[string]any:
				if name := stringValue(lookup(c, "name")); name != "" {
					r.Country = name
				}
			}
		}
	}

	if agg := firstMap(lookup(m, "aggregateRating")); agg != nil {
		r.Rating = floatValue(lookup(agg, "ratingValue"))
		r.ReviewCount = intValue(lookup(agg, "reviewCount", "ratingCount"))
	}

	r.PriceRange = priceRange(m)
	r.Tags = NormalizeTags(
		stringList(lookup(m, "servesCuisine")),
		stringList(lookup(m, "category")),
		keywords(lookup(m, "keywords")),
	)

	geo := firstMap(lookup(m, "geo"))
	if geo == nil {
		geo = m
	}
	lat, lon := floatValue(lookup(geo, "latitude")), floatValue(lookup(geo, "longitude"))
	if lat != nil && lon != nil {
		r.SetCoordinates(*lat, *lon)
	}
	return r
}

// priceRange prefers an explicit offer price over the free-text priceRange.
func priceRange(m map[string]any) string {
	if offer := firstMap(lookup(m, "offers")); offer != nil {
		price := stringValue(lookup(offer, "price"))
		if price != "" {
			if currency := stringValue(lookup(offer, "priceCurrency")); currency != "" {
				return price + " " + currency
			}
			return price
		}
	}
	return stringValue(lookup(m, "priceRange"))
}

func keywords(v any) []string {
	s, ok := v.(string)
	if !ok {
		return stringList(v)
	}
	return strings.Split(s, ",")
}
