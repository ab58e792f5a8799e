package parser

import (
	"github.com/aluiziolira/go-scrape-restaurants/models"
)

var (
	nameKeys     = []string{"name", "title"}
	linkKeys     = []string{"slug", "url", "link", "permalink"}
	locationKeys = []string{"address", "location", "city", "plaats"}
)

func extractBootstrap(p payload, opts Options) []*models.Restaurant {
	seen := make(map[string]struct{})
	var out []*models.Restaurant
	for _, block := range p.bootstrap {
		for _, candidate := range bootstrapCandidates(block) {
			r := fromBootstrap(candidate, opts)
			if r == nil {
				continue
			}
			key := r.DedupKey()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// bootstrapCandidates walks the payload depth-first in document order and
// returns every object that looks like a restaurant listing.
func bootstrapCandidates(root any) []map[string]any {
	var out []map[string]any
	stack := []any{root}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch t := cur.(type) {
		case map[string]any:
			if looksLikeRestaurant(t) {
				out = append(out, t)
			}
			keys := sortedKeys(t)
			for i := len(keys) - 1; i >= 0; i-- {
				stack = append(stack, t[keys[i]])
			}
		case []any:
			for i := len(t) - 1; i >= 0; i-- {
				stack = append(stack, t[i])
			}
		}
	}
	return out
}

func looksLikeRestaurant(m map[string]any) bool {
	return hasAnyKey(m, nameKeys) && hasAnyKey(m, linkKeys) && hasAnyKey(m, locationKeys)
}

func hasAnyKey(m map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func fromBootstrap(m map[string]any, opts Options) *models.Restaurant {
	name := stringValue(lookup(m, nameKeys...))
	link := ResolveURL(opts.BaseURL, bootstrapLink(lookup(m, "url", "permalink", "link", "slug")))
	if name == "" || link == "" {
		return nil
	}

	r := models.NewRestaurant(name, link, opts.ScrapedAt)
	r.Description = stringValue(lookup(m, "excerpt", "description", "intro"))
	r.Tags = NormalizeTags(
		stringList(lookup(m, "categories")),
		stringList(lookup(m, "labels")),
		stringList(lookup(m, "tags")),
		stringList(lookup(m, "cuisines")),
	)
	r.Rating = floatValue(lookup(m, "rating", "score", "averageRating"))
	r.ReviewCount = intValue(lookup(m, "reviews", "review_count", "reviewCount", "ratingCount"))
	r.PriceRange = stringValue(lookup(m, "price_range", "priceRange", "price"))

	// Location fields live in a nested object when present, else on the
	// entry itself.
	scopes := []map[string]any{firstMap(lookup(m, "location", "address")), m}
	field := func(keys ...string) any {
		for _, scope := range scopes {
			if v := lookup(scope, keys...); v != nil {
				return v
			}
		}
		return nil
	}

	r.City = stringValue(field("city", "plaats"))
	r.Address = stringValue(field("address", "street", "streetAddress"))
	r.PostalCode = stringValue(field("postal_code", "postalCode", "zip", "zipcode"))
	if country := stringValue(field("country")); country != "" {
		r.Country = country
	}

	lat, lon := floatValue(field("lat", "latitude")), floatValue(field("lng", "lon", "longitude"))
	if lat != nil && lon != nil {
		r.SetCoordinates(*lat, *lon)
	}
	return r
}

// bootstrapLink reads a link that may be a plain string, an object with an
// href, or a list of either.
func bootstrapLink(v any) string {
	switch t := v.(type) {
	case map[string]any:
		return stringValue(lookup(t, "href", "url"))
	case []any:
		for _, item := range t {
			if s := bootstrapLink(item); s != "" {
				return s
			}
		}
		return ""
	}
	return stringValue(v)
}
