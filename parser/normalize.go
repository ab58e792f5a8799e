package parser

import (
	"encoding/json"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeTags merges tag lists into one: whitespace is collapsed, empty
// tags are dropped and case-insensitive duplicates are removed, keeping the
// first spelling seen.
func NormalizeTags(lists ...[]string) []string {
	folder := cases.Fold()
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, tag := range list {
			tag = norm.NFC.String(strings.Join(strings.Fields(tag), " "))
			if tag == "" {
				continue
			}
			key := folder.String(tag)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}

// NormalizeText collapses runs of whitespace and trims the result.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ResolveURL makes ref absolute against base. Absolute refs pass through.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if u.IsAbs() {
		return u.String()
	}
	b, err := url.Parse(strings.TrimRight(base, "/") + "/")
	if err != nil || base == "" {
		return ref
	}
	return b.ResolveReference(u).String()
}

// lookup returns the first non-empty value stored under one of keys.
func lookup(m map[string]any, keys ...string) any {
	if m == nil {
		return nil
	}
	for _, key := range keys {
		v, ok := m[key]
		if !ok || isEmpty(v) {
			continue
		}
		return v
	}
	return nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	case bool:
		return !t
	}
	return false
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return NormalizeText(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

// floatValue accepts JSON numbers and numeric strings, including a decimal
// comma.
func floatValue(v any) *float64 {
	var f float64
	var err error
	switch t := v.(type) {
	case json.Number:
		f, err = t.Float64()
	case float64:
		f = t
	case string:
		f, err = strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(t), ",", "."), 64)
	default:
		return nil
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func intValue(v any) *int {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			i := int(n)
			return &i
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return &n
		}
	}
	f := floatValue(v)
	if f == nil || *f != math.Trunc(*f) {
		return nil
	}
	i := int(*f)
	return &i
}

// stringList flattens a string, a list of strings or named objects, or a map
// of either into a list of tag candidates.
func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case json.Number:
		return []string{t.String()}
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, stringList(item)...)
		}
		return out
	case map[string]any:
		if name := lookup(t, "name", "title", "label"); name != nil {
			return stringList(name)
		}
		var out []string
		for _, key := range sortedKeys(t) {
			out = append(out, stringList(t[key])...)
		}
		return out
	}
	return nil
}

func firstMap(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case []any:
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
