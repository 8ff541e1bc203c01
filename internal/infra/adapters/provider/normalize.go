package provider

import (
	"github.com/tidwall/gjson"
)

// Strategy extracts image URLs from one known field shape. Path is a gjson
// path; the value found there may be a string, an array of strings, an array
// of objects with a url-like key, or nested arrays of those.
type Strategy struct {
	Name string
	Path string
}

// Extract runs the strategy against a raw JSON payload.
func (s Strategy) Extract(raw []byte) []string {
	if !gjson.ValidBytes(raw) {
		return nil
	}
	return collectURLs(gjson.GetBytes(raw, s.Path), nil)
}

// urlKeys are tried in order on object items.
var urlKeys = []string{"url", "image_url", "src", "image"}

func collectURLs(v gjson.Result, out []string) []string {
	switch {
	case v.Type == gjson.String:
		if v.Str != "" {
			out = append(out, v.Str)
		}
	case v.IsArray():
		for _, item := range v.Array() {
			out = collectURLs(item, out)
		}
	case v.IsObject():
		for _, k := range urlKeys {
			if u := v.Get(k); u.Type == gjson.String && u.Str != "" {
				out = append(out, u.Str)
				break
			}
		}
	}
	return out
}

// FallbackStrategies are the commonly used field names tried after a
// provider's documented shape.
var FallbackStrategies = []Strategy{
	{Name: "images", Path: "images"},
	{Name: "image_urls", Path: "image_urls"},
	{Name: "image_url", Path: "image_url"},
	{Name: "url", Path: "url"},
	{Name: "data.images", Path: "data.images"},
	{Name: "data.image_urls", Path: "data.image_urls"},
	{Name: "data.image_url", Path: "data.image_url"},
	{Name: "data.url", Path: "data.url"},
}

// Normalizer tries an explicit, ordered list of strategies and stops at the
// first one that yields at least one URL.
type Normalizer struct {
	strategies []Strategy
}

// NewNormalizer puts documented shapes in front of FallbackStrategies.
// Duplicate paths keep their first position.
func NewNormalizer(documented ...Strategy) *Normalizer {
	seen := make(map[string]struct{}, len(documented)+len(FallbackStrategies))
	list := make([]Strategy, 0, len(documented)+len(FallbackStrategies))
	for _, group := range [][]Strategy{documented, FallbackStrategies} {
		for _, s := range group {
			if _, dup := seen[s.Path]; dup {
				continue
			}
			seen[s.Path] = struct{}{}
			list = append(list, s)
		}
	}
	return &Normalizer{strategies: list}
}

func (n *Normalizer) Strategies() []Strategy {
	return append([]Strategy(nil), n.strategies...)
}

// Normalize returns the URLs found by the first matching strategy with
// duplicates removed by first occurrence. No match yields nil.
func (n *Normalizer) Normalize(raw []byte) []string {
	urls, _ := n.NormalizeWith(raw)
	return urls
}

// NormalizeWith also reports the name of the matching strategy.
func (n *Normalizer) NormalizeWith(raw []byte) ([]string, string) {
	for _, s := range n.strategies {
		if urls := dedupe(s.Extract(raw)); len(urls) > 0 {
			return urls, s.Name
		}
	}
	return nil, ""
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
