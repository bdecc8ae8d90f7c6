// Package siteurl builds category listing URLs for animalutul.ro.
package siteurl

import (
	"errors"
	"net/url"
	"strings"
)

// BaseURL is the root of the animal listings tree.
const BaseURL = "https://www.animalutul.ro/anunturi/animale"

var (
	// ErrCategoryRequired is returned when Params.Category is empty.
	ErrCategoryRequired = errors.New("category is required")
	// ErrCityWithoutCounty is returned when a city is given without its county;
	// the site only nests cities under a county segment.
	ErrCityWithoutCounty = errors.New("a county is required when searching in a specific city")
)

// Params selects a listing tree, e.g. caini / husky / timis / timisoara.
type Params struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`
	County      string `json:"county,omitempty"`
	City        string `json:"city,omitempty"`
}

// Build returns the listing URL for p, always with a trailing slash.
func Build(p Params) (string, error) {
	category := strings.TrimSpace(p.Category)
	county := strings.TrimSpace(p.County)
	city := strings.TrimSpace(p.City)
	if category == "" {
		return "", ErrCategoryRequired
	}
	if city != "" && county == "" {
		return "", ErrCityWithoutCounty
	}

	var b strings.Builder
	b.WriteString(BaseURL)
	for _, segment := range []string{category, escapeSubcategory(p.Subcategory), county, city} {
		if segment == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(segment)
	}
	b.WriteByte('/')
	return b.String(), nil
}

// escapeSubcategory percent-encodes each path element of s, keeping slashes.
func escapeSubcategory(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	parts := strings.Split(s, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
