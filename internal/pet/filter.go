package pet

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidFilter reports a filter that cannot be executed.
var ErrInvalidFilter = errors.New("invalid filter")

// Filter narrows a Find call. Empty or nil fields are ignored.
type Filter struct {
	County           *string  `json:"county"`
	City             *string  `json:"city"`
	Category         *string  `json:"category"`
	Breed            *string  `json:"breed"`
	MinPrice         *float64 `json:"min_price"`
	MaxPrice         *float64 `json:"max_price"`
	DescriptionRegex *string  `json:"description_regex"`
}

// BreedPattern reports whether the breed value is an alternation that must be
// matched as a case-insensitive regex instead of an exact value.
func (f Filter) BreedPattern() bool {
	return strings.Contains(Value(f.Breed), "|")
}

// Validate checks price bounds and compiles the regex fields.
func (f Filter) Validate() error {
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return fmt.Errorf("%w: min_price %.2f is greater than max_price %.2f", ErrInvalidFilter, *f.MinPrice, *f.MaxPrice)
	}
	if f.BreedPattern() {
		if _, err := compileInsensitive(Value(f.Breed)); err != nil {
			return fmt.Errorf("%w: breed: %v", ErrInvalidFilter, err)
		}
	}
	if expr := Value(f.DescriptionRegex); expr != "" {
		if _, err := compileInsensitive(expr); err != nil {
			return fmt.Errorf("%w: description_regex: %v", ErrInvalidFilter, err)
		}
	}
	return nil
}

// Match evaluates the filter against a record in memory. It mirrors the
// document-store semantics: a bound on a missing value never matches.
func (f Filter) Match(r Record) bool {
	if !equalIfSet(f.County, r.County) || !equalIfSet(f.City, r.City) || !equalIfSet(f.Category, r.Category) {
		return false
	}
	if breed := Value(f.Breed); breed != "" {
		if f.BreedPattern() {
			if !matchIfSet(breed, r.Breed) {
				return false
			}
		} else if Value(r.Breed) != breed {
			return false
		}
	}
	if f.MinPrice != nil || f.MaxPrice != nil {
		price := r.Price.Effective()
		if price == nil {
			return false
		}
		if f.MinPrice != nil && *price < *f.MinPrice {
			return false
		}
		if f.MaxPrice != nil && *price > *f.MaxPrice {
			return false
		}
	}
	if expr := Value(f.DescriptionRegex); expr != "" && !matchIfSet(expr, r.Description) {
		return false
	}
	return true
}

func equalIfSet(want, got *string) bool {
	w := Value(want)
	return w == "" || Value(got) == w
}

func matchIfSet(expr string, got *string) bool {
	if got == nil {
		return false
	}
	re, err := compileInsensitive(expr)
	if err != nil {
		return false
	}
	return re.MatchString(*got)
}

func compileInsensitive(expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, err)
	}
	return re, nil
}
