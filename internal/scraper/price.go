package scraper

import (
	"strconv"
	"strings"
)

// NormalizePrice keeps only digits and decimal points and parses the rest.
// Currency symbols, separators and whitespace are dropped; anything that does
// not parse afterwards yields nil.
func NormalizePrice(raw string) *float64 {
	if raw == "" {
		return nil
	}
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, raw)
	if cleaned == "" {
		return nil
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &value
}
