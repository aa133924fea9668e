package search

import (
	"fmt"
	"strings"

	"github.com/hyperjump/blueprint/internal/errs"
)

// ProcessQuery trims the query text and rejects empty queries.
func ProcessQuery(query string) (string, error) {
	q := strings.Join(strings.Fields(query), " ")
	if q == "" {
		return "", fmt.Errorf("%w: query is required", errs.ErrInvalidInput)
	}
	return q, nil
}

// resolveTopK applies the default to non-positive k and caps it at maxK.
func resolveTopK(k, defaultK, maxK int) int {
	if k <= 0 {
		k = defaultK
	}
	if maxK > 0 && k > maxK {
		k = maxK
	}
	return k
}
