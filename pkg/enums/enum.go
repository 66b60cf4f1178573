// Package enums holds the string-backed status and kind types stored in the
// database and exchanged on the wire.
package enums

import (
	"fmt"
	"slices"
)

func oneOf[T ~string](value T, known []T) bool {
	return slices.Contains(known, value)
}

// parseAs matches raw exactly against known; callers normalize case first.
func parseAs[T ~string](kind, raw string, known []T) (T, error) {
	if i := slices.Index(known, T(raw)); i >= 0 {
		return known[i], nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, raw)
}
