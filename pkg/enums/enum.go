// Package enums holds the closed string sets stored in the database and
// carried over the API.
package enums

import (
	"fmt"
	"slices"
)

// values is the closed set of one enum type. kind names it in parse errors.
type values[T ~string] struct {
	kind string
	all  []T
}

func (v values[T]) has(x T) bool {
	return slices.Contains(v.all, x)
}

func (v values[T]) parse(raw string) (T, error) {
	if x := T(raw); v.has(x) {
		return x, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", v.kind, raw)
}
