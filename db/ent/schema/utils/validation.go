package utils

import (
	"fmt"
	"slices"
)

// EnumValidator rejects values outside allowed.
func EnumValidator(allowed ...string) func(string) error {
	return func(s string) error {
		if slices.Contains(allowed, s) {
			return nil
		}
		return fmt.Errorf("value %q not in %v", s, allowed)
	}
}

// Strings converts a slice of string-backed enums.
func Strings[T ~string](vals []T) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return out
}
