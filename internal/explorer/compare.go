package explorer

import (
	"cmp"
	"strings"
	"time"
)

// Helpers for building Field.Compare functions.

// ByString orders records case-insensitively by a string key.
func ByString[T any](key func(T) string) func(a, b T) int {
	return func(a, b T) int {
		return strings.Compare(strings.ToLower(key(a)), strings.ToLower(key(b)))
	}
}

// ByOrdered orders records by a numeric or otherwise ordered key.
func ByOrdered[T any, K cmp.Ordered](key func(T) K) func(a, b T) int {
	return func(a, b T) int {
		return cmp.Compare(key(a), key(b))
	}
}

// ByTime orders records by a time key. Zero times sort first.
func ByTime[T any](key func(T) time.Time) func(a, b T) int {
	return func(a, b T) int {
		return key(a).Compare(key(b))
	}
}

// One wraps a single facet value, dropping the empty string.
func One(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}
