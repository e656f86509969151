// Package ordering assigns the fractional order keys that position rows inside
// a table (accounts of a budget, children of a sub-account, fringes, actuals,
// contacts). Keys are strings over 'a'..'z' read as base-26 fractional digits;
// lexicographic comparison is the row order. Inserting between two rows is one
// write, no renumbering of siblings.
package ordering

import (
	"errors"
	"strings"
)

const (
	digits = "abcdefghijklmnopqrstuvwxyz"
	base   = len(digits)

	// FirstKey seeds an empty table at the midpoint of the digit space.
	FirstKey = "n"

	// MaxKeyLen is the length past which the table should be rebalanced.
	MaxKeyLen = 32
)

// ErrInvariant reports prev >= next, or a pair with no room between
// (next extends prev with nothing but zero digits).
var ErrInvariant = errors.New("order invariant violated")

// Compare orders two keys. Plain byte comparison is the total order.
func Compare(a, b string) int {
	return strings.Compare(a, b)
}

// Next returns the shortest key strictly between prev and next. Either bound
// may be empty: empty prev means "before the first row", empty next means
// "after the last row".
func Next(prev, next string) (string, error) {
	if prev == "" && next == "" {
		return FirstKey, nil
	}
	if prev != "" && next != "" && prev >= next {
		return "", ErrInvariant
	}
	key := midpoint(prev, next)
	if !(prev < key) || (next != "" && !(key < next)) {
		return "", ErrInvariant
	}
	return key, nil
}

// NeedsRebalance reports whether a freshly issued key has outgrown the table.
func NeedsRebalance(key string) bool {
	return len(key) > MaxKeyLen
}

// Validate reports whether keys are pairwise distinct. A duplicate is a data
// error; callers respond by rebalancing the table.
func Validate(keys []string) bool {
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			return false
		}
		if _, dup := seen[k]; dup {
			return false
		}
		seen[k] = struct{}{}
	}
	return true
}

// Rebalance produces n evenly spaced keys in ascending order, shallow enough
// to leave room on both sides of every row.
func Rebalance(n int) []string {
	if n <= 0 {
		return nil
	}
	width := 1
	capacity := base
	for capacity < n+1 {
		capacity *= base
		width++
	}
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = render((i+1)*capacity/(n+1), width)
	}
	return keys
}

func digitAt(s string, i int) int {
	if i >= len(s) {
		return 0
	}
	return int(s[i] - 'a')
}

// midpoint returns a key strictly between a and b, where empty a is the low
// end of the space and empty b the high end. For a half-open interval the new
// key lands three quarters of the way up, so runs of appends or prepends burn
// digit positions slowly; closed intervals split at the floor midpoint.
func midpoint(a, b string) string {
	if b != "" {
		n := 0
		for n < len(b) && digitAt(a, n) == int(b[n]-'a') {
			n++
		}
		if n > 0 {
			rest := ""
			if n < len(a) {
				rest = a[n:]
			}
			return b[:n] + midpoint(rest, b[n:])
		}
	}
	da := 0
	if a != "" {
		da = int(a[0] - 'a')
	}
	db := base
	if b != "" {
		db = int(b[0] - 'a')
	}
	if db-da > 1 {
		var mid int
		if a == "" || b == "" {
			mid = (da + 3*db) / 4
		} else {
			mid = (da + db) / 2
		}
		if mid <= da {
			mid = da + 1
		}
		if mid >= db {
			mid = db - 1
		}
		return string(digits[mid])
	}
	// leading digits are consecutive
	if len(b) > 1 {
		return b[:1]
	}
	rest := ""
	if len(a) > 1 {
		rest = a[1:]
	}
	return string(digits[da]) + midpoint(rest, "")
}

func render(v, width int) string {
	buf := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		buf[i] = digits[v%base]
		v /= base
	}
	// trailing zero digits carry no fractional value; a key must not end in one
	out := strings.TrimRight(string(buf), "a")
	if out == "" {
		out = string(digits[1])
	}
	return out
}
