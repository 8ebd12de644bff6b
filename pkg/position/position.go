// Package position allocates lexicographically ordered sort keys for
// order-preserving inserts (fractional indexing). Keys are strings over the
// lowercase alphabet a-z; a new key can always be generated between any two
// existing keys, or before/after all of them, without renumbering siblings.
package position

import (
	"errors"
	"strings"
)

const (
	alphabet = "abcdefghijklmnopqrstuvwxyz"
	minDigit = 'a'
	maxDigit = 'z'
)

// Origin is the key allocated when the list is empty: the midpoint of the
// alphabet.
const Origin = "n"

// Allocation errors.
var (
	ErrInvalidCount    = errors.New("count must not be negative")
	ErrInvalidPosition = errors.New("invalid position key")
	ErrBoundsReversed  = errors.New("lower bound must sort before upper bound")
)

// Between returns a key strictly between before and after. An empty string
// means the bound is absent: Between("", "") returns Origin,
// Between("", after) returns a key below after, and Between(before, "")
// returns a key above before. The result never equals either bound.
//
// Adjacent bounds are handled by extending the key: stepping below a key
// grows a leading low digit instead of truncating at 'a', and stepping above
// grows a trailing digit instead of overflowing past 'z'.
func Between(before, after string) (string, error) {
	if err := checkKey(before); err != nil {
		return "", err
	}
	if err := checkKey(after); err != nil {
		return "", err
	}
	if before != "" && after != "" && before >= after {
		return "", ErrBoundsReversed
	}
	return midpoint(before, after), nil
}

// Initial returns n unique, strictly increasing keys for seeding n siblings
// at once. The first key is Origin; each subsequent key steps above the
// previous one, growing extra digits once the single-character range is
// exhausted.
func Initial(n int) ([]string, error) {
	if n < 0 {
		return nil, ErrInvalidCount
	}
	keys := make([]string, 0, n)
	last := ""
	for i := 0; i < n; i++ {
		last = midpoint(last, "")
		keys = append(keys, last)
	}
	return keys, nil
}

// checkKey rejects keys with characters outside a-z and keys with a trailing
// minimum digit. Keys ending in 'a' sort immediately above their prefix with
// no room in between, so the allocator never produces them and cannot safely
// split around them.
func checkKey(k string) error {
	for i := 0; i < len(k); i++ {
		if k[i] < minDigit || k[i] > maxDigit {
			return ErrInvalidPosition
		}
	}
	if k != "" && k[len(k)-1] == minDigit {
		return ErrInvalidPosition
	}
	return nil
}

// midpoint returns a key strictly between a and b, where a < b and an empty
// a or b stands for the minimum or maximum bound. The shorter operand is
// conceptually padded with minimum digits so a finite result exists even for
// adjacent keys such as "sn" and "t".
func midpoint(a, b string) string {
	if b != "" {
		// Split off the longest common prefix, treating a as padded with
		// the minimum digit.
		n := 0
		for n < len(b) && digitAt(a, n) == b[n] {
			n++
		}
		if n > 0 {
			return b[:n] + midpoint(sliceFrom(a, n), b[n:])
		}
	}

	digitA := 0
	if a != "" {
		digitA = strings.IndexByte(alphabet, a[0])
	}
	digitB := len(alphabet)
	if b != "" {
		digitB = strings.IndexByte(alphabet, b[0])
	}

	if digitB-digitA > 1 {
		mid := (digitA + digitB + 1) / 2
		return string(alphabet[mid])
	}

	// The first digits are consecutive. If b has more digits it already
	// leaves room below its own tail; otherwise keep a's first digit and
	// recurse above the rest of a.
	if len(b) > 1 {
		return b[:1]
	}
	return string(alphabet[digitA]) + midpoint(sliceFrom(a, 1), "")
}

// digitAt returns the byte of k at index i, padding past the end with the
// minimum digit.
func digitAt(k string, i int) byte {
	if i < len(k) {
		return k[i]
	}
	return minDigit
}

// sliceFrom returns k[n:], or "" when k is shorter than n.
func sliceFrom(k string, n int) string {
	if n >= len(k) {
		return ""
	}
	return k[n:]
}
