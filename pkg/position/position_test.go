package position

import "testing"

func TestBetween_BothUnbounded(t *testing.T) {
	k, err := Between("", "")
	if err != nil {
		t.Fatalf("Between failed: %v", err)
	}
	if k != Origin {
		t.Errorf("expected origin %q, got %q", Origin, k)
	}
}

func TestBetween_Bounded(t *testing.T) {
	cases := []struct {
		before, after string
	}{
		{"b", "c"},
		{"b", "d"},
		{"n", "o"},
		{"n", "z"},
		{"ab", "ac"},
		{"abc", "abd"},
		{"n", "nb"},
		{"y", "z"},
	}
	for _, tc := range cases {
		k, err := Between(tc.before, tc.after)
		if err != nil {
			t.Fatalf("Between(%q, %q) failed: %v", tc.before, tc.after, err)
		}
		if !(tc.before < k && k < tc.after) {
			t.Errorf("Between(%q, %q) = %q, not strictly between", tc.before, tc.after, k)
		}
	}
}

func TestBetween_AdjacentRegression(t *testing.T) {
	// A naive midpoint of "sn" and "t" truncates to "sn" itself.
	k, err := Between("sn", "t")
	if err != nil {
		t.Fatalf("Between failed: %v", err)
	}
	if !("sn" < k && k < "t") {
		t.Errorf("Between(\"sn\", \"t\") = %q, not strictly between", k)
	}
}

func TestBetween_LeftUnbounded(t *testing.T) {
	for _, after := range []string{"b", "n", "ab", "aab", "z"} {
		k, err := Between("", after)
		if err != nil {
			t.Fatalf("Between(\"\", %q) failed: %v", after, err)
		}
		if k >= after {
			t.Errorf("Between(\"\", %q) = %q, not below the bound", after, k)
		}
		if k == "" {
			t.Errorf("Between(\"\", %q) returned an empty key", after)
		}
	}
}

func TestBetween_RightUnbounded(t *testing.T) {
	for _, before := range []string{"b", "n", "y", "z", "zz"} {
		k, err := Between(before, "")
		if err != nil {
			t.Fatalf("Between(%q, \"\") failed: %v", before, err)
		}
		if k <= before {
			t.Errorf("Between(%q, \"\") = %q, not above the bound", before, k)
		}
	}
}

func TestBetween_NeverEqualsBounds(t *testing.T) {
	// Repeated halving between converging bounds.
	before, after := "b", "c"
	for i := 0; i < 40; i++ {
		k, err := Between(before, after)
		if err != nil {
			t.Fatalf("Between(%q, %q) failed: %v", before, after, err)
		}
		if k == before || k == after {
			t.Fatalf("Between(%q, %q) returned a bound", before, after)
		}
		if !(before < k && k < after) {
			t.Fatalf("Between(%q, %q) = %q out of range", before, after, k)
		}
		after = k
	}
}

func TestBetween_ThirtyStepsTowardBound(t *testing.T) {
	// 30 sequential inserts between a moving lower bound and a fixed upper
	// bound must stay strictly increasing and strictly below the bound.
	last := "h"
	seen := map[string]bool{}
	for i := 0; i < 30; i++ {
		k, err := Between(last, "t")
		if err != nil {
			t.Fatalf("step %d: Between(%q, \"t\") failed: %v", i, last, err)
		}
		if k <= last || k >= "t" {
			t.Fatalf("step %d: Between(%q, \"t\") = %q out of range", i, last, k)
		}
		if seen[k] {
			t.Fatalf("step %d: duplicate key %q", i, k)
		}
		seen[k] = true
		last = k
	}
}

func TestBetween_InvalidInputs(t *testing.T) {
	if _, err := Between("c", "b"); err == nil {
		t.Error("expected error for reversed bounds")
	}
	if _, err := Between("b", "b"); err == nil {
		t.Error("expected error for equal bounds")
	}
	if _, err := Between("B", ""); err == nil {
		t.Error("expected error for uppercase key")
	}
	if _, err := Between("ba", ""); err == nil {
		t.Error("expected error for trailing minimum digit")
	}
}

func TestInitial(t *testing.T) {
	for _, n := range []int{0, 1, 5, 26, 30, 100} {
		keys, err := Initial(n)
		if err != nil {
			t.Fatalf("Initial(%d) failed: %v", n, err)
		}
		if len(keys) != n {
			t.Fatalf("Initial(%d) returned %d keys", n, len(keys))
		}
		for i := 1; i < len(keys); i++ {
			if keys[i-1] >= keys[i] {
				t.Errorf("Initial(%d): keys[%d]=%q not below keys[%d]=%q", n, i-1, keys[i-1], i, keys[i])
			}
		}
	}

	keys, err := Initial(1)
	if err != nil {
		t.Fatalf("Initial(1) failed: %v", err)
	}
	if keys[0] != Origin {
		t.Errorf("first seeded key = %q, expected origin", keys[0])
	}
}

func TestInitial_NegativeCount(t *testing.T) {
	if _, err := Initial(-1); err != ErrInvalidCount {
		t.Errorf("expected ErrInvalidCount, got %v", err)
	}
}

func TestInitial_SeedsSplittable(t *testing.T) {
	// Seeded keys must leave room for later inserts between any pair.
	keys, err := Initial(40)
	if err != nil {
		t.Fatalf("Initial failed: %v", err)
	}
	for i := 1; i < len(keys); i++ {
		k, err := Between(keys[i-1], keys[i])
		if err != nil {
			t.Fatalf("Between(%q, %q) failed: %v", keys[i-1], keys[i], err)
		}
		if !(keys[i-1] < k && k < keys[i]) {
			t.Errorf("Between(%q, %q) = %q out of range", keys[i-1], keys[i], k)
		}
	}
}
