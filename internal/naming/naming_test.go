package naming

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"

	"media-ingest/internal/mediaerr"
)

// taken is a case-insensitive name registry keyed by owner id.
type taken map[string]string

func (t taken) IsUnique(_ context.Context, name, exemptID string) (bool, error) {
	owner, ok := t[strings.ToLower(name)]
	if !ok {
		return true, nil
	}
	return exemptID != "" && owner == exemptID, nil
}

var suffixed = regexp.MustCompile(`^[^_]*_[A-Za-z0-9]{7}$`)

func TestMakeUnique(t *testing.T) {
	ctx := context.Background()
	registry := taken{
		"fluffy":               "1",
		"a very long cat titl": "2",
	}

	tests := []struct {
		name      string
		candidate string
		maxLength int
		exemptID  string
		check     func(t *testing.T, got string)
	}{
		{
			name:      "free name is kept",
			candidate: "Mittens",
			maxLength: 20,
			check: func(t *testing.T, got string) {
				if got != "Mittens" {
					t.Errorf("got %q, want Mittens", got)
				}
			},
		},
		{
			name:      "free name is truncated",
			candidate: "Mittens the magnificent",
			maxLength: 10,
			check: func(t *testing.T, got string) {
				if got != "Mittens th" {
					t.Errorf("got %q, want %q", got, "Mittens th")
				}
			},
		},
		{
			name:      "taken name gets a suffix",
			candidate: "FLUFFY",
			maxLength: 20,
			check: func(t *testing.T, got string) {
				if !strings.HasPrefix(got, "FLUFFY_") || !suffixed.MatchString(got) {
					t.Errorf("got %q, want FLUFFY_ plus a 7 character id", got)
				}
			},
		},
		{
			name:      "long taken name is cut to fit the suffix",
			candidate: "a very long cat title",
			maxLength: 20,
			check: func(t *testing.T, got string) {
				if utf8.RuneCountInString(got) > 20 {
					t.Errorf("got %q, longer than 20", got)
				}
				if !strings.HasPrefix(got, "a very long _") || !suffixed.MatchString(strings.ReplaceAll(got, " ", "-")) {
					t.Errorf("got %q, want %q plus a 7 character id", got, "a very long _")
				}
				if got == "a very long cat title" {
					t.Error("name did not change")
				}
			},
		},
		{
			name:      "own name is exempt",
			candidate: "Fluffy",
			maxLength: 20,
			exemptID:  "1",
			check: func(t *testing.T, got string) {
				if got != "Fluffy" {
					t.Errorf("got %q, want Fluffy", got)
				}
			},
		},
		{
			name:      "empty candidate becomes an id",
			candidate: "",
			maxLength: 20,
			check: func(t *testing.T, got string) {
				if len(got) != IDLength || strings.Contains(got, "_") {
					t.Errorf("got %q, want a bare 7 character id", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MakeUnique(ctx, tt.candidate, tt.maxLength, registry, tt.exemptID)
			if err != nil {
				t.Fatalf("MakeUnique() error = %v", err)
			}
			tt.check(t, got)
		})
	}
}

func TestMakeUniqueRetriesCollidingIDs(t *testing.T) {
	ids := []string{"AAAAAAA", "BBBBBBB", "CCCCCCC"}
	prev := newID
	defer func() { newID = prev }()
	newID = func() (string, error) {
		id := ids[0]
		ids = ids[1:]
		return id, nil
	}

	registry := taken{"rex": "1", "rex_aaaaaaa": "2", "rex_bbbbbbb": "3"}
	got, err := MakeUnique(context.Background(), "rex", 20, registry, "")
	if err != nil {
		t.Fatalf("MakeUnique() error = %v", err)
	}
	if got != "rex_CCCCCCC" {
		t.Errorf("got %q, want rex_CCCCCCC", got)
	}
}

func TestMakeUniqueExhaustion(t *testing.T) {
	never := PredicateFunc(func(context.Context, string, string) (bool, error) {
		return false, nil
	})

	_, err := MakeUnique(context.Background(), "rex", 20, never, "")
	var nErr *mediaerr.NamingExhaustionError
	if !errors.As(err, &nErr) {
		t.Fatalf("error = %v, want NamingExhaustionError", err)
	}
	if nErr.Attempts != MaxAttempts {
		t.Errorf("Attempts = %d, want %d", nErr.Attempts, MaxAttempts)
	}
}

func TestMakeUniquePredicateError(t *testing.T) {
	broken := PredicateFunc(func(context.Context, string, string) (bool, error) {
		return false, fmt.Errorf("database is locked")
	})
	if _, err := MakeUnique(context.Background(), "rex", 20, broken, ""); err == nil {
		t.Fatal("expected predicate error to propagate")
	}
}

func TestMakeUniqueLimitTooShort(t *testing.T) {
	if _, err := MakeUnique(context.Background(), "rex", IDLength, taken{}, ""); err == nil {
		t.Fatal("expected an error for a limit that cannot hold a suffix")
	}
}

func TestRandomID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := RandomID()
		if err != nil {
			t.Fatal(err)
		}
		if !regexp.MustCompile(`^[A-Za-z0-9]{7}$`).MatchString(id) {
			t.Fatalf("RandomID() = %q", id)
		}
		seen[id] = true
	}
	if len(seen) < 45 {
		t.Errorf("only %d distinct ids out of 50", len(seen))
	}
}

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Sleepy cat", "Sleepy cat"},
		{"  cat \t on\na   mat  ", "cat on a mat"},
		{"../../etc/passwd", "etcpasswd"},
		{`what? "cat" <3 | dog*`, "what cat 3 dog"},
		{"...hidden.", "hidden"},
		{"___", ""},
		{"_", ""},
		{"\x00\x1b", ""},
		{"Ünïcödé kätze", "Ünïcödé kätze"},
	}

	for _, tt := range tests {
		if got := SanitizeTitle(tt.input); got != tt.want {
			t.Errorf("SanitizeTitle(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSlug(t *testing.T) {
	if got := Slug("sleepy cat on a mat"); got != "sleepy_cat_on_a_mat" {
		t.Errorf("Slug() = %q", got)
	}
}
