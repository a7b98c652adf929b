// Package naming picks collision-free, length-bounded names for stored uploads.
package naming

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"media-ingest/internal/logging"
	"media-ingest/internal/mediaerr"
	"media-ingest/internal/metrics"
)

const (
	// IDLength is the length of a random id and of the suffix after "_".
	IDLength = 7
	// MaxAttempts bounds the uniqueness checks made for one name.
	MaxAttempts = 100
	// DefaultMaxLength is the longest stored name.
	DefaultMaxLength = 100
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Predicate reports whether name is free. A name held by the record
// exemptID counts as free; an empty exemptID exempts nothing. Comparisons
// are case-insensitive.
type Predicate interface {
	IsUnique(ctx context.Context, name, exemptID string) (bool, error)
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(ctx context.Context, name, exemptID string) (bool, error)

// IsUnique implements Predicate.
func (f PredicateFunc) IsUnique(ctx context.Context, name, exemptID string) (bool, error) {
	return f(ctx, name, exemptID)
}

// newID is replaced in tests.
var newID = RandomID

// RandomID returns IDLength random alphanumeric characters.
func RandomID() (string, error) {
	limit := big.NewInt(int64(len(idAlphabet)))
	b := make([]byte, IDLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate id: %w", err)
		}
		b[i] = idAlphabet[n.Int64()]
	}
	return string(b), nil
}

// MakeUnique returns candidate cut to maxLength when pred accepts it.
// Otherwise it appends "_" and a random id, cutting the candidate further so
// the result still fits, and retries with fresh ids. An empty candidate
// becomes a bare random id. It gives up with *mediaerr.NamingExhaustionError
// after MaxAttempts checks.
func MakeUnique(ctx context.Context, candidate string, maxLength int, pred Predicate, exemptID string) (string, error) {
	if maxLength < IDLength+1 {
		return "", fmt.Errorf("name length limit %d is shorter than a suffixed name", maxLength)
	}

	attempts := 0
	defer func() {
		metrics.NamingAttempts.Observe(float64(attempts))
	}()

	check := func(name, exempt string) (bool, error) {
		attempts++
		ok, err := pred.IsUnique(ctx, name, exempt)
		if err != nil {
			return false, fmt.Errorf("check name %q: %w", name, err)
		}
		return ok, nil
	}

	name := truncate(candidate, maxLength)
	if name != "" {
		ok, err := check(name, exemptID)
		if err != nil {
			return "", err
		}
		if ok {
			return name, nil
		}
		name = truncate(name, maxLength-IDLength-1) + "_"
	}

	for attempts < MaxAttempts {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		id, err := newID()
		if err != nil {
			return "", err
		}
		ok, err := check(name+id, "")
		if err != nil {
			return "", err
		}
		if ok {
			logging.Debug("settled on %q after %d checks", name+id, attempts)
			return name + id, nil
		}
	}
	return "", &mediaerr.NamingExhaustionError{Candidate: candidate, Attempts: attempts}
}

// truncate cuts s to at most n characters.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// reserved characters cannot appear in file names on common file systems.
const reserved = `/\:*?"<>|`

// SanitizeTitle turns a user-supplied title into a file name: reserved and
// control characters are dropped, whitespace runs collapse to one space and
// leading or trailing dots and spaces are trimmed. A title made only of
// underscores becomes "".
func SanitizeTitle(title string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return ' '
		case strings.ContainsRune(reserved, r), unicode.IsControl(r):
			return -1
		}
		return r
	}, title)

	cleaned = strings.Join(strings.Fields(cleaned), " ")
	cleaned = strings.Trim(cleaned, ". ")
	if strings.Trim(cleaned, "_") == "" {
		return ""
	}
	return cleaned
}

// Slug is the URL form of a stored name.
func Slug(name string) string {
	return strings.ReplaceAll(name, " ", "_")
}
