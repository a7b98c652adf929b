package limits

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"media-ingest/internal/mediatypes"
)

// Subject is what selector keys are matched against.
type Subject struct {
	MimeType string
	Motion   mediatypes.MotionType
}

// GIFSubtype returns "gif-still" or "gif-animated" for GIFs and "" otherwise.
func (s Subject) GIFSubtype() string {
	if s.MimeType != mediatypes.MIMEGIF {
		return ""
	}
	switch s.Motion {
	case mediatypes.MotionImage:
		return mediatypes.SelectorGIFStill
	case mediatypes.MotionVideo:
		return mediatypes.SelectorGIFAnimated
	}
	return ""
}

// SpecificityOrder lists the selector keys that can match s, most specific
// first: GIF subtype, then exact MIME type, then motion category.
func SpecificityOrder(s Subject) []string {
	keys := make([]string, 0, 3)
	if sub := s.GIFSubtype(); sub != "" {
		keys = append(keys, sub)
	}
	if s.MimeType != "" {
		keys = append(keys, s.MimeType)
	}
	if s.Motion != "" {
		keys = append(keys, string(s.Motion))
	}
	return keys
}

// MostSpecific returns the most specific key matching s for which has reports
// true. The "all" key matches any subject and is tried last.
func MostSpecific(s Subject, has func(key string) bool) (string, bool) {
	for _, key := range SpecificityOrder(s) {
		if has(key) {
			return key, true
		}
	}
	if has(mediatypes.SelectorAll) {
		return mediatypes.SelectorAll, true
	}
	return "", false
}

// Keyed is a policy value given either once for every file or per selector
// key (motion type, exact MIME type, gif-still, gif-animated).
type Keyed[T any] struct {
	uniform T
	set     bool
	byKey   map[string]T
}

// Uniform returns a Keyed that applies v to every file.
func Uniform[T any](v T) Keyed[T] {
	return Keyed[T]{uniform: v, set: true}
}

// PerType returns a Keyed that applies values by selector key.
func PerType[T any](m map[string]T) Keyed[T] {
	cp := make(map[string]T, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Keyed[T]{byKey: cp}
}

// IsZero reports whether the value was never given. yaml.v3 uses it for omitempty.
func (k Keyed[T]) IsZero() bool {
	return !k.set && len(k.byKey) == 0
}

// IsPerType reports whether the value is keyed by selector.
func (k Keyed[T]) IsPerType() bool {
	return len(k.byKey) > 0
}

// Lookup returns the value stored under an exact selector key.
func (k Keyed[T]) Lookup(key string) (T, bool) {
	v, ok := k.byKey[key]
	return v, ok
}

// Keys returns the selector keys in sorted order.
func (k Keyed[T]) Keys() []string {
	keys := make([]string, 0, len(k.byKey))
	for key := range k.byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Resolve returns the value that applies to s: the uniform value if there is
// one, otherwise the value under the most specific matching key.
func Resolve[T any](k Keyed[T], s Subject) (T, bool) {
	if k.set {
		return k.uniform, true
	}
	key, ok := MostSpecific(s, func(key string) bool {
		_, found := k.byKey[key]
		return found
	})
	if !ok {
		var zero T
		return zero, false
	}
	return k.byKey[key], true
}

// UnmarshalYAML decodes a mapping as per-type values and anything else as a
// uniform value.
func (k *Keyed[T]) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.MappingNode {
		m := map[string]T{}
		if err := value.Decode(&m); err != nil {
			return err
		}
		if len(m) == 0 {
			return fmt.Errorf("line %d: empty per-type mapping", value.Line)
		}
		*k = PerType(m)
		return nil
	}
	var v T
	if err := value.Decode(&v); err != nil {
		return err
	}
	*k = Uniform(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (k Keyed[T]) MarshalYAML() (interface{}, error) {
	if k.set {
		return k.uniform, nil
	}
	return k.byKey, nil
}
