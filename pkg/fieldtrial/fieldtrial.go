// Package fieldtrial encodes and validates the process-wide field trial
// string handed to the media engine at initialization.
//
// The grammar is (<key>/<value>/)* with '/' as the only delimiter. Keys and
// values are case-sensitive and are never escaped: callers must not put '/'
// inside a key or a value.
package fieldtrial

import (
	"fmt"
	"strings"
)

// Delimiter separates keys and values in the encoded string.
const Delimiter = "/"

// Pair is a single field trial override.
type Pair struct {
	Key   string `yaml:"key" json:"key"`
	Value string `yaml:"value" json:"value"`
}

// Set is an ordered list of field trial overrides. Key uniqueness is a
// convention and is not enforced.
type Set []Pair

// Build concatenates key + "/" + value + "/" for every pair, in order.
// An empty input yields the empty string.
func Build(pairs ...Pair) string {
	if len(pairs) == 0 {
		return ""
	}

	var b strings.Builder
	for _, p := range pairs {
		b.WriteString(p.Key)
		b.WriteString(Delimiter)
		b.WriteString(p.Value)
		b.WriteString(Delimiter)
	}
	return b.String()
}

// Validate reports whether text conforms to the field trial grammar.
// A nil text means "no field trials" and is always valid.
func Validate(text *string) bool {
	if text == nil {
		return true
	}
	return ValidateString(*text)
}

// ValidateString is Validate for a present value.
func ValidateString(text string) bool {
	if text == "" {
		return true
	}
	if !strings.HasSuffix(text, Delimiter) {
		return false
	}

	segments := strings.Split(strings.TrimSuffix(text, Delimiter), Delimiter)
	return len(segments) > 0 && len(segments)%2 == 0
}

// Parse splits a valid field trial string back into its pairs.
func Parse(text string) (Set, error) {
	if !ValidateString(text) {
		return nil, fmt.Errorf("malformed field trial string %q", text)
	}
	if text == "" {
		return Set{}, nil
	}

	segments := strings.Split(strings.TrimSuffix(text, Delimiter), Delimiter)
	set := make(Set, 0, len(segments)/2)
	for i := 0; i < len(segments); i += 2 {
		set = append(set, Pair{Key: segments[i], Value: segments[i+1]})
	}
	return set, nil
}

// String encodes the set with Build.
func (s Set) String() string {
	return Build(s...)
}

// Lookup returns the value of the first pair with the given key.
func (s Set) Lookup(key string) (string, bool) {
	for _, p := range s {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}
