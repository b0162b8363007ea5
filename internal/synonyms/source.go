// Package synonyms provides lookups from medical terms to the vocabulary
// patients use for the same conditions.
package synonyms

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/trial-matcher/internal/types"
)

// Source returns the term mappings whose medical terms include medicalTerm.
// Matching on medicalTerm is case-insensitive. No mappings is not an error.
type Source interface {
	Lookup(ctx context.Context, medicalTerm string) ([]types.TermMapping, error)
}

// SourceFunc adapts a function to Source
type SourceFunc func(ctx context.Context, medicalTerm string) ([]types.TermMapping, error)

// Lookup calls f
func (f SourceFunc) Lookup(ctx context.Context, medicalTerm string) ([]types.TermMapping, error) {
	return f(ctx, medicalTerm)
}

//go:embed vocabulary.json
var defaultVocabulary []byte

// StaticSource serves a fixed set of mappings held in memory
type StaticSource struct {
	mappings []types.TermMapping
}

// NewStaticSource builds a source over mappings
func NewStaticSource(mappings []types.TermMapping) *StaticSource {
	return &StaticSource{mappings: mappings}
}

// DefaultSource returns a StaticSource seeded with the built-in vocabulary
func DefaultSource() (*StaticSource, error) {
	var mappings []types.TermMapping
	if err := json.Unmarshal(defaultVocabulary, &mappings); err != nil {
		return nil, fmt.Errorf("failed to parse built-in vocabulary: %w", err)
	}
	return NewStaticSource(mappings), nil
}

// Lookup implements Source
func (s *StaticSource) Lookup(_ context.Context, medicalTerm string) ([]types.TermMapping, error) {
	term := Normalize(medicalTerm)
	if term == "" {
		return nil, nil
	}

	var out []types.TermMapping
	for _, m := range s.mappings {
		if HasMedicalTerm(m, term) {
			out = append(out, m)
		}
	}
	return out, nil
}

// Len returns the number of mappings held
func (s *StaticSource) Len() int {
	return len(s.mappings)
}

// Mappings returns a copy of every mapping held
func (s *StaticSource) Mappings() []types.TermMapping {
	out := make([]types.TermMapping, len(s.mappings))
	copy(out, s.mappings)
	return out
}

// HasMedicalTerm reports whether m lists term among its medical terms
func HasMedicalTerm(m types.TermMapping, term string) bool {
	term = Normalize(term)
	for _, mt := range m.MedicalTerms {
		if Normalize(mt) == term {
			return true
		}
	}
	return false
}

// Normalize lower-cases and trims a term for comparison
func Normalize(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}
