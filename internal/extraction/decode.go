package extraction

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/jonathan/trial-matcher/internal/llm"
	"github.com/jonathan/trial-matcher/internal/schemas"
	"github.com/jonathan/trial-matcher/internal/types"
)

// DecodeEligibilitySpec turns collaborator output into a spec. It tries the
// output as-is, then with markdown fences and prose stripped, then the first
// well-formed {...} span. Criterion-level problems never fail the decode; they
// downgrade the criterion to kind other.
func DecodeEligibilitySpec(output string) (*types.EligibilitySpec, error) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return nil, &ParseError{Message: "empty response"}
	}

	var firstErr error
	tried := make(map[string]bool, 3)
	for _, candidate := range []string{trimmed, llm.CleanJSONBlock(trimmed), llm.ExtractJSONObject(trimmed)} {
		if candidate == "" || tried[candidate] {
			continue
		}
		tried[candidate] = true

		spec, err := decodeDocument([]byte(candidate))
		if err == nil {
			return spec, nil
		}
		if firstErr == nil {
			firstErr = err
		}
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			// prefer reporting a shape problem over a later syntax problem
			firstErr = err
		}
	}
	return nil, firstErr
}

func decodeDocument(doc []byte) (*types.EligibilitySpec, error) {
	if !json.Valid(doc) {
		return nil, &ParseError{Message: "response is not valid JSON"}
	}

	if err := schemas.ValidateEligibilitySpec(doc); err != nil {
		field := ""
		var schemaErr *schemas.ValidationError
		if errors.As(err, &schemaErr) && len(schemaErr.Errors) > 0 {
			field = schemaErr.Errors[0].Field
		}
		return nil, &ValidationError{Message: err.Error(), Field: field}
	}

	var spec types.EligibilitySpec
	if err := json.Unmarshal(doc, &spec); err != nil {
		return nil, &ParseError{Message: "failed to decode criteria", Cause: err}
	}
	// review flags are owned by this package, not the collaborator
	spec.NeedsManualReview = false
	spec.ReviewReason = ""
	return &spec, nil
}

// downgradedCount counts criteria whose payload was rejected
func downgradedCount(spec *types.EligibilitySpec) int {
	n := 0
	for _, list := range [][]types.Criterion{spec.Inclusion, spec.Exclusion} {
		for _, c := range list {
			if c.InvalidReason != "" {
				n++
			}
		}
	}
	return n
}
