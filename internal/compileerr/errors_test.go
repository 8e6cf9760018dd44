package compileerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaxonomy(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		phase Phase
		code  string
		is    func(error) bool
	}{
		{"parse", &ParseError{Pos: Pos{Line: 1, Column: 3}, Message: "x"}, PhaseParse, CodeParse, IsParseError},
		{"validation", NewValidationError([]Violation{{Code: CodeUnknownField}}), PhaseValidate, "E100", IsValidationError},
		{"ir", &IRBuildError{Code: CodeForwardTag, Location: "Person@0"}, PhaseIR, CodeForwardTag, IsIRBuildError},
		{"unsupported", &BackendUnsupportedError{Backend: "match", Feature: "recurse"}, PhaseBackend, CodeUnsupported, IsBackendUnsupportedError},
		{"limit", &ResourceLimitError{Limit: LimitBlocks, Value: 9, Max: 8}, PhaseLimits, CodeResourceLimit, IsResourceLimitError},
		{"internal", &InternalConsistencyError{Backend: "sqlite", Index: -1}, PhaseBackend, CodeInternal, IsInternalConsistencyError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("compiling friends.graphql: %w", tt.err)
			assert.True(t, tt.is(wrapped))
			assert.Equal(t, tt.phase, PhaseOf(wrapped))
			assert.Equal(t, tt.code, CodeOf(wrapped))
		})
	}

	plain := errors.New("boom")
	assert.False(t, IsParseError(plain))
	assert.Equal(t, Phase(""), PhaseOf(plain))
	assert.Equal(t, "", CodeOf(plain))
}

func TestValidationError_Sorted(t *testing.T) {
	err := NewValidationError([]Violation{
		{Code: CodeUnknownField, Path: "Person.b", Pos: Pos{Line: 2, Column: 5, Offset: 30}},
		{Code: CodeUnknownTag, Path: "Person.a", Pos: Pos{Line: 1, Column: 5, Offset: 10}},
		{Code: CodeDuplicateAlias, Path: "Person.a", Pos: Pos{Line: 1, Column: 5, Offset: 10}},
	})

	require.Len(t, err.Violations, 3)
	assert.Equal(t, CodeDuplicateAlias, err.Violations[0].Code)
	assert.Equal(t, CodeUnknownTag, err.Violations[1].Code)
	assert.Equal(t, CodeUnknownField, err.Violations[2].Code)
	assert.True(t, err.HasCode(CodeUnknownTag))
	assert.False(t, err.HasCode(CodeNoOutputs))
	assert.Contains(t, err.Error(), "validation failed with 3 violations")
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "parse error at line 2, column 7: expected }",
		(&ParseError{Pos: Pos{Line: 2, Column: 7}, Message: "expected }"}).Error())
	assert.Equal(t, "[E102] Person.nickname: unknown field",
		Violation{Code: CodeUnknownField, Path: "Person.nickname", Message: "unknown field"}.String())
	assert.Equal(t, "E401: block_count 9 exceeds limit 8",
		(&ResourceLimitError{Limit: LimitBlocks, Value: 9, Max: 8}).Error())
	assert.Equal(t, "E301: backend match does not support recurse at Person@1",
		(&BackendUnsupportedError{Backend: "match", Feature: "recurse", Location: "Person@1"}).Error())
	assert.Equal(t, "-", Pos{}.String())
}
