// Package compileerr defines the error taxonomy shared by every compilation
// phase.
//
// Each error type reports the phase that raised it and a stable code so that
// callers (the CLI, the MCP tools, tests) can branch on the category without
// parsing messages. The Frontend is the only phase that aggregates; every
// later phase fails on the first fault.
package compileerr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Phase identifies the pipeline stage that produced an error.
type Phase string

const (
	PhaseParse    Phase = "parse"
	PhaseValidate Phase = "validate"
	PhaseIR       Phase = "ir"
	PhaseBackend  Phase = "backend"
	PhaseLimits   Phase = "limits"
)

// Error codes.
const (
	CodeParse = "E001"

	// Validation (E101-E199)
	CodeUnknownType         = "E101"
	CodeUnknownField        = "E102"
	CodeDirectiveNotAllowed = "E103"
	CodeUnknownDirective    = "E104"
	CodeDuplicateDirective  = "E105"
	CodeBadArgument         = "E106"
	CodeDuplicateAlias      = "E107"
	CodeDuplicateTag        = "E108"
	CodeUnknownTag          = "E109"
	CodeBadOperator         = "E110"
	CodeTypeMismatch        = "E111"
	CodeFoldScope           = "E112"
	CodeRecurse             = "E113"
	CodeParameterConflict   = "E114"
	CodeFieldArguments      = "E115"
	CodeSelectionShape      = "E116"
	CodeFoldOptional        = "E117"
	CodeRoot                = "E118"
	CodeNoOutputs           = "E119"
	CodeReservedName        = "E120"
	CodeFloatLiteral        = "E121"

	// IR build (E201-E299)
	CodeForwardTag        = "E201"
	CodeUnresolvedOperand = "E202"

	// Backend (E301-E399)
	CodeUnsupported = "E301"

	// Limits (E401-E499)
	CodeResourceLimit = "E401"

	// Internal (E501-E599)
	CodeInternal = "E501"
)

// Error is implemented by every error in the taxonomy.
type Error interface {
	error
	Phase() Phase
	ErrorCode() string
}

// Pos is a position in query text. Line and Column are 1-based; Offset is the
// byte offset. The zero value means "unknown".
type Pos struct {
	Line   int `json:"line"`
	Column int `json:"column"`
	Offset int `json:"offset"`
}

// IsValid reports whether the position points into the source.
func (p Pos) IsValid() bool { return p.Line > 0 }

func (p Pos) String() string {
	if !p.IsValid() {
		return "-"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// ParseError reports malformed query text.
type ParseError struct {
	Pos     Pos
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

func (e *ParseError) Phase() Phase      { return PhaseParse }
func (e *ParseError) ErrorCode() string { return CodeParse }

// Violation is one independent schema or directive misuse found by the
// validator.
type Violation struct {
	Code    string `json:"code"`
	Path    string `json:"path"` // offending construct, e.g. "Person.knows.name"
	Message string `json:"message"`
	Pos     Pos    `json:"pos"`
}

func (v Violation) String() string {
	if v.Pos.IsValid() {
		return fmt.Sprintf("[%s] %s: %s: %s", v.Code, v.Pos, v.Path, v.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", v.Code, v.Path, v.Message)
}

// ValidationError aggregates every violation found in one pass.
type ValidationError struct {
	Violations []Violation
}

// NewValidationError sorts violations by position, then code, so the report
// is stable regardless of discovery order.
func NewValidationError(vs []Violation) *ValidationError {
	sorted := make([]Violation, len(vs))
	copy(sorted, vs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Pos.Offset != sorted[j].Pos.Offset {
			return sorted[i].Pos.Offset < sorted[j].Pos.Offset
		}
		return sorted[i].Code < sorted[j].Code
	})
	return &ValidationError{Violations: sorted}
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return "validation failed: " + e.Violations[0].String()
	}
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("validation failed with %d violations: %s", len(e.Violations), strings.Join(parts, "; "))
}

func (e *ValidationError) Phase() Phase      { return PhaseValidate }
func (e *ValidationError) ErrorCode() string { return "E100" }

// HasCode reports whether any violation carries the given code.
func (e *ValidationError) HasCode(code string) bool {
	for _, v := range e.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

// IRBuildError is a fail-fast structural fault found while lowering a
// validated query.
type IRBuildError struct {
	Code     string
	Location string
	Message  string
	Pos      Pos
}

func (e *IRBuildError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s: ir build at %s (%s): %s", e.Code, e.Location, e.Pos, e.Message)
	}
	return fmt.Sprintf("%s: ir build at %s: %s", e.Code, e.Location, e.Message)
}

func (e *IRBuildError) Phase() Phase      { return PhaseIR }
func (e *IRBuildError) ErrorCode() string { return e.Code }

// BackendUnsupportedError reports an IR feature the chosen backend cannot
// express.
type BackendUnsupportedError struct {
	Backend  string
	Feature  string
	Location string
	Message  string
}

func (e *BackendUnsupportedError) Error() string {
	msg := fmt.Sprintf("%s: backend %s does not support %s", CodeUnsupported, e.Backend, e.Feature)
	if e.Location != "" {
		msg += " at " + e.Location
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *BackendUnsupportedError) Phase() Phase      { return PhaseBackend }
func (e *BackendUnsupportedError) ErrorCode() string { return CodeUnsupported }

// Limit names.
const (
	LimitTraversalDepth = "traversal_depth"
	LimitBlocks         = "block_count"
	LimitRecurseDepth   = "recurse_depth"
)

// ResourceLimitError is returned when a configured ceiling is exceeded.
type ResourceLimitError struct {
	Limit string
	Value int
	Max   int
	Pos   Pos
}

func (e *ResourceLimitError) Error() string {
	return fmt.Sprintf("%s: %s %d exceeds limit %d", CodeResourceLimit, e.Limit, e.Value, e.Max)
}

func (e *ResourceLimitError) Phase() Phase      { return PhaseLimits }
func (e *ResourceLimitError) ErrorCode() string { return CodeResourceLimit }

// InternalConsistencyError reports malformed IR detected by a backend. It
// always points at a defect upstream and is never recovered.
type InternalConsistencyError struct {
	Backend string
	Index   int // block index, -1 when the fault is at end of input
	Message string
}

func (e *InternalConsistencyError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s: malformed IR at end of block list: %s", CodeInternal, e.Backend, e.Message)
	}
	return fmt.Sprintf("%s: %s: malformed IR at block %d: %s", CodeInternal, e.Backend, e.Index, e.Message)
}

func (e *InternalConsistencyError) Phase() Phase      { return PhaseBackend }
func (e *InternalConsistencyError) ErrorCode() string { return CodeInternal }

// IsParseError returns true if err wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsValidationError returns true if err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsIRBuildError returns true if err wraps an *IRBuildError.
func IsIRBuildError(err error) bool {
	var ie *IRBuildError
	return errors.As(err, &ie)
}

// IsBackendUnsupportedError returns true if err wraps a
// *BackendUnsupportedError.
func IsBackendUnsupportedError(err error) bool {
	var be *BackendUnsupportedError
	return errors.As(err, &be)
}

// IsResourceLimitError returns true if err wraps a *ResourceLimitError.
func IsResourceLimitError(err error) bool {
	var re *ResourceLimitError
	return errors.As(err, &re)
}

// IsInternalConsistencyError returns true if err wraps an
// *InternalConsistencyError.
func IsInternalConsistencyError(err error) bool {
	var ie *InternalConsistencyError
	return errors.As(err, &ie)
}

// PhaseOf returns the phase of err, or "" if err is not part of the taxonomy.
func PhaseOf(err error) Phase {
	var ce Error
	if errors.As(err, &ce) {
		return ce.Phase()
	}
	return ""
}

// CodeOf returns the code of err, or "" if err is not part of the taxonomy.
func CodeOf(err error) string {
	var ce Error
	if errors.As(err, &ce) {
		return ce.ErrorCode()
	}
	return ""
}
