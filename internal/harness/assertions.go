package harness

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/compileerr"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Backend  string // Backend the assertion is scoped to, if any
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Backend != "" {
		fmt.Fprintf(&buf, " [%s]", e.Backend)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	return buf.String()
}

// EvaluateAssertions evaluates every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var msgs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a); err != nil {
			msgs = append(msgs, fmt.Sprintf("assertion %d: %s", i, err.Error()))
		}
	}
	return msgs
}

func evaluateAssertion(result *Result, a Assertion) error {
	switch a.Type {
	case AssertOutputs:
		return assertOutputs(result, a)
	case AssertRows:
		return assertRows(result, a)
	case AssertRowCount:
		return assertRowCount(result, a)
	case AssertUnsupported:
		return assertBackendError(result, a, backend.ID(a.Backend))
	case AssertError:
		for _, id := range backend.All() {
			if _, ok := result.Compiled[id]; ok {
				return &AssertionError{Type: a.Type, Backend: id.String(), Expected: a.Code, Actual: "compiled successfully"}
			}
		}
		for id := range result.CompileErrors {
			if err := assertBackendError(result, a, id); err != nil {
				return err
			}
		}
		return nil
	case AssertQueryContains, AssertQueryEquals:
		return assertQueryText(result, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// assertOutputs checks the output metadata of every compiled backend.
func assertOutputs(result *Result, a Assertion) error {
	want := make([]string, len(a.Outputs))
	for i, o := range a.Outputs {
		want[i] = formatOutput(o.Alias, o.Type, o.Nullable, o.Collection)
	}
	for _, id := range backend.All() {
		res, ok := result.Compiled[id]
		if !ok {
			continue
		}
		got := make([]string, len(res.Outputs))
		for i, o := range res.Outputs {
			got[i] = formatOutput(o.Alias, o.Type.String(), o.Nullable, o.IsCollection)
		}
		if !reflect.DeepEqual(want, got) {
			return &AssertionError{
				Type:     AssertOutputs,
				Backend:  id.String(),
				Expected: strings.Join(want, ", "),
				Actual:   strings.Join(got, ", "),
			}
		}
	}
	return nil
}

func formatOutput(alias, typ string, nullable, collection bool) string {
	s := alias + " " + typ
	if nullable {
		s += " nullable"
	}
	if collection {
		s += " collection"
	}
	return s
}

// assertRows compares executed rows in order. YAML integers are widened to
// int64 to match what the driver returns.
func assertRows(result *Result, a Assertion) error {
	if result.Rows == nil {
		return &AssertionError{Type: AssertRows, Expected: fmt.Sprintf("%d rows", len(a.Rows)), Actual: "query was not executed"}
	}
	got := result.Rows.Maps()
	want := make([]map[string]any, len(a.Rows))
	for i, row := range a.Rows {
		m := make(map[string]any, len(result.Rows.Columns))
		for _, c := range result.Rows.Columns {
			m[c] = nil
		}
		for k, v := range row {
			m[k] = normalizeValue(v)
		}
		want[i] = m
	}
	if !reflect.DeepEqual(want, got) {
		return &AssertionError{
			Type:     AssertRows,
			Expected: fmt.Sprintf("%v", want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

func assertRowCount(result *Result, a Assertion) error {
	got := -1
	if result.Rows != nil {
		got = len(result.Rows.Records)
	}
	if got != a.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows", a.Count),
			Actual:   fmt.Sprintf("%d rows", got),
		}
	}
	return nil
}

func assertBackendError(result *Result, a Assertion, id backend.ID) error {
	err, failed := result.CompileErrors[id]
	if !failed {
		return &AssertionError{Type: a.Type, Backend: id.String(), Expected: "error " + a.Code, Actual: "compiled successfully"}
	}
	if code := compileerr.CodeOf(err); code != a.Code {
		return &AssertionError{Type: a.Type, Backend: id.String(), Expected: "error " + a.Code, Actual: err.Error()}
	}
	return nil
}

func assertQueryText(result *Result, a Assertion) error {
	id := backend.ID(a.Backend)
	res, ok := result.Compiled[id]
	if !ok {
		return &AssertionError{Type: a.Type, Backend: a.Backend, Expected: a.Text, Actual: "no compilation"}
	}
	got := NormalizeWhitespace(res.Query)
	want := NormalizeWhitespace(a.Text)
	match := got == want
	if a.Type == AssertQueryContains {
		match = strings.Contains(got, want)
	}
	if !match {
		return &AssertionError{Type: a.Type, Backend: a.Backend, Expected: want, Actual: got}
	}
	return nil
}

// NormalizeWhitespace collapses every whitespace run to one space and trims
// the ends, so generated queries compare independent of layout.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// normalizeValue widens YAML-decoded values to the types the sqlite runner
// produces.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}
