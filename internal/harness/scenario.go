package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/compileerr"
)

// Scenario is one conformance case: a query compiled for a set of backends
// and checked by assertions, golden files and optionally execution.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden files.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the schema file, relative to the scenario file.
	Schema string `yaml:"schema"`

	// Query is the query text.
	Query string `yaml:"query"`

	// Params are bound at compile time.
	Params map[string]any `yaml:"params,omitempty"`

	// Backends to compile for. Empty means every backend.
	Backends []string `yaml:"backends,omitempty"`

	// Fixtures is a SQL script, relative to the scenario file, loaded into
	// a fresh in-memory SQLite database before execution.
	Fixtures string `yaml:"fixtures,omitempty"`

	// RunParams supply the parameters left unbound at compile time when
	// the sqlite result is executed.
	RunParams map[string]any `yaml:"run_params,omitempty"`

	// Golden compares every successful compilation against
	// testdata/golden/{name}.{backend}.golden.
	Golden bool `yaml:"golden,omitempty"`

	// Assertions validate compilation results and executed rows.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion checks one property of a scenario run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Backend scopes query_contains, query_equals and unsupported.
	Backend string `yaml:"backend,omitempty"`

	// Code is the expected error code (unsupported, error).
	Code string `yaml:"code,omitempty"`

	// Text is compared whitespace-insensitively (query_contains,
	// query_equals).
	Text string `yaml:"text,omitempty"`

	// Outputs is the expected output metadata (outputs).
	Outputs []OutputSpec `yaml:"outputs,omitempty"`

	// Rows are the expected executed rows in order (rows).
	Rows []map[string]any `yaml:"rows,omitempty"`

	// Count is the expected number of executed rows (row_count).
	Count int `yaml:"count,omitempty"`
}

// OutputSpec is the YAML form of one output column.
type OutputSpec struct {
	Alias      string `yaml:"alias"`
	Type       string `yaml:"type"`
	Nullable   bool   `yaml:"nullable,omitempty"`
	Collection bool   `yaml:"collection,omitempty"`
}

// Assertion type constants.
const (
	AssertOutputs       = "outputs"
	AssertRows          = "rows"
	AssertRowCount      = "row_count"
	AssertUnsupported   = "unsupported"
	AssertError         = "error"
	AssertQueryContains = "query_contains"
	AssertQueryEquals   = "query_equals"
)

// LoadScenario reads and parses a scenario YAML file. Relative schema and
// fixture paths are resolved against the file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	scenario.Schema = resolve(base, scenario.Schema)
	scenario.Fixtures = resolve(base, scenario.Fixtures)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every scenario matching a doublestar pattern such
// as "testdata/scenarios/**/*.yaml", sorted by path.
func LoadScenarios(pattern string) ([]*Scenario, error) {
	paths, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad scenario pattern %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenarios match %q", pattern)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		sc, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		if prev, dup := seen[sc.Name]; dup {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", p, sc.Name, prev)
		}
		seen[sc.Name] = p
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// BackendIDs returns the parsed backend list, or every backend when the
// list is empty.
func (s *Scenario) BackendIDs() ([]backend.ID, error) {
	if len(s.Backends) == 0 {
		return backend.All(), nil
	}
	ids := make([]backend.ID, 0, len(s.Backends))
	for _, b := range s.Backends {
		id, err := backend.Parse(b)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if _, err := os.Stat(s.Schema); err != nil {
		return fmt.Errorf("schema file not found: %s", s.Schema)
	}
	if s.Query == "" {
		return fmt.Errorf("query is required")
	}
	if s.Fixtures != "" {
		if _, err := os.Stat(s.Fixtures); err != nil {
			return fmt.Errorf("fixtures file not found: %s", s.Fixtures)
		}
	}
	if _, err := s.BackendIDs(); err != nil {
		return err
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], s); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, s *Scenario) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOutputs:
		if len(a.Outputs) == 0 {
			return fmt.Errorf("assertions[%d]: outputs list is required for outputs", index)
		}
	case AssertRows, AssertRowCount:
		if s.Fixtures == "" {
			return fmt.Errorf("assertions[%d]: %s requires scenario fixtures", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertUnsupported:
		if a.Backend == "" {
			return fmt.Errorf("assertions[%d]: backend is required for unsupported", index)
		}
		if a.Code == "" {
			a.Code = compileerr.CodeUnsupported
		}
	case AssertError:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for error", index)
		}
	case AssertQueryContains, AssertQueryEquals:
		if a.Backend == "" || a.Text == "" {
			return fmt.Errorf("assertions[%d]: backend and text are required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Backend != "" {
		if _, err := backend.Parse(a.Backend); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	}
	return nil
}
