package harness

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/ir"
	"github.com/roach88/gqlc/internal/testutil"
)

// Render is the golden-file form of a compilation: the query text, then
// the parameter list, then the output metadata. The fingerprint is left
// out so that golden files stay reviewable by hand.
func Render(res *backend.CompilationResult) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "-- backend: %s\n", res.Backend)
	sb.WriteString(res.Query)
	sb.WriteString("\n-- parameters\n")
	for _, p := range res.Parameters {
		fmt.Fprintf(&sb, "%s %s", p.Name, p.Type)
		if p.Bound {
			v, err := ir.FromNative(p.Value)
			if err != nil {
				fmt.Fprintf(&sb, " = %v", p.Value)
			} else {
				fmt.Fprintf(&sb, " = %s", ir.FormatValue(v))
			}
		}
		sb.WriteString("\n")
	}
	sb.WriteString("-- outputs\n")
	for _, o := range res.Outputs {
		sb.WriteString(formatOutput(o.Alias, o.Type.String(), o.Nullable, o.IsCollection))
		sb.WriteString("\n")
	}
	return []byte(sb.String())
}

// RunWithGolden executes a scenario, fails t on any assertion failure and,
// when the scenario asks for it, compares each compiled backend against
// testdata/golden/{scenario.Name}.{backend}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, sc *Scenario) *Result {
	t.Helper()

	result, err := Run(context.Background(), sc, testutil.NewTestLogger(t))
	if err != nil {
		t.Fatalf("scenario %s: %v", sc.Name, err)
	}
	for _, msg := range result.Errors {
		t.Errorf("scenario %s: %s", sc.Name, msg)
	}
	if !sc.Golden {
		return result
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, id := range backend.All() {
		res, ok := result.Compiled[id]
		if !ok {
			continue
		}
		g.Assert(t, sc.Name+"."+id.String(), Render(res))
	}
	return result
}

// GoldenPath is the golden file of one backend's compilation.
func GoldenPath(dir, scenario string, id backend.ID) string {
	return filepath.Join(dir, scenario+"."+id.String()+".golden")
}

// CompareGolden checks every compilation in result against its golden file
// under dir and returns one message per mismatch or missing file. With
// update set, golden files are rewritten instead and no mismatches are
// reported.
func CompareGolden(dir string, sc *Scenario, result *Result, update bool) ([]string, error) {
	var msgs []string
	for _, id := range backend.All() {
		res, ok := result.Compiled[id]
		if !ok {
			continue
		}
		path := GoldenPath(dir, sc.Name, id)
		got := Render(res)
		if update {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create golden dir: %w", err)
			}
			if err := os.WriteFile(path, got, 0o644); err != nil {
				return nil, fmt.Errorf("write golden file: %w", err)
			}
			continue
		}
		want, err := os.ReadFile(path)
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("%s: golden file %s missing (run with --update)", id, path))
			continue
		}
		if !bytes.Equal(want, got) {
			msgs = append(msgs, fmt.Sprintf("%s: output differs from %s", id, path))
		}
	}
	return msgs, nil
}
