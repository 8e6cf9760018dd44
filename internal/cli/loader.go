package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/schema"
)

// LoadError represents an error that occurred while loading command inputs.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// QueryFile is one query read from disk.
type QueryFile struct {
	Path string
	Text string
}

// ExpandQueryFiles resolves plain paths and doublestar patterns such as
// "queries/**/*.graphql" to a sorted, duplicate-free list of files.
func ExpandQueryFiles(args []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[{") {
			info, err := os.Stat(arg)
			if err != nil {
				return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("query file not found: %s", arg)}
			}
			if info.IsDir() {
				return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s is a directory; use a pattern such as %s/**/*.graphql", arg, arg)}
			}
			if !seen[arg] {
				seen[arg] = true
				files = append(files, arg)
			}
			continue
		}
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("bad pattern %q: %v", arg, err)}
		}
		if len(matches) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no query files match %s", arg)}
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// ReadQueryFiles expands args and reads every file.
func ReadQueryFiles(args []string) ([]QueryFile, error) {
	paths, err := ExpandQueryFiles(args)
	if err != nil {
		return nil, err
	}
	return readFiles(paths)
}

func readFiles(paths []string) ([]QueryFile, error) {
	files := make([]QueryFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading %s: %v", p, err)}
		}
		files = append(files, QueryFile{Path: p, Text: string(data)})
	}
	return files, nil
}

// LoadSchema loads the schema at path, which is required.
func LoadSchema(path string) (*schema.Schema, error) {
	if path == "" {
		return nil, &LoadError{Code: ErrCodeSchema, Message: "no schema given (use --schema or set schema in gqlc.yaml)"}
	}
	s, err := schema.Load(path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// RequireBackend parses the configured backend, which is required.
func RequireBackend(name string) (backend.ID, error) {
	if name == "" {
		return "", &LoadError{Code: ErrCodeGeneric, Message: "no backend given (use --backend or set backend in gqlc.yaml)"}
	}
	id, err := backend.Parse(name)
	if err != nil {
		return "", &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	return id, nil
}

// ParseParams turns repeated name=value flags into parameter values. A
// value is read as a JSON literal (30, true, ["a","b"]) and otherwise as a
// plain string, so --param name=Alice needs no quoting.
func ParseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimPrefix(strings.TrimSpace(name), "$")
		if !ok || name == "" {
			return nil, &LoadError{Code: ErrCodeBadParam, Message: fmt.Sprintf("parameter %q must be name=value", pair)}
		}
		if _, dup := params[name]; dup {
			return nil, &LoadError{Code: ErrCodeBadParam, Message: fmt.Sprintf("parameter %q given twice", name)}
		}
		if !json.Valid([]byte(raw)) {
			if looksJSON(raw) {
				return nil, &LoadError{Code: ErrCodeBadParam, Message: fmt.Sprintf("parameter %q: malformed JSON value %s", name, raw)}
			}
			params[name] = raw
			continue
		}
		v, err := decodeParam([]byte(raw))
		if err != nil {
			return nil, &LoadError{Code: ErrCodeBadParam, Message: fmt.Sprintf("parameter %q: %v", name, err)}
		}
		params[name] = v
	}
	return params, nil
}

// decodeParam reads one JSON parameter value. Integers stay int64 so they
// bind to Int parameters; unlike query literals, bindings may be floats.
func decodeParam(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return nativeParam(raw)
}

func nativeParam(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a valid value")
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("bad number %s", val)
		}
		return f, nil
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			ev, err := nativeParam(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = ev
		}
		return out, nil
	case map[string]any:
		return nil, fmt.Errorf("objects are not valid values")
	default:
		return val, nil
	}
}

// looksJSON reports whether raw was meant as a list or quoted string.
func looksJSON(raw string) bool {
	raw = strings.TrimSpace(raw)
	return strings.HasPrefix(raw, "[") || strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, `"`)
}
