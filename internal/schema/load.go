package schema

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaDefinition string

// LoadError reports a schema file that could not be read or decoded.
type LoadError struct {
	Path    string
	Line    int
	Column  int
	Message string
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Load reads a schema from a YAML file, a CUE file, or a directory holding a
// CUE package, then builds it.
func Load(path string) (*Schema, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Path: path, Message: err.Error()}
	}
	if info.IsDir() {
		return LoadCUE(path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path)
	case ".cue":
		return LoadCUE(path)
	default:
		return nil, &LoadError{Path: path, Message: "unsupported schema file extension (want .yaml, .yml or .cue)"}
	}
}

// LoadYAML reads and builds a YAML schema document. Unknown keys are
// rejected so typos surface as errors.
func LoadYAML(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Message: err.Error()}
	}
	doc, err := DecodeYAML(data)
	if err != nil {
		return nil, &LoadError{Path: path, Message: err.Error()}
	}
	return Build(doc)
}

// DecodeYAML decodes a YAML schema document without building it.
func DecodeYAML(data []byte) (Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return doc, nil
}

// LoadCUE loads a CUE schema from a file or a package directory. The value
// is unified with the #Schema definition, must be concrete, and is then
// decoded into a Document and built.
func LoadCUE(path string) (*Schema, error) {
	ctx := cuecontext.New()

	var v cue.Value
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Path: path, Message: err.Error()}
	}
	if info.IsDir() {
		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, &LoadError{Path: path, Message: "no CUE instances loaded"}
		}
		if instances[0].Err != nil {
			return nil, cueLoadError(path, instances[0].Err)
		}
		v = ctx.BuildInstance(instances[0])
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Path: path, Message: err.Error()}
		}
		v = ctx.CompileBytes(data, cue.Filename(path))
	}
	if err := v.Err(); err != nil {
		return nil, cueLoadError(path, err)
	}

	doc, err := decodeCUE(ctx, v)
	if err != nil {
		return nil, cueLoadError(path, err)
	}
	return Build(doc)
}

// CompileCUE builds a schema from CUE source text. Used by tests and by
// callers that embed their schema.
func CompileCUE(src string) (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return nil, cueLoadError("schema.cue", err)
	}
	doc, err := decodeCUE(ctx, v)
	if err != nil {
		return nil, cueLoadError("schema.cue", err)
	}
	return Build(doc)
}

func decodeCUE(ctx *cue.Context, v cue.Value) (Document, error) {
	def := ctx.CompileString(schemaDefinition, cue.Filename("gqlc/schema.cue"))
	if err := def.Err(); err != nil {
		return Document{}, err
	}
	unified := def.LookupPath(cue.ParsePath("#Schema")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Document{}, err
	}
	var doc Document
	if err := unified.Decode(&doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// cueLoadError keeps the position of the first CUE error, if any.
func cueLoadError(path string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Path: path, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Path: path, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 && positions[0].IsValid() {
		le.Path = positions[0].Filename()
		le.Line = positions[0].Line()
		le.Column = positions[0].Column()
	}
	return le
}
