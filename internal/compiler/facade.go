// Package compiler runs the whole pipeline: parse, validate, IR build and
// backend compilation.
//
// The package links every backend, so callers select one by ID only:
//
//	res, err := compiler.Compile(s, text, backend.Postgres)
package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/gqlc/internal/backend"
	_ "github.com/roach88/gqlc/internal/backend/cypher"
	_ "github.com/roach88/gqlc/internal/backend/gremlin"
	_ "github.com/roach88/gqlc/internal/backend/match"
	_ "github.com/roach88/gqlc/internal/backend/sqlgen"
	"github.com/roach88/gqlc/internal/compileerr"
	"github.com/roach88/gqlc/internal/ir"
	"github.com/roach88/gqlc/internal/irbuild"
	"github.com/roach88/gqlc/internal/metrics"
	"github.com/roach88/gqlc/internal/query"
	"github.com/roach88/gqlc/internal/schema"
)

// Options configure a Compiler. Zero values are usable: default limits,
// a discarding logger and no metrics.
type Options struct {
	Limits  ir.Limits
	Logger  *slog.Logger
	Metrics *metrics.Recorder
	Params  map[string]any
	Cache   Cache
}

// Option mutates Options.
type Option func(*Options)

// WithLimits sets the resource ceilings.
func WithLimits(l ir.Limits) Option { return func(o *Options) { o.Limits = l } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *Options) { o.Logger = l } }

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option { return func(o *Options) { o.Metrics = m } }

// WithParams binds parameter values at compile time. Each value is checked
// against the type inferred for its parameter.
func WithParams(p map[string]any) Option { return func(o *Options) { o.Params = p } }

// Compiler is safe for concurrent use; it holds only immutable state.
type Compiler struct {
	schema   *schema.Schema
	schemaFP string // set only when a cache is configured
	opts     Options
}

// New returns a Compiler over s.
func New(s *schema.Schema, opts ...Option) *Compiler {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	o.Limits = o.Limits.WithDefaults()
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	c := &Compiler{schema: s, opts: o}
	if o.Cache != nil && s != nil {
		fp, err := SchemaFingerprint(s)
		if err != nil {
			o.Logger.Warn("compile cache disabled", "error", err)
		}
		c.schemaFP = fp
	}
	return c
}

// Compile is the one-shot entry point: text compiled for backend id.
func Compile(s *schema.Schema, text string, id backend.ID, opts ...Option) (*backend.CompilationResult, error) {
	c := New(s, opts...)
	return c.Compile(context.Background(), text, id, c.opts.Params)
}

// Plan is the backend-independent result of the front half of the
// pipeline.
type Plan struct {
	Name   string
	Blocks []ir.Block
	// Params maps each parameter to its inferred type; ParamOrder lists
	// them in first-use order.
	Params     map[string]schema.Type
	ParamOrder []string
	Outputs    []ir.OutputInfo
}

// Plan parses, validates and lowers text.
func (c *Compiler) Plan(text string) (*Plan, error) {
	if c.schema == nil {
		return nil, errors.New("compiler: nil schema")
	}
	doc, err := query.Parse(text, c.opts.Limits)
	if err != nil {
		return nil, err
	}
	q, err := query.Validate(c.schema, doc)
	if err != nil {
		return nil, err
	}
	blocks, err := irbuild.Build(q, c.opts.Limits)
	if err != nil {
		return nil, err
	}
	return &Plan{
		Name:       q.Name,
		Blocks:     blocks,
		Params:     q.Params,
		ParamOrder: q.ParamOrder,
		Outputs:    ir.OutputMetadata(blocks),
	}, nil
}

// Check runs Plan and keeps only the error.
func (c *Compiler) Check(text string) error {
	_, err := c.Plan(text)
	return err
}

// Compile runs the full pipeline for backend id. params override the
// bindings given with WithParams. ctx is consulted between phases only.
func (c *Compiler) Compile(ctx context.Context, text string, id backend.ID, params map[string]any) (*backend.CompilationResult, error) {
	if params == nil {
		params = c.opts.Params
	}
	cached, key := c.lookup(ctx, text, id, params)
	if cached != nil {
		return cached, nil
	}

	start := time.Now()
	res, blocks, err := c.compile(ctx, text, id, params)
	elapsed := time.Since(start)
	if err != nil {
		c.opts.Metrics.ObserveFailure(id.String(), string(compileerr.PhaseOf(err)), compileerr.CodeOf(err), elapsed)
		c.opts.Logger.Debug("compile failed",
			"backend", id,
			"phase", compileerr.PhaseOf(err),
			"code", compileerr.CodeOf(err),
			"error", err)
		return nil, err
	}
	c.opts.Metrics.ObserveSuccess(id.String(), elapsed, blocks, len(res.Parameters))
	c.opts.Logger.Info("compiled query",
		"backend", id,
		"blocks", blocks,
		"parameters", len(res.Parameters),
		"outputs", len(res.Outputs),
		"fingerprint", res.Fingerprint[:12],
		"duration", elapsed)
	c.store(ctx, key, res)
	return res, nil
}

func (c *Compiler) compile(ctx context.Context, text string, id backend.ID, params map[string]any) (*backend.CompilationResult, int, error) {
	be, err := backend.Lookup(id)
	if err != nil {
		return nil, 0, err
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	plan, err := c.Plan(text)
	if err != nil {
		return nil, 0, err
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	bind, err := c.bindings(plan, params)
	if err != nil {
		return nil, 0, err
	}
	res, err := be.Compile(plan.Blocks, c.schema, bind)
	if err != nil {
		return nil, 0, err
	}
	return res, len(plan.Blocks), nil
}

// bindings checks params against the plan. Values for parameters the query
// does not use are ignored.
func (c *Compiler) bindings(plan *Plan, params map[string]any) (backend.Bindings, error) {
	if len(params) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	bind := make(backend.Bindings, len(params))
	var violations []compileerr.Violation
	for _, name := range names {
		v := params[name]
		t, ok := plan.Params[name]
		if !ok {
			c.opts.Logger.Debug("ignoring binding for unused parameter", "param", name)
			continue
		}
		if !ir.NativeAssignable(v, t) {
			violations = append(violations, compileerr.Violation{
				Code:    compileerr.CodeParameterConflict,
				Path:    "$" + name,
				Message: fmt.Sprintf("bound value of Go type %T does not fit parameter type %s", v, t),
			})
			continue
		}
		bind[name] = v
	}
	if len(violations) > 0 {
		return nil, compileerr.NewValidationError(violations)
	}
	if err := c.checkRecurseBindings(plan.Blocks, bind); err != nil {
		return nil, err
	}
	return bind, nil
}

// checkRecurseBindings applies the recursion ceiling to depths supplied as
// bound parameters. Literal depths were checked during the IR build.
func (c *Compiler) checkRecurseBindings(blocks []ir.Block, bind backend.Bindings) error {
	for _, b := range blocks {
		t, ok := b.(ir.Traverse)
		if !ok || t.Recurse == nil {
			continue
		}
		v, ok := t.Recurse.(ir.Variable)
		if !ok {
			continue
		}
		raw, bound := bind[v.Name]
		if !bound {
			continue
		}
		n, ok := intValue(raw)
		if !ok || n < 0 {
			return compileerr.NewValidationError([]compileerr.Violation{{
				Code:    compileerr.CodeBadArgument,
				Path:    t.To.String(),
				Message: fmt.Sprintf("recursion depth $%s must be a non-negative integer, got %v", v.Name, raw),
			}})
		}
		if n > int64(c.opts.Limits.MaxRecurseDepth) {
			return &compileerr.ResourceLimitError{
				Limit: compileerr.LimitRecurseDepth,
				Value: int(n),
				Max:   c.opts.Limits.MaxRecurseDepth,
			}
		}
	}
	return nil
}

func intValue(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint32:
		return int64(x), true
	case ir.Int:
		return int64(x), true
	}
	return 0, false
}
