package compiler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/gqlc/internal/backend"
	"github.com/roach88/gqlc/internal/ir"
	"github.com/roach88/gqlc/internal/schema"
)

// Cache stores compilation results by content key. *store.Store
// implements it.
type Cache interface {
	Get(ctx context.Context, key string) (*backend.CompilationResult, bool, error)
	Put(ctx context.Context, key string, res *backend.CompilationResult) error
}

// WithCache consults c before compiling and stores every successful result
// in it. Cache failures are logged and never fail a compilation.
func WithCache(c Cache) Option { return func(o *Options) { o.Cache = c } }

// SchemaFingerprint identifies the parts of s that influence compilation.
func SchemaFingerprint(s *schema.Schema) (string, error) {
	types := make([]any, 0)
	for _, name := range s.VertexNames() {
		v, _ := s.Vertex(name)
		props := make([]any, len(v.Properties))
		for i, p := range v.Properties {
			props[i] = map[string]any{
				"name":       p.Name,
				"type":       p.Type.String(),
				"column":     p.Column,
				"graph_name": p.GraphName,
			}
		}
		types = append(types, map[string]any{
			"name":        v.Name,
			"table":       v.Table,
			"primary_key": v.PrimaryKey,
			"label":       v.Label,
			"properties":  props,
		})
	}
	edges := make([]any, 0)
	for _, e := range s.Edges() {
		edges = append(edges, map[string]any{
			"name":        e.Name,
			"from":        e.From,
			"to":          e.To,
			"out_field":   e.OutField,
			"in_field":    e.InField,
			"label":       e.Label,
			"cardinality": string(e.Cardinality),
			"recursive":   e.Recursive,
			"sql": map[string]any{
				"table":       e.SQL.Table,
				"from_column": e.SQL.FromColumn,
				"to_column":   e.SQL.ToColumn,
			},
		})
	}
	return ir.Fingerprint(ir.DomainSchema, map[string]any{
		"types": types,
		"edges": edges,
		"directives": map[string]any{
			"scalar": s.Directives(schema.ScalarConstruct),
			"edge":   s.Directives(schema.EdgeConstruct),
		},
	})
}

// cacheKey addresses one compilation. Bindings are encoded with
// encoding/json, which sorts map keys, because they may hold floats that
// canonical JSON rejects.
func (c *Compiler) cacheKey(text string, id backend.ID, params map[string]any) (string, error) {
	bound, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("cache key: %w", err)
	}
	l := c.opts.Limits
	return ir.Fingerprint(ir.DomainCache, map[string]any{
		"schema":  c.schemaFP,
		"query":   text,
		"backend": string(id),
		"params":  string(bound),
		"limits": map[string]any{
			"max_traversal_depth": l.MaxTraversalDepth,
			"max_blocks":          l.MaxBlocks,
			"max_recurse_depth":   l.MaxRecurseDepth,
		},
	})
}

// lookup returns a cached result for the compilation, or a key to store
// the fresh result under. key is "" when caching is off or failed.
func (c *Compiler) lookup(ctx context.Context, text string, id backend.ID, params map[string]any) (res *backend.CompilationResult, key string) {
	if c.opts.Cache == nil || c.schemaFP == "" || !id.Valid() {
		return nil, ""
	}
	key, err := c.cacheKey(text, id, params)
	if err != nil {
		c.opts.Logger.Warn("skipping cache", "error", err)
		return nil, ""
	}
	res, ok, err := c.opts.Cache.Get(ctx, key)
	if err != nil {
		c.opts.Logger.Warn("cache lookup failed", "key", key[:12], "error", err)
		return nil, key
	}
	c.opts.Metrics.ObserveCacheLookup(id.String(), ok)
	if !ok {
		return nil, key
	}
	c.opts.Logger.Debug("cache hit", "backend", id, "key", key[:12])
	return res, key
}

func (c *Compiler) store(ctx context.Context, key string, res *backend.CompilationResult) {
	if key == "" {
		return
	}
	if err := c.opts.Cache.Put(ctx, key, res); err != nil {
		c.opts.Logger.Warn("cache store failed", "key", key[:12], "error", err)
	}
}
