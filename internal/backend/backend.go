// Package backend defines the contract every target-language compiler
// implements, plus the pieces they share: the backend ID enumeration, the
// compilation result, parameter binding and the block-nesting stack.
//
// Compilers live in sub-packages and register themselves from init, the way
// database/sql drivers do. Importing a compiler package is what makes its
// IDs available through Lookup.
package backend

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/gqlc/internal/ir"
	"github.com/roach88/gqlc/internal/schema"
)

// ID names a target backend.
type ID string

const (
	SQLite   ID = "sqlite"
	Postgres ID = "postgres"
	Gremlin  ID = "gremlin"
	Match    ID = "match"
	Cypher   ID = "cypher"
)

// All returns every backend ID in presentation order.
func All() []ID {
	return []ID{SQLite, Postgres, Gremlin, Match, Cypher}
}

func (id ID) String() string { return string(id) }

// Valid reports whether id is one of the known backends.
func (id ID) Valid() bool {
	switch id {
	case SQLite, Postgres, Gremlin, Match, Cypher:
		return true
	}
	return false
}

// Relational reports whether id emits SQL for a relational database.
func (id ID) Relational() bool {
	return id == SQLite || id == Postgres
}

// Parse converts a backend name to an ID. Matching is case-insensitive.
func Parse(s string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(s)))
	if !id.Valid() {
		names := make([]string, 0, len(All()))
		for _, b := range All() {
			names = append(names, string(b))
		}
		return "", fmt.Errorf("unknown backend %q (want one of %s)", s, strings.Join(names, ", "))
	}
	return id, nil
}

// Bindings are parameter values supplied at compile time, keyed by
// parameter name without the leading '$'.
type Bindings map[string]any

// Compiler turns a block list into a backend query. Implementations are
// pure and deterministic: the same blocks, schema and bindings always
// produce a byte-identical result.
type Compiler interface {
	Compile(blocks []ir.Block, s *schema.Schema, bind Bindings) (*CompilationResult, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[ID]Compiler)
)

// Register makes a compiler available under id. It panics on an unknown ID
// or a duplicate registration.
func Register(id ID, c Compiler) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if !id.Valid() {
		panic(fmt.Sprintf("backend: Register of unknown backend %q", id))
	}
	if c == nil {
		panic("backend: Register compiler is nil")
	}
	if _, dup := registry[id]; dup {
		panic(fmt.Sprintf("backend: Register called twice for %s", id))
	}
	registry[id] = c
}

// Lookup returns the compiler for id.
func Lookup(id ID) (Compiler, error) {
	switch id {
	case SQLite, Postgres, Gremlin, Match, Cypher:
		registryMu.RLock()
		c, ok := registry[id]
		registryMu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("backend %s is not linked into this binary", id)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", id)
	}
}

// Registered lists the IDs with a registered compiler, sorted.
func Registered() []ID {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ids := make([]ID, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
