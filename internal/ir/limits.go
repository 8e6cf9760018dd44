package ir

// Limits bound the work a single compilation may do. Zero fields fall back
// to the defaults.
type Limits struct {
	MaxTraversalDepth int `koanf:"max_traversal_depth" json:"max_traversal_depth"`
	MaxBlocks         int `koanf:"max_blocks" json:"max_blocks"`
	MaxRecurseDepth   int `koanf:"max_recurse_depth" json:"max_recurse_depth"`
}

// Default ceilings.
const (
	DefaultMaxTraversalDepth = 32
	DefaultMaxBlocks         = 4096
	DefaultMaxRecurseDepth   = 64
)

// DefaultLimits returns the default ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxTraversalDepth: DefaultMaxTraversalDepth,
		MaxBlocks:         DefaultMaxBlocks,
		MaxRecurseDepth:   DefaultMaxRecurseDepth,
	}
}

// WithDefaults fills zero fields from DefaultLimits.
func (l Limits) WithDefaults() Limits {
	d := DefaultLimits()
	if l.MaxTraversalDepth <= 0 {
		l.MaxTraversalDepth = d.MaxTraversalDepth
	}
	if l.MaxBlocks <= 0 {
		l.MaxBlocks = d.MaxBlocks
	}
	if l.MaxRecurseDepth <= 0 {
		l.MaxRecurseDepth = d.MaxRecurseDepth
	}
	return l
}
