package query

import (
	"sort"

	"github.com/roach88/gqlc/internal/schema"
)

// argSpec describes one directive argument. Aliases are alternative names
// accepted for compatibility with older query text.
type argSpec struct {
	Name     string
	Aliases  []string
	Required bool
}

// directiveSpec is one row of the static directive table.
type directiveSpec struct {
	Name       string
	Target     schema.Construct
	Args       []argSpec
	Repeatable bool

	// Exactly one of scalar/edge is set, matching Target.
	scalar func(v *validator, f *ScalarField, d Directive, args map[string]Argument, sc scope)
	edge   func(v *validator, e *EdgeField, d Directive, args map[string]Argument, sc scope)
}

// directives is the closed set of supported directives. It is filled once
// by init and never mutated afterwards.
var directives map[string]directiveSpec

func init() {
	specs := []directiveSpec{
		{
			Name:   "output",
			Target: schema.ScalarConstruct,
			Args:   []argSpec{{Name: "name", Aliases: []string{"out_name"}, Required: true}},
			scalar: (*validator).applyOutput,
		},
		{
			Name:   "tag",
			Target: schema.ScalarConstruct,
			Args:   []argSpec{{Name: "name", Aliases: []string{"tag_name"}, Required: true}},
			scalar: (*validator).applyTag,
		},
		{
			Name:   "filter",
			Target: schema.ScalarConstruct,
			Args: []argSpec{
				{Name: "op", Aliases: []string{"op_name"}, Required: true},
				{Name: "args", Aliases: []string{"value"}},
			},
			Repeatable: true,
			scalar:     (*validator).applyFilter,
		},
		{
			Name:   "optional",
			Target: schema.EdgeConstruct,
			edge:   (*validator).applyOptional,
		},
		{
			Name:   "fold",
			Target: schema.EdgeConstruct,
			edge:   (*validator).applyFold,
		},
		{
			Name:   "recurse",
			Target: schema.EdgeConstruct,
			Args:   []argSpec{{Name: "depth", Required: true}},
			edge:   (*validator).applyRecurse,
		},
	}
	directives = make(map[string]directiveSpec, len(specs))
	for _, s := range specs {
		directives[s.Name] = s
	}
}

// DirectiveNames returns the names of all supported directives, sorted.
func DirectiveNames() []string {
	names := make([]string, 0, len(directives))
	for n := range directives {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// canonicalArg maps an argument name or alias to its canonical name.
func (d directiveSpec) canonicalArg(name string) (argSpec, bool) {
	for _, a := range d.Args {
		if a.Name == name {
			return a, true
		}
		for _, alias := range a.Aliases {
			if alias == name {
				return a, true
			}
		}
	}
	return argSpec{}, false
}
