package query

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/gqlc/internal/compileerr"
	"github.com/roach88/gqlc/internal/ir"
	"github.com/roach88/gqlc/internal/schema"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// scope is the validation context of one location. It is passed by value;
// fold points at state shared by every location of one fold.
type scope struct {
	path     string
	typeName string
	location int
	inFold   bool
	foldRoot bool // location is the target of the @fold edge itself
	fold     *foldState
}

func (sc scope) field(name string) string { return sc.path + "." + name }

type foldState struct {
	outputLoc  int
	outputPath string
}

type tagDef struct {
	typ schema.Type
	pos compileerr.Pos
}

type tagUse struct {
	name string
	want schema.Type
	pos  compileerr.Pos
	path string
}

type validator struct {
	schema     *schema.Schema
	violations []compileerr.Violation

	aliases    map[string]compileerr.Pos
	tags       map[string]tagDef
	tagUses    []tagUse
	params     map[string]schema.Type
	paramOrder []string
	seq        int
	nextLoc    int
}

// Validate resolves doc against s. It collects every violation instead of
// stopping at the first and returns them as one *compileerr.ValidationError.
func Validate(s *schema.Schema, doc *Document) (*Query, error) {
	if s == nil {
		return nil, errors.New("validate: nil schema")
	}
	if doc == nil || doc.Root == nil {
		return nil, errors.New("validate: empty document")
	}

	v := &validator{
		schema:  s,
		aliases: make(map[string]compileerr.Pos),
		tags:    make(map[string]tagDef),
		params:  make(map[string]schema.Type),
	}
	q := v.validateRoot(doc)
	v.checkTagUses()
	if q != nil && v.seq == 0 {
		v.addf(compileerr.CodeNoOutputs, q.RootType, q.Pos, "query has no @output directives")
	}

	if len(v.violations) > 0 {
		return nil, compileerr.NewValidationError(v.violations)
	}
	q.Params = v.params
	q.ParamOrder = v.paramOrder
	q.OutputCount = v.seq
	return q, nil
}

func (v *validator) addf(code, path string, pos compileerr.Pos, format string, args ...any) {
	v.violations = append(v.violations, compileerr.Violation{
		Code:    code,
		Path:    path,
		Message: fmt.Sprintf(format, args...),
		Pos:     pos,
	})
}

func (v *validator) newLocation() int {
	id := v.nextLoc
	v.nextLoc++
	return id
}

func (v *validator) validateRoot(doc *Document) *Query {
	root := doc.Root
	path := root.TypeName

	for _, a := range root.Arguments {
		v.addf(compileerr.CodeFieldArguments, path, a.Pos, "field arguments are not supported")
	}
	for _, d := range root.Directives {
		v.addf(compileerr.CodeRoot, path, d.Pos, "directive @%s is not allowed on the root vertex", d.Name)
	}
	if _, ok := v.schema.Vertex(root.TypeName); !ok {
		v.addf(compileerr.CodeUnknownType, path, root.Pos, "unknown vertex type %q", root.TypeName)
		return nil
	}
	if !root.HasSelection {
		v.addf(compileerr.CodeRoot, path, root.Pos, "root vertex %s must have a selection set", root.TypeName)
		return nil
	}

	sc := scope{path: path, typeName: root.TypeName, location: v.newLocation()}
	return &Query{
		Name:       doc.OperationName,
		RootType:   root.TypeName,
		Pos:        root.Pos,
		Selections: v.validateSelections(root.Selections, sc),
	}
}

// validateSelections validates one selection set. Property fields must come
// before edge fields: a location's properties are lowered before its edges,
// so text order and traversal order then agree for tag references.
func (v *validator) validateSelections(fields []*Field, sc scope) []Selection {
	out := make([]Selection, 0, len(fields))
	var firstEdge *Field
	for _, f := range fields {
		sel := v.validateField(f, sc)
		switch sel.(type) {
		case *EdgeField:
			if firstEdge == nil {
				firstEdge = f
			}
		case *ScalarField:
			if firstEdge != nil {
				v.addf(compileerr.CodeSelectionShape, sc.field(f.Name), f.Pos,
					"property field %q must come before edge field %q", f.Name, firstEdge.Name)
			}
		}
		if sel != nil {
			out = append(out, sel)
		}
	}
	return out
}

func (v *validator) validateField(f *Field, sc scope) Selection {
	path := sc.field(f.Name)
	for _, a := range f.Arguments {
		v.addf(compileerr.CodeFieldArguments, path, a.Pos, "field arguments are not supported")
	}

	if f.Name == schema.CountField {
		if !sc.foldRoot {
			v.addf(compileerr.CodeFoldScope, path, f.Pos, "%s is only valid directly inside a @fold", schema.CountField)
			return nil
		}
		if f.HasSelection {
			v.addf(compileerr.CodeSelectionShape, path, f.Pos, "%s cannot have a selection set", schema.CountField)
		}
		sf := &ScalarField{Name: f.Name, Pos: f.Pos, Type: schema.Type{Kind: schema.Int}, Count: true}
		v.applyDirectives(f, path, schema.ScalarConstruct, sc, sf, nil)
		return sf
	}

	field, ok := v.schema.Field(sc.typeName, f.Name)
	if !ok {
		v.addf(compileerr.CodeUnknownField, path, f.Pos, "type %s has no field %q", sc.typeName, f.Name)
		return nil
	}

	switch field.Kind {
	case schema.PropertyField:
		if f.HasSelection {
			v.addf(compileerr.CodeSelectionShape, path, f.Pos, "property %q cannot have a selection set", f.Name)
		}
		sf := &ScalarField{Name: f.Name, Pos: f.Pos, Type: field.Property.Type}
		v.applyDirectives(f, path, schema.ScalarConstruct, sc, sf, nil)
		return sf

	case schema.EdgeField:
		ef := &EdgeField{Name: f.Name, Pos: f.Pos, Traversal: field.Traversal}
		v.applyDirectives(f, path, schema.EdgeConstruct, sc, nil, ef)
		v.checkEdgeCombination(ef, path)
		if !f.HasSelection {
			v.addf(compileerr.CodeSelectionShape, path, f.Pos, "edge %q requires a selection set", f.Name)
			return ef
		}
		child := scope{
			path:     path,
			typeName: ef.Traversal.Target,
			location: v.newLocation(),
			inFold:   sc.inFold || ef.Fold != nil,
			fold:     sc.fold,
		}
		if ef.Fold != nil && !sc.inFold {
			child.foldRoot = true
			child.fold = &foldState{outputLoc: -1}
		}
		ef.Selections = v.validateSelections(f.Selections, child)
		return ef
	}
	return nil
}

// applyDirectives resolves f's directives onto exactly one of sf and ef.
func (v *validator) applyDirectives(f *Field, path string, construct schema.Construct, sc scope, sf *ScalarField, ef *EdgeField) {
	seen := make(map[string]bool, len(f.Directives))
	for _, d := range f.Directives {
		spec, ok := directives[d.Name]
		if !ok {
			v.addf(compileerr.CodeUnknownDirective, path, d.Pos, "unknown directive @%s", d.Name)
			continue
		}
		if spec.Target != construct {
			v.addf(compileerr.CodeDirectiveNotAllowed, path, d.Pos, "@%s is not allowed on %s field %q", d.Name, construct, f.Name)
			continue
		}
		if !v.schema.DirectiveAllowed(construct, d.Name) {
			v.addf(compileerr.CodeDirectiveNotAllowed, path, d.Pos, "@%s is not permitted on %s fields by this schema", d.Name, construct)
			continue
		}
		if seen[d.Name] && !spec.Repeatable {
			v.addf(compileerr.CodeDuplicateDirective, path, d.Pos, "duplicate @%s", d.Name)
			continue
		}
		seen[d.Name] = true

		args, ok := v.directiveArgs(spec, d, path)
		if !ok {
			continue
		}
		if sf != nil {
			spec.scalar(v, sf, d, args, sc)
		} else {
			spec.edge(v, ef, d, args, sc)
		}
	}
}

// directiveArgs maps d's arguments to canonical names, reporting unknown,
// repeated and missing ones.
func (v *validator) directiveArgs(spec directiveSpec, d Directive, path string) (map[string]Argument, bool) {
	args := make(map[string]Argument, len(d.Arguments))
	ok := true
	for _, a := range d.Arguments {
		as, known := spec.canonicalArg(a.Name)
		if !known {
			v.addf(compileerr.CodeBadArgument, path, a.Pos, "@%s has no argument %q", d.Name, a.Name)
			ok = false
			continue
		}
		if _, dup := args[as.Name]; dup {
			v.addf(compileerr.CodeBadArgument, path, a.Pos, "argument %q given more than once on @%s", as.Name, d.Name)
			ok = false
			continue
		}
		args[as.Name] = a
	}
	for _, as := range spec.Args {
		if _, present := args[as.Name]; as.Required && !present {
			v.addf(compileerr.CodeBadArgument, path, d.Pos, "@%s requires argument %q", d.Name, as.Name)
			ok = false
		}
	}
	return args, ok
}

func (v *validator) identifierArg(a Argument, what, path string) (string, bool) {
	s, ok := a.Value.(StringValue)
	if !ok || !identRe.MatchString(s.Value) {
		v.addf(compileerr.CodeBadArgument, path, a.Pos, "%s must be a non-empty identifier string", what)
		return "", false
	}
	return s.Value, true
}

func (v *validator) applyOutput(sf *ScalarField, d Directive, args map[string]Argument, sc scope) {
	path := sc.field(sf.Name)
	alias, ok := v.identifierArg(args["name"], "@output name", path)
	if !ok {
		return
	}
	if prev, dup := v.aliases[alias]; dup {
		v.addf(compileerr.CodeDuplicateAlias, path, d.Pos, "output name %q already used at %s", alias, prev)
	} else {
		v.aliases[alias] = d.Pos
	}
	if sc.inFold {
		switch {
		case sc.fold.outputLoc < 0:
			sc.fold.outputLoc = sc.location
			sc.fold.outputPath = sc.path
		case sc.fold.outputLoc != sc.location:
			v.addf(compileerr.CodeFoldScope, path, d.Pos,
				"outputs inside one @fold must share a location, already output at %s", sc.fold.outputPath)
		}
	}
	sf.Output = &OutputDirective{Alias: alias, Seq: v.seq, Pos: d.Pos}
	v.seq++
}

func (v *validator) applyTag(sf *ScalarField, d Directive, args map[string]Argument, sc scope) {
	path := sc.field(sf.Name)
	name, ok := v.identifierArg(args["name"], "@tag name", path)
	if !ok {
		return
	}
	if sc.inFold {
		v.addf(compileerr.CodeFoldScope, path, d.Pos, "@tag is not allowed inside a @fold")
		return
	}
	if prev, dup := v.tags[name]; dup {
		v.addf(compileerr.CodeDuplicateTag, path, d.Pos, "tag %q already defined at %s", name, prev.pos)
		return
	}
	v.tags[name] = tagDef{typ: sf.Type, pos: d.Pos}
	sf.Tag = &TagDirective{Name: name, Pos: d.Pos}
}

func (v *validator) applyFilter(sf *ScalarField, d Directive, args map[string]Argument, sc scope) {
	path := sc.field(sf.Name)
	opArg := args["op"]
	opName, ok := opArg.Value.(StringValue)
	if !ok {
		v.addf(compileerr.CodeBadArgument, path, opArg.Pos, "@filter op must be a string")
		return
	}
	op, known := ir.LookupOperator(opName.Value)
	if !known {
		v.addf(compileerr.CodeBadOperator, path, opArg.Pos, "unknown filter operator %q", opName.Value)
		return
	}
	if sf.Count && !op.CountOK {
		v.addf(compileerr.CodeBadOperator, path, opArg.Pos, "operator %q cannot be applied to %s", op.Name, schema.CountField)
		return
	}
	if !op.Subject.Accepts(sf.Type) {
		v.addf(compileerr.CodeBadOperator, path, opArg.Pos,
			"operator %q requires a %s field, %s is %s", op.Name, op.Subject, sf.Name, sf.Type)
		return
	}

	var items []Value
	if a, has := args["args"]; has {
		list, isList := a.Value.(ListValue)
		if !isList {
			v.addf(compileerr.CodeBadArgument, path, a.Pos, "@filter args must be a list")
			return
		}
		items = list.Items
	}
	if len(items) != op.Arity {
		v.addf(compileerr.CodeBadOperator, path, d.Pos,
			"operator %q takes %d argument(s), got %d", op.Name, op.Arity, len(items))
		return
	}

	fd := &FilterDirective{Op: op, Pos: d.Pos}
	valid := true
	for _, item := range items {
		arg, ok := v.resolveArg(item, op.OperandType(sf.Type), path)
		if !ok {
			valid = false
			continue
		}
		fd.Args = append(fd.Args, arg)
	}
	if valid {
		sf.Filters = append(sf.Filters, fd)
	}
}

// resolveArg classifies one filter argument. "$name" and "%name" strings are
// read as parameters and tags for compatibility with older query text.
func (v *validator) resolveArg(item Value, want schema.Type, path string) (Arg, bool) {
	switch x := item.(type) {
	case VariableValue:
		return v.paramArg(x.Name, want, x.Pos, path)
	case TagValue:
		return v.tagArg(x.Name, want, x.Pos, path)
	case StringValue:
		if name, ok := strings.CutPrefix(x.Value, "$"); ok && identRe.MatchString(name) {
			return v.paramArg(name, want, x.Pos, path)
		}
		if name, ok := strings.CutPrefix(x.Value, "%"); ok && identRe.MatchString(name) {
			return v.tagArg(name, want, x.Pos, path)
		}
	}

	lit, ok := v.literal(item, path)
	if !ok {
		return Arg{}, false
	}
	if !ir.LiteralAssignable(lit, want) {
		v.addf(compileerr.CodeTypeMismatch, path, item.ValuePos(),
			"literal %s is not assignable to %s", ir.FormatValue(lit), want)
		return Arg{}, false
	}
	return Arg{Kind: ArgLiteral, Literal: lit, Type: want, Pos: item.ValuePos()}, true
}

func (v *validator) literal(item Value, path string) (ir.Value, bool) {
	switch x := item.(type) {
	case StringValue:
		return ir.String(x.Value), true
	case IntValue:
		n, err := strconv.ParseInt(x.Raw, 10, 64)
		if err != nil {
			v.addf(compileerr.CodeBadArgument, path, x.Pos, "integer %s out of range", x.Raw)
			return nil, false
		}
		return ir.Int(n), true
	case BooleanValue:
		return ir.Bool(x.Value), true
	case ListValue:
		out := make(ir.List, 0, len(x.Items))
		ok := true
		for _, e := range x.Items {
			switch e.(type) {
			case VariableValue, TagValue:
				v.addf(compileerr.CodeBadArgument, path, e.ValuePos(), "list elements must be literals")
				ok = false
				continue
			}
			lv, good := v.literal(e, path)
			if !good {
				ok = false
				continue
			}
			out = append(out, lv)
		}
		return out, ok
	case FloatValue:
		v.addf(compileerr.CodeFloatLiteral, path, x.Pos, "float literal %s is not supported, pass it as a parameter", x.Raw)
	case NullValue:
		v.addf(compileerr.CodeBadArgument, path, x.Pos, "null is not a valid argument, use is_null")
	case EnumValue:
		v.addf(compileerr.CodeBadArgument, path, x.Pos, "bare name %q is not a valid argument", x.Name)
	default:
		v.addf(compileerr.CodeBadArgument, path, item.ValuePos(), "unsupported argument")
	}
	return nil, false
}

func (v *validator) paramArg(name string, want schema.Type, pos compileerr.Pos, path string) (Arg, bool) {
	if strings.HasPrefix(name, "__") {
		v.addf(compileerr.CodeReservedName, path, pos, "parameter $%s: names starting with __ are reserved", name)
		return Arg{}, false
	}
	if prev, seen := v.params[name]; seen {
		if !ir.Compatible(prev, want) {
			v.addf(compileerr.CodeParameterConflict, path, pos, "parameter $%s used as %s and as %s", name, prev, want)
			return Arg{}, false
		}
	} else {
		v.params[name] = want
		v.paramOrder = append(v.paramOrder, name)
	}
	return Arg{Kind: ArgVariable, Name: name, Type: want, Pos: pos}, true
}

func (v *validator) tagArg(name string, want schema.Type, pos compileerr.Pos, path string) (Arg, bool) {
	v.tagUses = append(v.tagUses, tagUse{name: name, want: want, pos: pos, path: path})
	return Arg{Kind: ArgTag, Name: name, Type: want, Pos: pos}, true
}

// checkTagUses runs after the walk: a tag may be referenced before the field
// that defines it. Whether that order is acceptable is decided during
// lowering.
func (v *validator) checkTagUses() {
	for _, u := range v.tagUses {
		def, ok := v.tags[u.name]
		if !ok {
			v.addf(compileerr.CodeUnknownTag, u.path, u.pos, "unknown tag %%%s", u.name)
			continue
		}
		if !ir.Compatible(u.want, def.typ) {
			v.addf(compileerr.CodeTypeMismatch, u.path, u.pos,
				"tag %%%s has type %s, operator expects %s", u.name, def.typ, u.want)
		}
	}
}

func (v *validator) applyOptional(ef *EdgeField, d Directive, _ map[string]Argument, sc scope) {
	if sc.inFold {
		v.addf(compileerr.CodeFoldScope, sc.field(ef.Name), d.Pos, "@optional is not allowed inside a @fold")
		return
	}
	ef.Optional = &OptionalDirective{Pos: d.Pos}
}

func (v *validator) applyFold(ef *EdgeField, d Directive, _ map[string]Argument, sc scope) {
	if sc.inFold {
		v.addf(compileerr.CodeFoldScope, sc.field(ef.Name), d.Pos, "nested @fold is not allowed")
		return
	}
	ef.Fold = &FoldDirective{Pos: d.Pos}
}

func (v *validator) applyRecurse(ef *EdgeField, d Directive, args map[string]Argument, sc scope) {
	path := sc.field(ef.Name)
	if sc.inFold {
		v.addf(compileerr.CodeFoldScope, path, d.Pos, "@recurse is not allowed inside a @fold")
		return
	}
	if !ef.Traversal.Edge.Recursive {
		v.addf(compileerr.CodeRecurse, path, d.Pos, "edge %s is not recursion-eligible", ef.Traversal.Edge.Name)
		return
	}

	intType := schema.Type{Kind: schema.Int}
	a := args["depth"]
	var depth Arg
	var ok bool
	switch x := a.Value.(type) {
	case IntValue:
		n, err := strconv.ParseInt(x.Raw, 10, 64)
		switch {
		case err != nil:
			v.addf(compileerr.CodeBadArgument, path, x.Pos, "integer %s out of range", x.Raw)
		case n < 0:
			v.addf(compileerr.CodeRecurse, path, x.Pos, "@recurse depth must be non-negative, got %d", n)
		default:
			depth, ok = Arg{Kind: ArgLiteral, Literal: ir.Int(n), Type: intType, Pos: x.Pos}, true
		}
	case VariableValue:
		depth, ok = v.paramArg(x.Name, intType, x.Pos, path)
	case StringValue:
		if name, isParam := strings.CutPrefix(x.Value, "$"); isParam && identRe.MatchString(name) {
			depth, ok = v.paramArg(name, intType, x.Pos, path)
		} else {
			v.addf(compileerr.CodeBadArgument, path, x.Pos, "@recurse depth must be an Int literal or $parameter")
		}
	case FloatValue:
		v.addf(compileerr.CodeFloatLiteral, path, x.Pos, "@recurse depth must be an integer, got %s", x.Raw)
	default:
		v.addf(compileerr.CodeBadArgument, path, a.Pos, "@recurse depth must be an Int literal or $parameter")
	}
	if ok {
		ef.Recurse = &RecurseDirective{Depth: depth, Pos: d.Pos}
	}
}

func (v *validator) checkEdgeCombination(ef *EdgeField, path string) {
	if ef.Fold != nil && ef.Optional != nil {
		v.addf(compileerr.CodeFoldOptional, path, ef.Optional.Pos, "@fold and @optional cannot be combined on one edge")
	}
	if ef.Recurse != nil && ef.Optional != nil {
		v.addf(compileerr.CodeRecurse, path, ef.Optional.Pos, "@recurse and @optional cannot be combined on one edge")
	}
	if ef.Recurse != nil && ef.Fold != nil {
		v.addf(compileerr.CodeRecurse, path, ef.Fold.Pos, "@recurse and @fold cannot be combined on one edge")
	}
}
