package ir

import "strconv"

// Location is an addressable point in the traversal: the vertex reached by
// following Path from the root. IDs are assigned in depth-first order, root
// first, so revisiting an edge from the same parent still yields a distinct
// location. Locations are values and never change after creation.
type Location struct {
	ID   int
	Path string
	Type string
}

// RootLocation returns the location of the query root.
func RootLocation(typeName string) Location {
	return Location{ID: 0, Path: typeName, Type: typeName}
}

// Child returns the location reached from l over field, with the given ID.
func (l Location) Child(id int, field, typeName string) Location {
	return Location{ID: id, Path: l.Path + "/" + field, Type: typeName}
}

// Name is the identifier backends use for this location (table alias,
// pattern variable, step label).
func (l Location) Name() string {
	return "v" + strconv.Itoa(l.ID)
}

func (l Location) String() string {
	return l.Path + "@" + strconv.Itoa(l.ID)
}
