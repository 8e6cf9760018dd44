package testutil

import (
	"testing"

	"github.com/roach88/gqlc/internal/schema"
)

// PeopleDocument is the schema used throughout the test suite: people who
// know each other and live in cities.
//
//	Person(id, name, age, aliases [String], score Float)
//	City(id, name, population)
//	knows:    Person -> Person, junction person_knows, recursive
//	lives_in: Person -> City, foreign key person.city_id
func PeopleDocument() schema.Document {
	return schema.Document{
		Types: []schema.TypeDoc{
			{
				Name:       "Person",
				Table:      "person",
				PrimaryKey: "id",
				Properties: []schema.PropertyDoc{
					{Name: "id", Type: "ID"},
					{Name: "name", Type: "String"},
					{Name: "age", Type: "Int"},
					{Name: "aliases", Type: "[String]"},
					{Name: "score", Type: "Float"},
				},
			},
			{
				Name:  "City",
				Table: "city",
				Properties: []schema.PropertyDoc{
					{Name: "id", Type: "ID"},
					{Name: "name", Type: "String"},
					{Name: "population", Type: "Int"},
				},
			},
		},
		Edges: []schema.EdgeDoc{
			{
				Name:        "knows",
				From:        "Person",
				To:          "Person",
				OutField:    "knows",
				InField:     "known_by",
				Label:       "KNOWS",
				Cardinality: "many_to_many",
				Recursive:   true,
				SQL:         &schema.EdgeSQLDoc{Table: "person_knows", FromColumn: "person_id", ToColumn: "friend_id"},
			},
			{
				Name:        "lives_in",
				From:        "Person",
				To:          "City",
				OutField:    "lives_in",
				InField:     "residents",
				Label:       "LIVES_IN",
				Cardinality: "many_to_one",
				SQL:         &schema.EdgeSQLDoc{FromColumn: "city_id", ToColumn: "id"},
			},
		},
	}
}

// PeopleSchema builds PeopleDocument, failing the test on error.
func PeopleSchema(t testing.TB) *schema.Schema {
	t.Helper()
	s, err := schema.Build(PeopleDocument())
	if err != nil {
		t.Fatalf("build people schema: %v", err)
	}
	return s
}
