package cli

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandQueryFiles(t *testing.T) {
	friends := filepath.Join("testdata", "queries", "friends.graphql")
	adults := filepath.Join("testdata", "queries", "adults.graphql")

	files, err := ExpandQueryFiles([]string{"testdata/queries/*.graphql"})
	require.NoError(t, err)
	assert.Equal(t, []string{adults, friends}, files)

	files, err = ExpandQueryFiles([]string{friends, "testdata/**/friends.graphql"})
	require.NoError(t, err)
	assert.Equal(t, []string{friends}, files, "duplicates collapse")

	files, err = ExpandQueryFiles([]string{"testdata/**/*.graphql"})
	require.NoError(t, err)
	assert.Len(t, files, 4)
}

func TestExpandQueryFiles_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code string
	}{
		{name: "missing file", args: []string{"testdata/nope.graphql"}, code: ErrCodeNotFound},
		{name: "directory", args: []string{"testdata/queries"}, code: ErrCodeNotFound},
		{name: "no matches", args: []string{"testdata/**/*.gql"}, code: ErrCodeNoFiles},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExpandQueryFiles(tt.args)
			var loadErr *LoadError
			require.True(t, errors.As(err, &loadErr), "got %v", err)
			assert.Equal(t, tt.code, loadErr.Code)
		})
	}
}

func TestReadQueryFiles(t *testing.T) {
	files, err := ReadQueryFiles([]string{"testdata/queries/adults.graphql"})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Contains(t, files[0].Text, "query Adults")
}

func TestLoadSchema(t *testing.T) {
	s, err := LoadSchema(filepath.Join("testdata", "people.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Person", "City"}, s.VertexNames())

	_, err = LoadSchema("")
	assert.ErrorContains(t, err, "no schema given")
}

func TestRequireBackend(t *testing.T) {
	id, err := RequireBackend("Postgres")
	require.NoError(t, err)
	assert.Equal(t, "postgres", id.String())

	_, err = RequireBackend("")
	assert.ErrorContains(t, err, "no backend given")

	_, err = RequireBackend("sparql")
	assert.ErrorContains(t, err, "unknown backend")
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]any
		wantErr string
	}{
		{name: "none", pairs: nil, want: nil},
		{
			name:  "json and plain values",
			pairs: []string{"min_age=30", "$who=Alice", `names=["Bob","Carol"]`, "active=true", `quoted="30"`},
			want: map[string]any{
				"min_age": int64(30),
				"who":     "Alice",
				"names":   []any{"Bob", "Carol"},
				"active":  true,
				"quoted":  "30",
			},
		},
		{name: "empty value is a string", pairs: []string{"x="}, want: map[string]any{"x": ""}},
		{name: "missing equals", pairs: []string{"min_age"}, wantErr: "must be name=value"},
		{name: "empty name", pairs: []string{"=3"}, wantErr: "must be name=value"},
		{name: "duplicate", pairs: []string{"a=1", "a=2"}, wantErr: "given twice"},
		{name: "float", pairs: []string{"score=1.5"}, want: map[string]any{"score": 1.5}},
		{name: "null", pairs: []string{"a=null"}, wantErr: "null is not a valid value"},
		{name: "object", pairs: []string{`a={"b":1}`}, wantErr: "objects are not valid"},
		{name: "malformed list", pairs: []string{"a=[1,"}, wantErr: "malformed JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseParams(tt.pairs)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
