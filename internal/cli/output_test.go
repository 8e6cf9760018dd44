package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gqlc/internal/compileerr"
	"github.com/roach88/gqlc/internal/schema"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("E001", "parse error", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E001", resp.Error.Code)
	assert.Equal(t, "parse error", resp.Error.Message)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error("C002", "query file not found", map[string]string{"file": "x"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [C002]")
	assert.Contains(t, buf.String(), "query file not found")
	assert.NotContains(t, buf.String(), "Details")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	err := formatter.Error("C002", "query file not found", map[string]string{"file": "x"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}

	formatter.VerboseLog("compiling %d file(s)", 3)
	assert.Empty(t, out.String())
	assert.Equal(t, "compiling 3 file(s)\n", errOut.String())

	formatter.Verbose = false
	formatter.VerboseLog("hidden")
	assert.Equal(t, "compiling 3 file(s)\n", errOut.String())
}

func TestExitError(t *testing.T) {
	base := errors.New("boom")
	err := WrapExitError(ExitCommandError, "failed", base)
	assert.Equal(t, "failed: boom", err.Error())
	assert.ErrorIs(t, err, base)
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, ExitFailure, GetExitCode(base))
	assert.Equal(t, "plain", NewExitError(ExitFailure, "plain").Error())
}

func TestToCLIError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantPhase   string
		wantDetails bool
	}{
		{
			name:      "parse",
			err:       &compileerr.ParseError{Pos: compileerr.Pos{Line: 1, Column: 2}, Message: "bad"},
			wantCode:  "E001",
			wantPhase: "parse",
		},
		{
			name: "validation",
			err: compileerr.NewValidationError([]compileerr.Violation{
				{Code: compileerr.CodeUnknownField, Path: "Person.nickname", Message: "no such field"},
			}),
			wantCode:    "E100",
			wantPhase:   "validate",
			wantDetails: true,
		},
		{
			name:      "unsupported",
			err:       &compileerr.BackendUnsupportedError{Backend: "cypher", Feature: "runtime recursion depth"},
			wantCode:  "E301",
			wantPhase: "backend",
		},
		{
			name:        "inconsistent schema",
			err:         &schema.Error{Problems: []schema.Problem{{Code: schema.ErrNoTypes, Message: "no types"}}},
			wantCode:    ErrCodeSchema,
			wantDetails: true,
		},
		{
			name:     "schema file",
			err:      &schema.LoadError{Path: "x.yaml", Message: "no such file"},
			wantCode: ErrCodeSchema,
		},
		{
			name:     "load",
			err:      &LoadError{Code: ErrCodeNoFiles, Message: "no query files match x"},
			wantCode: ErrCodeNoFiles,
		},
		{
			name:     "other",
			err:      errors.New("boom"),
			wantCode: ErrCodeGeneric,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToCLIError(tt.err)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantPhase, got.Phase)
			assert.Equal(t, tt.wantDetails, got.Details != nil)
			assert.NotEmpty(t, got.Message)
		})
	}
}
