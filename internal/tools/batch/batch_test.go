package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxdigest/internal/session"
)

func TestParseStringOrArray(t *testing.T) {
	tooMany := make([]any, MaxItems+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("id%d", i)
	}

	tests := []struct {
		name    string
		input   any
		want    []string
		wantErr string
	}{
		{name: "single string", input: "test123", want: []string{"test123"}},
		{name: "array of strings", input: []any{"id1", "id2", "id3"}, want: []string{"id1", "id2", "id3"}},
		{name: "duplicates dropped", input: []any{"id1", "id2", "id1"}, want: []string{"id1", "id2"}},
		{name: "nil input", input: nil, wantErr: "ids is required"},
		{name: "empty string", input: "", wantErr: "ids cannot be empty"},
		{name: "empty array", input: []any{}, wantErr: "ids cannot be empty"},
		{name: "array with non-string", input: []any{"id1", 123}, wantErr: "ids[1] must be a string"},
		{name: "array with empty string", input: []any{"id1", ""}, wantErr: "ids[1] cannot be empty"},
		{name: "invalid type", input: 123, wantErr: "must be a string or array of strings"},
		{name: "too many items", input: tooMany, wantErr: "at most 100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStringOrArray(tt.input, "ids")
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

func TestFromActionResults(t *testing.T) {
	results := FromActionResults([]session.ActionResult{
		{ID: "a@x.io", OverrideID: "o1"},
		{ID: "b@x.io", Err: errors.New("unknown entity")},
	})

	assert.Equal(t, []Result{
		{ID: "a@x.io", Status: StatusAccepted, OverrideID: "o1"},
		{ID: "b@x.io", Status: StatusError, Error: "unknown entity"},
	}, results)
}

func TestFormatResults(t *testing.T) {
	out := FormatResults([]Result{
		{ID: "1", Status: StatusAccepted, OverrideID: "o1"},
		NewErrorResult("2", errors.New("failed")),
		{ID: "3", Status: StatusAccepted, OverrideID: "o3"},
	})

	var s Summary
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Accepted)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, "failed", s.Results[1].Error)
}
