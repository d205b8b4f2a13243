package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docverify/docverify-backend/internal/docprocessing/pipeline"
)

func TestParseObject(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    map[string]any
		wantErr bool
	}{
		{name: "plain object", content: `{"a":"1"}`, want: map[string]any{"a": "1"}},
		{name: "fenced", content: "```json\n{\"a\":\"1\"}\n```", want: map[string]any{"a": "1"}},
		{name: "fence without tag", content: "```\n{\"a\":null}\n```", want: map[string]any{"a": nil}},
		{name: "prose around object", content: "Here it is:\n{\"a\":{\"b\":\"c\"}}\nDone.", want: map[string]any{"a": map[string]any{"b": "c"}}},
		{name: "empty object", content: "{}", want: map[string]any{}},
		{name: "array", content: `[1,2]`, wantErr: true},
		{name: "null", content: `null`, wantErr: true},
		{name: "prose only", content: "no fields found", wantErr: true},
		{name: "truncated", content: `{"a": "1"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pipeline.ParseObject(tt.content)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, pipeline.ErrMalformedOutput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
