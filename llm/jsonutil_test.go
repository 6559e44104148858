package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_CodeBlock(t *testing.T) {
	content := "Here is the result:\n```json\n{\"is_relevant\": true, \"score\": 0.9}\n```\nDone."
	out := ExtractJSON(content)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, true, parsed["is_relevant"])
}

func TestExtractJSON_RawObject(t *testing.T) {
	out := ExtractJSON(`The answer is {"facts": []} as requested`)
	assert.JSONEq(t, `{"facts": []}`, out)
}

func TestExtractJSON_TrailingCommas(t *testing.T) {
	out := ExtractJSON(`{"keywords": ["iva", "ministro",], "score": 0.8,}`)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
}

func TestExtractJSON_LineComments(t *testing.T) {
	content := `{
  "url": "http://example.com/a//b", // keep the URL intact
  "score": 1 // high
}`
	out := ExtractJSON(content)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, "http://example.com/a//b", parsed["url"])
}

func TestExtractJSON_NoObject(t *testing.T) {
	assert.Empty(t, ExtractJSON("no json here"))
}
