package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient("", "claude-3-5-sonnet-20241022", 1024, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key")

	_, err = NewClient("key", "", 1024, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model")

	client, err := NewClient("key", "claude-3-5-sonnet-20241022", 0, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(defaultMaxTokens), client.maxTokens)
}

func TestParseStructured(t *testing.T) {
	out := parseStructured(`{"favorable": true, "notes": "fine"}`)
	require.NotNil(t, out)
	assert.Equal(t, true, out["favorable"])
	assert.Equal(t, "fine", out["notes"])
}

func TestParseStructuredToleratesSurroundingProse(t *testing.T) {
	out := parseStructured("Here is my answer:\n```json\n{\"complete\": false}\n```\nLet me know.")
	require.NotNil(t, out)
	assert.Equal(t, false, out["complete"])
}

func TestParseStructuredRejectsGarbage(t *testing.T) {
	assert.Nil(t, parseStructured("no json here"))
	assert.Nil(t, parseStructured("{broken"))
	assert.Nil(t, parseStructured("}{"))
}
