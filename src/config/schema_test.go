package config

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema(t *testing.T) {
	data, err := Schema()
	require.NoError(t, err)

	var doc struct {
		ID         string                     `json:"$id"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, SchemaID, doc.ID)
	for _, section := range []string{"server", "audio", "voice", "conversation", "storage", "log"} {
		assert.Contains(t, doc.Properties, section)
	}

	text := string(data)
	assert.Contains(t, text, `"base_url"`)
	assert.Contains(t, text, `"buffered"`)
	assert.Contains(t, text, "Go duration string")
}

func TestDiff(t *testing.T) {
	diff, err := Diff(DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, diff)

	config := DefaultConfig()
	config.Server.BaseURL = "http://example.com"
	config.Server.APIKey = "secret"
	diff, err = Diff(config)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(diff, "--- defaults"))
	assert.Contains(t, diff, `+    "base_url": "http://example.com",`)
	assert.Contains(t, diff, `-    "base_url": "http://localhost:8000",`)
	assert.NotContains(t, diff, "secret")
}
