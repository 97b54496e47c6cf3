package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aymanbagabas/go-udiff"
	"github.com/swaggest/jsonschema-go"
)

// SchemaID identifies the configuration document schema.
const SchemaID = "https://github.com/elee1766/talkback/config.schema.json"

// Schema returns the JSON Schema of the configuration file, reflected from
// Config.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{}
	schema, err := reflector.Reflect(Config{}, jsonschema.InlineRefs)
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema: %w", err)
	}
	schema.WithID(SchemaID)
	schema.WithTitle("talkback configuration")
	return json.MarshalIndent(schema, "", "  ")
}

// Diff returns a unified diff from the defaults to c. Secrets are redacted
// and an empty string means c matches the defaults.
func Diff(c *Config) (string, error) {
	base, err := json.MarshalIndent(DefaultConfig().Redacted(), "", "  ")
	if err != nil {
		return "", err
	}
	current, err := json.MarshalIndent(c.Redacted(), "", "  ")
	if err != nil {
		return "", err
	}
	diff := udiff.Unified("defaults", "effective", string(base)+"\n", string(current)+"\n")
	return strings.TrimSuffix(diff, "\n"), nil
}
