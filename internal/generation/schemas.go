package generation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Statement lists arrive either as a JSON array or as a string that holds
// an array literal.
const statementsType = `{"type": ["array", "string"], "items": {"type": "string"}}`

var (
	generateSchema = gojsonschema.NewStringLoader(`{
		"type": "object",
		"required": ["result"],
		"properties": {"result": ` + statementsType + `}
	}`)

	createDatabaseSchema = gojsonschema.NewStringLoader(`{
		"type": "object",
		"required": ["sql"],
		"properties": {"sql": ` + statementsType + `}
	}`)

	populateSchema = gojsonschema.NewStringLoader(statementsType)

	// The analysis is passed through untouched; it only has to be JSON.
	analyzeSchema = gojsonschema.NewStringLoader(`{}`)
)

func validate(schema gojsonschema.JSONLoader, data []byte) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("unexpected response shape: %s", strings.Join(msgs, "; "))
}
