package events

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/event.json
var eventSchemaJSON string

const eventSchemaURL = "event.json"

var eventSchema = mustCompileEventSchema()

func mustCompileEventSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true

	if err := compiler.AddResource(eventSchemaURL, strings.NewReader(eventSchemaJSON)); err != nil {
		// ALLOW-PANIC: embedded schema
		panic(fmt.Sprintf("failed to add event schema resource: %v", err))
	}

	schema, err := compiler.Compile(eventSchemaURL)
	if err != nil {
		// ALLOW-PANIC: embedded schema
		panic(fmt.Sprintf("failed to compile event schema: %v", err))
	}
	return schema
}

// ValidateEnvelope checks that body is a JSON document matching the event
// schema.
func ValidateEnvelope(body []byte) error {
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("message body is not valid JSON: %w", err)
	}

	if err := eventSchema.Validate(v); err != nil {
		return fmt.Errorf("JSON schema validation failed: %w", err)
	}

	return nil
}
