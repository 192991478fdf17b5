// Package schema validates configuration documents against a JSON Schema.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator validates documents against one compiled schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles schemaJSON, registered under name.
func NewValidator(name string, schemaJSON []byte) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// Validate validates a decoded document. The document is normalized through
// JSON first because the schema library expects plain JSON values.
func (v *Validator) Validate(doc interface{}) error {
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document to JSON for validation: %w", err)
	}

	var dataToValidate interface{}
	if err := json.Unmarshal(jsonData, &dataToValidate); err != nil {
		return fmt.Errorf("failed to unmarshal JSON for validation: %w", err)
	}

	if err := v.schema.Validate(dataToValidate); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			var errorMessages []string
			collectErrors(validationErr, &errorMessages)
			return fmt.Errorf("schema validation failed:\n%s", strings.Join(errorMessages, "\n"))
		}
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

// collectErrors recursively collects all validation errors into a slice
func collectErrors(err *jsonschema.ValidationError, messages *[]string) {
	if len(err.Causes) == 0 {
		loc := err.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*messages = append(*messages, fmt.Sprintf("- %s: %s", loc, err.Message))
	}
	for _, cause := range err.Causes {
		collectErrors(cause, messages)
	}
}
