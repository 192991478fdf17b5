package config

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/grovetools/rex/schema"
)

// GenerateSchema generates the JSON Schema for rex.yml.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		ExpandedStruct:            true,
		FieldNameTag:              "yaml",
		RequiredFromJSONSchemaTags: true,
	}

	s := r.Reflect(&Config{})
	s.Title = "rex configuration"
	s.Description = "Global configuration for the rex remote job runner."
	s.Version = "http://json-schema.org/draft-07/schema#"
	for _, key := range ExtensionKeys {
		s.Properties.Set(key, &jsonschema.Schema{
			Type:        "object",
			Description: "Settings for the " + key + " subsystem",
		})
	}

	return json.MarshalIndent(s, "", "  ")
}

var (
	validatorOnce sync.Once
	validator     *schema.Validator
	validatorErr  error
)

func configValidator() (*schema.Validator, error) {
	validatorOnce.Do(func() {
		data, err := GenerateSchema()
		if err != nil {
			validatorErr = err
			return
		}
		validator, validatorErr = schema.NewValidator("rex.schema.json", data)
	})
	return validator, validatorErr
}
