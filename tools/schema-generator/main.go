// Command schema-generator writes the JSON schemas of rex.yml and of its
// logging section into schema/definitions.
package main

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"github.com/grovetools/rex/config"
	"github.com/grovetools/rex/logging"
)

func main() {
	outputDir := "schema/definitions"
	if len(os.Args) > 1 {
		outputDir = os.Args[1]
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		log.Fatalf("Error creating schema directory: %v", err)
	}

	schemaBytes, err := config.GenerateSchema()
	if err != nil {
		log.Fatalf("Error generating schema: %v", err)
	}
	write(filepath.Join(outputDir, "rex.schema.json"), schemaBytes)

	r := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		ExpandedStruct:            true,
		FieldNameTag:              "yaml",
	}
	s := r.Reflect(&logging.Config{})
	s.Title = "rex logging configuration"
	s.Description = "Schema for the 'logging' section of rex.yml."
	s.Required = nil
	loggingBytes, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		log.Fatalf("Error marshaling logging schema: %v", err)
	}
	write(filepath.Join(outputDir, "logging.schema.json"), loggingBytes)
}

func write(path string, data []byte) {
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Fatalf("Error writing schema file: %v", err)
	}
	log.Printf("Successfully generated %s", path)
}
