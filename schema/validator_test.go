package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "host": {"type": "string"},
    "port": {"type": "integer", "minimum": 1}
  },
  "required": ["host"],
  "additionalProperties": false
}`

func TestValidator(t *testing.T) {
	v, err := NewValidator("test.json", []byte(testSchema))
	require.NoError(t, err)

	assert.NoError(t, v.Validate(map[string]interface{}{"host": "h", "port": 22}))

	err = v.Validate(map[string]interface{}{"port": 0, "extra": true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation failed")
	assert.Contains(t, err.Error(), "/port")
}

func TestValidatorRejectsBadSchema(t *testing.T) {
	_, err := NewValidator("bad.json", []byte(`{"type": 12}`))
	assert.Error(t, err)
}
