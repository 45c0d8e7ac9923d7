package controlapi

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// addTaskSchema describes the /api/add-task body.
const addTaskSchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"prompt": {"type": "string", "minLength": 1},
		"priority": {"type": "integer"},
		"metadata": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		}
	},
	"required": ["prompt"]
}`

var addTaskLoader = gojsonschema.NewStringLoader(addTaskSchema)

// validateBody checks a raw JSON body against a schema and joins the
// violations into one error.
func validateBody(schema gojsonschema.JSONLoader, body []byte) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
