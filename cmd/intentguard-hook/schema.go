package main

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// toolSchemas constrains tool_input for each intercepted write tool.
var toolSchemas = map[string]string{ //nolint:gochecknoglobals // static config
	"Write": `{
  "type": "object",
  "required": ["file_path", "content"],
  "properties": {
    "file_path": {"type": "string", "minLength": 1},
    "content": {"type": "string"},
    "intent_id": {"type": "string"}
  }
}`,
	"Edit": `{
  "type": "object",
  "required": ["file_path", "old_string", "new_string"],
  "properties": {
    "file_path": {"type": "string", "minLength": 1},
    "old_string": {"type": "string"},
    "new_string": {"type": "string"},
    "replace_all": {"type": "boolean"},
    "intent_id": {"type": "string"}
  }
}`,
	"MultiEdit": `{
  "type": "object",
  "required": ["file_path", "edits"],
  "properties": {
    "file_path": {"type": "string", "minLength": 1},
    "edits": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["old_string", "new_string"],
        "properties": {
          "old_string": {"type": "string"},
          "new_string": {"type": "string"},
          "replace_all": {"type": "boolean"}
        }
      }
    },
    "intent_id": {"type": "string"}
  }
}`,
	"write_to_file": `{
  "type": "object",
  "required": ["path", "content"],
  "properties": {
    "path": {"type": "string", "minLength": 1},
    "content": {"type": "string"},
    "intent_id": {"type": "string"}
  }
}`,
}

// compileToolSchemas compiles toolSchemas keyed by tool name.
func compileToolSchemas() (map[string]*jsonschema.Schema, error) {
	compiled := make(map[string]*jsonschema.Schema, len(toolSchemas))
	for tool, schema := range toolSchemas {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		schemaURL := fmt.Sprintf("https://intentguard.local/hook/%s.schema.json", tool)
		if err := c.AddResource(schemaURL, strings.NewReader(schema)); err != nil {
			return nil, fmt.Errorf("load %s schema: %w", tool, err)
		}
		s, err := c.Compile(schemaURL)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", tool, err)
		}
		compiled[tool] = s
	}
	return compiled, nil
}
