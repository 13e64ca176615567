package intent

import (
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// recordsSchema describes the normalised payload: an array of records. Fields
// may be null because models emit null for "not applicable".
const recordsSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["category"],
    "properties": {
      "category": {
        "type": "string",
        "enum": [
          "CREATE", "STATUS", "SET", "COUNT_STATE", "LIST_PROVIDER_RESOURCE",
          "PROVIDER_STATUS", "PROVIDER_COUNT", "CHAT", "CHAT_OUTPUT"
        ]
      },
      "action":        {"type": ["string", "null"]},
      "action_value":  {"type": ["string", "null"]},
      "target":        {"type": ["string", "null"]},
      "subject":       {"type": ["string", "null"]},
      "description":   {"type": ["string", "null"]},
      "manifest":      {"type": ["string", "null"]},
      "version":       {"type": ["string", "null"]},
      "architecture":  {"type": ["string", "null"]},
      "provider_type": {"type": ["string", "null"]},
      "resource":      {"type": ["string", "null"]}
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("records.schema.json", recordsSchema)
